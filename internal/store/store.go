// Package store provides durable persistence for relay state.
package store

import (
	"context"
	"time"

	"github.com/pbarbosa/zapbridge/internal/domain"
)

// Repository defines the interface for persisting users, choice sets and
// expected-input records. Choice sets and expected inputs carry explicit
// expiry timestamps; the bulk Load methods skip entries already expired.
type Repository interface {
	// GetUser retrieves a user by channel identity. Returns (nil, nil) when absent.
	GetUser(ctx context.Context, waID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpsertChoiceSet replaces the stored choice set for the owning user.
	UpsertChoiceSet(ctx context.Context, cs *domain.ChoiceSet) error

	// DeleteChoiceSet removes the stored choice set for a user. Idempotent.
	DeleteChoiceSet(ctx context.Context, waID string) error

	// LoadChoiceSets returns all choice sets not yet expired at the given instant.
	LoadChoiceSets(ctx context.Context, now time.Time) ([]*domain.ChoiceSet, error)

	// UpsertExpectedInput replaces the stored expected-input record for a user.
	UpsertExpectedInput(ctx context.Context, ei *domain.ExpectedInput) error

	// DeleteExpectedInput removes the stored expected-input record. Idempotent.
	DeleteExpectedInput(ctx context.Context, waID string) error

	// LoadExpectedInputs returns all expected-input records not yet expired.
	LoadExpectedInputs(ctx context.Context, now time.Time) ([]*domain.ExpectedInput, error)

	// DeleteExpired removes choice sets and expected inputs past their expiry.
	// Returns the number of records removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)

	// Ping verifies storage connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}
