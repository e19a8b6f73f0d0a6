package domain

import (
	"time"
)

// Choice is a single selectable option presented to a user.
type Choice struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// ChoiceSet is the list of options currently awaiting resolution for a user.
// At most one live ChoiceSet exists per user; a new one replaces the old.
type ChoiceSet struct {
	WaID      string    `json:"wa_id"`
	SessionID string    `json:"session_id"`
	Choices   []Choice  `json:"choices"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the choice set is past its TTL at the given instant.
func (cs *ChoiceSet) Expired(now time.Time) bool {
	return now.After(cs.ExpiresAt)
}

// ExpectedInput records the kind of input the remote flow is waiting for.
// Its lifecycle is independent of any ChoiceSet.
type ExpectedInput struct {
	WaID      string    `json:"wa_id"`
	Kind      string    `json:"kind"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the expected input is past its TTL at the given instant.
func (e *ExpectedInput) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}
