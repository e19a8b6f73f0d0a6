package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pbarbosa/zapbridge/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	userKeyPrefix   = "user:"
	choiceKeyPrefix = "choices:"
	inputKeyPrefix  = "input:"
)

// RedisStore implements Repository using Redis. Choice sets and expected
// inputs are stored with a native key expiry matching the record's expiry
// timestamp, so Redis evicts them on its own; DeleteExpired is a no-op
// kept for interface parity with the SQLite backend.
type RedisStore struct {
	client *redis.Client
}

// NewRedis creates a new Redis-backed repository.
func NewRedis(addr string) (Repository, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis at %s: %w", addr, err)
	}

	return &RedisStore{client: client}, nil
}

// Ping verifies Redis connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// GetUser retrieves a user by their channel identity.
func (s *RedisStore) GetUser(ctx context.Context, waID string) (*domain.User, error) {
	data, err := s.client.Get(ctx, userKeyPrefix+waID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", waID, err)
	}

	var user domain.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("unmarshal user %s: %w", waID, err)
	}
	return &user, nil
}

// UpsertUser creates or updates a user record.
func (s *RedisStore) UpsertUser(ctx context.Context, user *domain.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	if err := s.client.Set(ctx, userKeyPrefix+user.WaID, data, 0).Err(); err != nil {
		return fmt.Errorf("upsert user %s: %w", user.WaID, err)
	}
	return nil
}

// UpsertChoiceSet replaces the stored choice set for the owning user.
func (s *RedisStore) UpsertChoiceSet(ctx context.Context, cs *domain.ChoiceSet) error {
	data, err := json.Marshal(cs)
	if err != nil {
		return fmt.Errorf("marshal choice set: %w", err)
	}

	ttl := time.Until(cs.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, choiceKeyPrefix+cs.WaID, data, ttl).Err(); err != nil {
		return fmt.Errorf("upsert choice set %s: %w", cs.WaID, err)
	}
	return nil
}

// DeleteChoiceSet removes the stored choice set for a user.
func (s *RedisStore) DeleteChoiceSet(ctx context.Context, waID string) error {
	if err := s.client.Del(ctx, choiceKeyPrefix+waID).Err(); err != nil {
		return fmt.Errorf("delete choice set %s: %w", waID, err)
	}
	return nil
}

// LoadChoiceSets returns all choice sets not yet expired at the given instant.
func (s *RedisStore) LoadChoiceSets(ctx context.Context, now time.Time) ([]*domain.ChoiceSet, error) {
	var sets []*domain.ChoiceSet

	iter := s.client.Scan(ctx, 0, choiceKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue // expired between scan and get
		}
		if err != nil {
			return nil, fmt.Errorf("get %s: %w", iter.Val(), err)
		}

		var cs domain.ChoiceSet
		if err := json.Unmarshal(data, &cs); err != nil {
			slog.Warn("skipping malformed choice set record", "key", iter.Val(), "error", err)
			continue
		}
		if cs.Expired(now) {
			continue
		}
		sets = append(sets, &cs)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan choice sets: %w", err)
	}

	return sets, nil
}

// UpsertExpectedInput replaces the stored expected-input record for a user.
func (s *RedisStore) UpsertExpectedInput(ctx context.Context, ei *domain.ExpectedInput) error {
	data, err := json.Marshal(ei)
	if err != nil {
		return fmt.Errorf("marshal expected input: %w", err)
	}

	ttl := time.Until(ei.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, inputKeyPrefix+ei.WaID, data, ttl).Err(); err != nil {
		return fmt.Errorf("upsert expected input %s: %w", ei.WaID, err)
	}
	return nil
}

// DeleteExpectedInput removes the stored expected-input record for a user.
func (s *RedisStore) DeleteExpectedInput(ctx context.Context, waID string) error {
	if err := s.client.Del(ctx, inputKeyPrefix+waID).Err(); err != nil {
		return fmt.Errorf("delete expected input %s: %w", waID, err)
	}
	return nil
}

// LoadExpectedInputs returns all expected-input records not yet expired.
func (s *RedisStore) LoadExpectedInputs(ctx context.Context, now time.Time) ([]*domain.ExpectedInput, error) {
	var inputs []*domain.ExpectedInput

	iter := s.client.Scan(ctx, 0, inputKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get %s: %w", iter.Val(), err)
		}

		var ei domain.ExpectedInput
		if err := json.Unmarshal(data, &ei); err != nil {
			slog.Warn("skipping malformed expected input record", "key", iter.Val(), "error", err)
			continue
		}
		if ei.Expired(now) {
			continue
		}
		inputs = append(inputs, &ei)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan expected inputs: %w", err)
	}

	return inputs, nil
}

// DeleteExpired is a no-op for Redis; key expiry handles eviction.
func (s *RedisStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}
