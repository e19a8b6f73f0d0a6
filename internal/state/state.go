// Package state holds per-user conversational state: the active flow and
// dialogue session, the presented choice set, and the expected input kind.
//
// The in-memory cache is authoritative; choice sets and expected inputs are
// mirrored to durable storage best-effort so they survive restarts. Durable
// write failures never block the in-memory update; they are logged.
package state

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pbarbosa/zapbridge/internal/domain"
	"github.com/pbarbosa/zapbridge/internal/store"
)

// DefaultTTL is the validity window for choice sets and expected inputs.
const DefaultTTL = 30 * time.Minute

type userState struct {
	flowID    string
	sessionID string
}

// Store is the session state store.
type Store struct {
	mu      sync.RWMutex
	users   map[string]*userState
	choices map[string]*domain.ChoiceSet
	inputs  map[string]*domain.ExpectedInput

	repo store.Repository
	ttl  time.Duration

	now func() time.Time
}

// New creates a state store mirrored to the given repository. A ttl of zero
// falls back to DefaultTTL.
func New(repo store.Repository, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		users:   make(map[string]*userState),
		choices: make(map[string]*domain.ChoiceSet),
		inputs:  make(map[string]*domain.ExpectedInput),
		repo:    repo,
		ttl:     ttl,
		now:     time.Now,
	}
}

// LoadPersisted repopulates the in-memory cache from durable storage,
// skipping entries already past expiry. Called once at startup.
func (s *Store) LoadPersisted(ctx context.Context) error {
	now := s.now()

	sets, err := s.repo.LoadChoiceSets(ctx, now)
	if err != nil {
		return fmt.Errorf("load persisted choice sets: %w", err)
	}
	inputs, err := s.repo.LoadExpectedInputs(ctx, now)
	if err != nil {
		return fmt.Errorf("load persisted expected inputs: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cs := range sets {
		s.choices[cs.WaID] = cs
	}
	for _, ei := range inputs {
		s.inputs[ei.WaID] = ei
	}

	slog.Info("session state loaded", "choice_sets", len(sets), "expected_inputs", len(inputs))
	return nil
}

// ActiveFlowID returns the user's active flow id, or "" when none is known.
func (s *Store) ActiveFlowID(ctx context.Context, waID string) string {
	return s.user(ctx, waID).flowID
}

// ActiveSessionID returns the user's active dialogue session id, or "".
func (s *Store) ActiveSessionID(ctx context.Context, waID string) string {
	return s.user(ctx, waID).sessionID
}

// SetActiveFlow rebinds the user to a flow. The session id is left
// untouched: a redirect keeps the remote session alive under the new flow.
func (s *Store) SetActiveFlow(ctx context.Context, waID, flowID string) {
	s.mu.Lock()
	u := s.ensureUserLocked(waID)
	u.flowID = flowID
	s.mu.Unlock()

	s.persistUser(ctx, waID)
}

// SetActiveSession records the user's current dialogue session id.
func (s *Store) SetActiveSession(ctx context.Context, waID, sessionID string) {
	s.mu.Lock()
	u := s.ensureUserLocked(waID)
	u.sessionID = sessionID
	s.mu.Unlock()

	s.persistUser(ctx, waID)
}

// ClearActiveSession forgets the user's dialogue session id. Idempotent.
func (s *Store) ClearActiveSession(ctx context.Context, waID string) {
	s.mu.Lock()
	u := s.ensureUserLocked(waID)
	u.sessionID = ""
	s.mu.Unlock()

	s.persistUser(ctx, waID)
}

// SetActiveChoices replaces the user's choice set and resets its TTL.
func (s *Store) SetActiveChoices(ctx context.Context, waID, sessionID string, choices []domain.Choice) {
	now := s.now()
	cs := &domain.ChoiceSet{
		WaID:      waID,
		SessionID: sessionID,
		Choices:   choices,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	s.mu.Lock()
	s.choices[waID] = cs
	s.mu.Unlock()

	if err := s.repo.UpsertChoiceSet(ctx, cs); err != nil {
		slog.Warn("failed to persist choice set", "wa_id", waID, "error", err)
	}
}

// ActiveChoices returns the user's live choice set, or nil. An expired set
// is evicted on read.
func (s *Store) ActiveChoices(ctx context.Context, waID string) []domain.Choice {
	s.mu.RLock()
	cs, ok := s.choices[waID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	if cs.Expired(s.now()) {
		s.ClearActiveChoices(ctx, waID)
		return nil
	}
	return cs.Choices
}

// ClearActiveChoices removes the user's choice set. Idempotent.
func (s *Store) ClearActiveChoices(ctx context.Context, waID string) {
	s.mu.Lock()
	delete(s.choices, waID)
	s.mu.Unlock()

	if err := s.repo.DeleteChoiceSet(ctx, waID); err != nil {
		slog.Warn("failed to delete persisted choice set", "wa_id", waID, "error", err)
	}
}

// SetExpectedInput replaces the user's expected input kind and resets its TTL.
func (s *Store) SetExpectedInput(ctx context.Context, waID, kind string) {
	ei := &domain.ExpectedInput{
		WaID:      waID,
		Kind:      kind,
		ExpiresAt: s.now().Add(s.ttl),
	}

	s.mu.Lock()
	s.inputs[waID] = ei
	s.mu.Unlock()

	if err := s.repo.UpsertExpectedInput(ctx, ei); err != nil {
		slog.Warn("failed to persist expected input", "wa_id", waID, "error", err)
	}
}

// ExpectedInput returns the input kind the remote flow is waiting for, or
// "". An expired record is evicted on read.
func (s *Store) ExpectedInput(ctx context.Context, waID string) string {
	s.mu.RLock()
	ei, ok := s.inputs[waID]
	s.mu.RUnlock()
	if !ok {
		return ""
	}

	if ei.Expired(s.now()) {
		s.ClearExpectedInput(ctx, waID)
		return ""
	}
	return ei.Kind
}

// ClearExpectedInput removes the user's expected-input record. Idempotent.
func (s *Store) ClearExpectedInput(ctx context.Context, waID string) {
	s.mu.Lock()
	delete(s.inputs, waID)
	s.mu.Unlock()

	if err := s.repo.DeleteExpectedInput(ctx, waID); err != nil {
		slog.Warn("failed to delete persisted expected input", "wa_id", waID, "error", err)
	}
}

// Sweep removes expired in-memory and durable entries. Eviction is safe to
// run concurrently with pipelines for other users: removing an expired
// entry is equivalent to a cache miss on the next read.
func (s *Store) Sweep(ctx context.Context) error {
	now := s.now()

	s.mu.Lock()
	var evicted int
	for waID, cs := range s.choices {
		if cs.Expired(now) {
			delete(s.choices, waID)
			evicted++
		}
	}
	for waID, ei := range s.inputs {
		if ei.Expired(now) {
			delete(s.inputs, waID)
			evicted++
		}
	}
	s.mu.Unlock()

	deleted, err := s.repo.DeleteExpired(ctx, now)
	if err != nil {
		return fmt.Errorf("sweep durable store: %w", err)
	}

	if evicted > 0 || deleted > 0 {
		slog.Info("state sweep completed", "evicted", evicted, "durable_deleted", deleted)
	}
	return nil
}

// user returns the cached per-user record, loading it from durable storage
// on first access. Load failures are logged and treated as an absent user.
func (s *Store) user(ctx context.Context, waID string) userState {
	s.mu.RLock()
	u, ok := s.users[waID]
	if ok {
		st := *u
		s.mu.RUnlock()
		return st
	}
	s.mu.RUnlock()

	persisted, err := s.repo.GetUser(ctx, waID)
	if err != nil {
		slog.Warn("failed to load user record", "wa_id", waID, "error", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[waID]; ok {
		return *u
	}
	u = &userState{}
	if persisted != nil {
		u.flowID = persisted.ActiveFlowID
		u.sessionID = persisted.ActiveSessionID
	}
	s.users[waID] = u
	return *u
}

func (s *Store) ensureUserLocked(waID string) *userState {
	u, ok := s.users[waID]
	if !ok {
		u = &userState{}
		s.users[waID] = u
	}
	return u
}

// persistUser mirrors the user's flow/session binding to durable storage,
// best-effort.
func (s *Store) persistUser(ctx context.Context, waID string) {
	s.mu.RLock()
	u, ok := s.users[waID]
	if !ok {
		s.mu.RUnlock()
		return
	}
	rec := &domain.User{
		WaID:            waID,
		ActiveFlowID:    u.flowID,
		ActiveSessionID: u.sessionID,
		CreatedAt:       s.now(),
		UpdatedAt:       s.now(),
	}
	s.mu.RUnlock()

	if err := s.repo.UpsertUser(ctx, rec); err != nil {
		slog.Warn("failed to persist user record", "wa_id", waID, "error", err)
	}
}
