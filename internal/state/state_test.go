package state

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pbarbosa/zapbridge/internal/domain"
)

// fakeRepo is an in-memory Repository with optional failure injection.
type fakeRepo struct {
	mu      sync.Mutex
	users   map[string]*domain.User
	choices map[string]*domain.ChoiceSet
	inputs  map[string]*domain.ExpectedInput
	fail    bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:   make(map[string]*domain.User),
		choices: make(map[string]*domain.ChoiceSet),
		inputs:  make(map[string]*domain.ExpectedInput),
	}
}

var errRepoDown = errors.New("store unreachable")

func (f *fakeRepo) GetUser(_ context.Context, waID string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errRepoDown
	}
	return f.users[waID], nil
}

func (f *fakeRepo) UpsertUser(_ context.Context, user *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errRepoDown
	}
	f.users[user.WaID] = user
	return nil
}

func (f *fakeRepo) UpsertChoiceSet(_ context.Context, cs *domain.ChoiceSet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errRepoDown
	}
	f.choices[cs.WaID] = cs
	return nil
}

func (f *fakeRepo) DeleteChoiceSet(_ context.Context, waID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errRepoDown
	}
	delete(f.choices, waID)
	return nil
}

func (f *fakeRepo) LoadChoiceSets(_ context.Context, now time.Time) ([]*domain.ChoiceSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.ChoiceSet
	for _, cs := range f.choices {
		if !cs.Expired(now) {
			out = append(out, cs)
		}
	}
	return out, nil
}

func (f *fakeRepo) UpsertExpectedInput(_ context.Context, ei *domain.ExpectedInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errRepoDown
	}
	f.inputs[ei.WaID] = ei
	return nil
}

func (f *fakeRepo) DeleteExpectedInput(_ context.Context, waID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errRepoDown
	}
	delete(f.inputs, waID)
	return nil
}

func (f *fakeRepo) LoadExpectedInputs(_ context.Context, now time.Time) ([]*domain.ExpectedInput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.ExpectedInput
	for _, ei := range f.inputs {
		if !ei.Expired(now) {
			out = append(out, ei)
		}
	}
	return out, nil
}

func (f *fakeRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for k, cs := range f.choices {
		if cs.Expired(now) {
			delete(f.choices, k)
			n++
		}
	}
	for k, ei := range f.inputs {
		if ei.Expired(now) {
			delete(f.inputs, k)
			n++
		}
	}
	return n, nil
}

func (f *fakeRepo) Ping(context.Context) error { return nil }
func (f *fakeRepo) Close() error               { return nil }

func (f *fakeRepo) hasChoiceSet(waID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.choices[waID]
	return ok
}

var testChoices = []domain.Choice{
	{ID: "a", Label: "Sim"},
	{ID: "b", Label: "Não"},
}

func TestChoicesRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New(newFakeRepo(), 30*time.Minute)

	s.SetActiveChoices(ctx, "u1", "sess-1", testChoices)

	got := s.ActiveChoices(ctx, "u1")
	if len(got) != 2 || got[1].ID != "b" {
		t.Fatalf("Expected stored choices back, got %+v", got)
	}
}

func TestChoicesExpireAndEvict(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	s := New(repo, 30*time.Minute)

	t0 := time.Now()
	s.now = func() time.Time { return t0 }
	s.SetActiveChoices(ctx, "u1", "sess-1", testChoices)

	s.now = func() time.Time { return t0.Add(31 * time.Minute) }
	if got := s.ActiveChoices(ctx, "u1"); got != nil {
		t.Fatalf("Expected nil after TTL, got %+v", got)
	}

	// The entry must be evicted, not just hidden.
	s.mu.RLock()
	_, inMemory := s.choices["u1"]
	s.mu.RUnlock()
	if inMemory {
		t.Error("Expected expired choice set evicted from memory")
	}
	if repo.hasChoiceSet("u1") {
		t.Error("Expected expired choice set deleted from durable store")
	}
}

func TestChoicesReplacementResetsTTL(t *testing.T) {
	ctx := context.Background()
	s := New(newFakeRepo(), 30*time.Minute)

	t0 := time.Now()
	s.now = func() time.Time { return t0 }
	s.SetActiveChoices(ctx, "u1", "sess-1", testChoices)

	s.now = func() time.Time { return t0.Add(20 * time.Minute) }
	s.SetActiveChoices(ctx, "u1", "sess-2", testChoices[:1])

	// 31 minutes after t0 is only 11 minutes after the replacement.
	s.now = func() time.Time { return t0.Add(31 * time.Minute) }
	got := s.ActiveChoices(ctx, "u1")
	if len(got) != 1 {
		t.Fatalf("Expected replacement choice set to be live, got %+v", got)
	}
}

func TestClearActiveChoicesIdempotent(t *testing.T) {
	ctx := context.Background()
	s := New(newFakeRepo(), 30*time.Minute)

	s.SetActiveChoices(ctx, "u1", "sess-1", testChoices)
	s.ClearActiveChoices(ctx, "u1")
	s.ClearActiveChoices(ctx, "u1")

	if got := s.ActiveChoices(ctx, "u1"); got != nil {
		t.Errorf("Expected nil after clear, got %+v", got)
	}
}

func TestExpectedInputLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New(newFakeRepo(), 30*time.Minute)

	t0 := time.Now()
	s.now = func() time.Time { return t0 }
	s.SetExpectedInput(ctx, "u1", "file input")

	if got := s.ExpectedInput(ctx, "u1"); got != "file input" {
		t.Fatalf("Expected %q, got %q", "file input", got)
	}

	s.now = func() time.Time { return t0.Add(31 * time.Minute) }
	if got := s.ExpectedInput(ctx, "u1"); got != "" {
		t.Errorf("Expected empty kind after TTL, got %q", got)
	}
}

func TestDurableFailureDoesNotBlockMemory(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	s := New(repo, 30*time.Minute)

	repo.fail = true
	s.SetActiveChoices(ctx, "u1", "sess-1", testChoices)

	// In-memory cache stays authoritative despite the failed write.
	if got := s.ActiveChoices(ctx, "u1"); len(got) != 2 {
		t.Fatalf("Expected in-memory choices despite store failure, got %+v", got)
	}
}

func TestLoadPersistedSkipsExpired(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	now := time.Now()

	repo.choices["live"] = &domain.ChoiceSet{
		WaID: "live", SessionID: "s1", Choices: testChoices,
		CreatedAt: now, ExpiresAt: now.Add(10 * time.Minute),
	}
	repo.choices["stale"] = &domain.ChoiceSet{
		WaID: "stale", SessionID: "s2", Choices: testChoices,
		CreatedAt: now.Add(-time.Hour), ExpiresAt: now.Add(-30 * time.Minute),
	}
	repo.inputs["live"] = &domain.ExpectedInput{
		WaID: "live", Kind: "file input", ExpiresAt: now.Add(10 * time.Minute),
	}

	s := New(repo, 30*time.Minute)
	if err := s.LoadPersisted(ctx); err != nil {
		t.Fatalf("LoadPersisted returned error: %v", err)
	}

	if got := s.ActiveChoices(ctx, "live"); len(got) != 2 {
		t.Errorf("Expected live choice set restored, got %+v", got)
	}
	if got := s.ActiveChoices(ctx, "stale"); got != nil {
		t.Errorf("Expected stale choice set skipped, got %+v", got)
	}
	if got := s.ExpectedInput(ctx, "live"); got != "file input" {
		t.Errorf("Expected live expected input restored, got %q", got)
	}
}

func TestSweepRemovesExpired(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	s := New(repo, 30*time.Minute)

	t0 := time.Now()
	s.now = func() time.Time { return t0 }
	s.SetActiveChoices(ctx, "old", "s1", testChoices)
	s.SetExpectedInput(ctx, "old", "file input")

	s.now = func() time.Time { return t0.Add(25 * time.Minute) }
	s.SetActiveChoices(ctx, "fresh", "s2", testChoices)

	s.now = func() time.Time { return t0.Add(40 * time.Minute) }
	if err := s.Sweep(ctx); err != nil {
		t.Fatalf("Sweep returned error: %v", err)
	}

	s.mu.RLock()
	_, oldThere := s.choices["old"]
	_, freshThere := s.choices["fresh"]
	_, inputThere := s.inputs["old"]
	s.mu.RUnlock()

	if oldThere || inputThere {
		t.Error("Expected expired entries removed by sweep")
	}
	if !freshThere {
		t.Error("Expected live entry to survive sweep")
	}
	if repo.hasChoiceSet("old") {
		t.Error("Expected expired durable entry removed by sweep")
	}
}

func TestSessionAndFlowBinding(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	s := New(repo, 30*time.Minute)

	s.SetActiveFlow(ctx, "u1", "main-flow")
	s.SetActiveSession(ctx, "u1", "sess-1")

	if got := s.ActiveFlowID(ctx, "u1"); got != "main-flow" {
		t.Errorf("Expected flow main-flow, got %q", got)
	}
	if got := s.ActiveSessionID(ctx, "u1"); got != "sess-1" {
		t.Errorf("Expected session sess-1, got %q", got)
	}

	// Rebinding the flow leaves the session untouched.
	s.SetActiveFlow(ctx, "u1", "other-flow")
	if got := s.ActiveSessionID(ctx, "u1"); got != "sess-1" {
		t.Errorf("Expected session unchanged after flow rebind, got %q", got)
	}

	s.ClearActiveSession(ctx, "u1")
	if got := s.ActiveSessionID(ctx, "u1"); got != "" {
		t.Errorf("Expected empty session after clear, got %q", got)
	}
}

func TestUserBindingLoadedFromStore(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	repo.users["u1"] = &domain.User{
		WaID:            "u1",
		ActiveFlowID:    "persisted-flow",
		ActiveSessionID: "persisted-sess",
	}

	s := New(repo, 30*time.Minute)
	if got := s.ActiveFlowID(ctx, "u1"); got != "persisted-flow" {
		t.Errorf("Expected persisted flow id, got %q", got)
	}
	if got := s.ActiveSessionID(ctx, "u1"); got != "persisted-sess" {
		t.Errorf("Expected persisted session id, got %q", got)
	}
}
