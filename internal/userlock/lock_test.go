package userlock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestDoRunsFunction(t *testing.T) {
	k := New()

	ran := false
	err := k.Do(context.Background(), "user-1", func() error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if !ran {
		t.Error("Expected function to run")
	}
}

func TestDoSerializesSameKey(t *testing.T) {
	k := New()

	// The first operation is slow; the second is dispatched shortly after.
	// Its effects must still land strictly after the first completes.
	var order []string
	var mu sync.Mutex
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	var wg sync.WaitGroup
	wg.Add(2)

	started := make(chan struct{})
	go func() {
		defer wg.Done()
		_ = k.Do(context.Background(), "user-1", func() error {
			close(started)
			record("first-start")
			time.Sleep(50 * time.Millisecond)
			record("first-end")
			return nil
		})
	}()

	<-started
	go func() {
		defer wg.Done()
		_ = k.Do(context.Background(), "user-1", func() error {
			record("second-start")
			return nil
		})
	}()

	wg.Wait()

	want := []string{"first-start", "first-end", "second-start"}
	if len(order) != len(want) {
		t.Fatalf("Expected %d events, got %v", len(want), order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("Event %d: expected %q, got %v", i, want[i], order)
		}
	}
}

func TestDoDifferentKeysDoNotBlock(t *testing.T) {
	k := New()

	blocked := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = k.Do(context.Background(), "user-1", func() error {
			close(blocked)
			<-release
			return nil
		})
	}()
	<-blocked
	defer close(release)

	done := make(chan struct{})
	go func() {
		_ = k.Do(context.Background(), "user-2", func() error {
			close(done)
			return nil
		})
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Operation on a different key was blocked")
	}
}

func TestDoReleasesOnError(t *testing.T) {
	k := New()

	wantErr := errors.New("boom")
	err := k.Do(context.Background(), "user-1", func() error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Expected operation error to propagate, got %v", err)
	}

	// The key must be reusable immediately after a failed operation.
	done := make(chan struct{})
	go func() {
		_ = k.Do(context.Background(), "user-1", func() error {
			close(done)
			return nil
		})
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Lock was not released after error")
	}
}

func TestDoContextCancelledWhileWaiting(t *testing.T) {
	k := New()

	blocked := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = k.Do(context.Background(), "user-1", func() error {
			close(blocked)
			<-release
			return nil
		})
	}()
	<-blocked

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- k.Do(ctx, "user-1", func() error {
			t.Error("Function must not run after cancellation")
			return nil
		})
	}()

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Cancelled waiter did not return")
	}

	close(release)
}

func TestEntriesAreCleanedUp(t *testing.T) {
	k := New()

	for i := 0; i < 10; i++ {
		_ = k.Do(context.Background(), "user-1", func() error { return nil })
	}

	if n := k.Len(); n != 0 {
		t.Errorf("Expected no live entries after completion, got %d", n)
	}
}
