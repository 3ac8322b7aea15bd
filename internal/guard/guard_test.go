package guard

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestKey_PairScoped(t *testing.T) {
	if Key("p1", "u1") == Key("p1", "u2") {
		t.Fatalf("keys for different purchases must differ")
	}
	if Key("p1", "u1") != Key("p1", "u1") {
		t.Fatalf("key derivation must be deterministic")
	}
}

func TestDo_FirstCallExecutes(t *testing.T) {
	g := New(NewMemoryStore(), time.Hour)

	var calls int
	res, err := g.Do(context.Background(), "k", func(context.Context) (string, error) {
		calls++
		return "email-1", nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if !res.Executed || res.Value != "email-1" || calls != 1 {
		t.Fatalf("expected executed=true value=email-1 calls=1, got %+v calls=%d", res, calls)
	}
}

func TestDo_DuplicateReturnsMemoizedOutcome(t *testing.T) {
	g := New(NewMemoryStore(), time.Hour)
	ctx := context.Background()

	if _, err := g.Do(ctx, "k", func(context.Context) (string, error) { return "email-1", nil }); err != nil {
		t.Fatalf("first Do: %v", err)
	}

	var calls int
	res, err := g.Do(ctx, "k", func(context.Context) (string, error) {
		calls++
		return "email-2", nil
	})
	if err != nil {
		t.Fatalf("duplicate Do: %v", err)
	}
	if res.Executed || res.Value != "email-1" || calls != 0 {
		t.Fatalf("duplicate must not execute; got %+v calls=%d", res, calls)
	}
}

func TestDo_ErrorReleasesKey(t *testing.T) {
	g := New(NewMemoryStore(), time.Hour)
	ctx := context.Background()
	boom := errors.New("smtp down")

	if _, err := g.Do(ctx, "k", func(context.Context) (string, error) { return "", boom }); !errors.Is(err, boom) {
		t.Fatalf("expected action error, got %v", err)
	}

	// A retry after a failure must execute again.
	res, err := g.Do(ctx, "k", func(context.Context) (string, error) { return "email-2", nil })
	if err != nil {
		t.Fatalf("retry Do: %v", err)
	}
	if !res.Executed || res.Value != "email-2" {
		t.Fatalf("retry after failure should execute, got %+v", res)
	}
}

func TestDo_ExpiryReopensWindow(t *testing.T) {
	store := NewMemoryStore()
	g := New(store, time.Hour)
	ctx := context.Background()

	now := time.Now()
	store.SetClock(func() time.Time { return now })

	if _, err := g.Do(ctx, "k", func(context.Context) (string, error) { return "email-1", nil }); err != nil {
		t.Fatalf("first Do: %v", err)
	}

	// Step past the window.
	store.SetClock(func() time.Time { return now.Add(time.Hour + time.Minute) })

	res, err := g.Do(ctx, "k", func(context.Context) (string, error) { return "email-2", nil })
	if err != nil {
		t.Fatalf("post-expiry Do: %v", err)
	}
	if !res.Executed || res.Value != "email-2" {
		t.Fatalf("expired window must execute again, got %+v", res)
	}
}

func TestDo_InFlightDuplicate(t *testing.T) {
	g := New(NewMemoryStore(), time.Hour)
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = g.Do(ctx, "k", func(context.Context) (string, error) {
			close(entered)
			<-release
			return "email-1", nil
		})
	}()
	<-entered

	_, err := g.Do(ctx, "k", func(context.Context) (string, error) { return "email-2", nil })
	if !errors.Is(err, ErrInFlight) {
		t.Fatalf("expected ErrInFlight while first caller runs, got %v", err)
	}

	close(release)
	wg.Wait()
}

func TestDo_ConcurrentFirstCallers_AtMostOnce(t *testing.T) {
	g := New(NewMemoryStore(), time.Hour)
	ctx := context.Background()

	var executed int64
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = g.Do(ctx, "k", func(context.Context) (string, error) {
				atomic.AddInt64(&executed, 1)
				return "email-1", nil
			})
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt64(&executed); got != 1 {
		t.Fatalf("expected exactly one execution across concurrent callers, got %d", got)
	}
}
