// Package guard implements the delivery guard: a short-lived, keyed
// idempotency cache that prevents the same post from being emailed to the
// same purchase more than once within a bounded window.
//
// The guard is a write-through idempotency cache, not a distributed lock.
// It does not stop two callers from racing to start; the atomic first-write
// on the backing store decides which caller executes the action, and every
// other caller within the window gets the memoized outcome back.
package guard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultTTL is the window during which duplicate sends for the same
// (post, purchase) pair are suppressed.
const DefaultTTL = 8 * time.Hour

// pending marks a key whose action is still executing. A duplicate caller
// that observes it is suppressed without an outcome value.
const pending = "pending"

const okPrefix = "ok:"

// ErrInFlight is returned to a duplicate caller whose pair is currently
// being processed by the first caller and has no stored outcome yet.
var ErrInFlight = errors.New("send already in flight for this pair")

// Store is the expiring key-value backend. Acquire must be atomic: exactly
// one concurrent caller per key observes acquired == true.
type Store interface {
	// Acquire stores value under key with ttl if the key is absent or
	// expired, reporting acquired == true. Otherwise it returns the current
	// value with acquired == false.
	Acquire(ctx context.Context, key, value string, ttl time.Duration) (current string, acquired bool, err error)

	// Put overwrites the value under key, keeping the remaining TTL.
	Put(ctx context.Context, key, value string) error

	// Release deletes the key, reopening the guard for the pair.
	Release(ctx context.Context, key string) error
}

// Result reports what a guarded call did.
type Result struct {
	// Executed is true when this call ran the action; false when a memoized
	// outcome from an earlier call within the window was returned.
	Executed bool
	// Value is the action's outcome token (for the delivery pipeline, the
	// dispatched email id).
	Value string
}

// Guard memoizes action outcomes per key for TTL.
type Guard struct {
	store Store
	ttl   time.Duration
}

// New returns a Guard over store. A non-positive ttl falls back to DefaultTTL.
func New(store Store, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Guard{store: store, ttl: ttl}
}

// Key derives the guard key for a (post, purchase) pair. The key space is
// exactly the pair: entries expire independently and never block unrelated
// pairs.
func Key(postID, purchaseID string) string {
	return fmt.Sprintf("post_sent:%s:%s", postID, purchaseID)
}

// Do executes action at most once per key within the TTL window.
//
// First caller within the window: runs action. On success the outcome is
// stored under the key (keeping the window's expiry) and returned. On error
// the key is released so a later retry can attempt the send again, and the
// error propagates.
//
// Duplicate caller within the window: the action is not executed. If the
// first call already finished, its memoized outcome is returned; if it is
// still running, ErrInFlight is returned.
func (g *Guard) Do(ctx context.Context, key string, action func(ctx context.Context) (string, error)) (Result, error) {
	current, acquired, err := g.store.Acquire(ctx, key, pending, g.ttl)
	if err != nil {
		return Result{}, fmt.Errorf("guard acquire %s: %w", key, err)
	}

	if !acquired {
		if outcome, ok := strings.CutPrefix(current, okPrefix); ok {
			return Result{Executed: false, Value: outcome}, nil
		}
		return Result{}, ErrInFlight
	}

	value, err := action(ctx)
	if err != nil {
		// Best effort: a leftover pending entry still expires with the TTL.
		_ = g.store.Release(ctx, key)
		return Result{}, err
	}

	if err := g.store.Put(ctx, key, okPrefix+value); err != nil {
		return Result{}, fmt.Errorf("guard store outcome %s: %w", key, err)
	}
	return Result{Executed: true, Value: value}, nil
}
