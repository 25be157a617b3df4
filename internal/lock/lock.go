// Package lock implements the singleton lock provider (C1): a polymorphic
// capability enforcing at most one live instance per logical daemon, with
// null, file, and redis-backed variants sharing one interface.
package lock

import (
	"context"
	"fmt"
	"time"
)

// Lease is the stored claim on the singleton-instance lock (spec.md §3).
type Lease struct {
	OwnerPID   int
	AcquiredAt time.Time
}

// Provider is the capability every lock backend implements (spec.md §4.1).
type Provider interface {
	// Setup performs any one-time preparation. The controller calls it
	// inside the ON_INIT duplicate-instance check, immediately before Set.
	Setup(ctx context.Context) error
	// Teardown releases resources and, if this process holds the lease,
	// the lease itself.
	Teardown(ctx context.Context) error
	// Check returns the current lease if one exists and has not expired,
	// regardless of owner.
	Check(ctx context.Context) (Lease, bool, error)
	// Set claims the lease for self. It fails if Check reports a
	// non-self, non-expired lease.
	Set(ctx context.Context) error
	// CheckEnvironment validates the backend is reachable/usable; errors
	// are aggregated by the environment check (§4.7).
	CheckEnvironment(ctx context.Context) error
}

// ErrHeldByOther is returned by Set when a live lease is owned by a
// different process.
var ErrHeldByOther = fmt.Errorf("lock: held by another live instance")

// expired reports whether lease is past ttl plus the padding grace window
// from spec.md §3 at now, whoever owns it.
func expired(lease Lease, ttl, padding time.Duration, now time.Time) bool {
	return lease.AcquiredAt.Add(ttl).Add(padding).Before(now)
}

// DefaultPadding is the grace window added to ttl before a lease is
// considered truly gone (spec.md §3: "acquired_at + ttl + padding >= now").
const DefaultPadding = 2 * time.Second
