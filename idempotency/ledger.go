// Package idempotency implements the Idempotency Ledger (component K): a
// thin TTL wrapper over the shared cache used by background workers and by
// mutating endpoints that opt in via an Idempotency-Key header.
package idempotency

import (
	"context"
	"time"

	"github.com/spaarke-dev/sdap-bff/cache"
)

// Ledger tracks keys already processed within a retention window.
type Ledger struct {
	shared cache.Shared
}

// New builds a Ledger over the shared cache.
func New(shared cache.Shared) *Ledger {
	return &Ledger{shared: shared}
}

// Seen reports whether key was already recorded and is still within its TTL.
// A cache-backend error is treated as "not seen" — the caller proceeds,
// since idempotency is a duplicate-suppression optimization, never a
// correctness guarantee stronger than the shared cache itself (§6.5: no
// persisted state; duplicates after TTL are an accepted, documented cost).
func (l *Ledger) Seen(ctx context.Context, key string) bool {
	ok, err := l.shared.Exists(ctx, ledgerKey(key))
	if err != nil {
		return false
	}
	return ok
}

// Record marks key as processed for ttl, which MUST be at least the
// message-retention horizon of whatever queue is deduplicated.
func (l *Ledger) Record(ctx context.Context, key string, ttl time.Duration) error {
	return l.shared.Set(ctx, ledgerKey(key), []byte("1"), ttl)
}

func ledgerKey(key string) string {
	return "idempotency:" + key
}
