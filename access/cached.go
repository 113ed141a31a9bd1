package access

import (
	"context"
	"encoding/json"
	"time"

	"github.com/spaarke-dev/sdap-bff/cache"
)

// Cached wraps a Source with the shared cache, per §4.F: "SHOULD cache
// snapshots under the shared cache with a short TTL ... callers MUST accept
// stale reads up to TTL." A cache miss always falls through to inner and is
// never treated as an Allow — only as a performance cost (§8 property 10).
type Cached struct {
	inner  Source
	shared cache.Shared
	ttl    time.Duration
}

// NewCached builds a Cached source. ttl is cache.ttl.accessSnapshotSec,
// default 120s, bounded to [60s, 300s] by the caller's configuration layer.
func NewCached(inner Source, shared cache.Shared, ttl time.Duration) *Cached {
	return &Cached{inner: inner, shared: shared, ttl: ttl}
}

// wireSnapshot is the JSON-serializable form stored in the shared cache;
// Snapshot itself is kept free of encoding tags.
type wireSnapshot struct {
	AccessLevel     int            `json:"accessLevel"`
	ExplicitDeny    bool           `json:"explicitDeny"`
	TeamMemberships []string       `json:"teamMemberships"`
	TeamGrants      map[string]int `json:"teamGrants"`
	Roles           []string       `json:"roles"`
	SourceTimestamp time.Time      `json:"sourceTimestamp"`
}

func levelsToWire(m map[string]Level) map[string]int {
	if m == nil {
		return nil
	}
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = int(v)
	}
	return out
}

func wireToLevels(m map[string]int) map[string]Level {
	if m == nil {
		return nil
	}
	out := make(map[string]Level, len(m))
	for k, v := range m {
		out[k] = Level(v)
	}
	return out
}

// Invalidate drops any cached snapshot for (userID, resourceID), used by the
// background consumer draining permission-change events to narrow the
// staleness window described in §4.F below its TTL. It is a best-effort
// optimization, never a correctness requirement: a failed Remove leaves the
// entry to expire on its own TTL.
func (c *Cached) Invalidate(ctx context.Context, userID, resourceID string) error {
	return c.shared.Remove(ctx, cacheKey(userID, resourceID))
}

func cacheKey(userID, resourceID string) string {
	return "access:" + userID + ":" + resourceID
}

func (c *Cached) GetAccess(ctx context.Context, userID, resourceID string) (Snapshot, error) {
	key := cacheKey(userID, resourceID)

	if raw, ok, err := c.shared.Get(ctx, key); err == nil && ok {
		var w wireSnapshot
		if jsonErr := json.Unmarshal(raw, &w); jsonErr == nil {
			return Snapshot{
				AccessLevel:     Level(w.AccessLevel),
				ExplicitDeny:    w.ExplicitDeny,
				TeamMemberships: w.TeamMemberships,
				TeamGrants:      wireToLevels(w.TeamGrants),
				Roles:           w.Roles,
				SourceTimestamp: w.SourceTimestamp,
			}, nil
		}
	}

	snap, err := c.inner.GetAccess(ctx, userID, resourceID)
	if err != nil {
		return Snapshot{}, err
	}

	w := wireSnapshot{
		AccessLevel:     int(snap.AccessLevel),
		ExplicitDeny:    snap.ExplicitDeny,
		TeamMemberships: snap.TeamMemberships,
		TeamGrants:      levelsToWire(snap.TeamGrants),
		Roles:           snap.Roles,
		SourceTimestamp: snap.SourceTimestamp,
	}
	if raw, jsonErr := json.Marshal(w); jsonErr == nil {
		_ = c.shared.Set(ctx, key, raw, c.ttl)
	}

	return snap, nil
}
