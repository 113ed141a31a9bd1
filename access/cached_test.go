package access

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spaarke-dev/sdap-bff/cache"
	"github.com/spaarke-dev/sdap-bff/sdaperr"
)

type countingSource struct {
	calls int32
	snap  Snapshot
	err   error
}

func (c *countingSource) GetAccess(ctx context.Context, userID, resourceID string) (Snapshot, error) {
	atomic.AddInt32(&c.calls, 1)
	return c.snap, c.err
}

func TestCachedServesFromCacheWithoutCallingInner(t *testing.T) {
	inner := &countingSource{snap: Snapshot{AccessLevel: LevelRead, SourceTimestamp: time.Now()}}
	c := NewCached(inner, cache.NewMemory(false), time.Minute)

	snap1, err := c.GetAccess(context.Background(), "u1", "r1")
	require.NoError(t, err)
	require.Equal(t, LevelRead, snap1.AccessLevel)

	snap2, err := c.GetAccess(context.Background(), "u1", "r1")
	require.NoError(t, err)
	require.Equal(t, LevelRead, snap2.AccessLevel)

	require.Equal(t, int32(1), atomic.LoadInt32(&inner.calls))
}

func TestCachedMissIsNeverTreatedAsAllow(t *testing.T) {
	inner := &countingSource{snap: empty()}
	c := NewCached(inner, cache.NewMemory(false), time.Minute)

	snap, err := c.GetAccess(context.Background(), "u2", "r2")
	require.NoError(t, err)
	require.Equal(t, LevelNone, snap.AccessLevel)
	require.False(t, snap.ExplicitDeny)
}

func TestCachedRoundTripsTeamGrantsThroughCacheHit(t *testing.T) {
	inner := &countingSource{snap: Snapshot{
		AccessLevel:     LevelNone,
		TeamMemberships: []string{"teamA"},
		TeamGrants:      map[string]Level{"teamA": LevelWrite},
		SourceTimestamp: time.Now(),
	}}
	c := NewCached(inner, cache.NewMemory(false), time.Minute)

	_, err := c.GetAccess(context.Background(), "u4", "r4")
	require.NoError(t, err)

	snap, err := c.GetAccess(context.Background(), "u4", "r4")
	require.NoError(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&inner.calls))
	require.Equal(t, LevelWrite, snap.TeamGrants["teamA"])
}

func TestCachedPropagatesUnavailable(t *testing.T) {
	inner := &countingSource{err: sdaperr.New(sdaperr.Unavailable, "store down")}
	c := NewCached(inner, cache.NewMemory(false), time.Minute)

	_, err := c.GetAccess(context.Background(), "u3", "r3")
	require.Error(t, err)
}
