package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spaarke-dev/sdap-bff/cache"
)

func TestRecordThenSeen(t *testing.T) {
	l := New(cache.NewMemory(false))
	ctx := context.Background()

	require.False(t, l.Seen(ctx, "req-1"))
	require.NoError(t, l.Record(ctx, "req-1", time.Minute))
	require.True(t, l.Seen(ctx, "req-1"))
}

func TestDistinctKeysAreIndependent(t *testing.T) {
	l := New(cache.NewMemory(false))
	ctx := context.Background()

	require.NoError(t, l.Record(ctx, "req-a", time.Minute))
	require.True(t, l.Seen(ctx, "req-a"))
	require.False(t, l.Seen(ctx, "req-b"))
}
