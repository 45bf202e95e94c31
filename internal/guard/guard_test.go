package guard

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGuard(t *testing.T) *Guard {
	t.Helper()
	mr := miniredis.RunT(t)
	return New(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
}

func TestSingleFlight(t *testing.T) {
	g := newGuard(t)
	ctx := context.Background()

	ok, err := g.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire must be rejected, not queued")

	g.Release(ctx)
	ok, err = g.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStoppedReflectsClearedFlag(t *testing.T) {
	g := newGuard(t)
	ctx := context.Background()

	ok, err := g.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, g.Stopped(ctx))

	g.RequestStop(ctx)
	assert.True(t, g.Stopped(ctx))
}

func TestReleaseIsIdempotent(t *testing.T) {
	g := newGuard(t)
	ctx := context.Background()

	g.Release(ctx)
	g.Release(ctx)

	active, err := g.Active(ctx)
	require.NoError(t, err)
	assert.False(t, active)
}
