package worker

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you/tg-watermark/internal/guard"
	"github.com/you/tg-watermark/internal/jobs"
	"github.com/you/tg-watermark/internal/session"
)

func newTestWorker(t *testing.T) (*Worker, *guard.Guard, *session.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	g := guard.New(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	store := session.NewStore()
	return New(nil, store, g), g, store
}

func TestTerminalReleasesGuardAndClearsSession(t *testing.T) {
	w, g, store := newTestWorker(t)
	ctx := context.Background()

	ok, err := g.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	key := session.Key{ChatID: 7, Namespace: session.NamespaceSingle}
	store.Put(key, session.NewVideo(session.ModePlain, session.StepProcessing))

	w.terminal(ctx, 7, string(session.NamespaceSingle))

	active, err := g.Active(ctx)
	require.NoError(t, err)
	assert.False(t, active)
	_, found := store.Get(key)
	assert.False(t, found)
}

func TestTerminalKeepsSessionStartedMidPipeline(t *testing.T) {
	w, g, store := newTestWorker(t)
	ctx := context.Background()

	ok, err := g.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// the user re-triggered while the pipeline ran; its session is fresh
	key := session.Key{ChatID: 7, Namespace: session.NamespaceSingle}
	store.Put(key, session.NewVideo(session.ModeTimed, session.StepAwaitVideo))

	w.terminal(ctx, 7, string(session.NamespaceSingle))

	got, found := store.Get(key)
	require.True(t, found, "the fresh session must survive the old pipeline's cleanup")
	assert.Equal(t, session.StepAwaitVideo, got.CurrentStep())
}

func TestBadPayloadStillReleasesGuard(t *testing.T) {
	w, g, _ := newTestWorker(t)
	ctx := context.Background()

	ok, err := g.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	task := asynq.NewTask(jobs.TaskWatermarkVideo, []byte("{not json"))
	err = w.handleWatermarkVideo(ctx, task)
	require.Error(t, err)

	active, err := g.Active(ctx)
	require.NoError(t, err)
	assert.False(t, active)
}
