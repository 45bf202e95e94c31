// Package guard implements the process-wide single-flight gate for heavy
// pipelines. The flag lives in redis under a fixed key; holding it admits
// exactly one pipeline at a time.
//
// Cancellation contract: an operator /stop deletes the flag. That is advisory
// only — pipelines poll the flag between stages and stop before starting the
// next one, but an in-flight external process always runs to completion.
package guard

import (
	"context"

	"github.com/redis/go-redis/v9"
)

const key = "processing_active"

type Guard struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Guard {
	return &Guard{rdb: rdb}
}

// TryAcquire attempts to take the gate. Returns false when a pipeline is
// already running; callers reply with a busy notice instead of queuing.
func (g *Guard) TryAcquire(ctx context.Context) (bool, error) {
	return g.rdb.SetNX(ctx, key, "1", 0).Result()
}

// Release clears the gate. Safe to call when not held.
func (g *Guard) Release(ctx context.Context) error {
	return g.rdb.Del(ctx, key).Err()
}

// Active reports whether a pipeline currently holds the gate.
func (g *Guard) Active(ctx context.Context) (bool, error) {
	n, err := g.rdb.Exists(ctx, key).Result()
	return n > 0, err
}

// Stopped reports whether the flag was cleared out from under a running
// pipeline — the cooperative-cancellation signal checked between stages.
func (g *Guard) Stopped(ctx context.Context) bool {
	n, err := g.rdb.Exists(ctx, key).Result()
	if err != nil {
		// Redis trouble must not kill a running job; treat as not stopped.
		return false
	}
	return n == 0
}

// RequestStop clears the flag to signal cancellation intent.
func (g *Guard) RequestStop(ctx context.Context) error {
	return g.rdb.Del(ctx, key).Err()
}
