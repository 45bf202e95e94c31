// Package worker binds queued task payloads to their pipelines. Whatever the
// outcome, a finished task releases the execution guard and removes the
// session that produced it.
package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"github.com/you/tg-watermark/internal/guard"
	"github.com/you/tg-watermark/internal/jobs"
	"github.com/you/tg-watermark/internal/pipeline"
	"github.com/you/tg-watermark/internal/session"
)

type Worker struct {
	pipe  *pipeline.Pipeline
	store *session.Store
	guard *guard.Guard
}

func New(pipe *pipeline.Pipeline, store *session.Store, g *guard.Guard) *Worker {
	return &Worker{pipe: pipe, store: store, guard: g}
}

// Mux wires every task type to its handler.
func (w *Worker) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(jobs.TaskWatermarkVideo, w.handleWatermarkVideo)
	mux.HandleFunc(jobs.TaskWatermarkBulk, w.handleWatermarkBulk)
	mux.HandleFunc(jobs.TaskOverlay, w.handleOverlay)
	mux.HandleFunc(jobs.TaskImageWatermark, w.handleImageWatermark)
	mux.HandleFunc(jobs.TaskWatermarkPDF, w.handleWatermarkPDF)
	return mux
}

// terminal runs on every task exit path: the guard opens for the next job
// and the originating session leaves the store. Only a session still in
// StepProcessing is removed; a fresh one the user started meanwhile stays.
func (w *Worker) terminal(ctx context.Context, chatID int64, ns string) {
	if err := w.guard.Release(ctx); err != nil {
		log.Error().Err(err).Msg("releasing execution guard")
	}
	w.store.RemoveIfProcessing(session.Key{ChatID: chatID, Namespace: session.Namespace(ns)})
}

// decode unmarshals the payload. A payload that cannot be decoded still must
// not leave the guard held.
func (w *Worker) decode(ctx context.Context, t *asynq.Task, v any) error {
	if err := json.Unmarshal(t.Payload(), v); err != nil {
		if rerr := w.guard.Release(ctx); rerr != nil {
			log.Error().Err(rerr).Msg("releasing guard after bad payload")
		}
		return fmt.Errorf("decoding %s payload: %w", t.Type(), err)
	}
	return nil
}

func (w *Worker) handleWatermarkVideo(ctx context.Context, t *asynq.Task) error {
	var p jobs.WatermarkVideoPayload
	if err := w.decode(ctx, t, &p); err != nil {
		return err
	}
	defer w.terminal(ctx, p.ChatID, p.Namespace)
	return w.pipe.RunWatermarkVideo(ctx, p)
}

func (w *Worker) handleWatermarkBulk(ctx context.Context, t *asynq.Task) error {
	var p jobs.WatermarkBulkPayload
	if err := w.decode(ctx, t, &p); err != nil {
		return err
	}
	defer w.terminal(ctx, p.ChatID, p.Namespace)
	return w.pipe.RunWatermarkBulk(ctx, p)
}

func (w *Worker) handleOverlay(ctx context.Context, t *asynq.Task) error {
	var p jobs.OverlayPayload
	if err := w.decode(ctx, t, &p); err != nil {
		return err
	}
	defer w.terminal(ctx, p.ChatID, p.Namespace)
	return w.pipe.RunOverlay(ctx, p)
}

func (w *Worker) handleImageWatermark(ctx context.Context, t *asynq.Task) error {
	var p jobs.ImageWatermarkPayload
	if err := w.decode(ctx, t, &p); err != nil {
		return err
	}
	defer w.terminal(ctx, p.ChatID, p.Namespace)
	return w.pipe.RunImageWatermark(ctx, p)
}

func (w *Worker) handleWatermarkPDF(ctx context.Context, t *asynq.Task) error {
	var p jobs.WatermarkPDFPayload
	if err := w.decode(ctx, t, &p); err != nil {
		return err
	}
	defer w.terminal(ctx, p.ChatID, p.Namespace)
	return w.pipe.RunWatermarkPDF(ctx, p)
}
