// Package pipeline executes the ordered transformation stages for completed
// input sets: acquire, transform, probe, thumbnail, split, deliver. Every
// run, successful or not, ends by deleting its scratch directory.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/you/tg-watermark/internal/config"
	"github.com/you/tg-watermark/internal/ffmpeg"
	"github.com/you/tg-watermark/internal/pdfmark"
	"github.com/you/tg-watermark/internal/progress"
	"github.com/you/tg-watermark/internal/tg"
)

// Messenger is the slice of the chat gateway the pipelines use.
type Messenger interface {
	Send(chatID int64, text string) (int, error)
	Edit(chatID int64, messageID int, text string) error
	Download(ctx context.Context, fileID, destPath string, onProgress func(cur, total int64)) error
	UploadVideo(chatID int64, path, caption string, meta tg.VideoMeta, thumbPath string, onProgress func(cur, total int64)) error
	UploadDocument(chatID int64, path, caption string, onProgress func(cur, total int64)) error
	SendPhoto(chatID int64, path, caption string) error
}

// Stopper exposes the advisory cancellation signal checked between stages.
type Stopper interface {
	Stopped(ctx context.Context) bool
}

// Transcoder is the slice of the ffmpeg runner the pipelines invoke.
type Transcoder interface {
	Transcode(ctx context.Context, spec ffmpeg.TranscodeSpec, onTime func(sec float64)) error
	Concat(ctx context.Context, manifest, output string) error
	SplitCopy(ctx context.Context, input string, segmentSec float64, pattern string) ([]string, error)
	ExtractFrame(ctx context.Context, input, output string, atSec float64) error
	Duration(ctx context.Context, path string) (float64, error)
	Info(ctx context.Context, path string) (ffmpeg.VideoInfo, error)
}

// DocumentMarker stamps one PDF document.
type DocumentMarker interface {
	Watermark(ctx context.Context, workDir string, req pdfmark.Request) error
}

var errStopped = errors.New("stopped by operator")

// stageError labels a failure with its stage category for the user-facing
// message.
type stageError struct {
	label string
	err   error
}

func (e *stageError) Error() string { return e.label + ": " + e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

type stage struct {
	label string
	run   func(ctx context.Context) error
}

type Pipeline struct {
	cfg  config.Config
	tg   Messenger
	ff   Transcoder
	pdf  DocumentMarker
	stop Stopper
}

func New(cfg config.Config, m Messenger, ff Transcoder, pdf DocumentMarker, stop Stopper) *Pipeline {
	return &Pipeline{cfg: cfg, tg: m, ff: ff, pdf: pdf, stop: stop}
}

// runStages executes stages strictly in sequence. The cancellation flag is
// polled before each stage; an in-flight stage always runs to completion.
func (p *Pipeline) runStages(ctx context.Context, stages []stage) error {
	for _, s := range stages {
		if p.stop != nil && p.stop.Stopped(ctx) {
			return errStopped
		}
		if err := s.run(ctx); err != nil {
			return &stageError{label: s.label, err: err}
		}
	}
	return nil
}

// status is the single outbound progress message one pipeline run edits.
type status struct {
	tg     Messenger
	chatID int64
	msgID  int
}

func (p *Pipeline) newStatus(chatID int64, text string) *status {
	id, err := p.tg.Send(chatID, text)
	if err != nil {
		log.Error().Err(err).Int64("chat", chatID).Msg("sending status message")
	}
	return &status{tg: p.tg, chatID: chatID, msgID: id}
}

// set edits the status text. Edit failures never abort the pipeline.
func (s *status) set(text string) {
	if s.msgID == 0 {
		return
	}
	if err := s.tg.Edit(s.chatID, s.msgID, text); err != nil {
		log.Warn().Err(err).Msg("editing status message")
	}
}

// byteReporter adapts a (current, total) byte stream onto the status message.
func (p *Pipeline) byteReporter(s *status, label string) func(cur, total int64) {
	r := progress.NewReporter(p.cfg.ProgressStepPct, func(pct int) {
		s.set(fmt.Sprintf("%s: %d%%", label, pct))
	})
	return r.Update
}

// timeReporter maps processed media seconds onto the status message.
func (p *Pipeline) timeReporter(s *status, label string, totalSec float64) func(sec float64) {
	r := progress.NewReporter(p.cfg.ProgressStepPct, func(pct int) {
		s.set(fmt.Sprintf("%s: %d%%", label, pct))
	})
	return func(sec float64) {
		r.Update(int64(sec*1000), int64(totalSec*1000))
	}
}

// workDir creates the exclusively-owned scratch directory for one run.
func (p *Pipeline) workDir(parts ...string) (string, error) {
	dir := filepath.Join(append([]string{p.cfg.DataDir, "jobs"}, parts...)...)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating workdir %s: %w", dir, err)
	}
	return dir, nil
}

// cleanup removes the scratch directory. RemoveAll on a missing path is a
// no-op, so calling this twice is safe.
func cleanup(dir string) {
	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		log.Error().Err(err).Str("dir", dir).Msg("removing workdir")
	}
}

// finish reports the terminal outcome on the status message.
func (p *Pipeline) finish(s *status, err error) {
	switch {
	case err == nil:
		s.set("Done.")
	case errors.Is(err, errStopped):
		s.set("Stopped by operator.")
	default:
		var se *stageError
		if errors.As(err, &se) {
			s.set(fmt.Sprintf("Failed at %s. Please try again.", se.label))
		} else {
			s.set("Failed. Please try again.")
		}
	}
}

func fileSize(path string) (int64, error) {
	st, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return st.Size(), nil
}

// segmentSeconds sizes split parts so each lands under the upload limit,
// with headroom for container overhead.
func segmentSeconds(durationSec float64, sizeBytes, limitBytes int64) float64 {
	if sizeBytes <= 0 || durationSec <= 0 {
		return durationSec
	}
	sec := durationSec * float64(limitBytes) / float64(sizeBytes) * 0.95
	if sec < 1 {
		sec = 1
	}
	return sec
}

// partCaption appends the "Part i of N" suffix used for split uploads.
func partCaption(base string, i, n int) string {
	if n <= 1 {
		return base
	}
	if base == "" {
		return fmt.Sprintf("Part %d of %d", i, n)
	}
	return fmt.Sprintf("%s — Part %d of %d", base, i, n)
}

// buildCaption joins the artifact name with the user's extra caption.
func buildCaption(name, extra string) string {
	if extra == "" {
		return name
	}
	if name == "" {
		return extra
	}
	return name + "\n" + extra
}

// deliver uploads the artifact, splitting first when it exceeds the
// transport's size limit.
func (p *Pipeline) deliver(ctx context.Context, s *status, chatID int64, outPath, caption string, meta tg.VideoMeta, thumbPath string) error {
	size, err := fileSize(outPath)
	if err != nil {
		return err
	}
	if size <= p.cfg.UploadLimitBytes {
		return p.tg.UploadVideo(chatID, outPath, caption, meta, thumbPath, p.byteReporter(s, "Uploading"))
	}

	// Splitting needs a duration. When the post-transform probe lost it,
	// re-probe rather than attempting an upload the transport will reject.
	durationSec := float64(meta.DurationSec)
	if durationSec <= 0 {
		d, err := p.ff.Duration(ctx, outPath)
		if err != nil || d <= 0 {
			return fmt.Errorf("artifact of %d bytes exceeds the upload limit and its duration is unknown", size)
		}
		durationSec = d
	}

	segSec := segmentSeconds(durationSec, size, p.cfg.UploadLimitBytes)
	pattern := filepath.Join(filepath.Dir(outPath), "part_%03d.mp4")
	parts, err := p.ff.SplitCopy(ctx, outPath, segSec, pattern)
	if err != nil {
		return err
	}
	for i, part := range parts {
		label := fmt.Sprintf("Uploading part %d of %d", i+1, len(parts))
		if err := p.tg.UploadVideo(chatID, part, partCaption(caption, i+1, len(parts)), meta, thumbPath, p.byteReporter(s, label)); err != nil {
			return err
		}
	}
	return nil
}
