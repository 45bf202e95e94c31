package pipeline

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you/tg-watermark/internal/config"
	"github.com/you/tg-watermark/internal/ffmpeg"
	"github.com/you/tg-watermark/internal/jobs"
	"github.com/you/tg-watermark/internal/pdfmark"
	"github.com/you/tg-watermark/internal/tg"
)

type fakeMessenger struct {
	edits   []string
	uploads []string
	docs    []string
}

func (f *fakeMessenger) Send(int64, string) (int, error) { return 1, nil }
func (f *fakeMessenger) Edit(_ int64, _ int, text string) error {
	f.edits = append(f.edits, text)
	return nil
}
func (f *fakeMessenger) Download(context.Context, string, string, func(int64, int64)) error {
	return nil
}
func (f *fakeMessenger) UploadVideo(_ int64, _ string, caption string, _ tg.VideoMeta, _ string, _ func(int64, int64)) error {
	f.uploads = append(f.uploads, caption)
	return nil
}
func (f *fakeMessenger) UploadDocument(_ int64, path string, _ string, _ func(int64, int64)) error {
	f.docs = append(f.docs, path)
	return nil
}
func (f *fakeMessenger) SendPhoto(int64, string, string) error { return nil }

func (f *fakeMessenger) countEdits(text string) int {
	n := 0
	for _, e := range f.edits {
		if e == text {
			n++
		}
	}
	return n
}

// fakeTranscoder stands in for the external encoder: outputs appear as tiny
// files, and one invocation can be made to fail.
type fakeTranscoder struct {
	transcodes int
	failAt     int
	duration   float64
	durErr     error
	durProbes  int
	splitParts []string
}

func (f *fakeTranscoder) Transcode(_ context.Context, spec ffmpeg.TranscodeSpec, _ func(float64)) error {
	f.transcodes++
	if f.failAt != 0 && f.transcodes == f.failAt {
		return errors.New("encoder exited with code 1")
	}
	return os.WriteFile(spec.Output, []byte("video"), 0o644)
}

func (f *fakeTranscoder) Concat(_ context.Context, _ string, output string) error {
	return os.WriteFile(output, []byte("video"), 0o644)
}

func (f *fakeTranscoder) SplitCopy(context.Context, string, float64, string) ([]string, error) {
	return f.splitParts, nil
}

func (f *fakeTranscoder) ExtractFrame(_ context.Context, _ string, output string, _ float64) error {
	return os.WriteFile(output, []byte("jpeg"), 0o644)
}

func (f *fakeTranscoder) Duration(context.Context, string) (float64, error) {
	f.durProbes++
	return f.duration, f.durErr
}

func (f *fakeTranscoder) Info(context.Context, string) (ffmpeg.VideoInfo, error) {
	return ffmpeg.VideoInfo{Width: 640, Height: 480, Duration: f.duration}, nil
}

// fakeMarker stamps documents by writing the output file; one call can fail.
type fakeMarker struct {
	calls  int
	failAt int
}

func (f *fakeMarker) Watermark(_ context.Context, _ string, req pdfmark.Request) error {
	f.calls++
	if f.failAt != 0 && f.calls == f.failAt {
		return errors.New("stamping failed")
	}
	return os.WriteFile(req.Output, []byte("%PDF"), 0o644)
}

type stopAfter struct {
	calls int
	at    int
}

func (s *stopAfter) Stopped(context.Context) bool {
	s.calls++
	return s.calls > s.at
}

func testPipeline(stop Stopper) (*Pipeline, *fakeMessenger) {
	m := &fakeMessenger{}
	return New(config.Config{ProgressStepPct: 5}, m, nil, nil, stop), m
}

func TestRunStagesLabelsFailures(t *testing.T) {
	p, _ := testPipeline(nil)
	boom := errors.New("exit 1")
	var ran []string

	err := p.runStages(context.Background(), []stage{
		{label: "download", run: func(context.Context) error { ran = append(ran, "download"); return nil }},
		{label: "transform", run: func(context.Context) error { ran = append(ran, "transform"); return boom }},
		{label: "upload", run: func(context.Context) error { ran = append(ran, "upload"); return nil }},
	})

	require.Error(t, err)
	var se *stageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "transform", se.label)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"download", "transform"}, ran, "stages after a failure must not run")
}

func TestRunStagesHonorsStopBetweenStages(t *testing.T) {
	p, _ := testPipeline(&stopAfter{at: 1})
	var ran int

	err := p.runStages(context.Background(), []stage{
		{label: "download", run: func(context.Context) error { ran++; return nil }},
		{label: "transform", run: func(context.Context) error { ran++; return nil }},
	})

	assert.ErrorIs(t, err, errStopped)
	assert.Equal(t, 1, ran, "the in-flight stage finishes, the next never starts")
}

func TestFinishMessages(t *testing.T) {
	p, m := testPipeline(nil)
	st := p.newStatus(1, "Starting...")

	p.finish(st, nil)
	p.finish(st, errStopped)
	p.finish(st, &stageError{label: "upload", err: errors.New("x")})

	require.Len(t, m.edits, 3)
	assert.Equal(t, "Done.", m.edits[0])
	assert.Equal(t, "Stopped by operator.", m.edits[1])
	assert.Equal(t, "Failed at upload. Please try again.", m.edits[2])
}

func TestSegmentSecondsKeepsPartsUnderLimit(t *testing.T) {
	// 600s of media at 100MB with a 50MB limit needs parts around 285s
	sec := segmentSeconds(600, 100<<20, 50<<20)
	assert.InDelta(t, 285.0, sec, 0.01)

	// tiny durations never go below one second
	assert.Equal(t, 1.0, segmentSeconds(1, 100<<20, 1<<20))

	// degenerate inputs pass through
	assert.Equal(t, 600.0, segmentSeconds(600, 0, 50<<20))
}

func TestPartCaption(t *testing.T) {
	assert.Equal(t, "clip.mp4", partCaption("clip.mp4", 1, 1))
	assert.Equal(t, "clip.mp4 — Part 2 of 3", partCaption("clip.mp4", 2, 3))
	assert.Equal(t, "Part 1 of 2", partCaption("", 1, 2))
}

func TestBuildCaption(t *testing.T) {
	assert.Equal(t, "clip.mp4", buildCaption("clip.mp4", ""))
	assert.Equal(t, "clip.mp4\npromo", buildCaption("clip.mp4", "promo"))
	assert.Equal(t, "promo", buildCaption("", "promo"))
}

func TestBulkContinuesPastFailedItem(t *testing.T) {
	m := &fakeMessenger{}
	ft := &fakeTranscoder{failAt: 2, duration: 42}
	cfg := config.Config{DataDir: t.TempDir(), UploadLimitBytes: 1 << 30, CRF: 23, SpeedPreset: "medium"}
	p := New(cfg, m, ft, nil, nil)

	err := p.RunWatermarkBulk(context.Background(), jobs.WatermarkBulkPayload{
		JobID:  "bulk1",
		ChatID: 7,
		Items: []jobs.Attachment{
			{FileID: "f1", Name: "a.mp4"},
			{FileID: "f2", Name: "b.mp4"},
			{FileID: "f3", Name: "c.mp4"},
		},
		Text: "T", FontSize: 20, Color: "white", SpeedPreset: "fast",
	})

	require.Error(t, err, "the first item failure is still reported upward")
	assert.Equal(t, []string{"a.mp4", "c.mp4"}, m.uploads, "items around the failure are delivered")
	assert.Equal(t, 1, m.countEdits("Failed at transform. Please try again."))
	assert.Equal(t, 2, m.countEdits("Done."))
}

func TestPDFContinuesPastFailedDocument(t *testing.T) {
	m := &fakeMessenger{}
	fm := &fakeMarker{failAt: 2}
	cfg := config.Config{DataDir: t.TempDir(), UploadLimitBytes: 1 << 30}
	p := New(cfg, m, nil, fm, nil)

	err := p.RunWatermarkPDF(context.Background(), jobs.WatermarkPDFPayload{
		JobID:  "pdf1",
		ChatID: 7,
		Documents: []jobs.Attachment{
			{FileID: "d1", Name: "a.pdf"},
			{FileID: "d2", Name: "b.pdf"},
			{FileID: "d3", Name: "c.pdf"},
		},
		Location: 4, Text: "W", TextSize: 12, Color: "black",
	})

	require.Error(t, err)
	require.Len(t, m.docs, 2)
	assert.Contains(t, m.docs[0], "wm_a.pdf")
	assert.Contains(t, m.docs[1], "wm_c.pdf")
	assert.Equal(t, 1, m.countEdits("Failed at transform. Please try again."))
	assert.Equal(t, 2, m.countEdits("Done."))
}

func TestDeliverReprobesUnknownDurationBeforeSplitting(t *testing.T) {
	dir := t.TempDir()
	out := dir + "/out.mp4"
	require.NoError(t, os.WriteFile(out, make([]byte, 100), 0o644))

	m := &fakeMessenger{}
	ft := &fakeTranscoder{duration: 60, splitParts: []string{dir + "/p1.mp4", dir + "/p2.mp4"}}
	cfg := config.Config{DataDir: dir, UploadLimitBytes: 10}
	p := New(cfg, m, ft, nil, nil)
	st := p.newStatus(7, "Starting...")

	err := p.deliver(context.Background(), st, 7, out, "clip.mp4", tg.VideoMeta{}, "")
	require.NoError(t, err)
	assert.Equal(t, 1, ft.durProbes, "a lost duration is re-probed, not ignored")
	assert.Equal(t, []string{"clip.mp4 — Part 1 of 2", "clip.mp4 — Part 2 of 2"}, m.uploads)
}

func TestDeliverFailsOversizedArtifactWithNoDuration(t *testing.T) {
	dir := t.TempDir()
	out := dir + "/out.mp4"
	require.NoError(t, os.WriteFile(out, make([]byte, 100), 0o644))

	m := &fakeMessenger{}
	ft := &fakeTranscoder{durErr: errors.New("probe failed")}
	p := New(config.Config{DataDir: dir, UploadLimitBytes: 10}, m, ft, nil, nil)
	st := p.newStatus(7, "Starting...")

	err := p.deliver(context.Background(), st, 7, out, "clip.mp4", tg.VideoMeta{}, "")
	require.Error(t, err)
	assert.Empty(t, m.uploads, "no doomed oversized upload is attempted")
}

func TestCleanupIsIdempotent(t *testing.T) {
	m := &fakeMessenger{}
	p := New(config.Config{DataDir: t.TempDir()}, m, nil, nil, nil)

	dir, err := p.workDir("job1")
	require.NoError(t, err)
	require.DirExists(t, dir)

	cleanup(dir)
	assert.NoDirExists(t, dir)
	cleanup(dir) // second call on a missing path is a no-op
}
