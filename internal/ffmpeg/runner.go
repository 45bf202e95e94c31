// Package ffmpeg invokes the external transformation and probe tools as child
// processes, streams their structured progress output and returns structured
// results.
package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/you/tg-watermark/internal/logx"
)

const stderrTailLines = 30

type Runner struct {
	FFmpeg  string
	FFprobe string
}

func NewRunner(ffmpegPath, ffprobePath string) *Runner {
	return &Runner{FFmpeg: ffmpegPath, FFprobe: ffprobePath}
}

// TranscodeSpec describes one encoder invocation. Zero Codec means pure
// stream copy (-c copy).
type TranscodeSpec struct {
	Inputs        []string
	SeekFrom      float64 // -ss before the first input
	VF            string
	FilterComplex string
	Codec         string
	CRF           int
	Preset        string
	CopyAudio     bool
	DurationLimit float64
	OutFormat     string
	ExtraArgs     []string
	Output        string
}

func (s TranscodeSpec) args() []string {
	var a []string
	if s.SeekFrom > 0 {
		a = append(a, "-ss", formatFloat(s.SeekFrom))
	}
	for _, in := range s.Inputs {
		a = append(a, "-i", in)
	}
	if s.VF != "" {
		a = append(a, "-vf", s.VF)
	}
	if s.FilterComplex != "" {
		a = append(a, "-filter_complex", s.FilterComplex)
	}
	if s.Codec == "" {
		a = append(a, "-c", "copy")
	} else {
		a = append(a, "-c:v", s.Codec)
		if s.CRF > 0 {
			a = append(a, "-crf", strconv.Itoa(s.CRF))
		}
		if s.Preset != "" {
			a = append(a, "-preset", s.Preset)
		}
		if s.CopyAudio {
			a = append(a, "-c:a", "copy")
		}
	}
	if s.DurationLimit > 0 {
		a = append(a, "-t", formatFloat(s.DurationLimit))
	}
	if s.OutFormat != "" {
		a = append(a, "-f", s.OutFormat)
	}
	a = append(a, s.ExtraArgs...)
	a = append(a, "-progress", "pipe:1", "-nostats", "-y", s.Output)
	return a
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Transcode runs ffmpeg, feeding each out_time progress marker (seconds of
// processed media) to onTime. A non-zero exit returns an error carrying the
// exit code and a bounded tail of stderr.
func (r *Runner) Transcode(ctx context.Context, spec TranscodeSpec, onTime func(sec float64)) error {
	return r.runFFmpeg(ctx, spec.args(), onTime)
}

// Concat joins the files listed in a concat-demuxer manifest by stream copy.
func (r *Runner) Concat(ctx context.Context, manifest, output string) error {
	args := []string{
		"-f", "concat", "-safe", "0", "-i", manifest,
		"-c", "copy",
		"-progress", "pipe:1", "-nostats", "-y", output,
	}
	return r.runFFmpeg(ctx, args, nil)
}

// WriteConcatManifest writes the ordered part list in concat-demuxer syntax.
func WriteConcatManifest(path string, parts []string) error {
	var b strings.Builder
	for _, p := range parts {
		fmt.Fprintf(&b, "file '%s'\n", p)
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// SplitCopy segments the input into bounded parts by stream copy. Pattern
// must contain a %03d placeholder; the produced part paths are returned in
// order.
func (r *Runner) SplitCopy(ctx context.Context, input string, segmentSec float64, pattern string) ([]string, error) {
	args := []string{
		"-i", input,
		"-c", "copy", "-map", "0",
		"-f", "segment",
		"-segment_time", formatFloat(segmentSec),
		"-reset_timestamps", "1",
		"-progress", "pipe:1", "-nostats", "-y", pattern,
	}
	if err := r.runFFmpeg(ctx, args, nil); err != nil {
		return nil, err
	}
	parts, err := filepath.Glob(strings.Replace(pattern, "%03d", "*", 1))
	if err != nil {
		return nil, err
	}
	sort.Strings(parts)
	if len(parts) == 0 {
		return nil, fmt.Errorf("segmenting produced no parts for %s", input)
	}
	return parts, nil
}

// ExtractFrame grabs a single frame at the given offset as a JPEG thumbnail.
func (r *Runner) ExtractFrame(ctx context.Context, input, output string, atSec float64) error {
	args := []string{
		"-ss", formatFloat(atSec),
		"-i", input,
		"-frames:v", "1", "-q:v", "2",
		"-progress", "pipe:1", "-nostats", "-y", output,
	}
	return r.runFFmpeg(ctx, args, nil)
}

func (r *Runner) runFFmpeg(ctx context.Context, args []string, onTime func(float64)) error {
	cmd := exec.CommandContext(ctx, r.FFmpeg, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", r.FFmpeg, err)
	}

	tail := newTail(stderrTailLines)
	lw := logx.NewLineWriter(map[string]string{"tool": "ffmpeg"}, zerolog.DebugLevel)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		scanProgress(stdout, onTime)
	}()
	go func() {
		defer wg.Done()
		pr, pw := io.Pipe()
		go lw.Pipe(pr)
		tee := io.TeeReader(stderr, pw)
		tail.consume(tee)
		_ = pw.Close()
	}()
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		code := cmd.ProcessState.ExitCode()
		return fmt.Errorf("ffmpeg exited with code %d: %s: %w", code, tail.String(), err)
	}
	return nil
}

// scanProgress parses the -progress key=value stream. out_time_us carries
// microseconds of processed media; older builds emit out_time_ms with the
// same microsecond payload.
func scanProgress(r io.Reader, onTime func(float64)) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		k, v, ok := strings.Cut(sc.Text(), "=")
		if !ok {
			continue
		}
		switch k {
		case "out_time_us", "out_time_ms":
			if onTime == nil {
				continue
			}
			if us, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil && us >= 0 {
				onTime(float64(us) / 1e6)
			}
		}
	}
}

// tail keeps the last n lines of a stream for error diagnostics.
type tail struct {
	n     int
	lines []string
}

func newTail(n int) *tail {
	return &tail{n: n}
}

func (t *tail) consume(r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		t.lines = append(t.lines, sc.Text())
		if len(t.lines) > t.n {
			t.lines = t.lines[1:]
		}
	}
}

func (t *tail) String() string {
	return strings.Join(t.lines, " | ")
}
