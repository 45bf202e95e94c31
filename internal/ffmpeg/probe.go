package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Containers that under-report duration in the format header are common
// enough that any primary result below this is double-checked against the
// video stream.
const saneDurationSec = 60

type VideoInfo struct {
	Width    int
	Height   int
	Duration float64
}

func (r *Runner) probe(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, r.FFprobe, args...)
	out, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("ffprobe exited with code %d: %s", ee.ExitCode(), strings.TrimSpace(string(ee.Stderr)))
		}
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// Duration probes the container duration. An implausibly small primary result
// triggers a second probe against the video stream; the maximum wins.
func (r *Runner) Duration(ctx context.Context, path string) (float64, error) {
	out, err := r.probe(ctx,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path)
	if err != nil {
		return 0, err
	}
	d, err := strconv.ParseFloat(out, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing format duration %q: %w", out, err)
	}
	if d < saneDurationSec {
		if sd, serr := r.streamDuration(ctx, path); serr == nil && sd > d {
			d = sd
		}
	}
	return d, nil
}

func (r *Runner) streamDuration(ctx context.Context, path string) (float64, error) {
	out, err := r.probe(ctx,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(out, 64)
}

// Info probes width, height and duration of the video stream. A failed or
// malformed stream probe falls back to the format-level duration probe
// instead of failing the caller.
func (r *Runner) Info(ctx context.Context, path string) (VideoInfo, error) {
	out, err := r.probe(ctx,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,duration",
		"-of", "csv=s=x:p=0",
		path)
	if err == nil {
		if vi, perr := parseInfoCSV(out); perr == nil {
			if vi.Duration == 0 {
				if d, derr := r.Duration(ctx, path); derr == nil {
					vi.Duration = d
				}
			}
			return vi, nil
		}
	}
	d, derr := r.Duration(ctx, path)
	if derr != nil {
		return VideoInfo{}, fmt.Errorf("probing %s: %w", path, derr)
	}
	return VideoInfo{Duration: d}, nil
}

func parseInfoCSV(s string) (VideoInfo, error) {
	parts := strings.Split(s, "x")
	if len(parts) < 2 {
		return VideoInfo{}, fmt.Errorf("unexpected probe output %q", s)
	}
	w, err := strconv.Atoi(parts[0])
	if err != nil {
		return VideoInfo{}, err
	}
	h, err := strconv.Atoi(parts[1])
	if err != nil {
		return VideoInfo{}, err
	}
	vi := VideoInfo{Width: w, Height: h}
	if len(parts) > 2 {
		// Duration may be "N/A" for some containers.
		if d, err := strconv.ParseFloat(parts[2], 64); err == nil {
			vi.Duration = d
		}
	}
	return vi, nil
}
