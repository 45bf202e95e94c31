package pipeline

import (
	"context"
	"path/filepath"

	"github.com/you/tg-watermark/internal/ffmpeg"
	"github.com/you/tg-watermark/internal/jobs"
	"github.com/you/tg-watermark/internal/logx"
	"github.com/you/tg-watermark/internal/tg"
)

// RunOverlay composites a chroma-keyed overlay video onto the main video.
// A positive duration selects the segment+concat path: only the prefix that
// carries the overlay is re-encoded, the rest is stream-copied and joined.
func (p *Pipeline) RunOverlay(ctx context.Context, job jobs.OverlayPayload) error {
	ctx = logx.WithJob(ctx, job.JobID, job.ChatID)
	dir, err := p.workDir(job.JobID)
	if err != nil {
		return err
	}
	defer cleanup(dir)

	main := filepath.Join(dir, "main.mp4")
	overlaySrc := filepath.Join(dir, "overlay.mp4")
	keyed := filepath.Join(dir, "keyed.mov")
	out := filepath.Join(dir, "out.mp4")

	var durationSec float64
	var info ffmpeg.VideoInfo
	var thumbPath string

	st := p.newStatus(job.ChatID, "Starting...")
	stages := []stage{
		{label: "download", run: func(ctx context.Context) error {
			return p.tg.Download(ctx, job.Main.FileID, main, p.byteReporter(st, "Downloading video"))
		}},
		{label: "download", run: func(ctx context.Context) error {
			return p.tg.Download(ctx, job.Overlay.FileID, overlaySrc, p.byteReporter(st, "Downloading overlay"))
		}},
		{label: "probe", run: func(ctx context.Context) error {
			var err error
			durationSec, err = p.ff.Duration(ctx, main)
			return err
		}},
		{label: "transform", run: func(ctx context.Context) error {
			// qtrle in .mov keeps the alpha channel the colorkey produces
			return p.ff.Transcode(ctx, ffmpeg.TranscodeSpec{
				Inputs: []string{overlaySrc},
				VF:     ffmpeg.ColorKey{}.Expr(),
				Codec:  "qtrle",
				Output: keyed,
			}, nil)
		}},
		{label: "transform", run: func(ctx context.Context) error {
			if job.DurationSec > 0 && job.DurationSec < durationSec {
				return p.compositePrefix(ctx, st, dir, main, keyed, out, job.DurationSec, durationSec)
			}
			return p.compositeWhole(ctx, st, main, keyed, out, durationSec)
		}},
		{label: "probe", run: func(ctx context.Context) error {
			var err error
			info, err = p.ff.Info(ctx, out)
			return err
		}},
		{label: "transform", run: func(ctx context.Context) error {
			thumbPath = p.thumbnail(ctx, dir, out, nil)
			return nil
		}},
		{label: "upload", run: func(ctx context.Context) error {
			meta := tg.VideoMeta{DurationSec: int(info.Duration), Width: info.Width, Height: info.Height}
			return p.deliver(ctx, st, job.ChatID, out, job.Main.Name, meta, thumbPath)
		}},
	}
	err = p.runStages(ctx, stages)
	p.finish(st, err)
	return err
}

func (p *Pipeline) compositeWhole(ctx context.Context, st *status, main, keyed, out string, durationSec float64) error {
	return p.ff.Transcode(ctx, ffmpeg.TranscodeSpec{
		Inputs:        []string{main, keyed},
		FilterComplex: ffmpeg.OverlayComposite{}.Expr(),
		Codec:         "libx264",
		CRF:           p.cfg.CRF,
		Preset:        p.cfg.SpeedPreset,
		CopyAudio:     true,
		Output:        out,
	}, p.timeReporter(st, "Processing", durationSec))
}

// compositePrefix re-encodes only [0, overlaySec) with the overlay applied,
// stream-copies the remainder and joins both via the concat demuxer.
func (p *Pipeline) compositePrefix(ctx context.Context, st *status, dir, main, keyed, out string, overlaySec, totalSec float64) error {
	seg1 := filepath.Join(dir, "seg1.mp4")
	seg2 := filepath.Join(dir, "seg2.mp4")

	if err := p.ff.Transcode(ctx, ffmpeg.TranscodeSpec{
		Inputs:        []string{main, keyed},
		FilterComplex: ffmpeg.OverlayComposite{EnableBefore: overlaySec}.Expr(),
		Codec:         "libx264",
		CRF:           p.cfg.CRF,
		Preset:        p.cfg.SpeedPreset,
		CopyAudio:     true,
		DurationLimit: overlaySec,
		Output:        seg1,
	}, p.timeReporter(st, "Processing", overlaySec)); err != nil {
		return err
	}

	if err := p.ff.Transcode(ctx, ffmpeg.TranscodeSpec{
		Inputs:   []string{main},
		SeekFrom: overlaySec,
		Output:   seg2,
	}, nil); err != nil {
		return err
	}

	manifest := filepath.Join(dir, "concat_list.txt")
	if err := ffmpeg.WriteConcatManifest(manifest, []string{seg1, seg2}); err != nil {
		return err
	}
	st.set("Joining segments...")
	return p.ff.Concat(ctx, manifest, out)
}

// RunImageWatermark overlays a still image, scaled to a fixed height, at a
// fixed offset. Audio passes through untouched.
func (p *Pipeline) RunImageWatermark(ctx context.Context, job jobs.ImageWatermarkPayload) error {
	ctx = logx.WithJob(ctx, job.JobID, job.ChatID)
	dir, err := p.workDir(job.JobID)
	if err != nil {
		return err
	}
	defer cleanup(dir)

	in := filepath.Join(dir, "input.mp4")
	img := filepath.Join(dir, "mark.png")
	out := filepath.Join(dir, "out.mp4")

	var durationSec float64
	var info ffmpeg.VideoInfo
	var thumbPath string

	st := p.newStatus(job.ChatID, "Starting...")
	stages := []stage{
		{label: "download", run: func(ctx context.Context) error {
			return p.tg.Download(ctx, job.Video.FileID, in, p.byteReporter(st, "Downloading video"))
		}},
		{label: "download", run: func(ctx context.Context) error {
			return p.tg.Download(ctx, job.Image.FileID, img, nil)
		}},
		{label: "probe", run: func(ctx context.Context) error {
			var err error
			durationSec, err = p.ff.Duration(ctx, in)
			return err
		}},
		{label: "transform", run: func(ctx context.Context) error {
			return p.ff.Transcode(ctx, ffmpeg.TranscodeSpec{
				Inputs:        []string{in, img},
				FilterComplex: ffmpeg.ImageOverlay{}.Expr(),
				Codec:         "libx264",
				CRF:           p.cfg.CRF,
				Preset:        p.cfg.SpeedPreset,
				CopyAudio:     true,
				Output:        out,
			}, p.timeReporter(st, "Processing", durationSec))
		}},
		{label: "probe", run: func(ctx context.Context) error {
			var err error
			info, err = p.ff.Info(ctx, out)
			return err
		}},
		{label: "transform", run: func(ctx context.Context) error {
			thumbPath = p.thumbnail(ctx, dir, out, nil)
			return nil
		}},
		{label: "upload", run: func(ctx context.Context) error {
			meta := tg.VideoMeta{DurationSec: int(info.Duration), Width: info.Width, Height: info.Height}
			return p.deliver(ctx, st, job.ChatID, out, job.Video.Name, meta, thumbPath)
		}},
	}
	err = p.runStages(ctx, stages)
	p.finish(st, err)
	return err
}
