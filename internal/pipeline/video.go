package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/you/tg-watermark/internal/ffmpeg"
	"github.com/you/tg-watermark/internal/jobs"
	"github.com/you/tg-watermark/internal/logx"
	"github.com/you/tg-watermark/internal/tg"
)

// videoParams is the parameter set one drawtext run applies, shared between
// the live flow and each bulk item.
type videoParams struct {
	Text         string
	FontSize     int
	Color        string
	Moving       bool
	SpeedPreset  string
	Thumbnail    *jobs.Attachment
	ExtraCaption string
}

// RunWatermarkVideo executes the single-video text watermark pipeline.
func (p *Pipeline) RunWatermarkVideo(ctx context.Context, job jobs.WatermarkVideoPayload) error {
	ctx = logx.WithJob(ctx, job.JobID, job.ChatID)
	dir, err := p.workDir(job.JobID)
	if err != nil {
		return err
	}
	defer cleanup(dir)

	st := p.newStatus(job.ChatID, "Starting...")
	err = p.watermarkOne(ctx, st, dir, job.ChatID, job.Video, videoParams{
		Text:         job.Text,
		FontSize:     job.FontSize,
		Color:        job.Color,
		Moving:       job.Moving,
		SpeedPreset:  job.SpeedPreset,
		Thumbnail:    job.Thumbnail,
		ExtraCaption: job.ExtraCaption,
	})
	p.finish(st, err)
	return err
}

// watermarkOne runs acquire, probe, transform, thumbnail, deliver for one
// video inside its own scratch directory.
func (p *Pipeline) watermarkOne(ctx context.Context, st *status, dir string, chatID int64, video jobs.Attachment, prm videoParams) error {
	in := filepath.Join(dir, "input.mp4")
	out := filepath.Join(dir, "watermarked.mp4")

	var durationSec float64
	var info ffmpeg.VideoInfo
	var thumbPath string

	speed := prm.SpeedPreset
	if speed == "" {
		speed = p.cfg.SpeedPreset
	}

	stages := []stage{
		{label: "download", run: func(ctx context.Context) error {
			return p.tg.Download(ctx, video.FileID, in, p.byteReporter(st, "Downloading"))
		}},
		{label: "probe", run: func(ctx context.Context) error {
			var err error
			durationSec, err = p.ff.Duration(ctx, in)
			return err
		}},
		{label: "transform", run: func(ctx context.Context) error {
			filter := ffmpeg.DrawText{
				Text:     prm.Text,
				FontSize: prm.FontSize,
				Color:    prm.Color,
				Moving:   prm.Moving,
			}
			return p.ff.Transcode(ctx, ffmpeg.TranscodeSpec{
				Inputs:    []string{in},
				VF:        filter.Expr(),
				Codec:     "libx264",
				CRF:       p.cfg.CRF,
				Preset:    speed,
				CopyAudio: true,
				Output:    out,
			}, p.timeReporter(st, "Processing", durationSec))
		}},
		{label: "probe", run: func(ctx context.Context) error {
			var err error
			info, err = p.ff.Info(ctx, out)
			return err
		}},
		{label: "transform", run: func(ctx context.Context) error {
			thumbPath = p.thumbnail(ctx, dir, out, prm.Thumbnail)
			return nil
		}},
		{label: "upload", run: func(ctx context.Context) error {
			caption := buildCaption(video.Name, prm.ExtraCaption)
			meta := tg.VideoMeta{DurationSec: int(info.Duration), Width: info.Width, Height: info.Height}
			return p.deliver(ctx, st, chatID, out, caption, meta, thumbPath)
		}},
	}
	return p.runStages(ctx, stages)
}

// thumbnail fetches the user's custom thumbnail or extracts a frame from the
// output. Failures fall back to no thumbnail rather than aborting.
func (p *Pipeline) thumbnail(ctx context.Context, dir, videoPath string, custom *jobs.Attachment) string {
	thumb := filepath.Join(dir, "thumb.jpg")
	if custom != nil {
		if err := p.tg.Download(ctx, custom.FileID, thumb, nil); err != nil {
			log.Warn().Err(err).Msg("fetching custom thumbnail")
			return ""
		}
		return thumb
	}
	if err := p.ff.ExtractFrame(ctx, videoPath, thumb, 1); err != nil {
		log.Warn().Err(err).Msg("extracting thumbnail frame")
		return ""
	}
	return thumb
}

// RunWatermarkBulk processes each collected item through a fully independent
// pipeline run. A failed item reports its stage and the loop continues.
func (p *Pipeline) RunWatermarkBulk(ctx context.Context, job jobs.WatermarkBulkPayload) error {
	ctx = logx.WithJob(ctx, job.JobID, job.ChatID)
	root, err := p.workDir(job.JobID)
	if err != nil {
		return err
	}
	defer cleanup(root)

	prm := videoParams{
		Text:         job.Text,
		FontSize:     job.FontSize,
		Color:        job.Color,
		SpeedPreset:  job.SpeedPreset,
		Thumbnail:    job.Thumbnail,
		ExtraCaption: job.ExtraCaption,
	}

	var firstErr error
	for i, item := range job.Items {
		if p.stop != nil && p.stop.Stopped(ctx) {
			firstErr = errStopped
			break
		}
		dir, err := p.workDir(job.JobID, itemDir(i))
		if err != nil {
			return err
		}
		st := p.newStatus(job.ChatID, itemLabel(i, len(job.Items)))
		err = p.watermarkOne(ctx, st, dir, job.ChatID, item, prm)
		p.finish(st, err)
		cleanup(dir)
		if err != nil {
			log.Error().Err(err).Int("item", i+1).Msg("bulk item failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func itemDir(i int) string { return fmt.Sprintf("item_%02d", i+1) }

func itemLabel(i, n int) string { return fmt.Sprintf("Video %d of %d: starting...", i+1, n) }
