package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/you/tg-watermark/internal/jobs"
	"github.com/you/tg-watermark/internal/logx"
	"github.com/you/tg-watermark/internal/pdfmark"
)

// RunWatermarkPDF watermarks each collected document sequentially. A failed
// document reports its stage and the loop continues with the next one.
func (p *Pipeline) RunWatermarkPDF(ctx context.Context, job jobs.WatermarkPDFPayload) error {
	ctx = logx.WithJob(ctx, job.JobID, job.ChatID)
	root, err := p.workDir(job.JobID)
	if err != nil {
		return err
	}
	defer cleanup(root)

	var firstErr error
	for i, doc := range job.Documents {
		if p.stop != nil && p.stop.Stopped(ctx) {
			firstErr = errStopped
			break
		}
		st := p.newStatus(job.ChatID, fmt.Sprintf("Document %d of %d: starting...", i+1, len(job.Documents)))
		err := p.watermarkDocument(ctx, st, root, i, doc, job)
		p.finish(st, err)
		if err != nil {
			log.Error().Err(err).Str("doc", doc.Name).Msg("document failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (p *Pipeline) watermarkDocument(ctx context.Context, st *status, root string, i int, doc jobs.Attachment, job jobs.WatermarkPDFPayload) error {
	dir, err := p.workDir(job.JobID, fmt.Sprintf("doc_%02d", i+1))
	if err != nil {
		return err
	}
	defer cleanup(dir)

	name := doc.Name
	if name == "" {
		name = fmt.Sprintf("document_%d.pdf", i+1)
	}
	in := filepath.Join(dir, "input.pdf")
	out := filepath.Join(dir, "wm_"+filepath.Base(name))

	stages := []stage{
		{label: "download", run: func(ctx context.Context) error {
			return p.tg.Download(ctx, doc.FileID, in, p.byteReporter(st, "Downloading"))
		}},
		{label: "transform", run: func(ctx context.Context) error {
			st.set("Watermarking...")
			return p.pdf.Watermark(ctx, dir, pdfmark.Request{
				Input:    in,
				Output:   out,
				Text:     job.Text,
				TextSize: job.TextSize,
				Color:    job.Color,
				Location: job.Location,
				FindText: job.FindText,
				Corners:  job.Corners,
			})
		}},
		{label: "upload", run: func(ctx context.Context) error {
			return p.tg.UploadDocument(job.ChatID, out, "", p.byteReporter(st, "Uploading"))
		}},
	}
	return p.runStages(ctx, stages)
}
