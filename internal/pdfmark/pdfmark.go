// Package pdfmark stamps watermark text onto PDF documents. Overlay pages
// are rendered with gofpdf at the exact target page size and merged on top
// with pdfcpu, so the source content is never re-encoded.
package pdfmark

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/you/tg-watermark/internal/jobs"
	"github.com/you/tg-watermark/internal/logx"
)

// Locations 1..8 are fixed anchors, 9 covers OCR text matches, 10 covers a
// user-drawn rectangle.
const (
	LocationOCRCover  = 9
	LocationRectCover = 10
)

// Runner holds the external tool paths needed for the OCR cover mode.
type Runner struct {
	Pdftoppm  string
	Tesseract string
	DPI       int
}

// Request describes one document to watermark.
type Request struct {
	Input    string
	Output   string
	Text     string
	TextSize int
	Color    string
	Location int

	// FindText drives location 9.
	FindText string
	// Corners holds the two normalized rectangle corners for location 10.
	Corners []jobs.Coord
}

// stampDesc keeps the overlay page at its native size and position.
const stampDesc = "pos:c, scale:1 abs, rot:0"

// Watermark produces req.Output from req.Input with the requested marking.
// Intermediate overlay pages live under workDir.
func (r *Runner) Watermark(ctx context.Context, workDir string, req Request) error {
	dims, err := api.PageDimsFile(req.Input)
	if err != nil {
		return fmt.Errorf("reading page sizes: %w", err)
	}
	if len(dims) == 0 {
		return fmt.Errorf("document %s has no pages", req.Input)
	}

	switch req.Location {
	case LocationOCRCover:
		return r.coverByOCR(ctx, workDir, req, dims)
	case LocationRectCover:
		return r.coverRectangle(workDir, req, dims)
	default:
		return r.stampAnchor(workDir, req, dims[0])
	}
}

// stampAnchor builds one overlay from the first page's size and applies it
// to every page.
func (r *Runner) stampAnchor(workDir string, req Request, dim types.Dim) error {
	overlay := filepath.Join(workDir, "overlay_anchor.pdf")
	col := colorByName(req.Color)
	if err := buildAnchorOverlay(overlay, dim.Width, dim.Height, req.Text, req.TextSize, req.Location, col); err != nil {
		return fmt.Errorf("building overlay: %w", err)
	}
	wm, err := api.PDFWatermark(overlay, stampDesc, true, false, types.POINTS)
	if err != nil {
		return fmt.Errorf("preparing stamp: %w", err)
	}
	if err := api.AddWatermarksFile(req.Input, req.Output, nil, wm, nil); err != nil {
		return fmt.Errorf("stamping %s: %w", req.Input, err)
	}
	return nil
}

// coverRectangle paints the user-drawn rectangle on every page, sized to
// each page individually.
func (r *Runner) coverRectangle(workDir string, req Request, dims []types.Dim) error {
	if len(req.Corners) != 2 {
		return fmt.Errorf("rectangle cover needs 2 corners, got %d", len(req.Corners))
	}
	col := colorByName(req.Color)

	stamps := make(map[int]*model.Watermark, len(dims))
	for i, dim := range dims {
		page := i + 1
		rect := CoverRect(req.Corners[0], req.Corners[1], dim.Width, dim.Height)
		overlay := filepath.Join(workDir, fmt.Sprintf("overlay_rect_%d.pdf", page))
		covers := []cover{{rect: rect}}
		if err := buildCoverOverlay(overlay, dim.Width, dim.Height, covers, req.Text, req.TextSize, col); err != nil {
			return fmt.Errorf("building overlay for page %d: %w", page, err)
		}
		wm, err := api.PDFWatermark(overlay, stampDesc, true, false, types.POINTS)
		if err != nil {
			return fmt.Errorf("preparing stamp for page %d: %w", page, err)
		}
		stamps[page] = wm
	}
	if err := api.AddWatermarksMapFile(req.Input, req.Output, stamps, nil); err != nil {
		return fmt.Errorf("stamping %s: %w", req.Input, err)
	}
	return nil
}

// coverByOCR rasterizes each page, finds occurrences of the search text and
// covers every match. A document without any match is passed through
// unchanged.
func (r *Runner) coverByOCR(ctx context.Context, workDir string, req Request, dims []types.Dim) error {
	col := colorByName(req.Color)
	log := logx.FromCtx(ctx)

	stamps := make(map[int]*model.Watermark)
	for i, dim := range dims {
		page := i + 1
		img, err := r.rasterizePage(ctx, req.Input, page, workDir)
		if err != nil {
			return err
		}
		words, err := r.ocrWords(ctx, img)
		if err != nil {
			return err
		}
		rects := matchRects(words, req.FindText, dim.Height, r.DPI)
		if len(rects) == 0 {
			continue
		}
		log.Info().Int("page", page).Int("matches", len(rects)).Msg("covering text matches")

		covers := make([]cover, 0, len(rects))
		for _, rect := range rects {
			covers = append(covers, cover{rect: rect, below: true})
		}
		overlay := filepath.Join(workDir, fmt.Sprintf("overlay_ocr_%d.pdf", page))
		if err := buildCoverOverlay(overlay, dim.Width, dim.Height, covers, req.Text, req.TextSize, col); err != nil {
			return fmt.Errorf("building overlay for page %d: %w", page, err)
		}
		wm, err := api.PDFWatermark(overlay, stampDesc, true, false, types.POINTS)
		if err != nil {
			return fmt.Errorf("preparing stamp for page %d: %w", page, err)
		}
		stamps[page] = wm
	}

	if len(stamps) == 0 {
		log.Info().Str("find", req.FindText).Msg("no matches, passing document through")
		return copyFile(req.Input, req.Output)
	}
	if err := api.AddWatermarksMapFile(req.Input, req.Output, stamps, nil); err != nil {
		return fmt.Errorf("stamping %s: %w", req.Input, err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
