package pdfmark

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/you/tg-watermark/internal/logx"
)

// word is one recognized token with its raster-space box (pixels, top-left
// origin).
type word struct {
	Text   string
	Left   int
	Top    int
	Width  int
	Height int
}

// rasterizePage renders a single PDF page to PNG at the given DPI and
// returns the image path.
func (r *Runner) rasterizePage(ctx context.Context, pdfPath string, page int, workDir string) (string, error) {
	prefix := filepath.Join(workDir, fmt.Sprintf("page_%d", page))
	cmd := exec.CommandContext(ctx, r.Pdftoppm,
		"-png",
		"-r", strconv.Itoa(r.DPI),
		"-f", strconv.Itoa(page),
		"-l", strconv.Itoa(page),
		"-singlefile",
		pdfPath, prefix)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("pdftoppm page %d: %w: %s", page, err, strings.TrimSpace(stderr.String()))
	}
	return prefix + ".png", nil
}

// ocrWords runs tesseract over a page image and returns the recognized words.
func (r *Runner) ocrWords(ctx context.Context, imgPath string) ([]word, error) {
	cmd := exec.CommandContext(ctx, r.Tesseract, imgPath, "stdout", "tsv")
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("tesseract %s: %w: %s", imgPath, err, strings.TrimSpace(stderr.String()))
	}
	words, err := parseTSV(out.String())
	if err != nil {
		return nil, err
	}
	log := logx.FromCtx(ctx)
	log.Debug().Str("image", imgPath).Int("words", len(words)).Msg("ocr done")
	return words, nil
}

// parseTSV extracts word-level rows (level 5) from tesseract TSV output.
func parseTSV(tsv string) ([]word, error) {
	var words []word
	for i, line := range strings.Split(tsv, "\n") {
		if i == 0 || strings.TrimSpace(line) == "" {
			continue
		}
		cols := strings.Split(line, "\t")
		if len(cols) < 12 {
			continue
		}
		if cols[0] != "5" {
			continue
		}
		text := strings.TrimSpace(cols[11])
		if text == "" {
			continue
		}
		left, err1 := strconv.Atoi(cols[6])
		top, err2 := strconv.Atoi(cols[7])
		w, err3 := strconv.Atoi(cols[8])
		h, err4 := strconv.Atoi(cols[9])
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			return nil, fmt.Errorf("tesseract tsv: bad geometry on line %d", i+1)
		}
		words = append(words, word{Text: text, Left: left, Top: top, Width: w, Height: h})
	}
	return words, nil
}

// matchRects returns page-space cover rectangles for every recognized word
// containing needle (case-insensitive). Raster boxes use a top-left origin,
// so the vertical axis flips into page space.
func matchRects(words []word, needle string, pageH float64, dpi int) []Rect {
	scale := float64(dpi) / 72
	needle = strings.ToLower(needle)
	var rects []Rect
	for _, w := range words {
		if !strings.Contains(strings.ToLower(w.Text), needle) {
			continue
		}
		x := float64(w.Left) / scale
		yTop := float64(w.Top) / scale
		wd := float64(w.Width) / scale
		ht := float64(w.Height) / scale
		rects = append(rects, Rect{
			X0: x,
			Y0: pageH - yTop - ht,
			X1: x + wd,
			Y1: pageH - yTop,
		})
	}
	return rects
}
