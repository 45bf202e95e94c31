package pdfmark

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var gridBlue = color.RGBA{R: 40, G: 80, B: 220, A: 255}

// AnnotateGrid renders the first page of pdfPath and overlays a 0..10
// coordinate grid so the user can name rectangle corners as "vertical,
// horizontal" pairs. The annotated image is written as JPEG to outPath.
func (r *Runner) AnnotateGrid(ctx context.Context, pdfPath, workDir, outPath string) error {
	imgPath, err := r.rasterizePage(ctx, pdfPath, 1, workDir)
	if err != nil {
		return err
	}
	f, err := os.Open(imgPath)
	if err != nil {
		return err
	}
	src, err := png.Decode(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("decoding page image: %w", err)
	}

	b := src.Bounds()
	canvas := image.NewRGBA(b)
	draw.Draw(canvas, b, src, b.Min, draw.Src)

	w, h := b.Dx(), b.Dy()
	drawGridLines(canvas, w, h)
	labelAxes(canvas, w, h)

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	if err := jpeg.Encode(out, canvas, &jpeg.Options{Quality: 85}); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func drawGridLines(img *image.RGBA, w, h int) {
	for i := 0; i <= 10; i++ {
		x := i * (w - 1) / 10
		for y := 0; y < h; y++ {
			img.Set(x, y, gridBlue)
		}
		y := i * (h - 1) / 10
		for x := 0; x < w; x++ {
			img.Set(x, y, gridBlue)
		}
	}
}

func labelAxes(img *image.RGBA, w, h int) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(gridBlue),
		Face: basicfont.Face7x13,
	}
	for i := 0; i <= 10; i++ {
		label := fmt.Sprintf("%d", i)

		// horizontal axis along the top edge
		x := i * (w - 1) / 10
		if x > w-16 {
			x = w - 16
		}
		d.Dot = fixed.P(x+3, 14)
		d.DrawString(label)

		// vertical axis down the left edge
		y := i * (h - 1) / 10
		if y < 14 {
			y = 14
		}
		d.Dot = fixed.P(3, y)
		d.DrawString(label)
	}
}
