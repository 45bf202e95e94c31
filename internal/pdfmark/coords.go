package pdfmark

import (
	"github.com/you/tg-watermark/internal/jobs"
)

// Page-space coordinates are PDF points with the origin at the bottom-left.
// User-facing normalized coordinates are (vertical, horizontal) in [0,10]
// with the origin at the top-left, so the vertical axis inverts.

// Rect is a page-space rectangle with X0 <= X1 and Y0 <= Y1.
type Rect struct {
	X0, Y0, X1, Y1 float64
}

func (r Rect) Width() float64  { return r.X1 - r.X0 }
func (r Rect) Height() float64 { return r.Y1 - r.Y0 }

// NormalizedToPage converts one normalized coordinate to page space:
// x = (h/10)*W, y = H - (v/10)*H.
func NormalizedToPage(c jobs.Coord, pageW, pageH float64) (x, y float64) {
	return (c.H / 10) * pageW, pageH - (c.V/10)*pageH
}

// CoverRect spans the two user-supplied corners in page space.
func CoverRect(topLeft, bottomRight jobs.Coord, pageW, pageH float64) Rect {
	x1, y1 := NormalizedToPage(topLeft, pageW, pageH)
	x2, y2 := NormalizedToPage(bottomRight, pageW, pageH)
	return Rect{
		X0: min(x1, x2),
		Y0: min(y1, y2),
		X1: max(x1, x2),
		Y1: max(y1, y2),
	}
}

const anchorMargin = 10

// anchorXY places the watermark text for locations 1..8, reproducing the
// original layout arithmetic. The returned position is a page-space text
// baseline; rotated is true for the diagonal center variant.
func anchorXY(location int, pageW, pageH float64, textSize int) (x, y float64, rotated bool) {
	ts := float64(textSize)
	switch location {
	case 1: // top right
		return pageW - anchorMargin - 100, pageH - anchorMargin - ts, false
	case 2: // top middle
		return pageW/2 - 50, pageH - anchorMargin - ts, false
	case 3: // top left
		return anchorMargin, pageH - anchorMargin - ts, false
	case 4: // center
		return pageW/2 - 50, pageH/2 - ts/2, false
	case 5: // center, 45 degrees
		return pageW/2 - 50, pageH/2 - ts/2, true
	case 6: // bottom right
		return pageW - anchorMargin - 100, anchorMargin, false
	case 7: // bottom center
		return pageW/2 - 50, anchorMargin, false
	default: // 8, bottom left
		return anchorMargin, anchorMargin, false
	}
}

type rgb struct {
	R, G, B int
}

func colorByName(name string) rgb {
	switch name {
	case "black":
		return rgb{0, 0, 0}
	case "red":
		return rgb{255, 0, 0}
	default:
		return rgb{255, 255, 255}
	}
}
