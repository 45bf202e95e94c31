package pdfmark

import (
	"github.com/phpdave11/gofpdf"
)

// Overlay pages are built at the exact size of the target page and later
// stamped over it, so all drawing here converts page space (bottom-left
// origin) to gofpdf space (top-left origin, y down).

func newOverlayPage(w, h float64, textSize int, col rgb) *gofpdf.Fpdf {
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: w, Ht: h},
	})
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetMargins(0, 0, 0)
	pdf.AddPage()
	pdf.SetFont("Helvetica", "", float64(textSize))
	pdf.SetTextColor(col.R, col.G, col.B)
	return pdf
}

// buildAnchorOverlay draws the watermark text at one of the eight anchor
// positions (location 5 rotates it 45 degrees).
func buildAnchorOverlay(path string, pageW, pageH float64, text string, textSize, location int, col rgb) error {
	pdf := newOverlayPage(pageW, pageH, textSize, col)

	x, y, rotated := anchorXY(location, pageW, pageH, textSize)
	yTop := pageH - y
	if rotated {
		pdf.TransformBegin()
		pdf.TransformRotate(45, x, yTop)
		pdf.Text(x, yTop, text)
		pdf.TransformEnd()
	} else {
		pdf.Text(x, yTop, text)
	}
	return pdf.OutputFileAndClose(path)
}

// cover is one opaque rectangle plus where its text goes.
type cover struct {
	rect Rect
	// below stamps the text under the rectangle (OCR mode); otherwise the
	// text is centered inside it (rectangle-cover mode).
	below bool
}

// buildCoverOverlay paints opaque covers and their watermark text.
func buildCoverOverlay(path string, pageW, pageH float64, covers []cover, text string, textSize int, col rgb) error {
	pdf := newOverlayPage(pageW, pageH, textSize, col)

	for _, c := range covers {
		xTop := c.rect.X0
		yTop := pageH - c.rect.Y1
		w := c.rect.Width()
		h := c.rect.Height()

		pdf.SetFillColor(255, 255, 255)
		pdf.Rect(xTop, yTop, w, h, "F")

		if c.below {
			pdf.Text(xTop, yTop+h+float64(textSize)+2, text)
		} else {
			pdf.SetXY(xTop, yTop+h/2-float64(textSize)/2)
			pdf.CellFormat(w, float64(textSize), text, "", 0, "C", false, 0, "")
		}
	}
	return pdf.OutputFileAndClose(path)
}
