package ffmpeg

import (
	"fmt"
	"strings"
)

// Filter expressions are built from typed parameter structs and serialized to
// ffmpeg syntax only here, at the invocation boundary.

// drawtext treats backslash, quote, colon and comma as syntax.
var drawTextEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	`:`, `\:`,
	`,`, `\,`,
)

func escapeDrawText(s string) string {
	return drawTextEscaper.Replace(s)
}

// DrawText renders a text watermark. Static text sits centered at the bottom;
// Moving text traverses the frame on a diagonal that repeats every 30 seconds.
type DrawText struct {
	Text     string
	FontSize int
	Color    string
	Moving   bool
	// EnableBefore > 0 limits the filter to t < EnableBefore seconds.
	EnableBefore float64
}

func (d DrawText) Expr() string {
	var b strings.Builder
	fmt.Fprintf(&b, "drawtext=text='%s':fontcolor=%s:fontsize=%d",
		escapeDrawText(d.Text), d.Color, d.FontSize)
	if d.Moving {
		b.WriteString(`:borderw=2:bordercolor=black:x='mod(t\,30)*30':y='mod(t\,30)*15'`)
	} else {
		b.WriteString(":x=(w-text_w)/2:y=h-text_h-10")
	}
	if d.EnableBefore > 0 {
		fmt.Fprintf(&b, ":enable='lt(t,%g)'", d.EnableBefore)
	}
	return b.String()
}

// ColorKey keys out the overlay's chroma-screen background. Tolerances are
// fixed, not user-configurable.
type ColorKey struct{}

func (ColorKey) Expr() string {
	return "colorkey=0x00FF00:0.3:0.2,format=yuva420p"
}

// OverlayComposite stacks input 1 onto input 0 at the origin.
type OverlayComposite struct {
	EnableBefore float64
}

func (o OverlayComposite) Expr() string {
	if o.EnableBefore > 0 {
		return fmt.Sprintf("[0:v][1:v]overlay=enable='lt(t,%g)':x=0:y=0", o.EnableBefore)
	}
	return "[0:v][1:v]overlay=x=0:y=0"
}

// ImageOverlay scales the watermark image to a fixed height, preserving
// aspect ratio, and composites it at a fixed offset.
type ImageOverlay struct{}

func (ImageOverlay) Expr() string {
	return "[1:v]scale=-1:32[wm];[0:v][wm]overlay=10:10"
}
