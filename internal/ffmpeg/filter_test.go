package ffmpeg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStaticDrawText(t *testing.T) {
	f := DrawText{Text: "SAMPLE", FontSize: 24, Color: "white"}
	assert.Equal(t,
		"drawtext=text='SAMPLE':fontcolor=white:fontsize=24:x=(w-text_w)/2:y=h-text_h-10",
		f.Expr())
}

func TestMovingDrawTextOscillatesEveryThirtySeconds(t *testing.T) {
	f := DrawText{Text: "X", FontSize: 20, Color: "black", Moving: true}
	assert.Equal(t,
		`drawtext=text='X':fontcolor=black:fontsize=20:borderw=2:bordercolor=black:x='mod(t\,30)*30':y='mod(t\,30)*15'`,
		f.Expr())
}

func TestDrawTextEnableWindow(t *testing.T) {
	f := DrawText{Text: "W", FontSize: 18, Color: "red", EnableBefore: 12.5}
	assert.Contains(t, f.Expr(), ":enable='lt(t,12.5)'")
}

func TestDrawTextEscapesFilterSyntax(t *testing.T) {
	f := DrawText{Text: `a:b,c'd`, FontSize: 10, Color: "white"}
	assert.Contains(t, f.Expr(), `text='a\:b\,c\'d'`)
}

func TestColorKeyConstants(t *testing.T) {
	assert.Equal(t, "colorkey=0x00FF00:0.3:0.2,format=yuva420p", ColorKey{}.Expr())
}

func TestOverlayComposite(t *testing.T) {
	assert.Equal(t, "[0:v][1:v]overlay=x=0:y=0", OverlayComposite{}.Expr())
	assert.Equal(t,
		"[0:v][1:v]overlay=enable='lt(t,8)':x=0:y=0",
		OverlayComposite{EnableBefore: 8}.Expr())
}

func TestImageOverlayFixedScaleAndOffset(t *testing.T) {
	assert.Equal(t, "[1:v]scale=-1:32[wm];[0:v][wm]overlay=10:10", ImageOverlay{}.Expr())
}
