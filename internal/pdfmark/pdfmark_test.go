package pdfmark

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you/tg-watermark/internal/jobs"
)

func TestNormalizedToPageInvertsVerticalAxis(t *testing.T) {
	x, y := NormalizedToPage(jobs.Coord{V: 0, H: 0}, 600, 800)
	assert.Equal(t, 0.0, x)
	assert.Equal(t, 800.0, y)

	x, y = NormalizedToPage(jobs.Coord{V: 10, H: 10}, 600, 800)
	assert.Equal(t, 600.0, x)
	assert.Equal(t, 0.0, y)
}

func TestCoverRectFromCorners(t *testing.T) {
	r := CoverRect(jobs.Coord{V: 2, H: 3}, jobs.Coord{V: 7, H: 8}, 600, 800)
	assert.Equal(t, Rect{X0: 180, Y0: 240, X1: 480, Y1: 640}, r)
	assert.Equal(t, 300.0, r.Width())
	assert.Equal(t, 400.0, r.Height())
}

func TestCoverRectNormalizesSwappedCorners(t *testing.T) {
	a := CoverRect(jobs.Coord{V: 2, H: 3}, jobs.Coord{V: 7, H: 8}, 600, 800)
	b := CoverRect(jobs.Coord{V: 7, H: 8}, jobs.Coord{V: 2, H: 3}, 600, 800)
	assert.Equal(t, a, b)
}

func TestAnchorCorners(t *testing.T) {
	// top right keeps a 10pt margin and reserves 100pt of width
	x, y, rot := anchorXY(1, 612, 792, 20)
	assert.Equal(t, 502.0, x)
	assert.Equal(t, 762.0, y)
	assert.False(t, rot)

	// bottom left sits at the margin
	x, y, _ = anchorXY(8, 612, 792, 20)
	assert.Equal(t, 10.0, x)
	assert.Equal(t, 10.0, y)

	// only the diagonal center variant rotates
	_, _, rot = anchorXY(5, 612, 792, 20)
	assert.True(t, rot)
	_, _, rot = anchorXY(4, 612, 792, 20)
	assert.False(t, rot)
}

const sampleTSV = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
	"1\t1\t0\t0\t0\t0\t0\t0\t1275\t1650\t-1\t\n" +
	"5\t1\t1\t1\t1\t1\t150\t300\t120\t40\t96.5\tInvoice\n" +
	"5\t1\t1\t1\t1\t2\t290\t300\t80\t40\t91.2\tTotal\n" +
	"5\t1\t1\t1\t2\t1\t150\t360\t60\t38\t40.0\t \n"

func TestParseTSVKeepsWordRows(t *testing.T) {
	words, err := parseTSV(sampleTSV)
	require.NoError(t, err)
	require.Len(t, words, 2)
	assert.Equal(t, word{Text: "Invoice", Left: 150, Top: 300, Width: 120, Height: 40}, words[0])
	assert.Equal(t, "Total", words[1].Text)
}

func TestParseTSVRejectsBadGeometry(t *testing.T) {
	bad := "level\t...\n5\t1\t1\t1\t1\t1\tx\t300\t120\t40\t96.5\tOops\n"
	_, err := parseTSV(bad)
	assert.Error(t, err)
}

func TestMatchRectsScalesAndFlips(t *testing.T) {
	words := []word{
		{Text: "Invoice", Left: 300, Top: 600, Width: 150, Height: 75},
		{Text: "Customer", Left: 0, Top: 0, Width: 10, Height: 10},
	}
	// at 150 DPI one page point is 150/72 pixels
	rects := matchRects(words, "invoice", 792, 150)
	require.Len(t, rects, 1)
	assert.InDelta(t, 144.0, rects[0].X0, 0.01)
	assert.InDelta(t, 216.0, rects[0].X1, 0.01)
	assert.InDelta(t, 504.0, rects[0].Y1, 0.01) // 792 - 600/scale
	assert.InDelta(t, 468.0, rects[0].Y0, 0.01)
}

func TestMatchRectsNoMatches(t *testing.T) {
	rects := matchRects([]word{{Text: "hello"}}, "invoice", 792, 150)
	assert.Empty(t, rects)
}
