package ffmpeg

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscodeSpecArgs(t *testing.T) {
	spec := TranscodeSpec{
		Inputs:    []string{"in.mp4"},
		VF:        "drawtext=text='X'",
		Codec:     "libx264",
		CRF:       23,
		Preset:    "medium",
		CopyAudio: true,
		Output:    "out.mp4",
	}
	got := strings.Join(spec.args(), " ")
	assert.Equal(t,
		"-i in.mp4 -vf drawtext=text='X' -c:v libx264 -crf 23 -preset medium -c:a copy -progress pipe:1 -nostats -y out.mp4",
		got)
}

func TestTranscodeSpecStreamCopyWithSeek(t *testing.T) {
	spec := TranscodeSpec{
		Inputs:   []string{"in.mp4"},
		SeekFrom: 9.5,
		Output:   "seg2.mp4",
	}
	got := strings.Join(spec.args(), " ")
	assert.Equal(t, "-ss 9.5 -i in.mp4 -c copy -progress pipe:1 -nostats -y seg2.mp4", got)
}

func TestScanProgressEmitsSeconds(t *testing.T) {
	stream := strings.NewReader(
		"frame=10\nout_time_us=1500000\nprogress=continue\nout_time_us=3000000\nprogress=end\n")
	var got []float64
	scanProgress(stream, func(sec float64) { got = append(got, sec) })
	assert.Equal(t, []float64{1.5, 3.0}, got)
}

func TestScanProgressIgnoresGarbage(t *testing.T) {
	stream := strings.NewReader("out_time_us=notanumber\nout_time_us=-1\nnoequals\n")
	var n int
	scanProgress(stream, func(float64) { n++ })
	assert.Zero(t, n)
}

func TestWriteConcatManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "concat_list.txt")
	require.NoError(t, WriteConcatManifest(path, []string{"/tmp/a_seg1.mp4", "/tmp/a_seg2.mp4"}))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "file '/tmp/a_seg1.mp4'\nfile '/tmp/a_seg2.mp4'\n", string(b))
}

func TestParseInfoCSV(t *testing.T) {
	vi, err := parseInfoCSV("1920x1080x12.34")
	require.NoError(t, err)
	assert.Equal(t, VideoInfo{Width: 1920, Height: 1080, Duration: 12.34}, vi)

	vi, err = parseInfoCSV("640x480xN/A")
	require.NoError(t, err)
	assert.Equal(t, VideoInfo{Width: 640, Height: 480}, vi)

	_, err = parseInfoCSV("bogus")
	assert.Error(t, err)
}

func TestTailKeepsLastLines(t *testing.T) {
	tl := newTail(2)
	tl.consume(strings.NewReader("one\ntwo\nthree\n"))
	assert.Equal(t, "two | three", tl.String())
}
