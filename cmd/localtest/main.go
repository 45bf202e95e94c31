package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/you/tg-watermark/internal/config"
	"github.com/you/tg-watermark/internal/ffmpeg"
	"github.com/you/tg-watermark/internal/logx"
)

// Runs the text-watermark transform on a local file, no Telegram involved.
func main() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: go run ./cmd/localtest <input.mp4> <text> <size> [color 1|2|3] [tm]")
		return
	}
	_ = godotenv.Load()
	cfg := config.Load()
	logx.Setup(logx.FromEnv("localtest"))

	in := os.Args[1]
	text := os.Args[2]
	size, err := strconv.Atoi(os.Args[3])
	if err != nil || size <= 0 {
		fmt.Println("size must be a positive integer")
		os.Exit(1)
	}
	color := "white"
	if len(os.Args) > 4 {
		color = config.ColorFromChoice(os.Args[4])
	}
	moving := len(os.Args) > 5 && os.Args[5] == "tm"

	ctx := context.Background()
	ff := ffmpeg.NewRunner(cfg.FFmpegPath, cfg.FFprobePath)

	dur, err := ff.Duration(ctx, in)
	if err != nil {
		fmt.Println("probe failed:", err)
		os.Exit(1)
	}
	fmt.Printf("duration: %.1fs\n", dur)

	out := "out_watermarked.mp4"
	filter := ffmpeg.DrawText{Text: text, FontSize: size, Color: color, Moving: moving}
	err = ff.Transcode(ctx, ffmpeg.TranscodeSpec{
		Inputs:    []string{in},
		VF:        filter.Expr(),
		Codec:     "libx264",
		CRF:       cfg.CRF,
		Preset:    cfg.SpeedPreset,
		CopyAudio: true,
		Output:    out,
	}, func(sec float64) {
		if dur > 0 {
			fmt.Printf("\rprocessing: %3.0f%%", sec/dur*100)
		}
	})
	fmt.Println()
	if err != nil {
		fmt.Println("transform failed:", err)
		os.Exit(1)
	}
	fmt.Println("wrote", out)
}
