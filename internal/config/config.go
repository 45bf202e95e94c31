package config

import (
	"os"
	"strconv"
	"strings"
)

// Preset is a trigger command with text/size/color baked in, so the dialogue
// only has to collect the video.
type Preset struct {
	Text     string
	FontSize int
	Color    string
	Moving   bool
}

type Config struct {
	BotToken  string
	RedisAddr string
	DataDir   string

	FFmpegPath    string
	FFprobePath   string
	TesseractPath string
	PdftoppmPath  string

	AdminIDs []int64

	UploadLimitBytes int64
	CRF              int
	SpeedPreset      string
	ProgressStepPct  int
	RasterDPI        int
	SessionTTLMin    int
	MaxBulkItems     int
	Concurrency      int

	Presets map[string]Preset
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func mustInt64List(k string) []int64 {
	var out []int64
	for _, p := range strings.Split(os.Getenv(k), ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if n, err := strconv.ParseInt(p, 10, 64); err == nil {
			out = append(out, n)
		}
	}
	return out
}

// parsePresets reads "name=text|size|color[|tm];name2=..." from env.
// Color is the same 1/2/3 choice the dialogue uses.
func parsePresets(raw string) map[string]Preset {
	out := make(map[string]Preset)
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, rest, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		parts := strings.Split(rest, "|")
		if len(parts) < 3 {
			continue
		}
		size, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil || size <= 0 {
			continue
		}
		p := Preset{
			Text:     strings.TrimSpace(parts[0]),
			FontSize: size,
			Color:    ColorFromChoice(strings.TrimSpace(parts[2])),
		}
		if len(parts) > 3 && strings.EqualFold(strings.TrimSpace(parts[3]), "tm") {
			p.Moving = true
		}
		out[strings.ToLower(strings.TrimSpace(name))] = p
	}
	return out
}

// ColorFromChoice maps the dialogue's color choice to an ffmpeg/PDF color
// name. Anything unrecognized falls back to white so the flow never blocks.
func ColorFromChoice(s string) string {
	switch strings.TrimSpace(s) {
	case "1":
		return "black"
	case "2":
		return "white"
	case "3":
		return "red"
	default:
		return "white"
	}
}

func Load() Config {
	mb := mustInt("TG_UPLOAD_LIMIT_MB", 49)
	return Config{
		BotToken:  os.Getenv("BOT_TOKEN"),
		RedisAddr: getenv("REDIS_ADDR", "localhost:6379"),
		DataDir:   getenv("DATA_DIR", "/data"),

		FFmpegPath:    getenv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:   getenv("FFPROBE_PATH", "ffprobe"),
		TesseractPath: getenv("TESSERACT_PATH", "tesseract"),
		PdftoppmPath:  getenv("PDFTOPPM_PATH", "pdftoppm"),

		AdminIDs: mustInt64List("ADMIN_IDS"),

		UploadLimitBytes: int64(mb) * 1024 * 1024,
		CRF:              mustInt("VIDEO_CRF", 23),
		SpeedPreset:      getenv("VIDEO_PRESET", "medium"),
		ProgressStepPct:  mustInt("PROGRESS_STEP_PCT", 5),
		RasterDPI:        mustInt("RASTER_DPI", 150),
		SessionTTLMin:    mustInt("SESSION_TTL_MIN", 30),
		MaxBulkItems:     mustInt("MAX_BULK_ITEMS", 10),
		Concurrency:      mustInt("CONCURRENCY", 1),

		Presets: parsePresets(os.Getenv("WM_PRESETS")),
	}
}

// IsAdmin reports whether the identity is on the operator allowlist.
func (c Config) IsAdmin(id int64) bool {
	for _, a := range c.AdminIDs {
		if a == id {
			return true
		}
	}
	return false
}
