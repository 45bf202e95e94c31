package jobs

const (
	TaskWatermarkVideo = "wm:video"
	TaskWatermarkBulk  = "wm:bulk"
	TaskOverlay        = "wm:overlay"
	TaskImageWatermark = "wm:image"
	TaskWatermarkPDF   = "wm:pdf"
)

// Attachment is an ownership-by-reference handle to a not-yet-downloaded
// media item. Bytes are pulled by the pipeline, never by the dialogue.
type Attachment struct {
	FileID string `json:"file_id"`
	Name   string `json:"name,omitempty"`
}

// Coord is a normalized (vertical, horizontal) page position, both in [0,10],
// top-origin as entered by the user.
type Coord struct {
	V float64 `json:"v"`
	H float64 `json:"h"`
}

type WatermarkVideoPayload struct {
	JobID        string      `json:"job_id"`
	ChatID       int64       `json:"chat_id"`
	Namespace    string      `json:"namespace"`
	Video        Attachment  `json:"video"`
	Text         string      `json:"text"`
	FontSize     int         `json:"font_size"`
	Color        string      `json:"color"`
	Moving       bool        `json:"moving"` // timed variant: position oscillates with t mod 30
	SpeedPreset  string      `json:"speed_preset,omitempty"`
	Thumbnail    *Attachment `json:"thumbnail,omitempty"`
	ExtraCaption string      `json:"extra_caption,omitempty"`
}

type WatermarkBulkPayload struct {
	JobID        string       `json:"job_id"`
	ChatID       int64        `json:"chat_id"`
	Namespace    string       `json:"namespace"`
	Items        []Attachment `json:"items"`
	Text         string       `json:"text"`
	FontSize     int          `json:"font_size"`
	Color        string       `json:"color"`
	SpeedPreset  string       `json:"speed_preset"`
	Thumbnail    *Attachment  `json:"thumbnail,omitempty"`
	ExtraCaption string       `json:"extra_caption,omitempty"`
}

type OverlayPayload struct {
	JobID     string     `json:"job_id"`
	ChatID    int64      `json:"chat_id"`
	Namespace string     `json:"namespace"`
	Main      Attachment `json:"main"`
	Overlay   Attachment `json:"overlay"`
	// DurationSec bounds the composite; 0 means the whole video.
	DurationSec float64 `json:"duration_s"`
}

type ImageWatermarkPayload struct {
	JobID     string     `json:"job_id"`
	ChatID    int64      `json:"chat_id"`
	Namespace string     `json:"namespace"`
	Video     Attachment `json:"video"`
	Image     Attachment `json:"image"`
}

type WatermarkPDFPayload struct {
	JobID     string       `json:"job_id"`
	ChatID    int64        `json:"chat_id"`
	Namespace string       `json:"namespace"`
	Documents []Attachment `json:"documents"`
	Location  int          `json:"location"` // 1..8 anchors, 9 OCR cover, 10 rectangle cover
	FindText  string       `json:"find_text,omitempty"`
	Corners   []Coord      `json:"corners,omitempty"` // [top-left, bottom-right] for location 10
	Text      string       `json:"text"`
	TextSize  int          `json:"text_size"`
	Color     string       `json:"color"`
}
