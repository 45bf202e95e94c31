// Package session holds the per-conversation dialogue state. Sessions are
// process-memory-resident only; nothing survives a restart.
package session

import (
	"sync"
	"time"

	"github.com/you/tg-watermark/internal/jobs"
)

// Namespace partitions the store so a chat can run the live video flow, the
// bulk flow and the PDF flow without stepping on each other.
type Namespace string

const (
	NamespaceSingle Namespace = "single"
	NamespaceBulk   Namespace = "bulk"
	NamespacePDF    Namespace = "pdf"
)

// Mode identifies which input-collection flow a video session follows.
type Mode int

const (
	ModePlain Mode = iota
	ModeTimed
	ModeOverlay
	ModeImage
	ModePreset
)

// Step is the current position in a flow's input-collection sequence.
// Steps only ever advance forward within their flow.
type Step int

const (
	StepAwaitVideo Step = iota
	StepAwaitText
	StepAwaitSize
	StepAwaitColor
	StepAwaitMain
	StepAwaitOverlay
	StepAwaitDuration
	StepAwaitImage

	StepCollectItems
	StepAwaitPreset
	StepAwaitThumbnail
	StepAwaitCaption

	StepCollectPDFs
	StepAwaitLocation
	StepAwaitFindText
	StepAwaitTopLeft
	StepAwaitBottomRight
	StepAwaitPDFText
	StepAwaitPDFSize
	StepAwaitPDFColor

	StepProcessing
)

// Session is the tagged-variant interface stored per (chat, namespace).
type Session interface {
	CurrentStep() Step
	SetStep(Step)
	Touched() time.Time
	Touch()
}

// base guards step and last-seen with its own lock: the dialogue mutates
// them while the store's TTL expiry reads them from another goroutine. The
// flow-specific fields stay unguarded; only the dispatch goroutine touches
// those.
type base struct {
	mu       sync.Mutex
	step     Step
	lastSeen time.Time
}

func (b *base) CurrentStep() Step {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.step
}

func (b *base) SetStep(s Step) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.step = s
}

func (b *base) Touched() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastSeen
}

func (b *base) Touch() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastSeen = time.Now()
}

// VideoSession drives the live flows: plain/timed text watermark, named
// presets, overlay compositing and image watermarking.
type VideoSession struct {
	base
	Mode Mode

	Video   jobs.Attachment
	Overlay jobs.Attachment
	Image   jobs.Attachment

	Text     string
	FontSize int
	Color    string
	Moving   bool
	Duration float64
}

// BulkSession collects an ordered set of videos first, then one parameter set
// applied to every item.
type BulkSession struct {
	base
	Items []jobs.Attachment

	Text         string
	FontSize     int
	Color        string
	SpeedPreset  string
	Thumbnail    *jobs.Attachment
	ExtraCaption string
}

// PDFSession drives the document workflow.
type PDFSession struct {
	base
	Documents []jobs.Attachment

	Location int
	FindText string
	Corners  []jobs.Coord
	Text     string
	TextSize int
	Color    string
}

func NewVideo(mode Mode, step Step) *VideoSession {
	s := &VideoSession{Mode: mode}
	s.SetStep(step)
	s.Touch()
	return s
}

func NewBulk() *BulkSession {
	s := &BulkSession{}
	s.SetStep(StepCollectItems)
	s.Touch()
	return s
}

func NewPDF() *PDFSession {
	s := &PDFSession{}
	s.SetStep(StepCollectPDFs)
	s.Touch()
	return s
}
