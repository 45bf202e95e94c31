// Package dialog maps inbound chat messages onto per-conversation session
// transitions and, once a flow's inputs are complete, dispatches the job to
// the queue. Validation failures re-prompt without advancing; messages of
// the wrong kind for the current step are ignored.
package dialog

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"github.com/you/tg-watermark/internal/config"
	"github.com/you/tg-watermark/internal/jobs"
	"github.com/you/tg-watermark/internal/session"
)

// Inbound is one normalized chat event. Command is set without the leading
// slash for bot commands; attachments are references, never bytes.
type Inbound struct {
	ChatID   int64
	Command  string
	Text     string
	Video    *jobs.Attachment
	Photo    *jobs.Attachment
	Document *jobs.Attachment
	MIME     string
}

// Outbox sends plain text replies.
type Outbox interface {
	Send(chatID int64, text string) (int, error)
}

// Enqueuer hands a completed input set to the job queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, task string, payload any) error
}

// Admission is the process-wide single-flight gate.
type Admission interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
	RequestStop(ctx context.Context) error
}

// GridSender renders the first page of a document with the coordinate grid
// and delivers it to the chat.
type GridSender interface {
	SendGrid(ctx context.Context, chatID int64, doc jobs.Attachment) error
}

const (
	msgDenied = "You are not authorized to use this command."
	msgBusy   = "Another job is already running. Please try again when it finishes."

	promptVideo       = "Send me the video to watermark."
	promptMain        = "Send the main video."
	promptOverlay     = "Now send the overlay video (green background will be keyed out)."
	promptDuration    = "For how many seconds should the overlay show? Send 0 for the whole video."
	promptImage       = "Now send the watermark image."
	promptText        = "Now send the watermark text."
	promptSize        = "Send the font size (a whole number, e.g. 24)."
	promptColor       = "Pick a color: 1 - black, 2 - white, 3 - red."
	promptBulkStart   = "Send me the videos to watermark. When done, send /watermarkask."
	promptPreset      = "Pick encoding speed: 1 - ultrafast, 2 - fast, 3 - medium, 4 - slow."
	promptThumbnail   = "Send a custom thumbnail photo, or /skip."
	promptCaption     = "Send an extra caption to append, or /skip."
	promptPDFStart    = "Send me the PDF documents to watermark. When done, send /pdfask."
	promptLocation    = "Where should the watermark go?\n1 - top right\n2 - top middle\n3 - top left\n4 - center\n5 - center, rotated 45°\n6 - bottom right\n7 - bottom center\n8 - bottom left\n9 - cover text found by OCR\n10 - cover a rectangle you choose"
	promptFindText    = "Send the text to find and cover."
	promptTopLeft     = "Send the top-left corner as \"vertical,horizontal\", both 0-10 (see the grid)."
	promptBottomRight = "Now send the bottom-right corner as \"vertical,horizontal\"."
	promptPDFText     = "Now send the watermark text."
	promptPDFSize     = "Send the text size (a whole number, e.g. 14)."

	replyCancelled = "Cancelled. All active flows for this chat were cleared."
	replyQueued    = "Got everything. Your job is queued."
	replyStopped   = "Processing flag cleared."

	errSize     = "Font size must be a whole number. Try again."
	errDuration = "Duration must be a non-negative number of seconds. Try again."
	errCoord    = "Coordinates must look like \"2,3\" with both values between 0 and 10. Try again."
	errLocation = "Location must be a number from 1 to 10. Try again."
	errNotPDF   = "That is not a PDF. Send a PDF document."
	errNoItems  = "No videos collected yet. Send /inputwatermark first."
	errNoPDFs   = "No documents collected yet. Send /pdfwatermark first."
)

var usage = strings.Join([]string{
	"Commands:",
	"/watermark - text watermark on a video",
	"/watermarktm - moving text watermark",
	"/overlay - composite an overlay video (green screen)",
	"/imgwatermark - image watermark on a video",
	"/inputwatermark - collect videos for bulk watermarking",
	"/watermarkask - start the bulk parameter questions",
	"/pdfwatermark - collect PDF documents",
	"/pdfask - start the PDF watermark questions",
	"/cancel - abandon all active flows",
}, "\n")

// Dispatcher owns the state machine. One instance serves every chat; the
// store serializes access per conversation.
type Dispatcher struct {
	cfg     config.Config
	store   *session.Store
	out     Outbox
	queue   Enqueuer
	guard   Admission
	grid    GridSender
	restart func()
}

func NewDispatcher(cfg config.Config, store *session.Store, out Outbox, queue Enqueuer, guard Admission, grid GridSender, restart func()) *Dispatcher {
	return &Dispatcher{cfg: cfg, store: store, out: out, queue: queue, guard: guard, grid: grid, restart: restart}
}

// Handle processes one inbound event.
func (d *Dispatcher) Handle(ctx context.Context, in Inbound) {
	if in.Command != "" {
		d.handleCommand(ctx, in)
		return
	}

	// Flow precedence: an active PDF flow suppresses the video flows, a live
	// video flow suppresses bulk collection.
	if s, ok := d.store.Get(session.Key{ChatID: in.ChatID, Namespace: session.NamespacePDF}); ok {
		if p, ok := s.(*session.PDFSession); ok && p.CurrentStep() != session.StepProcessing {
			d.pdfStep(ctx, in, p)
			return
		}
	}
	if s, ok := d.store.Get(session.Key{ChatID: in.ChatID, Namespace: session.NamespaceSingle}); ok {
		if v, ok := s.(*session.VideoSession); ok && v.CurrentStep() != session.StepProcessing {
			d.videoStep(ctx, in, v)
			return
		}
	}
	if s, ok := d.store.Get(session.Key{ChatID: in.ChatID, Namespace: session.NamespaceBulk}); ok {
		if b, ok := s.(*session.BulkSession); ok && b.CurrentStep() != session.StepProcessing {
			d.bulkStep(ctx, in, b)
			return
		}
	}
}

func (d *Dispatcher) handleCommand(ctx context.Context, in Inbound) {
	switch in.Command {
	case "start", "help":
		d.reply(in.ChatID, usage)
	case "cancel":
		d.store.RemoveChat(in.ChatID)
		d.reply(in.ChatID, replyCancelled)
	case "stop":
		if !d.cfg.IsAdmin(in.ChatID) {
			d.reply(in.ChatID, msgDenied)
			return
		}
		if err := d.guard.RequestStop(ctx); err != nil {
			log.Error().Err(err).Msg("clearing processing flag")
		}
		d.reply(in.ChatID, replyStopped)
	case "restart":
		if !d.cfg.IsAdmin(in.ChatID) {
			d.reply(in.ChatID, msgDenied)
			return
		}
		d.reply(in.ChatID, "Restarting.")
		if d.restart != nil {
			d.restart()
		}

	case "watermark":
		d.startVideo(in.ChatID, session.NewVideo(session.ModePlain, session.StepAwaitVideo), promptVideo)
	case "watermarktm":
		d.startVideo(in.ChatID, session.NewVideo(session.ModeTimed, session.StepAwaitVideo), promptVideo)
	case "overlay":
		d.startVideo(in.ChatID, session.NewVideo(session.ModeOverlay, session.StepAwaitMain), promptMain)
	case "imgwatermark":
		d.startVideo(in.ChatID, session.NewVideo(session.ModeImage, session.StepAwaitVideo), promptVideo)

	case "inputwatermark":
		d.store.Put(session.Key{ChatID: in.ChatID, Namespace: session.NamespaceBulk}, session.NewBulk())
		d.reply(in.ChatID, promptBulkStart)
	case "watermarkask":
		d.startBulkAsk(in.ChatID)

	case "pdfwatermark":
		d.store.Put(session.Key{ChatID: in.ChatID, Namespace: session.NamespacePDF}, session.NewPDF())
		d.reply(in.ChatID, promptPDFStart)
	case "pdfask":
		d.startPDFAsk(in.ChatID)

	case "skip":
		d.handleSkip(ctx, in)

	default:
		if p, ok := d.cfg.Presets[strings.ToLower(in.Command)]; ok {
			s := session.NewVideo(session.ModePreset, session.StepAwaitVideo)
			s.Text = p.Text
			s.FontSize = p.FontSize
			s.Color = p.Color
			s.Moving = p.Moving
			d.startVideo(in.ChatID, s, promptVideo)
		}
	}
}

func (d *Dispatcher) startVideo(chatID int64, s *session.VideoSession, prompt string) {
	d.store.Put(session.Key{ChatID: chatID, Namespace: session.NamespaceSingle}, s)
	d.reply(chatID, prompt)
}

func (d *Dispatcher) startBulkAsk(chatID int64) {
	s, ok := d.store.Get(session.Key{ChatID: chatID, Namespace: session.NamespaceBulk})
	b, isBulk := s.(*session.BulkSession)
	if !ok || !isBulk || len(b.Items) == 0 {
		d.reply(chatID, errNoItems)
		return
	}
	b.SetStep(session.StepAwaitText)
	b.Touch()
	d.reply(chatID, promptText)
}

func (d *Dispatcher) startPDFAsk(chatID int64) {
	s, ok := d.store.Get(session.Key{ChatID: chatID, Namespace: session.NamespacePDF})
	p, isPDF := s.(*session.PDFSession)
	if !ok || !isPDF || len(p.Documents) == 0 {
		d.reply(chatID, errNoPDFs)
		return
	}
	p.SetStep(session.StepAwaitLocation)
	p.Touch()
	d.reply(chatID, promptLocation)
}

// handleSkip only has meaning on the optional bulk steps.
func (d *Dispatcher) handleSkip(ctx context.Context, in Inbound) {
	s, ok := d.store.Get(session.Key{ChatID: in.ChatID, Namespace: session.NamespaceBulk})
	if !ok {
		return
	}
	b, isBulk := s.(*session.BulkSession)
	if !isBulk {
		return
	}
	switch b.CurrentStep() {
	case session.StepAwaitThumbnail:
		b.SetStep(session.StepAwaitCaption)
		b.Touch()
		d.reply(in.ChatID, promptCaption)
	case session.StepAwaitCaption:
		d.dispatchBulk(ctx, in.ChatID, b)
	}
}

func (d *Dispatcher) videoStep(ctx context.Context, in Inbound, s *session.VideoSession) {
	switch s.CurrentStep() {
	case session.StepAwaitVideo:
		if in.Video == nil {
			return
		}
		s.Video = *in.Video
		switch s.Mode {
		case session.ModePreset:
			d.dispatchSingle(ctx, in.ChatID, s)
		case session.ModeImage:
			d.advance(in.ChatID, s, session.StepAwaitImage, promptImage)
		default:
			d.advance(in.ChatID, s, session.StepAwaitText, promptText)
		}

	case session.StepAwaitMain:
		if in.Video == nil {
			return
		}
		s.Video = *in.Video
		d.advance(in.ChatID, s, session.StepAwaitOverlay, promptOverlay)

	case session.StepAwaitOverlay:
		if in.Video == nil {
			return
		}
		s.Overlay = *in.Video
		d.advance(in.ChatID, s, session.StepAwaitDuration, promptDuration)

	case session.StepAwaitDuration:
		if in.Text == "" {
			return
		}
		dur, err := strconv.ParseFloat(strings.TrimSpace(in.Text), 64)
		if err != nil || dur < 0 {
			d.reply(in.ChatID, errDuration)
			return
		}
		s.Duration = dur
		d.dispatchSingle(ctx, in.ChatID, s)

	case session.StepAwaitImage:
		att := in.Photo
		if att == nil {
			att = in.Document
		}
		if att == nil {
			return
		}
		s.Image = *att
		d.dispatchSingle(ctx, in.ChatID, s)

	case session.StepAwaitText:
		if strings.TrimSpace(in.Text) == "" {
			return
		}
		s.Text = in.Text
		d.advance(in.ChatID, s, session.StepAwaitSize, promptSize)

	case session.StepAwaitSize:
		if in.Text == "" {
			return
		}
		size, err := strconv.Atoi(strings.TrimSpace(in.Text))
		if err != nil || size <= 0 {
			d.reply(in.ChatID, errSize)
			return
		}
		s.FontSize = size
		d.advance(in.ChatID, s, session.StepAwaitColor, promptColor)

	case session.StepAwaitColor:
		if in.Text == "" {
			return
		}
		s.Color = config.ColorFromChoice(in.Text)
		d.dispatchSingle(ctx, in.ChatID, s)
	}
}

func (d *Dispatcher) bulkStep(ctx context.Context, in Inbound, b *session.BulkSession) {
	switch b.CurrentStep() {
	case session.StepCollectItems:
		if in.Video == nil {
			return
		}
		if len(b.Items) >= d.cfg.MaxBulkItems {
			d.reply(in.ChatID, fmt.Sprintf("Limit of %d videos reached. Send /watermarkask to continue.", d.cfg.MaxBulkItems))
			return
		}
		b.Items = append(b.Items, *in.Video)
		b.Touch()
		d.reply(in.ChatID, fmt.Sprintf("Added video %d. Send more or /watermarkask.", len(b.Items)))

	case session.StepAwaitText:
		if strings.TrimSpace(in.Text) == "" {
			return
		}
		b.Text = in.Text
		d.advance(in.ChatID, b, session.StepAwaitSize, promptSize)

	case session.StepAwaitSize:
		if in.Text == "" {
			return
		}
		size, err := strconv.Atoi(strings.TrimSpace(in.Text))
		if err != nil || size <= 0 {
			d.reply(in.ChatID, errSize)
			return
		}
		b.FontSize = size
		d.advance(in.ChatID, b, session.StepAwaitColor, promptColor)

	case session.StepAwaitColor:
		if in.Text == "" {
			return
		}
		b.Color = config.ColorFromChoice(in.Text)
		d.advance(in.ChatID, b, session.StepAwaitPreset, promptPreset)

	case session.StepAwaitPreset:
		if in.Text == "" {
			return
		}
		b.SpeedPreset = speedFromChoice(in.Text)
		d.advance(in.ChatID, b, session.StepAwaitThumbnail, promptThumbnail)

	case session.StepAwaitThumbnail:
		if in.Photo == nil {
			return
		}
		b.Thumbnail = in.Photo
		d.advance(in.ChatID, b, session.StepAwaitCaption, promptCaption)

	case session.StepAwaitCaption:
		if strings.TrimSpace(in.Text) == "" {
			return
		}
		b.ExtraCaption = in.Text
		d.dispatchBulk(ctx, in.ChatID, b)
	}
}

func (d *Dispatcher) pdfStep(ctx context.Context, in Inbound, p *session.PDFSession) {
	switch p.CurrentStep() {
	case session.StepCollectPDFs:
		if in.Document == nil {
			return
		}
		if in.MIME != "application/pdf" && !strings.HasSuffix(strings.ToLower(in.Document.Name), ".pdf") {
			d.reply(in.ChatID, errNotPDF)
			return
		}
		p.Documents = append(p.Documents, *in.Document)
		p.Touch()
		d.reply(in.ChatID, fmt.Sprintf("Added document %d. Send more or /pdfask.", len(p.Documents)))

	case session.StepAwaitLocation:
		if in.Text == "" {
			return
		}
		loc, err := strconv.Atoi(strings.TrimSpace(in.Text))
		if err != nil || loc < 1 || loc > 10 {
			d.reply(in.ChatID, errLocation)
			return
		}
		p.Location = loc
		switch loc {
		case 9:
			d.advance(in.ChatID, p, session.StepAwaitFindText, promptFindText)
		case 10:
			d.sendGrid(ctx, in.ChatID, p.Documents[0])
			d.advance(in.ChatID, p, session.StepAwaitTopLeft, promptTopLeft)
		default:
			d.advance(in.ChatID, p, session.StepAwaitPDFText, promptPDFText)
		}

	case session.StepAwaitFindText:
		if strings.TrimSpace(in.Text) == "" {
			return
		}
		p.FindText = in.Text
		d.advance(in.ChatID, p, session.StepAwaitPDFText, promptPDFText)

	case session.StepAwaitTopLeft:
		c, ok := parseCoord(in.Text)
		if !ok {
			d.reply(in.ChatID, errCoord)
			return
		}
		p.Corners = []jobs.Coord{c}
		d.advance(in.ChatID, p, session.StepAwaitBottomRight, promptBottomRight)

	case session.StepAwaitBottomRight:
		c, ok := parseCoord(in.Text)
		if !ok {
			d.reply(in.ChatID, errCoord)
			return
		}
		p.Corners = append(p.Corners, c)
		d.advance(in.ChatID, p, session.StepAwaitPDFText, promptPDFText)

	case session.StepAwaitPDFText:
		if strings.TrimSpace(in.Text) == "" {
			return
		}
		p.Text = in.Text
		d.advance(in.ChatID, p, session.StepAwaitPDFSize, promptPDFSize)

	case session.StepAwaitPDFSize:
		if in.Text == "" {
			return
		}
		size, err := strconv.Atoi(strings.TrimSpace(in.Text))
		if err != nil || size <= 0 {
			d.reply(in.ChatID, errSize)
			return
		}
		p.TextSize = size
		d.advance(in.ChatID, p, session.StepAwaitPDFColor, promptColor)

	case session.StepAwaitPDFColor:
		if in.Text == "" {
			return
		}
		p.Color = config.ColorFromChoice(in.Text)
		d.dispatchPDF(ctx, in.ChatID, p)
	}
}

// dispatchSingle enqueues the completed live-flow session.
func (d *Dispatcher) dispatchSingle(ctx context.Context, chatID int64, s *session.VideoSession) {
	jobID := ulid.Make().String()
	var task string
	var payload any
	switch s.Mode {
	case session.ModeOverlay:
		task = jobs.TaskOverlay
		payload = jobs.OverlayPayload{
			JobID: jobID, ChatID: chatID, Namespace: string(session.NamespaceSingle),
			Main: s.Video, Overlay: s.Overlay, DurationSec: s.Duration,
		}
	case session.ModeImage:
		task = jobs.TaskImageWatermark
		payload = jobs.ImageWatermarkPayload{
			JobID: jobID, ChatID: chatID, Namespace: string(session.NamespaceSingle),
			Video: s.Video, Image: s.Image,
		}
	default:
		task = jobs.TaskWatermarkVideo
		payload = jobs.WatermarkVideoPayload{
			JobID: jobID, ChatID: chatID, Namespace: string(session.NamespaceSingle),
			Video: s.Video, Text: s.Text, FontSize: s.FontSize, Color: s.Color,
			Moving: s.Mode == session.ModeTimed || s.Moving,
			SpeedPreset: d.cfg.SpeedPreset,
		}
	}
	d.dispatch(ctx, chatID, session.NamespaceSingle, s, task, payload)
}

func (d *Dispatcher) dispatchBulk(ctx context.Context, chatID int64, b *session.BulkSession) {
	payload := jobs.WatermarkBulkPayload{
		JobID: ulid.Make().String(), ChatID: chatID, Namespace: string(session.NamespaceBulk),
		Items: b.Items, Text: b.Text, FontSize: b.FontSize, Color: b.Color,
		SpeedPreset: b.SpeedPreset, Thumbnail: b.Thumbnail, ExtraCaption: b.ExtraCaption,
	}
	d.dispatch(ctx, chatID, session.NamespaceBulk, b, jobs.TaskWatermarkBulk, payload)
}

func (d *Dispatcher) dispatchPDF(ctx context.Context, chatID int64, p *session.PDFSession) {
	payload := jobs.WatermarkPDFPayload{
		JobID: ulid.Make().String(), ChatID: chatID, Namespace: string(session.NamespacePDF),
		Documents: p.Documents, Location: p.Location, FindText: p.FindText,
		Corners: p.Corners, Text: p.Text, TextSize: p.TextSize, Color: p.Color,
	}
	d.dispatch(ctx, chatID, session.NamespacePDF, p, jobs.TaskWatermarkPDF, payload)
}

// dispatch acquires the guard and enqueues. A busy guard leaves the session
// at its last await step so the final input can simply be re-sent later.
func (d *Dispatcher) dispatch(ctx context.Context, chatID int64, ns session.Namespace, s session.Session, task string, payload any) {
	ok, err := d.guard.TryAcquire(ctx)
	if err != nil {
		log.Error().Err(err).Str("task", task).Msg("guard acquire")
		d.reply(chatID, "Something went wrong, please try again.")
		return
	}
	if !ok {
		d.reply(chatID, msgBusy)
		return
	}

	if err := d.queue.Enqueue(ctx, task, payload); err != nil {
		log.Error().Err(err).Str("task", task).Msg("enqueue")
		if rerr := d.guard.Release(ctx); rerr != nil {
			log.Error().Err(rerr).Msg("guard release after failed enqueue")
		}
		d.store.Remove(session.Key{ChatID: chatID, Namespace: ns})
		d.reply(chatID, "Failed to queue the job. Please start over.")
		return
	}

	s.SetStep(session.StepProcessing)
	s.Touch()
	d.reply(chatID, replyQueued)
}

func (d *Dispatcher) sendGrid(ctx context.Context, chatID int64, doc jobs.Attachment) {
	if d.grid == nil {
		return
	}
	if err := d.grid.SendGrid(ctx, chatID, doc); err != nil {
		log.Error().Err(err).Msg("sending coordinate grid")
	}
}

func (d *Dispatcher) advance(chatID int64, s session.Session, next session.Step, prompt string) {
	s.SetStep(next)
	s.Touch()
	d.reply(chatID, prompt)
}

func (d *Dispatcher) reply(chatID int64, text string) {
	if _, err := d.out.Send(chatID, text); err != nil {
		log.Error().Err(err).Int64("chat", chatID).Msg("sending reply")
	}
}

func speedFromChoice(s string) string {
	switch strings.TrimSpace(s) {
	case "1":
		return "ultrafast"
	case "2":
		return "fast"
	case "3":
		return "medium"
	case "4":
		return "slow"
	default:
		return "medium"
	}
}

func parseCoord(s string) (jobs.Coord, bool) {
	a, b, ok := strings.Cut(s, ",")
	if !ok {
		return jobs.Coord{}, false
	}
	v, err1 := strconv.ParseFloat(strings.TrimSpace(a), 64)
	h, err2 := strconv.ParseFloat(strings.TrimSpace(b), 64)
	if err1 != nil || err2 != nil {
		return jobs.Coord{}, false
	}
	if v < 0 || v > 10 || h < 0 || h > 10 {
		return jobs.Coord{}, false
	}
	return jobs.Coord{V: v, H: h}, true
}
