package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/you/tg-watermark/internal/config"
	"github.com/you/tg-watermark/internal/dialog"
	"github.com/you/tg-watermark/internal/ffmpeg"
	"github.com/you/tg-watermark/internal/guard"
	"github.com/you/tg-watermark/internal/jobs"
	"github.com/you/tg-watermark/internal/logx"
	"github.com/you/tg-watermark/internal/pdfmark"
	"github.com/you/tg-watermark/internal/pipeline"
	"github.com/you/tg-watermark/internal/session"
	"github.com/you/tg-watermark/internal/tg"
	"github.com/you/tg-watermark/internal/worker"
)

var rctx = context.Background()

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logx.Setup(logx.FromEnv("bot"))
	log.Info().Msg("bot starting")

	if cfg.BotToken == "" {
		log.Fatal().Msg("BOT_TOKEN is required")
	}

	// health endpoint
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`{"ok":true}`)) })
		log.Info().Msg("bot health on :8080/health")
		log.Error().Err(http.ListenAndServe(":8080", nil)).Msg("health endpoint stopped")
	}()

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Fatal().Err(err).Msg("telegram auth")
	}
	bot.Debug = false
	log.Info().Str("username", bot.Self.UserName).Msg("bot authorized")

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	g := guard.New(rdb)
	asClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer asClient.Close()

	gateway := tg.NewGateway(bot, cfg.BotToken)
	ff := ffmpeg.NewRunner(cfg.FFmpegPath, cfg.FFprobePath)
	pdf := &pdfmark.Runner{Pdftoppm: cfg.PdftoppmPath, Tesseract: cfg.TesseractPath, DPI: cfg.RasterDPI}

	store := session.NewStore()

	pipe := pipeline.New(cfg, gateway, ff, pdf, g)
	w := worker.New(pipe, store, g)

	// the worker runs embedded so a finished pipeline can clear its session
	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		asynq.Config{Concurrency: cfg.Concurrency},
	)
	if err := srv.Start(w.Mux()); err != nil {
		log.Fatal().Err(err).Msg("starting worker")
	}
	defer srv.Shutdown()

	d := dialog.NewDispatcher(
		cfg, store, gateway,
		&queueClient{c: asClient},
		g,
		&gridSender{gw: gateway, pdf: pdf, dataDir: cfg.DataDir},
		func() {
			log.Info().Msg("restart requested, exiting")
			os.Exit(0)
		},
	)

	// Session state is only ever touched from this loop: debounced albums
	// and TTL expiry funnel back in through the select instead of running
	// on their own goroutines.
	events := make(chan dialog.Inbound, 128)
	s := &server{dispatch: d, events: events, groups: make(map[string]*groupState)}

	sweep := time.NewTicker(time.Minute)
	defer sweep.Stop()
	ttl := time.Duration(cfg.SessionTTLMin) * time.Minute

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	for {
		select {
		case upd, ok := <-updates:
			if !ok {
				return
			}
			if upd.Message != nil {
				s.onMessage(upd.Message)
			}
		case in := <-events:
			s.dispatch.Handle(rctx, in)
		case <-sweep.C:
			store.Expire(ttl)
		}
	}
}

// queueClient adapts the asynq client to the dialogue's enqueue seam. Jobs
// are never retried: a failed pipeline already reported to the user and
// released the guard.
type queueClient struct {
	c *asynq.Client
}

func (q *queueClient) Enqueue(ctx context.Context, task string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = q.c.EnqueueContext(ctx, asynq.NewTask(task, b), asynq.MaxRetry(0))
	return err
}

// gridSender renders the first page of a document with the 0-10 coordinate
// grid and sends it to the chat.
type gridSender struct {
	gw      *tg.Gateway
	pdf     *pdfmark.Runner
	dataDir string
}

func (g *gridSender) SendGrid(ctx context.Context, chatID int64, doc jobs.Attachment) error {
	dir := filepath.Join(g.dataDir, "jobs", "grid_"+ulid.Make().String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "input.pdf")
	if err := g.gw.Download(ctx, doc.FileID, in, nil); err != nil {
		return err
	}
	out := filepath.Join(dir, "grid.jpg")
	if err := g.pdf.AnnotateGrid(ctx, in, dir, out); err != nil {
		return err
	}
	return g.gw.SendPhoto(chatID, out, "Coordinates are vertical,horizontal on this 0-10 grid.")
}

// server owns the update loop state: the dispatcher plus the media-group
// aggregator that debounces album uploads.
type server struct {
	dispatch *dialog.Dispatcher
	events   chan<- dialog.Inbound

	gmu    sync.Mutex
	groups map[string]*groupState
}

type groupState struct {
	items []dialog.Inbound
	timer *time.Timer
}

func (s *server) onMessage(m *tgbotapi.Message) {
	log.Info().Int64("chat_id", m.Chat.ID).Int64("user_id", m.From.ID).Msg("message received")

	in := toInbound(m)

	// Album items arrive as separate messages; debounce so the whole album
	// lands in the session in order before any follow-up command.
	if m.MediaGroupID != "" && in.Video != nil {
		s.addToGroup(m.Chat.ID, m.MediaGroupID, in)
		return
	}

	s.dispatch.Handle(rctx, in)
}

func (s *server) addToGroup(chatID int64, mgid string, in dialog.Inbound) {
	key := fmt.Sprintf("%d:%s", chatID, mgid)

	s.gmu.Lock()
	defer s.gmu.Unlock()

	g, ok := s.groups[key]
	if !ok {
		g = &groupState{}
		s.groups[key] = g
	}
	g.items = append(g.items, in)

	if g.timer != nil {
		g.timer.Stop()
	}
	g.timer = time.AfterFunc(2*time.Second, func() {
		s.finalizeGroup(key)
	})
}

func (s *server) finalizeGroup(key string) {
	s.gmu.Lock()
	g, ok := s.groups[key]
	if ok {
		delete(s.groups, key)
	}
	s.gmu.Unlock()
	if !ok {
		return
	}

	// This runs on the debounce timer's goroutine; hand the items to the
	// update loop rather than dispatching from here.
	log.Info().Int("count", len(g.items)).Msg("album collected")
	for _, in := range g.items {
		s.events <- in
	}
}

// toInbound normalizes a Telegram message into the dialogue's event shape.
func toInbound(m *tgbotapi.Message) dialog.Inbound {
	in := dialog.Inbound{ChatID: m.Chat.ID, Text: m.Text}
	if m.IsCommand() {
		in.Command = strings.ToLower(m.Command())
		in.Text = ""
		return in
	}
	if m.Video != nil {
		in.Video = &jobs.Attachment{FileID: m.Video.FileID, Name: m.Video.FileName}
	} else if m.Document != nil && strings.HasPrefix(strings.ToLower(m.Document.MimeType), "video/") {
		in.Video = &jobs.Attachment{FileID: m.Document.FileID, Name: m.Document.FileName}
	}
	if len(m.Photo) > 0 {
		best := m.Photo[len(m.Photo)-1]
		in.Photo = &jobs.Attachment{FileID: best.FileID}
	}
	if m.Document != nil && in.Video == nil {
		in.Document = &jobs.Attachment{FileID: m.Document.FileID, Name: m.Document.FileName}
		in.MIME = m.Document.MimeType
	}
	return in
}
