// Package tg wraps the Telegram transport behind the small surface the
// dialogue and pipelines actually need: send/edit text, download an
// attachment by reference, upload an artifact — both transfers with byte
// progress.
package tg

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

type Gateway struct {
	bot   *tgbotapi.BotAPI
	token string
	http  *http.Client
}

func NewGateway(bot *tgbotapi.BotAPI, token string) *Gateway {
	return &Gateway{
		bot:   bot,
		token: token,
		http:  &http.Client{Timeout: 30 * time.Minute},
	}
}

// Send delivers a plain text message and returns its message id for edits.
func (g *Gateway) Send(chatID int64, text string) (int, error) {
	m, err := g.bot.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		return 0, err
	}
	return m.MessageID, nil
}

// Edit replaces a message's text. A "message is not modified" response is a
// benign no-op, not an error.
func (g *Gateway) Edit(chatID int64, messageID int, text string) error {
	_, err := g.bot.Send(tgbotapi.NewEditMessageText(chatID, messageID, text))
	if err != nil && strings.Contains(err.Error(), "message is not modified") {
		return nil
	}
	return err
}

// Download fetches an attachment by file id into destPath, reporting
// (received, total) bytes through onProgress.
func (g *Gateway) Download(ctx context.Context, fileID, destPath string, onProgress func(cur, total int64)) error {
	f, err := g.bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return fmt.Errorf("resolving file %s: %w", fileID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.Link(g.token), nil)
	if err != nil {
		return err
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("file download: unexpected status %s", resp.Status)
	}

	total := resp.ContentLength
	if total <= 0 {
		total = int64(f.FileSize)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer out.Close()

	src := io.Reader(resp.Body)
	if onProgress != nil {
		src = &countingReader{r: resp.Body, total: total, report: onProgress}
	}
	if _, err := io.Copy(out, src); err != nil {
		return fmt.Errorf("writing %s: %w", destPath, err)
	}
	return nil
}

// VideoMeta carries the probe results attached to an uploaded video.
type VideoMeta struct {
	DurationSec int
	Width       int
	Height      int
}

// UploadVideo sends a video artifact with caption, optional thumbnail and
// byte progress.
func (g *Gateway) UploadVideo(chatID int64, path, caption string, meta VideoMeta, thumbPath string, onProgress func(cur, total int64)) error {
	file, size, err := openCounted(path, onProgress)
	if err != nil {
		return err
	}
	defer file.Close()

	v := tgbotapi.NewVideo(chatID, tgbotapi.FileReader{Name: filepath.Base(path), Reader: file.reader(size)})
	v.Caption = caption
	v.Duration = meta.DurationSec
	v.SupportsStreaming = true
	if thumbPath != "" {
		v.Thumb = tgbotapi.FilePath(thumbPath)
	}
	log.Debug().Int("w", meta.Width).Int("h", meta.Height).Str("path", path).Msg("uploading video")
	_, err = g.bot.Send(v)
	return err
}

// UploadDocument sends a document artifact with byte progress.
func (g *Gateway) UploadDocument(chatID int64, path, caption string, onProgress func(cur, total int64)) error {
	file, size, err := openCounted(path, onProgress)
	if err != nil {
		return err
	}
	defer file.Close()

	d := tgbotapi.NewDocument(chatID, tgbotapi.FileReader{Name: filepath.Base(path), Reader: file.reader(size)})
	d.Caption = caption
	_, err = g.bot.Send(d)
	return err
}

// SendPhoto delivers an image from disk (used for the PDF coordinate grid).
func (g *Gateway) SendPhoto(chatID int64, path, caption string) error {
	p := tgbotapi.NewPhoto(chatID, tgbotapi.FilePath(path))
	p.Caption = caption
	_, err := g.bot.Send(p)
	return err
}

type countedFile struct {
	f        *os.File
	progress func(cur, total int64)
}

func openCounted(path string, onProgress func(cur, total int64)) (*countedFile, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return &countedFile{f: f, progress: onProgress}, st.Size(), nil
}

func (c *countedFile) reader(total int64) io.Reader {
	if c.progress == nil {
		return c.f
	}
	return &countingReader{r: c.f, total: total, report: c.progress}
}

func (c *countedFile) Close() error { return c.f.Close() }

type countingReader struct {
	r      io.Reader
	read   int64
	total  int64
	report func(cur, total int64)
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.read += int64(n)
		c.report(c.read, c.total)
	}
	return n, err
}
