package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// ErrNotConfigured is returned when no bot token or no chat target is set.
var ErrNotConfigured = errors.New("telegram not configured")

const (
	DefaultAPIURL = "https://api.telegram.org"
	// maxCaptionRunes is the Bot API caption limit.
	maxCaptionRunes = 1024
)

type Config struct {
	APIURL  string
	Timeout time.Duration
}

// Messenger sends text and files to one chat at a time. Each call may fail
// independently per target.
type Messenger interface {
	SendText(ctx context.Context, chatID, text string) error
	SendDocument(ctx context.Context, chatID, filename string, data []byte, caption string) error
}

// Client talks to the Bot API. The bot token is picked per call site since it
// may change at runtime through the admin settings.
type Client struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config) *Client {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")

	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// Bot returns a Messenger bound to token.
func (c *Client) Bot(token string) (*Bot, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: missing bot token", ErrNotConfigured)
	}
	return &Bot{client: c, token: token}, nil
}

// Messenger is Bot behind the Messenger interface. It returns a nil interface
// on error.
func (c *Client) Messenger(token string) (Messenger, error) {
	b, err := c.Bot(token)
	if err != nil {
		return nil, err
	}
	return b, nil
}

type Bot struct {
	client *Client
	token  string
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

type textMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

func (b *Bot) SendText(ctx context.Context, chatID, text string) error {
	body, err := json.Marshal(textMessage{ChatID: chatID, Text: text, DisableWebPagePreview: true})
	if err != nil {
		return fmt.Errorf("failed to marshal telegram message: %w", err)
	}
	return b.call(ctx, "sendMessage", "application/json", bytes.NewReader(body))
}

func (b *Bot) SendDocument(ctx context.Context, chatID, filename string, data []byte, caption string) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("chat_id", chatID); err != nil {
		return fmt.Errorf("failed to write chat_id: %w", err)
	}
	if err := w.WriteField("caption", TruncateCaption(caption)); err != nil {
		return fmt.Errorf("failed to write caption: %w", err)
	}
	part, err := w.CreateFormFile("document", filename)
	if err != nil {
		return fmt.Errorf("failed to create document part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close multipart body: %w", err)
	}

	return b.call(ctx, "sendDocument", w.FormDataContentType(), &buf)
}

func (b *Bot) call(ctx context.Context, method, contentType string, body io.Reader) error {
	url := fmt.Sprintf("%s/bot%s/%s", b.client.cfg.APIURL, b.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := b.client.http.Do(req)
	if err != nil {
		// The URL carries the token.
		return fmt.Errorf("telegram %s failed: %w", method, redact(err, b.token))
	}
	defer func() { _ = resp.Body.Close() }()

	var out apiResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 || decodeErr != nil || !out.OK {
		if out.Description != "" {
			return fmt.Errorf("telegram %s failed: %s", method, out.Description)
		}
		return fmt.Errorf("telegram %s failed: %s", method, http.StatusText(resp.StatusCode))
	}
	return nil
}

// TruncateCaption cuts caption to the Bot API limit on a rune boundary.
func TruncateCaption(caption string) string {
	r := []rune(caption)
	if len(r) <= maxCaptionRunes {
		return caption
	}
	return string(r[:maxCaptionRunes])
}

func redact(err error, token string) error {
	msg := err.Error()
	if !strings.Contains(msg, token) {
		return err
	}
	return errors.New(strings.ReplaceAll(msg, token, "***"))
}
