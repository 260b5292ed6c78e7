package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"adstudio/internal/ad"
)

const (
	maxMessageBytes = 4096
	maxCaptionBytes = 1024
)

type Options struct {
	Token      string
	HTTPClient *http.Client
	Logger     *slog.Logger
	Debug      bool
	// MaxDownloadBytes caps a single file download. Zero means 20MB, the
	// Bot API download limit.
	MaxDownloadBytes int64
}

type Client struct {
	bot         *tgbotapi.BotAPI
	httpClient  *http.Client
	logger      *slog.Logger
	maxDownload int64
}

type (
	Update   = tgbotapi.Update
	Keyboard = tgbotapi.InlineKeyboardMarkup
)

func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if opts.HTTPClient == nil {
		return nil, errors.New("http client is nil")
	}

	bot, err := tgbotapi.NewBotAPIWithClient(opts.Token, tgbotapi.APIEndpoint, opts.HTTPClient)
	if err != nil {
		return nil, err
	}
	bot.Debug = opts.Debug

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	maxDownload := opts.MaxDownloadBytes
	if maxDownload <= 0 {
		maxDownload = 20 << 20
	}

	return &Client{
		bot:         bot,
		httpClient:  opts.HTTPClient,
		logger:      logger,
		maxDownload: maxDownload,
	}, nil
}

func (c *Client) Username() string {
	return c.bot.Self.UserName
}

type UpdatesOptions struct {
	Timeout time.Duration
}

func (c *Client) Updates(opts UpdatesOptions) tgbotapi.UpdatesChannel {
	u := tgbotapi.NewUpdate(0)
	if opts.Timeout > 0 {
		u.Timeout = int(opts.Timeout.Seconds())
	} else {
		u.Timeout = 30
	}
	u.AllowedUpdates = []string{"message", "callback_query"}
	return c.bot.GetUpdatesChan(u)
}

func (c *Client) StopUpdates() {
	c.bot.StopReceivingUpdates()
}

func (c *Client) SendTyping(chatID int64) {
	_, _ = c.bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))
}

func (c *Client) SendUploadPhoto(chatID int64) {
	_, _ = c.bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatUploadPhoto))
}

func (c *Client) SendText(chatID int64, text string) error {
	for _, p := range splitByBytes(text, maxMessageBytes) {
		if _, err := c.bot.Send(tgbotapi.NewMessage(chatID, p)); err != nil {
			return err
		}
	}
	return nil
}

// SendTextWithKeyboard sends text with an inline keyboard attached to the last
// chunk and returns that message id.
func (c *Client) SendTextWithKeyboard(chatID int64, text string, kb Keyboard) (int, error) {
	parts := splitByBytes(text, maxMessageBytes)
	var msgID int
	for i, p := range parts {
		msg := tgbotapi.NewMessage(chatID, p)
		if i == len(parts)-1 && len(kb.InlineKeyboard) > 0 {
			msg.ReplyMarkup = kb
		}
		sent, err := c.bot.Send(msg)
		if err != nil {
			return 0, err
		}
		msgID = sent.MessageID
	}
	return msgID, nil
}

func (c *Client) EditTextWithKeyboard(chatID int64, messageID int, text string, kb Keyboard) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, truncateByBytes(text, maxMessageBytes))
	if len(kb.InlineKeyboard) > 0 {
		edit.ReplyMarkup = &kb
	}
	_, err := c.bot.Request(edit)
	return err
}

// ClearKeyboard removes the inline keyboard from an earlier message.
func (c *Client) ClearKeyboard(chatID int64, messageID int) error {
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, tgbotapi.InlineKeyboardMarkup{
		InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{},
	})
	_, err := c.bot.Request(edit)
	return err
}

func (c *Client) AnswerCallback(callbackID, text string, alert bool) error {
	cfg := tgbotapi.NewCallback(callbackID, text)
	if alert {
		cfg = tgbotapi.NewCallbackWithAlert(callbackID, text)
	}
	_, err := c.bot.Request(cfg)
	return err
}

// SendPhoto uploads an image with an optional caption and keyboard.
func (c *Client) SendPhoto(chatID int64, img ad.Image, name, caption string, kb *Keyboard) (int, error) {
	if img.Empty() {
		return 0, errors.New("photo is empty")
	}
	if name == "" {
		name = "image.png"
		if img.MIMEType == ad.MIMEJPEG {
			name = "image.jpg"
		}
	}

	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{
		Name:  name,
		Bytes: img.Data,
	})
	if caption != "" {
		photo.Caption = truncateByBytes(caption, maxCaptionBytes)
	}
	if kb != nil && len(kb.InlineKeyboard) > 0 {
		photo.ReplyMarkup = *kb
	}

	sent, err := c.bot.Send(photo)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

// DownloadImage fetches a file the user sent and detects its media type.
func (c *Client) DownloadImage(ctx context.Context, fileID string) (ad.Image, error) {
	fileURL, err := c.bot.GetFileDirectURL(fileID)
	if err != nil {
		return ad.Image{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return ad.Image{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ad.Image{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return ad.Image{}, fmt.Errorf("telegram file download %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxDownload+1))
	if err != nil {
		return ad.Image{}, err
	}
	if int64(len(data)) > c.maxDownload {
		return ad.Image{}, fmt.Errorf("telegram file exceeds %d bytes", c.maxDownload)
	}

	return ad.Image{
		Data:     data,
		MIMEType: ad.DetectMIMEType(resp.Header.Get("content-type"), data),
	}, nil
}

func splitByBytes(text string, maxBytes int) []string {
	if len(text) <= maxBytes || maxBytes <= 0 {
		return []string{text}
	}

	var out []string
	var buf strings.Builder
	buf.Grow(maxBytes)

	for _, r := range text {
		runeBytes := utf8.RuneLen(r)
		if runeBytes < 0 {
			runeBytes = len(string(r))
		}

		if buf.Len() > 0 && buf.Len()+runeBytes > maxBytes {
			out = append(out, buf.String())
			buf.Reset()
		}
		buf.WriteRune(r)
	}

	if buf.Len() > 0 {
		out = append(out, buf.String())
	}

	return out
}

func truncateByBytes(text string, maxBytes int) string {
	if len(text) <= maxBytes || maxBytes <= 0 {
		return text
	}

	var buf strings.Builder
	buf.Grow(maxBytes)
	for _, r := range text {
		runeBytes := utf8.RuneLen(r)
		if runeBytes < 0 {
			runeBytes = len(string(r))
		}

		if buf.Len()+runeBytes > maxBytes {
			break
		}
		buf.WriteRune(r)
	}
	return buf.String()
}
