package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"

	"adstudio/internal/ad"
	"adstudio/internal/mediagroup"
	"adstudio/internal/session"
	"adstudio/internal/telegram"
	"adstudio/internal/view"
)

// Messenger is the part of the Bot API the conversation needs.
type Messenger interface {
	SendTyping(chatID int64)
	SendUploadPhoto(chatID int64)
	SendText(chatID int64, text string) error
	SendTextWithKeyboard(chatID int64, text string, kb telegram.Keyboard) (int, error)
	EditTextWithKeyboard(chatID int64, messageID int, text string, kb telegram.Keyboard) error
	ClearKeyboard(chatID int64, messageID int) error
	AnswerCallback(callbackID, text string, alert bool) error
	SendPhoto(chatID int64, img ad.Image, name, caption string, kb *telegram.Keyboard) (int, error)
	DownloadImage(ctx context.Context, fileID string) (ad.Image, error)
}

type Options struct {
	Telegram Messenger
	Limits   ad.Limits
	Logger   *slog.Logger
}

type Handler struct {
	tg         Messenger
	limits     ad.Limits
	sessions   *session.Store
	drafts     *DraftStore
	logger     *slog.Logger
	aggregator *mediagroup.Aggregator
}

func New(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	limits := opts.Limits
	if limits.ProductImageBytes <= 0 && limits.LogoBytes <= 0 {
		limits = ad.DefaultLimits
	}

	return &Handler{
		tg:     opts.Telegram,
		limits: limits,
		drafts: NewDraftStore(),
		logger: logger,
	}
}

// SetSessions attaches the view registry. The registry's OnChange should be
// wired to OnViewChange.
func (h *Handler) SetSessions(s *session.Store) {
	h.sessions = s
}

// SweepDrafts drops chat drafts untouched since before cutoff.
func (h *Handler) SweepDrafts(cutoff time.Time) int {
	return h.drafts.Sweep(cutoff)
}

func (h *Handler) SetMediaGroupAggregator(ag *mediagroup.Aggregator) {
	h.aggregator = ag
}

func (h *Handler) HandleUpdate(ctx context.Context, update telegram.Update) error {
	if update.CallbackQuery != nil {
		return h.handleCallback(ctx, update.CallbackQuery)
	}
	if update.Message == nil || update.Message.Chat == nil {
		return nil
	}

	msg := update.Message
	chatID := msg.Chat.ID
	var userID int64
	if msg.From != nil {
		userID = msg.From.ID
	}

	if msg.IsCommand() {
		return h.handleCommand(ctx, chatID, userID, msg)
	}

	if fileID, ok := imageFileID(msg); ok {
		if msg.MediaGroupID != "" && h.aggregator != nil {
			h.aggregator.Add(mediagroup.Item{
				ChatID:       chatID,
				UserID:       userID,
				MessageID:    msg.MessageID,
				MediaGroupID: msg.MediaGroupID,
				Caption:      msg.Caption,
				FileID:       fileID,
			})
			return nil
		}
		return h.processPhotos(ctx, chatID, userID, msg.Caption, []string{fileID})
	}

	if msg.Text != "" {
		return h.handleText(ctx, chatID, userID, msg.Text)
	}

	return nil
}

func (h *Handler) HandleMediaGroup(ctx context.Context, group mediagroup.Group) {
	if err := h.processPhotos(ctx, group.ChatID, group.UserID, group.Caption, group.FileIDs); err != nil {
		h.logger.Error("media group processing failed", "chat", group.ChatID, "err", err)
	}
}

func (h *Handler) handleCommand(ctx context.Context, chatID, userID int64, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start", "new":
		if err := h.machine(ctx, chatID).Reset(); err != nil {
			return h.tg.SendText(chatID, resetRefusedText(err))
		}
		h.drafts.Reset(chatID)
		return h.tg.SendText(chatID, welcomeText())
	case "help":
		return h.tg.SendText(chatID, welcomeText())
	case "styles":
		return h.tg.SendText(chatID, stylesText())
	case "cancel":
		var was bool
		h.drafts.Update(chatID, func(d *Draft) {
			was = d.AwaitingFeedback
			d.AwaitingFeedback = false
		})
		if !was {
			return h.tg.SendText(chatID, "Nothing to cancel.")
		}
		return h.tg.SendText(chatID, "Okay, feedback cancelled.")
	default:
		return h.tg.SendText(chatID, "Unknown command. Use /help.")
	}
}

func (h *Handler) handleText(ctx context.Context, chatID, userID int64, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	d := h.drafts.Get(chatID)
	if d.AwaitingFeedback {
		return h.submitFeedback(ctx, chatID, d, text)
	}

	m := h.machine(ctx, chatID)
	if _, ok := m.State().(view.Form); !ok {
		return h.tg.SendText(chatID, "Send /new to start over with another product.")
	}

	fields, err := parseCaption(text)
	if err != nil {
		return h.tg.SendText(chatID, captionHelp)
	}
	d = h.drafts.Update(chatID, func(d *Draft) { d.apply(fields) })
	if d.Image.Empty() {
		return h.tg.SendText(chatID, "📷 Got it. Now send the product photo.")
	}
	return h.askStyle(chatID, userID, d)
}

func (h *Handler) submitFeedback(ctx context.Context, chatID int64, d Draft, feedback string) error {
	m := h.machine(ctx, chatID)

	var err error
	if d.FeedbackIndex < 0 {
		err = m.RegenerateAll(ctx, feedback)
	} else {
		err = m.RegenerateOne(ctx, d.FeedbackIndex, feedback)
	}

	var verr *ad.ValidationError
	switch {
	case err == nil:
		h.drafts.Update(chatID, func(d *Draft) { d.AwaitingFeedback = false })
		return nil
	case errors.As(err, &verr):
		return h.tg.SendText(chatID, verr.Message)
	default:
		h.drafts.Update(chatID, func(d *Draft) { d.AwaitingFeedback = false })
		return h.tg.SendText(chatID, busyText(err))
	}
}

// processPhotos stores the product photo, and the logo when a second photo
// came in the same album, then asks for a style.
func (h *Handler) processPhotos(ctx context.Context, chatID, userID int64, caption string, fileIDs []string) error {
	if len(fileIDs) == 0 {
		return nil
	}

	m := h.machine(ctx, chatID)
	if _, ok := m.State().(view.Form); !ok {
		return h.tg.SendText(chatID, "Send /new to start over with another product.")
	}

	if len(fileIDs) > 2 {
		_ = h.tg.SendText(chatID, "Only the first two photos are used: the product and the logo.")
		fileIDs = fileIDs[:2]
	}

	h.tg.SendTyping(chatID)

	images := make([]ad.Image, len(fileIDs))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, fileID := range fileIDs {
		eg.Go(func() error {
			img, err := h.tg.DownloadImage(egCtx, fileID)
			if err != nil {
				return err
			}
			images[i] = img
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		h.logger.Error("photo download failed", "chat", chatID, "err", err)
		return h.tg.SendText(chatID, "❌ Could not download the photo. Please send it again.")
	}

	product, err := h.limits.ReadProductImage(bytes.NewReader(images[0].Data), images[0].MIMEType)
	if err != nil {
		return h.tg.SendText(chatID, "❌ "+err.Error())
	}
	var logo *ad.Image
	if len(images) > 1 {
		img, err := h.limits.ReadLogo(bytes.NewReader(images[1].Data), images[1].MIMEType)
		if err != nil {
			return h.tg.SendText(chatID, "❌ "+err.Error())
		}
		logo = &img
	}

	var fields captionFields
	if strings.TrimSpace(caption) != "" {
		fields, err = parseCaption(caption)
		if err != nil {
			return h.tg.SendText(chatID, captionHelp)
		}
	}

	d := h.drafts.Update(chatID, func(d *Draft) {
		d.apply(fields)
		d.Image = product
		if logo != nil {
			d.Logo = logo
		}
	})

	if !d.complete() {
		return h.tg.SendText(chatID, "📷 Photo saved.\n\n"+captionHelp)
	}
	return h.askStyle(chatID, userID, d)
}

func (h *Handler) askStyle(chatID, userID int64, d Draft) error {
	msgID, err := h.tg.SendTextWithKeyboard(chatID, draftText(d), styleKeyboard(userID))
	if err != nil {
		return err
	}
	h.drafts.Update(chatID, func(d *Draft) {
		d.OwnerID = userID
		d.StyleMessageID = msgID
	})
	return nil
}

func (h *Handler) machine(ctx context.Context, chatID int64) *view.Machine {
	return h.sessions.Get(ctx, sessionKey(chatID))
}

func sessionKey(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}

func chatIDFromKey(key string) (int64, error) {
	id, err := strconv.ParseInt(key, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("session key %q: %w", key, err)
	}
	return id, nil
}

// imageFileID returns the largest photo size, or an image sent as a file.
func imageFileID(msg *tgbotapi.Message) (string, bool) {
	if len(msg.Photo) > 0 {
		return msg.Photo[len(msg.Photo)-1].FileID, true
	}
	if msg.Document != nil && strings.HasPrefix(msg.Document.MimeType, "image/") {
		return msg.Document.FileID, true
	}
	return "", false
}

func busyText(err error) string {
	switch {
	case errors.Is(err, view.ErrBusy):
		return "⏳ Please wait until the current variant is finished."
	case errors.Is(err, view.ErrInvalidTransition):
		return "That is not possible right now. Send /new to start over."
	default:
		return "❌ " + err.Error()
	}
}

func resetRefusedText(err error) string {
	if errors.Is(err, view.ErrInvalidTransition) {
		return "⏳ Your ads are still being generated. Please wait."
	}
	return busyText(err)
}
