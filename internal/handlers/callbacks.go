package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"adstudio/internal/ad"
	"adstudio/internal/telegram"
	"adstudio/internal/view"
)

const callbackPrefix = "ad"

const (
	actionStyle      = "style"
	actionRegenOne   = "regen"
	actionRegenAll   = "regenall"
	actionNewProduct = "new"
	actionTryAgain   = "retry"
)

type callbackData struct {
	OwnerID int64
	Action  string
	Args    []string
}

func parseCallback(data string) (callbackData, bool) {
	data = strings.TrimSpace(data)
	if !strings.HasPrefix(data, callbackPrefix+":") {
		return callbackData{}, false
	}

	parts := strings.Split(data, ":")
	if len(parts) < 3 {
		return callbackData{}, false
	}

	ownerID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return callbackData{}, false
	}
	return callbackData{OwnerID: ownerID, Action: parts[2], Args: parts[3:]}, true
}

func (h *Handler) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	if q == nil || q.Message == nil || q.Message.Chat == nil || q.From == nil {
		return nil
	}
	cb, ok := parseCallback(q.Data)
	if !ok {
		return nil
	}
	if cb.OwnerID != 0 && cb.OwnerID != q.From.ID {
		_ = h.tg.AnswerCallback(q.ID, "This menu belongs to someone else.", true)
		return nil
	}

	chatID := q.Message.Chat.ID
	m := h.machine(ctx, chatID)

	switch cb.Action {
	case actionStyle:
		if len(cb.Args) < 1 {
			return h.tg.AnswerCallback(q.ID, "", false)
		}
		return h.chooseStyle(ctx, q, m, cb.Args[0])

	case actionRegenOne, actionRegenAll:
		index := -1
		if cb.Action == actionRegenOne {
			if len(cb.Args) < 1 {
				return h.tg.AnswerCallback(q.ID, "", false)
			}
			i, err := strconv.Atoi(cb.Args[0])
			if err != nil {
				return h.tg.AnswerCallback(q.ID, "", false)
			}
			index = i
		}
		return h.askFeedback(q, m, index)

	case actionNewProduct, actionTryAgain:
		if err := m.Reset(); err != nil {
			return h.tg.AnswerCallback(q.ID, resetRefusedText(err), true)
		}
		_ = h.tg.AnswerCallback(q.ID, "", false)
		_ = h.tg.ClearKeyboard(chatID, q.Message.MessageID)

		if cb.Action == actionTryAgain {
			d := h.drafts.Update(chatID, func(d *Draft) { d.AwaitingFeedback = false })
			if d.complete() {
				return h.askStyle(chatID, q.From.ID, d)
			}
		}
		h.drafts.Reset(chatID)
		return h.tg.SendText(chatID, welcomeText())
	}

	return h.tg.AnswerCallback(q.ID, "", false)
}

func (h *Handler) chooseStyle(ctx context.Context, q *tgbotapi.CallbackQuery, m *view.Machine, key string) error {
	chatID := q.Message.Chat.ID

	style, ok := ad.ParseStyle(key)
	if !ok {
		return h.tg.AnswerCallback(q.ID, "Unknown style.", true)
	}

	d := h.drafts.Get(chatID)
	err := m.Submit(ctx, d.Product(style))

	var verr *ad.ValidationError
	switch {
	case err == nil:
		_ = h.tg.AnswerCallback(q.ID, string(style), false)
		_ = h.tg.EditTextWithKeyboard(chatID, q.Message.MessageID, draftText(d)+"\n\nStyle: "+string(style)+" ✅", telegram.Keyboard{})
		return nil
	case errors.As(err, &verr):
		_ = h.tg.AnswerCallback(q.ID, "", false)
		return h.tg.SendText(chatID, "❌ "+verr.Message+"\n\n"+captionHelp)
	default:
		return h.tg.AnswerCallback(q.ID, busyText(err), true)
	}
}

// askFeedback puts the chat into feedback mode after checking that the
// machine would accept the regeneration right now.
func (h *Handler) askFeedback(q *tgbotapi.CallbackQuery, m *view.Machine, index int) error {
	chatID := q.Message.Chat.ID

	results, ok := m.State().(view.Results)
	if !ok {
		return h.tg.AnswerCallback(q.ID, "These ads are no longer shown. Send /new to start over.", true)
	}
	if results.Busy() {
		return h.tg.AnswerCallback(q.ID, "Please wait until the current variant is finished.", true)
	}
	if index >= len(results.Variants) {
		return h.tg.AnswerCallback(q.ID, "This variant no longer exists.", true)
	}

	h.drafts.Update(chatID, func(d *Draft) {
		d.AwaitingFeedback = true
		d.FeedbackIndex = index
	})
	_ = h.tg.AnswerCallback(q.ID, "", false)

	prompt := "✏️ What should change in all ads? Send your feedback, or /cancel."
	if index >= 0 {
		prompt = fmt.Sprintf("✏️ What should change in variant %d? Send your feedback, or /cancel.", index+1)
	}
	return h.tg.SendText(chatID, prompt)
}

func styleKeyboard(ownerID int64) telegram.Keyboard {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, opt := range ad.Styles() {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(string(opt.Style), cb(ownerID, actionStyle, opt.Key)))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func variantKeyboard(ownerID int64, index int) telegram.Keyboard {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔄 Regenerate", cb(ownerID, actionRegenOne, strconv.Itoa(index))),
		),
	)
}

func resultsKeyboard(ownerID int64) telegram.Keyboard {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔄 Regenerate all", cb(ownerID, actionRegenAll)),
			tgbotapi.NewInlineKeyboardButtonData("🆕 New product", cb(ownerID, actionNewProduct)),
		),
	)
}

func errorKeyboard(ownerID int64) telegram.Keyboard {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Try again", cb(ownerID, actionTryAgain)),
		),
	)
}

func cb(ownerID int64, parts ...string) string {
	return fmt.Sprintf("%s:%d:%s", callbackPrefix, ownerID, strings.Join(parts, ":"))
}
