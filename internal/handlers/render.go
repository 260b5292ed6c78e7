package handlers

import (
	"fmt"
	"strings"

	"adstudio/internal/ad"
	"adstudio/internal/view"
)

// OnViewChange renders one view transition of the chat keyed by key. It runs
// on the goroutine that made the transition, so it only talks to Telegram
// and the draft store.
func (h *Handler) OnViewChange(key string, ev view.Event) {
	chatID, err := chatIDFromKey(key)
	if err != nil {
		h.logger.Warn("view event for unknown chat", "session", key, "err", err)
		return
	}
	if err := h.renderEvent(chatID, ev); err != nil {
		h.logger.Error("render view event failed", "chat", chatID, "event", ev.Type, "err", err)
	}
}

func (h *Handler) renderEvent(chatID int64, ev view.Event) error {
	d := h.drafts.Get(chatID)

	switch ev.Type {
	case view.EventSubmitted, view.EventRegenerating:
		st, _ := ev.State.(view.Loading)
		h.tg.SendTyping(chatID)
		h.clearResultKeyboards(chatID, d)
		return h.tg.SendText(chatID, loadingText(st))

	case view.EventGenerated:
		st, ok := ev.State.(view.Results)
		if !ok {
			return nil
		}
		return h.sendResults(chatID, d, st)

	case view.EventFailed:
		st, _ := ev.State.(view.Failed)
		h.clearResultKeyboards(chatID, d)
		_, err := h.tg.SendTextWithKeyboard(chatID, "❌ "+st.Message, errorKeyboard(d.OwnerID))
		return err

	case view.EventVariantStarted:
		h.tg.SendUploadPhoto(chatID)
		return h.tg.SendText(chatID, fmt.Sprintf("🎨 Regenerating variant %d...", ev.Index+1))

	case view.EventVariantReplaced:
		st, ok := ev.State.(view.Results)
		if !ok || ev.Index < 0 || ev.Index >= len(st.Variants) {
			return nil
		}
		return h.replaceVariant(chatID, d, ev.Index, st.Variants[ev.Index])

	case view.EventVariantFailed:
		st, _ := ev.State.(view.Results)
		return h.tg.SendText(chatID, fmt.Sprintf("❌ Variant %d could not be regenerated. %s", ev.Index+1, st.Notice))
	}
	return nil
}

func (h *Handler) sendResults(chatID int64, d Draft, st view.Results) error {
	h.clearResultKeyboards(chatID, d)
	h.tg.SendUploadPhoto(chatID)

	ids := make([]int, len(st.Variants))
	for i, v := range st.Variants {
		kb := variantKeyboard(d.OwnerID, i)
		id, err := h.tg.SendPhoto(chatID, v.Image, v.FileName(), variantCaption(i, v), &kb)
		if err != nil {
			return fmt.Errorf("send variant %d: %w", i, err)
		}
		ids[i] = id
	}

	kb := resultsKeyboard(d.OwnerID)
	controlID, err := h.tg.SendPhoto(chatID, st.Product.Image, "", resultsText(st), &kb)
	if err != nil {
		return fmt.Errorf("send results summary: %w", err)
	}

	h.drafts.Update(chatID, func(d *Draft) {
		d.VariantMessages = ids
		d.ControlMessageID = controlID
	})
	return nil
}

func (h *Handler) replaceVariant(chatID int64, d Draft, index int, v ad.Variant) error {
	if index < len(d.VariantMessages) && d.VariantMessages[index] != 0 {
		_ = h.tg.ClearKeyboard(chatID, d.VariantMessages[index])
	}

	kb := variantKeyboard(d.OwnerID, index)
	caption := "✅ Updated\n\n" + variantCaption(index, v)
	id, err := h.tg.SendPhoto(chatID, v.Image, v.FileName(), caption, &kb)
	if err != nil {
		return fmt.Errorf("send variant %d: %w", index, err)
	}

	h.drafts.Update(chatID, func(d *Draft) {
		for len(d.VariantMessages) <= index {
			d.VariantMessages = append(d.VariantMessages, 0)
		}
		d.VariantMessages[index] = id
	})
	return nil
}

// clearResultKeyboards removes buttons from a collection that is no longer
// the current one.
func (h *Handler) clearResultKeyboards(chatID int64, d Draft) {
	for _, id := range d.VariantMessages {
		if id != 0 {
			_ = h.tg.ClearKeyboard(chatID, id)
		}
	}
	if d.ControlMessageID != 0 {
		_ = h.tg.ClearKeyboard(chatID, d.ControlMessageID)
	}
	if len(d.VariantMessages) > 0 || d.ControlMessageID != 0 {
		h.drafts.Update(chatID, func(d *Draft) {
			d.VariantMessages = nil
			d.ControlMessageID = 0
		})
	}
}

func welcomeText() string {
	return "🪄 Ad Studio\n\n" +
		"Send a product photo with a caption to create three ad variants.\n" +
		"Send two photos as an album to add your logo (first the product, then the logo).\n\n" +
		captionHelp + "\n\n" +
		"Commands:\n" +
		"/new - Start over with a new product\n" +
		"/styles - List the ad styles\n" +
		"/cancel - Stop waiting for feedback\n" +
		"/help - Show this message"
}

func stylesText() string {
	var b strings.Builder
	b.WriteString("🎨 Ad styles\n\n")
	for _, opt := range ad.Styles() {
		b.WriteString(fmt.Sprintf("• %s: %s\n", opt.Style, opt.Description))
	}
	return strings.TrimSpace(b.String())
}

func draftText(d Draft) string {
	var b strings.Builder
	b.WriteString("📦 " + d.Name + "\n")
	b.WriteString(truncateLine(d.Description, 200) + "\n")
	b.WriteString("Audience: " + d.Audience + "\n")
	if text := strings.TrimSpace(d.OverlayText); text != "" {
		b.WriteString("Overlay text: \"" + text + "\"\n")
	}
	if d.Logo != nil {
		b.WriteString("Logo: attached ✅\n")
	}
	b.WriteString("\nPick an ad style:")
	return b.String()
}

func loadingText(st view.Loading) string {
	if st.Regenerate {
		return "⏳ Regenerating your ads with the feedback: \"" + truncateLine(st.Feedback, 200) + "\"\nThis can take a minute."
	}
	return "⏳ Creating 3 ad concepts for " + st.Product.Name + " in the " + string(st.Product.Style) + " style.\nThis can take a minute."
}

func variantCaption(index int, v ad.Variant) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Variant %d: %s\n", index+1, v.HeadlineSuggestion))
	if v.OverlayText != "" {
		b.WriteString("Overlay: \"" + v.OverlayText + "\"\n")
	}
	b.WriteString("\n" + truncateLine(v.Concept, 600))
	return b.String()
}

func resultsText(st view.Results) string {
	return fmt.Sprintf("✅ %d ads for %s (%s).\n\nTap 🔄 Regenerate under an ad to change only that one, or regenerate all of them with feedback.",
		len(st.Variants), st.Product.Name, st.Product.Style)
}

func truncateLine(s string, max int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if max <= 0 || len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max])) + "…"
}
