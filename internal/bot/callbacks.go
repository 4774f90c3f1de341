package bot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"kinobot/internal/premium"
	"kinobot/internal/storage"
)

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil || cb.From == nil {
		b.answer(cb.ID, "", false)
		return
	}
	chatID := cb.Message.Chat.ID
	data, err := ParseCallback(cb.Data)
	if err != nil {
		b.log.Warn("bad callback data", "data", cb.Data, "user_id", cb.From.ID)
		b.answer(cb.ID, "", false)
		return
	}

	b.log.Info("callback",
		"action", data.Action,
		"id", data.ID,
		"chat_id", chatID,
		"user_id", cb.From.ID,
		"username", cb.From.UserName,
	)

	switch data.Action {
	case cbCheckSub:
		b.handleCheckSubscription(ctx, cb)
	case cbBackMain:
		b.deleteMessage(chatID, cb.Message.MessageID)
		b.replyWithMarkup(chatID, "🏠 Asosiy menyu", b.mainKeyboard(ctx, cb.From.ID))
		b.answer(cb.ID, "", false)
	case cbBackCategories:
		kb := categoriesKeyboard()
		b.edit(chatID, cb.Message.MessageID, categoriesText, &kb)
		b.answer(cb.ID, "", false)
	case cbBuyPremium:
		b.handleBuyPremium(ctx, cb)
	case cbCategory, cbMovie, cbEpisodes, cbEpisode:
		if !b.allow(ctx, chatID, cb.From.ID) {
			b.answer(cb.ID, "", false)
			return
		}
		b.handleContentCallback(ctx, cb, data)
	case cbPayApprove, cbPayDeny, cbDeleteChannel:
		if !b.cfg.IsAdmin(cb.From.ID) {
			b.answer(cb.ID, "Ruxsat yo'q", true)
			return
		}
		if data.Action == cbDeleteChannel {
			b.handleDeleteChannelCallback(ctx, cb, data.ID)
			return
		}
		b.handlePaymentDecision(ctx, cb, data.ID, data.Action == cbPayApprove)
	default:
		b.answer(cb.ID, "", false)
	}
}

func (b *Bot) handleContentCallback(ctx context.Context, cb *tgbotapi.CallbackQuery, data Callback) {
	chatID := cb.Message.Chat.ID
	switch data.Action {
	case cbCategory:
		b.showCategory(ctx, cb, data.Arg)
	case cbMovie:
		b.deleteMessage(chatID, cb.Message.MessageID)
		b.sendMovie(ctx, chatID, cb.From.ID, data.ID)
		b.answer(cb.ID, "", false)
	case cbEpisodes:
		b.showEpisodes(ctx, cb, data.ID, data.Page)
	case cbEpisode:
		b.sendEpisode(ctx, chatID, cb.From.ID, data.ID, data.Page)
		b.answer(cb.ID, "", false)
	}
}

// handleCheckSubscription re-runs the gate and updates the subscription prompt in place.
func (b *Bot) handleCheckSubscription(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	chatID, userID := cb.Message.Chat.ID, cb.From.ID
	d, err := b.gate.Enforce(ctx, userID)
	if err != nil {
		b.log.Error("enforce subscription", "user_id", userID, "error", err)
		b.answer(cb.ID, errText, true)
		return
	}
	if d.Allowed {
		b.edit(chatID, cb.Message.MessageID, "✅ Obuna tasdiqlandi. Endi botdan to'liq foydalanishingiz mumkin.", nil)
		b.replyWithMarkup(chatID, "Qidirish uchun kino nomi yoki kodini yuboring.", b.mainKeyboard(ctx, userID))
		b.answer(cb.ID, "Tasdiqlandi", false)
		return
	}
	kb := subscriptionKeyboard(d.Channels)
	b.edit(chatID, cb.Message.MessageID, FormatSubscription(d), &kb)
	b.answer(cb.ID, fmt.Sprintf("Siz hali %d ta kanalga obuna bo'lmagansiz", d.Pending), true)
}

func (b *Bot) handlePaymentDecision(ctx context.Context, cb *tgbotapi.CallbackQuery, paymentID int64, approve bool) {
	p, until, err := b.premium.Decide(ctx, paymentID, approve)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		b.answer(cb.ID, "To'lov topilmadi", true)
		return
	case errors.Is(err, premium.ErrNotPending):
		b.answer(cb.ID, "Bu to'lov allaqachon ko'rib chiqilgan", true)
		return
	case err != nil:
		b.log.Error("decide payment", "payment_id", paymentID, "error", err)
		b.answer(cb.ID, errText, true)
		return
	}

	b.edit(cb.Message.Chat.ID, cb.Message.MessageID, FormatPaymentDecided(p, cb.From), nil)
	if approve {
		b.reply(p.UserID, fmt.Sprintf("✅ To'lovingiz tasdiqlandi!\n💎 Premium %s gacha faol.", until.Format("2006-01-02")))
	} else {
		b.reply(p.UserID, "❌ To'lovingiz rad etildi. Savollar bo'lsa admin bilan bog'laning.")
	}
	b.answer(cb.ID, "Saqlandi", false)
}
