package bot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"kinobot/internal/gate"
	"kinobot/internal/model"
	"kinobot/internal/session"
	"kinobot/internal/storage"
)

// Main menu buttons.
const (
	btnSearch          = "🔍 Qidirish"
	btnCategories      = "🎬 Kategoriyalar"
	btnTrending        = "🔥 Trend"
	btnRecommendations = "⭐ Tavsiyalar"
	btnPremium         = "💎 Premium"
	btnPremiumActive   = "💎 Premium ✅"
	btnHelp            = "ℹ️ Yordam"
	btnAdmin           = "Admin panel"
)

const errText = "❌ Xatolik yuz berdi. Birozdan keyin qayta urinib ko'ring."

func (b *Bot) registerUser(ctx context.Context, from *tgbotapi.User) {
	u := &model.User{
		ID:           from.ID,
		Username:     from.UserName,
		FirstName:    from.FirstName,
		LastName:     from.LastName,
		RegisteredAt: b.now(),
	}
	if err := b.store.UpsertUser(ctx, u); err != nil {
		b.log.Error("register user", "user_id", from.ID, "error", err)
	}
}

// allow runs the enforcement gate and, when the user is held back, sends the
// subscription prompt. Gate errors deny access without showing error details.
func (b *Bot) allow(ctx context.Context, chatID, userID int64) bool {
	d, err := b.gate.Enforce(ctx, userID)
	if err != nil {
		b.log.Error("enforce subscription", "user_id", userID, "error", err)
		b.reply(chatID, errText)
		return false
	}
	switch d.Reason {
	case gate.ReasonNoChannels, gate.ReasonMisconfigured:
		if b.cfg.IsAdmin(userID) {
			b.reply(chatID, FormatGateWarning(d.Reason))
		}
	}
	if d.Allowed {
		return true
	}
	b.replyWithMarkup(chatID, FormatSubscription(d), subscriptionKeyboard(d.Channels))
	return false
}

func (b *Bot) isPremium(ctx context.Context, userID int64) bool {
	ok, err := b.premium.IsPremium(ctx, userID)
	if err != nil {
		b.log.Error("premium status", "user_id", userID, "error", err)
	}
	return ok
}

func (b *Bot) mainKeyboard(ctx context.Context, userID int64) tgbotapi.ReplyKeyboardMarkup {
	return mainKeyboard(b.isPremium(ctx, userID), b.cfg.IsAdmin(userID))
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message, payload string) {
	chatID, userID := msg.Chat.ID, msg.From.ID
	if !b.allow(ctx, chatID, userID) {
		return
	}
	b.clearSession(ctx, userID)

	if payload != "" {
		b.runSearch(ctx, chatID, userID, payload)
		return
	}
	premium := b.isPremium(ctx, userID)
	b.replyWithMarkup(chatID, FormatWelcome(msg.From.FirstName, premium), mainKeyboard(premium, b.cfg.IsAdmin(userID)))
}

func (b *Bot) handleHelp(chatID, userID int64) {
	text := helpText
	if b.cfg.IsAdmin(userID) {
		text += "\n\n" + adminHelpText
	}
	b.reply(chatID, text)
}

func (b *Bot) handleCancel(ctx context.Context, chatID, userID int64) {
	state, err := b.sessions.Get(ctx, userID)
	if err != nil {
		b.log.Error("get session", "user_id", userID, "error", err)
	}
	if state == session.StateNone {
		b.reply(chatID, "Bekor qilinadigan amal yo'q.")
		return
	}
	b.clearSession(ctx, userID)
	b.replyWithMarkup(chatID, "Bekor qilindi.", b.mainKeyboard(ctx, userID))
}

// handleMenu dispatches a main-menu button press. It reports whether msg was one.
func (b *Bot) handleMenu(ctx context.Context, msg *tgbotapi.Message) bool {
	chatID, userID := msg.Chat.ID, msg.From.ID
	switch msg.Text {
	case btnSearch:
		b.handleSearchPrompt(ctx, chatID, userID)
	case btnCategories:
		b.handleCategories(ctx, chatID, userID)
	case btnTrending:
		b.handleTrending(ctx, chatID, userID)
	case btnRecommendations:
		b.handleRecommendations(ctx, chatID, userID)
	case btnPremium, btnPremiumActive:
		b.handlePremium(ctx, chatID, userID)
	case btnHelp:
		b.handleHelp(chatID, userID)
	case btnAdmin:
		if !b.cfg.IsAdmin(userID) {
			return false
		}
		b.reply(chatID, adminHelpText)
	default:
		return false
	}
	return true
}

func (b *Bot) handleSearchPrompt(ctx context.Context, chatID, userID int64) {
	if !b.allow(ctx, chatID, userID) {
		return
	}
	b.setSession(ctx, userID, session.StateSearch)
	b.reply(chatID, "🔍 Qidirish\n\nKino, serial, anime yoki dorama nomini yoki kodini yuboring.\n\nMasalan: Spiderman, SPID001")
}

func (b *Bot) runSearch(ctx context.Context, chatID, userID int64, query string) {
	res, err := b.catalog.Search(ctx, userID, query)
	if err != nil {
		b.log.Error("search", "user_id", userID, "query", query, "error", err)
		b.reply(chatID, errText)
		return
	}
	switch {
	case !res.Found():
		b.reply(chatID, fmt.Sprintf("😔 \"%s\" bo'yicha hech narsa topilmadi.\n\nBoshqa nom yoki kod bilan urinib ko'ring.", query))
	case len(res.Movies) == 1:
		b.sendMovie(ctx, chatID, userID, res.Movies[0].ID)
	default:
		b.replyWithMarkup(chatID, FormatSearchHeader(res), searchResultsKeyboard(res.Movies))
	}
}

func (b *Bot) handleCategories(ctx context.Context, chatID, userID int64) {
	if !b.allow(ctx, chatID, userID) {
		return
	}
	b.replyWithMarkup(chatID, categoriesText, categoriesKeyboard())
}

func (b *Bot) showCategory(ctx context.Context, cb *tgbotapi.CallbackQuery, category string) {
	movies, err := b.catalog.ByCategory(ctx, category)
	if err != nil {
		b.log.Error("list category", "category", category, "error", err)
		b.answer(cb.ID, errText, true)
		return
	}
	if len(movies) == 0 {
		b.answer(cb.ID, "Bu kategoriyada hozircha kino yo'q", true)
		return
	}
	kb := movieListKeyboard(movies, cbBackCategories)
	b.edit(cb.Message.Chat.ID, cb.Message.MessageID, FormatCategory(category, movies), &kb)
	b.answer(cb.ID, "", false)
}

func (b *Bot) handleTrending(ctx context.Context, chatID, userID int64) {
	if !b.allow(ctx, chatID, userID) {
		return
	}
	trending, err := b.catalog.Trending(ctx)
	if err != nil {
		b.log.Error("trending", "error", err)
		b.reply(chatID, errText)
		return
	}
	if len(trending) == 0 {
		b.reply(chatID, "🔥 Hozircha trend kinolar yo'q.")
		return
	}
	movies := make([]model.Movie, 0, len(trending))
	for _, t := range trending {
		movies = append(movies, t.Movie)
	}
	b.replyWithMarkup(chatID, FormatTrending(trending), movieListKeyboard(movies, cbBackMain))
}

func (b *Bot) handleRecommendations(ctx context.Context, chatID, userID int64) {
	if !b.allow(ctx, chatID, userID) {
		return
	}
	recs, err := b.catalog.Recommendations(ctx)
	if err != nil {
		b.log.Error("recommendations", "error", err)
		b.reply(chatID, errText)
		return
	}
	if len(recs) == 0 {
		b.reply(chatID, "⭐ Hozircha tavsiyalar yo'q.")
		return
	}
	b.replyWithMarkup(chatID, FormatRecommendations(recs), recommendationsKeyboard(recs))
}

func (b *Bot) handlePremium(ctx context.Context, chatID, userID int64) {
	u, err := b.store.GetUser(ctx, userID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		b.log.Error("get user", "user_id", userID, "error", err)
		b.reply(chatID, errText)
		return
	}
	if u != nil && b.isPremium(ctx, userID) {
		b.reply(chatID, FormatPremiumActive(u))
		return
	}
	price := b.premium.Price(ctx)
	b.replyWithMarkup(chatID, FormatPremiumOffer(price), buyPremiumKeyboard(price))
}

func (b *Bot) handleBuyPremium(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	number, owner := b.premium.Card(ctx)
	b.setSession(ctx, cb.From.ID, session.StatePayment)
	b.reply(cb.Message.Chat.ID, FormatPaymentInstructions(b.premium.Price(ctx), number, owner))
	b.answer(cb.ID, "", false)
}

// handlePaymentReceipt forwards a receipt photo or document to every admin with
// approve/deny buttons.
func (b *Bot) handlePaymentReceipt(ctx context.Context, msg *tgbotapi.Message) {
	chatID, userID := msg.Chat.ID, msg.From.ID
	if len(msg.Photo) == 0 && msg.Document == nil {
		b.reply(chatID, "🧾 To'lov chekini rasm yoki fayl ko'rinishida yuboring.\nBekor qilish: /cancel")
		return
	}
	p, err := b.premium.Submit(ctx, userID)
	if err != nil {
		b.log.Error("submit payment", "user_id", userID, "error", err)
		b.reply(chatID, errText)
		return
	}
	b.clearSession(ctx, userID)

	for _, admin := range b.cfg.AdminIDs {
		if _, err := b.api.Send(tgbotapi.NewForward(admin, chatID, msg.MessageID)); err != nil {
			b.log.Error("forward receipt", "admin_id", admin, "payment_id", p.ID, "error", err)
			continue
		}
		b.replyWithMarkup(admin, FormatPaymentReview(p, msg.From), paymentReviewKeyboard(p.ID))
	}
	b.reply(chatID, "✅ Chek qabul qilindi. Admin tasdiqlagandan so'ng premium faollashadi.")
}
