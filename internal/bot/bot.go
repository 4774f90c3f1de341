package bot

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"kinobot/internal/broadcast"
	"kinobot/internal/catalog"
	"kinobot/internal/config"
	"kinobot/internal/fetcher"
	"kinobot/internal/gate"
	"kinobot/internal/metrics"
	"kinobot/internal/model"
	"kinobot/internal/premium"
	"kinobot/internal/session"
	"kinobot/internal/storage"
)

// maxInFlight bounds the number of updates handled concurrently.
const maxInFlight = 16

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Enforcer decides whether a user may use content commands.
type Enforcer interface {
	Enforce(ctx context.Context, userID int64) (gate.Decision, error)
}

// Rotator reassigns a user's daily channel set on demand.
type Rotator interface {
	Today() string
	Rotate(ctx context.Context, userID int64) ([]model.Channel, error)
}

// Deps are the services the bot dispatches to.
type Deps struct {
	Store    storage.Storage
	Catalog  *catalog.Service
	Gate     Enforcer
	Rotation Rotator
	Premium  *premium.Service
	Sessions session.Store
	Metrics  *metrics.Metrics
}

// Bot is the Telegram front end: it routes updates to the catalog, the gate and admin tools.
type Bot struct {
	api         telegramAPI
	store       storage.Storage
	catalog     *catalog.Service
	gate        Enforcer
	rotation    Rotator
	premium     *premium.Service
	sessions    session.Store
	broadcaster *broadcast.Broadcaster
	fetcher     *fetcher.Fetcher
	cfg         *config.Config
	log         *slog.Logger
	now         func() time.Time

	// wg tracks update handlers and background broadcasts.
	wg sync.WaitGroup
}

// NewAPI connects to the Bot API with the given token.
func NewAPI(token string) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return api, nil
}

// New creates a Bot on top of an authenticated API client.
func New(api *tgbotapi.BotAPI, d Deps, cfg *config.Config, log *slog.Logger) *Bot {
	return newBot(api, d, fetcher.New(http.DefaultClient), cfg, log)
}

func newBot(api telegramAPI, d Deps, f *fetcher.Fetcher, cfg *config.Config, log *slog.Logger) *Bot {
	b := &Bot{
		api:      api,
		store:    d.Store,
		catalog:  d.Catalog,
		gate:     d.Gate,
		rotation: d.Rotation,
		premium:  d.Premium,
		sessions: d.Sessions,
		fetcher:  f,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
	b.broadcaster = broadcast.New(d.Store, b, rate.NewLimiter(broadcast.DefaultLimit, 1), d.Metrics, log)
	return b
}

// Run starts the long-polling loop, blocking until ctx is cancelled and in-flight
// handlers have returned.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	u.AllowedUpdates = []string{"message", "callback_query"}

	updates := b.api.GetUpdatesChan(u)
	sem := make(chan struct{}, maxInFlight)

	defer b.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				b.api.StopReceivingUpdates()
				return
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				defer func() { <-sem }()
				b.handleUpdate(ctx, update)
			}()
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("handler panic", "update_id", update.UpdateID, "panic", r)
		}
	}()
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.From != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	b.registerUser(ctx, msg.From)

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	userID := msg.From.ID
	state, err := b.sessions.Get(ctx, userID)
	if err != nil {
		b.log.Error("get session", "user_id", userID, "error", err)
	}

	if strings.TrimSpace(msg.Text) != "" && b.handleMenu(ctx, msg) {
		return
	}

	switch state {
	case session.StateSearch:
		b.clearSession(ctx, userID)
		if msg.Text != "" {
			b.runSearch(ctx, msg.Chat.ID, userID, msg.Text)
		}
		return
	case session.StatePayment:
		b.handlePaymentReceipt(ctx, msg)
		return
	case session.StateBroadcast:
		if b.cfg.IsAdmin(userID) {
			b.clearSession(ctx, userID)
			b.startBroadcast(ctx, msg)
			return
		}
	}

	if b.cfg.IsAdmin(userID) && hasMedia(msg) && msg.Caption != "" {
		b.handleAdminMedia(ctx, msg)
		return
	}
	if text := strings.TrimSpace(msg.Text); text != "" {
		if !b.allow(ctx, msg.Chat.ID, userID) {
			return
		}
		b.runSearch(ctx, msg.Chat.ID, userID, text)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID
	userID := msg.From.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(ctx, msg, args)
		return
	case "help":
		b.handleHelp(chatID, userID)
		return
	case "cancel":
		b.handleCancel(ctx, chatID, userID)
		return
	case "search":
		b.handleSearchPrompt(ctx, chatID, userID)
		return
	case "categories":
		b.handleCategories(ctx, chatID, userID)
		return
	case "trending":
		b.handleTrending(ctx, chatID, userID)
		return
	case "recommendations":
		b.handleRecommendations(ctx, chatID, userID)
		return
	case "premium":
		b.handlePremium(ctx, chatID, userID)
		return
	}

	if !b.cfg.IsAdmin(userID) {
		b.reply(chatID, "Noma'lum buyruq. Yordam uchun /help.")
		return
	}
	b.handleAdminCommand(ctx, msg, cmd, args)
}

// SendMessage sends a text message to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

// CopyMessage copies a message into toChatID without the "forwarded from" header.
func (b *Bot) CopyMessage(toChatID, fromChatID int64, messageID int) error {
	if _, err := b.api.Request(tgbotapi.NewCopyMessage(toChatID, fromChatID, messageID)); err != nil {
		return fmt.Errorf("copy message to %d: %w", toChatID, err)
	}
	return nil
}

// copyFrom copies a post of a channel given as a numeric ID or @username.
func (b *Bot) copyFrom(toChatID int64, sourceChatID string, messageID int64, markup any) error {
	cfg := tgbotapi.CopyMessageConfig{
		BaseChat:  tgbotapi.BaseChat{ChatID: toChatID, ReplyMarkup: markup},
		MessageID: int(messageID),
	}
	if id, err := strconv.ParseInt(sourceChatID, 10, 64); err == nil {
		cfg.FromChatID = id
	} else {
		cfg.FromChannelUsername = sourceChatID
	}
	if _, err := b.api.Request(cfg); err != nil {
		return fmt.Errorf("copy %s/%d: %w", sourceChatID, messageID, err)
	}
	return nil
}

func (b *Bot) reply(chatID int64, text string) {
	b.SendMessage(chatID, text)
}

func (b *Bot) replyWithMarkup(chatID int64, text string, markup any) tgbotapi.Message {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = markup
	sent, err := b.api.Send(msg)
	if err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
	return sent
}

// edit replaces the text and inline keyboard of a sent message, sending a new one when
// the original cannot be edited (media messages have no text).
func (b *Bot) edit(chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	cfg := tgbotapi.NewEditMessageText(chatID, messageID, text)
	cfg.DisableWebPagePreview = true
	cfg.ReplyMarkup = markup
	if _, err := b.api.Request(cfg); err != nil {
		b.log.Debug("edit message failed, sending new", "chat_id", chatID, "error", err)
		if markup != nil {
			b.replyWithMarkup(chatID, text, *markup)
			return
		}
		b.reply(chatID, text)
	}
}

func (b *Bot) answer(callbackID, text string, alert bool) {
	cfg := tgbotapi.NewCallback(callbackID, text)
	cfg.ShowAlert = alert
	if _, err := b.api.Request(cfg); err != nil {
		b.log.Error("answer callback", "error", err)
	}
}

func (b *Bot) deleteMessage(chatID int64, messageID int) {
	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		b.log.Debug("delete message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) clearSession(ctx context.Context, userID int64) {
	if err := b.sessions.Clear(ctx, userID); err != nil {
		b.log.Error("clear session", "user_id", userID, "error", err)
	}
}

func (b *Bot) setSession(ctx context.Context, userID int64, s session.State) {
	if err := b.sessions.Set(ctx, userID, s); err != nil {
		b.log.Error("set session", "user_id", userID, "state", s, "error", err)
	}
}
