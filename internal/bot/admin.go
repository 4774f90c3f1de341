package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"kinobot/internal/broadcast"
	"kinobot/internal/caption"
	"kinobot/internal/catalog"
	"kinobot/internal/model"
	"kinobot/internal/premium"
	"kinobot/internal/session"
	"kinobot/internal/storage"
)

// topSearchesLimit caps the /topsearches list.
const topSearchesLimit = 10

func (b *Bot) handleAdminCommand(ctx context.Context, msg *tgbotapi.Message, cmd, args string) {
	chatID := msg.Chat.ID
	switch cmd {
	case "admin":
		b.reply(chatID, adminHelpText)
	case "stats":
		b.handleStats(ctx, chatID)
	case "topsearches":
		b.handleTopSearches(ctx, chatID)
	case "addchannel":
		b.handleAddChannel(ctx, chatID, args)
	case "channels":
		b.handleChannels(ctx, chatID)
	case "delchannel":
		b.handleDeleteChannel(ctx, chatID, args)
	case "delmovie":
		b.handleDeleteMovie(ctx, chatID, args)
	case "setprice":
		b.handleSetPrice(ctx, chatID, args)
	case "setcard":
		b.handleSetCard(ctx, chatID, args, "")
	case "setowner":
		b.handleSetCard(ctx, chatID, "", args)
	case "grant":
		b.handleGrant(ctx, chatID, args)
	case "revoke":
		b.handleRevoke(ctx, chatID, args)
	case "rotate":
		b.handleRotate(ctx, chatID, args)
	case "broadcast":
		b.setSession(ctx, msg.From.ID, session.StateBroadcast)
		b.reply(chatID, "📢 Hammaga yuboriladigan xabarni yuboring (matn, rasm, video...).\nBekor qilish: /cancel")
	case "addsource":
		b.handleAddSource(ctx, chatID, args)
	case "sources":
		b.handleSources(ctx, chatID)
	case "delsource":
		b.handleDeleteSource(ctx, chatID, args)
	case "scan":
		b.handleScan(ctx, chatID, args)
	default:
		b.reply(chatID, "Noma'lum buyruq. Yordam uchun /help.")
	}
}

func (b *Bot) handleStats(ctx context.Context, chatID int64) {
	st, err := b.store.Statistics(ctx, b.now())
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatStats(st))
}

func (b *Bot) handleTopSearches(ctx context.Context, chatID int64) {
	top, err := b.store.TopSearches(ctx, time.Time{}, topSearchesLimit)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatTopSearches(top))
}

func (b *Bot) handleAddChannel(ctx context.Context, chatID int64, args string) {
	a, err := ParseChannelArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	ch := &model.Channel{
		ChatID:     a.ChatID,
		Name:       a.Name,
		Type:       a.Type,
		IsActive:   true,
		InviteLink: a.InviteLink,
		CreatedAt:  b.now(),
	}
	if strings.HasPrefix(a.ChatID, "@") {
		ch.Username = strings.TrimPrefix(a.ChatID, "@")
	}
	if err := b.store.CreateChannel(ctx, ch); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			b.reply(chatID, fmt.Sprintf("⚠️ %s kanali allaqachon qo'shilgan.", a.ChatID))
			return
		}
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}

	text := fmt.Sprintf("✅ Kanal qo'shildi: #%d %s (%s)", ch.ID, ch.Name, ch.Type)
	if ch.URL() == "" {
		text += "\n⚠️ Linki yo'q: foydalanuvchilar unga o'ta olmaydi va u tekshirilmaydi. Invite link bilan qayta qo'shing."
	}
	b.reply(chatID, text)
}

func (b *Bot) handleChannels(ctx context.Context, chatID int64) {
	chs, err := b.store.ListChannels(ctx, false)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	if len(chs) == 0 {
		b.reply(chatID, FormatChannels(chs))
		return
	}
	b.replyWithMarkup(chatID, FormatChannels(chs), channelsKeyboard(chs))
}

func (b *Bot) handleDeleteChannel(ctx context.Context, chatID int64, args string) {
	id, ok := caption.ParseChannelInput(args)
	if !ok {
		b.reply(chatID, "Usage: /delchannel <kanal ID yoki @username>")
		return
	}
	if err := b.store.DeleteChannel(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			b.reply(chatID, fmt.Sprintf("Kanal %s topilmadi.", id))
			return
		}
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("✅ Kanal %s o'chirildi.", id))
}

func (b *Bot) handleDeleteChannelCallback(ctx context.Context, cb *tgbotapi.CallbackQuery, id int64) {
	ch, err := b.store.GetChannel(ctx, id)
	if err != nil {
		b.answer(cb.ID, "Kanal topilmadi", true)
		return
	}
	if err := b.store.DeleteChannel(ctx, ch.ChatID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		b.log.Error("delete channel", "channel_id", ch.ChatID, "error", err)
		b.answer(cb.ID, errText, true)
		return
	}
	chs, err := b.store.ListChannels(ctx, false)
	if err != nil {
		b.log.Error("list channels", "error", err)
	}
	if len(chs) == 0 {
		b.edit(cb.Message.Chat.ID, cb.Message.MessageID, FormatChannels(chs), nil)
	} else {
		kb := channelsKeyboard(chs)
		b.edit(cb.Message.Chat.ID, cb.Message.MessageID, FormatChannels(chs), &kb)
	}
	b.answer(cb.ID, fmt.Sprintf("%s o'chirildi", channelName(*ch)), false)
}

func (b *Bot) handleDeleteMovie(ctx context.Context, chatID int64, args string) {
	code := strings.TrimSpace(args)
	if code == "" {
		b.reply(chatID, "Usage: /delmovie <kod>")
		return
	}
	m, episodes, err := b.catalog.Delete(ctx, code)
	if errors.Is(err, storage.ErrNotFound) {
		b.reply(chatID, fmt.Sprintf("%s kodli kino topilmadi.", strings.ToUpper(code)))
		return
	}
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	text := fmt.Sprintf("✅ O'chirildi: %s (%s)", m.Title, m.Code)
	if m.IsSeries() {
		text += fmt.Sprintf("\n📺 %d ta qism o'chirildi", episodes)
	}
	b.reply(chatID, text)
}

func (b *Bot) handleSetPrice(ctx context.Context, chatID int64, args string) {
	price, err := premium.ParsePrice(args)
	if err != nil {
		b.reply(chatID, "Usage: /setprice <narx>, masalan /setprice 15000")
		return
	}
	if err := b.premium.SetPrice(ctx, price); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("✅ Premium narxi: %s so'm", formatSum(price)))
}

func (b *Bot) handleSetCard(ctx context.Context, chatID int64, number, owner string) {
	if number == "" && owner == "" {
		b.reply(chatID, "Usage: /setcard <karta raqami> yoki /setowner <ism familiya>")
		return
	}
	if err := b.premium.SetCard(ctx, number, owner); err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	n, o := b.premium.Card(ctx)
	b.reply(chatID, fmt.Sprintf("✅ Saqlandi.\n💳 Karta: %s\n👤 Egasi: %s", n, o))
}

func (b *Bot) handleGrant(ctx context.Context, chatID int64, args string) {
	userID, days, err := ParseGrantArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	until, err := b.premium.Grant(ctx, userID, days)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("✅ %d uchun premium %s gacha berildi.", userID, until.Format("2006-01-02")))
	b.reply(userID, fmt.Sprintf("💎 Sizga premium berildi! %s gacha faol.", until.Format("2006-01-02")))
}

func (b *Bot) handleRevoke(ctx context.Context, chatID int64, args string) {
	userID, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /revoke <user_id>")
		return
	}
	if err := b.premium.Revoke(ctx, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			b.reply(chatID, fmt.Sprintf("Foydalanuvchi %d topilmadi.", userID))
			return
		}
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("✅ %d premiumi bekor qilindi.", userID))
}

// handleRotate replaces a user's channel set for today with a fresh selection.
func (b *Bot) handleRotate(ctx context.Context, chatID int64, args string) {
	userID, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /rotate <user_id>")
		return
	}
	if b.rotation == nil {
		b.reply(chatID, "Kanal rotatsiyasi sozlanmagan.")
		return
	}
	if _, err := b.store.GetUser(ctx, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			b.reply(chatID, fmt.Sprintf("Foydalanuvchi %d topilmadi.", userID))
			return
		}
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	chs, err := b.rotation.Rotate(ctx, userID)
	if err != nil {
		b.log.Error("rotate channels", "user_id", userID, "error", err)
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatRotation(userID, b.rotation.Today(), chs))
}

func (b *Bot) handleAddSource(ctx context.Context, chatID int64, args string) {
	a, err := ParseSourceArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}
	feed, err := b.fetcher.Fetch(ctx, a.URL)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Failed to fetch feed: %v", err))
		return
	}
	name := feed.Title
	if name == "" {
		name = a.URL
	}
	src := &model.Source{
		Name:            name,
		URL:             a.URL,
		Category:        a.Category,
		IntervalMinutes: a.IntervalMinutes,
		IsActive:        true,
		CreatedAt:       b.now(),
	}
	if err := b.store.CreateSource(ctx, src); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			b.reply(chatID, "⚠️ Bu manba allaqachon qo'shilgan.")
			return
		}
		b.reply(chatID, fmt.Sprintf("Failed to save source: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("✅ Manba qo'shildi: #%d %s (har %d daq.)\n%s\nElementlar: %d",
		src.ID, src.Name, src.IntervalMinutes, src.URL, len(feed.Items)))
}

func (b *Bot) handleSources(ctx context.Context, chatID int64) {
	srcs, err := b.store.ListSources(ctx)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatSources(srcs))
}

func (b *Bot) handleDeleteSource(ctx context.Context, chatID int64, args string) {
	id, err := ParseIDArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /delsource <id>")
		return
	}
	if err := b.store.DeleteSource(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			b.reply(chatID, fmt.Sprintf("Manba #%d topilmadi.", id))
			return
		}
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, fmt.Sprintf("✅ Manba #%d o'chirildi.", id))
}

// handleScan imports one post link per line, each with optional caption metadata.
func (b *Bot) handleScan(ctx context.Context, chatID int64, args string) {
	var lines []string
	for _, l := range strings.Split(args, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) == 0 {
		b.reply(chatID, "📥 Har qatorda bitta link yuboring:\n/scan\nhttps://t.me/c/123/456 | Nomi: Avatar | Qism: 1 | Turi: serial | Kategoriya: anime\nhttps://t.me/c/123/457 | Avatar 2-qism")
		return
	}

	var added, skipped int
	for _, l := range lines {
		sl, ok := caption.ParseScanLine(l)
		if !ok || sl.Caption.Title == "" {
			skipped++
			continue
		}
		out, err := b.catalog.Ingest(ctx, catalog.Post{
			Caption:         sl.Caption,
			SourceChatID:    sl.Post.ChatID,
			SourceMessageID: sl.Post.MessageID,
		})
		if err != nil {
			b.log.Error("scan ingest", "line", l, "error", err)
			skipped++
			continue
		}
		if out == catalog.OutcomeMovie || out == catalog.OutcomeEpisode {
			added++
		} else {
			skipped++
		}
	}
	b.reply(chatID, fmt.Sprintf("✅ Yakunlandi!\n\n✅ Qo'shildi: %d\n⚠️ O'tkazildi: %d", added, skipped))
}

// handleAdminMedia adds a captioned file sent by an admin to the catalog. Posts forwarded
// from a channel keep their source so repeats are detected.
func (b *Bot) handleAdminMedia(ctx context.Context, msg *tgbotapi.Message) {
	fileID, ft := mediaOf(msg)
	post := catalog.Post{
		Caption:  caption.Parse(msg.Caption),
		FileID:   fileID,
		FileType: ft,
	}
	if msg.ForwardFromChat != nil && msg.ForwardFromMessageID != 0 {
		post.SourceChatID = strconv.FormatInt(msg.ForwardFromChat.ID, 10)
		post.SourceMessageID = int64(msg.ForwardFromMessageID)
	}
	out, err := b.catalog.Ingest(ctx, post)
	if err != nil {
		b.log.Error("ingest admin media", "user_id", msg.From.ID, "error", err)
		b.reply(msg.Chat.ID, fmt.Sprintf("Error: %v", err))
		return
	}
	title := post.Caption.Title
	if post.Caption.Episode > 0 {
		title = fmt.Sprintf("%s, %d-qism", title, post.Caption.Episode)
	}
	b.reply(msg.Chat.ID, FormatIngestOutcome(out, title))
}

// startBroadcast copies msg to every user in the background, reporting progress by
// editing a status message.
func (b *Bot) startBroadcast(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	status, err := b.api.Send(tgbotapi.NewMessage(chatID, "📤 Yuborilmoqda..."))
	if err != nil {
		b.log.Error("send broadcast status", "error", err)
	}
	progress := func(done, total int) {
		b.edit(chatID, status.MessageID, fmt.Sprintf("📤 Yuborilmoqda... %d/%d", done, total), nil)
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		res, err := b.broadcaster.Send(ctx, chatID, msg.MessageID, progress)
		if err != nil {
			b.log.Error("broadcast", "error", err)
		}
		b.edit(chatID, status.MessageID, formatBroadcastResult(res, err), nil)
	}()
}

func formatBroadcastResult(r broadcast.Result, err error) string {
	head := "✅ Broadcast yakunlandi!"
	if err != nil {
		head = "⚠️ Broadcast to'xtatildi."
	}
	return fmt.Sprintf("%s\n\n✅ Muvaffaqiyatli: %d\n❌ Xatolik: %d\n👥 Jami: %d", head, r.Sent, r.Failed, r.Total)
}
