package bot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"kinobot/internal/model"
	"kinobot/internal/storage"
)

const sendFailedText = "❌ Video yuborilmadi. Kanalga bot qo'shilganini tekshiring."

// sendMovie delivers a movie (or the episode picker of a series) and accounts a view.
func (b *Bot) sendMovie(ctx context.Context, chatID, userID, movieID int64) {
	m, err := b.catalog.View(ctx, userID, movieID)
	if errors.Is(err, storage.ErrNotFound) {
		b.reply(chatID, "Kino topilmadi.")
		return
	}
	if err != nil {
		b.log.Error("view movie", "movie_id", movieID, "error", err)
		b.reply(chatID, errText)
		return
	}

	if m.IsSeries() {
		episodes, err := b.catalog.Episodes(ctx, m.ID)
		if err != nil {
			b.log.Error("list episodes", "movie_id", m.ID, "error", err)
			b.reply(chatID, errText)
			return
		}
		b.replyWithMarkup(chatID, FormatEpisodesHeader(m, len(episodes)), episodesKeyboard(m.ID, episodes, 1))
		return
	}

	similar, err := b.catalog.Similar(ctx, m)
	if err != nil {
		b.log.Warn("similar movies", "movie_id", m.ID, "error", err)
	}
	kb := movieKeyboard(similar)
	info := FormatMovie(m)

	if m.FileType == model.FileChannel {
		if err := b.copyFrom(chatID, m.SourceChatID, m.SourceMessageID, nil); err != nil {
			b.log.Error("copy movie post", "movie_id", m.ID, "error", err)
			b.reply(chatID, sendFailedText)
			return
		}
		b.replyWithMarkup(chatID, info, kb)
		return
	}
	if err := b.sendFile(chatID, m.FileID, m.FileType, info, kb); err != nil {
		b.log.Error("send movie", "movie_id", m.ID, "error", err)
		b.reply(chatID, sendFailedText)
	}
}

func (b *Bot) showEpisodes(ctx context.Context, cb *tgbotapi.CallbackQuery, movieID int64, page int) {
	m, err := b.catalog.Movie(ctx, movieID)
	if err != nil {
		b.answer(cb.ID, "Serial topilmadi", true)
		return
	}
	episodes, err := b.catalog.Episodes(ctx, movieID)
	if err != nil || len(episodes) == 0 {
		b.answer(cb.ID, "Qismlar topilmadi", true)
		return
	}
	kb := episodesKeyboard(movieID, episodes, page)
	b.edit(cb.Message.Chat.ID, cb.Message.MessageID, FormatEpisodesHeader(m, len(episodes)), &kb)
	b.answer(cb.ID, "", false)
}

func (b *Bot) sendEpisode(ctx context.Context, chatID, userID, movieID int64, number int) {
	m, err := b.catalog.Movie(ctx, movieID)
	if err != nil {
		b.reply(chatID, "Serial topilmadi.")
		return
	}
	e, err := b.catalog.Episode(ctx, userID, movieID, number)
	if errors.Is(err, storage.ErrNotFound) {
		b.reply(chatID, "Qism topilmadi.")
		return
	}
	if err != nil {
		b.log.Error("get episode", "movie_id", movieID, "episode", number, "error", err)
		b.reply(chatID, errText)
		return
	}
	episodes, err := b.catalog.Episodes(ctx, movieID)
	if err != nil {
		b.log.Warn("list episodes", "movie_id", movieID, "error", err)
	}
	kb := episodeKeyboard(movieID, number, episodes)
	text := FormatEpisode(m, e)

	if e.FileType == model.FileChannel {
		if err := b.copyFrom(chatID, e.SourceChatID, e.SourceMessageID, nil); err != nil {
			b.log.Error("copy episode post", "movie_id", movieID, "episode", number, "error", err)
			b.reply(chatID, sendFailedText)
			return
		}
		b.replyWithMarkup(chatID, text, kb)
		return
	}
	if err := b.sendFile(chatID, e.FileID, e.FileType, text, kb); err != nil {
		b.log.Error("send episode", "movie_id", movieID, "episode", number, "error", err)
		b.reply(chatID, sendFailedText)
	}
}

// sendFile sends a stored file by its Telegram file ID. Unknown types are sent as video.
func (b *Bot) sendFile(chatID int64, fileID string, ft model.FileType, caption string, markup tgbotapi.InlineKeyboardMarkup) error {
	file := tgbotapi.FileID(fileID)
	var c tgbotapi.Chattable
	switch ft {
	case model.FileDocument:
		cfg := tgbotapi.NewDocument(chatID, file)
		cfg.Caption, cfg.ReplyMarkup = caption, markup
		c = cfg
	case model.FileAnimation:
		cfg := tgbotapi.NewAnimation(chatID, file)
		cfg.Caption, cfg.ReplyMarkup = caption, markup
		c = cfg
	case model.FilePhoto:
		cfg := tgbotapi.NewPhoto(chatID, file)
		cfg.Caption, cfg.ReplyMarkup = caption, markup
		c = cfg
	default:
		cfg := tgbotapi.NewVideo(chatID, file)
		cfg.Caption, cfg.ReplyMarkup = caption, markup
		c = cfg
	}
	if _, err := b.api.Send(c); err != nil {
		return fmt.Errorf("send %s: %w", ft, err)
	}
	return nil
}

func hasMedia(msg *tgbotapi.Message) bool {
	_, ft := mediaOf(msg)
	return ft != ""
}

// mediaOf returns the file ID and type of the media attached to msg.
func mediaOf(msg *tgbotapi.Message) (string, model.FileType) {
	switch {
	case msg.Video != nil:
		return msg.Video.FileID, model.FileVideo
	case msg.Document != nil:
		return msg.Document.FileID, model.FileDocument
	case msg.Animation != nil:
		return msg.Animation.FileID, model.FileAnimation
	case len(msg.Photo) > 0:
		return msg.Photo[len(msg.Photo)-1].FileID, model.FilePhoto
	}
	return "", ""
}
