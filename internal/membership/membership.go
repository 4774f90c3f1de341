// Package membership checks channel membership through the Telegram Bot API.
package membership

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"kinobot/internal/model"
)

// chatAPI is the subset of tgbotapi.BotAPI the checker needs.
type chatAPI interface {
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
}

// Telegram resolves member statuses with getChatMember.
type Telegram struct {
	api chatAPI
}

// NewTelegram creates a checker backed by api.
func NewTelegram(api chatAPI) *Telegram {
	return &Telegram{api: api}
}

// MemberStatus returns the user's status in the channel. The call is abandoned when ctx is
// done; tgbotapi has no context support, so the request itself runs to completion in the background.
func (t *Telegram) MemberStatus(ctx context.Context, chatID string, userID int64) (model.MemberStatus, error) {
	cfg := tgbotapi.GetChatMemberConfig{ChatConfigWithUser: chatConfig(chatID, userID)}

	type result struct {
		member tgbotapi.ChatMember
		err    error
	}
	done := make(chan result, 1)
	go func() {
		m, err := t.api.GetChatMember(cfg)
		done <- result{m, err}
	}()

	select {
	case <-ctx.Done():
		return model.StatusUnknown, fmt.Errorf("get chat member %s: %w", chatID, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return model.StatusUnknown, fmt.Errorf("get chat member %s: %w", chatID, r.err)
		}
		return ParseStatus(r.member.Status), nil
	}
}

// ParseStatus maps a Bot API status string to a MemberStatus.
func ParseStatus(s string) model.MemberStatus {
	switch model.MemberStatus(s) {
	case model.StatusMember, model.StatusAdministrator, model.StatusCreator,
		model.StatusRestricted, model.StatusLeft, model.StatusKicked:
		return model.MemberStatus(s)
	}
	if s == "owner" {
		return model.StatusCreator
	}
	return model.StatusUnknown
}

func chatConfig(chatID string, userID int64) tgbotapi.ChatConfigWithUser {
	if id, err := strconv.ParseInt(chatID, 10, 64); err == nil {
		return tgbotapi.ChatConfigWithUser{ChatID: id, UserID: userID}
	}
	return tgbotapi.ChatConfigWithUser{SuperGroupUsername: "@" + strings.TrimPrefix(chatID, "@"), UserID: userID}
}
