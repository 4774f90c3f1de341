package bot

import (
	"fmt"
	"strconv"
	"strings"

	"kinobot/internal/caption"
	"kinobot/internal/model"
)

// Callback actions.
const (
	cbCheckSub       = "check_sub"
	cbBackMain       = "back_main"
	cbBackCategories = "back_cat"
	cbBuyPremium     = "buy_premium"
	cbCategory       = "cat"
	cbMovie          = "movie"
	cbEpisodes       = "eps"
	cbEpisode        = "ep"
	cbPayApprove     = "pay_ok"
	cbPayDeny        = "pay_no"
	cbDeleteChannel  = "delch"
)

// Callback is decoded inline button data of the form action[:arg[:page]].
type Callback struct {
	Action string
	// Arg is the raw first argument; ID is Arg parsed as a number when numeric.
	Arg  string
	ID   int64
	Page int
}

// ParseCallback decodes inline button data.
func ParseCallback(data string) (Callback, error) {
	parts := strings.Split(data, ":")
	c := Callback{Action: parts[0]}
	if c.Action == "" || len(parts) > 3 {
		return Callback{}, fmt.Errorf("malformed callback %q", data)
	}

	switch c.Action {
	case cbCheckSub, cbBackMain, cbBackCategories, cbBuyPremium:
		return c, nil
	case cbCategory:
		if len(parts) != 2 || parts[1] == "" {
			return Callback{}, fmt.Errorf("malformed callback %q", data)
		}
		c.Arg = parts[1]
		return c, nil
	case cbMovie, cbPayApprove, cbPayDeny, cbDeleteChannel, cbEpisodes, cbEpisode:
	default:
		return Callback{}, fmt.Errorf("unknown callback action %q", c.Action)
	}

	if len(parts) < 2 {
		return Callback{}, fmt.Errorf("callback %q has no id", data)
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || id <= 0 {
		return Callback{}, fmt.Errorf("invalid id in callback %q", data)
	}
	c.Arg, c.ID = parts[1], id

	switch c.Action {
	case cbEpisodes:
		c.Page = 1
		if len(parts) == 3 {
			if c.Page, err = strconv.Atoi(parts[2]); err != nil {
				return Callback{}, fmt.Errorf("invalid page in callback %q", data)
			}
		}
	case cbEpisode:
		if len(parts) != 3 {
			return Callback{}, fmt.Errorf("callback %q has no episode number", data)
		}
		if c.Page, err = strconv.Atoi(parts[2]); err != nil || c.Page <= 0 {
			return Callback{}, fmt.Errorf("invalid episode in callback %q", data)
		}
	default:
		if len(parts) == 3 {
			return Callback{}, fmt.Errorf("malformed callback %q", data)
		}
	}
	return c, nil
}

func callbackData(action string, args ...any) string {
	parts := []string{action}
	for _, a := range args {
		parts = append(parts, fmt.Sprint(a))
	}
	return strings.Join(parts, ":")
}

// ParseIDArg extracts a numeric ID from a command argument string.
func ParseIDArg(args string) (int64, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return 0, fmt.Errorf("ID is required")
	}
	id, err := strconv.ParseInt(strings.Fields(s)[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid ID %q", s)
	}
	return id, nil
}

// ChannelArgs are the parsed arguments of /addchannel.
type ChannelArgs struct {
	ChatID     string
	Type       model.ChannelType
	InviteLink string
	Name       string
}

// ParseChannelArgs parses "/addchannel <channel> <zayafka|public> [invite link] [name...]".
// The channel may be a -100 ID, an @handle or a t.me link.
func ParseChannelArgs(args string) (ChannelArgs, error) {
	parts := strings.Fields(args)
	if len(parts) < 2 {
		return ChannelArgs{}, fmt.Errorf("usage: /addchannel <kanal> <zayafka|public> [invite link] [nomi]")
	}
	chatID, ok := caption.ParseChannelInput(parts[0])
	if !ok {
		return ChannelArgs{}, fmt.Errorf("kanal ID yoki username noto'g'ri: %q", parts[0])
	}
	typ := model.ChannelType(strings.ToLower(parts[1]))
	if !typ.Valid() {
		return ChannelArgs{}, fmt.Errorf("kanal turi zayafka yoki public bo'lishi kerak, %q emas", parts[1])
	}

	a := ChannelArgs{ChatID: chatID, Type: typ}
	rest := parts[2:]
	if len(rest) > 0 {
		if link, ok := caption.ParseInviteLink(rest[0]); ok {
			a.InviteLink = link
			rest = rest[1:]
		}
	}
	a.Name = strings.Join(rest, " ")
	if a.Name == "" {
		a.Name = chatID
	}
	return a, nil
}

// ParseGrantArgs parses "<user_id> [days]". Days is zero when omitted.
func ParseGrantArgs(args string) (int64, int, error) {
	parts := strings.Fields(args)
	if len(parts) == 0 || len(parts) > 2 {
		return 0, 0, fmt.Errorf("usage: /grant <user_id> [kunlar]")
	}
	userID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || userID <= 0 {
		return 0, 0, fmt.Errorf("user ID noto'g'ri: %q", parts[0])
	}
	if len(parts) == 1 {
		return userID, 0, nil
	}
	days, err := strconv.Atoi(parts[1])
	if err != nil || days < 1 || days > 3650 {
		return 0, 0, fmt.Errorf("kunlar soni 1 dan 3650 gacha bo'lishi kerak")
	}
	return userID, days, nil
}

// SourceArgs are the parsed arguments of /addsource.
type SourceArgs struct {
	URL             string
	Category        string
	IntervalMinutes int
}

// ParseSourceArgs parses "<url> [category] [interval minutes]".
func ParseSourceArgs(args string) (SourceArgs, error) {
	parts := strings.Fields(args)
	if len(parts) == 0 || len(parts) > 3 {
		return SourceArgs{}, fmt.Errorf("usage: /addsource <url> [kategoriya] [daqiqa]")
	}
	if !strings.HasPrefix(parts[0], "http://") && !strings.HasPrefix(parts[0], "https://") {
		return SourceArgs{}, fmt.Errorf("URL http:// yoki https:// bilan boshlanishi kerak")
	}
	a := SourceArgs{URL: parts[0], IntervalMinutes: 30}
	for _, p := range parts[1:] {
		if n, err := strconv.Atoi(p); err == nil {
			if n < 1 || n > 1440 {
				return SourceArgs{}, fmt.Errorf("interval 1 dan 1440 daqiqagacha bo'lishi kerak")
			}
			a.IntervalMinutes = n
			continue
		}
		c := strings.ToLower(p)
		if !isCategory(c) {
			return SourceArgs{}, fmt.Errorf("noma'lum kategoriya %q", p)
		}
		a.Category = c
	}
	return a, nil
}

func isCategory(c string) bool {
	for _, k := range model.Categories {
		if k == c {
			return true
		}
	}
	return false
}
