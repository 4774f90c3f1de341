package bot

import (
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"kinobot/internal/model"
)

const (
	episodesPerPage = 10
	episodesPerRow  = 5
	maxButtonName   = 28
)

var categoryLabels = map[string]string{
	model.CategoryKino:     "🎬 Kino",
	model.CategoryAnime:    "🎌 Anime",
	model.CategoryDorama:   "🇰🇷 Dorama",
	model.CategoryMultfilm: "🧒 Multfilm",
}

func mainKeyboard(premium, admin bool) tgbotapi.ReplyKeyboardMarkup {
	premiumBtn := btnPremium
	if premium {
		premiumBtn = btnPremiumActive
	}
	rows := [][]tgbotapi.KeyboardButton{
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnSearch), tgbotapi.NewKeyboardButton(btnCategories)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnTrending), tgbotapi.NewKeyboardButton(btnRecommendations)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(premiumBtn), tgbotapi.NewKeyboardButton(btnHelp)),
	}
	if admin {
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnAdmin)))
	}
	kb := tgbotapi.NewReplyKeyboard(rows...)
	kb.ResizeKeyboard = true
	return kb
}

// subscriptionKeyboard has one link button per channel and a re-check button.
func subscriptionKeyboard(channels []model.Channel) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for i, ch := range channels {
		url := ch.URL()
		if url == "" {
			continue
		}
		label := fmt.Sprintf("%d. %s", i+1, shorten(channelName(ch), maxButtonName))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL(label, url)))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("✅ Obunani tekshirish", cbCheckSub),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func categoriesKeyboard() tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, c := range model.Categories {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(categoryLabels[c], callbackData(cbCategory, c)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔙 Orqaga", cbBackMain)))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// movieListKeyboard lists movies one per row, followed by a back button.
func movieListKeyboard(movies []model.Movie, back string) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for i, m := range movies {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("%d. %s", i+1, m.Title), callbackData(cbMovie, m.ID)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔙 Orqaga", back)))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func searchResultsKeyboard(movies []model.Movie) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for i, m := range movies {
		label := fmt.Sprintf("%d. %s (%s)", i+1, m.Title, mediaTag(&m))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, callbackData(cbMovie, m.ID)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔙 Asosiy menyu", cbBackMain)))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func recommendationsKeyboard(movies []model.Movie) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, m := range movies {
		label := fmt.Sprintf("%s: %s", categoryLabels[m.Category], m.Title)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, callbackData(cbMovie, m.ID)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// movieKeyboard offers similar movies and a way back to the menu.
func movieKeyboard(similar []model.Movie) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, m := range similar {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🎬 "+m.Title, callbackData(cbMovie, m.ID)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔙 Asosiy menyu", cbBackMain)))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// episodesKeyboard is a numeric keypad of one page of episodes with page navigation.
// Out-of-range pages are clamped.
func episodesKeyboard(movieID int64, episodes []model.Episode, page int) tgbotapi.InlineKeyboardMarkup {
	if len(episodes) == 0 {
		return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔙 Asosiy menyu", cbBackMain),
		))
	}
	pages := (len(episodes) + episodesPerPage - 1) / episodesPerPage
	page = max(1, min(page, pages))
	start := (page - 1) * episodesPerPage
	end := min(start+episodesPerPage, len(episodes))

	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, e := range episodes[start:end] {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(strconv.Itoa(e.Number), callbackData(cbEpisode, movieID, e.Number)))
		if len(row) == episodesPerRow {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}

	var nav []tgbotapi.InlineKeyboardButton
	if page > 1 {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("⬅️", callbackData(cbEpisodes, movieID, page-1)))
	}
	nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("❌", cbBackMain))
	if page < pages {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("➡️", callbackData(cbEpisodes, movieID, page+1)))
	}
	rows = append(rows, nav)
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// episodeKeyboard is attached to a delivered episode: neighbours and the full list.
func episodeKeyboard(movieID int64, number int, episodes []model.Episode) tgbotapi.InlineKeyboardMarkup {
	var nav []tgbotapi.InlineKeyboardButton
	for i, e := range episodes {
		if e.Number != number {
			continue
		}
		if i > 0 {
			prev := episodes[i-1].Number
			nav = append(nav, tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("⬅️ %d-qism", prev), callbackData(cbEpisode, movieID, prev)))
		}
		if i < len(episodes)-1 {
			next := episodes[i+1].Number
			nav = append(nav, tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("%d-qism ➡️", next), callbackData(cbEpisode, movieID, next)))
		}
		break
	}
	var rows [][]tgbotapi.InlineKeyboardButton
	if len(nav) > 0 {
		rows = append(rows, nav)
	}
	page := 1
	for i, e := range episodes {
		if e.Number == number {
			page = i/episodesPerPage + 1
			break
		}
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("📺 Barcha qismlar", callbackData(cbEpisodes, movieID, page)),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func buyPremiumKeyboard(price int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("💳 Premium sotib olish (%s so'm)", formatSum(price)), cbBuyPremium),
	))
}

func paymentReviewKeyboard(paymentID int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("✅ Tasdiqlash", callbackData(cbPayApprove, paymentID)),
		tgbotapi.NewInlineKeyboardButtonData("❌ Rad etish", callbackData(cbPayDeny, paymentID)),
	))
}

func channelsKeyboard(channels []model.Channel) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, ch := range channels {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❌ "+shorten(channelName(ch), maxButtonName), callbackData(cbDeleteChannel, ch.ID)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func channelName(ch model.Channel) string {
	if ch.Name != "" {
		return ch.Name
	}
	return ch.ChatID
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
