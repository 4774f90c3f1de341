package bot

import (
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"kinobot/internal/catalog"
	"kinobot/internal/gate"
	"kinobot/internal/model"
)

const helpText = `ℹ️ Yordam

🔍 Qidirish: kino nomi yoki kodini yuboring.
🎬 Kategoriyalar: kino, anime, dorama, multfilm.
🔥 Trend: oxirgi 7 kunning eng ko'p ko'rilganlari.
⭐ Tavsiyalar: har bir kategoriyaning eng yaxshisi.
💎 Premium: majburiy obunasiz foydalanish.

Buyruqlar:
/search, /categories, /trending, /recommendations, /premium
/cancel — joriy amalni bekor qilish`

const adminHelpText = `🛠 Admin buyruqlari

/stats — statistika
/topsearches — top qidiruvlar
/addchannel <kanal> <zayafka|public> [invite link] [nomi]
/channels — majburiy kanallar (o'chirish tugmalari bilan)
/delchannel <kanal>
/delmovie <kod>
/setprice <narx>
/setcard <karta raqami>
/setowner <karta egasi>
/grant <user_id> [kunlar], /revoke <user_id>
/rotate <user_id> — bugungi kanallarni qayta tanlash
/broadcast — keyingi xabarni hammaga yuborish
/addsource <url> [kategoriya] [daqiqa], /sources, /delsource <id>
/scan — har qatorda: https://t.me/c/123/456 | Nomi: ... | Qism: 1

Izohli video yoki fayl yuborsangiz, u katalogga qo'shiladi.`

const categoriesText = "🎬 Kategoriyalar\n\nKategoriyani tanlang:"

// FormatWelcome is the /start greeting.
func FormatWelcome(firstName string, premium bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "👋 Assalomu alaykum, %s!\n\n", firstName)
	b.WriteString("🎬 Kino va Seriallar Botga xush kelibsiz!\n\n")
	b.WriteString("Bu botda kino, serial, anime va doramalarni topishingiz mumkin.\n\n")
	b.WriteString("🔍 Qidirish: kino nomi yoki kodini yuboring\n")
	b.WriteString("📂 Kategoriyalar: turli kategoriyalarni ko'ring\n")
	b.WriteString("🔥 Trend: eng mashhur kinolarni toping\n")
	if premium {
		b.WriteString("💎 Premium: obunangiz faol!")
	} else {
		b.WriteString("💎 Premium: majburiy obunasiz foydalanish")
	}
	return b.String()
}

// FormatSubscription renders a denied gate decision: each channel with its status and
// the number still pending.
func FormatSubscription(d gate.Decision) string {
	var b strings.Builder
	b.WriteString("🔒 Majburiy obuna\n\n")
	b.WriteString("Botdan foydalanishdan oldin quyidagi kanallarga obuna bo'ling:\n\n")
	for i, ch := range d.Channels {
		icon := "❌"
		if d.Subscribed[ch.ChatID] {
			icon = "✅"
		}
		fmt.Fprintf(&b, "%d. %s %s\n", i+1, icon, channelName(ch))
	}
	if d.Pending > 0 {
		fmt.Fprintf(&b, "\nQolgan kanallar: %d", d.Pending)
	}
	b.WriteString("\n\nObuna bo'lgandan keyin pastdagi tugmani bosing.")
	return b.String()
}

// FormatGateWarning tells an admin why the gate let everyone through.
func FormatGateWarning(r gate.Reason) string {
	if r == gate.ReasonMisconfigured {
		return "⚠️ Majburiy obuna kanallari noto'g'ri sozlangan. Kanallarga invite link qo'shing."
	}
	return "⚠️ Hozircha faol majburiy obuna kanallari yo'q."
}

// FormatMovie is the info card sent with a movie.
func FormatMovie(m *model.Movie) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🎬 %s\n\n", m.Title)
	if m.Description != "" {
		fmt.Fprintf(&b, "📝 %s\n\n", m.Description)
	}
	if m.Year > 0 {
		fmt.Fprintf(&b, "📅 Yil: %d\n", m.Year)
	}
	if m.Rating > 0 {
		fmt.Fprintf(&b, "⭐ Reyting: %s/10\n", strconv.FormatFloat(m.Rating, 'f', -1, 64))
	}
	fmt.Fprintf(&b, "👁 Ko'rildi: %d marta\n", m.Views)
	fmt.Fprintf(&b, "🔢 Kod: %s\n", m.Code)
	fmt.Fprintf(&b, "📂 Kategoriya: %s", capitalize(m.Category))
	return b.String()
}

// FormatEpisodesHeader introduces the episode picker of a series.
func FormatEpisodesHeader(m *model.Movie, total int) string {
	if total == 0 {
		return fmt.Sprintf("📺 %s\n\nHozircha qismlar yo'q.", m.Title)
	}
	return fmt.Sprintf("📺 %s\n\nJami qismlar: %d\n🔢 Kod: %s\n\nQismni tanlang:", m.Title, total, m.Code)
}

// FormatEpisode is the caption of a delivered episode.
func FormatEpisode(m *model.Movie, e *model.Episode) string {
	title := e.Title
	if title == "" {
		title = fmt.Sprintf("%d-qism", e.Number)
	}
	return fmt.Sprintf("📺 %s\n🎞 %s", m.Title, title)
}

// FormatSearchHeader introduces a multi-result search.
func FormatSearchHeader(res catalog.SearchResult) string {
	if res.Match == catalog.MatchFuzzy {
		return "🔎 O'xshash natijalar topildi\n\nKeraklisini tanlang:"
	}
	return fmt.Sprintf("🔍 %d ta natija topildi\n\nKeraklisini tanlang:", len(res.Movies))
}

// FormatCategory lists a category with view counts.
func FormatCategory(category string, movies []model.Movie) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", categoryLabels[category])
	for i, m := range movies {
		fmt.Fprintf(&b, "%d. %s - 👁 %d\n", i+1, m.Title, m.Views)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatTrending lists the trending movies with their recent views.
func FormatTrending(ts []model.TrendingMovie) string {
	var b strings.Builder
	b.WriteString("🔥 TOP 10 Trend\n\n")
	for i, t := range ts {
		fmt.Fprintf(&b, "%d. %s - 👁 %d\n", i+1, t.Movie.Title, t.RecentViews)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatRecommendations introduces the per-category picks.
func FormatRecommendations(ms []model.Movie) string {
	var b strings.Builder
	b.WriteString("⭐ Sizga tavsiyalar\n\n")
	for _, m := range ms {
		fmt.Fprintf(&b, "%s: %s (👁 %d)\n", categoryLabels[m.Category], m.Title, m.Views)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatPremiumActive shows the expiry of an active grant.
func FormatPremiumActive(u *model.User) string {
	until := "—"
	if u.PremiumUntil != nil {
		until = u.PremiumUntil.Format("2006-01-02 15:04")
	}
	return fmt.Sprintf("💎 Premium muddati: %s gacha\n\nMajburiy obunasiz foydalanishingiz mumkin.", until)
}

// FormatPremiumOffer describes premium to a non-premium user.
func FormatPremiumOffer(price int64) string {
	return fmt.Sprintf("💎 Premium xizmat\n\n"+
		"✅ Majburiy kanallarga obunasiz foydalanish\n"+
		"✅ Barcha kino va seriallar\n\n"+
		"💰 Narxi: %s so'm / oy", formatSum(price))
}

// FormatPaymentInstructions tells the user where to pay and what to send back.
func FormatPaymentInstructions(price int64, card, owner string) string {
	var b strings.Builder
	b.WriteString("💎 Premium xizmat\n\n")
	fmt.Fprintf(&b, "💰 Narxi: %s so'm\n", formatSum(price))
	fmt.Fprintf(&b, "💳 Karta: %s\n", card)
	if owner != "" {
		fmt.Fprintf(&b, "👤 Karta egasi: %s\n", owner)
	}
	b.WriteString("\nTo'lovdan so'ng chek rasmini shu yerga yuboring.\nBekor qilish: /cancel")
	return b.String()
}

// FormatPaymentReview is sent to admins next to a forwarded receipt.
func FormatPaymentReview(p *model.Payment, from *tgbotapi.User) string {
	return fmt.Sprintf("🧾 Yangi to'lov #%d\n\n👤 %s (ID: %d)\n💰 %s so'm",
		p.ID, userLabel(from), p.UserID, formatSum(p.Amount))
}

// FormatPaymentDecided replaces the review message once an admin decided.
func FormatPaymentDecided(p *model.Payment, admin *tgbotapi.User) string {
	verdict := "✅ Tasdiqlandi"
	if p.Status == model.PaymentDenied {
		verdict = "❌ Rad etildi"
	}
	return fmt.Sprintf("🧾 To'lov #%d (user %d, %s so'm)\n%s: %s",
		p.ID, p.UserID, formatSum(p.Amount), verdict, userLabel(admin))
}

// FormatStats is the admin dashboard.
func FormatStats(st *model.Statistics) string {
	var b strings.Builder
	b.WriteString("📊 Statistika\n\n")
	fmt.Fprintf(&b, "👥 Jami foydalanuvchilar: %d\n", st.TotalUsers)
	fmt.Fprintf(&b, "💎 Premium foydalanuvchilar: %d\n", st.PremiumUsers)
	fmt.Fprintf(&b, "📅 Bugun faol: %d\n\n", st.TodayActive)
	fmt.Fprintf(&b, "🎬 Jami kinolar: %d\n", st.TotalMovies)
	fmt.Fprintf(&b, "📺 Seriallar: %d\n\n", st.TotalSeries)
	fmt.Fprintf(&b, "🔍 Jami qidiruvlar: %d\n", st.TotalSearches)
	fmt.Fprintf(&b, "👁 Jami ko'rishlar: %d\n", st.TotalViews)
	fmt.Fprintf(&b, "📢 Faol kanallar: %d", st.ActiveChannels)
	return b.String()
}

// FormatTopSearches lists the most frequent queries.
func FormatTopSearches(top []model.SearchCount) string {
	if len(top) == 0 {
		return "📊 Hozircha qidiruvlar yo'q."
	}
	var b strings.Builder
	b.WriteString("📊 Top qidiruvlar\n\n")
	for i, s := range top {
		fmt.Fprintf(&b, "%d. %s — %d marta\n", i+1, s.Query, s.Count)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatRotation lists a user's freshly selected channels for day.
func FormatRotation(userID int64, day string, chs []model.Channel) string {
	if len(chs) == 0 {
		return fmt.Sprintf("🔄 %d uchun %s: faol kanallar yo'q.", userID, day)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🔄 %d uchun %s kanallari yangilandi:\n", userID, day)
	for i, ch := range chs {
		fmt.Fprintf(&b, "\n%d. %s [%s]", i+1, channelName(ch), ch.Type)
	}
	return b.String()
}

// FormatChannels lists the mandatory channels for admins.
func FormatChannels(chs []model.Channel) string {
	if len(chs) == 0 {
		return "📢 Majburiy kanallar yo'q. /addchannel bilan qo'shing."
	}
	var b strings.Builder
	b.WriteString("📢 Majburiy kanallar\n")
	for _, ch := range chs {
		status := "faol"
		if !ch.IsActive {
			status = "o'chirilgan"
		}
		fmt.Fprintf(&b, "\n#%d %s [%s, %s]\n   %s", ch.ID, channelName(ch), ch.Type, status, ch.ChatID)
		if url := ch.URL(); url != "" {
			fmt.Fprintf(&b, "  %s", url)
		} else {
			b.WriteString("  (link yo'q)")
		}
	}
	return b.String()
}

// FormatSources lists the ingest sources for admins.
func FormatSources(srcs []model.Source) string {
	if len(srcs) == 0 {
		return "📥 Manbalar yo'q. /addsource bilan qo'shing."
	}
	var b strings.Builder
	b.WriteString("📥 Manbalar\n")
	for _, s := range srcs {
		status := "faol"
		if !s.IsActive {
			status = "to'xtatilgan"
		}
		category := s.Category
		if category == "" {
			category = "avto"
		}
		fmt.Fprintf(&b, "\n#%d %s (har %d daq., %s) [%s]\n   %s", s.ID, s.Name, s.IntervalMinutes, category, status, s.URL)
		if s.LastCheckAt != nil {
			fmt.Fprintf(&b, "\n   Oxirgi tekshiruv: %s", s.LastCheckAt.Format("2006-01-02 15:04"))
		}
	}
	return b.String()
}

// FormatIngestOutcome reports what happened to an admin-sent post.
func FormatIngestOutcome(o catalog.Outcome, c string) string {
	switch o {
	case catalog.OutcomeMovie:
		return fmt.Sprintf("✅ Kino qo'shildi: %s", c)
	case catalog.OutcomeEpisode:
		return fmt.Sprintf("✅ Qism qo'shildi: %s", c)
	case catalog.OutcomeDuplicate:
		return fmt.Sprintf("⚠️ Allaqachon mavjud: %s", c)
	default:
		return "⚠️ Izohdan nom topilmadi. Masalan: \"Nomi: Avatar\" yoki \"Avatar 1-qism\"."
	}
}

func mediaTag(m *model.Movie) string {
	if m.IsSeries() {
		return "serial"
	}
	return m.Category
}

func userLabel(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if u.UserName != "" {
		return fmt.Sprintf("%s (@%s)", name, u.UserName)
	}
	return name
}

// formatSum groups thousands with spaces: 15000 → "15 000".
func formatSum(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
