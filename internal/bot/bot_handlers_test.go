package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/go-cmp/cmp"

	"kinobot/internal/catalog"
	"kinobot/internal/config"
	"kinobot/internal/fetcher"
	"kinobot/internal/gate"
	"kinobot/internal/model"
	"kinobot/internal/premium"
	"kinobot/internal/rotation"
	"kinobot/internal/session"
	"kinobot/internal/storage"
)

const (
	adminID int64 = 1
	userID  int64 = 100
)

// --- mocks ---

type sentMsg struct {
	ChatID int64
	Text   string
	Markup any
}

type mockAPI struct {
	mu        sync.Mutex
	nextID    int
	sent      []sentMsg
	media     []tgbotapi.Chattable
	copies    []tgbotapi.CopyMessageConfig
	edits     []tgbotapi.EditMessageTextConfig
	callbacks []tgbotapi.CallbackConfig
	deleted   int
	failCopy  bool
}

func (m *mockAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	switch v := c.(type) {
	case tgbotapi.MessageConfig:
		m.sent = append(m.sent, sentMsg{ChatID: v.ChatID, Text: v.Text, Markup: v.ReplyMarkup})
	case tgbotapi.VideoConfig, tgbotapi.DocumentConfig, tgbotapi.AnimationConfig, tgbotapi.PhotoConfig:
		m.media = append(m.media, c)
	}
	return tgbotapi.Message{MessageID: m.nextID}, nil
}

func (m *mockAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch v := c.(type) {
	case tgbotapi.CopyMessageConfig:
		if m.failCopy {
			return nil, errors.New("chat not found")
		}
		m.copies = append(m.copies, v)
	case tgbotapi.EditMessageTextConfig:
		m.edits = append(m.edits, v)
	case tgbotapi.CallbackConfig:
		m.callbacks = append(m.callbacks, v)
	case tgbotapi.DeleteMessageConfig:
		m.deleted++
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (m *mockAPI) GetUpdatesChan(_ tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(tgbotapi.UpdatesChannel)
}

func (m *mockAPI) StopReceivingUpdates() {}

func (m *mockAPI) lastText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return ""
	}
	return m.sent[len(m.sent)-1].Text
}

func (m *mockAPI) lastSent() sentMsg {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return sentMsg{}
	}
	return m.sent[len(m.sent)-1]
}

func (m *mockAPI) textsTo(chatID int64) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, s := range m.sent {
		if s.ChatID == chatID {
			out = append(out, s.Text)
		}
	}
	return out
}

func (m *mockAPI) allTexts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sent))
	for i, s := range m.sent {
		out[i] = s.Text
	}
	return out
}

func (m *mockAPI) lastEdit() tgbotapi.EditMessageTextConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.edits) == 0 {
		return tgbotapi.EditMessageTextConfig{}
	}
	return m.edits[len(m.edits)-1]
}

func (m *mockAPI) lastCallback() tgbotapi.CallbackConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.callbacks) == 0 {
		return tgbotapi.CallbackConfig{}
	}
	return m.callbacks[len(m.callbacks)-1]
}

func (m *mockAPI) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent, m.media, m.copies, m.edits, m.callbacks, m.deleted = nil, nil, nil, nil, nil, 0
}

type mockHTTPClient struct {
	body string
	err  error
}

func (m *mockHTTPClient) Do(_ *http.Request) (*http.Response, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &http.Response{
		StatusCode: 200,
		Body:       io.NopCloser(bytes.NewBufferString(m.body)),
	}, nil
}

type fakeGate struct {
	mu       sync.Mutex
	decision gate.Decision
	err      error
	calls    int
}

func (g *fakeGate) Enforce(_ context.Context, _ int64) (gate.Decision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.decision, g.err
}

// --- helpers ---

func allowAll() *fakeGate {
	return &fakeGate{decision: gate.Decision{Allowed: true, Reason: gate.ReasonSatisfied}}
}

func denyWith(channels ...model.Channel) *fakeGate {
	return &fakeGate{decision: gate.Decision{
		Reason:     gate.ReasonPending,
		Channels:   channels,
		Subscribed: map[string]bool{},
		Pending:    len(channels),
	}}
}

func newTestBot(t *testing.T, httpBody string, g Enforcer) (*Bot, *mockAPI, *storage.SQLite) {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	api := &mockAPI{}
	d := Deps{
		Store:    store,
		Catalog:  catalog.New(store, nil, log),
		Gate:     g,
		Rotation: rotation.NewManager(store, rotation.NewSelector(rand.New(rand.NewPCG(1, 2))), log),
		Premium:  premium.New(store, premium.Defaults{
			Days: 30, Price: 15000, CardNumber: "8600 1234 5678 9012", CardOwner: "Ali Valiyev",
		}, log),
		Sessions: session.NewMemory(session.DefaultTTL),
	}
	cfg := &config.Config{AdminIDs: []int64{adminID}}
	b := newBot(api, d, fetcher.New(&mockHTTPClient{body: httpBody}), cfg, log)
	return b, api, store
}

func from(id int64) *tgbotapi.User {
	return &tgbotapi.User{ID: id, FirstName: fmt.Sprintf("User%d", id), UserName: fmt.Sprintf("user%d", id)}
}

func textMsg(fromID int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: 10,
		From:      from(fromID),
		Chat:      &tgbotapi.Chat{ID: fromID, Type: "private"},
		Text:      text,
	}
}

// commandMsg builds a message whose leading /command is marked as a bot command entity.
func commandMsg(fromID int64, text string) *tgbotapi.Message {
	msg := textMsg(fromID, text)
	n := strings.IndexAny(text, " \n")
	if n < 0 {
		n = len(text)
	}
	msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: n}}
	return msg
}

func callback(fromID int64, data string) *tgbotapi.CallbackQuery {
	return &tgbotapi.CallbackQuery{
		ID:      "cb-" + data,
		From:    from(fromID),
		Data:    data,
		Message: &tgbotapi.Message{MessageID: 55, Chat: &tgbotapi.Chat{ID: fromID}},
	}
}

func seedMovie(t *testing.T, b *Bot, title, code string, mt model.MediaType) *model.Movie {
	t.Helper()
	m := &model.Movie{
		Title:     title,
		Code:      code,
		FileID:    "file-" + code,
		FileType:  model.FileVideo,
		MediaType: mt,
		Category:  model.CategoryKino,
	}
	if mt == model.MediaSeries {
		m.FileID, m.FileType = string(model.FileSeries), model.FileSeries
	}
	if err := b.catalog.AddMovie(context.Background(), m); err != nil {
		t.Fatalf("seed movie: %v", err)
	}
	return m
}

func seedEpisodes(t *testing.T, b *Bot, movieID int64, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		e := &model.Episode{MovieID: movieID, Number: i, FileID: fmt.Sprintf("ep-%d", i), FileType: model.FileVideo}
		if err := b.catalog.AddEpisode(context.Background(), e); err != nil {
			t.Fatalf("seed episode %d: %v", i, err)
		}
	}
}

func seedUser(t *testing.T, store *storage.SQLite, id int64) {
	t.Helper()
	if err := store.UpsertUser(context.Background(), &model.User{ID: id, FirstName: "U"}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func loadChannelFeed(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile("../../testdata/channel_feed.xml")
	if err != nil {
		t.Fatalf("read channel feed: %v", err)
	}
	return string(data)
}

func requireContains(t *testing.T, got, want string) {
	t.Helper()
	if !strings.Contains(got, want) {
		t.Errorf("reply missing %q, got:\n%s", want, got)
	}
}

func inlineData(t *testing.T, markup any) []string {
	t.Helper()
	kb, ok := markup.(tgbotapi.InlineKeyboardMarkup)
	if !ok {
		t.Fatalf("markup is %T, want inline keyboard", markup)
	}
	return keyboardData(kb)
}

func keyboardData(kb tgbotapi.InlineKeyboardMarkup) []string {
	var out []string
	for _, row := range kb.InlineKeyboard {
		for _, btn := range row {
			switch {
			case btn.CallbackData != nil:
				out = append(out, *btn.CallbackData)
			case btn.URL != nil:
				out = append(out, *btn.URL)
			}
		}
	}
	return out
}

// --- handler tests ---

func TestHandleStart(t *testing.T) {
	ctx := context.Background()

	t.Run("welcome registers user", func(t *testing.T) {
		b, api, store := newTestBot(t, "", allowAll())
		b.handleMessage(ctx, commandMsg(userID, "/start"))
		requireContains(t, api.lastText(), "Assalomu alaykum, User100")

		u, err := store.GetUser(ctx, userID)
		if err != nil {
			t.Fatalf("get user: %v", err)
		}
		if diff := cmp.Diff("user100", u.Username); diff != "" {
			t.Errorf("username (-want +got):\n%s", diff)
		}
		if _, ok := api.lastSent().Markup.(tgbotapi.ReplyKeyboardMarkup); !ok {
			t.Errorf("welcome markup is %T, want reply keyboard", api.lastSent().Markup)
		}
	})

	t.Run("payload searches", func(t *testing.T) {
		b, api, _ := newTestBot(t, "", allowAll())
		seedMovie(t, b, "Inception", "INCE001", model.MediaMovie)
		b.handleMessage(ctx, commandMsg(userID, "/start INCE001"))
		if diff := cmp.Diff(1, len(api.media)); diff != "" {
			t.Fatalf("media sent (-want +got):\n%s", diff)
		}
	})

	t.Run("denied shows subscription prompt", func(t *testing.T) {
		ch := model.Channel{ChatID: "@kinolar", Name: "Kinolar", Type: model.ChannelStable, IsActive: true}
		b, api, _ := newTestBot(t, "", denyWith(ch))
		b.handleMessage(ctx, commandMsg(userID, "/start"))

		last := api.lastSent()
		requireContains(t, last.Text, "Majburiy obuna")
		requireContains(t, last.Text, "❌ Kinolar")
		want := []string{"https://t.me/kinolar", cbCheckSub}
		if diff := cmp.Diff(want, inlineData(t, last.Markup)); diff != "" {
			t.Errorf("keyboard (-want +got):\n%s", diff)
		}
	})
}

func TestHandleHelp(t *testing.T) {
	ctx := context.Background()
	b, api, _ := newTestBot(t, "", allowAll())

	b.handleMessage(ctx, commandMsg(userID, "/help"))
	requireContains(t, api.lastText(), "/premium")
	if strings.Contains(api.lastText(), "Admin buyruqlari") {
		t.Error("non-admin help lists admin commands")
	}

	b.handleMessage(ctx, commandMsg(adminID, "/help"))
	requireContains(t, api.lastText(), "Admin buyruqlari")
	requireContains(t, api.lastText(), "/scan")
}

func TestSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("single hit sends file", func(t *testing.T) {
		b, api, store := newTestBot(t, "", allowAll())
		seedMovie(t, b, "Inception", "INCE001", model.MediaMovie)
		b.handleMessage(ctx, textMsg(userID, "inception"))

		if len(api.media) != 1 {
			t.Fatalf("media sent = %d, want 1", len(api.media))
		}
		v, ok := api.media[0].(tgbotapi.VideoConfig)
		if !ok {
			t.Fatalf("media is %T, want video", api.media[0])
		}
		requireContains(t, v.Caption, "🎬 Inception")
		requireContains(t, v.Caption, "Kod: INCE001")

		top, err := store.TopSearches(ctx, b.now().AddDate(0, 0, -1), 5)
		if err != nil {
			t.Fatalf("top searches: %v", err)
		}
		if diff := cmp.Diff([]model.SearchCount{{Query: "inception", Count: 1}}, top); diff != "" {
			t.Errorf("search stats (-want +got):\n%s", diff)
		}
	})

	t.Run("several hits list", func(t *testing.T) {
		b, api, _ := newTestBot(t, "", allowAll())
		a := seedMovie(t, b, "The Matrix", "MATR001", model.MediaMovie)
		r := seedMovie(t, b, "Matrix Reloaded", "MATR002", model.MediaMovie)
		b.handleMessage(ctx, textMsg(userID, "matrix"))

		last := api.lastSent()
		requireContains(t, last.Text, "2 ta natija topildi")
		want := []string{callbackData(cbMovie, a.ID), callbackData(cbMovie, r.ID), cbBackMain}
		if diff := cmp.Diff(want, inlineData(t, last.Markup)); diff != "" {
			t.Errorf("keyboard (-want +got):\n%s", diff)
		}
	})

	t.Run("nothing found", func(t *testing.T) {
		b, api, _ := newTestBot(t, "", allowAll())
		b.handleMessage(ctx, textMsg(userID, "qwxz"))
		requireContains(t, api.lastText(), "hech narsa topilmadi")
	})

	t.Run("search button then query", func(t *testing.T) {
		b, api, _ := newTestBot(t, "", allowAll())
		seedMovie(t, b, "Inception", "INCE001", model.MediaMovie)
		b.handleMessage(ctx, textMsg(userID, btnSearch))
		requireContains(t, api.lastText(), "nomini yoki kodini yuboring")

		state, _ := b.sessions.Get(ctx, userID)
		if diff := cmp.Diff(session.StateSearch, state); diff != "" {
			t.Fatalf("state (-want +got):\n%s", diff)
		}
		b.handleMessage(ctx, textMsg(userID, "INCE001"))
		if len(api.media) != 1 {
			t.Errorf("media sent = %d, want 1", len(api.media))
		}
		state, _ = b.sessions.Get(ctx, userID)
		if diff := cmp.Diff(session.StateNone, state); diff != "" {
			t.Errorf("state after search (-want +got):\n%s", diff)
		}
	})

	t.Run("channel post is copied", func(t *testing.T) {
		b, api, _ := newTestBot(t, "", allowAll())
		m := &model.Movie{
			Title: "Dune", Code: "DUNE001", FileID: "channel", FileType: model.FileChannel,
			MediaType: model.MediaMovie, Category: model.CategoryKino,
			SourceChatID: "-10055555", SourceMessageID: 7,
		}
		if err := b.catalog.AddMovie(ctx, m); err != nil {
			t.Fatalf("add movie: %v", err)
		}
		b.handleMessage(ctx, textMsg(userID, "dune"))
		if len(api.copies) != 1 {
			t.Fatalf("copies = %d, want 1", len(api.copies))
		}
		if diff := cmp.Diff(int64(-10055555), api.copies[0].FromChatID); diff != "" {
			t.Errorf("from chat (-want +got):\n%s", diff)
		}
		requireContains(t, api.lastText(), "🎬 Dune")
	})

	t.Run("failed copy reports", func(t *testing.T) {
		b, api, _ := newTestBot(t, "", allowAll())
		api.failCopy = true
		m := &model.Movie{
			Title: "Dune", Code: "DUNE001", FileID: "channel", FileType: model.FileChannel,
			MediaType: model.MediaMovie, Category: model.CategoryKino,
			SourceChatID: "@kinoarxiv", SourceMessageID: 7,
		}
		if err := b.catalog.AddMovie(ctx, m); err != nil {
			t.Fatalf("add movie: %v", err)
		}
		b.handleMessage(ctx, textMsg(userID, "DUNE001"))
		requireContains(t, api.lastText(), "Video yuborilmadi")
	})
}

func TestGateBlocksSearch(t *testing.T) {
	ctx := context.Background()
	ch := model.Channel{ChatID: "-1001", Name: "Zayafka", Type: model.ChannelRotating, InviteLink: "https://t.me/+abc"}
	b, api, store := newTestBot(t, "", denyWith(ch))
	seedMovie(t, b, "Inception", "INCE001", model.MediaMovie)

	b.handleMessage(ctx, textMsg(userID, "inception"))
	requireContains(t, api.lastText(), "Majburiy obuna")
	if len(api.media) != 0 {
		t.Errorf("media sent to blocked user: %d", len(api.media))
	}
	top, err := store.TopSearches(ctx, b.now().AddDate(0, 0, -1), 5)
	if err != nil {
		t.Fatalf("top searches: %v", err)
	}
	if len(top) != 0 {
		t.Errorf("blocked search recorded: %v", top)
	}

	t.Run("gate error denies", func(t *testing.T) {
		b, api, _ := newTestBot(t, "", &fakeGate{err: errors.New("boom")})
		b.handleMessage(ctx, textMsg(userID, "inception"))
		requireContains(t, api.lastText(), "Xatolik yuz berdi")
	})

	t.Run("no channels warns admins only", func(t *testing.T) {
		g := &fakeGate{decision: gate.Decision{Allowed: true, Reason: gate.ReasonNoChannels}}
		b, api, _ := newTestBot(t, "", g)
		b.handleMessage(ctx, textMsg(userID, btnCategories))
		for _, text := range api.allTexts() {
			if strings.Contains(text, "⚠️") {
				t.Errorf("user got admin warning: %q", text)
			}
		}
		api.reset()
		b.handleMessage(ctx, textMsg(adminID, btnCategories))
		requireContains(t, strings.Join(api.allTexts(), "\n"), "faol majburiy obuna kanallari yo'q")
	})
}

func TestCheckSubscriptionCallback(t *testing.T) {
	ctx := context.Background()

	t.Run("confirmed", func(t *testing.T) {
		b, api, _ := newTestBot(t, "", allowAll())
		b.handleCallback(ctx, callback(userID, cbCheckSub))
		requireContains(t, api.lastEdit().Text, "Obuna tasdiqlandi")
		if diff := cmp.Diff("Tasdiqlandi", api.lastCallback().Text); diff != "" {
			t.Errorf("answer (-want +got):\n%s", diff)
		}
	})

	t.Run("still pending", func(t *testing.T) {
		chs := []model.Channel{
			{ChatID: "@a", Name: "A", Type: model.ChannelStable},
			{ChatID: "@b", Name: "B", Type: model.ChannelStable},
		}
		g := denyWith(chs...)
		g.decision.Subscribed["@a"] = true
		g.decision.Pending = 1
		b, api, _ := newTestBot(t, "", g)
		b.handleCallback(ctx, callback(userID, cbCheckSub))

		edit := api.lastEdit()
		requireContains(t, edit.Text, "1. ✅ A")
		requireContains(t, edit.Text, "2. ❌ B")
		requireContains(t, edit.Text, "Qolgan kanallar: 1")
		cb := api.lastCallback()
		if !cb.ShowAlert {
			t.Error("pending answer is not an alert")
		}
		requireContains(t, cb.Text, "1 ta kanalga")
	})
}

func TestHandleCallbackInvalid(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		cb   *tgbotapi.CallbackQuery
	}{
		{name: "malformed", cb: callback(userID, "movie:abc")},
		{name: "unknown action", cb: callback(userID, "filters:1")},
		{name: "no message", cb: &tgbotapi.CallbackQuery{ID: "x", From: from(userID), Data: cbCheckSub}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, api, _ := newTestBot(t, "", allowAll())
			b.handleCallback(ctx, tt.cb)
			if diff := cmp.Diff(0, len(api.allTexts())); diff != "" {
				t.Errorf("expected no text messages (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(1, len(api.callbacks)); diff != "" {
				t.Errorf("callback answers (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCategoriesCallback(t *testing.T) {
	ctx := context.Background()
	b, api, _ := newTestBot(t, "", allowAll())
	m := seedMovie(t, b, "Inception", "INCE001", model.MediaMovie)

	b.handleCallback(ctx, callback(userID, callbackData(cbCategory, model.CategoryKino)))
	edit := api.lastEdit()
	requireContains(t, edit.Text, "1. Inception")
	want := []string{callbackData(cbMovie, m.ID), cbBackCategories}
	if diff := cmp.Diff(want, keyboardData(*edit.ReplyMarkup)); diff != "" {
		t.Errorf("keyboard (-want +got):\n%s", diff)
	}

	b.handleCallback(ctx, callback(userID, callbackData(cbCategory, model.CategoryAnime)))
	cb := api.lastCallback()
	if !cb.ShowAlert {
		t.Error("empty category answer is not an alert")
	}
	requireContains(t, cb.Text, "kino yo'q")

	b.handleCallback(ctx, callback(userID, cbBackCategories))
	requireContains(t, api.lastEdit().Text, "Kategoriyani tanlang")
}

func TestEpisodes(t *testing.T) {
	ctx := context.Background()
	b, api, _ := newTestBot(t, "", allowAll())
	s := seedMovie(t, b, "Naruto", "NARU001", model.MediaSeries)
	seedEpisodes(t, b, s.ID, 12)

	t.Run("movie callback opens first page", func(t *testing.T) {
		api.reset()
		b.handleCallback(ctx, callback(userID, callbackData(cbMovie, s.ID)))
		last := api.lastSent()
		requireContains(t, last.Text, "Jami qismlar: 12")
		data := inlineData(t, last.Markup)
		if diff := cmp.Diff(12, len(data)); diff != "" {
			t.Errorf("buttons (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff(callbackData(cbEpisodes, s.ID, 2), data[len(data)-1]); diff != "" {
			t.Errorf("next page button (-want +got):\n%s", diff)
		}
		if api.deleted != 1 {
			t.Errorf("deleted = %d, want 1", api.deleted)
		}
	})

	t.Run("second page", func(t *testing.T) {
		api.reset()
		b.handleCallback(ctx, callback(userID, callbackData(cbEpisodes, s.ID, 2)))
		want := []string{
			callbackData(cbEpisode, s.ID, 11),
			callbackData(cbEpisode, s.ID, 12),
			callbackData(cbEpisodes, s.ID, 1),
			cbBackMain,
		}
		if diff := cmp.Diff(want, keyboardData(*api.lastEdit().ReplyMarkup)); diff != "" {
			t.Errorf("keyboard (-want +got):\n%s", diff)
		}
	})

	t.Run("episode delivery", func(t *testing.T) {
		api.reset()
		b.handleCallback(ctx, callback(userID, callbackData(cbEpisode, s.ID, 11)))
		if len(api.media) != 1 {
			t.Fatalf("media sent = %d, want 1", len(api.media))
		}
		v := api.media[0].(tgbotapi.VideoConfig)
		requireContains(t, v.Caption, "11-qism")
		kb := v.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
		want := []string{
			callbackData(cbEpisode, s.ID, 10),
			callbackData(cbEpisode, s.ID, 12),
			callbackData(cbEpisodes, s.ID, 2),
		}
		if diff := cmp.Diff(want, keyboardData(kb)); diff != "" {
			t.Errorf("keyboard (-want +got):\n%s", diff)
		}
	})

	t.Run("missing episode", func(t *testing.T) {
		api.reset()
		b.handleCallback(ctx, callback(userID, callbackData(cbEpisode, s.ID, 99)))
		requireContains(t, api.lastText(), "Qism topilmadi")
	})
}

func TestAdminOnly(t *testing.T) {
	ctx := context.Background()
	b, api, store := newTestBot(t, "", allowAll())

	b.handleMessage(ctx, commandMsg(userID, "/addchannel @kinolar public"))
	requireContains(t, api.lastText(), "Noma'lum buyruq")
	chs, _ := store.ListChannels(ctx, false)
	if len(chs) != 0 {
		t.Errorf("non-admin created channel: %v", chs)
	}

	b.handleCallback(ctx, callback(userID, callbackData(cbPayApprove, 1)))
	requireContains(t, api.lastCallback().Text, "Ruxsat yo'q")
}

func TestAdminRotate(t *testing.T) {
	ctx := context.Background()
	b, api, store := newTestBot(t, "", allowAll())
	seedUser(t, store, userID)

	b.handleMessage(ctx, commandMsg(adminID, "/rotate"))
	requireContains(t, api.lastText(), "Usage: /rotate")

	b.handleMessage(ctx, commandMsg(adminID, "/rotate 555"))
	requireContains(t, api.lastText(), "Foydalanuvchi 555 topilmadi")

	day := b.rotation.Today()
	b.handleMessage(ctx, commandMsg(adminID, "/rotate 100"))
	requireContains(t, api.lastText(), "faol kanallar yo'q")

	for _, ch := range []model.Channel{
		{ChatID: "@kinolar", Name: "Kinolar", Type: model.ChannelRotating, IsActive: true},
		{ChatID: "@seriallar", Name: "Seriallar", Type: model.ChannelStable, IsActive: true},
	} {
		if err := store.CreateChannel(ctx, &ch); err != nil {
			t.Fatalf("create channel: %v", err)
		}
	}

	b.handleMessage(ctx, commandMsg(adminID, "/rotate 100"))
	requireContains(t, api.lastText(), fmt.Sprintf("100 uchun %s kanallari yangilandi", day))
	requireContains(t, api.lastText(), "Kinolar [zayafka]")
	requireContains(t, api.lastText(), "Seriallar [public]")

	got, err := store.ListAssignments(ctx, userID, day)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("assignments after /rotate = %d, want 2", len(got))
	}

	b.handleMessage(ctx, commandMsg(userID, "/rotate 100"))
	requireContains(t, api.lastText(), "Noma'lum buyruq")
}

func TestAdminChannels(t *testing.T) {
	ctx := context.Background()
	b, api, store := newTestBot(t, "", allowAll())

	b.handleMessage(ctx, commandMsg(adminID, "/addchannel @kinolar public Kinolar olami"))
	requireContains(t, api.lastText(), "Kanal qo'shildi")
	requireContains(t, api.lastText(), "Kinolar olami")

	b.handleMessage(ctx, commandMsg(adminID, "/addchannel @kinolar public"))
	requireContains(t, api.lastText(), "allaqachon qo'shilgan")

	b.handleMessage(ctx, commandMsg(adminID, "/addchannel -100123456 zayafka"))
	requireContains(t, api.lastText(), "Linki yo'q")

	b.handleMessage(ctx, commandMsg(adminID, "/addchannel -100123457 zayafka https://t.me/+AbCd Promo"))
	requireContains(t, api.lastText(), "Promo (zayafka)")

	b.handleMessage(ctx, commandMsg(adminID, "/addchannel @kinozal sometimes"))
	requireContains(t, api.lastText(), "zayafka yoki public")

	chs, err := store.ListChannels(ctx, false)
	if err != nil {
		t.Fatalf("list channels: %v", err)
	}
	if diff := cmp.Diff(3, len(chs)); diff != "" {
		t.Fatalf("channel count (-want +got):\n%s", diff)
	}

	b.handleMessage(ctx, commandMsg(adminID, "/channels"))
	last := api.lastSent()
	requireContains(t, last.Text, "https://t.me/kinolar")
	requireContains(t, last.Text, "(link yo'q)")
	if diff := cmp.Diff(3, len(inlineData(t, last.Markup))); diff != "" {
		t.Errorf("delete buttons (-want +got):\n%s", diff)
	}

	b.handleMessage(ctx, commandMsg(adminID, "/delchannel -100123456"))
	requireContains(t, api.lastText(), "o'chirildi")

	var kinolar model.Channel
	for _, ch := range chs {
		if ch.ChatID == "@kinolar" {
			kinolar = ch
		}
	}
	b.handleCallback(ctx, callback(adminID, callbackData(cbDeleteChannel, kinolar.ID)))
	requireContains(t, api.lastCallback().Text, "o'chirildi")

	left, _ := store.ListChannels(ctx, false)
	if diff := cmp.Diff(1, len(left)); diff != "" {
		t.Errorf("channels left (-want +got):\n%s", diff)
	}
}

func TestAdminCatalogCommands(t *testing.T) {
	ctx := context.Background()

	t.Run("delmovie", func(t *testing.T) {
		b, api, _ := newTestBot(t, "", allowAll())
		s := seedMovie(t, b, "Naruto", "NARU001", model.MediaSeries)
		seedEpisodes(t, b, s.ID, 3)

		b.handleMessage(ctx, commandMsg(adminID, "/delmovie naru001"))
		requireContains(t, api.lastText(), "O'chirildi: Naruto")
		requireContains(t, api.lastText(), "3 ta qism")

		b.handleMessage(ctx, commandMsg(adminID, "/delmovie NARU001"))
		requireContains(t, api.lastText(), "topilmadi")
	})

	t.Run("scan", func(t *testing.T) {
		b, api, store := newTestBot(t, "", allowAll())
		text := "/scan\n" +
			"https://t.me/c/12345/67 | Nomi: Naruto | Qism: 3 | #anime\n" +
			"https://t.me/c/12345/68 | Inception\n" +
			"https://t.me/kinolar/5 | Public"
		b.handleMessage(ctx, commandMsg(adminID, text))
		requireContains(t, api.lastText(), "Qo'shildi: 2")
		requireContains(t, api.lastText(), "O'tkazildi: 1")

		series, err := store.FindSeriesByTitle(ctx, "naruto")
		if err != nil {
			t.Fatalf("find series: %v", err)
		}
		if diff := cmp.Diff(model.CategoryAnime, series.Category); diff != "" {
			t.Errorf("category (-want +got):\n%s", diff)
		}

		b.handleMessage(ctx, commandMsg(adminID, text))
		requireContains(t, api.lastText(), "Qo'shildi: 0")
	})

	t.Run("scan without lines shows usage", func(t *testing.T) {
		b, api, _ := newTestBot(t, "", allowAll())
		b.handleMessage(ctx, commandMsg(adminID, "/scan"))
		requireContains(t, api.lastText(), "Har qatorda bitta link")
	})

	t.Run("admin media", func(t *testing.T) {
		b, api, store := newTestBot(t, "", allowAll())
		msg := textMsg(adminID, "")
		msg.Video = &tgbotapi.Video{FileID: "vid-1"}
		msg.Caption = "Nomi: Naruto\nQism: 1\n#anime"
		b.handleMessage(ctx, msg)
		requireContains(t, api.lastText(), "Qism qo'shildi: Naruto, 1-qism")

		series, err := store.FindSeriesByTitle(ctx, "Naruto")
		if err != nil {
			t.Fatalf("find series: %v", err)
		}
		eps, err := b.catalog.Episodes(ctx, series.ID)
		if err != nil {
			t.Fatalf("episodes: %v", err)
		}
		if diff := cmp.Diff("vid-1", eps[0].FileID); diff != "" {
			t.Errorf("file id (-want +got):\n%s", diff)
		}

		msg.Caption = "Reklama"
		msg.Video = nil
		msg.Document = &tgbotapi.Document{FileID: "doc-1"}
		b.handleMessage(ctx, msg)
		requireContains(t, api.lastText(), "Kino qo'shildi: Reklama")
	})

	t.Run("user media is ignored", func(t *testing.T) {
		b, api, _ := newTestBot(t, "", allowAll())
		msg := textMsg(userID, "")
		msg.Video = &tgbotapi.Video{FileID: "vid-1"}
		msg.Caption = "Nomi: Naruto"
		b.handleMessage(ctx, msg)
		if len(api.allTexts()) != 0 {
			t.Errorf("user media produced replies: %v", api.allTexts())
		}
	})
}

func TestAdminPremiumCommands(t *testing.T) {
	ctx := context.Background()
	b, api, store := newTestBot(t, "", allowAll())
	seedUser(t, store, userID)

	b.handleMessage(ctx, commandMsg(adminID, "/setprice 20000"))
	requireContains(t, api.lastText(), "20 000 so'm")
	if diff := cmp.Diff(int64(20000), b.premium.Price(ctx)); diff != "" {
		t.Errorf("price (-want +got):\n%s", diff)
	}

	b.handleMessage(ctx, commandMsg(adminID, "/setprice free"))
	requireContains(t, api.lastText(), "Usage: /setprice")

	b.handleMessage(ctx, commandMsg(adminID, "/setcard 9860 0000 1111 2222"))
	requireContains(t, api.lastText(), "9860 0000 1111 2222")

	b.handleMessage(ctx, commandMsg(adminID, "/grant 100 7"))
	requireContains(t, strings.Join(api.textsTo(adminID), "\n"), "premium")
	requireContains(t, strings.Join(api.textsTo(userID), "\n"), "Sizga premium berildi")
	if ok, _ := b.premium.IsPremium(ctx, userID); !ok {
		t.Error("user is not premium after grant")
	}

	b.handleMessage(ctx, commandMsg(adminID, "/revoke 100"))
	requireContains(t, api.lastText(), "bekor qilindi")
	if ok, _ := b.premium.IsPremium(ctx, userID); ok {
		t.Error("user still premium after revoke")
	}

	b.handleMessage(ctx, commandMsg(adminID, "/grant abc"))
	requireContains(t, api.lastText(), "user ID noto'g'ri")
}

func TestAdminStats(t *testing.T) {
	ctx := context.Background()
	b, api, _ := newTestBot(t, "", allowAll())
	seedMovie(t, b, "Inception", "INCE001", model.MediaMovie)
	b.handleMessage(ctx, textMsg(userID, "inception"))
	b.handleMessage(ctx, textMsg(userID, "inception"))

	b.handleMessage(ctx, commandMsg(adminID, "/stats"))
	requireContains(t, api.lastText(), "Jami kinolar: 1")
	requireContains(t, api.lastText(), "Jami qidiruvlar: 2")

	b.handleMessage(ctx, commandMsg(adminID, "/topsearches"))
	requireContains(t, api.lastText(), "1. inception — 2 marta")
}

func TestAdminSources(t *testing.T) {
	ctx := context.Background()

	t.Run("add from feed", func(t *testing.T) {
		b, api, store := newTestBot(t, loadChannelFeed(t), allowAll())
		b.handleMessage(ctx, commandMsg(adminID, "/addsource https://rss.example.com/kinoarxiv anime 60"))
		requireContains(t, api.lastText(), "Manba qo'shildi")
		requireContains(t, api.lastText(), "Kino Arxiv")
		requireContains(t, api.lastText(), "Elementlar: 4")

		srcs, err := store.ListSources(ctx)
		if err != nil {
			t.Fatalf("list sources: %v", err)
		}
		want := []model.Source{{
			ID: srcs[0].ID, Name: "Kino Arxiv", URL: "https://rss.example.com/kinoarxiv",
			Category: model.CategoryAnime, IntervalMinutes: 60, IsActive: true, CreatedAt: srcs[0].CreatedAt,
		}}
		if diff := cmp.Diff(want, srcs); diff != "" {
			t.Errorf("sources (-want +got):\n%s", diff)
		}

		b.handleMessage(ctx, commandMsg(adminID, "/addsource https://rss.example.com/kinoarxiv"))
		requireContains(t, api.lastText(), "allaqachon")

		b.handleMessage(ctx, commandMsg(adminID, "/sources"))
		requireContains(t, api.lastText(), fmt.Sprintf("#%d Kino Arxiv (har 60 daq., anime)", srcs[0].ID))

		b.handleMessage(ctx, commandMsg(adminID, fmt.Sprintf("/delsource %d", srcs[0].ID)))
		requireContains(t, api.lastText(), "o'chirildi")
		b.handleMessage(ctx, commandMsg(adminID, fmt.Sprintf("/delsource %d", srcs[0].ID)))
		requireContains(t, api.lastText(), "topilmadi")
	})

	t.Run("fetch error", func(t *testing.T) {
		b, api, _ := newTestBot(t, "not xml at all", allowAll())
		b.handleMessage(ctx, commandMsg(adminID, "/addsource https://bad.example.com"))
		requireContains(t, api.lastText(), "Failed to fetch feed")
	})

	t.Run("bad url", func(t *testing.T) {
		b, api, _ := newTestBot(t, "", allowAll())
		b.handleMessage(ctx, commandMsg(adminID, "/addsource ftp://x"))
		requireContains(t, api.lastText(), "http://")
	})
}

func TestPaymentFlow(t *testing.T) {
	ctx := context.Background()
	b, api, _ := newTestBot(t, "", allowAll())
	b.handleMessage(ctx, commandMsg(userID, "/premium"))
	requireContains(t, api.lastText(), "15 000 so'm")

	b.handleCallback(ctx, callback(userID, cbBuyPremium))
	requireContains(t, api.lastText(), "8600 1234 5678 9012")
	requireContains(t, api.lastText(), "Ali Valiyev")

	b.handleMessage(ctx, textMsg(userID, "to'ladim"))
	requireContains(t, api.lastText(), "chekini rasm yoki fayl")

	receipt := textMsg(userID, "")
	receipt.Photo = []tgbotapi.PhotoSize{{FileID: "small"}, {FileID: "big"}}
	b.handleMessage(ctx, receipt)
	requireContains(t, api.lastText(), "Chek qabul qilindi")

	var review sentMsg
	for _, s := range api.sent {
		if s.ChatID == adminID && strings.Contains(s.Text, "Yangi to'lov") {
			review = s
		}
	}
	requireContains(t, review.Text, "User100 (@user100)")
	data := inlineData(t, review.Markup)
	if len(data) != 2 {
		t.Fatalf("review buttons = %v", data)
	}
	approve, err := ParseCallback(data[0])
	if err != nil {
		t.Fatalf("parse review callback: %v", err)
	}

	state, _ := b.sessions.Get(ctx, userID)
	if diff := cmp.Diff(session.StateNone, state); diff != "" {
		t.Errorf("state after receipt (-want +got):\n%s", diff)
	}

	b.handleCallback(ctx, callback(adminID, data[0]))
	requireContains(t, api.lastEdit().Text, "✅ Tasdiqlandi")
	requireContains(t, strings.Join(api.textsTo(userID), "\n"), "To'lovingiz tasdiqlandi")
	if ok, _ := b.premium.IsPremium(ctx, userID); !ok {
		t.Error("user is not premium after approval")
	}

	b.handleCallback(ctx, callback(adminID, callbackData(cbPayDeny, approve.ID)))
	requireContains(t, api.lastCallback().Text, "allaqachon")

	b.handleCallback(ctx, callback(adminID, callbackData(cbPayApprove, 999)))
	requireContains(t, api.lastCallback().Text, "To'lov topilmadi")

	b.handleMessage(ctx, commandMsg(userID, "/premium"))
	requireContains(t, api.lastText(), "Premium muddati")
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	b, api, _ := newTestBot(t, "", allowAll())

	b.handleMessage(ctx, commandMsg(userID, "/cancel"))
	requireContains(t, api.lastText(), "Bekor qilinadigan amal yo'q")

	b.handleMessage(ctx, commandMsg(userID, "/search"))
	b.handleMessage(ctx, commandMsg(userID, "/cancel"))
	requireContains(t, api.lastText(), "Bekor qilindi")
	state, _ := b.sessions.Get(ctx, userID)
	if diff := cmp.Diff(session.StateNone, state); diff != "" {
		t.Errorf("state (-want +got):\n%s", diff)
	}
}

func TestBroadcast(t *testing.T) {
	ctx := context.Background()
	b, api, store := newTestBot(t, "", allowAll())
	for _, id := range []int64{200, 300} {
		seedUser(t, store, id)
	}

	b.handleMessage(ctx, commandMsg(adminID, "/broadcast"))
	requireContains(t, api.lastText(), "Hammaga yuboriladigan xabarni")

	post := textMsg(adminID, "Yangi kinolar qo'shildi!")
	post.MessageID = 77
	b.handleMessage(ctx, post)
	b.wg.Wait()

	// The admin registered by the two messages above is a recipient too.
	var to []int64
	for _, c := range api.copies {
		to = append(to, c.ChatID)
		if c.MessageID != 77 || c.FromChatID != adminID {
			t.Errorf("copy = %+v", c)
		}
	}
	if diff := cmp.Diff(3, len(to)); diff != "" {
		t.Errorf("recipients (-want +got):\n%s", diff)
	}
	requireContains(t, api.lastEdit().Text, "Muvaffaqiyatli: 3")
}
