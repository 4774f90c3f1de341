package ingest

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/mmcdole/gofeed"

	"kinobot/internal/catalog"
	"kinobot/internal/fetcher"
	"kinobot/internal/model"
	"kinobot/internal/storage"
)

type sentMessage struct {
	ChatID int64
	Text   string
}

type mockSender struct {
	mu       sync.Mutex
	messages []sentMessage
}

func (m *mockSender) SendMessage(chatID int64, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, sentMessage{ChatID: chatID, Text: text})
}

func (m *mockSender) getMessages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]sentMessage, len(m.messages))
	copy(cp, m.messages)
	return cp
}

type mockHTTP struct {
	body string
}

func (m *mockHTTP) Do(_ *http.Request) (*http.Response, error) {
	return &http.Response{
		StatusCode: 200,
		Body:       io.NopCloser(bytes.NewBufferString(m.body)),
	}, nil
}

func loadFixture(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile("../../testdata/channel_feed.xml")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return string(data)
}

type fixture struct {
	store  *storage.SQLite
	sender *mockSender
	log    *slog.Logger
	cat    *catalog.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &fixture{store: s, sender: &mockSender{}, log: log, cat: catalog.New(s, nil, log)}
}

func (f *fixture) scheduler(body string) *Scheduler {
	return NewWithFetcher(f.store, f.cat, fetcher.New(&mockHTTP{body: body}), f.sender, []int64{100}, nil, f.log)
}

func (f *fixture) addSource(t *testing.T, active bool) *model.Source {
	t.Helper()
	src := &model.Source{
		Name:            "Kino Arxiv",
		URL:             "https://rss.example.com/kinoarxiv",
		Category:        model.CategoryDorama,
		IntervalMinutes: 15,
		IsActive:        active,
	}
	if err := f.store.CreateSource(context.Background(), src); err != nil {
		t.Fatalf("create source: %v", err)
	}
	return src
}

func TestSchedulerIngestsDueSources(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.addSource(t, true)

	f.scheduler(loadFixture(t)).checkAll(ctx)

	want := []sentMessage{{ChatID: 100, Text: "📥 Kino Arxiv: +1 kino, +2 qism"}}
	if diff := cmp.Diff(want, f.sender.getMessages()); diff != "" {
		t.Errorf("notifications mismatch (-want +got):\n%s", diff)
	}

	movie, err := f.store.GetMovieBySource(ctx, "@kinoarxiv", 102)
	if err != nil {
		t.Fatalf("movie not ingested: %v", err)
	}
	if movie.Category != model.CategoryDorama || movie.FileType != model.FileChannel {
		t.Errorf("movie = %+v, want source category and channel delivery", movie)
	}

	ep, err := f.store.GetEpisodeBySource(ctx, "@kinoarxiv", 101)
	if err != nil {
		t.Fatalf("episode not ingested: %v", err)
	}
	series, err := f.store.GetMovie(ctx, ep.MovieID)
	if err != nil {
		t.Fatal(err)
	}
	if series.Title != "Naruto" || series.Category != model.CategoryAnime || ep.Number != 12 {
		t.Errorf("series = %+v episode = %+v", series, ep)
	}
}

func TestSchedulerSkipsSeenItems(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	src := f.addSource(t, true)

	hashed := fetcher.ItemGUID(&gofeed.Item{Title: "Dark 3-qism", Link: "https://example.com/mirror/3"})
	for _, guid := range []string{"kinoarxiv-101", "kinoarxiv-102", hashed} {
		if err := f.store.MarkSeen(ctx, src.ID, guid); err != nil {
			t.Fatalf("mark seen %s: %v", guid, err)
		}
	}

	f.scheduler(loadFixture(t)).checkAll(ctx)

	if diff := cmp.Diff(0, len(f.sender.getMessages())); diff != "" {
		t.Errorf("expected no messages for seen items (-want +got):\n%s", diff)
	}
	if _, err := f.store.GetMovieBySource(ctx, "@kinoarxiv", 102); err == nil {
		t.Error("seen item was ingested")
	}
}

func TestSchedulerMarksItemsSeen(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	src := f.addSource(t, true)
	sched := f.scheduler(loadFixture(t))

	sched.processSource(ctx, *src)
	sched.processSource(ctx, *src)

	if diff := cmp.Diff(1, len(f.sender.getMessages())); diff != "" {
		t.Errorf("second pass re-ingested items (-want +got):\n%s", diff)
	}
	seen, err := f.store.IsSeen(ctx, src.ID, "kinoarxiv-101")
	if err != nil || !seen {
		t.Errorf("IsSeen = %v, %v; want true", seen, err)
	}
}

func TestSchedulerUpdatesLastCheck(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	src := f.addSource(t, true)

	before := time.Now().UTC().Add(-time.Second)
	f.scheduler(loadFixture(t)).checkAll(ctx)

	updated, err := f.store.GetSource(ctx, src.ID)
	if err != nil {
		t.Fatalf("get source: %v", err)
	}
	if updated.LastCheckAt == nil {
		t.Fatal("expected LastCheckAt to be set")
	}
	if updated.LastCheckAt.Before(before) {
		t.Errorf("LastCheckAt %v is before test start %v", updated.LastCheckAt, before)
	}
}

func TestSchedulerCancelledContext(t *testing.T) {
	f := newFixture(t)
	f.addSource(t, true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f.scheduler(loadFixture(t)).checkAll(ctx)

	if diff := cmp.Diff(0, len(f.sender.getMessages())); diff != "" {
		t.Errorf("expected no messages when context cancelled (-want +got):\n%s", diff)
	}
}

func TestSchedulerRunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	sched := f.scheduler("<rss><channel></channel></rss>")
	sched.SetTickInterval(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}

func TestSchedulerFetchError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	src := f.addSource(t, true)

	f.scheduler("not xml").checkAll(ctx)

	if diff := cmp.Diff(0, len(f.sender.getMessages())); diff != "" {
		t.Errorf("expected no messages on fetch error (-want +got):\n%s", diff)
	}

	// last_check_at should still be updated even on error
	updated, err := f.store.GetSource(ctx, src.ID)
	if err != nil {
		t.Fatalf("get source: %v", err)
	}
	if updated.LastCheckAt == nil {
		t.Error("expected LastCheckAt to be set even after fetch error")
	}
}

func TestSchedulerInactiveSourceSkipped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	src := f.addSource(t, false)

	f.scheduler("should not be fetched").checkAll(ctx)

	updated, err := f.store.GetSource(ctx, src.ID)
	if err != nil {
		t.Fatal(err)
	}
	if updated.LastCheckAt != nil {
		t.Error("inactive source was checked")
	}
	for _, m := range f.sender.getMessages() {
		if strings.Contains(m.Text, "Kino Arxiv") {
			t.Errorf("inactive source produced %q", m.Text)
		}
	}
}
