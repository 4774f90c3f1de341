// Package ingest periodically polls feed sources and adds their posts to the catalog.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"kinobot/internal/catalog"
	"kinobot/internal/fetcher"
	"kinobot/internal/metrics"
	"kinobot/internal/model"
)

// Store is the subset of storage the scheduler needs.
type Store interface {
	ListDueSources(ctx context.Context, now time.Time) ([]model.Source, error)
	UpdateSource(ctx context.Context, s *model.Source) error
	MarkSeen(ctx context.Context, sourceID int64, guid string) error
	IsSeen(ctx context.Context, sourceID int64, guid string) (bool, error)
}

// Ingester adds a post to the catalog.
type Ingester interface {
	Ingest(ctx context.Context, p catalog.Post) (catalog.Outcome, error)
}

// Sender is the interface for sending Telegram messages.
type Sender interface {
	SendMessage(chatID int64, text string)
}

// Scheduler periodically checks due sources and ingests new items.
type Scheduler struct {
	store    Store
	ingester Ingester
	fetcher  *fetcher.Fetcher
	sender   Sender
	notify   []int64
	metrics  *metrics.Metrics
	log      *slog.Logger
	tick     time.Duration
	now      func() time.Time
}

// New creates a Scheduler with the default HTTP client. Per-source summaries are sent
// to the notify chats when anything was added.
func New(store Store, ingester Ingester, sender Sender, notify []int64, m *metrics.Metrics, log *slog.Logger) *Scheduler {
	return NewWithFetcher(store, ingester, fetcher.New(http.DefaultClient), sender, notify, m, log)
}

// NewWithFetcher creates a Scheduler with a custom fetcher (useful for testing).
func NewWithFetcher(store Store, ingester Ingester, f *fetcher.Fetcher, sender Sender, notify []int64, m *metrics.Metrics, log *slog.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		ingester: ingester,
		fetcher:  f,
		sender:   sender,
		notify:   notify,
		metrics:  m,
		log:      log,
		tick:     1 * time.Minute,
		now:      time.Now,
	}
}

// SetTickInterval overrides the default 1-minute check interval.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	if d > 0 {
		s.tick = d
	}
}

// Run starts the scheduler loop, blocking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.checkAll(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkAll(ctx)
		}
	}
}

func (s *Scheduler) checkAll(ctx context.Context) {
	sources, err := s.store.ListDueSources(ctx, s.now().UTC())
	if err != nil {
		s.log.Error("list due sources", "error", err)
		return
	}

	for _, src := range sources {
		if ctx.Err() != nil {
			return
		}
		s.processSource(ctx, src)
	}
}

func (s *Scheduler) processSource(ctx context.Context, src model.Source) {
	s.log.Debug("checking source", "source_id", src.ID, "name", src.Name)

	feed, err := s.fetcher.Fetch(ctx, src.URL)
	if err != nil {
		s.log.Error("fetch source", "source_id", src.ID, "url", src.URL, "error", err)
		s.updateLastCheck(ctx, &src)
		return
	}

	counts := make(map[catalog.Outcome]int)
	for _, item := range fetcher.ExtractItems(feed.Items) {
		seen, err := s.store.IsSeen(ctx, src.ID, item.GUID)
		if err != nil {
			s.log.Error("check seen", "source_id", src.ID, "guid", item.GUID, "error", err)
			continue
		}
		if seen {
			continue
		}

		outcome, err := s.ingester.Ingest(ctx, catalog.Post{
			Caption:         item.Caption,
			SourceChatID:    item.Post.ChatID,
			SourceMessageID: item.Post.MessageID,
			DefaultCategory: src.Category,
		})
		if err != nil {
			s.log.Error("ingest item", "source_id", src.ID, "guid", item.GUID, "error", err)
			s.metrics.ObserveIngest("error")
			continue
		}
		counts[outcome]++
		s.metrics.ObserveIngest(string(outcome))

		if err := s.store.MarkSeen(ctx, src.ID, item.GUID); err != nil {
			s.log.Error("mark seen", "source_id", src.ID, "guid", item.GUID, "error", err)
		}
	}

	added := counts[catalog.OutcomeMovie] + counts[catalog.OutcomeEpisode]
	if added > 0 {
		s.log.Info("ingested posts", "source_id", src.ID, "name", src.Name,
			"movies", counts[catalog.OutcomeMovie], "episodes", counts[catalog.OutcomeEpisode])
		msg := fmt.Sprintf("📥 %s: +%d kino, +%d qism", src.Name, counts[catalog.OutcomeMovie], counts[catalog.OutcomeEpisode])
		for _, chatID := range s.notify {
			s.sender.SendMessage(chatID, msg)
		}
	}

	s.updateLastCheck(ctx, &src)
}

func (s *Scheduler) updateLastCheck(ctx context.Context, src *model.Source) {
	now := s.now().UTC()
	src.LastCheckAt = &now
	if err := s.store.UpdateSource(ctx, src); err != nil {
		s.log.Error("update last check", "source_id", src.ID, "error", err)
	}
}
