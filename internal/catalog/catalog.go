// Package catalog implements movie and series lookup, view accounting and ingestion.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"kinobot/internal/metrics"
	"kinobot/internal/model"
	"kinobot/internal/storage"
)

const (
	// SearchLimit caps the number of search results offered to a user.
	SearchLimit = 6
	// TrendingWindow is how far back views count towards trending.
	TrendingWindow = 7 * 24 * time.Hour
	// TrendingLimit caps the trending list.
	TrendingLimit = 10
	// SimilarLimit caps the similar-movies list.
	SimilarLimit = 5
	// CategoryLimit caps a category listing.
	CategoryLimit = 20
)

// Store is the subset of storage the catalog needs.
type Store interface {
	storage.Catalog
	AddSearchStat(ctx context.Context, s *model.SearchStat) error
	AddViewStat(ctx context.Context, v *model.ViewStat) error
}

// Service is the catalog facade used by the bot and the ingest scheduler.
type Service struct {
	store   Store
	metrics *metrics.Metrics
	log     *slog.Logger
	now     func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures a Service.
type Option func(*Service)

// WithRand sets the random source used for codes and similar-movie shuffling.
func WithRand(r *rand.Rand) Option {
	return func(s *Service) { s.rng = r }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a catalog Service.
func New(store Store, m *metrics.Metrics, log *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:   store,
		metrics: m,
		log:     log,
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return s
}

// View returns the movie and accounts a view by userID.
func (s *Service) View(ctx context.Context, userID, movieID int64) (*model.Movie, error) {
	m, err := s.store.GetMovie(ctx, movieID)
	if err != nil {
		return nil, err
	}
	if !m.IsActive {
		return nil, storage.ErrNotFound
	}
	if err := s.store.IncrementMovieViews(ctx, m.ID); err != nil {
		return nil, fmt.Errorf("increment views: %w", err)
	}
	m.Views++
	if err := s.store.AddViewStat(ctx, &model.ViewStat{UserID: userID, MovieID: m.ID, CreatedAt: s.now()}); err != nil {
		s.log.Error("add view stat", "user_id", userID, "movie_id", m.ID, "error", err)
	}
	return m, nil
}

// Movie returns an active movie by ID without accounting a view.
func (s *Service) Movie(ctx context.Context, movieID int64) (*model.Movie, error) {
	m, err := s.store.GetMovie(ctx, movieID)
	if err != nil {
		return nil, err
	}
	if !m.IsActive {
		return nil, storage.ErrNotFound
	}
	return m, nil
}

// Episodes lists a series' episodes in order.
func (s *Service) Episodes(ctx context.Context, movieID int64) ([]model.Episode, error) {
	return s.store.ListEpisodes(ctx, movieID)
}

// Episode returns one episode and accounts a view of its series.
func (s *Service) Episode(ctx context.Context, userID, movieID int64, number int) (*model.Episode, error) {
	e, err := s.store.GetEpisode(ctx, movieID, number)
	if err != nil {
		return nil, err
	}
	if err := s.store.AddViewStat(ctx, &model.ViewStat{UserID: userID, MovieID: movieID, CreatedAt: s.now()}); err != nil {
		s.log.Error("add view stat", "user_id", userID, "movie_id", movieID, "error", err)
	}
	return e, nil
}

// Trending returns the most viewed movies of the last week.
func (s *Service) Trending(ctx context.Context) ([]model.TrendingMovie, error) {
	return s.store.TrendingMovies(ctx, s.now().Add(-TrendingWindow), TrendingLimit)
}

// ByCategory lists a category, most viewed first.
func (s *Service) ByCategory(ctx context.Context, category string) ([]model.Movie, error) {
	return s.store.ListMoviesByCategory(ctx, category, CategoryLimit)
}

// Similar returns up to SimilarLimit random movies of m's category, excluding m.
func (s *Service) Similar(ctx context.Context, m *model.Movie) ([]model.Movie, error) {
	all, err := s.store.ListMoviesByCategory(ctx, m.Category, 200)
	if err != nil {
		return nil, err
	}
	out := make([]model.Movie, 0, len(all))
	for _, c := range all {
		if c.ID != m.ID {
			out = append(out, c)
		}
	}
	s.mu.Lock()
	s.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	s.mu.Unlock()
	if len(out) > SimilarLimit {
		out = out[:SimilarLimit]
	}
	return out, nil
}

// Recommendations returns the most viewed movie of every category that has one.
func (s *Service) Recommendations(ctx context.Context) ([]model.Movie, error) {
	var out []model.Movie
	for _, c := range model.Categories {
		ms, err := s.store.ListMoviesByCategory(ctx, c, 1)
		if err != nil {
			return nil, err
		}
		out = append(out, ms...)
	}
	return out, nil
}

// AddMovie stores m, generating a share code when m.Code is empty.
// A duplicate explicit code yields storage.ErrAlreadyExists.
func (s *Service) AddMovie(ctx context.Context, m *model.Movie) error {
	generated := m.Code == ""
	for attempt := 0; ; attempt++ {
		if generated {
			code, err := s.GenerateCode(ctx, m.Title)
			if err != nil {
				return err
			}
			m.Code = code
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = s.now()
		}
		m.IsActive = true
		err := s.store.CreateMovie(ctx, m)
		if errors.Is(err, storage.ErrAlreadyExists) && generated && attempt < 3 {
			continue
		}
		return err
	}
}

// AddEpisode stores an episode of a series. A duplicate number yields storage.ErrAlreadyExists.
func (s *Service) AddEpisode(ctx context.Context, e *model.Episode) error {
	if e.Title == "" {
		e.Title = fmt.Sprintf("%d-qism", e.Number)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	return s.store.CreateEpisode(ctx, e)
}

// Delete hides the movie with code from the catalog and removes a series' episodes.
// It returns the movie and the number of removed episodes.
func (s *Service) Delete(ctx context.Context, code string) (*model.Movie, int64, error) {
	m, err := s.store.DeactivateMovieByCode(ctx, normalizeCode(code))
	if err != nil {
		return nil, 0, err
	}
	if !m.IsSeries() {
		return m, 0, nil
	}
	n, err := s.store.DeleteEpisodes(ctx, m.ID)
	if err != nil {
		return m, 0, fmt.Errorf("delete episodes: %w", err)
	}
	return m, n, nil
}
