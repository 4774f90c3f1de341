// Package storage defines the Content Store interface and its SQLite and MongoDB implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"kinobot/internal/model"
)

var (
	// ErrNotFound is returned when a keyed lookup matches nothing.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when an insert violates a uniqueness constraint.
	ErrAlreadyExists = errors.New("already exists")
)

var (
	_ Storage = (*SQLite)(nil)
	_ Storage = (*Mongo)(nil)
)

// Storage is the interface for all persistence operations.
type Storage interface {
	Users
	Channels
	Assignments
	Catalog
	Stats
	Payments
	Settings
	Counters
	Sources
	Importer

	Close() error
}

// Users persists bot users.
type Users interface {
	// UpsertUser inserts u if no user with u.ID exists. Existing records are left untouched.
	UpsertUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id int64) (*model.User, error)
	// SetPremium grants premium until the given time, or revokes it when until is nil.
	SetPremium(ctx context.Context, userID int64, until *time.Time) error
	ListUserIDs(ctx context.Context) ([]int64, error)
}

// Channels persists mandatory-subscription channels.
type Channels interface {
	CreateChannel(ctx context.Context, ch *model.Channel) error
	GetChannel(ctx context.Context, id int64) (*model.Channel, error)
	ListChannels(ctx context.Context, activeOnly bool) ([]model.Channel, error)
	SetChannelActive(ctx context.Context, chatID string, active bool) error
	DeleteChannel(ctx context.Context, chatID string) error
}

// Assignments persists the per-user daily channel assignments.
type Assignments interface {
	// ListAssignments returns the user's assignments for day ordered by position.
	ListAssignments(ctx context.Context, userID int64, day string) ([]model.DailyAssignment, error)
	// AssignedChannelsSince returns the distinct channel IDs assigned to the user on or after sinceDay.
	AssignedChannelsSince(ctx context.Context, userID int64, sinceDay string) ([]string, error)
	// ReplaceAssignments drops every assignment of the user for day and stores channelIDs in order.
	ReplaceAssignments(ctx context.Context, userID int64, day string, channelIDs []string, at time.Time) error
	// RecordCheck stamps the last-checked time and, if subscribed, the confirmed time.
	RecordCheck(ctx context.Context, userID int64, channelID, day string, subscribed bool, at time.Time) error
}

// Catalog persists movies and series episodes.
type Catalog interface {
	CreateMovie(ctx context.Context, m *model.Movie) error
	GetMovie(ctx context.Context, id int64) (*model.Movie, error)
	GetMovieByCode(ctx context.Context, code string) (*model.Movie, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	// FindMovies matches active titles case-insensitively: whole title when exact, substring otherwise.
	// Results are ordered by views, most viewed first.
	FindMovies(ctx context.Context, title string, exact bool, limit int) ([]model.Movie, error)
	FindSeriesByTitle(ctx context.Context, title string) (*model.Movie, error)
	GetMovieBySource(ctx context.Context, chatID string, messageID int64) (*model.Movie, error)
	ListMoviesByCategory(ctx context.Context, category string, limit int) ([]model.Movie, error)
	ListPopularMovies(ctx context.Context, limit int) ([]model.Movie, error)
	IncrementMovieViews(ctx context.Context, id int64) error
	DeactivateMovieByCode(ctx context.Context, code string) (*model.Movie, error)
	TrendingMovies(ctx context.Context, since time.Time, limit int) ([]model.TrendingMovie, error)

	CreateEpisode(ctx context.Context, e *model.Episode) error
	GetEpisode(ctx context.Context, movieID int64, number int) (*model.Episode, error)
	GetEpisodeBySource(ctx context.Context, chatID string, messageID int64) (*model.Episode, error)
	ListEpisodes(ctx context.Context, movieID int64) ([]model.Episode, error)
	DeleteEpisodes(ctx context.Context, movieID int64) (int64, error)
}

// Stats persists search and view statistics.
type Stats interface {
	// AddSearchStat records the search and bumps the user's search counter.
	AddSearchStat(ctx context.Context, s *model.SearchStat) error
	// AddViewStat records the view and bumps the user's view counter.
	AddViewStat(ctx context.Context, v *model.ViewStat) error
	TopSearches(ctx context.Context, since time.Time, limit int) ([]model.SearchCount, error)
	Statistics(ctx context.Context, now time.Time) (*model.Statistics, error)
}

// Payments persists premium payments.
type Payments interface {
	CreatePayment(ctx context.Context, p *model.Payment) error
	GetPayment(ctx context.Context, id int64) (*model.Payment, error)
	UpdatePaymentStatus(ctx context.Context, id int64, status model.PaymentStatus) error
}

// Settings persists admin-editable key/value settings.
type Settings interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	// EnsureSetting stores value only if key is absent.
	EnsureSetting(ctx context.Context, key, value string) error
}

// Counters allocates surrogate IDs.
type Counters interface {
	// NextID atomically increments the named counter and returns the new value.
	NextID(ctx context.Context, name string) (int64, error)
	// SetCounterFloor raises the named counter to at least floor.
	SetCounterFloor(ctx context.Context, name string, floor int64) error
}

// Sources persists feed sources for catalog ingestion.
type Sources interface {
	CreateSource(ctx context.Context, s *model.Source) error
	GetSource(ctx context.Context, id int64) (*model.Source, error)
	ListSources(ctx context.Context) ([]model.Source, error)
	ListDueSources(ctx context.Context, now time.Time) ([]model.Source, error)
	UpdateSource(ctx context.Context, s *model.Source) error
	DeleteSource(ctx context.Context, id int64) error

	MarkSeen(ctx context.Context, sourceID int64, guid string) error
	IsSeen(ctx context.Context, sourceID int64, guid string) (bool, error)
}

// Importer writes records with their original surrogate IDs, upserting on the natural key.
type Importer interface {
	HasData(ctx context.Context) (bool, error)
	ImportUser(ctx context.Context, u *model.User) error
	ImportChannel(ctx context.Context, ch *model.Channel) error
	ImportAssignment(ctx context.Context, a *model.DailyAssignment) error
	ImportMovie(ctx context.Context, m *model.Movie) error
	ImportEpisode(ctx context.Context, e *model.Episode) error
	ImportSearchStat(ctx context.Context, s *model.SearchStat) error
	ImportViewStat(ctx context.Context, v *model.ViewStat) error
	ImportPayment(ctx context.Context, p *model.Payment) error
}

// IsPremiumActive reports whether u holds a premium grant that has not expired at now.
func IsPremiumActive(u *model.User, now time.Time) bool {
	return u != nil && u.IsPremium && u.PremiumUntil != nil && u.PremiumUntil.After(now)
}
