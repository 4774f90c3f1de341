package rotation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"kinobot/internal/model"
)

const (
	// DefaultLimit is the size of a full daily channel set.
	DefaultLimit = 6
	// LookbackDays is how far back assignments count as recent.
	LookbackDays = 7
)

// Store is the persistence the Manager needs.
type Store interface {
	ListChannels(ctx context.Context, activeOnly bool) ([]model.Channel, error)
	ListAssignments(ctx context.Context, userID int64, day string) ([]model.DailyAssignment, error)
	AssignedChannelsSince(ctx context.Context, userID int64, sinceDay string) ([]string, error)
	ReplaceAssignments(ctx context.Context, userID int64, day string, channelIDs []string, at time.Time) error
}

// Daily is a user's channel set for one rotation day.
type Daily struct {
	Day      string
	Channels []model.Channel
	// Rotated is true when the set was freshly selected by this call.
	Rotated bool
}

// Manager ensures every user has a complete channel set for the current day.
type Manager struct {
	store    Store
	selector *Selector
	limit    int
	now      func() time.Time
	log      *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLimit overrides DefaultLimit.
func WithLimit(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.limit = n
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager.
func NewManager(store Store, selector *Selector, log *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		selector: selector,
		limit:    DefaultLimit,
		now:      time.Now,
		log:      log,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Today returns the current rotation day key.
func (m *Manager) Today() string {
	return model.Day(m.now())
}

// DailyChannels returns the user's channels for today. An existing complete set is returned
// as-is, with since-deactivated channels dropped. A missing or incomplete set is rotated.
func (m *Manager) DailyChannels(ctx context.Context, userID int64) (Daily, error) {
	now := m.now()
	day := model.Day(now)

	pool, err := m.store.ListChannels(ctx, true)
	if err != nil {
		return Daily{}, fmt.Errorf("list active channels: %w", err)
	}
	target := min(m.limit, len(pool))

	assigned, err := m.store.ListAssignments(ctx, userID, day)
	if err != nil {
		return Daily{}, fmt.Errorf("list assignments: %w", err)
	}

	active := make(map[string]model.Channel, len(pool))
	for _, ch := range pool {
		active[ch.ChatID] = ch
	}
	resolved := make([]model.Channel, 0, len(assigned))
	for _, a := range assigned {
		if ch, ok := active[a.ChannelID]; ok {
			resolved = append(resolved, ch)
		}
	}
	if len(resolved) >= target {
		return Daily{Day: day, Channels: resolved}, nil
	}

	chs, err := m.rotate(ctx, userID, now, pool)
	if err != nil {
		return Daily{}, err
	}
	return Daily{Day: day, Channels: chs, Rotated: true}, nil
}

// Rotate selects a fresh set for today and replaces any existing assignment for the day.
func (m *Manager) Rotate(ctx context.Context, userID int64) ([]model.Channel, error) {
	pool, err := m.store.ListChannels(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list active channels: %w", err)
	}
	return m.rotate(ctx, userID, m.now(), pool)
}

func (m *Manager) rotate(ctx context.Context, userID int64, now time.Time, pool []model.Channel) ([]model.Channel, error) {
	day := model.Day(now)
	cutoff := model.Day(now.AddDate(0, 0, -LookbackDays))

	ids, err := m.store.AssignedChannelsSince(ctx, userID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list recent assignments: %w", err)
	}
	recent := make(map[string]bool, len(ids))
	for _, id := range ids {
		recent[id] = true
	}

	chs := m.selector.Select(pool, recent, m.limit)
	chatIDs := make([]string, len(chs))
	for i, ch := range chs {
		chatIDs[i] = ch.ChatID
	}
	if err := m.store.ReplaceAssignments(ctx, userID, day, chatIDs, now); err != nil {
		return nil, fmt.Errorf("save assignments: %w", err)
	}

	m.log.Debug("rotated daily channels", "user_id", userID, "day", day, "channels", len(chs), "recent", len(recent))
	return chs, nil
}
