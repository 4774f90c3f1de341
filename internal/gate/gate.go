// Package gate decides whether a user may use the bot's content commands.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"kinobot/internal/metrics"
	"kinobot/internal/model"
	"kinobot/internal/rotation"
	"kinobot/internal/storage"
	"kinobot/internal/subscription"
)

// Reason explains a Decision.
type Reason string

// Decision reasons.
const (
	ReasonPremium       Reason = "premium"
	ReasonNoChannels    Reason = "no_channels"
	ReasonMisconfigured Reason = "misconfigured"
	ReasonSatisfied     Reason = "satisfied"
	ReasonPending       Reason = "pending"
)

// Decision is the gate's verdict for one user.
type Decision struct {
	Allowed bool
	Reason  Reason
	Day     string
	// Channels are the checked channels in display order.
	Channels   []model.Channel
	Subscribed map[string]bool
	Pending    int
}

// UserStore loads users.
type UserStore interface {
	GetUser(ctx context.Context, id int64) (*model.User, error)
}

// PremiumReconciler reports premium status, revoking expired grants.
type PremiumReconciler interface {
	Reconcile(ctx context.Context, u *model.User) (bool, error)
}

// DailyChannels provides the user's channel set for today.
type DailyChannels interface {
	DailyChannels(ctx context.Context, userID int64) (rotation.Daily, error)
}

// Reconciler checks live memberships.
type Reconciler interface {
	Reconcile(ctx context.Context, userID int64, day string, channels []model.Channel) subscription.Result
}

// Gate is the enforcement policy entry point.
type Gate struct {
	users      UserStore
	premium    PremiumReconciler
	daily      DailyChannels
	reconciler Reconciler
	metrics    *metrics.Metrics
	log        *slog.Logger
}

// New creates a Gate.
func New(users UserStore, premium PremiumReconciler, daily DailyChannels, reconciler Reconciler, m *metrics.Metrics, log *slog.Logger) *Gate {
	return &Gate{
		users:      users,
		premium:    premium,
		daily:      daily,
		reconciler: reconciler,
		metrics:    m,
		log:        log,
	}
}

// Enforce decides whether userID may proceed. Premium users skip the channel check.
// A missing or unresolvable channel configuration allows access and logs a warning.
func (g *Gate) Enforce(ctx context.Context, userID int64) (Decision, error) {
	start := time.Now()
	d, err := g.enforce(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	g.metrics.ObserveGate(string(d.Reason), d.Allowed, time.Since(start))
	return d, nil
}

func (g *Gate) enforce(ctx context.Context, userID int64) (Decision, error) {
	u, err := g.users.GetUser(ctx, userID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return Decision{}, fmt.Errorf("get user: %w", err)
	}
	if u != nil {
		ok, err := g.premium.Reconcile(ctx, u)
		if err != nil {
			g.log.Error("reconcile premium", "user_id", userID, "error", err)
		}
		if ok {
			return Decision{Allowed: true, Reason: ReasonPremium}, nil
		}
	}

	daily, err := g.daily.DailyChannels(ctx, userID)
	if err != nil {
		return Decision{}, fmt.Errorf("daily channels: %w", err)
	}
	if len(daily.Channels) == 0 {
		g.log.Warn("no active channels configured, allowing access", "user_id", userID)
		return Decision{Allowed: true, Reason: ReasonNoChannels, Day: daily.Day}, nil
	}
	if len(subscription.Checkable(daily.Channels)) == 0 {
		g.log.Warn("no assigned channel has a link, add invite links", "user_id", userID, "channels", len(daily.Channels))
		return Decision{Allowed: true, Reason: ReasonMisconfigured, Day: daily.Day}, nil
	}

	res := g.reconciler.Reconcile(ctx, userID, daily.Day, daily.Channels)
	d := Decision{
		Allowed:    res.AllSatisfied,
		Reason:     ReasonSatisfied,
		Day:        daily.Day,
		Channels:   res.Checked,
		Subscribed: res.Subscribed,
		Pending:    res.Pending,
	}
	if !d.Allowed {
		d.Reason = ReasonPending
	}
	return d, nil
}
