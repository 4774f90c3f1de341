// Package subscription reconciles a user's live channel memberships against the day's assignment.
package subscription

import (
	"context"
	"log/slog"
	"time"

	"kinobot/internal/metrics"
	"kinobot/internal/model"
)

// DefaultTimeout bounds a single membership check.
const DefaultTimeout = 5 * time.Second

// MembershipChecker reports a user's status in a channel.
type MembershipChecker interface {
	MemberStatus(ctx context.Context, chatID string, userID int64) (model.MemberStatus, error)
}

// Recorder persists check outcomes on the day's assignment.
type Recorder interface {
	RecordCheck(ctx context.Context, userID int64, channelID, day string, subscribed bool, at time.Time) error
}

// Result is the outcome of reconciling one user.
type Result struct {
	// AllSatisfied is true when at least one channel was checked and every check passed.
	AllSatisfied bool
	// Subscribed maps channel chat IDs to the membership result.
	Subscribed map[string]bool
	Checked    []model.Channel
	Pending    int
}

// Reconciler checks memberships and records confirmations.
type Reconciler struct {
	checker MembershipChecker
	store   Recorder
	timeout time.Duration
	now     func() time.Time
	metrics *metrics.Metrics
	log     *slog.Logger
}

// NewReconciler creates a Reconciler. A non-positive timeout selects DefaultTimeout.
func NewReconciler(checker MembershipChecker, store Recorder, timeout time.Duration, m *metrics.Metrics, log *slog.Logger) *Reconciler {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Reconciler{
		checker: checker,
		store:   store,
		timeout: timeout,
		now:     time.Now,
		metrics: m,
		log:     log,
	}
}

// Checkable returns the channels users can be sent to, preserving order.
func Checkable(chs []model.Channel) []model.Channel {
	out := make([]model.Channel, 0, len(chs))
	for _, ch := range chs {
		if ch.URL() != "" {
			out = append(out, ch)
		}
	}
	return out
}

// Reconcile checks the user's membership in every checkable channel of day's set.
// Channels without a joinable URL are skipped. A failed or timed-out check counts as
// not subscribed and does not stop the remaining checks.
func (r *Reconciler) Reconcile(ctx context.Context, userID int64, day string, channels []model.Channel) Result {
	res := Result{
		Subscribed: make(map[string]bool, len(channels)),
		Checked:    Checkable(channels),
	}

	for _, ch := range res.Checked {
		ok := r.check(ctx, userID, ch)
		res.Subscribed[ch.ChatID] = ok
		if !ok {
			res.Pending++
		}
		if err := r.store.RecordCheck(ctx, userID, ch.ChatID, day, ok, r.now()); err != nil {
			r.log.Error("record subscription check", "user_id", userID, "channel_id", ch.ChatID, "error", err)
		}
	}

	res.AllSatisfied = len(res.Checked) > 0 && res.Pending == 0
	return res
}

func (r *Reconciler) check(ctx context.Context, userID int64, ch model.Channel) bool {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	status, err := r.checker.MemberStatus(ctx, ch.ChatID, userID)
	if err != nil {
		r.metrics.ObserveMembership("error")
		r.log.Warn("membership check failed", "user_id", userID, "channel_id", ch.ChatID, "error", err)
		return false
	}
	if status.IsMember() {
		r.metrics.ObserveMembership("member")
		return true
	}
	r.metrics.ObserveMembership("not_member")
	return false
}
