// Package broadcast fans a message out to every bot user.
package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"kinobot/internal/metrics"
)

// ProgressEvery is how many users are processed between progress reports.
const ProgressEvery = 10

// DefaultLimit keeps sends under Telegram's global rate limit.
var DefaultLimit = rate.Every(50 * time.Millisecond)

// Users lists broadcast recipients.
type Users interface {
	ListUserIDs(ctx context.Context) ([]int64, error)
}

// Copier copies an existing message into a chat.
type Copier interface {
	CopyMessage(toChatID, fromChatID int64, messageID int) error
}

// Progress is called every ProgressEvery users with the number processed so far.
type Progress func(done, total int)

// Result summarizes a finished broadcast.
type Result struct {
	Total  int
	Sent   int
	Failed int
}

// Broadcaster sends a message copy to all users, one at a time.
type Broadcaster struct {
	users   Users
	copier  Copier
	limiter *rate.Limiter
	metrics *metrics.Metrics
	log     *slog.Logger
}

// New creates a Broadcaster that takes a limiter token before every send.
// A nil limiter sends without pacing.
func New(users Users, copier Copier, limiter *rate.Limiter, m *metrics.Metrics, log *slog.Logger) *Broadcaster {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Broadcaster{users: users, copier: copier, limiter: limiter, metrics: m, log: log}
}

// Send copies message messageID of fromChatID to every user. A failed delivery is logged
// and counted; it never stops the batch. Cancelling ctx stops after the current user.
func (b *Broadcaster) Send(ctx context.Context, fromChatID int64, messageID int, progress Progress) (Result, error) {
	ids, err := b.users.ListUserIDs(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("list users: %w", err)
	}

	res := Result{Total: len(ids)}
	for i, id := range ids {
		if err := b.limiter.Wait(ctx); err != nil {
			b.log.Info("broadcast cancelled", "done", i, "total", res.Total)
			return res, fmt.Errorf("rate limit wait: %w", err)
		}
		if err := b.copier.CopyMessage(id, fromChatID, messageID); err != nil {
			res.Failed++
			b.metrics.ObserveBroadcast(false)
			b.log.Warn("broadcast send", "user_id", id, "error", err)
		} else {
			res.Sent++
			b.metrics.ObserveBroadcast(true)
		}

		done := i + 1
		if progress != nil && done%ProgressEvery == 0 {
			progress(done, res.Total)
		}
	}

	b.log.Info("broadcast finished", "total", res.Total, "sent", res.Sent, "failed", res.Failed)
	return res, nil
}
