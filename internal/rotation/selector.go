// Package rotation picks and persists each user's daily set of mandatory channels.
package rotation

import (
	"math/rand/v2"
	"sync"

	"kinobot/internal/model"
)

// MaxRotating caps how many rotating channels a daily set may contain.
const MaxRotating = 4

// Selector chooses a bounded daily channel set from the active pool.
// It is safe for concurrent use.
type Selector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSelector returns a Selector drawing from rng, or from a randomly seeded source when rng is nil.
func NewSelector(rng *rand.Rand) *Selector {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Selector{rng: rng}
}

// Select returns up to min(limit, len(pool)) distinct channels. Rotating channels in recent
// are skipped unless no other rotating channel is left. At most MaxRotating rotating channels
// come first, stable channels fill the set next, and any other active channel tops it up.
func (s *Selector) Select(pool []model.Channel, recent map[string]bool, limit int) []model.Channel {
	limit = min(limit, len(pool))
	if limit <= 0 {
		return nil
	}

	var rotating, eligible, stable []model.Channel
	for _, ch := range pool {
		switch ch.Type {
		case model.ChannelRotating:
			rotating = append(rotating, ch)
			if !recent[ch.ChatID] {
				eligible = append(eligible, ch)
			}
		case model.ChannelStable:
			stable = append(stable, ch)
		}
	}
	if len(eligible) == 0 {
		eligible = rotating
	}

	rest := append([]model.Channel(nil), pool...)
	s.mu.Lock()
	eligible = s.shuffled(eligible)
	stable = s.shuffled(stable)
	s.shuffle(rest)
	s.mu.Unlock()

	picked := make([]model.Channel, 0, limit)
	seen := make(map[string]bool, limit)
	take := func(from []model.Channel, upTo int) {
		for _, ch := range from {
			if len(picked) >= upTo {
				return
			}
			if seen[ch.ChatID] {
				continue
			}
			seen[ch.ChatID] = true
			picked = append(picked, ch)
		}
	}
	take(eligible, min(MaxRotating, limit))
	take(stable, limit)
	take(rest, limit)
	return picked
}

func (s *Selector) shuffled(in []model.Channel) []model.Channel {
	out := append([]model.Channel(nil), in...)
	s.shuffle(out)
	return out
}

func (s *Selector) shuffle(chs []model.Channel) {
	s.rng.Shuffle(len(chs), func(i, j int) { chs[i], chs[j] = chs[j], chs[i] })
}
