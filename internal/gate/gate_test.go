package gate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"kinobot/internal/model"
	"kinobot/internal/premium"
	"kinobot/internal/rotation"
	"kinobot/internal/storage"
	"kinobot/internal/subscription"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeChecker struct {
	mu      sync.Mutex
	members map[string]bool
	calls   int
}

func (f *fakeChecker) MemberStatus(_ context.Context, chatID string, _ int64) (model.MemberStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.members[chatID] {
		return model.StatusMember, nil
	}
	return model.StatusLeft, nil
}

type fixture struct {
	gate    *Gate
	store   *storage.SQLite
	checker *fakeChecker
}

func newFixture(t *testing.T, pool []model.Channel) *fixture {
	t.Helper()
	ctx := context.Background()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	for i := range pool {
		if err := s.CreateChannel(ctx, &pool[i]); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.UpsertUser(ctx, &model.User{ID: 1}); err != nil {
		t.Fatal(err)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := func() time.Time { return testNow }
	checker := &fakeChecker{members: map[string]bool{}}

	prem := premium.New(s, premium.Defaults{Days: 30}, log)
	prem.SetClock(now)
	mgr := rotation.NewManager(s, rotation.NewSelector(rand.New(rand.NewPCG(1, 2))), log, rotation.WithClock(now))
	rec := subscription.NewReconciler(checker, s, time.Second, nil, log)

	return &fixture{gate: New(s, prem, mgr, rec, nil, log), store: s, checker: checker}
}

func pool(rotating, stable int) []model.Channel {
	var out []model.Channel
	for i := range rotating {
		out = append(out, model.Channel{ChatID: fmt.Sprintf("@rot%d", i), Type: model.ChannelRotating, IsActive: true})
	}
	for i := range stable {
		out = append(out, model.Channel{ChatID: fmt.Sprintf("@pub%d", i), Type: model.ChannelStable, IsActive: true})
	}
	return out
}

func TestEnforcePremiumBypass(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, pool(4, 2))
	until := testNow.Add(24 * time.Hour)
	if err := f.store.SetPremium(ctx, 1, &until); err != nil {
		t.Fatal(err)
	}

	d, err := f.gate.Enforce(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed || d.Reason != ReasonPremium {
		t.Errorf("decision = %+v, want premium allow", d)
	}
	if f.checker.calls != 0 {
		t.Errorf("membership checked %d times for premium user", f.checker.calls)
	}
	assigned, _ := f.store.ListAssignments(ctx, 1, model.Day(testNow))
	if len(assigned) != 0 {
		t.Errorf("premium user got %d assignments", len(assigned))
	}
}

func TestEnforceExpiredPremium(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, pool(4, 2))
	past := testNow.Add(-time.Minute)
	if err := f.store.SetPremium(ctx, 1, &past); err != nil {
		t.Fatal(err)
	}

	d, err := f.gate.Enforce(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed || d.Reason != ReasonPending {
		t.Errorf("decision = %+v, want pending deny", d)
	}
	u, _ := f.store.GetUser(ctx, 1)
	if u.IsPremium {
		t.Error("expired premium flag not revoked")
	}
}

func TestEnforceEmptyPool(t *testing.T) {
	f := newFixture(t, nil)
	d, err := f.gate.Enforce(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed || d.Reason != ReasonNoChannels || len(d.Channels) != 0 {
		t.Errorf("decision = %+v, want allow with no channels", d)
	}
}

func TestEnforceMisconfigured(t *testing.T) {
	chs := []model.Channel{
		{ChatID: "-1001", Type: model.ChannelStable, IsActive: true},
		{ChatID: "-1002", Type: model.ChannelRotating, IsActive: true},
	}
	f := newFixture(t, chs)
	d, err := f.gate.Enforce(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed || d.Reason != ReasonMisconfigured {
		t.Errorf("decision = %+v, want misconfigured allow", d)
	}
	if f.checker.calls != 0 {
		t.Errorf("checked %d unresolvable channels", f.checker.calls)
	}
}

func TestEnforceFiveOfSix(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, pool(4, 2))

	// First pass learns today's assignment.
	d, err := f.gate.Enforce(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(d.Channels) != 6 {
		t.Fatalf("assigned %d channels, want 6", len(d.Channels))
	}
	for _, ch := range d.Channels[:5] {
		f.checker.members[ch.ChatID] = true
	}

	d, err = f.gate.Enforce(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed || d.Reason != ReasonPending || d.Pending != 1 {
		t.Fatalf("decision = %+v, want deny with 1 pending", d)
	}
	var yes, no int
	for _, ok := range d.Subscribed {
		if ok {
			yes++
		} else {
			no++
		}
	}
	if yes != 5 || no != 1 {
		t.Errorf("status map %d true / %d false, want 5/1", yes, no)
	}

	f.checker.members[d.Channels[5].ChatID] = true
	d, err = f.gate.Enforce(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed || d.Reason != ReasonSatisfied {
		t.Errorf("decision = %+v, want satisfied", d)
	}
}

func TestEnforceUnknownUser(t *testing.T) {
	f := newFixture(t, pool(1, 0))
	d, err := f.gate.Enforce(context.Background(), 777)
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed {
		t.Errorf("decision = %+v, want deny for unsubscribed unknown user", d)
	}
}
