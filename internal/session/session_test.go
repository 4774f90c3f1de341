package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ Store = (*Memory)(nil)
	_ Store = (*Redis)(nil)
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	got, err := s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, StateNone, got)

	require.NoError(t, s.Set(ctx, 1, StatePayment))
	require.NoError(t, s.Set(ctx, 2, StateSearch))

	got, err = s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, StatePayment, got)

	require.NoError(t, s.Set(ctx, 1, StateBroadcast))
	got, err = s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, StateBroadcast, got)

	require.NoError(t, s.Clear(ctx, 1))
	got, err = s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, StateNone, got)

	require.NoError(t, s.Set(ctx, 2, StateNone))
	got, err = s.Get(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, StateNone, got)
}

func TestMemory(t *testing.T) {
	exerciseStore(t, NewMemory(time.Minute))
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory(time.Minute)
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, 1, StateSearch))
	now = now.Add(59 * time.Second)
	got, _ := m.Get(ctx, 1)
	assert.Equal(t, StateSearch, got)

	now = now.Add(time.Second)
	got, _ = m.Get(ctx, 1)
	assert.Equal(t, StateNone, got)
}

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	r, err := NewRedis(context.Background(), RedisOptions{Addr: mr.Addr(), TTL: time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r, mr
}

func TestRedis(t *testing.T) {
	r, _ := newTestRedis(t)
	exerciseStore(t, r)
}

func TestRedisExpiry(t *testing.T) {
	ctx := context.Background()
	r, mr := newTestRedis(t)

	require.NoError(t, r.Set(ctx, 7, StatePayment))
	assert.True(t, mr.Exists("kinobot:session:7"))
	assert.Equal(t, time.Minute, mr.TTL("kinobot:session:7"))

	mr.FastForward(time.Minute)
	got, err := r.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, StateNone, got)
}

func TestNewRedisUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = NewRedis(context.Background(), RedisOptions{Addr: addr})
	assert.Error(t, err)
}
