package limiter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raakeshmj/keymanager/internal/store"
)

type fakeCounter struct {
	counts     map[string]int64
	lastMinute int64
	lastTTL    time.Duration
	err        error
}

func (f *fakeCounter) IncrRate(_ context.Context, projectID, keyID string, minute int64, ttl time.Duration) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.lastMinute = minute
	f.lastTTL = ttl
	if f.counts == nil {
		f.counts = make(map[string]int64)
	}
	k := projectID + ":" + keyID
	f.counts[k]++
	return f.counts[k], nil
}

func TestAllowUnderThreshold(t *testing.T) {
	fc := &fakeCounter{}
	l := New(fc, 3, 120*time.Second)

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Allow(context.Background(), "p", "k_abcdefg"))
	}
	assert.ErrorIs(t, l.Allow(context.Background(), "p", "k_abcdefg"), ErrRateLimitExceeded)
	assert.ErrorIs(t, l.Allow(context.Background(), "p", "k_abcdefg"), ErrRateLimitExceeded)
	assert.Equal(t, 120*time.Second, fc.lastTTL)
}

func TestAllowSeparateKeys(t *testing.T) {
	fc := &fakeCounter{}
	l := New(fc, 1, 120*time.Second)

	require.NoError(t, l.Allow(context.Background(), "p", "k_aaaaaaa"))
	require.NoError(t, l.Allow(context.Background(), "p", "k_bbbbbbb"))
	assert.ErrorIs(t, l.Allow(context.Background(), "p", "k_aaaaaaa"), ErrRateLimitExceeded)
}

func TestAllowMinuteWindow(t *testing.T) {
	fc := &fakeCounter{}
	l := New(fc, 100, 120*time.Second)
	base := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return base }

	require.NoError(t, l.Allow(context.Background(), "p", "k_abcdefg"))
	assert.Equal(t, base.Unix()/60, fc.lastMinute)

	l.now = func() time.Time { return base.Add(61 * time.Second) }
	require.NoError(t, l.Allow(context.Background(), "p", "k_abcdefg"))
	assert.Equal(t, base.Unix()/60+1, fc.lastMinute)
}

func TestAllowStoreErrorPassesThrough(t *testing.T) {
	fc := &fakeCounter{err: store.ErrTransient}
	l := New(fc, 100, 120*time.Second)

	err := l.Allow(context.Background(), "p", "k_abcdefg")
	assert.True(t, errors.Is(err, store.ErrTransient))
	assert.False(t, errors.Is(err, ErrRateLimitExceeded))
}
