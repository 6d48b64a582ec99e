package dedup_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/noticewatch/internal/dedup"
	"github.com/JakeFAU/noticewatch/internal/dedup/memory"
	"github.com/JakeFAU/noticewatch/internal/notice"
)

func TestClaimFirstWinsThenRejects(t *testing.T) {
	t.Parallel()

	store := memory.New()
	c := dedup.NewClaimer(store, time.Hour)
	ctx := context.Background()

	first, err := c.Claim(ctx, "2025000450")
	require.NoError(t, err)
	second, err := c.Claim(ctx, "2025000450")
	require.NoError(t, err)

	require.True(t, first)
	require.False(t, second)

	seen, err := store.Exists(ctx, notice.DedupKey("2025000450"))
	require.NoError(t, err)
	require.True(t, seen)
}

func TestClaimEmptyIDIsNeverNew(t *testing.T) {
	t.Parallel()

	c := dedup.NewClaimer(memory.New(), 0)
	for _, id := range []string{"", "   "} {
		ok, err := c.Claim(context.Background(), id)
		require.NoError(t, err)
		require.False(t, ok)
	}
}

func TestClaimConcurrentCallersSingleWinner(t *testing.T) {
	t.Parallel()

	c := dedup.NewClaimer(memory.New(), time.Hour)
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := c.Claim(context.Background(), "n-1")
			if err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, wins.Load())
}

func TestClaimExpiresAfterTTL(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store := memory.NewWithClock(func() time.Time { return now })
	c := dedup.NewClaimer(store, 30*24*time.Hour)

	ok, err := c.Claim(context.Background(), "n-1")
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(30 * 24 * time.Hour)
	ok, err = c.Claim(context.Background(), "n-1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestClaimWrapsStoreErrors(t *testing.T) {
	t.Parallel()

	c := dedup.NewClaimer(failingStore{}, time.Hour)
	_, err := c.Claim(context.Background(), "n-1")
	require.ErrorContains(t, err, "claim n-1: down")
}

type failingStore struct{}

func (failingStore) Exists(context.Context, string) (bool, error) {
	return false, errors.New("down")
}

func (failingStore) SetWithTTL(context.Context, string, time.Duration) (bool, error) {
	return false, errors.New("down")
}
