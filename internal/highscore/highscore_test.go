package highscore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances one second per call so achievement times are ordered.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestService(t *testing.T, opts Options) *Service {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	opts.Now = clock.Now
	return NewService(NewMemoryStore(), opts)
}

func TestSubmitRanksByScore(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, DefaultOptions())

	rank, err := svc.Submit(ctx, "ana", 500)
	require.NoError(t, err)
	assert.Equal(t, 1, rank)

	rank, err = svc.Submit(ctx, "bo", 900)
	require.NoError(t, err)
	assert.Equal(t, 1, rank)

	rank, err = svc.Submit(ctx, "cy", 700)
	require.NoError(t, err)
	assert.Equal(t, 2, rank)

	top, err := svc.Top(ctx)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, []string{"bo", "cy", "ana"}, []string{top[0].Name, top[1].Name, top[2].Name})
	assert.Equal(t, []int{1, 2, 3}, []int{top[0].Rank, top[1].Rank, top[2].Rank})

	best, err := svc.Best(ctx)
	require.NoError(t, err)
	assert.Equal(t, 900, best)
}

func TestSubmitTiesKeepEarlierFirst(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, DefaultOptions())

	_, err := svc.Submit(ctx, "first", 300)
	require.NoError(t, err)
	rank, err := svc.Submit(ctx, "second", 300)
	require.NoError(t, err)
	assert.Equal(t, 2, rank)

	top, err := svc.Top(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", top[0].Name)
}

func TestSubmitValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, DefaultOptions())
	_, err := svc.Submit(ctx, "Ana", 400)
	require.NoError(t, err)

	tests := []struct {
		name    string
		player  string
		score   int
		wantErr error
	}{
		{"empty name", "   ", 500, ErrEmptyName},
		{"long name", "abcdefghijklmnopqrstuvwxyz", 500, ErrNameTooLong},
		{"below minimum", "low", 99, ErrScoreTooLow},
		{"name taken case-insensitive", "ANA", 800, ErrNameTaken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Submit(ctx, tt.player, tt.score)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestMinimumScoreQualifies(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, DefaultOptions())

	ok, err := svc.Qualifies(ctx, 100)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Qualifies(ctx, 99)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFullListMustBeatLastEntry(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, Options{Capacity: 3, MinScore: 100})

	for i, score := range []int{500, 400, 300} {
		_, err := svc.Submit(ctx, fmt.Sprintf("p%d", i), score)
		require.NoError(t, err)
	}

	ok, err := svc.Qualifies(ctx, 300)
	require.NoError(t, err)
	assert.False(t, ok, "equal to the last entry does not qualify")

	_, err = svc.Submit(ctx, "tie", 300)
	assert.ErrorIs(t, err, ErrScoreTooLow)

	rank, err := svc.Submit(ctx, "new", 450)
	require.NoError(t, err)
	assert.Equal(t, 2, rank)

	top, err := svc.Top(ctx)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, 400, top[2].Score)
}

func TestDefaultCapacityIsTen(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, Options{MinScore: 100})
	assert.Equal(t, DefaultCapacity, svc.Capacity())

	for i := 0; i < 12; i++ {
		_, _ = svc.Submit(ctx, fmt.Sprintf("p%02d", i), 1000+i*10)
	}

	top, err := svc.Top(ctx)
	require.NoError(t, err)
	assert.Len(t, top, 10)
	assert.Equal(t, 1110, top[0].Score)
}

func TestBestOnEmptyList(t *testing.T) {
	svc := newTestService(t, DefaultOptions())

	best, err := svc.Best(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, best)
}

func TestSeededStoreIsRanked(t *testing.T) {
	store := NewMemoryStore(
		Entry{Name: "low", Score: 200},
		Entry{Name: "high", Score: 800},
	)
	svc := NewService(store, DefaultOptions())

	top, err := svc.Top(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "high", top[0].Name)
	assert.Equal(t, 1, top[0].Rank)
}

type failingStore struct{ err error }

func (f failingStore) Load(context.Context) ([]Entry, error) { return nil, nil }
func (f failingStore) Save(context.Context, []Entry) error   { return f.err }

func TestSaveErrorIsWrapped(t *testing.T) {
	boom := errors.New("disk full")
	svc := NewService(failingStore{err: boom}, DefaultOptions())

	_, err := svc.Submit(context.Background(), "ana", 500)
	assert.ErrorIs(t, err, boom)
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc := NewService(NewMemoryStore(), DefaultOptions())

	_, err := svc.Top(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
