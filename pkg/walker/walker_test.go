package walker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	errs "tweetpull/pkg/errors"
	"tweetpull/pkg/logger"
	"tweetpull/pkg/ratelimit"
	"tweetpull/pkg/record"
	"tweetpull/pkg/source"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	now     = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	account = &source.Account{ID: "11348282", ScreenName: "NASA", Name: "NASA"}
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return nil
}

func newGovernor(maxRetries int) *ratelimit.Governor {
	return ratelimit.New(ratelimit.Settings{
		BaseDelay:           2 * time.Second,
		BackoffMultiplier:   2,
		MaxRetries:          maxRetries,
		SafetyMargin:        time.Minute,
		MinThrottleWait:     5 * time.Minute,
		DefaultThrottleWait: 15 * time.Minute,
	}, ratelimit.WithClock(&fakeClock{now: now}))
}

// post builds a raw post with the given id created age before now
func post(id string, age time.Duration) record.Raw {
	return record.Raw{
		"id":         id,
		"text":       "post " + id,
		"created_at": now.Add(-age).Format(time.RFC3339),
		"user":       map[string]any{"id": account.ID, "screen_name": account.ScreenName},
	}
}

// hourly builds n posts one hour apart, ids descending from start
func hourly(start int64, fromHour, n int) []record.Raw {
	out := make([]record.Raw, n)
	for i := 0; i < n; i++ {
		out[i] = post(fmt.Sprint(start-int64(i)), time.Duration(fromHour+i)*time.Hour)
	}
	return out
}

func drain(t *testing.T, w *Walker) ([]string, error) {
	t.Helper()
	var ids []string
	for {
		rec, err := w.Next(context.Background())
		if err == io.EOF {
			return ids, nil
		}
		if err != nil {
			return ids, err
		}
		ids = append(ids, rec.ID)
	}
}

func TestWalkerStopsAtCutoffInclusive(t *testing.T) {
	src := source.NewPaged(account, hourly(100, 0, 10))
	w := New(src, newGovernor(5), Options{Handle: "NASA", Cutoff: now.Add(-4 * time.Hour)})

	ids, err := drain(t, w)
	require.NoError(t, err)

	// ages 0..4h are inside the window, 4h exactly on the cutoff
	assert.Equal(t, []string{"100", "99", "98", "97", "96"}, ids)
	assert.Equal(t, Stopped, w.State())
	assert.Equal(t, account, w.Account())
}

func TestWalkerStopsMidPageWithoutFetchingFurther(t *testing.T) {
	page1 := hourly(300, 0, 5)
	page2 := hourly(295, 5, 5)
	page3 := hourly(290, 10, 5)
	// record 5 of page 2 is 9h old
	src := source.NewPaged(account, page1, page2, page3)
	w := New(src, newGovernor(5), Options{Handle: "NASA", Cutoff: now.Add(-8*time.Hour - time.Minute)})

	ids, err := drain(t, w)
	require.NoError(t, err)

	assert.Len(t, ids, 9)
	assert.Equal(t, "292", ids[len(ids)-1])
	assert.Equal(t, Stopped, w.State())
	assert.Equal(t, []string{"", "c1"}, src.Cursors)
	assert.Equal(t, 2, w.Stats().Pages)
}

func TestWalkerExhaustion(t *testing.T) {
	t.Run("empty page", func(t *testing.T) {
		src := source.NewPaged(account, hourly(50, 0, 3), nil)
		w := New(src, newGovernor(5), Options{Handle: "NASA", Cutoff: now.AddDate(0, 0, -30)})

		ids, err := drain(t, w)
		require.NoError(t, err)
		assert.Len(t, ids, 3)
		assert.Equal(t, Exhausted, w.State())
	})

	t.Run("no next cursor", func(t *testing.T) {
		src := source.NewPaged(account, hourly(50, 0, 3))
		w := New(src, newGovernor(5), Options{Handle: "NASA", Cutoff: now.AddDate(0, 0, -30)})

		ids, err := drain(t, w)
		require.NoError(t, err)
		assert.Len(t, ids, 3)
		assert.Equal(t, Exhausted, w.State())
		assert.Len(t, src.Cursors, 1)
	})

	t.Run("empty page with cursor keeps walking", func(t *testing.T) {
		src := &source.Scripted{Account: account, Steps: []source.Step{
			{Page: &source.Page{NextCursor: "c1"}},
			{Page: &source.Page{Records: []record.Raw{post("100", time.Hour), post("99", 2*time.Hour)}}},
		}}
		w := New(src, newGovernor(5), Options{Handle: "NASA", Cutoff: now.Add(-48 * time.Hour)})

		ids, err := drain(t, w)
		require.NoError(t, err)
		assert.Equal(t, []string{"100", "99"}, ids)
		assert.Equal(t, Exhausted, w.State())
		assert.Equal(t, []string{"", "c1"}, src.Cursors)
		assert.Equal(t, 2, w.Stats().Pages)
	})

	t.Run("repeated cursor ends walk", func(t *testing.T) {
		log := logger.NewTestLogger()
		src := &source.Scripted{Account: account, Steps: []source.Step{
			{Page: &source.Page{Records: hourly(50, 0, 2), NextCursor: "c1"}},
			{Page: &source.Page{NextCursor: "c1"}},
			{Page: &source.Page{Records: hourly(48, 2, 2)}},
		}}
		w := New(src, newGovernor(5), Options{Handle: "NASA", Cutoff: now.AddDate(0, 0, -30), Logger: log})

		ids, err := drain(t, w)
		require.NoError(t, err)
		assert.Equal(t, []string{"50", "49"}, ids)
		assert.Equal(t, Exhausted, w.State())
		assert.Equal(t, []string{"", "c1"}, src.Cursors)
		assert.True(t, log.HasMessage("Source repeated its continuation token, ending walk"))
	})

	t.Run("bounded run of empty pages", func(t *testing.T) {
		log := logger.NewTestLogger()
		src := &source.Scripted{Account: account, Steps: []source.Step{
			{Page: &source.Page{NextCursor: "c1"}},
			{Page: &source.Page{NextCursor: "c2"}},
			{Page: &source.Page{NextCursor: "c3"}},
			{Page: &source.Page{Records: hourly(50, 0, 2)}},
		}}
		w := New(src, newGovernor(5), Options{Handle: "NASA", Cutoff: now.AddDate(0, 0, -30), MaxEmptyPages: 2, Logger: log})

		ids, err := drain(t, w)
		require.NoError(t, err)
		assert.Empty(t, ids)
		assert.Equal(t, Exhausted, w.State())
		assert.Equal(t, []string{"", "c1"}, src.Cursors)
		assert.True(t, log.HasMessage("Too many consecutive empty pages, ending walk"))
	})

	t.Run("empty pages between full pages reset the bound", func(t *testing.T) {
		src := &source.Scripted{Account: account, Steps: []source.Step{
			{Page: &source.Page{NextCursor: "c1"}},
			{Page: &source.Page{Records: hourly(50, 0, 1), NextCursor: "c2"}},
			{Page: &source.Page{NextCursor: "c3"}},
			{Page: &source.Page{Records: hourly(49, 1, 1)}},
		}}
		w := New(src, newGovernor(5), Options{Handle: "NASA", Cutoff: now.AddDate(0, 0, -30), MaxEmptyPages: 2})

		ids, err := drain(t, w)
		require.NoError(t, err)
		assert.Equal(t, []string{"50", "49"}, ids)
		assert.Equal(t, 4, w.Stats().Pages)
	})

	t.Run("next after finish keeps returning EOF", func(t *testing.T) {
		w := New(source.NewPaged(account), newGovernor(5), Options{Handle: "NASA"})
		_, err := w.Next(context.Background())
		assert.Equal(t, io.EOF, err)
		_, err = w.Next(context.Background())
		assert.Equal(t, io.EOF, err)
	})
}

func TestWalkerResume(t *testing.T) {
	t.Run("skips through boundary", func(t *testing.T) {
		src := source.NewPaged(account, hourly(20, 0, 4), hourly(16, 4, 4))
		w := New(src, newGovernor(5), Options{Handle: "NASA", Cutoff: now.AddDate(0, 0, -1), ResumeAfter: "18"})

		ids, err := drain(t, w)
		require.NoError(t, err)
		assert.Equal(t, []string{"17", "16", "15", "14", "13"}, ids)
		assert.Equal(t, 3, w.Stats().Skipped)
	})

	t.Run("boundary was deleted", func(t *testing.T) {
		recs := []record.Raw{post("20", 0), post("19", time.Hour), post("17", 2*time.Hour), post("16", 3*time.Hour)}
		log := logger.NewTestLogger()
		src := source.NewPaged(account, recs)
		w := New(src, newGovernor(5), Options{Handle: "NASA", Cutoff: now.AddDate(0, 0, -1), ResumeAfter: "18", Logger: log})

		ids, err := drain(t, w)
		require.NoError(t, err)
		assert.Equal(t, []string{"17", "16"}, ids)
		assert.True(t, log.HasMessage("Resume boundary record missing, resuming at first older id"))
	})

	t.Run("boundary beyond cutoff", func(t *testing.T) {
		src := source.NewPaged(account, hourly(20, 0, 4))
		w := New(src, newGovernor(5), Options{Handle: "NASA", Cutoff: now.Add(-90 * time.Minute), ResumeAfter: "5"})

		ids, err := drain(t, w)
		require.NoError(t, err)
		assert.Empty(t, ids)
		assert.Equal(t, Stopped, w.State())
	})
}

func TestWalkerTerminalAccountErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"not found", source.ErrNotFound, errs.ErrAccountNotFound},
		{"forbidden", source.ErrForbidden, errs.ErrAccountForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &source.Scripted{Account: account, ResolveErr: []error{tt.err}}
			gov := newGovernor(5)
			w := New(src, gov, Options{Handle: "NASA"})

			_, err := w.Next(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, Failed, w.State())
			assert.Equal(t, 1, src.ResolveCalls)
			assert.Zero(t, gov.State().ConsecutiveFailures)

			_, again := w.Next(context.Background())
			assert.Equal(t, err, again)
		})
	}

	t.Run("forbidden mid walk", func(t *testing.T) {
		src := &source.Scripted{Account: account, Steps: []source.Step{{Err: fmt.Errorf("timeline: %w", source.ErrForbidden)}}}
		w := New(src, newGovernor(5), Options{Handle: "NASA"})

		_, err := w.Next(context.Background())
		assert.ErrorIs(t, err, errs.ErrAccountForbidden)
		assert.Len(t, src.Cursors, 1)
	})
}

func TestWalkerRetriesThrottleThenSucceeds(t *testing.T) {
	page := &source.Page{Records: hourly(10, 0, 2)}
	src := &source.Scripted{Account: account, Steps: []source.Step{
		{Err: &source.RateLimitError{ResetAt: now.Add(time.Minute)}},
		{Page: &source.Page{Throttled: &source.Throttle{}}},
		{Page: page},
	}}
	gov := newGovernor(5)
	w := New(src, gov, Options{Handle: "NASA", Cutoff: now.AddDate(0, 0, -1)})

	ids, err := drain(t, w)
	require.NoError(t, err)
	assert.Equal(t, []string{"10", "9"}, ids)
	assert.Len(t, src.Cursors, 3)
	assert.Zero(t, gov.State().ConsecutiveFailures)
}

func TestWalkerTransientExhaustion(t *testing.T) {
	boom := errors.New("connection reset")
	steps := make([]source.Step, 4)
	for i := range steps {
		steps[i] = source.Step{Err: boom}
	}
	src := &source.Scripted{Account: account, Steps: steps}
	w := New(src, newGovernor(3), Options{Handle: "NASA"})

	_, err := w.Next(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrTransientFailureExhausted)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, src.Cursors, 4)
	assert.Equal(t, Failed, w.State())
}

func TestWalkerRateLimitExhaustion(t *testing.T) {
	steps := make([]source.Step, 3)
	for i := range steps {
		steps[i] = source.Step{Err: &source.RateLimitError{}}
	}
	src := &source.Scripted{Account: account, Steps: steps}
	w := New(src, newGovernor(2), Options{Handle: "NASA"})

	_, err := w.Next(context.Background())
	assert.ErrorIs(t, err, errs.ErrRateLimitExhausted)
}

func TestWalkerSchemaViolation(t *testing.T) {
	bad := record.Raw{"id": "7", "text": "no timestamp"}
	src := source.NewPaged(account, []record.Raw{post("8", 0), bad})
	w := New(src, newGovernor(5), Options{Handle: "NASA", Cutoff: now.AddDate(0, 0, -1)})

	ids, err := drain(t, w)
	assert.Equal(t, []string{"8"}, ids)
	assert.ErrorIs(t, err, errs.ErrSchemaViolation)
	assert.Equal(t, Failed, w.State())
}

func TestWalkerOutOfOrderWarning(t *testing.T) {
	log := logger.NewTestLogger()
	recs := []record.Raw{post("3", time.Hour), post("2", 0), post("1", 2*time.Hour)}
	w := New(source.NewPaged(account, recs), newGovernor(5), Options{Handle: "NASA", Cutoff: now.AddDate(0, 0, -1), Logger: log})

	ids, err := drain(t, w)
	require.NoError(t, err)
	assert.Len(t, ids, 3)
	assert.True(t, log.HasMessage("Source returned records out of chronological order"))
}

func TestWalkerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := source.NewPaged(account, hourly(10, 0, 2), hourly(8, 2, 2))
	w := New(src, newGovernor(5), Options{Handle: "NASA", Cutoff: now.AddDate(0, 0, -1)})

	_, err := w.Next(ctx)
	require.NoError(t, err)
	_, err = w.Next(ctx)
	require.NoError(t, err)

	cancel()
	_, err = w.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Failed, w.State())
	assert.Len(t, src.Cursors, 1)
}

func TestWalkerOmitsEngagement(t *testing.T) {
	raw := post("1", 0)
	raw["favorite_count"] = float64(9)
	w := New(source.NewPaged(account, []record.Raw{raw}), newGovernor(5), Options{
		Handle: "NASA",
		Cutoff: now.AddDate(0, 0, -1),
		Record: record.Options{OmitEngagement: true},
	})

	rec, err := w.Next(context.Background())
	require.NoError(t, err)
	assert.Nil(t, rec.FavoriteCount)
}

func TestOlderID(t *testing.T) {
	assert.True(t, olderID("99", "100"))
	assert.True(t, olderID("1745000000000000000", "1745000000000000001"))
	assert.False(t, olderID("100", "99"))
	assert.False(t, olderID("abc", "100"))
	assert.False(t, olderID("5", "5"))
	assert.True(t, olderID("007", "10"))
}
