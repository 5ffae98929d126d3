package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"blurtbb/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedGetter answers attempt n with script(n).
type scriptedGetter struct {
	mu     sync.Mutex
	calls  int
	script func(n int) (*models.Content, error)
}

func (g *scriptedGetter) GetContent(ctx context.Context, author, permlink string) (*models.Content, error) {
	g.mu.Lock()
	g.calls++
	n := g.calls
	g.mu.Unlock()
	return g.script(n)
}

type recordingNavigator struct {
	navigations []string
	notices     []string
}

func (n *recordingNavigator) Navigate(url string)   { n.navigations = append(n.navigations, url) }
func (n *recordingNavigator) Notify(message string) { n.notices = append(n.notices, message) }

func drain(t *testing.T, sched *manualScheduler, w *SubmissionWatch) {
	t.Helper()
	for i := 0; i < 100 && sched.FireNext(); i++ {
	}
	select {
	case <-w.Done():
	default:
		t.Fatal("watch did not finish")
	}
}

func TestWaitForPostSucceedsOnFourthAttempt(t *testing.T) {
	sched := &manualScheduler{}
	var intervals []time.Duration
	getter := &scriptedGetter{script: func(n int) (*models.Content, error) {
		if n < 4 {
			return &models.Content{}, nil
		}
		return &models.Content{Author: "author", Permlink: "permlink"}, nil
	}}
	nav := &recordingNavigator{}
	p := NewSubmissionPoller(getter, sched, 2*time.Second, 15, testLogger())

	w := p.WaitForPost(context.Background(), "author", "permlink", nav)
	for _, tm := range sched.timers {
		intervals = append(intervals, tm.d)
	}
	assert.Equal(t, []time.Duration{2 * time.Second}, intervals)
	assert.Zero(t, getter.calls, "first check waits one interval")

	drain(t, sched, w)
	assert.Equal(t, 4, w.Attempts())
	assert.Equal(t, []string{"/?post=@author/permlink"}, nav.navigations)
	assert.Empty(t, nav.notices)
	assert.Zero(t, sched.Active())
}

func TestWaitForPostGivesUpAfterFifteenAttempts(t *testing.T) {
	sched := &manualScheduler{}
	getter := &scriptedGetter{script: func(int) (*models.Content, error) {
		return &models.Content{}, nil
	}}
	nav := &recordingNavigator{}
	p := NewSubmissionPoller(getter, sched, 2*time.Second, 15, testLogger())

	w := p.WaitForPost(context.Background(), "author", "permlink", nav)
	drain(t, sched, w)

	assert.Equal(t, 15, getter.calls)
	assert.Equal(t, []string{NoticeSlowPropagation}, nav.notices)
	assert.Equal(t, []string{"/"}, nav.navigations)
}

func TestWaitForPostCountsErrorsAsAttempts(t *testing.T) {
	sched := &manualScheduler{}
	getter := &scriptedGetter{script: func(n int) (*models.Content, error) {
		if n <= 2 {
			return nil, errors.New("node lagging")
		}
		return &models.Content{Author: "a", Permlink: "p"}, nil
	}}
	nav := &recordingNavigator{}
	p := NewSubmissionPoller(getter, sched, time.Second, 15, testLogger())

	w := p.WaitForPost(context.Background(), "a", "p", nav)
	drain(t, sched, w)
	assert.Equal(t, 3, w.Attempts())
	assert.Equal(t, []string{"/?post=@a/p"}, nav.navigations)
}

func TestWaitForEdit(t *testing.T) {
	before := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	stale := &models.Content{Author: "a", Permlink: "p", LastUpdate: models.NewChainTime(before)}
	fresh := &models.Content{Author: "a", Permlink: "p", LastUpdate: models.NewChainTime(before.Add(time.Minute))}

	t.Run("success goes back", func(t *testing.T) {
		sched := &manualScheduler{}
		getter := &scriptedGetter{script: func(n int) (*models.Content, error) {
			if n < 2 {
				return stale, nil
			}
			return fresh, nil
		}}
		nav := &recordingNavigator{}
		p := NewSubmissionPoller(getter, sched, time.Second, 15, testLogger())

		w := p.WaitForEdit(context.Background(), "a", "p", before, "/?post=@root/topic", nav)
		drain(t, sched, w)
		assert.Equal(t, []string{"/?post=@root/topic"}, nav.navigations)
		assert.Empty(t, nav.notices)
	})

	t.Run("exhaustion only notifies", func(t *testing.T) {
		sched := &manualScheduler{}
		getter := &scriptedGetter{script: func(int) (*models.Content, error) { return stale, nil }}
		nav := &recordingNavigator{}
		p := NewSubmissionPoller(getter, sched, time.Second, 15, testLogger())

		w := p.WaitForEdit(context.Background(), "a", "p", before, "/back", nav)
		drain(t, sched, w)
		assert.Equal(t, 15, getter.calls)
		assert.Equal(t, []string{NoticeEditSlow}, nav.notices)
		assert.Empty(t, nav.navigations)
	})
}

func TestSubmissionWatchStop(t *testing.T) {
	sched := &manualScheduler{}
	getter := &scriptedGetter{script: func(int) (*models.Content, error) { return &models.Content{}, nil }}
	nav := &recordingNavigator{}
	p := NewSubmissionPoller(getter, sched, time.Second, 15, testLogger())

	w := p.WaitForPost(context.Background(), "a", "p", nav)
	sched.FireNext()
	w.Stop()
	w.Stop()

	select {
	case <-w.Done():
	default:
		t.Fatal("stop should close Done")
	}
	assert.Zero(t, sched.Active())
	assert.Empty(t, nav.navigations)
	assert.Empty(t, nav.notices)
}

func TestSubmissionWatchCancelledContext(t *testing.T) {
	sched := &manualScheduler{}
	getter := &scriptedGetter{script: func(int) (*models.Content, error) { return &models.Content{}, nil }}
	nav := &recordingNavigator{}
	p := NewSubmissionPoller(getter, sched, time.Second, 15, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	w := p.WaitForPost(ctx, "a", "p", nav)
	cancel()
	require.True(t, sched.FireNext())

	<-w.Done()
	assert.Zero(t, getter.calls)
	assert.Empty(t, nav.navigations)
}

// slowGetter answers after delay unless the caller gives up first.
type slowGetter struct {
	delay time.Duration
}

func (g slowGetter) GetContent(ctx context.Context, author, permlink string) (*models.Content, error) {
	select {
	case <-time.After(g.delay):
		return &models.Content{}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// stubbornGetter ignores cancellation.
type stubbornGetter struct {
	delay time.Duration
}

func (g stubbornGetter) GetContent(ctx context.Context, author, permlink string) (*models.Content, error) {
	time.Sleep(g.delay)
	return &models.Content{}, nil
}

func TestWaitForPostSlowNodeStaysWithinBudget(t *testing.T) {
	const interval, attempts = 10 * time.Millisecond, 5
	budget := SubmitBudget(interval, attempts)

	for name, getter := range map[string]ContentGetter{
		"honors context":  slowGetter{delay: time.Second},
		"ignores context": stubbornGetter{delay: 50 * time.Millisecond},
	} {
		t.Run(name, func(t *testing.T) {
			nav := &recordingNavigator{}
			p := NewSubmissionPoller(getter, SystemScheduler{}, interval, attempts, testLogger())

			start := time.Now()
			w := p.WaitForPost(context.Background(), "author", "permlink", nav)
			select {
			case <-w.Done():
			case <-time.After(5 * time.Second):
				t.Fatal("watch did not finish")
			}
			elapsed := time.Since(start)

			assert.Less(t, elapsed, 3*budget)
			assert.Equal(t, []string{NoticeSlowPropagation}, nav.notices)
			assert.Equal(t, []string{"/"}, nav.navigations)
		})
	}
}

func TestSubmitBudget(t *testing.T) {
	assert.Equal(t, 32*time.Second, SubmitBudget(2*time.Second, 15))
	assert.Equal(t, SubmitBudget(DefaultSubmitInterval, DefaultSubmitAttempts), SubmitBudget(0, 0))
}
