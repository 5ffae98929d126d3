package services

import (
	"context"
	"sync"
	"time"

	"blurtbb/internal/models"

	"github.com/sirupsen/logrus"
)

const (
	NoticeSlowPropagation = "Your post was submitted but is taking a while to show up. It should appear shortly."
	NoticeEditSlow        = "Your edit was submitted but it is taking a long time to show up."

	DefaultSubmitInterval = 2 * time.Second
	DefaultSubmitAttempts = 15
)

// ContentGetter fetches a single content node.
type ContentGetter interface {
	GetContent(ctx context.Context, author, permlink string) (*models.Content, error)
}

// Navigator receives the outcome of a submission wait.
type Navigator interface {
	Navigate(url string)
	Notify(message string)
}

// SubmitBudget is the longest a wait may run. Every attempt is cut off
// after one interval, and the wait gives up early rather than overrun it.
func SubmitBudget(interval time.Duration, maxAttempts int) time.Duration {
	if interval <= 0 {
		interval = DefaultSubmitInterval
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultSubmitAttempts
	}
	return interval * time.Duration(maxAttempts+1)
}

// PostURL is the page of a post.
func PostURL(author, permlink string) string {
	return "/?post=" + models.ContentKey(author, permlink)
}

// SubmissionPoller waits for a broadcast write to become readable.
type SubmissionPoller struct {
	getter      ContentGetter
	sched       Scheduler
	interval    time.Duration
	maxAttempts int
	logger      *logrus.Logger
}

func NewSubmissionPoller(getter ContentGetter, sched Scheduler, interval time.Duration, maxAttempts int, logger *logrus.Logger) *SubmissionPoller {
	if sched == nil {
		sched = SystemScheduler{}
	}
	if interval <= 0 {
		interval = DefaultSubmitInterval
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultSubmitAttempts
	}
	return &SubmissionPoller{
		getter:      getter,
		sched:       sched,
		interval:    interval,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// SubmissionWatch is one running wait.
type SubmissionWatch struct {
	done     chan struct{}
	once     sync.Once
	mu       sync.Mutex
	timer    Timer
	cancel   context.CancelFunc
	attempts int
}

// Done is closed once the wait succeeded, gave up, or was stopped.
func (w *SubmissionWatch) Done() <-chan struct{} {
	return w.done
}

// Attempts counts the fetches made so far.
func (w *SubmissionWatch) Attempts() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.attempts
}

// Stop abandons the wait without navigating.
func (w *SubmissionWatch) Stop() {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	w.finish(nil)
}

func (w *SubmissionWatch) finish(outcome func()) {
	w.once.Do(func() {
		w.cancel()
		if outcome != nil {
			outcome()
		}
		close(w.done)
	})
}

// WaitForPost polls until author/permlink exists, then opens it. When the
// attempts run out the user is told the post is slow and sent home.
func (p *SubmissionPoller) WaitForPost(ctx context.Context, author, permlink string, nav Navigator) *SubmissionWatch {
	return p.watch(ctx, author, permlink,
		func(c *models.Content) bool { return c.Exists() },
		func() { nav.Navigate(PostURL(author, permlink)) },
		func() {
			nav.Notify(NoticeSlowPropagation)
			nav.Navigate("/")
		},
	)
}

// WaitForEdit polls until the last update time differs from before, then
// goes back to backURL. When the attempts run out only a notice is shown.
func (p *SubmissionPoller) WaitForEdit(ctx context.Context, author, permlink string, before time.Time, backURL string, nav Navigator) *SubmissionWatch {
	return p.watch(ctx, author, permlink,
		func(c *models.Content) bool { return c.Exists() && !c.LastUpdate.Equal(before) },
		func() { nav.Navigate(backURL) },
		func() { nav.Notify(NoticeEditSlow) },
	)
}

func (p *SubmissionPoller) watch(ctx context.Context, author, permlink string, ready func(*models.Content) bool, onSuccess, onExhausted func()) *SubmissionWatch {
	ctx, cancel := context.WithCancel(ctx)
	w := &SubmissionWatch{done: make(chan struct{}), cancel: cancel}
	log := p.logger.WithField("post", models.ContentKey(author, permlink))
	deadline := time.Now().Add(SubmitBudget(p.interval, p.maxAttempts))

	var attempt func()
	attempt = func() {
		if ctx.Err() != nil {
			w.finish(nil)
			return
		}
		w.mu.Lock()
		w.attempts++
		n := w.attempts
		w.mu.Unlock()

		fetchCtx, cancelFetch := context.WithTimeout(ctx, p.interval)
		content, err := p.getter.GetContent(fetchCtx, author, permlink)
		cancelFetch()
		switch {
		case err != nil:
			log.WithError(err).WithField("attempt", n).Debug("Submission check failed")
		case ready(content):
			log.WithField("attempt", n).Info("Submission visible")
			w.finish(onSuccess)
			return
		}

		if n >= p.maxAttempts || time.Now().Add(p.interval).After(deadline) {
			log.WithField("attempts", n).Warn("Submission still not visible, giving up")
			w.finish(onExhausted)
			return
		}
		w.mu.Lock()
		w.timer = p.sched.AfterFunc(p.interval, attempt)
		w.mu.Unlock()
	}

	w.mu.Lock()
	w.timer = p.sched.AfterFunc(p.interval, attempt)
	w.mu.Unlock()
	return w
}
