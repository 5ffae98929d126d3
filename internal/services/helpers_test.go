package services

import (
	"context"
	"fmt"
	"html/template"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"blurtbb/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.BlockedAuthor{}, &models.BlockedPost{}, &models.NotificationMark{}))
	return conn
}

// manualScheduler fires timers only when the test asks it to.
type manualScheduler struct {
	mu     sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	s       *manualScheduler
	f       func()
	d       time.Duration
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTimer{s: s, f: f, d: d}
	s.timers = append(s.timers, t)
	return t
}

// Active counts timers that are armed and not yet fired.
func (s *manualScheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// FireNext runs the oldest armed timer and reports whether there was one.
func (s *manualScheduler) FireNext() bool {
	s.mu.Lock()
	var next *manualTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			next = t
			break
		}
	}
	if next != nil {
		next.fired = true
	}
	s.mu.Unlock()
	if next == nil {
		return false
	}
	next.f()
	return true
}

// FireAll runs every timer armed right now. Timers armed by them wait.
func (s *manualScheduler) FireAll() int {
	s.mu.Lock()
	var due []*manualTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			t.fired = true
			due = append(due, t)
		}
	}
	s.mu.Unlock()
	for _, t := range due {
		t.f()
	}
	return len(due)
}

// post builds a content node created at minute offset min.
func post(author, permlink string, min int, replies ...*models.Content) *models.Content {
	c := &models.Content{
		Author:   author,
		Permlink: permlink,
		Created:  models.NewChainTime(time.Date(2024, 1, 1, 0, min, 0, 0, time.UTC)),
		Replies:  replies,
	}
	for _, r := range replies {
		r.ParentAuthor = author
		r.ParentPermlink = permlink
	}
	return c
}

func clone(c *models.Content) *models.Content {
	cp := *c
	cp.Replies = nil
	return &cp
}

// treeFetcher serves a prepared tree the way a node would.
type treeFetcher struct {
	nodes   map[string]*models.Content
	fail    map[string]error
	delay   time.Duration
	calls   atomic.Int32
	current atomic.Int32
	peak    atomic.Int32
}

func newTreeFetcher(root *models.Content) *treeFetcher {
	f := &treeFetcher{nodes: map[string]*models.Content{}, fail: map[string]error{}}
	var add func(*models.Content)
	add = func(c *models.Content) {
		f.nodes[c.Key()] = c
		for _, r := range c.Replies {
			add(r)
		}
	}
	if root != nil {
		add(root)
	}
	return f
}

func (f *treeFetcher) enter() func() {
	f.calls.Add(1)
	n := f.current.Add(1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return func() { f.current.Add(-1) }
}

func (f *treeFetcher) GetContent(ctx context.Context, author, permlink string) (*models.Content, error) {
	defer f.enter()()
	key := models.ContentKey(author, permlink)
	if err := f.fail[key]; err != nil {
		return nil, err
	}
	if c, ok := f.nodes[key]; ok {
		return clone(c), nil
	}
	return &models.Content{}, nil
}

func (f *treeFetcher) GetContentReplies(ctx context.Context, author, permlink string) ([]*models.Content, error) {
	defer f.enter()()
	key := models.ContentKey(author, permlink)
	if err := f.fail["replies:"+key]; err != nil {
		return nil, err
	}
	parent, ok := f.nodes[key]
	if !ok {
		return nil, nil
	}
	out := make([]*models.Content, 0, len(parent.Replies))
	for _, r := range parent.Replies {
		out = append(out, clone(r))
	}
	return out, nil
}

// fakeFragment records what the poller writes into it.
type fakeFragment struct {
	mu       sync.Mutex
	html     []template.HTML
	bindings int
}

func (f *fakeFragment) Replace(html template.HTML) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.html = append(f.html, html)
}

func (f *fakeFragment) BindPopover() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bindings++
}

func (f *fakeFragment) writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.html)
}

func (f *fakeFragment) last() template.HTML {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.html) == 0 {
		return ""
	}
	return f.html[len(f.html)-1]
}

type fakeDocument struct {
	root    *fakeFragment
	replies map[string]*fakeFragment
}

func newFakeDocument(replyKeys ...string) *fakeDocument {
	d := &fakeDocument{root: &fakeFragment{}, replies: map[string]*fakeFragment{}}
	for _, k := range replyKeys {
		d.replies[k] = &fakeFragment{}
	}
	return d
}

func (d *fakeDocument) RootVoteFragment() (Fragment, bool) {
	return d.root, true
}

func (d *fakeDocument) VoteFragment(author, permlink string) (Fragment, bool) {
	f, ok := d.replies[models.ContentKey(author, permlink)]
	if !ok {
		return nil, false
	}
	return f, true
}

func (d *fakeDocument) totalWrites() int {
	n := d.root.writes()
	for _, f := range d.replies {
		n += f.writes()
	}
	return n
}

// textRenderer renders a vote view as a short string.
func textRenderer(v VoteView) (template.HTML, error) {
	return template.HTML(fmt.Sprintf("%s voted=%t count=%d label=%s", models.ContentKey(v.Author, v.Permlink), v.Voted, v.Count, v.PayoutLabel)), nil
}
