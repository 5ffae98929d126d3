package services

import (
	"context"
	"errors"
	"html/template"
	"sync"
	"time"

	"blurtbb/internal/models"

	"github.com/sirupsen/logrus"
)

// Fragment is a vote widget of a rendered page.
type Fragment interface {
	Replace(html template.HTML)
	// BindPopover re-attaches the voter popover; a replaced fragment loses it.
	BindPopover()
}

// Document exposes the vote fragments a rendered page contains. The bool is
// false when the page does not show that node.
type Document interface {
	RootVoteFragment() (Fragment, bool)
	VoteFragment(author, permlink string) (Fragment, bool)
}

// TreeSource rebuilds a post tree.
type TreeSource interface {
	Build(ctx context.Context, author, permlink string) (*models.Content, error)
}

// VoteRenderer produces the HTML of one vote fragment.
type VoteRenderer func(view VoteView) (template.HTML, error)

// PollTarget is the page a VotePoller keeps fresh. Snapshot is the tree the
// page was rendered from; the first tick reuses it instead of fetching.
type PollTarget struct {
	Author   string
	Permlink string
	Viewer   string
	Document Document
	Snapshot *models.Content
}

// VotePoller periodically refreshes the vote fragments of one page.
type VotePoller struct {
	source   TreeSource
	render   VoteRenderer
	sched    Scheduler
	interval time.Duration
	logger   *logrus.Logger

	mu              sync.Mutex
	generation      uint64
	running         bool
	target          PollTarget
	snapshotPending bool
	timer           Timer
	cancel          context.CancelFunc
}

func NewVotePoller(source TreeSource, render VoteRenderer, sched Scheduler, interval time.Duration, logger *logrus.Logger) *VotePoller {
	if sched == nil {
		sched = SystemScheduler{}
	}
	return &VotePoller{
		source:   source,
		render:   render,
		sched:    sched,
		interval: interval,
		logger:   logger,
	}
}

// Start cancels any running poll and begins polling t.
func (p *VotePoller) Start(t PollTarget) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
	ctx, cancel := context.WithCancel(context.Background())
	p.running = true
	p.target = t
	p.snapshotPending = t.Snapshot != nil
	p.cancel = cancel
	p.armLocked(ctx, p.generation)
}

// Stop cancels the scheduled ticks. Once it returns no tick writes to the
// document any more. Calling it when idle is a no-op.
func (p *VotePoller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *VotePoller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *VotePoller) stopLocked() {
	p.generation++
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.running = false
	p.target = PollTarget{}
	p.snapshotPending = false
}

func (p *VotePoller) armLocked(ctx context.Context, gen uint64) {
	p.timer = p.sched.AfterFunc(p.interval, func() {
		p.tick(ctx, gen)
	})
}

func (p *VotePoller) tick(ctx context.Context, gen uint64) {
	p.mu.Lock()
	if gen != p.generation {
		p.mu.Unlock()
		return
	}
	target := p.target
	var tree *models.Content
	if p.snapshotPending {
		tree = target.Snapshot
		p.snapshotPending = false
	}
	p.mu.Unlock()

	var err error
	if tree == nil {
		tree, err = p.source.Build(ctx, target.Author, target.Permlink)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.generation {
		return
	}
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			p.logger.WithError(err).WithField("post", models.ContentKey(target.Author, target.Permlink)).
				Warn("Vote refresh failed")
		}
	} else {
		written := p.apply(target, tree)
		p.logger.WithFields(logrus.Fields{
			"post":      tree.Key(),
			"fragments": written,
		}).Debug("Vote fragments refreshed")
	}
	p.armLocked(ctx, gen)
}

// apply patches every fragment of the document that shows a node of tree.
// Block-list filtering is not applied: hidden nodes have no fragment.
func (p *VotePoller) apply(target PollTarget, tree *models.Content) int {
	if target.Document == nil {
		return 0
	}
	written := 0
	if frag, ok := target.Document.RootVoteFragment(); ok {
		if p.patch(frag, NewVoteView(tree, target.Viewer, true)) {
			written++
		}
	}
	for _, reply := range Flatten(tree, nil).Replies {
		frag, ok := target.Document.VoteFragment(reply.Author, reply.Permlink)
		if !ok {
			continue
		}
		if p.patch(frag, NewVoteView(reply, target.Viewer, false)) {
			written++
		}
	}
	return written
}

func (p *VotePoller) patch(frag Fragment, view VoteView) bool {
	html, err := p.render(view)
	if err != nil {
		p.logger.WithError(err).WithField("post", models.ContentKey(view.Author, view.Permlink)).
			Error("Render vote fragment")
		return false
	}
	frag.Replace(html)
	frag.BindPopover()
	return true
}
