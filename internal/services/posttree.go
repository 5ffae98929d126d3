package services

import (
	"context"
	"fmt"

	"blurtbb/internal/models"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ContentFetcher is the part of the chain client the tree builder needs.
type ContentFetcher interface {
	GetContent(ctx context.Context, author, permlink string) (*models.Content, error)
	GetContentReplies(ctx context.Context, author, permlink string) ([]*models.Content, error)
}

// TreeBuilder fetches a root post with its whole reply tree.
type TreeBuilder struct {
	fetcher     ContentFetcher
	maxInFlight int64
	logger      *logrus.Logger
}

func NewTreeBuilder(fetcher ContentFetcher, maxInFlight int, logger *logrus.Logger) *TreeBuilder {
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	return &TreeBuilder{fetcher: fetcher, maxInFlight: int64(maxInFlight), logger: logger}
}

// Build returns the root at author/permlink with Replies filled at every
// level. A missing root yields models.ErrNotFound; any failed fetch aborts
// the whole build.
func (b *TreeBuilder) Build(ctx context.Context, author, permlink string) (*models.Content, error) {
	sem := semaphore.NewWeighted(b.maxInFlight)

	var root *models.Content
	err := b.limited(ctx, sem, func() (err error) {
		root, err = b.fetcher.GetContent(ctx, author, permlink)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", models.ContentKey(author, permlink), err)
	}
	if !root.Exists() {
		return nil, fmt.Errorf("%w: %s", models.ErrNotFound, models.ContentKey(author, permlink))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return b.expand(gctx, g, sem, root)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	b.logger.WithFields(logrus.Fields{
		"post":     root.Key(),
		"children": root.ChildCount,
	}).Debug("Post tree built")
	return root, nil
}

// expand fetches the replies of node and schedules each reply's own expansion
// on the group, so sibling subtrees load concurrently.
func (b *TreeBuilder) expand(ctx context.Context, g *errgroup.Group, sem *semaphore.Weighted, node *models.Content) error {
	var replies []*models.Content
	err := b.limited(ctx, sem, func() (err error) {
		replies, err = b.fetcher.GetContentReplies(ctx, node.Author, node.Permlink)
		return err
	})
	if err != nil {
		return fmt.Errorf("fetch replies of %s: %w", node.Key(), err)
	}

	node.Replies = make([]*models.Content, 0, len(replies))
	for _, reply := range replies {
		if !reply.Exists() {
			continue
		}
		node.Replies = append(node.Replies, reply)
		g.Go(func() error {
			return b.expand(ctx, g, sem, reply)
		})
	}
	return nil
}

// limited holds one semaphore slot for the duration of fetch only; goroutines
// waiting on children never hold a slot.
func (b *TreeBuilder) limited(ctx context.Context, sem *semaphore.Weighted, fetch func() error) error {
	if err := sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer sem.Release(1)
	return fetch()
}

// DirectReplies fetches only the first level of replies.
func (b *TreeBuilder) DirectReplies(ctx context.Context, author, permlink string) ([]*models.Content, error) {
	replies, err := b.fetcher.GetContentReplies(ctx, author, permlink)
	if err != nil {
		return nil, fmt.Errorf("fetch replies of %s: %w", models.ContentKey(author, permlink), err)
	}
	return replies, nil
}
