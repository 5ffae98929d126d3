package services

import (
	"context"
	"sync"
	"time"

	"blurtbb/internal/utils"

	"github.com/sirupsen/logrus"
)

const (
	unreadQueueSize = 1000
	unreadBatchSize = 50
	unreadCacheTTL  = 2 * time.Minute
)

// UnreadCounter refreshes unread notification counts in the background so
// page renders never wait on account history.
type UnreadCounter struct {
	notifications *NotificationService
	src           HistorySource
	cache         *utils.TTLCache
	logger        *logrus.Logger

	queue   chan string
	pending map[string]bool
	mu      sync.Mutex
}

func NewUnreadCounter(notifications *NotificationService, src HistorySource, cache *utils.TTLCache, logger *logrus.Logger) *UnreadCounter {
	return &UnreadCounter{
		notifications: notifications,
		src:           src,
		cache:         cache,
		logger:        logger,
		queue:         make(chan string, unreadQueueSize),
		pending:       make(map[string]bool),
	}
}

func unreadKey(account string) string {
	return "unread:" + account
}

// Count returns the cached count, scheduling a refresh on a miss.
func (u *UnreadCounter) Count(account string) (int, bool) {
	if v, ok := u.cache.Get(unreadKey(account)).(int); ok {
		return v, true
	}
	u.Schedule(account)
	return 0, false
}

// Set stores a fresh count, e.g. right after the user read everything.
func (u *UnreadCounter) Set(account string, count int) {
	u.cache.Set(unreadKey(account), count, unreadCacheTTL)
}

// Schedule queues a refresh. Accounts already queued are skipped.
func (u *UnreadCounter) Schedule(account string) {
	if account == "" {
		return
	}
	u.mu.Lock()
	if u.pending[account] {
		u.mu.Unlock()
		return
	}
	u.pending[account] = true
	u.mu.Unlock()

	select {
	case u.queue <- account:
	default:
		u.mu.Lock()
		delete(u.pending, account)
		u.mu.Unlock()
		u.logger.WithField("account", account).Warn("Unread queue full, skipping refresh")
	}
}

// Run processes the queue in batches until ctx is done.
func (u *UnreadCounter) Run(ctx context.Context) {
	batch := make([]string, 0, unreadBatchSize)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case account := <-u.queue:
			batch = append(batch, account)
			if len(batch) >= unreadBatchSize {
				u.processBatch(ctx, batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				u.processBatch(ctx, batch)
				batch = batch[:0]
			}
		}
	}
}

func (u *UnreadCounter) processBatch(ctx context.Context, accounts []string) {
	for _, account := range accounts {
		count, err := u.notifications.UnreadCount(ctx, u.src, account)
		if err != nil {
			u.logger.WithError(err).WithField("account", account).Warn("Unread count refresh failed")
		} else {
			u.Set(account, count)
		}

		u.mu.Lock()
		delete(u.pending, account)
		u.mu.Unlock()
	}
}
