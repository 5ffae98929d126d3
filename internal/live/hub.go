package live

import (
	"context"
	"sync"
	"time"

	"blurtbb/internal/services"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
)

// PollerFactory creates a vote poller reading from src.
type PollerFactory func(src services.TreeSource) *services.VotePoller

type watcher struct {
	doc    *Document
	poller *services.VotePoller
}

// Hub keeps the live documents and runs one vote poller per browser session.
type Hub struct {
	docs      *lru.Cache[string, *Document]
	newPoller PollerFactory
	idle      time.Duration
	logger    *logrus.Logger

	mu       sync.Mutex
	sessions map[string]*watcher
}

// NewHub keeps at most size documents. A session whose page has not pulled
// changes for idle is dropped.
func NewHub(size int, idle time.Duration, newPoller PollerFactory, logger *logrus.Logger) (*Hub, error) {
	docs, err := lru.NewWithEvict(size, func(_ string, doc *Document) {
		doc.Detach()
	})
	if err != nil {
		return nil, err
	}
	return &Hub{
		docs:      docs,
		newPoller: newPoller,
		idle:      idle,
		logger:    logger,
		sessions:  make(map[string]*watcher),
	}, nil
}

// Open makes doc the session's current page and starts refreshing it.
// The session's previous page is left first.
func (h *Hub) Open(sessionID string, doc *Document, src services.TreeSource, target services.PollTarget) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.leaveLocked(sessionID)
	h.docs.Add(doc.ID, doc)

	target.Document = doc
	p := h.newPoller(src)
	p.Start(target)
	h.sessions[sessionID] = &watcher{doc: doc, poller: p}

	h.logger.WithFields(logrus.Fields{
		"session": sessionID,
		"doc":     doc.ID,
		"post":    doc.PostKey,
	}).Debug("Live page opened")
}

// Leave stops the session's poller, then detaches its page.
func (h *Hub) Leave(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(sessionID)
}

func (h *Hub) leaveLocked(sessionID string) {
	w, ok := h.sessions[sessionID]
	if !ok {
		return
	}
	// stop first so no tick writes into the page being torn down
	w.poller.Stop()
	w.doc.Detach()
	h.docs.Remove(w.doc.ID)
	delete(h.sessions, sessionID)
}

// Document finds a live document by id.
func (h *Hub) Document(id string) (*Document, bool) {
	return h.docs.Get(id)
}

// Watching reports whether the session has a live page.
func (h *Hub) Watching(sessionID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.sessions[sessionID]
	return ok
}

// Sweep drops sessions whose page went quiet before now-idle.
func (h *Hub) Sweep(now time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	dropped := 0
	for id, w := range h.sessions {
		if now.Sub(w.doc.idleSince()) > h.idle || w.doc.Detached() {
			h.leaveLocked(id)
			dropped++
		}
	}
	if dropped > 0 {
		h.logger.WithField("sessions", dropped).Debug("Idle live pages dropped")
	}
	return dropped
}

// Run sweeps idle sessions every interval until ctx is done, then stops
// every poller.
func (h *Hub) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.Close()
			return
		case now := <-ticker.C:
			h.Sweep(now)
		}
	}
}

// Close leaves every session.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id := range h.sessions {
		h.leaveLocked(id)
	}
}
