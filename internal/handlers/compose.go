package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"blurtbb/internal/models"
	"blurtbb/internal/services"
	"blurtbb/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	msgDeleteSubmitted = "Delete submitted. It disappears once the chain confirms it."
	msgBroadcastFailed = "The chain rejected the transaction: "
	msgReplyUnlisted   = "Your reply is saved. The thread may take a moment to list it."
)

type ComposeHandler struct {
	*Deps
}

func NewComposeHandler(d *Deps) *ComposeHandler {
	return &ComposeHandler{Deps: d}
}

// pageNavigator records where a submission wait wants the browser to go.
type pageNavigator struct {
	mu      sync.Mutex
	url     string
	notices []string
}

func (n *pageNavigator) Navigate(target string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.url = target
}

func (n *pageNavigator) Notify(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, message)
}

func (n *pageNavigator) result() (string, []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.url, append([]string(nil), n.notices...)
}

// await blocks until the watch ends or the client goes away. It returns
// false when the request was abandoned.
func await(c *gin.Context, w *services.SubmissionWatch) bool {
	select {
	case <-w.Done():
		return true
	case <-c.Request.Context().Done():
		w.Stop()
		return false
	}
}

// finish redirects to where nav ended up, or fallback, with its notices.
func (d *Deps) finish(c *gin.Context, nav *pageNavigator, fallback string) {
	target, notices := nav.result()
	if target == "" {
		target = fallback
	}
	d.redirectWithFlash(c, target, notices...)
}

// credentials returns the signing identity or sends the browser to log in.
func (h *ComposeHandler) credentials(c *gin.Context) (models.Credentials, bool) {
	creds, err := session.From(c).Credentials()
	if err != nil {
		h.redirectWithFlash(c, "/login", msgLoginRequired)
		return models.Credentials{}, false
	}
	return creds, true
}

func validationError(err error) bool {
	for _, target := range []error{
		services.ErrEmptyTitle, services.ErrLongTitle, services.ErrEmptyBody,
		services.ErrNoCategory, services.ErrNotAuthor, services.ErrNotLoggedIn,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (h *ComposeHandler) ShowNewTopic(c *gin.Context, tag string) {
	s := session.From(c)
	if !s.LoggedIn() {
		h.redirectWithFlash(c, "/login", msgLoginRequired)
		return
	}
	cat, ok := h.Config.Forum.Category(tag)
	if !ok {
		h.RenderError(c, http.StatusNotFound, msgNotFound)
		return
	}
	h.Render(c, http.StatusOK, "compose.html", gin.H{
		"Title":    "New topic in " + cat.Name,
		"Mode":     "topic",
		"Category": cat,
	})
}

func (h *ComposeHandler) ShowEdit(c *gin.Context, key string) {
	s := session.From(c)
	if !s.LoggedIn() {
		h.redirectWithFlash(c, "/login", msgLoginRequired)
		return
	}
	author, permlink, err := models.ParseContentKey(key)
	if err != nil {
		h.RenderError(c, http.StatusNotFound, msgNotFound)
		return
	}
	content, err := h.node(s).GetContent(c.Request.Context(), author, permlink)
	if err != nil {
		h.renderFetchError(c, key, err)
		return
	}
	if !content.Exists() {
		h.RenderError(c, http.StatusNotFound, msgNotFound)
		return
	}
	if content.Author != s.Identity.Username {
		h.RenderError(c, http.StatusForbidden, msg(services.ErrNotAuthor))
		return
	}
	h.Render(c, http.StatusOK, "compose.html", gin.H{
		"Title":   "Edit",
		"Mode":    "edit",
		"Content": content,
		"Key":     content.Key(),
		"Back":    c.Query("back"),
	})
}

// CreateTopic broadcasts a new topic and waits until the node serves it.
func (h *ComposeHandler) CreateTopic(c *gin.Context) {
	creds, ok := h.credentials(c)
	if !ok {
		return
	}
	s := session.From(c)
	cat, ok := h.Config.Forum.Category(c.PostForm("category"))
	if !ok {
		h.RenderError(c, http.StatusBadRequest, msg(services.ErrNoCategory))
		return
	}

	draft := services.Draft{
		Category: cat.Tag,
		Title:    c.PostForm("title"),
		Body:     c.PostForm("body"),
		Tags:     strings.Fields(strings.ReplaceAll(c.PostForm("tags"), ",", " ")),
	}
	node := h.node(s)
	sub, err := h.Publisher.NewTopic(c.Request.Context(), node, creds, draft)
	if err != nil {
		code := http.StatusBadGateway
		text := msgBroadcastFailed + err.Error()
		if validationError(err) {
			code, text = http.StatusBadRequest, msg(err)
		}
		h.Render(c, code, "compose.html", gin.H{
			"Title":    "New topic in " + cat.Name,
			"Mode":     "topic",
			"Category": cat,
			"Draft":    draft,
			"Error":    text,
		})
		return
	}

	nav := &pageNavigator{}
	if !await(c, h.submissions(node).WaitForPost(c.Request.Context(), sub.Author, sub.Permlink, nav)) {
		return
	}
	h.finish(c, nav, "/")
}

// CreateReply answers parent and returns to the thread at the new reply.
func (h *ComposeHandler) CreateReply(c *gin.Context) {
	creds, ok := h.credentials(c)
	if !ok {
		return
	}
	s := session.From(c)
	parentAuthor, parentPermlink, err := models.ParseContentKey(c.PostForm("parent"))
	if err != nil {
		h.RenderError(c, http.StatusBadRequest, msg(err))
		return
	}
	rootKey := c.PostForm("root")
	if rootKey == "" {
		rootKey = c.PostForm("parent")
	}
	rootAuthor, rootPermlink, err := models.ParseContentKey(rootKey)
	if err != nil {
		h.RenderError(c, http.StatusBadRequest, msg(err))
		return
	}
	thread := services.PostURL(rootAuthor, rootPermlink)

	node := h.node(s)
	parent, err := node.GetContent(c.Request.Context(), parentAuthor, parentPermlink)
	if err != nil {
		h.renderFetchError(c, c.PostForm("parent"), err)
		return
	}
	if !parent.Exists() {
		h.RenderError(c, http.StatusNotFound, msgNotFound)
		return
	}

	sub, err := h.Publisher.Reply(c.Request.Context(), node, creds, parent, c.PostForm("body"))
	if err != nil {
		if validationError(err) {
			h.redirectWithFlash(c, thread, msg(err))
			return
		}
		h.Logger.WithError(err).WithField("parent", parent.Key()).Warn("Reply broadcast failed")
		h.redirectWithFlash(c, thread, msgBroadcastFailed+err.Error())
		return
	}

	nav := &pageNavigator{}
	if !await(c, h.submissions(node).WaitForPost(c.Request.Context(), sub.Author, sub.Permlink, nav)) {
		return
	}
	// the reply's own page is its subtree; show it inside the thread instead
	if target, _ := nav.result(); target == services.PostURL(sub.Author, sub.Permlink) {
		nav.Navigate(thread + "#" + replyAnchor(sub.Author, sub.Permlink))
		if !h.listedUnder(c.Request.Context(), node, parent, sub) {
			nav.Notify(msgReplyUnlisted)
		}
	}
	h.finish(c, nav, thread)
}

// listedUnder reports whether the node already lists sub among the direct
// replies of parent. A reply can be readable before the thread shows it.
func (h *ComposeHandler) listedUnder(ctx context.Context, node Node, parent *models.Content, sub *services.Submission) bool {
	replies, err := h.treeBuilder(node).DirectReplies(ctx, parent.Author, parent.Permlink)
	if err != nil {
		h.Logger.WithError(err).WithField("parent", parent.Key()).Debug("Reply listing check failed")
		return false
	}
	for _, r := range replies {
		if r.Author == sub.Author && r.Permlink == sub.Permlink {
			return true
		}
	}
	return false
}

// Update edits a post or reply and waits until the node shows the change.
func (h *ComposeHandler) Update(c *gin.Context) {
	creds, ok := h.credentials(c)
	if !ok {
		return
	}
	s := session.From(c)
	key := c.PostForm("key")
	author, permlink, err := models.ParseContentKey(key)
	if err != nil {
		h.RenderError(c, http.StatusBadRequest, msg(err))
		return
	}

	node := h.node(s)
	existing, err := node.GetContent(c.Request.Context(), author, permlink)
	if err != nil {
		h.renderFetchError(c, key, err)
		return
	}
	if !existing.Exists() {
		h.RenderError(c, http.StatusNotFound, msgNotFound)
		return
	}

	back := services.PostURL(author, permlink)
	if b := c.PostForm("back"); b != "" {
		if ba, bp, err := models.ParseContentKey(b); err == nil {
			back = services.PostURL(ba, bp)
		}
	}

	title, body := c.PostForm("title"), c.PostForm("body")
	sub, err := h.Publisher.Edit(c.Request.Context(), node, creds, existing, title, body)
	if err != nil {
		code := http.StatusBadGateway
		text := msgBroadcastFailed + err.Error()
		if validationError(err) {
			code, text = http.StatusBadRequest, msg(err)
		}
		h.Render(c, code, "compose.html", gin.H{
			"Title":   "Edit",
			"Mode":    "edit",
			"Content": existing,
			"Key":     existing.Key(),
			"Back":    c.PostForm("back"),
			"Draft":   services.Draft{Title: title, Body: body},
			"Error":   text,
		})
		return
	}

	nav := &pageNavigator{}
	w := h.submissions(node).WaitForEdit(c.Request.Context(), sub.Author, sub.Permlink, existing.LastUpdate.Time, back, nav)
	if !await(c, w) {
		return
	}
	q := url.Values{"edit": {key}}
	if b := c.PostForm("back"); b != "" {
		q.Set("back", b)
	}
	h.finish(c, nav, "/?"+q.Encode())
}

// Delete removes a post or reply that has no replies and no votes.
func (h *ComposeHandler) Delete(c *gin.Context) {
	creds, ok := h.credentials(c)
	if !ok {
		return
	}
	s := session.From(c)
	key := c.PostForm("key")
	author, permlink, err := models.ParseContentKey(key)
	if err != nil {
		h.RenderError(c, http.StatusBadRequest, msg(err))
		return
	}
	back := backURL(c, "/")

	if _, err := h.Publisher.Delete(c.Request.Context(), h.node(s), creds, author, permlink); err != nil {
		if validationError(err) {
			h.redirectWithFlash(c, back, msg(err))
			return
		}
		h.Logger.WithError(err).WithFields(logrus.Fields{"post": key}).Warn("Delete broadcast failed")
		h.redirectWithFlash(c, back, msgBroadcastFailed+err.Error())
		return
	}
	h.redirectWithFlash(c, back, msgDeleteSubmitted)
}
