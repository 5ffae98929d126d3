package handlers

import (
	"github.com/gin-gonic/gin"
)

// Dispatcher picks the view for "/" from the query string. The first
// parameter present wins.
type Dispatcher struct {
	forum   *ForumHandler
	compose *ComposeHandler
	profile *ProfileHandler
	notes   *NotificationHandler
}

func NewDispatcher(forum *ForumHandler, compose *ComposeHandler, profile *ProfileHandler, notes *NotificationHandler) *Dispatcher {
	return &Dispatcher{forum: forum, compose: compose, profile: profile, notes: notes}
}

func (h *Dispatcher) Dispatch(c *gin.Context) {
	q := c.Request.URL.Query()
	switch {
	case q.Has("post"):
		h.forum.Post(c, q.Get("post"))
	case q.Has("edit"):
		h.compose.ShowEdit(c, q.Get("edit"))
	case q.Has("new_topic"):
		h.compose.ShowNewTopic(c, q.Get("new_topic"))
	case q.Has("category"):
		h.forum.Category(c, q.Get("category"))
	case q.Has("profile"):
		h.profile.Show(c, q.Get("profile"))
	case q.Has("notifications"):
		h.notes.List(c)
	default:
		h.forum.Main(c)
	}
}
