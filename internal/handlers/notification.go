package handlers

import (
	"net/http"
	"strconv"

	"blurtbb/internal/session"

	"github.com/gin-gonic/gin"
)

type NotificationHandler struct {
	*Deps
}

func NewNotificationHandler(d *Deps) *NotificationHandler {
	return &NotificationHandler{Deps: d}
}

func (h *NotificationHandler) List(c *gin.Context) {
	s := session.From(c)
	if !s.LoggedIn() {
		h.redirectWithFlash(c, "/login", msgLoginRequired)
		return
	}
	account := s.Identity.Username

	notifications, err := h.Notifications.List(c.Request.Context(), h.node(s), account)
	if err != nil {
		h.renderFetchError(c, "notifications "+account, err)
		return
	}

	var newest int64
	unread := 0
	for _, n := range notifications {
		newest = max(newest, n.Index)
		if n.Unread {
			unread++
		}
	}
	if h.Unread != nil {
		h.Unread.Set(account, unread)
	}

	h.Render(c, http.StatusOK, "notifications.html", gin.H{
		"Title":         "Notifications",
		"Notifications": notifications,
		"Newest":        newest,
		"Unread":        unread,
	})
}

// ReadAll marks everything up to the posted history index as read.
func (h *NotificationHandler) ReadAll(c *gin.Context) {
	account := session.From(c).Identity.Username
	upTo, err := strconv.ParseInt(c.PostForm("up_to"), 10, 64)
	if err != nil {
		c.String(http.StatusBadRequest, "bad index")
		return
	}
	if err := h.Notifications.MarkRead(account, upTo); err != nil {
		h.Logger.WithError(err).WithField("account", account).Error("Mark read failed")
		h.RenderError(c, http.StatusInternalServerError, msgSomethingBad)
		return
	}
	if h.Unread != nil {
		h.Unread.Set(account, 0)
	}
	c.Redirect(http.StatusFound, "/?notifications")
}
