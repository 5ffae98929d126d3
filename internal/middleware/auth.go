package middleware

import (
	"net/http"

	"blurtbb/internal/models"
	"blurtbb/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const UnreadCountKey = "unread_count"

// UnreadCounts is the cached unread notification count lookup.
type UnreadCounts interface {
	Count(account string) (int, bool)
}

// LiveHub is the part of the live hub page navigation touches.
type LiveHub interface {
	Leave(sessionID string)
}

// LoadSession reads the cookie tiers and attaches the session context
func LoadSession(defaults models.Settings, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := session.Load(c, defaults)
		if err != nil {
			logger.WithError(err).WithField("path", c.Request.URL.Path).Warn("Session cookie not saved")
		}
		session.Attach(c, s)
		c.Next()
	}
}

// LoadUnreadCount sets the cached unread count of the logged-in account.
// A cache miss schedules a refresh and shows nothing for now.
func LoadUnreadCount(counts UnreadCounts) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s := session.From(c); s.LoggedIn() {
			if n, ok := counts.Count(s.Identity.Username); ok {
				c.Set(UnreadCountKey, n)
			}
		}
		c.Next()
	}
}

// AuthRequired ensures a user is logged in
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !session.From(c).LoggedIn() {
			c.Redirect(http.StatusFound, "/login")
			c.Abort()
			return
		}
		c.Next()
	}
}

// AdminRequired lets only configured admin accounts through.
func AdminRequired(isAdmin func(account string) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		s := session.From(c)
		if !s.LoggedIn() || !isAdmin(s.Identity.Username) {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		c.Next()
	}
}

// LeaveLivePage stops the session's vote poller before the next page is
// handled, so nothing keeps patching a page the browser already left.
func LeaveLivePage(hub LiveHub) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s := session.From(c); s != nil {
			hub.Leave(s.SessionID)
		}
		c.Next()
	}
}
