package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"blurtbb/internal/chain"
	"blurtbb/internal/live"
	"blurtbb/internal/middleware"
	"blurtbb/internal/models"
	"blurtbb/internal/services"
	"blurtbb/internal/session"
	"blurtbb/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	msgNotFound      = "not found"
	msgSomethingBad  = "something went wrong"
	msgLoginRequired = "Please log in with your posting key first."
)

// Node is everything the pages read from and write to one RPC endpoint.
type Node interface {
	services.ContentFetcher
	services.Broadcaster
	services.HistorySource
	GetAccount(ctx context.Context, name string) (*models.Account, error)
	GetDiscussionsByCreated(ctx context.Context, q chain.Query) ([]*models.Content, error)
	GetDiscussionsByBlog(ctx context.Context, q chain.Query) ([]*models.Content, error)
}

// Nodes picks the endpoint a session talks to.
type Nodes interface {
	For(endpoint string) Node
	Allowed(endpoint string) bool
	Endpoints() []string
}

type poolNodes struct {
	pool *chain.Pool
}

// PoolNodes exposes a chain.Pool as Nodes.
func PoolNodes(pool *chain.Pool) Nodes {
	return poolNodes{pool: pool}
}

func (p poolNodes) For(endpoint string) Node      { return p.pool.For(endpoint) }
func (p poolNodes) Allowed(endpoint string) bool { return p.pool.Allowed(endpoint) }
func (p poolNodes) Endpoints() []string          { return p.pool.Endpoints() }

// Deps is shared by every handler.
type Deps struct {
	Config        *utils.Config
	Nodes         Nodes
	Hub           *live.Hub
	Publisher     *services.Publisher
	BlockList     *services.BlockListService
	Notifications *services.NotificationService
	Unread        *services.UnreadCounter
	Scheduler     services.Scheduler
	Logger        *logrus.Logger
}

// node is the client for the session's chosen endpoint.
func (d *Deps) node(s *session.Context) Node {
	endpoint := ""
	if s != nil {
		endpoint = s.Settings.RPCEndpoint
	}
	return d.Nodes.For(endpoint)
}

// blocked is the display filter for the session; nil when disabled.
func (d *Deps) blocked(s *session.Context) services.BlockList {
	if d.BlockList == nil || (s != nil && !s.Settings.BlockListEnabled) {
		return nil
	}
	return d.BlockList.Snapshot()
}

func (d *Deps) treeBuilder(node Node) *services.TreeBuilder {
	return services.NewTreeBuilder(node, d.Config.Chain.MaxInFlight, d.Logger)
}

func (d *Deps) submissions(node Node) *services.SubmissionPoller {
	return services.NewSubmissionPoller(node, d.Scheduler, d.Config.Live.SubmitInterval, d.Config.Live.SubmitAttempts, d.Logger)
}

// Render helper to inject common variables like 'current user'
func (d *Deps) Render(c *gin.Context, code int, name string, obj gin.H) {
	if obj == nil {
		obj = gin.H{}
	}

	s := session.From(c)
	if s.LoggedIn() {
		obj["CurrentUser"] = s.Identity.Username
		obj["CanSign"] = s.CanSign()
		obj["Locked"] = s.Identity.Locked
		obj["IsAdmin"] = d.Config.Forum.IsAdmin(s.Identity.Username)
		if count, ok := c.Get(middleware.UnreadCountKey); ok {
			obj["UnreadCount"] = count.(int)
		} else {
			obj["UnreadCount"] = 0
		}
	}
	if s != nil {
		obj["Theme"] = s.Settings.Theme
		flashes, err := s.Flashes()
		if err != nil {
			d.Logger.WithError(err).Warn("Session cookie not saved")
		}
		obj["Flashes"] = flashes
	}

	obj["AppName"] = d.Config.App.Name
	obj["Categories"] = d.Config.Forum.Categories
	obj["CurrentPath"] = c.Request.URL.RequestURI()

	c.HTML(code, name, obj)
}

// RenderError renders the error page
func (d *Deps) RenderError(c *gin.Context, code int, message string) {
	d.Render(c, code, "error.html", gin.H{"Title": message, "Error": message})
}

// renderFetchError maps a chain read failure to a 404 or 500 page.
func (d *Deps) renderFetchError(c *gin.Context, what string, err error) {
	if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrAccountNotFound) {
		d.RenderError(c, http.StatusNotFound, msgNotFound)
		return
	}
	d.Logger.WithError(err).WithField("what", what).Error("Chain read failed")
	d.RenderError(c, http.StatusInternalServerError, msgSomethingBad)
}

// redirectWithFlash shows message as a toast on the next page.
func (d *Deps) redirectWithFlash(c *gin.Context, url string, messages ...string) {
	if s := session.From(c); s != nil {
		for _, m := range messages {
			if m == "" {
				continue
			}
			if err := s.AddFlash(m); err != nil {
				d.Logger.WithError(err).Warn("Session cookie not saved")
			}
		}
	}
	c.Redirect(http.StatusFound, url)
}

// backURL is a local referer path or fallback.
func backURL(c *gin.Context, fallback string) string {
	ref := c.Request.Referer()
	if ref == "" {
		return fallback
	}
	if i := strings.Index(ref, "://"); i >= 0 {
		rest := ref[i+3:]
		slash := strings.Index(rest, "/")
		if slash < 0 {
			return fallback
		}
		if host := rest[:slash]; host != c.Request.Host {
			return fallback
		}
		ref = rest[slash:]
	}
	if !strings.HasPrefix(ref, "/") || strings.HasPrefix(ref, "//") {
		return fallback
	}
	return ref
}

// isFetch reports a request made by the page script rather than a form post.
func isFetch(c *gin.Context) bool {
	return c.GetHeader("X-Requested-With") != ""
}

func msg(err error) string {
	if err == nil {
		return ""
	}
	s := err.Error()
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
