package handlers

import (
	"net/http"
	"strings"

	"blurtbb/internal/chain"
	"blurtbb/internal/session"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

type ProfileHandler struct {
	*Deps
}

func NewProfileHandler(d *Deps) *ProfileHandler {
	return &ProfileHandler{Deps: d}
}

// Show renders an account with its latest posts.
func (h *ProfileHandler) Show(c *gin.Context, name string) {
	name = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "@"))
	if name == "" {
		h.RenderError(c, http.StatusNotFound, msgNotFound)
		return
	}

	s := session.From(c)
	node := h.node(s)
	blocked := h.blocked(s)

	g, ctx := errgroup.WithContext(c.Request.Context())
	var views []topicView
	g.Go(func() error {
		posts, err := node.GetDiscussionsByBlog(ctx, chain.Query{Tag: name, Limit: h.Config.Forum.TopicsPerPage})
		if err != nil {
			return err
		}
		for _, p := range posts {
			if p.Author != name || (blocked != nil && blocked.Blocks(p.Author, p.Permlink)) {
				continue
			}
			views = append(views, newTopicView(p))
		}
		return nil
	})
	account, err := node.GetAccount(ctx, name)
	if werr := g.Wait(); err == nil {
		err = werr
	}
	if err != nil {
		h.renderFetchError(c, "profile "+name, err)
		return
	}

	h.Render(c, http.StatusOK, "profile.html", gin.H{
		"Title":   "@" + account.Name,
		"Account": account,
		"Profile": account.Profile(),
		"Posts":   views,
		"IsSelf":  s.Viewer() == account.Name,
	})
}
