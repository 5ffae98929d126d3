package handlers

import (
	"net/http"
	"strconv"

	"blurtbb/internal/live"
	"blurtbb/internal/models"
	"blurtbb/internal/services"
	"blurtbb/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type VoteHandler struct {
	*Deps
}

func NewVoteHandler(d *Deps) *VoteHandler {
	return &VoteHandler{Deps: d}
}

// Vote broadcasts a vote. The page's widget is patched right away as if
// the chain had already applied it; the poller later brings the real state.
func (h *VoteHandler) Vote(c *gin.Context) {
	s := session.From(c)
	creds, err := s.Credentials()
	if err != nil {
		if isFetch(c) {
			c.String(http.StatusUnauthorized, msgLoginRequired)
			return
		}
		h.redirectWithFlash(c, "/login", msgLoginRequired)
		return
	}

	author, permlink := c.PostForm("author"), c.PostForm("permlink")
	if author == "" || permlink == "" {
		c.String(http.StatusBadRequest, "missing post")
		return
	}
	weight, err := strconv.Atoi(c.DefaultPostForm("weight", "10000"))
	if err != nil {
		c.String(http.StatusBadRequest, "bad weight")
		return
	}
	root := c.PostForm("root") == "true"
	fallback := services.PostURL(author, permlink)

	node := h.node(s)
	if _, err := h.Publisher.Vote(c.Request.Context(), node, creds, author, permlink, weight); err != nil {
		h.Logger.WithError(err).WithFields(logrus.Fields{
			"voter": creds.Username,
			"post":  models.ContentKey(author, permlink),
		}).Warn("Vote failed")
		if isFetch(c) {
			c.String(http.StatusBadGateway, msgBroadcastFailed+err.Error())
			return
		}
		h.redirectWithFlash(c, backURL(c, fallback), msgBroadcastFailed+err.Error())
		return
	}

	html, ok := h.optimistic(c, node, creds.Username, author, permlink, weight, root)
	if isFetch(c) {
		if !ok {
			c.Status(http.StatusNoContent)
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
		return
	}
	c.Redirect(http.StatusFound, backURL(c, fallback))
}

// optimistic renders the widget with the viewer's vote applied and patches
// it into the live document the vote came from.
func (h *VoteHandler) optimistic(c *gin.Context, node Node, viewer, author, permlink string, weight int, root bool) (string, bool) {
	content, err := node.GetContent(c.Request.Context(), author, permlink)
	if err != nil || !content.Exists() {
		return "", false
	}
	applyVote(content, viewer, weight)

	html, err := live.RenderVoteFragment(services.NewVoteView(content, viewer, root))
	if err != nil {
		h.Logger.WithError(err).Warn("Vote fragment render failed")
		return "", false
	}

	if doc, ok := h.Hub.Document(c.PostForm("doc")); ok {
		var frag services.Fragment
		var found bool
		if root {
			frag, found = doc.RootVoteFragment()
		} else {
			frag, found = doc.VoteFragment(author, permlink)
		}
		if found {
			frag.Replace(html)
			frag.BindPopover()
		}
	}
	return string(html), true
}

// applyVote replaces viewer's entry in the active votes; weight 0 removes it.
func applyVote(content *models.Content, viewer string, weight int) {
	votes := content.ActiveVotes[:0:0]
	for _, v := range content.ActiveVotes {
		if v.Voter != viewer {
			votes = append(votes, v)
		}
	}
	if weight != 0 {
		votes = append(votes, models.ActiveVote{
			Voter:   viewer,
			Percent: weight,
			Weight:  models.FlexInt64(weight),
		})
	}
	content.ActiveVotes = votes
}
