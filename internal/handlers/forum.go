package handlers

import (
	"html/template"
	"net/http"
	"strings"

	"blurtbb/internal/chain"
	"blurtbb/internal/live"
	"blurtbb/internal/models"
	"blurtbb/internal/services"
	"blurtbb/internal/session"
	"blurtbb/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const excerptLength = 160

type ForumHandler struct {
	*Deps
}

func NewForumHandler(d *Deps) *ForumHandler {
	return &ForumHandler{Deps: d}
}

// topicView is one row of a topic list.
type topicView struct {
	Content *models.Content
	URL     string
	Excerpt string
	Votes   int
	Replies int
}

func newTopicView(c *models.Content) topicView {
	return topicView{
		Content: c,
		URL:     services.PostURL(c.Author, c.Permlink),
		Excerpt: utils.Excerpt(c.Body, excerptLength),
		Votes:   len(c.ActiveVotes),
		Replies: c.ChildCount,
	}
}

// categoryView is a category with its newest topic.
type categoryView struct {
	models.Category
	Latest *topicView
}

// Main lists the categories with the newest topic of each.
func (h *ForumHandler) Main(c *gin.Context) {
	s := session.From(c)
	node := h.node(s)
	blocked := h.blocked(s)

	cats := h.Config.Forum.Categories
	views := make([]categoryView, len(cats))
	g, ctx := errgroup.WithContext(c.Request.Context())
	g.SetLimit(max(h.Config.Chain.MaxInFlight, 1))
	for i, cat := range cats {
		views[i].Category = cat
		g.Go(func() error {
			topics, err := node.GetDiscussionsByCreated(ctx, chain.Query{Tag: cat.Tag, Limit: 5})
			if err != nil {
				return err
			}
			for _, t := range topics {
				if blocked != nil && blocked.Blocks(t.Author, t.Permlink) {
					continue
				}
				tv := newTopicView(t)
				views[i].Latest = &tv
				break
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		h.renderFetchError(c, "categories", err)
		return
	}

	h.Render(c, http.StatusOK, "main.html", gin.H{
		"Title":         h.Config.App.Name,
		"CategoryViews": views,
	})
}

// Category lists the topics of one category, newest first. Paging
// continues from the "start" topic key.
func (h *ForumHandler) Category(c *gin.Context, tag string) {
	cat, ok := h.Config.Forum.Category(tag)
	if !ok {
		h.RenderError(c, http.StatusNotFound, msgNotFound)
		return
	}

	s := session.From(c)
	node := h.node(s)
	blocked := h.blocked(s)
	perPage := h.Config.Forum.TopicsPerPage

	q := chain.Query{Tag: cat.Tag, Limit: perPage + 1}
	start := c.Query("start")
	if start != "" {
		author, permlink, err := models.ParseContentKey(start)
		if err != nil {
			h.RenderError(c, http.StatusBadRequest, msg(err))
			return
		}
		q.StartAuthor, q.StartPermlink = author, permlink
	}

	topics, err := node.GetDiscussionsByCreated(c.Request.Context(), q)
	if err != nil {
		h.renderFetchError(c, "category "+cat.Tag, err)
		return
	}
	// the node repeats the start topic first
	if start != "" && len(topics) > 0 && topics[0].Key() == models.ContentKey(q.StartAuthor, q.StartPermlink) {
		topics = topics[1:]
	}

	next := ""
	if len(topics) > perPage {
		topics = topics[:perPage]
		next = topics[len(topics)-1].Key()
	}

	views := make([]topicView, 0, len(topics))
	for _, t := range topics {
		if blocked != nil && blocked.Blocks(t.Author, t.Permlink) {
			continue
		}
		views = append(views, newTopicView(t))
	}

	h.Render(c, http.StatusOK, "category.html", gin.H{
		"Title":    cat.Name,
		"Category": cat,
		"Topics":   views,
		"Next":     next,
	})
}

// replyView is one reply of a post page.
type replyView struct {
	Content  *models.Content
	Anchor   string
	Body     template.HTML
	Votes    template.HTML
	LiveID   string
	ParentOf string
	CanEdit  bool
}

func replyAnchor(author, permlink string) string {
	return "reply-" + author + "-" + permlink
}

// Post renders a post with its flattened replies and opens a live document
// that keeps the vote widgets fresh.
func (h *ForumHandler) Post(c *gin.Context, key string) {
	author, permlink, err := models.ParseContentKey(key)
	if err != nil {
		h.RenderError(c, http.StatusNotFound, msgNotFound)
		return
	}

	s := session.From(c)
	node := h.node(s)
	builder := h.treeBuilder(node)

	tree, err := builder.Build(c.Request.Context(), author, permlink)
	if err != nil {
		h.renderFetchError(c, key, err)
		return
	}
	blocked := h.blocked(s)
	if blocked != nil && blocked.Blocks(tree.Author, tree.Permlink) {
		h.RenderError(c, http.StatusNotFound, msgNotFound)
		return
	}

	flat := services.Flatten(tree, blocked)
	viewer := s.Viewer()

	page := utils.PageNumber(c.Query("page"))
	startIdx, endIdx, current, pages := utils.Paginate(len(flat.Replies), page, h.Config.Forum.RepliesPerPage)

	doc := live.NewDocument(tree.Author, tree.Permlink)
	rootVotes, err := live.RenderVoteFragment(services.NewVoteView(tree, viewer, true))
	if err != nil {
		h.renderFetchError(c, key, err)
		return
	}
	doc.Mount(tree.Author, tree.Permlink, true, rootVotes)

	replies := make([]replyView, 0, endIdx-startIdx)
	for _, r := range flat.Replies[startIdx:endIdx] {
		votes, err := live.RenderVoteFragment(services.NewVoteView(r, viewer, false))
		if err != nil {
			h.renderFetchError(c, key, err)
			return
		}
		doc.Mount(r.Author, r.Permlink, false, votes)

		rv := replyView{
			Content: r,
			Anchor:  replyAnchor(r.Author, r.Permlink),
			Body:    utils.RenderMarkdown(r.Body),
			Votes:   votes,
			LiveID:  r.Key(),
			CanEdit: viewer != "" && viewer == r.Author,
		}
		if r.ParentAuthor != tree.Author || r.ParentPermlink != tree.Permlink {
			rv.ParentOf = r.ParentAuthor
		}
		replies = append(replies, rv)
	}

	h.Hub.Open(s.SessionID, doc, builder, services.PollTarget{
		Author:   tree.Author,
		Permlink: tree.Permlink,
		Viewer:   viewer,
		Snapshot: tree,
	})
	h.Logger.WithFields(logrus.Fields{
		"post":    tree.Key(),
		"replies": len(flat.Replies),
		"doc":     doc.ID,
	}).Debug("Post page rendered")

	cat, _ := h.Config.Forum.Category(tree.Category)
	h.Render(c, http.StatusOK, "post.html", gin.H{
		"Title":    strings.TrimSpace(tree.Title),
		"Post":     tree,
		"PostKey":  tree.Key(),
		"Body":     utils.RenderMarkdown(tree.Body),
		"Votes":    rootVotes,
		"LiveDoc":  doc.ID,
		"RootID":   live.RootFragmentID,
		"Category": cat,
		"Tags":     tree.Metadata().Tags,
		"Replies":  replies,
		"Total":    len(flat.Replies),
		"Page":     current,
		"Pages":    pages,
		"CanEdit":  viewer != "" && viewer == tree.Author,
		"CanReply": s.CanSign(),
	})
}
