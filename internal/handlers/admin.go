package handlers

import (
	"net/http"
	"strings"

	"blurtbb/internal/models"
	"blurtbb/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type AdminHandler struct {
	*Deps
}

func NewAdminHandler(d *Deps) *AdminHandler {
	return &AdminHandler{Deps: d}
}

// Block hides an author (kind "author", target "name") or a single post
// (kind "post", target "@author/permlink").
func (h *AdminHandler) Block(c *gin.Context) {
	admin := session.From(c).Identity.Username
	kind := c.PostForm("kind")
	target := strings.TrimSpace(c.PostForm("target"))
	reason := strings.TrimSpace(c.PostForm("reason"))

	var err error
	switch kind {
	case "author":
		err = h.BlockList.BlockAuthor(strings.ToLower(strings.TrimPrefix(target, "@")), reason, admin)
	case "post":
		author, permlink, perr := models.ParseContentKey(target)
		if perr != nil {
			h.redirectWithFlash(c, backURL(c, "/settings"), msg(perr))
			return
		}
		err = h.BlockList.BlockPost(author, permlink, reason, admin)
	default:
		c.String(http.StatusBadRequest, "unknown kind")
		return
	}
	if err != nil {
		h.redirectWithFlash(c, backURL(c, "/settings"), msg(err))
		return
	}

	h.Logger.WithFields(logrus.Fields{"admin": admin, "kind": kind, "target": target}).Info("Block-list entry added")
	h.redirectWithFlash(c, backURL(c, "/settings"), "Blocked "+target+".")
}

func (h *AdminHandler) Unblock(c *gin.Context) {
	admin := session.From(c).Identity.Username
	kind := c.PostForm("kind")
	target := strings.TrimSpace(c.PostForm("target"))

	var err error
	switch kind {
	case "author":
		err = h.BlockList.UnblockAuthor(strings.TrimPrefix(target, "@"))
	case "post":
		author, permlink, perr := models.ParseContentKey(target)
		if perr != nil {
			h.redirectWithFlash(c, backURL(c, "/settings"), msg(perr))
			return
		}
		err = h.BlockList.UnblockPost(author, permlink)
	default:
		c.String(http.StatusBadRequest, "unknown kind")
		return
	}
	if err != nil {
		h.redirectWithFlash(c, backURL(c, "/settings"), msg(err))
		return
	}

	h.Logger.WithFields(logrus.Fields{"admin": admin, "kind": kind, "target": target}).Info("Block-list entry removed")
	h.redirectWithFlash(c, backURL(c, "/settings"), "Unblocked "+target+".")
}
