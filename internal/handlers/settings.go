package handlers

import (
	"net/http"

	"blurtbb/internal/models"
	"blurtbb/internal/session"

	"github.com/gin-gonic/gin"
)

const msgUnknownEndpoint = "That RPC node is not one of the configured nodes."

type SettingsHandler struct {
	*Deps
}

func NewSettingsHandler(d *Deps) *SettingsHandler {
	return &SettingsHandler{Deps: d}
}

func (h *SettingsHandler) settingsPage(c *gin.Context, obj gin.H) gin.H {
	s := session.From(c)
	obj["Title"] = "Settings"
	obj["Settings"] = s.Settings
	obj["Endpoints"] = h.Nodes.Endpoints()
	obj["Themes"] = []string{models.ThemeLight, models.ThemeDark}
	if s.LoggedIn() && h.Config.Forum.IsAdmin(s.Identity.Username) && h.BlockList != nil {
		authors, posts, err := h.BlockList.Entries()
		if err != nil {
			h.Logger.WithError(err).Error("Block-list read failed")
		}
		obj["BlockedAuthors"] = authors
		obj["BlockedPosts"] = posts
	}
	return obj
}

func (h *SettingsHandler) Show(c *gin.Context) {
	h.Render(c, http.StatusOK, "settings.html", h.settingsPage(c, gin.H{}))
}

func (h *SettingsHandler) Update(c *gin.Context) {
	s := session.From(c)
	next := models.Settings{
		RPCEndpoint:      c.PostForm("rpc_endpoint"),
		BlockListEnabled: c.PostForm("blocklist_enabled") == "on",
		Theme:            c.PostForm("theme"),
	}
	if !h.Nodes.Allowed(next.RPCEndpoint) {
		h.Render(c, http.StatusBadRequest, "settings.html", h.settingsPage(c, gin.H{"Error": msgUnknownEndpoint}))
		return
	}
	if next.Theme != models.ThemeLight && next.Theme != models.ThemeDark {
		next.Theme = s.Settings.Theme
	}

	if err := s.SaveSettings(next); err != nil {
		h.Logger.WithError(err).Error("Settings save failed")
		h.RenderError(c, http.StatusInternalServerError, msgSomethingBad)
		return
	}
	h.redirectWithFlash(c, "/settings", "Settings saved.")
}
