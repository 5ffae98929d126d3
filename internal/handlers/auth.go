package handlers

import (
	"errors"
	"net/http"
	"strings"

	"blurtbb/internal/chain"
	"blurtbb/internal/models"
	"blurtbb/internal/session"

	"github.com/gin-gonic/gin"
)

const (
	msgUnknownAccount = "No such account on the chain."
	msgKeyMismatch    = "That is not the posting key of this account."
	msgMissingLogin   = "Account name and posting key are required."
)

type AuthHandler struct {
	*Deps
}

func NewAuthHandler(d *Deps) *AuthHandler {
	return &AuthHandler{Deps: d}
}

func (h *AuthHandler) ShowLogin(c *gin.Context) {
	if session.From(c).LoggedIn() {
		c.Redirect(http.StatusFound, "/")
		return
	}
	h.Render(c, http.StatusOK, "login.html", gin.H{"Title": "Log in"})
}

// verify checks wif against the account's posting authority and returns
// the matching public key.
func (h *AuthHandler) verify(c *gin.Context, username, wif string) (string, int, string) {
	account, err := h.node(session.From(c)).GetAccount(c.Request.Context(), username)
	if err != nil {
		if errors.Is(err, models.ErrAccountNotFound) {
			return "", http.StatusUnauthorized, msgUnknownAccount
		}
		h.Logger.WithError(err).WithField("account", username).Error("Account lookup failed")
		return "", http.StatusInternalServerError, msgSomethingBad
	}
	pub, err := chain.VerifyPostingKey(account, wif, h.Config.Chain.AddressPrefix)
	if err != nil {
		return "", http.StatusUnauthorized, msgKeyMismatch
	}
	return pub, http.StatusOK, ""
}

func (h *AuthHandler) Login(c *gin.Context) {
	username := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(c.PostForm("username")), "@"))
	wif := strings.TrimSpace(c.PostForm("posting_key"))
	remember := c.PostForm("remember") == "on"

	if username == "" || wif == "" {
		h.Render(c, http.StatusBadRequest, "login.html", gin.H{"Title": "Log in", "Error": msgMissingLogin, "Username": username})
		return
	}

	pub, code, problem := h.verify(c, username, wif)
	if problem != "" {
		h.Render(c, code, "login.html", gin.H{"Title": "Log in", "Error": problem, "Username": username})
		return
	}

	s := session.From(c)
	if err := s.Login(username, wif, pub, remember); err != nil {
		h.Logger.WithError(err).Error("Session save failed")
		h.RenderError(c, http.StatusInternalServerError, msgSomethingBad)
		return
	}
	if h.Unread != nil {
		h.Unread.Schedule(username)
	}
	h.Logger.WithField("account", username).Info("User logged in")
	h.redirectWithFlash(c, "/", "Logged in as @"+username+".")
}

func (h *AuthHandler) Logout(c *gin.Context) {
	s := session.From(c)
	h.Hub.Leave(s.SessionID)
	if err := s.Logout(); err != nil {
		h.Logger.WithError(err).Error("Session save failed")
	}
	c.Redirect(http.StatusFound, "/")
}

// Lock forgets the posting key but keeps the account name.
func (h *AuthHandler) Lock(c *gin.Context) {
	if err := session.From(c).Lock(); err != nil {
		h.redirectWithFlash(c, "/login", msgLoginRequired)
		return
	}
	h.redirectWithFlash(c, backURL(c, "/"), "Posting key locked.")
}

func (h *AuthHandler) Unlock(c *gin.Context) {
	s := session.From(c)
	if !s.LoggedIn() {
		h.redirectWithFlash(c, "/login", msgLoginRequired)
		return
	}
	wif := strings.TrimSpace(c.PostForm("posting_key"))
	if wif == "" {
		h.redirectWithFlash(c, backURL(c, "/"), msgMissingLogin)
		return
	}
	pub, _, problem := h.verify(c, s.Identity.Username, wif)
	if problem != "" {
		h.redirectWithFlash(c, backURL(c, "/"), problem)
		return
	}
	if err := s.Unlock(wif, pub); err != nil {
		h.Logger.WithError(err).Error("Session save failed")
		h.RenderError(c, http.StatusInternalServerError, msgSomethingBad)
		return
	}
	h.redirectWithFlash(c, backURL(c, "/"), "Posting key unlocked.")
}
