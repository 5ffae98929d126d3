package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"blurtbb/internal/models"
	"blurtbb/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHub struct{ left []string }

func (h *fakeHub) Leave(sessionID string) { h.left = append(h.left, sessionID) }

type fakeCounts map[string]int

func (f fakeCounts) Count(account string) (int, bool) {
	n, ok := f[account]
	return n, ok
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(session.Middleware(session.NewStore("secret", "")))
	r.Use(LoadSession(models.DefaultSettings("https://rpc.example"), quietLogger()))
	r.POST("/login", func(c *gin.Context) {
		if err := session.From(c).Login(c.PostForm("u"), "5Kkey", "BLTpub", false); err != nil {
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusNoContent)
	})
	return r
}

// login returns the cookies of a session logged in as account.
func login(t *testing.T, r *gin.Engine, account string) []*http.Cookie {
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("u="+account))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)

	// a response may set the same cookie twice; the last one wins
	latest := map[string]*http.Cookie{}
	for _, ck := range w.Result().Cookies() {
		latest[ck.Name] = ck
	}
	out := make([]*http.Cookie, 0, len(latest))
	for _, ck := range latest {
		out = append(out, ck)
	}
	return out
}

func get(r *gin.Engine, path string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthRequiredRedirectsAnonymous(t *testing.T) {
	r := newEngine()
	r.GET("/private", AuthRequired(), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := get(r, "/private", nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))

	w = get(r, "/private", login(t, r, "alice"))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminRequired(t *testing.T) {
	r := newEngine()
	isAdmin := func(account string) bool { return account == "root" }
	r.GET("/admin", AdminRequired(isAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusForbidden, get(r, "/admin", nil).Code)
	assert.Equal(t, http.StatusForbidden, get(r, "/admin", login(t, r, "alice")).Code)
	assert.Equal(t, http.StatusOK, get(r, "/admin", login(t, r, "root")).Code)
}

func TestLeaveLivePageRunsBeforeHandler(t *testing.T) {
	r := newEngine()
	hub := &fakeHub{}
	var leftBeforeHandler int
	r.GET("/page", LeaveLivePage(hub), func(c *gin.Context) {
		leftBeforeHandler = len(hub.left)
		c.Status(http.StatusOK)
	})

	get(r, "/page", nil)
	assert.Equal(t, 1, leftBeforeHandler)
	require.Len(t, hub.left, 1)
	assert.NotEmpty(t, hub.left[0])
}

func TestLoadUnreadCount(t *testing.T) {
	r := newEngine()
	r.Use(LoadUnreadCount(fakeCounts{"alice": 3}))
	var got any
	var found bool
	r.GET("/count", func(c *gin.Context) {
		got, found = c.Get(UnreadCountKey)
		c.Status(http.StatusOK)
	})

	get(r, "/count", nil)
	assert.False(t, found)

	get(r, "/count", login(t, r, "alice"))
	assert.True(t, found)
	assert.Equal(t, 3, got)

	get(r, "/count", login(t, r, "bob"))
	assert.False(t, found)
}
