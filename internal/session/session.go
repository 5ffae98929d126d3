package session

import (
	"errors"
	"fmt"
	"net/http"

	"blurtbb/internal/models"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// ShortName is the browser-session tier; LongName survives restarts.
	ShortName = "blurtbb_short"
	LongName  = "blurtbb_long"

	LongMaxAge = 30 * 24 * 60 * 60

	contextKey = "session"

	keySessionID  = "sid"
	keyUsername   = "username"
	keyPostingKey = "posting_key"
	keyPublicKey  = "public_key"
	keyLocked     = "locked"
	keySettings   = "settings"
)

var ErrNoIdentity = errors.New("not logged in")

// Names lists the cookie sessions to register with sessions.SessionsMany.
var Names = []string{ShortName, LongName}

// Identity is who the browser acts as. A locked identity keeps its name
// but has no key to sign with.
type Identity struct {
	Username   string
	PostingKey string
	PublicKey  string
	Locked     bool
}

// Context is the per-request session state. It changes only through its
// methods, which persist to the cookie tiers.
type Context struct {
	SessionID string
	Identity  Identity
	Settings  models.Settings
	Remember  bool

	short sessions.Session
	long  sessions.Session
}

// Load reads both tiers. Identity comes from whichever tier holds it; the
// long tier means "remember me" was chosen. The context is usable even when
// a fresh session id could not be saved.
func Load(c *gin.Context, defaults models.Settings) (*Context, error) {
	short := sessions.DefaultMany(c, ShortName)
	long := sessions.DefaultMany(c, LongName)
	long.Options(sessions.Options{Path: "/", MaxAge: LongMaxAge, HttpOnly: true, SameSite: http.SameSiteLaxMode})
	short.Options(sessions.Options{Path: "/", MaxAge: 0, HttpOnly: true, SameSite: http.SameSiteLaxMode})

	s := &Context{short: short, long: long}

	var saveErr error
	s.SessionID, _ = short.Get(keySessionID).(string)
	if s.SessionID == "" {
		s.SessionID = uuid.NewString()
		short.Set(keySessionID, s.SessionID)
		if err := short.Save(); err != nil {
			saveErr = fmt.Errorf("save session id: %w", err)
		}
	}

	src := short
	if name, _ := long.Get(keyUsername).(string); name != "" {
		src = long
		s.Remember = true
	}
	s.Identity.Username, _ = src.Get(keyUsername).(string)
	s.Identity.PostingKey, _ = src.Get(keyPostingKey).(string)
	s.Identity.PublicKey, _ = src.Get(keyPublicKey).(string)
	s.Identity.Locked, _ = src.Get(keyLocked).(bool)

	raw, _ := long.Get(keySettings).(string)
	s.Settings = models.ParseSettings(raw, defaults)
	return s, saveErr
}

// Attach stores s on the gin context.
func Attach(c *gin.Context, s *Context) {
	c.Set(contextKey, s)
}

// From returns the request's session; nil when LoadSession did not run.
func From(c *gin.Context) *Context {
	if v, ok := c.Get(contextKey); ok {
		if s, ok := v.(*Context); ok {
			return s
		}
	}
	return nil
}

func (s *Context) LoggedIn() bool {
	return s != nil && s.Identity.Username != ""
}

// CanSign reports whether a posting key is at hand.
func (s *Context) CanSign() bool {
	return s.LoggedIn() && !s.Identity.Locked && s.Identity.PostingKey != ""
}

// Viewer is the account name used to mark own votes; empty when anonymous.
func (s *Context) Viewer() string {
	if s == nil {
		return ""
	}
	return s.Identity.Username
}

// Credentials returns the signing identity.
func (s *Context) Credentials() (models.Credentials, error) {
	if !s.CanSign() {
		return models.Credentials{}, ErrNoIdentity
	}
	return models.Credentials{Username: s.Identity.Username, PostingKey: s.Identity.PostingKey}, nil
}

// Login stores a verified identity. With remember it goes to the long tier.
func (s *Context) Login(username, postingKey, publicKey string, remember bool) error {
	s.clearIdentity()
	s.Identity = Identity{Username: username, PostingKey: postingKey, PublicKey: publicKey}
	s.Remember = remember
	return s.saveIdentity()
}

// Logout forgets the identity in both tiers. Settings stay.
func (s *Context) Logout() error {
	s.clearIdentity()
	s.Identity = Identity{}
	s.Remember = false
	return s.save()
}

// Lock drops the posting key but keeps the user name.
func (s *Context) Lock() error {
	if !s.LoggedIn() {
		return ErrNoIdentity
	}
	s.Identity.PostingKey = ""
	s.Identity.Locked = true
	return s.saveIdentity()
}

// Unlock restores a verified posting key.
func (s *Context) Unlock(postingKey, publicKey string) error {
	if !s.LoggedIn() {
		return ErrNoIdentity
	}
	s.Identity.PostingKey = postingKey
	s.Identity.PublicKey = publicKey
	s.Identity.Locked = false
	return s.saveIdentity()
}

// SaveSettings persists settings in the long tier.
func (s *Context) SaveSettings(settings models.Settings) error {
	s.Settings = settings
	s.long.Set(keySettings, settings.String())
	if err := s.long.Save(); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// AddFlash queues a toast for the next page.
func (s *Context) AddFlash(message string) error {
	s.short.AddFlash(message)
	if err := s.short.Save(); err != nil {
		return fmt.Errorf("save flash: %w", err)
	}
	return nil
}

// Flashes pops the queued toasts. The popped toasts are returned even when
// clearing them from the cookie fails.
func (s *Context) Flashes() ([]string, error) {
	var out []string
	for _, f := range s.short.Flashes() {
		if m, ok := f.(string); ok {
			out = append(out, m)
		}
	}
	if len(out) > 0 {
		if err := s.short.Save(); err != nil {
			return out, fmt.Errorf("clear flashes: %w", err)
		}
	}
	return out, nil
}

func (s *Context) tier() sessions.Session {
	if s.Remember {
		return s.long
	}
	return s.short
}

func (s *Context) clearIdentity() {
	for _, tier := range []sessions.Session{s.short, s.long} {
		for _, k := range []string{keyUsername, keyPostingKey, keyPublicKey, keyLocked} {
			tier.Delete(k)
		}
	}
}

func (s *Context) saveIdentity() error {
	tier := s.tier()
	tier.Set(keyUsername, s.Identity.Username)
	tier.Set(keyPostingKey, s.Identity.PostingKey)
	tier.Set(keyPublicKey, s.Identity.PublicKey)
	tier.Set(keyLocked, s.Identity.Locked)
	return s.save()
}

func (s *Context) save() error {
	if err := s.short.Save(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if err := s.long.Save(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}
