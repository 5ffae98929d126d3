package handlers

import (
	"context"
	"crypto/sha256"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"blurtbb/internal/chain"
	"blurtbb/internal/live"
	"blurtbb/internal/middleware"
	"blurtbb/internal/models"
	"blurtbb/internal/services"
	"blurtbb/internal/session"
	"blurtbb/internal/utils"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testTemplates = `
{{define "main.html"}}main{{range .CategoryViews}}|{{.Tag}}:{{with .Latest}}{{.Content.Permlink}}{{end}}{{end}}{{end}}
{{define "category.html"}}category:{{.Category.Tag}}{{range .Topics}}|{{.Content.Permlink}}{{end}}{{if .Next}}|next={{.Next}}{{end}}{{end}}
{{define "post.html"}}post:{{.PostKey}}{{range .Flashes}} flash={{.}}{{end}} doc={{.LiveDoc}} total={{.Total}}{{range .Replies}}|{{.LiveID}}{{end}}{{end}}
{{define "compose.html"}}compose:{{.Mode}}{{if .Error}} error={{.Error}}{{end}}{{end}}
{{define "profile.html"}}profile:{{.Account.Name}}{{range .Posts}}|{{.Content.Permlink}}{{end}}{{end}}
{{define "notifications.html"}}notifications:{{len .Notifications}} unread={{.Unread}} newest={{.Newest}}{{end}}
{{define "login.html"}}login{{if .Error}} error={{.Error}}{{end}}{{end}}
{{define "settings.html"}}settings:{{.Settings.RPCEndpoint}}{{if .Error}} error={{.Error}}{{end}}{{end}}
{{define "error.html"}}error:{{.Error}}{{end}}
`

const (
	nodeA = "https://a.example"
	nodeB = "https://b.example"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.BlockedAuthor{}, &models.BlockedPost{}, &models.NotificationMark{}))
	return conn
}

// fakeNode is an in-memory chain. Broadcast comments and votes are applied
// at once, so submission waits succeed on the first check.
type fakeNode struct {
	mu            sync.Mutex
	contents      map[string]*models.Content
	children      map[string][]string
	accounts      map[string]*models.Account
	history       map[string][]chain.HistoryEntry
	broadcasts    [][]models.Operation
	failBroadcast error
	failReads     error
	dropWrites    bool // accept broadcasts without applying them
	unlisted      bool // replies are readable but missing from listings
	seq           int
}

func newFakeNode() *fakeNode {
	return &fakeNode{
		contents: map[string]*models.Content{},
		children: map[string][]string{},
		accounts: map[string]*models.Account{},
		history:  map[string][]chain.HistoryEntry{},
	}
}

func (n *fakeNode) add(c *models.Content) *models.Content {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seq++
	if c.Created.IsZero() {
		c.Created = models.NewChainTime(baseTime.Add(time.Duration(n.seq) * time.Minute))
	}
	c.LastUpdate = c.Created
	n.contents[c.Key()] = c
	if c.ParentAuthor != "" {
		parent := models.ContentKey(c.ParentAuthor, c.ParentPermlink)
		n.children[parent] = append(n.children[parent], c.Key())
		if p, ok := n.contents[parent]; ok {
			p.ChildCount++
		}
	}
	return c
}

func topic(author, permlink, category string) *models.Content {
	return &models.Content{Author: author, Permlink: permlink, Category: category, Title: "Title " + permlink, Body: "Body of " + permlink, ParentPermlink: category}
}

func reply(parent *models.Content, author, permlink string) *models.Content {
	return &models.Content{Author: author, Permlink: permlink, Category: parent.Category, Body: "re " + parent.Permlink, ParentAuthor: parent.Author, ParentPermlink: parent.Permlink}
}

func clone(c *models.Content) *models.Content {
	cp := *c
	cp.ActiveVotes = slices.Clone(c.ActiveVotes)
	cp.Replies = nil
	return &cp
}

func (n *fakeNode) GetContent(ctx context.Context, author, permlink string) (*models.Content, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failReads != nil {
		return nil, n.failReads
	}
	c, ok := n.contents[models.ContentKey(author, permlink)]
	if !ok {
		return &models.Content{}, nil
	}
	return clone(c), nil
}

func (n *fakeNode) GetContentReplies(ctx context.Context, author, permlink string) ([]*models.Content, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failReads != nil {
		return nil, n.failReads
	}
	if n.unlisted {
		return nil, nil
	}
	var out []*models.Content
	for _, key := range n.children[models.ContentKey(author, permlink)] {
		if c, ok := n.contents[key]; ok {
			out = append(out, clone(c))
		}
	}
	return out, nil
}

func (n *fakeNode) roots(match func(*models.Content) bool, q chain.Query) []*models.Content {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []*models.Content
	for _, c := range n.contents {
		if c.IsRoot() && match(c) {
			out = append(out, clone(c))
		}
	}
	slices.SortFunc(out, func(a, b *models.Content) int { return b.Created.Compare(a.Created.Time) })
	if q.StartAuthor != "" {
		for i, c := range out {
			if c.Author == q.StartAuthor && c.Permlink == q.StartPermlink {
				out = out[i:]
				break
			}
		}
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func (n *fakeNode) GetDiscussionsByCreated(ctx context.Context, q chain.Query) ([]*models.Content, error) {
	return n.roots(func(c *models.Content) bool { return c.Category == q.Tag }, q), nil
}

func (n *fakeNode) GetDiscussionsByBlog(ctx context.Context, q chain.Query) ([]*models.Content, error) {
	return n.roots(func(c *models.Content) bool { return c.Author == q.Tag }, q), nil
}

func (n *fakeNode) GetAccount(ctx context.Context, name string) (*models.Account, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	a, ok := n.accounts[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrAccountNotFound, name)
	}
	return a, nil
}

func (n *fakeNode) GetAccountHistory(ctx context.Context, account string, from int64, limit int) ([]chain.HistoryEntry, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.history[account]), nil
}

func (n *fakeNode) Broadcast(ctx context.Context, ops []models.Operation, creds models.Credentials) (*models.Receipt, error) {
	n.mu.Lock()
	if n.failBroadcast != nil {
		n.mu.Unlock()
		return nil, n.failBroadcast
	}
	n.broadcasts = append(n.broadcasts, ops)
	drop := n.dropWrites
	n.mu.Unlock()
	if drop {
		return &models.Receipt{ID: "trx", BlockNum: 1}, nil
	}

	for _, op := range ops {
		switch body := op.Body.(type) {
		case models.CommentOperation:
			n.applyComment(body)
		case models.VoteOperation:
			n.applyVote(body)
		case models.DeleteCommentOperation:
			n.mu.Lock()
			delete(n.contents, models.ContentKey(body.Author, body.Permlink))
			n.mu.Unlock()
		}
	}
	return &models.Receipt{ID: "trx", BlockNum: 1}, nil
}

func (n *fakeNode) applyComment(op models.CommentOperation) {
	n.mu.Lock()
	if c, ok := n.contents[models.ContentKey(op.Author, op.Permlink)]; ok {
		c.Title, c.Body = op.Title, op.Body
		c.LastUpdate = models.NewChainTime(c.LastUpdate.Add(time.Second))
		n.mu.Unlock()
		return
	}
	n.mu.Unlock()
	category := op.ParentPermlink
	if op.ParentAuthor != "" {
		if p, err := n.GetContent(context.Background(), op.ParentAuthor, op.ParentPermlink); err == nil {
			category = p.Category
		}
	}
	n.add(&models.Content{
		Author: op.Author, Permlink: op.Permlink, Category: category, Title: op.Title, Body: op.Body,
		ParentAuthor: op.ParentAuthor, ParentPermlink: op.ParentPermlink, JSONMetadata: op.JSONMetadata,
	})
}

func (n *fakeNode) applyVote(op models.VoteOperation) {
	n.mu.Lock()
	defer n.mu.Unlock()
	c, ok := n.contents[models.ContentKey(op.Author, op.Permlink)]
	if !ok {
		return
	}
	applyVote(c, op.Voter, int(op.Weight))
}

func (n *fakeNode) broadcastCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.broadcasts)
}

func (n *fakeNode) lastOps() []models.Operation {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.broadcasts) == 0 {
		return nil
	}
	return n.broadcasts[len(n.broadcasts)-1]
}

// fakeNodes serves the same node for every configured endpoint.
type fakeNodes struct {
	node      *fakeNode
	endpoints []string
}

func (f fakeNodes) For(endpoint string) Node      { return f.node }
func (f fakeNodes) Allowed(endpoint string) bool { return slices.Contains(f.endpoints, endpoint) }
func (f fakeNodes) Endpoints() []string          { return f.endpoints }

// newWIF returns a fresh posting key and its public key string.
func newWIF(t *testing.T) (string, string) {
	t.Helper()
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	raw := append([]byte{0x80}, crypto.FromECDSA(priv)...)
	first := sha256.Sum256(raw)
	second := sha256.Sum256(first[:])
	wif := base58.Encode(append(raw, second[:4]...))
	return wif, chain.PublicKeyString(priv, chain.DefaultAddressPrefix)
}

func account(name, pub string) *models.Account {
	return &models.Account{
		Name: name,
		Posting: models.Authority{
			WeightThreshold: 1,
			KeyAuths:        []models.KeyAuth{{Key: pub, Weight: 1}},
		},
	}
}

type testApp struct {
	t      *testing.T
	engine *gin.Engine
	node   *fakeNode
	deps   *Deps
	jar    map[string]*http.Cookie
}

func testConfig() *utils.Config {
	return &utils.Config{
		App: utils.AppConfig{Name: "BlurtBB", Version: "test"},
		Chain: utils.ChainConfig{
			Endpoints:     []string{nodeA, nodeB},
			AddressPrefix: chain.DefaultAddressPrefix,
			MaxInFlight:   4,
		},
		Forum: utils.ForumConfig{
			Categories: []models.Category{
				{Tag: "general", Name: "General"},
				{Tag: "help", Name: "Help"},
			},
			AdminAccounts:  []string{"root"},
			RepliesPerPage: 20,
			TopicsPerPage:  2,
		},
		Live: utils.LiveConfig{
			PollInterval:   time.Hour,
			SubmitInterval: time.Millisecond,
			SubmitAttempts: 3,
		},
	}
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := testLogger()
	cfg := testConfig()
	node := newFakeNode()
	conn := testDB(t)

	blockList, err := services.NewBlockListService(conn, log)
	require.NoError(t, err)
	notes := services.NewNotificationService(conn, log)
	unread := services.NewUnreadCounter(notes, node, utils.NewTTLCache(100), log)

	hub, err := live.NewHub(100, time.Hour, func(src services.TreeSource) *services.VotePoller {
		return services.NewVotePoller(src, live.RenderVoteFragment, services.SystemScheduler{}, cfg.Live.PollInterval, log)
	}, log)
	require.NoError(t, err)
	t.Cleanup(hub.Close)

	d := &Deps{
		Config:        cfg,
		Nodes:         fakeNodes{node: node, endpoints: cfg.Chain.Endpoints},
		Hub:           hub,
		Publisher:     services.NewPublisher(services.PublisherConfig{App: "blurtbb/test", MaxAcceptedPayout: "1000.000 BLURT"}, log),
		BlockList:     blockList,
		Notifications: notes,
		Unread:        unread,
		Scheduler:     services.SystemScheduler{},
		Logger:        log,
	}

	r := gin.New()
	r.SetHTMLTemplate(template.Must(template.New("").Parse(testTemplates)))
	r.Use(session.Middleware(session.NewStore("test-secret", "")))
	r.Use(middleware.LoadSession(models.DefaultSettings(nodeA), log))
	r.Use(middleware.LoadUnreadCount(unread))
	registerTestRoutes(r, d)

	return &testApp{t: t, engine: r, node: node, deps: d, jar: map[string]*http.Cookie{}}
}

// registerTestRoutes mirrors the production route table.
func registerTestRoutes(r *gin.Engine, d *Deps) {
	forum := NewForumHandler(d)
	compose := NewComposeHandler(d)
	profile := NewProfileHandler(d)
	notes := NewNotificationHandler(d)
	dispatcher := NewDispatcher(forum, compose, profile, notes)
	auth := NewAuthHandler(d)
	vote := NewVoteHandler(d)
	settings := NewSettingsHandler(d)
	liveHandler := NewLiveHandler(d)
	admin := NewAdminHandler(d)
	health := NewHealthHandler(d)

	r.GET("/healthz", health.Check)
	r.GET("/live/:doc", liveHandler.Changes)
	r.POST("/vote", vote.Vote)

	pages := r.Group("/")
	pages.Use(middleware.LeaveLivePage(d.Hub))
	pages.GET("/", dispatcher.Dispatch)
	pages.GET("/login", auth.ShowLogin)
	pages.POST("/login", auth.Login)
	pages.POST("/logout", auth.Logout)
	pages.GET("/settings", settings.Show)
	pages.POST("/settings", settings.Update)

	authorized := pages.Group("/")
	authorized.Use(middleware.AuthRequired())
	authorized.POST("/lock", auth.Lock)
	authorized.POST("/unlock", auth.Unlock)
	authorized.POST("/submit/topic", compose.CreateTopic)
	authorized.POST("/submit/reply", compose.CreateReply)
	authorized.POST("/submit/edit", compose.Update)
	authorized.POST("/submit/delete", compose.Delete)
	authorized.POST("/notifications/read", notes.ReadAll)

	adminGroup := pages.Group("/admin")
	adminGroup.Use(middleware.AdminRequired(d.Config.Forum.IsAdmin))
	adminGroup.POST("/blocklist", admin.Block)
	adminGroup.POST("/blocklist/remove", admin.Unblock)
}

func (a *testApp) do(req *http.Request) *httptest.ResponseRecorder {
	for _, c := range a.jar {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	for _, c := range w.Result().Cookies() {
		a.jar[c.Name] = c
	}
	return w
}

func (a *testApp) get(path string) *httptest.ResponseRecorder {
	return a.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (a *testApp) post(path string, form url.Values, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	return a.do(req)
}

// login registers name on the chain and logs the browser in as it.
func (a *testApp) login(name string) {
	a.t.Helper()
	wif, pub := newWIF(a.t)
	a.node.mu.Lock()
	a.node.accounts[name] = account(name, pub)
	a.node.mu.Unlock()
	w := a.post("/login", url.Values{"username": {name}, "posting_key": {wif}})
	require.Equal(a.t, http.StatusFound, w.Code, w.Body.String())
}

func (a *testApp) sessionID() string {
	a.t.Helper()
	var id string
	a.engine.GET("/_sid", func(c *gin.Context) {
		id = session.From(c).SessionID
		c.Status(http.StatusOK)
	})
	a.get("/_sid")
	return id
}
