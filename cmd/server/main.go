package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"blurtbb/internal/chain"
	"blurtbb/internal/db"
	"blurtbb/internal/handlers"
	"blurtbb/internal/live"
	"blurtbb/internal/middleware"
	"blurtbb/internal/models"
	"blurtbb/internal/router"
	"blurtbb/internal/services"
	"blurtbb/internal/session"
	"blurtbb/internal/utils"

	"github.com/gin-contrib/multitemplate"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	liveDocuments  = 1000
	liveIdle       = 5 * time.Minute
	liveSweepEvery = time.Minute
)

func main() {
	envPath := flag.String("env", ".env", "path to the .env file")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	flag.Parse()

	logger := utils.SetupLogger(*logLevel)

	config, err := utils.LoadConfig(*envPath, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	// Initialize Database
	if err := db.Init(config.Database.Driver, config.Database.DSN, config.Forum.BlockedAuthors, logger); err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}

	pool := chain.NewPool(config.Chain.Endpoints, chain.Options{
		Timeout:           config.Chain.Timeout,
		Attempts:          config.Chain.Attempts,
		RequestsPerSecond: config.Chain.RequestsPerSecond,
		ChainID:           config.Chain.ChainID,
		AddressPrefix:     config.Chain.AddressPrefix,
	}, logger)

	blockList, err := services.NewBlockListService(db.DB, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load block-list")
	}
	notifications := services.NewNotificationService(db.DB, logger)
	unread := services.NewUnreadCounter(notifications, pool.Default(), utils.GetCache(), logger)

	sched := services.SystemScheduler{}
	hub, err := live.NewHub(liveDocuments, liveIdle, func(src services.TreeSource) *services.VotePoller {
		return services.NewVotePoller(src, live.RenderVoteFragment, sched, config.Live.PollInterval, logger)
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create live hub")
	}

	deps := &handlers.Deps{
		Config: config,
		Nodes:  handlers.PoolNodes(pool),
		Hub:    hub,
		Publisher: services.NewPublisher(services.PublisherConfig{
			App:               "blurtbb/" + config.App.Version,
			MaxAcceptedPayout: config.Forum.MaxAcceptedPayout,
			Beneficiary:       config.Forum.Beneficiary,
			BeneficiaryWeight: config.Forum.BeneficiaryWeight,
		}, logger),
		BlockList:     blockList,
		Notifications: notifications,
		Unread:        unread,
		Scheduler:     sched,
		Logger:        logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go hub.Run(ctx, liveSweepEvery)
	go unread.Run(ctx)

	// Initialize Gin
	if *logLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	// Setup Sessions
	secret := config.Server.SessionSecret
	if secret == "" {
		logger.Warn("SESSION_SECRET is not set, using an insecure default")
		secret = "blurtbb_secret_change_me"
	}
	r.Use(session.Middleware(session.NewStore(secret, config.Server.SessionCipher)))

	// Load Templates using Multitemplate to avoid collision and allow handler names
	r.HTMLRender = loadTemplates(config.Server.TemplatesDir)

	// Static Assets
	r.Static("/static", config.Server.StaticDir)

	// Middleware
	r.Use(middleware.LoadSession(models.DefaultSettings(config.Chain.DefaultEndpoint()), logger))
	r.Use(middleware.LoadUnreadCount(unread))

	router.RegisterRoutes(r, deps)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		// submissions wait for the chain inside the request
		WriteTimeout: services.SubmitBudget(config.Live.SubmitInterval, config.Live.SubmitAttempts) + 30*time.Second,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"addr":    srv.Addr,
			"version": config.App.Version,
		}).Infof("%s server starting", config.App.Name)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed")
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Graceful shutdown failed")
	}
	hub.Close()
}

func loadTemplates(templatesDir string) multitemplate.Renderer {
	r := multitemplate.NewRenderer()

	layouts, err := filepath.Glob(templatesDir + "/layouts/*.html")
	if err != nil {
		panic(err)
	}

	components, err := filepath.Glob(templatesDir + "/components/*.html")
	if err != nil {
		panic(err)
	}

	// Helper to assemble files
	assemble := func(view string) []string {
		files := make([]string, 0, len(layouts)+len(components)+1)
		files = append(files, layouts...)
		files = append(files, components...)
		files = append(files, view)
		return files
	}

	// FuncMap
	funcMap := template.FuncMap{
		"dict": func(values ...interface{}) (map[string]interface{}, error) {
			if len(values)%2 != 0 {
				return nil, fmt.Errorf("invalid dict call")
			}
			dict := make(map[string]interface{}, len(values)/2)
			for i := 0; i < len(values); i += 2 {
				key, ok := values[i].(string)
				if !ok {
					return nil, fmt.Errorf("dict keys must be strings")
				}
				dict[key] = values[i+1]
			}
			return dict, nil
		},
		"add": func(a, b int) int {
			return a + b
		},
		"sub": func(a, b int) int {
			return a - b
		},
		"timeAgo": func(t interface{}) string {
			var timeVal time.Time
			switch v := t.(type) {
			case time.Time:
				timeVal = v
			case models.ChainTime:
				timeVal = v.Time
			default:
				return ""
			}
			return timeAgo(time.Since(timeVal))
		},
		"postURL":    services.PostURL,
		"contentKey": models.ContentKey,
		"markdown":   utils.RenderMarkdown,
		"excerpt":    utils.Excerpt,
		"urlquery": func(s string) string {
			return url.QueryEscape(s)
		},
	}

	for _, view := range []string{
		"main.html",
		"category.html",
		"post.html",
		"compose.html",
		"profile.html",
		"notifications.html",
		"login.html",
		"settings.html",
		"error.html",
	} {
		r.AddFromFilesFuncs(view, funcMap, assemble(templatesDir+"/views/"+view)...)
	}

	return r
}

func timeAgo(d time.Duration) string {
	seconds := int(d.Seconds())
	switch {
	case seconds < 60:
		return "just now"
	case seconds < 3600:
		return plural(seconds/60, "minute")
	case seconds < 86400:
		return plural(seconds/3600, "hour")
	case seconds < 2592000:
		return plural(seconds/86400, "day")
	case seconds < 31536000:
		return plural(seconds/2592000, "month")
	}
	return plural(seconds/31536000, "year")
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit + " ago"
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}
