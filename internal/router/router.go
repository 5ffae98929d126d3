package router

import (
	"blurtbb/internal/handlers"
	"blurtbb/internal/middleware"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.Engine, d *handlers.Deps) {
	// Handlers
	forumHandler := handlers.NewForumHandler(d)
	composeHandler := handlers.NewComposeHandler(d)
	profileHandler := handlers.NewProfileHandler(d)
	notificationHandler := handlers.NewNotificationHandler(d)
	dispatcher := handlers.NewDispatcher(forumHandler, composeHandler, profileHandler, notificationHandler)
	authHandler := handlers.NewAuthHandler(d)
	voteHandler := handlers.NewVoteHandler(d)
	settingsHandler := handlers.NewSettingsHandler(d)
	liveHandler := handlers.NewLiveHandler(d)
	adminHandler := handlers.NewAdminHandler(d)
	healthHandler := handlers.NewHealthHandler(d)

	// Polled by the page script and by monitoring; not navigations
	r.GET("/healthz", healthHandler.Check)
	r.GET("/live/:doc", liveHandler.Changes)
	r.POST("/vote", voteHandler.Vote)

	// Page navigations leave the current live page first
	pages := r.Group("/")
	pages.Use(middleware.LeaveLivePage(d.Hub))
	{
		pages.GET("/", dispatcher.Dispatch) // ?post= ?edit= ?new_topic= ?category= ?profile= ?notifications

		pages.GET("/login", authHandler.ShowLogin)
		pages.POST("/login", authHandler.Login)
		pages.POST("/logout", authHandler.Logout)

		pages.GET("/settings", settingsHandler.Show)
		pages.POST("/settings", settingsHandler.Update)
	}

	authorized := pages.Group("/")
	authorized.Use(middleware.AuthRequired())
	{
		authorized.POST("/lock", authHandler.Lock)
		authorized.POST("/unlock", authHandler.Unlock)

		authorized.POST("/submit/topic", composeHandler.CreateTopic)
		authorized.POST("/submit/reply", composeHandler.CreateReply)
		authorized.POST("/submit/edit", composeHandler.Update)
		authorized.POST("/submit/delete", composeHandler.Delete)

		authorized.POST("/notifications/read", notificationHandler.ReadAll)
	}

	admin := pages.Group("/admin")
	admin.Use(middleware.AdminRequired(d.Config.Forum.IsAdmin))
	{
		admin.POST("/blocklist", adminHandler.Block)
		admin.POST("/blocklist/remove", adminHandler.Unblock)
	}
}
