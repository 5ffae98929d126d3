package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	*Deps
}

func NewHealthHandler(d *Deps) *HealthHandler {
	return &HealthHandler{Deps: d}
}

func (h *HealthHandler) Check(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"app":       h.Config.App.Name,
		"version":   h.Config.App.Version,
		"endpoints": h.Nodes.Endpoints(),
	})
}
