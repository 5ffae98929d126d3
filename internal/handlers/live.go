package handlers

import (
	"net/http"
	"strconv"

	"blurtbb/internal/live"

	"github.com/gin-gonic/gin"
)

type LiveHandler struct {
	*Deps
}

func NewLiveHandler(d *Deps) *LiveHandler {
	return &LiveHandler{Deps: d}
}

// Changes answers the page script with the fragments changed after
// "since". A page whose document is gone should stop asking.
func (h *LiveHandler) Changes(c *gin.Context) {
	since, err := strconv.ParseUint(c.DefaultQuery("since", "0"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad since"})
		return
	}
	doc, ok := h.Hub.Document(c.Param("doc"))
	if !ok {
		c.JSON(http.StatusGone, gin.H{"gone": true})
		return
	}
	changes, version, gone := doc.Changes(since)
	if gone {
		c.JSON(http.StatusGone, gin.H{"gone": true, "version": version})
		return
	}
	if changes == nil {
		changes = []live.Change{}
	}
	c.JSON(http.StatusOK, gin.H{"version": version, "changes": changes})
}
