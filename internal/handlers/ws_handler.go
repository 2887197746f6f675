package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"courier-sync/internal/config"
	"courier-sync/internal/realtime"
	"courier-sync/pkg/utils"
)

type WSHandler struct {
	hub *realtime.Hub
	cfg config.RealtimeConfig
}

func NewWSHandler(hub *realtime.Hub, cfg config.RealtimeConfig) *WSHandler {
	return &WSHandler{hub: hub, cfg: cfg}
}

func (h *WSHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/ws", h.Serve)
}

// Serve upgrades the request to a websocket session bound to the
// authenticated user.
func (h *WSHandler) Serve(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	role := ""
	if raw, exists := c.Get("role"); exists {
		if s, ok := raw.(string); ok {
			role = s
		}
	}

	if err := h.hub.ServeWS(c.Writer, c.Request, h.cfg, userID.String(), role); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Failed to establish realtime connection")
	}
}
