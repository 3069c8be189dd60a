package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/tradepost/tradepost/internal/middleware"
	"github.com/tradepost/tradepost/internal/realtime"
	"github.com/tradepost/tradepost/pkg/errors"
	"github.com/tradepost/tradepost/pkg/response"
)

// RealtimeHandler upgrades authenticated requests to the event stream.
type RealtimeHandler struct {
	hub *realtime.Hub
}

// NewRealtimeHandler constructs a RealtimeHandler.
func NewRealtimeHandler(hub *realtime.Hub) *RealtimeHandler {
	return &RealtimeHandler{hub: hub}
}

// Stream serves the caller's websocket event feed.
func (h *RealtimeHandler) Stream(c *gin.Context) {
	userID := middleware.UserID(c)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}
	h.hub.Serve(userID, c.Writer, c.Request)
}
