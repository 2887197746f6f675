package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"courier-sync/internal/parcel/service"
	appErrors "courier-sync/pkg/errors"
	"courier-sync/pkg/utils"
)

type TrackingHandler struct {
	service *service.Service
}

func NewTrackingHandler(svc *service.Service) *TrackingHandler {
	return &TrackingHandler{service: svc}
}

func (h *TrackingHandler) RegisterAgentRoutes(router *gin.RouterGroup) {
	router.POST("/agent/tracking", h.ReportFix)
}

// ReportFix accepts one GPS fix from the agent app and fans it out to
// live subscribers.
func (h *TrackingHandler) ReportFix(c *gin.Context) {
	agentID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req service.ReportFixRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	point, err := h.service.ReportFix(c.Request.Context(), agentID, req)
	if errors.Is(err, appErrors.ErrInvalidInput) {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid tracking fix")
		return
	}
	if errors.Is(err, appErrors.ErrParcelNotFound) {
		utils.ErrorResponse(c, http.StatusNotFound, "Parcel not found")
		return
	}
	if err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to record fix")
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, "Fix recorded", point)
}
