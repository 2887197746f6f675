package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"courier-sync/internal/parcel/model"
	"courier-sync/internal/parcel/service"
	appErrors "courier-sync/pkg/errors"
	"courier-sync/pkg/utils"
)

type ParcelHandler struct {
	service *service.Service
}

func NewParcelHandler(svc *service.Service) *ParcelHandler {
	return &ParcelHandler{service: svc}
}

func (h *ParcelHandler) RegisterRoutes(router *gin.RouterGroup) {
	parcels := router.Group("/parcels")
	{
		parcels.GET("/my", h.ListMyParcels)
		parcels.GET("/track/:code", h.GetByTrackingCode)
		parcels.GET("/:id", h.GetParcel)
		parcels.POST("/:id/status", h.UpdateStatus)
	}
}

func (h *ParcelHandler) RegisterAgentRoutes(router *gin.RouterGroup) {
	router.GET("/agent/parcels", h.ListAssignedParcels)
}

func (h *ParcelHandler) RegisterAdminRoutes(router *gin.RouterGroup) {
	router.GET("/parcels", h.ListAllParcels)
}

func (h *ParcelHandler) ListMyParcels(c *gin.Context) {
	customerID, ok := currentUserID(c)
	if !ok {
		return
	}

	req, ok := bindListRequest(c)
	if !ok {
		return
	}

	parcels, total, err := h.service.ListForCustomer(c.Request.Context(), customerID, req)
	if err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list parcels")
		return
	}

	utils.SuccessResponseWithMeta(c, http.StatusOK, "Parcels retrieved", parcels,
		utils.BuildPaginationMeta(req.Page, req.Limit, total))
}

func (h *ParcelHandler) ListAssignedParcels(c *gin.Context) {
	agentID, ok := currentUserID(c)
	if !ok {
		return
	}

	req, ok := bindListRequest(c)
	if !ok {
		return
	}

	parcels, total, err := h.service.ListForAgent(c.Request.Context(), agentID, req)
	if err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list parcels")
		return
	}

	utils.SuccessResponseWithMeta(c, http.StatusOK, "Parcels retrieved", parcels,
		utils.BuildPaginationMeta(req.Page, req.Limit, total))
}

func (h *ParcelHandler) ListAllParcels(c *gin.Context) {
	req, ok := bindListRequest(c)
	if !ok {
		return
	}

	parcels, total, err := h.service.ListAll(c.Request.Context(), req)
	if err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list parcels")
		return
	}

	utils.SuccessResponseWithMeta(c, http.StatusOK, "Parcels retrieved", parcels,
		utils.BuildPaginationMeta(req.Page, req.Limit, total))
}

func (h *ParcelHandler) GetParcel(c *gin.Context) {
	parcelID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid parcel ID")
		return
	}

	detail, err := h.service.GetDetail(c.Request.Context(), parcelID)
	if errors.Is(err, appErrors.ErrParcelNotFound) {
		utils.ErrorResponse(c, http.StatusNotFound, "Parcel not found")
		return
	}
	if err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to load parcel")
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Parcel retrieved", detail)
}

func (h *ParcelHandler) GetByTrackingCode(c *gin.Context) {
	code := c.Param("code")
	if code == "" {
		utils.ErrorResponse(c, http.StatusBadRequest, "Tracking code required")
		return
	}

	detail, err := h.service.GetDetailByTrackingCode(c.Request.Context(), code)
	if errors.Is(err, appErrors.ErrParcelNotFound) {
		utils.ErrorResponse(c, http.StatusNotFound, "Parcel not found")
		return
	}
	if err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to load parcel")
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Parcel retrieved", detail)
}

func (h *ParcelHandler) UpdateStatus(c *gin.Context) {
	parcelID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid parcel ID")
		return
	}

	var req service.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	actor := currentActor(c)

	parcel, entry, err := h.service.UpdateStatus(c.Request.Context(), parcelID, req, actor)
	if err != nil {
		writeTransitionError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Status updated", gin.H{
		"parcel":  parcel,
		"history": entry,
	})
}

func writeTransitionError(c *gin.Context, err error) {
	if errors.Is(err, appErrors.ErrParcelNotFound) {
		utils.ErrorResponse(c, http.StatusNotFound, "Parcel not found")
		return
	}
	if appErr, ok := appErrors.AsAppError(err); ok {
		switch appErr.Code {
		case appErrors.CodeIllegalTransition:
			utils.ErrorResponse(c, http.StatusConflict, appErr.Message)
			return
		case appErrors.CodeMissingRequiredField, appErrors.CodeValidationError:
			utils.ErrorResponse(c, http.StatusBadRequest, appErr.Message)
			return
		}
	}
	utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to update status")
}

func bindListRequest(c *gin.Context) (service.ListRequest, bool) {
	var req service.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid query parameters")
		return req, false
	}
	return req, true
}

func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	raw, exists := c.Get("userID")
	if !exists {
		utils.ErrorResponse(c, http.StatusUnauthorized, "User ID not found in context")
		return uuid.Nil, false
	}
	userID, ok := raw.(uuid.UUID)
	if !ok {
		utils.ErrorResponse(c, http.StatusUnauthorized, "Invalid user ID format")
		return uuid.Nil, false
	}
	return userID, true
}

func currentActor(c *gin.Context) *model.AgentRef {
	raw, exists := c.Get("userID")
	if !exists {
		return nil
	}
	userID, ok := raw.(uuid.UUID)
	if !ok {
		return nil
	}

	actor := &model.AgentRef{ID: userID}
	if email, exists := c.Get("email"); exists {
		if s, ok := email.(string); ok {
			actor.Email = s
		}
	}
	return actor
}
