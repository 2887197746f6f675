package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"courier-sync/internal/storage/postgres"
	appErrors "courier-sync/pkg/errors"
	"courier-sync/pkg/utils"
)

type NotificationHandler struct {
	repo *postgres.NotificationRepository
}

func NewNotificationHandler(repo *postgres.NotificationRepository) *NotificationHandler {
	return &NotificationHandler{repo: repo}
}

func (h *NotificationHandler) RegisterRoutes(router *gin.RouterGroup) {
	notifications := router.Group("/notifications")
	{
		notifications.GET("", h.List)
		notifications.PATCH("/:id/read", h.MarkRead)
		notifications.PATCH("/read-all", h.MarkAllRead)
	}
}

type listNotificationsQuery struct {
	Page  int `form:"page"`
	Limit int `form:"limit"`
}

// notificationMeta extends the pagination envelope with the
// authoritative unread counter.
type notificationMeta struct {
	utils.PaginationMeta
	UnreadCount int `json:"unreadCount"`
}

func (h *NotificationHandler) List(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var query listNotificationsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid query parameters")
		return
	}

	items, total, unread, err := h.repo.ListByUser(c.Request.Context(), userID, query.Page, query.Limit)
	if err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list notifications")
		return
	}

	utils.SuccessResponseWithMeta(c, http.StatusOK, "Notifications retrieved", items, notificationMeta{
		PaginationMeta: utils.BuildPaginationMeta(query.Page, query.Limit, total),
		UnreadCount:    unread,
	})
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	notificationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid notification ID")
		return
	}

	unread, err := h.repo.MarkRead(c.Request.Context(), userID, notificationID)
	if errors.Is(err, appErrors.ErrNotificationNotFound) {
		utils.ErrorResponse(c, http.StatusNotFound, "Notification not found")
		return
	}
	if err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to mark notification read")
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Notification marked read", gin.H{
		"unreadCount": unread,
	})
}

func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	unread, err := h.repo.MarkAllRead(c.Request.Context(), userID)
	if err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to mark notifications read")
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "All notifications marked read", gin.H{
		"unreadCount": unread,
	})
}
