package notification

import (
	"errors"
	"net/http"

	"github.com/RoofStorm/tiger-engagement/internal/auth"
	"github.com/RoofStorm/tiger-engagement/internal/model"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handler struct {
	service *Service
	logger  *zap.Logger
}

func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts the routes on a group that already requires auth.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/notifications", h.List)
	r.PATCH("/notifications/:id/read", h.MarkRead)
}

func (h *Handler) List(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, model.Envelope[any]{Error: "unauthorized"})
		return
	}

	items, err := h.service.List(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.Envelope[any]{Error: "failed to load notifications"})
		return
	}
	c.JSON(http.StatusOK, model.Envelope[[]model.Notification]{Success: true, Data: items})
}

func (h *Handler) MarkRead(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, model.Envelope[any]{Error: "unauthorized"})
		return
	}

	err := h.service.MarkRead(c.Request.Context(), userID, c.Param("id"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, model.Envelope[any]{Success: true})
	case errors.Is(err, ErrNotificationNotFound):
		c.JSON(http.StatusNotFound, model.Envelope[any]{Error: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, model.Envelope[any]{Error: "failed to update notification"})
	}
}
