package ingest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/RoofStorm/tiger-engagement/internal/model"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"
)

const requestTimeout = 15 * time.Second

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

func (h *Handler) Register(r gin.IRouter) {
	r.POST("/analytics/track", h.Track)
	r.POST("/analytics/corners", h.TrackCorners)
}

// Track accepts a TrackBatch. Beacons arrive as text/plain, so the body is
// decoded as JSON whatever the content type says.
func (h *Handler) Track(c *gin.Context) {
	var batch model.TrackBatch
	if err := c.ShouldBindWith(&batch, binding.JSON); err != nil {
		h.logger.Debug("invalid track body", zap.Error(err))
		c.JSON(http.StatusBadRequest, model.Envelope[any]{Error: "invalid request body"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	result, err := h.service.TrackBatch(ctx, batch.Events, c.ClientIP())
	h.respond(c, result, err)
}

func (h *Handler) TrackCorners(c *gin.Context) {
	var batch model.CornerBatch
	if err := c.ShouldBindWith(&batch, binding.JSON); err != nil {
		c.JSON(http.StatusBadRequest, model.Envelope[any]{Error: "invalid request body"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	result, err := h.service.TrackCorners(ctx, batch.Events, c.ClientIP())
	h.respond(c, result, err)
}

func (h *Handler) respond(c *gin.Context, result Result, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusOK, model.Envelope[Result]{Success: true, Data: result})
	case errors.Is(err, ErrEmptyBatch), errors.Is(err, ErrNoValidEvents):
		c.JSON(http.StatusBadRequest, model.Envelope[Result]{Data: result, Error: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, model.Envelope[any]{Error: "failed to record analytics events"})
	}
}
