package query

import (
	"errors"
	"net/http"
	"time"

	"github.com/RoofStorm/tiger-engagement/internal/model"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// defaultWindow applies when the caller omits from.
const defaultWindow = 7 * 24 * time.Hour

type Handler struct {
	service *Service
	logger  *zap.Logger
	now     func() time.Time
}

func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
		now:     time.Now,
	}
}

func (h *Handler) Register(r gin.IRouter) {
	r.GET("/analytics/zones", h.GetZoneStats)
}

// GetZoneStats serves ?from=&to=&page=&granularity= with RFC3339 bounds.
func (h *Handler) GetZoneStats(c *gin.Context) {
	h.logger.Debug("GetZoneStats called",
		zap.String("from", c.Query("from")),
		zap.String("to", c.Query("to")),
		zap.String("page", c.Query("page")),
	)

	to := h.now().UTC()
	if raw := c.Query("to"); raw != "" {
		parsed, err := model.ParseTimestamp(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, model.Envelope[any]{Error: "invalid to timestamp"})
			return
		}
		to = parsed
	}
	from := to.Add(-defaultWindow)
	if raw := c.Query("from"); raw != "" {
		parsed, err := model.ParseTimestamp(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, model.Envelope[any]{Error: "invalid from timestamp"})
			return
		}
		from = parsed
	}

	stats, err := h.service.GetZoneStats(c.Request.Context(), ZoneStatsRequest{
		From:        from,
		To:          to,
		Page:        c.Query("page"),
		Granularity: Granularity(c.Query("granularity")),
	})
	switch {
	case errors.Is(err, ErrInvalidRange), errors.Is(err, ErrInvalidGranularity):
		c.JSON(http.StatusBadRequest, model.Envelope[any]{Error: err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, model.Envelope[any]{Error: "failed to get zone stats"})
	default:
		c.JSON(http.StatusOK, model.Envelope[[]*ZoneStat]{Success: true, Data: stats})
	}
}
