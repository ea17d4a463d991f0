package points

import (
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

func (h *Handler) Register(r gin.IRouter) {
	r.POST("/points/daily-login", h.ClaimDailyLogin)
}

func (h *Handler) ClaimDailyLogin(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, model.Envelope[any]{Error: "unauthorized"})
		return
	}

	reward, err := h.service.ClaimDailyLogin(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.Envelope[any]{Error: "failed to claim daily login"})
		return
	}
	c.JSON(http.StatusOK, model.Envelope[model.DailyLoginReward]{Success: true, Data: reward})
}
