package api

import (
	"context"
	"net/http"
	"strings"

	"GamePriceSync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type RateResolver interface {
	GetRate(ctx context.Context, base, quote string) (float64, error)
	RefreshRates(ctx context.Context) service.RefreshSummary
}

type FXHandler struct {
	rates  RateResolver
	logger *logrus.Logger
}

func NewFXHandler(rates RateResolver, logger *logrus.Logger) *FXHandler {
	return &FXHandler{rates: rates, logger: logger}
}

// GetRate GET /api/fx/rate?base=USD&quote=EUR
func (h *FXHandler) GetRate(c *gin.Context) {
	base := strings.ToUpper(strings.TrimSpace(c.Query("base")))
	quote := strings.ToUpper(strings.TrimSpace(c.Query("quote")))
	if base == "" || quote == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "base and quote are required"})
		return
	}
	rate, err := h.rates.GetRate(c.Request.Context(), base, quote)
	if err != nil {
		fail(c, h.logger, "GetRate", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"base": base, "quote": quote, "rate": rate})
}

// Refresh POST /api/fx/refresh
// 失败比例超过阈值时 alert=true，HTTP 状态仍为 200
func (h *FXHandler) Refresh(c *gin.Context) {
	c.JSON(http.StatusOK, h.rates.RefreshRates(c.Request.Context()))
}
