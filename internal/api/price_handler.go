package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"GamePriceSync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type PriceQuerier interface {
	RefreshPrices(ctx context.Context, gameID uint64, force bool) (*service.RefreshResult, error)
	LowestPrice(ctx context.Context, gameID uint64, currency string) (*service.PriceView, error)
	ComparePrices(ctx context.Context, gameID uint64, currency string) (*service.PriceComparison, error)
	PriceTrend(ctx context.Context, gameID uint64, retailer, country string, since time.Time) (*service.PriceTrend, error)
	DisplayPrices(ctx context.Context, gameID uint64, target string) ([]service.DisplayPrice, error)
}

// PriceHandler 游戏价格刷新与查询
type PriceHandler struct {
	prices PriceQuerier
	logger *logrus.Logger
}

func NewPriceHandler(prices PriceQuerier, logger *logrus.Logger) *PriceHandler {
	return &PriceHandler{prices: prices, logger: logger}
}

// Refresh POST /api/games/:id/prices/refresh?force=true
// 部分零售商失败仍返回 200，失败明细在 errors 中
func (h *PriceHandler) Refresh(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	force, _ := strconv.ParseBool(c.DefaultQuery("force", "false"))
	res, err := h.prices.RefreshPrices(c.Request.Context(), id, force)
	if err != nil {
		fail(c, h.logger, "RefreshPrices", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Lowest GET /api/games/:id/prices/lowest?currency=USD
func (h *PriceHandler) Lowest(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	currency := c.DefaultQuery("currency", "USD")
	low, err := h.prices.LowestPrice(c.Request.Context(), id, currency)
	if err != nil {
		fail(c, h.logger, "LowestPrice", err)
		return
	}
	if low == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no known price in " + currency})
		return
	}
	c.JSON(http.StatusOK, low)
}

// Compare GET /api/games/:id/prices/compare?currency=USD
func (h *PriceHandler) Compare(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	cmp, err := h.prices.ComparePrices(c.Request.Context(), id, c.DefaultQuery("currency", "USD"))
	if err != nil {
		fail(c, h.logger, "ComparePrices", err)
		return
	}
	c.JSON(http.StatusOK, cmp)
}

// Trend GET /api/games/:id/prices/trend?retailer=steam&country=US&days=30
func (h *PriceHandler) Trend(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var since time.Time
	if v := c.Query("days"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be a positive integer"})
			return
		}
		since = time.Now().UTC().AddDate(0, 0, -days)
	}
	trend, err := h.prices.PriceTrend(c.Request.Context(), id, c.Query("retailer"), c.Query("country"), since)
	if err != nil {
		fail(c, h.logger, "PriceTrend", err)
		return
	}
	c.JSON(http.StatusOK, trend)
}

// Display GET /api/games/:id/prices/display?currency=EUR
func (h *PriceHandler) Display(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	list, err := h.prices.DisplayPrices(c.Request.Context(), id, c.DefaultQuery("currency", "USD"))
	if err != nil {
		fail(c, h.logger, "DisplayPrices", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"game_id": id, "prices": list})
}
