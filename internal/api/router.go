package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

// Middleware 公共中间件：CORS（origins 为空时允许全部来源）与响应 gzip
func Middleware(origins []string) []gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return []gin.HandlerFunc{cors.New(cfg), gzip.Gzip(gzip.DefaultCompression)}
}

// Handlers 各业务 handler，nil 的分组不注册
type Handlers struct {
	Catalog *CatalogHandler
	Prices  *PriceHandler
	FX      *FXHandler
}

// RegisterRoutes 注册 /api 下全部业务路由
func RegisterRoutes(r gin.IRouter, h Handlers) {
	g := r.Group("/api")
	if h.Catalog != nil {
		g.POST("/import/run", h.Catalog.RunImport)
		g.POST("/titles/:id/aggregate", h.Catalog.AggregateTitle)
	}
	if h.Prices != nil {
		g.POST("/games/:id/prices/refresh", h.Prices.Refresh)
		g.GET("/games/:id/prices/lowest", h.Prices.Lowest)
		g.GET("/games/:id/prices/compare", h.Prices.Compare)
		g.GET("/games/:id/prices/trend", h.Prices.Trend)
		g.GET("/games/:id/prices/display", h.Prices.Display)
	}
	if h.FX != nil {
		g.GET("/fx/rate", h.FX.GetRate)
		g.POST("/fx/refresh", h.FX.Refresh)
	}
}
