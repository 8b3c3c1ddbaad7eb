package api

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"

	"GamePriceSync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type Importer interface {
	Run(ctx context.Context, dir string) (*service.ImportReport, error)
}

type TitleAggregator interface {
	Aggregate(ctx context.Context, titleID uint64) (*service.TitleSummary, error)
}

// CatalogHandler CSV 导入与 title 重新聚合
type CatalogHandler struct {
	importer   Importer
	aggregator TitleAggregator
	importRoot string
	logger     *logrus.Logger
}

// NewCatalogHandler importRoot 为导入根目录，请求只能指定其下的子目录
func NewCatalogHandler(importer Importer, aggregator TitleAggregator, importRoot string, logger *logrus.Logger) *CatalogHandler {
	return &CatalogHandler{importer: importer, aggregator: aggregator, importRoot: importRoot, logger: logger}
}

// ImportRequest 可选 body
type ImportRequest struct {
	Subdir string `json:"subdir"`
}

// RunImport POST /api/import/run  body: {"subdir":"2024-06"}（可省略）
func (h *CatalogHandler) RunImport(c *gin.Context) {
	var req ImportRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}
	}
	dir := h.importRoot
	if sub := strings.TrimSpace(req.Subdir); sub != "" {
		clean := filepath.Clean(sub)
		if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "subdir must stay inside the import directory"})
			return
		}
		dir = filepath.Join(h.importRoot, clean)
	}

	report, err := h.importer.Run(c.Request.Context(), dir)
	if err != nil {
		fail(c, h.logger, "RunImport", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// AggregateTitle POST /api/titles/:id/aggregate
func (h *CatalogHandler) AggregateTitle(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	sum, err := h.aggregator.Aggregate(c.Request.Context(), id)
	if err != nil {
		fail(c, h.logger, "AggregateTitle", err)
		return
	}
	c.JSON(http.StatusOK, sum)
}
