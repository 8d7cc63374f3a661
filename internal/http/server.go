package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"robot_crypt/internal/domain"
	"robot_crypt/internal/orchestrator"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Backend 状态接口依赖的协调器能力，*orchestrator.Service 实现了它
type Backend interface {
	Snapshot() orchestrator.View
	RunCycle(ctx context.Context) (domain.CycleSummary, error)
	ListTrades(ctx context.Context, limit int) ([]domain.ClosedTrade, error)
	ListCycles(ctx context.Context, page, pageSize int) ([]domain.CycleSummary, int, error)
}

type Handler struct {
	backend Backend
	timeout time.Duration
}

func NewRouter(backend Backend, timeout time.Duration) *gin.Engine {
	router := gin.Default()

	h := &Handler{
		backend: backend,
		timeout: timeout,
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", h.health)
		v1.GET("/stats", h.stats)
		v1.GET("/positions", h.listPositions)
		v1.GET("/trades", h.listTrades)
		v1.GET("/cycles", h.listCycles)
		v1.POST("/cycles/run", h.runCycle)
	}

	return router
}

func (h *Handler) health(c *gin.Context) {
	view := h.backend.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"time":       time.Now().UTC(),
		"strategy":   view.Strategy,
		"last_check": view.LastCheck,
		"last_cycle": view.LastCycle,
	})
}

// stats 运行统计与汇总报告
func (h *Handler) stats(c *gin.Context) {
	view := h.backend.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"strategy": view.Strategy,
		"stats":    view.Stats,
		"report":   view.Report,
		"params":   view.Params,
	})
}

func (h *Handler) listPositions(c *gin.Context) {
	view := h.backend.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"total":     len(view.Positions),
		"positions": view.Positions,
		"pending":   view.Pending,
	})
}

func (h *Handler) listTrades(c *gin.Context) {
	limit := queryInt(c, "limit", 50, 500)

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	trades, err := h.backend.ListTrades(ctx, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total":  len(trades),
		"trades": trades,
	})
}

// listCycles 分页查询历史周期
func (h *Handler) listCycles(c *gin.Context) {
	page := queryInt(c, "page", 1, 0)
	pageSize := queryInt(c, "page_size", 15, 100)

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	cycles, total, err := h.backend.ListCycles(ctx, page, pageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	totalPages := (total + pageSize - 1) / pageSize

	c.JSON(http.StatusOK, gin.H{
		"cycles":      cycles,
		"total":       total,
		"page":        page,
		"page_size":   pageSize,
		"total_pages": totalPages,
	})
}

// runCycle 手动触发一轮，与定时器重叠时返回 409
func (h *Handler) runCycle(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	summary, err := h.backend.RunCycle(ctx)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, summary)
	case errors.Is(err, orchestrator.ErrCycleRunning):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error(), "cycle": summary})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "cycle": summary})
	}
}

// queryInt 解析正整数参数，max 为 0 表示不设上限
func queryInt(c *gin.Context, key string, fallback, max int) int {
	v := c.Query(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 || (max > 0 && n > max) {
		return fallback
	}
	return n
}
