package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/pkg/logging"
	"github.com/wyfcoding/pkg/response"

	"github.com/wyfcoding/predictionmarket/internal/position/application"
)

// PositionHandler 负责处理持仓查询相关的 HTTP 请求
type PositionHandler struct {
	query *application.PositionQueryService
}

// NewPositionHandler 创建 HTTP 处理器
func NewPositionHandler(query *application.PositionQueryService) *PositionHandler {
	return &PositionHandler{query: query}
}

// RegisterRoutes 注册路由
func (h *PositionHandler) RegisterRoutes(router *gin.RouterGroup) {
	api := router.Group("/api/v1/positions")
	{
		api.GET("", h.ListPositions)
	}
}

// ListPositions 用户持仓；带 round_id 时只看该回合，否则分页看全部
func (h *PositionHandler) ListPositions(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		response.ErrorWithStatus(c, http.StatusBadRequest, "user_id is required", "")
		return
	}

	if raw := c.Query("round_id"); raw != "" {
		roundID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			response.ErrorWithStatus(c, http.StatusBadRequest, "invalid round_id", "")
			return
		}
		positions, err := h.query.ListByUserAndRound(c.Request.Context(), userID, roundID)
		if err != nil {
			logging.Error(c.Request.Context(), "Failed to list round positions",
				"user_id", userID, "round_id", roundID, "error", err)
			response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
			return
		}
		response.Success(c, gin.H{"positions": positions})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	positions, total, err := h.query.ListByUser(c.Request.Context(), userID, pageSize, (page-1)*pageSize)
	if err != nil {
		logging.Error(c.Request.Context(), "Failed to list positions", "user_id", userID, "error", err)
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
		return
	}
	response.Success(c, gin.H{"positions": positions, "total": total, "page": page, "page_size": pageSize})
}
