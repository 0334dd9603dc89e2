package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/pkg/logging"
	"github.com/wyfcoding/pkg/response"

	"github.com/wyfcoding/predictionmarket/internal/round/application"
)

// RoundHandler 负责处理回合查询相关的 HTTP 请求
type RoundHandler struct {
	query *application.RoundQueryService
}

// NewRoundHandler 创建 HTTP 处理器
func NewRoundHandler(query *application.RoundQueryService) *RoundHandler {
	return &RoundHandler{query: query}
}

// RegisterRoutes 注册路由
func (h *RoundHandler) RegisterRoutes(router *gin.RouterGroup) {
	api := router.Group("/api/v1/rounds")
	{
		api.GET("/current", h.Current)
		api.GET("/history", h.History)
	}
}

// Current 当前回合快照
func (h *RoundHandler) Current(c *gin.Context) {
	category := c.Query("category")
	if category == "" {
		response.ErrorWithStatus(c, http.StatusBadRequest, "category is required", "")
		return
	}

	snapshot, err := h.query.Current(c.Request.Context(), category)
	if err != nil {
		logging.Error(c.Request.Context(), "Failed to get current round", "category", category, "error", err)
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
		return
	}
	if snapshot == nil {
		response.ErrorWithStatus(c, http.StatusNotFound, "no active round", "")
		return
	}
	response.Success(c, snapshot)
}

// History 已结算回合历史
func (h *RoundHandler) History(c *gin.Context) {
	category := c.Query("category")
	if category == "" {
		response.ErrorWithStatus(c, http.StatusBadRequest, "category is required", "")
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	items, total, err := h.query.History(c.Request.Context(), category, page, pageSize)
	if err != nil {
		logging.Error(c.Request.Context(), "Failed to get round history", "category", category, "error", err)
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
		return
	}
	response.Success(c, gin.H{"rounds": items, "total": total, "page": page, "page_size": pageSize})
}
