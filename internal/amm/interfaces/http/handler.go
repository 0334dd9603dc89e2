package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/logging"
	"github.com/wyfcoding/pkg/response"

	"github.com/wyfcoding/predictionmarket/internal/amm/application"
	"github.com/wyfcoding/predictionmarket/internal/amm/domain"
)

// AMMHandler 负责处理做市交易相关的 HTTP 请求
type AMMHandler struct {
	cmd   *application.PoolCommandService
	query *application.PoolQueryService
}

// NewAMMHandler 创建 HTTP 处理器
func NewAMMHandler(cmd *application.PoolCommandService, query *application.PoolQueryService) *AMMHandler {
	return &AMMHandler{cmd: cmd, query: query}
}

// RegisterRoutes 注册路由
func (h *AMMHandler) RegisterRoutes(router *gin.RouterGroup) {
	api := router.Group("/api/v1/amm")
	{
		api.GET("/pools/:round_id", h.GetPool)
		api.GET("/pools/:round_id/quote", h.Quote)
		api.GET("/pools/:round_id/trades", h.ListTrades)
		api.POST("/trades/buy", h.Buy)
		api.POST("/trades/sell", h.Sell)
	}
}

// GetPool 池快照
func (h *AMMHandler) GetPool(c *gin.Context) {
	roundID, ok := parseRoundID(c)
	if !ok {
		return
	}
	snapshot, err := h.query.GetSnapshot(c.Request.Context(), roundID)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	response.Success(c, snapshot)
}

// Quote 报价预览，action=buy 时 value 为金额，action=sell 时为份额
func (h *AMMHandler) Quote(c *gin.Context) {
	roundID, ok := parseRoundID(c)
	if !ok {
		return
	}
	side := domain.Side(c.Query("side"))
	value, err := decimal.NewFromString(c.Query("value"))
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid value", "")
		return
	}

	var quote *application.QuoteDTO
	switch c.DefaultQuery("action", "buy") {
	case "buy":
		quote, err = h.query.QuoteBuy(c.Request.Context(), roundID, side, value)
	case "sell":
		quote, err = h.query.QuoteSell(c.Request.Context(), roundID, side, value)
	default:
		response.ErrorWithStatus(c, http.StatusBadRequest, "action must be buy or sell", "")
		return
	}
	if err != nil {
		writeDomainError(c, err)
		return
	}
	response.Success(c, quote)
}

// ListTrades 回合成交流水
func (h *AMMHandler) ListTrades(c *gin.Context) {
	roundID, ok := parseRoundID(c)
	if !ok {
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

	trades, total, err := h.query.ListTrades(c.Request.Context(), roundID, pageSize, (page-1)*pageSize)
	if err != nil {
		logging.Error(c.Request.Context(), "Failed to list trades", "round_id", roundID, "error", err)
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
		return
	}
	response.Success(c, gin.H{"trades": trades, "total": total, "page": page, "page_size": pageSize})
}

// TradeRequest 交易请求
type TradeRequest struct {
	UserID  string `json:"user_id" binding:"required"`
	RoundID int64  `json:"round_id" binding:"required"`
	Side    string `json:"side" binding:"required"`
	// 买入时为金额，卖出时为份额
	Value string `json:"value" binding:"required"`
}

// Buy 买入
func (h *AMMHandler) Buy(c *gin.Context) {
	req, value, ok := bindTradeRequest(c)
	if !ok {
		return
	}
	result, err := h.cmd.ExecuteBuy(c.Request.Context(), application.ExecuteBuyCommand{
		UserID:  req.UserID,
		RoundID: req.RoundID,
		Side:    domain.Side(req.Side),
		Amount:  value,
	})
	if err != nil {
		logging.Error(c.Request.Context(), "Buy failed",
			"user_id", req.UserID, "round_id", req.RoundID, "error", err)
		writeDomainError(c, err)
		return
	}
	response.Success(c, result)
}

// Sell 卖出
func (h *AMMHandler) Sell(c *gin.Context) {
	req, value, ok := bindTradeRequest(c)
	if !ok {
		return
	}
	result, err := h.cmd.ExecuteSell(c.Request.Context(), application.ExecuteSellCommand{
		UserID:  req.UserID,
		RoundID: req.RoundID,
		Side:    domain.Side(req.Side),
		Shares:  value,
	})
	if err != nil {
		logging.Error(c.Request.Context(), "Sell failed",
			"user_id", req.UserID, "round_id", req.RoundID, "error", err)
		writeDomainError(c, err)
		return
	}
	response.Success(c, result)
}

func bindTradeRequest(c *gin.Context) (*TradeRequest, decimal.Decimal, bool) {
	var req TradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return nil, decimal.Zero, false
	}
	value, err := decimal.NewFromString(req.Value)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid value", "")
		return nil, decimal.Zero, false
	}
	return &req, value, true
}

func parseRoundID(c *gin.Context) (int64, bool) {
	roundID, err := strconv.ParseInt(c.Param("round_id"), 10, 64)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid round_id", "")
		return 0, false
	}
	return roundID, true
}

// writeDomainError 业务错误到 HTTP 状态码的映射
func writeDomainError(c *gin.Context, err error) {
	var de *domain.DomainError
	switch {
	case errors.Is(err, domain.ErrPoolNotFound):
		response.ErrorWithStatus(c, http.StatusNotFound, err.Error(), "")
	case errors.Is(err, application.ErrConcurrencyConflict):
		response.ErrorWithStatus(c, http.StatusConflict, err.Error(), "")
	case errors.Is(err, domain.ErrRoundNotOpen):
		response.ErrorWithStatus(c, http.StatusConflict, err.Error(), "")
	case errors.As(err, &de):
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
	default:
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
	}
}
