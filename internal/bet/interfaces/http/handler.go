package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/logging"
	"github.com/wyfcoding/pkg/response"

	accountdomain "github.com/wyfcoding/predictionmarket/internal/account/domain"
	"github.com/wyfcoding/predictionmarket/internal/bet/application"
	"github.com/wyfcoding/predictionmarket/internal/bet/domain"
)

// BetHandler 负责处理固定赔率投注相关的 HTTP 请求
type BetHandler struct {
	service *application.BetService
}

// NewBetHandler 创建 HTTP 处理器
func NewBetHandler(service *application.BetService) *BetHandler {
	return &BetHandler{service: service}
}

// RegisterRoutes 注册路由
func (h *BetHandler) RegisterRoutes(router *gin.RouterGroup) {
	api := router.Group("/api/v1/bets")
	{
		api.POST("", h.PlaceBet)
		api.GET("/:bet_id", h.GetBet)
		api.GET("", h.ListBets)
	}
}

// PlaceBetRequest 下注请求
type PlaceBetRequest struct {
	UserID    string `json:"user_id" binding:"required"`
	RoundID   int64  `json:"round_id" binding:"required"`
	Direction string `json:"direction" binding:"required"`
	Amount    string `json:"amount" binding:"required"`
}

// PlaceBet 下注
func (h *BetHandler) PlaceBet(c *gin.Context) {
	var req PlaceBetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid amount", "")
		return
	}

	dto, err := h.service.PlaceBet(c.Request.Context(), application.PlaceBetCommand{
		UserID:    req.UserID,
		RoundID:   req.RoundID,
		Direction: domain.Direction(req.Direction),
		Amount:    amount,
	})
	if err != nil {
		logging.Error(c.Request.Context(), "Failed to place bet",
			"user_id", req.UserID, "round_id", req.RoundID, "error", err)
		writeBetError(c, err)
		return
	}
	response.Success(c, dto)
}

// GetBet 查询单笔投注
func (h *BetHandler) GetBet(c *gin.Context) {
	betID := c.Param("bet_id")
	dto, err := h.service.GetBet(c.Request.Context(), betID)
	if err != nil {
		writeBetError(c, err)
		return
	}
	response.Success(c, dto)
}

// ListBets 用户投注历史
func (h *BetHandler) ListBets(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		response.ErrorWithStatus(c, http.StatusBadRequest, "user_id is required", "")
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	bets, pagination, err := h.service.ListUserBets(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		logging.Error(c.Request.Context(), "Failed to list bets", "user_id", userID, "error", err)
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
		return
	}
	response.Success(c, gin.H{"bets": bets, "pagination": pagination})
}

func writeBetError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrBetNotFound):
		response.ErrorWithStatus(c, http.StatusNotFound, err.Error(), "")
	case errors.Is(err, domain.ErrBettingClosed),
		errors.Is(err, domain.ErrConcurrencyConflict):
		response.ErrorWithStatus(c, http.StatusConflict, err.Error(), "")
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidDirection),
		errors.Is(err, accountdomain.ErrInsufficientBalance):
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
	default:
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
	}
}
