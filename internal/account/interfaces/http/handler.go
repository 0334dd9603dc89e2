package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/logging"
	"github.com/wyfcoding/pkg/response"

	"github.com/wyfcoding/predictionmarket/internal/account/application"
)

// AccountHandler 负责处理账户相关的 HTTP 请求
type AccountHandler struct {
	service *application.AccountService
}

// NewAccountHandler 创建 HTTP 处理器
func NewAccountHandler(service *application.AccountService) *AccountHandler {
	return &AccountHandler{service: service}
}

// RegisterRoutes 注册路由
func (h *AccountHandler) RegisterRoutes(router *gin.RouterGroup) {
	api := router.Group("/api/v1/accounts")
	{
		api.GET("/:user_id", h.GetAccount)
		api.POST("/:user_id/deposit", h.Deposit)
	}
}

// GetAccount 查询账户（含余额与连胜状态）
func (h *AccountHandler) GetAccount(c *gin.Context) {
	userID := c.Param("user_id")
	account, err := h.service.GetAccount(c.Request.Context(), userID)
	if err != nil {
		logging.Error(c.Request.Context(), "Failed to get account", "user_id", userID, "error", err)
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
		return
	}
	response.Success(c, account)
}

// DepositRequest 充值请求
type DepositRequest struct {
	Amount string `json:"amount" binding:"required"`
}

// Deposit 充值积分
func (h *AccountHandler) Deposit(c *gin.Context) {
	userID := c.Param("user_id")
	var req DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, err.Error(), "")
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid amount", "")
		return
	}

	account, err := h.service.Deposit(c.Request.Context(), userID, amount)
	if err != nil {
		logging.Error(c.Request.Context(), "Failed to deposit", "user_id", userID, "error", err)
		response.ErrorWithStatus(c, http.StatusInternalServerError, err.Error(), "")
		return
	}
	response.Success(c, account)
}
