package domain

import "fmt"

// DomainError 携带结构化原因码的业务错误，对外只暴露原因码与描述
type DomainError struct {
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewDomainError 创建业务错误
func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

var (
	// ErrPoolNotFound 流动性池不存在
	ErrPoolNotFound = NewDomainError("POOL_NOT_FOUND", "liquidity pool not found")
	// ErrInsufficientLiquidity 卖出会击穿储备下限
	ErrInsufficientLiquidity = NewDomainError("INSUFFICIENT_LIQUIDITY", "trade would breach reserve floor")
	// ErrInsufficientBalance 余额不足
	ErrInsufficientBalance = NewDomainError("INSUFFICIENT_BALANCE", "balance is not enough for this trade")
	// ErrInsufficientShares 可卖份额不足
	ErrInsufficientShares = NewDomainError("INSUFFICIENT_SHARES", "not enough open shares to sell")
	// ErrInvalidAmount 交易额超出限制
	ErrInvalidAmount = NewDomainError("INVALID_AMOUNT", "trade amount out of allowed range")
	// ErrInvalidShares 份额参数非法
	ErrInvalidShares = NewDomainError("INVALID_SHARES", "shares must be positive")
	// ErrRoundNotOpen 回合不在下注窗口内
	ErrRoundNotOpen = NewDomainError("ROUND_NOT_OPEN", "round is not open for trading")
	// ErrInvalidSide 方向参数非法
	ErrInvalidSide = NewDomainError("INVALID_SIDE", "side must be YES or NO")
)
