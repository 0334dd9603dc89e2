package application

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/predictionmarket/internal/amm/domain"
	"github.com/wyfcoding/predictionmarket/pkg/utils"
)

// ---- 内存假件，WithTx 用互斥锁模拟池行锁的串行化 ----

type fakePoolRepo struct {
	mu    sync.Mutex
	pools map[int64]*domain.Pool
}

func newFakePoolRepo() *fakePoolRepo {
	return &fakePoolRepo{pools: make(map[int64]*domain.Pool)}
}

func (f *fakePoolRepo) Create(ctx context.Context, pool *domain.Pool) error {
	cp := *pool
	f.pools[pool.RoundID] = &cp
	return nil
}

func (f *fakePoolRepo) GetByRoundID(ctx context.Context, roundID int64) (*domain.Pool, error) {
	p, ok := f.pools[roundID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakePoolRepo) GetByRoundIDForUpdate(ctx context.Context, roundID int64) (*domain.Pool, error) {
	return f.GetByRoundID(ctx, roundID)
}

func (f *fakePoolRepo) Update(ctx context.Context, pool *domain.Pool) error {
	cp := *pool
	f.pools[pool.RoundID] = &cp
	return nil
}

func (f *fakePoolRepo) WithTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(ctx)
}

type fakeTradeRepo struct {
	mu     sync.Mutex
	trades []*domain.Trade
}

func (f *fakeTradeRepo) Create(ctx context.Context, trade *domain.Trade) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trades = append(f.trades, trade)
	return nil
}

func (f *fakeTradeRepo) ListByRound(ctx context.Context, roundID int64, limit, offset int) ([]*domain.Trade, int64, error) {
	return f.trades, int64(len(f.trades)), nil
}

func (f *fakeTradeRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Trade, int64, error) {
	return f.trades, int64(len(f.trades)), nil
}

type fakeRoundPort struct {
	canTrade bool
}

func (f *fakeRoundPort) Get(ctx context.Context, roundID int64) (*domain.TradingRound, error) {
	return &domain.TradingRound{RoundID: roundID, Category: "BTC", CanTrade: f.canTrade}, nil
}

type fakeBalancePort struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
}

func newFakeBalancePort() *fakeBalancePort {
	return &fakeBalancePort{balances: make(map[string]decimal.Decimal)}
}

func (f *fakeBalancePort) Debit(ctx context.Context, userID string, amount decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balances[userID].LessThan(amount) {
		return domain.ErrInsufficientBalance
	}
	f.balances[userID] = f.balances[userID].Sub(amount)
	return nil
}

func (f *fakeBalancePort) Credit(ctx context.Context, userID string, amount decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[userID] = f.balances[userID].Add(amount)
	return nil
}

func (f *fakeBalancePort) balance(userID string) decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[userID]
}

type fakePositionPort struct {
	mu     sync.Mutex
	shares map[string]decimal.Decimal
}

func newFakePositionPort() *fakePositionPort {
	return &fakePositionPort{shares: make(map[string]decimal.Decimal)}
}

func positionKey(userID string, roundID int64, side domain.Side) string {
	return userID + "|" + string(side)
}

func (f *fakePositionPort) AddShares(ctx context.Context, userID string, roundID int64, side domain.Side, shares, cost decimal.Decimal) (*domain.PositionView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := positionKey(userID, roundID, side)
	f.shares[key] = f.shares[key].Add(shares)
	return &domain.PositionView{UserID: userID, RoundID: roundID, Side: string(side), Shares: f.shares[key]}, nil
}

func (f *fakePositionPort) CloseShares(ctx context.Context, userID string, roundID int64, side domain.Side, shares, amountOut decimal.Decimal) (*domain.PositionView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := positionKey(userID, roundID, side)
	if f.shares[key].LessThan(shares) {
		return nil, domain.ErrInsufficientShares
	}
	f.shares[key] = f.shares[key].Sub(shares)
	return &domain.PositionView{UserID: userID, RoundID: roundID, Side: string(side), Shares: f.shares[key]}, nil
}

func (f *fakePositionPort) AvailableShares(ctx context.Context, userID string, roundID int64, side domain.Side) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shares[positionKey(userID, roundID, side)], nil
}

type fakeConfigPort struct{}

func (fakeConfigPort) AMMConfig(ctx context.Context, category string) (*domain.AMMConfig, error) {
	return &domain.AMMConfig{
		FeeRate:          decimal.RequireFromString("0.002"),
		MinTradeAmount:   decimal.NewFromInt(1),
		MaxTradeAmount:   decimal.NewFromInt(100000),
		MinReserveRatio:  decimal.RequireFromString("0.1"),
		InitialLiquidity: decimal.NewFromInt(10000),
	}, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeNotifier) Broadcast(ctx context.Context, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeNotifier) RecordAction(ctx context.Context, userID, actionType string) {}

type tradingFixture struct {
	svc       *PoolCommandService
	pools     *fakePoolRepo
	balances  *fakeBalancePort
	positions *fakePositionPort
	notifier  *fakeNotifier
}

func newTradingFixture(t *testing.T) *tradingFixture {
	t.Helper()
	pools := newFakePoolRepo()
	balances := newFakeBalancePort()
	positions := newFakePositionPort()
	notifier := &fakeNotifier{}
	svc := NewPoolCommandService(
		pools, &fakeTradeRepo{}, &fakeRoundPort{canTrade: true},
		balances, positions, fakeConfigPort{},
		notifier, notifier, utils.NewSnowflakeID(1), nil,
	)
	require.NoError(t, svc.CreatePool(context.Background(), 1, decimal.NewFromInt(10000)))
	return &tradingFixture{svc: svc, pools: pools, balances: balances, positions: positions, notifier: notifier}
}

func TestExecuteBuyHappyPath(t *testing.T) {
	f := newTradingFixture(t)
	ctx := context.Background()
	f.balances.balances["u1"] = decimal.NewFromInt(5000)

	result, err := f.svc.ExecuteBuy(ctx, ExecuteBuyCommand{
		UserID: "u1", RoundID: 1, Side: domain.SideYes, Amount: decimal.NewFromInt(1000),
	})
	require.NoError(t, err)

	// 全额扣款，含手续费
	assert.Equal(t, "4000", f.balances.balance("u1").String())
	// 手续费 2，剩 998 注入对侧，份额按恒定乘积换算
	assert.Equal(t, "2", result.Fee.String())
	assert.True(t, result.Shares.IsPositive())
	held, _ := f.positions.AvailableShares(ctx, "u1", 1, domain.SideYes)
	assert.True(t, held.Equal(result.Shares))

	pool, _ := f.pools.GetByRoundID(ctx, 1)
	assert.Equal(t, int64(1), pool.TradeCount)
	assert.Contains(t, f.notifier.events, "price.updated")
}

func TestExecuteBuyInsufficientBalance(t *testing.T) {
	f := newTradingFixture(t)
	ctx := context.Background()
	f.balances.balances["u1"] = decimal.NewFromInt(10)

	_, err := f.svc.ExecuteBuy(ctx, ExecuteBuyCommand{
		UserID: "u1", RoundID: 1, Side: domain.SideYes, Amount: decimal.NewFromInt(1000),
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	// 失败不能留下任何变更
	assert.Equal(t, "10", f.balances.balance("u1").String())
	pool, _ := f.pools.GetByRoundID(ctx, 1)
	assert.Equal(t, int64(0), pool.TradeCount)
}

func TestExecuteBuyClosedRound(t *testing.T) {
	pools := newFakePoolRepo()
	notifier := &fakeNotifier{}
	svc := NewPoolCommandService(
		pools, &fakeTradeRepo{}, &fakeRoundPort{canTrade: false},
		newFakeBalancePort(), newFakePositionPort(), fakeConfigPort{},
		notifier, notifier, utils.NewSnowflakeID(1), nil,
	)
	require.NoError(t, svc.CreatePool(context.Background(), 1, decimal.NewFromInt(10000)))

	_, err := svc.ExecuteBuy(context.Background(), ExecuteBuyCommand{
		UserID: "u1", RoundID: 1, Side: domain.SideYes, Amount: decimal.NewFromInt(100),
	})
	assert.ErrorIs(t, err, domain.ErrRoundNotOpen)
}

// 同一持仓的并发卖出：行锁串行化后，后到者按剩余份额校验，恰好一笔成功
func TestConcurrentSellsExactlyOneSucceeds(t *testing.T) {
	f := newTradingFixture(t)
	ctx := context.Background()
	f.balances.balances["u1"] = decimal.NewFromInt(10000)

	bought, err := f.svc.ExecuteBuy(ctx, ExecuteBuyCommand{
		UserID: "u1", RoundID: 1, Side: domain.SideYes, Amount: decimal.NewFromInt(1000),
	})
	require.NoError(t, err)

	// 每笔卖出 90% 的持仓，两笔并发只可能成功一笔
	sellShares := bought.Shares.Mul(decimal.RequireFromString("0.9")).Round(4)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.ExecuteSell(ctx, ExecuteSellCommand{
				UserID: "u1", RoundID: 1, Side: domain.SideYes, Shares: sellShares,
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, domain.ErrInsufficientShares)
		}
	}
	assert.Equal(t, 1, succeeded)

	remaining, _ := f.positions.AvailableShares(ctx, "u1", 1, domain.SideYes)
	assert.True(t, remaining.Equal(bought.Shares.Sub(sellShares)))
}
