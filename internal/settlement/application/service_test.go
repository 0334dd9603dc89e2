package application

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	accountdomain "github.com/wyfcoding/predictionmarket/internal/account/domain"
	betdomain "github.com/wyfcoding/predictionmarket/internal/bet/domain"
	positiondomain "github.com/wyfcoding/predictionmarket/internal/position/domain"
	rounddomain "github.com/wyfcoding/predictionmarket/internal/round/domain"
	"github.com/wyfcoding/predictionmarket/internal/settlement/domain"
	"github.com/wyfcoding/predictionmarket/pkg/metrics"
)

// ---- 内存假件 ----

type memRounds struct {
	rounds map[int64]*rounddomain.Round
}

func (m *memRounds) Create(ctx context.Context, r *rounddomain.Round) error {
	m.rounds[int64(r.ID)] = r
	return nil
}

func (m *memRounds) GetByID(ctx context.Context, id int64) (*rounddomain.Round, error) {
	r, ok := m.rounds[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *memRounds) GetActiveByCategory(ctx context.Context, category string) (*rounddomain.Round, error) {
	for _, r := range m.rounds {
		if r.Category == category && r.Status != rounddomain.StatusSettled {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memRounds) SaveTransition(ctx context.Context, round *rounddomain.Round, from rounddomain.Status) error {
	stored, ok := m.rounds[int64(round.ID)]
	if !ok || stored.Status != from {
		return rounddomain.ErrInvalidTransition
	}
	cp := *round
	m.rounds[int64(round.ID)] = &cp
	return nil
}

func (m *memRounds) UpdateWatermarks(ctx context.Context, round *rounddomain.Round) error { return nil }

func (m *memRounds) NextRoundNumber(ctx context.Context, category string) (int64, error) {
	return int64(len(m.rounds)) + 1, nil
}

func (m *memRounds) History(ctx context.Context, category string, limit, offset int) ([]*rounddomain.Round, int64, error) {
	return nil, 0, nil
}

func (m *memRounds) WithTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	return fn(ctx)
}

type memSettlements struct {
	records map[int64]*domain.Settlement
}

func (m *memSettlements) Create(ctx context.Context, s *domain.Settlement) error {
	m.records[s.RoundID] = s
	return nil
}

func (m *memSettlements) GetByRoundID(ctx context.Context, roundID int64) (*domain.Settlement, error) {
	return m.records[roundID], nil
}

func (m *memSettlements) Update(ctx context.Context, s *domain.Settlement) error {
	m.records[s.RoundID] = s
	return nil
}

type memPositions struct {
	positions map[string]*positiondomain.Position
}

func posKey(userID string, roundID int64, side string) string {
	return userID + "|" + side
}

func (m *memPositions) Create(ctx context.Context, p *positiondomain.Position) error {
	m.positions[posKey(p.UserID, p.RoundID, p.Side)] = p
	return nil
}

func (m *memPositions) Update(ctx context.Context, p *positiondomain.Position) error {
	m.positions[posKey(p.UserID, p.RoundID, p.Side)] = p
	return nil
}

// 读取都返回副本，写回靠 Update，模拟事务失败不落盘
func (m *memPositions) Get(ctx context.Context, userID string, roundID int64, side string) (*positiondomain.Position, error) {
	p, ok := m.positions[posKey(userID, roundID, side)]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memPositions) GetForUpdate(ctx context.Context, userID string, roundID int64, side string) (*positiondomain.Position, error) {
	return m.Get(ctx, userID, roundID, side)
}

func (m *memPositions) ListOpenByRound(ctx context.Context, roundID int64) ([]*positiondomain.Position, error) {
	var out []*positiondomain.Position
	for _, p := range m.positions {
		if p.RoundID == roundID && p.Status == positiondomain.StatusOpen {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memPositions) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*positiondomain.Position, int64, error) {
	return nil, 0, nil
}

func (m *memPositions) ListByUserAndRound(ctx context.Context, userID string, roundID int64) ([]*positiondomain.Position, error) {
	return nil, nil
}

func (m *memPositions) WithTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	return fn(ctx)
}

type memAccounts struct {
	accounts map[string]*accountdomain.Account
	// failSaves 指定用户剩余的注入失败次数
	failSaves map[string]int
}

func (m *memAccounts) GetOrCreate(ctx context.Context, userID string) (*accountdomain.Account, error) {
	if a, ok := m.accounts[userID]; ok {
		cp := *a
		return &cp, nil
	}
	a := accountdomain.NewAccount(userID, accountdomain.DefaultStreakConfig())
	m.accounts[userID] = a
	cp := *a
	return &cp, nil
}

func (m *memAccounts) Get(ctx context.Context, userID string) (*accountdomain.Account, error) {
	return m.GetOrCreate(ctx, userID)
}

func (m *memAccounts) Save(ctx context.Context, account *accountdomain.Account) error {
	if m.failSaves[account.UserID] > 0 {
		m.failSaves[account.UserID]--
		return errors.New("injected save failure")
	}
	stored := m.accounts[account.UserID]
	if stored != nil && stored.Version != account.Version {
		return accountdomain.ErrVersionConflict
	}
	cp := *account
	cp.Version++
	m.accounts[account.UserID] = &cp
	account.Version++
	return nil
}

func (m *memAccounts) WithTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	return fn(ctx)
}

type memBets struct {
	bets map[string]*betdomain.Bet
}

func (m *memBets) Create(ctx context.Context, b *betdomain.Bet) error {
	m.bets[b.BetID] = b
	return nil
}

func (m *memBets) Update(ctx context.Context, b *betdomain.Bet) error {
	m.bets[b.BetID] = b
	return nil
}

func (m *memBets) GetByBetID(ctx context.Context, betID string) (*betdomain.Bet, error) {
	return m.bets[betID], nil
}

func (m *memBets) GetForUpdate(ctx context.Context, betID string) (*betdomain.Bet, error) {
	b, ok := m.bets[betID]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (m *memBets) ListPendingByRound(ctx context.Context, roundID int64) ([]*betdomain.Bet, error) {
	var out []*betdomain.Bet
	for _, b := range m.bets {
		if b.RoundID == roundID && b.Status == betdomain.StatusPending {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memBets) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*betdomain.Bet, int64, error) {
	return nil, 0, nil
}

func (m *memBets) WithTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	return fn(ctx)
}

type stubConfig struct {
	threshold decimal.Decimal
}

func (s stubConfig) RoundConfig(ctx context.Context, category string) (*rounddomain.RoundConfig, error) {
	return &rounddomain.RoundConfig{Category: category, DrawThreshold: s.threshold}, nil
}

func (s stubConfig) Categories(ctx context.Context) ([]string, error) {
	return []string{"BTC"}, nil
}

type stubPrices struct {
	prices []decimal.Decimal
}

func (s *stubPrices) RecentPrices(ctx context.Context, category string, n int) ([]decimal.Decimal, error) {
	if len(s.prices) > n {
		return s.prices[:n], nil
	}
	return s.prices, nil
}

// ---- fixture ----

type settleFixture struct {
	svc         *SettlementService
	rounds      *memRounds
	settlements *memSettlements
	positions   *memPositions
	accounts    *memAccounts
	bets        *memBets
	prices      *stubPrices
}

func newSettleFixture(t *testing.T, threshold string, ticks ...string) *settleFixture {
	t.Helper()
	f := &settleFixture{
		rounds:      &memRounds{rounds: make(map[int64]*rounddomain.Round)},
		settlements: &memSettlements{records: make(map[int64]*domain.Settlement)},
		positions:   &memPositions{positions: make(map[string]*positiondomain.Position)},
		accounts:    &memAccounts{accounts: make(map[string]*accountdomain.Account), failSaves: make(map[string]int)},
		bets:        &memBets{bets: make(map[string]*betdomain.Bet)},
	}
	prices := make([]decimal.Decimal, 0, len(ticks))
	for _, raw := range ticks {
		prices = append(prices, decimal.RequireFromString(raw))
	}
	f.prices = &stubPrices{prices: prices}
	f.svc = NewSettlementService(
		f.rounds, f.settlements, f.positions, f.bets, f.accounts,
		stubConfig{threshold: decimal.RequireFromString(threshold)}, f.prices,
		accountdomain.DefaultStreakConfig(),
		metrics.New("settlement-test"),
		slog.Default(),
	)
	return f
}

func (f *settleFixture) addLockedRound(id uint, openPrice string) {
	start := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	round := rounddomain.NewRound("BTC", int64(id), start, 5*time.Minute, 30*time.Second, decimal.RequireFromString(openPrice))
	round.ID = id
	_ = round.Lock()
	f.rounds.rounds[int64(id)] = round
}

func (f *settleFixture) addPosition(userID, side, shares, avgCost string) {
	s := decimal.RequireFromString(shares)
	c := decimal.RequireFromString(avgCost)
	f.positions.positions[posKey(userID, 1, side)] = positiondomain.NewPosition(userID, 1, side, s, c.Mul(s))
}

func (f *settleFixture) seedAccount(userID string, combo int, multiplier string) {
	a := accountdomain.NewAccount(userID, accountdomain.DefaultStreakConfig())
	a.Combo = combo
	a.MaxCombo = combo
	a.Multiplier = decimal.RequireFromString(multiplier)
	f.accounts.accounts[userID] = a
}

func (f *settleFixture) balance(userID string) string {
	return f.accounts.accounts[userID].Balance.String()
}

// ---- tests ----

func TestSettleRoundLongWin(t *testing.T) {
	f := newSettleFixture(t, "0", "65100", "65050")
	f.addLockedRound(1, "65000")

	// 连胜 2（倍率 1.2）的多头赢家、空头输家、一注锁定赔率的多头
	f.seedAccount("u1", 2, "1.2")
	f.addPosition("u1", "YES", "100", "0.5")
	f.addPosition("u2", "NO", "50", "0.48")
	f.bets.bets["B1"] = betdomain.NewBet("B1", "u3", 1, "BTC",
		betdomain.DirectionLong, decimal.NewFromInt(100), decimal.RequireFromString("1.8"))

	done, err := f.svc.SettleRound(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, done)

	round := f.rounds.rounds[1]
	assert.Equal(t, rounddomain.StatusSettled, round.Status)
	assert.Equal(t, rounddomain.ResultLongWin, round.Result)
	assert.Equal(t, "65100", round.ClosePrice.String())

	// 赢家：100 份 × 1.2 倍率；连胜 2 → 3，倍率 1.0 + 0.1×3 = 1.3
	assert.Equal(t, "120", f.balance("u1"))
	assert.Equal(t, 3, f.accounts.accounts["u1"].Combo)
	assert.Equal(t, "1.3", f.accounts.accounts["u1"].Multiplier.String())

	// 输家：颗粒无收，连胜清零
	assert.Equal(t, "0", f.balance("u2"))
	assert.Equal(t, 0, f.accounts.accounts["u2"].Combo)

	// 固定赔率注：100 × 1.8，不乘连胜倍率
	assert.Equal(t, "180", f.balance("u3"))
	assert.Equal(t, betdomain.StatusWon, f.bets.bets["B1"].Status)

	assert.Equal(t, positiondomain.StatusSettled, f.positions.positions[posKey("u1", 1, "YES")].Status)
	assert.Equal(t, positiondomain.StatusSettled, f.positions.positions[posKey("u2", 1, "NO")].Status)

	record := f.settlements.records[1]
	require.NotNil(t, record)
	assert.NotNil(t, record.CompletedAt)
	assert.Equal(t, 2, record.PositionsSettled)
	assert.Equal(t, 1, record.BetsSettled)
	assert.Equal(t, "300", record.TotalPayout.String())
}

func TestSettleRoundDrawRefunds(t *testing.T) {
	// 涨跌幅 0.4/65000 ≈ 6.2e-6 在阈值 1e-5 之内判平
	f := newSettleFixture(t, "0.00001", "65000.4", "65000.2")
	f.addLockedRound(1, "65000")

	f.seedAccount("u1", 2, "1.2")
	f.addPosition("u1", "YES", "100", "0.5")
	f.bets.bets["B1"] = betdomain.NewBet("B1", "u2", 1, "BTC",
		betdomain.DirectionShort, decimal.NewFromInt(40), decimal.RequireFromString("2.1"))

	done, err := f.svc.SettleRound(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, done)

	assert.Equal(t, rounddomain.ResultDraw, f.rounds.rounds[1].Result)
	// 平盘按成本退款，连胜不变
	assert.Equal(t, "50", f.balance("u1"))
	assert.Equal(t, 2, f.accounts.accounts["u1"].Combo)
	assert.Equal(t, "1.2", f.accounts.accounts["u1"].Multiplier.String())
	// 投注退回本金
	assert.Equal(t, "40", f.balance("u2"))
	assert.Equal(t, betdomain.StatusRefunded, f.bets.bets["B1"].Status)
}

func TestSettleRoundIdempotent(t *testing.T) {
	f := newSettleFixture(t, "0", "65100", "65050")
	f.addLockedRound(1, "65000")
	f.addPosition("u1", "YES", "100", "0.5")

	done, err := f.svc.SettleRound(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, done)
	paid := f.balance("u1")

	// 重复结算：直接返回完成，不产生第二次派奖
	done, err = f.svc.SettleRound(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, paid, f.balance("u1"))
}

func TestSettleDeferredWithoutTwoTicks(t *testing.T) {
	f := newSettleFixture(t, "0", "65100")
	f.addLockedRound(1, "65000")

	done, err := f.svc.SettleRound(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, done)
	// 未进入结算：状态仍为 LOCKED，无审计记录
	assert.Equal(t, rounddomain.StatusLocked, f.rounds.rounds[1].Status)
	assert.Nil(t, f.settlements.records[1])
}

func TestSettleRetriesFailedPayouts(t *testing.T) {
	f := newSettleFixture(t, "0", "65100", "65050")
	f.addLockedRound(1, "65000")
	f.addPosition("u1", "YES", "100", "0.5")
	f.addPosition("u2", "YES", "60", "0.5")
	// u2 的入账前几次都失败，耗尽单仓重试
	f.accounts.failSaves["u2"] = 5

	done, err := f.svc.SettleRound(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, done)
	// 回合停留在 SETTLING，已成功的派奖不回滚
	assert.Equal(t, rounddomain.StatusSettling, f.rounds.rounds[1].Status)
	assert.Equal(t, "100", f.balance("u1"))
	assert.Equal(t, positiondomain.StatusOpen, f.positions.positions[posKey("u2", 1, "YES")].Status)

	// 故障恢复后重扫：只补发 u2，u1 不重复派奖
	done, err = f.svc.SettleRound(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, rounddomain.StatusSettled, f.rounds.rounds[1].Status)
	assert.Equal(t, "100", f.balance("u1"))
	assert.Equal(t, "60", f.balance("u2"))
}
