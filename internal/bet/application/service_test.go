package application

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/predictionmarket/internal/bet/domain"
	"github.com/wyfcoding/predictionmarket/pkg/metrics"
	"github.com/wyfcoding/predictionmarket/pkg/utils"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// ---- 内存假件 ----

type memBetRepo struct {
	mu   sync.Mutex
	bets map[string]*domain.Bet
}

func newMemBetRepo() *memBetRepo {
	return &memBetRepo{bets: make(map[string]*domain.Bet)}
}

func (m *memBetRepo) Create(ctx context.Context, bet *domain.Bet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *bet
	m.bets[bet.BetID] = &cp
	return nil
}

func (m *memBetRepo) Update(ctx context.Context, bet *domain.Bet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *bet
	m.bets[bet.BetID] = &cp
	return nil
}

func (m *memBetRepo) GetByBetID(ctx context.Context, betID string) (*domain.Bet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bets[betID]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (m *memBetRepo) GetForUpdate(ctx context.Context, betID string) (*domain.Bet, error) {
	return m.GetByBetID(ctx, betID)
}

func (m *memBetRepo) ListPendingByRound(ctx context.Context, roundID int64) ([]*domain.Bet, error) {
	return nil, nil
}

func (m *memBetRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Bet, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Bet
	for _, b := range m.bets {
		if b.UserID == userID {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, int64(len(out)), nil
}

func (m *memBetRepo) WithTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	return fn(ctx)
}

type stubRoundPort struct {
	round *domain.BettingRound
}

func (s *stubRoundPort) Get(ctx context.Context, roundID int64) (*domain.BettingRound, error) {
	return s.round, nil
}

type stubOdds struct {
	long, short decimal.Decimal
}

func (s *stubOdds) Odds(ctx context.Context, roundID int64, direction domain.Direction) (decimal.Decimal, error) {
	if direction == domain.DirectionLong {
		return s.long, nil
	}
	return s.short, nil
}

type stubLimits struct{}

func (stubLimits) BetLimits(ctx context.Context, category string) (*domain.BetLimits, error) {
	return &domain.BetLimits{MinAmount: dec("1"), MaxAmount: dec("10000")}, nil
}

// fakeBalances 前 failDebits 次扣款返回版本冲突
type fakeBalances struct {
	mu         sync.Mutex
	balances   map[string]decimal.Decimal
	failDebits int
}

func (f *fakeBalances) Debit(ctx context.Context, userID string, amount decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDebits > 0 {
		f.failDebits--
		return domain.ErrConcurrencyConflict
	}
	f.balances[userID] = f.balances[userID].Sub(amount)
	return nil
}

type recordingNotifier struct {
	events  []string
	actions []string
}

func (r *recordingNotifier) Broadcast(ctx context.Context, event string, payload any) {
	r.events = append(r.events, event)
}

func (r *recordingNotifier) RecordAction(ctx context.Context, userID, actionType string) {
	r.actions = append(r.actions, actionType)
}

// ---- fixture ----

type betFixture struct {
	svc      *BetService
	bets     *memBetRepo
	rounds   *stubRoundPort
	balances *fakeBalances
	notifier *recordingNotifier
}

func newBetFixture(t *testing.T) *betFixture {
	t.Helper()
	f := &betFixture{
		bets:     newMemBetRepo(),
		rounds:   &stubRoundPort{round: &domain.BettingRound{RoundID: 1, Category: "BTC", CanBet: true}},
		balances: &fakeBalances{balances: map[string]decimal.Decimal{"u1": dec("500")}},
		notifier: &recordingNotifier{},
	}
	f.svc = NewBetService(
		f.bets, f.rounds, &stubOdds{long: dec("1.8524"), short: dec("2.1735")},
		f.balances, stubLimits{}, f.notifier, f.notifier,
		utils.NewSnowflakeID(1), metrics.New("bet-test"),
	)
	return f
}

// ---- tests ----

func TestPlaceBetLocksOddsAndDebits(t *testing.T) {
	f := newBetFixture(t)

	dto, err := f.svc.PlaceBet(context.Background(), PlaceBetCommand{
		UserID: "u1", RoundID: 1, Direction: domain.DirectionLong, Amount: dec("100"),
	})
	require.NoError(t, err)

	assert.Equal(t, "LONG", dto.Direction)
	assert.Equal(t, "1.8524", dto.Odds.String())
	assert.Equal(t, "185.24", dto.PotentialPayout.String())
	assert.Equal(t, "PENDING", dto.Status)
	assert.Equal(t, "400", f.balances.balances["u1"].String())

	stored, err := f.bets.GetByBetID(context.Background(), dto.BetID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	// 落库赔率即锁定赔率，后续价格变化不影响
	assert.True(t, stored.Odds.Equal(dec("1.8524")))

	assert.Contains(t, f.notifier.events, "bet.placed")
	assert.Contains(t, f.notifier.events, "balance.updated")
	assert.Contains(t, f.notifier.actions, "bet_place")
}

func TestPlaceBetRejectsClosedWindow(t *testing.T) {
	f := newBetFixture(t)
	f.rounds.round.CanBet = false

	_, err := f.svc.PlaceBet(context.Background(), PlaceBetCommand{
		UserID: "u1", RoundID: 1, Direction: domain.DirectionShort, Amount: dec("100"),
	})
	assert.ErrorIs(t, err, domain.ErrBettingClosed)
	assert.Equal(t, "500", f.balances.balances["u1"].String())
	assert.Empty(t, f.bets.bets)
}

func TestPlaceBetValidatesAmountAndDirection(t *testing.T) {
	f := newBetFixture(t)
	ctx := context.Background()

	_, err := f.svc.PlaceBet(ctx, PlaceBetCommand{
		UserID: "u1", RoundID: 1, Direction: "SIDEWAYS", Amount: dec("100"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidDirection)

	_, err = f.svc.PlaceBet(ctx, PlaceBetCommand{
		UserID: "u1", RoundID: 1, Direction: domain.DirectionLong, Amount: dec("0"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	// 超出限额上限
	_, err = f.svc.PlaceBet(ctx, PlaceBetCommand{
		UserID: "u1", RoundID: 1, Direction: domain.DirectionLong, Amount: dec("10001"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestPlaceBetRetriesVersionConflict(t *testing.T) {
	f := newBetFixture(t)
	f.balances.failDebits = 2

	dto, err := f.svc.PlaceBet(context.Background(), PlaceBetCommand{
		UserID: "u1", RoundID: 1, Direction: domain.DirectionLong, Amount: dec("100"),
	})
	require.NoError(t, err)
	assert.Equal(t, "PENDING", dto.Status)
	assert.Equal(t, "400", f.balances.balances["u1"].String())
	assert.Len(t, f.bets.bets, 1)
}

func TestPlaceBetGivesUpAfterRepeatedConflicts(t *testing.T) {
	f := newBetFixture(t)
	f.balances.failDebits = 10

	_, err := f.svc.PlaceBet(context.Background(), PlaceBetCommand{
		UserID: "u1", RoundID: 1, Direction: domain.DirectionLong, Amount: dec("100"),
	})
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)
	assert.Empty(t, f.bets.bets)
}
