package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/predictionmarket/internal/marketdata/domain"
	rounddomain "github.com/wyfcoding/predictionmarket/internal/round/domain"
)

const latestPriceCacheTTL = 10 * time.Second

// ErrNoPrice 该品类还没有任何可用价格
var ErrNoPrice = errors.New("no price available for category")

// PriceCache 最新价缓存接口
type PriceCache interface {
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// Collector 行情采集器。
// 每个品类按固定间隔拉取价格，落库、更新回合高低水位并广播。
// 来源故障时保留最近一次成功值对外提供读取，但不伪造采样入库，
// 缺新采样时回合结算会自行推迟
type Collector struct {
	ticks    domain.TickRepository
	source   domain.PriceSource
	rounds   rounddomain.RoundRepository
	cache    PriceCache
	notifier domain.Broadcaster
	logger   *slog.Logger

	interval   time.Duration
	categories []string
	now        func() time.Time

	mu       sync.RWMutex
	lastGood map[string]decimal.Decimal

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCollector 创建行情采集器
func NewCollector(
	ticks domain.TickRepository,
	source domain.PriceSource,
	rounds rounddomain.RoundRepository,
	cache PriceCache,
	notifier domain.Broadcaster,
	logger *slog.Logger,
	interval time.Duration,
	categories []string,
) *Collector {
	return &Collector{
		ticks:      ticks,
		source:     source,
		rounds:     rounds,
		cache:      cache,
		notifier:   notifier,
		logger:     logger,
		interval:   interval,
		categories: categories,
		now:        time.Now,
		lastGood:   make(map[string]decimal.Decimal),
	}
}

// Start 启动采集协程
func (c *Collector) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	for _, category := range c.categories {
		c.wg.Add(1)
		go c.run(runCtx, category)
	}
	c.logger.Info("price collector started", "categories", c.categories, "interval", c.interval)
}

// Stop 停止采集并等待协程退出
func (c *Collector) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.logger.Info("price collector stopped")
}

func (c *Collector) run(ctx context.Context, category string) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.collect(ctx, category)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.collect(ctx, category)
		}
	}
}

// collect 单次采样
func (c *Collector) collect(ctx context.Context, category string) {
	price, err := c.source.FetchPrice(ctx, category)
	if err != nil {
		c.logger.Warn("price fetch failed, serving last known good",
			"category", category, "error", err)
		return
	}

	observedAt := c.now()
	tick := &domain.PriceTick{Category: category, Price: price, ObservedAt: observedAt}
	if err := c.ticks.Create(ctx, tick); err != nil {
		c.logger.Error("failed to persist price tick", "category", category, "error", err)
		return
	}

	c.mu.Lock()
	c.lastGood[category] = price
	c.mu.Unlock()

	if c.cache != nil {
		key := fmt.Sprintf("price:latest:%s", category)
		payload := map[string]any{"price": price, "observed_at": observedAt}
		if err := c.cache.SetJSON(ctx, key, payload, latestPriceCacheTTL); err != nil {
			c.logger.Warn("failed to cache latest price", "category", category, "error", err)
		}
	}

	c.notifier.Broadcast(ctx, "price.tick", map[string]any{
		"category":    category,
		"price":       price,
		"observed_at": observedAt,
	})

	c.updateWatermarks(ctx, category, price)
}

// updateWatermarks 推进当前回合的高低价水位
func (c *Collector) updateWatermarks(ctx context.Context, category string, price decimal.Decimal) {
	round, err := c.rounds.GetActiveByCategory(ctx, category)
	if err != nil {
		c.logger.Error("failed to load active round for watermarks", "category", category, "error", err)
		return
	}
	if round == nil || !round.ObservePrice(price) {
		return
	}
	if err := c.rounds.UpdateWatermarks(ctx, round); err != nil {
		c.logger.Error("failed to update round watermarks",
			"category", category, "round_id", round.ID, "error", err)
	}
}

// CurrentPrice 当前价格，来源故障时退回最近一次成功值，冷启动退回最新落库采样
func (c *Collector) CurrentPrice(ctx context.Context, category string) (decimal.Decimal, error) {
	c.mu.RLock()
	price, ok := c.lastGood[category]
	c.mu.RUnlock()
	if ok {
		return price, nil
	}

	ticks, err := c.ticks.Latest(ctx, category, 1)
	if err != nil {
		return decimal.Zero, err
	}
	if len(ticks) == 0 {
		return decimal.Zero, ErrNoPrice
	}
	return ticks[0].Price, nil
}

// RecentPrices 最近 n 个采样价，新的在前
func (c *Collector) RecentPrices(ctx context.Context, category string, n int) ([]decimal.Decimal, error) {
	ticks, err := c.ticks.Latest(ctx, category, n)
	if err != nil {
		return nil, err
	}
	prices := make([]decimal.Decimal, 0, len(ticks))
	for _, t := range ticks {
		prices = append(prices, t.Price)
	}
	return prices, nil
}
