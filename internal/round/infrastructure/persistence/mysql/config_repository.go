package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/contextx"
	"gorm.io/gorm"

	"github.com/wyfcoding/predictionmarket/internal/round/domain"
	"github.com/wyfcoding/predictionmarket/pkg/config"
)

// MarketConfigRecord market_configs 表记录，存在时整行覆盖配置文件中的同名品类
type MarketConfigRecord struct {
	gorm.Model
	Category         string          `gorm:"column:category;type:varchar(32);uniqueIndex;not null"`
	RoundDuration    int             `gorm:"column:round_duration;not null"`
	LockPeriod       int             `gorm:"column:lock_period;not null"`
	InitialLiquidity decimal.Decimal `gorm:"column:initial_liquidity;type:decimal(30,10);not null"`
	FeeRate          decimal.Decimal `gorm:"column:fee_rate;type:decimal(10,6);not null"`
	MinTradeAmount   decimal.Decimal `gorm:"column:min_trade_amount;type:decimal(30,10);not null"`
	MaxTradeAmount   decimal.Decimal `gorm:"column:max_trade_amount;type:decimal(30,10);not null"`
	MinReserveRatio  decimal.Decimal `gorm:"column:min_reserve_ratio;type:decimal(10,6);not null"`
	DrawThreshold    decimal.Decimal `gorm:"column:draw_threshold;type:decimal(30,10);not null"`
	WeekdaysOnly     bool            `gorm:"column:weekdays_only;not null;default:0"`
	OpenHour         int             `gorm:"column:open_hour;not null;default:0"`
	CloseHour        int             `gorm:"column:close_hour;not null;default:0"`
}

// TableName 表名
func (MarketConfigRecord) TableName() string {
	return "market_configs"
}

// ConfigStore 品类配置存储：配置文件提供默认值，market_configs 表按品类整行覆盖
type ConfigStore struct {
	db       *gorm.DB
	defaults map[string]*domain.RoundConfig
	order    []string
}

// NewConfigStore 解析配置文件中的品类默认值，解析失败立即返回错误
func NewConfigStore(db *gorm.DB, market config.MarketConfig) (*ConfigStore, error) {
	s := &ConfigStore{
		db:       db,
		defaults: make(map[string]*domain.RoundConfig, len(market.Categories)),
	}
	for _, c := range market.Categories {
		rc, err := parseCategory(c)
		if err != nil {
			return nil, err
		}
		s.defaults[c.Name] = rc
		s.order = append(s.order, c.Name)
	}
	return s, nil
}

func parseCategory(c config.CategoryConfig) (*domain.RoundConfig, error) {
	rc := &domain.RoundConfig{
		Category:      c.Name,
		RoundDuration: time.Duration(c.RoundDuration) * time.Second,
		LockPeriod:    time.Duration(c.LockPeriod) * time.Second,
		WeekdaysOnly:  c.WeekdaysOnly,
		OpenHour:      c.OpenHour,
		CloseHour:     c.CloseHour,
	}
	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"initial_liquidity", c.InitialLiquidity, &rc.InitialLiquidity},
		{"fee_rate", c.FeeRate, &rc.FeeRate},
		{"min_trade_amount", c.MinTradeAmount, &rc.MinTradeAmount},
		{"max_trade_amount", c.MaxTradeAmount, &rc.MaxTradeAmount},
		{"min_reserve_ratio", c.MinReserveRatio, &rc.MinReserveRatio},
		{"draw_threshold", c.DrawThreshold, &rc.DrawThreshold},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return nil, fmt.Errorf("category %s: invalid %s %q: %w", c.Name, f.name, f.raw, err)
		}
		*f.dst = d
	}
	if err := rc.Validate(); err != nil {
		return nil, err
	}
	return rc, nil
}

func (s *ConfigStore) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok {
		return tx
	}
	return s.db.WithContext(ctx)
}

// RoundConfig 读取品类配置，数据库记录优先
func (s *ConfigStore) RoundConfig(ctx context.Context, category string) (*domain.RoundConfig, error) {
	var record MarketConfigRecord
	err := s.getDB(ctx).Where("category = ?", category).First(&record).Error
	if err == nil {
		rc := &domain.RoundConfig{
			Category:         record.Category,
			RoundDuration:    time.Duration(record.RoundDuration) * time.Second,
			LockPeriod:       time.Duration(record.LockPeriod) * time.Second,
			InitialLiquidity: record.InitialLiquidity,
			FeeRate:          record.FeeRate,
			MinTradeAmount:   record.MinTradeAmount,
			MaxTradeAmount:   record.MaxTradeAmount,
			MinReserveRatio:  record.MinReserveRatio,
			DrawThreshold:    record.DrawThreshold,
			WeekdaysOnly:     record.WeekdaysOnly,
			OpenHour:         record.OpenHour,
			CloseHour:        record.CloseHour,
		}
		// 运营写入的覆盖行同样要过校验，坏行直接报错而不是开出废回合
		if err := rc.Validate(); err != nil {
			return nil, err
		}
		return rc, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if rc, ok := s.defaults[category]; ok {
		cloned := *rc
		return &cloned, nil
	}
	return nil, fmt.Errorf("unknown category: %s", category)
}

// Categories 返回配置文件中声明的品类，保持声明顺序
func (s *ConfigStore) Categories(ctx context.Context) ([]string, error) {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out, nil
}
