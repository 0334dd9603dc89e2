// Package metrics 提供 Prometheus helper，包含业务 counter/gauge/histogram
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 指标集合
type Metrics struct {
	// HTTP 请求计数
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTP 请求耗时
	HTTPRequestDuration prometheus.Histogram

	// 交易笔数（按品类、方向、买卖）
	TradesTotal *prometheus.CounterVec
	// 交易额
	TradeVolume *prometheus.CounterVec
	// 下注笔数
	BetsTotal *prometheus.CounterVec

	// 活跃回合数
	RoundsActive prometheus.Gauge
	// 已结算回合数
	RoundsSettled *prometheus.CounterVec
	// 结算耗时
	SettlementDuration prometheus.Histogram
	// 结算失败的派彩数（稍后重试）
	PayoutRetriesTotal prometheus.Counter

	// 乐观锁冲突计数
	VersionConflictsTotal prometheus.Counter
}

// New 创建指标实例
func New(serviceName string) *Metrics {
	return &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "market",
			Subsystem: serviceName,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "market",
			Subsystem: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "market",
			Subsystem: serviceName,
			Name:      "trades_total",
			Help:      "Total executed AMM trades",
		}, []string{"category", "side", "direction"}),
		TradeVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "market",
			Subsystem: serviceName,
			Name:      "trade_volume_total",
			Help:      "Cumulative traded amount",
		}, []string{"category"}),
		BetsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "market",
			Subsystem: serviceName,
			Name:      "bets_total",
			Help:      "Total placed fixed-odds bets",
		}, []string{"category", "direction"}),
		RoundsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "market",
			Subsystem: serviceName,
			Name:      "rounds_active",
			Help:      "Number of rounds currently open or locked",
		}),
		RoundsSettled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "market",
			Subsystem: serviceName,
			Name:      "rounds_settled_total",
			Help:      "Total settled rounds",
		}, []string{"category", "result"}),
		SettlementDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "market",
			Subsystem: serviceName,
			Name:      "settlement_duration_seconds",
			Help:      "Round settlement sweep duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}),
		PayoutRetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "market",
			Subsystem: serviceName,
			Name:      "payout_retries_total",
			Help:      "Payouts deferred to the next settlement sweep",
		}),
		VersionConflictsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "market",
			Subsystem: serviceName,
			Name:      "version_conflicts_total",
			Help:      "Optimistic lock conflicts on balance updates",
		}),
	}
}

// Register 注册所有指标
func (m *Metrics) Register() error {
	collectors := []prometheus.Collector{
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.TradesTotal,
		m.TradeVolume,
		m.BetsTotal,
		m.RoundsActive,
		m.RoundsSettled,
		m.SettlementDuration,
		m.PayoutRetriesTotal,
		m.VersionConflictsTotal,
	}
	for _, c := range collectors {
		if err := prometheus.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}

// StartHTTPServer 启动独立的指标 HTTP 服务
func StartHTTPServer(port int, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	return http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
}
