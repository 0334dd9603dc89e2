// Package config 提供 TOML 配置加载与环境变量覆盖
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/wyfcoding/predictionmarket/pkg/logger"
)

// Config 服务配置结构
type Config struct {
	// 服务名称
	ServiceName string `mapstructure:"service_name"`
	// 服务版本
	Version string `mapstructure:"version"`
	// 环境：dev, staging, prod
	Environment string `mapstructure:"environment"`
	// HTTP 服务配置
	HTTP HTTPConfig `mapstructure:"http"`
	// 数据库配置
	Database DatabaseConfig `mapstructure:"database"`
	// Redis 配置
	Redis RedisConfig `mapstructure:"redis"`
	// Kafka 配置
	Kafka KafkaConfig `mapstructure:"kafka"`
	// 日志配置
	Logger logger.Config `mapstructure:"logger"`
	// 指标配置
	Metrics MetricsConfig `mapstructure:"metrics"`
	// 预测市场配置
	Market MarketConfig `mapstructure:"market"`
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	// 监听地址
	Host string `mapstructure:"host"`
	// 监听端口
	Port int `mapstructure:"port"`
	// 读超时（秒）
	ReadTimeout int `mapstructure:"read_timeout"`
	// 写超时（秒）
	WriteTimeout int `mapstructure:"write_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动：mysql
	Driver string `mapstructure:"driver"`
	// 数据源名称
	DSN string `mapstructure:"dsn"`
	// 最大连接数
	MaxOpenConns int `mapstructure:"max_open_conns"`
	// 最大空闲连接数
	MaxIdleConns int `mapstructure:"max_idle_conns"`
	// 连接最大生命周期（秒）
	ConnMaxLifetime int `mapstructure:"conn_max_lifetime"`
	// 是否启用 SQL 日志
	LogEnabled bool `mapstructure:"log_enabled"`
	// 慢查询阈值（毫秒）
	SlowQueryThreshold int `mapstructure:"slow_query_threshold"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 主机地址
	Host string `mapstructure:"host"`
	// 端口
	Port int `mapstructure:"port"`
	// 密码
	Password string `mapstructure:"password"`
	// 数据库编号
	DB int `mapstructure:"db"`
	// 连接池大小
	MaxPoolSize int `mapstructure:"max_pool_size"`
	// 读超时（秒）
	ReadTimeout int `mapstructure:"read_timeout"`
	// 写超时（秒）
	WriteTimeout int `mapstructure:"write_timeout"`
}

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	// Broker 地址列表
	Brokers []string `mapstructure:"brokers"`
	// 最大重试次数
	MaxRetries int `mapstructure:"max_retries"`
	// 重试退避（毫秒）
	RetryBackoff int `mapstructure:"retry_backoff"`
	// 事件主题前缀
	TopicPrefix string `mapstructure:"topic_prefix"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// 是否启用
	Enabled bool `mapstructure:"enabled"`
	// 指标端口
	Port int `mapstructure:"port"`
	// 指标路径
	Path string `mapstructure:"path"`
}

// MarketConfig 预测市场配置
type MarketConfig struct {
	// Snowflake 节点 ID
	NodeID int64 `mapstructure:"node_id"`
	// 回合状态巡检间隔（秒）
	SweepInterval int `mapstructure:"sweep_interval"`
	// 休市轮询间隔（秒）
	ClosedPollInterval int `mapstructure:"closed_poll_interval"`
	// 价格采集间隔（秒）
	PriceInterval int `mapstructure:"price_interval"`
	// 连胜奖励配置
	Streak StreakConfig `mapstructure:"streak"`
	// 品类默认参数（可被数据库 market_configs 覆盖）
	Categories []CategoryConfig `mapstructure:"categories"`
}

// StreakConfig 连胜奖励配置
type StreakConfig struct {
	// 基础倍率
	BaseMultiplier float64 `mapstructure:"base_multiplier"`
	// 每次连胜增量
	Increment float64 `mapstructure:"increment"`
	// 倍率上限
	MaxMultiplier float64 `mapstructure:"max_multiplier"`
}

// CategoryConfig 单品类回合参数
type CategoryConfig struct {
	// 品类标识，如 BTC、GOLD
	Name string `mapstructure:"name"`
	// 模拟价格源的起始价（无真实行情接入时使用）
	InitialPrice string `mapstructure:"initial_price"`
	// 回合时长（秒）
	RoundDuration int `mapstructure:"round_duration"`
	// 封盘时长（秒），lockTime = endTime - LockPeriod
	LockPeriod int `mapstructure:"lock_period"`
	// 初始流动性
	InitialLiquidity string `mapstructure:"initial_liquidity"`
	// 手续费率
	FeeRate string `mapstructure:"fee_rate"`
	// 单笔最小交易额
	MinTradeAmount string `mapstructure:"min_trade_amount"`
	// 单笔最大交易额
	MaxTradeAmount string `mapstructure:"max_trade_amount"`
	// 储备下限比例
	MinReserveRatio string `mapstructure:"min_reserve_ratio"`
	// 平盘判定阈值
	DrawThreshold string `mapstructure:"draw_threshold"`
	// 是否仅工作日开市
	WeekdaysOnly bool `mapstructure:"weekdays_only"`
	// 开市小时（UTC，仅 weekdays_only 时生效）
	OpenHour int `mapstructure:"open_hour"`
	// 闭市小时（UTC，仅 weekdays_only 时生效）
	CloseHour int `mapstructure:"close_hour"`
}

// Load 加载配置文件，支持环境变量覆盖（MARKET_ 前缀）
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	v.SetEnvPrefix("MARKET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "prediction-market")
	v.SetDefault("environment", "dev")
	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 30)
	v.SetDefault("http.write_timeout", 30)
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 300)
	v.SetDefault("database.slow_query_threshold", 1000)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.max_pool_size", 10)
	v.SetDefault("kafka.max_retries", 3)
	v.SetDefault("kafka.retry_backoff", 100)
	v.SetDefault("kafka.topic_prefix", "market")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("market.node_id", 1)
	v.SetDefault("market.sweep_interval", 1)
	v.SetDefault("market.closed_poll_interval", 300)
	v.SetDefault("market.price_interval", 3)
	v.SetDefault("market.streak.base_multiplier", 1.0)
	v.SetDefault("market.streak.increment", 0.1)
	v.SetDefault("market.streak.max_multiplier", 3.0)
}

func validate(cfg *Config) error {
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	for i := range cfg.Market.Categories {
		c := &cfg.Market.Categories[i]
		if c.Name == "" {
			return fmt.Errorf("market.categories[%d].name is required", i)
		}
		if c.LockPeriod >= c.RoundDuration {
			return fmt.Errorf("category %s: lock_period must be shorter than round_duration", c.Name)
		}
	}
	return nil
}
