package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	accountapp "github.com/wyfcoding/predictionmarket/internal/account/application"
	accountdomain "github.com/wyfcoding/predictionmarket/internal/account/domain"
	accountmysql "github.com/wyfcoding/predictionmarket/internal/account/infrastructure/persistence/mysql"
	accounthttp "github.com/wyfcoding/predictionmarket/internal/account/interfaces/http"
	ammapp "github.com/wyfcoding/predictionmarket/internal/amm/application"
	ammdomain "github.com/wyfcoding/predictionmarket/internal/amm/domain"
	ammadapter "github.com/wyfcoding/predictionmarket/internal/amm/infrastructure/adapter"
	ammmysql "github.com/wyfcoding/predictionmarket/internal/amm/infrastructure/persistence/mysql"
	ammhttp "github.com/wyfcoding/predictionmarket/internal/amm/interfaces/http"
	betapp "github.com/wyfcoding/predictionmarket/internal/bet/application"
	betdomain "github.com/wyfcoding/predictionmarket/internal/bet/domain"
	betadapter "github.com/wyfcoding/predictionmarket/internal/bet/infrastructure/adapter"
	betmysql "github.com/wyfcoding/predictionmarket/internal/bet/infrastructure/persistence/mysql"
	bethttp "github.com/wyfcoding/predictionmarket/internal/bet/interfaces/http"
	marketdataapp "github.com/wyfcoding/predictionmarket/internal/marketdata/application"
	marketdatadomain "github.com/wyfcoding/predictionmarket/internal/marketdata/domain"
	tickmysql "github.com/wyfcoding/predictionmarket/internal/marketdata/infrastructure/persistence/mysql"
	"github.com/wyfcoding/predictionmarket/internal/marketdata/infrastructure/source"
	"github.com/wyfcoding/predictionmarket/internal/notification"
	positionapp "github.com/wyfcoding/predictionmarket/internal/position/application"
	positiondomain "github.com/wyfcoding/predictionmarket/internal/position/domain"
	positionadapter "github.com/wyfcoding/predictionmarket/internal/position/infrastructure/adapter"
	positionmysql "github.com/wyfcoding/predictionmarket/internal/position/infrastructure/persistence/mysql"
	positionhttp "github.com/wyfcoding/predictionmarket/internal/position/interfaces/http"
	roundapp "github.com/wyfcoding/predictionmarket/internal/round/application"
	rounddomain "github.com/wyfcoding/predictionmarket/internal/round/domain"
	roundmysql "github.com/wyfcoding/predictionmarket/internal/round/infrastructure/persistence/mysql"
	roundhttp "github.com/wyfcoding/predictionmarket/internal/round/interfaces/http"
	settlementapp "github.com/wyfcoding/predictionmarket/internal/settlement/application"
	settlementdomain "github.com/wyfcoding/predictionmarket/internal/settlement/domain"
	settlementmysql "github.com/wyfcoding/predictionmarket/internal/settlement/infrastructure/persistence/mysql"
	"github.com/wyfcoding/predictionmarket/pkg/cache"
	"github.com/wyfcoding/predictionmarket/pkg/config"
	"github.com/wyfcoding/predictionmarket/pkg/db"
	"github.com/wyfcoding/predictionmarket/pkg/logger"
	"github.com/wyfcoding/predictionmarket/pkg/metrics"
	"github.com/wyfcoding/predictionmarket/pkg/middleware"
	"github.com/wyfcoding/predictionmarket/pkg/mq"
	"github.com/wyfcoding/predictionmarket/pkg/utils"
)

func main() {
	configPath := flag.String("config", "configs/config.toml", "path to config file")
	flag.Parse()

	// 1. 配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// 2. 日志
	if err := logger.Init(cfg.Logger); err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	appLogger := logger.Get()

	// 3. 数据库
	database, err := db.Init(cfg.Database)
	if err != nil {
		log.Fatalf("failed to init database: %v", err)
	}
	err = database.AutoMigrate(
		&accountdomain.Account{},
		&ammdomain.Pool{},
		&ammdomain.Trade{},
		&positiondomain.Position{},
		&rounddomain.Round{},
		&roundmysql.MarketConfigRecord{},
		&settlementdomain.Settlement{},
		&betdomain.Bet{},
		&marketdatadomain.PriceTick{},
	)
	if err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	// 4. Redis 与 Kafka
	redisCache, err := cache.New(cfg.Redis)
	if err != nil {
		log.Fatalf("failed to init redis: %v", err)
	}
	producer, err := mq.NewProducer(cfg.Kafka)
	if err != nil {
		log.Fatalf("failed to init kafka producer: %v", err)
	}

	// 5. 指标
	m := metrics.New(cfg.ServiceName)
	if err := m.Register(); err != nil {
		log.Fatalf("failed to register metrics: %v", err)
	}
	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.StartHTTPServer(cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
				appLogger.Error("metrics server exited", "error", err)
			}
		}()
	}

	// 6. 仓储
	streakCfg := accountdomain.StreakConfig{
		BaseMultiplier: decimal.NewFromFloat(cfg.Market.Streak.BaseMultiplier),
		Increment:      decimal.NewFromFloat(cfg.Market.Streak.Increment),
		MaxMultiplier:  decimal.NewFromFloat(cfg.Market.Streak.MaxMultiplier),
	}
	accountRepo := accountmysql.NewAccountRepository(database.DB, streakCfg)
	poolRepo := ammmysql.NewPoolRepository(database.DB)
	tradeRepo := ammmysql.NewTradeRepository(database.DB)
	positionRepo := positionmysql.NewPositionRepository(database.DB)
	roundRepo := roundmysql.NewRoundRepository(database.DB)
	settlementRepo := settlementmysql.NewSettlementRepository(database.DB)
	betRepo := betmysql.NewBetRepository(database.DB)
	tickRepo := tickmysql.NewTickRepository(database.DB)

	configStore, err := roundmysql.NewConfigStore(database.DB, cfg.Market)
	if err != nil {
		log.Fatalf("failed to build config store: %v", err)
	}
	categories, err := configStore.Categories(context.Background())
	if err != nil {
		log.Fatalf("failed to list market categories: %v", err)
	}
	if len(categories) == 0 {
		log.Fatalf("no market categories configured")
	}

	// 7. 通知与 ID
	notifier := notification.NewNotifier(producer, appLogger)
	idgen := utils.NewSnowflakeID(cfg.Market.NodeID)

	// 8. 行情采集
	initialPrices := make(map[string]decimal.Decimal, len(cfg.Market.Categories))
	for _, c := range cfg.Market.Categories {
		if c.InitialPrice == "" {
			continue
		}
		p, err := decimal.NewFromString(c.InitialPrice)
		if err != nil {
			log.Fatalf("category %s: invalid initial_price %q: %v", c.Name, c.InitialPrice, err)
		}
		initialPrices[c.Name] = p
	}
	priceSource := source.NewSimulatedSource(initialPrices, time.Now().UnixNano(), 0.002)
	collector := marketdataapp.NewCollector(
		tickRepo, priceSource, roundRepo, redisCache, notifier, appLogger,
		time.Duration(cfg.Market.PriceInterval)*time.Second, categories,
	)

	// 9. 应用服务与适配器
	ammRounds := ammadapter.NewRoundAdapter(roundRepo)
	ammBalances := ammadapter.NewBalanceAdapter(accountRepo)
	ammPositions := ammadapter.NewPositionAdapter(positionRepo)
	ammConfig := ammadapter.NewConfigAdapter(configStore)
	ammCommand := ammapp.NewPoolCommandService(
		poolRepo, tradeRepo, ammRounds, ammBalances, ammPositions, ammConfig,
		notifier, notifier, idgen, m,
	)
	ammQuery := ammapp.NewPoolQueryService(poolRepo, tradeRepo, ammRounds, ammConfig)

	positionQuery := positionapp.NewPositionQueryService(positionRepo, positionadapter.NewPoolPriceProvider(poolRepo))
	accountService := accountapp.NewAccountService(accountRepo, appLogger)

	settlementService := settlementapp.NewSettlementService(
		roundRepo, settlementRepo, positionRepo, betRepo, accountRepo,
		configStore, collector, streakCfg, m, appLogger,
	)
	scheduler := roundapp.NewScheduler(
		roundRepo, configStore, ammCommand, settlementService, collector, notifier, m, appLogger,
		time.Duration(cfg.Market.SweepInterval)*time.Second,
		time.Duration(cfg.Market.ClosedPollInterval)*time.Second,
	)
	roundQuery := roundapp.NewRoundQueryService(roundRepo, redisCache, appLogger)

	betService := betapp.NewBetService(
		betRepo,
		betadapter.NewRoundAdapter(roundRepo),
		betadapter.NewOddsAdapter(poolRepo),
		betadapter.NewBalanceAdapter(accountRepo),
		betadapter.NewConfigAdapter(configStore),
		notifier, notifier, idgen, m,
	)

	// 10. HTTP
	if cfg.Environment == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.GinRecovery(),
		middleware.GinLogging(),
		middleware.GinCORS(),
		middleware.GinMetrics(m),
	)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": cfg.ServiceName})
	})
	root := router.Group("")
	ammhttp.NewAMMHandler(ammCommand, ammQuery).RegisterRoutes(root)
	roundhttp.NewRoundHandler(roundQuery).RegisterRoutes(root)
	bethttp.NewBetHandler(betService).RegisterRoutes(root)
	accounthttp.NewAccountHandler(accountService).RegisterRoutes(root)
	positionhttp.NewPositionHandler(positionQuery).RegisterRoutes(root)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}

	// 11. 启动
	ctx := context.Background()
	collector.Start(ctx)
	if err := scheduler.Start(ctx); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	go func() {
		appLogger.Info("http server started", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server failed: %v", err)
		}
	}()

	// 12. 优雅退出：先停调度与采集，再停 HTTP，最后释放连接
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("shutting down...")

	scheduler.Stop()
	collector.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("http server shutdown failed", "error", err)
	}
	if err := producer.Close(); err != nil {
		appLogger.Error("kafka producer close failed", "error", err)
	}
	if err := redisCache.Close(); err != nil {
		appLogger.Error("redis close failed", "error", err)
	}
	if err := database.Close(); err != nil {
		appLogger.Error("database close failed", "error", err)
	}
	appLogger.Info("bye")
}
