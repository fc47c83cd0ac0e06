package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/GachokiR/far-clarity-advisor-sub001/api"
	"github.com/GachokiR/far-clarity-advisor-sub001/internal/advisor"
	"github.com/GachokiR/far-clarity-advisor-sub001/internal/ai"
	aiopenai "github.com/GachokiR/far-clarity-advisor-sub001/internal/ai/openai"
	"github.com/GachokiR/far-clarity-advisor-sub001/internal/auth"
	"github.com/GachokiR/far-clarity-advisor-sub001/internal/cache"
	"github.com/GachokiR/far-clarity-advisor-sub001/internal/config"
	"github.com/GachokiR/far-clarity-advisor-sub001/internal/infra"
	"github.com/GachokiR/far-clarity-advisor-sub001/internal/logger"
	"github.com/GachokiR/far-clarity-advisor-sub001/internal/ratelimit"
	"github.com/GachokiR/far-clarity-advisor-sub001/internal/security"
)

func main() {
	// 统一加载 .env，便于集中管理 APP_* 环境变量
	if err := godotenv.Load(); err == nil {
		fmt.Println("已加载 .env 文件")
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}

	// 1. 加载配置
	cfg, err := config.Load(env, "")
	if err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("应用启动中...",
		zap.String("env", env),
		zap.String("mode", cfg.Server.Mode),
	)

	// 3. 初始化数据库
	db, err := infra.InitDatabase(&cfg.Database)
	if err != nil {
		logger.Fatal("初始化数据库失败", zap.Error(err))
	}
	defer infra.CloseDatabase(db)

	// 4. 可选的 Redis（分布式限流用）
	var redisClient redis.UniversalClient
	if cfg.Redis.Enabled {
		redisClient, err = infra.InitRedis(&cfg.Redis)
		if err != nil {
			logger.Fatal("初始化 Redis 失败", zap.Error(err))
		}
		defer redisClient.Close()
	}

	// 5. 显式构造各组件并装配依赖
	secCfg := &cfg.Security

	events := security.NewEventLog(secCfg.EventLog.Capacity, security.LogEscalator{})

	alertStore := security.NewAlertStore()
	alerts := security.NewAlertManager(alertStore, events)
	alerts.SetSeverityOverrides(secCfg.EscalationOverrides)
	analyzer := security.NewAnalyzer()
	behaviorAlerts := security.NewBehaviorAlertManager(alerts, events)

	authority := auth.NewAuthority()
	seedAdmin(authority)

	if cfg.JWT.Secret == "" {
		logger.Fatal("缺少 JWT 密钥，请设置 APP_JWT_SECRET")
	}
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, time.Duration(cfg.JWT.ExpiryHours)*time.Hour)

	// 限流器：Redis 可用时走分布式计数，否则退化为进程内
	window := config.ParseDuration(secCfg.RateLimit.Window, ratelimit.DefaultWindow)
	var limiter ratelimit.Limiter
	if redisClient != nil {
		limiter = ratelimit.NewRedisLimiter(redisClient, window, secCfg.RateLimit.MaxRequests)
	} else {
		limiter = ratelimit.NewWindowLimiter(window, secCfg.RateLimit.MaxRequests)
	}

	// 分析结果缓存
	resultCache := cache.New[*advisor.AnalysisResult](
		config.ParseDuration(secCfg.Cache.DefaultTTL, cache.DefaultTTL),
		config.ParseDuration(secCfg.Cache.SweepInterval, cache.DefaultSweepInterval),
	)
	defer resultCache.Stop()

	// AI 客户端：带超时重试降级的弹性包装
	var inner ai.Client
	if cfg.AI.OpenAI.APIKey != "" {
		inner, err = aiopenai.NewClient(cfg.AI.OpenAI.APIKey, cfg.AI.OpenAI.BaseURL, cfg.AI.OpenAI.Model)
		if err != nil {
			logger.Fatal("初始化 OpenAI 客户端失败", zap.Error(err))
		}
	} else {
		logger.Warn("未配置 OpenAI API Key，合规分析将返回兜底结果")
		inner = ai.UnavailableClient{}
	}
	aiClient := ai.NewResilientClient(inner, logger.Named("ai"),
		ai.WithCallTimeout(config.ParseDuration(secCfg.Resilience.CallTimeout, ai.DefaultCallTimeout)),
		ai.WithMaxRetries(secCfg.Resilience.MaxRetries),
		ai.WithBackoffBase(config.ParseDuration(secCfg.Resilience.BackoffBase, ai.DefaultBackoffBase)),
	)

	advisorService := advisor.NewService(db, aiClient, limiter, resultCache, events, logger.Named("advisor"))
	if cfg.Database.AutoMigrate {
		if err := advisorService.Migrate(); err != nil {
			logger.Fatal("数据库迁移失败", zap.Error(err))
		}
	}
	alerts.SetArchiver(advisorService)

	// 6. 创建路由
	router := api.SetupRouter(&api.Container{
		Config:         cfg,
		DB:             db,
		JWTService:     jwtService,
		Authority:      authority,
		Events:         events,
		Alerts:         alerts,
		Analyzer:       analyzer,
		BehaviorAlerts: behaviorAlerts,
		AdvisorService: advisorService,
		APILimiter:     limiter,
	})

	// 7. HTTP 服务器
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("HTTP 服务器启动", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP 服务器启动失败", zap.Error(err))
		}
	}()

	// 8. 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("收到关闭信号，开始优雅关闭...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("HTTP 服务器关闭异常", zap.Error(err))
	}
	logger.Info("应用已退出")
}

// seedAdmin 从环境变量注入初始管理员，便于首次部署后完成后续授权
func seedAdmin(authority *auth.Authority) {
	adminID := os.Getenv("APP_BOOTSTRAP_ADMIN")
	if adminID == "" {
		return
	}
	if _, err := authority.AssignRole(adminID, auth.RoleAdmin, "bootstrap"); err != nil {
		logger.Warn("初始管理员指派失败", zap.Error(err))
		return
	}
	logger.Info("初始管理员已指派", zap.String("userId", adminID))
}
