package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"livecast/internal/core/domain"
	"livecast/internal/core/ports"
	"livecast/internal/core/services"
	httphandlers "livecast/internal/handlers/http"
	backupinfra "livecast/internal/infrastructure/backup"
	"livecast/internal/infrastructure/distributed"
	"livecast/internal/infrastructure/middleware"
	"livecast/internal/infrastructure/monitoring"
	"livecast/internal/infrastructure/reliability"
	"livecast/internal/infrastructure/repositories"
	wsgateway "livecast/internal/infrastructure/signal"
	"livecast/pkg/backup"
	"livecast/pkg/circuitbreaker"
	"livecast/pkg/config"
	"livecast/pkg/logger"
	"livecast/pkg/retry"
	"livecast/pkg/tracing"
	"livecast/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var configPaths = []string{
	"configs/config.yaml",
	"./configs/config.yaml",
	"/etc/livecast/config.yaml",
	"config.yaml",
}

// loadConfig uses LIVECAST_CONFIG when set, otherwise the first config
// file that exists. With no file at all the defaults apply.
func loadConfig() (*config.Config, string, error) {
	if path := os.Getenv("LIVECAST_CONFIG"); path != "" {
		cfg, err := config.Load(path)
		return cfg, path, err
	}
	for _, path := range configPaths {
		if _, err := os.Stat(path); err == nil {
			cfg, err := config.Load(path)
			return cfg, path, err
		}
	}
	cfg, err := config.Load(configPaths[0])
	return cfg, "", err
}

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, cfgPath, err := loadConfig()
	if err != nil {
		zap.NewExample().Sugar().Fatalw("failed to load configuration", "path", cfgPath, "error", err)
	}

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()
	if cfgPath != "" {
		log.Infow("loaded configuration", "path", cfgPath)
	} else {
		log.Info("no configuration file found, using defaults")
	}

	instanceID := utils.NewInstanceID()
	log = log.With("instance_id", instanceID)

	tracingCfg := tracing.DefaultConfig()
	tracingCfg.Enabled = cfg.Tracing.Enabled
	tracingCfg.JaegerURL = cfg.Tracing.JaegerURL
	tracingCfg.Environment = cfg.Tracing.Environment
	tracingCfg.SampleRate = cfg.Tracing.SampleRate
	tracerProvider, err := tracing.Init(tracingCfg)
	if err != nil {
		log.Fatalw("failed to initialise tracing", "error", err)
	}

	var metrics ports.MetricsRecorder = ports.NopMetrics{}
	if cfg.Monitoring.PrometheusEnabled {
		metrics = monitoring.NewPrometheusCollector(prometheus.DefaultRegisterer)
	}

	repoFactory := repositories.NewRepositoryFactory(cfg, log)

	policy := retry.DefaultPolicy()
	policy.Attempts = cfg.Reliability.RetryAttempts
	policy.InitialDelay = cfg.Reliability.RetryInitialDelay
	breakerCfg := circuitbreaker.DefaultConfig("counters")
	breakerCfg.FailureThreshold = cfg.Reliability.BreakerFailures
	breakerCfg.OpenTimeout = cfg.Reliability.BreakerOpenTimeout

	baseCounters := repoFactory.CreateCounterStore()

	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()

	snapshotsDone := make(chan struct{})
	if source, ok := baseCounters.(backupinfra.CounterSource); ok && cfg.Backup.Enabled {
		storage, err := backup.NewFileStorage(cfg.Backup.Directory)
		if err != nil {
			log.Fatalw("failed to open snapshot directory", "error", err)
		}
		snapshots := backup.NewService(storage)
		if _, err := backupinfra.RestoreLatest(runCtx, snapshots, source, log); err != nil {
			log.Warnw("failed to restore counters", "error", err)
		}
		scheduler := backupinfra.NewScheduler(snapshots, source, instanceID, backupinfra.Config{
			Interval: cfg.Backup.Interval,
			Keep:     cfg.Backup.Keep,
		}, log)
		go func() {
			defer close(snapshotsDone)
			scheduler.Run(runCtx)
		}()
	} else {
		if cfg.Backup.Enabled {
			log.Info("counter snapshots skipped; Redis persists counters")
		}
		close(snapshotsDone)
	}

	var counters ports.CounterStore = reliability.NewCounterStoreWrapper(
		baseCounters, policy, breakerCfg, log)
	if cfg.Counters.ReadCacheTTL > 0 {
		cached := repositories.NewCachedCounterStore(counters, cfg.Counters.ReadCacheTTL)
		defer cached.Close()
		counters = cached
	}

	codec := wsgateway.NewCodec()
	opts := []services.BroadcasterOption{services.WithMetrics(metrics)}

	var bus *distributed.EventBus
	var presence *distributed.PresenceTracker
	if repoFactory.UsingRedis() {
		client := repoFactory.RedisClient()
		if cfg.Fanout.Enabled {
			bus = distributed.NewEventBus(client, instanceID, cfg.Fanout.Channel, log)
			opts = append(opts, services.WithFanout(bus))
		}
		if cfg.Presence.Enabled {
			presence = distributed.NewPresenceTracker(client, instanceID,
				cfg.Presence.HeartbeatInterval, cfg.Presence.InstanceTTL, log)
			opts = append(opts, services.WithPresence(presence))
		}
	} else if cfg.Fanout.Enabled || cfg.Presence.Enabled {
		log.Warn("fanout and presence need Redis; running as a single instance")
	}

	broadcaster := services.NewBroadcaster(services.BroadcasterConfig{
		InstanceID:    instanceID,
		MaxSessions:   cfg.Signal.MaxSessions,
		ChatMaxLength: cfg.Chat.MaxContentLength,
		ExcludeSender: cfg.Chat.ExcludeSender,
		RequireToken:  cfg.Auth.RequireToken,
		DefaultRoom:   domain.RoomID(cfg.Chat.DefaultRoom),
	}, services.NewRoomRegistry(log), counters, codec, log, opts...)

	go func() {
		if err := broadcaster.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Errorw("room fanout stopped", "error", err)
		}
	}()
	presenceDone := make(chan struct{})
	if presence != nil {
		go func() {
			defer close(presenceDone)
			presence.Run(runCtx)
		}()
	} else {
		close(presenceDone)
	}

	authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)

	gatewayCfg := wsgateway.DefaultGatewayConfig()
	gatewayCfg.PingInterval = cfg.Signal.PingInterval
	gatewayCfg.PongTimeout = cfg.Signal.PongTimeout
	gatewayCfg.WriteTimeout = cfg.Signal.WriteTimeout
	gatewayCfg.SendBufferSize = cfg.Signal.SendBufferSize
	gatewayCfg.AllowedOrigins = cfg.Signal.AllowedOrigins
	gatewayCfg.RequireToken = cfg.Auth.RequireToken
	gatewayCfg.MaxMessageSize = cfg.RateLimiting.WebSocket.MaxMessageSizeBytes
	gatewayCfg.MessagesPerSecond = 0
	if cfg.RateLimiting.Enabled {
		gatewayCfg.MessagesPerSecond = cfg.RateLimiting.WebSocket.MessagesPerSecond
		gatewayCfg.Burst = cfg.RateLimiting.WebSocket.Burst
	}
	gateway := wsgateway.NewGateway(gatewayCfg, broadcaster, authService, codec, metrics, zapLogger)

	healthChecker := monitoring.NewHealthChecker()
	healthChecker.AddDependency("counters", repoFactory, 2*time.Second)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		log.Fatalw("invalid trusted proxies", "error", err)
	}
	router.Use(
		middleware.RecoveryMiddleware(log),
		middleware.RequestLogger(logger.NewContextLogger(zapLogger)),
		middleware.TracingMiddleware(),
		middleware.ErrorHandlerMiddleware(log),
		middleware.NewHTTPRateLimitMiddleware(cfg),
	)

	httphandlers.NewHealthHandler(healthChecker, broadcaster, 3*time.Second).SetupRoutes(router)
	httphandlers.NewAuthHandler(authService).SetupRoutes(router)

	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(authService))
	httphandlers.NewRoomHandler(broadcaster).SetupRoutes(api)

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
	router.GET(cfg.Signal.Path, gateway.HandleWebSocket)

	srv := &http.Server{
		Addr:        cfg.Server.Address,
		Handler:     router,
		ReadTimeout: cfg.Server.ReadTimeout,
		// WriteTimeout stays unset: it would cut off hijacked WebSocket
		// connections. Session writes carry their own deadlines.
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting livecast broadcaster",
			"address", cfg.Server.Address,
			"ws_path", cfg.Signal.Path,
			"redis", repoFactory.UsingRedis(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Errorw("server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during server shutdown", "error", err)
		_ = srv.Close()
	}
	// Hijacked WebSocket connections are not tracked by srv.Shutdown.
	broadcaster.Shutdown(shutdownCtx)

	stopRun()
	if bus != nil {
		if err := bus.Close(); err != nil {
			log.Warnw("error closing event bus", "error", err)
		}
	}
	// Presence withdraws and the scheduler takes a final snapshot on stop.
	for _, done := range []chan struct{}{presenceDone, snapshotsDone} {
		select {
		case <-done:
		case <-shutdownCtx.Done():
			log.Warn("timed out waiting for background workers")
		}
	}
	if err := repoFactory.Close(); err != nil {
		log.Errorw("error closing repository factory", "error", err)
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Warnw("error shutting down tracer", "error", err)
	}

	log.Info("livecast broadcaster stopped")
}
