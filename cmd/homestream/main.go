package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"homestream/internal/core/domain"
	"homestream/internal/core/services"
	httphandlers "homestream/internal/handlers/http"
	"homestream/internal/infrastructure/audio"
	"homestream/internal/infrastructure/broker"
	"homestream/internal/infrastructure/middleware"
	"homestream/internal/infrastructure/monitoring"
	"homestream/internal/infrastructure/notify"
	"homestream/internal/infrastructure/repositories"
	"homestream/pkg/backoff"
	"homestream/pkg/config"
	"homestream/pkg/logger"
	"homestream/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	startTime := time.Now()

	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/homestream/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}
	if err != nil {
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	// Tracing
	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "homestream",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	// Snapshot repositories (Redis with memory fallback)
	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}
	snapshots := repoFactory.CreateSnapshotRepository()

	// Notification bus and metrics
	bus := notify.New()
	collector := monitoring.NewPrometheusCollector()

	// Audio playback
	sinkFactory := audio.NopSinkFactory
	if cfg.Audio.Enabled {
		sinkFactory = audio.MalgoSinkFactory
	}
	player := audio.NewManager(sinkFactory, cfg.Audio.QueueCap, collector, log)
	player.SetVolume(cfg.Audio.Volume)

	// Stream state and routing
	store := services.NewStateStore()
	registry := broker.NewRegistry()

	var client *broker.Client

	var exporter func(domain.StreamMetrics)
	if cfg.StatsExport.Enabled {
		exporter = func(m domain.StreamMetrics) {
			if err := client.SendStats(m); err != nil {
				log.Debugw("stats export skipped", "device_id", m.DeviceID, "error", err)
			}
		}
	}

	var router *broker.Router

	router = broker.NewRouter(broker.RouterOptions{
		Registry:  registry,
		Store:     store,
		Notifier:  bus,
		Audio:     player,
		Metrics:   collector,
		Snapshots: snapshots,
		Exporter:  exporter,
		OnFrame: func(deviceID domain.DeviceID, image domain.Image) {
			renderStart := time.Now()
			log.Debugw("frame displayed",
				"device_id", deviceID,
				"bytes", len(image.Data),
				"resolution", image.Resolution,
			)
			router.Limiter(deviceID).RecordRenderTime(time.Since(renderStart))
		},
		LimiterCfg: services.LimiterConfig{
			MaxFPS:          cfg.Display.MaxFPS,
			MinFPS:          cfg.Display.MinFPS,
			Adaptive:        cfg.Display.Adaptive,
			RenderWindow:    cfg.Display.RenderWindow,
			LowFPSThreshold: cfg.Display.LowFPSThreshold,
			HighLatency:     cfg.Display.HighLatency,
			StatsInterval:   cfg.StatsExport.Interval,
		},
		Logger: log,
	})

	client = broker.NewClient(broker.Config{
		URL:              cfg.Broker.URL,
		Token:            cfg.Broker.Token,
		PingInterval:     cfg.Broker.PingInterval,
		WriteTimeout:     cfg.Broker.WriteTimeout,
		HandshakeTimeout: cfg.Broker.HandshakeTimeout,
		Backoff: backoff.Policy{
			InitialDelay: cfg.Reconnect.InitialDelay,
			MaxDelay:     cfg.Reconnect.MaxDelay,
			Multiplier:   cfg.Reconnect.Multiplier,
			MaxAttempts:  cfg.Reconnect.MaxAttempts,
		},
	}, router, registry, bus, collector, log)

	// Console renderer: the bus decouples it from the connection manager
	// and router entirely.
	unsubscribers := []func(){
		bus.Subscribe(func(e notify.ConnectionStateEvent) {
			log.Infow("connection state changed",
				"state", e.Info.State,
				"session_id", e.Info.SessionID,
				"attempts", e.Info.Attempts,
			)
		}),
		bus.Subscribe(func(e notify.ConnectionRestoredEvent) {
			log.Infow("connection restored", "after_attempts", e.AfterAttempts)
		}),
		bus.Subscribe(func(e notify.ConnectionUnstableEvent) {
			log.Warnw("connection unstable, check broker availability", "attempts", e.Attempts)
		}),
		bus.Subscribe(func(e notify.ConnectionFailedEvent) {
			log.Errorw("connection attempts exhausted", "last_error", e.LastError)
		}),
		bus.Subscribe(func(e notify.StatusChangedEvent) {
			log.Infow("device status changed",
				"device_id", e.DeviceID,
				"from", e.From,
				"to", e.To,
				"last_seen", e.LastSeen.LastSeen,
			)
		}),
		bus.Subscribe(func(e notify.AlertEvent) {
			log.Warnw("device alert",
				"device_id", e.DeviceID,
				"message", e.Alert.Message,
				"severity", e.Alert.Severity,
			)
		}),
		bus.Subscribe(func(e notify.ServerStatsEvent) {
			log.Infow("broker stats",
				"total_connections", e.Stats.TotalConnections,
				"subscriptions", len(e.Stats.Subscriptions),
			)
		}),
		bus.Subscribe(func(e notify.DiagnosticEvent) {
			log.Debugw("broker diagnostic", "kind", e.Kind, "device_id", e.DeviceID, "message", e.Message)
		}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		log.Fatalw("failed to start broker connection", "error", err)
	}

	for _, id := range cfg.Devices {
		if err := client.Subscribe(domain.DeviceID(id)); err != nil {
			log.Warnw("initial subscription failed", "device_id", id, "error", err)
		}
	}

	// Diagnostic HTTP API
	var apiServer *http.Server
	if cfg.API.Enabled {
		if cfg.Logging.Level != "debug" {
			gin.SetMode(gin.ReleaseMode)
		}
		ginRouter := gin.New()
		ginRouter.Use(middleware.RecoveryMiddleware(log))
		ginRouter.Use(middleware.ErrorHandlerMiddleware(log))
		ginRouter.Use(middleware.NewRateLimitMiddleware(cfg))
		if cfg.Tracing.Enabled {
			ginRouter.Use(middleware.TracingMiddleware())
		}

		httphandlers.NewStatusHandler(client, store, router, snapshots).SetupRoutes(ginRouter)

		if cfg.Monitoring.PrometheusEnabled {
			ginRouter.GET("/metrics", gin.WrapH(promhttp.Handler()))
		}

		ginRouter.GET("/ready", func(c *gin.Context) {
			readyCtx, readyCancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer readyCancel()

			if err := repoFactory.HealthCheck(readyCtx); err != nil {
				c.JSON(503, gin.H{"status": "not_ready", "error": err.Error()})
				return
			}
			c.JSON(200, gin.H{
				"status": "ready",
				"uptime": time.Since(startTime).String(),
			})
		})

		apiServer = &http.Server{
			Addr:         cfg.API.Address,
			Handler:      ginRouter,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}

		go func() {
			log.Infof("Starting diagnostic API on %s", cfg.API.Address)
			if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorw("diagnostic API failed", "error", err)
			}
		}()
	}

	log.Infow("homestream client started",
		"broker_url", cfg.Broker.URL,
		"devices", cfg.Devices,
		"max_fps", cfg.Display.MaxFPS,
		"audio", cfg.Audio.Enabled,
	)

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Infow("received shutdown signal", "signal", sig)

	// Clean close: code 1000, no reconnect
	if err := client.Close(); err != nil {
		log.Errorw("error closing broker connection", "error", err)
	}

	for _, unsubscribe := range unsubscribers {
		unsubscribe()
	}

	if apiServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Errorw("error during API server shutdown", "error", err)
		}
		shutdownCancel()
	}

	if err := player.Close(); err != nil {
		log.Errorw("error closing audio playback", "error", err)
	}
	if err := repoFactory.Close(); err != nil {
		log.Errorw("error closing repository factory", "error", err)
	}

	tracingCtx, tracingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := tracerProvider.Shutdown(tracingCtx); err != nil {
		log.Errorw("error shutting down tracing", "error", err)
	}
	tracingCancel()

	log.Info("homestream client stopped")
}
