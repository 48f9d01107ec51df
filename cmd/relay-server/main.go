package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"livetiming/internal/cache"
	"livetiming/internal/config"
	"livetiming/internal/ingestion/signalr"
	"livetiming/internal/liveness"
	"livetiming/internal/microservices/http-api/handler"
	"livetiming/internal/microservices/websocket"
	"livetiming/internal/state"
)

const shutdownTimeout = 10 * time.Second

func main() {
	envFile := pflag.String("env-file", ".env", "path to a dotenv file loaded before reading the environment")
	httpPort := pflag.Int("http-port", 0, "override HTTP_PORT")
	logLevel := pflag.String("log-level", "", "override LOG_LEVEL (debug, info, warn, error)")
	pflag.Parse()

	// Configuration
	cfg, err := config.LoadConfigFrom(*envFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *httpPort != 0 {
		cfg.HTTPPort = *httpPort
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	// Setup structured logging
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("relay_server_error", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("relay_server_stopped")
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	thresholds := liveness.Thresholds{
		StalenessWindow: cfg.StalenessWindow,
		MinMessages:     cfg.MinMeaningfulMessages,
	}

	store := state.NewStore(state.Options{
		EmptyFrameThreshold: cfg.EmptyFrameGuard(),
		Logger:              logger,
	})

	client := signalr.NewClient(signalr.ClientConfig{
		BaseURL:       cfg.UpstreamHost,
		Hub:           cfg.UpstreamHub,
		Topics:        cfg.UpstreamTopics,
		NegotiateRate: cfg.NegotiateRate,
		Logger:        logger,
	})
	supervisor := signalr.NewSupervisor(client, signalr.NewDecoder(logger), store, signalr.SupervisorConfig{
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})

	// Optional Redis mirror; a nil repo is a no-op
	var repo *cache.StateRedisRepo
	var mirror websocket.Mirror
	if cfg.RedisURL != "" {
		r, err := cache.NewStateRedisRepo(cfg.RedisURL, cfg.RedisPassword, cfg.CacheTTL)
		if err != nil {
			logger.Warn("state_mirror_disabled", "error", err.Error())
		} else {
			defer r.Close()
			repo, mirror = r, r
		}
	}

	hub := websocket.NewHub(logger)
	broadcaster := websocket.NewBroadcaster(hub, store, websocket.BroadcasterConfig{
		Interval:          cfg.BroadcastInterval,
		Thresholds:        thresholds,
		SendInactiveState: cfg.SendInactiveState(),
		Mirror:            mirror,
		Logger:            logger,
	})

	status := handler.NewStatusHandler(supervisor, store, hub, thresholds)
	if repo != nil {
		status.WithMirror(repo)
	}
	router := handler.NewRouter(handler.RouterConfig{
		Status: status,
		Hub:    hub,
		WebSocket: websocket.HandlerConfig{
			AllowedOrigins: cfg.CORSOrigins,
			Limiter:        rate.NewLimiter(cfg.WSUpgradeRate, upgradeBurst(cfg.WSUpgradeRate)),
			SendBuffer:     cfg.WSSendBuffer,
		},
		Logger: logger,
	})
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("starting_relay_server",
		"http_addr", server.Addr,
		"upstream", cfg.UpstreamHost,
		"environment", cfg.GoEnv,
		"redis_mirror", mirror != nil,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		store.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return ignoreCanceled(supervisor.Run(gctx))
	})
	g.Go(func() error {
		return ignoreCanceled(broadcaster.Run(gctx))
	})
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("received_shutdown_signal")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		hub.CloseAll()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// upgradeBurst allows one second worth of upgrades at once
func upgradeBurst(limit rate.Limit) int {
	if limit == rate.Inf {
		return 1
	}
	return int(math.Ceil(float64(limit)))
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
