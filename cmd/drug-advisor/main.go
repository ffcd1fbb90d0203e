package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clinicscore/drug-advisor/internal/api"
	"github.com/clinicscore/drug-advisor/internal/cache"
	"github.com/clinicscore/drug-advisor/internal/config"
	"github.com/clinicscore/drug-advisor/internal/feed"
	"github.com/clinicscore/drug-advisor/internal/gateway"
	"github.com/clinicscore/drug-advisor/internal/metrics"
	"github.com/clinicscore/drug-advisor/internal/models"
	"github.com/clinicscore/drug-advisor/internal/repo"
	"github.com/clinicscore/drug-advisor/internal/services"
	"github.com/clinicscore/drug-advisor/internal/utils"
	"github.com/clinicscore/drug-advisor/internal/workflow"
)

// readinessFeed reports every deployment list outcome to the probe.
type readinessFeed struct {
	feed   *feed.Feed
	server *api.Server
}

func (r readinessFeed) Load(ctx context.Context) ([]models.Deployment, error) {
	deployments, err := r.feed.Load(ctx)
	if err == nil {
		r.server.SetReady(true)
	} else if !errors.Is(err, context.Canceled) {
		r.server.SetReady(false)
	}
	return deployments, err
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting drug-advisor", slog.String("address", cfg.Server.Address))

	model, err := config.LoadModel(cfg.Model.Path)
	if err != nil {
		logger.Error("failed to load model file", slog.String("path", cfg.Model.Path), slog.Any("error", err))
		os.Exit(1)
	}

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	var cacheProvider cache.Provider = cache.NoopProvider{}
	if cfg.Cache.Enabled && cfg.Cache.Addr != "" {
		dialCtx, cancelDial := context.WithTimeout(context.Background(), cfg.Cache.DialTimeout)
		provider, err := cache.NewRedisProvider(dialCtx, cache.RedisConfig{
			Addr:         cfg.Cache.Addr,
			Username:     cfg.Cache.Username,
			Password:     cfg.Cache.Password,
			DB:           cfg.Cache.DB,
			DialTimeout:  cfg.Cache.DialTimeout,
			ReadTimeout:  cfg.Cache.ReadTimeout,
			WriteTimeout: cfg.Cache.WriteTimeout,
			MaxRetries:   cfg.Cache.MaxRetries,
		})
		cancelDial()
		if err != nil {
			logger.Warn("redis cache unavailable", slog.Any("error", err))
		} else {
			cacheProvider = provider
		}
	}
	defer cacheProvider.Close()

	envClient := repo.NewEnvClient(cfg.Env, cacheProvider, cfg.Cache.DeploymentsTTL, logger)

	feedOpts, err := feed.OptionsFromConfig(model, cfg.Model)
	if err != nil {
		logger.Error("invalid model settings", slog.Any("error", err))
		os.Exit(1)
	}
	deploymentFeed := feed.New(envClient, feedOpts, logger)
	scoring := gateway.NewScoringGateway(envClient, logger)
	feedback := gateway.NewFeedbackGateway(envClient, logger)

	gin.SetMode(gin.ReleaseMode)
	var server *api.Server
	sessions := services.NewSessionService(logger, cfg.Sessions, model, func(alert workflow.AlertFunc) *workflow.Controller {
		return workflow.New(workflow.Options{
			Feed:           readinessFeed{feed: deploymentFeed, server: server},
			Scorer:         scoring,
			Feedback:       feedback,
			Model:          model,
			Alert:          alert,
			RequestTimeout: cfg.Env.Timeout,
			Logger:         logger,
		})
	})
	defer sessions.Close()

	handler := api.NewHandler(sessions, logger, func() bool { return server.Ready() })
	server, err = api.NewServer(cfg.Server, handler.Router())
	if err != nil {
		logger.Error("failed to create server", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		_, err := readinessFeed{feed: deploymentFeed, server: server}.Load(ctx)
		if err != nil {
			logger.Warn("deployment environment not reachable yet", slog.String("reason", utils.UserMessage(err)))
			return
		}
		logger.Info("deployment environment reachable", slog.Any("breakers", envClient.BreakerStates()))
	}()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		logger.Info("api listening",
			slog.String("address", server.Address()),
			slog.String("probe", server.ProbeAddress()))
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.GracefulTimeout())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api shutdown", slog.Any("error", err))
	}

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	logger.Info("drug-advisor stopped", slog.Duration("workflowP95", sessions.LatencyP95()))
}
