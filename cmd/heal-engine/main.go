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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sentinelstack/sentinel-heal/internal/api"
	"github.com/sentinelstack/sentinel-heal/internal/cache"
	"github.com/sentinelstack/sentinel-heal/internal/config"
	"github.com/sentinelstack/sentinel-heal/internal/healing"
	"github.com/sentinelstack/sentinel-heal/internal/health"
	"github.com/sentinelstack/sentinel-heal/internal/knowledge"
	"github.com/sentinelstack/sentinel-heal/internal/metrics"
	"github.com/sentinelstack/sentinel-heal/internal/patterns"
	"github.com/sentinelstack/sentinel-heal/internal/similarity"
	"github.com/sentinelstack/sentinel-heal/internal/source"
	"github.com/sentinelstack/sentinel-heal/internal/utils"
)

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
	logger.Info("starting sentinel-heal", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	var cacheProvider cache.Provider = cache.NoopProvider{}
	var redisCloser cache.Provider
	if cfg.Cache.Enabled && cfg.Cache.Addr != "" {
		provider, err := cache.NewRedisProvider(cache.RedisConfig{
			Addr:         cfg.Cache.Addr,
			Username:     cfg.Cache.Username,
			Password:     cfg.Cache.Password,
			DB:           cfg.Cache.DB,
			DialTimeout:  cfg.Cache.DialTimeout,
			ReadTimeout:  cfg.Cache.ReadTimeout,
			WriteTimeout: cfg.Cache.WriteTimeout,
			MaxRetries:   cfg.Cache.MaxRetries,
			TLS:          cfg.Cache.TLS,
		})
		if err != nil {
			logger.Warn("redis cache unavailable", slog.Any("error", err))
		} else {
			cacheProvider = provider
			redisCloser = provider
		}
	}
	if redisCloser != nil {
		defer redisCloser.Close()
	}

	metricSource := source.NewCoreClient(
		cfg.Source.BaseURL,
		cfg.Source.SnapshotPath,
		cfg.Source.Timeout,
	)
	sampler := source.NewSystemSampler()

	store := knowledge.NewHTTPStore(
		cfg.Knowledge.Endpoint,
		cfg.Knowledge.APIKey,
		cfg.Knowledge.Timeout,
		cacheProvider,
		cfg.Cache.SimilarTTL,
		cfg.Cache.PatternsTTL,
	)

	sim := similarity.NewEngine(similarity.DefaultWeights(), 0)
	knowledgeClient := knowledge.NewClient(logger, store, sim, knowledge.ClientConfig{
		Domain:              cfg.Knowledge.Domain,
		FetchWindow:         cfg.Knowledge.FetchWindow,
		SimilarityThreshold: cfg.Knowledge.SimilarityThreshold,
		MaxResults:          cfg.Knowledge.MaxResults,
	})
	recency := knowledge.NewRecencyCache(cfg.Knowledge.RecencyCapacity)
	miner := patterns.NewMiner(logger, store, 15*time.Minute, 3)
	syncer := knowledge.NewSyncer(logger, knowledgeClient, recency, miner, cfg.Knowledge.SyncWindow)

	thresholds := health.Thresholds{
		ErrorRate:         cfg.Thresholds.ErrorRate,
		ResponseP95Ms:     cfg.Thresholds.ResponseP95Ms,
		MemoryRatio:       cfg.Thresholds.MemoryRatio,
		AgentFailureRatio: cfg.Thresholds.AgentFailureRatio,
		DatabaseP95Ms:     cfg.Thresholds.DatabaseP95Ms,
		WebsocketP95Ms:    cfg.Thresholds.WebsocketP95Ms,
		MinSamples:        cfg.Thresholds.MinSamples,
	}
	evaluator := health.NewEvaluator(logger, metricSource, thresholds)

	var analyzer *healing.Analyzer
	if cfg.Predictive.Enabled {
		analyzer = healing.NewAnalyzer(logger, metricSource, healing.NewBaselines(), knowledgeClient, healing.AnalyzerConfig{
			RiskThreshold:     cfg.Predictive.RiskThreshold,
			ErrorRateScale:    cfg.Predictive.ErrorRateScale,
			ResponseCeilingMs: cfg.Predictive.ResponseCeilingMs,
		})
	}

	catalogue := healing.NewCatalogue()
	cooldowns := healing.NewCooldownManager(healing.CooldownWindows{
		Critical: cfg.Healing.Cooldowns.Critical,
		High:     cfg.Healing.Cooldowns.High,
		Warning:  cfg.Healing.Cooldowns.Warning,
		Medium:   cfg.Healing.Cooldowns.Medium,
		Default:  cfg.Healing.Cooldowns.Default,
	}, nil)
	stats := healing.NewStrategyStats()

	executor := healing.NewExecutor(
		logger,
		metricSource,
		sampler,
		knowledgeClient,
		recency,
		sim,
		catalogue,
		cooldowns,
		stats,
		healing.Hooks{},
		nil,
		healing.ExecutorConfig{
			ImprovementMargin:   cfg.Healing.ImprovementMargin,
			ActionTimeout:       cfg.Healing.ActionTimeout,
			OverallBudget:       cfg.Healing.OverallBudget,
			RecentEvents:        cfg.Healing.RecentEvents,
			SimilarityThreshold: cfg.Knowledge.SimilarityThreshold,
			MaxSimilar:          cfg.Knowledge.MaxResults,
		},
		nil,
	)

	engine := healing.NewEngine(
		logger,
		evaluator,
		analyzer,
		executor,
		syncer,
		recency,
		catalogue,
		cooldowns,
		stats,
		healing.EngineConfig{
			HealthInterval:     cfg.Healing.HealthInterval,
			PredictiveInterval: cfg.Predictive.Interval,
			SyncInterval:       cfg.Healing.SyncInterval,
			CleanupInterval:    cfg.Healing.CleanupInterval,
		},
	)

	server, err := api.NewServer(cfg.Server, api.NewHandlers(logger, engine, knowledgeClient))
	if err != nil {
		logger.Error("failed to create HTTP server", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine.Start(ctx)

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
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("HTTP server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	engine.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("sentinel-heal stopped")
}
