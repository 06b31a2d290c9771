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

	"github.com/infrawatchstack/infrawatch-insight/internal/api"
	"github.com/infrawatchstack/infrawatch-insight/internal/cache"
	"github.com/infrawatchstack/infrawatch-insight/internal/config"
	"github.com/infrawatchstack/infrawatch-insight/internal/engine"
	"github.com/infrawatchstack/infrawatch-insight/internal/metrics"
	"github.com/infrawatchstack/infrawatch-insight/internal/repo"
	"github.com/infrawatchstack/infrawatch-insight/internal/retrieval"
	"github.com/infrawatchstack/infrawatch-insight/internal/services"
	"github.com/infrawatchstack/infrawatch-insight/internal/utils"
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
	logger.Info("starting infrawatch-insight", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	var cacheProvider cache.Provider = cache.NoopProvider{}
	if cfg.Cache.Enabled && cfg.Cache.Addr != "" {
		provider, err := cache.NewRedisProvider(cache.RedisConfig{
			Addr:        cfg.Cache.Addr,
			Username:    cfg.Cache.Username,
			Password:    cfg.Cache.Password,
			DB:          cfg.Cache.DB,
			DialTimeout: cfg.Cache.DialTimeout,
		})
		if err != nil {
			logger.Warn("redis cache unavailable, running without cache", slog.Any("error", err))
		} else {
			cacheProvider = provider
			defer provider.Close()
		}
	}

	infraClient := repo.NewInfraWatchClient(
		cfg.Clients.InfraWatch.BaseURL,
		cfg.Clients.InfraWatch.Token,
		cfg.Clients.InfraWatch.Timeout,
		cacheProvider,
		cfg.Clients.InfraWatch.OverviewTTL,
		logger,
	)

	geminiClient := repo.NewGeminiClient(
		cfg.LLM.BaseURL,
		cfg.LLM.Model,
		cfg.LLM.EmbedModel,
		cfg.LLM.APIKey,
		cfg.LLM.Timeout,
		logger,
	)

	store, err := newStore(cfg.Retrieval, geminiClient, logger)
	if err != nil {
		logger.Error("failed to open knowledge base", slog.Any("error", err))
		os.Exit(1)
	}
	metrics.SetKnowledgeDocuments(store.Stats().TotalDocuments)

	rules, err := engine.LoadRuleTable(cfg.Rules.Path)
	if err != nil {
		logger.Error("failed to load rule pack", slog.Any("error", err))
		os.Exit(1)
	}
	analyzer := engine.NewAnalyzer(logger, rules)

	insightService := services.NewInsightService(
		logger, store, geminiClient, infraClient,
		cfg.Retrieval.ContextMaxChars, cfg.Retrieval.TopK,
	)
	predictiveService := services.NewPredictiveService(logger, analyzer, infraClient, geminiClient, cacheProvider, cfg.Cache.AnalysisTTL)

	handlers := api.NewHandlers(logger, insightService, predictiveService)
	server, err := api.NewServer(cfg.Server, handlers, logger)
	if err != nil {
		logger.Error("failed to create HTTP server", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	if err := store.Persist(); err != nil {
		logger.Warn("knowledge base persist on shutdown", slog.Any("error", err))
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("infrawatch-insight stopped")
}

// newStore picks the retrieval strategy. The vector strategy needs the model
// for embeddings; lexical is self-contained and the default.
func newStore(cfg config.RetrievalConfig, embedder retrieval.Embedder, logger *slog.Logger) (retrieval.Store, error) {
	if cfg.Strategy == "vector" {
		return retrieval.NewVectorStore(logger, embedder, cfg.KnowledgeBase)
	}
	return retrieval.NewLexicalStore(logger, cfg.KnowledgeBase)
}
