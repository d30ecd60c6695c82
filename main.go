package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/infrawatch/ai-agent/internal/agent"
	"github.com/infrawatch/ai-agent/internal/chunking"
	"github.com/infrawatch/ai-agent/internal/config"
	"github.com/infrawatch/ai-agent/internal/embeddings"
	"github.com/infrawatch/ai-agent/internal/infrawatch"
	"github.com/infrawatch/ai-agent/internal/insights"
	"github.com/infrawatch/ai-agent/internal/llm"
	"github.com/infrawatch/ai-agent/internal/predictive"
	"github.com/infrawatch/ai-agent/internal/prompt"
	"github.com/infrawatch/ai-agent/internal/ratelimit"
	"github.com/infrawatch/ai-agent/internal/respcache"
	"github.com/infrawatch/ai-agent/internal/retriever"
	"github.com/infrawatch/ai-agent/internal/session"
	"github.com/infrawatch/ai-agent/internal/vectordb"
)

func main() {
	configPath := flag.String("config", "config/agent.yaml", "path to the agent config file")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		})
	}

	chunker, err := chunking.NewChunker(cfg.Chunking)
	if err != nil {
		logger.Fatal("Invalid chunking configuration", zap.Error(err))
	}

	embedder := embeddings.NewService(cfg.Embeddings, logger)

	var store vectordb.Store
	switch cfg.VectorDB.Mode {
	case "http":
		store = vectordb.NewHTTPStore(cfg.VectorDB.HTTP, logger)
	default:
		store = vectordb.NewMemoryStore(cfg.Embeddings.Dimension, logger)
	}

	sessions, err := session.NewManager(redisClient, cfg.Session.TTL, cfg.Session.MaxHistory, logger)
	if err != nil {
		logger.Fatal("Failed to initialize session manager", zap.Error(err))
	}

	var cache respcache.Cache
	var limiter ratelimit.Limiter
	if redisClient != nil {
		cache = respcache.NewRedisCache(redisClient, cfg.Cache.TTL)
		limiter = ratelimit.NewRedisLimiter(redisClient, cfg.RateLimit.RequestsPerMinute, logger)
	} else {
		cache = respcache.NewMemoryCache(cfg.Cache.TTL)
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimit.RequestsPerMinute)
	}

	pacer := llm.NewPacer(cfg.LLM.ModelsPath, logger)
	generator := llm.NewClient(cfg.LLM.Client, pacer, logger)
	assembler := prompt.NewAssembler(cfg.Prompt)
	ret := retriever.New(embedder, store, cfg.Orchestrator.TopK, logger)
	ingestor := agent.NewIngestor(chunker, embedder, store, logger)

	orchestrator := agent.NewOrchestrator(
		ret, assembler, cache, limiter, generator, sessions,
		cfg.LLM.Generation, cfg.Orchestrator, logger,
	)
	_ = orchestrator // handed to the API layer, which lives outside this module

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
			logger.Info("Serving metrics", zap.String("addr", addr))
			if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	if cfg.Refresh.Enabled {
		backend := infrawatch.NewClient(cfg.InfraWatch, logger)
		go refreshLoop(ctx, backend, ingestor, cfg.Refresh.Interval, cfg.Predictive, logger)
	}

	logger.Info("InfraWatch AI agent started",
		zap.String("vectordb_mode", cfg.VectorDB.Mode),
		zap.Bool("redis", cfg.Redis.Enabled),
	)

	<-ctx.Done()
	logger.Info("Shutting down")
}

// refreshLoop periodically pulls telemetry from the monitoring backend,
// re-ingests the per-endpoint knowledge documents, and surfaces rule-based
// insights and predictions.
func refreshLoop(ctx context.Context, backend *infrawatch.Client, ingestor *agent.Ingestor, interval time.Duration, predictiveCfg predictive.Config, logger *zap.Logger) {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	refresh := func() {
		rctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()

		overview, err := backend.GetOverview(rctx)
		if err != nil {
			logger.Warn("Failed to fetch infrastructure overview", zap.Error(err))
		} else {
			for _, in := range insights.FromOverview(overview) {
				logger.Info("Insight",
					zap.String("severity", in.Severity),
					zap.String("title", in.Title),
					zap.String("recommendation", in.Recommendation),
				)
			}
		}

		samples, err := backend.GetRecentMetrics(rctx, 24)
		if err != nil {
			logger.Warn("Failed to fetch recent metrics", zap.Error(err))
			return
		}
		alerts, err := backend.GetAlerts(rctx, "", 50)
		if err != nil {
			logger.Warn("Failed to fetch alerts", zap.Error(err))
			alerts = nil
		}

		for _, pa := range predictive.Analyze(samples, alerts, predictiveCfg) {
			logger.Info("Predictive alert",
				zap.String("endpoint", pa.Endpoint),
				zap.String("metric", pa.Metric),
				zap.Float64("probability", pa.Probability),
				zap.String("estimated_time", pa.EstimatedTime),
				zap.String("predicted_issue", pa.PredictedIssue),
			)
		}

		docs := infrawatch.KnowledgeDocuments(samples, alerts)
		failures := ingestor.IngestBatch(rctx, docs)
		logger.Info("Knowledge base refreshed",
			zap.Int("documents", len(docs)),
			zap.Int("failures", len(failures)),
		)
	}

	refresh()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}
