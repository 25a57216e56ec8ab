package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/interaction-monitor/internal/analyzer"
	"github.com/interaction-monitor/internal/api"
	"github.com/interaction-monitor/internal/audit"
	"github.com/interaction-monitor/internal/cache"
	"github.com/interaction-monitor/internal/config"
	"github.com/interaction-monitor/internal/history"
	"github.com/interaction-monitor/internal/logging"
	"github.com/interaction-monitor/internal/metrics"
	"github.com/interaction-monitor/internal/monitor"
	"github.com/interaction-monitor/internal/notify"
	"github.com/interaction-monitor/internal/policy"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// Load variables from .env into the environment
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("🚀 Starting AI Interaction Monitor...")
	if envErr != nil {
		logger.Info("⚠️  No .env file found, using environment variables")
	}
	logger.Infof("✓ Configuration loaded (Port: %s, Block severity: %s)", cfg.Port, cfg.BlockSeverity)

	if err := run(cfg, logger); err != nil {
		logger.Fatalf("Server error: %v", err)
	}
}

func run(cfg *config.Config, logger *zap.SugaredLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	logger.Info("✓ Connected to PostgreSQL")

	// Connect to Redis
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	logger.Info("✓ Connected to Redis")

	metrics.Register()

	auditLog := audit.NewLogger(db)
	if err := auditLog.EnsureSchema(ctx); err != nil {
		return err
	}
	ruleRepo := policy.NewRepository(db)
	if err := ruleRepo.EnsureSchema(ctx); err != nil {
		return err
	}
	logger.Info("✓ Database schema ready")

	// Rule store: seeded from the rules file, then kept in step with the rules table
	store, err := policy.NewStore(nil)
	if err != nil {
		return err
	}
	policyCache := cache.NewPolicyCache(ruleRepo, store, cfg.RuleRefreshInterval, logger)
	if err := seedRules(ctx, cfg.RulesFile, store, policyCache, logger); err != nil {
		return err
	}
	if err := policyCache.Start(ctx); err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}
	defer policyCache.Stop()

	if _, err := os.Stat(cfg.RulesFile); err == nil {
		watcher, err := policy.NewWatcher(cfg.RulesFile, store, logger, func(*policy.File) {
			if err := policyCache.SaveAll(context.Background()); err != nil {
				logger.Warnf("⚠️  Failed to persist reloaded rules: %v", err)
			}
		})
		if err != nil {
			logger.Warnf("⚠️  Rules file will not be watched: %v", err)
		} else {
			go watcher.Run(ctx)
		}
	}

	notifier := notify.Multi{
		notify.NewLogNotifier(logger),
		notify.NewRedisNotifier(rdb, notify.DefaultChannel, logger),
	}

	analyzerSvc := analyzer.NewAnalyzer(store, analyzer.Options{
		MatchTimeout:   cfg.MatchTimeout,
		BlockThreshold: cfg.BlockSeverity,
		Notifier:       notifier,
		Logger:         logger,
	})

	redisCache := cache.NewRedisCache(rdb, auditLog, cfg.SyncInterval, logger)

	// Records still queued from the last run belong in the restored history
	if err := redisCache.Sync(ctx); err != nil {
		logger.Warnf("⚠️  Failed to flush queued history before restore: %v", err)
	}

	// Restore recent history so the dashboard survives restarts
	historyLog := history.NewLog()
	interactions, incidents, err := auditLog.LoadRecent(ctx, cfg.HistoryLoadLimit)
	if err != nil {
		logger.Warnf("⚠️  Failed to load history, starting empty: %v", err)
	} else {
		historyLog.Seed(interactions, incidents)
		logger.Infof("✓ Restored %d interactions and %d incidents", len(interactions), len(incidents))
	}

	if err := redisCache.Start(ctx); err != nil {
		return err
	}
	defer redisCache.Stop()

	service := monitor.NewService(analyzerSvc, historyLog, monitor.Config{
		Sink:      redisCache,
		Incidents: auditLog,
		Notifier:  notifier,
		Logger:    logger,
	})
	logger.Info("✓ Services initialized")

	handler := api.NewHandler(service, store, analyzerSvc, policyCache, notifier, logger)
	mux := api.SetupRoutes(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("✓ Server listening on port %s", cfg.Port)
		logger.Info("📡 Endpoints:")
		logger.Info("   POST  /v1/interactions    GET /v1/interactions")
		logger.Info("   GET   /v1/incidents       PATCH /v1/incidents/{id}")
		logger.Info("   GET   /v1/rules           POST /v1/rules")
		logger.Info("   PUT   /v1/rules/{id}      POST /v1/rules/{id}/toggle")
		logger.Info("   GET   /v1/policies        PUT /v1/policies/{id}")
		logger.Info("   GET   /v1/dashboard       GET /v1/health    GET /metrics")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("🛑 Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("✓ Server stopped")
	return nil
}

// seedRules loads the rules file into the store and writes its rules through
// to the database. A missing file is not an error.
func seedRules(ctx context.Context, path string, store *policy.Store, pc *cache.PolicyCache, logger *zap.SugaredLogger) error {
	f, err := policy.LoadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Infof("⚠️  Rules file %s not found, using rules from the database", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load rules file: %w", err)
	}
	if err := store.ApplyFile(f); err != nil {
		return fmt.Errorf("invalid rules file: %w", err)
	}
	if err := pc.SaveAll(ctx); err != nil {
		return fmt.Errorf("failed to persist rules: %w", err)
	}
	logger.Infof("✓ Loaded %d rules and %d policies from %s", len(f.Rules), len(f.Policies), path)
	return nil
}
