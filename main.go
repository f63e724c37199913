package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/travelgo/chat-engine/pkg/adapters/datasource"
	_ "github.com/travelgo/chat-engine/pkg/adapters/datasource/mssql"
	"github.com/travelgo/chat-engine/pkg/adapters/datasource/postgres"
	"github.com/travelgo/chat-engine/pkg/audit"
	"github.com/travelgo/chat-engine/pkg/auth"
	"github.com/travelgo/chat-engine/pkg/config"
	"github.com/travelgo/chat-engine/pkg/database"
	"github.com/travelgo/chat-engine/pkg/handlers"
	"github.com/travelgo/chat-engine/pkg/lexicon"
	"github.com/travelgo/chat-engine/pkg/llm"
	"github.com/travelgo/chat-engine/pkg/logging"
	"github.com/travelgo/chat-engine/pkg/mcp"
	"github.com/travelgo/chat-engine/pkg/middleware"
	"github.com/travelgo/chat-engine/pkg/repositories"
	"github.com/travelgo/chat-engine/pkg/retry"
	"github.com/travelgo/chat-engine/pkg/services"
	"github.com/travelgo/chat-engine/pkg/sql"
)

// Version is set at build time via ldflags
var Version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Configuration loaded",
		zap.String("version", cfg.Version),
		zap.String("env", cfg.Env),
		zap.String("database_type", cfg.Database.Type),
		zap.String("database", cfg.Database.User+"@"+cfg.Database.Host+"/"+cfg.Database.Database),
		zap.String("generator", cfg.Generator.Provider+"/"+cfg.Generator.Model),
		zap.Bool("auth_enabled", cfg.Auth.Enabled),
		zap.Bool("proposal_cache", cfg.Redis.Host != ""))

	executor, closeExecutor, err := openExecutor(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeExecutor()

	generator, closeCache, err := newGenerator(ctx, cfg, executor.DialectName(), logger)
	if err != nil {
		return err
	}
	defer closeCache()

	bookings := repositories.NewBookingRepository(executor, logger)
	users := repositories.NewUserRepository(executor)
	auditor := audit.NewSecurityAuditor(logger)
	validator := sql.NewQueryValidator(sql.DefaultAllowedTables)

	gates := services.NewGatePipeline(lexicon.Default(), executor, bookings, auditor, cfg.Pipeline.StoreTimeout, logger)
	aggregator := services.NewAggregator(executor, bookings, validator, auditor, services.AggregatorConfig{
		MaxRows:          cfg.Pipeline.MaxRows,
		QueryTimeout:     cfg.Pipeline.QueryTimeout,
		QueryConcurrency: cfg.Pipeline.QueryConcurrency,
		RecentBookings:   cfg.Pipeline.RecentBookings,
		StoreTimeout:     cfg.Pipeline.StoreTimeout,
	}, logger)
	composer := services.NewComposer(generator, logger)
	chat := services.NewChatService(gates, generator, aggregator, composer, auditor, validator.AllowedTables(), logger)

	var authService auth.AuthService
	if cfg.Auth.Enabled {
		authService = auth.NewAuthService(cfg.Auth.JWTSecret, logger)
	}
	authMiddleware := auth.NewMiddleware(authService, users, logger)
	health := datasource.NewHealthChecker(executor)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, health, logger).RegisterRoutes(mux)
	handlers.NewChatHandler(chat, logger).RegisterRoutes(mux, authMiddleware)
	handlers.RegisterMetricsRoute(mux)

	mcpServer := mcp.NewServer("travelgo-chat-engine", cfg.Version, mcp.NewToolAuditor(logger), logger)
	mcp.RegisterTools(mcpServer, mcp.ToolDeps{Chat: chat, Health: health, Logger: logger})
	mux.Handle("/mcp", mcpServer.NewStreamableHTTPServer())

	var requestLogger *zap.Logger
	if cfg.IsDevelopment() {
		requestLogger = logger.Named("http")
	}
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           middleware.RequestLogger(requestLogger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting travelgo-chat-engine", zap.String("addr", srv.Addr), zap.String("version", cfg.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openExecutor connects to the travel database. PostgreSQL goes through the
// shared pool so migrations and queries use the same connections.
func openExecutor(ctx context.Context, cfg *config.Config, logger *zap.Logger) (datasource.QueryExecutor, func(), error) {
	connCfg := datasource.ConnectionConfig{
		Host:           cfg.Database.Host,
		Port:           cfg.Database.Port,
		User:           cfg.Database.User,
		Password:       cfg.Database.Password,
		Database:       cfg.Database.Database,
		SSLMode:        cfg.Database.SSLMode,
		MaxConnections: cfg.Database.MaxConnections,
	}

	if cfg.Database.Type != "postgres" {
		executor, err := datasource.NewQueryExecutor(ctx, cfg.Database.Type, connCfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return executor, func() { _ = executor.Close() }, nil
	}

	db, err := database.NewConnection(ctx, &database.Config{
		URL:             postgres.ConnectionString(connCfg),
		MaxConnections:  cfg.Database.MaxConnections,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	}, logger)
	if err != nil {
		logger.Error("Database connection failed",
			zap.String("error", logging.SanitizeError(err)))
		return nil, nil, err
	}

	if cfg.Database.RunMigrations {
		if err := database.RunMigrations(db, "migrations", logger); err != nil {
			db.Close()
			return nil, nil, err
		}
	}

	executor := postgres.NewQueryExecutorFromPool(db.Pool, logger)
	return executor, db.Close, nil
}

// newGenerator builds the text generator. The provider client is created on
// first use so a missing API key does not stop the server from starting.
func newGenerator(ctx context.Context, cfg *config.Config, dialect string, logger *zap.Logger) (*llm.Generator, func(), error) {
	client := llm.NewLazyClient(llm.Config{
		Provider:  cfg.Generator.Provider,
		Endpoint:  cfg.Generator.BaseURL,
		Model:     cfg.Generator.Model,
		APIKey:    cfg.Generator.APIKey,
		MaxTokens: cfg.Generator.MaxTokens,
	}, logger)

	redisClient, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	var cache llm.ProposalCache
	closeCache := func() {}
	if redisClient != nil {
		cache = llm.NewRedisProposalCache(redisClient, cfg.Redis.ProposalTTL, logger)
		closeCache = func() { _ = redisClient.Close() }
	}

	generator := llm.NewGenerator(client, dialect, cache, llm.GeneratorConfig{
		Temperature:       cfg.Generator.Temperature,
		Timeout:           cfg.Generator.Timeout,
		MaxQueries:        cfg.Generator.MaxQueries,
		HeuristicFallback: cfg.Generator.HeuristicFallback,
		Retry:             retry.DefaultConfig(),
		CircuitBreaker: llm.CircuitBreakerConfig{
			Threshold:  cfg.Generator.BreakerThreshold,
			ResetAfter: cfg.Generator.BreakerReset,
		},
	}, logger)
	return generator, closeCache, nil
}
