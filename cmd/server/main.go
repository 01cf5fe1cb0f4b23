package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	adapterports "github.com/kevin07696/billing-service/internal/adapters/ports"
	"github.com/kevin07696/billing-service/internal/adapters/postgres"
	"github.com/kevin07696/billing-service/internal/adapters/secrets"
	"github.com/kevin07696/billing-service/internal/adapters/stripe"
	"github.com/kevin07696/billing-service/internal/config"
	webhookHandler "github.com/kevin07696/billing-service/internal/handlers/webhook"
	billingService "github.com/kevin07696/billing-service/internal/services/billing"
	subscriptionService "github.com/kevin07696/billing-service/internal/services/subscription"
	webhookService "github.com/kevin07696/billing-service/internal/services/webhook"
	"github.com/kevin07696/billing-service/pkg/logging"
)

func main() {
	logger := initLogger()
	defer logger.Sync()

	logger.Info("Starting billing service",
		zap.String("version", "0.1.0"),
	)

	cfg, err := config.LoadFromEnv()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	dbPool, err := initDatabase(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbPool.Close()

	logger.Info("Database connection established",
		zap.String("database", cfg.Database.Database),
	)

	secretKey, err := resolveGatewaySecret(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to resolve gateway secret", zap.Error(err))
	}

	deps := initDependencies(dbPool, cfg, secretKey, logger)

	// Webhook + health server
	httpMux := http.NewServeMux()
	httpMux.HandleFunc("/webhooks/gateway", deps.webhookHandler.HandleEvent)
	httpMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := dbPool.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: httpMux,
	}

	// Metrics server on its own port so it is never exposed with the webhook
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler: metricsMux,
	}

	go func() {
		logger.Info("HTTP server listening",
			zap.Int("port", cfg.Server.Port),
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to serve HTTP", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("Metrics server listening",
			zap.Int("port", cfg.Server.MetricsPort),
		)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to serve metrics", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down servers...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Metrics server shutdown error", zap.Error(err))
	}

	logger.Info("Servers stopped")
}

// Dependencies holds all initialized services and handlers
type Dependencies struct {
	billingService      *billingService.Service
	subscriptionService *subscriptionService.Service
	webhookService      *webhookService.Service
	webhookHandler      *webhookHandler.Handler
}

// initLogger initializes the logger
func initLogger() *zap.Logger {
	env := getEnv("ENVIRONMENT", "development")

	if env == "production" {
		zapCfg := zap.NewProductionConfig()
		zapCfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		logger, _ := zapCfg.Build()
		return logger
	}

	logger, _ := zap.NewDevelopment()
	return logger
}

// initDatabase initializes the PostgreSQL connection pool
func initDatabase(cfg *config.Config, logger *zap.Logger) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	poolConfig.MaxConns = cfg.Database.MaxConns
	poolConfig.MinConns = cfg.Database.MinConns

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// resolveGatewaySecret returns the gateway API key, either directly from the
// environment or through the configured secret manager backend
func resolveGatewaySecret(ctx context.Context, cfg *config.Config, logger *zap.Logger) (string, error) {
	if cfg.Gateway.SecretKey != "" {
		return cfg.Gateway.SecretKey, nil
	}

	var (
		manager adapterports.SecretManagerAdapter
		err     error
	)
	switch cfg.Secrets.Backend {
	case "aws":
		manager, err = secrets.NewAWSSecretsManagerAdapter(ctx,
			secrets.DefaultAWSSecretsManagerConfig(cfg.Secrets.AWSRegion), logger)
	case "vault":
		manager, err = secrets.NewVaultAdapter(
			secrets.DefaultVaultConfig(cfg.Secrets.VaultAddr), logger)
	case "local":
		manager = secrets.NewLocalSecretManager(cfg.Secrets.LocalPath, logger)
	default:
		return "", fmt.Errorf("no GATEWAY_SECRET_KEY and unsupported secrets backend %q", cfg.Secrets.Backend)
	}
	if err != nil {
		return "", fmt.Errorf("initialize secrets backend %s: %w", cfg.Secrets.Backend, err)
	}

	secret, err := manager.GetSecret(ctx, cfg.Gateway.SecretPath)
	if err != nil {
		return "", err
	}
	return secret.Value, nil
}

// initDependencies initializes all services and handlers with dependency injection
func initDependencies(dbPool *pgxpool.Pool, cfg *config.Config, secretKey string, logger *zap.Logger) *Dependencies {
	loggerAdapter := logging.NewZapLogger(logger)

	dbExecutor := postgres.NewDBExecutor(dbPool)
	customerRepo := postgres.NewCustomerRepository(dbExecutor)
	subscriptionRepo := postgres.NewSubscriptionRepository(dbExecutor)
	webhookEventRepo := postgres.NewWebhookEventRepository(dbExecutor)

	httpClient := &http.Client{Timeout: time.Duration(cfg.Gateway.Timeout) * time.Second}
	gateway := stripe.NewAdapter(cfg.Gateway.BaseURL, secretKey, httpClient, loggerAdapter)

	billingSvc := billingService.NewService(
		dbExecutor,
		customerRepo,
		subscriptionRepo,
		gateway,
		loggerAdapter,
		cfg.Billing.Currency,
		cfg.Billing.ProrateDefault,
	)

	subscriptionSvc := subscriptionService.NewService(
		subscriptionRepo,
		gateway,
		loggerAdapter,
		cfg.Billing.ProrateDefault,
	)

	webhookSvc := webhookService.NewService(
		dbExecutor,
		webhookEventRepo,
		subscriptionRepo,
		loggerAdapter,
	)

	webhookHdlr := webhookHandler.NewHandler(webhookSvc, loggerAdapter, getEnv("WEBHOOK_SECRET", ""))

	return &Dependencies{
		billingService:      billingSvc,
		subscriptionService: subscriptionSvc,
		webhookService:      webhookSvc,
		webhookHandler:      webhookHdlr,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
