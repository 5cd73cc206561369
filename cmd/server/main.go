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

	"receipt-api/internal/api"
	"receipt-api/internal/config"
	"receipt-api/internal/database"
	"receipt-api/internal/metrics"
	"receipt-api/internal/middleware"
	"receipt-api/internal/services"
	"receipt-api/pkg/logging"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Initialize configuration
	cfg, err := config.Load()
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		return 1
	}

	// Initialize logging
	logging.InitLogging(cfg.IsProduction(), cfg.Mode == gin.DebugMode)
	logger := logging.Logger()

	ctx := context.Background()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg, reg)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to register metrics")
		return 1
	}

	// Initialize database
	db, err := database.Open(cfg)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize database")
		return 1
	}
	defer database.Close(db)

	if err := database.Migrate(db); err != nil {
		logger.Error().Err(err).Msg("Failed to migrate database")
		return 1
	}

	redisClient, err := database.OpenRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize Redis")
		return 1
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	subscriptions, alerter, notifier, err := buildServices(cfg, db, redisClient, m)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize services")
		return 1
	}

	health := api.NewHealthChecker(2 * time.Second)
	health.Register("database", func(ctx context.Context) error {
		return database.Ping(ctx, db)
	})
	if redisClient != nil {
		health.Register("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	limiter, err := middleware.NewRateLimiter(int64(cfg.RateLimitRequests), cfg.RateLimitPeriod, redisClient)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize rate limiter")
		return 1
	}

	// Set Gin mode
	gin.SetMode(cfg.Mode)

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(logger))

	api.SetupRoutes(r, api.NewHandler(subscriptions, health), api.RouteOptions{
		AdminAPIKey:    cfg.AdminAPIKey,
		RateLimiter:    limiter,
		MetricsHandler: m.Handler(),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		// verifyReceipt may take two Apple calls plus the retry delay
		WriteTimeout: 2*cfg.AppleTimeout + cfg.AppleRetryDelay + 10*time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Str("env", cfg.Environment).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	logger.Info().Str("signal", sig.String()).Msg("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown error")
		return 1
	}

	notifier.Wait()
	if alerter != nil {
		alerter.Wait()
	}

	logger.Info().Msg("Server stopped")
	return 0
}

func buildServices(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, m *metrics.Metrics) (*services.SubscriptionService, *services.OpsAlerter, *services.WebhookNotifier, error) {
	validatorOpts := []services.ValidatorOption{
		services.WithValidatorMetrics(m),
	}

	var alerter *services.OpsAlerter
	if cfg.AlertsEnabled() {
		brevo := services.NewBrevoService(cfg.BrevoAPIKey, cfg.BrevoFromEmail, cfg.BrevoFromName, "")
		alerter = services.NewOpsAlerter(brevo, cfg.AlertEmail, time.Hour)
		validatorOpts = append(validatorOpts, services.WithSecretMismatchAlerter(alerter))
	}

	validator, err := services.NewValidator(services.ValidatorConfig{
		SharedSecret:  cfg.AppleSharedSecret,
		SandboxURL:    cfg.AppleSandboxURL,
		ProductionURL: cfg.AppleProductionURL,
		Timeout:       cfg.AppleTimeout,
		RetryDelay:    cfg.AppleRetryDelay,
	}, validatorOpts...)
	if err != nil {
		return nil, nil, nil, err
	}

	store := database.NewSubscriptionStore(db, database.WithStoreMetrics(m))

	notifier := services.NewWebhookNotifier(cfg.WebhookCallbackURL, cfg.WebhookSecret)
	serviceOpts := []services.ServiceOption{
		services.WithServiceMetrics(m),
		services.WithNotifier(notifier),
	}
	if redisClient != nil {
		serviceOpts = append(serviceOpts, services.WithPremiumCache(services.NewRedisService(redisClient, cfg.PremiumCacheTTL)))
	}

	return services.NewSubscriptionService(validator, store, serviceOpts...), alerter, notifier, nil
}
