package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rongwang/envelope-wallet/internal/api"
	"github.com/rongwang/envelope-wallet/internal/config"
	"github.com/rongwang/envelope-wallet/internal/events"
	"github.com/rongwang/envelope-wallet/internal/idempotency"
	"github.com/rongwang/envelope-wallet/internal/models"
	"github.com/rongwang/envelope-wallet/internal/repository"
	"github.com/rongwang/envelope-wallet/internal/service"
	"github.com/rongwang/envelope-wallet/internal/share"
	"github.com/rongwang/envelope-wallet/internal/utils"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := config.LoadEnvFile(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
		os.Exit(1)
	}

	// Load configuration
	cfg := config.LoadConfig()

	logger := utils.NewLogger(utils.LoggerConfig{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		Component: "server",
	})

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", utils.FieldError, err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("Server stopped with error", utils.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func run(cfg *config.Config, logger *utils.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Create repository
	var repo repository.Repository
	switch cfg.Database.Backend {
	case "postgres":
		db, err := config.SetupDatabase(cfg)
		if err != nil {
			return fmt.Errorf("failed to set up database: %w", err)
		}
		defer db.Close()
		repo = repository.NewPostgresRepository(db)
	default:
		repo = repository.NewMemoryRepository()
	}
	logger.Info("Initialized data backend", "backend", cfg.Database.Backend)

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.AMQP.URL != "" {
		p, err := events.NewRabbitMQPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, cfg.AMQP.RoutingKey)
		if err != nil {
			return fmt.Errorf("failed to connect to AMQP: %w", err)
		}
		publisher = p
		logger.Info("Publishing transaction events", "exchange", cfg.AMQP.Exchange)
	}
	defer publisher.Close()

	initial, err := cfg.Wallet.InitialBalanceMoney()
	if err != nil {
		return err
	}

	// Create service
	svc := service.NewDefaultService(repo, service.Options{
		InitialBalance: initial,
		Issuer:         share.NewIssuer(cfg.Share.Secret, cfg.Share.BaseURL, cfg.Share.TokenTTL),
		Publisher:      publisher,
		Idempotency:    idempotency.NewStore[models.TransferResponse](cfg.Idempotency.Capacity, cfg.Idempotency.TTL),
		Logger:         logger,
	})
	defer svc.Wait()

	// Create API handler
	handler := api.NewHandler(svc, logger)

	// Set up Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), api.RequestLogger(logger))

	// Set up routes
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
