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

	"github.com/google/uuid"
	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pagemorph/pagemorph/internal/api"
	"github.com/pagemorph/pagemorph/internal/blob"
	"github.com/pagemorph/pagemorph/internal/bus"
	"github.com/pagemorph/pagemorph/internal/config"
	"github.com/pagemorph/pagemorph/internal/db"
	"github.com/pagemorph/pagemorph/internal/executor"
	"github.com/pagemorph/pagemorph/internal/extract"
	"github.com/pagemorph/pagemorph/internal/hub"
	"github.com/pagemorph/pagemorph/internal/middleware"
	"github.com/pagemorph/pagemorph/internal/observ"
	"github.com/pagemorph/pagemorph/internal/presence"
	"github.com/pagemorph/pagemorph/internal/provider"
	"github.com/pagemorph/pagemorph/internal/queue"
	"github.com/pagemorph/pagemorph/internal/repository/postgres"
	"github.com/pagemorph/pagemorph/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.New(context.Background(), cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer database.Close()
	pool := database.Pool()

	redisOpts, err := redis.ParseURL(cfg.BrokerURL)
	if err != nil {
		return fmt.Errorf("parse broker url: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return fmt.Errorf("ping broker: %w", err)
	}

	instanceID := uuid.NewString()[:8]
	eventBus := bus.New(rdb, instanceID, logger)

	workspaceRepo := postgres.NewWorkspaceStore(pool)
	userRepo := postgres.NewUserStore(pool)
	sessionRepo := postgres.NewSessionStore(pool)
	documentRepo := postgres.NewDocumentStore(pool)
	transformationRepo := postgres.NewTransformationStore(pool)
	presetRepo := postgres.NewPresetStore(pool)

	taskQueue := queue.New(pool, rdb, queue.Options{
		MaxAttempts: cfg.MaxAttempts,
		BackoffBase: cfg.BackoffBase,
	}, logger)

	blobStore, err := blob.NewS3Store(context.Background(), cfg.BlobBucket, cfg.BlobRegion, cfg.BlobEndpoint)
	if err != nil {
		return fmt.Errorf("init blob store: %w", err)
	}

	providers, err := buildProviders(cfg)
	if err != nil {
		return fmt.Errorf("configure providers: %w", err)
	}
	registry := provider.NewRegistry(providers, cfg.BreakerThreshold, cfg.BreakerCooldown, rdb, logger)

	authService := service.NewAuthService(
		userRepo, workspaceRepo, sessionRepo,
		cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL, cfg.BcryptCost, logger)
	documentService := service.NewDocumentService(
		documentRepo, blobStore, extract.NewPlainTextExtractor(), logger)
	resolver := service.NewPresetResolver(presetRepo)
	presetService := service.NewPresetService(presetRepo, logger)
	transformationService := service.NewTransformationService(
		transformationRepo, documentRepo, presetRepo, resolver, taskQueue, eventBus, logger)

	tracker := presence.NewTracker(rdb, eventBus, instanceID, logger)
	go tracker.Run(ctx)

	sessionHub := hub.New(eventBus, tracker, hub.Options{
		HeartbeatInterval: cfg.HeartbeatInterval,
		SendQueueDepth:    cfg.SendQueueDepth,
	}, logger)
	go sessionHub.Run(ctx)

	exec := executor.New(
		taskQueue, transformationRepo, documentRepo, registry, eventBus,
		taskQueue.Wake(ctx),
		executor.Options{
			Concurrency:     cfg.WorkerConcurrency,
			ClaimLease:      cfg.ClaimLease,
			ProviderTimeout: cfg.ProviderTimeout,
		}, logger)
	if cfg.WorkerConcurrency > 0 {
		exec.Start(ctx)
	}

	limiter := middleware.NewRateLimiter(rdb, cfg.RateLimits, cfg.RateLimitWindow, logger)
	router := api.NewRouter(api.Handlers{
		Auth:            api.NewAuthHandler(authService, userRepo, workspaceRepo, logger),
		Documents:       api.NewDocumentHandler(documentService, logger),
		Transformations: api.NewTransformationHandler(transformationService, logger),
		Presets:         api.NewPresetHandler(presetService, logger),
		WS:              api.NewWSHandler(sessionHub, cfg.JWTSecret, authService, logger),
	}, cfg.JWTSecret, authService, limiter, logger)

	srv := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting pagemorph",
			zap.String("addr", cfg.BindAddr),
			zap.String("env", cfg.Env),
			zap.String("instance_id", instanceID),
			zap.Int("worker_concurrency", cfg.WorkerConcurrency),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", zap.Error(err))
	}
	exec.Wait()

	return nil
}

// buildProviders instantiates adapters in PROVIDER_ORDER. Unknown names
// are fatal at startup rather than silent no-ops at claim time.
func buildProviders(cfg *config.Config) ([]provider.Provider, error) {
	providers := make([]provider.Provider, 0, len(cfg.ProviderOrder))
	for _, name := range cfg.ProviderOrder {
		switch name {
		case "openai":
			if cfg.OpenAIAPIKey == "" {
				return nil, fmt.Errorf("provider %q listed but OPENAI_API_KEY is not set", name)
			}
			providers = append(providers, provider.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIModel))
		case "anthropic":
			if cfg.AnthropicAPIKey == "" {
				return nil, fmt.Errorf("provider %q listed but ANTHROPIC_API_KEY is not set", name)
			}
			p, err := provider.NewAnthropicProvider(cfg.AnthropicAPIKey, cfg.AnthropicModel)
			if err != nil {
				return nil, err
			}
			providers = append(providers, p)
		case "mock":
			providers = append(providers, provider.NewMockProvider())
		default:
			return nil, fmt.Errorf("unknown provider %q in PROVIDER_ORDER", name)
		}
	}
	return providers, nil
}
