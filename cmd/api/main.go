package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"github.com/vendora/api/internal/di"
	"github.com/vendora/api/internal/handlers"
	"github.com/vendora/api/internal/platform/auth"
	"github.com/vendora/api/internal/platform/config"
	pfirestore "github.com/vendora/api/internal/platform/firestore"
	"github.com/vendora/api/internal/platform/idempotency"
	"github.com/vendora/api/internal/platform/jobs"
	"github.com/vendora/api/internal/platform/observability"
	"github.com/vendora/api/internal/platform/secrets"
	"github.com/vendora/api/internal/repositories"
	firestorerepo "github.com/vendora/api/internal/repositories/firestore"
)

const (
	serviceName    = "vendora-api"
	sweepBatchSize = 256
)

func main() {
	started := time.Now().UTC()
	rootCtx := context.Background()

	logger, err := observability.NewLogger()
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	fetcher, err := newSecretFetcher(rootCtx, logger)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(rootCtx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames()...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.Names()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	provider := pfirestore.NewProvider(cfg.Firestore)
	if _, err := provider.Client(rootCtx); err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}

	var (
		psClient   *pubsub.Client
		orderTopic *pubsub.Topic
		stockTopic *pubsub.Topic
	)
	if !cfg.PubSub.Disabled && cfg.PubSub.ProjectID != "" {
		psClient, err = pubsub.NewClient(rootCtx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := psClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		if cfg.PubSub.OrderTopic != "" {
			orderTopic = psClient.Topic(cfg.PubSub.OrderTopic)
		}
		if cfg.PubSub.StockTopic != "" {
			stockTopic = psClient.Topic(cfg.PubSub.StockTopic)
		}
	} else {
		logger.Info("pubsub publishing disabled; order and stock events will be dropped")
	}

	healthRepo, err := repositories.NewDependencyHealthRepository(dependencyChecks(provider, orderTopic))
	if err != nil {
		logger.Fatal("failed to initialise health checks", zap.Error(err))
	}

	registry, err := firestorerepo.NewRegistry(provider, healthRepo)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	idemStore := idempotency.NewMemoryStore()

	containerDeps := di.ContainerDeps{
		Idempotency: idemStore,
		Logger:      logger,
	}
	if orderTopic != nil || stockTopic != nil {
		publisher, err := jobs.NewPubSubEventPublisher(orderTopic, stockTopic)
		if err != nil {
			logger.Fatal("failed to initialise event publisher", zap.Error(err))
		}
		containerDeps.OrderEvents = publisher
		containerDeps.StockEvents = publisher
	}

	container, err := di.NewContainer(rootCtx, cfg, registry, containerDeps)
	if err != nil {
		logger.Fatal("failed to initialise services", zap.Error(err))
	}

	verifier, err := auth.NewJWTVerifier(cfg.JWT.SigningSecret, cfg.JWT.Issuer)
	if err != nil {
		logger.Fatal("failed to initialise token verifier", zap.Error(err))
	}
	authn := auth.NewAuthenticator(verifier)

	orderHandlers := handlers.NewOrderHandlers(authn, container.Services.Orders)
	productHandlers := handlers.NewProductHandlers(authn, container.Services.Inventory)
	adminHandlers := handlers.NewAdminHandlers(authn, container.Services.Orders, container.Services.Inventory)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthSystemService(container.Services.System),
		handlers.WithHealthBuildInfo(buildInfo(started)),
	)

	var paymentHandlers *handlers.PaymentHandlers
	if container.Services.Payments != nil {
		paymentHandlers = handlers.NewPaymentHandlers(authn, container.Services.Payments, cfg.Gateway.SuccessURL, cfg.Gateway.FailureURL)
	} else {
		logger.Warn("payments: gateway not configured; payment routes are unavailable")
	}

	routerOpts := []handlers.Option{
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.RequestLoggerMiddleware(serviceName),
			observability.RecoveryMiddleware(logger),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithOrderRoutes(func(r chi.Router) {
			orderHandlers.Routes(r)
			if paymentHandlers != nil {
				paymentHandlers.OrderRoutes(r)
			}
		}),
		handlers.WithProductRoutes(productHandlers.Routes),
		handlers.WithAdminRoutes(adminHandlers.Routes),
	}
	if paymentHandlers != nil {
		routerOpts = append(routerOpts, handlers.WithWebhookRoutes(paymentHandlers.WebhookRoutes))
	}

	router := handlers.NewRouter(routerOpts...)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	sweepCtx, cancelSweep := context.WithCancel(rootCtx)
	var wg sync.WaitGroup
	if cfg.Callbacks.SweepInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(cfg.Callbacks.SweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-sweepCtx.Done():
					return
				case now := <-ticker.C:
					removed, err := idemStore.CleanupExpired(sweepCtx, now.UTC(), sweepBatchSize)
					if err != nil {
						logger.Warn("idempotency sweep error", zap.Error(err))
						continue
					}
					if removed > 0 {
						logger.Debug("idempotency sweep", zap.Int("removed", removed))
					}
				}
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()
	logger.Info("api server listening", zap.String("addr", srv.Addr))

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
		}
	case sig := <-shutdown:
		logger.Info("shutdown signal received; draining requests", zap.String("signal", sig.String()))
		drainCtx, cancel := context.WithTimeout(rootCtx, cfg.Server.ShutdownGrace)
		if err := srv.Shutdown(drainCtx); err != nil {
			logger.Warn("server drain error", zap.Error(err))
		}
		cancel()
	}

	cancelSweep()
	wg.Wait()

	if err := container.Close(rootCtx); err != nil {
		logger.Warn("repository close error", zap.Error(err))
	}
}

// dependencyChecks assembles the readiness probes exposed through /readyz.
func dependencyChecks(provider *pfirestore.Provider, orderTopic *pubsub.Topic) []repositories.DependencyCheck {
	checks := []repositories.DependencyCheck{
		{
			Name:    "firestore",
			Timeout: 2 * time.Second,
			Check: func(ctx context.Context) error {
				client, err := provider.Client(ctx)
				if err != nil {
					return err
				}
				iter := client.Collections(ctx)
				if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
					return err
				}
				return nil
			},
		},
	}
	if orderTopic != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "pubsub",
			Timeout: 2 * time.Second,
			Check: func(ctx context.Context) error {
				ok, err := orderTopic.Exists(ctx)
				if err != nil {
					return err
				}
				if !ok {
					return errors.New("order topic does not exist")
				}
				return nil
			},
		})
	}
	return checks
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger) (*secrets.Fetcher, error) {
	projectID := strings.TrimSpace(os.Getenv("API_SECRETS_PROJECT_ID"))
	if projectID == "" {
		projectID = strings.TrimSpace(os.Getenv("API_FIRESTORE_PROJECT_ID"))
	}
	return secrets.NewFetcher(ctx,
		secrets.WithLogger(logger),
		secrets.WithProject(projectID),
	)
}

// requiredSecretNames decides which resolved secrets are mandatory for this
// deployment. The gateway secret is only required when a merchant code is
// configured, so local environments can run without payment credentials.
func requiredSecretNames() []string {
	names := []string{"JWT.SigningSecret"}
	if strings.TrimSpace(os.Getenv("API_GATEWAY_MERCHANT_CODE")) != "" {
		names = append(names, "Gateway.HashSecret")
	}
	return names
}

func buildInfo(started time.Time) handlers.BuildInfo {
	return handlers.BuildInfo{
		Version:     strings.TrimSpace(os.Getenv("API_BUILD_VERSION")),
		CommitSHA:   strings.TrimSpace(os.Getenv("API_BUILD_COMMIT")),
		Environment: strings.TrimSpace(os.Getenv("API_ENVIRONMENT")),
		StartedAt:   started,
	}
}
