package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vendora/api/internal/payments"
	"github.com/vendora/api/internal/platform/config"
	"github.com/vendora/api/internal/platform/idempotency"
	"github.com/vendora/api/internal/platform/observability"
	"github.com/vendora/api/internal/repositories"
	"github.com/vendora/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete
// implementations are assembled via dependency injection in NewContainer.
type Services struct {
	Orders    services.OrderService
	Inventory services.InventoryService
	Payments  services.PaymentService
	System    services.SystemService
}

// ContainerDeps carries externally constructed infrastructure into the container.
// The publishers are optional; when nil the services run without events.
type ContainerDeps struct {
	OrderEvents services.OrderEventPublisher
	StockEvents services.StockEventPublisher
	Idempotency idempotency.Store
	Logger      *zap.Logger
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
	Idempotency  idempotency.Store
}

// NewContainer constructs the runtime dependencies. Production wiring provides
// real implementations, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, deps ContainerDeps) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	if deps.Idempotency == nil {
		deps.Idempotency = idempotency.NewMemoryStore()
	}

	svc, err := buildServices(ctx, reg, cfg, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
		Idempotency:  deps.Idempotency,
	}, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close()
}

func buildServices(ctx context.Context, reg repositories.Registry, cfg config.Config, deps ContainerDeps) (Services, error) {
	var svc Services

	logHook := observability.ServiceLogHook(deps.Logger)

	stocksRepo := reg.Stocks()
	if stocksRepo != nil {
		inventorySvc, err := services.NewInventoryService(services.InventoryServiceDeps{
			Stocks:      stocksRepo,
			StockEvents: deps.StockEvents,
			PageSize:    cfg.Listing.DefaultPageSize,
			MaxPageSize: cfg.Listing.MaxPageSize,
			Clock:       time.Now,
			Logger:      logHook,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build inventory service: %w", err)
		}
		svc.Inventory = inventorySvc
	}

	ordersRepo := reg.Orders()
	countersRepo := reg.Counters()
	if ordersRepo != nil && stocksRepo != nil && countersRepo != nil {
		orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
			Orders:      ordersRepo,
			Stocks:      stocksRepo,
			Counters:    countersRepo,
			OrderEvents: deps.OrderEvents,
			StockEvents: deps.StockEvents,
			ShippingFee: cfg.Checkout.FlatShippingFee,
			PageSize:    cfg.Listing.DefaultPageSize,
			MaxPageSize: cfg.Listing.MaxPageSize,
			Clock:       time.Now,
			Logger:      logHook,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build order service: %w", err)
		}
		svc.Orders = orderSvc
	}

	if svc.Orders != nil && cfg.Gateway.MerchantCode != "" {
		manager, gateway, err := buildPaymentManager(cfg)
		if err != nil {
			return Services{}, err
		}
		paymentSvc, err := services.NewPaymentService(services.PaymentServiceDeps{
			Orders:          svc.Orders,
			Sessions:        manager,
			Verifier:        gateway,
			Idempotency:     deps.Idempotency,
			Currency:        cfg.Gateway.Currency,
			SuccessURL:      cfg.Gateway.SuccessURL,
			CancelURL:       cfg.Gateway.FailureURL,
			AmountTolerance: cfg.Gateway.AmountTolerance,
			CallbackTTL:     cfg.Callbacks.TTL,
			Clock:           time.Now,
			Logger:          logHook,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build payment service: %w", err)
		}
		svc.Payments = paymentSvc
	}

	if healthRepo := reg.Health(); healthRepo != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            time.Now,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}

func buildPaymentManager(cfg config.Config) (*payments.Manager, *payments.Gateway, error) {
	gateway, err := payments.NewGateway(payments.GatewayConfig{
		MerchantCode: cfg.Gateway.MerchantCode,
		HashSecret:   cfg.Gateway.HashSecret,
		PaymentURL:   cfg.Gateway.PaymentURL,
		ReturnURL:    cfg.Gateway.ReturnURL,
		Version:      cfg.Gateway.Version,
		Command:      cfg.Gateway.Command,
		Currency:     cfg.Gateway.Currency,
		Locale:       cfg.Gateway.Locale,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("build payment gateway: %w", err)
	}

	providers := map[string]payments.Provider{
		"gateway": gateway,
	}
	routes := map[string]string{
		"gateway": "gateway",
	}

	if cfg.Stripe.APIKey != "" {
		stripe, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey: cfg.Stripe.APIKey,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("build stripe provider: %w", err)
		}
		providers["stripe"] = stripe
		routes["card"] = "stripe"
	}

	manager, err := payments.NewManager(providers,
		payments.WithDefaultProvider("gateway"),
		payments.WithMethodRoutes(routes),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("build payment manager: %w", err)
	}
	return manager, gateway, nil
}
