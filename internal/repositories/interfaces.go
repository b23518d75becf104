package repositories

import (
	"context"
	"time"

	domain "github.com/vendora/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close() error

	Orders() OrderRepository
	Stocks() StockRepository
	Counters() CounterRepository
	Health() HealthRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// OrderCreateRequest carries a fully priced order into the transactional create path.
type OrderCreateRequest struct {
	Order domain.Order
	Now   time.Time
}

// OrderCreateResult returns the persisted order together with the stock rows
// decremented in the same transaction.
type OrderCreateResult struct {
	Order  domain.Order
	Stocks map[string]domain.ProductStock
}

// OrderStatusUpdate describes a guarded status transition. The update fails
// with an invalid-state error unless the order's current status is one of
// ExpectedFrom (empty means any).
type OrderStatusUpdate struct {
	OrderID       string
	ExpectedFrom  []domain.OrderStatus
	To            domain.OrderStatus
	CancelReason  *string
	PaymentStatus *domain.PaymentStatus
	GatewayTxnID  *string
	RestoreStock  bool
	Now           time.Time
}

// OrderDeleteRequest describes an admin hard delete. AllowedStatuses guards
// which lifecycle states may be removed; stock is restored when RestoreStock
// is set.
type OrderDeleteRequest struct {
	OrderID         string
	AllowedStatuses []domain.OrderStatus
	RestoreStock    bool
	Now             time.Time
}

// OrderListFilter narrows order listings.
type OrderListFilter struct {
	Status    *domain.OrderStatus
	PageSize  int
	PageToken string
}

// OrderRepository persists orders with transactional stock bookkeeping.
type OrderRepository interface {
	Create(ctx context.Context, req OrderCreateRequest) (OrderCreateResult, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByNumber(ctx context.Context, orderNumber string) (domain.Order, error)
	ListByCustomer(ctx context.Context, customerID string, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	ListBySeller(ctx context.Context, sellerID string, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	UpdateStatus(ctx context.Context, req OrderStatusUpdate) (domain.Order, error)
	Delete(ctx context.Context, req OrderDeleteRequest) error
}

// StockRestockRequest adds quantity back to a product's initial and remaining counters.
type StockRestockRequest struct {
	ProductID string
	Quantity  int
	Now       time.Time
}

// StockLowStockQuery pages through products whose remaining quantity is at or below the threshold.
type StockLowStockQuery struct {
	SellerID  string
	Threshold int
	PageSize  int
	PageToken string
}

// StockRepository manages the per-product inventory ledger.
type StockRepository interface {
	Get(ctx context.Context, productID string) (domain.ProductStock, error)
	Save(ctx context.Context, stock domain.ProductStock) (domain.ProductStock, error)
	Restock(ctx context.Context, req StockRestockRequest) (domain.ProductStock, error)
	ListLowStock(ctx context.Context, query StockLowStockQuery) (domain.CursorPage[domain.ProductStock], error)
}

// CounterConfig adjusts counter behaviour.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}

// CounterRepository issues monotonically increasing sequence values.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// HealthRepository aggregates dependency probes for readiness reporting.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
