package services

import (
	"context"
	"time"

	domain "github.com/vendora/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Order              = domain.Order
	OrderLineItem      = domain.OrderLineItem
	OrderStatus        = domain.OrderStatus
	PaymentMethod      = domain.PaymentMethod
	PaymentStatus      = domain.PaymentStatus
	Address            = domain.Address
	ProductStock       = domain.ProductStock
	Role               = domain.Role
	SystemHealthReport = domain.SystemHealthReport
)

// Actor identifies who invokes an operation. Role drives the transition table
// and listing scope; UserID drives ownership checks.
type Actor struct {
	UserID string
	Role   Role
}

// Pagination carries cursor paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CheckoutItem references one product and quantity in a checkout request.
type CheckoutItem struct {
	ProductID string
	Quantity  int
}

// CheckoutCommand creates an order for the acting customer. DiscountAmount is
// an order-level discount clamped to the subtotal during pricing; a nil
// ShippingFee means the configured flat fee applies.
type CheckoutCommand struct {
	Actor           Actor
	Items           []CheckoutItem
	PaymentMethod   PaymentMethod
	ShippingAddress *Address
	Note            string
	DiscountAmount  float64
	ShippingFee     *float64
}

// OrderReadOptions tunes a single-order read.
type OrderReadOptions struct {
	Actor Actor
}

// OrderListFilter scopes an order listing to the actor's role.
type OrderListFilter struct {
	Actor      Actor
	Status     *OrderStatus
	Pagination Pagination
}

// OrderStatusView is the compact projection served by the status check endpoint.
type OrderStatusView struct {
	OrderID       string
	OrderNumber   string
	Status        OrderStatus
	PaymentStatus PaymentStatus
	PaymentMethod PaymentMethod
	UpdatedAt     time.Time
}

// OrderStatusTransitionCommand moves an order to a new status on behalf of the actor.
// RawStatus is normalised through the alias table before the transition check.
type OrderStatusTransitionCommand struct {
	Actor        Actor
	OrderID      string
	RawStatus    string
	CancelReason string
}

// DeleteOrderCommand removes an order permanently. Admin only.
type DeleteOrderCommand struct {
	Actor   Actor
	OrderID string
}

// OrderService encapsulates the order lifecycle: checkout, reads, role-scoped
// status transitions, and admin hard deletion.
type OrderService interface {
	Checkout(ctx context.Context, cmd CheckoutCommand) (Order, error)
	GetOrder(ctx context.Context, orderID string, opts OrderReadOptions) (Order, error)
	GetOrderByNumber(ctx context.Context, orderNumber string, opts OrderReadOptions) (Order, error)
	GetOrderStatus(ctx context.Context, orderID string, opts OrderReadOptions) (OrderStatusView, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error)
	DeleteOrder(ctx context.Context, cmd DeleteOrderCommand) error
	MarkPaid(ctx context.Context, cmd MarkOrderPaidCommand) (Order, error)
}

// MarkOrderPaidCommand is issued by payment reconciliation after a verified
// successful callback. The system actor drives waiting_payment to processing.
type MarkOrderPaidCommand struct {
	OrderID      string
	GatewayTxnID string
}

// RestockCommand adds units back to a product's remaining and initial counters.
type RestockCommand struct {
	Actor     Actor
	ProductID string
	Quantity  int
}

// LowStockFilter selects products at or below the remaining threshold.
type LowStockFilter struct {
	Actor      Actor
	SellerID   string
	Threshold  int
	Pagination Pagination
}

// InventoryService exposes the manual side of the stock ledger. Order-driven
// ledger mutations run inside the order repository transactions.
type InventoryService interface {
	GetStock(ctx context.Context, productID string) (ProductStock, error)
	Restock(ctx context.Context, cmd RestockCommand) (ProductStock, error)
	ListLowStock(ctx context.Context, filter LowStockFilter) (domain.CursorPage[ProductStock], error)
}

// PaymentInitiation is the redirect target returned to the client after a
// payment session is created.
type PaymentInitiation struct {
	OrderID     string
	Provider    string
	RedirectURL string
	ExpiresAt   time.Time
}

// InitiatePaymentCommand starts a payment session for an order awaiting payment.
type InitiatePaymentCommand struct {
	Actor    Actor
	OrderID  string
	ClientIP string
}

// GatewayCallbackCommand carries the raw query parameters of a gateway return
// redirect, signature params included.
type GatewayCallbackCommand struct {
	Params map[string]string
}

// ReconciliationOutcome classifies the result of processing one gateway callback.
type ReconciliationOutcome string

const (
	// ReconciliationApplied means the order moved to processing/paid.
	ReconciliationApplied ReconciliationOutcome = "applied"
	// ReconciliationDuplicate means the callback was already processed.
	ReconciliationDuplicate ReconciliationOutcome = "duplicate"
	// ReconciliationNoOp means the order was not awaiting payment; nothing changed.
	ReconciliationNoOp ReconciliationOutcome = "noop"
	// ReconciliationDeclined means the gateway reported a non-success response code.
	ReconciliationDeclined ReconciliationOutcome = "declined"
	// ReconciliationRejected means the callback failed verification or matching.
	ReconciliationRejected ReconciliationOutcome = "rejected"
)

// ReconciliationResult reports what a gateway callback did to the order.
type ReconciliationResult struct {
	Outcome      ReconciliationOutcome
	OrderID      string
	OrderNumber  string
	GatewayTxnID string
	ResponseCode string
	Reason       string
}

// PaymentService creates payment sessions and reconciles gateway callbacks.
type PaymentService interface {
	InitiatePayment(ctx context.Context, cmd InitiatePaymentCommand) (PaymentInitiation, error)
	HandleGatewayReturn(ctx context.Context, cmd GatewayCallbackCommand) (ReconciliationResult, error)
}

// SystemService surfaces runtime health for the probe endpoints.
type SystemService interface {
	Health(ctx context.Context) (SystemHealthReport, error)
}

// OrderEvent is published after order mutations commit.
type OrderEvent struct {
	Type          string            `json:"type"`
	OrderID       string            `json:"orderId"`
	OrderNumber   string            `json:"orderNumber"`
	CustomerID    string            `json:"customerId"`
	Status        OrderStatus       `json:"status"`
	PaymentStatus PaymentStatus     `json:"paymentStatus,omitempty"`
	Total         float64           `json:"total"`
	OccurredAt    time.Time         `json:"occurredAt"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// StockEvent is published after ledger mutations commit.
type StockEvent struct {
	Type       string    `json:"type"`
	ProductID  string    `json:"productId"`
	SellerID   string    `json:"sellerId"`
	Delta      int       `json:"delta"`
	Remaining  int       `json:"remaining"`
	Sold       int       `json:"sold"`
	InStock    bool      `json:"inStock"`
	OccurredAt time.Time `json:"occurredAt"`
}

// OrderEventPublisher delivers order lifecycle events to interested consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// StockEventPublisher delivers stock ledger events to interested consumers.
type StockEventPublisher interface {
	PublishStockEvent(ctx context.Context, event StockEvent) error
}
