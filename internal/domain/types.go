package domain

import (
	"time"
)

// Role identifies the actor class performing an order operation.
type Role string

const (
	// RoleCustomer is the buyer owning the order.
	RoleCustomer Role = "customer"
	// RoleSeller is an independent seller owning products referenced by an order.
	RoleSeller Role = "seller"
	// RoleAdmin is a platform administrator.
	RoleAdmin Role = "admin"
	// RoleSystem is the internal actor used by payment reconciliation.
	RoleSystem Role = "system"
)

// PaymentMethod enumerates the supported ways an order is paid.
type PaymentMethod string

const (
	// PaymentMethodCash is cash on delivery.
	PaymentMethodCash PaymentMethod = "cash"
	// PaymentMethodGateway is the redirect-based bank gateway.
	PaymentMethodGateway PaymentMethod = "gateway"
	// PaymentMethodCard is a card payment processed through a PSP checkout session.
	PaymentMethodCard PaymentMethod = "card"
)

// PaymentStatus enumerates payment settlement states for an order.
type PaymentStatus string

const (
	// PaymentStatusUnpaid indicates no successful payment has been recorded.
	PaymentStatusUnpaid PaymentStatus = "unpaid"
	// PaymentStatusPaid indicates the order has been paid in full.
	PaymentStatusPaid PaymentStatus = "paid"
	// PaymentStatusRefunded indicates the payment has been returned to the customer.
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// Address represents the postal address snapshot stored on an order.
type Address struct {
	Recipient  string
	Line1      string
	Line2      *string
	City       string
	PostalCode string
	Country    string
	Phone      *string
}

// OrderLineItem snapshots one product entry at order time so historical orders
// are unaffected by later catalog changes.
type OrderLineItem struct {
	ProductID       string
	SellerID        string
	Name            string
	Quantity        int
	UnitPrice       float64
	DiscountPercent float64
	Discount        float64
	Subtotal        float64
}

// Order is the aggregate root for the order lifecycle.
type Order struct {
	ID              string
	OrderNumber     string
	CustomerID      string
	Status          OrderStatus
	Items           []OrderLineItem
	Subtotal        float64
	DiscountAmount  float64
	ShippingFee     float64
	Total           float64
	PaymentMethod   PaymentMethod
	PaymentStatus   PaymentStatus
	ShippingAddress *Address
	Note            string
	CancelReason    *string
	GatewayTxnID    *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	PaidAt          *time.Time
	CompletedAt     *time.Time
	CancelledAt     *time.Time
}

// ProductStock carries the inventory-relevant fields of a catalog product. The
// remaining/sold/revenue counters are mutated exclusively by the inventory
// ledger in response to order events.
type ProductStock struct {
	ProductID       string
	SellerID        string
	Name            string
	ListedPrice     float64
	DiscountPercent float64
	Initial         int
	Remaining       int
	Sold            int
	Revenue         float64
	InStock         bool
	UpdatedAt       time.Time
}

// StockAdjustment summarises one ledger mutation applied to a product.
type StockAdjustment struct {
	ProductID string
	Quantity  int
	Revenue   float64
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck captures the outcome of probing a single dependency.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency checks into an overall status.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	GeneratedAt time.Time
}
