package domain

import (
	"fmt"
	"strings"
)

// OrderStatus enumerates the canonical lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates a cash order awaiting seller confirmation.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusWaitingPayment indicates the order awaits payment completion.
	OrderStatusWaitingPayment OrderStatus = "waiting_payment"
	// OrderStatusWaitingConfirm indicates payment was reported and awaits seller confirmation.
	OrderStatusWaitingConfirm OrderStatus = "waiting_confirm"
	// OrderStatusProcessing indicates a paid order being prepared for shipment.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipping indicates the order has been handed to the carrier.
	OrderStatusShipping OrderStatus = "shipping"
	// OrderStatusCompleted indicates the customer confirmed receipt.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled indicates the order was cancelled.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderStatuses lists every canonical status.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusWaitingPayment,
	OrderStatusWaitingConfirm,
	OrderStatusProcessing,
	OrderStatusShipping,
	OrderStatusCompleted,
	OrderStatusCancelled,
}

// statusAliases translates legacy and localized status strings still received
// from older clients into the canonical set. Aliases are accepted at the input
// boundary only; persisted orders always carry canonical values.
var statusAliases = map[string]OrderStatus{
	"unconfirmed":           OrderStatusWaitingConfirm,
	"waiting for payment":   OrderStatusWaitingPayment,
	"awaiting payment":      OrderStatusWaitingPayment,
	"awaiting confirmation": OrderStatusWaitingConfirm,
	"confirming":            OrderStatusWaitingConfirm,
	"paid":                  OrderStatusProcessing,
	"preparing":             OrderStatusProcessing,
	"shipped":               OrderStatusShipping,
	"delivering":            OrderStatusShipping,
	"delivered":             OrderStatusShipping,
	"done":                  OrderStatusCompleted,
	"received":              OrderStatusCompleted,
	"canceled":              OrderStatusCancelled,
}

// ParseOrderStatus normalises a raw status string, accepting canonical values
// and known legacy aliases.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	cleaned = strings.ReplaceAll(cleaned, "-", "_")
	if cleaned == "" {
		return "", fmt.Errorf("order status is required")
	}

	candidate := OrderStatus(cleaned)
	for _, status := range OrderStatuses {
		if candidate == status {
			return status, nil
		}
	}

	if alias, ok := statusAliases[strings.ReplaceAll(cleaned, "_", " ")]; ok {
		return alias, nil
	}
	if alias, ok := statusAliases[cleaned]; ok {
		return alias, nil
	}

	return "", fmt.Errorf("unknown order status %q", raw)
}

// Terminal reports whether no further transitions are permitted out of s.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// InitialOrderStatus returns the creation status implied by the payment method:
// cash orders await seller confirmation, gateway and card orders await payment.
func InitialOrderStatus(method PaymentMethod) OrderStatus {
	if method == PaymentMethodCash {
		return OrderStatusPending
	}
	return OrderStatusWaitingPayment
}
