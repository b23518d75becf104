package services

import (
	"errors"
	"fmt"

	domain "github.com/vendora/api/internal/domain"
)

// ErrOrderInvalidTransition is the sentinel wrapped by every rejected transition.
var ErrOrderInvalidTransition = errors.New("order: invalid status transition")

// InvalidTransitionError reports the exact rejected edge so handlers can echo
// it back to clients.
type InvalidTransitionError struct {
	Role Role
	From OrderStatus
	To   OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("role %s may not move order from %s to %s", e.Role, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrOrderInvalidTransition }

type transitionKey struct {
	from domain.OrderStatus
	to   domain.OrderStatus
}

// Per-role transition tables. Admin is handled separately as a wildcard over
// non-terminal origins.
var customerTransitions = map[transitionKey]struct{}{
	{domain.OrderStatusWaitingPayment, domain.OrderStatusWaitingConfirm}: {},
	{domain.OrderStatusPending, domain.OrderStatusCancelled}:             {},
	{domain.OrderStatusWaitingPayment, domain.OrderStatusCancelled}:      {},
	{domain.OrderStatusShipping, domain.OrderStatusCompleted}:            {},
}

var sellerTransitions = map[transitionKey]struct{}{
	{domain.OrderStatusPending, domain.OrderStatusWaitingConfirm}:        {},
	{domain.OrderStatusWaitingPayment, domain.OrderStatusWaitingConfirm}: {},
	{domain.OrderStatusWaitingConfirm, domain.OrderStatusShipping}:       {},
	{domain.OrderStatusProcessing, domain.OrderStatusShipping}:           {},
	{domain.OrderStatusShipping, domain.OrderStatusCompleted}:            {},
	{domain.OrderStatusPending, domain.OrderStatusCancelled}:             {},
	{domain.OrderStatusWaitingPayment, domain.OrderStatusCancelled}:      {},
	{domain.OrderStatusWaitingConfirm, domain.OrderStatusCancelled}:      {},
}

var systemTransitions = map[transitionKey]struct{}{
	{domain.OrderStatusWaitingPayment, domain.OrderStatusProcessing}: {},
}

// CheckTransition validates the (role, from, to) edge against the transition
// table. Terminal origins never transition, for any role.
func CheckTransition(role Role, from, to OrderStatus) error {
	if from == to {
		return &InvalidTransitionError{Role: role, From: from, To: to}
	}
	if from.Terminal() {
		return &InvalidTransitionError{Role: role, From: from, To: to}
	}

	if role == domain.RoleAdmin {
		return nil
	}

	var table map[transitionKey]struct{}
	switch role {
	case domain.RoleCustomer:
		table = customerTransitions
	case domain.RoleSeller:
		table = sellerTransitions
	case domain.RoleSystem:
		table = systemTransitions
	default:
		return &InvalidTransitionError{Role: role, From: from, To: to}
	}

	if _, ok := table[transitionKey{from: from, to: to}]; !ok {
		return &InvalidTransitionError{Role: role, From: from, To: to}
	}
	return nil
}

// deletableStatuses limits admin hard deletion to orders that have not yet
// entered fulfilment.
var deletableStatuses = []domain.OrderStatus{
	domain.OrderStatusPending,
	domain.OrderStatusWaitingPayment,
	domain.OrderStatusWaitingConfirm,
}

// Deletable reports whether an order in the given status may be hard deleted.
func Deletable(status OrderStatus) bool {
	for _, candidate := range deletableStatuses {
		if status == candidate {
			return true
		}
	}
	return false
}
