package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	domain "github.com/vendora/api/internal/domain"
	"github.com/vendora/api/internal/payments"
	"github.com/vendora/api/internal/platform/idempotency"
)

var (
	// ErrPaymentInvalidInput signals the caller provided invalid arguments.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentInvalidState indicates the order is not awaiting payment.
	ErrPaymentInvalidState = errors.New("payment: order not awaiting payment")
	// ErrPaymentMethodUnsupported indicates the order's payment method has no online flow.
	ErrPaymentMethodUnsupported = errors.New("payment: method has no online payment flow")
)

// GatewayVerifier checks callback signatures and decodes the transaction fields.
type GatewayVerifier interface {
	VerifyCallback(params map[string]string) (payments.CallbackResult, error)
}

// SessionCreator opens a payment session with the provider routed for the method.
type SessionCreator interface {
	CreateSession(ctx context.Context, method string, req payments.SessionRequest) (payments.Session, error)
}

// PaymentServiceDeps bundles the collaborators required to construct a payment service.
type PaymentServiceDeps struct {
	Orders          OrderService
	Sessions        SessionCreator
	Verifier        GatewayVerifier
	Idempotency     idempotency.Store
	Currency        string
	SuccessURL      string
	CancelURL       string
	AmountTolerance float64
	CallbackTTL     time.Duration
	Clock           func() time.Time
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	orders      OrderService
	sessions    SessionCreator
	verifier    GatewayVerifier
	idempotency idempotency.Store
	currency    string
	successURL  string
	cancelURL   string
	tolerance   float64
	callbackTTL time.Duration
	clock       func() time.Time
	logger      func(context.Context, string, map[string]any)
}

// NewPaymentService wires dependencies into a concrete PaymentService implementation.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment service: order service is required")
	}
	if deps.Sessions == nil {
		return nil, errors.New("payment service: session creator is required")
	}
	if deps.Verifier == nil {
		return nil, errors.New("payment service: gateway verifier is required")
	}
	if deps.Idempotency == nil {
		return nil, errors.New("payment service: idempotency store is required")
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "VND"
	}
	tolerance := deps.AmountTolerance
	if tolerance <= 0 {
		tolerance = 0.01
	}
	callbackTTL := deps.CallbackTTL
	if callbackTTL <= 0 {
		callbackTTL = idempotency.DefaultTTL
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &paymentService{
		orders:      deps.Orders,
		sessions:    deps.Sessions,
		verifier:    deps.Verifier,
		idempotency: deps.Idempotency,
		currency:    currency,
		successURL:  strings.TrimSpace(deps.SuccessURL),
		cancelURL:   strings.TrimSpace(deps.CancelURL),
		tolerance:   tolerance,
		callbackTTL: callbackTTL,
		clock:       func() time.Time { return clock().UTC() },
		logger:      logger,
	}, nil
}

func (s *paymentService) InitiatePayment(ctx context.Context, cmd InitiatePaymentCommand) (PaymentInitiation, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return PaymentInitiation{}, fmt.Errorf("%w: order id is required", ErrPaymentInvalidInput)
	}

	order, err := s.orders.GetOrder(ctx, orderID, OrderReadOptions{Actor: cmd.Actor})
	if err != nil {
		return PaymentInitiation{}, err
	}
	if order.Status != domain.OrderStatusWaitingPayment {
		return PaymentInitiation{}, fmt.Errorf("%w: order is %s", ErrPaymentInvalidState, order.Status)
	}
	if order.PaymentMethod != domain.PaymentMethodGateway && order.PaymentMethod != domain.PaymentMethodCard {
		return PaymentInitiation{}, fmt.Errorf("%w: %s", ErrPaymentMethodUnsupported, order.PaymentMethod)
	}

	session, err := s.sessions.CreateSession(ctx, string(order.PaymentMethod), payments.SessionRequest{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		Amount:         minorUnits(order.Total),
		Currency:       s.currency,
		CustomerID:     order.CustomerID,
		ClientIP:       strings.TrimSpace(cmd.ClientIP),
		SuccessURL:     s.successURL,
		CancelURL:      s.cancelURL,
		IdempotencyKey: order.ID,
		Metadata:       map[string]string{"orderNumber": order.OrderNumber},
	})
	if err != nil {
		return PaymentInitiation{}, fmt.Errorf("create payment session: %w", err)
	}

	s.logger(ctx, "payment.session.created", map[string]any{
		"orderId":  order.ID,
		"provider": session.Provider,
		"amount":   minorUnits(order.Total),
	})

	return PaymentInitiation{
		OrderID:     order.ID,
		Provider:    session.Provider,
		RedirectURL: session.RedirectURL,
		ExpiresAt:   session.ExpiresAt,
	}, nil
}

// HandleGatewayReturn processes one gateway return redirect end to end:
// signature verification, order matching, amount reconciliation, and the
// idempotency-guarded transition to processing/paid. Rejections never mutate
// order state; redeliveries replay the stored outcome.
func (s *paymentService) HandleGatewayReturn(ctx context.Context, cmd GatewayCallbackCommand) (ReconciliationResult, error) {
	callback, err := s.verifier.VerifyCallback(cmd.Params)
	if err != nil {
		s.logger(ctx, "payment.callback.rejected", map[string]any{"reason": err.Error()})
		return ReconciliationResult{Outcome: ReconciliationRejected, Reason: "signature verification failed"}, nil
	}

	systemActor := Actor{UserID: "payment-reconciler", Role: domain.RoleSystem}
	order, err := s.orders.GetOrderByNumber(ctx, callback.TxnRef, OrderReadOptions{Actor: systemActor})
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			s.logger(ctx, "payment.callback.rejected", map[string]any{
				"txnRef": callback.TxnRef,
				"reason": "unknown transaction reference",
			})
			return ReconciliationResult{
				Outcome:      ReconciliationRejected,
				GatewayTxnID: callback.TransactionNo,
				ResponseCode: callback.ResponseCode,
				Reason:       "unknown transaction reference",
			}, nil
		}
		return ReconciliationResult{}, err
	}

	base := ReconciliationResult{
		OrderID:      order.ID,
		OrderNumber:  order.OrderNumber,
		GatewayTxnID: callback.TransactionNo,
		ResponseCode: callback.ResponseCode,
	}

	if !callback.Success() {
		base.Outcome = ReconciliationDeclined
		base.Reason = callback.Reason()
		s.logger(ctx, "payment.callback.declined", map[string]any{
			"orderId":      order.ID,
			"responseCode": callback.ResponseCode,
			"reason":       base.Reason,
		})
		return base, nil
	}

	if diff := math.Abs(order.Total - float64(callback.Amount)/100); diff > s.tolerance {
		base.Outcome = ReconciliationRejected
		base.Reason = "amount mismatch"
		s.logger(ctx, "payment.callback.amount_mismatch", map[string]any{
			"orderId":        order.ID,
			"orderTotal":     order.Total,
			"callbackAmount": callback.Amount,
		})
		return base, nil
	}

	now := s.clock()
	key := "gateway:" + callback.TxnRef + ":" + callback.TransactionNo
	fingerprint := idempotency.Fingerprint(callback.TxnRef, callback.TransactionNo, callback.ResponseCode, fmt.Sprint(callback.Amount))

	reservation, err := s.idempotency.Reserve(ctx, key, fingerprint, now, s.callbackTTL)
	if err != nil {
		if errors.Is(err, idempotency.ErrFingerprintMismatch) {
			base.Outcome = ReconciliationRejected
			base.Reason = "callback conflicts with an earlier delivery"
			return base, nil
		}
		return ReconciliationResult{}, err
	}
	switch reservation.State {
	case idempotency.ReservationStateCompleted, idempotency.ReservationStatePending:
		base.Outcome = ReconciliationDuplicate
		base.Reason = "callback already processed"
		return base, nil
	}

	if order.Status != domain.OrderStatusWaitingPayment {
		// Already settled or moved on; record the outcome so redeliveries short-circuit.
		if err := s.saveResult(ctx, key, fingerprint, order.ID, callback.ResponseCode, now); err != nil {
			return ReconciliationResult{}, err
		}
		base.Outcome = ReconciliationNoOp
		base.Reason = fmt.Sprintf("order is %s", order.Status)
		return base, nil
	}

	if _, err := s.orders.MarkPaid(ctx, MarkOrderPaidCommand{OrderID: order.ID, GatewayTxnID: callback.TransactionNo}); err != nil {
		if errors.Is(err, ErrOrderConflict) || errors.Is(err, ErrOrderInvalidState) {
			// Lost the race with another delivery or actor; still a successful no-op.
			if saveErr := s.saveResult(ctx, key, fingerprint, order.ID, callback.ResponseCode, now); saveErr != nil {
				return ReconciliationResult{}, saveErr
			}
			base.Outcome = ReconciliationNoOp
			base.Reason = "order no longer awaiting payment"
			return base, nil
		}
		if releaseErr := s.idempotency.Release(ctx, key, fingerprint); releaseErr != nil {
			s.logger(ctx, "payment.callback.release_failed", map[string]any{"key": key, "error": releaseErr.Error()})
		}
		return ReconciliationResult{}, err
	}

	if err := s.saveResult(ctx, key, fingerprint, order.ID, callback.ResponseCode, now); err != nil {
		return ReconciliationResult{}, err
	}

	s.logger(ctx, "payment.callback.applied", map[string]any{
		"orderId":       order.ID,
		"transactionNo": callback.TransactionNo,
	})

	base.Outcome = ReconciliationApplied
	return base, nil
}

func (s *paymentService) saveResult(ctx context.Context, key, fingerprint, orderID, code string, now time.Time) error {
	return s.idempotency.SaveResult(ctx, key, fingerprint, idempotency.Result{
		OrderID:    orderID,
		ResultCode: code,
	}, now, s.callbackTTL)
}

// minorUnits converts a major-unit amount to the gateway's integer wire format.
func minorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
