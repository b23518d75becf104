package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vendora/api/internal/platform/auth"
	"github.com/vendora/api/internal/platform/httpx"
	"github.com/vendora/api/internal/services"
)

// PaymentHandlers exposes payment initiation and the gateway return callback.
type PaymentHandlers struct {
	authn      *auth.Authenticator
	payments   services.PaymentService
	successURL string
	failureURL string
}

// NewPaymentHandlers constructs a new PaymentHandlers instance. successURL and
// failureURL are the storefront pages the gateway return redirects to.
func NewPaymentHandlers(authn *auth.Authenticator, payments services.PaymentService, successURL, failureURL string) *PaymentHandlers {
	return &PaymentHandlers{
		authn:      authn,
		payments:   payments,
		successURL: strings.TrimSpace(successURL),
		failureURL: strings.TrimSpace(failureURL),
	}
}

// OrderRoutes registers the payment initiation endpoint on the orders group.
// The group is expected to already carry authentication middleware.
func (h *PaymentHandlers) OrderRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/{orderID}/payment", h.initiatePayment)
}

// WebhookRoutes registers the unauthenticated gateway return endpoint.
func (h *PaymentHandlers) WebhookRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/payments/gateway/return", h.gatewayReturn)
}

func (h *PaymentHandlers) initiatePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	actor, ok := actorFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	initiation, err := h.payments.InitiatePayment(ctx, services.InitiatePaymentCommand{
		Actor:    actor,
		OrderID:  orderID,
		ClientIP: r.RemoteAddr,
	})
	if err != nil {
		writePaymentError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, paymentInitiationResponse{
		OrderID:     initiation.OrderID,
		Provider:    initiation.Provider,
		RedirectURL: initiation.RedirectURL,
		ExpiresAt:   formatTime(initiation.ExpiresAt),
	})
}

// gatewayReturn processes the browser redirect from the payment gateway. The
// response is always a redirect to a storefront page; reconciliation detail
// never leaks to the query string beyond the outcome fields.
func (h *PaymentHandlers) gatewayReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}

	params := make(map[string]string)
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}

	result, err := h.payments.HandleGatewayReturn(ctx, services.GatewayCallbackCommand{Params: params})
	if err != nil {
		h.redirect(w, r, h.failureURL, map[string]string{"reason": "processing_failed"})
		return
	}

	switch result.Outcome {
	case services.ReconciliationApplied, services.ReconciliationDuplicate:
		h.redirect(w, r, h.successURL, map[string]string{
			"order_id": result.OrderID,
			"txn_id":   result.GatewayTxnID,
		})
	case services.ReconciliationNoOp:
		h.redirect(w, r, h.successURL, map[string]string{
			"order_id": result.OrderID,
		})
	default:
		query := map[string]string{"reason": reasonSlug(result)}
		if result.Outcome == services.ReconciliationDeclined && result.Reason != "" {
			// The gateway's decoded decline reason is user-facing; rejected
			// callbacks keep the coarse slug so verification detail stays in logs.
			query["reason"] = result.Reason
		}
		if result.OrderID != "" {
			query["order_id"] = result.OrderID
		}
		h.redirect(w, r, h.failureURL, query)
	}
}

func (h *PaymentHandlers) redirect(w http.ResponseWriter, r *http.Request, target string, query map[string]string) {
	if target == "" {
		writeJSONResponse(w, http.StatusOK, query)
		return
	}

	u, err := url.Parse(target)
	if err != nil {
		writeJSONResponse(w, http.StatusOK, query)
		return
	}
	values := u.Query()
	for key, value := range query {
		if strings.TrimSpace(value) != "" {
			values.Set(key, value)
		}
	}
	u.RawQuery = values.Encode()

	http.Redirect(w, r, u.String(), http.StatusFound)
}

func reasonSlug(result services.ReconciliationResult) string {
	switch result.Outcome {
	case services.ReconciliationDeclined:
		return "payment_declined"
	case services.ReconciliationRejected:
		return "callback_rejected"
	default:
		return "payment_failed"
	}
}

type paymentInitiationResponse struct {
	OrderID     string `json:"order_id"`
	Provider    string `json:"provider"`
	RedirectURL string `json:"redirect_url"`
	ExpiresAt   string `json:"expires_at,omitempty"`
}

func writePaymentError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrPaymentInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentMethodUnsupported):
		httpx.WriteError(ctx, w, httpx.NewError("payment_method_unsupported", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("payment_invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("order_forbidden", "actor may not access this order", http.StatusForbidden))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("payment_error", "failed to process payment request", http.StatusInternalServerError))
	}
}
