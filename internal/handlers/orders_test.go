package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/vendora/api/internal/domain"
	"github.com/vendora/api/internal/platform/auth"
	"github.com/vendora/api/internal/services"
)

type stubOrderService struct {
	checkoutFn    func(context.Context, services.CheckoutCommand) (services.Order, error)
	getFn         func(context.Context, string, services.OrderReadOptions) (services.Order, error)
	getByNumberFn func(context.Context, string, services.OrderReadOptions) (services.Order, error)
	statusFn      func(context.Context, string, services.OrderReadOptions) (services.OrderStatusView, error)
	listFn        func(context.Context, services.OrderListFilter) (domain.CursorPage[services.Order], error)
	transitionFn  func(context.Context, services.OrderStatusTransitionCommand) (services.Order, error)
	deleteFn      func(context.Context, services.DeleteOrderCommand) error
	markPaidFn    func(context.Context, services.MarkOrderPaidCommand) (services.Order, error)
}

func (s *stubOrderService) Checkout(ctx context.Context, cmd services.CheckoutCommand) (services.Order, error) {
	if s.checkoutFn != nil {
		return s.checkoutFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string, opts services.OrderReadOptions) (services.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, orderID, opts)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) GetOrderByNumber(ctx context.Context, orderNumber string, opts services.OrderReadOptions) (services.Order, error) {
	if s.getByNumberFn != nil {
		return s.getByNumberFn(ctx, orderNumber, opts)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) GetOrderStatus(ctx context.Context, orderID string, opts services.OrderReadOptions) (services.OrderStatusView, error) {
	if s.statusFn != nil {
		return s.statusFn(ctx, orderID, opts)
	}
	return services.OrderStatusView{}, errors.New("not implemented")
}

func (s *stubOrderService) ListOrders(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[services.Order]{}, nil
}

func (s *stubOrderService) TransitionStatus(ctx context.Context, cmd services.OrderStatusTransitionCommand) (services.Order, error) {
	if s.transitionFn != nil {
		return s.transitionFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) DeleteOrder(ctx context.Context, cmd services.DeleteOrderCommand) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, cmd)
	}
	return errors.New("not implemented")
}

func (s *stubOrderService) MarkPaid(ctx context.Context, cmd services.MarkOrderPaidCommand) (services.Order, error) {
	if s.markPaidFn != nil {
		return s.markPaidFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

var _ services.OrderService = (*stubOrderService)(nil)

func newOrderRouter(service services.OrderService) chi.Router {
	handler := NewOrderHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/orders", handler.Routes)
	return router
}

func withActor(req *http.Request, userID, role string) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UserID: userID, Role: role}))
}

func TestOrderHandlersCreateOrderSuccess(t *testing.T) {
	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	var captured services.CheckoutCommand
	service := &stubOrderService{
		checkoutFn: func(ctx context.Context, cmd services.CheckoutCommand) (services.Order, error) {
			captured = cmd
			return services.Order{
				ID:            "order-1",
				OrderNumber:   "VN-2026-000001",
				CustomerID:    cmd.Actor.UserID,
				Status:        domain.OrderStatusWaitingPayment,
				PaymentMethod: cmd.PaymentMethod,
				PaymentStatus: domain.PaymentStatusUnpaid,
				Subtotal:      230,
				ShippingFee:   5,
				Total:         235,
				Items: []domain.OrderLineItem{
					{ProductID: "prod-a", SellerID: "seller-1", Name: "Ceramic mug", Quantity: 2, UnitPrice: 100, Subtotal: 180},
				},
				CreatedAt: now,
				UpdatedAt: now,
			}, nil
		},
	}

	body := `{
		"items": [{"product_id": "prod-a", "quantity": 2}],
		"payment_method": "gateway",
		"shipping_address": {"recipient": "An Tran", "line1": "1 Le Loi", "city": "Da Nang", "postal_code": "550000", "country": "VN"},
		"note": "leave at the door"
	}`
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
	req = withActor(req, "cust-1", "customer")

	rr := httptest.NewRecorder()
	newOrderRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	if captured.Actor.UserID != "cust-1" || captured.Actor.Role != domain.RoleCustomer {
		t.Fatalf("unexpected actor %+v", captured.Actor)
	}
	if len(captured.Items) != 1 || captured.Items[0].ProductID != "prod-a" || captured.Items[0].Quantity != 2 {
		t.Fatalf("unexpected items %+v", captured.Items)
	}
	if captured.PaymentMethod != domain.PaymentMethodGateway {
		t.Fatalf("unexpected payment method %s", captured.PaymentMethod)
	}
	if captured.ShippingAddress == nil || captured.ShippingAddress.City != "Da Nang" {
		t.Fatalf("unexpected address %+v", captured.ShippingAddress)
	}

	var resp struct {
		Order struct {
			ID          string  `json:"id"`
			OrderNumber string  `json:"order_number"`
			Status      string  `json:"status"`
			Total       float64 `json:"total"`
		} `json:"order"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Order.OrderNumber != "VN-2026-000001" || resp.Order.Status != "waiting_payment" || resp.Order.Total != 235 {
		t.Fatalf("unexpected payload %+v", resp.Order)
	}
}

func TestOrderHandlersCreateOrderDiscountAndShippingFee(t *testing.T) {
	var captured services.CheckoutCommand
	service := &stubOrderService{
		checkoutFn: func(ctx context.Context, cmd services.CheckoutCommand) (services.Order, error) {
			captured = cmd
			return services.Order{ID: "order-1", Status: domain.OrderStatusWaitingPayment}, nil
		},
	}

	body := `{
		"items": [{"product_id": "prod-a", "quantity": 2}],
		"payment_method": "gateway",
		"discount_amount": 50,
		"shipping_fee": 0
	}`
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body))
	req = withActor(req, "cust-1", "customer")

	rr := httptest.NewRecorder()
	newOrderRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.DiscountAmount != 50 {
		t.Fatalf("expected discount_amount 50 to reach the service, got %v", captured.DiscountAmount)
	}
	if captured.ShippingFee == nil || *captured.ShippingFee != 0 {
		t.Fatalf("expected explicit shipping_fee 0 to reach the service, got %v", captured.ShippingFee)
	}

	// An omitted shipping fee stays nil so the configured flat fee applies.
	req = httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"items":[{"product_id":"prod-a","quantity":1}],"payment_method":"cash"}`))
	req = withActor(req, "cust-1", "customer")
	rr = httptest.NewRecorder()
	newOrderRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.DiscountAmount != 0 || captured.ShippingFee != nil {
		t.Fatalf("expected zero discount and nil shipping fee, got %v %v", captured.DiscountAmount, captured.ShippingFee)
	}
}

func TestOrderHandlersCreateOrderInsufficientStock(t *testing.T) {
	service := &stubOrderService{
		checkoutFn: func(context.Context, services.CheckoutCommand) (services.Order, error) {
			return services.Order{}, services.ErrStockInsufficient
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"items":[{"product_id":"prod-a","quantity":99}],"payment_method":"cash"}`))
	req = withActor(req, "cust-1", "customer")

	rr := httptest.NewRecorder()
	newOrderRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "insufficient_stock") {
		t.Fatalf("expected insufficient_stock code, got %s", rr.Body.String())
	}
}

func TestOrderHandlersCreateOrderRequiresIdentity(t *testing.T) {
	service := &stubOrderService{}

	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"items":[]}`))

	rr := httptest.NewRecorder()
	newOrderRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestOrderHandlersCreateOrderEmptyBody(t *testing.T) {
	service := &stubOrderService{}

	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader("  "))
	req = withActor(req, "cust-1", "customer")

	rr := httptest.NewRecorder()
	newOrderRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestOrderHandlersListOrdersFilter(t *testing.T) {
	var captured services.OrderListFilter
	service := &stubOrderService{
		listFn: func(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
			captured = filter
			return domain.CursorPage[services.Order]{
				Items: []services.Order{
					{ID: "order-1", OrderNumber: "VN-2026-000001", Status: domain.OrderStatusShipping, Total: 120},
				},
				NextPageToken: "tok-next",
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/orders?status=shipped&page_size=10&page_token=tok123", nil)
	req = withActor(req, "seller-1", "seller")

	rr := httptest.NewRecorder()
	newOrderRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	if captured.Actor.UserID != "seller-1" || captured.Actor.Role != domain.RoleSeller {
		t.Fatalf("unexpected actor %+v", captured.Actor)
	}
	if captured.Status == nil || *captured.Status != domain.OrderStatusShipping {
		t.Fatalf("expected shipped alias to normalise to shipping, got %v", captured.Status)
	}
	if captured.Pagination.PageSize != 10 || captured.Pagination.PageToken != "tok123" {
		t.Fatalf("unexpected pagination %+v", captured.Pagination)
	}

	var resp struct {
		Items         []map[string]any `json:"items"`
		NextPageToken string           `json:"next_page_token"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(resp.Items) != 1 || resp.NextPageToken != "tok-next" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestOrderHandlersListOrdersRejectsUnknownStatus(t *testing.T) {
	service := &stubOrderService{}

	req := httptest.NewRequest(http.MethodGet, "/orders?status=bogus", nil)
	req = withActor(req, "cust-1", "customer")

	rr := httptest.NewRecorder()
	newOrderRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestOrderHandlersGetOrderForbidden(t *testing.T) {
	service := &stubOrderService{
		getFn: func(context.Context, string, services.OrderReadOptions) (services.Order, error) {
			return services.Order{}, services.ErrOrderForbidden
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/orders/order-1", nil)
	req = withActor(req, "cust-2", "customer")

	rr := httptest.NewRecorder()
	newOrderRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rr.Code)
	}
}

func TestOrderHandlersGetOrderStatusProjection(t *testing.T) {
	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	service := &stubOrderService{
		statusFn: func(ctx context.Context, orderID string, opts services.OrderReadOptions) (services.OrderStatusView, error) {
			return services.OrderStatusView{
				OrderID:       orderID,
				OrderNumber:   "VN-2026-000001",
				Status:        domain.OrderStatusProcessing,
				PaymentStatus: domain.PaymentStatusPaid,
				PaymentMethod: domain.PaymentMethodGateway,
				UpdatedAt:     now,
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/orders/order-1/status", nil)
	req = withActor(req, "cust-1", "customer")

	rr := httptest.NewRecorder()
	newOrderRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp orderStatusResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.OrderID != "order-1" || resp.Status != "processing" || resp.PaymentStatus != "paid" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestOrderHandlersTransitionInvalidEdge(t *testing.T) {
	service := &stubOrderService{
		transitionFn: func(context.Context, services.OrderStatusTransitionCommand) (services.Order, error) {
			return services.Order{}, &services.InvalidTransitionError{
				Role: domain.RoleCustomer,
				From: domain.OrderStatusProcessing,
				To:   domain.OrderStatusCompleted,
			}
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/orders/order-1/status", strings.NewReader(`{"status":"completed"}`))
	req = withActor(req, "cust-1", "customer")

	rr := httptest.NewRecorder()
	newOrderRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}

	var resp struct {
		Error string `json:"error"`
		From  string `json:"from"`
		To    string `json:"to"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Error != "invalid_transition" || resp.From != "processing" || resp.To != "completed" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestOrderHandlersTransitionRequiresStatus(t *testing.T) {
	service := &stubOrderService{}

	req := httptest.NewRequest(http.MethodPost, "/orders/order-1/status", strings.NewReader(`{"cancel_reason":"changed my mind"}`))
	req = withActor(req, "cust-1", "customer")

	rr := httptest.NewRecorder()
	newOrderRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestOrderHandlersTransitionConflict(t *testing.T) {
	service := &stubOrderService{
		transitionFn: func(context.Context, services.OrderStatusTransitionCommand) (services.Order, error) {
			return services.Order{}, services.ErrOrderConflict
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/orders/order-1/status", strings.NewReader(`{"status":"cancelled"}`))
	req = withActor(req, "cust-1", "customer")

	rr := httptest.NewRecorder()
	newOrderRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
}
