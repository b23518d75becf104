package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	domain "github.com/vendora/api/internal/domain"
	"github.com/vendora/api/internal/repositories"
)

var testNow = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

type fakeStockRepo struct {
	stocks     map[string]domain.ProductStock
	restocks   []repositories.StockRestockRequest
	restockErr error
	lowStock   domain.CursorPage[domain.ProductStock]
	lowQueries []repositories.StockLowStockQuery
}

func (f *fakeStockRepo) Get(_ context.Context, productID string) (domain.ProductStock, error) {
	stock, ok := f.stocks[productID]
	if !ok {
		return domain.ProductStock{}, repositories.NewStockError(repositories.StockErrorNotFound, "stock "+productID+" not found", nil)
	}
	return stock, nil
}

func (f *fakeStockRepo) Save(_ context.Context, stock domain.ProductStock) (domain.ProductStock, error) {
	if f.stocks == nil {
		f.stocks = map[string]domain.ProductStock{}
	}
	f.stocks[stock.ProductID] = stock
	return stock, nil
}

func (f *fakeStockRepo) Restock(_ context.Context, req repositories.StockRestockRequest) (domain.ProductStock, error) {
	if f.restockErr != nil {
		return domain.ProductStock{}, f.restockErr
	}
	f.restocks = append(f.restocks, req)
	stock, ok := f.stocks[req.ProductID]
	if !ok {
		return domain.ProductStock{}, repositories.NewStockError(repositories.StockErrorNotFound, "stock "+req.ProductID+" not found", nil)
	}
	stock.Initial += req.Quantity
	stock.Remaining += req.Quantity
	stock.InStock = stock.Remaining > 0
	f.stocks[req.ProductID] = stock
	return stock, nil
}

func (f *fakeStockRepo) ListLowStock(_ context.Context, query repositories.StockLowStockQuery) (domain.CursorPage[domain.ProductStock], error) {
	f.lowQueries = append(f.lowQueries, query)
	return f.lowStock, nil
}

type fakeOrderRepo struct {
	orders       map[string]domain.Order
	createErr    error
	created      []repositories.OrderCreateRequest
	createStocks map[string]domain.ProductStock
	updates      []repositories.OrderStatusUpdate
	updateErr    error
	deletes      []repositories.OrderDeleteRequest
	customerPage domain.CursorPage[domain.Order]
	sellerPage   domain.CursorPage[domain.Order]
	listFilters  []repositories.OrderListFilter
}

func (f *fakeOrderRepo) Create(_ context.Context, req repositories.OrderCreateRequest) (repositories.OrderCreateResult, error) {
	if f.createErr != nil {
		return repositories.OrderCreateResult{}, f.createErr
	}
	f.created = append(f.created, req)
	if f.orders == nil {
		f.orders = map[string]domain.Order{}
	}
	order := req.Order
	order.CreatedAt = req.Now
	order.UpdatedAt = req.Now
	f.orders[order.ID] = order
	return repositories.OrderCreateResult{Order: order, Stocks: f.createStocks}, nil
}

func (f *fakeOrderRepo) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	order, ok := f.orders[orderID]
	if !ok {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorNotFound, "order "+orderID+" not found", nil)
	}
	return order, nil
}

func (f *fakeOrderRepo) FindByNumber(_ context.Context, orderNumber string) (domain.Order, error) {
	for _, order := range f.orders {
		if order.OrderNumber == orderNumber {
			return order, nil
		}
	}
	return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorNotFound, "order number "+orderNumber+" not found", nil)
}

func (f *fakeOrderRepo) ListByCustomer(_ context.Context, _ string, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	f.listFilters = append(f.listFilters, filter)
	return f.customerPage, nil
}

func (f *fakeOrderRepo) ListBySeller(_ context.Context, _ string, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	f.listFilters = append(f.listFilters, filter)
	return f.sellerPage, nil
}

func (f *fakeOrderRepo) UpdateStatus(_ context.Context, req repositories.OrderStatusUpdate) (domain.Order, error) {
	if f.updateErr != nil {
		return domain.Order{}, f.updateErr
	}
	f.updates = append(f.updates, req)
	order, ok := f.orders[req.OrderID]
	if !ok {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorNotFound, "order "+req.OrderID+" not found", nil)
	}
	order.Status = req.To
	order.UpdatedAt = req.Now
	if req.PaymentStatus != nil {
		order.PaymentStatus = *req.PaymentStatus
	}
	if req.GatewayTxnID != nil {
		order.GatewayTxnID = req.GatewayTxnID
	}
	if req.CancelReason != nil {
		order.CancelReason = req.CancelReason
	}
	f.orders[req.OrderID] = order
	return order, nil
}

func (f *fakeOrderRepo) Delete(_ context.Context, req repositories.OrderDeleteRequest) error {
	f.deletes = append(f.deletes, req)
	delete(f.orders, req.OrderID)
	return nil
}

type fakeCounterRepo struct {
	values map[string]int64
	err    error
}

func (f *fakeCounterRepo) Next(_ context.Context, counterID string, step int64) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	if f.values == nil {
		f.values = map[string]int64{}
	}
	if step <= 0 {
		step = 1
	}
	f.values[counterID] += step
	return f.values[counterID], nil
}

func (f *fakeCounterRepo) Configure(context.Context, string, repositories.CounterConfig) error {
	return nil
}

type capturingOrderPublisher struct {
	events []OrderEvent
	err    error
}

func (p *capturingOrderPublisher) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

type capturingStockPublisher struct {
	events []StockEvent
}

func (p *capturingStockPublisher) PublishStockEvent(_ context.Context, event StockEvent) error {
	p.events = append(p.events, event)
	return nil
}

func newTestOrderService(t *testing.T, orders *fakeOrderRepo, stocks *fakeStockRepo, counters *fakeCounterRepo, orderPub *capturingOrderPublisher, stockPub *capturingStockPublisher) OrderService {
	t.Helper()
	deps := OrderServiceDeps{
		Orders:      orders,
		Stocks:      stocks,
		Counters:    counters,
		ShippingFee: 5,
		PageSize:    20,
		MaxPageSize: 100,
		Clock:       func() time.Time { return testNow },
		IDGenerator: func() string { return "order-1" },
	}
	// A nil *capturingOrderPublisher stored in the interface field would be a
	// non-nil interface; leave the field unset so the service sees no publisher.
	if orderPub != nil {
		deps.OrderEvents = orderPub
	}
	if stockPub != nil {
		deps.StockEvents = stockPub
	}
	svc, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	return svc
}

func seededStocks() *fakeStockRepo {
	return &fakeStockRepo{stocks: map[string]domain.ProductStock{
		"prod-a": {ProductID: "prod-a", SellerID: "seller-1", Name: "Ceramic mug", ListedPrice: 100, DiscountPercent: 10, Initial: 10, Remaining: 10, InStock: true},
		"prod-b": {ProductID: "prod-b", SellerID: "seller-2", Name: "Tea sampler", ListedPrice: 50, Initial: 5, Remaining: 5, InStock: true},
	}}
}

func TestOrderServiceCheckout(t *testing.T) {
	orders := &fakeOrderRepo{createStocks: map[string]domain.ProductStock{
		"prod-a": {ProductID: "prod-a", SellerID: "seller-1", Remaining: 8, Sold: 2, InStock: true},
		"prod-b": {ProductID: "prod-b", SellerID: "seller-2", Remaining: 4, Sold: 1, InStock: true},
	}}
	stocks := seededStocks()
	orderPub := &capturingOrderPublisher{}
	stockPub := &capturingStockPublisher{}
	svc := newTestOrderService(t, orders, stocks, &fakeCounterRepo{}, orderPub, stockPub)

	order, err := svc.Checkout(context.Background(), CheckoutCommand{
		Actor:         Actor{UserID: "cust-1", Role: domain.RoleCustomer},
		PaymentMethod: domain.PaymentMethodGateway,
		Items: []CheckoutItem{
			{ProductID: "prod-a", Quantity: 2},
			{ProductID: "prod-b", Quantity: 1},
		},
		Note: "<script>alert(1)</script> leave at the door",
	})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}

	if order.OrderNumber != "VN-2026-000001" {
		t.Fatalf("unexpected order number %q", order.OrderNumber)
	}
	if order.Status != domain.OrderStatusWaitingPayment {
		t.Fatalf("gateway order should start waiting_payment, got %s", order.Status)
	}
	if order.PaymentStatus != domain.PaymentStatusUnpaid {
		t.Fatalf("unexpected payment status %s", order.PaymentStatus)
	}
	// 2 x 100 at 10% off = 180, plus 1 x 50, plus shipping fee 5.
	if order.Subtotal != 230 || order.Total != 235 {
		t.Fatalf("unexpected totals subtotal=%v total=%v", order.Subtotal, order.Total)
	}
	if order.Note != "leave at the door" {
		t.Fatalf("note not sanitised: %q", order.Note)
	}
	if len(order.Items) != 2 {
		t.Fatalf("expected 2 line items, got %d", len(order.Items))
	}
	if order.Items[0].Name != "Ceramic mug" || order.Items[0].Subtotal != 180 {
		t.Fatalf("unexpected first line %+v", order.Items[0])
	}

	if len(orderPub.events) != 1 || orderPub.events[0].Type != "order.created" {
		t.Fatalf("expected one order.created event, got %+v", orderPub.events)
	}
	if len(stockPub.events) != 2 {
		t.Fatalf("expected stock events for both products, got %d", len(stockPub.events))
	}
	if stockPub.events[0].Delta != -2 || stockPub.events[0].Remaining != 8 {
		t.Fatalf("unexpected stock event %+v", stockPub.events[0])
	}
}

func TestOrderServiceCheckoutDiscountAndShippingFee(t *testing.T) {
	fee := func(v float64) *float64 { return &v }

	cases := []struct {
		name         string
		discount     float64
		shippingFee  *float64
		wantDiscount float64
		wantShipping float64
		wantTotal    float64
	}{
		// prod-b x1 subtotal is 50; configured flat fee is 5.
		{name: "discount applied", discount: 30, wantDiscount: 30, wantShipping: 5, wantTotal: 25},
		{name: "discount clamped to subtotal", discount: 500, wantDiscount: 50, wantShipping: 5, wantTotal: 5},
		{name: "explicit zero shipping fee", discount: 50, shippingFee: fee(0), wantDiscount: 50, wantShipping: 0, wantTotal: 0},
		{name: "shipping fee override", shippingFee: fee(12), wantDiscount: 0, wantShipping: 12, wantTotal: 62},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			orders := &fakeOrderRepo{}
			svc := newTestOrderService(t, orders, seededStocks(), &fakeCounterRepo{}, nil, nil)

			order, err := svc.Checkout(context.Background(), CheckoutCommand{
				Actor:          Actor{UserID: "cust-1", Role: domain.RoleCustomer},
				PaymentMethod:  domain.PaymentMethodCash,
				Items:          []CheckoutItem{{ProductID: "prod-b", Quantity: 1}},
				DiscountAmount: tc.discount,
				ShippingFee:    tc.shippingFee,
			})
			if err != nil {
				t.Fatalf("Checkout: %v", err)
			}
			if order.DiscountAmount != tc.wantDiscount {
				t.Fatalf("expected discount %v, got %v", tc.wantDiscount, order.DiscountAmount)
			}
			if order.ShippingFee != tc.wantShipping {
				t.Fatalf("expected shipping fee %v, got %v", tc.wantShipping, order.ShippingFee)
			}
			if order.Total != tc.wantTotal {
				t.Fatalf("expected total %v, got %v", tc.wantTotal, order.Total)
			}
		})
	}

	t.Run("negative discount rejected", func(t *testing.T) {
		svc := newTestOrderService(t, &fakeOrderRepo{}, seededStocks(), &fakeCounterRepo{}, nil, nil)
		_, err := svc.Checkout(context.Background(), CheckoutCommand{
			Actor:          Actor{UserID: "cust-1", Role: domain.RoleCustomer},
			PaymentMethod:  domain.PaymentMethodCash,
			Items:          []CheckoutItem{{ProductID: "prod-b", Quantity: 1}},
			DiscountAmount: -10,
		})
		if !errors.Is(err, ErrOrderInvalidInput) {
			t.Fatalf("expected ErrOrderInvalidInput, got %v", err)
		}
	})
}

func TestOrderServiceCheckoutMergesDuplicateLines(t *testing.T) {
	orders := &fakeOrderRepo{}
	svc := newTestOrderService(t, orders, seededStocks(), &fakeCounterRepo{}, nil, nil)

	order, err := svc.Checkout(context.Background(), CheckoutCommand{
		Actor:         Actor{UserID: "cust-1", Role: domain.RoleCustomer},
		PaymentMethod: domain.PaymentMethodCash,
		Items: []CheckoutItem{
			{ProductID: "prod-a", Quantity: 1},
			{ProductID: "prod-a", Quantity: 2},
		},
	})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if len(order.Items) != 1 || order.Items[0].Quantity != 3 {
		t.Fatalf("expected merged line with quantity 3, got %+v", order.Items)
	}
	if order.Status != domain.OrderStatusPending {
		t.Fatalf("cash order should start pending, got %s", order.Status)
	}
}

func TestOrderServiceCheckoutInsufficientStock(t *testing.T) {
	svc := newTestOrderService(t, &fakeOrderRepo{}, seededStocks(), &fakeCounterRepo{}, nil, nil)

	_, err := svc.Checkout(context.Background(), CheckoutCommand{
		Actor:         Actor{UserID: "cust-1", Role: domain.RoleCustomer},
		PaymentMethod: domain.PaymentMethodCash,
		Items:         []CheckoutItem{{ProductID: "prod-b", Quantity: 6}},
	})
	if !errors.Is(err, ErrStockInsufficient) {
		t.Fatalf("expected ErrStockInsufficient, got %v", err)
	}
}

func TestOrderServiceCheckoutUnknownProduct(t *testing.T) {
	svc := newTestOrderService(t, &fakeOrderRepo{}, seededStocks(), &fakeCounterRepo{}, nil, nil)

	_, err := svc.Checkout(context.Background(), CheckoutCommand{
		Actor:         Actor{UserID: "cust-1", Role: domain.RoleCustomer},
		PaymentMethod: domain.PaymentMethodCash,
		Items:         []CheckoutItem{{ProductID: "missing", Quantity: 1}},
	})
	if !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestOrderServiceCheckoutValidation(t *testing.T) {
	svc := newTestOrderService(t, &fakeOrderRepo{}, seededStocks(), &fakeCounterRepo{}, nil, nil)

	cases := []struct {
		name string
		cmd  CheckoutCommand
		want error
	}{
		{
			name: "missing actor",
			cmd:  CheckoutCommand{PaymentMethod: domain.PaymentMethodCash, Items: []CheckoutItem{{ProductID: "prod-a", Quantity: 1}}},
			want: ErrOrderInvalidInput,
		},
		{
			name: "seller cannot order",
			cmd: CheckoutCommand{
				Actor:         Actor{UserID: "seller-1", Role: domain.RoleSeller},
				PaymentMethod: domain.PaymentMethodCash,
				Items:         []CheckoutItem{{ProductID: "prod-a", Quantity: 1}},
			},
			want: ErrOrderForbidden,
		},
		{
			name: "no items",
			cmd:  CheckoutCommand{Actor: Actor{UserID: "cust-1", Role: domain.RoleCustomer}, PaymentMethod: domain.PaymentMethodCash},
			want: ErrOrderInvalidInput,
		},
		{
			name: "bad payment method",
			cmd: CheckoutCommand{
				Actor:         Actor{UserID: "cust-1", Role: domain.RoleCustomer},
				PaymentMethod: domain.PaymentMethod("crypto"),
				Items:         []CheckoutItem{{ProductID: "prod-a", Quantity: 1}},
			},
			want: ErrOrderInvalidInput,
		},
		{
			name: "zero quantity",
			cmd: CheckoutCommand{
				Actor:         Actor{UserID: "cust-1", Role: domain.RoleCustomer},
				PaymentMethod: domain.PaymentMethodCash,
				Items:         []CheckoutItem{{ProductID: "prod-a", Quantity: 0}},
			},
			want: ErrOrderInvalidInput,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Checkout(context.Background(), tc.cmd); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestOrderServiceTransitionCancelRestoresStock(t *testing.T) {
	orders := &fakeOrderRepo{orders: map[string]domain.Order{
		"order-1": {
			ID:         "order-1",
			CustomerID: "cust-1",
			Status:     domain.OrderStatusPending,
			Items:      []domain.OrderLineItem{{ProductID: "prod-a", SellerID: "seller-1", Quantity: 2, Subtotal: 180}},
		},
	}}
	stockPub := &capturingStockPublisher{}
	svc := newTestOrderService(t, orders, seededStocks(), &fakeCounterRepo{}, &capturingOrderPublisher{}, stockPub)

	updated, err := svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		Actor:        Actor{UserID: "cust-1", Role: domain.RoleCustomer},
		OrderID:      "order-1",
		RawStatus:    "canceled",
		CancelReason: "changed my <b>mind</b>",
	})
	if err != nil {
		t.Fatalf("TransitionStatus: %v", err)
	}
	if updated.Status != domain.OrderStatusCancelled {
		t.Fatalf("unexpected status %s", updated.Status)
	}

	if len(orders.updates) != 1 {
		t.Fatalf("expected one update, got %d", len(orders.updates))
	}
	update := orders.updates[0]
	if !update.RestoreStock {
		t.Fatal("cancellation must restore stock")
	}
	if update.CancelReason == nil || *update.CancelReason != "changed my mind" {
		t.Fatalf("cancel reason not sanitised: %v", update.CancelReason)
	}
	if len(update.ExpectedFrom) != 1 || update.ExpectedFrom[0] != domain.OrderStatusPending {
		t.Fatalf("expected optimistic guard on pending, got %v", update.ExpectedFrom)
	}
	if len(stockPub.events) != 1 || stockPub.events[0].Delta != 2 {
		t.Fatalf("expected restore stock event with delta 2, got %+v", stockPub.events)
	}
}

func TestOrderServiceTransitionLegacyUnconfirmedAlias(t *testing.T) {
	orders := &fakeOrderRepo{orders: map[string]domain.Order{
		"order-1": {ID: "order-1", CustomerID: "cust-1", Status: domain.OrderStatusWaitingPayment},
	}}
	svc := newTestOrderService(t, orders, seededStocks(), &fakeCounterRepo{}, &capturingOrderPublisher{}, nil)

	// Customers reporting payment through legacy clients send "unconfirmed".
	updated, err := svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		Actor:     Actor{UserID: "cust-1", Role: domain.RoleCustomer},
		OrderID:   "order-1",
		RawStatus: "unconfirmed",
	})
	if err != nil {
		t.Fatalf("TransitionStatus: %v", err)
	}
	if updated.Status != domain.OrderStatusWaitingConfirm {
		t.Fatalf("expected waiting_confirm, got %s", updated.Status)
	}
	if len(orders.updates) != 1 || orders.updates[0].To != domain.OrderStatusWaitingConfirm {
		t.Fatalf("unexpected updates %+v", orders.updates)
	}
}

func TestOrderServiceTransitionCancelAlreadyCancelled(t *testing.T) {
	orders := &fakeOrderRepo{orders: map[string]domain.Order{
		"order-1": {
			ID:         "order-1",
			CustomerID: "cust-1",
			Status:     domain.OrderStatusCancelled,
			Items:      []domain.OrderLineItem{{ProductID: "prod-a", SellerID: "seller-1", Quantity: 2}},
		},
	}}
	stockPub := &capturingStockPublisher{}
	svc := newTestOrderService(t, orders, seededStocks(), &fakeCounterRepo{}, &capturingOrderPublisher{}, stockPub)

	_, err := svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		Actor:     Actor{UserID: "cust-1", Role: domain.RoleCustomer},
		OrderID:   "order-1",
		RawStatus: "cancelled",
	})
	var invalid *InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if len(orders.updates) != 0 {
		t.Fatal("second cancellation must not reach the repository")
	}
	if len(stockPub.events) != 0 {
		t.Fatalf("second cancellation must not restore stock again, got %+v", stockPub.events)
	}
}

func TestOrderServiceTransitionOwnership(t *testing.T) {
	orders := &fakeOrderRepo{orders: map[string]domain.Order{
		"order-1": {
			ID:         "order-1",
			CustomerID: "cust-1",
			Status:     domain.OrderStatusPending,
			Items: []domain.OrderLineItem{
				{ProductID: "prod-a", SellerID: "seller-1", Quantity: 1},
				{ProductID: "prod-b", SellerID: "seller-2", Quantity: 1},
			},
		},
	}}
	svc := newTestOrderService(t, orders, seededStocks(), &fakeCounterRepo{}, nil, nil)

	_, err := svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		Actor:     Actor{UserID: "cust-2", Role: domain.RoleCustomer},
		OrderID:   "order-1",
		RawStatus: "cancelled",
	})
	if !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("foreign customer: expected ErrOrderForbidden, got %v", err)
	}

	// seller-1 owns only one of the two lines.
	_, err = svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		Actor:     Actor{UserID: "seller-1", Role: domain.RoleSeller},
		OrderID:   "order-1",
		RawStatus: "waiting_confirm",
	})
	if !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("partial seller: expected ErrOrderForbidden, got %v", err)
	}
}

func TestOrderServiceTransitionRejectedByTable(t *testing.T) {
	orders := &fakeOrderRepo{orders: map[string]domain.Order{
		"order-1": {ID: "order-1", CustomerID: "cust-1", Status: domain.OrderStatusProcessing},
	}}
	svc := newTestOrderService(t, orders, seededStocks(), &fakeCounterRepo{}, nil, nil)

	_, err := svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		Actor:     Actor{UserID: "cust-1", Role: domain.RoleCustomer},
		OrderID:   "order-1",
		RawStatus: "shipping",
	})
	var invalid *InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if invalid.From != domain.OrderStatusProcessing || invalid.To != domain.OrderStatusShipping {
		t.Fatalf("unexpected edge %+v", invalid)
	}
	if len(orders.updates) != 0 {
		t.Fatal("rejected transition must not touch the repository")
	}
}

func TestOrderServiceTransitionConcurrentConflict(t *testing.T) {
	orders := &fakeOrderRepo{
		orders: map[string]domain.Order{
			"order-1": {ID: "order-1", CustomerID: "cust-1", Status: domain.OrderStatusPending},
		},
		updateErr: repositories.NewOrderError(repositories.OrderErrorInvalidState, "order order-1 is waiting_confirm", nil),
	}
	svc := newTestOrderService(t, orders, seededStocks(), &fakeCounterRepo{}, nil, nil)

	_, err := svc.TransitionStatus(context.Background(), OrderStatusTransitionCommand{
		Actor:     Actor{UserID: "cust-1", Role: domain.RoleCustomer},
		OrderID:   "order-1",
		RawStatus: "cancelled",
	})
	if !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected ErrOrderConflict, got %v", err)
	}
}

func TestOrderServiceMarkPaid(t *testing.T) {
	orders := &fakeOrderRepo{orders: map[string]domain.Order{
		"order-1": {ID: "order-1", OrderNumber: "VN-2026-000001", CustomerID: "cust-1", Status: domain.OrderStatusWaitingPayment, Total: 235},
	}}
	orderPub := &capturingOrderPublisher{}
	svc := newTestOrderService(t, orders, seededStocks(), &fakeCounterRepo{}, orderPub, nil)

	updated, err := svc.MarkPaid(context.Background(), MarkOrderPaidCommand{OrderID: "order-1", GatewayTxnID: "gw-123"})
	if err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}
	if updated.Status != domain.OrderStatusProcessing || updated.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("unexpected order state %s/%s", updated.Status, updated.PaymentStatus)
	}
	if updated.GatewayTxnID == nil || *updated.GatewayTxnID != "gw-123" {
		t.Fatalf("gateway txn not recorded: %v", updated.GatewayTxnID)
	}

	update := orders.updates[0]
	if len(update.ExpectedFrom) != 1 || update.ExpectedFrom[0] != domain.OrderStatusWaitingPayment {
		t.Fatalf("expected waiting_payment guard, got %v", update.ExpectedFrom)
	}
	if len(orderPub.events) != 1 || orderPub.events[0].PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("expected paid status change event, got %+v", orderPub.events)
	}
}

func TestOrderServiceDeleteOrder(t *testing.T) {
	newRepo := func(status domain.OrderStatus) *fakeOrderRepo {
		return &fakeOrderRepo{orders: map[string]domain.Order{
			"order-1": {ID: "order-1", CustomerID: "cust-1", Status: status,
				Items: []domain.OrderLineItem{{ProductID: "prod-a", SellerID: "seller-1", Quantity: 1}}},
		}}
	}

	t.Run("non admin forbidden", func(t *testing.T) {
		svc := newTestOrderService(t, newRepo(domain.OrderStatusPending), seededStocks(), &fakeCounterRepo{}, nil, nil)
		err := svc.DeleteOrder(context.Background(), DeleteOrderCommand{
			Actor:   Actor{UserID: "cust-1", Role: domain.RoleCustomer},
			OrderID: "order-1",
		})
		if !errors.Is(err, ErrOrderForbidden) {
			t.Fatalf("expected ErrOrderForbidden, got %v", err)
		}
	})

	t.Run("shipped order rejected", func(t *testing.T) {
		svc := newTestOrderService(t, newRepo(domain.OrderStatusShipping), seededStocks(), &fakeCounterRepo{}, nil, nil)
		err := svc.DeleteOrder(context.Background(), DeleteOrderCommand{
			Actor:   Actor{UserID: "admin-1", Role: domain.RoleAdmin},
			OrderID: "order-1",
		})
		if !errors.Is(err, ErrOrderInvalidState) {
			t.Fatalf("expected ErrOrderInvalidState, got %v", err)
		}
	})

	t.Run("deletes and restores", func(t *testing.T) {
		repo := newRepo(domain.OrderStatusWaitingConfirm)
		stockPub := &capturingStockPublisher{}
		svc := newTestOrderService(t, repo, seededStocks(), &fakeCounterRepo{}, &capturingOrderPublisher{}, stockPub)
		err := svc.DeleteOrder(context.Background(), DeleteOrderCommand{
			Actor:   Actor{UserID: "admin-1", Role: domain.RoleAdmin},
			OrderID: "order-1",
		})
		if err != nil {
			t.Fatalf("DeleteOrder: %v", err)
		}
		if len(repo.deletes) != 1 || !repo.deletes[0].RestoreStock {
			t.Fatalf("expected restoring delete, got %+v", repo.deletes)
		}
		if len(stockPub.events) != 1 || stockPub.events[0].Delta != 1 {
			t.Fatalf("expected restore event, got %+v", stockPub.events)
		}
	})
}

func TestOrderServiceListOrders(t *testing.T) {
	orders := &fakeOrderRepo{
		customerPage: domain.CursorPage[domain.Order]{Items: []domain.Order{{ID: "c"}}},
		sellerPage:   domain.CursorPage[domain.Order]{Items: []domain.Order{{ID: "s"}}},
	}
	svc := newTestOrderService(t, orders, seededStocks(), &fakeCounterRepo{}, nil, nil)

	page, err := svc.ListOrders(context.Background(), OrderListFilter{
		Actor:      Actor{UserID: "cust-1", Role: domain.RoleCustomer},
		Pagination: Pagination{PageSize: 500},
	})
	if err != nil {
		t.Fatalf("ListOrders customer: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "c" {
		t.Fatalf("unexpected customer page %+v", page)
	}
	if orders.listFilters[0].PageSize != 100 {
		t.Fatalf("page size not clamped: %d", orders.listFilters[0].PageSize)
	}

	page, err = svc.ListOrders(context.Background(), OrderListFilter{
		Actor: Actor{UserID: "seller-1", Role: domain.RoleSeller},
	})
	if err != nil {
		t.Fatalf("ListOrders seller: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "s" {
		t.Fatalf("unexpected seller page %+v", page)
	}
	if orders.listFilters[1].PageSize != 20 {
		t.Fatalf("default page size not applied: %d", orders.listFilters[1].PageSize)
	}

	if _, err := svc.ListOrders(context.Background(), OrderListFilter{
		Actor: Actor{UserID: "sys", Role: domain.RoleSystem},
	}); !errors.Is(err, ErrOrderForbidden) {
		t.Fatalf("expected ErrOrderForbidden for system listing, got %v", err)
	}
}

func TestOrderServiceGetOrderStatus(t *testing.T) {
	orders := &fakeOrderRepo{orders: map[string]domain.Order{
		"order-1": {
			ID:            "order-1",
			OrderNumber:   "VN-2026-000042",
			CustomerID:    "cust-1",
			Status:        domain.OrderStatusShipping,
			PaymentStatus: domain.PaymentStatusPaid,
			PaymentMethod: domain.PaymentMethodGateway,
			UpdatedAt:     testNow,
		},
	}}
	svc := newTestOrderService(t, orders, seededStocks(), &fakeCounterRepo{}, nil, nil)

	view, err := svc.GetOrderStatus(context.Background(), "order-1", OrderReadOptions{
		Actor: Actor{UserID: "cust-1", Role: domain.RoleCustomer},
	})
	if err != nil {
		t.Fatalf("GetOrderStatus: %v", err)
	}
	want := OrderStatusView{
		OrderID:       "order-1",
		OrderNumber:   "VN-2026-000042",
		Status:        domain.OrderStatusShipping,
		PaymentStatus: domain.PaymentStatusPaid,
		PaymentMethod: domain.PaymentMethodGateway,
		UpdatedAt:     testNow,
	}
	if view != want {
		t.Fatalf("unexpected view %+v", view)
	}

	if _, err := svc.GetOrderStatus(context.Background(), "missing", OrderReadOptions{
		Actor: Actor{UserID: "cust-1", Role: domain.RoleCustomer},
	}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderServiceCheckoutCounterFailure(t *testing.T) {
	svc := newTestOrderService(t, &fakeOrderRepo{}, seededStocks(), &fakeCounterRepo{err: fmt.Errorf("unavailable")}, nil, nil)

	_, err := svc.Checkout(context.Background(), CheckoutCommand{
		Actor:         Actor{UserID: "cust-1", Role: domain.RoleCustomer},
		PaymentMethod: domain.PaymentMethodCash,
		Items:         []CheckoutItem{{ProductID: "prod-a", Quantity: 1}},
	})
	if err == nil {
		t.Fatal("expected counter failure to abort checkout")
	}
}
