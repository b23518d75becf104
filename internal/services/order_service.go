package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/vendora/api/internal/domain"
	"github.com/vendora/api/internal/platform/textutil"
	"github.com/vendora/api/internal/repositories"
)

const (
	eventOrderCreated       = "order.created"
	eventOrderStatusChanged = "order.status.changed"
	eventOrderDeleted       = "order.deleted"
	eventStockAdjusted      = "stock.adjusted"

	maxNoteLength         = 500
	maxCancelReasonLength = 300
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid arguments.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderForbidden indicates the actor may not touch the order.
	ErrOrderForbidden = errors.New("order: forbidden")
	// ErrOrderInvalidState indicates the order's current status forbids the operation.
	ErrOrderInvalidState = errors.New("order: invalid state")
	// ErrOrderConflict indicates a concurrent modification was detected.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrProductNotFound indicates a checkout line references an unknown product.
	ErrProductNotFound = errors.New("order: product not found")
	// ErrStockInsufficient indicates the requested quantity exceeds remaining stock.
	ErrStockInsufficient = errors.New("order: insufficient stock")
)

// OrderServiceDeps bundles the collaborators required to construct an order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Stocks      repositories.StockRepository
	Counters    repositories.CounterRepository
	OrderEvents OrderEventPublisher
	StockEvents StockEventPublisher
	ShippingFee float64
	PageSize    int
	MaxPageSize int
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders      repositories.OrderRepository
	stocks      repositories.StockRepository
	counters    repositories.CounterRepository
	orderEvents OrderEventPublisher
	stockEvents StockEventPublisher
	shippingFee float64
	pageSize    int
	maxPageSize int
	clock       func() time.Time
	newID       func() string
	logger      func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Stocks == nil {
		return nil, errors.New("order service: stock repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter repository is required")
	}
	if deps.ShippingFee < 0 {
		return nil, errors.New("order service: shipping fee must be >= 0")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	pageSize := deps.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	maxPageSize := deps.MaxPageSize
	if maxPageSize < pageSize {
		maxPageSize = 100
	}

	return &orderService{
		orders:      deps.Orders,
		stocks:      deps.Stocks,
		counters:    deps.Counters,
		orderEvents: deps.OrderEvents,
		stockEvents: deps.StockEvents,
		shippingFee: deps.ShippingFee,
		pageSize:    pageSize,
		maxPageSize: maxPageSize,
		clock:       func() time.Time { return clock().UTC() },
		newID:       idGen,
		logger:      logger,
	}, nil
}

func (s *orderService) Checkout(ctx context.Context, cmd CheckoutCommand) (Order, error) {
	if err := validateCheckout(cmd); err != nil {
		return Order{}, err
	}

	now := s.clock()

	items, err := s.snapshotLines(ctx, cmd.Items)
	if err != nil {
		return Order{}, err
	}

	pricingItems := make([]domain.PricingItem, len(items))
	for i, item := range items {
		pricingItems[i] = domain.PricingItem{
			UnitPrice:       item.UnitPrice,
			Quantity:        item.Quantity,
			DiscountPercent: item.DiscountPercent,
		}
	}
	shippingFee := s.shippingFee
	if cmd.ShippingFee != nil {
		shippingFee = *cmd.ShippingFee
	}
	pricing, err := domain.PriceOrder(pricingItems, cmd.DiscountAmount, shippingFee)
	if err != nil {
		return Order{}, fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
	}

	orderNumber, err := s.nextOrderNumber(ctx, now)
	if err != nil {
		return Order{}, err
	}

	order := Order{
		ID:              s.newID(),
		OrderNumber:     orderNumber,
		CustomerID:      cmd.Actor.UserID,
		Status:          domain.InitialOrderStatus(cmd.PaymentMethod),
		Items:           items,
		Subtotal:        pricing.Subtotal,
		DiscountAmount:  pricing.DiscountAmount,
		ShippingFee:     pricing.ShippingFee,
		Total:           pricing.Total,
		PaymentMethod:   cmd.PaymentMethod,
		PaymentStatus:   domain.PaymentStatusUnpaid,
		ShippingAddress: cmd.ShippingAddress,
		Note:            textutil.SanitizePlainMax(cmd.Note, maxNoteLength),
	}

	result, err := s.orders.Create(ctx, repositories.OrderCreateRequest{Order: order, Now: now})
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	created := result.Order

	s.logger(ctx, eventOrderCreated, map[string]any{
		"orderId":     created.ID,
		"orderNumber": created.OrderNumber,
		"customerId":  created.CustomerID,
		"total":       created.Total,
		"status":      string(created.Status),
	})

	s.publishOrderEvent(ctx, OrderEvent{
		Type:          eventOrderCreated,
		OrderID:       created.ID,
		OrderNumber:   created.OrderNumber,
		CustomerID:    created.CustomerID,
		Status:        created.Status,
		PaymentStatus: created.PaymentStatus,
		Total:         created.Total,
		OccurredAt:    now,
	})
	for _, item := range created.Items {
		stock, ok := result.Stocks[item.ProductID]
		if !ok {
			continue
		}
		s.publishStockEvent(ctx, StockEvent{
			Type:       eventStockAdjusted,
			ProductID:  item.ProductID,
			SellerID:   item.SellerID,
			Delta:      -item.Quantity,
			Remaining:  stock.Remaining,
			Sold:       stock.Sold,
			InStock:    stock.InStock,
			OccurredAt: now,
		})
	}

	return created, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string, opts OrderReadOptions) (Order, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if err := authoriseOrderAccess(opts.Actor, order); err != nil {
		return Order{}, err
	}
	return order, nil
}

func (s *orderService) GetOrderByNumber(ctx context.Context, orderNumber string, opts OrderReadOptions) (Order, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return Order{}, fmt.Errorf("%w: order number is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByNumber(ctx, orderNumber)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if err := authoriseOrderAccess(opts.Actor, order); err != nil {
		return Order{}, err
	}
	return order, nil
}

func (s *orderService) GetOrderStatus(ctx context.Context, orderID string, opts OrderReadOptions) (OrderStatusView, error) {
	order, err := s.GetOrder(ctx, orderID, opts)
	if err != nil {
		return OrderStatusView{}, err
	}
	return OrderStatusView{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		PaymentMethod: order.PaymentMethod,
		UpdatedAt:     order.UpdatedAt,
	}, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	if strings.TrimSpace(filter.Actor.UserID) == "" {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: actor is required", ErrOrderInvalidInput)
	}

	repoFilter := repositories.OrderListFilter{
		Status:    filter.Status,
		PageSize:  s.clampPageSize(filter.Pagination.PageSize),
		PageToken: filter.Pagination.PageToken,
	}

	var (
		page domain.CursorPage[Order]
		err  error
	)
	switch filter.Actor.Role {
	case domain.RoleCustomer:
		page, err = s.orders.ListByCustomer(ctx, filter.Actor.UserID, repoFilter)
	case domain.RoleSeller:
		page, err = s.orders.ListBySeller(ctx, filter.Actor.UserID, repoFilter)
	default:
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: role %s cannot list orders", ErrOrderForbidden, filter.Actor.Role)
	}
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error) {
	target, err := domain.ParseOrderStatus(cmd.RawStatus)
	if err != nil {
		return Order{}, fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
	}

	order, err := s.loadOrder(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}
	if err := authoriseOrderAccess(cmd.Actor, order); err != nil {
		return Order{}, err
	}
	if err := CheckTransition(cmd.Actor.Role, order.Status, target); err != nil {
		return Order{}, err
	}

	now := s.clock()
	update := repositories.OrderStatusUpdate{
		OrderID:      order.ID,
		ExpectedFrom: []domain.OrderStatus{order.Status},
		To:           target,
		Now:          now,
	}
	if target == domain.OrderStatusCancelled {
		reason := textutil.SanitizePlainMax(cmd.CancelReason, maxCancelReasonLength)
		update.CancelReason = &reason
		update.RestoreStock = true
	}

	updated, err := s.orders.UpdateStatus(ctx, update)
	if err != nil {
		return Order{}, s.mapTransitionError(err)
	}

	s.logger(ctx, eventOrderStatusChanged, map[string]any{
		"orderId": updated.ID,
		"from":    string(order.Status),
		"to":      string(updated.Status),
		"role":    string(cmd.Actor.Role),
	})

	s.publishOrderEvent(ctx, OrderEvent{
		Type:          eventOrderStatusChanged,
		OrderID:       updated.ID,
		OrderNumber:   updated.OrderNumber,
		CustomerID:    updated.CustomerID,
		Status:        updated.Status,
		PaymentStatus: updated.PaymentStatus,
		Total:         updated.Total,
		OccurredAt:    now,
		Metadata:      map[string]string{"from": string(order.Status)},
	})
	if update.RestoreStock {
		s.publishRestoreEvents(ctx, updated, now)
	}

	return updated, nil
}

func (s *orderService) MarkPaid(ctx context.Context, cmd MarkOrderPaidCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	now := s.clock()
	paid := domain.PaymentStatusPaid
	update := repositories.OrderStatusUpdate{
		OrderID:       orderID,
		ExpectedFrom:  []domain.OrderStatus{domain.OrderStatusWaitingPayment},
		To:            domain.OrderStatusProcessing,
		PaymentStatus: &paid,
		Now:           now,
	}
	if txn := strings.TrimSpace(cmd.GatewayTxnID); txn != "" {
		update.GatewayTxnID = &txn
	}

	updated, err := s.orders.UpdateStatus(ctx, update)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, eventOrderStatusChanged, map[string]any{
		"orderId": updated.ID,
		"from":    string(domain.OrderStatusWaitingPayment),
		"to":      string(updated.Status),
		"role":    string(domain.RoleSystem),
	})

	s.publishOrderEvent(ctx, OrderEvent{
		Type:          eventOrderStatusChanged,
		OrderID:       updated.ID,
		OrderNumber:   updated.OrderNumber,
		CustomerID:    updated.CustomerID,
		Status:        updated.Status,
		PaymentStatus: updated.PaymentStatus,
		Total:         updated.Total,
		OccurredAt:    now,
		Metadata:      map[string]string{"from": string(domain.OrderStatusWaitingPayment)},
	})

	return updated, nil
}

func (s *orderService) DeleteOrder(ctx context.Context, cmd DeleteOrderCommand) error {
	if cmd.Actor.Role != domain.RoleAdmin {
		return fmt.Errorf("%w: only admins may delete orders", ErrOrderForbidden)
	}

	order, err := s.loadOrder(ctx, cmd.OrderID)
	if err != nil {
		return err
	}
	if !Deletable(order.Status) {
		return fmt.Errorf("%w: order in status %s cannot be deleted", ErrOrderInvalidState, order.Status)
	}

	now := s.clock()
	err = s.orders.Delete(ctx, repositories.OrderDeleteRequest{
		OrderID:         order.ID,
		AllowedStatuses: deletableStatuses,
		RestoreStock:    true,
		Now:             now,
	})
	if err != nil {
		return s.mapRepositoryError(err)
	}

	s.logger(ctx, eventOrderDeleted, map[string]any{
		"orderId": order.ID,
		"status":  string(order.Status),
		"adminId": cmd.Actor.UserID,
	})

	s.publishOrderEvent(ctx, OrderEvent{
		Type:        eventOrderDeleted,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		CustomerID:  order.CustomerID,
		Status:      order.Status,
		Total:       order.Total,
		OccurredAt:  now,
	})
	s.publishRestoreEvents(ctx, order, now)

	return nil
}

func (s *orderService) loadOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

// snapshotLines resolves every checkout line against the current catalog and
// freezes name and price onto the order. Lines for the same product are merged.
func (s *orderService) snapshotLines(ctx context.Context, items []CheckoutItem) ([]OrderLineItem, error) {
	quantities := make(map[string]int, len(items))
	var productIDs []string
	for _, item := range items {
		productID := strings.TrimSpace(item.ProductID)
		if productID == "" {
			return nil, fmt.Errorf("%w: line product id is required", ErrOrderInvalidInput)
		}
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity for %s must be positive", ErrOrderInvalidInput, productID)
		}
		if _, seen := quantities[productID]; !seen {
			productIDs = append(productIDs, productID)
		}
		quantities[productID] += item.Quantity
	}

	lines := make([]OrderLineItem, 0, len(productIDs))
	for _, productID := range productIDs {
		stock, err := s.stocks.Get(ctx, productID)
		if err != nil {
			return nil, s.mapRepositoryError(err)
		}
		qty := quantities[productID]
		if !stock.InStock || stock.Remaining < qty {
			return nil, fmt.Errorf("%w: product %s has %d remaining, requested %d", ErrStockInsufficient, productID, stock.Remaining, qty)
		}

		pricing, err := domain.PriceLine(domain.PricingItem{
			UnitPrice:       stock.ListedPrice,
			Quantity:        qty,
			DiscountPercent: stock.DiscountPercent,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
		}

		lines = append(lines, OrderLineItem{
			ProductID:       productID,
			SellerID:        stock.SellerID,
			Name:            stock.Name,
			Quantity:        qty,
			UnitPrice:       stock.ListedPrice,
			DiscountPercent: stock.DiscountPercent,
			Discount:        pricing.Discount,
			Subtotal:        pricing.Subtotal,
		})
	}
	return lines, nil
}

func (s *orderService) nextOrderNumber(ctx context.Context, now time.Time) (string, error) {
	counterID := fmt.Sprintf("orders-%d", now.Year())
	seq, err := s.counters.Next(ctx, counterID, 1)
	if err != nil {
		return "", fmt.Errorf("order number allocation: %w", err)
	}
	return fmt.Sprintf("VN-%d-%06d", now.Year(), seq), nil
}

func (s *orderService) clampPageSize(requested int) int {
	if requested <= 0 {
		return s.pageSize
	}
	if requested > s.maxPageSize {
		return s.maxPageSize
	}
	return requested
}

func (s *orderService) publishOrderEvent(ctx context.Context, event OrderEvent) {
	if s.orderEvents == nil {
		return
	}
	if err := s.orderEvents.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order_event_publish_failed", map[string]any{
			"orderId": event.OrderID,
			"type":    event.Type,
			"error":   err.Error(),
		})
	}
}

func (s *orderService) publishStockEvent(ctx context.Context, event StockEvent) {
	if s.stockEvents == nil {
		return
	}
	if err := s.stockEvents.PublishStockEvent(ctx, event); err != nil {
		s.logger(ctx, "stock_event_publish_failed", map[string]any{
			"productId": event.ProductID,
			"type":      event.Type,
			"error":     err.Error(),
		})
	}
}

// publishRestoreEvents emits one positive-delta stock event per order line
// after a cancellation or deletion returned the stock.
func (s *orderService) publishRestoreEvents(ctx context.Context, order Order, now time.Time) {
	for _, item := range order.Items {
		s.publishStockEvent(ctx, StockEvent{
			Type:       eventStockAdjusted,
			ProductID:  item.ProductID,
			SellerID:   item.SellerID,
			Delta:      item.Quantity,
			OccurredAt: now,
		})
	}
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var orderErr *repositories.OrderError
	if errors.As(err, &orderErr) {
		switch orderErr.Code {
		case repositories.OrderErrorNotFound:
			return fmt.Errorf("%w: %s", ErrOrderNotFound, orderErr.Message)
		case repositories.OrderErrorInvalidState:
			return fmt.Errorf("%w: %s", ErrOrderInvalidState, orderErr.Message)
		case repositories.OrderErrorConflict:
			return fmt.Errorf("%w: %s", ErrOrderConflict, orderErr.Message)
		}
	}

	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		switch stockErr.Code {
		case repositories.StockErrorNotFound:
			return fmt.Errorf("%w: %s", ErrProductNotFound, stockErr.Message)
		case repositories.StockErrorInsufficient:
			return fmt.Errorf("%w: %s", ErrStockInsufficient, stockErr.Message)
		case repositories.StockErrorInvalidInput:
			return fmt.Errorf("%w: %s", ErrOrderInvalidInput, stockErr.Message)
		}
	}

	return err
}

// mapTransitionError treats a write-time state guard failure as a concurrent
// modification: the transition was already validated against the loaded order.
func (s *orderService) mapTransitionError(err error) error {
	var orderErr *repositories.OrderError
	if errors.As(err, &orderErr) && orderErr.Code == repositories.OrderErrorInvalidState {
		return fmt.Errorf("%w: %s", ErrOrderConflict, orderErr.Message)
	}
	return s.mapRepositoryError(err)
}

func validateCheckout(cmd CheckoutCommand) error {
	if strings.TrimSpace(cmd.Actor.UserID) == "" {
		return fmt.Errorf("%w: customer id is required", ErrOrderInvalidInput)
	}
	if cmd.Actor.Role != domain.RoleCustomer && cmd.Actor.Role != domain.RoleAdmin {
		return fmt.Errorf("%w: role %s cannot place orders", ErrOrderForbidden, cmd.Actor.Role)
	}
	if len(cmd.Items) == 0 {
		return fmt.Errorf("%w: at least one item is required", ErrOrderInvalidInput)
	}
	switch cmd.PaymentMethod {
	case domain.PaymentMethodCash, domain.PaymentMethodGateway, domain.PaymentMethodCard:
	default:
		return fmt.Errorf("%w: unsupported payment method %q", ErrOrderInvalidInput, cmd.PaymentMethod)
	}
	return nil
}

/// authoriseOrderAccess enforces ownership: customers see their own orders,
// sellers only orders made up entirely of their products.
func authoriseOrderAccess(actor Actor, order Order) error {
	switch actor.Role {
	case domain.RoleAdmin, domain.RoleSystem:
		return nil
	case domain.RoleCustomer:
		if order.CustomerID != actor.UserID {
			return fmt.Errorf("%w: order belongs to another customer", ErrOrderForbidden)
		}
		return nil
	case domain.RoleSeller:
		for _, item := range order.Items {
			if item.SellerID != actor.UserID {
				return fmt.Errorf("%w: order contains products of another seller", ErrOrderForbidden)
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown role %q", ErrOrderForbidden, actor.Role)
	}
}
