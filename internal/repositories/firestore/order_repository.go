package firestore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/vendora/api/internal/domain"
	pfirestore "github.com/vendora/api/internal/platform/firestore"
	"github.com/vendora/api/internal/platform/requestctx"
	"github.com/vendora/api/internal/repositories"
)

const ordersCollection = "orders"

// OrderRepository implements repositories.OrderRepository backed by Firestore
// transactions. Order mutations that affect inventory touch the product
// documents in the same transaction so counters never drift from the order
// ledger.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
	products *pfirestore.BaseRepository[productStockDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	orders := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil)
	products := pfirestore.NewBaseRepository[productStockDocument](provider, productsCollection, nil, nil)
	return &OrderRepository{provider: provider, orders: orders, products: products}, nil
}

// Create persists the order and decrements the remaining stock of every line
// item in one transaction. Insufficient or missing stock aborts the whole
// order.
func (r *OrderRepository) Create(ctx context.Context, req repositories.OrderCreateRequest) (repositories.OrderCreateResult, error) {
	if r == nil || r.provider == nil {
		return repositories.OrderCreateResult{}, errors.New("order repository not initialised")
	}
	order := req.Order
	if strings.TrimSpace(order.ID) == "" {
		return repositories.OrderCreateResult{}, errors.New("order create: order id is required")
	}
	if len(order.Items) == 0 {
		return repositories.OrderCreateResult{}, errors.New("order create: at least one line item is required")
	}

	now := req.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}
	order.CreatedAt = now
	order.UpdatedAt = now

	quantities, revenues, productIDs, err := aggregateLines(order.Items)
	if err != nil {
		return repositories.OrderCreateResult{}, err
	}

	var result repositories.OrderCreateResult
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, order.ID)
		if err != nil {
			return err
		}

		// All reads happen before any write in the transaction.
		if _, err := tx.Get(orderRef); err == nil {
			return repositories.NewOrderError(repositories.OrderErrorConflict, fmt.Sprintf("order %s already exists", order.ID), nil)
		} else if status.Code(err) != codes.NotFound {
			return err
		}

		stockRefs := make(map[string]*firestore.DocumentRef, len(productIDs))
		stockDocs := make(map[string]productStockDocument, len(productIDs))
		for _, productID := range productIDs {
			ref, err := r.products.DocumentRef(ctx, productID)
			if err != nil {
				return err
			}
			snap, err := tx.Get(ref)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return repositories.NewStockError(repositories.StockErrorNotFound, fmt.Sprintf("stock %s not found", productID), err)
				}
				return err
			}
			var doc productStockDocument
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode stock %s: %w", productID, err)
			}
			stockRefs[productID] = ref
			stockDocs[productID] = doc
		}

		stocks := make(map[string]domain.ProductStock, len(productIDs))
		for _, productID := range productIDs {
			doc := stockDocs[productID]
			qty := quantities[productID]
			if !doc.InStock || doc.Remaining < qty {
				return repositories.NewStockError(repositories.StockErrorInsufficient, fmt.Sprintf("insufficient stock for %s", productID), nil)
			}
			doc.Remaining -= qty
			doc.Sold += qty
			doc.Revenue += revenues[productID]
			doc.UpdatedAt = now
			doc.recalculate()
			if err := tx.Set(stockRefs[productID], doc); err != nil {
				return err
			}
			stocks[productID] = doc.toDomain(productID)
		}

		if err := tx.Create(orderRef, newOrderDocument(order)); err != nil {
			if status.Code(err) == codes.AlreadyExists {
				return repositories.NewOrderError(repositories.OrderErrorConflict, fmt.Sprintf("order %s already exists", order.ID), err)
			}
			return err
		}

		result = repositories.OrderCreateResult{Order: order, Stocks: stocks}
		return nil
	})
	if err != nil {
		return repositories.OrderCreateResult{}, wrapOrderError("orders.create", err)
	}
	return result, nil
}

// FindByID fetches one order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorNotFound, "order id is required", nil)
	}

	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		var repoErr *pfirestore.Error
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorNotFound, fmt.Sprintf("order %s not found", orderID), err)
		}
		return domain.Order{}, wrapOrderError("orders.get", err)
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByNumber resolves an order by its human readable order number. Payment
// callbacks reference orders this way.
func (r *OrderRepository) FindByNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorNotFound, "order number is required", nil)
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, wrapOrderError("orders.findByNumber", err)
	}

	iter := client.Collection(ordersCollection).
		Where("orderNumber", "==", orderNumber).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorNotFound, fmt.Sprintf("order number %s not found", orderNumber), nil)
	}
	if err != nil {
		return domain.Order{}, wrapOrderError("orders.findByNumber", err)
	}
	var doc orderDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Order{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

// ListByCustomer pages orders owned by the customer, newest first.
func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.CursorPage[domain.Order]{}, errors.New("order list: customer id is required")
	}
	return r.list(ctx, filter, func(q firestore.Query) firestore.Query {
		return q.Where("customerId", "==", customerID)
	})
}

// ListBySeller pages orders containing at least one of the seller's products, newest first.
func (r *OrderRepository) ListBySeller(ctx context.Context, sellerID string, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	sellerID = strings.TrimSpace(sellerID)
	if sellerID == "" {
		return domain.CursorPage[domain.Order]{}, errors.New("order list: seller id is required")
	}
	return r.list(ctx, filter, func(q firestore.Query) firestore.Query {
		return q.Where("sellerIds", "array-contains", sellerID)
	})
}

func (r *OrderRepository) list(ctx context.Context, filter repositories.OrderListFilter, scope func(firestore.Query) firestore.Query) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, wrapOrderError("orders.list", err)
	}

	query := scope(client.Collection(ordersCollection).Query)
	if filter.Status != nil {
		query = query.Where("status", "==", string(*filter.Status))
	}
	query = query.
		OrderBy("createdAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Desc).
		Limit(pageSize + 1)

	if token := strings.TrimSpace(filter.PageToken); token != "" {
		decoded, err := decodeOrderPageToken(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, wrapOrderError("orders.list", err)
		}
		query = query.StartAfter(decoded.CreatedAt, decoded.OrderID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var orders []domain.Order
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Order]{}, wrapOrderError("orders.list", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
		}
		orders = append(orders, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(orders) > pageSize
	if hasMore {
		orders = orders[:pageSize]
	}
	var nextToken string
	if hasMore && len(orders) > 0 {
		last := orders[len(orders)-1]
		encoded, err := encodeOrderPageToken(orderPageToken{OrderID: last.ID, CreatedAt: last.CreatedAt})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, wrapOrderError("orders.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.Order]{Items: orders, NextPageToken: nextToken}, nil
}

// UpdateStatus applies a guarded status transition and, when requested,
// restores the stock consumed at creation in the same transaction.
func (r *OrderRepository) UpdateStatus(ctx context.Context, req repositories.OrderStatusUpdate) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorNotFound, "order id is required", nil)
	}

	now := req.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var updated domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(orderRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewOrderError(repositories.OrderErrorNotFound, fmt.Sprintf("order %s not found", orderID), err)
			}
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}

		current := domain.OrderStatus(doc.Status)
		if !statusAllowed(current, req.ExpectedFrom) {
			return repositories.NewOrderError(repositories.OrderErrorInvalidState, fmt.Sprintf("order %s is %s, transition to %s rejected", orderID, current, req.To), nil)
		}

		var stockWrites []stockWrite
		if req.RestoreStock {
			stockWrites, err = r.readStockForRestore(ctx, tx, doc.Items, now)
			if err != nil {
				return err
			}
		}

		doc.Status = string(req.To)
		doc.UpdatedAt = now
		if req.CancelReason != nil {
			doc.CancelReason = strings.TrimSpace(*req.CancelReason)
		}
		if req.GatewayTxnID != nil {
			doc.GatewayTxnID = strings.TrimSpace(*req.GatewayTxnID)
		}
		if req.PaymentStatus != nil {
			doc.PaymentStatus = string(*req.PaymentStatus)
			if *req.PaymentStatus == domain.PaymentStatusPaid && doc.PaidAt == nil {
				doc.PaidAt = &now
			}
		}
		switch req.To {
		case domain.OrderStatusCompleted:
			doc.CompletedAt = &now
		case domain.OrderStatusCancelled:
			doc.CancelledAt = &now
		}

		if err := tx.Set(orderRef, doc); err != nil {
			return err
		}
		for _, write := range stockWrites {
			if err := tx.Set(write.ref, write.doc); err != nil {
				return err
			}
		}

		updated = doc.toDomain(orderID)
		return nil
	})
	if err != nil {
		return domain.Order{}, wrapOrderError("orders.updateStatus", err)
	}
	return updated, nil
}

// Delete removes the order permanently. Only orders in one of the allowed
// statuses may be deleted; consumed stock is restored when requested.
func (r *OrderRepository) Delete(ctx context.Context, req repositories.OrderDeleteRequest) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return repositories.NewOrderError(repositories.OrderErrorNotFound, "order id is required", nil)
	}

	now := req.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(orderRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewOrderError(repositories.OrderErrorNotFound, fmt.Sprintf("order %s not found", orderID), err)
			}
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}

		if !statusAllowed(domain.OrderStatus(doc.Status), req.AllowedStatuses) {
			return repositories.NewOrderError(repositories.OrderErrorInvalidState, fmt.Sprintf("order %s in status %s cannot be deleted", orderID, doc.Status), nil)
		}

		var stockWrites []stockWrite
		if req.RestoreStock {
			stockWrites, err = r.readStockForRestore(ctx, tx, doc.Items, now)
			if err != nil {
				return err
			}
		}

		if err := tx.Delete(orderRef); err != nil {
			return err
		}
		for _, write := range stockWrites {
			if err := tx.Set(write.ref, write.doc); err != nil {
				return err
			}
		}
		return nil
	})
	return wrapOrderError("orders.delete", err)
}

type stockWrite struct {
	ref *firestore.DocumentRef
	doc productStockDocument
}

// readStockForRestore reads the product documents for the order's items and
// returns the restored versions. Reads stay ahead of the caller's writes.
func (r *OrderRepository) readStockForRestore(ctx context.Context, tx *firestore.Transaction, items []orderItemDocument, now time.Time) ([]stockWrite, error) {
	quantities := make(map[string]int, len(items))
	revenues := make(map[string]float64, len(items))
	var productIDs []string
	for _, item := range items {
		productID := strings.TrimSpace(item.ProductID)
		if productID == "" {
			continue
		}
		if _, seen := quantities[productID]; !seen {
			productIDs = append(productIDs, productID)
		}
		quantities[productID] += item.Quantity
		revenues[productID] += item.Subtotal
	}

	writes := make([]stockWrite, 0, len(productIDs))
	for _, productID := range productIDs {
		ref, err := r.products.DocumentRef(ctx, productID)
		if err != nil {
			return nil, err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				// Product was removed from the catalog; nothing to restore.
				continue
			}
			return nil, err
		}
		var doc productStockDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode stock %s: %w", productID, err)
		}

		qty := quantities[productID]
		doc.Remaining += qty
		doc.Sold -= qty
		if doc.Sold < 0 {
			// The sold counter was adjusted out of band since this order was
			// placed; clamp rather than write a negative count.
			requestctx.Logger(ctx).Warn("stock restore clamped sold counter",
				zap.String("product_id", productID),
				zap.Int("restored_qty", qty),
				zap.Int("sold_after_restore", doc.Sold))
			doc.Sold = 0
		}
		doc.Revenue -= revenues[productID]
		if doc.Revenue < 0 {
			requestctx.Logger(ctx).Warn("stock restore clamped revenue counter",
				zap.String("product_id", productID),
				zap.Float64("restored_revenue", revenues[productID]),
				zap.Float64("revenue_after_restore", doc.Revenue))
			doc.Revenue = 0
		}
		doc.UpdatedAt = now
		doc.recalculate()
		writes = append(writes, stockWrite{ref: ref, doc: doc})
	}
	return writes, nil
}

func aggregateLines(items []domain.OrderLineItem) (map[string]int, map[string]float64, []string, error) {
	quantities := make(map[string]int, len(items))
	revenues := make(map[string]float64, len(items))
	var productIDs []string
	for _, item := range items {
		productID := strings.TrimSpace(item.ProductID)
		if productID == "" {
			return nil, nil, nil, errors.New("order create: line item product id is required")
		}
		if item.Quantity <= 0 {
			return nil, nil, nil, fmt.Errorf("order create: quantity for %s must be > 0", productID)
		}
		if _, seen := quantities[productID]; !seen {
			productIDs = append(productIDs, productID)
		}
		quantities[productID] += item.Quantity
		revenues[productID] += item.Subtotal
	}
	sort.Strings(productIDs)
	return quantities, revenues, productIDs, nil
}

func statusAllowed(current domain.OrderStatus, allowed []domain.OrderStatus) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, candidate := range allowed {
		if current == candidate {
			return true
		}
	}
	return false
}

// Document types ------------------------------------------------------------

type orderDocument struct {
	OrderNumber     string              `firestore:"orderNumber"`
	CustomerID      string              `firestore:"customerId"`
	Status          string              `firestore:"status"`
	Items           []orderItemDocument `firestore:"items"`
	SellerIDs       []string            `firestore:"sellerIds"`
	Subtotal        float64             `firestore:"subtotal"`
	DiscountAmount  float64             `firestore:"discountAmount"`
	ShippingFee     float64             `firestore:"shippingFee"`
	Total           float64             `firestore:"total"`
	PaymentMethod   string              `firestore:"paymentMethod"`
	PaymentStatus   string              `firestore:"paymentStatus"`
	ShippingAddress *addressDocument    `firestore:"shippingAddress,omitempty"`
	Note            string              `firestore:"note,omitempty"`
	CancelReason    string              `firestore:"cancelReason,omitempty"`
	GatewayTxnID    string              `firestore:"gatewayTxnId,omitempty"`
	CreatedAt       time.Time           `firestore:"createdAt"`
	UpdatedAt       time.Time           `firestore:"updatedAt"`
	PaidAt          *time.Time          `firestore:"paidAt,omitempty"`
	CompletedAt     *time.Time          `firestore:"completedAt,omitempty"`
	CancelledAt     *time.Time          `firestore:"cancelledAt,omitempty"`
}

type orderItemDocument struct {
	ProductID       string  `firestore:"productId"`
	SellerID        string  `firestore:"sellerId"`
	Name            string  `firestore:"name"`
	Quantity        int     `firestore:"qty"`
	UnitPrice       float64 `firestore:"unitPrice"`
	DiscountPercent float64 `firestore:"discountPercent"`
	Discount        float64 `firestore:"discount"`
	Subtotal        float64 `firestore:"subtotal"`
}

type addressDocument struct {
	Recipient  string `firestore:"recipient"`
	Line1      string `firestore:"line1"`
	Line2      string `firestore:"line2,omitempty"`
	City       string `firestore:"city"`
	PostalCode string `firestore:"postalCode"`
	Country    string `firestore:"country"`
	Phone      string `firestore:"phone,omitempty"`
}

func newOrderDocument(order domain.Order) orderDocument {
	items := make([]orderItemDocument, len(order.Items))
	sellerSet := make(map[string]struct{}, len(order.Items))
	var sellerIDs []string
	for i, item := range order.Items {
		items[i] = orderItemDocument{
			ProductID:       strings.TrimSpace(item.ProductID),
			SellerID:        strings.TrimSpace(item.SellerID),
			Name:            strings.TrimSpace(item.Name),
			Quantity:        item.Quantity,
			UnitPrice:       item.UnitPrice,
			DiscountPercent: item.DiscountPercent,
			Discount:        item.Discount,
			Subtotal:        item.Subtotal,
		}
		sellerID := items[i].SellerID
		if sellerID == "" {
			continue
		}
		if _, seen := sellerSet[sellerID]; !seen {
			sellerSet[sellerID] = struct{}{}
			sellerIDs = append(sellerIDs, sellerID)
		}
	}
	sort.Strings(sellerIDs)

	doc := orderDocument{
		OrderNumber:    strings.TrimSpace(order.OrderNumber),
		CustomerID:     strings.TrimSpace(order.CustomerID),
		Status:         string(order.Status),
		Items:          items,
		SellerIDs:      sellerIDs,
		Subtotal:       order.Subtotal,
		DiscountAmount: order.DiscountAmount,
		ShippingFee:    order.ShippingFee,
		Total:          order.Total,
		PaymentMethod:  string(order.PaymentMethod),
		PaymentStatus:  string(order.PaymentStatus),
		Note:           strings.TrimSpace(order.Note),
		CreatedAt:      order.CreatedAt.UTC(),
		UpdatedAt:      order.UpdatedAt.UTC(),
		PaidAt:         order.PaidAt,
		CompletedAt:    order.CompletedAt,
		CancelledAt:    order.CancelledAt,
	}
	if order.CancelReason != nil {
		doc.CancelReason = strings.TrimSpace(*order.CancelReason)
	}
	if order.GatewayTxnID != nil {
		doc.GatewayTxnID = strings.TrimSpace(*order.GatewayTxnID)
	}
	if order.ShippingAddress != nil {
		addr := addressDocument{
			Recipient:  strings.TrimSpace(order.ShippingAddress.Recipient),
			Line1:      strings.TrimSpace(order.ShippingAddress.Line1),
			City:       strings.TrimSpace(order.ShippingAddress.City),
			PostalCode: strings.TrimSpace(order.ShippingAddress.PostalCode),
			Country:    strings.TrimSpace(order.ShippingAddress.Country),
		}
		if order.ShippingAddress.Line2 != nil {
			addr.Line2 = strings.TrimSpace(*order.ShippingAddress.Line2)
		}
		if order.ShippingAddress.Phone != nil {
			addr.Phone = strings.TrimSpace(*order.ShippingAddress.Phone)
		}
		doc.ShippingAddress = &addr
	}
	return doc
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.OrderLineItem, len(d.Items))
	for i, item := range d.Items {
		items[i] = domain.OrderLineItem{
			ProductID:       item.ProductID,
			SellerID:        item.SellerID,
			Name:            item.Name,
			Quantity:        item.Quantity,
			UnitPrice:       item.UnitPrice,
			DiscountPercent: item.DiscountPercent,
			Discount:        item.Discount,
			Subtotal:        item.Subtotal,
		}
	}

	order := domain.Order{
		ID:             id,
		OrderNumber:    d.OrderNumber,
		CustomerID:     d.CustomerID,
		Status:         domain.OrderStatus(d.Status),
		Items:          items,
		Subtotal:       d.Subtotal,
		DiscountAmount: d.DiscountAmount,
		ShippingFee:    d.ShippingFee,
		Total:          d.Total,
		PaymentMethod:  domain.PaymentMethod(d.PaymentMethod),
		PaymentStatus:  domain.PaymentStatus(d.PaymentStatus),
		Note:           d.Note,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
		PaidAt:         d.PaidAt,
		CompletedAt:    d.CompletedAt,
		CancelledAt:    d.CancelledAt,
	}
	if d.CancelReason != "" {
		reason := d.CancelReason
		order.CancelReason = &reason
	}
	if d.GatewayTxnID != "" {
		txn := d.GatewayTxnID
		order.GatewayTxnID = &txn
	}
	if d.ShippingAddress != nil {
		addr := domain.Address{
			Recipient:  d.ShippingAddress.Recipient,
			Line1:      d.ShippingAddress.Line1,
			City:       d.ShippingAddress.City,
			PostalCode: d.ShippingAddress.PostalCode,
			Country:    d.ShippingAddress.Country,
		}
		if d.ShippingAddress.Line2 != "" {
			line2 := d.ShippingAddress.Line2
			addr.Line2 = &line2
		}
		if d.ShippingAddress.Phone != "" {
			phone := d.ShippingAddress.Phone
			addr.Phone = &phone
		}
		order.ShippingAddress = &addr
	}
	return order
}

type orderPageToken struct {
	OrderID   string
	CreatedAt time.Time
}

func encodeOrderPageToken(token orderPageToken) (string, error) {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(token); err != nil {
		return "", fmt.Errorf("encode order page token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes.TrimSpace(buf.Bytes())), nil
}

func decodeOrderPageToken(encoded string) (*orderPageToken, error) {
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode order page token: %w", err)
	}
	var token orderPageToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("decode order page token json: %w", err)
	}
	return &token, nil
}

func wrapOrderError(op string, err error) error {
	if err == nil {
		return nil
	}
	var orderErr *repositories.OrderError
	if errors.As(err, &orderErr) {
		if orderErr.Op == "" {
			orderErr.Op = op
		}
		return orderErr
	}
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		if stockErr.Op == "" {
			stockErr.Op = op
		}
		return stockErr
	}
	return pfirestore.WrapError(op, err)
}
