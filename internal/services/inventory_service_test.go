package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/vendora/api/internal/domain"
)

func newTestInventoryService(t *testing.T, stocks *fakeStockRepo, pub *capturingStockPublisher) InventoryService {
	t.Helper()
	deps := InventoryServiceDeps{
		Stocks:      stocks,
		PageSize:    20,
		MaxPageSize: 100,
		Clock:       func() time.Time { return testNow },
	}
	// A nil *capturingStockPublisher stored in the interface field would be a
	// non-nil interface; leave the field unset so the service sees no publisher.
	if pub != nil {
		deps.StockEvents = pub
	}
	svc, err := NewInventoryService(deps)
	if err != nil {
		t.Fatalf("NewInventoryService: %v", err)
	}
	return svc
}

func TestInventoryServiceRestock(t *testing.T) {
	stocks := seededStocks()
	pub := &capturingStockPublisher{}
	svc := newTestInventoryService(t, stocks, pub)

	stock, err := svc.Restock(context.Background(), RestockCommand{
		Actor:     Actor{UserID: "admin-1", Role: domain.RoleAdmin},
		ProductID: "prod-a",
		Quantity:  15,
	})
	if err != nil {
		t.Fatalf("Restock: %v", err)
	}
	if stock.Initial != 25 || stock.Remaining != 25 {
		t.Fatalf("restock not applied: initial=%d remaining=%d", stock.Initial, stock.Remaining)
	}
	if len(stocks.restocks) != 1 || stocks.restocks[0].Quantity != 15 {
		t.Fatalf("unexpected repository call %+v", stocks.restocks)
	}
	if len(pub.events) != 1 || pub.events[0].Type != "stock.restocked" || pub.events[0].Delta != 15 {
		t.Fatalf("unexpected event %+v", pub.events)
	}
}

func TestInventoryServiceRestockSellerOwnership(t *testing.T) {
	svc := newTestInventoryService(t, seededStocks(), nil)

	// prod-b belongs to seller-2.
	_, err := svc.Restock(context.Background(), RestockCommand{
		Actor:     Actor{UserID: "seller-1", Role: domain.RoleSeller},
		ProductID: "prod-b",
		Quantity:  5,
	})
	if !errors.Is(err, ErrStockForbidden) {
		t.Fatalf("expected ErrStockForbidden, got %v", err)
	}

	stock, err := svc.Restock(context.Background(), RestockCommand{
		Actor:     Actor{UserID: "seller-2", Role: domain.RoleSeller},
		ProductID: "prod-b",
		Quantity:  5,
	})
	if err != nil {
		t.Fatalf("owner restock: %v", err)
	}
	if stock.Remaining != 10 {
		t.Fatalf("unexpected remaining %d", stock.Remaining)
	}
}

func TestInventoryServiceRestockValidation(t *testing.T) {
	svc := newTestInventoryService(t, seededStocks(), nil)

	if _, err := svc.Restock(context.Background(), RestockCommand{
		Actor:     Actor{UserID: "admin-1", Role: domain.RoleAdmin},
		ProductID: "prod-a",
		Quantity:  0,
	}); !errors.Is(err, ErrStockInvalidInput) {
		t.Fatalf("zero quantity: expected ErrStockInvalidInput, got %v", err)
	}

	if _, err := svc.Restock(context.Background(), RestockCommand{
		Actor:     Actor{UserID: "cust-1", Role: domain.RoleCustomer},
		ProductID: "prod-a",
		Quantity:  5,
	}); !errors.Is(err, ErrStockForbidden) {
		t.Fatalf("customer: expected ErrStockForbidden, got %v", err)
	}

	if _, err := svc.Restock(context.Background(), RestockCommand{
		Actor:     Actor{UserID: "admin-1", Role: domain.RoleAdmin},
		ProductID: "missing",
		Quantity:  5,
	}); !errors.Is(err, ErrStockNotFound) {
		t.Fatalf("missing product: expected ErrStockNotFound, got %v", err)
	}
}

func TestInventoryServiceListLowStockScoping(t *testing.T) {
	stocks := seededStocks()
	svc := newTestInventoryService(t, stocks, nil)

	_, err := svc.ListLowStock(context.Background(), LowStockFilter{
		Actor:    Actor{UserID: "seller-1", Role: domain.RoleSeller},
		SellerID: "seller-2",
	})
	if err != nil {
		t.Fatalf("ListLowStock: %v", err)
	}
	query := stocks.lowQueries[0]
	if query.SellerID != "seller-1" {
		t.Fatalf("seller scope not enforced, queried %q", query.SellerID)
	}
	if query.Threshold != defaultLowStockThreshold {
		t.Fatalf("default threshold not applied: %d", query.Threshold)
	}
	if query.PageSize != 20 {
		t.Fatalf("default page size not applied: %d", query.PageSize)
	}

	_, err = svc.ListLowStock(context.Background(), LowStockFilter{
		Actor:      Actor{UserID: "admin-1", Role: domain.RoleAdmin},
		SellerID:   "seller-2",
		Threshold:  3,
		Pagination: Pagination{PageSize: 1000},
	})
	if err != nil {
		t.Fatalf("ListLowStock admin: %v", err)
	}
	query = stocks.lowQueries[1]
	if query.SellerID != "seller-2" || query.Threshold != 3 || query.PageSize != 100 {
		t.Fatalf("unexpected admin query %+v", query)
	}

	if _, err := svc.ListLowStock(context.Background(), LowStockFilter{
		Actor: Actor{UserID: "cust-1", Role: domain.RoleCustomer},
	}); !errors.Is(err, ErrStockForbidden) {
		t.Fatalf("customer: expected ErrStockForbidden, got %v", err)
	}
}

func TestInventoryServiceGetStock(t *testing.T) {
	svc := newTestInventoryService(t, seededStocks(), nil)

	stock, err := svc.GetStock(context.Background(), "prod-a")
	if err != nil {
		t.Fatalf("GetStock: %v", err)
	}
	if stock.Name != "Ceramic mug" {
		t.Fatalf("unexpected stock %+v", stock)
	}

	if _, err := svc.GetStock(context.Background(), "missing"); !errors.Is(err, ErrStockNotFound) {
		t.Fatalf("expected ErrStockNotFound, got %v", err)
	}
	if _, err := svc.GetStock(context.Background(), "  "); !errors.Is(err, ErrStockInvalidInput) {
		t.Fatalf("expected ErrStockInvalidInput, got %v", err)
	}
}
