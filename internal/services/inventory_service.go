package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/vendora/api/internal/domain"
	"github.com/vendora/api/internal/repositories"
)

const (
	eventStockRestocked = "stock.restocked"

	defaultLowStockThreshold = 5
)

var (
	// ErrStockInvalidInput signals the caller provided invalid arguments.
	ErrStockInvalidInput = errors.New("stock: invalid input")
	// ErrStockNotFound indicates the product has no stock record.
	ErrStockNotFound = errors.New("stock: not found")
	// ErrStockForbidden indicates the actor may not manage the product's stock.
	ErrStockForbidden = errors.New("stock: forbidden")
)

// InventoryServiceDeps bundles the collaborators required to construct an inventory service.
type InventoryServiceDeps struct {
	Stocks      repositories.StockRepository
	StockEvents StockEventPublisher
	PageSize    int
	MaxPageSize int
	Clock       func() time.Time
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type inventoryService struct {
	stocks      repositories.StockRepository
	events      StockEventPublisher
	pageSize    int
	maxPageSize int
	clock       func() time.Time
	logger      func(context.Context, string, map[string]any)
}

// NewInventoryService wires dependencies into a concrete InventoryService implementation.
func NewInventoryService(deps InventoryServiceDeps) (InventoryService, error) {
	if deps.Stocks == nil {
		return nil, errors.New("inventory service: stock repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
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

	return &inventoryService{
		stocks:      deps.Stocks,
		events:      deps.StockEvents,
		pageSize:    pageSize,
		maxPageSize: maxPageSize,
		clock:       func() time.Time { return clock().UTC() },
		logger:      logger,
	}, nil
}

func (s *inventoryService) GetStock(ctx context.Context, productID string) (ProductStock, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return ProductStock{}, fmt.Errorf("%w: product id is required", ErrStockInvalidInput)
	}
	stock, err := s.stocks.Get(ctx, productID)
	if err != nil {
		return ProductStock{}, s.mapRepositoryError(err)
	}
	return stock, nil
}

func (s *inventoryService) Restock(ctx context.Context, cmd RestockCommand) (ProductStock, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return ProductStock{}, fmt.Errorf("%w: product id is required", ErrStockInvalidInput)
	}
	if cmd.Quantity <= 0 {
		return ProductStock{}, fmt.Errorf("%w: restock quantity must be positive, got %d", ErrStockInvalidInput, cmd.Quantity)
	}
	if cmd.Actor.Role != domain.RoleAdmin && cmd.Actor.Role != domain.RoleSeller {
		return ProductStock{}, fmt.Errorf("%w: role %s cannot restock", ErrStockForbidden, cmd.Actor.Role)
	}

	// Sellers only manage their own catalog.
	if cmd.Actor.Role == domain.RoleSeller {
		current, err := s.stocks.Get(ctx, productID)
		if err != nil {
			return ProductStock{}, s.mapRepositoryError(err)
		}
		if current.SellerID != cmd.Actor.UserID {
			return ProductStock{}, fmt.Errorf("%w: product %s belongs to another seller", ErrStockForbidden, productID)
		}
	}

	now := s.clock()
	stock, err := s.stocks.Restock(ctx, repositories.StockRestockRequest{
		ProductID: productID,
		Quantity:  cmd.Quantity,
		Now:       now,
	})
	if err != nil {
		return ProductStock{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, eventStockRestocked, map[string]any{
		"productId": productID,
		"quantity":  cmd.Quantity,
		"remaining": stock.Remaining,
		"actorId":   cmd.Actor.UserID,
	})

	if s.events != nil {
		err := s.events.PublishStockEvent(ctx, StockEvent{
			Type:       eventStockRestocked,
			ProductID:  stock.ProductID,
			SellerID:   stock.SellerID,
			Delta:      cmd.Quantity,
			Remaining:  stock.Remaining,
			Sold:       stock.Sold,
			InStock:    stock.InStock,
			OccurredAt: now,
		})
		if err != nil {
			s.logger(ctx, "stock_event_publish_failed", map[string]any{
				"productId": productID,
				"error":     err.Error(),
			})
		}
	}

	return stock, nil
}

func (s *inventoryService) ListLowStock(ctx context.Context, filter LowStockFilter) (domain.CursorPage[ProductStock], error) {
	threshold := filter.Threshold
	if threshold <= 0 {
		threshold = defaultLowStockThreshold
	}

	sellerID := strings.TrimSpace(filter.SellerID)
	switch filter.Actor.Role {
	case domain.RoleAdmin:
		// admins may scope to any seller or none
	case domain.RoleSeller:
		sellerID = filter.Actor.UserID
	default:
		return domain.CursorPage[ProductStock]{}, fmt.Errorf("%w: role %s cannot list stock", ErrStockForbidden, filter.Actor.Role)
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = s.pageSize
	}
	if pageSize > s.maxPageSize {
		pageSize = s.maxPageSize
	}

	page, err := s.stocks.ListLowStock(ctx, repositories.StockLowStockQuery{
		SellerID:  sellerID,
		Threshold: threshold,
		PageSize:  pageSize,
		PageToken: filter.Pagination.PageToken,
	})
	if err != nil {
		return domain.CursorPage[ProductStock]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *inventoryService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		switch stockErr.Code {
		case repositories.StockErrorNotFound:
			return fmt.Errorf("%w: %s", ErrStockNotFound, stockErr.Message)
		case repositories.StockErrorInvalidInput:
			return fmt.Errorf("%w: %s", ErrStockInvalidInput, stockErr.Message)
		}
	}
	return err
}
