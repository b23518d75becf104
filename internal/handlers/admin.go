package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vendora/api/internal/platform/auth"
	"github.com/vendora/api/internal/platform/httpx"
	"github.com/vendora/api/internal/services"
)

const (
	defaultStockPageSize = 20
	maxStockPageSize     = 100
)

type restockRequest struct {
	Quantity int `json:"quantity"`
}

// AdminHandlers exposes back-office endpoints for admins and sellers.
type AdminHandlers struct {
	authn     *auth.Authenticator
	orders    services.OrderService
	inventory services.InventoryService
}

// NewAdminHandlers constructs a new AdminHandlers instance.
func NewAdminHandlers(authn *auth.Authenticator, orders services.OrderService, inventory services.InventoryService) *AdminHandlers {
	return &AdminHandlers{
		authn:     authn,
		orders:    orders,
		inventory: inventory,
	}
}

// Routes registers the /admin endpoints. Deletion stays admin only while the
// inventory endpoints admit sellers operating on their own products.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}

	adminOnly := r
	sellerOrAdmin := r
	if h.authn != nil {
		adminOnly = r.With(h.authn.RequireAuth(auth.RoleAdmin))
		sellerOrAdmin = r.With(h.authn.RequireAuth(auth.RoleAdmin, auth.RoleSeller))
	}

	adminOnly.Delete("/orders/{orderID}", h.deleteOrder)
	sellerOrAdmin.Post("/products/{productID}/restock", h.restock)
	sellerOrAdmin.Get("/products/low-stock", h.listLowStock)
}

func (h *AdminHandlers) deleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
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

	if err := h.orders.DeleteOrder(ctx, services.DeleteOrderCommand{Actor: actor, OrderID: orderID}); err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandlers) restock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		httpx.WriteError(ctx, w, httpx.NewError("inventory_service_unavailable", "inventory service unavailable", http.StatusServiceUnavailable))
		return
	}

	actor, ok := actorFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	var req restockRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}

	stock, err := h.inventory.Restock(ctx, services.RestockCommand{
		Actor:     actor,
		ProductID: productID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		writeStockError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, stockResponse{Stock: buildStockPayload(stock)})
}

func (h *AdminHandlers) listLowStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		httpx.WriteError(ctx, w, httpx.NewError("inventory_service_unavailable", "inventory service unavailable", http.StatusServiceUnavailable))
		return
	}

	actor, ok := actorFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	query := r.URL.Query()

	filter := services.LowStockFilter{
		Actor:    actor,
		SellerID: strings.TrimSpace(query.Get("seller_id")),
		Pagination: services.Pagination{
			PageSize:  defaultStockPageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	}

	if raw := strings.TrimSpace(query.Get("threshold")); raw != "" {
		threshold, err := strconv.Atoi(raw)
		if err != nil || threshold < 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "threshold must be a non-negative integer", http.StatusBadRequest))
			return
		}
		filter.Threshold = threshold
	}

	if raw := strings.TrimSpace(query.Get("page_size")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page_size must be an integer", http.StatusBadRequest))
			return
		}
		switch {
		case size <= 0:
			filter.Pagination.PageSize = defaultStockPageSize
		case size > maxStockPageSize:
			filter.Pagination.PageSize = maxStockPageSize
		default:
			filter.Pagination.PageSize = size
		}
	}

	page, err := h.inventory.ListLowStock(ctx, filter)
	if err != nil {
		writeStockError(ctx, w, err)
		return
	}

	items := make([]stockPayload, 0, len(page.Items))
	for _, stock := range page.Items {
		items = append(items, buildStockPayload(stock))
	}

	writeJSONResponse(w, http.StatusOK, stockListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

// ProductHandlers exposes the read side of the stock ledger.
type ProductHandlers struct {
	authn     *auth.Authenticator
	inventory services.InventoryService
}

// NewProductHandlers constructs a new ProductHandlers instance.
func NewProductHandlers(authn *auth.Authenticator, inventory services.InventoryService) *ProductHandlers {
	return &ProductHandlers{
		authn:     authn,
		inventory: inventory,
	}
}

// Routes registers the /products endpoints.
func (h *ProductHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Get("/{productID}/stock", h.getStock)
}

func (h *ProductHandlers) getStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.inventory == nil {
		httpx.WriteError(ctx, w, httpx.NewError("inventory_service_unavailable", "inventory service unavailable", http.StatusServiceUnavailable))
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	stock, err := h.inventory.GetStock(ctx, productID)
	if err != nil {
		writeStockError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, stockResponse{Stock: buildStockPayload(stock)})
}

type stockListResponse struct {
	Items         []stockPayload `json:"items"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}

type stockResponse struct {
	Stock stockPayload `json:"stock"`
}

type stockPayload struct {
	ProductID       string  `json:"product_id"`
	SellerID        string  `json:"seller_id"`
	Name            string  `json:"name"`
	ListedPrice     float64 `json:"listed_price"`
	DiscountPercent float64 `json:"discount_percent,omitempty"`
	Initial         int     `json:"initial"`
	Remaining       int     `json:"remaining"`
	Sold            int     `json:"sold"`
	Revenue         float64 `json:"revenue"`
	InStock         bool    `json:"in_stock"`
	UpdatedAt       string  `json:"updated_at,omitempty"`
}

func buildStockPayload(stock services.ProductStock) stockPayload {
	return stockPayload{
		ProductID:       strings.TrimSpace(stock.ProductID),
		SellerID:        strings.TrimSpace(stock.SellerID),
		Name:            strings.TrimSpace(stock.Name),
		ListedPrice:     stock.ListedPrice,
		DiscountPercent: stock.DiscountPercent,
		Initial:         stock.Initial,
		Remaining:       stock.Remaining,
		Sold:            stock.Sold,
		Revenue:         stock.Revenue,
		InStock:         stock.InStock,
		UpdatedAt:       formatTime(stock.UpdatedAt),
	}
}

func writeStockError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrStockInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrStockForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("stock_forbidden", "actor may not manage this product", http.StatusForbidden))
	case errors.Is(err, services.ErrStockNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("stock_error", "failed to process stock request", http.StatusInternalServerError))
	}
}
