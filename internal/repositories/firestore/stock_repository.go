package firestore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/vendora/api/internal/domain"
	pfirestore "github.com/vendora/api/internal/platform/firestore"
	"github.com/vendora/api/internal/repositories"
)

const productsCollection = "products"

type productStockDocument struct {
	SellerID        string    `firestore:"sellerId"`
	Name            string    `firestore:"name"`
	ListedPrice     float64   `firestore:"listedPrice"`
	DiscountPercent float64   `firestore:"discountPercent"`
	Initial         int       `firestore:"initial"`
	Remaining       int       `firestore:"remaining"`
	Sold            int       `firestore:"sold"`
	Revenue         float64   `firestore:"revenue"`
	InStock         bool      `firestore:"inStock"`
	UpdatedAt       time.Time `firestore:"updatedAt"`
}

func (d *productStockDocument) recalculate() {
	d.InStock = d.Remaining > 0
}

func (d productStockDocument) toDomain(id string) domain.ProductStock {
	return domain.ProductStock{
		ProductID:       id,
		SellerID:        strings.TrimSpace(d.SellerID),
		Name:            strings.TrimSpace(d.Name),
		ListedPrice:     d.ListedPrice,
		DiscountPercent: d.DiscountPercent,
		Initial:         d.Initial,
		Remaining:       d.Remaining,
		Sold:            d.Sold,
		Revenue:         d.Revenue,
		InStock:         d.InStock,
		UpdatedAt:       d.UpdatedAt,
	}
}

func newProductStockDocument(stock domain.ProductStock) productStockDocument {
	doc := productStockDocument{
		SellerID:        strings.TrimSpace(stock.SellerID),
		Name:            strings.TrimSpace(stock.Name),
		ListedPrice:     stock.ListedPrice,
		DiscountPercent: stock.DiscountPercent,
		Initial:         stock.Initial,
		Remaining:       stock.Remaining,
		Sold:            stock.Sold,
		Revenue:         stock.Revenue,
		UpdatedAt:       stock.UpdatedAt.UTC(),
	}
	doc.recalculate()
	return doc
}

// StockRepository implements repositories.StockRepository backed by Firestore.
type StockRepository struct {
	provider *pfirestore.Provider
	products *pfirestore.BaseRepository[productStockDocument]
}

// NewStockRepository constructs a Firestore-backed stock repository.
func NewStockRepository(provider *pfirestore.Provider) (*StockRepository, error) {
	if provider == nil {
		return nil, errors.New("stock repository requires firestore provider")
	}
	products := pfirestore.NewBaseRepository[productStockDocument](provider, productsCollection, nil, nil)
	return &StockRepository{provider: provider, products: products}, nil
}

// Get fetches the stock record for a product.
func (r *StockRepository) Get(ctx context.Context, productID string) (domain.ProductStock, error) {
	if r == nil || r.products == nil {
		return domain.ProductStock{}, errors.New("stock repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.ProductStock{}, repositories.NewStockError(repositories.StockErrorInvalidInput, "stock get: product id is required", nil)
	}

	doc, err := r.products.Get(ctx, productID)
	if err != nil {
		var repoErr *pfirestore.Error
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return domain.ProductStock{}, repositories.NewStockError(repositories.StockErrorNotFound, fmt.Sprintf("stock %s not found", productID), err)
		}
		return domain.ProductStock{}, wrapStockError("stock.get", err)
	}
	return doc.Data.toDomain(doc.ID), nil
}

// Save upserts the full stock record, recomputing the in-stock flag.
func (r *StockRepository) Save(ctx context.Context, stock domain.ProductStock) (domain.ProductStock, error) {
	if r == nil || r.products == nil {
		return domain.ProductStock{}, errors.New("stock repository not initialised")
	}
	productID := strings.TrimSpace(stock.ProductID)
	if productID == "" {
		return domain.ProductStock{}, repositories.NewStockError(repositories.StockErrorInvalidInput, "stock save: product id is required", nil)
	}
	if stock.Initial < 0 || stock.Remaining < 0 || stock.Sold < 0 {
		return domain.ProductStock{}, repositories.NewStockError(repositories.StockErrorInvalidInput, "stock save: quantities must be >= 0", nil)
	}

	doc := newProductStockDocument(stock)
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = time.Now().UTC()
	}
	if _, err := r.products.Set(ctx, productID, doc); err != nil {
		return domain.ProductStock{}, wrapStockError("stock.save", err)
	}
	return doc.toDomain(productID), nil
}

// Restock atomically adds quantity back to the initial and remaining counters.
func (r *StockRepository) Restock(ctx context.Context, req repositories.StockRestockRequest) (domain.ProductStock, error) {
	if r == nil || r.provider == nil {
		return domain.ProductStock{}, errors.New("stock repository not initialised")
	}
	productID := strings.TrimSpace(req.ProductID)
	if productID == "" {
		return domain.ProductStock{}, repositories.NewStockError(repositories.StockErrorInvalidInput, "stock restock: product id is required", nil)
	}
	if req.Quantity <= 0 {
		return domain.ProductStock{}, repositories.NewStockError(repositories.StockErrorInvalidInput, "stock restock: quantity must be > 0", nil)
	}

	now := req.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var updated domain.ProductStock
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
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

		doc.Initial += req.Quantity
		doc.Remaining += req.Quantity
		doc.UpdatedAt = now
		doc.recalculate()

		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		updated = doc.toDomain(productID)
		return nil
	})
	if err != nil {
		return domain.ProductStock{}, wrapStockError("stock.restock", err)
	}
	return updated, nil
}

// ListLowStock pages through products whose remaining quantity is at or below the threshold.
func (r *StockRepository) ListLowStock(ctx context.Context, query repositories.StockLowStockQuery) (domain.CursorPage[domain.ProductStock], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.ProductStock]{}, errors.New("stock repository not initialised")
	}

	pageSize := query.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 200 {
		pageSize = 200
	}
	threshold := query.Threshold
	if threshold < 0 {
		threshold = 0
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.ProductStock]{}, wrapStockError("stock.lowStock", err)
	}

	firestoreQuery := client.Collection(productsCollection).Query.
		Where("remaining", "<=", threshold)
	if sellerID := strings.TrimSpace(query.SellerID); sellerID != "" {
		firestoreQuery = firestoreQuery.Where("sellerId", "==", sellerID)
	}
	firestoreQuery = firestoreQuery.
		OrderBy("remaining", firestore.Asc).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Limit(pageSize + 1)

	if token := strings.TrimSpace(query.PageToken); token != "" {
		decoded, err := decodeStockPageToken(token)
		if err != nil {
			return domain.CursorPage[domain.ProductStock]{}, wrapStockError("stock.lowStock", err)
		}
		firestoreQuery = firestoreQuery.StartAfter(decoded.Remaining, decoded.ProductID)
	}

	iter := firestoreQuery.Documents(ctx)
	defer iter.Stop()

	var stocks []domain.ProductStock
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.ProductStock]{}, wrapStockError("stock.lowStock", err)
		}
		var doc productStockDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.ProductStock]{}, fmt.Errorf("decode stock %s: %w", snap.Ref.ID, err)
		}
		stocks = append(stocks, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(stocks) > pageSize
	if hasMore {
		stocks = stocks[:pageSize]
	}
	var nextToken string
	if hasMore && len(stocks) > 0 {
		last := stocks[len(stocks)-1]
		encoded, err := encodeStockPageToken(stockPageToken{ProductID: last.ProductID, Remaining: last.Remaining})
		if err != nil {
			return domain.CursorPage[domain.ProductStock]{}, wrapStockError("stock.lowStock", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.ProductStock]{
		Items:         stocks,
		NextPageToken: nextToken,
	}, nil
}

type stockPageToken struct {
	ProductID string
	Remaining int
}

func encodeStockPageToken(token stockPageToken) (string, error) {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(token); err != nil {
		return "", fmt.Errorf("encode stock page token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes.TrimSpace(buf.Bytes())), nil
}

func decodeStockPageToken(encoded string) (*stockPageToken, error) {
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode stock page token: %w", err)
	}
	var token stockPageToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("decode stock page token json: %w", err)
	}
	return &token, nil
}

func wrapStockError(op string, err error) error {
	if err == nil {
		return nil
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
