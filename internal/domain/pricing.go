package domain

import (
	"errors"
	"fmt"
)

// ErrPricingInvalidInput signals a pricing input outside the valid range.
var ErrPricingInvalidInput = errors.New("pricing: invalid input")

// PricingItem carries the inputs needed to price one order line.
type PricingItem struct {
	UnitPrice       float64
	Quantity        int
	DiscountPercent float64
}

// LinePricing is the priced result for a single line item.
type LinePricing struct {
	Discount float64
	Subtotal float64
}

// OrderPricing aggregates the money fields derived for an order. These values
// are recomputed from inputs whenever item composition or discounts change;
// they are never patched in place.
type OrderPricing struct {
	Subtotal       float64
	DiscountAmount float64
	ShippingFee    float64
	Total          float64
}

// PriceLine computes the per-line discount and subtotal from the price and
// discount snapshot. The subtotal is floored at zero.
func PriceLine(item PricingItem) (LinePricing, error) {
	if item.Quantity < 1 {
		return LinePricing{}, fmt.Errorf("%w: quantity must be >= 1, got %d", ErrPricingInvalidInput, item.Quantity)
	}
	if item.UnitPrice < 0 {
		return LinePricing{}, fmt.Errorf("%w: unit price must be >= 0, got %v", ErrPricingInvalidInput, item.UnitPrice)
	}
	if item.DiscountPercent < 0 || item.DiscountPercent > 100 {
		return LinePricing{}, fmt.Errorf("%w: discount percent must be within [0,100], got %v", ErrPricingInvalidInput, item.DiscountPercent)
	}

	qty := float64(item.Quantity)
	discount := item.UnitPrice * item.DiscountPercent / 100 * qty
	subtotal := item.UnitPrice*qty - discount
	if subtotal < 0 {
		subtotal = 0
	}

	return LinePricing{Discount: discount, Subtotal: subtotal}, nil
}

// PriceOrder derives the full money breakdown for an order. The order-level
// discount is clamped to the subtotal and the grand total is floored at zero.
// This is the single source of truth for order money fields.
func PriceOrder(items []PricingItem, requestedDiscount, shippingFee float64) (OrderPricing, error) {
	if len(items) == 0 {
		return OrderPricing{}, fmt.Errorf("%w: at least one item is required", ErrPricingInvalidInput)
	}
	if requestedDiscount < 0 {
		return OrderPricing{}, fmt.Errorf("%w: discount amount must be >= 0, got %v", ErrPricingInvalidInput, requestedDiscount)
	}
	if shippingFee < 0 {
		return OrderPricing{}, fmt.Errorf("%w: shipping fee must be >= 0, got %v", ErrPricingInvalidInput, shippingFee)
	}

	var subtotal float64
	for i, item := range items {
		line, err := PriceLine(item)
		if err != nil {
			return OrderPricing{}, fmt.Errorf("item %d: %w", i, err)
		}
		subtotal += line.Subtotal
	}

	discount := requestedDiscount
	if discount > subtotal {
		discount = subtotal
	}

	total := subtotal - discount + shippingFee
	if total < 0 {
		total = 0
	}

	return OrderPricing{
		Subtotal:       subtotal,
		DiscountAmount: discount,
		ShippingFee:    shippingFee,
		Total:          total,
	}, nil
}
