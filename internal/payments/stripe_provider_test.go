package payments

import (
	"context"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v78"
)

type fakeStripeSessions struct {
	params  *stripe.CheckoutSessionParams
	session *stripe.CheckoutSession
	err     error
}

func (f *fakeStripeSessions) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

func TestStripeProviderCreateSession(t *testing.T) {
	sessions := &fakeStripeSessions{session: &stripe.CheckoutSession{
		ID:        "cs_test_1",
		URL:       "https://checkout.stripe.com/c/pay/cs_test_1",
		ExpiresAt: time.Date(2026, 9, 1, 11, 0, 0, 0, time.UTC).Unix(),
		PaymentIntent: &stripe.PaymentIntent{
			ID: "pi_test_1",
		},
	}}
	provider, err := NewStripeProvider(StripeProviderConfig{Sessions: sessions})
	if err != nil {
		t.Fatalf("NewStripeProvider: %v", err)
	}

	session, err := provider.CreateSession(context.Background(), SessionRequest{
		OrderID:     "order-1",
		OrderNumber: "VN-2026-000042",
		Amount:      23500,
		Currency:    "VND",
		SuccessURL:  "https://shop.example.com/payments/success",
		CancelURL:   "https://shop.example.com/payments/cancel",
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if session.ID != "cs_test_1" || session.IntentID != "pi_test_1" {
		t.Fatalf("unexpected session %+v", session)
	}
	if session.RedirectURL != "https://checkout.stripe.com/c/pay/cs_test_1" {
		t.Fatalf("unexpected redirect %q", session.RedirectURL)
	}
	if session.ExpiresAt.Hour() != 11 {
		t.Fatalf("expiry not taken from stripe response: %v", session.ExpiresAt)
	}

	params := sessions.params
	if params == nil || len(params.LineItems) != 1 {
		t.Fatalf("expected one line item, got %+v", params)
	}
	line := params.LineItems[0]
	if *line.PriceData.UnitAmount != 23500 || *line.PriceData.Currency != "vnd" {
		t.Fatalf("unexpected price data %+v", line.PriceData)
	}
	if *line.PriceData.ProductData.Name != "Order VN-2026-000042" {
		t.Fatalf("unexpected product name %q", *line.PriceData.ProductData.Name)
	}
	if params.Metadata["orderId"] != "order-1" {
		t.Fatalf("order id missing from metadata: %v", params.Metadata)
	}
}

func TestStripeProviderRejectsNonPositiveAmount(t *testing.T) {
	provider, err := NewStripeProvider(StripeProviderConfig{Sessions: &fakeStripeSessions{}})
	if err != nil {
		t.Fatalf("NewStripeProvider: %v", err)
	}
	if _, err := provider.CreateSession(context.Background(), SessionRequest{Amount: 0}); err == nil {
		t.Fatal("expected error for zero amount")
	}
}

func TestNewStripeProviderRequiresKeyOrClient(t *testing.T) {
	if _, err := NewStripeProvider(StripeProviderConfig{}); err == nil {
		t.Fatal("expected error without api key or injected client")
	}
}
