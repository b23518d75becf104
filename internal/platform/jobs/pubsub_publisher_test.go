package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	domain "github.com/vendora/api/internal/domain"
	"github.com/vendora/api/internal/services"
)

func newTestTopics(t *testing.T) (*pubsub.Topic, *pubsub.Topic, *pstest.Server) {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	orders, err := client.CreateTopic(ctx, "order-events")
	if err != nil {
		t.Fatalf("CreateTopic orders: %v", err)
	}
	stocks, err := client.CreateTopic(ctx, "stock-events")
	if err != nil {
		t.Fatalf("CreateTopic stocks: %v", err)
	}
	return orders, stocks, srv
}

func TestPubSubEventPublisherPublishesOrderEvent(t *testing.T) {
	ctx := context.Background()
	orders, stocks, srv := newTestTopics(t)

	publisher, err := NewPubSubEventPublisher(orders, stocks)
	if err != nil {
		t.Fatalf("NewPubSubEventPublisher: %v", err)
	}

	event := services.OrderEvent{
		Type:        "order.created",
		OrderID:     "order-1",
		OrderNumber: "VN-2026-000001",
		CustomerID:  "cust-1",
		Status:      domain.OrderStatusWaitingPayment,
		Total:       235,
		OccurredAt:  time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
	}
	if err := publisher.PublishOrderEvent(ctx, event); err != nil {
		t.Fatalf("PublishOrderEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload services.OrderEvent
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.OrderID != event.OrderID || payload.Type != event.Type {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if attr := messages[0].Attributes["orderNumber"]; attr != "VN-2026-000001" {
		t.Fatalf("expected orderNumber attribute, got %q", attr)
	}
	if attr := messages[0].Attributes["eventType"]; attr != "order.created" {
		t.Fatalf("expected eventType attribute, got %q", attr)
	}
}

func TestPubSubEventPublisherPublishesStockEvent(t *testing.T) {
	ctx := context.Background()
	orders, stocks, srv := newTestTopics(t)

	publisher, err := NewPubSubEventPublisher(orders, stocks)
	if err != nil {
		t.Fatalf("NewPubSubEventPublisher: %v", err)
	}

	event := services.StockEvent{
		Type:       "stock.adjusted",
		ProductID:  "prod-a",
		SellerID:   "seller-1",
		Delta:      -2,
		Remaining:  8,
		Sold:       2,
		InStock:    true,
		OccurredAt: time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
	}
	if err := publisher.PublishStockEvent(ctx, event); err != nil {
		t.Fatalf("PublishStockEvent: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var payload services.StockEvent
	if err := json.Unmarshal(messages[0].Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.ProductID != event.ProductID || payload.Delta != -2 {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if attr := messages[0].Attributes["productId"]; attr != "prod-a" {
		t.Fatalf("expected productId attribute, got %q", attr)
	}
}

func TestPubSubEventPublisherDropsWithoutTopic(t *testing.T) {
	orders, _, srv := newTestTopics(t)

	publisher, err := NewPubSubEventPublisher(orders, nil)
	if err != nil {
		t.Fatalf("NewPubSubEventPublisher: %v", err)
	}

	if err := publisher.PublishStockEvent(context.Background(), services.StockEvent{Type: "stock.adjusted"}); err != nil {
		t.Fatalf("PublishStockEvent: %v", err)
	}
	if got := len(srv.Messages()); got != 0 {
		t.Fatalf("expected no messages, got %d", got)
	}
}

func TestNewPubSubEventPublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubEventPublisher(nil, nil); err == nil {
		t.Fatal("expected constructor error without topics")
	}
}
