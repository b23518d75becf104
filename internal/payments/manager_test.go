package payments

import (
	"context"
	"errors"
	"testing"
)

type stubProvider struct {
	session Session
	err     error
	calls   int
}

func (s *stubProvider) CreateSession(context.Context, SessionRequest) (Session, error) {
	s.calls++
	if s.err != nil {
		return Session{}, s.err
	}
	return s.session, nil
}

func TestManagerRoutesByMethod(t *testing.T) {
	gateway := &stubProvider{session: Session{ID: "gw"}}
	stripe := &stubProvider{session: Session{ID: "cs"}}

	m, err := NewManager(map[string]Provider{
		"gateway": gateway,
		"stripe":  stripe,
	}, WithMethodRoutes(map[string]string{"card": "stripe"}))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	session, err := m.CreateSession(context.Background(), "gateway", SessionRequest{})
	if err != nil {
		t.Fatalf("CreateSession gateway: %v", err)
	}
	if session.ID != "gw" || session.Provider != "gateway" {
		t.Fatalf("unexpected session %+v", session)
	}

	session, err = m.CreateSession(context.Background(), "card", SessionRequest{})
	if err != nil {
		t.Fatalf("CreateSession card: %v", err)
	}
	if session.ID != "cs" || session.Provider != "stripe" {
		t.Fatalf("card should route to stripe, got %+v", session)
	}

	if _, err := m.CreateSession(context.Background(), "cash", SessionRequest{}); !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
}

func TestManagerSingleProviderFallback(t *testing.T) {
	only := &stubProvider{session: Session{ID: "only"}}
	m, err := NewManager(map[string]Provider{"gateway": only})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	session, err := m.CreateSession(context.Background(), "anything", SessionRequest{})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if session.ID != "only" {
		t.Fatalf("unexpected session %+v", session)
	}
}

func TestManagerDefaultProvider(t *testing.T) {
	gateway := &stubProvider{session: Session{ID: "gw"}}
	stripe := &stubProvider{session: Session{ID: "cs"}}
	m, err := NewManager(map[string]Provider{
		"gateway": gateway,
		"stripe":  stripe,
	}, WithDefaultProvider("gateway"))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	session, err := m.CreateSession(context.Background(), "unknown", SessionRequest{})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if session.Provider != "gateway" {
		t.Fatalf("expected default provider, got %+v", session)
	}
}

func TestNewManagerValidation(t *testing.T) {
	if _, err := NewManager(nil); err == nil {
		t.Fatal("expected error for empty provider map")
	}
	if _, err := NewManager(map[string]Provider{"": &stubProvider{}}); err == nil {
		t.Fatal("expected error for blank provider key")
	}
	if _, err := NewManager(map[string]Provider{"gateway": nil}); err == nil {
		t.Fatal("expected error for nil provider")
	}
}
