package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
var ErrUnsupportedProvider = errors.New("payments: unsupported provider")

// SessionRequest captures the payload required to create a payment session
// for one order. Amount is in minor currency units.
type SessionRequest struct {
	OrderID        string
	OrderNumber    string
	Amount         int64
	Currency       string
	CustomerID     string
	ClientIP       string
	Locale         string
	Description    string
	SuccessURL     string
	CancelURL      string
	Metadata       map[string]string
	IdempotencyKey string
}

// Session is the redirect target handed back to the client.
type Session struct {
	ID          string
	Provider    string
	RedirectURL string
	IntentID    string
	ExpiresAt   time.Time
	Raw         map[string]any
}

// Provider defines the contract payment adapters implement.
type Provider interface {
	CreateSession(ctx context.Context, req SessionRequest) (Session, error)
}

// Manager selects a provider by payment method and delegates session creation.
type Manager struct {
	providers    map[string]Provider
	methodRoutes map[string]string
	defaultKey   string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider overrides the provider used for unrouted methods.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultKey = strings.ToLower(strings.TrimSpace(provider))
	}
}

// WithMethodRoutes configures static payment-method to provider mappings,
// e.g. "gateway" -> "gateway", "card" -> "stripe".
func WithMethodRoutes(routes map[string]string) ManagerOption {
	return func(m *Manager) {
		if len(routes) == 0 {
			return
		}
		if m.methodRoutes == nil {
			m.methodRoutes = make(map[string]string, len(routes))
		}
		for k, v := range routes {
			m.methodRoutes[strings.ToLower(strings.TrimSpace(k))] = strings.ToLower(strings.TrimSpace(v))
		}
	}
}

// NewManager constructs a Manager over the supplied providers.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	registered := make(map[string]Provider, len(providers))
	for k, v := range providers {
		key := strings.ToLower(strings.TrimSpace(k))
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", k)
		}
		registered[key] = v
	}
	m := &Manager{providers: registered}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Manager) resolve(method string) (string, Provider, error) {
	if m == nil || len(m.providers) == 0 {
		return "", nil, errors.New("payments: no providers registered")
	}
	key := strings.ToLower(strings.TrimSpace(method))
	if routed, ok := m.methodRoutes[key]; ok {
		key = routed
	}
	if p, ok := m.providers[key]; ok {
		return key, p, nil
	}
	if m.defaultKey != "" {
		if p, ok := m.providers[m.defaultKey]; ok {
			return m.defaultKey, p, nil
		}
	}
	if len(m.providers) == 1 {
		for k, p := range m.providers {
			return k, p, nil
		}
	}
	return "", nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, method)
}

// CreateSession delegates to the provider routed for the payment method.
func (m *Manager) CreateSession(ctx context.Context, method string, req SessionRequest) (Session, error) {
	key, provider, err := m.resolve(method)
	if err != nil {
		return Session{}, err
	}
	session, err := provider.CreateSession(ctx, req)
	if err != nil {
		return Session{}, err
	}
	session.Provider = key
	return session, nil
}
