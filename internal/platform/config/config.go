package config

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile              = ".env"
	defaultPort                 = "8080"
	defaultReadTimeout          = 15 * time.Second
	defaultWriteTimeout         = 30 * time.Second
	defaultIdleTimeout          = 120 * time.Second
	defaultShutdownGrace        = 20 * time.Second
	defaultGatewayVersion       = "2.1.0"
	defaultGatewayCommand       = "pay"
	defaultGatewayCurrency      = "VND"
	defaultGatewayLocale        = "vn"
	defaultGatewayTolerance     = 0.01
	defaultJWTIssuer            = "vendora"
	defaultJWTTTL               = 24 * time.Hour
	defaultCallbackTTL          = 48 * time.Hour
	defaultCallbackSweep        = time.Hour
	defaultShippingFee          = 5.0
	defaultOrderTopic           = "order-events"
	defaultStockTopic           = "stock-events"
	defaultListPageSize         = 20
	defaultListPageSizeMax      = 100
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig
	Firestore   FirestoreConfig
	PubSub      PubSubConfig
	Gateway     GatewayConfig
	Stripe      StripeConfig
	JWT         JWTConfig
	Checkout    CheckoutConfig
	Callbacks   CallbackConfig
	Listing     ListingConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port          string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	IdleTimeout   time.Duration
	ShutdownGrace time.Duration
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// PubSubConfig names the topics order and stock events are published to.
type PubSubConfig struct {
	ProjectID  string
	OrderTopic string
	StockTopic string
	Disabled   bool
}

// GatewayConfig collects the redirect payment gateway integration settings.
type GatewayConfig struct {
	MerchantCode    string
	HashSecret      string
	PaymentURL      string
	ReturnURL       string
	Version         string
	Command         string
	Currency        string
	Locale          string
	AmountTolerance float64
	SuccessURL      string
	FailureURL      string
}

// StripeConfig holds credentials for card payments.
type StripeConfig struct {
	APIKey string
}

// JWTConfig controls bearer token verification for the API surface.
type JWTConfig struct {
	SigningSecret string
	Issuer        string
	TTL           time.Duration
}

// CheckoutConfig carries order pricing defaults.
type CheckoutConfig struct {
	FlatShippingFee float64
}

// CallbackConfig controls gateway callback deduplication.
type CallbackConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

// ListingConfig bounds paginated list endpoints.
type ListingConfig struct {
	DefaultPageSize int
	MaxPageSize     int
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets failed to resolve.
type MissingSecretsError struct {
	secrets []missingSecret
}

type missingSecret struct {
	name     string
	redacted string
}

// Error implements the error interface.
func (e *MissingSecretsError) Error() string {
	if e == nil || len(e.secrets) == 0 {
		return "missing required secrets"
	}
	names := make([]string, 0, len(e.secrets))
	for _, secret := range e.secrets {
		names = append(names, secret.redacted)
	}
	sort.Strings(names)
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(names, ", "))
}

// Names returns the underlying secret identifiers.
func (e *MissingSecretsError) Names() []string {
	if e == nil || len(e.secrets) == 0 {
		return nil
	}
	out := make([]string, 0, len(e.secrets))
	for _, secret := range e.secrets {
		out = append(out, secret.name)
	}
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets a custom secret resolver used for secret:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks the provided secret identifiers as mandatory.
// Identifiers match the config field names recorded by the loader
// (e.g. "Gateway.HashSecret" or "JWT.SigningSecret").
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(ctx context.Context, ref string) (string, error) {
			return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
		}),
	}

	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:          stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:   durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:  durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:   durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownGrace: durationWithDefault(lookup, "API_SERVER_SHUTDOWN_GRACE", defaultShutdownGrace),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "API_FIRESTORE_EMULATOR_HOST", ""),
		},
		PubSub: PubSubConfig{
			ProjectID:  stringWithDefault(lookup, "API_PUBSUB_PROJECT_ID", ""),
			OrderTopic: stringWithDefault(lookup, "API_PUBSUB_ORDER_TOPIC", defaultOrderTopic),
			StockTopic: stringWithDefault(lookup, "API_PUBSUB_STOCK_TOPIC", defaultStockTopic),
			Disabled:   boolWithDefault(lookup, "API_PUBSUB_DISABLED", false),
		},
		Gateway: GatewayConfig{
			MerchantCode:    stringWithDefault(lookup, "API_GATEWAY_MERCHANT_CODE", ""),
			HashSecret:      stringWithDefault(lookup, "API_GATEWAY_HASH_SECRET", ""),
			PaymentURL:      stringWithDefault(lookup, "API_GATEWAY_PAYMENT_URL", ""),
			ReturnURL:       stringWithDefault(lookup, "API_GATEWAY_RETURN_URL", ""),
			Version:         stringWithDefault(lookup, "API_GATEWAY_VERSION", defaultGatewayVersion),
			Command:         stringWithDefault(lookup, "API_GATEWAY_COMMAND", defaultGatewayCommand),
			Currency:        stringWithDefault(lookup, "API_GATEWAY_CURRENCY", defaultGatewayCurrency),
			Locale:          stringWithDefault(lookup, "API_GATEWAY_LOCALE", defaultGatewayLocale),
			AmountTolerance: floatWithDefault(lookup, "API_GATEWAY_AMOUNT_TOLERANCE", defaultGatewayTolerance),
			SuccessURL:      stringWithDefault(lookup, "API_GATEWAY_SUCCESS_URL", ""),
			FailureURL:      stringWithDefault(lookup, "API_GATEWAY_FAILURE_URL", ""),
		},
		Stripe: StripeConfig{
			APIKey: stringWithDefault(lookup, "API_STRIPE_API_KEY", ""),
		},
		JWT: JWTConfig{
			SigningSecret: stringWithDefault(lookup, "API_JWT_SIGNING_SECRET", ""),
			Issuer:        stringWithDefault(lookup, "API_JWT_ISSUER", defaultJWTIssuer),
			TTL:           durationWithDefault(lookup, "API_JWT_TTL", defaultJWTTTL),
		},
		Checkout: CheckoutConfig{
			FlatShippingFee: floatWithDefault(lookup, "API_CHECKOUT_SHIPPING_FEE", defaultShippingFee),
		},
		Callbacks: CallbackConfig{
			TTL:           durationWithDefault(lookup, "API_CALLBACK_TTL", defaultCallbackTTL),
			SweepInterval: durationWithDefault(lookup, "API_CALLBACK_SWEEP_INTERVAL", defaultCallbackSweep),
		},
		Listing: ListingConfig{
			DefaultPageSize: intWithDefault(lookup, "API_LIST_PAGE_SIZE", defaultListPageSize),
			MaxPageSize:     intWithDefault(lookup, "API_LIST_PAGE_SIZE_MAX", defaultListPageSizeMax),
		},
	}

	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}

	resolvedSecrets := make(map[string]string)
	resolveField := func(name string, field *string) error {
		resolved, err := resolveSecret(ctx, *field, options.secret)
		if err != nil {
			return err
		}
		*field = resolved
		resolvedSecrets[name] = strings.TrimSpace(resolved)
		return nil
	}

	secretFields := []struct {
		name  string
		field *string
	}{
		{"Gateway.HashSecret", &cfg.Gateway.HashSecret},
		{"Stripe.APIKey", &cfg.Stripe.APIKey},
		{"JWT.SigningSecret", &cfg.JWT.SigningSecret},
	}
	for _, target := range secretFields {
		if err := resolveField(target.name, target.field); err != nil {
			return Config{}, err
		}
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	if missing := findMissingSecrets(options.requiredSecrets, resolvedSecrets); missing != nil {
		return Config{}, missing
	}

	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" {
		return value, nil
	}
	if !isSecretReference(value) {
		return value, nil
	}
	if resolver == nil {
		normalized := normalizeSecretReference(value)
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	normalized := normalizeSecretReference(value)
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Firestore.ProjectID == "" {
		missing = append(missing, "Firestore.ProjectID")
	}
	if cfg.Gateway.AmountTolerance < 0 {
		missing = append(missing, "Gateway.AmountTolerance")
	}
	if cfg.Checkout.FlatShippingFee < 0 {
		missing = append(missing, "Checkout.FlatShippingFee")
	}
	if cfg.Callbacks.TTL <= 0 {
		missing = append(missing, "Callbacks.TTL")
	}
	if cfg.Callbacks.SweepInterval <= 0 {
		missing = append(missing, "Callbacks.SweepInterval")
	}
	if cfg.Listing.DefaultPageSize <= 0 || cfg.Listing.DefaultPageSize > cfg.Listing.MaxPageSize {
		missing = append(missing, "Listing.DefaultPageSize")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func findMissingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	if len(required) == 0 {
		return nil
	}
	missing := make([]missingSecret, 0, len(required))
	seen := make(map[string]struct{})
	for _, name := range required {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		if value := strings.TrimSpace(resolved[trimmed]); value != "" {
			continue
		}
		missing = append(missing, missingSecret{
			name:     trimmed,
			redacted: redactSecretName(trimmed),
		})
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingSecretsError{secrets: missing}
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		value = strings.Trim(value, "\"'")
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func floatWithDefault(lookup func(string) (string, bool), key string, fallback float64) float64 {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}
