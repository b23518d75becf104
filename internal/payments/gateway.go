package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
)

const (
	gatewayTimeFormat = "20060102150405"

	paramSecureHash     = "vnp_SecureHash"
	paramSecureHashType = "vnp_SecureHashType"
)

var (
	// ErrMissingSignature indicates the callback carried no secure hash.
	ErrMissingSignature = errors.New("gateway: missing signature")
	// ErrInvalidSignature indicates the callback signature does not match.
	ErrInvalidSignature = errors.New("gateway: invalid signature")
)

// responseCodeMessages decodes the gateway's response codes for operators and
// failure pages. "00" with transaction status "00" is the only success.
var responseCodeMessages = map[string]string{
	"00": "transaction successful",
	"07": "amount charged, transaction suspected of fraud",
	"09": "card or account not enrolled for online payment",
	"12": "card or account locked",
	"11": "payment session expired",
	"13": "one-time password entered incorrectly",
	"24": "transaction cancelled by the customer",
	"51": "insufficient account balance",
	"65": "daily transaction limit exceeded",
	"75": "bank under maintenance",
	"79": "payment password entered incorrectly too many times",
	"99": "unknown error",
}

// ResponseCodeMessage decodes a gateway response code to a human readable reason.
func ResponseCodeMessage(code string) string {
	if msg, ok := responseCodeMessages[strings.TrimSpace(code)]; ok {
		return msg
	}
	return responseCodeMessages["99"]
}

// GatewayConfig configures the redirect gateway adapter.
type GatewayConfig struct {
	MerchantCode string
	HashSecret   string
	PaymentURL   string
	ReturnURL    string
	Version      string
	Command      string
	Currency     string
	Locale       string
	SessionTTL   time.Duration
	Location     *time.Location
	Clock        func() time.Time
}

// Gateway implements the Provider interface for a signed-redirect bank
// gateway. Outbound requests and inbound callbacks share one canonical
// signing scheme: parameters sorted lexicographically, URL-encoded, joined
// with '&', HMAC-SHA512 with the merchant secret.
type Gateway struct {
	merchantCode string
	secret       []byte
	paymentURL   string
	returnURL    string
	version      string
	command      string
	currency     string
	locale       string
	sessionTTL   time.Duration
	location     *time.Location
	clock        func() time.Time
}

// NewGateway constructs a Gateway from the merchant configuration.
func NewGateway(cfg GatewayConfig) (*Gateway, error) {
	merchantCode := strings.TrimSpace(cfg.MerchantCode)
	if merchantCode == "" {
		return nil, errors.New("gateway: merchant code is required")
	}
	secret := strings.TrimSpace(cfg.HashSecret)
	if secret == "" {
		return nil, errors.New("gateway: hash secret is required")
	}
	paymentURL := strings.TrimSpace(cfg.PaymentURL)
	if paymentURL == "" {
		return nil, errors.New("gateway: payment url is required")
	}
	if _, err := url.Parse(paymentURL); err != nil {
		return nil, fmt.Errorf("gateway: invalid payment url: %w", err)
	}

	version := strings.TrimSpace(cfg.Version)
	if version == "" {
		version = "2.1.0"
	}
	command := strings.TrimSpace(cfg.Command)
	if command == "" {
		command = "pay"
	}
	currency := strings.ToUpper(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = "VND"
	}
	sessionTTL := cfg.SessionTTL
	if sessionTTL <= 0 {
		sessionTTL = 15 * time.Minute
	}
	location := cfg.Location
	if location == nil {
		loc, err := time.LoadLocation("Asia/Ho_Chi_Minh")
		if err != nil {
			loc = time.FixedZone("ICT", 7*60*60)
		}
		location = loc
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Gateway{
		merchantCode: merchantCode,
		secret:       []byte(secret),
		paymentURL:   paymentURL,
		returnURL:    strings.TrimSpace(cfg.ReturnURL),
		version:      version,
		command:      command,
		currency:     currency,
		locale:       normaliseGatewayLocale(cfg.Locale),
		sessionTTL:   sessionTTL,
		location:     location,
		clock:        clock,
	}, nil
}

// CreateSession builds the signed redirect URL for an order payment.
func (g *Gateway) CreateSession(_ context.Context, req SessionRequest) (Session, error) {
	if g == nil {
		return Session{}, errors.New("gateway: provider is nil")
	}
	txnRef := strings.TrimSpace(req.OrderNumber)
	if txnRef == "" {
		return Session{}, errors.New("gateway: order number is required")
	}
	if req.Amount <= 0 {
		return Session{}, fmt.Errorf("gateway: amount must be positive, got %d", req.Amount)
	}

	now := g.clock().In(g.location)
	expiresAt := now.Add(g.sessionTTL)

	orderInfo := strings.TrimSpace(req.Description)
	if orderInfo == "" {
		orderInfo = "Payment for order " + txnRef
	}
	locale := g.locale
	if req.Locale != "" {
		locale = normaliseGatewayLocale(req.Locale)
	}

	params := map[string]string{
		"vnp_Version":    g.version,
		"vnp_Command":    g.command,
		"vnp_TmnCode":    g.merchantCode,
		"vnp_Amount":     strconv.FormatInt(req.Amount, 10),
		"vnp_CurrCode":   g.currency,
		"vnp_TxnRef":     txnRef,
		"vnp_OrderInfo":  orderInfo,
		"vnp_OrderType":  "other",
		"vnp_Locale":     locale,
		"vnp_IpAddr":     strings.TrimSpace(req.ClientIP),
		"vnp_ReturnUrl":  g.returnURL,
		"vnp_CreateDate": now.Format(gatewayTimeFormat),
		"vnp_ExpireDate": expiresAt.Format(gatewayTimeFormat),
	}
	if req.SuccessURL != "" {
		params["vnp_ReturnUrl"] = req.SuccessURL
	}

	query := canonicalQuery(params)
	signature := g.sign(query)

	return Session{
		ID:          txnRef,
		RedirectURL: g.paymentURL + "?" + query + "&" + paramSecureHash + "=" + signature,
		ExpiresAt:   expiresAt.UTC(),
	}, nil
}

// CallbackResult is the verified payload of a gateway return redirect.
type CallbackResult struct {
	TxnRef            string
	TransactionNo     string
	ResponseCode      string
	TransactionStatus string
	BankCode          string
	OrderInfo         string
	PayDate           string
	Amount            int64
}

// Success reports whether the gateway settled the payment. Both the response
// code and the transaction status must be "00".
func (r CallbackResult) Success() bool {
	return r.ResponseCode == "00" && r.TransactionStatus == "00"
}

// Reason decodes the response code into a readable failure reason.
func (r CallbackResult) Reason() string {
	return ResponseCodeMessage(r.ResponseCode)
}

// VerifyCallback checks the signature over the callback parameters and
// extracts the transaction fields. The signature params are excluded from the
// recomputed hash; comparison is constant time.
func (g *Gateway) VerifyCallback(params map[string]string) (CallbackResult, error) {
	if g == nil {
		return CallbackResult{}, errors.New("gateway: provider is nil")
	}

	received := strings.TrimSpace(params[paramSecureHash])
	if received == "" {
		return CallbackResult{}, ErrMissingSignature
	}

	signable := make(map[string]string, len(params))
	for k, v := range params {
		if k == paramSecureHash || k == paramSecureHashType {
			continue
		}
		signable[k] = v
	}

	expected := g.sign(canonicalQuery(signable))
	if !hmac.Equal([]byte(strings.ToLower(received)), []byte(expected)) {
		return CallbackResult{}, ErrInvalidSignature
	}

	result := CallbackResult{
		TxnRef:            params["vnp_TxnRef"],
		TransactionNo:     params["vnp_TransactionNo"],
		ResponseCode:      params["vnp_ResponseCode"],
		TransactionStatus: params["vnp_TransactionStatus"],
		BankCode:          params["vnp_BankCode"],
		OrderInfo:         params["vnp_OrderInfo"],
		PayDate:           params["vnp_PayDate"],
	}
	if raw := strings.TrimSpace(params["vnp_Amount"]); raw != "" {
		amount, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return CallbackResult{}, fmt.Errorf("gateway: invalid amount %q: %w", raw, err)
		}
		result.Amount = amount
	}
	return result, nil
}

func (g *Gateway) sign(canonical string) string {
	mac := hmac.New(sha512.New, g.secret)
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}

// canonicalQuery sorts the parameters lexicographically and URL-encodes both
// keys and values. Empty values are omitted from the canonical form.
func canonicalQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if strings.TrimSpace(v) == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params[k]))
	}
	return b.String()
}

// normaliseGatewayLocale maps arbitrary locale inputs to the two display
// languages the gateway supports.
func normaliseGatewayLocale(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" || strings.EqualFold(cleaned, "vn") {
		return "vn"
	}
	tag, err := language.Parse(cleaned)
	if err != nil {
		return "vn"
	}
	base, _ := tag.Base()
	if base.String() == "vi" {
		return "vn"
	}
	return "en"
}
