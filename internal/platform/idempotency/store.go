package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

// Status represents the lifecycle state of an idempotency record.
type Status string

const (
	// DefaultTTL is the default duration that idempotency records are retained.
	DefaultTTL = 48 * time.Hour
	// StatusPending indicates that a callback has reserved the key but not yet persisted a result.
	StatusPending Status = "pending"
	// StatusCompleted indicates that the result for the key has been stored and redeliveries can be short-circuited.
	StatusCompleted Status = "completed"
)

// ReservationState describes the outcome of attempting to reserve an idempotency key.
type ReservationState int

const (
	// ReservationStateNew means no existing reservation was found and the caller may continue processing.
	ReservationStateNew ReservationState = iota
	// ReservationStateCompleted means a previous result was found and should be replayed.
	ReservationStateCompleted
	// ReservationStatePending means another delivery is currently processing this key.
	ReservationStatePending
)

// Reservation encapsulates the result of reserving a key, including the stored record if available.
type Reservation struct {
	State  ReservationState
	Record Record
}

// Record captures the persisted processing outcome for an idempotency key.
type Record struct {
	Key         string
	Fingerprint string
	Status      Status
	OrderID     string
	ResultCode  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ExpiresAt   time.Time
}

// Result represents the processing outcome that should be stored for future redeliveries.
type Result struct {
	OrderID    string
	ResultCode string
}

// Store persists idempotency reservations and results.
type Store interface {
	Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error)
	SaveResult(ctx context.Context, key, fingerprint string, result Result, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key, fingerprint string) error
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// ErrFingerprintMismatch is returned when an idempotency key is reused with a
// different request fingerprint.
var ErrFingerprintMismatch = errors.New("idempotency: key reserved for different request fingerprint")

func compositeKey(key string) string {
	return sha256Hex([]byte(strings.TrimSpace(key)))
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Fingerprint derives a stable fingerprint from the supplied payload fields.
func Fingerprint(parts ...string) string {
	return sha256Hex([]byte(strings.Join(parts, "\x00")))
}
