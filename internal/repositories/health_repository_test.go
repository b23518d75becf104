package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/vendora/api/internal/domain"
)

func TestDependencyHealthRepositoryAllHealthy(t *testing.T) {
	repo, err := NewDependencyHealthRepository([]DependencyCheck{
		{Name: "firestore", Check: func(context.Context) error { return nil }},
		{Name: "pubsub", Check: func(context.Context) error { return nil }},
	})
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository returned error: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect returned error: %v", err)
	}
	if report.Status != domain.HealthStatusOK {
		t.Errorf("expected ok status, got %s", report.Status)
	}
	if len(report.Checks) != 2 {
		t.Fatalf("expected 2 checks, got %d", len(report.Checks))
	}
	if report.Checks["firestore"].Status != domain.HealthStatusOK {
		t.Errorf("unexpected firestore check %+v", report.Checks["firestore"])
	}
}

func TestDependencyHealthRepositoryDegraded(t *testing.T) {
	repo, err := NewDependencyHealthRepository([]DependencyCheck{
		{Name: "firestore", Check: func(context.Context) error { return nil }},
		{Name: "pubsub", Check: func(context.Context) error { return errors.New("publish backlog") }},
	})
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository returned error: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect returned error: %v", err)
	}
	if report.Status != domain.HealthStatusDegraded {
		t.Errorf("expected degraded status, got %s", report.Status)
	}
	if report.Checks["pubsub"].Detail != "publish backlog" {
		t.Errorf("unexpected detail %q", report.Checks["pubsub"].Detail)
	}
}

func TestDependencyHealthRepositoryTimeout(t *testing.T) {
	repo, err := NewDependencyHealthRepository([]DependencyCheck{
		{
			Name:    "firestore",
			Timeout: 10 * time.Millisecond,
			Check: func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			},
		},
	})
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository returned error: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect returned error: %v", err)
	}
	if report.Status != domain.HealthStatusError {
		t.Errorf("expected error status, got %s", report.Status)
	}
	if report.Checks["firestore"].Detail != "timeout" {
		t.Errorf("unexpected detail %q", report.Checks["firestore"].Detail)
	}
}

func TestDependencyHealthRepositoryValidation(t *testing.T) {
	if _, err := NewDependencyHealthRepository(nil); err == nil {
		t.Error("expected error for empty check set")
	}
	if _, err := NewDependencyHealthRepository([]DependencyCheck{{Name: " ", Check: func(context.Context) error { return nil }}}); err == nil {
		t.Error("expected error for unnamed check")
	}
	if _, err := NewDependencyHealthRepository([]DependencyCheck{{Name: "firestore"}}); err == nil {
		t.Error("expected error for missing check function")
	}
}
