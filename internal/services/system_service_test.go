package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/vendora/api/internal/domain"
)

type fakeHealthRepo struct {
	report domain.SystemHealthReport
	err    error
}

func (f *fakeHealthRepo) Collect(ctx context.Context) (domain.SystemHealthReport, error) {
	if f.err != nil {
		return domain.SystemHealthReport{}, f.err
	}
	return f.report, nil
}

func TestSystemServiceHealthFillsDefaults(t *testing.T) {
	repo := &fakeHealthRepo{report: domain.SystemHealthReport{}}
	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: repo,
		Clock:            func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}

	report, err := svc.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if report.Status != domain.HealthStatusOK {
		t.Fatalf("status = %q, want %q", report.Status, domain.HealthStatusOK)
	}
	if report.Checks == nil {
		t.Fatal("checks map should be initialised")
	}
	if !report.GeneratedAt.Equal(testNow) {
		t.Fatalf("generatedAt = %v, want %v", report.GeneratedAt, testNow)
	}
}

func TestSystemServiceHealthDerivesStatus(t *testing.T) {
	cases := []struct {
		name   string
		checks map[string]domain.SystemHealthCheck
		want   string
	}{
		{
			name: "all ok",
			checks: map[string]domain.SystemHealthCheck{
				"firestore": {Status: domain.HealthStatusOK},
				"pubsub":    {Status: domain.HealthStatusOK},
			},
			want: domain.HealthStatusOK,
		},
		{
			name: "one degraded",
			checks: map[string]domain.SystemHealthCheck{
				"firestore": {Status: domain.HealthStatusOK},
				"pubsub":    {Status: domain.HealthStatusDegraded, Detail: "slow publish"},
			},
			want: domain.HealthStatusDegraded,
		},
		{
			name: "error dominates",
			checks: map[string]domain.SystemHealthCheck{
				"firestore": {Status: domain.HealthStatusError, Error: "deadline exceeded"},
				"pubsub":    {Status: domain.HealthStatusDegraded},
			},
			want: domain.HealthStatusError,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &fakeHealthRepo{report: domain.SystemHealthReport{Checks: tc.checks}}
			svc, err := NewSystemService(SystemServiceDeps{HealthRepository: repo})
			if err != nil {
				t.Fatalf("NewSystemService: %v", err)
			}
			report, err := svc.Health(context.Background())
			if err != nil {
				t.Fatalf("Health: %v", err)
			}
			if report.Status != tc.want {
				t.Fatalf("status = %q, want %q", report.Status, tc.want)
			}
		})
	}
}

func TestSystemServiceHealthKeepsExplicitStatus(t *testing.T) {
	repo := &fakeHealthRepo{report: domain.SystemHealthReport{
		Status:      domain.HealthStatusDegraded,
		Checks:      map[string]domain.SystemHealthCheck{"firestore": {Status: domain.HealthStatusOK}},
		GeneratedAt: testNow,
	}}
	svc, err := NewSystemService(SystemServiceDeps{HealthRepository: repo})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}
	report, err := svc.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if report.Status != domain.HealthStatusDegraded {
		t.Fatalf("status = %q, want %q", report.Status, domain.HealthStatusDegraded)
	}
}

func TestSystemServiceHealthPropagatesCollectError(t *testing.T) {
	repo := &fakeHealthRepo{err: errors.New("collect failed")}
	svc, err := NewSystemService(SystemServiceDeps{HealthRepository: repo})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}
	if _, err := svc.Health(context.Background()); err == nil {
		t.Fatal("expected error from collect failure")
	}
}

func TestNewSystemServiceRequiresRepository(t *testing.T) {
	if _, err := NewSystemService(SystemServiceDeps{}); err == nil {
		t.Fatal("expected constructor error without repository")
	}
}
