package health

import (
	"context"
	"testing"
	"time"
)

type stubChecker struct {
	name    string
	healthy bool
	calls   int
}

func (c *stubChecker) Check(_ context.Context) CheckResult {
	c.calls++
	return CheckResult{Name: c.name, Healthy: c.healthy}
}

func TestReadyAggregatesCheckers(t *testing.T) {
	runner := NewProbeRunner(time.Second, 0,
		&stubChecker{name: "database", healthy: true},
		&stubChecker{name: "redis", healthy: false},
	)

	ready, results := runner.Ready(context.Background())
	if ready {
		t.Fatal("expected not ready with one unhealthy checker")
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
}

func TestReadyWithNoCheckers(t *testing.T) {
	runner := NewProbeRunner(time.Second, 0)
	ready, results := runner.Ready(context.Background())
	if !ready {
		t.Fatal("expected ready with no checkers")
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
}

func TestReadyCachesWithinTTL(t *testing.T) {
	checker := &stubChecker{name: "database", healthy: true}
	runner := NewProbeRunner(time.Second, time.Minute, checker)

	runner.Ready(context.Background())
	runner.Ready(context.Background())
	if checker.calls != 1 {
		t.Fatalf("expected one probe within the cache ttl, got %d", checker.calls)
	}
}
