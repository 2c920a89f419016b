package authd

import (
	"context"
	"testing"
)

func TestMetricsDisabledByDefault(t *testing.T) {
	m := NewMetrics(MetricsConfig{})
	m.Inc(MetricLoginSuccess)

	if m.Enabled() {
		t.Fatal("expected metrics disabled")
	}
	if got := m.Value(MetricLoginSuccess); got != 0 {
		t.Fatalf("Value = %d, want 0 when disabled", got)
	}
}

func TestMetricsIncAndSnapshot(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	m.Inc(MetricLoginSuccess)
	m.Inc(MetricLoginSuccess)
	m.Inc(MetricLogout)

	if got := m.Value(MetricLoginSuccess); got != 2 {
		t.Fatalf("login success = %d, want 2", got)
	}
	if got := m.Value(MetricLogout); got != 1 {
		t.Fatalf("logout = %d, want 1", got)
	}

	snap := m.Snapshot()
	if snap.Counters[MetricLoginSuccess] != 2 || snap.Counters[MetricLogout] != 1 {
		t.Fatalf("snapshot = %v", snap.Counters)
	}
	if snap.Counters[MetricRefreshSuccess] != 0 {
		t.Fatalf("untouched counter = %d, want 0", snap.Counters[MetricRefreshSuccess])
	}
}

func TestMetricsIgnoresUnknownID(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(metricIDCount + 1)
	if got := m.Value(metricIDCount + 1); got != 0 {
		t.Fatalf("Value = %d, want 0 for out-of-range id", got)
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := WithClientIP(WithUserAgent(context.Background(), "test-agent/1.0"), "203.0.113.9")

	if ip := clientIPFromContext(ctx); ip != "203.0.113.9" {
		t.Fatalf("ip = %q", ip)
	}
	if ua := userAgentFromContext(ctx); ua != "test-agent/1.0" {
		t.Fatalf("user agent = %q", ua)
	}

	if ip := clientIPFromContext(context.Background()); ip != "" {
		t.Fatalf("ip on bare context = %q", ip)
	}
}
