package resilience

import (
	"testing"
	"time"
)

func TestNormalizeFillsZeroValues(t *testing.T) {
	got := Config{RetryInitialBackoff: 10 * time.Second, RetryMaxBackoff: time.Second}.normalize()

	def := ProviderPolicy()
	if got.RetryMaxAttempts != def.RetryMaxAttempts {
		t.Fatalf("RetryMaxAttempts = %d, want %d", got.RetryMaxAttempts, def.RetryMaxAttempts)
	}
	if got.RetryMaxBackoff != 10*time.Second {
		t.Fatalf("max backoff must not be below initial backoff, got %s", got.RetryMaxBackoff)
	}
	if got.BreakerFailureRatio != def.BreakerFailureRatio || got.BreakerHalfOpenMaxCalls != def.BreakerHalfOpenMaxCalls {
		t.Fatalf("breaker defaults not applied: %+v", got)
	}
	if got.BreakerEnabled {
		t.Fatal("normalize must not enable a disabled breaker")
	}
}

func TestWithOverrides(t *testing.T) {
	cfg := BrokerPolicy().WithOverrides(5, 0)
	if cfg.RetryMaxAttempts != 5 {
		t.Fatalf("RetryMaxAttempts = %d", cfg.RetryMaxAttempts)
	}
	if cfg.BreakerOpenTimeout != BrokerPolicy().BreakerOpenTimeout {
		t.Fatalf("zero override must keep open timeout, got %s", cfg.BreakerOpenTimeout)
	}
}
