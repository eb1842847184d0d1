package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/legal-search-engine/internal/core/domain"
)

type observerFake struct {
	calls []string
}

func (o *observerFake) ObserveProviderCall(provider string, outcome domain.ProviderOutcome, _ time.Duration) {
	o.calls = append(o.calls, provider+":"+string(outcome))
}

var testIdentifier = domain.Identifier{Type: domain.IdentifierTaxIDIndividual, Value: "12345678901"}

func TestRegistryOrdersByPriorityAndSkipsInactive(t *testing.T) {
	a := &providerFake{name: "a"}
	b := &providerFake{name: "b"}
	c := &providerFake{name: "c"}
	registry := NewProviderRegistry([]RegistryEntry{
		{Provider: c, Priority: 3, Active: true},
		{Provider: a, Priority: 1, Active: false},
		{Provider: b, Priority: 2, Active: true},
	}, nil)

	names := registry.Names()
	if strings.Join(names, ",") != "b,c" {
		t.Fatalf("unexpected order: %v", names)
	}
	if _, ok := registry.Provider("a"); !ok {
		t.Fatal("inactive providers must stay addressable by name")
	}
}

func TestRegistryStopsOnAsyncHandle(t *testing.T) {
	a := &providerFake{name: "a", results: []domain.ProviderResult{{Outcome: domain.OutcomeProviderOutOfBalance}}}
	b := &providerFake{name: "b", results: []domain.ProviderResult{{
		Outcome: domain.OutcomeAsync,
		Handle:  &domain.AsyncHandle{RequestID: "req-9"},
	}}}
	c := &providerFake{name: "c"}
	observer := &observerFake{}
	registry := NewProviderRegistry([]RegistryEntry{
		{Provider: a, Priority: 1, Active: true},
		{Provider: b, Priority: 2, Active: true},
		{Provider: c, Priority: 3, Active: true},
	}, observer)

	result := registry.Resolve(context.Background(), testIdentifier)
	if result.Outcome != domain.OutcomeAsync || result.Provider != "b" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if c.callCount() != 0 {
		t.Fatal("provider after async handle must not be called")
	}
	if strings.Join(observer.calls, ",") != "a:provider_out_of_balance,b:async" {
		t.Fatalf("unexpected observations: %v", observer.calls)
	}
}

func TestRegistryEmptyResultStopsFallback(t *testing.T) {
	a := &providerFake{name: "a", results: []domain.ProviderResult{{Outcome: domain.OutcomeEmptyResult}}}
	b := &providerFake{name: "b"}
	registry := NewProviderRegistry([]RegistryEntry{
		{Provider: a, Priority: 1, Active: true},
		{Provider: b, Priority: 2, Active: true},
	}, nil)

	result := registry.Resolve(context.Background(), testIdentifier)
	if result.Outcome != domain.OutcomeEmptyResult {
		t.Fatalf("expected empty result, got %s", result.Outcome)
	}
	if b.callCount() != 0 {
		t.Fatal("few results must not trigger fallback")
	}
}

func TestRegistryAllFailedCollectsDetail(t *testing.T) {
	a := &providerFake{name: "a", results: []domain.ProviderResult{{Outcome: domain.OutcomeProviderTimeout}}}
	b := &providerFake{name: "b", results: []domain.ProviderResult{{Outcome: domain.OutcomeProviderUnauthorized}}}
	registry := NewProviderRegistry([]RegistryEntry{
		{Provider: a, Priority: 1, Active: true},
		{Provider: b, Priority: 2, Active: true},
	}, nil)

	result := registry.Resolve(context.Background(), testIdentifier)
	if result.Outcome != domain.OutcomeAllProvidersFailed {
		t.Fatalf("expected all providers failed, got %s", result.Outcome)
	}
	if !strings.Contains(result.Detail, "a: provider_timeout") || !strings.Contains(result.Detail, "b: provider_unauthorized") {
		t.Fatalf("unexpected detail: %q", result.Detail)
	}
}

func TestRegistryWithoutProviders(t *testing.T) {
	registry := NewProviderRegistry(nil, nil)
	result := registry.Resolve(context.Background(), testIdentifier)
	if result.Outcome != domain.OutcomeAllProvidersFailed || result.Detail != "no active providers" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestRegistryStopsWhenContextCancelled(t *testing.T) {
	a := &providerFake{name: "a"}
	registry := NewProviderRegistry([]RegistryEntry{{Provider: a, Priority: 1, Active: true}}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := registry.Resolve(ctx, testIdentifier)
	if result.Outcome != domain.OutcomeAllProvidersFailed {
		t.Fatalf("expected all providers failed, got %s", result.Outcome)
	}
	if a.callCount() != 0 {
		t.Fatal("provider must not be called after cancellation")
	}
}

func TestNormalizeProviderResult(t *testing.T) {
	tests := []struct {
		name string
		in   domain.ProviderResult
		want domain.ProviderOutcome
	}{
		{name: "async without handle", in: domain.ProviderResult{Outcome: domain.OutcomeAsync}, want: domain.OutcomeProviderTransientError},
		{name: "success without records", in: domain.ProviderResult{Outcome: domain.OutcomeSuccess}, want: domain.OutcomeEmptyResult},
		{name: "unknown outcome", in: domain.ProviderResult{Outcome: "weird"}, want: domain.OutcomeProviderTransientError},
		{name: "timeout kept", in: domain.ProviderResult{Outcome: domain.OutcomeProviderTimeout}, want: domain.OutcomeProviderTimeout},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := normalizeProviderResult(tc.in).Outcome; got != tc.want {
				t.Fatalf("got %s, want %s", got, tc.want)
			}
		})
	}
}
