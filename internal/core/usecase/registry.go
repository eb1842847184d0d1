package usecase

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/kirillkom/legal-search-engine/internal/core/domain"
	"github.com/kirillkom/legal-search-engine/internal/core/ports"
)

type RegistryEntry struct {
	Provider ports.SearchProvider
	Priority int
	Active   bool
}

// ProviderRegistry holds active providers ordered by ascending priority and
// falls through them only when a provider fails.
type ProviderRegistry struct {
	ordered  []ports.SearchProvider
	byName   map[string]ports.SearchProvider
	observer ports.ProviderObserver
}

func NewProviderRegistry(entries []RegistryEntry, observer ports.ProviderObserver) *ProviderRegistry {
	active := make([]RegistryEntry, 0, len(entries))
	byName := make(map[string]ports.SearchProvider, len(entries))
	for _, entry := range entries {
		if entry.Provider == nil {
			continue
		}
		byName[entry.Provider.Name()] = entry.Provider
		if entry.Active {
			active = append(active, entry)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Priority < active[j].Priority
	})

	ordered := make([]ports.SearchProvider, 0, len(active))
	for _, entry := range active {
		ordered = append(ordered, entry.Provider)
	}
	return &ProviderRegistry{
		ordered:  ordered,
		byName:   byName,
		observer: observer,
	}
}

// Names returns the active providers in resolution order.
func (r *ProviderRegistry) Names() []string {
	names := make([]string, 0, len(r.ordered))
	for _, p := range r.ordered {
		names = append(names, p.Name())
	}
	return names
}

// Provider looks a provider up by name, active or not, so that jobs created
// before a provider was deactivated can still be polled.
func (r *ProviderRegistry) Provider(name string) (ports.SearchProvider, bool) {
	p, ok := r.byName[name]
	return p, ok
}

// Active returns the active providers in resolution order.
func (r *ProviderRegistry) Active() []ports.SearchProvider {
	out := make([]ports.SearchProvider, len(r.ordered))
	copy(out, r.ordered)
	return out
}

func (r *ProviderRegistry) Resolve(ctx context.Context, identifier domain.Identifier) domain.ProviderResult {
	failures := make([]string, 0, len(r.ordered))

	for _, provider := range r.ordered {
		if ctx.Err() != nil {
			failures = append(failures, "caller gave up: "+ctx.Err().Error())
			break
		}

		start := time.Now()
		result := normalizeProviderResult(provider.Search(ctx, identifier))
		result.Provider = provider.Name()
		if result.Duration == 0 {
			result.Duration = time.Since(start)
		}
		if r.observer != nil {
			r.observer.ObserveProviderCall(result.Provider, result.Outcome, result.Duration)
		}

		if !result.Outcome.TriggersFallback() {
			return result
		}

		slog.WarnContext(ctx, "provider_call_failed",
			"provider", result.Provider,
			"outcome", string(result.Outcome),
			"identifier_type", string(identifier.Type),
			"detail", result.Detail,
			"duration_ms", float64(result.Duration.Microseconds())/1000.0,
		)
		failures = append(failures, result.Provider+": "+string(result.Outcome))
	}

	if len(r.ordered) == 0 {
		failures = append(failures, "no active providers")
	}
	return domain.ProviderResult{
		Outcome: domain.OutcomeAllProvidersFailed,
		Detail:  strings.Join(failures, "; "),
	}
}

// normalizeProviderResult folds inconsistent adapter answers into the closed
// outcome set: async without a handle is a provider failure, success without
// records is an empty result.
func normalizeProviderResult(result domain.ProviderResult) domain.ProviderResult {
	switch result.Outcome {
	case domain.OutcomeAsync:
		if result.Handle == nil || strings.TrimSpace(result.Handle.RequestID) == "" {
			result.Outcome = domain.OutcomeProviderTransientError
			result.Detail = "async outcome without request id"
		}
	case domain.OutcomeSuccess:
		if len(result.Processes) == 0 {
			result.Outcome = domain.OutcomeEmptyResult
		}
		if result.ResultCount < len(result.Processes) {
			result.ResultCount = len(result.Processes)
		}
	case domain.OutcomeEmptyResult:
		result.Processes = nil
		result.ResultCount = 0
	case domain.OutcomeProviderUnauthorized,
		domain.OutcomeProviderOutOfBalance,
		domain.OutcomeProviderTimeout,
		domain.OutcomeProviderTransientError:
	default:
		result.Detail = "unexpected outcome " + string(result.Outcome) + ": " + result.Detail
		result.Outcome = domain.OutcomeProviderTransientError
	}
	return result
}
