// Package provider holds what the external legal-data adapters share: the
// mapping from transport failures to orchestrator outcomes and the
// identifier/case-number parsing helpers their payloads need.
package provider

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kirillkom/legal-search-engine/internal/core/domain"
	"github.com/kirillkom/legal-search-engine/internal/infrastructure/resilience"
)

// OutcomeFor maps a failed outbound call to the closed outcome set. Raw
// provider errors never leave the adapter; only the outcome and a diagnostic
// detail do.
func OutcomeFor(err error) domain.ProviderOutcome {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.OutcomeProviderTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.OutcomeProviderTimeout
	}

	var statusErr *resilience.HTTPStatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return domain.OutcomeProviderUnauthorized
		case http.StatusPaymentRequired:
			return domain.OutcomeProviderOutOfBalance
		case http.StatusNotFound:
			return domain.OutcomeEmptyResult
		}
	}
	return domain.OutcomeProviderTransientError
}

// Failure builds the result for a failed call.
func Failure(name string, err error, started time.Time) domain.ProviderResult {
	outcome := OutcomeFor(err)
	result := domain.ProviderResult{
		Outcome:  outcome,
		Provider: name,
		Duration: time.Since(started),
	}
	if outcome != domain.OutcomeEmptyResult {
		result.Detail = err.Error()
	}
	return result
}

// Records builds a success or empty result from normalized processes.
func Records(name string, processes []domain.Process, total int, started time.Time) domain.ProviderResult {
	if total < len(processes) {
		total = len(processes)
	}
	outcome := domain.OutcomeSuccess
	if len(processes) == 0 {
		outcome = domain.OutcomeEmptyResult
		total = 0
	}
	return domain.ProviderResult{
		Outcome:     outcome,
		Provider:    name,
		Processes:   processes,
		ResultCount: total,
		Duration:    time.Since(started),
	}
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
}

// ParseDate accepts the date shapes seen in provider payloads. Unparseable
// values are dropped.
func ParseDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}

// ParseAmount reads a monetary amount written either as a JSON number or as
// a string, with "1.234,56" style separators tolerated.
func ParseAmount(raw string) *decimal.Decimal {
	raw = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "R$"))
	if raw == "" {
		return nil
	}
	if strings.Contains(raw, ",") {
		raw = strings.ReplaceAll(raw, ".", "")
		raw = strings.ReplaceAll(raw, ",", ".")
	}
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return nil
	}
	return &value
}

// PartySide folds the provider vocabularies for case poles into PartySide.
func PartySide(raw string) domain.PartySide {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "ativo", "active", "autor", "author", "requerente", "exequente", "reclamante", "plaintiff":
		return domain.PartySideAuthor
	case "passivo", "passive", "reu", "réu", "requerido", "executado", "reclamado", "defendant":
		return domain.PartySideDefendant
	default:
		return domain.PartySideOther
	}
}

// WrapTemporary marks errors worth retrying later as domain.ErrTemporary.
// It is used on the calls that return errors instead of outcomes.
func WrapTemporary(operation string, err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if resilience.ClassifyHTTPError(err).Retryable || resilience.IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}
