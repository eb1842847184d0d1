package httpadapter

import (
	"net/http"

	"github.com/kirillkom/legal-search-engine/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrInsufficientCredits):
		return http.StatusPaymentRequired
	case domain.IsKind(err, domain.ErrWebhookInvalid):
		return http.StatusForbidden
	case domain.IsKind(err, domain.ErrNotFound), domain.IsKind(err, domain.ErrTargetNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrConflict):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrAllProvidersFailed), domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// publicErrorMessage never echoes provider or store details; only input
// errors carry their cause back to the caller.
func publicErrorMessage(err error, status int) string {
	switch {
	case status == http.StatusBadRequest:
		return err.Error()
	case domain.IsKind(err, domain.ErrAllProvidersFailed):
		return "search temporarily unavailable"
	case domain.IsKind(err, domain.ErrInsufficientCredits):
		return "insufficient credits"
	case domain.IsKind(err, domain.ErrWebhookInvalid):
		return "invalid webhook"
	case status == http.StatusNotFound:
		return "not found"
	case status == http.StatusUnauthorized:
		return "unauthorized"
	case status == http.StatusConflict:
		return "already exists"
	case status == http.StatusServiceUnavailable:
		return "service temporarily unavailable"
	default:
		return "internal error"
	}
}
