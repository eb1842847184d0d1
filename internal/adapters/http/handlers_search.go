package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kirillkom/legal-search-engine/internal/core/domain"
)

const defaultHistoryLimit = 50

type syncSearchResponse struct {
	ResultsCount    int              `json:"resultsCount"`
	FromCache       bool             `json:"fromCache"`
	CreditsConsumed json.Number      `json:"creditsConsumed"`
	Provider        string           `json:"provider"`
	Records         []domain.Process `json:"records"`
}

type asyncSearchResponse struct {
	Status            string      `json:"status"`
	JobID             string      `json:"jobId"`
	ProviderRequestID string      `json:"providerRequestId"`
	EstimatedMinutes  int         `json:"estimatedMinutes"`
	CreditsConsumed   json.Number `json:"creditsConsumed"`
}

type jobResponse struct {
	JobID             string           `json:"jobId"`
	Status            domain.JobStatus `json:"status"`
	IdentifierType    string           `json:"identifierType"`
	IdentifierValue   string           `json:"identifierValue"`
	ProviderRequestID string           `json:"providerRequestId"`
	EstimatedMinutes  int              `json:"estimatedMinutes"`
	ResultsCount      int              `json:"resultsCount"`
	CreditsConsumed   json.Number      `json:"creditsConsumed"`
	Error             string           `json:"error,omitempty"`
	CreatedAt         string           `json:"createdAt"`
	CompletedAt       string           `json:"completedAt,omitempty"`
}

func creditsNumber(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

func (rt *Router) createSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := rt.decodeJSON(w, r, &req); err != nil {
		rt.writeError(w, r, err)
		return
	}
	userID := strings.TrimSpace(r.Header.Get(userIDHeader))
	if userID == "" {
		userID = req.UserID
	}

	identifierType := domain.IdentifierType(req.IdentifierType)
	outcome, err := rt.svc.Search.Search(r.Context(), domain.SearchRequest{
		IdentifierType:  identifierType,
		IdentifierValue: req.IdentifierValue,
		UserID:          userID,
	})
	if err != nil {
		rt.recordSearch(identifierType, searchErrorLabel(err), decimal.Zero)
		rt.writeError(w, r, err)
		return
	}

	if outcome.IsAsync() {
		rt.recordSearch(identifierType, "async", outcome.CreditsConsumed)
		writeJSON(w, http.StatusAccepted, asyncSearchResponse{
			Status:            "processing",
			JobID:             outcome.Job.ID,
			ProviderRequestID: outcome.Job.ProviderRequestID,
			EstimatedMinutes:  outcome.Job.EstimatedMinutes,
			CreditsConsumed:   creditsNumber(outcome.CreditsConsumed),
		})
		return
	}

	label := "sync"
	if outcome.FromCache {
		label = "cache"
	}
	rt.recordSearch(identifierType, label, outcome.CreditsConsumed)

	records := outcome.Records
	if records == nil {
		records = []domain.Process{}
	}
	writeJSON(w, http.StatusOK, syncSearchResponse{
		ResultsCount:    outcome.ResultsCount,
		FromCache:       outcome.FromCache,
		CreditsConsumed: creditsNumber(outcome.CreditsConsumed),
		Provider:        outcome.Provider,
		Records:         records,
	})
}

func (rt *Router) getSearchJob(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	job, err := rt.svc.Jobs.GetJob(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	refresh, err := queryFlag(r, "refresh")
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if refresh && !job.Status.IsTerminal() {
		job, err = rt.svc.Jobs.PollStatus(r.Context(), job.ID)
		if err != nil {
			rt.writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

func (rt *Router) listSearchHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	limit, err := queryLimit(r, defaultHistoryLimit)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	items, err := rt.svc.Search.History(r.Context(), userID, limit)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(items))
}

func toJobResponse(job *domain.AsyncSearchJob) jobResponse {
	resp := jobResponse{
		JobID:             job.ID,
		Status:            job.Status,
		IdentifierType:    string(job.IdentifierType),
		IdentifierValue:   job.IdentifierValue,
		ProviderRequestID: job.ProviderRequestID,
		EstimatedMinutes:  job.EstimatedMinutes,
		ResultsCount:      job.ResultCount,
		CreditsConsumed:   creditsNumber(job.CreditsConsumed),
		Error:             job.ErrorMessage,
		CreatedAt:         job.CreatedAt.UTC().Format(time.RFC3339),
	}
	if job.CompletedAt != nil {
		resp.CompletedAt = job.CompletedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func (rt *Router) recordSearch(identifierType domain.IdentifierType, result string, credits decimal.Decimal) {
	if rt.metrics == nil {
		return
	}
	rt.metrics.RecordSearch(identifierType, result, credits)
}

func searchErrorLabel(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrInsufficientCredits):
		return "insufficient_credits"
	case domain.IsKind(err, domain.ErrAllProvidersFailed):
		return string(domain.OutcomeAllProvidersFailed)
	case domain.IsKind(err, domain.ErrInvalidInput):
		return "invalid_input"
	default:
		return "error"
	}
}
