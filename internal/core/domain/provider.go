package domain

import "time"

// ProviderOutcome is the closed set of results a provider adapter can report.
type ProviderOutcome string

const (
	OutcomeSuccess                ProviderOutcome = "success"
	OutcomeEmptyResult            ProviderOutcome = "empty_result"
	OutcomeAsync                  ProviderOutcome = "async"
	OutcomeProviderUnauthorized   ProviderOutcome = "provider_unauthorized"
	OutcomeProviderOutOfBalance   ProviderOutcome = "provider_out_of_balance"
	OutcomeProviderTimeout        ProviderOutcome = "provider_timeout"
	OutcomeProviderTransientError ProviderOutcome = "provider_transient_error"
	OutcomeAllProvidersFailed     ProviderOutcome = "all_providers_failed"
)

// TriggersFallback reports whether the registry should try the next provider.
func (o ProviderOutcome) TriggersFallback() bool {
	switch o {
	case OutcomeProviderUnauthorized, OutcomeProviderOutOfBalance, OutcomeProviderTimeout, OutcomeProviderTransientError:
		return true
	default:
		return false
	}
}

// AsyncHandle is a provider-issued reference to a search still running remotely.
type AsyncHandle struct {
	RequestID        string `json:"request_id"`
	EstimatedMinutes int    `json:"estimated_minutes"`
}

// ProviderResult is the tagged variant returned by every adapter. Processes
// and ResultCount are set for success, Handle for async, Detail carries
// diagnostics for failures and is never shown to users.
type ProviderResult struct {
	Outcome     ProviderOutcome
	Provider    string
	Processes   []Process
	ResultCount int
	Handle      *AsyncHandle
	Detail      string
	Duration    time.Duration
}

func (r ProviderResult) IsAsync() bool {
	return r.Outcome == OutcomeAsync && r.Handle != nil
}

type ProviderJobState string

const (
	ProviderJobPending    ProviderJobState = "pending"
	ProviderJobProcessing ProviderJobState = "processing"
	ProviderJobCompleted  ProviderJobState = "completed"
	ProviderJobFailed     ProviderJobState = "failed"
)

// ProviderJobStatus is the normalized answer of a provider status poll.
type ProviderJobStatus struct {
	State        ProviderJobState
	PageCount    int
	Processes    []Process
	ErrorMessage string
}
