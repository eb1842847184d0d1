package judit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/legal-search-engine/internal/core/domain"
	"github.com/kirillkom/legal-search-engine/internal/infrastructure/provider"
	"github.com/kirillkom/legal-search-engine/internal/infrastructure/resilience"
)

const Name = "judit"

const (
	defaultTimeout          = 30 * time.Second
	defaultEstimatedMinutes = 5
	defaultPollInterval     = 2 * time.Second
	defaultPollMaxAttempts  = 30
	defaultPageSize         = 100
	maxResponsePages        = 50
)

type Config struct {
	BaseURL          string
	TrackingURL      string
	APIKey           string
	Timeout          time.Duration
	EstimatedMinutes int
	PageSize         int
	RateLimitRPS     float64
	RateBurst        int

	// HotStorage makes Search wait for the request to finish instead of
	// handing back an async handle right away.
	HotStorage      bool
	PollInterval    time.Duration
	PollMaxAttempts int
}

// Client is the asynchronous judit adapter. Searches are submitted as
// requests and their results fetched page by page once judit reports them
// completed.
type Client struct {
	cfg         Config
	baseURL     string
	trackingURL string
	httpClient  *http.Client
	exec        *resilience.Executor
}

func New(cfg Config, exec *resilience.Executor) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.EstimatedMinutes <= 0 {
		cfg.EstimatedMinutes = defaultEstimatedMinutes
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.PollMaxAttempts <= 0 {
		cfg.PollMaxAttempts = defaultPollMaxAttempts
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if exec == nil {
		exec = resilience.NewExecutor(resilience.ProviderPolicy())
	}
	exec.SetRateLimit(Name, cfg.RateLimitRPS, cfg.RateBurst)

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	trackingURL := strings.TrimRight(cfg.TrackingURL, "/")
	if trackingURL == "" {
		trackingURL = baseURL
	}
	return &Client{
		cfg:         cfg,
		baseURL:     baseURL,
		trackingURL: trackingURL,
		httpClient:  &http.Client{},
		exec:        exec,
	}
}

func (c *Client) Name() string { return Name }

func (c *Client) Search(ctx context.Context, identifier domain.Identifier) domain.ProviderResult {
	started := time.Now()
	searchType, err := searchTypeFor(identifier.Type)
	if err != nil {
		return provider.Failure(Name, err, started)
	}

	submitCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	var created requestCreated
	err = c.submit(submitCtx, func(ctx context.Context) error {
		return c.postJSON(ctx, c.baseURL+"/requests", searchRequest{Search: searchQuery{Type: searchType, Key: identifier.Value}}, &created, "create request")
	})
	cancel()
	if err != nil {
		return provider.Failure(Name, err, started)
	}
	if strings.TrimSpace(created.RequestID) == "" {
		return provider.Failure(Name, errors.New("judit create request: empty request_id"), started)
	}

	if c.cfg.HotStorage {
		if result, done := c.waitForResult(ctx, created.RequestID, started); done {
			return result
		}
	}
	return domain.ProviderResult{
		Outcome:  domain.OutcomeAsync,
		Provider: Name,
		Handle: &domain.AsyncHandle{
			RequestID:        created.RequestID,
			EstimatedMinutes: c.cfg.EstimatedMinutes,
		},
		Duration: time.Since(started),
	}
}

// waitForResult polls a freshly created request. done is false when the
// attempts ran out and the caller should fall back to an async handle.
func (c *Client) waitForResult(ctx context.Context, requestID string, started time.Time) (domain.ProviderResult, bool) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < c.cfg.PollMaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return provider.Failure(Name, ctx.Err(), started), true
		case <-ticker.C:
		}

		status, err := c.JobStatus(ctx, requestID)
		if err != nil {
			return provider.Failure(Name, err, started), true
		}
		switch status.State {
		case domain.ProviderJobCompleted:
			return provider.Records(Name, status.Processes, len(status.Processes), started), true
		case domain.ProviderJobFailed:
			return provider.Failure(Name, fmt.Errorf("judit request %s failed: %s", requestID, status.ErrorMessage), started), true
		}
	}
	return domain.ProviderResult{}, false
}

// JobStatus reports the state of a submitted request and, once it is
// completed, every page of its results.
func (c *Client) JobStatus(ctx context.Context, requestID string) (domain.ProviderJobStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var req requestState
	err := c.call(ctx, func(ctx context.Context) error {
		return c.getJSON(ctx, c.baseURL+"/requests/"+url.PathEscape(requestID), &req, "request status")
	})
	if err != nil {
		return domain.ProviderJobStatus{}, provider.WrapTemporary("judit request status", err)
	}

	switch strings.ToLower(strings.TrimSpace(req.Status)) {
	case "completed", "done":
		processes, pages, err := c.fetchResponses(ctx, requestID)
		if err != nil {
			return domain.ProviderJobStatus{}, provider.WrapTemporary("judit responses", err)
		}
		return domain.ProviderJobStatus{State: domain.ProviderJobCompleted, PageCount: pages, Processes: processes}, nil
	case "failed", "error", "cancelled":
		message := strings.TrimSpace(req.Error)
		if message == "" {
			message = "request " + req.Status
		}
		return domain.ProviderJobStatus{State: domain.ProviderJobFailed, ErrorMessage: message}, nil
	case "processing", "running":
		return domain.ProviderJobStatus{State: domain.ProviderJobProcessing}, nil
	default:
		return domain.ProviderJobStatus{State: domain.ProviderJobPending}, nil
	}
}

func (c *Client) fetchResponses(ctx context.Context, requestID string) ([]domain.Process, int, error) {
	processes := make([]domain.Process, 0)
	pageCount := 1
	for page := 1; page <= pageCount && page <= maxResponsePages; page++ {
		query := url.Values{}
		query.Set("request_id", requestID)
		query.Set("page", strconv.Itoa(page))
		query.Set("page_size", strconv.Itoa(c.cfg.PageSize))

		var resp responsePage
		err := c.call(ctx, func(ctx context.Context) error {
			return c.getJSON(ctx, c.baseURL+"/responses?"+query.Encode(), &resp, "responses")
		})
		if err != nil {
			return nil, 0, err
		}
		if resp.PageCount > pageCount {
			pageCount = resp.PageCount
		}
		for _, item := range resp.PageData {
			if item.ResponseType != "" && item.ResponseType != "lawsuit" {
				continue
			}
			if p, ok := item.ResponseData.toProcess(); ok {
				processes = append(processes, p)
			}
		}
	}
	return processes, pageCount, nil
}

var recurrenceDays = map[domain.MonitoringFrequency]int{
	domain.FrequencyDaily:   1,
	domain.FrequencyWeekly:  7,
	domain.FrequencyMonthly: 30,
}

func (c *Client) RegisterMonitoring(ctx context.Context, identifier domain.Identifier, frequency domain.MonitoringFrequency) (string, error) {
	searchType, err := searchTypeFor(identifier.Type)
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "judit register monitoring", err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	request := trackingRequest{
		Recurrence: recurrenceDays[frequency],
		Search:     searchQuery{Type: searchType, Key: identifier.Value},
	}
	var resp trackingCreated
	err = c.submit(ctx, func(ctx context.Context) error {
		return c.postJSON(ctx, c.trackingURL+"/tracking", request, &resp, "create tracking")
	})
	if err != nil {
		return "", provider.WrapTemporary("judit register monitoring", err)
	}
	if strings.TrimSpace(resp.TrackingID) == "" {
		return "", errors.New("judit register monitoring: empty tracking_id")
	}
	return resp.TrackingID, nil
}

func (c *Client) call(ctx context.Context, fn func(context.Context) error) error {
	return c.exec.Execute(ctx, Name, fn, resilience.ClassifyHTTPError)
}

// submit runs a call that creates a billable request or a tracking upstream.
func (c *Client) submit(ctx context.Context, fn func(context.Context) error) error {
	return c.exec.Execute(ctx, Name, fn, resilience.ClassifyCreateHTTPError)
}

func searchTypeFor(t domain.IdentifierType) (string, error) {
	switch t {
	case domain.IdentifierTaxIDIndividual:
		return "cpf", nil
	case domain.IdentifierTaxIDEntity:
		return "cnpj", nil
	case domain.IdentifierBarRegistration:
		return "oab", nil
	case domain.IdentifierCaseNumber:
		return "lawsuit_cnj", nil
	default:
		return "", fmt.Errorf("unsupported identifier type %q", t)
	}
}
