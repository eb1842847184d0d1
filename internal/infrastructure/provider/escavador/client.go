package escavador

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kirillkom/legal-search-engine/internal/core/domain"
	"github.com/kirillkom/legal-search-engine/internal/infrastructure/provider"
	"github.com/kirillkom/legal-search-engine/internal/infrastructure/resilience"
)

const Name = "escavador"

const (
	defaultTimeout  = 30 * time.Second
	defaultMaxPages = 5
)

type Config struct {
	BaseURL      string
	Token        string
	Timeout      time.Duration
	MaxPages     int
	RateLimitRPS float64
	RateBurst    int
}

// Client is the synchronous escavador adapter: every search is answered in
// the same call, paging through the result list.
type Client struct {
	baseURL    string
	token      string
	timeout    time.Duration
	maxPages   int
	httpClient *http.Client
	exec       *resilience.Executor
}

func New(cfg Config, exec *resilience.Executor) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaultMaxPages
	}
	if exec == nil {
		exec = resilience.NewExecutor(resilience.ProviderPolicy())
	}
	exec.SetRateLimit(Name, cfg.RateLimitRPS, cfg.RateBurst)

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		timeout:    cfg.Timeout,
		maxPages:   cfg.MaxPages,
		httpClient: &http.Client{},
		exec:       exec,
	}
}

func (c *Client) Name() string { return Name }

func (c *Client) Search(ctx context.Context, identifier domain.Identifier) domain.ProviderResult {
	started := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var (
		items []processPayload
		err   error
	)
	if identifier.Type == domain.IdentifierCaseNumber {
		items, err = c.searchCaseNumber(ctx, identifier.Value)
	} else {
		items, err = c.searchList(ctx, identifier)
	}
	if err != nil {
		return provider.Failure(Name, err, started)
	}

	processes := make([]domain.Process, 0, len(items))
	for _, item := range items {
		if p, ok := item.toProcess(); ok {
			processes = append(processes, p)
		}
	}
	return provider.Records(Name, processes, len(processes), started)
}

// JobStatus is not supported: escavador never answers asynchronously.
func (c *Client) JobStatus(context.Context, string) (domain.ProviderJobStatus, error) {
	return domain.ProviderJobStatus{}, domain.WrapError(domain.ErrInvalidInput, "escavador job status", errors.New("provider has no async jobs"))
}

func (c *Client) searchList(ctx context.Context, identifier domain.Identifier) ([]processPayload, error) {
	query := url.Values{}
	path := "/api/v2/envolvido/processos"
	switch identifier.Type {
	case domain.IdentifierTaxIDIndividual, domain.IdentifierTaxIDEntity:
		query.Set("cpf_cnpj", identifier.Value)
	case domain.IdentifierBarRegistration:
		path = "/api/v2/advogado/processos"
		query.Set("oab_estado", identifier.BarState())
		query.Set("oab_numero", identifier.BarNumber())
	default:
		return nil, fmt.Errorf("unsupported identifier type %q", identifier.Type)
	}

	next := c.baseURL + path + "?" + query.Encode()
	items := make([]processPayload, 0)
	for page := 0; page < c.maxPages && next != ""; page++ {
		var resp processPage
		if err := c.call(ctx, func(ctx context.Context) error {
			return c.getJSON(ctx, next, &resp, "search")
		}); err != nil {
			return nil, err
		}
		items = append(items, resp.Items...)
		next = c.absolute(resp.Links.Next)
	}
	return items, nil
}

func (c *Client) searchCaseNumber(ctx context.Context, caseNumber string) ([]processPayload, error) {
	target := c.baseURL + "/api/v2/processos/numero_cnj/" + url.PathEscape(domain.FormatCaseNumber(caseNumber))
	var resp processPayload
	if err := c.call(ctx, func(ctx context.Context) error {
		return c.getJSON(ctx, target, &resp, "case lookup")
	}); err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.NumeroCNJ) == "" {
		return nil, nil
	}
	return []processPayload{resp}, nil
}

var monitoringFrequencies = map[domain.MonitoringFrequency]string{
	domain.FrequencyDaily:   "DIARIA",
	domain.FrequencyWeekly:  "SEMANAL",
	domain.FrequencyMonthly: "MENSAL",
}

// RegisterMonitoring asks escavador to push callbacks for the identifier and
// returns its monitoring id.
func (c *Client) RegisterMonitoring(ctx context.Context, identifier domain.Identifier, frequency domain.MonitoringFrequency) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	request := map[string]any{
		"frequencia": monitoringFrequencies[frequency],
	}
	if identifier.Type == domain.IdentifierCaseNumber {
		request["tipo"] = "PROCESSO"
		request["numero"] = domain.FormatCaseNumber(identifier.Value)
	} else {
		request["tipo"] = "TERMO"
		request["termo"] = identifier.Value
	}

	var resp struct {
		ID json.Number `json:"id"`
	}
	err := c.call(ctx, func(ctx context.Context) error {
		return c.postJSON(ctx, "/api/v2/monitoramentos", request, &resp, "register monitoring")
	})
	if err != nil {
		return "", provider.WrapTemporary("escavador register monitoring", err)
	}
	if resp.ID.String() == "" {
		return "", errors.New("escavador register monitoring: empty id")
	}
	return resp.ID.String(), nil
}

func (c *Client) call(ctx context.Context, fn func(context.Context) error) error {
	return c.exec.Execute(ctx, Name, fn, resilience.ClassifyHTTPError)
}

func (c *Client) absolute(link string) string {
	link = strings.TrimSpace(link)
	if link == "" || strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://") {
		return link
	}
	return c.baseURL + "/" + strings.TrimLeft(link, "/")
}
