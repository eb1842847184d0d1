package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kirillkom/legal-search-engine/internal/core/domain"
)

type memoryProcessRepo struct {
	mu        sync.Mutex
	byCase    map[string]domain.Process
	upserts   int
	upsertErr error
	getErr    error
}

func newMemoryProcessRepo() *memoryProcessRepo {
	return &memoryProcessRepo{byCase: make(map[string]domain.Process)}
}

func (r *memoryProcessRepo) UpsertProcesses(_ context.Context, processes []domain.Process) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.upsertErr != nil {
		return r.upsertErr
	}
	r.upserts++
	for _, p := range processes {
		if existing, ok := r.byCase[p.CaseNumber]; ok {
			existing.Merge(p)
			r.byCase[p.CaseNumber] = existing
			continue
		}
		r.byCase[p.CaseNumber] = p
	}
	return nil
}

func (r *memoryProcessRepo) GetByCaseNumber(_ context.Context, caseNumber string) (*domain.Process, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	p, ok := r.byCase[caseNumber]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get process", errors.New(caseNumber))
	}
	return &p, nil
}

func (r *memoryProcessRepo) FindFresh(_ context.Context, identifier domain.Identifier, since time.Time) ([]domain.Process, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Process, 0)
	for _, p := range r.byCase {
		if p.UpdatedAt.Before(since) {
			continue
		}
		match := p.CaseNumber == identifier.Value
		for _, id := range p.AssociatedIDs {
			if id == identifier.Value {
				match = true
			}
		}
		if match {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memoryProcessRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byCase)
}

type memoryCreditRepo struct {
	mu       sync.Mutex
	accounts map[string]domain.CreditAccount
	txs      []domain.CreditTransaction
	getCalls int
}

func newMemoryCreditRepo() *memoryCreditRepo {
	return &memoryCreditRepo{accounts: make(map[string]domain.CreditAccount)}
}

func (r *memoryCreditRepo) seed(userID string, balance int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[userID] = domain.CreditAccount{
		UserID:        userID,
		Balance:       decimal.NewFromInt(balance),
		CostPerCredit: decimal.RequireFromString("0.50"),
		Plan:          "basic",
	}
}

func (r *memoryCreditRepo) balance(userID string) decimal.Decimal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accounts[userID].Balance
}

func (r *memoryCreditRepo) transactions() []domain.CreditTransaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.CreditTransaction, len(r.txs))
	copy(out, r.txs)
	return out
}

func (r *memoryCreditRepo) GetAccount(_ context.Context, userID string) (*domain.CreditAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getCalls++
	account, ok := r.accounts[userID]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get account", errors.New(userID))
	}
	return &account, nil
}

func (r *memoryCreditRepo) ApplyMovement(_ context.Context, m domain.CreditMovement) (domain.CreditTransaction, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tx := range r.txs {
		if tx.Reference == m.Reference {
			return tx, false, nil
		}
	}

	account, ok := r.accounts[m.UserID]
	if m.Amount.IsNegative() {
		if !ok || account.Balance.LessThan(m.Amount.Neg()) {
			return domain.CreditTransaction{}, false, domain.WrapError(domain.ErrInsufficientCredits, "apply movement", errors.New(m.UserID))
		}
	}
	if !ok {
		account = domain.CreditAccount{UserID: m.UserID, Balance: decimal.Zero}
	}
	account.Balance = account.Balance.Add(m.Amount)
	account.UpdatedAt = m.CreatedAt
	r.accounts[m.UserID] = account

	tx := domain.CreditTransaction{
		ID:           m.TransactionID,
		UserID:       m.UserID,
		Amount:       m.Amount,
		Operation:    m.Operation,
		MonetaryCost: m.MonetaryCost,
		Description:  m.Description,
		Reference:    m.Reference,
		BalanceAfter: account.Balance,
		CreatedAt:    m.CreatedAt,
	}
	r.txs = append(r.txs, tx)
	return tx, true, nil
}

func (r *memoryCreditRepo) FindTransaction(_ context.Context, reference string) (*domain.CreditTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tx := range r.txs {
		if tx.Reference == reference {
			found := tx
			return &found, nil
		}
	}
	return nil, domain.WrapError(domain.ErrNotFound, "find transaction", errors.New(reference))
}

func (r *memoryCreditRepo) ListTransactions(_ context.Context, userID string, limit int) ([]domain.CreditTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.CreditTransaction, 0)
	for i := len(r.txs) - 1; i >= 0 && len(out) < limit; i-- {
		if r.txs[i].UserID == userID {
			out = append(out, r.txs[i])
		}
	}
	return out, nil
}

type memoryJobRepo struct {
	mu        sync.Mutex
	jobs      map[string]domain.AsyncSearchJob
	createErr error
}

func newMemoryJobRepo() *memoryJobRepo {
	return &memoryJobRepo{jobs: make(map[string]domain.AsyncSearchJob)}
}

func (r *memoryJobRepo) CreateJob(_ context.Context, job *domain.AsyncSearchJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.jobs[job.ID] = *job
	return nil
}

func (r *memoryJobRepo) GetJob(_ context.Context, id string) (*domain.AsyncSearchJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get job", errors.New(id))
	}
	return &job, nil
}

func (r *memoryJobRepo) GetJobByProviderRequest(_ context.Context, provider, requestID string) (*domain.AsyncSearchJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, job := range r.jobs {
		if job.Provider == provider && job.ProviderRequestID == requestID {
			found := job
			return &found, nil
		}
	}
	return nil, domain.WrapError(domain.ErrNotFound, "get job by request", errors.New(requestID))
}

func (r *memoryJobRepo) transition(id string, apply func(*domain.AsyncSearchJob)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok || job.Status.IsTerminal() {
		return false
	}
	apply(&job)
	r.jobs[id] = job
	return true
}

func (r *memoryJobRepo) MarkJobProcessing(_ context.Context, id string, at time.Time) (bool, error) {
	return r.transition(id, func(j *domain.AsyncSearchJob) {
		if j.Status == domain.JobStatusPending {
			j.Status = domain.JobStatusProcessing
			j.UpdatedAt = at
		}
	}), nil
}

func (r *memoryJobRepo) CompleteJob(_ context.Context, id string, resultCount int, at time.Time) (bool, error) {
	return r.transition(id, func(j *domain.AsyncSearchJob) {
		j.Status = domain.JobStatusCompleted
		j.ResultCount = resultCount
		j.UpdatedAt = at
		j.CompletedAt = &at
	}), nil
}

func (r *memoryJobRepo) FailJob(_ context.Context, id string, errMessage string, at time.Time) (bool, error) {
	return r.transition(id, func(j *domain.AsyncSearchJob) {
		j.Status = domain.JobStatusFailed
		j.ErrorMessage = errMessage
		j.UpdatedAt = at
		j.CompletedAt = &at
	}), nil
}

func (r *memoryJobRepo) ListOpenJobs(_ context.Context, createdBefore time.Time, limit int) ([]domain.AsyncSearchJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.AsyncSearchJob, 0)
	for _, job := range r.jobs {
		if !job.Status.IsTerminal() && job.CreatedAt.Before(createdBefore) {
			out = append(out, job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memoryMonitoringRepo struct {
	mu          sync.Mutex
	monitorings map[string]domain.Monitoring
	alerts      []domain.MonitoringAlert
}

func newMemoryMonitoringRepo() *memoryMonitoringRepo {
	return &memoryMonitoringRepo{monitorings: make(map[string]domain.Monitoring)}
}

func (r *memoryMonitoringRepo) CreateMonitoring(_ context.Context, m *domain.Monitoring) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.monitorings[m.ID] = *m
	return nil
}

func (r *memoryMonitoringRepo) GetMonitoring(_ context.Context, id string) (*domain.Monitoring, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.monitorings[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get monitoring", errors.New(id))
	}
	return &m, nil
}

func (r *memoryMonitoringRepo) FindMonitoring(_ context.Context, userID string, identifier domain.Identifier) (*domain.Monitoring, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.monitorings {
		if m.UserID == userID && m.IdentifierType == identifier.Type && m.IdentifierValue == identifier.Value {
			found := m
			return &found, nil
		}
	}
	return nil, domain.WrapError(domain.ErrNotFound, "find monitoring", errors.New(identifier.String()))
}

func (r *memoryMonitoringRepo) FindByTrackingID(_ context.Context, provider, trackingID string) (*domain.Monitoring, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.monitorings {
		if m.Provider == provider && m.ProviderTrackingID == trackingID {
			found := m
			return &found, nil
		}
	}
	return nil, domain.WrapError(domain.ErrNotFound, "find by tracking id", errors.New(trackingID))
}

func (r *memoryMonitoringRepo) ListActiveByCaseNumber(_ context.Context, caseNumber string) ([]domain.Monitoring, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Monitoring, 0)
	for _, m := range r.monitorings {
		if m.CaseNumber == caseNumber && m.Status == domain.MonitoringActive {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryMonitoringRepo) ListMonitorings(_ context.Context, userID string) ([]domain.Monitoring, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Monitoring, 0)
	for _, m := range r.monitorings {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memoryMonitoringRepo) UpdateMonitoringStatus(_ context.Context, id string, status domain.MonitoringStatus, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.monitorings[id]
	if !ok {
		return domain.WrapError(domain.ErrNotFound, "update monitoring", errors.New(id))
	}
	m.Status = status
	m.UpdatedAt = at
	r.monitorings[id] = m
	return nil
}

func (r *memoryMonitoringRepo) RecordAlert(_ context.Context, alert *domain.MonitoringAlert, checkedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.alerts {
		if existing.MonitoringID == alert.MonitoringID && existing.DedupeKey == alert.DedupeKey {
			return false, nil
		}
	}
	r.alerts = append(r.alerts, *alert)
	m := r.monitorings[alert.MonitoringID]
	m.AlertsCount++
	m.LastCheckedAt = &checkedAt
	r.monitorings[alert.MonitoringID] = m
	return true, nil
}

func (r *memoryMonitoringRepo) ListAlerts(_ context.Context, monitoringID string, unreadOnly bool) ([]domain.MonitoringAlert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.MonitoringAlert, 0)
	for _, a := range r.alerts {
		if a.MonitoringID == monitoringID && (!unreadOnly || a.Unread) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memoryMonitoringRepo) MarkAlertRead(_ context.Context, userID, alertID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.alerts {
		if r.alerts[i].ID == alertID && r.alerts[i].UserID == userID {
			r.alerts[i].Unread = false
			return nil
		}
	}
	return domain.WrapError(domain.ErrNotFound, "mark alert read", errors.New(alertID))
}

func (r *memoryMonitoringRepo) alertCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

type memoryCallbackLogRepo struct {
	mu        sync.Mutex
	logs      map[string]domain.CallbackLog
	statuses  []domain.CallbackStatus
	createErr error
	updateErr error
}

func newMemoryCallbackLogRepo() *memoryCallbackLogRepo {
	return &memoryCallbackLogRepo{logs: make(map[string]domain.CallbackLog)}
}

func (r *memoryCallbackLogRepo) CreateCallbackLog(_ context.Context, entry *domain.CallbackLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.logs[entry.ID] = *entry
	r.statuses = append(r.statuses, entry.Status)
	return nil
}

func (r *memoryCallbackLogRepo) UpdateCallbackLog(_ context.Context, entry *domain.CallbackLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	existing, ok := r.logs[entry.ID]
	if !ok {
		return fmt.Errorf("callback log %s missing", entry.ID)
	}
	updated := *entry
	updated.Valid = existing.Valid
	r.logs[entry.ID] = updated
	r.statuses = append(r.statuses, entry.Status)
	return nil
}

func (r *memoryCallbackLogRepo) get(id string) domain.CallbackLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.logs[id]
}

func (r *memoryCallbackLogRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.logs)
}

type memoryHistoryRepo struct {
	mu      sync.Mutex
	entries []domain.SearchHistory
	err     error
}

func (r *memoryHistoryRepo) CreateHistory(_ context.Context, entry *domain.SearchHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *memoryHistoryRepo) ListHistory(_ context.Context, userID string, limit int) ([]domain.SearchHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.SearchHistory, 0)
	for _, e := range r.entries {
		if e.UserID == userID && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memoryHistoryRepo) all() []domain.SearchHistory {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.SearchHistory, len(r.entries))
	copy(out, r.entries)
	return out
}

type memoryNotificationRepo struct {
	mu    sync.Mutex
	items []domain.Notification
}

func (r *memoryNotificationRepo) CreateNotification(_ context.Context, n *domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, *n)
	return nil
}

func (r *memoryNotificationRepo) ListNotifications(_ context.Context, userID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Notification, 0)
	for _, n := range r.items {
		if n.UserID == userID && (!unreadOnly || !n.Read) && len(out) < limit {
			out = append(out, n)
		}
	}
	return out, nil
}

func (r *memoryNotificationRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

type publisherFake struct {
	published []domain.Notification
	err       error
}

func (p *publisherFake) PublishNotification(_ context.Context, n domain.Notification) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, n)
	return nil
}

type providerFake struct {
	mu          sync.Mutex
	name        string
	results     []domain.ProviderResult
	calls       int
	status      domain.ProviderJobStatus
	statusErr   error
	statusCalls int
	trackingID  string
	registerErr error
	onSearch    func()
}

func (p *providerFake) Name() string { return p.name }

func (p *providerFake) Search(context.Context, domain.Identifier) domain.ProviderResult {
	if p.onSearch != nil {
		p.onSearch()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := p.calls
	p.calls++
	if len(p.results) == 0 {
		return domain.ProviderResult{Outcome: domain.OutcomeEmptyResult}
	}
	if idx >= len(p.results) {
		idx = len(p.results) - 1
	}
	return p.results[idx]
}

func (p *providerFake) JobStatus(context.Context, string) (domain.ProviderJobStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statusCalls++
	return p.status, p.statusErr
}

func (p *providerFake) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type monitoringProviderFake struct {
	providerFake
}

func (p *monitoringProviderFake) RegisterMonitoring(context.Context, domain.Identifier, domain.MonitoringFrequency) (string, error) {
	if p.registerErr != nil {
		return "", p.registerErr
	}
	return p.trackingID, nil
}

type decoderFake struct {
	provider string
	creds    domain.WebhookCredentials
	event    domain.CallbackEvent
	err      error
}

func (d *decoderFake) Provider() string { return d.provider }

func (d *decoderFake) Credentials([]byte, http.Header) domain.WebhookCredentials { return d.creds }

func (d *decoderFake) Decode([]byte) (domain.CallbackEvent, error) {
	if d.err != nil {
		return domain.CallbackEvent{}, d.err
	}
	return d.event, nil
}

type deduperFake struct {
	seen       map[string]bool
	remembered []string
}

func (d *deduperFake) Seen(_ context.Context, key string) (bool, error) {
	return d.seen[key], nil
}

func (d *deduperFake) Remember(_ context.Context, key string) error {
	if d.seen == nil {
		d.seen = make(map[string]bool)
	}
	d.seen[key] = true
	d.remembered = append(d.remembered, key)
	return nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func sampleProcess(caseNumber string) domain.Process {
	return domain.Process{
		CaseNumber: caseNumber,
		CourtName:  "TJSP",
		Status:     "active",
		Parties: []domain.Party{
			{Name: "Maria Silva", Side: domain.PartySideAuthor},
			{Name: "Acme Ltda", Side: domain.PartySideDefendant},
		},
	}
}
