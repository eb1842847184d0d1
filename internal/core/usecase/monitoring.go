package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/legal-search-engine/internal/core/domain"
	"github.com/kirillkom/legal-search-engine/internal/core/ports"
)

type activeProviders interface {
	Active() []ports.SearchProvider
}

// MonitoringRegistry manages per-user standing subscriptions. Alerts are
// written by the callback processor; this side only reads and acknowledges.
type MonitoringRegistry struct {
	repo      ports.MonitoringRepository
	processes ports.ProcessRepository
	providers activeProviders
	now       func() time.Time
}

func NewMonitoringRegistry(
	repo ports.MonitoringRepository,
	processes ports.ProcessRepository,
	providers activeProviders,
) *MonitoringRegistry {
	return &MonitoringRegistry{
		repo:      repo,
		processes: processes,
		providers: providers,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create subscribes the user to an identifier. Subscribing twice to the same
// identifier returns the existing monitoring.
func (r *MonitoringRegistry) Create(
	ctx context.Context,
	userID string,
	identifierType domain.IdentifierType,
	value string,
	frequency domain.MonitoringFrequency,
) (*domain.Monitoring, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "create monitoring", errors.New("user id is required"))
	}
	if frequency == "" {
		frequency = domain.FrequencyDaily
	}
	if !frequency.Valid() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "create monitoring", fmt.Errorf("unknown frequency %q", frequency))
	}
	identifier, err := domain.NormalizeIdentifier(identifierType, value)
	if err != nil {
		return nil, err
	}

	existing, err := r.repo.FindMonitoring(ctx, userID, identifier)
	if err == nil {
		return existing, nil
	}
	if !domain.IsKind(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("lookup monitoring: %w", err)
	}

	now := r.now()
	next := now.Add(frequency.Interval())
	m := &domain.Monitoring{
		ID:              uuid.NewString(),
		UserID:          userID,
		IdentifierType:  identifier.Type,
		IdentifierValue: identifier.Value,
		Frequency:       frequency,
		Status:          domain.MonitoringActive,
		NextCheckAt:     &next,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if identifier.Type == domain.IdentifierCaseNumber {
		m.CaseNumber = identifier.Value
	}
	r.register(ctx, m, identifier)

	if err := r.repo.CreateMonitoring(ctx, m); err != nil {
		return nil, fmt.Errorf("create monitoring: %w", err)
	}
	slog.InfoContext(ctx, "monitoring_created",
		"monitoring_id", m.ID,
		"user_id", userID,
		"identifier_type", string(identifier.Type),
		"provider", m.Provider,
		"status", string(m.Status),
	)
	return m, nil
}

// register asks the first capable provider to push events for the identifier.
// Without any capable provider the monitoring still matches by case number.
func (r *MonitoringRegistry) register(ctx context.Context, m *domain.Monitoring, identifier domain.Identifier) {
	if r.providers == nil {
		return
	}
	capable := 0
	for _, provider := range r.providers.Active() {
		mp, ok := provider.(ports.MonitoringProvider)
		if !ok {
			continue
		}
		capable++
		trackingID, err := mp.RegisterMonitoring(ctx, identifier, m.Frequency)
		if err != nil {
			slog.WarnContext(ctx, "monitoring_registration_failed",
				"provider", provider.Name(),
				"identifier_type", string(identifier.Type),
				"error", err,
			)
			continue
		}
		m.Provider = provider.Name()
		m.ProviderTrackingID = trackingID
		return
	}
	if capable > 0 {
		m.Status = domain.MonitoringError
	}
}

func (r *MonitoringRegistry) List(ctx context.Context, userID string) ([]domain.Monitoring, error) {
	items, err := r.repo.ListMonitorings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list monitorings: %w", err)
	}
	return items, nil
}

// SetStatus pauses or resumes a monitoring owned by the user.
// Get returns one of the user's monitorings with its linked process. A case
// number no provider has reported yet leaves Process nil.
func (r *MonitoringRegistry) Get(ctx context.Context, userID, monitoringID string) (*domain.MonitoringDetail, error) {
	m, err := r.owned(ctx, userID, monitoringID)
	if err != nil {
		return nil, err
	}
	detail := &domain.MonitoringDetail{Monitoring: *m}
	if m.CaseNumber == "" || r.processes == nil {
		return detail, nil
	}

	process, err := r.processes.GetByCaseNumber(ctx, m.CaseNumber)
	switch {
	case err == nil:
		detail.Process = process
	case !domain.IsKind(err, domain.ErrNotFound):
		return nil, fmt.Errorf("load monitored process: %w", err)
	}
	return detail, nil
}

func (r *MonitoringRegistry) SetStatus(ctx context.Context, userID, monitoringID string, status domain.MonitoringStatus) (*domain.Monitoring, error) {
	if status != domain.MonitoringActive && status != domain.MonitoringPaused {
		return nil, domain.WrapError(domain.ErrInvalidInput, "set monitoring status", fmt.Errorf("status %q cannot be set directly", status))
	}
	m, err := r.owned(ctx, userID, monitoringID)
	if err != nil {
		return nil, err
	}
	if m.Status == status {
		return m, nil
	}

	now := r.now()
	if err := r.repo.UpdateMonitoringStatus(ctx, m.ID, status, now); err != nil {
		return nil, fmt.Errorf("update monitoring status: %w", err)
	}
	m.Status = status
	m.UpdatedAt = now
	return m, nil
}

func (r *MonitoringRegistry) Alerts(ctx context.Context, userID, monitoringID string, unreadOnly bool) ([]domain.MonitoringAlert, error) {
	if _, err := r.owned(ctx, userID, monitoringID); err != nil {
		return nil, err
	}
	alerts, err := r.repo.ListAlerts(ctx, monitoringID, unreadOnly)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return alerts, nil
}

func (r *MonitoringRegistry) MarkAlertRead(ctx context.Context, userID, alertID string) error {
	if err := r.repo.MarkAlertRead(ctx, userID, alertID); err != nil {
		if domain.IsKind(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("mark alert read: %w", err)
	}
	return nil
}

func (r *MonitoringRegistry) owned(ctx context.Context, userID, monitoringID string) (*domain.Monitoring, error) {
	m, err := r.repo.GetMonitoring(ctx, monitoringID)
	if err != nil {
		return nil, err
	}
	if m.UserID != userID {
		return nil, domain.WrapError(domain.ErrNotFound, "get monitoring", fmt.Errorf("monitoring %s", monitoringID))
	}
	return m, nil
}
