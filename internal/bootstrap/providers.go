package bootstrap

import (
	"log/slog"

	"github.com/kirillkom/legal-search-engine/internal/config"
	"github.com/kirillkom/legal-search-engine/internal/core/domain"
	"github.com/kirillkom/legal-search-engine/internal/core/usecase"
	"github.com/kirillkom/legal-search-engine/internal/infrastructure/provider/escavador"
	"github.com/kirillkom/legal-search-engine/internal/infrastructure/provider/judit"
	"github.com/kirillkom/legal-search-engine/internal/infrastructure/resilience"
)

// BuildProviders turns provider config into registry entries and webhook
// endpoints. Inactive providers still get an endpoint so callbacks for jobs
// they already accepted keep landing.
func BuildProviders(providers []config.ProviderConfig, executor *resilience.Executor) ([]usecase.RegistryEntry, []usecase.WebhookEndpoint) {
	entries := make([]usecase.RegistryEntry, 0, len(providers))
	endpoints := make([]usecase.WebhookEndpoint, 0, len(providers))

	for _, p := range providers {
		scheme := domain.WebhookAuthScheme(p.WebhookScheme)
		switch p.Name {
		case config.ProviderEscavador:
			client := escavador.New(escavador.Config{
				BaseURL:      p.BaseURL,
				Token:        p.Credential,
				Timeout:      p.Timeout,
				MaxPages:     p.MaxPages,
				RateLimitRPS: p.RateLimitRPS,
				RateBurst:    p.RateBurst,
			}, executor)
			entries = append(entries, usecase.RegistryEntry{Provider: client, Priority: p.Priority, Active: p.Active})
			endpoints = append(endpoints, usecase.WebhookEndpoint{Decoder: escavador.NewWebhookDecoder(), Scheme: scheme, Secret: p.WebhookSecret})
		case config.ProviderJudit:
			client := judit.New(judit.Config{
				BaseURL:          p.BaseURL,
				TrackingURL:      p.TrackingURL,
				APIKey:           p.Credential,
				Timeout:          p.Timeout,
				EstimatedMinutes: p.EstimatedMinutes,
				RateLimitRPS:     p.RateLimitRPS,
				RateBurst:        p.RateBurst,
				HotStorage:       p.HotStorage,
				PollInterval:     p.PollInterval,
				PollMaxAttempts:  p.PollMaxAttempts,
			}, executor)
			entries = append(entries, usecase.RegistryEntry{Provider: client, Priority: p.Priority, Active: p.Active})
			endpoints = append(endpoints, usecase.WebhookEndpoint{Decoder: judit.NewWebhookDecoder(), Scheme: scheme, Secret: p.WebhookSecret})
		default:
			slog.Warn("provider_skipped", "provider", p.Name, "reason", "no adapter")
			continue
		}
		if p.Active && p.Credential == "" {
			slog.Warn("provider_missing_credential", "provider", p.Name)
		}
	}
	return entries, endpoints
}
