package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ProviderEscavador = "escavador"
	ProviderJudit     = "judit"
)

// ProviderConfig describes one external legal-data source. Name selects the
// adapter, so each provider appears at most once.
type ProviderConfig struct {
	Name         string        `yaml:"name"`
	BaseURL      string        `yaml:"base_url"`
	TrackingURL  string        `yaml:"tracking_url"`
	Credential   string        `yaml:"credential"`
	Timeout      time.Duration `yaml:"timeout"`
	Priority     int           `yaml:"priority"`
	Active       bool          `yaml:"active"`
	RateLimitRPS float64       `yaml:"rate_limit_rps"`
	RateBurst    int           `yaml:"rate_burst"`
	MaxPages     int           `yaml:"max_pages"`

	EstimatedMinutes int           `yaml:"estimated_minutes"`
	HotStorage       bool          `yaml:"hot_storage"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	PollMaxAttempts  int           `yaml:"poll_max_attempts"`

	WebhookScheme string `yaml:"webhook_scheme"`
	WebhookSecret string `yaml:"webhook_secret"`
}

type providersFile struct {
	Providers []ProviderConfig `yaml:"providers"`
}

// LoadProviders reads the provider list from path, expanding ${VAR}
// references so credentials can stay in the environment. An empty path keeps
// cfg.Providers untouched.
func LoadProviders(cfg *Config, path string) error {
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read providers file: %w", err)
	}
	providers, err := parseProviders([]byte(os.ExpandEnv(string(raw))))
	if err != nil {
		return fmt.Errorf("parse providers file %s: %w", path, err)
	}
	cfg.Providers = providers
	return nil
}

func parseProviders(raw []byte) ([]ProviderConfig, error) {
	var file providersFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(file.Providers))
	for i := range file.Providers {
		p := &file.Providers[i]
		p.Name = strings.ToLower(strings.TrimSpace(p.Name))
		if p.Name != ProviderEscavador && p.Name != ProviderJudit {
			return nil, fmt.Errorf("unknown provider %q", p.Name)
		}
		if p.BaseURL == "" {
			return nil, fmt.Errorf("provider %q: base_url is required", p.Name)
		}
		if _, dup := seen[p.Name]; dup {
			return nil, fmt.Errorf("provider %q declared twice", p.Name)
		}
		seen[p.Name] = struct{}{}
		if p.WebhookScheme == "" {
			p.WebhookScheme = defaultScheme(p.Name)
		}
	}
	return file.Providers, nil
}

func defaultScheme(name string) string {
	if name == ProviderJudit {
		return "hmac"
	}
	return "token"
}

func defaultProviders() []ProviderConfig {
	return []ProviderConfig{
		{
			Name:          ProviderEscavador,
			BaseURL:       mustEnv("ESCAVADOR_BASE_URL", "https://api.escavador.com"),
			Credential:    mustEnv("ESCAVADOR_TOKEN", ""),
			Timeout:       mustEnvDuration("ESCAVADOR_TIMEOUT", 30*time.Second),
			Priority:      mustEnvInt("ESCAVADOR_PRIORITY", 1),
			Active:        mustEnvBool("ESCAVADOR_ACTIVE", true),
			RateLimitRPS:  mustEnvFloat("ESCAVADOR_RATE_LIMIT_RPS", 5),
			RateBurst:     mustEnvInt("ESCAVADOR_RATE_BURST", 5),
			MaxPages:      mustEnvInt("ESCAVADOR_MAX_PAGES", 5),
			WebhookScheme: "token",
			WebhookSecret: mustEnv("ESCAVADOR_WEBHOOK_TOKEN", ""),
		},
		{
			Name:             ProviderJudit,
			BaseURL:          mustEnv("JUDIT_BASE_URL", "https://requests.prod.judit.io"),
			TrackingURL:      mustEnv("JUDIT_TRACKING_URL", "https://tracking.prod.judit.io"),
			Credential:       mustEnv("JUDIT_API_KEY", ""),
			Timeout:          mustEnvDuration("JUDIT_TIMEOUT", 30*time.Second),
			Priority:         mustEnvInt("JUDIT_PRIORITY", 2),
			Active:           mustEnvBool("JUDIT_ACTIVE", true),
			RateLimitRPS:     mustEnvFloat("JUDIT_RATE_LIMIT_RPS", 2),
			RateBurst:        mustEnvInt("JUDIT_RATE_BURST", 2),
			EstimatedMinutes: mustEnvInt("JUDIT_ESTIMATED_MINUTES", 5),
			HotStorage:       mustEnvBool("JUDIT_HOT_STORAGE", false),
			PollInterval:     mustEnvDuration("JUDIT_POLL_INTERVAL", 2*time.Second),
			PollMaxAttempts:  mustEnvInt("JUDIT_POLL_MAX_ATTEMPTS", 30),
			WebhookScheme:    "hmac",
			WebhookSecret:    mustEnv("JUDIT_WEBHOOK_SECRET", ""),
		},
	}
}
