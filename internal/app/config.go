package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/graaaaa/eventhub/internal/config"
)

// ConfigUsecase defines the configuration management use case.
type ConfigUsecase interface {
	// GetConfig returns the current configuration.
	GetConfig(ctx context.Context) ConfigResponse

	// UpdateConfig updates the configuration with the given changes.
	// Changes are written to disk and take effect on the next start.
	UpdateConfig(ctx context.Context, req ConfigUpdateRequest) (ConfigUpdateResponse, error)
}

// ConnectorStatus summarizes one configured connector.
type ConnectorStatus struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Enabled bool   `json:"enabled"`
}

// ConfigResponse represents the current configuration (excludes secret values).
type ConfigResponse struct {
	Host              string            `json:"host"`
	Port              int               `json:"port"`
	LogLevel          string            `json:"log_level"`
	DocumentDriver    string            `json:"document_driver"`
	SyncInterval      string            `json:"sync_interval"`
	SyncOnStart       bool              `json:"sync_on_start"`
	StatisticsEnabled bool              `json:"statistics_enabled"`
	Connectors        []ConnectorStatus `json:"connectors"`
	MongoConfigured   bool              `json:"mongo_configured"`
	AlertsConfigured  bool              `json:"alerts_configured"`
	AlertsOnSuccess   bool              `json:"alerts_on_success"`
}

// ConfigUpdateRequest contains optional fields for updating configuration.
type ConfigUpdateRequest struct {
	Port              *int            `json:"port,omitempty"`
	LogLevel          *string         `json:"log_level,omitempty"`
	SyncInterval      *string         `json:"sync_interval,omitempty"`
	SyncOnStart       *bool           `json:"sync_on_start,omitempty"`
	StatisticsEnabled *bool           `json:"statistics_enabled,omitempty"`
	Connectors        map[string]bool `json:"connectors,omitempty"` // name -> enabled
	MongoURI          *string         `json:"mongo_uri,omitempty"`
	AlertWebhookURL   *string         `json:"alert_webhook_url,omitempty"`
	AlertsOnSuccess   *bool           `json:"alerts_on_success,omitempty"`
}

// ConfigUpdateResponse indicates the result of a configuration update.
type ConfigUpdateResponse struct {
	Success         bool `json:"success"`
	RestartRequired bool `json:"restart_required"`
	NewPort         int  `json:"new_port,omitempty"`
}

// ConfigService implements ConfigUsecase on the files under Paths.
type ConfigService struct {
	Paths config.Paths
}

// GetConfig returns the configuration as stored on disk.
func (s ConfigService) GetConfig(ctx context.Context) ConfigResponse {
	cfg, _ := config.LoadConfigFrom(s.Paths.Config())
	sec, _, _ := config.LoadSecretsFrom(s.Paths.Secrets())

	conns := make([]ConnectorStatus, 0, len(cfg.Connectors))
	for _, c := range cfg.Connectors {
		conns = append(conns, ConnectorStatus{Name: c.Name, Type: c.Type, Enabled: !c.Disabled})
	}

	return ConfigResponse{
		Host:              cfg.Host,
		Port:              cfg.Port,
		LogLevel:          cfg.LogLevel,
		DocumentDriver:    cfg.DocumentDriver,
		SyncInterval:      cfg.SyncInterval.String(),
		SyncOnStart:       cfg.SyncOnStart,
		StatisticsEnabled: cfg.Statistics.Enabled,
		Connectors:        conns,
		MongoConfigured:   !sec.MongoURI.IsEmpty(),
		AlertsConfigured:  !sec.AlertWebhookURL.IsEmpty(),
		AlertsOnSuccess:   cfg.Alerts.OnSuccess,
	}
}

// UpdateConfig validates and persists the requested changes.
func (s ConfigService) UpdateConfig(ctx context.Context, req ConfigUpdateRequest) (ConfigUpdateResponse, error) {
	cfg, err := config.LoadConfigFrom(s.Paths.Config())
	if err != nil {
		return ConfigUpdateResponse{}, fmt.Errorf("load config: %w", err)
	}

	sec, status, err := config.LoadSecretsFrom(s.Paths.Secrets())
	if err != nil && status == config.SecretsFallback {
		return ConfigUpdateResponse{}, fmt.Errorf("load secrets: %w", err)
	}

	originalPort := cfg.Port
	configChanged := false
	secretsChanged := false

	if req.Port != nil {
		if *req.Port < 1 || *req.Port > 65535 {
			return ConfigUpdateResponse{}, fmt.Errorf("%w: port must be between 1 and 65535", ErrInvalidInput)
		}
		cfg.Port = *req.Port
		configChanged = true
	}
	if req.LogLevel != nil {
		switch *req.LogLevel {
		case "debug", "info", "warn", "error":
		default:
			return ConfigUpdateResponse{}, fmt.Errorf("%w: unknown log_level %q", ErrInvalidInput, *req.LogLevel)
		}
		cfg.LogLevel = *req.LogLevel
		configChanged = true
	}
	if req.SyncInterval != nil {
		d, err := time.ParseDuration(*req.SyncInterval)
		if err != nil || d < 0 {
			return ConfigUpdateResponse{}, fmt.Errorf("%w: invalid sync_interval %q", ErrInvalidInput, *req.SyncInterval)
		}
		cfg.SyncInterval = d
		configChanged = true
	}
	if req.SyncOnStart != nil {
		cfg.SyncOnStart = *req.SyncOnStart
		configChanged = true
	}
	if req.StatisticsEnabled != nil {
		cfg.Statistics.Enabled = *req.StatisticsEnabled
		configChanged = true
	}
	if req.AlertsOnSuccess != nil {
		cfg.Alerts.OnSuccess = *req.AlertsOnSuccess
		configChanged = true
	}
	for name, enabled := range req.Connectors {
		i := connectorIndex(cfg, name)
		if i < 0 {
			return ConfigUpdateResponse{}, fmt.Errorf("%w: unknown connector %q", ErrInvalidInput, name)
		}
		cfg.Connectors[i].Disabled = !enabled
		configChanged = true
	}

	if req.MongoURI != nil {
		sec.MongoURI = config.Secret(*req.MongoURI)
		secretsChanged = true
	}
	if req.AlertWebhookURL != nil {
		u := strings.TrimSpace(*req.AlertWebhookURL)
		if u != "" && !strings.HasPrefix(u, "https://") {
			return ConfigUpdateResponse{}, fmt.Errorf("%w: alert_webhook_url must use https", ErrInvalidInput)
		}
		sec.AlertWebhookURL = config.Secret(u)
		secretsChanged = true
	}

	if configChanged {
		if err := config.SaveConfigTo(cfg, s.Paths.Config()); err != nil {
			return ConfigUpdateResponse{}, fmt.Errorf("save config: %w", err)
		}
	}
	if secretsChanged {
		if err := config.SaveSecretsTo(sec, s.Paths.Secrets()); err != nil {
			return ConfigUpdateResponse{}, fmt.Errorf("save secrets: %w", err)
		}
	}

	resp := ConfigUpdateResponse{
		Success:         true,
		RestartRequired: configChanged || secretsChanged,
	}
	if cfg.Port != originalPort {
		resp.NewPort = cfg.Port
	}
	return resp, nil
}

func connectorIndex(cfg config.Config, name string) int {
	for i, c := range cfg.Connectors {
		if c.Name == name {
			return i
		}
	}
	return -1
}
