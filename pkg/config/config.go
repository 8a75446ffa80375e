package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App    AppConfig
	Store  StoreConfig
	Remote RemoteConfig
	Sync   SyncConfig
	Status StatusConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Remote.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"QUEVENDI_APP_ENV" default:"prod"`
	TenantID     string `envconfig:"QUEVENDI_TENANT_ID" required:"true"`
	LogLevel     string `envconfig:"QUEVENDI_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"QUEVENDI_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// StoreConfig locates the per-tenant embedded databases.
type StoreConfig struct {
	Dir         string        `envconfig:"QUEVENDI_STORE_DIR" default:"./data"`
	BusyTimeout time.Duration `envconfig:"QUEVENDI_STORE_BUSY_TIMEOUT" default:"5s"`
}

// RemoteConfig points at the QueVendi server endpoints (§6 external interfaces).
type RemoteConfig struct {
	BaseURL   string        `envconfig:"QUEVENDI_REMOTE_BASE_URL" required:"true"`
	ProbePath string        `envconfig:"QUEVENDI_REMOTE_PROBE_PATH" default:"/health"`
	Timeout   time.Duration `envconfig:"QUEVENDI_REMOTE_TIMEOUT" default:"30s"`
}

func (r RemoteConfig) validate() error {
	if !strings.HasPrefix(r.BaseURL, "http://") && !strings.HasPrefix(r.BaseURL, "https://") {
		return fmt.Errorf("remote base URL must be absolute, got %q", r.BaseURL)
	}
	return nil
}

// ProbeURL returns the absolute health probe endpoint.
func (r RemoteConfig) ProbeURL() string {
	return strings.TrimSuffix(r.BaseURL, "/") + r.ProbePath
}

// SyncConfig carries every cadence of the offline subsystem. Defaults mirror
// the production client: faster probing while offline, a settle delay before
// draining, and a small pause between successive submissions.
type SyncConfig struct {
	ProbeInterval        time.Duration `envconfig:"QUEVENDI_PROBE_INTERVAL" default:"30s"`
	ProbeIntervalOffline time.Duration `envconfig:"QUEVENDI_PROBE_INTERVAL_OFFLINE" default:"10s"`
	ProbeTimeout         time.Duration `envconfig:"QUEVENDI_PROBE_TIMEOUT" default:"5s"`
	OfflineThreshold     int           `envconfig:"QUEVENDI_OFFLINE_THRESHOLD" default:"2"`
	SettleDelay          time.Duration `envconfig:"QUEVENDI_SETTLE_DELAY" default:"3s"`
	CatalogInterval      time.Duration `envconfig:"QUEVENDI_CATALOG_INTERVAL" default:"15m"`
	RetrySweepInterval   time.Duration `envconfig:"QUEVENDI_RETRY_SWEEP_INTERVAL" default:"60s"`
	SubmitPause          time.Duration `envconfig:"QUEVENDI_SUBMIT_PAUSE" default:"300ms"`
	RetryCeiling         int           `envconfig:"QUEVENDI_RETRY_CEILING" default:"5"`
	RetentionDays        int           `envconfig:"QUEVENDI_RETENTION_DAYS" default:"7"`
	MaintenanceInterval  time.Duration `envconfig:"QUEVENDI_MAINTENANCE_INTERVAL" default:"1h"`
}

// StatusConfig configures the local diagnostics HTTP server.
type StatusConfig struct {
	Addr string `envconfig:"QUEVENDI_STATUS_ADDR" default:"127.0.0.1:7420"`
}
