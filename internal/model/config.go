package model

import (
	"time"
)

const (
	ServiceModeManual = "manual"
	ServiceModeTimer  = "timer"

	// DefaultTimeout bounds a single fetcher execution unless overridden
	// by config or the FETCHER_TIMEOUT environment variable.
	DefaultTimeout = 300 * time.Second
)

// Config is the process configuration, loaded once at startup from
// gatherer.yaml (if present) with environment overrides. The multiplication
// groups (GITLAB_PROJECT_<n>_*, AWS_REGION_<n>_*) are not part of this
// file; they come from the environment snapshot and are parsed by the
// expand package.
type Config struct {
	// Catalog is the path of the evidence fetchers catalog JSON.
	Catalog string `mapstructure:"catalog" yaml:"catalog"`
	// Fetchers is the base directory catalog script paths resolve
	// against.
	Fetchers string `mapstructure:"fetchers" yaml:"fetchers"`
	// EvidenceRoot holds one timestamped directory per run.
	EvidenceRoot string `mapstructure:"evidence_root" yaml:"evidence_root"`
	// Timeout bounds each fetcher execution.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// Workers bounds parallel fetcher executions. 0 or 1 keeps the
	// strictly sequential behavior.
	Workers int `mapstructure:"workers" yaml:"workers"`

	Service Service `mapstructure:"service" yaml:"service"`
}

// Service controls run mode, logging and summary publication.
type Service struct {
	Mode     string         `mapstructure:"mode" yaml:"mode"` // "manual" | "timer"
	Verbose  bool           `mapstructure:"verbose" yaml:"verbose"`
	Schedule *TimerSchedule `mapstructure:"schedule" yaml:"schedule,omitempty"`
	// Dir receives a copy of each run's summary, in addition to the
	// evidence directory itself.
	Dir        string      `mapstructure:"dir" yaml:"dir,omitempty"`
	Repository *Repository `mapstructure:"repository" yaml:"repository,omitempty"`
}

// TimerSchedule configures timer mode. Exactly one of Cron (5-field
// expression) or Every must be set.
type TimerSchedule struct {
	Cron  string        `mapstructure:"cron" yaml:"cron,omitempty"`
	Every time.Duration `mapstructure:"every" yaml:"every,omitempty"`
}

// Repository is the evidence-tracking service receiving run summaries.
type Repository struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	URL     string `mapstructure:"url" yaml:"url"`
	Token   string `mapstructure:"token" yaml:"token,omitempty"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() Config {
	return Config{
		Catalog:      "evidence_fetchers_catalog.json",
		Fetchers:     "fetchers",
		EvidenceRoot: "evidence",
		Timeout:      DefaultTimeout,
		Workers:      1,
		Service: Service{
			Mode: ServiceModeManual,
		},
	}
}
