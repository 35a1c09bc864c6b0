// Package config loads and validates the run configuration: source
// patterns, cache and bundle behavior, gate thresholds, graph and diagram
// options, and retention policy. Config files are YAML with
// ${VAR:-default} environment substitution applied before parsing.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/c360studio/codetrail/internal/runerr"
)

// Thresholds holds the gate thresholds evaluated against a run's metrics.
// A nil field means that threshold is not evaluated and never affects the
// overall verdict.
type Thresholds struct {
	MinCoverage      *float64 `yaml:"min_coverage" validate:"omitempty,gte=0,lte=100"`
	MaxFailedTests   *int     `yaml:"max_failed_tests" validate:"omitempty,gte=0"`
	MaxLintWarnings  *int     `yaml:"max_lint_warnings" validate:"omitempty,gte=0"`
	MaxCriticalVulns *int     `yaml:"max_critical_vulnerabilities" validate:"omitempty,gte=0"`
}

// BundleOptions controls the bundle builder's splitting budgets.
type BundleOptions struct {
	Presets     []string `yaml:"presets" validate:"dive,oneof=all api tests dependencies"`
	MaxBytes    int64    `yaml:"max_bytes" validate:"gt=0"`
	MaxLines    int      `yaml:"max_lines" validate:"gt=0"`
	LicenseHint string   `yaml:"license_hint"`
}

// GraphOptions controls knowledge-graph construction and diffing.
type GraphOptions struct {
	Enabled bool   `yaml:"enabled"`
	Scope   string `yaml:"scope" validate:"omitempty,oneof=full code dependencies tests"`
	NoTests bool   `yaml:"no_tests"`
	Diff    bool   `yaml:"diff"`
}

// DiagramOptions controls diagram generation.
type DiagramOptions struct {
	Enabled     bool     `yaml:"enabled"`
	Presets     []string `yaml:"presets" validate:"dive,oneof=architecture dependencies tests"`
	Format      string   `yaml:"format" validate:"omitempty,oneof=mermaid plantuml graphviz"`
	Theme       string   `yaml:"theme" validate:"omitempty,oneof=light dark auto"`
	Concurrency int      `yaml:"concurrency" validate:"gte=0"`
}

// Config is the fully resolved run configuration.
type Config struct {
	Input           string         `yaml:"input" validate:"required"`
	OutputDir       string         `yaml:"output_dir" validate:"required"`
	CacheDir        string         `yaml:"cache_dir" validate:"required"`
	MetricsFiles    []string       `yaml:"metrics_files"`
	Include         []string       `yaml:"include"`
	Ignore          []string       `yaml:"ignore"`
	Workers         int            `yaml:"workers" validate:"gte=0"`
	StageTimeoutSec int            `yaml:"stage_timeout_seconds" validate:"gte=0"`
	ForceRebuild    bool           `yaml:"force_rebuild"`
	NoIncremental   bool           `yaml:"no_incremental"`
	AllowNetwork    bool           `yaml:"allow_network"`
	RetentionCount  int            `yaml:"retention_count" validate:"gte=0"`
	Thresholds      Thresholds     `yaml:"thresholds"`
	Bundle          BundleOptions  `yaml:"bundle"`
	Graph           GraphOptions   `yaml:"graph"`
	Diagram         DiagramOptions `yaml:"diagram"`
	ConfigVersion   string         `yaml:"config_version" validate:"required"`
}

// Default returns a Config populated with the documented defaults.
func Default() *Config {
	return &Config{
		Input:          ".",
		OutputDir:      "runs",
		CacheDir:       ".codetrail-cache",
		Workers:        4,
		RetentionCount: 10,
		ConfigVersion:  "1",
		Bundle: BundleOptions{
			Presets:  []string{"all"},
			MaxBytes: 1 << 20,
			MaxLines: 20000,
		},
		Graph: GraphOptions{
			Enabled: true,
			Scope:   "full",
			Diff:    true,
		},
		Diagram: DiagramOptions{
			Enabled:     true,
			Presets:     []string{"architecture"},
			Format:      "mermaid",
			Theme:       "light",
			Concurrency: 4,
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads and validates the config file at path, applying environment
// substitution before YAML parsing. Unknown top-level fields are rejected.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, runerr.Config("E_CONFIG_READ", "failed to read config file", err)
	}

	expanded := ExpandEnv(string(raw))

	cfg := Default()
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, runerr.Config("E_CONFIG_PARSE", "failed to parse config file", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks struct tags and cross-field invariants, returning a
// classified ConfigError on failure.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return runerr.Config("E_CONFIG_INVALID", "config failed validation", err)
	}

	if c.Diagram.Enabled && c.Diagram.Concurrency == 0 {
		return runerr.Config("E_CONFIG_INVALID", "diagram.concurrency must be positive when diagrams are enabled", nil)
	}

	if c.Bundle.MaxBytes <= 0 || c.Bundle.MaxLines <= 0 {
		return runerr.Config("E_CONFIG_INVALID", "bundle budgets must be positive", nil)
	}

	for _, p := range c.Include {
		if p == "" {
			return runerr.Config("E_CONFIG_INVALID", "include patterns must be non-empty", nil)
		}
	}

	if c.AllowNetwork {
		return runerr.Config("E_CONFIG_INVALID", "allow_network is reserved for future use and must remain false", nil)
	}

	return nil
}

// String renders a compact human summary, used in startup log lines.
func (c *Config) String() string {
	return fmt.Sprintf("input=%s presets=%v graph=%v diagrams=%v retention=%d",
		c.Input, c.Bundle.Presets, c.Graph.Enabled, c.Diagram.Enabled, c.RetentionCount)
}
