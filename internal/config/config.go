// Package config loads the meeting-optimizer YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/boblangley/meeting-optimizer/internal/canceller"
)

// DefaultPath is the configuration file read when none is given.
const DefaultPath = "meeting-optimizer.yaml"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Retry configures backoff for Google API calls.
type Retry struct {
	Attempts  int           `yaml:"attempts"`
	BaseDelay time.Duration `yaml:"base_delay"`
	MaxDelay  time.Duration `yaml:"max_delay"`
}

// Limits bounds the work done per document and per event.
type Limits struct {
	MaxBlocks      int `yaml:"max_blocks"`
	MaxAttachments int `yaml:"max_attachments"`
	MaxURLLength   int `yaml:"max_url_length"`
	MaxDocIDLength int `yaml:"max_doc_id_length"`
}

// Config is the full configuration.
type Config struct {
	CalendarID      string `yaml:"calendar_id"`
	CredentialsPath string `yaml:"credentials_path"`
	TokenPath       string `yaml:"token_path"`
	LedgerPath      string `yaml:"ledger_path"`

	LogFile  string `yaml:"log_file"`
	LogLevel string `yaml:"log_level"`

	// Timezone overrides the calendar's timezone setting when set.
	Timezone string `yaml:"timezone"`

	CancellationNote string        `yaml:"cancellation_note"`
	APITimeout       time.Duration `yaml:"api_timeout"`
	Retry            Retry         `yaml:"retry"`
	Limits           Limits        `yaml:"limits"`

	// AgendaDir is the directory of local markdown agendas for watch.
	AgendaDir string `yaml:"agenda_dir"`

	DocsEndpoint string `yaml:"docs_endpoint"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		CalendarID:       "primary",
		CredentialsPath:  "credentials.json",
		TokenPath:        "token.json",
		LedgerPath:       ".meeting-optimizer/ledger.lbug",
		LogFile:          "optimizer.log",
		LogLevel:         "info",
		CancellationNote: canceller.DefaultNote,
		APITimeout:       30 * time.Second,
		Retry: Retry{
			Attempts:  3,
			BaseDelay: time.Second,
			MaxDelay:  15 * time.Second,
		},
		Limits: Limits{
			MaxBlocks:      10000,
			MaxAttachments: 50,
			MaxURLLength:   2048,
			MaxDocIDLength: 256,
		},
		DocsEndpoint: "https://docs.googleapis.com/",
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	// The note is compared against annotated descriptions verbatim.
	cfg.CancellationNote = strings.TrimSpace(cfg.CancellationNote)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	var problems []string

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("log_level %q is not one of debug, info, warn, error", c.LogLevel))
	}

	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			problems = append(problems, fmt.Sprintf("timezone %q: %v", c.Timezone, err))
		}
	}

	positive := []struct {
		key   string
		value int
	}{
		{"limits.max_blocks", c.Limits.MaxBlocks},
		{"limits.max_attachments", c.Limits.MaxAttachments},
		{"limits.max_url_length", c.Limits.MaxURLLength},
		{"limits.max_doc_id_length", c.Limits.MaxDocIDLength},
		{"retry.attempts", c.Retry.Attempts},
	}
	for _, p := range positive {
		if p.value <= 0 {
			problems = append(problems, fmt.Sprintf("%s must be positive", p.key))
		}
	}
	if c.APITimeout <= 0 {
		problems = append(problems, "api_timeout must be positive")
	}
	if strings.TrimSpace(c.CancellationNote) == "" {
		problems = append(problems, "cancellation_note must not be empty")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// Location returns the configured timezone, or nil when the calendar's
// setting should be used.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil
	}
	return loc
}
