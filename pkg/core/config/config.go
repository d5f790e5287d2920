// Package config holds pipeline settings: defaults, file loading and env overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"filing_ingest/pkg/core/utils"
	"filing_ingest/pkg/models"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v2"
)

// Config is the resolved pipeline configuration.
type Config struct {
	// Upstream access
	UserAgent        string
	RequestSpacing   time.Duration
	HTTPTimeout      time.Duration
	MaxAttempts      int
	BackoffBase      time.Duration
	BackoffMax       time.Duration
	MinDocumentBytes int
	Lookback         int

	// Batch
	OutputDir   string
	Concurrency int
	Force       bool

	// Parsing heuristics
	WordsPerPage     int
	TOCThreshold     int
	WindowLines      int
	ExpectedSections []models.SectionName
	Vocabulary       VocabularyConfig

	DatabaseURL string
	LogLevel    string
}

// VocabularyConfig overrides the figure extractor's built-in vocabulary.
// Keys are breakdown axes: "product", "segment", "geography".
type VocabularyConfig struct {
	Anchors    map[string][]string `yaml:"anchors" json:"anchors" toml:"anchors"`
	Categories map[string][]string `yaml:"categories" json:"categories" toml:"categories"`
	Replace    bool                `yaml:"replace" json:"replace" toml:"replace"` // false = merge with defaults
}

// fileConfig mirrors Config with string durations so every format decodes the same way.
type fileConfig struct {
	UserAgent        string           `yaml:"user_agent" json:"user_agent" toml:"user_agent"`
	RequestSpacing   string           `yaml:"request_spacing" json:"request_spacing" toml:"request_spacing"`
	HTTPTimeout      string           `yaml:"http_timeout" json:"http_timeout" toml:"http_timeout"`
	MaxAttempts      int              `yaml:"max_attempts" json:"max_attempts" toml:"max_attempts"`
	BackoffBase      string           `yaml:"backoff_base" json:"backoff_base" toml:"backoff_base"`
	BackoffMax       string           `yaml:"backoff_max" json:"backoff_max" toml:"backoff_max"`
	MinDocumentBytes int              `yaml:"min_document_bytes" json:"min_document_bytes" toml:"min_document_bytes"`
	Lookback         int              `yaml:"lookback" json:"lookback" toml:"lookback"`
	OutputDir        string           `yaml:"output_dir" json:"output_dir" toml:"output_dir"`
	Concurrency      int              `yaml:"concurrency" json:"concurrency" toml:"concurrency"`
	Force            bool             `yaml:"force" json:"force" toml:"force"`
	WordsPerPage     int              `yaml:"words_per_page" json:"words_per_page" toml:"words_per_page"`
	TOCThreshold     int              `yaml:"toc_threshold" json:"toc_threshold" toml:"toc_threshold"`
	WindowLines      int              `yaml:"window_lines" json:"window_lines" toml:"window_lines"`
	ExpectedSections []string         `yaml:"expected_sections" json:"expected_sections" toml:"expected_sections"`
	Vocabulary       VocabularyConfig `yaml:"vocabulary" json:"vocabulary" toml:"vocabulary"`
	DatabaseURL      string           `yaml:"database_url" json:"database_url" toml:"database_url"`
	LogLevel         string           `yaml:"log_level" json:"log_level" toml:"log_level"`
}

// DefaultUserAgent identifies the pipeline to SEC EDGAR, which requires an
// application name and a contact address.
const DefaultUserAgent = "FilingIngest/1.0 (ops@filing-ingest.example)"

// Default returns the production defaults.
func Default() *Config {
	return &Config{
		UserAgent:        DefaultUserAgent,
		RequestSpacing:   100 * time.Millisecond,
		HTTPTimeout:      60 * time.Second,
		MaxAttempts:      3,
		BackoffBase:      500 * time.Millisecond,
		BackoffMax:       10 * time.Second,
		MinDocumentBytes: 512,
		Lookback:         3,
		OutputDir:        filepath.Join("data", "filings"),
		Concurrency:      4,
		WordsPerPage:     500,
		TOCThreshold:     400,
		WindowLines:      40,
		ExpectedSections: append([]models.SectionName(nil), models.DefaultExpectedSections...),
		LogLevel:         "info",
	}
}

// Load builds a Config from defaults, an optional file and the environment.
// The file format is picked by extension: .yaml/.yml, .hjson/.json, .toml.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		fc, err := decodeFile(path, data)
		if err != nil {
			return nil, err
		}
		if err := cfg.apply(fc); err != nil {
			return nil, fmt.Errorf("invalid config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func decodeFile(path string, data []byte) (*fileConfig, error) {
	var fc fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".hjson", ".json":
		// Hjson is a superset of JSON, so both go through the same path.
		standard, err := utils.ParseHJSON(string(data))
		if err != nil {
			return nil, fmt.Errorf("failed to parse HJSON config: %w", err)
		}
		if err := json.Unmarshal([]byte(standard), &fc); err != nil {
			return nil, fmt.Errorf("failed to decode HJSON config: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	return &fc, nil
}

func (c *Config) apply(fc *fileConfig) error {
	if fc.UserAgent != "" {
		c.UserAgent = fc.UserAgent
	}
	durations := []struct {
		raw string
		dst *time.Duration
		key string
	}{
		{fc.RequestSpacing, &c.RequestSpacing, "request_spacing"},
		{fc.HTTPTimeout, &c.HTTPTimeout, "http_timeout"},
		{fc.BackoffBase, &c.BackoffBase, "backoff_base"},
		{fc.BackoffMax, &c.BackoffMax, "backoff_max"},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = v
	}
	setInt(&c.MaxAttempts, fc.MaxAttempts)
	setInt(&c.MinDocumentBytes, fc.MinDocumentBytes)
	setInt(&c.Lookback, fc.Lookback)
	setInt(&c.Concurrency, fc.Concurrency)
	setInt(&c.WordsPerPage, fc.WordsPerPage)
	setInt(&c.TOCThreshold, fc.TOCThreshold)
	setInt(&c.WindowLines, fc.WindowLines)
	if fc.OutputDir != "" {
		c.OutputDir = fc.OutputDir
	}
	c.Force = c.Force || fc.Force
	if len(fc.ExpectedSections) > 0 {
		sections, err := ParseSections(fc.ExpectedSections)
		if err != nil {
			return err
		}
		c.ExpectedSections = sections
	}
	c.Vocabulary = fc.Vocabulary
	if fc.DatabaseURL != "" {
		c.DatabaseURL = fc.DatabaseURL
	}
	if fc.LogLevel != "" {
		c.LogLevel = fc.LogLevel
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("EDGAR_USER_AGENT"); v != "" {
		c.UserAgent = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("FILING_OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("REQUEST_SPACING"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("REQUEST_SPACING: %w", err)
		}
		c.RequestSpacing = d
	}
	if v := os.Getenv("FILING_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FILING_CONCURRENCY: %w", err)
		}
		c.Concurrency = n
	}
	if v := os.Getenv("FILING_FORCE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("FILING_FORCE: %w", err)
		}
		c.Force = b
	}
	return nil
}

// Validate rejects settings that would break the upstream usage policy or the batch.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.UserAgent) == "" {
		return fmt.Errorf("user agent is required by the SEC EDGAR usage policy")
	}
	if c.RequestSpacing <= 0 {
		return fmt.Errorf("request spacing must be positive, got %s", c.RequestSpacing)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http timeout must be positive, got %s", c.HTTPTimeout)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive, got %d", c.MaxAttempts)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive, got %d", c.Concurrency)
	}
	if c.Lookback <= 0 {
		return fmt.Errorf("lookback must be positive, got %d", c.Lookback)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output dir is required")
	}
	return nil
}

// ParseSections converts registry names or item labels ("7", "1A") to section names.
func ParseSections(values []string) ([]models.SectionName, error) {
	out := make([]models.SectionName, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if name := models.SectionName(strings.ToLower(v)); name.Valid() {
			out = append(out, name)
			continue
		}
		item := strings.TrimPrefix(strings.ToUpper(v), "ITEM")
		if def, ok := models.LookupItem(item); ok {
			out = append(out, def.Name)
			continue
		}
		return nil, fmt.Errorf("unknown section %q", v)
	}
	return out, nil
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}
