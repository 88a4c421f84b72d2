// Package config loads and validates the ingester configuration from a
// YAML file, with environment variable overrides.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/habr-tools/habr-ingest/pkg/logging"
)

// Pages is the inclusive identifier range to ingest.
type Pages struct {
	First int `mapstructure:"first"`
	Last  int `mapstructure:"last"`
}

// Save controls the output artifact and the skip policy.
type Save struct {
	// File is the artifact name without extension.
	File string `mapstructure:"file"`

	// Path is the output directory.
	Path string `mapstructure:"path"`

	// Extension selects the writer backend: json, csv, or parquet.
	Extension string `mapstructure:"extension"`

	// Skip drops every record whose status is not "ok".
	Skip bool `mapstructure:"skip"`
}

// ArtifactPath joins path, file, and extension.
func (s Save) ArtifactPath() string {
	return filepath.Join(s.Path, s.File+"."+s.Extension)
}

// Session tunes the shared HTTP transport.
type Session struct {
	// Limit caps total open connections.
	Limit int `mapstructure:"limit"`

	// LimitPerHost caps connections per host.
	LimitPerHost int `mapstructure:"limit_per_host"`

	// IdleConnTimeout is how long idle connections are kept for reuse.
	IdleConnTimeout time.Duration `mapstructure:"idle_conn_timeout"`

	// ForceClose disables connection reuse entirely.
	ForceClose bool `mapstructure:"force_close"`
}

// Request tunes fetch concurrency, retries, and pacing.
type Request struct {
	MaxConcurrentRequests int           `mapstructure:"max_concurrent_requests"`
	RetryAttempts         int           `mapstructure:"retry_attempts"`
	MinDelay              time.Duration `mapstructure:"min_delay"`
	MaxDelay              time.Duration `mapstructure:"max_delay"`
	BatchSize             int           `mapstructure:"batch_size"`
	BufferSize            int           `mapstructure:"buffer_size"`
	Timeout               time.Duration `mapstructure:"timeout"`
	Session               Session       `mapstructure:"session"`
}

// Headers holds the request headers sent with every fetch. Empty values
// are omitted.
type Headers struct {
	UserAgent      string `mapstructure:"user_agent"`
	Accept         string `mapstructure:"accept"`
	AcceptLanguage string `mapstructure:"accept_language"`
	AcceptEncoding string `mapstructure:"accept_encoding"`
	Connection     string `mapstructure:"connection"`
	Referer        string `mapstructure:"referer"`
}

// Build returns the non-empty headers as a map.
func (h Headers) Build() map[string]string {
	pairs := map[string]string{
		"User-Agent":      h.UserAgent,
		"Accept":          h.Accept,
		"Accept-Language": h.AcceptLanguage,
		"Accept-Encoding": h.AcceptEncoding,
		"Connection":      h.Connection,
		"Referer":         h.Referer,
	}
	out := make(map[string]string, len(pairs))
	for k, v := range pairs {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

// Logging configures the log sink.
type Logging struct {
	Level    string `mapstructure:"level"`
	Output   string `mapstructure:"output"`
	Filename string `mapstructure:"filename"`
}

// SinkConfig converts to the logging package config.
func (l Logging) SinkConfig() logging.Config {
	return logging.Config{
		Level:    logging.LogLevel(l.Level),
		Output:   logging.Output(l.Output),
		Filename: l.Filename,
	}
}

// Cache configures the optional redis page cache.
type Cache struct {
	Enabled bool          `mapstructure:"enabled"`
	Addr    string        `mapstructure:"addr"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// Metrics configures the optional prometheus listener.
type Metrics struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Config is the root configuration.
type Config struct {
	BaseURL string  `mapstructure:"base_url"`
	Pages   Pages   `mapstructure:"pages"`
	Save    Save    `mapstructure:"save"`
	Request Request `mapstructure:"request"`
	Headers Headers `mapstructure:"headers"`
	Logging Logging `mapstructure:"logging"`
	Cache   Cache   `mapstructure:"cache"`
	Metrics Metrics `mapstructure:"metrics"`
}

var allowedExtensions = map[string]bool{
	"json":    true,
	"csv":     true,
	"parquet": true,
}

// Validate enforces the numeric bounds the pipeline assumes.
func (c *Config) Validate() error {
	if c.Pages.First < 1 {
		return fmt.Errorf("pages.first must be >= 1 (got %d)", c.Pages.First)
	}
	if c.Pages.Last < c.Pages.First {
		return fmt.Errorf("pages.last (%d) cannot be less than pages.first (%d)", c.Pages.Last, c.Pages.First)
	}
	if !allowedExtensions[c.Save.Extension] {
		return fmt.Errorf("save.extension must be one of json, csv, parquet (got %q)", c.Save.Extension)
	}
	if c.Save.File == "" {
		return fmt.Errorf("save.file is required")
	}
	r := c.Request
	if r.MaxConcurrentRequests <= 0 {
		return fmt.Errorf("request.max_concurrent_requests must be > 0 (got %d)", r.MaxConcurrentRequests)
	}
	if r.RetryAttempts < 1 {
		return fmt.Errorf("request.retry_attempts must be >= 1 (got %d)", r.RetryAttempts)
	}
	if r.MinDelay <= 0 || r.MaxDelay <= 0 {
		return fmt.Errorf("request.min_delay and max_delay must be > 0")
	}
	if r.MinDelay > r.MaxDelay {
		return fmt.Errorf("request.min_delay (%v) cannot exceed max_delay (%v)", r.MinDelay, r.MaxDelay)
	}
	if r.BatchSize <= 0 {
		return fmt.Errorf("request.batch_size must be > 0 (got %d)", r.BatchSize)
	}
	if r.BufferSize <= 0 {
		return fmt.Errorf("request.buffer_size must be > 0 (got %d)", r.BufferSize)
	}
	if r.Timeout <= 0 {
		return fmt.Errorf("request.timeout must be > 0 (got %v)", r.Timeout)
	}
	if r.Session.Limit <= 0 || r.Session.LimitPerHost <= 0 {
		return fmt.Errorf("request.session.limit and limit_per_host must be > 0")
	}
	if c.Cache.Enabled && c.Cache.Addr == "" {
		return fmt.Errorf("cache.addr is required when cache.enabled is true")
	}
	return nil
}
