// Package config loads pdfmerge settings from TOML files and PDFMERGE_*
// environment variables.
package config

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/benedoc-inc/pdfmerge/core/merge"
	"github.com/benedoc-inc/pdfmerge/core/source"
	"github.com/benedoc-inc/pdfmerge/internal/logger"
	"github.com/benedoc-inc/pdfmerge/internal/render"
)

// Config represents the main pdfmerge configuration
type Config struct {
	Server ServerConfig  `mapstructure:"server" toml:"server"`
	Render RenderConfig  `mapstructure:"render" toml:"render"`
	Fetch  FetchConfig   `mapstructure:"fetch" toml:"fetch"`
	Store  StoreConfig   `mapstructure:"store" toml:"store"`
	Log    logger.Config `mapstructure:"log" toml:"log"`
	Output OutputConfig  `mapstructure:"output" toml:"output"`
}

// ServerConfig holds HTTP service configuration
type ServerConfig struct {
	Addr              string  `mapstructure:"addr" toml:"addr"`
	APIKey            string  `mapstructure:"api_key" toml:"api_key"`
	ReadTimeout       int     `mapstructure:"read_timeout" toml:"read_timeout"`         // seconds
	WriteTimeout      int     `mapstructure:"write_timeout" toml:"write_timeout"`       // seconds
	ShutdownTimeout   int     `mapstructure:"shutdown_timeout" toml:"shutdown_timeout"` // seconds
	RateLimit         float64 `mapstructure:"rate_limit" toml:"rate_limit"`             // requests per second, 0 = unlimited
	Burst             int     `mapstructure:"burst" toml:"burst"`
	MaxBodyBytes      int64   `mapstructure:"max_body_bytes" toml:"max_body_bytes"`
	RenderConcurrency int     `mapstructure:"render_concurrency" toml:"render_concurrency"`
}

// RenderConfig holds browser configuration and default print settings
type RenderConfig struct {
	BrowserBin string          `mapstructure:"browser_bin" toml:"browser_bin"`
	ControlURL string          `mapstructure:"control_url" toml:"control_url"`
	Headless   bool            `mapstructure:"headless" toml:"headless"`
	NoSandbox  bool            `mapstructure:"no_sandbox" toml:"no_sandbox"`
	Timeout    int             `mapstructure:"timeout" toml:"timeout"` // seconds
	Defaults   render.Settings `mapstructure:"defaults" toml:"defaults"`
}

// FetchConfig holds settings for URL sources
type FetchConfig struct {
	Timeout         int     `mapstructure:"timeout" toml:"timeout"` // seconds
	MaxBytes        int64   `mapstructure:"max_bytes" toml:"max_bytes"`
	Rate            float64 `mapstructure:"rate" toml:"rate"` // requests per second, 0 = unlimited
	Burst           int     `mapstructure:"burst" toml:"burst"`
	UserAgent       string  `mapstructure:"user_agent" toml:"user_agent"`
	AllowLocalFiles bool    `mapstructure:"allow_local_files" toml:"allow_local_files"`
}

// StoreConfig holds artifact store configuration
type StoreConfig struct {
	Enabled       bool   `mapstructure:"enabled" toml:"enabled"`
	Path          string `mapstructure:"path" toml:"path"`
	Retention     int    `mapstructure:"retention" toml:"retention"` // hours
	PruneSchedule string `mapstructure:"prune_schedule" toml:"prune_schedule"`
}

// OutputConfig selects the serialization format
type OutputConfig struct {
	ObjectStreams bool `mapstructure:"object_streams" toml:"object_streams"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              "127.0.0.1:8080",
			ReadTimeout:       30,
			WriteTimeout:      120,
			ShutdownTimeout:   15,
			RateLimit:         5,
			Burst:             10,
			MaxBodyBytes:      4 << 20,
			RenderConcurrency: 4,
		},
		Render: RenderConfig{
			Headless:  true,
			NoSandbox: true,
			Timeout:   60,
			Defaults: render.Settings{
				Format:          "Letter",
				Scale:           1,
				PrintBackground: true,
			},
		},
		Fetch: FetchConfig{
			Timeout:         30,
			MaxBytes:        100 << 20,
			Rate:            10,
			Burst:           20,
			UserAgent:       "pdfmerge",
			AllowLocalFiles: true,
		},
		Store: StoreConfig{
			Enabled:       false,
			Path:          "pdfmerge-data/artifacts.db",
			Retention:     24,
			PruneSchedule: "@hourly",
		},
		Log: logger.DefaultConfig(),
	}
}

// Chrome returns the renderer configuration
func (c *Config) Chrome() render.ChromeConfig {
	return render.ChromeConfig{
		Bin:        c.Render.BrowserBin,
		ControlURL: c.Render.ControlURL,
		Headless:   c.Render.Headless,
		NoSandbox:  c.Render.NoSandbox,
		Timeout:    c.Render.Timeout,
	}
}

// SourceOptions builds resolver options from the fetch section
func (c *Config) SourceOptions(logger zerolog.Logger) source.Options {
	fc := source.FetchConfig{
		Timeout:           time.Duration(c.Fetch.Timeout) * time.Second,
		RequestsPerSecond: c.Fetch.Rate,
		BurstSize:         c.Fetch.Burst,
		MaxBytes:          c.Fetch.MaxBytes,
		UserAgent:         c.Fetch.UserAgent,
	}
	return source.Options{
		AllowLocalFiles: c.Fetch.AllowLocalFiles,
		Fetch:           source.NewHTTPFetcher(fc, nil, logger.With().Str("component", "fetch").Logger()),
		MaxBytes:        c.Fetch.MaxBytes,
	}
}

// SaveOptions returns the merge serialization options
func (c *Config) SaveOptions() merge.SaveOptions {
	return merge.SaveOptions{
		UseObjectStreams: c.Output.ObjectStreams,
		UseXRefStream:    c.Output.ObjectStreams,
	}
}

// RetentionDuration returns the artifact retention as a duration
func (s StoreConfig) RetentionDuration() time.Duration {
	return time.Duration(s.Retention) * time.Hour
}
