package config

import (
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/benedoc-inc/pdfmerge/types"
)

// Validate reports the first invalid setting as a CONFIG_ERROR
func (c *Config) Validate() error {
	s := c.Server
	switch {
	case s.Addr == "":
		return invalid("server.addr", s.Addr, "must not be empty")
	case s.ReadTimeout < 0:
		return invalid("server.read_timeout", s.ReadTimeout, "must not be negative")
	case s.WriteTimeout < 0:
		return invalid("server.write_timeout", s.WriteTimeout, "must not be negative")
	case s.ShutdownTimeout < 0:
		return invalid("server.shutdown_timeout", s.ShutdownTimeout, "must not be negative")
	case s.RateLimit < 0:
		return invalid("server.rate_limit", s.RateLimit, "must not be negative")
	case s.RateLimit > 0 && s.Burst < 1:
		return invalid("server.burst", s.Burst, "must be at least 1 when rate_limit is set")
	case s.MaxBodyBytes <= 0:
		return invalid("server.max_body_bytes", s.MaxBodyBytes, "must be positive")
	case s.RenderConcurrency < 1:
		return invalid("server.render_concurrency", s.RenderConcurrency, "must be at least 1")
	}

	if c.Render.Timeout < 0 {
		return invalid("render.timeout", c.Render.Timeout, "must not be negative")
	}
	if err := c.Render.Defaults.Validate(); err != nil {
		return types.WrapError(types.ErrCodeConfig, "invalid render.defaults", err)
	}

	f := c.Fetch
	switch {
	case f.Timeout < 0:
		return invalid("fetch.timeout", f.Timeout, "must not be negative")
	case f.MaxBytes < 0:
		return invalid("fetch.max_bytes", f.MaxBytes, "must not be negative")
	case f.Rate < 0:
		return invalid("fetch.rate", f.Rate, "must not be negative")
	}

	if st := c.Store; st.Enabled {
		switch {
		case st.Path == "":
			return invalid("store.path", st.Path, "must be set when the store is enabled")
		case st.Retention <= 0:
			return invalid("store.retention", st.Retention, "must be a positive number of hours")
		}
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		if _, err := parser.Parse(st.PruneSchedule); err != nil {
			return types.WrapErrorf(types.ErrCodeConfig, err, "invalid store.prune_schedule %q", st.PruneSchedule)
		}
	}

	if c.Log.Level != "" {
		if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
			return invalid("log.level", c.Log.Level, "must be one of trace, debug, info, warn, error")
		}
	}

	return nil
}

func invalid(key string, value any, reason string) error {
	return types.NewPDFErrorf(types.ErrCodeConfig, "invalid %s %v: %s", key, value, reason).
		WithContext("key", key)
}
