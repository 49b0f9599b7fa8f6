package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	}
	Logging struct {
		Level  string `env:"LOG_LEVEL"`
		Format string `env:"LOG_FORMAT" envDefault:"json"`
		Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
	}
	Optimization struct {
		// MaxConcurrentJobs caps the number of searches running at once.
		MaxConcurrentJobs int `env:"OPT_MAX_CONCURRENT_JOBS" envDefault:"10"`
		// DefaultMaxIterations applies to service jobs that set neither an
		// iteration nor a runtime limit, so no job runs forever.
		DefaultMaxIterations int `env:"OPT_DEFAULT_MAX_ITERATIONS" envDefault:"1000"`
		// MaxRuntime is a hard wall-clock cap for every service job; zero
		// disables it.
		MaxRuntime time.Duration `env:"OPT_MAX_RUNTIME" envDefault:"5m"`
		// DefaultStrategy is used when a job names none.
		DefaultStrategy string `env:"OPT_DEFAULT_STRATEGY" envDefault:"lipo"`
	}
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	return parse(env.Options{})
}

// LoadFrom reads the configuration from vars instead of the process
// environment.
func LoadFrom(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, err
	}

	// Set default logging level based on environment
	if cfg.Logging.Level == "" {
		if cfg.Environment == "development" {
			cfg.Logging.Level = "debug"
		} else {
			cfg.Logging.Level = "info"
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be in 1..65535, got %d", c.HTTP.Port)
	}
	if c.Optimization.MaxConcurrentJobs <= 0 {
		return fmt.Errorf("OPT_MAX_CONCURRENT_JOBS must be > 0, got %d", c.Optimization.MaxConcurrentJobs)
	}
	if c.Optimization.DefaultMaxIterations <= 0 {
		return fmt.Errorf("OPT_DEFAULT_MAX_ITERATIONS must be > 0, got %d", c.Optimization.DefaultMaxIterations)
	}
	if c.Optimization.MaxRuntime < 0 {
		return fmt.Errorf("OPT_MAX_RUNTIME must not be negative, got %s", c.Optimization.MaxRuntime)
	}
	switch c.Optimization.DefaultStrategy {
	case "lipo", "bayesian":
	default:
		return fmt.Errorf("OPT_DEFAULT_STRATEGY must be lipo or bayesian, got %q", c.Optimization.DefaultStrategy)
	}
	return nil
}
