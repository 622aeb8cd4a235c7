package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port                int      `env:"PORT" envDefault:"4000"`
	LogLevel            string   `env:"LOG_LEVEL" envDefault:"info"`
	SessionTTLHours     int      `env:"SESSION_TTL_HOURS" envDefault:"24"`
	AllowedOrigins      []string `env:"WS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	PairingRatePerMin   int      `env:"PAIRING_RATE_PER_MIN" envDefault:"30"`
	BackendBaseURL      string   `env:"BACKEND_BASE_URL" envDefault:""`
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate(isProduction bool) error {
	if c.SessionTTLHours <= 0 {
		return fmt.Errorf("SESSION_TTL_HOURS must be positive, got %d", c.SessionTTLHours)
	}
	if c.PairingRatePerMin <= 0 {
		return fmt.Errorf("PAIRING_RATE_PER_MIN must be positive, got %d", c.PairingRatePerMin)
	}

	if isProduction {
		for _, origin := range c.AllowedOrigins {
			if origin == "*" {
				log.Warn().Msg("WS_ALLOWED_ORIGINS allows any origin in production: consider restricting to the desk UI host")
			}
		}
	}

	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
