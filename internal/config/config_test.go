package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigMethods(t *testing.T) {
	t.Run("Addr returns formatted port", func(t *testing.T) {
		cfg := &Config{Port: 4000}
		assert.Equal(t, ":4000", cfg.Addr())
	})

	t.Run("SessionTTL converts hours to duration", func(t *testing.T) {
		cfg := &Config{SessionTTLHours: 24}
		assert.Equal(t, 24*time.Hour, cfg.SessionTTL())
	})
}

func TestValidate(t *testing.T) {
	t.Run("rejects non-positive TTL", func(t *testing.T) {
		cfg := &Config{SessionTTLHours: 0, PairingRatePerMin: 30}
		assert.Error(t, cfg.Validate(false))
	})

	t.Run("rejects non-positive rate limit", func(t *testing.T) {
		cfg := &Config{SessionTTLHours: 24, PairingRatePerMin: 0}
		assert.Error(t, cfg.Validate(false))
	})

	t.Run("accepts defaults", func(t *testing.T) {
		cfg := &Config{SessionTTLHours: 24, PairingRatePerMin: 30, AllowedOrigins: []string{"*"}}
		assert.NoError(t, cfg.Validate(false))
		assert.NoError(t, cfg.Validate(true))
	})
}

func TestLoad(t *testing.T) {
	originalEnv := map[string]string{
		"PORT":                 os.Getenv("PORT"),
		"LOG_LEVEL":            os.Getenv("LOG_LEVEL"),
		"SESSION_TTL_HOURS":    os.Getenv("SESSION_TTL_HOURS"),
		"WS_ALLOWED_ORIGINS":   os.Getenv("WS_ALLOWED_ORIGINS"),
		"PAIRING_RATE_PER_MIN": os.Getenv("PAIRING_RATE_PER_MIN"),
		"BACKEND_BASE_URL":     os.Getenv("BACKEND_BASE_URL"),
	}

	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	t.Run("loads config with defaults", func(t *testing.T) {
		os.Unsetenv("PORT")
		os.Unsetenv("LOG_LEVEL")
		os.Unsetenv("SESSION_TTL_HOURS")
		os.Unsetenv("WS_ALLOWED_ORIGINS")
		os.Unsetenv("PAIRING_RATE_PER_MIN")
		os.Unsetenv("BACKEND_BASE_URL")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 4000, cfg.Port)
		assert.Equal(t, "info", cfg.LogLevel)
		assert.Equal(t, 24, cfg.SessionTTLHours)
		assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
		assert.Equal(t, 30, cfg.PairingRatePerMin)
	})

	t.Run("loads config from environment", func(t *testing.T) {
		os.Setenv("PORT", "8080")
		os.Setenv("LOG_LEVEL", "debug")
		os.Setenv("SESSION_TTL_HOURS", "12")
		os.Setenv("WS_ALLOWED_ORIGINS", "desk.infinitum.local,scanner.infinitum.local")
		os.Setenv("BACKEND_BASE_URL", "http://localhost:3000")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 8080, cfg.Port)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, 12*time.Hour, cfg.SessionTTL())
		assert.Equal(t, []string{"desk.infinitum.local", "scanner.infinitum.local"}, cfg.AllowedOrigins)
		assert.Equal(t, "http://localhost:3000", cfg.BackendBaseURL)
	})
}
