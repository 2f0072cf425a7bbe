package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server:   ServerConfig{Port: "8080"},
		Database: DatabaseConfig{Host: "localhost", Port: 5432, User: "postgres", Name: "staffboard", SSLMode: "disable"},
		Auth:     AuthConfig{Provider: "jwt", JWTSecret: "secret"},
		Mail:     MailConfig{Provider: "log"},
		OTP:      OTPConfig{Length: 6},
		App:      AppConfig{Environment: "development"},
	}
}

func TestValidate(t *testing.T) {
	t.Run("accepts a complete config", func(t *testing.T) {
		require.NoError(t, validConfig().Validate())
	})

	t.Run("requires port", func(t *testing.T) {
		cfg := validConfig()
		cfg.Server.Port = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("requires jwt secret in production", func(t *testing.T) {
		cfg := validConfig()
		cfg.Auth.JWTSecret = ""
		cfg.Mail.Provider = "ses"
		cfg.App.Environment = "production"
		assert.Error(t, cfg.Validate())
	})

	t.Run("log mailer is development only", func(t *testing.T) {
		cfg := validConfig()
		cfg.App.Environment = "production"
		assert.ErrorContains(t, cfg.Validate(), "MAIL_PROVIDER=log")
		cfg.Mail.Provider = "ses"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("firebase needs credentials", func(t *testing.T) {
		cfg := validConfig()
		cfg.Auth.Provider = "firebase"
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects unknown mail provider", func(t *testing.T) {
		cfg := validConfig()
		cfg.Mail.Provider = "pigeon"
		assert.Error(t, cfg.Validate())
	})

	t.Run("smtp needs host", func(t *testing.T) {
		cfg := validConfig()
		cfg.Mail.Provider = "smtp"
		assert.Error(t, cfg.Validate())
	})

	t.Run("otp length bounds", func(t *testing.T) {
		cfg := validConfig()
		cfg.OTP.Length = 3
		assert.Error(t, cfg.Validate())
		cfg.OTP.Length = 11
		assert.Error(t, cfg.Validate())
	})
}

func TestConnString(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5433, User: "u", Password: "p", Name: "n", SSLMode: "require"}
	assert.Equal(t, "postgres://u:p@db:5433/n?sslmode=require", d.ConnString())

	d.DSN = "postgres://override"
	assert.Equal(t, "postgres://override", d.ConnString())
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("SB_INT", "42")
	t.Setenv("SB_BAD_INT", "x")
	t.Setenv("SB_BOOL", "true")
	t.Setenv("SB_DUR", "90s")
	t.Setenv("SB_LIST", " a, b ,,c ")

	assert.Equal(t, 42, getEnvAsInt("SB_INT", 1))
	assert.Equal(t, 1, getEnvAsInt("SB_BAD_INT", 1))
	assert.True(t, getEnvAsBool("SB_BOOL", false))
	assert.Equal(t, 90*time.Second, getEnvAsDuration("SB_DUR", time.Second))
	assert.Equal(t, []string{"a", "b", "c"}, getEnvAsList("SB_LIST", nil))
	assert.Equal(t, "fallback", getEnv("SB_MISSING", "fallback"))
}
