package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Mail     MailConfig
	OTP      OTPConfig
	Outbox   OutboxConfig
	Kanban   KanbanConfig
	App      AppConfig
}

type ServerConfig struct {
	Port           string
	TrustedProxies []string
	CORSOrigins    []string
}

type DatabaseConfig struct {
	DSN      string
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int
	MinConns int
	Migrate  bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	Provider                string // jwt | firebase
	JWTSecret               string
	TokenTTL                time.Duration
	Issuer                  string
	FirebaseCredentialsPath string
	BcryptCost              int
	AdminEmail              string
	AdminPassword           string
	AdminName               string
}

type MailConfig struct {
	Provider     string // log | smtp | ses
	From         string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	AWSRegion    string
}

type OTPConfig struct {
	TTL            time.Duration
	Length         int
	MaxAttempts    int
	ResendInterval time.Duration
}

type OutboxConfig struct {
	Schedule    string
	BatchSize   int
	MaxAttempts int
	InProcess   bool
}

type KanbanConfig struct {
	StatusTablePath string
}

type AppConfig struct {
	Environment string
	LogLevel    string
	Version     string
	ServiceName string
	BaseURL     string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			TrustedProxies: getEnvAsList("TRUSTED_PROXIES", nil),
			CORSOrigins:    getEnvAsList("CORS_ORIGINS", []string{"http://localhost:3000"}),
		},
		Database: DatabaseConfig{
			DSN:      getEnv("DB_DSN", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", "staffboard"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns: getEnvAsInt("DB_MIN_CONNS", 2),
			Migrate:  getEnvAsBool("DB_MIGRATE", true),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			Provider:                strings.ToLower(getEnv("AUTH_PROVIDER", "jwt")),
			JWTSecret:               getEnv("JWT_SECRET", ""),
			TokenTTL:                getEnvAsDuration("JWT_TTL", 24*time.Hour),
			Issuer:                  getEnv("JWT_ISSUER", "staffboard"),
			FirebaseCredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", ""),
			BcryptCost:              getEnvAsInt("BCRYPT_COST", 10),
			AdminEmail:              getEnv("ADMIN_EMAIL", ""),
			AdminPassword:           getEnv("ADMIN_PASSWORD", ""),
			AdminName:               getEnv("ADMIN_NAME", "Administrator"),
		},
		Mail: MailConfig{
			Provider:     strings.ToLower(getEnv("MAIL_PROVIDER", "log")),
			From:         getEnv("MAIL_FROM", "no-reply@staffboard.local"),
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			AWSRegion:    getEnv("AWS_REGION", "us-east-1"),
		},
		OTP: OTPConfig{
			TTL:            getEnvAsDuration("OTP_TTL", 10*time.Minute),
			Length:         getEnvAsInt("OTP_LENGTH", 6),
			MaxAttempts:    getEnvAsInt("OTP_MAX_ATTEMPTS", 5),
			ResendInterval: getEnvAsDuration("OTP_RESEND_INTERVAL", time.Minute),
		},
		Outbox: OutboxConfig{
			Schedule:    getEnv("OUTBOX_SCHEDULE", "@every 10s"),
			BatchSize:   getEnvAsInt("OUTBOX_BATCH_SIZE", 50),
			MaxAttempts: getEnvAsInt("OUTBOX_MAX_ATTEMPTS", 8),
			InProcess:   getEnvAsBool("OUTBOX_INPROCESS", false),
		},
		Kanban: KanbanConfig{
			StatusTablePath: getEnv("KANBAN_STATUS_TABLE", ""),
		},
		App: AppConfig{
			Environment: getEnv("APP_ENV", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
			ServiceName: getEnv("SERVICE_NAME", "staffboard-backend"),
			BaseURL:     getEnv("APP_BASE_URL", "http://localhost:3000"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	if c.Database.DSN == "" && c.Database.Host == "" {
		return fmt.Errorf("DB_DSN or DB_HOST is required")
	}

	switch c.Auth.Provider {
	case "jwt":
		if c.Auth.JWTSecret == "" && c.App.Environment == "production" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
	case "firebase":
		if c.Auth.FirebaseCredentialsPath == "" {
			return fmt.Errorf("FIREBASE_CREDENTIALS_PATH is required when AUTH_PROVIDER=firebase")
		}
	default:
		return fmt.Errorf("unknown AUTH_PROVIDER %q", c.Auth.Provider)
	}

	switch c.Mail.Provider {
	case "log":
		if c.App.Environment == "production" {
			return fmt.Errorf("MAIL_PROVIDER=log writes message bodies to the log and is not allowed in production")
		}
	case "ses":
	case "smtp":
		if c.Mail.SMTPHost == "" {
			return fmt.Errorf("SMTP_HOST is required when MAIL_PROVIDER=smtp")
		}
	default:
		return fmt.Errorf("unknown MAIL_PROVIDER %q", c.Mail.Provider)
	}

	if c.OTP.Length < 4 || c.OTP.Length > 10 {
		return fmt.Errorf("OTP_LENGTH must be between 4 and 10")
	}

	return nil
}

// ConnString returns DB_DSN when set, otherwise a URL built from the individual fields.
func (d DatabaseConfig) ConnString() string {
	if d.DSN != "" {
		return d.DSN
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid integer for %s, using default: %d", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid boolean for %s, using default: %t", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid duration for %s, using default: %s", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
