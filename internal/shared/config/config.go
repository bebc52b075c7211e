package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	JWT       JWTConfig
	Classroom ClassroomConfig
	Audit     AuditConfig
	Telemetry TelemetryConfig
	Firebase  FirebaseConfig
}

type ServerConfig struct {
	Port string
	Host string
	// SecureHeaders turns on HSTS and forced cookie flags. Leave off
	// for plain-HTTP local runs.
	SecureHeaders bool
}

// StoreConfig selects the key-value store backend. "postgres" is the
// production backend; "memory" keeps everything in-process and is meant
// for demos and local hacking.
type StoreConfig struct {
	Backend  string
	Database DatabaseConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type JWTConfig struct {
	Secret string
}

// ClassroomConfig carries the fixed classroom parameters. The defaults
// match the long-standing demo values and existing stored data depends
// on them; override with care.
type ClassroomConfig struct {
	AdminSignupCode string
	WelcomeBonus    float64
}

// AuditConfig configures the periodic balance reconciliation run.
type AuditConfig struct {
	Enabled       bool
	ScheduleTimes []string
	WorkerCount   int
	JobDelay      time.Duration
	QueueSize     int
	RunOnStartup  bool
}

type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	Environment  string
	OTLPEndpoint string
	MetricsPort  string
}

type FirebaseConfig struct {
	CredentialsFile string
}

func Load() (*Config, error) {
	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	auditWorkers, err := strconv.Atoi(getEnv("AUDIT_WORKERS", "4"))
	if err != nil {
		return nil, fmt.Errorf("invalid AUDIT_WORKERS: %w", err)
	}
	auditJobDelay, err := time.ParseDuration(getEnv("AUDIT_JOB_DELAY", "0s"))
	if err != nil {
		return nil, fmt.Errorf("invalid AUDIT_JOB_DELAY: %w", err)
	}
	auditQueueSize, err := strconv.Atoi(getEnv("AUDIT_QUEUE_SIZE", "100"))
	if err != nil {
		return nil, fmt.Errorf("invalid AUDIT_QUEUE_SIZE: %w", err)
	}

	welcomeBonus, err := strconv.ParseFloat(getEnv("WELCOME_BONUS", "100"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid WELCOME_BONUS: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:          getEnv("PORT", "8080"),
			Host:          getEnv("HOST", "0.0.0.0"),
			SecureHeaders: getBoolEnv("SECURE_HEADERS", false),
		},
		Store: StoreConfig{
			Backend: getEnv("STORE_BACKEND", "postgres"),
			Database: DatabaseConfig{
				Host:     getEnv("DB_HOST", "localhost"),
				Port:     dbPort,
				User:     getEnv("DB_USER", "classbank"),
				Password: getEnv("DB_PASSWORD", ""),
				DBName:   getEnv("DB_NAME", "classbank"),
				SSLMode:  getEnv("DB_SSLMODE", "disable"),
			},
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
		},
		Classroom: ClassroomConfig{
			AdminSignupCode: getEnv("ADMIN_SIGNUP_CODE", "teacher123"),
			WelcomeBonus:    welcomeBonus,
		},
		Audit: AuditConfig{
			Enabled:       getBoolEnv("AUDIT_ENABLED", true),
			ScheduleTimes: splitAndTrim(getEnv("AUDIT_TIMES", "03:00")),
			WorkerCount:   auditWorkers,
			JobDelay:      auditJobDelay,
			QueueSize:     auditQueueSize,
			RunOnStartup:  getBoolEnv("AUDIT_RUN_ON_STARTUP", false),
		},
		Telemetry: TelemetryConfig{
			Enabled:      getBoolEnv("OTEL_ENABLED", false),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "classbank-api"),
			Environment:  getEnv("OTEL_ENVIRONMENT", "development"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
			MetricsPort:  getEnv("METRICS_PORT", "9090"),
		},
		Firebase: FirebaseConfig{
			CredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),
		},
	}

	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	switch cfg.Store.Backend {
	case "postgres", "memory":
	default:
		return nil, fmt.Errorf("invalid STORE_BACKEND %q (must be postgres or memory)", cfg.Store.Backend)
	}

	if cfg.Classroom.WelcomeBonus < 0 {
		return nil, fmt.Errorf("WELCOME_BONUS must not be negative")
	}

	return cfg, nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}

func splitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
