package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	AWS       AWSConfig
	Scheduler SchedulerConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	AllowedOrigins string // comma-separated, or "*" for all
}

// CORSOrigins splits AllowedOrigins into the list the CORS middleware takes.
func (c ServerConfig) CORSOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is; otherwise the DSN is built from the parts below
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
}

// DSN returns the PostgreSQL connection string.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret string
	TTL    time.Duration
}

// AWSConfig holds AWS credentials and the report archive bucket.
// Archiving is disabled while ReportsBucket is empty.
type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	ReportsBucket   string
	PresignTTL      time.Duration
}

// SchedulerConfig holds the meeting-start scheduler settings.
type SchedulerConfig struct {
	PollInterval time.Duration
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:           envStr("PORT", "8080"),
			ReadTimeout:    envDuration("READ_TIMEOUT", 30*time.Second),
			WriteTimeout:   envDuration("WRITE_TIMEOUT", 30*time.Second),
			AllowedOrigins: envStr("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:3001"),
		},
		Database: DatabaseConfig{
			URL:      envStr("DATABASE_URL", ""),
			Host:     envStr("DB_HOST", "localhost"),
			Port:     envStr("DB_PORT", "5432"),
			User:     envStr("DB_USER", "postgres"),
			Password: envStr("DB_PASSWORD", "postgres"),
			DBName:   envStr("DB_NAME", "timeet"),
			SSLMode:  envStr("DB_SSLMODE", "disable"),
			MaxConns: int32(envInt("DB_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Addr:     envStr("REDIS_ADDR", "localhost:6379"),
			Password: envStr("REDIS_PASSWORD", ""),
			DB:       envInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret: envStr("JWT_SECRET", "change-me-in-production"),
			TTL:    envDuration("JWT_TTL", 24*time.Hour),
		},
		AWS: AWSConfig{
			Region:          envStr("AWS_REGION", "us-east-1"),
			AccessKeyID:     envStr("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: envStr("AWS_SECRET_ACCESS_KEY", ""),
			ReportsBucket:   envStr("AWS_S3_REPORTS_BUCKET", ""),
			PresignTTL:      envDuration("AWS_PRESIGN_TTL", 15*time.Minute),
		},
		Scheduler: SchedulerConfig{
			PollInterval: envDuration("SCHEDULER_POLL_INTERVAL", 5*time.Second),
		},
	}
	return cfg, nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// envDuration accepts Go duration strings ("45s", "2h"); bare integers are
// read as seconds for compatibility with plain env files.
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
