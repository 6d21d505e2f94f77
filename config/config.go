package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	AWS       AWSConfig
	Sessions  SessionsConfig
	Analytics AnalyticsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins []string // "*" allows all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL              string // if set, used as-is
	Host             string
	Port             string
	User             string
	Password         string
	DBName           string
	SSLMode          string
	MaxConns         int
	ConnectTimeout   time.Duration
	StatementTimeout time.Duration
}

// RedisConfig holds Redis connection settings. When disabled the live event feed and
// analytics export queue are not started.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// AWSConfig holds AWS credentials and the analytics archive bucket.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	AnalyticsBucket      string
	PresignExpireMinutes int
}

// SessionsConfig holds session store defaults.
type SessionsConfig struct {
	DefaultMaxParticipants int
	RoomCodeMaxAttempts    int
}

// AnalyticsConfig bounds analytics queries and batches.
type AnalyticsConfig struct {
	UserLimitDefault int
	UserLimitMax     int
	BatchMax         int
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: splitTrim(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173"), ","),
		},
		Database: DatabaseConfig{
			URL:              os.Getenv("DATABASE_URL"),
			Host:             getEnv("DB_HOST", "localhost"),
			Port:             getEnv("DB_PORT", "5432"),
			User:             getEnv("DB_USER", "postgres"),
			Password:         getEnv("DB_PASSWORD", "postgres"),
			DBName:           getEnv("DB_NAME", "livestream"),
			SSLMode:          getEnv("DB_SSLMODE", "disable"),
			MaxConns:         getEnvInt("DB_MAX_CONNS", 20),
			ConnectTimeout:   time.Duration(getEnvInt("DB_CONNECT_TIMEOUT_SEC", 5)) * time.Second,
			StatementTimeout: time.Duration(getEnvInt("DB_STATEMENT_TIMEOUT_MS", 5000)) * time.Millisecond,
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", true),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			AnalyticsBucket:      getEnv("AWS_S3_ANALYTICS_BUCKET", ""),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
		Sessions: SessionsConfig{
			DefaultMaxParticipants: getEnvInt("SESSION_DEFAULT_MAX_PARTICIPANTS", 100),
			RoomCodeMaxAttempts:    getEnvInt("ROOM_CODE_MAX_ATTEMPTS", 10),
		},
		Analytics: AnalyticsConfig{
			UserLimitDefault: getEnvInt("ANALYTICS_USER_LIMIT_DEFAULT", 100),
			UserLimitMax:     getEnvInt("ANALYTICS_USER_LIMIT_MAX", 1000),
			BatchMax:         getEnvInt("ANALYTICS_BATCH_MAX", 500),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the services cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("JWT_SECRET must not be empty"))
	}
	if c.Database.MaxConns < 1 {
		errs = append(errs, errors.New("DB_MAX_CONNS must be at least 1"))
	}
	if c.Sessions.DefaultMaxParticipants < 1 {
		errs = append(errs, errors.New("SESSION_DEFAULT_MAX_PARTICIPANTS must be at least 1"))
	}
	if c.Sessions.RoomCodeMaxAttempts < 1 {
		errs = append(errs, errors.New("ROOM_CODE_MAX_ATTEMPTS must be at least 1"))
	}
	if c.Analytics.UserLimitDefault < 1 || c.Analytics.UserLimitMax < c.Analytics.UserLimitDefault {
		errs = append(errs, errors.New("ANALYTICS_USER_LIMIT_DEFAULT must be between 1 and ANALYTICS_USER_LIMIT_MAX"))
	}
	if c.Analytics.BatchMax < 1 {
		errs = append(errs, errors.New("ANALYTICS_BATCH_MAX must be at least 1"))
	}
	return errors.Join(errs...)
}

func getEnvInt(key string, fallback int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := cast.ToIntE(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := cast.ToBoolE(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
