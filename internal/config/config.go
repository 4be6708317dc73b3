package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Server
	Port string `yaml:"port"`

	// Case-management authority
	AuthorityBaseURL string `yaml:"authority_base_url"`
	SystemUsername   string `yaml:"system_username"`
	SystemPassword   string `yaml:"system_password"`

	// Session tokens
	JWTSecret        string `yaml:"jwt_secret"`
	TokenExpiryHours int    `yaml:"token_expiry_hours"`

	// Directory sync
	SyncIntervalMinutes int `yaml:"sync_interval_minutes"`

	// Security
	AdminSecret string `yaml:"admin_secret"` // guards /internal/sync

	// Object store
	MinioEndpoint  string `yaml:"minio_endpoint"`
	MinioAccessKey string `yaml:"minio_access_key"`
	MinioSecretKey string `yaml:"minio_secret_key"`
	MinioBucket    string `yaml:"minio_bucket"`
	MinioUseSSL    bool   `yaml:"minio_use_ssl"`

	// Retrieval / generation engine
	EngineBaseURL    string `yaml:"engine_base_url"`
	EnginePollLimit  int    `yaml:"engine_poll_limit"`
	EnginePollMillis int    `yaml:"engine_poll_millis"`

	// Document grants
	SignURLTTLHours int `yaml:"sign_url_ttl_hours"`

	// Thread store: "memory" | "redis"
	ThreadStore string `yaml:"thread_store"`
	RedisAddr   string `yaml:"redis_addr"`

	// Audit database
	DBDriver string `yaml:"db_driver"` // "sqlite" | "postgres"
	DBPath   string `yaml:"db_path"`   // SQLite path
	DBUrl    string `yaml:"db_url"`    // Postgres DSN

	// Logging
	LogLevel string `yaml:"log_level"`
}

// Load reads the optional YAML file named by CASESCOPE_CONFIG, then lets
// environment variables override it. Defaults apply last.
func Load() (*Config, error) {
	cfg := &Config{}

	if path := os.Getenv("CASESCOPE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.Port = getEnv("PORT", or(cfg.Port, "8080"))
	cfg.AuthorityBaseURL = getEnv("CASESCOPE_AUTHORITY_URL", cfg.AuthorityBaseURL)
	cfg.SystemUsername = getEnv("CASESCOPE_SYSTEM_USER", cfg.SystemUsername)
	cfg.SystemPassword = getEnv("CASESCOPE_SYSTEM_PASSWORD", cfg.SystemPassword)
	cfg.JWTSecret = getEnv("CASESCOPE_JWT_SECRET", cfg.JWTSecret)
	cfg.TokenExpiryHours = getEnvInt("CASESCOPE_TOKEN_EXPIRY_HOURS", orInt(cfg.TokenExpiryHours, 8))
	cfg.SyncIntervalMinutes = getEnvInt("CASESCOPE_SYNC_INTERVAL_MINUTES", orInt(cfg.SyncIntervalMinutes, 15))
	cfg.AdminSecret = getEnv("CASESCOPE_ADMIN_SECRET", cfg.AdminSecret)
	cfg.MinioEndpoint = getEnv("CASESCOPE_MINIO_ENDPOINT", cfg.MinioEndpoint)
	cfg.MinioAccessKey = getEnv("CASESCOPE_MINIO_ACCESS_KEY", cfg.MinioAccessKey)
	cfg.MinioSecretKey = getEnv("CASESCOPE_MINIO_SECRET_KEY", cfg.MinioSecretKey)
	cfg.MinioBucket = getEnv("CASESCOPE_MINIO_BUCKET", or(cfg.MinioBucket, "case-documents"))
	cfg.MinioUseSSL = getEnvBool("CASESCOPE_MINIO_USE_SSL", cfg.MinioUseSSL)
	cfg.EngineBaseURL = getEnv("CASESCOPE_ENGINE_URL", cfg.EngineBaseURL)
	cfg.EnginePollLimit = getEnvInt("CASESCOPE_ENGINE_POLL_LIMIT", orInt(cfg.EnginePollLimit, 60))
	cfg.EnginePollMillis = getEnvInt("CASESCOPE_ENGINE_POLL_MILLIS", orInt(cfg.EnginePollMillis, 1000))
	cfg.SignURLTTLHours = getEnvInt("CASESCOPE_SIGN_URL_TTL_HOURS", orInt(cfg.SignURLTTLHours, 2))
	cfg.ThreadStore = getEnv("CASESCOPE_THREAD_STORE", or(cfg.ThreadStore, "memory"))
	cfg.RedisAddr = getEnv("CASESCOPE_REDIS_ADDR", cfg.RedisAddr)
	cfg.DBDriver = getEnv("CASESCOPE_DB_DRIVER", or(cfg.DBDriver, "sqlite"))
	cfg.DBPath = getEnv("CASESCOPE_DB_PATH", or(cfg.DBPath, "./data/audit.db"))
	cfg.DBUrl = getEnv("CASESCOPE_DATABASE_URL", cfg.DBUrl)
	cfg.LogLevel = getEnv("LOG_LEVEL", or(cfg.LogLevel, "info"))

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("CASESCOPE_JWT_SECRET is required")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func or(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func orInt(v, fallback int) int {
	if v != 0 {
		return v
	}
	return fallback
}
