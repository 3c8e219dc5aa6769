package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration for the session gateway.
// It merges file defaults and environment overrides to support both local and deployed runs.
type Config struct {
	ServiceID string
	Env       string

	HTTPPort int
	GRPCPort int

	StorageBackend string
	StorageFile    string
	RedisURL       string
	RedisPrefix    string

	BackendBaseURL    string
	BackendTimeout    time.Duration
	BackendMaxRetries int

	DatabaseURL string
	MaxDBConns  int32

	JWTPrivateKeyPEM  string
	JWTPublicKeyPEM   string
	JWTKeyID          string
	AllowEphemeralJWT bool

	BcryptCost int

	TokenTTL        time.Duration
	OfflineFallback bool
	LanguageID      int

	SweepInterval time.Duration
}

// configFile mirrors the YAML schema used by configs/default.yaml.
// It is intentionally separate from Config so runtime-only fields stay internal.
type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		Env      string `yaml:"env"`
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
	} `yaml:"service"`
	Storage struct {
		Backend  string `yaml:"backend"`
		FilePath string `yaml:"file_path"`
		RedisURL string `yaml:"redis_url"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"storage"`
	ClinicBackend struct {
		BaseURL        string `yaml:"base_url"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
		MaxRetries     int    `yaml:"max_retries"`
	} `yaml:"clinic_backend"`
	Dependencies struct {
		PostgresURL string `yaml:"postgres_url"`
	} `yaml:"dependencies"`
	Auth struct {
		OfflineFallback bool `yaml:"offline_fallback"`
		LanguageID      int  `yaml:"language_id"`
	} `yaml:"auth"`
}

// LoadConfig resolves configuration in priority order: defaults -> file -> env.
// This order keeps local bootstrap simple while allowing environment-specific overrides.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:         "clinic-session-gateway",
		Env:               "production",
		HTTPPort:          8080,
		GRPCPort:          9090,
		StorageBackend:    "file",
		StorageFile:       "data/session-store.json",
		JWTKeyID:          "gateway-key-1",
		AllowEphemeralJWT: true,
		BcryptCost:        12,
		TokenTTL:          8 * time.Hour,
		BackendTimeout:    8 * time.Second,
		BackendMaxRetries: 2,
		MaxDBConns:        10,
		LanguageID:        1,
		SweepInterval:     time.Minute,
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		if f.Service.ID != "" {
			cfg.ServiceID = f.Service.ID
		}
		if f.Service.Env != "" {
			cfg.Env = f.Service.Env
		}
		if f.Service.HTTPPort > 0 {
			cfg.HTTPPort = f.Service.HTTPPort
		}
		if f.Service.GRPCPort > 0 {
			cfg.GRPCPort = f.Service.GRPCPort
		}
		if f.Storage.Backend != "" {
			cfg.StorageBackend = f.Storage.Backend
		}
		if f.Storage.FilePath != "" {
			cfg.StorageFile = f.Storage.FilePath
		}
		if f.Storage.RedisURL != "" {
			cfg.RedisURL = f.Storage.RedisURL
		}
		if f.Storage.Prefix != "" {
			cfg.RedisPrefix = f.Storage.Prefix
		}
		if f.ClinicBackend.BaseURL != "" {
			cfg.BackendBaseURL = f.ClinicBackend.BaseURL
		}
		if f.ClinicBackend.TimeoutSeconds > 0 {
			cfg.BackendTimeout = time.Duration(f.ClinicBackend.TimeoutSeconds) * time.Second
		}
		if f.ClinicBackend.MaxRetries > 0 {
			cfg.BackendMaxRetries = f.ClinicBackend.MaxRetries
		}
		if f.Dependencies.PostgresURL != "" {
			cfg.DatabaseURL = f.Dependencies.PostgresURL
		}
		if f.Auth.OfflineFallback {
			cfg.OfflineFallback = true
		}
		if f.Auth.LanguageID > 0 {
			cfg.LanguageID = f.Auth.LanguageID
		}
	}

	cfg.Env = envOrDefault("APP_ENV", cfg.Env)
	cfg.StorageBackend = envOrDefault("STORAGE_BACKEND", cfg.StorageBackend)
	cfg.StorageFile = envOrDefault("STORAGE_FILE_PATH", cfg.StorageFile)
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.RedisPrefix = envOrDefault("REDIS_PREFIX", cfg.RedisPrefix)
	cfg.BackendBaseURL = envOrDefault("CLINIC_BACKEND_URL", cfg.BackendBaseURL)
	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.JWTPrivateKeyPEM = envOrDefault("JWT_PRIVATE_KEY_PEM", cfg.JWTPrivateKeyPEM)
	cfg.JWTPublicKeyPEM = envOrDefault("JWT_PUBLIC_KEY_PEM", cfg.JWTPublicKeyPEM)
	cfg.JWTKeyID = envOrDefault("JWT_KEY_ID", cfg.JWTKeyID)
	cfg.AllowEphemeralJWT = envBool("JWT_ALLOW_EPHEMERAL", cfg.AllowEphemeralJWT)
	cfg.OfflineFallback = envBool("OFFLINE_FALLBACK", cfg.OfflineFallback)

	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.BcryptCost = envInt("BCRYPT_ROUNDS", cfg.BcryptCost)
	cfg.LanguageID = envInt("LANGUAGE_ID", cfg.LanguageID)
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))
	cfg.BackendMaxRetries = envInt("CLINIC_BACKEND_MAX_RETRIES", cfg.BackendMaxRetries)

	cfg.TokenTTL = time.Duration(envInt("TOKEN_EXPIRY_HOURS", int(cfg.TokenTTL.Hours()))) * time.Hour
	cfg.BackendTimeout = time.Duration(envInt("CLINIC_BACKEND_TIMEOUT_SECONDS", int(cfg.BackendTimeout.Seconds()))) * time.Second
	cfg.SweepInterval = time.Duration(envInt("SWEEP_INTERVAL_SECONDS", int(cfg.SweepInterval.Seconds()))) * time.Second

	switch cfg.StorageBackend {
	case "memory", "file", "redis":
	default:
		return Config{}, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
	if cfg.StorageBackend == "redis" && cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("missing REDIS_URL for redis storage backend")
	}
	if cfg.BackendBaseURL == "" {
		return Config{}, fmt.Errorf("missing CLINIC_BACKEND_URL")
	}
	if (cfg.JWTPrivateKeyPEM == "" || cfg.JWTPublicKeyPEM == "") && !cfg.AllowEphemeralJWT {
		return Config{}, fmt.Errorf("missing JWT_PRIVATE_KEY_PEM or JWT_PUBLIC_KEY_PEM")
	}

	return cfg, nil
}

// envOrDefault returns an env var when present, otherwise the provided fallback.
func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

// envInt parses integer env vars with safe fallback on empty/invalid values.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// envBool parses common boolean env forms while keeping a deterministic fallback.
func envBool(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return fallback
	}
}
