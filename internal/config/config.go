package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	Store        string        `yaml:"store"`
	DatabaseURL  string        `yaml:"database_url"`
	SQLitePath   string        `yaml:"sqlite_path"`
	RedisAddr    string        `yaml:"redis_addr"`
	RedisPass    string        `yaml:"redis_password"`
	RedisDB      int           `yaml:"redis_db"`
	RedisChannel string        `yaml:"redis_channel"`
	APIKey       string        `yaml:"api_key"`
	AdminKey     string        `yaml:"admin_key"`
	BillingEvery time.Duration `yaml:"billing_every"`
	SaveEvery    time.Duration `yaml:"autosave_every"`

	// ExternalBilling leaves the dues sweep to gangs-worker.
	ExternalBilling bool `yaml:"external_billing"`
}

type CLIConfig struct {
	APIBaseURL string
	APIKey     string
	AdminKey   string
}

type WorkerConfig struct {
	CLIConfig
	BillingEvery time.Duration
	RunOnce      bool
}

func defaultServer() ServerConfig {
	return ServerConfig{
		Addr:         ":8080",
		Store:        StoreSQLite,
		SQLitePath:   "data/gangs.db",
		RedisChannel: "gangs:events",
		BillingEvery: time.Minute,
		SaveEvery:    30 * time.Second,
	}
}

// LoadServerFromEnv builds the server config from defaults, then the YAML
// file named by GANGS_CONFIG (if any), then environment variables.
func LoadServerFromEnv() (ServerConfig, error) {
	cfg := defaultServer()
	if path := strings.TrimSpace(os.Getenv("GANGS_CONFIG")); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		if !strings.HasPrefix(port, ":") {
			port = ":" + port
		}
		cfg.Addr = port
	} else {
		cfg.Addr = envDefault("GANGS_API_ADDR", cfg.Addr)
	}
	cfg.Store = strings.ToLower(envDefault("GANGS_STORE", cfg.Store))
	cfg.DatabaseURL = envDefault("DATABASE_URL", cfg.DatabaseURL)
	cfg.SQLitePath = envDefault("GANGS_SQLITE_PATH", cfg.SQLitePath)
	cfg.RedisAddr = envDefault("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPass = envDefault("REDIS_PASSWORD", cfg.RedisPass)
	cfg.RedisDB = envIntDefault("REDIS_DB", cfg.RedisDB)
	cfg.RedisChannel = envDefault("GANGS_REDIS_CHANNEL", cfg.RedisChannel)
	cfg.APIKey = envDefault("GANGS_API_KEY", cfg.APIKey)
	cfg.AdminKey = envDefault("GANGS_ADMIN_KEY", cfg.AdminKey)
	cfg.BillingEvery = envDurationDefault("GANGS_BILLING_EVERY", cfg.BillingEvery)
	cfg.SaveEvery = envDurationDefault("GANGS_AUTOSAVE_EVERY", cfg.SaveEvery)
	cfg.ExternalBilling = envBoolDefault("GANGS_EXTERNAL_BILLING", cfg.ExternalBilling)

	return cfg, cfg.Validate()
}

func (c ServerConfig) Validate() error {
	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("GANGS_SQLITE_PATH is required for the sqlite store")
		}
	default:
		return fmt.Errorf("unknown GANGS_STORE %q", c.Store)
	}
	if c.APIKey == "" {
		return fmt.Errorf("GANGS_API_KEY is required")
	}
	if c.BillingEvery <= 0 {
		return fmt.Errorf("GANGS_BILLING_EVERY must be positive")
	}
	if c.SaveEvery <= 0 {
		return fmt.Errorf("GANGS_AUTOSAVE_EVERY must be positive")
	}
	return nil
}

func loadFile(path string, cfg *ServerConfig) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func LoadCLIFromEnv() CLIConfig {
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("GANG_API_BASE_URL", "http://localhost:8080"), "/"),
		APIKey:     envDefault("GANG_API_KEY", ""),
		AdminKey:   envDefault("GANG_ADMIN_KEY", ""),
	}
}

// LoadWorkerFromEnv configures gangs-worker, which drives the dues sweep
// through the admin API.
func LoadWorkerFromEnv() (WorkerConfig, error) {
	cfg := WorkerConfig{
		CLIConfig:    LoadCLIFromEnv(),
		BillingEvery: envDurationDefault("GANGS_BILLING_EVERY", time.Minute),
		RunOnce:      envBoolDefault("GANGS_WORKER_RUN_ONCE", false),
	}
	if cfg.AdminKey == "" {
		return cfg, fmt.Errorf("GANG_ADMIN_KEY is required")
	}
	if cfg.BillingEvery <= 0 {
		return cfg, fmt.Errorf("GANGS_BILLING_EVERY must be positive")
	}
	return cfg, nil
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envIntDefault(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
