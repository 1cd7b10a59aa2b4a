package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"GANGS_CONFIG", "PORT", "GANGS_API_ADDR", "GANGS_STORE", "DATABASE_URL",
		"GANGS_SQLITE_PATH", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
		"GANGS_REDIS_CHANNEL", "GANGS_API_KEY", "GANGS_ADMIN_KEY",
		"GANGS_BILLING_EVERY", "GANGS_AUTOSAVE_EVERY", "GANGS_EXTERNAL_BILLING",
		"GANG_API_BASE_URL", "GANG_API_KEY", "GANG_ADMIN_KEY", "GANGS_WORKER_RUN_ONCE",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadServerDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("GANGS_API_KEY", "secret")

	cfg, err := LoadServerFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.Store != StoreSQLite || cfg.BillingEvery != time.Minute || cfg.SaveEvery != 30*time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadServerValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing api key", env: map[string]string{}},
		{name: "postgres without url", env: map[string]string{"GANGS_API_KEY": "k", "GANGS_STORE": "postgres"}},
		{name: "unknown store", env: map[string]string{"GANGS_API_KEY": "k", "GANGS_STORE": "mongo"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := LoadServerFromEnv(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoadServerYAMLOverlay(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "gangs.yaml")
	body := []byte("store: postgres\ndatabase_url: postgres://gangs@localhost/gangs\napi_key: from-file\nbilling_every: 2m\nredis_db: 3\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("GANGS_CONFIG", path)
	t.Setenv("GANGS_API_KEY", "from-env")
	t.Setenv("PORT", "9000")

	cfg, err := LoadServerFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store != StorePostgres || cfg.BillingEvery != 2*time.Minute || cfg.RedisDB != 3 {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.APIKey != "from-env" || cfg.Addr != ":9000" {
		t.Fatalf("env should win: key=%s addr=%s", cfg.APIKey, cfg.Addr)
	}
}

func TestLoadCLIFromEnv(t *testing.T) {
	t.Setenv("GANG_API_BASE_URL", "http://gangs.local:8080/")
	t.Setenv("GANG_API_KEY", "k")
	t.Setenv("GANG_ADMIN_KEY", "")
	cfg := LoadCLIFromEnv()
	if cfg.APIBaseURL != "http://gangs.local:8080" || cfg.APIKey != "k" || cfg.AdminKey != "" {
		t.Fatalf("unexpected cli config: %+v", cfg)
	}
}

func TestLoadWorkerFromEnv(t *testing.T) {
	clearEnv(t)
	if _, err := LoadWorkerFromEnv(); err == nil {
		t.Fatalf("expected error without admin key")
	}

	t.Setenv("GANG_ADMIN_KEY", "admin")
	t.Setenv("GANGS_BILLING_EVERY", "5m")
	t.Setenv("GANGS_WORKER_RUN_ONCE", "true")
	cfg, err := LoadWorkerFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BillingEvery != 5*time.Minute || !cfg.RunOnce || cfg.APIBaseURL != "http://localhost:8080" {
		t.Fatalf("unexpected worker config: %+v", cfg)
	}
}

func TestExternalBillingFlag(t *testing.T) {
	clearEnv(t)
	t.Setenv("GANGS_API_KEY", "k")
	t.Setenv("GANGS_EXTERNAL_BILLING", "yes")
	cfg, err := LoadServerFromEnv()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ExternalBilling {
		t.Fatalf("unparseable bool should keep the default")
	}
	t.Setenv("GANGS_EXTERNAL_BILLING", "true")
	if cfg, _ = LoadServerFromEnv(); !cfg.ExternalBilling {
		t.Fatalf("external billing not applied")
	}
}
