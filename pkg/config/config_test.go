package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// withConfigFile writes yamlContent to config.yaml in a temp directory and
// makes it the working directory for the test.
func withConfigFile(t *testing.T, yamlContent string) {
	t.Helper()

	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, "config.yaml"), []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	originalDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("failed to get working directory: %v", err)
	}
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("failed to change directory: %v", err)
	}
	t.Cleanup(func() {
		os.Chdir(originalDir)
	})

	t.Setenv("JWT_SECRET", "test-secret")
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	withConfigFile(t, `
port: "8080"
env: "test"
database:
  host: "db.example.com"
  port: 5432
  user: "testuser"
  database: "testdb"
`)

	t.Setenv("PORT", "9090")
	t.Setenv("ENVIRONMENT", "production")

	cfg, err := Load("test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("expected Port=9090 (from env), got %s", cfg.Port)
	}
	if cfg.Env != "production" {
		t.Errorf("expected Env=production (from env), got %s", cfg.Env)
	}
	if cfg.Version != "test-version" {
		t.Errorf("expected Version=test-version, got %s", cfg.Version)
	}
	if cfg.Database.User != "testuser" {
		t.Errorf("expected Database.User=testuser (from yaml), got %s", cfg.Database.User)
	}
}

func TestLoad_Defaults(t *testing.T) {
	withConfigFile(t, `env: "test"`)

	cfg, err := Load("dev")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Database.Type != "postgres" {
		t.Errorf("expected Database.Type=postgres, got %s", cfg.Database.Type)
	}
	if cfg.Generator.Provider != "gemini" {
		t.Errorf("expected Generator.Provider=gemini, got %s", cfg.Generator.Provider)
	}
	if cfg.Generator.Timeout != 20*time.Second {
		t.Errorf("expected Generator.Timeout=20s, got %v", cfg.Generator.Timeout)
	}
	if cfg.Redis.Host != "" {
		t.Errorf("expected Redis disabled by default, got host %q", cfg.Redis.Host)
	}

	p := cfg.Pipeline
	if p.MaxRows != 50 || p.RecentBookings != 10 || p.QueryConcurrency != 4 {
		t.Errorf("unexpected pipeline defaults: %+v", p)
	}
	if p.StoreTimeout != 3*time.Second || p.QueryTimeout != 5*time.Second {
		t.Errorf("unexpected pipeline timeouts: %+v", p)
	}
}

func TestLoad_PipelineFromYAML(t *testing.T) {
	withConfigFile(t, `
pipeline:
  store_timeout: 1s
  query_timeout: 2s
  max_rows: 20
  recent_bookings: 5
  query_concurrency: 2
redis:
  host: "cache.internal"
  proposal_ttl: 1m
`)

	cfg, err := Load("dev")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	want := PipelineConfig{
		StoreTimeout:     time.Second,
		QueryTimeout:     2 * time.Second,
		MaxRows:          20,
		RecentBookings:   5,
		QueryConcurrency: 2,
	}
	if cfg.Pipeline != want {
		t.Errorf("Pipeline = %+v, want %+v", cfg.Pipeline, want)
	}
	if cfg.Redis.ProposalTTL != time.Minute {
		t.Errorf("expected Redis.ProposalTTL=1m, got %v", cfg.Redis.ProposalTTL)
	}
	if got := cfg.Redis.RedisAddr(); got != "cache.internal:6379" {
		t.Errorf("expected RedisAddr=cache.internal:6379, got %s", got)
	}
}

func TestLoad_SecretsOnlyFromEnv(t *testing.T) {
	withConfigFile(t, `
database:
  password: "from-yaml"
generator:
  api_key: "from-yaml"
`)
	t.Setenv("DB_PASSWORD", "from-env")

	cfg, err := Load("dev")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Database.Password != "from-env" {
		t.Errorf("expected Database.Password from env, got %q", cfg.Database.Password)
	}
	if cfg.Generator.APIKey == "from-yaml" {
		t.Error("Generator.APIKey must not be read from yaml")
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	originalDir, _ := os.Getwd()
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("failed to change directory: %v", err)
	}
	t.Cleanup(func() {
		os.Chdir(originalDir)
	})

	if _, err := Load("dev"); err == nil {
		t.Fatal("expected error when config.yaml is missing")
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "unknown database type",
			yaml:    "database:\n  type: mysql\n",
			wantErr: "unsupported database type",
		},
		{
			name:    "unknown provider",
			yaml:    "generator:\n  provider: ollama\n",
			wantErr: "unsupported generator provider",
		},
		{
			name:    "auth without secret",
			yaml:    "env: test\n",
			env:     map[string]string{"JWT_SECRET": ""},
			wantErr: "JWT_SECRET",
		},
		{
			name:    "negative row cap",
			yaml:    "pipeline:\n  max_rows: -1\n",
			wantErr: "max_rows",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withConfigFile(t, tt.yaml)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load("dev")
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoad_AuthCanBeDisabledFromEnv(t *testing.T) {
	withConfigFile(t, "env: test\n")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("AUTH_ENABLED", "false")

	cfg, err := Load("dev")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Auth.Enabled {
		t.Error("expected auth disabled")
	}
}

func TestResolveHostForDocker_KeepsRemoteHosts(t *testing.T) {
	for _, host := range []string{"", "mydb.example.com", "192.168.1.100", "host.docker.internal"} {
		if got := ResolveHostForDocker(host); got != host {
			t.Errorf("ResolveHostForDocker(%q) = %q, want unchanged", host, got)
		}
	}
}

func TestConfig_Addr(t *testing.T) {
	cfg := &Config{BindAddr: "0.0.0.0", Port: "8080"}
	if got := cfg.Addr(); got != "0.0.0.0:8080" {
		t.Errorf("Addr() = %q, want 0.0.0.0:8080", got)
	}
}
