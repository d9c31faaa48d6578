package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkgconfig "github.com/starford/nocel/pkg/config"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if got := cfg.Policy.Quota.Limit(); got != 140<<20 {
		t.Errorf("quota = %d, want 140 MiB", got)
	}
}

func TestAdminConfig_DisabledMode(t *testing.T) {
	cfg := AdminConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.Enabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAdminConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AdminConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AdminModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AdminModeDisabled)
	}
}

func TestAdminConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AdminConfig{Mode: "token"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAdminConfig_InvalidMode(t *testing.T) {
	cfg := AdminConfig{Mode: "magic", Token: "x"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestStorageConfig(t *testing.T) {
	cfg := StorageConfig{Backend: StorageS3}
	if err := cfg.Validate(); err == nil {
		t.Error("s3 backend without bucket should fail")
	}
	cfg.S3 = S3Config{Bucket: "b", Region: "eu-west-1"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("s3 backend with bucket: %v", err)
	}

	fs := StorageConfig{}
	if err := fs.Validate(); err == nil {
		t.Error("fs backend without path should fail")
	}
	if fs.Backend != StorageFS {
		t.Errorf("backend = %q, want fs default", fs.Backend)
	}

	bad := StorageConfig{Backend: "ftp", Path: "x"}
	if err := bad.Validate(); err == nil {
		t.Error("unknown backend should fail")
	}
}

func TestPolicyToggles(t *testing.T) {
	cfg := PolicyConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled policies need no values: %v", err)
	}
	if cfg.Quota.Limit() != 0 {
		t.Error("disabled quota should report no limit")
	}

	cfg.Expiry.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Error("enabled expiry without ttl should fail")
	}
	cfg.Expiry.TTL = time.Hour
	cfg.Quota.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Error("enabled quota without limit should fail")
	}
}

func TestAccessSecretLength(t *testing.T) {
	cfg := AccessConfig{Secret: "short", TTL: time.Hour}
	if err := cfg.Validate(); err == nil {
		t.Error("short secret should fail")
	}
}

func TestLoadConfigWithEnvOverlay(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.yaml")
	body := `
app:
  log_level: debug
  http:
    port: 8080
sqlite:
  path: ./test.db
storage:
  backend: fs
  path: ./uploads
policy:
  expiry:
    enabled: true
    ttl: 24h
  quota:
    enabled: true
    limit_bytes: 146800640
upload:
  max_request_bytes: 1048576
listing:
  page_size: 10
`
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("NOCEL_APP_HTTP_PORT", "9999")
	t.Setenv("NOCEL_POLICY_EXPIRY_ENABLED", "false")

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(p, cfg, pkgconfig.WithEnvPrefix(EnvPrefix)); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.HTTP.Port != 9999 {
		t.Errorf("port = %d, want env override", cfg.App.HTTP.Port)
	}
	if cfg.Policy.Expiry.Enabled {
		t.Error("expiry should be disabled by env")
	}
	if cfg.Listing.PageSize != 10 {
		t.Errorf("page size = %d", cfg.Listing.PageSize)
	}
	if cfg.App.LogLevel.String() != "DEBUG" {
		t.Errorf("log level = %s", cfg.App.LogLevel)
	}
}
