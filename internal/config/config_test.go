package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if err := cfg.ValidateClient(); err != nil {
		t.Fatalf("default client config invalid: %v", err)
	}
	if cfg.Persist.Path != filepath.Join("./data/sheetbase", "sheetbase.db") {
		t.Errorf("persist path = %s", cfg.Persist.Path)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"bad persist", func(c *Config) { c.Persist.Type = "tape" }, "invalid persist type"},
		{"bad storage", func(c *Config) { c.Persist.Type = PersistObject; c.Storage.Type = "ftp" }, "invalid storage type"},
		{"s3 without bucket", func(c *Config) { c.Persist.Type = PersistObject; c.Storage.Type = "s3" }, "s3.bucket is required"},
		{"no listener", func(c *Config) { c.HTTP.Addr = ""; c.GRPC.Enabled = false }, "at least one"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			cfg.Resolve()
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("got %v, want error containing %q", err, tt.want)
			}
		})
	}

	cfg := DefaultConfig()
	cfg.Client.Transport = "carrier-pigeon"
	if err := cfg.ValidateClient(); err == nil {
		t.Error("expected client transport error")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "sheetbase.yaml")
	content := `
data_dir: /srv/sheetbase
http:
  addr: ":8181"
  access_log: true
persist:
  type: object
  interval: 10s
storage:
  type: s3
  s3:
    bucket: snaps
auth:
  write_tokens: [tok]
  api_keys: [key]
client:
  transport: grpc
  endpoint: localhost:9090
`
	if err := os.WriteFile(yamlPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFromFile(yamlPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DataDir != "/srv/sheetbase" || cfg.HTTP.Addr != ":8181" || !cfg.HTTP.AccessLog {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.Persist.Interval != 10*time.Second || cfg.Storage.S3.Bucket != "snaps" {
		t.Errorf("persist/storage = %+v / %+v", cfg.Persist, cfg.Storage)
	}
	if !reflect.DeepEqual(cfg.Auth.WriteTokens, []string{"tok"}) || !reflect.DeepEqual(cfg.Auth.APIKeys, []string{"key"}) {
		t.Errorf("auth = %+v", cfg.Auth)
	}
	if cfg.Client.Transport != TransportGRPC {
		t.Errorf("client transport = %s", cfg.Client.Transport)
	}
	// untouched defaults survive
	if !cfg.GRPC.Enabled || cfg.GRPC.Addr != ":9090" {
		t.Errorf("grpc defaults lost: %+v", cfg.GRPC)
	}

	jsonPath := filepath.Join(dir, "sheetbase.json")
	if err := os.WriteFile(jsonPath, []byte(`{"persist":{"type":"memory"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadFromFile(jsonPath)
	if err != nil || cfg.Persist.Type != PersistMemory {
		t.Fatalf("json load = %+v, %v", cfg, err)
	}

	if _, err := LoadFromFile(filepath.Join(dir, "sheetbase.ini")); err == nil {
		t.Error("expected an error for a missing file")
	}
	iniPath := filepath.Join(dir, "config.ini")
	os.WriteFile(iniPath, []byte("x=1"), 0o644)
	if _, err := LoadFromFile(iniPath); err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Errorf("got %v, want unsupported format", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SHEETBASE_HTTP_ADDR", ":7000")
	t.Setenv("SHEETBASE_GRPC_ENABLED", "false")
	t.Setenv("SHEETBASE_PERSIST_TYPE", "memory")
	t.Setenv("SHEETBASE_PERSIST_INTERVAL", "1m")
	t.Setenv("SHEETBASE_AUTH_WRITE_TOKENS", "a, b,,c")
	t.Setenv("SHEETBASE_STORE", "s-1")
	t.Setenv("SHEETBASE_TOKEN", "tok")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	if cfg.HTTP.Addr != ":7000" || cfg.GRPC.Enabled {
		t.Errorf("http/grpc = %+v / %+v", cfg.HTTP, cfg.GRPC)
	}
	if cfg.Persist.Type != PersistMemory || cfg.Persist.Interval != time.Minute {
		t.Errorf("persist = %+v", cfg.Persist)
	}
	if !reflect.DeepEqual(cfg.Auth.WriteTokens, []string{"a", "b", "c"}) {
		t.Errorf("write tokens = %v", cfg.Auth.WriteTokens)
	}
	if cfg.Client.Store != "s-1" || cfg.Client.Token != "tok" {
		t.Errorf("client = %+v", cfg.Client)
	}
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.Persist.Type = PersistObject
	cfg.Resolve()
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{cfg.DataDir, cfg.Storage.Path} {
		if fi, err := os.Stat(p); err != nil || !fi.IsDir() {
			t.Errorf("%s not created: %v", p, err)
		}
	}
}
