// Package config holds the configuration of the store server and the CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sheetbase/sheetbase/internal/backend"
)

// Persistence modes.
const (
	PersistMemory = "memory"
	PersistSQLite = "sqlite"
	PersistObject = "object"
)

// Client transports.
const (
	TransportHTTP = "http"
	TransportGRPC = "grpc"
)

// Config is the unified configuration.
type Config struct {
	// DataDir is the base directory for local files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	HTTP    HTTPConfig    `json:"http" yaml:"http"`
	GRPC    GRPCConfig    `json:"grpc" yaml:"grpc"`
	Persist PersistConfig `json:"persist" yaml:"persist"`
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Auth lists the credentials the server accepts. Empty means open.
	Auth backend.Auth `json:"auth" yaml:"auth"`

	Client ClientConfig `json:"client" yaml:"client"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Addr         string        `json:"addr" yaml:"addr"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout" yaml:"idle_timeout"`

	// AccessLog logs one line per request
	AccessLog bool `json:"access_log" yaml:"access_log"`
}

// GRPCConfig holds gRPC server configuration.
type GRPCConfig struct {
	Addr    string `json:"addr" yaml:"addr"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

// PersistConfig selects where backend snapshots go.
type PersistConfig struct {
	// Type is memory, sqlite or object
	Type string `json:"type" yaml:"type"`

	// Path is the SQLite database file (sqlite type)
	Path string `json:"path" yaml:"path"`

	// Key is the snapshot object key (object type)
	Key string `json:"key" yaml:"key"`

	// Interval is how often changed state is flushed
	Interval time.Duration `json:"interval" yaml:"interval"`
}

// StorageConfig holds object storage configuration for the object persister.
type StorageConfig struct {
	// Type is local or s3
	Type string   `json:"type" yaml:"type"`
	Path string   `json:"path" yaml:"path"`
	S3   S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	Bucket       string `json:"bucket" yaml:"bucket"`
	Region       string `json:"region" yaml:"region"`
	Endpoint     string `json:"endpoint" yaml:"endpoint"`
	UsePathStyle bool   `json:"use_path_style" yaml:"use_path_style"`
	Prefix       string `json:"prefix" yaml:"prefix"`
}

// ClientConfig is what the CLI needs to reach a store.
type ClientConfig struct {
	// Transport is http or grpc
	Transport string `json:"transport" yaml:"transport"`

	// Endpoint is the server base URL (http) or address (grpc)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	Store  string `json:"store" yaml:"store"`
	Token  string `json:"token" yaml:"token"`
	APIKey string `json:"api_key" yaml:"api_key"`

	// Schema is a YAML or JSON table definition file
	Schema string `json:"schema" yaml:"schema"`

	// Migrations is a YAML or JSON migration file
	Migrations string `json:"migrations" yaml:"migrations"`

	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/sheetbase",
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		GRPC: GRPCConfig{
			Addr:    ":9090",
			Enabled: true,
		},
		Persist: PersistConfig{
			Type:     PersistSQLite,
			Interval: 5 * time.Second,
		},
		Storage: StorageConfig{
			Type: "local",
		},
		Client: ClientConfig{
			Transport: TransportHTTP,
			Endpoint:  "http://localhost:8080",
			Timeout:   30 * time.Second,
		},
	}
}

// Resolve fills paths derived from DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/sheetbase"
	}
	if c.Persist.Path == "" {
		c.Persist.Path = filepath.Join(c.DataDir, "sheetbase.db")
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "storage")
	}
}

// Validate checks the server sections.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	switch c.Persist.Type {
	case PersistMemory, PersistSQLite, PersistObject:
	default:
		return fmt.Errorf("invalid persist type: %s (must be memory, sqlite or object)", c.Persist.Type)
	}

	if c.Persist.Type == PersistObject {
		if c.Storage.Type != "local" && c.Storage.Type != "s3" {
			return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
		}
		if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
			return fmt.Errorf("s3.bucket is required when storage type is s3")
		}
	}

	if c.HTTP.Addr == "" && !c.GRPC.Enabled {
		return fmt.Errorf("at least one of http.addr or grpc must be enabled")
	}
	return nil
}

// ValidateClient checks the client section.
func (c *Config) ValidateClient() error {
	switch c.Client.Transport {
	case TransportHTTP, TransportGRPC:
	default:
		return fmt.Errorf("invalid client transport: %s (must be http or grpc)", c.Client.Transport)
	}
	if c.Client.Endpoint == "" {
		return fmt.Errorf("client.endpoint is required")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file over the
// defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv applies SHEETBASE_ environment variables to cfg.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("SHEETBASE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	// HTTP configuration
	if v := os.Getenv("SHEETBASE_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("SHEETBASE_HTTP_ACCESS_LOG"); v != "" {
		cfg.HTTP.AccessLog = v == "true" || v == "1"
	}

	// gRPC configuration
	if v := os.Getenv("SHEETBASE_GRPC_ADDR"); v != "" {
		cfg.GRPC.Addr = v
	}
	if v := os.Getenv("SHEETBASE_GRPC_ENABLED"); v != "" {
		cfg.GRPC.Enabled = v == "true" || v == "1"
	}

	// Persistence
	if v := os.Getenv("SHEETBASE_PERSIST_TYPE"); v != "" {
		cfg.Persist.Type = v
	}
	if v := os.Getenv("SHEETBASE_PERSIST_PATH"); v != "" {
		cfg.Persist.Path = v
	}
	if v := os.Getenv("SHEETBASE_PERSIST_KEY"); v != "" {
		cfg.Persist.Key = v
	}
	if v := os.Getenv("SHEETBASE_PERSIST_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Persist.Interval = d
		}
	}

	// Storage configuration
	if v := os.Getenv("SHEETBASE_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("SHEETBASE_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("SHEETBASE_S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv("SHEETBASE_S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("SHEETBASE_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}

	// Credentials, comma separated
	if v := os.Getenv("SHEETBASE_AUTH_WRITE_TOKENS"); v != "" {
		cfg.Auth.WriteTokens = splitList(v)
	}
	if v := os.Getenv("SHEETBASE_AUTH_API_KEYS"); v != "" {
		cfg.Auth.APIKeys = splitList(v)
	}

	// Client
	if v := os.Getenv("SHEETBASE_TRANSPORT"); v != "" {
		cfg.Client.Transport = v
	}
	if v := os.Getenv("SHEETBASE_ENDPOINT"); v != "" {
		cfg.Client.Endpoint = v
	}
	if v := os.Getenv("SHEETBASE_STORE"); v != "" {
		cfg.Client.Store = v
	}
	if v := os.Getenv("SHEETBASE_TOKEN"); v != "" {
		cfg.Client.Token = v
	}
	if v := os.Getenv("SHEETBASE_API_KEY"); v != "" {
		cfg.Client.APIKey = v
	}
	if v := os.Getenv("SHEETBASE_SCHEMA"); v != "" {
		cfg.Client.Schema = v
	}
}

// EnsureDirectories creates the local directories the server writes to.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir}
	switch c.Persist.Type {
	case PersistSQLite:
		dirs = append(dirs, filepath.Dir(c.Persist.Path))
	case PersistObject:
		if c.Storage.Type == "local" {
			dirs = append(dirs, c.Storage.Path)
		}
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
