// Command sheetbase-server runs a self-hosted range store that sheetbase
// clients reach over HTTP or gRPC.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/sheetbase/sheetbase/internal/app"
	"github.com/sheetbase/sheetbase/internal/config"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile  string
		dataDir     string
		httpAddr    string
		grpcAddr    string
		persistType string
		tokens      string
		apiKeys     string
		accessLog   bool
		showVersion bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&dataDir, "data-dir", "", "Base directory for data files")
	flag.StringVar(&httpAddr, "http-addr", "", "HTTP listen address")
	flag.StringVar(&grpcAddr, "grpc-addr", "", "gRPC listen address")
	flag.StringVar(&persistType, "persist", "", "Persistence: memory, sqlite, object")
	flag.StringVar(&tokens, "tokens", "", "Comma-separated write tokens")
	flag.StringVar(&apiKeys, "api-keys", "", "Comma-separated read-only API keys")
	flag.BoolVar(&accessLog, "access-log", false, "Log every request")
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "sheetbase-server - self-hosted range store\n\n")
		fmt.Fprintf(os.Stderr, "Usage: sheetbase-server [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  SHEETBASE_DATA_DIR            Base directory for data files\n")
		fmt.Fprintf(os.Stderr, "  SHEETBASE_HTTP_ADDR           HTTP listen address\n")
		fmt.Fprintf(os.Stderr, "  SHEETBASE_GRPC_ADDR           gRPC listen address\n")
		fmt.Fprintf(os.Stderr, "  SHEETBASE_PERSIST_TYPE        memory, sqlite or object\n")
		fmt.Fprintf(os.Stderr, "  SHEETBASE_STORAGE_TYPE        local or s3 (object persistence)\n")
		fmt.Fprintf(os.Stderr, "  SHEETBASE_AUTH_WRITE_TOKENS   Comma-separated write tokens\n")
		fmt.Fprintf(os.Stderr, "  SHEETBASE_AUTH_API_KEYS       Comma-separated API keys\n")
	}
	flag.Parse()

	if showVersion {
		fmt.Printf("sheetbase-server version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	cfg, err := loadConfig(configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// flags win over file and environment
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if httpAddr != "" {
		cfg.HTTP.Addr = httpAddr
	}
	if grpcAddr != "" {
		cfg.GRPC.Addr = grpcAddr
	}
	if persistType != "" {
		cfg.Persist.Type = persistType
	}
	if tokens != "" {
		cfg.Auth.WriteTokens = strings.Split(tokens, ",")
	}
	if apiKeys != "" {
		cfg.Auth.APIKeys = strings.Split(apiKeys, ",")
	}
	if accessLog {
		cfg.HTTP.AccessLog = true
	}

	printBanner(cfg)

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	if err := application.WaitForShutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		cfg = loaded
	}
	config.LoadFromEnv(cfg)
	return cfg, nil
}

func printBanner(cfg *config.Config) {
	log.Printf("sheetbase-server %s", version)
	log.Printf("  Data Dir: %s", cfg.DataDir)
	log.Printf("  Persist:  %s", cfg.Persist.Type)
	if cfg.HTTP.Addr != "" {
		log.Printf("  HTTP:     %s", cfg.HTTP.Addr)
	}
	if cfg.GRPC.Enabled {
		log.Printf("  gRPC:     %s", cfg.GRPC.Addr)
	}
}
