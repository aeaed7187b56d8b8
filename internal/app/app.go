// Package app wires the store server: object storage and persistence, the
// backend engine, and the HTTP and gRPC front ends.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"google.golang.org/grpc"

	grpcapi "github.com/sheetbase/sheetbase/internal/api/grpc"
	httpapi "github.com/sheetbase/sheetbase/internal/api/http"
	"github.com/sheetbase/sheetbase/internal/backend"
	"github.com/sheetbase/sheetbase/internal/config"
	"github.com/sheetbase/sheetbase/internal/observability"
	"github.com/sheetbase/sheetbase/internal/persist"
	"github.com/sheetbase/sheetbase/internal/server"
	"github.com/sheetbase/sheetbase/internal/storage"
	"github.com/sheetbase/sheetbase/pkg/transport"
)

// App manages the server lifecycle.
type App struct {
	cfg *config.Config

	engine    *backend.Engine
	stats     *observability.CallStats
	frontend  transport.Transport
	persister persist.Persister
	syncer    *persist.Syncer
	shutdown  *server.ShutdownManager

	httpServer   *http.Server
	httpListener net.Listener
	grpcServer   *grpc.Server
	grpcListener net.Listener

	mu      sync.Mutex
	running bool
}

// New validates cfg and creates an App.
func New(cfg *config.Config) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}
	return &App{cfg: cfg}, nil
}

// Start restores persisted state and starts the configured listeners.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app is already running")
	}
	a.running = true
	a.mu.Unlock()

	a.shutdown = server.NewShutdownManager(server.DefaultShutdownConfig())
	a.engine = backend.New(a.cfg.Auth)
	a.stats = observability.NewCallStats(time.Hour)
	a.frontend = observability.Instrument(a.engine, a.stats)
	a.shutdown.Go(func(ctx context.Context) { a.stats.Run(ctx, 5*time.Minute) })

	if err := a.initPersistence(ctx); err != nil {
		a.cleanup()
		return fmt.Errorf("failed to initialize persistence: %w", err)
	}
	if a.cfg.HTTP.Addr != "" {
		if err := a.startHTTP(); err != nil {
			a.cleanup()
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}
	if a.cfg.GRPC.Enabled {
		if err := a.startGRPC(); err != nil {
			a.cleanup()
			return fmt.Errorf("failed to start gRPC server: %w", err)
		}
	}

	mode := "open"
	if len(a.cfg.Auth.WriteTokens) > 0 || len(a.cfg.Auth.APIKeys) > 0 {
		mode = fmt.Sprintf("%d write tokens, %d api keys", len(a.cfg.Auth.WriteTokens), len(a.cfg.Auth.APIKeys))
	}
	log.Printf("Sheetbase started: persist=%s auth=%s", a.cfg.Persist.Type, mode)
	return nil
}

// initPersistence opens the persister, restores the engine from it and
// schedules periodic flushes.
func (a *App) initPersistence(ctx context.Context) error {
	switch a.cfg.Persist.Type {
	case config.PersistMemory:
		a.persister = persist.Memory{}
	case config.PersistSQLite:
		p, err := persist.NewSQLitePersister(a.cfg.Persist.Path)
		if err != nil {
			return err
		}
		a.persister = p
		log.Printf("Persistence: sqlite %s", a.cfg.Persist.Path)
	case config.PersistObject:
		store, err := a.objectStorage(ctx)
		if err != nil {
			return err
		}
		a.persister = persist.NewObjectPersister(store, a.cfg.Persist.Key)
		log.Printf("Persistence: object storage type=%s", a.cfg.Storage.Type)
	}
	a.shutdown.RegisterCloser("persister", a.persister)

	a.syncer = persist.NewSyncer(a.engine, a.persister, a.cfg.Persist.Interval)
	if err := a.syncer.Restore(ctx); err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	a.shutdown.RegisterCloser("final flush", server.CloserFunc(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return a.syncer.Flush(ctx)
	}))
	a.shutdown.Go(a.syncer.Run)
	return nil
}

func (a *App) objectStorage(ctx context.Context) (storage.ObjectStorage, error) {
	if a.cfg.Storage.Type == "s3" {
		s3cfg := storage.DefaultS3Config()
		if a.cfg.Storage.S3.Region != "" {
			s3cfg.Region = a.cfg.Storage.S3.Region
		}
		s3cfg.Endpoint = a.cfg.Storage.S3.Endpoint
		s3cfg.UsePathStyle = a.cfg.Storage.S3.UsePathStyle
		s3cfg.Prefix = a.cfg.Storage.S3.Prefix
		log.Printf("S3 Config: Bucket=%s, Region=%s, Endpoint=%s",
			a.cfg.Storage.S3.Bucket, s3cfg.Region, s3cfg.Endpoint)
		return storage.NewS3Storage(ctx, a.cfg.Storage.S3.Bucket, s3cfg)
	}
	return storage.NewLocalStorage(a.cfg.Storage.Path)
}

func (a *App) startHTTP() error {
	mux := http.NewServeMux()
	middleware := httpapi.ChainMiddleware(
		server.ShutdownMiddleware(a.shutdown),
		httpapi.DefaultMiddleware(a.cfg.HTTP.AccessLog),
	)
	handler := middleware(httpapi.NewStoreHandler(a.frontend))
	mux.Handle(httpapi.APIPrefix, handler)
	mux.Handle(httpapi.APIPrefix+"/", handler)
	mux.HandleFunc("/health", a.healthHandler)
	mux.HandleFunc("/stats", a.statsHandler)

	ln, err := net.Listen("tcp", a.cfg.HTTP.Addr)
	if err != nil {
		return err
	}
	a.httpListener = ln
	a.httpServer = &http.Server{
		Handler:      mux,
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}
	a.shutdown.RegisterCloser("http", server.HTTPServerCloser(a.httpServer, 10*time.Second))

	go func() {
		log.Printf("HTTP server listening on %s", ln.Addr())
		if err := a.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("[WARN] HTTP server error: %v", err)
		}
	}()
	return nil
}

func (a *App) startGRPC() error {
	a.grpcServer = grpc.NewServer(grpc.ChainUnaryInterceptor(
		server.UnaryInterceptor(a.shutdown),
		grpcapi.RecoveryInterceptor,
	))
	grpcapi.NewStoreServer(a.frontend, a.cfg.HTTP.AccessLog).Register(a.grpcServer)

	ln, err := net.Listen("tcp", a.cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on gRPC address: %w", err)
	}
	a.grpcListener = ln
	a.shutdown.RegisterCloser("grpc", server.CloserFunc(func() error {
		a.grpcServer.GracefulStop()
		return nil
	}))

	go func() {
		log.Printf("gRPC server listening on %s", ln.Addr())
		if err := a.grpcServer.Serve(ln); err != nil {
			log.Printf("[WARN] gRPC server error: %v", err)
		}
	}()
	return nil
}

// Stop drains calls, stops the listeners, flushes state and closes the
// persister.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	a.mu.Unlock()

	err := a.shutdown.Shutdown(ctx, "stop requested")
	log.Printf("Sheetbase stopped")
	return err
}

// WaitForShutdown blocks until a signal arrives or ctx ends, then stops.
func (a *App) WaitForShutdown(ctx context.Context) error {
	err := a.shutdown.ListenForSignals(ctx)
	a.mu.Lock()
	a.running = false
	a.mu.Unlock()
	return err
}

// HTTPAddr returns the bound HTTP address, or "" when HTTP is off.
func (a *App) HTTPAddr() string {
	if a.httpListener == nil {
		return ""
	}
	return a.httpListener.Addr().String()
}

// GRPCAddr returns the bound gRPC address, or "" when gRPC is off.
func (a *App) GRPCAddr() string {
	if a.grpcListener == nil {
		return ""
	}
	return a.grpcListener.Addr().String()
}

// Engine returns the backend engine.
func (a *App) Engine() *backend.Engine { return a.engine }

// Stats returns the call statistics of the HTTP and gRPC front ends.
func (a *App) Stats() *observability.CallStats { return a.stats }

// cleanup releases what a failed Start already opened.
func (a *App) cleanup() {
	if a.shutdown != nil {
		a.shutdown.Shutdown(context.Background(), "start failed")
	}
	a.mu.Lock()
	a.running = false
	a.mu.Unlock()
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "healthy",
		"service": "sheetbase",
		"stores":  len(a.engine.Stores()),
		"version": a.engine.Version(),
	})
}

func (a *App) statsHandler(w http.ResponseWriter, r *http.Request) {
	n := 10
	if v := r.URL.Query().Get("top"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			n = parsed
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"ops":    a.stats.TopOps(n),
		"stores": a.stats.TopStores(n),
	})
}
