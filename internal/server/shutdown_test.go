package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestShutdown_ClosersRunInReverseOrder(t *testing.T) {
	sm := NewShutdownManager(DefaultShutdownConfig())
	var order []string
	for _, name := range []string{"persister", "grpc", "http"} {
		name := name
		sm.RegisterCloser(name, CloserFunc(func() error {
			order = append(order, name)
			return nil
		}))
	}
	if err := sm.Shutdown(context.Background(), "test"); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if want := []string{"http", "grpc", "persister"}; !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}

	// second call is a no-op
	if err := sm.Shutdown(context.Background(), "again"); err != nil {
		t.Errorf("second shutdown: %v", err)
	}
	if len(order) != 3 {
		t.Errorf("closers ran again: %v", order)
	}
}

func TestShutdown_ReportsFirstCloseError(t *testing.T) {
	sm := NewShutdownManager(DefaultShutdownConfig())
	boom := errors.New("boom")
	sm.RegisterCloser("a", CloserFunc(func() error { return boom }))
	sm.RegisterCloser("b", CloserFunc(func() error { return nil }))
	if err := sm.Shutdown(context.Background(), "test"); !errors.Is(err, boom) {
		t.Fatalf("got %v, want boom", err)
	}
}

func TestShutdown_StopsWorkersBeforeClosers(t *testing.T) {
	sm := NewShutdownManager(DefaultShutdownConfig())
	var mu sync.Mutex
	var events []string
	note := func(s string) {
		mu.Lock()
		events = append(events, s)
		mu.Unlock()
	}

	started := make(chan struct{})
	sm.Go(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		note("worker stopped")
	})
	sm.RegisterCloser("store", CloserFunc(func() error { note("closed"); return nil }))
	<-started

	if err := sm.Shutdown(context.Background(), "test"); err != nil {
		t.Fatal(err)
	}
	if want := []string{"worker stopped", "closed"}; !reflect.DeepEqual(events, want) {
		t.Errorf("events = %v, want %v", events, want)
	}
}

func TestShutdown_WaitsForInFlight(t *testing.T) {
	sm := NewShutdownManager(DefaultShutdownConfig())
	if !sm.TrackRequest() {
		t.Fatal("request rejected before shutdown")
	}

	done := make(chan error, 1)
	go func() { done <- sm.Shutdown(context.Background(), "test") }()

	select {
	case <-sm.ShutdownCh():
	case <-time.After(time.Second):
		t.Fatal("shutdown never started")
	}
	if sm.TrackRequest() {
		t.Error("request accepted during shutdown")
	}
	select {
	case <-done:
		t.Fatal("shutdown finished with a call in flight")
	case <-time.After(100 * time.Millisecond):
	}

	sm.UntrackRequest()
	if err := <-done; err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if sm.InFlightCount() != 0 || !sm.IsShuttingDown() {
		t.Errorf("in flight %d, shutting down %v", sm.InFlightCount(), sm.IsShuttingDown())
	}
}

func TestShutdown_DrainTimeout(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{ShutdownTimeout: time.Second, DrainTimeout: 50 * time.Millisecond})
	sm.TrackRequest()
	if err := sm.Shutdown(context.Background(), "test"); err == nil {
		t.Fatal("expected a drain error")
	}
}

func TestShutdownMiddleware(t *testing.T) {
	sm := NewShutdownManager(DefaultShutdownConfig())
	h := ShutdownMiddleware(sm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sm.InFlightCount() != 1 {
			t.Errorf("in flight = %d inside handler", sm.InFlightCount())
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}

	sm.Shutdown(context.Background(), "test")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusServiceUnavailable || rec.Header().Get("Connection") != "close" {
		t.Errorf("status = %d, connection = %q", rec.Code, rec.Header().Get("Connection"))
	}
}

func TestUnaryInterceptor(t *testing.T) {
	sm := NewShutdownManager(DefaultShutdownConfig())
	intercept := UnaryInterceptor(sm)
	handler := func(ctx context.Context, req any) (any, error) { return "ok", nil }

	resp, err := intercept(context.Background(), nil, &grpc.UnaryServerInfo{}, handler)
	if err != nil || resp != "ok" {
		t.Fatalf("got %v, %v", resp, err)
	}

	sm.Shutdown(context.Background(), "test")
	_, err = intercept(context.Background(), nil, &grpc.UnaryServerInfo{}, handler)
	if status.Code(err) != codes.Unavailable {
		t.Errorf("code = %v, want Unavailable", status.Code(err))
	}
}
