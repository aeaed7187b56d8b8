package grpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/sheetbase/sheetbase/internal/backend"
	"github.com/sheetbase/sheetbase/pkg/transport"
	"github.com/sheetbase/sheetbase/pkg/transport/grpctransport"
)

func dial(t *testing.T, backend transport.Transport) *grpctransport.Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnaryInterceptor(RecoveryInterceptor))
	NewStoreServer(backend, false).Register(srv)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	client, err := grpctransport.Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestStoreServer_RoundTrip(t *testing.T) {
	engine := backend.New(backend.Auth{WriteTokens: []string{"tok"}, APIKeys: []string{"key"}})
	client := dial(t, engine)
	ctx := context.Background()

	created, err := client.Do(ctx, &transport.Call{Op: transport.OpCreateStore, Title: "shop", Tabs: []string{"Orders"}, Token: "tok"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.StoreID == "" || len(created.Tabs) != 1 {
		t.Fatalf("unexpected create result %+v", created)
	}

	if _, err := client.Do(ctx, &transport.Call{
		Op: transport.OpWrite, Store: created.StoreID, Range: "Orders!A1", Token: "tok",
		Values: [][]any{{"id", "total"}, {"o1", 12.5}, {"o2", true}},
	}); err != nil {
		t.Fatalf("write: %v", err)
	}

	res, err := client.Do(ctx, &transport.Call{Op: transport.OpRead, Store: created.StoreID, Range: "Orders!A1:B", APIKey: "key"})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(res.Values) != 3 || res.Values[1][1] != 12.5 || res.Values[2][1] != true {
		t.Errorf("unexpected values %#v", res.Values)
	}
}

func TestStoreServer_StatusMapping(t *testing.T) {
	engine := backend.New(backend.Auth{WriteTokens: []string{"tok"}, APIKeys: []string{"key"}})
	client := dial(t, engine)
	ctx := context.Background()

	created, err := client.Do(ctx, &transport.Call{Op: transport.OpCreateStore, Tabs: []string{"T"}, Token: "tok"})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		call *transport.Call
		code int
	}{
		{"bad token", &transport.Call{Op: transport.OpMetadata, Store: created.StoreID, Token: "stale"}, 401},
		{"no credentials", &transport.Call{Op: transport.OpMetadata, Store: created.StoreID}, 401},
		{"api key write", &transport.Call{Op: transport.OpClear, Store: created.StoreID, Range: "T!A:A", APIKey: "key"}, 403},
		{"unknown store", &transport.Call{Op: transport.OpMetadata, Store: "missing", Token: "tok"}, 404},
		{"unknown tab", &transport.Call{Op: transport.OpRead, Store: created.StoreID, Range: "Nope!A1:B", Token: "tok"}, 400},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Do(ctx, tt.call)
			var se *transport.StatusError
			if !errors.As(err, &se) {
				t.Fatalf("expected status error, got %v", err)
			}
			if se.Code != tt.code {
				t.Errorf("code = %d (%s), want %d", se.Code, se.Body, tt.code)
			}
		})
	}
}

func TestStoreServer_RetryAfterTrailer(t *testing.T) {
	limited := transport.Func(func(ctx context.Context, call *transport.Call) (*transport.Result, error) {
		return nil, &transport.StatusError{Code: 429, Body: "slow down", RetryAfter: 3 * time.Second}
	})
	client := dial(t, limited)

	_, err := client.Do(context.Background(), &transport.Call{Op: transport.OpMetadata, Store: "s", Token: "t"})
	var se *transport.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected status error, got %v", err)
	}
	if se.Code != 429 || se.RetryAfter != 3*time.Second || se.Body != "slow down" {
		t.Errorf("unexpected status error %+v", se)
	}
}

func TestStoreServer_Credentials(t *testing.T) {
	var got transport.Call
	capture := transport.Func(func(ctx context.Context, call *transport.Call) (*transport.Result, error) {
		got = *call
		return &transport.Result{}, nil
	})
	client := dial(t, capture)

	if _, err := client.Do(context.Background(), &transport.Call{Op: transport.OpMetadata, Store: "s", Token: "abc", APIKey: "k"}); err != nil {
		t.Fatal(err)
	}
	if got.Token != "abc" || got.APIKey != "k" || got.Store != "s" {
		t.Errorf("credentials not forwarded: %+v", got)
	}
}

func TestStoreServer_PlainBackendError(t *testing.T) {
	failing := transport.Func(func(ctx context.Context, call *transport.Call) (*transport.Result, error) {
		return nil, errors.New("disk on fire")
	})
	client := dial(t, failing)

	_, err := client.Do(context.Background(), &transport.Call{Op: transport.OpMetadata, Store: "s", Token: "t"})
	var se *transport.StatusError
	if !errors.As(err, &se) || se.Code != 500 {
		t.Fatalf("expected 500 status error, got %v", err)
	}
}

func TestStoreServer_RecoversPanics(t *testing.T) {
	panicking := transport.Func(func(ctx context.Context, call *transport.Call) (*transport.Result, error) {
		panic("boom")
	})
	client := dial(t, panicking)

	_, err := client.Do(context.Background(), &transport.Call{Op: transport.OpMetadata, Store: "s", Token: "t"})
	var se *transport.StatusError
	if !errors.As(err, &se) || se.Code != 500 {
		t.Fatalf("expected 500 status error, got %v", err)
	}
}
