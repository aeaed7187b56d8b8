package sheetbase

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"

	"github.com/sheetbase/sheetbase/internal/backend"
	"github.com/sheetbase/sheetbase/pkg/transport"
	"github.com/sheetbase/sheetbase/pkg/types"
)

// recorder wraps a transport and keeps every call it forwards.
type recorder struct {
	next transport.Transport

	mu    sync.Mutex
	calls []transport.Call
}

func (r *recorder) Do(ctx context.Context, call *transport.Call) (*transport.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, *call)
	r.mu.Unlock()
	return r.next.Do(ctx, call)
}

func (r *recorder) ops() []transport.Op {
	r.mu.Lock()
	defer r.mu.Unlock()
	ops := make([]transport.Op, len(r.calls))
	for i, c := range r.calls {
		ops[i] = c.Op
	}
	return ops
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.calls = nil
	r.mu.Unlock()
}

func (r *recorder) count(op transport.Op) int {
	n := 0
	for _, o := range r.ops() {
		if o == op {
			n++
		}
	}
	return n
}

func ordersTable() types.Table {
	return types.Table{
		Name: "Orders",
		Columns: []types.Column{
			{Name: "id", PrimaryKey: true},
			{Name: "customer"},
		},
	}
}

func itemsTable() types.Table {
	return types.Table{
		Name: "Items",
		Columns: []types.Column{
			{Name: "id", PrimaryKey: true},
			{Name: "orderId", References: &types.Reference{Table: "Orders"}},
			{Name: "name"},
			{Name: "qty", Type: types.TypeNumber, Optional: true, Default: 1.0},
		},
	}
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// newStore creates a store on a fresh in-process engine with a tab per
// table and returns the engine and the store id.
func newStore(t testing.TB, tables ...types.Table) (*backend.Engine, string) {
	t.Helper()
	engine := backend.New(backend.Auth{WriteTokens: []string{"tok"}, APIKeys: []string{"key"}})
	id, err := CreateStore(context.Background(), engine, "tok", "test", tables)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	return engine, id
}

// openShop opens a connection to a new Orders/Items store.
func openShop(t testing.TB) (*Connection, *recorder) {
	t.Helper()
	tables := []types.Table{ordersTable(), itemsTable()}
	engine, id := newStore(t, tables...)
	rec := &recorder{next: engine}
	conn, err := Open(Options{
		Store:     id,
		Token:     "tok",
		Tables:    tables,
		Transport: rec,
		Logger:    quietLogger(),
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return conn, rec
}
