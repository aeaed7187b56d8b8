package migrate

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"

	"github.com/sheetbase/sheetbase/internal/a1"
	"github.com/sheetbase/sheetbase/internal/backend"
	"github.com/sheetbase/sheetbase/pkg/sheetbase"
	"github.com/sheetbase/sheetbase/pkg/transport"
	"github.com/sheetbase/sheetbase/pkg/types"
)

// recorder counts the calls forwarded to the engine.
type recorder struct {
	next transport.Transport

	mu  sync.Mutex
	ops []transport.Op
}

func (r *recorder) Do(ctx context.Context, call *transport.Call) (*transport.Result, error) {
	r.mu.Lock()
	r.ops = append(r.ops, call.Op)
	r.mu.Unlock()
	return r.next.Do(ctx, call)
}

func (r *recorder) count(op transport.Op) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, o := range r.ops {
		if o == op {
			n++
		}
	}
	return n
}

func (r *recorder) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ops)
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.ops = nil
	r.mu.Unlock()
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

type fixture struct {
	engine *backend.Engine
	store  string
	rec    *recorder
	conn   *sheetbase.Connection
}

func newFixture(t testing.TB) *fixture {
	t.Helper()
	engine := backend.New(backend.Auth{WriteTokens: []string{"tok"}, APIKeys: []string{"key"}})
	id, err := sheetbase.CreateStore(context.Background(), engine, "tok", "migrations", []types.Table{ordersTable()})
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	rec := &recorder{next: engine}
	conn, err := sheetbase.Open(sheetbase.Options{
		Store:     id,
		Token:     "tok",
		Tables:    []types.Table{ordersTable()},
		Transport: rec,
		Logger:    log.New(io.Discard, "", 0),
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return &fixture{engine: engine, store: id, rec: rec, conn: conn}
}

// header reads the first row of tab straight from the engine.
func (f *fixture) header(t testing.TB, tab string) []any {
	t.Helper()
	res, err := f.engine.Do(context.Background(), &transport.Call{
		Op: transport.OpRead, Store: f.store, Token: "tok", Range: a1.Row(tab, 26, 0),
	})
	if err != nil {
		t.Fatalf("read %s header: %v", tab, err)
	}
	if len(res.Values) == 0 {
		return nil
	}
	return res.Values[0]
}

// tabs lists tab titles straight from the engine.
func (f *fixture) tabs(t testing.TB) []string {
	t.Helper()
	res, err := f.engine.Do(context.Background(), &transport.Call{Op: transport.OpMetadata, Store: f.store, Token: "tok"})
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	names := make([]string, len(res.Tabs))
	for i, tab := range res.Tabs {
		names[i] = tab.Title
	}
	return names
}

func versions(entries []types.LedgerEntry) []int {
	out := make([]int, len(entries))
	for i, e := range entries {
		out[i] = e.Version
	}
	return out
}
