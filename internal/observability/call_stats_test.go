package observability

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sheetbase/sheetbase/internal/backend"
	"github.com/sheetbase/sheetbase/pkg/transport"
)

func TestRecordConcurrent(t *testing.T) {
	cs := NewCallStats(time.Hour)
	var wg sync.WaitGroup
	workers, perWorker := 10, 100

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				cs.Record(transport.OpRead, "s1", time.Millisecond, 0)
				cs.Record(transport.OpWrite, "s1", time.Millisecond, 0)
			}
		}()
	}
	wg.Wait()

	want := int64(workers * perWorker)
	for _, s := range cs.TopOps(10) {
		if s.Calls != want {
			t.Errorf("%s: expected %d calls, got %d", s.Name, want, s.Calls)
		}
	}
	stores := cs.TopStores(10)
	if len(stores) != 1 || stores[0].Calls != 2*want {
		t.Errorf("expected one store with %d calls, got %+v", 2*want, stores)
	}
}

func TestTopOpsOrdering(t *testing.T) {
	cs := NewCallStats(time.Hour)
	for i := 0; i < 10; i++ {
		cs.Record(transport.OpRead, "", 2*time.Millisecond, 0)
	}
	for i := 0; i < 5; i++ {
		cs.Record(transport.OpAppend, "", time.Millisecond, 0)
	}
	for i := 0; i < 20; i++ {
		cs.Record(transport.OpMetadata, "", time.Millisecond, 0)
	}

	top := cs.TopOps(2)
	if len(top) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(top))
	}
	if top[0].Name != "metadata" || top[1].Name != "read" {
		t.Errorf("unexpected order: %s, %s", top[0].Name, top[1].Name)
	}
	if top[1].Mean() != 2*time.Millisecond {
		t.Errorf("expected 2ms mean, got %v", top[1].Mean())
	}
	if len(cs.TopStores(5)) != 0 {
		t.Error("calls without a store should not be tracked per store")
	}
	if got := cs.TopOps(0); len(got) != 0 {
		t.Errorf("expected empty result for n=0, got %d", len(got))
	}
}

func TestPruneRemovesIdleEntries(t *testing.T) {
	cs := NewCallStats(time.Minute)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	cs.now = func() time.Time { return now }

	cs.Record(transport.OpRead, "old", time.Millisecond, 0)
	now = now.Add(2 * time.Minute)
	cs.Record(transport.OpWrite, "new", time.Millisecond, 0)
	cs.Prune()

	ops := cs.TopOps(10)
	if len(ops) != 1 || ops[0].Name != "write" {
		t.Errorf("expected only write to survive, got %+v", ops)
	}
	stores := cs.TopStores(10)
	if len(stores) != 1 || stores[0].Name != "new" {
		t.Errorf("expected only store new to survive, got %+v", stores)
	}
}

func TestTopReturnsCopies(t *testing.T) {
	cs := NewCallStats(time.Hour)
	cs.Record(transport.OpRead, "", time.Millisecond, 404)

	top := cs.TopOps(1)
	top[0].Statuses[404] = 99
	top[0].Calls = 99

	again := cs.TopOps(1)
	if again[0].Calls != 1 || again[0].Statuses[404] != 1 {
		t.Errorf("stats were modified through a returned copy: %+v", again[0])
	}
}

func TestInstrumentRecordsOutcome(t *testing.T) {
	ctx := context.Background()
	engine := backend.New(backend.Auth{WriteTokens: []string{"tok"}})
	cs := NewCallStats(time.Hour)
	tr := Instrument(engine, cs)

	res, err := tr.Do(ctx, &transport.Call{Op: transport.OpCreateStore, Title: "t", Tabs: []string{"A"}, Token: "tok"})
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	if _, err := tr.Do(ctx, &transport.Call{Op: transport.OpRead, Store: res.StoreID, Range: "A!A1:B", Token: "tok"}); err != nil {
		t.Fatalf("read: %v", err)
	}
	if _, err := tr.Do(ctx, &transport.Call{Op: transport.OpRead, Store: res.StoreID, Range: "A!A1:B", Token: "bad"}); err == nil {
		t.Fatal("expected bad token to fail")
	}

	var read OpStats
	for _, s := range cs.TopOps(10) {
		if s.Name == string(transport.OpRead) {
			read = s
		}
	}
	if read.Calls != 2 || read.Failures != 1 || read.Statuses[401] != 1 {
		t.Errorf("unexpected read stats: %+v", read)
	}

	stores := cs.TopStores(10)
	if len(stores) != 1 || stores[0].Name != res.StoreID || stores[0].Calls != 3 {
		t.Errorf("expected all calls attributed to %s, got %+v", res.StoreID, stores)
	}
}
