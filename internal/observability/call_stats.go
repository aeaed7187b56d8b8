// Package observability tracks per-operation call statistics for the store
// server.
package observability

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sheetbase/sheetbase/pkg/transport"
)

// CallStats tracks call frequency per operation and per store.
type CallStats struct {
	mu      sync.RWMutex
	byOp    map[string]*OpStats
	byStore map[string]*OpStats
	window  time.Duration
	now     func() time.Time
}

// OpStats holds statistics for one operation or one store.
type OpStats struct {
	Name     string        `json:"name"`
	Calls    int64         `json:"calls"`
	Failures int64         `json:"failures"`
	Total    time.Duration `json:"total_ns"`
	LastSeen time.Time     `json:"last_seen"`
	Statuses map[int]int   `json:"statuses,omitempty"` // status code -> count, failures only
}

// Mean returns the average call latency.
func (s OpStats) Mean() time.Duration {
	if s.Calls == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Calls)
}

// NewCallStats creates a tracker. Entries idle for longer than window are
// dropped by Prune.
func NewCallStats(window time.Duration) *CallStats {
	return &CallStats{
		byOp:    make(map[string]*OpStats),
		byStore: make(map[string]*OpStats),
		window:  window,
		now:     time.Now,
	}
}

// Record adds one finished call. status is 0 for successful calls.
// This method is O(1) and thread-safe.
func (c *CallStats) Record(op transport.Op, store string, elapsed time.Duration, status int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	bump(c.byOp, string(op), now, elapsed, status)
	if store != "" {
		bump(c.byStore, store, now, elapsed, status)
	}
}

func bump(m map[string]*OpStats, key string, now time.Time, elapsed time.Duration, status int) {
	s, ok := m[key]
	if !ok {
		s = &OpStats{Name: key, Statuses: make(map[int]int)}
		m[key] = s
	}
	s.Calls++
	s.Total += elapsed
	s.LastSeen = now
	if status != 0 {
		s.Failures++
		s.Statuses[status]++
	}
}

// TopOps returns the n busiest operations, most calls first.
func (c *CallStats) TopOps(n int) []OpStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return top(c.byOp, n)
}

// TopStores returns the n busiest stores, most calls first.
func (c *CallStats) TopStores(n int) []OpStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return top(c.byStore, n)
}

func top(m map[string]*OpStats, n int) []OpStats {
	if n <= 0 || len(m) == 0 {
		return []OpStats{}
	}

	stats := make([]OpStats, 0, len(m))
	for _, s := range m {
		cp := *s
		cp.Statuses = make(map[int]int, len(s.Statuses))
		for code, count := range s.Statuses {
			cp.Statuses[code] = count
		}
		stats = append(stats, cp)
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Calls != stats[j].Calls {
			return stats[i].Calls > stats[j].Calls
		}
		return stats[i].Name < stats[j].Name
	})

	if n > len(stats) {
		n = len(stats)
	}
	return stats[:n]
}

// Prune removes entries not seen within the window.
func (c *CallStats) Prune() {
	c.mu.Lock()
	defer c.mu.Unlock()

	threshold := c.now().Add(-c.window)
	for k, s := range c.byOp {
		if s.LastSeen.Before(threshold) {
			delete(c.byOp, k)
		}
	}
	for k, s := range c.byStore {
		if s.LastSeen.Before(threshold) {
			delete(c.byStore, k)
		}
	}
}

// Run prunes every interval until ctx ends.
func (c *CallStats) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Prune()
		}
	}
}

// Instrument returns a transport that records every call to next.
func Instrument(next transport.Transport, stats *CallStats) transport.Transport {
	return &instrumented{next: next, stats: stats}
}

type instrumented struct {
	next  transport.Transport
	stats *CallStats
}

func (t *instrumented) Do(ctx context.Context, call *transport.Call) (*transport.Result, error) {
	start := time.Now()
	res, err := t.next.Do(ctx, call)

	status := 0
	if err != nil {
		status = 500
		var se *transport.StatusError
		if errors.As(err, &se) {
			status = se.Code
		}
	}
	store := call.Store
	if res != nil && res.StoreID != "" {
		store = res.StoreID
	}
	t.stats.Record(call.Op, store, time.Since(start), status)
	return res, err
}
