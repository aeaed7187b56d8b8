package backend

import (
	"fmt"
	"sort"
)

// Snapshot is the serializable state of an engine.
type Snapshot struct {
	NextTab int64           `json:"next_tab"`
	Stores  []StoreSnapshot `json:"stores"`
}

// StoreSnapshot is one store inside a Snapshot.
type StoreSnapshot struct {
	ID    string        `json:"id"`
	Title string        `json:"title"`
	Tabs  []TabSnapshot `json:"tabs"`
}

// TabSnapshot is one grid. Empty cells are nil.
type TabSnapshot struct {
	ID    int64   `json:"id"`
	Title string  `json:"title"`
	Cells [][]any `json:"cells,omitempty"`
}

// Snapshot copies the engine state. Stores are ordered by ID.
func (e *Engine) Snapshot() *Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	snap := &Snapshot{NextTab: e.nextTab, Stores: make([]StoreSnapshot, 0, len(e.stores))}
	for _, s := range e.stores {
		ss := StoreSnapshot{ID: s.id, Title: s.title, Tabs: make([]TabSnapshot, len(s.tabs))}
		for i, t := range s.tabs {
			ss.Tabs[i] = TabSnapshot{ID: t.id, Title: t.title, Cells: t.clone().cells}
		}
		snap.Stores = append(snap.Stores, ss)
	}
	sort.Slice(snap.Stores, func(i, j int) bool { return snap.Stores[i].ID < snap.Stores[j].ID })
	return snap
}

// Restore replaces the engine state with snap.
func (e *Engine) Restore(snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("backend: nil snapshot")
	}

	stores := make(map[string]*store, len(snap.Stores))
	nextTab := snap.NextTab
	for _, ss := range snap.Stores {
		if ss.ID == "" {
			return fmt.Errorf("backend: snapshot store without id")
		}
		if _, dup := stores[ss.ID]; dup {
			return fmt.Errorf("backend: duplicate store %s in snapshot", ss.ID)
		}
		s := &store{id: ss.ID, title: ss.Title}
		for _, ts := range ss.Tabs {
			if s.tabByTitle(ts.Title) != nil {
				return fmt.Errorf("backend: store %s: duplicate tab %q in snapshot", ss.ID, ts.Title)
			}
			t := &tab{id: ts.ID, title: ts.Title}
			for r, row := range ts.Cells {
				for c, v := range row {
					t.set(r, c, normalize(v))
				}
			}
			t.compact()
			s.tabs = append(s.tabs, t)
			if ts.ID >= nextTab {
				nextTab = ts.ID + 1
			}
		}
		stores[s.id] = s
	}
	if nextTab < 1 {
		nextTab = 1
	}

	e.mu.Lock()
	e.stores = stores
	e.nextTab = nextTab
	e.mu.Unlock()
	return nil
}
