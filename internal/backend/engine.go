// Package backend implements a self-hosted range store. An Engine keeps
// stores of named grids in memory, answers every transport operation and
// enforces the same credential rules a hosted store would: write tokens may
// read and write, API keys may only read.
package backend

import (
	"context"
	"log"
	"net/http"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/sheetbase/sheetbase/internal/a1"
	"github.com/sheetbase/sheetbase/pkg/transport"
)

// Auth lists the accepted credentials. With both lists empty the engine
// accepts every call.
type Auth struct {
	WriteTokens []string `json:"write_tokens" yaml:"write_tokens"`
	APIKeys     []string `json:"api_keys" yaml:"api_keys"`
}

func (a Auth) open() bool {
	return len(a.WriteTokens) == 0 && len(a.APIKeys) == 0
}

// Engine is an in-memory range store. It implements transport.Transport.
type Engine struct {
	mu      sync.RWMutex
	auth    Auth
	stores  map[string]*store
	nextTab int64
	version uint64
}

type store struct {
	id    string
	title string
	tabs  []*tab
}

// New creates an empty engine.
func New(auth Auth) *Engine {
	return &Engine{
		auth:    auth,
		stores:  make(map[string]*store),
		nextTab: 1,
	}
}

var _ transport.Transport = (*Engine)(nil)

// SetAuth replaces the accepted credentials. Calls already past the
// credential check are not affected.
func (e *Engine) SetAuth(auth Auth) {
	e.mu.Lock()
	e.auth = auth
	e.mu.Unlock()
}

// Version increases with every successful mutation.
func (e *Engine) Version() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.version
}

// Do executes one call.
func (e *Engine) Do(ctx context.Context, call *transport.Call) (*transport.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if call == nil {
		return nil, transport.Status(http.StatusBadRequest, "empty call")
	}
	if err := call.Validate(); err != nil {
		return nil, transport.Status(http.StatusBadRequest, "%v", err)
	}

	if call.Op.Mutates() {
		e.mu.Lock()
		defer e.mu.Unlock()
	} else {
		e.mu.RLock()
		defer e.mu.RUnlock()
	}

	if err := e.authorize(call); err != nil {
		return nil, err
	}

	if call.Op == transport.OpCreateStore {
		res, err := e.createStore(call)
		if err == nil {
			e.version++
		}
		return res, err
	}

	s, ok := e.stores[call.Store]
	if !ok {
		return nil, transport.Status(http.StatusNotFound, "Requested entity was not found: store %q", call.Store)
	}

	res, err := e.dispatch(s, call)
	if err != nil {
		return nil, err
	}
	if call.Op.Mutates() {
		e.version++
	}
	return res, nil
}

func (e *Engine) authorize(call *transport.Call) error {
	if e.auth.open() {
		return nil
	}
	if call.Token != "" {
		if !contains(e.auth.WriteTokens, call.Token) {
			return transport.Status(http.StatusUnauthorized, "Request had invalid authentication credentials")
		}
		return nil
	}
	if call.APIKey != "" {
		if !contains(e.auth.APIKeys, call.APIKey) {
			return transport.Status(http.StatusForbidden, "API key not valid")
		}
		if call.Op.Mutates() {
			return transport.Status(http.StatusForbidden, "The caller does not have permission to %s", call.Op)
		}
		return nil
	}
	return transport.Status(http.StatusUnauthorized, "Request is missing required authentication credential")
}

func (e *Engine) dispatch(s *store, call *transport.Call) (*transport.Result, error) {
	switch call.Op {
	case transport.OpRead:
		t, rg, err := s.resolve(call.Range)
		if err != nil {
			return nil, err
		}
		return &transport.Result{Values: t.read(rg)}, nil

	case transport.OpBatchRead:
		res := &transport.Result{ValueRanges: make([]transport.ValueRange, 0, len(call.Ranges))}
		for _, r := range call.Ranges {
			t, rg, err := s.resolve(r)
			if err != nil {
				return nil, err
			}
			res.ValueRanges = append(res.ValueRanges, transport.ValueRange{Range: r, Values: t.read(rg)})
		}
		return res, nil

	case transport.OpWrite:
		t, rg, err := s.resolve(call.Range)
		if err != nil {
			return nil, err
		}
		if err := t.write(rg, call.Values); err != nil {
			return nil, transport.Status(http.StatusBadRequest, "%v", err)
		}
		return &transport.Result{UpdatedRange: call.Range}, nil

	case transport.OpAppend:
		t, rg, err := s.resolve(call.Range)
		if err != nil {
			return nil, err
		}
		if len(call.Values) == 0 {
			return &transport.Result{}, nil
		}
		written := t.appendRows(rg, call.Values)
		return &transport.Result{UpdatedRange: written.String()}, nil

	case transport.OpClear:
		t, rg, err := s.resolve(call.Range)
		if err != nil {
			return nil, err
		}
		t.clear(rg)
		return &transport.Result{}, nil

	case transport.OpBatchClear:
		targets, err := s.resolveAll(call.Ranges)
		if err != nil {
			return nil, err
		}
		for _, tg := range targets {
			tg.tab.clear(tg.rg)
		}
		return &transport.Result{}, nil

	case transport.OpBatchWrite:
		return s.batchWrite(call.Data)

	case transport.OpStructure:
		if err := e.applyStructure(s, call.Requests); err != nil {
			return nil, err
		}
		return &transport.Result{Tabs: s.properties()}, nil

	case transport.OpMetadata:
		return &transport.Result{StoreID: s.id, Tabs: s.properties()}, nil
	}
	return nil, transport.Status(http.StatusBadRequest, "unsupported op %q", call.Op)
}

type target struct {
	tab *tab
	rg  a1.Range
}

// batchWrite resolves and bounds-checks every range before writing any of
// them, so a bad range leaves the store unchanged.
func (s *store) batchWrite(data []transport.ValueRange) (*transport.Result, error) {
	ranges := make([]string, len(data))
	for i, vr := range data {
		ranges[i] = vr.Range
	}
	targets, err := s.resolveAll(ranges)
	if err != nil {
		return nil, err
	}

	staged := make(map[int64]*tab)
	for i, tg := range targets {
		t, ok := staged[tg.tab.id]
		if !ok {
			t = tg.tab.clone()
			staged[t.id] = t
		}
		if err := t.write(tg.rg, data[i].Values); err != nil {
			return nil, transport.Status(http.StatusBadRequest, "%v", err)
		}
	}
	for i, t := range s.tabs {
		if cp, ok := staged[t.id]; ok {
			s.tabs[i] = cp
		}
	}
	return &transport.Result{}, nil
}

func (s *store) resolve(ref string) (*tab, a1.Range, error) {
	rg, err := a1.Parse(ref)
	if err != nil {
		return nil, a1.Range{}, transport.Status(http.StatusBadRequest, "Unable to parse range: %s", ref)
	}
	t := s.tabByTitle(rg.Sheet)
	if t == nil {
		return nil, a1.Range{}, transport.Status(http.StatusBadRequest, "Unable to parse range: %s", ref)
	}
	return t, rg, nil
}

func (s *store) resolveAll(refs []string) ([]target, error) {
	targets := make([]target, 0, len(refs))
	for _, ref := range refs {
		t, rg, err := s.resolve(ref)
		if err != nil {
			return nil, err
		}
		targets = append(targets, target{tab: t, rg: rg})
	}
	return targets, nil
}

func (s *store) tabByTitle(title string) *tab {
	for _, t := range s.tabs {
		if t.title == title {
			return t
		}
	}
	return nil
}

func (s *store) tabByID(id int64) *tab {
	for _, t := range s.tabs {
		if t.id == id {
			return t
		}
	}
	return nil
}

func (s *store) properties() []transport.TabProperties {
	props := make([]transport.TabProperties, len(s.tabs))
	for i, t := range s.tabs {
		props[i] = t.properties(i)
	}
	return props
}

func (e *Engine) createStore(call *transport.Call) (*transport.Result, error) {
	titles := call.Tabs
	if len(titles) == 0 {
		titles = []string{"Sheet1"}
	}
	seen := make(map[string]bool, len(titles))
	for _, title := range titles {
		if title == "" {
			return nil, transport.Status(http.StatusBadRequest, "tab title must not be empty")
		}
		if seen[title] {
			return nil, transport.Status(http.StatusBadRequest, "A sheet with the name %q already exists", title)
		}
		seen[title] = true
	}

	s := &store{id: uuid.NewString(), title: call.Title}
	if s.title == "" {
		s.title = "Untitled"
	}
	for _, title := range titles {
		s.tabs = append(s.tabs, &tab{id: e.nextTab, title: title})
		e.nextTab++
	}
	e.stores[s.id] = s
	log.Printf("backend: created store %s (%q) with %d tabs", s.id, s.title, len(s.tabs))

	return &transport.Result{StoreID: s.id, Tabs: s.properties()}, nil
}

// StoreInfo summarizes one store.
type StoreInfo struct {
	ID    string   `json:"id"`
	Title string   `json:"title"`
	Tabs  []string `json:"tabs"`
}

// Stores lists the stores held by the engine, ordered by ID.
func (e *Engine) Stores() []StoreInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()

	infos := make([]StoreInfo, 0, len(e.stores))
	for _, s := range e.stores {
		info := StoreInfo{ID: s.id, Title: s.title}
		for _, t := range s.tabs {
			info.Tabs = append(info.Tabs, t.title)
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
