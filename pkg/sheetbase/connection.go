// Package sheetbase turns a range-addressable tabular store into a small
// multi-table database: typed tables, CRUD through full-table rewrites,
// foreign-key checks and batched eager loading.
//
// A Connection owns the credentials, the table registry and a single write
// token. Every write-class operation holds the token for its whole
// read-modify-write cycle, so writes issued through one Connection never
// interleave. Reads never take the token and see whatever the store holds.
package sheetbase

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/sahilm/fuzzy"
	"golang.org/x/sync/semaphore"

	"github.com/sheetbase/sheetbase/pkg/errors"
	"github.com/sheetbase/sheetbase/pkg/transport"
	"github.com/sheetbase/sheetbase/pkg/types"
)

// Options configures a Connection.
type Options struct {
	// Store identifies the backing store.
	Store string

	// Token is a fixed write credential. It is never refreshed.
	Token string

	// Refresh supplies a write credential on demand. It is called for the
	// first call and once more after the store rejects the current
	// credential.
	Refresh func(ctx context.Context) (string, error)

	// APIKey is a read-only key, used when no write credential is set.
	APIKey string

	// Tables is the registry. Order is kept for Tables().
	Tables []types.Table

	// Transport performs store calls.
	Transport transport.Transport

	// Logger receives credential refresh notices. Defaults to log.Default().
	Logger *log.Logger
}

// Connection is the entry point to one store.
type Connection struct {
	store     string
	transport transport.Transport
	creds     *credentials
	logger    *log.Logger

	tables    map[string]*types.Table
	order     []string
	relations map[string][]types.Relation
	repos     map[string]*Repository

	token *semaphore.Weighted
	runs  *semaphore.Weighted
}

// Open validates the options and the registry and returns a Connection.
// It performs no network call.
func Open(opts Options) (*Connection, error) {
	if opts.Store == "" {
		return nil, errors.NewSchemaError(errors.CodeInvalidOptions, "store id is required")
	}
	if opts.Token == "" && opts.Refresh == nil && opts.APIKey == "" {
		return nil, errors.NewSchemaError(errors.CodeInvalidOptions, "a token, a refresh function or an api key is required")
	}
	if opts.Transport == nil {
		return nil, errors.NewSchemaError(errors.CodeInvalidOptions, "transport is required")
	}

	reg, err := newRegistry(opts.Tables)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	c := &Connection{
		store:     opts.Store,
		transport: opts.Transport,
		logger:    logger,
		creds: &credentials{
			token:   opts.Token,
			refresh: opts.Refresh,
			apiKey:  opts.APIKey,
		},
		tables:    reg.tables,
		order:     reg.order,
		relations: reg.relations,
		repos:     make(map[string]*Repository, len(reg.order)),
		token:     semaphore.NewWeighted(1),
		runs:      semaphore.NewWeighted(1),
	}
	for _, name := range reg.order {
		c.repos[name] = newRepository(c, reg.tables[name])
	}
	return c, nil
}

// Store returns the store id.
func (c *Connection) Store() string { return c.store }

// Logger returns the connection logger.
func (c *Connection) Logger() *log.Logger { return c.logger }

// ReadOnly reports whether the connection holds only a read-only key.
func (c *Connection) ReadOnly() bool {
	return !c.creds.canWrite()
}

// Tables returns the registered tables in registration order.
func (c *Connection) Tables() []types.Table {
	out := make([]types.Table, len(c.order))
	for i, name := range c.order {
		out[i] = *c.tables[name]
	}
	return out
}

// Table returns a registered table.
func (c *Connection) Table(name string) (types.Table, bool) {
	t, ok := c.tables[name]
	if !ok {
		return types.Table{}, false
	}
	return *t, true
}

// Repo returns the repository of a registered table.
func (c *Connection) Repo(name string) (*Repository, error) {
	r, ok := c.repos[name]
	if !ok {
		return nil, c.unknownTable(name)
	}
	return r, nil
}

// MustRepo is Repo for table names known at compile time.
func (c *Connection) MustRepo(name string) *Repository {
	r, err := c.Repo(name)
	if err != nil {
		panic(err)
	}
	return r
}

func (c *Connection) unknownTable(name string) error {
	msg := fmt.Sprintf("table %q is not registered", name)
	if matches := fuzzy.Find(name, c.order); len(matches) > 0 {
		msg += fmt.Sprintf(" (did you mean %q?)", matches[0].Str)
	}
	return errors.NewSchemaError(errors.CodeUnknownTable, msg)
}

// Do sends one call to the store with the connection's credentials. A 401
// answer is retried exactly once after refreshing the credential, and only
// when a Refresh function is configured. Failures come back classified.
func (c *Connection) Do(ctx context.Context, call *transport.Call) (*transport.Result, error) {
	req := *call
	if req.Op != transport.OpCreateStore && req.Store == "" {
		req.Store = c.store
	}

	token, err := c.creds.current(ctx)
	if err != nil {
		return nil, err
	}
	req.Token, req.APIKey = token, ""
	if token == "" {
		req.APIKey = c.creds.apiKey
	}

	res, err := c.transport.Do(ctx, &req)
	if err != nil && errors.IsUnauthorized(err) && c.creds.refresh != nil {
		fresh, rerr := c.creds.renew(ctx, token)
		if rerr != nil {
			return nil, rerr
		}
		c.logger.Printf("sheetbase: credential rejected for %s, retrying with a refreshed one", req.Op)
		req.Token, req.APIKey = fresh, ""
		res, err = c.transport.Do(ctx, &req)
	}
	if err != nil {
		return nil, errors.Classify(err)
	}
	if res == nil {
		return nil, errors.NewStoreError(errors.CodeBadResponse, fmt.Sprintf("empty %s response", req.Op), nil)
	}
	return res, nil
}

// Exclusive runs fn holding the write token. It fails with a permission
// error, without waiting, when the connection is read-only. Waiting for the
// token honours ctx; once acquired, fn runs to completion.
func (c *Connection) Exclusive(ctx context.Context, fn func(ctx context.Context) error) error {
	if c.ReadOnly() {
		return readOnlyError()
	}
	if err := c.token.Acquire(ctx, 1); err != nil {
		return errors.NewTransportError("gave up waiting for the write token", err)
	}
	defer c.token.Release(1)
	return fn(ctx)
}

// ExclusiveRun runs fn holding the run lock, which admits one multi-step
// write-class operation (a migration run) at a time. The run lock is
// separate from the write token, so fn may call write-class operations.
// Like Exclusive it fails at once on a read-only connection and honours
// ctx only while waiting.
func (c *Connection) ExclusiveRun(ctx context.Context, fn func(ctx context.Context) error) error {
	if c.ReadOnly() {
		return readOnlyError()
	}
	if err := c.runs.Acquire(ctx, 1); err != nil {
		return errors.NewTransportError("gave up waiting for the run lock", err)
	}
	defer c.runs.Release(1)
	return fn(ctx)
}

// Metadata lists the store's tabs.
func (c *Connection) Metadata(ctx context.Context) ([]transport.TabProperties, error) {
	res, err := c.Do(ctx, &transport.Call{Op: transport.OpMetadata})
	if err != nil {
		return nil, err
	}
	return res.Tabs, nil
}

func (c *Connection) read(ctx context.Context, rng string) ([][]any, error) {
	res, err := c.Do(ctx, &transport.Call{Op: transport.OpRead, Range: rng})
	if err != nil {
		return nil, err
	}
	return res.Values, nil
}

// batchRead reads ranges in one call; the result is keyed by requested
// range, in request order.
func (c *Connection) batchRead(ctx context.Context, ranges []string) ([][][]any, error) {
	res, err := c.Do(ctx, &transport.Call{Op: transport.OpBatchRead, Ranges: ranges})
	if err != nil {
		return nil, err
	}
	if len(res.ValueRanges) != len(ranges) {
		return nil, errors.NewStoreError(errors.CodeBadResponse,
			fmt.Sprintf("batch read returned %d ranges for %d requested", len(res.ValueRanges), len(ranges)), nil)
	}
	out := make([][][]any, len(ranges))
	for i, vr := range res.ValueRanges {
		out[i] = vr.Values
	}
	return out, nil
}

func (c *Connection) write(ctx context.Context, rng string, values [][]any) error {
	_, err := c.Do(ctx, &transport.Call{Op: transport.OpWrite, Range: rng, Values: values})
	return err
}

func (c *Connection) append(ctx context.Context, rng string, values [][]any) error {
	_, err := c.Do(ctx, &transport.Call{Op: transport.OpAppend, Range: rng, Values: values})
	return err
}

func (c *Connection) clear(ctx context.Context, rng string) error {
	_, err := c.Do(ctx, &transport.Call{Op: transport.OpClear, Range: rng})
	return err
}

// registry is a validated table set.
type registry struct {
	tables    map[string]*types.Table
	order     []string
	relations map[string][]types.Relation
}

func newRegistry(tables []types.Table) (*registry, error) {
	if len(tables) == 0 {
		return nil, errors.NewSchemaError(errors.CodeInvalidTable, "at least one table is required")
	}

	reg := &registry{
		tables:    make(map[string]*types.Table, len(tables)),
		relations: make(map[string][]types.Relation, len(tables)),
	}
	for i := range tables {
		t := tables[i]
		if err := t.Validate(); err != nil {
			return nil, errors.NewSchemaError(errors.CodeInvalidTable, err.Error())
		}
		if t.Name == types.LedgerTable {
			return nil, errors.NewSchemaError(errors.CodeReservedName,
				fmt.Sprintf("table name %q is reserved for the migration ledger", t.Name))
		}
		if _, dup := reg.tables[t.Name]; dup {
			return nil, errors.NewSchemaError(errors.CodeDuplicateTable, fmt.Sprintf("table %q is registered twice", t.Name))
		}
		t.Columns = append([]types.Column(nil), t.Columns...)
		reg.tables[t.Name] = &t
		reg.order = append(reg.order, t.Name)
	}

	for _, name := range reg.order {
		for _, rel := range reg.tables[name].Relations() {
			resolved, err := reg.resolve(rel)
			if err != nil {
				return nil, err
			}
			reg.relations[name] = append(reg.relations[name], resolved)
		}
	}
	return reg, nil
}

func (reg *registry) resolve(rel types.Relation) (types.Relation, error) {
	target, ok := reg.tables[rel.TargetTable]
	if !ok {
		return rel, errors.NewSchemaError(errors.CodeUnresolvedRelation,
			fmt.Sprintf("%s.%s references unknown table %q", rel.Table, rel.Column, rel.TargetTable))
	}
	if rel.TargetColumn == "" {
		pk, ok := target.PrimaryKey()
		if !ok {
			return rel, errors.NewSchemaError(errors.CodeUnresolvedRelation,
				fmt.Sprintf("%s.%s: table %q has no primary key to reference", rel.Table, rel.Column, rel.TargetTable))
		}
		rel.TargetColumn = pk.Name
		return rel, nil
	}
	if _, _, ok := target.Column(rel.TargetColumn); !ok {
		return rel, errors.NewSchemaError(errors.CodeUnresolvedRelation,
			fmt.Sprintf("%s.%s: table %q has no column %q", rel.Table, rel.Column, rel.TargetTable, rel.TargetColumn))
	}
	return rel, nil
}

// sortedKeys returns the keys of m in ascending order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
