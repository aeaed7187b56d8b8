// Package transport defines the contract between Sheetbase and a remote
// range store. A Transport performs exactly one network call per Do and
// returns either decoded data or a failure: a *StatusError when the store
// answered with a non-success status, any other error when the call could
// not complete.
package transport

import (
	"context"
	"fmt"
	"time"
)

// Op names a primitive store operation.
type Op string

const (
	OpRead        Op = "read"
	OpBatchRead   Op = "batch_read"
	OpWrite       Op = "write"
	OpAppend      Op = "append"
	OpClear       Op = "clear"
	OpBatchClear  Op = "batch_clear"
	OpBatchWrite  Op = "batch_write"
	OpStructure   Op = "structure"
	OpMetadata    Op = "metadata"
	OpCreateStore Op = "create_store"
)

// Mutates reports whether the operation changes store contents.
func (o Op) Mutates() bool {
	switch o {
	case OpRead, OpBatchRead, OpMetadata:
		return false
	}
	return true
}

// ValueRange is a block of values anchored at a range.
type ValueRange struct {
	Range  string  `json:"range"`
	Values [][]any `json:"values,omitempty"`
}

// TabProperties describes one physical tab.
type TabProperties struct {
	TabID   int64  `json:"tab_id"`
	Title   string `json:"title"`
	Index   int    `json:"index"`
	Rows    int    `json:"rows"`
	Columns int    `json:"columns"`
}

// StructuralRequest is one structural change. Exactly one field is set.
type StructuralRequest struct {
	AddTab        *AddTab     `json:"add_tab,omitempty"`
	InsertColumns *ColumnSpan `json:"insert_columns,omitempty"`
	DeleteColumns *ColumnSpan `json:"delete_columns,omitempty"`
	UpdateCell    *UpdateCell `json:"update_cell,omitempty"`
	RenameTab     *RenameTab  `json:"rename_tab,omitempty"`
}

// AddTab creates a tab.
type AddTab struct {
	Title string `json:"title"`
}

// ColumnSpan addresses Count columns starting at zero-based Index.
type ColumnSpan struct {
	TabID int64 `json:"tab_id"`
	Index int   `json:"index"`
	Count int   `json:"count"`
}

// UpdateCell sets a single cell.
type UpdateCell struct {
	TabID  int64 `json:"tab_id"`
	Row    int   `json:"row"`
	Column int   `json:"column"`
	Value  any   `json:"value"`
}

// RenameTab changes a tab title.
type RenameTab struct {
	TabID int64  `json:"tab_id"`
	Title string `json:"title"`
}

// Call is one store request. Token and APIKey travel out of band (headers
// or metadata), never in the encoded body.
type Call struct {
	Op       Op                  `json:"op"`
	Store    string              `json:"store,omitempty"`
	Range    string              `json:"range,omitempty"`
	Ranges   []string            `json:"ranges,omitempty"`
	Values   [][]any             `json:"values,omitempty"`
	Data     []ValueRange        `json:"data,omitempty"`
	Requests []StructuralRequest `json:"requests,omitempty"`
	Title    string              `json:"title,omitempty"`
	Tabs     []string            `json:"tabs,omitempty"`

	Token  string `json:"-"`
	APIKey string `json:"-"`
}

// Result is the decoded answer to a Call.
type Result struct {
	Values       [][]any         `json:"values,omitempty"`
	ValueRanges  []ValueRange    `json:"value_ranges,omitempty"`
	Tabs         []TabProperties `json:"tabs,omitempty"`
	StoreID      string          `json:"store_id,omitempty"`
	UpdatedRange string          `json:"updated_range,omitempty"`
}

// Transport performs store calls.
type Transport interface {
	Do(ctx context.Context, call *Call) (*Result, error)
}

// Func adapts a function to Transport.
type Func func(ctx context.Context, call *Call) (*Result, error)

// Do calls f.
func (f Func) Do(ctx context.Context, call *Call) (*Result, error) {
	return f(ctx, call)
}

// Validate checks that a call carries what its operation needs.
func (c *Call) Validate() error {
	if c.Op != OpCreateStore && c.Store == "" {
		return fmt.Errorf("transport: %s call without store", c.Op)
	}
	switch c.Op {
	case OpRead, OpWrite, OpAppend, OpClear:
		if c.Range == "" {
			return fmt.Errorf("transport: %s call without range", c.Op)
		}
	case OpBatchRead, OpBatchClear:
		if len(c.Ranges) == 0 {
			return fmt.Errorf("transport: %s call without ranges", c.Op)
		}
	case OpBatchWrite:
		if len(c.Data) == 0 {
			return fmt.Errorf("transport: %s call without data", c.Op)
		}
	case OpStructure:
		if len(c.Requests) == 0 {
			return fmt.Errorf("transport: %s call without requests", c.Op)
		}
	case OpMetadata, OpCreateStore:
	default:
		return fmt.Errorf("transport: unknown op %q", c.Op)
	}
	return nil
}

// StatusError is a store response carrying a non-success status.
type StatusError struct {
	Code       int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("store responded with status %d", e.Code)
	}
	return fmt.Sprintf("store responded with status %d: %s", e.Code, e.Body)
}

// Status builds a StatusError.
func Status(code int, format string, args ...any) *StatusError {
	return &StatusError{Code: code, Body: fmt.Sprintf(format, args...)}
}
