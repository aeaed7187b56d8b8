// Package errors provides the structured error type for Sheetbase.
// Every error carries a kind drawn from a closed set, an optional code, a
// message and, depending on the kind, a retry delay, a list of validation
// issues or the identity of a failed migration.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind classifies an error. The set is closed.
type Kind string

const (
	KindCredential Kind = "CREDENTIAL_REJECTED"
	KindPermission Kind = "PERMISSION_DENIED"
	KindRateLimit  Kind = "RATE_LIMITED"
	KindTransport  Kind = "TRANSPORT_FAILURE"
	KindValidation Kind = "VALIDATION_FAILED"
	KindSchema     Kind = "SCHEMA_INVALID"
	KindMigration  Kind = "MIGRATION_FAILED"
	KindStore      Kind = "STORE_ERROR"
)

// Error codes refining a kind.
const (
	// Schema codes
	CodeDuplicateTable     = "DUPLICATE_TABLE"
	CodeReservedName       = "RESERVED_NAME"
	CodeUnknownTable       = "UNKNOWN_TABLE"
	CodeMissingPrimaryKey  = "MISSING_PRIMARY_KEY"
	CodeInvalidTable       = "INVALID_TABLE"
	CodeInvalidOptions     = "INVALID_OPTIONS"
	CodeDuplicateVersion   = "DUPLICATE_VERSION"
	CodeUnresolvedRelation = "UNRESOLVED_RELATION"

	// Validation codes
	CodeInvalidRecord = "INVALID_RECORD"
	CodeDuplicateKey  = "DUPLICATE_KEY"
	CodeForeignKey    = "FOREIGN_KEY"
	CodeNotFound      = "NOT_FOUND"

	// Permission codes
	CodeReadOnly = "READ_ONLY"

	// Store codes
	CodeTabNotFound = "TAB_NOT_FOUND"
	CodeBadResponse = "BAD_RESPONSE"
)

// Sentinels for errors.Is checks by kind.
var (
	ErrCredential = &Error{Kind: KindCredential}
	ErrPermission = &Error{Kind: KindPermission}
	ErrRateLimit  = &Error{Kind: KindRateLimit}
	ErrTransport  = &Error{Kind: KindTransport}
	ErrValidation = &Error{Kind: KindValidation}
	ErrSchema     = &Error{Kind: KindSchema}
	ErrMigration  = &Error{Kind: KindMigration}
	ErrStore      = &Error{Kind: KindStore}
)

// Issue is one failed validation check.
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

func (i Issue) String() string {
	if i.Value == nil {
		return fmt.Sprintf("%s: %s", i.Field, i.Message)
	}
	return fmt.Sprintf("%s: %s (got %v)", i.Field, i.Message, i.Value)
}

// MigrationRef identifies a migration.
type MigrationRef struct {
	Version int
	Name    string
}

// Error is the structured error type used throughout Sheetbase.
type Error struct {
	Kind       Kind
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
	RetryAfter time.Duration
	Issues     []Issue
	Migration  *MigrationRef
}

// Error returns a formatted error string.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(string(e.Kind))
	if e.Code != "" {
		b.WriteString(":")
		b.WriteString(e.Code)
	}
	b.WriteString("] ")
	b.WriteString(e.Message)
	if len(e.Issues) > 0 {
		parts := make([]string, len(e.Issues))
		for i, is := range e.Issues {
			parts[i] = is.String()
		}
		b.WriteString(" [")
		b.WriteString(strings.Join(parts, "; "))
		b.WriteString("]")
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target has the same kind and, when target carries a
// code, the same code. The kind sentinels therefore match any code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	if e.Kind != t.Kind {
		return false
	}
	return t.Code == "" || e.Code == t.Code
}

// New creates a new Error.
func New(kind Kind, code, message string) *Error {
	return &Error{
		Kind:    kind,
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(kind Kind, code, message string, cause error) *Error {
	return &Error{
		Kind:    kind,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable reports whether the caller may retry the operation later:
// rate limits and transport failures are retryable, nothing else is.
// The library itself never retries them.
func IsRetryable(err error) bool {
	switch GetKind(err) {
	case KindRateLimit, KindTransport:
		return true
	}
	return false
}

// GetKind extracts the kind from an error chain.
// Returns empty string if the error is not an *Error.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not an *Error.
func GetCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// GetIssues extracts validation issues from an error chain.
func GetIssues(err error) []Issue {
	var e *Error
	if errors.As(err, &e) {
		return e.Issues
	}
	return nil
}

// GetRetryAfter extracts the rate-limit delay hint from an error chain.
func GetRetryAfter(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

// Convenience constructors for common errors.

func NewValidationError(code, message string, issues ...Issue) *Error {
	e := New(KindValidation, code, message)
	e.Issues = issues
	return e
}

func NewSchemaError(code, message string) *Error {
	return New(KindSchema, code, message)
}

func NewPermissionError(code, message string) *Error {
	return New(KindPermission, code, message)
}

func NewStoreError(code, message string, cause error) *Error {
	return Wrap(KindStore, code, message, cause)
}

func NewTransportError(message string, cause error) *Error {
	return Wrap(KindTransport, "", message, cause)
}

func NewRateLimitError(message string, retryAfter time.Duration) *Error {
	e := New(KindRateLimit, "", message)
	e.RetryAfter = retryAfter
	return e
}

func NewCredentialError(message string, cause error) *Error {
	return Wrap(KindCredential, "", message, cause)
}

// NewMigrationError wraps the failure of migration version/name.
func NewMigrationError(version int, name string, cause error) *Error {
	e := Wrap(KindMigration, "", fmt.Sprintf("migration %d (%s) failed", version, name), cause)
	e.Migration = &MigrationRef{Version: version, Name: name}
	return e
}

// Ensure returns err unchanged when it already carries a kind, and wraps it
// as a store error otherwise.
func Ensure(err error, message string) error {
	if err == nil {
		return nil
	}
	if GetKind(err) != "" {
		return err
	}
	return NewStoreError("", message, err)
}
