package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sheetbase/sheetbase/pkg/transport"
)

func TestError_Error(t *testing.T) {
	err := NewSchemaError(CodeDuplicateTable, `table "Orders" registered twice`)
	expected := `[SCHEMA_INVALID:DUPLICATE_TABLE] table "Orders" registered twice`
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestError_ErrorWithCauseAndIssues(t *testing.T) {
	err := NewValidationError(CodeInvalidRecord, "record rejected",
		Issue{Field: "customer", Message: "is required"},
		Issue{Field: "total", Message: "expected a number", Value: "abc"},
	)
	expected := "[VALIDATION_FAILED:INVALID_RECORD] record rejected [customer: is required; total: expected a number (got abc)]"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}

	wrapped := NewTransportError("store call failed", fmt.Errorf("connection refused"))
	if wrapped.Error() != "[TRANSPORT_FAILURE] store call failed: connection refused" {
		t.Errorf("got %q", wrapped.Error())
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := NewStoreError("", "backend exploded", cause)
	if !errors.Is(err, cause) {
		t.Error("Unwrap should allow errors.Is to find the cause")
	}
}

func TestError_Is(t *testing.T) {
	dup := NewValidationError(CodeDuplicateKey, "first")
	fk := NewValidationError(CodeForeignKey, "second")

	if !errors.Is(dup, ErrValidation) {
		t.Error("kind sentinel should match any code")
	}
	if !errors.Is(dup, NewValidationError(CodeDuplicateKey, "other message")) {
		t.Error("errors with same kind+code should match via Is")
	}
	if errors.Is(dup, fk) {
		t.Error("errors with different codes should not match via Is")
	}
	if errors.Is(dup, ErrSchema) {
		t.Error("errors with different kinds should not match")
	}

	outer := fmt.Errorf("create: %w", dup)
	if !errors.Is(outer, ErrValidation) {
		t.Error("Is should see through fmt wrapping")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err       error
		retryable bool
	}{
		{NewRateLimitError("slow down", time.Second), true},
		{NewTransportError("down", fmt.Errorf("eof")), true},
		{NewCredentialError("nope", nil), false},
		{NewPermissionError(CodeReadOnly, "read only"), false},
		{NewValidationError(CodeInvalidRecord, "bad"), false},
		{NewSchemaError(CodeUnknownTable, "missing"), false},
		{NewMigrationError(1, "init", fmt.Errorf("boom")), false},
		{NewStoreError("", "other", nil), false},
		{fmt.Errorf("plain"), false},
	}

	for _, tt := range tests {
		if IsRetryable(tt.err) != tt.retryable {
			t.Errorf("%v retryable=%v, want %v", tt.err, IsRetryable(tt.err), tt.retryable)
		}
	}
}

func TestAccessors(t *testing.T) {
	err := NewRateLimitError("slow down", 3*time.Second)
	if GetKind(err) != KindRateLimit {
		t.Errorf("got kind %q", GetKind(err))
	}
	if GetRetryAfter(err) != 3*time.Second {
		t.Errorf("got retry after %v", GetRetryAfter(err))
	}
	if GetKind(fmt.Errorf("plain error")) != "" {
		t.Error("plain error should return empty kind")
	}

	v := NewValidationError(CodeForeignKey, "bad ref", Issue{Field: "orderId", Message: "no such Orders row", Value: "ghost"})
	issues := GetIssues(fmt.Errorf("wrapped: %w", v))
	if len(issues) != 1 || issues[0].Field != "orderId" {
		t.Errorf("unexpected issues %+v", issues)
	}
	if GetCode(v) != CodeForeignKey {
		t.Errorf("got code %q", GetCode(v))
	}
}

func TestNewMigrationError(t *testing.T) {
	cause := fmt.Errorf("tab not found")
	err := NewMigrationError(4, "add_email", cause)

	if !errors.Is(err, ErrMigration) || !errors.Is(err, cause) {
		t.Fatal("migration error should match its kind and wrap its cause")
	}
	if err.Migration == nil || err.Migration.Version != 4 || err.Migration.Name != "add_email" {
		t.Errorf("unexpected migration ref %+v", err.Migration)
	}
	if !strings.Contains(err.Error(), "migration 4 (add_email) failed") {
		t.Errorf("got %q", err.Error())
	}
}

func TestWithDetails(t *testing.T) {
	base := NewStoreError("", "failed", nil)
	detailed := base.WithDetails(map[string]interface{}{"status": 500})
	if base.Details != nil {
		t.Error("WithDetails must not modify the receiver")
	}
	if detailed.Details["status"] != 500 {
		t.Errorf("unexpected details %v", detailed.Details)
	}
}

func TestEnsure(t *testing.T) {
	if Ensure(nil, "x") != nil {
		t.Error("nil stays nil")
	}
	kinded := NewSchemaError(CodeUnknownTable, "missing")
	if Ensure(kinded, "x") != kinded {
		t.Error("errors with a kind pass through")
	}
	if GetKind(Ensure(fmt.Errorf("plain"), "x")) != KindStore {
		t.Error("plain errors become store errors")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
	}{
		{"401", transport.Status(401, "expired"), KindCredential},
		{"403", transport.Status(403, "forbidden"), KindPermission},
		{"429", &transport.StatusError{Code: 429, RetryAfter: 2 * time.Second}, KindRateLimit},
		{"500", transport.Status(500, "boom"), KindStore},
		{"404", transport.Status(404, "no such store"), KindStore},
		{"network", fmt.Errorf("dial tcp: connection refused"), KindTransport},
		{"canceled", context.Canceled, KindTransport},
		{"already kinded", NewSchemaError(CodeUnknownTable, "x"), KindSchema},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if GetKind(got) != tt.kind {
				t.Fatalf("Classify(%v) kind = %q, want %q", tt.err, GetKind(got), tt.kind)
			}
		})
	}

	if Classify(nil) != nil {
		t.Error("Classify(nil) should be nil")
	}

	limited := Classify(&transport.StatusError{Code: 429, RetryAfter: 2 * time.Second})
	if GetRetryAfter(limited) != 2*time.Second {
		t.Errorf("retry hint lost: %v", GetRetryAfter(limited))
	}

	var e *Error
	if !errors.As(Classify(transport.Status(502, "bad gateway")), &e) {
		t.Fatal("expected *Error")
	}
	if e.Details["status"] != 502 || e.Details["body"] != "bad gateway" {
		t.Errorf("store error details = %v", e.Details)
	}
}

func TestIsUnauthorized(t *testing.T) {
	if !IsUnauthorized(transport.Status(401, "")) {
		t.Error("raw 401 should be unauthorized")
	}
	if !IsUnauthorized(Classify(transport.Status(401, ""))) {
		t.Error("classified 401 should be unauthorized")
	}
	if IsUnauthorized(transport.Status(403, "")) {
		t.Error("403 is not a credential failure")
	}
}
