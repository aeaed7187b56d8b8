package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sheetbase/sheetbase/pkg/transport"
)

// Classify maps a transport failure to a kind. Errors that already carry a
// kind pass through unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if GetKind(err) != "" {
		return err
	}

	var se *transport.StatusError
	if !errors.As(err, &se) {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return NewTransportError("store call interrupted", err)
		}
		return NewTransportError("store call failed", err)
	}

	switch se.Code {
	case http.StatusUnauthorized:
		return NewCredentialError("store rejected the credential", se)
	case http.StatusForbidden:
		return Wrap(KindPermission, "", "store denied access", se)
	case http.StatusTooManyRequests:
		e := NewRateLimitError("store is throttling requests", se.RetryAfter)
		e.Cause = se
		return e
	}
	return NewStoreError("", fmt.Sprintf("store responded with status %d", se.Code), se).
		WithDetails(map[string]interface{}{
			"status": se.Code,
			"body":   se.Body,
		})
}

// IsUnauthorized reports whether err is a 401 from the store, before or
// after classification.
func IsUnauthorized(err error) bool {
	var se *transport.StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusUnauthorized
	}
	return GetKind(err) == KindCredential
}
