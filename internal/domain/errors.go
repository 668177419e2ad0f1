package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNetwork           = errors.New("network error")
	ErrIllegalTransition = errors.New("illegal transition")
	ErrStaleState        = errors.New("stale state")
	ErrAuthExpired       = errors.New("auth expired")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrMixedRestaurants  = errors.New("cart items must come from one restaurant")
	ErrForbiddenRole     = errors.New("role not permitted")
	ErrActiveOrder       = errors.New("customer already has an active order")
	ErrConflict          = errors.New("conflict")
	ErrNotFound          = errors.New("not found")
)

// Wire codes carried in error responses.
const (
	CodeIllegalTransition = "ILLEGAL_TRANSITION"
	CodeStaleState        = "STALE_STATE"
	CodeActiveOrder       = "ACTIVE_ORDER_EXISTS"
	CodeAuthExpired       = "AUTH_EXPIRED"
	CodeForbidden         = "FORBIDDEN"
	CodeNotFound          = "NOT_FOUND"
	CodeBadRequest        = "BAD_REQUEST"
	CodeConflict          = "CONFLICT"
	CodeInternal          = "INTERNAL"
)

var codeErrors = map[string]error{
	CodeIllegalTransition: ErrIllegalTransition,
	CodeStaleState:        ErrStaleState,
	CodeActiveOrder:       ErrActiveOrder,
	CodeAuthExpired:       ErrAuthExpired,
	CodeForbidden:         ErrForbiddenRole,
	CodeConflict:          ErrConflict,
}

// ErrorForCode returns the sentinel for a wire code, or nil.
func ErrorForCode(code string) error {
	return codeErrors[code]
}

// CodeFor returns the wire code of a domain sentinel wrapped in err, or "".
func CodeFor(err error) string {
	for code, target := range codeErrors {
		if errors.Is(err, target) {
			return code
		}
	}
	return ""
}

// NetworkError wraps a transport failure or an unexpected response status.
// StatusCode is zero when no response was received.
type NetworkError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }
