package warden

import (
	"errors"
	"fmt"
	"strings"
)

// Standard sentinel errors for common operations.
var (
	// ErrNotFound is returned when a query that expects a result returns none.
	ErrNotFound = errors.New("warden: record not found")

	// ErrNotSingular is returned when a query that expects exactly one
	// result returns more than one.
	ErrNotSingular = errors.New("warden: record not singular")

	// ErrAccessDenied is the sentinel matched by every AccessDeniedError.
	ErrAccessDenied = errors.New("warden: access denied")

	// ErrSessionClosed is returned when an operation is attempted on a
	// session or transaction that is no longer active.
	ErrSessionClosed = errors.New("warden: session is closed")
)

// AccessDeniedError is returned when the current badge is Deny at a point
// that requires filtering, execution, or insertion. The operation never
// reaches the execution engine.
type AccessDeniedError struct {
	Op    string // Operation that was rejected (e.g. "query", "insert").
	Badge Badge
}

// Error returns the error string.
func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("warden: access denied during %s", e.Op)
}

// Is reports whether the target error matches ErrAccessDenied.
func (e *AccessDeniedError) Is(err error) bool {
	return err == ErrAccessDenied
}

// NewAccessDeniedError returns a new AccessDeniedError for the given operation.
func NewAccessDeniedError(op string, badge Badge) *AccessDeniedError {
	return &AccessDeniedError{Op: op, Badge: badge}
}

// IsAccessDenied returns true if the error is an AccessDeniedError.
func IsAccessDenied(err error) bool {
	if err == nil {
		return false
	}
	var e *AccessDeniedError
	return errors.As(err, &e) || errors.Is(err, ErrAccessDenied)
}

// BlockedAttributeError is returned when a gated column is read or written
// while blocked for the current badge. It carries the column, the badge and
// the full blocked set for diagnostics. The single access fails; the record
// and the session remain usable.
type BlockedAttributeError struct {
	Column  string
	Badge   Badge
	Entity  string   // Entity label of the record.
	Blocked []string // The blocked set computed for the badge.
	Write   bool     // True for a blocked write, false for a blocked read.
}

// Error returns the error string. Formatting never reads record values, so
// it cannot itself trip over a blocked column.
func (e *BlockedAttributeError) Error() string {
	dir := "read from"
	if e.Write {
		dir = "write to"
	}
	return fmt.Sprintf("warden: %s %q blocked for badge %v on %s (blocked: %s)",
		dir, e.Column, e.Badge, e.Entity, strings.Join(e.Blocked, ", "))
}

// IsBlockedAttribute returns true if the error is a BlockedAttributeError.
func IsBlockedAttribute(err error) bool {
	if err == nil {
		return false
	}
	var e *BlockedAttributeError
	return errors.As(err, &e)
}

// ResolutionError is returned when the entity resolver encounters a query
// shape it cannot map to entities reliably. It signals an unsupported query
// pattern, not a security failure.
type ResolutionError struct {
	Reason string
}

// Error returns the error string.
func (e *ResolutionError) Error() string {
	return fmt.Sprintf("warden: cannot resolve query entities: %s", e.Reason)
}

// NewResolutionError returns a new ResolutionError with the given reason.
func NewResolutionError(reason string) *ResolutionError {
	return &ResolutionError{Reason: reason}
}

// IsResolutionError returns true if the error is a ResolutionError.
func IsResolutionError(err error) bool {
	if err == nil {
		return false
	}
	var e *ResolutionError
	return errors.As(err, &e)
}

// UnsupportedConfigurationError is raised eagerly at session construction
// when a configuration would defeat the authorization layer, so
// misconfiguration is caught before any data is touched.
type UnsupportedConfigurationError struct {
	Reason string
}

// Error returns the error string.
func (e *UnsupportedConfigurationError) Error() string {
	return fmt.Sprintf("warden: unsupported configuration: %s", e.Reason)
}

// NewUnsupportedConfigurationError returns a new UnsupportedConfigurationError.
func NewUnsupportedConfigurationError(reason string) *UnsupportedConfigurationError {
	return &UnsupportedConfigurationError{Reason: reason}
}

// IsUnsupportedConfiguration returns true if the error is an
// UnsupportedConfigurationError.
func IsUnsupportedConfiguration(err error) bool {
	if err == nil {
		return false
	}
	var e *UnsupportedConfigurationError
	return errors.As(err, &e)
}

// NotFoundError is returned when a First or Only call matches no rows.
type NotFoundError struct {
	label string
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("warden: %s not found", e.label)
}

// Is reports whether the target error matches ErrNotFound.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// NotSingularError is returned when an Only call matches more than one row.
type NotSingularError struct {
	label string
}

// Error returns the error string.
func (e *NotSingularError) Error() string {
	return fmt.Sprintf("warden: %s not singular", e.label)
}

// Is reports whether the target error matches ErrNotSingular.
func (e *NotSingularError) Is(err error) bool {
	return err == ErrNotSingular
}

// IsNotSingular returns true if the error is a NotSingularError.
func IsNotSingular(err error) bool {
	if err == nil {
		return false
	}
	var e *NotSingularError
	return errors.As(err, &e) || errors.Is(err, ErrNotSingular)
}
