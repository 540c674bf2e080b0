package service

import (
	"errors"
	"fmt"
	"log/slog"
)

// Outcome taxonomy shared by every service. Callers branch with errors.Is.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrSessionExpired  = fmt.Errorf("%w: session expired", ErrUnauthenticated)
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrInvalidInput    = errors.New("invalid input")
	ErrSynchronization = errors.New("synchronization fault")
)

// Error codes used on the wire.
const (
	CodeUnauthenticated = "unauthenticated"
	CodeForbidden       = "forbidden"
	CodeNotFound        = "not_found"
	CodeConflict        = "conflict"
	CodeInvalidInput    = "invalid_input"
	CodeSyncFault       = "sync_fault"
	CodeServerError     = "server_error"
)

// SyncFault reports a multi-entity mutation whose commit or rollback failed,
// leaving durable state possibly out of step with what callers observed.
type SyncFault struct {
	Op    string
	Cause error
	Attrs []any
}

func (f *SyncFault) Error() string {
	return fmt.Sprintf("synchronization fault in %s: %v", f.Op, f.Cause)
}

func (f *SyncFault) Unwrap() []error { return []error{ErrSynchronization, f.Cause} }

// LogValue renders the fault with its context for slog.
func (f *SyncFault) LogValue() slog.Value {
	attrs := []slog.Attr{slog.String("op", f.Op), slog.Any("cause", f.Cause)}
	for i := 0; i+1 < len(f.Attrs); i += 2 {
		if k, ok := f.Attrs[i].(string); ok {
			attrs = append(attrs, slog.Any(k, f.Attrs[i+1]))
		}
	}
	return slog.GroupValue(attrs...)
}

// Code maps err onto its wire code. A sync fault outranks whatever failure
// it wraps.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSynchronization):
		return CodeSyncFault
	case errors.Is(err, ErrUnauthenticated):
		return CodeUnauthenticated
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	default:
		return CodeServerError
	}
}

// Message is the client-safe text for err. Unexpected errors are not echoed.
func Message(err error) string {
	if Code(err) == CodeServerError {
		return "internal error"
	}
	return err.Error()
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func notFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}
