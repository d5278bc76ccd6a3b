package engine

import (
	"errors"
	"fmt"

	"github.com/rcliao/memhive/internal/model"
	"github.com/rcliao/memhive/internal/router"
)

// Kind is the stable, machine-readable class of an engine error.
type Kind string

const (
	KindValidation      Kind = "ValidationError"
	KindNotFound        Kind = "MemoryNotFound"
	KindCoreProtected   Kind = "CoreProtected"
	KindInvalidCategory Kind = "InvalidCategory"
	KindStorageFull     Kind = "StorageFull"
	KindForbidden       Kind = "Forbidden"
	KindNotInitialized  Kind = "NotInitialized"
	KindStore           Kind = "StoreError"
)

// Sentinels for errors.Is matching by kind.
var (
	ErrValidation      = &Error{Kind: KindValidation}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrCoreProtected   = &Error{Kind: KindCoreProtected}
	ErrInvalidCategory = &Error{Kind: KindInvalidCategory}
	ErrStorageFull     = &Error{Kind: KindStorageFull}
	ErrForbidden       = &Error{Kind: KindForbidden}
	ErrNotInitialized  = &Error{Kind: KindNotInitialized}
	ErrStore           = &Error{Kind: KindStore}
)

// Error is the typed error every engine operation returns.
type Error struct {
	// Kind classifies the failure.
	Kind Kind

	// Op is the operation that failed (e.g. "remember", "share_learning").
	Op string

	// Message is a human-readable description.
	Message string

	// Details carries structured fields such as ids, counts or limits.
	Details map[string]any

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind when the target carries no operation.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op)
}

// KindOf returns the kind of err, or KindStore for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStore
}

func newError(op string, kind Kind, details map[string]any, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...), Details: details}
}

// classify maps errors from lower layers onto engine kinds.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	kind := KindStore
	switch {
	case errors.Is(err, model.ErrInvalid):
		kind = KindValidation
	case errors.Is(err, router.ErrNotInitialized):
		kind = KindNotInitialized
	case errors.Is(err, router.ErrNotFound):
		kind = KindNotFound
	}
	return &Error{Kind: kind, Op: op, Message: err.Error(), Err: err}
}
