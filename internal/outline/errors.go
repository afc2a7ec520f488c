package outline

import (
	"context"
	"errors"
	"fmt"

	"podnotes/api/internal/store"
)

type Kind string

const (
	KindNotFound   Kind = "not_found"
	KindValidation Kind = "validation"
	KindBoundary   Kind = "boundary"
	KindCycle      Kind = "cycle"
	KindConflict   Kind = "conflict"
)

// Sentinels for errors.Is: any *Error of the same Kind matches.
var (
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrValidation = &Error{Kind: KindValidation}
	ErrBoundary   = &Error{Kind: KindBoundary}
	ErrCycle      = &Error{Kind: KindCycle}
	ErrConflict   = &Error{Kind: KindConflict}
)

// Error is the failure of one operation. A failed operation never changes
// the tree and never produces a broadcast.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op == "" {
		return msg
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Message == ""
}

// KindOf returns the kind of an outline error, or "" for anything else.
func KindOf(err error) Kind {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Kind
	}
	return ""
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func boundaryf(format string, args ...any) *Error {
	return newError(KindBoundary, format, args...)
}

func validationf(format string, args ...any) *Error {
	return newError(KindValidation, format, args...)
}

// translate maps store failures onto the operation error kinds.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	var oe *Error
	if errors.As(err, &oe) {
		if oe.Op != "" {
			return oe
		}
		tagged := *oe
		tagged.Op = op
		return &tagged
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return &Error{Kind: KindNotFound, Op: op, Message: err.Error(), Err: err}
	case errors.Is(err, store.ErrValidation):
		return &Error{Kind: KindValidation, Op: op, Message: err.Error(), Err: err}
	case errors.Is(err, store.ErrConflict):
		return &Error{Kind: KindConflict, Op: op, Message: "concurrent change, reload and retry", Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
