package switcher

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies why a backend call failed.
type Kind int

const (
	KindUnknown   Kind = iota
	KindNetwork        // request never got an answer: dial, timeout, cancellation
	KindMalformed      // answer could not be decoded into the expected shape
	KindRejected       // server answered with a non-2xx status
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindMalformed:
		return "malformed"
	case KindRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Error is the failure type threaded through Load and Switch.
type Error struct {
	Kind Kind
	Op   string // "load" or "switch"
	// Model is the requested model for switch failures.
	Model string
	// Status is the HTTP status for KindRejected, 0 otherwise.
	Status int
	Err    error
}

func (e *Error) Error() string {
	target := e.Op
	if e.Model != "" {
		target = fmt.Sprintf("%s %s", e.Op, e.Model)
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", target, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", target, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds an *Error. Backends use it so the switcher can tell failure kinds apart.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, KindUnknown otherwise.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// asError converts any backend failure into an *Error for op, keeping an existing classification.
func asError(op, model string, err error) *Error {
	var e *Error
	if stderrors.As(err, &e) {
		out := *e
		out.Op = op
		if model != "" {
			out.Model = model
		}
		return &out
	}
	return &Error{Kind: KindUnknown, Op: op, Model: model, Err: err}
}
