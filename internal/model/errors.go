package model

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by how the run should react to it.
// The set of kinds is closed; callers switch on it exhaustively.
type Kind int

const (
	// KindTask is a failure of one discovery or download task.
	// It is logged and recorded, never propagated past the task boundary.
	KindTask Kind = iota

	// KindTransient is a network failure (dial error, timeout, broken body).
	// It is retried locally and becomes a task failure on exhaustion.
	KindTransient

	// KindParse is a malformed URL or a non UTF-8 link fragment.
	// The offending link is skipped.
	KindParse

	// KindSubprocess is a non-zero exit or launch failure of ar, tar or symsorter.
	KindSubprocess

	// KindSetup is a failure before any task is spawned, such as an output
	// directory that cannot be created. It aborts the run.
	KindSetup
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindTask:
		return "task"
	case KindTransient:
		return "transient"
	case KindParse:
		return "parse"
	case KindSubprocess:
		return "subprocess"
	case KindSetup:
		return "setup"
	default:
		return "unknown"
	}
}

// Error is a classified failure. Op names the operation that failed
// ("fetch", "ar", "sorter", ...) and URL the resource involved, if any.
type Error struct {
	Kind Kind
	Op   string
	URL  string
	Err  error
}

// NewError wraps err with a kind and operation name.
func NewError(kind Kind, op, url string, err error) *Error {
	return &Error{Kind: kind, Op: op, URL: url, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("%s %s (%s): %v", e.Op, e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain.
// Errors that carry no classification are task failures.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTask
}

// IsSetup reports whether err must abort the run.
func IsSetup(err error) bool {
	return err != nil && KindOf(err) == KindSetup
}
