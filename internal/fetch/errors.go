package fetch

import "errors"

var (
	// ErrRetriesExhausted wraps the last transport error once every attempt failed.
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrUnexpectedStatus is returned by Download for a non-2xx response.
	ErrUnexpectedStatus = errors.New("unexpected HTTP status")

	// ErrBodyTooLarge is returned by Get when a page exceeds the body limit.
	ErrBodyTooLarge = errors.New("response body exceeds limit")
)

// permanentError marks an attempt failure that must not be retried.
type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }

func (p *permanentError) Unwrap() error { return p.err }

func permanent(err error) error {
	return &permanentError{err: err}
}
