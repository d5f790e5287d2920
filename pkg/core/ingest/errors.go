package ingest

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the ticker has no CIK mapping. Terminal for the ticker.
	ErrNotFound = errors.New("ticker not found in SEC ticker map")

	// ErrNoFilingAvailable means the CIK resolved but no qualifying annual
	// report exists within the lookback window. Terminal for the ticker.
	ErrNoFilingAvailable = errors.New("no qualifying annual filing available")

	// ErrDocumentTooSmall marks a 200 response whose body is too small to be a filing.
	ErrDocumentTooSmall = errors.New("response below minimum document size")
)

// TransientFetchError is a retryable failure (network, 5xx, 429, undersized
// body) that persisted through every allowed attempt.
type TransientFetchError struct {
	URL        string
	StatusCode int // 0 when the transport failed before a response
	Attempts   int
	Err        error
}

func (e *TransientFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transient fetch error: GET %s returned %d after %d attempt(s)", e.URL, e.StatusCode, e.Attempts)
	}
	return fmt.Sprintf("transient fetch error: GET %s failed after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// PermanentFetchError is a non-retryable 4xx response.
type PermanentFetchError struct {
	URL        string
	StatusCode int
}

func (e *PermanentFetchError) Error() string {
	return fmt.Sprintf("permanent fetch error: GET %s returned %d", e.URL, e.StatusCode)
}

// IsTransient reports whether err is (or wraps) a TransientFetchError.
func IsTransient(err error) bool {
	var te *TransientFetchError
	return errors.As(err, &te)
}

// IsPermanent reports whether err is (or wraps) a PermanentFetchError.
func IsPermanent(err error) bool {
	var pe *PermanentFetchError
	return errors.As(err, &pe)
}
