package evidence

import "errors"

// Failure kinds for pipeline and query outcomes. Handlers log the kind and
// return a generic fault to the caller; only ErrNotFound maps to a distinct
// client-visible status.
var (
	// ErrScanUnavailable reports that the virus scanner could not be reached
	// or timed out. It is never downgraded to a clean verdict: scanner
	// availability gates the fail-closed property of the whole intake path.
	ErrScanUnavailable = errors.New("virus scanner unavailable")

	// ErrScanFailed reports a scanner-side fault other than unavailability.
	ErrScanFailed = errors.New("virus scan failed")

	// ErrStorage reports a failed object store write.
	ErrStorage = errors.New("object storage failure")

	// ErrMetadata reports a failed evidence record write after the object
	// was durably stored. The stored object is orphaned, not rolled back.
	ErrMetadata = errors.New("evidence record failure")

	// ErrNotFound reports that no evidence record matches the identifier.
	// It is a valid query outcome, not a fault.
	ErrNotFound = errors.New("evidence not found")
)
