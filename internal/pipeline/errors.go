package pipeline

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced verbatim to the caller.
var (
	// ErrNotConfigured means one or both external API credentials are
	// missing. No retry will help until settings are updated.
	ErrNotConfigured = errors.New("API keys not configured. Please visit Settings page.")

	// ErrNoListings means the listing source answered with zero sold
	// listings. Distinct from a fetch failure so the caller can suggest
	// refining the query. A zero-comp estimate is meaningless, so nothing
	// is cached.
	ErrNoListings = errors.New("No sold listings found on eBay for this query.")
)

// FetchError wraps a listing-source transport failure.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch sold listings: %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// PersistenceError wraps a cache or history write failure. Persistence is
// non-fatal for the request: the computed analysis is still returned, but
// the failure is logged rather than swallowed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
