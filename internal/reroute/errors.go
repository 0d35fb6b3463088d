package reroute

import (
	"fmt"
)

type FetchErrorCause string

const (
	ErrCauseStoreQuery FetchErrorCause = "store query failed"
	ErrCauseTimeout    FetchErrorCause = "store query timed out"
)

// FetchError is returned by Cache.Refresh when the rule set could not be
// read. The resident rule set is left as it was.
type FetchError struct {
	Cause FetchErrorCause
	Err   error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch redirects: %s", e.Cause)
	}
	return fmt.Sprintf("fetch redirects: %s: %v", e.Cause, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
