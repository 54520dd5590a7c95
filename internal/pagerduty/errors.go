package pagerduty

import "fmt"

// FetchError reports that fetching one entity type failed for good: either a
// non-retryable response or retries ran out. The orchestrator records
// it against the stage and moves on to the next entity type.
type FetchError struct {
	Resource string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempt(s): %v", e.Resource, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// MappingError reports a single malformed upstream record. The offending
// record is skipped and tallied; the page keeps processing.
type MappingError struct {
	Resource string
	Field    string
	Reason   string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("map %s record: field %q %s", e.Resource, e.Field, e.Reason)
}
