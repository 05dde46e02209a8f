package harvester

import (
	"errors"
	"fmt"
)

// ErrContentTooShort marks pages whose plain text is below the configured
// minimum length.
var ErrContentTooShort = errors.New("content too short")

// FetchError is returned when the page listing could not be retrieved after
// all retries. It is fatal to a harvest run.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("harvester: page listing unreachable at %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// PageFetchError records a single page that was skipped. The harvest goes on
// without it.
type PageFetchError struct {
	Title    string
	URL      string
	Status   int // HTTP status, 0 when no response was received
	Attempts int
	Err      error
}

func (e PageFetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("page %q skipped after %d attempt(s) (status %d): %v", e.Title, e.Attempts, e.Status, e.Err)
	}
	return fmt.Sprintf("page %q skipped after %d attempt(s): %v", e.Title, e.Attempts, e.Err)
}

func (e PageFetchError) Unwrap() error { return e.Err }
