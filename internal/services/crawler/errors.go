package crawler

import (
	"errors"
	"fmt"
)

var (
	// ErrDiscovery wraps every failure to list URLs for a start page
	ErrDiscovery = errors.New("discovery failed")
	// ErrFetch is matched by every *FetchError
	ErrFetch = errors.New("fetch failed")
)

// FetchError describes a page that could not be downloaded or parsed
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrFetch) match any FetchError
func (e *FetchError) Is(target error) bool { return target == ErrFetch }
