package audit

import (
	"errors"
	"fmt"
)

// FetchErrorKind classifies why a page could not be fetched.
type FetchErrorKind string

// Fetch failure kinds.
const (
	FetchNetwork    FetchErrorKind = "network"
	FetchTimeout    FetchErrorKind = "timeout"
	FetchHTTPStatus FetchErrorKind = "http_status"
)

// FetchError reports a page that is unavailable. Callers drop the page and continue.
type FetchError struct {
	URL        string
	Kind       FetchErrorKind
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Kind == FetchHTTPStatus {
		return fmt.Sprintf("fetch %s: http status %d", e.URL, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

var (
	// ErrAnalyzerUnavailable is returned when the text analyzer has no credential.
	ErrAnalyzerUnavailable = errors.New("text analyzer unavailable")
	// ErrNoTargets is returned for a request without a start URL or URL list.
	ErrNoTargets = errors.New("request needs a start url or urls")
	// ErrNotFound is returned by stores for unknown run IDs.
	ErrNotFound = errors.New("run not found")
	// ErrQueueClosed is returned by queues that no longer hand out items.
	ErrQueueClosed = errors.New("queue closed")
)
