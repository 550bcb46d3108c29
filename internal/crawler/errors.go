package crawler

import (
	"errors"
	"fmt"
)

// FetchErrorKind classifies why a fetch produced no usable response
type FetchErrorKind string

const (
	KindNetwork          FetchErrorKind = "network"
	KindTimeout          FetchErrorKind = "timeout"
	KindTooManyRedirects FetchErrorKind = "too_many_redirects"
)

var (
	// ErrTooManyRedirects matches fetches that exceeded the hop limit
	ErrTooManyRedirects = errors.New("too many redirects")
	// ErrFetchTimeout matches fetches that ran past their deadline
	ErrFetchTimeout = errors.New("fetch timed out")
)

// FetchError describes a failed logical fetch
type FetchError struct {
	Kind FetchErrorKind
	URL  string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s fetching %s: %v", e.Kind, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the sentinel for the error kind
func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrTooManyRedirects:
		return e.Kind == KindTooManyRedirects
	case ErrFetchTimeout:
		return e.Kind == KindTimeout
	}
	return false
}
