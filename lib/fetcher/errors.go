package fetcher

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrEmptyBody  = errors.New("empty response body")
	ErrDisallowed = errors.New("disallowed by robots.txt")
)

// FetchError is returned once every attempt for a url failed.
type FetchError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempt(s): %s", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// StatusError is a non success http status.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d %s", e.Status, http.StatusText(e.Status))
}
