package client

import (
	"errors"
	"fmt"
)

// ErrNotFound matches any *NotFoundError via errors.Is.
var ErrNotFound = errors.New("not found")

// ErrNoBaseURL is returned by New when no usable base URL is configured.
var ErrNoBaseURL = errors.New("mirador base URL is not configured")

// StatusCodeError is a non-2xx HTTP reply.
type StatusCodeError struct {
	StatusCode int
	Path       string
	Body       string
}

func (e *StatusCodeError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("statusCode %d for %s", e.StatusCode, e.Path)
	}
	return fmt.Sprintf("statusCode %d for %s: %s", e.StatusCode, e.Path, e.Body)
}

// NotFoundError is a 404 reply.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %s", ErrNotFound.Error(), e.Path)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }
