package main

import (
	"errors"
	"fmt"
	"net/http"
)

// NotFoundError indicates a referenced topic, post or member does not exist.
type NotFoundError struct {
	Resource string
	ID       int64
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Resource, e.ID)
}

// RateLimitError indicates the caller's insight quota is exhausted.
type RateLimitError struct {
	MemberID int64
	Limit    int32
}

func (e RateLimitError) Error() string {
	return fmt.Sprintf("daily insight limit of %d reached", e.Limit)
}

// UpstreamError indicates a metadata or text-generation provider failure.
type UpstreamError struct {
	Provider string
	Err      error
}

func (e UpstreamError) Error() string {
	return fmt.Sprintf("%s request failed: %v", e.Provider, e.Err)
}

func (e UpstreamError) Unwrap() error {
	return e.Err
}

// StorageError indicates a persistence failure on a non-optional write.
// Cache and quota reads deliberately do not produce these; see cache.go.
type StorageError struct {
	Op  string
	Err error
}

func (e StorageError) Error() string {
	return fmt.Sprintf("storage error in %s: %v", e.Op, e.Err)
}

func (e StorageError) Unwrap() error {
	return e.Err
}

// httpStatusFor maps domain errors onto response codes. Anything
// unrecognized is a 500.
func httpStatusFor(err error) int {
	var (
		ve  ValidationError
		ves ValidationErrors
		nfe NotFoundError
		rle RateLimitError
		ue  UpstreamError
		se  StorageError
	)

	switch {
	case errors.As(err, &ve), errors.As(err, &ves):
		return http.StatusBadRequest
	case errors.As(err, &nfe):
		return http.StatusNotFound
	case errors.As(err, &rle):
		return http.StatusTooManyRequests
	case errors.As(err, &ue):
		return http.StatusBadGateway
	case errors.As(err, &se):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
