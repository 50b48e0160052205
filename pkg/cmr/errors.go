package cmr

import (
	"errors"
	"fmt"
)

var (
	// ErrNilClient is returned when methods are invoked on a nil Client pointer.
	ErrNilClient = errors.New("cmr: nil client")
	// ErrMissingDownloadURL indicates that a granule reference is empty.
	ErrMissingDownloadURL = errors.New("cmr: granule missing download URL")
	// ErrS3NotConfigured is returned when an s3:// granule is requested without
	// a credentials endpoint.
	ErrS3NotConfigured = errors.New("cmr: s3 credentials URL not configured")
	// ErrDuplicateFileName reports two granules in one batch that would be
	// written to the same local file.
	ErrDuplicateFileName = errors.New("cmr: file name already used in this batch")
)

// TransportError reports that a request never produced an HTTP response:
// the host was unreachable, the connection failed or the context expired.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("cmr: request %s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ResponseError reports a non-2xx status from the catalog.
type ResponseError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *ResponseError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("cmr: unexpected status %d from %s", e.StatusCode, e.Endpoint)
	}
	return fmt.Sprintf("cmr: unexpected status %d from %s: %s", e.StatusCode, e.Endpoint, e.Body)
}

// ParseError reports a response body that is not JSON or does not have the
// documented feed shape.
type ParseError struct {
	Endpoint string
	Reason   string
	Err      error
}

func (e *ParseError) Error() string {
	switch {
	case e.Err != nil && e.Reason != "":
		return fmt.Sprintf("cmr: parse %s response: %s: %v", e.Endpoint, e.Reason, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("cmr: parse %s response: %v", e.Endpoint, e.Err)
	default:
		return fmt.Sprintf("cmr: parse %s response: %s", e.Endpoint, e.Reason)
	}
}

func (e *ParseError) Unwrap() error { return e.Err }

// BatchError aggregates multiple download errors.
type BatchError struct {
	Errors []error
}

// Error implements the error interface.
func (e BatchError) Error() string {
	if len(e.Errors) == 0 {
		return ""
	}
	return errors.Join(e.Errors...).Error()
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e BatchError) Unwrap() []error {
	return e.Errors
}
