package jules

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingAPIKey indicates the agent service key is absent from credentials.
	ErrMissingAPIKey = errors.New("jules api key is not configured")
	// ErrMissingSource indicates no repository source was configured.
	// Sessions cannot be created without one.
	ErrMissingSource = errors.New("jules_source is not configured (expected something like sources/github/owner/repo)")
	// ErrMalformedResponse indicates a success response was missing a
	// structurally required field.
	ErrMalformedResponse = errors.New("malformed response from agent service")
)

// RequestError reports a non-success status from the agent service. The
// response body is kept verbatim for diagnosis.
type RequestError struct {
	Op     string
	Status int
	Body   string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Body)
}
