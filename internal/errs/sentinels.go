// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across gateway/session/capture layers.
var (
	// ErrValidation indicates a required field is missing before a local action.
	// Never sent to the backend.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates the requested entity does not exist (e.g. serial
	// lookup returned no rows).
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates rejected credentials or an invalid/expired
	// token that could not be refreshed.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTransport indicates a timeout or network failure without a
	// structured backend message.
	ErrTransport = errors.New("transport failure")

	// Camera failures surfaced by the capture pipeline.
	ErrCameraDenied      = errors.New("camera permission denied")
	ErrCameraCancelled   = errors.New("camera cancelled by user")
	ErrCameraUnavailable = errors.New("camera unavailable")
)

// BackendError carries the server-provided message of a success:false
// response. The message is meant to be shown to the user verbatim.
type BackendError struct {
	Message string
}

func (e *BackendError) Error() string {
	if e.Message == "" {
		return "backend rejected the request"
	}
	return e.Message
}

// UserMessage extracts a human-readable string for alerts: backend messages
// verbatim, anything else via Error().
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var be *BackendError
	if errors.As(err, &be) {
		return be.Error()
	}
	return err.Error()
}
