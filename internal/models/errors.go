package models

import (
	"errors"
	"fmt"
)

// Caller errors: surfaced immediately, never retried.
var (
	ErrNotFound        = errors.New("post not found")
	ErrInvalidState    = errors.New("invalid state transition")
	ErrExhaustedSuffix = errors.New("uid suffixes exhausted for date code")
	ErrInvalidInput    = errors.New("invalid input")
)

// Publish-path errors.
var (
	ErrUpload            = errors.New("media upload failed")
	ErrResolution        = errors.New("media url resolution failed")
	ErrPlatform          = errors.New("platform rejected publish")
	ErrProcessingTimeout = errors.New("media container not ready in time")
)

// PlatformError records why one platform refused a post. It matches ErrPlatform
// with errors.Is.
type PlatformError struct {
	Platform string
	Reason   string
	Err      error
}

func (e *PlatformError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Platform, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Platform, e.Reason)
}

func (e *PlatformError) Is(target error) bool {
	return target == ErrPlatform
}

func (e *PlatformError) Unwrap() error {
	return e.Err
}

func NewPlatformError(platform, reason string, err error) *PlatformError {
	return &PlatformError{Platform: platform, Reason: reason, Err: err}
}

// InvalidStateError wraps ErrInvalidState with the offending status.
func InvalidStateError(uid string, have PostStatus, op string) error {
	return fmt.Errorf("%w: cannot %s post %s in status %s", ErrInvalidState, op, uid, have)
}
