package email

import (
	"errors"
	"fmt"
)

// ErrAttachmentTooLarge is wrapped by AttachmentReadError when a file exceeds
// the configured maximum attachment size.
var ErrAttachmentTooLarge = errors.New("attachment exceeds maximum size")

// AttachmentReadError reports an attachment whose source file could not be
// read. Rendering produces no output when it occurs.
type AttachmentReadError struct {
	Name string
	Path string
	Err  error
}

func (e *AttachmentReadError) Error() string {
	return fmt.Sprintf("failed to read attachment %q from %s: %v", e.Name, e.Path, e.Err)
}

func (e *AttachmentReadError) Unwrap() error {
	return e.Err
}

// RawMailDateRewriteError reports that the Date header of a raw message could
// not be replaced with the current date.
type RawMailDateRewriteError struct {
	Reason string
}

func (e *RawMailDateRewriteError) Error() string {
	return "failed to update the date of the raw message: " + e.Reason
}

// UnsupportedCharsetError reports a body charset with no known encoder.
type UnsupportedCharsetError struct {
	Charset string
	Err     error
}

func (e *UnsupportedCharsetError) Error() string {
	return fmt.Sprintf("unsupported charset %q: %v", e.Charset, e.Err)
}

func (e *UnsupportedCharsetError) Unwrap() error {
	return e.Err
}
