package chat

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrChannelNotOpen            = errors.New("channel not open")
	ErrChannelClosedUnexpectedly = errors.New("channel closed unexpectedly")
	ErrAlreadyOpen               = errors.New("channel already open")
	ErrFetchFailed               = errors.New("history fetch failed")
	ErrAlreadySeeded             = errors.New("transcript already seeded")
	ErrEmptyMessage              = errors.New("message is empty")
)

// AuthRejectedError carries the server-supplied detail of a failed login or registration.
type AuthRejectedError struct {
	Status int
	Detail string
}

func (e *AuthRejectedError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("authentication rejected (status %d)", e.Status)
	}
	return e.Detail
}

// IsAuthRejected reports whether err is, or wraps, an AuthRejectedError.
func IsAuthRejected(err error) (*AuthRejectedError, bool) {
	var rejected *AuthRejectedError
	if errors.As(err, &rejected) {
		return rejected, true
	}
	return nil, false
}
