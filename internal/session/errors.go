package session

import (
	"fmt"
	"time"
)

// ExpiredAuthLinkError is returned when the device challenge expired before
// the user approved it.
type ExpiredAuthLinkError struct {
	URI       string
	ExpiresIn time.Duration
}

func (e *ExpiredAuthLinkError) Error() string {
	return fmt.Sprintf("authorization link expired after %s without approval", e.ExpiresIn)
}

// RefreshTokenError is returned by a rejected refresh grant. The manager
// recovers from it by starting a device grant.
type RefreshTokenError struct {
	Err error
}

func (e *RefreshTokenError) Error() string {
	return fmt.Sprintf("unable to refresh token: %v", e.Err)
}

func (e *RefreshTokenError) Unwrap() error {
	return e.Err
}
