package contract

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrNotConnected  = errors.New("provider not connected")
	ErrRefreshFailed = errors.New("provider token refresh failed")
	ErrNotFound      = errors.New("not found")
	ErrProviderCall  = errors.New("provider call failed")
	ErrInvalidState  = errors.New("invalid state")
	ErrUnknownAction = errors.New("unknown action")
)

// ProviderError carries the status code and truncated response body of a
// failed provider call. It unwraps to ErrProviderCall so callers can classify
// it without knowing which provider raised it.
type ProviderError struct {
	Provider string
	Status   int
	Body     string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: status=%d body=%s", e.Provider, e.Status, e.Body)
}

func (e *ProviderError) Unwrap() error {
	return ErrProviderCall
}
