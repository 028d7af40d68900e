package domain

import (
	"errors"
	"fmt"
)

// SendErrorKind classifies a channel provider failure. Classification is
// structural: providers return a typed error, never matched on message text.
type SendErrorKind string

const (
	SendErrNetwork     SendErrorKind = "network"
	SendErrTimeout     SendErrorKind = "timeout"
	SendErrRateLimited SendErrorKind = "rate_limited"
	SendErrTemporary   SendErrorKind = "temporary"
	SendErrPermanent   SendErrorKind = "permanent"
)

// SendError is the error type crossing the channel provider boundary.
type SendError struct {
	Kind    SendErrorKind
	Message string
}

func (e *SendError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Transient reports whether the failure is worth retrying.
func (e *SendError) Transient() bool {
	switch e.Kind {
	case SendErrNetwork, SendErrTimeout, SendErrRateLimited, SendErrTemporary:
		return true
	}
	return false
}

// NewSendError builds a classified provider error.
func NewSendError(kind SendErrorKind, format string, args ...any) *SendError {
	return &SendError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AsSendError extracts a *SendError from err. Errors a provider did not
// classify are treated as permanent.
func AsSendError(err error) *SendError {
	var se *SendError
	if errors.As(err, &se) {
		return se
	}
	return &SendError{Kind: SendErrPermanent, Message: err.Error()}
}
