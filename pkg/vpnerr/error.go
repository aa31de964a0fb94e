// Package vpnerr pkg/vpnerr/error.go
package vpnerr

import (
	"errors"
	"fmt"
	"strconv"
)

// Error is a classified coordinator failure. Callers switch on Kind (or Code)
// to pick user messaging; the coordinator itself only classifies and reports.
type Error struct {
	Kind    Kind
	Code    ErrCode
	Reason  string
	Message string

	// TooManySessions details.
	Limit      int
	UpgradeURL string
	Upgradable bool

	// KeyRegenerationFailure detail: key was past expiry when regeneration failed.
	Expired bool

	Err error
}

// Error implements `error`.
func (e *Error) Error() string {
	msg := "code " + strconv.Itoa(int(e.Code)) + ": " + string(e.Kind)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors of the same kind, so `errors.Is(err, &Error{Kind: k})` works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Reason == "" || t.Reason == e.Reason)
}

// KeyRegenerationFailure reports that key regeneration failed. expired tells
// whether the key was already past its expiry at that time.
func KeyRegenerationFailure(expired bool, err error) error {
	e := &Error{
		Kind:    KindKeyRegenerationFailure,
		Code:    ErrCodeKeyRegenFailed,
		Reason:  ReasonRegenFailed,
		Expired: expired,
		Err:     err,
	}
	if expired {
		e.Code = ErrCodeKeyExpiredRegenFailed
		e.Reason = ReasonExpiredAndRegenFailed
	}
	return e
}

// SessionFailure reports a session service failure carrying its message.
func SessionFailure(message string) error {
	return &Error{
		Kind:    KindSessionFailure,
		Code:    ErrCodeSessionFailure,
		Message: message,
	}
}

// AuthenticationFailure reports that the local session is no longer valid.
func AuthenticationFailure() error {
	return &Error{
		Kind: KindAuthenticationFailure,
		Code: ErrCodeAuthenticationFailure,
	}
}

// TooManySessions reports that the account reached its device limit.
func TooManySessions(limit int, upgradeURL string, upgradable bool) error {
	return &Error{
		Kind:       KindTooManySessions,
		Code:       ErrCodeTooManySessions,
		Message:    fmt.Sprintf("session limit of %d reached", limit),
		Limit:      limit,
		UpgradeURL: upgradeURL,
		Upgradable: upgradable,
	}
}

// NetworkUnreachable reports that a network dependent call could not reach its peer.
func NetworkUnreachable(err error) error {
	return &Error{
		Kind: KindNetworkUnreachable,
		Code: ErrCodeNetworkUnreachable,
		Err:  err,
	}
}

// PlatformConnectFailure reports a failed platform connect or disconnect call.
func PlatformConnectFailure(message string, err error) error {
	return &Error{
		Kind:    KindPlatformConnectFailure,
		Code:    ErrCodePlatformConnectFailure,
		Message: message,
		Err:     err,
	}
}

// KindOf returns the Kind of err, or "" when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CodeOf returns the ErrCode of err.
func CodeOf(err error) ErrCode {
	if err == nil {
		return ErrCodeNoError
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeUnknown
}
