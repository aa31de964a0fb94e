package vpnerr

// ErrCode is to be returned to outer code in
// case this code doesn't support Go errors.
type ErrCode int

const (
	ErrCodeNoError ErrCode = iota
	ErrCodeKeyRegenFailed
	ErrCodeKeyExpiredRegenFailed
	ErrCodeSessionFailure
	ErrCodeAuthenticationFailure
	ErrCodeTooManySessions
	ErrCodeNetworkUnreachable
	ErrCodePlatformConnectFailure

	ErrCodeUnknown ErrCode = 999
)

// Kind classifies a coordinator failure.
type Kind string

const (
	KindKeyRegenerationFailure Kind = "key-regeneration-failure"
	KindSessionFailure         Kind = "session-failure"
	KindAuthenticationFailure  Kind = "authentication-failure"
	KindTooManySessions        Kind = "too-many-sessions"
	KindNetworkUnreachable     Kind = "network-unreachable"
	KindPlatformConnectFailure Kind = "platform-connect-failure"
)

// Key regeneration failure reasons.
const (
	ReasonExpiredAndRegenFailed = "expired-and-regen-failed"
	ReasonRegenFailed           = "regen-failed"
)
