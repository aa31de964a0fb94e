// Package session pkg/session/outcome.go
package session

// OutcomeKind enumerates session creation results.
type OutcomeKind string

// Outcome kinds.
const (
	OutcomeSuccess             OutcomeKind = "success"
	OutcomeServiceNotActive    OutcomeKind = "service-not-active"
	OutcomeTooManySessions     OutcomeKind = "too-many-sessions"
	OutcomeAuthenticationError OutcomeKind = "authentication-error"
	OutcomeNotFound            OutcomeKind = "not-found"
	OutcomeFailure             OutcomeKind = "failure"
)

// Outcome is the result of a session creation or validation call.
type Outcome struct {
	Kind OutcomeKind `json:"kind"`

	// TooManySessions details.
	Limit      int    `json:"limit,omitempty"`
	UpgradeURL string `json:"upgrade_url,omitempty"`
	Upgradable bool   `json:"upgradable,omitempty"`

	// Failure message.
	Message string `json:"message,omitempty"`
}

// Success returns a successful Outcome.
func Success() Outcome { return Outcome{Kind: OutcomeSuccess} }

// ServiceNotActive returns an Outcome for an account without an active service.
func ServiceNotActive() Outcome { return Outcome{Kind: OutcomeServiceNotActive} }

// TooManySessions returns an Outcome for a reached device limit.
func TooManySessions(limit int, upgradeURL string, upgradable bool) Outcome {
	return Outcome{
		Kind:       OutcomeTooManySessions,
		Limit:      limit,
		UpgradeURL: upgradeURL,
		Upgradable: upgradable,
	}
}

// AuthenticationError returns an Outcome for rejected credentials.
func AuthenticationError() Outcome { return Outcome{Kind: OutcomeAuthenticationError} }

// NotFound returns an Outcome for an unknown session.
func NotFound() Outcome { return Outcome{Kind: OutcomeNotFound} }

// Failure returns a failed Outcome carrying message.
func Failure(message string) Outcome { return Outcome{Kind: OutcomeFailure, Message: message} }
