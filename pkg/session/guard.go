package session

import (
	"fmt"
)

// ActionKind enumerates the recovery actions a Guard may choose.
type ActionKind string

// Action kinds.
const (
	ActionNone                ActionKind = "none"
	ActionConnect             ActionKind = "connect"
	ActionPresentUpgrade      ActionKind = "present-upgrade"
	ActionPromptLogoutOrRetry ActionKind = "prompt-logout-or-retry"
	ActionForceLogout         ActionKind = "force-logout"
	ActionReportError         ActionKind = "report-error"
)

// Action is what the caller has to do after a session outcome.
type Action struct {
	Kind ActionKind `json:"kind"`

	// PresentUpgrade details.
	Limit      int    `json:"limit,omitempty"`
	UpgradeURL string `json:"upgrade_url,omitempty"`

	// ForceLogout: whether the remote session should be deleted. Always false
	// for authentication failures, the backend already rejected the session.
	DeleteSession bool `json:"delete_session"`

	// ReportError message.
	Message string `json:"message,omitempty"`
}

func (a Action) String() string {
	switch a.Kind {
	case ActionPresentUpgrade:
		return fmt.Sprintf("%s(%d, %s)", a.Kind, a.Limit, a.UpgradeURL)
	case ActionReportError:
		return fmt.Sprintf("%s(%s)", a.Kind, a.Message)
	default:
		return string(a.Kind)
	}
}

// Guard maps session outcomes to recovery actions.
type Guard struct {
	// TestMode turns NotFound into a no-op.
	TestMode bool
}

// Handle returns the recovery action for o.
func (g Guard) Handle(o Outcome) Action {
	switch o.Kind {
	case OutcomeSuccess, OutcomeServiceNotActive:
		return Action{Kind: ActionConnect}

	case OutcomeTooManySessions:
		if o.Upgradable {
			return Action{Kind: ActionPresentUpgrade, Limit: o.Limit, UpgradeURL: o.UpgradeURL}
		}
		return Action{Kind: ActionPromptLogoutOrRetry, Limit: o.Limit}

	case OutcomeAuthenticationError:
		return Action{Kind: ActionForceLogout}

	case OutcomeNotFound:
		if g.TestMode {
			return Action{Kind: ActionNone}
		}
		return Action{Kind: ActionForceLogout}

	case OutcomeFailure:
		return Action{Kind: ActionReportError, Message: o.Message}

	default:
		return Action{Kind: ActionReportError, Message: fmt.Sprintf("unexpected session outcome %q", o.Kind)}
	}
}

// PromptChoice is the user's answer to ActionPromptLogoutOrRetry.
type PromptChoice string

// Prompt choices.
const (
	ChoiceLogoutOthers PromptChoice = "logout-others"
	ChoiceRetry        PromptChoice = "retry"
)

// ForceNewSession reports whether the choice recreates the session with force.
func (c PromptChoice) ForceNewSession() (bool, error) {
	switch c {
	case ChoiceLogoutOthers:
		return true, nil
	case ChoiceRetry:
		return false, nil
	}
	return false, fmt.Errorf("unknown prompt choice %q", c)
}
