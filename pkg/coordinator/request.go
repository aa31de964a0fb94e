package coordinator

import (
	"time"

	"github.com/google/uuid"
)

// Reason tells why a connect or reconnect was requested.
type Reason string

// Reasons.
const (
	ReasonUser          Reason = "user"
	ReasonSession       Reason = "session"
	ReasonTrustChange   Reason = "trust-change"
	ReasonFastestServer Reason = "fastest-server"
	ReasonServerChange  Reason = "server-change"
)

// ReconnectRequest is a pending intent to (re)connect. Automatic requests are
// silent, the others let the platform ask the user for confirmation.
type ReconnectRequest struct {
	ID          uuid.UUID `json:"id"`
	Reason      Reason    `json:"reason"`
	Automatic   bool      `json:"automatic"`
	RequestedAt time.Time `json:"requested_at"`
}

func newRequest(reason Reason, automatic bool) ReconnectRequest {
	return ReconnectRequest{
		ID:          uuid.New(),
		Reason:      reason,
		Automatic:   automatic,
		RequestedAt: time.Now(),
	}
}

func (r ReconnectRequest) options() ConnectOptions {
	return ConnectOptions{
		RequestID: r.ID,
		Reason:    r.Reason,
		Automatic: r.Automatic,
	}
}
