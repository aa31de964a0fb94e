// Package connstatus pkg/connstatus/status.go
package connstatus

import (
	"fmt"
)

// Status is the connection status reported by the platform VPN subsystem.
type Status int

const (
	// Invalid is reported when no VPN configuration is installed.
	Invalid Status = iota
	// Disconnected is reported when the tunnel is down.
	Disconnected
	// Connecting is reported while the tunnel is being established.
	Connecting
	// Connected is reported once the tunnel is up.
	Connected
	// Disconnecting is reported while the tunnel is being torn down.
	Disconnecting
	// ReasserterConnecting is reported while the tunnel re-establishes itself
	// without a full disconnect.
	ReasserterConnecting
	// ReasserterDisconnecting is reported while a reasserting tunnel is torn down.
	ReasserterDisconnecting
)

var statusNames = map[Status]string{
	Invalid:                 "invalid",
	Disconnected:            "disconnected",
	Connecting:              "connecting",
	Connected:               "connected",
	Disconnecting:           "disconnecting",
	ReasserterConnecting:    "reasserter-connecting",
	ReasserterDisconnecting: "reasserter-disconnecting",
}

// All returns every known status, in declaration order.
func All() []Status {
	return []Status{
		Invalid,
		Disconnected,
		Connecting,
		Connected,
		Disconnecting,
		ReasserterConnecting,
		ReasserterDisconnecting,
	}
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Parse returns the status named by name.
func Parse(name string) (Status, error) {
	for s, n := range statusNames {
		if n == name {
			return s, nil
		}
	}
	return Invalid, fmt.Errorf("unknown connection status %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	if _, ok := statusNames[s]; !ok {
		return nil, fmt.Errorf("unknown connection status %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// IsDisconnected reports whether a connect may be issued right away.
func (s Status) IsDisconnected() bool {
	return s == Disconnected || s == Invalid
}

// IsActive reports whether the tunnel is up or coming up, so a reconnect
// has to tear it down first.
func (s Status) IsActive() bool {
	switch s {
	case Connected, Connecting, ReasserterConnecting:
		return true
	}
	return false
}

// IsDisconnecting reports whether a teardown is already in flight.
func (s Status) IsDisconnecting() bool {
	return s == Disconnecting || s == ReasserterDisconnecting
}
