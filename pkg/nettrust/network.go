// Package nettrust pkg/nettrust/network.go
package nettrust

import (
	"fmt"
)

// NetworkType is the kind of the active network.
type NetworkType string

// Network types.
const (
	NetworkNone     NetworkType = "none"
	NetworkWiFi     NetworkType = "wifi"
	NetworkCellular NetworkType = "cellular"
	NetworkEthernet NetworkType = "ethernet"
)

// ParseNetworkType parses s into a NetworkType. An empty string is NetworkNone.
func ParseNetworkType(s string) (NetworkType, error) {
	switch t := NetworkType(s); t {
	case NetworkNone, NetworkWiFi, NetworkCellular, NetworkEthernet:
		return t, nil
	case "":
		return NetworkNone, nil
	}
	return NetworkNone, fmt.Errorf("unknown network type %q", s)
}

// Network identifies the active network.
type Network struct {
	Type NetworkType `json:"type"`
	Name string      `json:"name"`
}

// Key is the identity of the network, used to persist its trust.
func (n Network) Key() string {
	return string(n.Type) + ":" + n.Name
}

// Same reports whether n and other are the same network.
func (n Network) Same(other Network) bool {
	return n.Type == other.Type && n.Name == other.Name
}

// IsNone reports whether there is no actionable network.
func (n Network) IsNone() bool {
	return n.Type == NetworkNone || n.Type == ""
}

func (n Network) String() string {
	if n.Name == "" {
		return string(n.Type)
	}
	return fmt.Sprintf("%s(%s)", n.Type, n.Name)
}

// TrustLevel is the user assigned trust of a network.
type TrustLevel string

// Trust levels.
const (
	Untrusted TrustLevel = "untrusted"
	Unknown   TrustLevel = "unknown"
	Trusted   TrustLevel = "trusted"
)

// ParseTrustLevel parses s into a TrustLevel. An empty string is Unknown.
func ParseTrustLevel(s string) (TrustLevel, error) {
	switch t := TrustLevel(s); t {
	case Untrusted, Unknown, Trusted:
		return t, nil
	case "":
		return Unknown, nil
	}
	return Unknown, fmt.Errorf("unknown trust level %q", s)
}

// rank orders trust levels: Untrusted < Unknown < Trusted.
func (t TrustLevel) rank() int {
	switch t {
	case Untrusted:
		return 0
	case Trusted:
		return 2
	default:
		return 1
	}
}

// Less reports whether t is a lower trust than other.
func (t TrustLevel) Less(other TrustLevel) bool {
	return t.rank() < other.rank()
}
