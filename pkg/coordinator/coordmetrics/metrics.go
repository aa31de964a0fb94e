// Package coordmetrics pkg/coordinator/coordmetrics/metrics.go
package coordmetrics

import (
	"github.com/skycoin/vpn-coordinator/pkg/connstatus"
	"github.com/skycoin/vpn-coordinator/pkg/session"
)

// Metrics collects coordinator metrics.
type Metrics interface {
	RecordStatus(status connstatus.Status)
	RecordReconnect(reason string)
	RecordConnectAttempt() func(*error)
	RecordKeyRegeneration(success bool)
	RecordSessionOutcome(kind session.OutcomeKind)
}

// NewEmpty creates a new metrics implementation that does nothing.
func NewEmpty() Empty {
	return Empty{}
}

// Empty is a `Metrics` implementation which does nothing.
type Empty struct{}

// RecordStatus implements `Metrics`.
func (Empty) RecordStatus(connstatus.Status) {}

// RecordReconnect implements `Metrics`.
func (Empty) RecordReconnect(string) {}

// RecordConnectAttempt implements `Metrics`.
func (Empty) RecordConnectAttempt() func(*error) {
	return func(*error) {}
}

// RecordKeyRegeneration implements `Metrics`.
func (Empty) RecordKeyRegeneration(bool) {}

// RecordSessionOutcome implements `Metrics`.
func (Empty) RecordSessionOutcome(session.OutcomeKind) {}
