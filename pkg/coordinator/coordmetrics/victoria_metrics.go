package coordmetrics

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"github.com/skycoin/vpn-coordinator/pkg/connstatus"
	"github.com/skycoin/vpn-coordinator/pkg/session"
)

// VictoriaMetrics implements `Metrics` using Victoria Metrics.
type VictoriaMetrics struct {
	set *metrics.Set

	status                *metrics.Gauge
	currentStatus         int64
	connectAttempts       *metrics.Counter
	connectDurationsOK    *metrics.Histogram
	connectDurationsError *metrics.Histogram
	keyRegenSuccesses     *metrics.Counter
	keyRegenFailures      *metrics.Counter
}

// NewVictoriaMetrics returns the Victoria Metrics implementation of Metrics.
// Metrics are registered in set; a nil set registers them globally.
func NewVictoriaMetrics(set *metrics.Set) *VictoriaMetrics {
	m := &VictoriaMetrics{set: set}
	m.status = m.getOrCreateGauge("vpn_coordinator_status", func() float64 {
		return float64(m.currentStatusValue())
	})
	m.connectAttempts = m.getOrCreateCounter("vpn_coordinator_connect_attempts_total")
	m.connectDurationsOK = m.getOrCreateHistogram(`vpn_coordinator_connect_durations{success="true"}`)
	m.connectDurationsError = m.getOrCreateHistogram(`vpn_coordinator_connect_durations{success="false"}`)
	m.keyRegenSuccesses = m.getOrCreateCounter(`vpn_coordinator_key_regenerations_total{success="true"}`)
	m.keyRegenFailures = m.getOrCreateCounter(`vpn_coordinator_key_regenerations_total{success="false"}`)
	return m
}

// RecordStatus implements `Metrics`.
func (m *VictoriaMetrics) RecordStatus(status connstatus.Status) {
	m.setStatus(int64(status))
	m.getOrCreateCounter(fmt.Sprintf(`vpn_coordinator_status_transitions_total{status=%q}`, status.String())).Inc()
}

// RecordReconnect implements `Metrics`.
func (m *VictoriaMetrics) RecordReconnect(reason string) {
	m.getOrCreateCounter(fmt.Sprintf(`vpn_coordinator_reconnect_requests_total{reason=%q}`, reason)).Inc()
}

// RecordConnectAttempt implements `Metrics`.
func (m *VictoriaMetrics) RecordConnectAttempt() func(*error) {
	start := time.Now()
	m.connectAttempts.Inc()

	return func(err *error) {
		if err != nil && *err != nil {
			m.connectDurationsError.UpdateDuration(start)
			return
		}
		m.connectDurationsOK.UpdateDuration(start)
	}
}

// RecordKeyRegeneration implements `Metrics`.
func (m *VictoriaMetrics) RecordKeyRegeneration(success bool) {
	if success {
		m.keyRegenSuccesses.Inc()
		return
	}
	m.keyRegenFailures.Inc()
}

// RecordSessionOutcome implements `Metrics`.
func (m *VictoriaMetrics) RecordSessionOutcome(kind session.OutcomeKind) {
	m.getOrCreateCounter(fmt.Sprintf(`vpn_coordinator_session_outcomes_total{kind=%q}`, kind)).Inc()
}

func (m *VictoriaMetrics) setStatus(v int64) {
	atomic.StoreInt64(&m.currentStatus, v)
}

func (m *VictoriaMetrics) currentStatusValue() int64 {
	return atomic.LoadInt64(&m.currentStatus)
}

func (m *VictoriaMetrics) getOrCreateCounter(name string) *metrics.Counter {
	if m.set == nil {
		return metrics.GetOrCreateCounter(name)
	}
	return m.set.GetOrCreateCounter(name)
}

func (m *VictoriaMetrics) getOrCreateGauge(name string, f func() float64) *metrics.Gauge {
	if m.set == nil {
		return metrics.GetOrCreateGauge(name, f)
	}
	return m.set.GetOrCreateGauge(name, f)
}

func (m *VictoriaMetrics) getOrCreateHistogram(name string) *metrics.Histogram {
	if m.set == nil {
		return metrics.GetOrCreateHistogram(name)
	}
	return m.set.GetOrCreateHistogram(name)
}
