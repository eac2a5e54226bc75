// Package metrics collects in-process counters for session keeper activity.
package metrics

import (
	"sync/atomic"
	"time"
)

// Default is the collector used when a component is not handed its own.
var Default = NewMetrics()

// Metrics collector for session lifecycle activity
type Metrics struct {
	// Renewal metrics
	Renewals       atomic.Int64
	RenewalErrors  atomic.Int64
	RenewalElapsed atomic.Int64 // nanoseconds

	// Status probe metrics
	Probes       atomic.Int64
	ProbeRejects atomic.Int64 // server-side invalidations
	ProbeErrors  atomic.Int64

	// Logout metrics
	Logouts       atomic.Int64
	ForcedLogouts atomic.Int64

	// Cross-tab metrics
	StoreEvents atomic.Int64

	startTime time.Time
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),
	}
}

// RecordRenewal records a renewal attempt
func (m *Metrics) RecordRenewal(elapsed time.Duration, success bool) {
	m.Renewals.Add(1)
	m.RenewalElapsed.Add(elapsed.Nanoseconds())
	if !success {
		m.RenewalErrors.Add(1)
	}
}

// RecordProbe records a status probe; rejected marks a server-side
// invalidation, failed any other probe error
func (m *Metrics) RecordProbe(rejected, failed bool) {
	m.Probes.Add(1)
	if rejected {
		m.ProbeRejects.Add(1)
	}
	if failed {
		m.ProbeErrors.Add(1)
	}
}

// RecordLogout records a logout; forced marks logouts the keeper decided on
// its own rather than the user asking for one
func (m *Metrics) RecordLogout(forced bool) {
	m.Logouts.Add(1)
	if forced {
		m.ForcedLogouts.Add(1)
	}
}

// RecordStoreEvent records an observed cross-tab store event
func (m *Metrics) RecordStoreEvent() {
	m.StoreEvents.Add(1)
}

// GetSnapshot returns a snapshot of current metrics
func (m *Metrics) GetSnapshot() map[string]any {
	uptime := time.Since(m.startTime)

	snapshot := map[string]any{
		"uptime_seconds": uptime.Seconds(),
		"renewals":       m.Renewals.Load(),
		"renewal_errors": m.RenewalErrors.Load(),
		"probes":         m.Probes.Load(),
		"probe_rejects":  m.ProbeRejects.Load(),
		"probe_errors":   m.ProbeErrors.Load(),
		"logouts":        m.Logouts.Load(),
		"forced_logouts": m.ForcedLogouts.Load(),
		"store_events":   m.StoreEvents.Load(),
	}

	if renewals := m.Renewals.Load(); renewals > 0 {
		snapshot["avg_renewal_ms"] = float64(m.RenewalElapsed.Load()) / float64(renewals) / 1e6
	}

	return snapshot
}

// Reset resets all metrics
func (m *Metrics) Reset() {
	m.Renewals.Store(0)
	m.RenewalErrors.Store(0)
	m.RenewalElapsed.Store(0)
	m.Probes.Store(0)
	m.ProbeRejects.Store(0)
	m.ProbeErrors.Store(0)
	m.Logouts.Store(0)
	m.ForcedLogouts.Store(0)
	m.StoreEvents.Store(0)
	m.startTime = time.Now()
}
