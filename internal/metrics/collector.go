// Package metrics defines the Prometheus metrics exported by the
// file-storage daemon.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "filestored"
	subsystem = "session"
)

// Label names used across the collector's metric vectors.
const (
	labelResult  = "result"
	labelCommand = "command"
	labelCause   = "cause"
	labelDir     = "direction"
)

// -------------------------------------------------------------------------
// Collector — Prometheus session metrics
// -------------------------------------------------------------------------

// Collector holds all Prometheus metrics emitted by the protocol layer.
//
//   - SessionsActive tracks currently open connections.
//   - LoginAttempts and ProtocolViolations flag security-relevant events.
//   - CommandsTotal and ChecksumRetries track protocol-level health.
//   - BytesTransferred tracks upload/download volume.
type Collector struct {
	// SessionsActive is the number of currently open sessions.
	SessionsActive prometheus.Gauge

	// LoginAttempts counts login attempts labeled by outcome
	// (accepted, rejected).
	LoginAttempts *prometheus.CounterVec

	// CommandsTotal counts dispatched commands labeled by command family.
	CommandsTotal *prometheus.CounterVec

	// BytesTransferred counts payload bytes labeled by direction
	// (up for uploads, down for downloads).
	BytesTransferred *prometheus.CounterVec

	// ChecksumRetries counts checksum-mismatch retries labeled by command.
	ChecksumRetries *prometheus.CounterVec

	// ProtocolViolations counts session teardowns labeled by cause.
	ProtocolViolations *prometheus.CounterVec
}

// NewCollector creates a Collector with all metrics registered against
// reg. If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.SessionsActive,
		c.LoginAttempts,
		c.CommandsTotal,
		c.BytesTransferred,
		c.ChecksumRetries,
		c.ProtocolViolations,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	return &Collector{
		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "active",
			Help:      "Number of currently open protocol sessions.",
		}),

		LoginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "login_attempts_total",
			Help:      "Total login attempts by outcome.",
		}, []string{labelResult}),

		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "commands_total",
			Help:      "Total dispatched commands by command family.",
		}, []string{labelCommand}),

		BytesTransferred: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bytes_transferred_total",
			Help:      "Total payload bytes transferred by direction.",
		}, []string{labelDir}),

		ChecksumRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "checksum_retries_total",
			Help:      "Total checksum-mismatch retries by command.",
		}, []string{labelCommand}),

		ProtocolViolations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "protocol_violations_total",
			Help:      "Total sessions closed for protocol violations by cause.",
		}, []string{labelCause}),
	}
}

// -------------------------------------------------------------------------
// Session Lifecycle
// -------------------------------------------------------------------------

// SessionOpened increments the active sessions gauge. Called when a
// connection is accepted.
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.SessionsActive.Inc()
}

// SessionClosed decrements the active sessions gauge. Called on any
// session exit path.
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.SessionsActive.Dec()
}

// -------------------------------------------------------------------------
// Login
// -------------------------------------------------------------------------

// RecordLogin increments the login attempts counter for the given
// outcome ("accepted" or "rejected").
func (c *Collector) RecordLogin(result string) {
	if c == nil {
		return
	}
	c.LoginAttempts.WithLabelValues(result).Inc()
}

// -------------------------------------------------------------------------
// Commands
// -------------------------------------------------------------------------

// RecordCommand increments the dispatched-command counter for the given
// command family name.
func (c *Collector) RecordCommand(command string) {
	if c == nil {
		return
	}
	c.CommandsTotal.WithLabelValues(command).Inc()
}

// AddBytes adds n to the transferred-bytes counter for the given
// direction ("up" or "down").
func (c *Collector) AddBytes(direction string, n uint64) {
	if c == nil {
		return
	}
	c.BytesTransferred.WithLabelValues(direction).Add(float64(n))
}

// RecordChecksumRetry increments the checksum-retry counter for the
// given command family name.
func (c *Collector) RecordChecksumRetry(command string) {
	if c == nil {
		return
	}
	c.ChecksumRetries.WithLabelValues(command).Inc()
}

// RecordProtocolViolation increments the protocol-violation counter for
// the given cause string.
func (c *Collector) RecordProtocolViolation(cause string) {
	if c == nil {
		return
	}
	c.ProtocolViolations.WithLabelValues(cause).Inc()
}
