package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/nitrescov/filestored/internal/metrics"
)

func TestNewCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	if c.SessionsActive == nil {
		t.Error("SessionsActive is nil")
	}
	if c.LoginAttempts == nil {
		t.Error("LoginAttempts is nil")
	}
	if c.CommandsTotal == nil {
		t.Error("CommandsTotal is nil")
	}
	if c.BytesTransferred == nil {
		t.Error("BytesTransferred is nil")
	}
	if c.ChecksumRetries == nil {
		t.Error("ChecksumRetries is nil")
	}
	if c.ProtocolViolations == nil {
		t.Error("ProtocolViolations is nil")
	}

	if _, err := reg.Gather(); err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.SessionOpened()
	c.SessionOpened()
	if v := gaugeValue(t, c.SessionsActive); v != 2 {
		t.Errorf("after two SessionOpened: gauge = %v, want 2", v)
	}

	c.SessionClosed()
	if v := gaugeValue(t, c.SessionsActive); v != 1 {
		t.Errorf("after SessionClosed: gauge = %v, want 1", v)
	}
}

func TestRecordLogin(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.RecordLogin("accepted")
	c.RecordLogin("accepted")
	c.RecordLogin("rejected")

	if v := counterValue(t, c.LoginAttempts, "accepted"); v != 2 {
		t.Errorf("accepted logins = %v, want 2", v)
	}
	if v := counterValue(t, c.LoginAttempts, "rejected"); v != 1 {
		t.Errorf("rejected logins = %v, want 1", v)
	}
}

func TestRecordCommandAndBytes(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.RecordCommand("UPLOAD_FILE")
	c.RecordCommand("UPLOAD_FILE")
	c.AddBytes("up", 1024)
	c.AddBytes("down", 2048)

	if v := counterValue(t, c.CommandsTotal, "UPLOAD_FILE"); v != 2 {
		t.Errorf("CommandsTotal(UPLOAD_FILE) = %v, want 2", v)
	}
	if v := counterValue(t, c.BytesTransferred, "up"); v != 1024 {
		t.Errorf("BytesTransferred(up) = %v, want 1024", v)
	}
	if v := counterValue(t, c.BytesTransferred, "down"); v != 2048 {
		t.Errorf("BytesTransferred(down) = %v, want 2048", v)
	}
}

func TestRecordChecksumRetryAndViolation(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.RecordChecksumRetry("UPLOAD_FILE")
	c.RecordChecksumRetry("UPLOAD_FILE")
	c.RecordProtocolViolation("separator_in_path")

	if v := counterValue(t, c.ChecksumRetries, "UPLOAD_FILE"); v != 2 {
		t.Errorf("ChecksumRetries(UPLOAD_FILE) = %v, want 2", v)
	}
	if v := counterValue(t, c.ProtocolViolations, "separator_in_path"); v != 1 {
		t.Errorf("ProtocolViolations(separator_in_path) = %v, want 1", v)
	}
}

func TestNilCollectorIsNoop(t *testing.T) {
	t.Parallel()

	var c *metrics.Collector
	c.SessionOpened()
	c.SessionClosed()
	c.RecordLogin("accepted")
	c.RecordCommand("LOGIN")
	c.AddBytes("up", 10)
	c.RecordChecksumRetry("LOGIN")
	c.RecordProtocolViolation("x")
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()

	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()

	counter, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}

	m := &dto.Metric{}
	if err := counter.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}
