package slpmetrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	slpmetrics "github.com/urbasus/goslp/internal/metrics"
)

func TestNewCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := slpmetrics.NewCollector(reg)

	if c.Registrations == nil {
		t.Error("Registrations is nil")
	}
	if c.KnownDAs == nil {
		t.Error("KnownDAs is nil")
	}
	if c.MessagesSent == nil {
		t.Error("MessagesSent is nil")
	}
	if c.MessagesReceived == nil {
		t.Error("MessagesReceived is nil")
	}
	if c.MessagesDropped == nil {
		t.Error("MessagesDropped is nil")
	}
	if c.DispatchRetransmits == nil {
		t.Error("DispatchRetransmits is nil")
	}
	if c.AuthFailures == nil {
		t.Error("AuthFailures is nil")
	}

	if _, err := reg.Gather(); err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
}

func TestSetRegistrations(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := slpmetrics.NewCollector(reg)

	c.SetRegistrations("default", "remote", 3)
	val := gaugeValue(t, c.Registrations, "default", "remote")
	if val != 3 {
		t.Errorf("Registrations(default,remote) = %v, want 3", val)
	}

	c.SetRegistrations("default", "static", 1)
	val = gaugeValue(t, c.Registrations, "default", "static")
	if val != 1 {
		t.Errorf("Registrations(default,static) = %v, want 1", val)
	}

	// Updating one label set must not perturb the other.
	val = gaugeValue(t, c.Registrations, "default", "remote")
	if val != 3 {
		t.Errorf("Registrations(default,remote) after unrelated update = %v, want 3", val)
	}
}

func TestSetKnownDAs(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := slpmetrics.NewCollector(reg)

	c.SetKnownDAs("default", 2)
	val := gaugeValue(t, c.KnownDAs, "default")
	if val != 2 {
		t.Errorf("KnownDAs(default) = %v, want 2", val)
	}
}

func TestMessageCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := slpmetrics.NewCollector(reg)

	c.IncMessagesSent("SrvReg")
	c.IncMessagesSent("SrvReg")
	c.IncMessagesSent("SrvReg")

	val := counterValue(t, c.MessagesSent, "SrvReg")
	if val != 3 {
		t.Errorf("MessagesSent(SrvReg) = %v, want 3", val)
	}

	c.IncMessagesReceived("SrvRqst")
	c.IncMessagesReceived("SrvRqst")

	val = counterValue(t, c.MessagesReceived, "SrvRqst")
	if val != 2 {
		t.Errorf("MessagesReceived(SrvRqst) = %v, want 2", val)
	}

	c.IncMessagesDropped("SrvDeReg")

	val = counterValue(t, c.MessagesDropped, "SrvDeReg")
	if val != 1 {
		t.Errorf("MessagesDropped(SrvDeReg) = %v, want 1", val)
	}
}

func TestDispatchRetransmits(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := slpmetrics.NewCollector(reg)

	c.IncDispatchRetransmits()
	c.IncDispatchRetransmits()

	m := &dto.Metric{}
	if err := c.DispatchRetransmits.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	if got := m.GetCounter().GetValue(); got != 2 {
		t.Errorf("DispatchRetransmits = %v, want 2", got)
	}
}

func TestAuthFailures(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := slpmetrics.NewCollector(reg)

	c.IncAuthFailures("10.0.0.1")
	c.IncAuthFailures("10.0.0.1")

	val := counterValue(t, c.AuthFailures, "10.0.0.1")
	if val != 2 {
		t.Errorf("AuthFailures = %v, want 2", val)
	}
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

func gaugeValue(t *testing.T, vec *prometheus.GaugeVec, labels ...string) float64 {
	t.Helper()

	gauge, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}

	m := &dto.Metric{}
	if err := gauge.Write(m); err != nil {
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
