// Package metrics keeps in-process Prometheus collectors for the engine's
// internal operations. Nothing here is exposed over HTTP: the engine is a
// single-user desktop process, not a server, so there is no "/metrics"
// endpoint to scrape. Snapshot gathers the registry into a plain struct a
// CLI or report command can print, which is the only consumer.
package metrics

import (
	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector the engine registers.
type Metrics struct {
	DedupOutcomesTotal *prometheus.CounterVec

	ReconcileOpsTotal *prometheus.CounterVec

	SandboxSuspensionsTotal prometheus.Counter
	SandboxRunsTotal        *prometheus.CounterVec

	CDPReconnectsTotal prometheus.Counter
	CDPEventsDropped   prometheus.Counter
	CDPSessionsOpen    prometheus.Gauge
}

// New creates a Metrics instance registered against registerer. Pass nil
// to skip registration entirely (used by tests that construct Metrics
// repeatedly in the same process, where a shared DefaultRegisterer would
// panic on duplicate registration).
func New(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		DedupOutcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "refreshmint_dedup_outcomes_total",
				Help: "Total dedup classification outcomes by kind.",
			},
			[]string{"kind"},
		),
		ReconcileOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "refreshmint_reconcile_operations_total",
				Help: "Total reconciliation operations by kind and outcome.",
			},
			[]string{"operation", "outcome"},
		),
		SandboxSuspensionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "refreshmint_sandbox_suspensions_total",
				Help: "Total number of times a driver execution suspended on a wait.",
			},
		),
		SandboxRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "refreshmint_sandbox_runs_total",
				Help: "Total driver executions by terminal outcome.",
			},
			[]string{"outcome"},
		),
		CDPReconnectsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "refreshmint_cdp_reconnects_total",
				Help: "Total CDP websocket reconnect attempts.",
			},
		),
		CDPEventsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "refreshmint_cdp_events_dropped_total",
				Help: "Total CDP events dropped due to an unrecognized or malformed frame or a full event buffer.",
			},
		),
		CDPSessionsOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "refreshmint_cdp_sessions_open",
				Help: "Current number of open CDP sessions.",
			},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.DedupOutcomesTotal,
			m.ReconcileOpsTotal,
			m.SandboxSuspensionsTotal,
			m.SandboxRunsTotal,
			m.CDPReconnectsTotal,
			m.CDPEventsDropped,
			m.CDPSessionsOpen,
		)
	}

	return m
}

// RecordDedupOutcome increments the dedup outcome counter for kind (one
// of "same_evidence", "bank_id_match", "fuzzy_match",
// "pending_to_finalized", "ambiguous", "new").
func (m *Metrics) RecordDedupOutcome(kind string) {
	m.DedupOutcomesTotal.WithLabelValues(kind).Inc()
}

// RecordReconcileOp increments the reconcile operation counter for
// operation (one of "post", "unpost", "transfer", "sync", "merge",
// "recategorize") and
// outcome ("committed" or "rolled_back").
func (m *Metrics) RecordReconcileOp(operation, outcome string) {
	m.ReconcileOpsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordSandboxRun increments the sandbox run counter for outcome (one of
// "fulfilled", "rejected", "completed_with_warnings").
func (m *Metrics) RecordSandboxRun(outcome string) {
	m.SandboxRunsTotal.WithLabelValues(outcome).Inc()
}

// RecordSandboxSuspension increments the sandbox suspension counter.
func (m *Metrics) RecordSandboxSuspension() {
	m.SandboxSuspensionsTotal.Inc()
}

// RecordCDPReconnect increments the CDP reconnect counter.
func (m *Metrics) RecordCDPReconnect() {
	m.CDPReconnectsTotal.Inc()
}

// RecordCDPEventDropped increments the CDP dropped-event counter.
func (m *Metrics) RecordCDPEventDropped() {
	m.CDPEventsDropped.Inc()
}

// SetCDPSessionsOpen sets the current open-CDP-session gauge.
func (m *Metrics) SetCDPSessionsOpen(n int) {
	m.CDPSessionsOpen.Set(float64(n))
}

// Snapshot is a point-in-time, human-printable view of the counters a CLI
// report command can render without reaching into the Prometheus registry
// itself.
type Snapshot struct {
	DedupOutcomes      map[string]float64
	ReconcileOutcome   map[string]float64
	SandboxRuns        map[string]float64
	SandboxSuspensions float64
	CDPReconnects      float64
	CDPEventsDropped   float64
	CDPSessionsOpen    float64
}

// Snapshot gathers the current collector values into a Snapshot.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		DedupOutcomes:      gatherVec(m.DedupOutcomesTotal, "kind"),
		ReconcileOutcome:   gatherVec(m.ReconcileOpsTotal, "operation", "outcome"),
		SandboxRuns:        gatherVec(m.SandboxRunsTotal, "outcome"),
		SandboxSuspensions: counterValue(m.SandboxSuspensionsTotal),
		CDPReconnects:      counterValue(m.CDPReconnectsTotal),
		CDPEventsDropped:   counterValue(m.CDPEventsDropped),
		CDPSessionsOpen:    gaugeValue(m.CDPSessionsOpen),
	}
}

// gatherVec flattens a CounterVec into a map keyed by its label values
// joined with "/", e.g. {"kind"} -> {"fuzzy_match": 3}, or
// {"operation","outcome"} -> {"post/committed": 2}.
func gatherVec(vec *prometheus.CounterVec, labelNames ...string) map[string]float64 {
	out := make(map[string]float64)
	metricCh := make(chan prometheus.Metric, 64)
	go func() {
		vec.Collect(metricCh)
		close(metricCh)
	}()
	for m := range metricCh {
		var pb dto.Metric
		if err := m.Write(&pb); err != nil {
			continue
		}
		out[labelKey(pb.GetLabel())] += pb.GetCounter().GetValue()
	}
	return out
}

func labelKey(labels []*dto.LabelPair) string {
	key := ""
	for i, l := range labels {
		if i > 0 {
			key += "/"
		}
		key += l.GetValue()
	}
	return key
}

func counterValue(c prometheus.Counter) float64 {
	var pb dto.Metric
	if err := c.Write(&pb); err != nil {
		return 0
	}
	return pb.GetCounter().GetValue()
}

func gaugeValue(g prometheus.Gauge) float64 {
	var pb dto.Metric
	if err := g.Write(&pb); err != nil {
		return 0
	}
	return pb.GetGauge().GetValue()
}
