package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	return prometheus.NewRegistry()
}

func TestRecordAndSnapshot(t *testing.T) {
	m := New(nil)

	m.RecordDedupOutcome("fuzzy_match")
	m.RecordDedupOutcome("fuzzy_match")
	m.RecordDedupOutcome("new")
	m.RecordReconcileOp("post", "committed")
	m.RecordReconcileOp("post", "rolled_back")
	m.RecordSandboxRun("completed")
	m.RecordSandboxSuspension()
	m.RecordSandboxSuspension()
	m.RecordCDPReconnect()
	m.RecordCDPEventDropped()
	m.SetCDPSessionsOpen(3)

	snap := m.Snapshot()
	require.Equal(t, float64(2), snap.DedupOutcomes["fuzzy_match"])
	require.Equal(t, float64(1), snap.DedupOutcomes["new"])
	require.Equal(t, float64(1), snap.ReconcileOutcome["post/committed"])
	require.Equal(t, float64(1), snap.ReconcileOutcome["post/rolled_back"])
	require.Equal(t, float64(1), snap.SandboxRuns["completed"])
	require.Equal(t, float64(2), snap.SandboxSuspensions)
	require.Equal(t, float64(1), snap.CDPReconnects)
	require.Equal(t, float64(1), snap.CDPEventsDropped)
	require.Equal(t, float64(3), snap.CDPSessionsOpen)
}

func TestNewRegistersWithProvidedRegisterer(t *testing.T) {
	reg := newTestRegistry(t)
	m := New(reg)
	require.NotNil(t, m)
}
