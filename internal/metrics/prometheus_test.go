package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusCollectorRegistersAndRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	pc := NewPrometheusCollector("checkdeposit")
	require.NoError(t, pc.Register(reg))

	pc.RecordStage("ocr", true, 120*time.Millisecond)
	pc.RecordStage("ocr", false, 2*time.Second)
	pc.RecordQuality("front", false)
	pc.RecordVerdict(true, false, 0.1)
	pc.RecordSubmission("created")
	pc.RecordRetry("ocr")
	pc.RecordCircuitState("ocr", CircuitOpen)
	pc.RecordIntake("duplicate")
	pc.RecordTransition("SUBMITTED", "PROCESSING")

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["checkdeposit_stage_duration_seconds"])
	assert.True(t, names["checkdeposit_stage_failures_total"])
	assert.True(t, names["checkdeposit_circuit_state"])
	assert.True(t, names["checkdeposit_status_transitions_total"])

	// Registering twice must fail rather than silently double count.
	assert.Error(t, pc.Register(reg))
}

func TestCircuitStateString(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(9).String())
}

var _ Collector = NoOpCollector{}
var _ Collector = (*PrometheusCollector)(nil)
