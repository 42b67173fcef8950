package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"git.unix.lgbt/diamondburned/showip/showip"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCounters(t *testing.T) {
	m := New("")

	m.CycleCompleted(2)
	m.CycleCompleted(1)
	m.ProbeFailed()
	m.RenderFailed()
	m.RenderFailed()
	m.Reloaded(true)
	m.Reloaded(false)
	m.Reloaded(false)
	m.IntervalChanged(5)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.cycles))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.addresses))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.probeErrors))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.renderErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reloads.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.reloads.WithLabelValues("failure")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.interval))
}

func TestMetricsRunState(t *testing.T) {
	m := New("")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.state.WithLabelValues("initializing")))

	m.StateChanged(showip.Running.String())

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	var state *dto.MetricFamily
	for _, family := range families {
		if family.GetName() == "showip_run_state" {
			state = family
		}
	}
	require.NotNil(t, state, "run state not exported")
	require.Len(t, state.GetMetric(), len(runStates))

	for _, metric := range state.GetMetric() {
		label := metric.GetLabel()[0].GetValue()

		expect := 0.0
		if label == "running" {
			expect = 1
		}
		assert.Equal(t, expect, metric.GetGauge().GetValue(), "state %q", label)
	}
}

func TestMetricsFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "showip.prom")

	m := New(path)
	m.CycleCompleted(2)
	m.IntervalChanged(1)

	require.NoError(t, m.Flush())

	b, err := os.ReadFile(path)
	require.NoError(t, err)

	text := string(b)
	assert.Contains(t, text, "showip_cycles_total 1\n")
	assert.Contains(t, text, "showip_addresses 2\n")
	assert.Contains(t, text, "showip_loop_interval_seconds 1\n")
	assert.Contains(t, text, `showip_reloads_total{result="failure"} 0`)
}

func TestMetricsFlushDisabled(t *testing.T) {
	assert.NoError(t, New("").Flush())
}

func TestMetricsFlushError(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), "missing", "showip.prom"))
	assert.Error(t, m.Flush())
}
