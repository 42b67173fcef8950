// Package metrics exports counters of the daemon in the Prometheus text
// format. For a daemon that has no network surface, metrics are written into
// a file that the node exporter's textfile collector picks up.
package metrics

import (
	"git.unix.lgbt/diamondburned/showip/showip"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var runStates = []string{
	showip.Initializing.String(),
	showip.Running.String(),
	showip.StoppingRequested.String(),
	showip.Stopped.String(),
}

// Metrics holds the collectors of one daemon run in its own registry.
type Metrics struct {
	path     string
	registry *prometheus.Registry

	cycles       prometheus.Counter
	reloads      *prometheus.CounterVec
	renderErrors prometheus.Counter
	probeErrors  prometheus.Counter
	interval     prometheus.Gauge
	state        *prometheus.GaugeVec
	addresses    prometheus.Gauge
}

var _ showip.Metrics = (*Metrics)(nil)

// New creates the collectors. Flush writes them into the file at path; an
// empty path disables writing.
func New(path string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		path:     path,
		registry: reg,

		cycles: factory.NewCounter(prometheus.CounterOpts{
			Name: "showip_cycles_total",
			Help: "Total completed work loop cycles",
		}),
		reloads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "showip_reloads_total",
			Help: "Total configuration reloads by result",
		}, []string{"result"}),
		renderErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "showip_render_errors_total",
			Help: "Total renders rejected by the display",
		}),
		probeErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "showip_probe_errors_total",
			Help: "Total snapshots that could not be taken",
		}),
		interval: factory.NewGauge(prometheus.GaugeOpts{
			Name: "showip_loop_interval_seconds",
			Help: "Loop interval in effect",
		}),
		state: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "showip_run_state",
			Help: "1 for the current run state of the daemon, 0 for the others",
		}, []string{"state"}),
		addresses: factory.NewGauge(prometheus.GaugeOpts{
			Name: "showip_addresses",
			Help: "Number of addresses in the last snapshot",
		}),
	}

	// Both results exist from the start so that rates work from the first
	// scrape.
	m.reloads.WithLabelValues("success")
	m.reloads.WithLabelValues("failure")

	m.StateChanged(showip.Initializing.String())

	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) CycleCompleted(addresses int) {
	m.cycles.Inc()
	m.addresses.Set(float64(addresses))
}

func (m *Metrics) ProbeFailed()  { m.probeErrors.Inc() }
func (m *Metrics) RenderFailed() { m.renderErrors.Inc() }

func (m *Metrics) Reloaded(ok bool) {
	if ok {
		m.reloads.WithLabelValues("success").Inc()
	} else {
		m.reloads.WithLabelValues("failure").Inc()
	}
}

func (m *Metrics) StateChanged(state string) {
	for _, s := range runStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.state.WithLabelValues(s).Set(v)
	}
}

func (m *Metrics) IntervalChanged(seconds float64) { m.interval.Set(seconds) }

// Flush writes all metrics into the textfile. The file is replaced
// atomically, so the collector never reads a partial file.
func (m *Metrics) Flush() error {
	if m.path == "" {
		return nil
	}

	if err := prometheus.WriteToTextfile(m.path, m.registry); err != nil {
		return errors.Wrap(err, "failed to write metrics textfile")
	}

	return nil
}
