package session

import (
	"net/http"
	"time"

	"github.com/crystal-mush/gotinytf/pkg/tf"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus metric descriptors for a client session.
type Metrics struct {
	registry  *prometheus.Registry
	startTime time.Time

	linesTotal       *prometheus.CounterVec
	linesGagged      prometheus.Counter
	linesSubstituted prometheus.Counter
	inputTotal       *prometheus.CounterVec
	outputTotal      *prometheus.CounterVec
	hookFires        *prometheus.CounterVec
	tableSize        *prometheus.GaugeVec
	uptimeSeconds    prometheus.Gauge
}

// NewMetrics creates session metrics registered on a fresh registry.
func NewMetrics(startTime time.Time) *Metrics {
	m := &Metrics{
		registry:  prometheus.NewRegistry(),
		startTime: startTime,
		linesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gotinytf_lines_total",
			Help: "Server lines processed by world.",
		}, []string{"world"}),
		linesGagged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gotinytf_lines_gagged_total",
			Help: "Server lines suppressed by a gag trigger.",
		}),
		linesSubstituted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gotinytf_lines_substituted_total",
			Help: "Server lines replaced by #substitute.",
		}),
		inputTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gotinytf_input_total",
			Help: "User input lines by kind.",
		}, []string{"kind"}),
		outputTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gotinytf_output_total",
			Help: "Results produced by the engine by kind.",
		}, []string{"kind"}),
		hookFires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gotinytf_hook_fires_total",
			Help: "Lifecycle hooks fired.",
		}, []string{"hook"}),
		tableSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gotinytf_engine_entries",
			Help: "Engine table sizes by kind.",
		}, []string{"kind"}),
		uptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gotinytf_uptime_seconds",
			Help: "Session uptime in seconds.",
		}),
	}

	m.registry.MustRegister(
		m.linesTotal,
		m.linesGagged,
		m.linesSubstituted,
		m.inputTotal,
		m.outputTotal,
		m.hookFires,
		m.tableSize,
		m.uptimeSeconds,
	)
	return m
}

// Registry returns the registry the session metrics live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// observe counts the parts of one engine result.
func (m *Metrics) observe(tr tf.TriggerResult) {
	m.outputTotal.WithLabelValues("send").Add(float64(len(tr.SendCommands)))
	m.outputTotal.WithLabelValues("client").Add(float64(len(tr.ClayCommands)))
	m.outputTotal.WithLabelValues("message").Add(float64(len(tr.Messages)))
	m.outputTotal.WithLabelValues("error").Add(float64(len(tr.Errors)))
}

// Update refreshes gauge metrics from engine counts.
func (m *Metrics) Update(st tf.Stats) {
	m.tableSize.WithLabelValues("macros").Set(float64(st.Macros))
	m.tableSize.WithLabelValues("triggers").Set(float64(st.Triggers))
	m.tableSize.WithLabelValues("variables").Set(float64(st.Variables))
	m.tableSize.WithLabelValues("hooks").Set(float64(st.Hooks))
	m.tableSize.WithLabelValues("keys").Set(float64(st.KeyBindings))
	m.uptimeSeconds.Set(time.Since(m.startTime).Seconds())
}

// handler serves the registry, calling refresh first.
func (m *Metrics) handler(refresh func()) http.Handler {
	inner := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refresh()
		inner.ServeHTTP(w, r)
	})
}
