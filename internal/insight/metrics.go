package insight

import "github.com/prometheus/client_golang/prometheus"

// Metrics instruments the dispatcher. A nil *Metrics is a no-op.
type Metrics struct {
	attempts *prometheus.CounterVec
	results  *prometheus.CounterVec
	inflight prometheus.Gauge
}

// NewMetrics creates the dispatcher collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "riskmetrics",
			Name:      "llm_attempts_total",
			Help:      "Model invocation attempts by outcome.",
		}, []string{"outcome"}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "riskmetrics",
			Name:      "llm_results_total",
			Help:      "Settled insight requests by status.",
		}, []string{"status"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "riskmetrics",
			Name:      "llm_inflight",
			Help:      "Model calls currently holding a concurrency slot.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.attempts, m.results, m.inflight)
	}
	return m
}

func (m *Metrics) attempt(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.attempts.WithLabelValues("success").Inc()
	} else {
		m.attempts.WithLabelValues("failure").Inc()
	}
}

func (m *Metrics) settled(failed bool) {
	if m == nil {
		return
	}
	if failed {
		m.results.WithLabelValues("failed").Inc()
	} else {
		m.results.WithLabelValues("succeeded").Inc()
	}
}

func (m *Metrics) begin() {
	if m != nil {
		m.inflight.Inc()
	}
}

func (m *Metrics) end() {
	if m != nil {
		m.inflight.Dec()
	}
}
