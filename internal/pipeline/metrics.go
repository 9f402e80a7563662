package pipeline

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the pipeline counters. A nil *Metrics records nothing.
type Metrics struct {
	questions  prometheus.Counter
	cacheHits  prometheus.Counter
	attempts   *prometheus.CounterVec
	rejections prometheus.Counter
	fallbacks  prometheus.Counter
	duration   prometheus.Histogram
}

// NewMetrics creates the pipeline metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		questions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sqlrag_questions_total",
			Help: "Questions answered by the pipeline.",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sqlrag_cache_hits_total",
			Help: "Questions answered with a query reused from history.",
		}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sqlrag_execution_attempts_total",
			Help: "Query execution attempts by result.",
		}, []string{"result"}),
		rejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sqlrag_rejections_total",
			Help: "Candidate queries rejected by the safety filter.",
		}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sqlrag_generation_fallbacks_total",
			Help: "Generation calls that fell back to the placeholder query.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sqlrag_pipeline_duration_seconds",
			Help:    "End-to-end time to answer one question.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
	}
	if reg != nil {
		reg.MustRegister(m.questions, m.cacheHits, m.attempts, m.rejections, m.fallbacks, m.duration)
	}
	return m
}

func (m *Metrics) question() {
	if m != nil {
		m.questions.Inc()
	}
}

func (m *Metrics) cacheHit() {
	if m != nil {
		m.cacheHits.Inc()
	}
}

func (m *Metrics) attempt(result string) {
	if m != nil {
		m.attempts.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) rejection() {
	if m != nil {
		m.rejections.Inc()
	}
}

func (m *Metrics) fallback() {
	if m != nil {
		m.fallbacks.Inc()
	}
}

func (m *Metrics) observe(seconds float64) {
	if m != nil {
		m.duration.Observe(seconds)
	}
}
