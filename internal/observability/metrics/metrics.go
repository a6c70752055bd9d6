package metrics

import "github.com/prometheus/client_golang/prometheus"

// CRMMetrics exposes counters for the funnel, recall and analysis flows.
type CRMMetrics struct {
	transitionsTotal *prometheus.CounterVec
	recallSentTotal  prometheus.Counter
	recallOutcomes   *prometheus.CounterVec
	analysisTotal    *prometheus.CounterVec
}

func NewCRMMetrics(reg prometheus.Registerer) *CRMMetrics {
	m := &CRMMetrics{
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "catchall",
			Subsystem: "funnel",
			Name:      "transitions_total",
			Help:      "Total patient status transitions",
		}, []string{"from", "to"}),
		recallSentTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "catchall",
			Subsystem: "recall",
			Name:      "dispatches_sent_total",
			Help:      "Total recall messages sent",
		}),
		recallOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "catchall",
			Subsystem: "recall",
			Name:      "escalation_outcomes_total",
			Help:      "Recall escalation sweep outcomes (booked / call-needed)",
		}, []string{"outcome"}),
		analysisTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "catchall",
			Subsystem: "callanalysis",
			Name:      "analyses_total",
			Help:      "Total AI call analyses by terminal status",
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.transitionsTotal, m.recallSentTotal, m.recallOutcomes, m.analysisTotal)
	return m
}

func (m *CRMMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(from, to).Inc()
}

func (m *CRMMetrics) ObserveRecallSent() {
	if m == nil {
		return
	}
	m.recallSentTotal.Inc()
}

func (m *CRMMetrics) ObserveRecallOutcome(outcome string) {
	if m == nil {
		return
	}
	m.recallOutcomes.WithLabelValues(outcome).Inc()
}

func (m *CRMMetrics) ObserveAnalysis(status string) {
	if m == nil {
		return
	}
	m.analysisTotal.WithLabelValues(status).Inc()
}
