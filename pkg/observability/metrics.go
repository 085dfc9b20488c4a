package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/japaniel/wordcloud/pkg/orchestrator"
)

// Metrics records cycle outcomes. It implements orchestrator.Observer.
type Metrics struct {
	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	admitted      prometheus.Counter
	evictions     prometheus.Counter
	evictedTerms  prometheus.Counter
	renderErrors  prometheus.Counter
	tableTerms    prometheus.Gauge
	tableWeight   prometheus.Gauge
}

// NewMetrics registers the wordcloud metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		cycles: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "wordcloud_cycles_total",
			Help: "Total number of transcript cycles by outcome",
		}, []string{"outcome"}), // outcome: "committed" or "tokenize_error"

		cycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "wordcloud_cycle_duration_seconds",
			Help:    "Duration of a full cycle, tokenization included",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		}),

		admitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "wordcloud_admitted_terms_total",
			Help: "Total number of admitted term observations",
		}),

		evictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "wordcloud_evictions_total",
			Help: "Number of cycles that evicted terms",
		}),

		evictedTerms: factory.NewCounter(prometheus.CounterOpts{
			Name: "wordcloud_evicted_terms_total",
			Help: "Total number of evicted terms",
		}),

		renderErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "wordcloud_render_errors_total",
			Help: "Total number of failed renders",
		}),

		tableTerms: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wordcloud_table_terms",
			Help: "Number of terms in the committed table",
		}),

		tableWeight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "wordcloud_table_weight",
			Help: "Sum of counts in the committed table",
		}),
	}
}

// OnCycle implements orchestrator.Observer.
func (m *Metrics) OnCycle(ctx context.Context, report orchestrator.CycleReport) {
	m.cycleDuration.Observe(report.Duration.Seconds())
	if !report.Committed() {
		m.cycles.WithLabelValues("tokenize_error").Inc()
		return
	}
	m.cycles.WithLabelValues("committed").Inc()
	m.admitted.Add(float64(len(report.Admitted)))

	if len(report.Evicted) > 0 {
		m.evictions.Inc()
		m.evictedTerms.Add(float64(len(report.Evicted)))
	}
	if report.RenderErr != nil {
		m.renderErrors.Inc()
	}

	weight := 0
	for _, e := range report.Entries {
		weight += e.Count
	}
	m.tableTerms.Set(float64(len(report.Entries)))
	m.tableWeight.Set(float64(weight))
}
