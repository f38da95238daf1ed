package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline collectors on a private registry. All methods
// are safe on a nil receiver.
type Metrics struct {
	Registry *prometheus.Registry

	trainTotal     prometheus.Counter
	eventsScored   prometheus.Counter
	reportsTotal   prometheus.Counter
	renderFailures *prometheus.CounterVec
	pagesCrawled   prometheus.Counter
}

// New registers the seasec collectors plus the Go runtime collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		trainTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "seasec_train_total",
			Help: "Completed model training runs.",
		}),
		eventsScored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "seasec_events_scored_total",
			Help: "Security events scored by the anomaly model.",
		}),
		reportsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "seasec_reports_total",
			Help: "Published report artifact sets.",
		}),
		renderFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seasec_render_failures_total",
			Help: "Optional report renderings that were skipped.",
		}, []string{"artifact"}),
		pagesCrawled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "seasec_pages_crawled_total",
			Help: "Pages observed by the crawler.",
		}),
	}
	reg.MustRegister(
		m.trainTotal,
		m.eventsScored,
		m.reportsTotal,
		m.renderFailures,
		m.pagesCrawled,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ModelTrained() {
	if m != nil {
		m.trainTotal.Inc()
	}
}

func (m *Metrics) EventsScored(n int) {
	if m != nil {
		m.eventsScored.Add(float64(n))
	}
}

func (m *Metrics) ReportPublished() {
	if m != nil {
		m.reportsTotal.Inc()
	}
}

func (m *Metrics) RenderFailed(artifact string) {
	if m != nil {
		m.renderFailures.WithLabelValues(artifact).Inc()
	}
}

func (m *Metrics) PagesCrawled(n int) {
	if m != nil {
		m.pagesCrawled.Add(float64(n))
	}
}
