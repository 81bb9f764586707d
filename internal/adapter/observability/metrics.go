package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_requests_total",
			Help: "Total number of quote provider requests by outcome",
		},
		[]string{"outcome"},
	)
	ProviderRequestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "provider_request_duration_seconds",
			Help:    "Quote provider request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)

	QuotesPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quotes_published_total",
			Help: "Total number of quotes published per exchange",
		},
		[]string{"exchange"},
	)
	QuotesAggregatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quotes_aggregated_total",
			Help: "Total number of quotes folded into aggregation windows",
		},
	)
	BatchesPublishedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "batches_published_total",
			Help: "Total number of closed windows published downstream",
		},
	)
	BatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "batch_size",
			Help:    "Distribution of tickers per published batch",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
		},
	)

	TicksIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticks_ingested_total",
			Help: "Total number of historical price rows written by outcome",
		},
		[]string{"outcome"},
	)

	JobsScheduledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jobs_scheduled_total",
			Help: "Total number of pricing jobs persisted by the scheduler",
		},
	)
	JobsDispatchedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jobs_dispatched_total",
			Help: "Total number of pricing jobs put onto the work queue",
		},
	)
	JobsPricedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_priced_total",
			Help: "Total number of pricing jobs handled by outcome",
		},
		[]string{"outcome"},
	)
	PricingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pricing_duration_seconds",
			Help:    "Pricing job handling duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)

	AgentReconnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_reconnects_total",
			Help: "Total number of broker reconnect attempts per agent",
		},
		[]string{"agent"},
	)
)

func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(ProviderRequestsTotal)
	prometheus.MustRegister(ProviderRequestDuration)
	prometheus.MustRegister(QuotesPublishedTotal)
	prometheus.MustRegister(QuotesAggregatedTotal)
	prometheus.MustRegister(BatchesPublishedTotal)
	prometheus.MustRegister(BatchSize)
	prometheus.MustRegister(TicksIngestedTotal)
	prometheus.MustRegister(JobsScheduledTotal)
	prometheus.MustRegister(JobsDispatchedTotal)
	prometheus.MustRegister(JobsPricedTotal)
	prometheus.MustRegister(PricingDuration)
	prometheus.MustRegister(AgentReconnectsTotal)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		method := r.Method
		status := ww.Status()
		HTTPRequestsTotal.WithLabelValues(route, method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, method).Observe(dur)
	})
}

func ProviderRequest(outcome string, dur time.Duration) {
	ProviderRequestsTotal.WithLabelValues(outcome).Inc()
	ProviderRequestDuration.Observe(dur.Seconds())
}

func QuotePublished(exchange string) {
	QuotesPublishedTotal.WithLabelValues(exchange).Inc()
}

func QuoteAggregated() {
	QuotesAggregatedTotal.Inc()
}

func BatchPublished(size int) {
	BatchesPublishedTotal.Inc()
	BatchSize.Observe(float64(size))
}

func TickIngested(outcome string) {
	TicksIngestedTotal.WithLabelValues(outcome).Inc()
}

func JobsScheduled(n int) {
	JobsScheduledTotal.Add(float64(n))
}

func JobDispatched() {
	JobsDispatchedTotal.Inc()
}

func JobPriced(outcome string, dur time.Duration) {
	JobsPricedTotal.WithLabelValues(outcome).Inc()
	PricingDuration.Observe(dur.Seconds())
}

func AgentReconnected(agent string) {
	AgentReconnectsTotal.WithLabelValues(agent).Inc()
}
