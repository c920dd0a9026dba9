package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "storm_runoff"

// Metrics holds the Prometheus counters, histograms, and gauges for the runoff service.
type Metrics struct {
	MessagesConsumed prometheus.Counter
	MessagesProduced prometheus.Counter
	TransformErrors  prometheus.Counter
	BatchRetries     *prometheus.CounterVec // labels: reason={load,provider}
	PipelineRunning  prometheus.Gauge

	// Batch processing metrics.
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	// Estimation metrics.
	Estimates          *prometheus.CounterVec // labels: source={adjusted,default,override,error}
	CurveNumber        prometheus.Histogram
	RunoffDepth        prometheus.Histogram
	InvalidCurveNumber prometheus.Counter

	// Precipitation provider metrics.
	PrecipitationRequests    *prometheus.CounterVec   // labels: kind={forecast,historical}, outcome={success,error,empty,incomplete}
	PrecipitationCache       *prometheus.CounterVec   // labels: kind={forecast,historical}, result={hit,miss,expired}
	PrecipitationAPIDuration *prometheus.HistogramVec // labels: kind={forecast,historical}
	PrecipitationEnabled     prometheus.Gauge
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.MessagesConsumed,
		m.MessagesProduced,
		m.TransformErrors,
		m.BatchRetries,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.Estimates,
		m.CurveNumber,
		m.RunoffDepth,
		m.InvalidCurveNumber,
		m.PrecipitationRequests,
		m.PrecipitationCache,
		m.PrecipitationAPIDuration,
		m.PrecipitationEnabled,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		MessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_consumed_total",
			Help:      "Total site requests read from the source topic.",
		}),
		MessagesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_produced_total",
			Help:      "Total estimates written to the sink topic.",
		}),
		TransformErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transform_errors_total",
			Help:      "Total site requests that could not be estimated.",
		}),
		BatchRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_retries_total",
			Help:      "Batches held back for retry after a failed load or provider outage.",
		}, []string{"reason"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of messages per batch extracted from Kafka.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete batch extract-transform-load cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		Estimates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "estimates_total",
			Help:      "Runoff estimates by curve number source, or error.",
		}, []string{"source"}),
		CurveNumber: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "curve_number",
			Help:      "Curve numbers used for estimates.",
			Buckets:   []float64{50, 55, 60, 65, 70, 75, 80, 85, 90, 95, 98, 100},
		}),
		RunoffDepth: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "runoff_depth_mm",
			Help:      "Estimated runoff depth in millimeters.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
		}),
		InvalidCurveNumber: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invalid_curve_number_total",
			Help:      "Estimates rejected for a curve number outside (0, 100].",
		}),
		PrecipitationRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "precipitation_requests_total",
			Help:      "Precipitation API requests by kind and outcome.",
		}, []string{"kind", "outcome"}),
		PrecipitationCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "precipitation_cache_total",
			Help:      "Precipitation cache lookups by kind and result.",
		}, []string{"kind", "result"}),
		PrecipitationAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "precipitation_api_duration_seconds",
			Help:      "Open-Meteo API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"kind"}),
		PrecipitationEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "precipitation_fetch_enabled",
			Help:      "1 when precipitation fetching is enabled, 0 otherwise.",
		}),
	}
}
