package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce              sync.Once
	apiRequestsTotal          *prometheus.CounterVec
	apiLatencySeconds         *prometheus.HistogramVec
	apiErrorsTotal            *prometheus.CounterVec
	submissionsEvaluatedTotal *prometheus.CounterVec
	testCasesTotal            *prometheus.CounterVec
	evaluationSeconds         *prometheus.HistogramVec
	evaluationQueueDepth      prometheus.Gauge
	statusSubscribersActive   prometheus.Gauge
)

// RegisterMetrics initialises the Prometheus collectors used by the API and the judge.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		submissionsEvaluatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "judge_submissions_evaluated_total",
			Help: "Submissions that reached a terminal status.",
		}, []string{"language", "status"})

		testCasesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "judge_test_cases_total",
			Help: "Test case verdicts produced by the judge.",
		}, []string{"language", "outcome"})

		evaluationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "judge_evaluation_seconds",
			Help:    "Wall time spent evaluating a submission end to end.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"language"})

		evaluationQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "judge_evaluation_queue_depth",
			Help: "Submissions waiting for an evaluation worker.",
		})

		statusSubscribersActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "judge_status_subscribers_active",
			Help: "Open submission status subscriptions.",
		})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			submissionsEvaluatedTotal,
			testCasesTotal,
			evaluationSeconds,
			evaluationQueueDepth,
			statusSubscribersActive,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// SubmissionsEvaluated counts terminal submissions by language and status.
func SubmissionsEvaluated() *prometheus.CounterVec {
	RegisterMetrics()
	return submissionsEvaluatedTotal
}

// TestCases counts passed and failed test cases.
func TestCases() *prometheus.CounterVec {
	RegisterMetrics()
	return testCasesTotal
}

// EvaluationDuration tracks end-to-end evaluation time.
func EvaluationDuration() *prometheus.HistogramVec {
	RegisterMetrics()
	return evaluationSeconds
}

// EvaluationQueueDepth tracks queued evaluations.
func EvaluationQueueDepth() prometheus.Gauge {
	RegisterMetrics()
	return evaluationQueueDepth
}

// StatusSubscribersActive tracks open status subscriptions.
func StatusSubscribersActive() prometheus.Gauge {
	RegisterMetrics()
	return statusSubscribersActive
}
