package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"
)

const (
	ErrorTypeDeadlineExceeded = "deadline_exceeded"
	ErrorTypeNotFound         = "not_found"
	ErrorTypeStore            = "store"
	ErrorTypeUnknown          = "unknown"
)

// JobMetrics captures sweep and reconciliation health signals.
type JobMetrics struct {
	jobRuns             *prometheus.CounterVec
	jobDuration         *prometheus.HistogramVec
	jobErrors           *prometheus.CounterVec
	jobTimeouts         *prometheus.CounterVec
	reconcileRuns       *prometheus.CounterVec
	webhooksDeactivated prometheus.Counter
	entitlementsSwept   prometheus.Counter
}

var (
	jobMetricsOnce sync.Once
	jobMetrics     *JobMetrics
)

// Jobs returns the singleton job metrics registry.
func Jobs() *JobMetrics {
	jobMetricsOnce.Do(func() {
		jobMetrics = newJobMetrics(prometheus.DefaultRegisterer)
	})
	return jobMetrics
}

// ResetForTest swaps the singleton onto a fresh registry.
func ResetForTest(reg prometheus.Registerer) {
	jobMetricsOnce = sync.Once{}
	jobMetricsOnce.Do(func() {
		jobMetrics = newJobMetrics(reg)
	})
}

func newJobMetrics(reg prometheus.Registerer) *JobMetrics {
	factory := promauto.With(reg)
	return &JobMetrics{
		jobRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tacows_job_runs_total",
			Help: "Number of background job runs.",
		}, []string{"job"}),
		jobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tacows_job_duration_seconds",
			Help:    "Background job duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
		jobErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tacows_job_errors_total",
			Help: "Background job errors by type.",
		}, []string{"job", "error_type"}),
		jobTimeouts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tacows_job_timeouts_total",
			Help: "Background job runs cut off by their deadline.",
		}, []string{"job"}),
		reconcileRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tacows_reconcile_runs_total",
			Help: "Guild benefit reconciliations by outcome.",
		}, []string{"outcome"}),
		webhooksDeactivated: factory.NewCounter(prometheus.CounterOpts{
			Name: "tacows_webhooks_deactivated_total",
			Help: "Webhooks deactivated by quota enforcement.",
		}),
		entitlementsSwept: factory.NewCounter(prometheus.CounterOpts{
			Name: "tacows_entitlements_swept_total",
			Help: "Expired entitlements flipped inactive by the sweep job.",
		}),
	}
}

func (m *JobMetrics) IncJobRun(job string) {
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *JobMetrics) ObserveJobDuration(job string, d time.Duration) {
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *JobMetrics) IncJobError(job string, err error) {
	m.jobErrors.WithLabelValues(job, ClassifyErrorType(err)).Inc()
}

func (m *JobMetrics) IncJobTimeout(job string) {
	m.jobTimeouts.WithLabelValues(job).Inc()
}

func (m *JobMetrics) IncReconcile(outcome string) {
	m.reconcileRuns.WithLabelValues(outcome).Inc()
}

func (m *JobMetrics) AddWebhooksDeactivated(count int) {
	if count > 0 {
		m.webhooksDeactivated.Add(float64(count))
	}
}

func (m *JobMetrics) AddEntitlementsSwept(count int) {
	if count > 0 {
		m.entitlementsSwept.Add(float64(count))
	}
}

// ClassifyErrorType buckets an error for the job error counter.
func ClassifyErrorType(err error) string {
	switch {
	case err == nil:
		return ErrorTypeUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ErrorTypeDeadlineExceeded
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrorTypeNotFound
	case errors.Is(err, gorm.ErrInvalidTransaction), errors.Is(err, gorm.ErrInvalidDB):
		return ErrorTypeStore
	default:
		return ErrorTypeUnknown
	}
}
