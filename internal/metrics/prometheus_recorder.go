package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "pressroom"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once           sync.Once
	buildDuration  prom.Histogram
	buildOutcome   *prom.CounterVec
	decisions      *prom.CounterVec
	jobDuration    *prom.HistogramVec
	jobResults     *prom.CounterVec
	outputsWritten prom.Counter
	outputsDeleted prom.Counter
	workers        prom.Gauge
	cacheEntries   prom.Gauge
	cacheRecovered *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.buildDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Total build run duration",
			Buckets:   prom.DefBuckets,
		})
		pr.buildOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "build_outcomes_total",
			Help:      "Build runs by final status",
		}, []string{"outcome"})
		pr.decisions = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Change detector decisions by kind and outcome",
		}, []string{"kind", "outcome"})
		pr.jobDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Duration of individual render and transcode jobs",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"kind"})
		pr.jobResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "job_results_total",
			Help:      "Job results by kind and outcome",
		}, []string{"kind", "result"})
		pr.outputsWritten = prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "outputs_written_total",
			Help:      "Artifacts written to the output root",
		})
		pr.outputsDeleted = prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "outputs_deleted_total",
			Help:      "Artifacts removed by the garbage collector",
		})
		pr.workers = prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "workers",
			Help:      "Worker pool size of the last run",
		})
		pr.cacheEntries = prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_entries",
			Help:      "Entries in the build cache after the last commit",
		})
		pr.cacheRecovered = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "cache_recovered_total",
			Help:      "Build cache files discarded on load, by reason",
		}, []string{"reason"})
		reg.MustRegister(pr.buildDuration, pr.buildOutcome, pr.decisions, pr.jobDuration, pr.jobResults,
			pr.outputsWritten, pr.outputsDeleted, pr.workers, pr.cacheEntries, pr.cacheRecovered)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	if p == nil || p.buildDuration == nil {
		return
	}
	p.buildDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome BuildOutcomeLabel) {
	if p == nil || p.buildOutcome == nil {
		return
	}
	p.buildOutcome.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncDecision(kind, outcome string) {
	if p == nil || p.decisions == nil {
		return
	}
	p.decisions.WithLabelValues(kind, outcome).Inc()
}

func (p *PrometheusRecorder) ObserveJobDuration(kind string, d time.Duration) {
	if p == nil || p.jobDuration == nil {
		return
	}
	p.jobDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncJobResult(kind string, result ResultLabel) {
	if p == nil || p.jobResults == nil {
		return
	}
	p.jobResults.WithLabelValues(kind, string(result)).Inc()
}

func (p *PrometheusRecorder) AddOutputs(written, deleted int) {
	if p == nil || p.outputsWritten == nil {
		return
	}
	p.outputsWritten.Add(float64(written))
	p.outputsDeleted.Add(float64(deleted))
}

func (p *PrometheusRecorder) SetWorkers(n int) {
	if p == nil || p.workers == nil {
		return
	}
	p.workers.Set(float64(n))
}

func (p *PrometheusRecorder) SetCacheEntries(n int) {
	if p == nil || p.cacheEntries == nil {
		return
	}
	p.cacheEntries.Set(float64(n))
}

func (p *PrometheusRecorder) IncCacheRecovered(reason string) {
	if p == nil || p.cacheRecovered == nil {
		return
	}
	p.cacheRecovered.WithLabelValues(reason).Inc()
}
