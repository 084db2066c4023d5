// Package metrics exposes Prometheus counters for pipeline runs and the trigger API.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"techdigest/internal/pipeline"
)

// Collector holds all Prometheus metrics for the application.
// Each collector owns its registry, so tests may create as many as they like.
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Stage metrics
	StageRuns     *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec

	// Business metrics
	ArticlesIngested prometheus.Counter
	SourcesFailed    prometheus.Counter
	ArticlesScored   prometheus.Counter
	OracleErrors     prometheus.Counter
	Newsletters      *prometheus.CounterVec
}

// NewCollector creates a collector with the given namespace
func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		StageRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_runs_total",
			Help:      "Pipeline stage runs by outcome",
		}, []string{"stage", "status"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"stage"}),
		ArticlesIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_ingested_total",
			Help:      "Articles inserted by the gather stage",
		}),
		SourcesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sources_failed_total",
			Help:      "Sources that could not be fetched or parsed",
		}),
		ArticlesScored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_scored_total",
			Help:      "Articles annotated by the process stage",
		}),
		OracleErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_errors_total",
			Help:      "Failed score or summary calls",
		}),
		Newsletters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "newsletters_total",
			Help:      "Per-user delivery outcomes",
		}, []string{"outcome"}),
	}

	c.registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.StageRuns,
		c.StageDuration,
		c.ArticlesIngested,
		c.SourcesFailed,
		c.ArticlesScored,
		c.OracleErrors,
		c.Newsletters,
	)

	return c
}

// Handler serves the collector's registry in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Registry returns the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveHTTP records one handled request
func (c *Collector) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (c *Collector) observeStage(stage string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.StageRuns.WithLabelValues(stage, status).Inc()
	c.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// Stages is the set of pipeline stages that can be instrumented
type Stages interface {
	Gather(ctx context.Context) (pipeline.IngestResult, error)
	Process(ctx context.Context) (pipeline.RelevanceResult, error)
	Send(ctx context.Context) (pipeline.DeliveryResult, error)
}

// InstrumentedStages records run counts, durations and result totals for each stage call
type InstrumentedStages struct {
	next Stages
	c    *Collector
}

// Instrument wraps next so every stage run is recorded on c
func (c *Collector) Instrument(next Stages) *InstrumentedStages {
	return &InstrumentedStages{next: next, c: c}
}

func (s *InstrumentedStages) Gather(ctx context.Context) (pipeline.IngestResult, error) {
	start := time.Now()
	result, err := s.next.Gather(ctx)
	s.c.observeStage("gather", start, err)
	s.c.ArticlesIngested.Add(float64(result.ArticlesInserted))
	s.c.SourcesFailed.Add(float64(result.SourcesFailed))
	return result, err
}

func (s *InstrumentedStages) Process(ctx context.Context) (pipeline.RelevanceResult, error) {
	start := time.Now()
	result, err := s.next.Process(ctx)
	s.c.observeStage("process", start, err)
	s.c.ArticlesScored.Add(float64(result.Processed))
	s.c.OracleErrors.Add(float64(result.OracleErrors))
	return result, err
}

func (s *InstrumentedStages) Send(ctx context.Context) (pipeline.DeliveryResult, error) {
	start := time.Now()
	result, err := s.next.Send(ctx)
	s.c.observeStage("send", start, err)

	outcomes := map[pipeline.Outcome]int{
		pipeline.OutcomeSent:        result.Delivered,
		pipeline.OutcomeAlreadySent: result.AlreadySent,
		pipeline.OutcomeNotDue:      result.NotDue,
		pipeline.OutcomeEmpty:       result.Empty,
		pipeline.OutcomeFailed:      result.Failed,
	}
	for outcome, n := range outcomes {
		if n > 0 {
			s.c.Newsletters.WithLabelValues(string(outcome)).Add(float64(n))
		}
	}
	return result, err
}
