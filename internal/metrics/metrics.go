// Package metrics records run, day and stage metrics in a Prometheus
// registry. The registry is private to a run and exported as a node-exporter
// textfile when the run ends.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/agbru/dayrun/internal/daterange"
	"github.com/agbru/dayrun/internal/orchestration"
	"github.com/agbru/dayrun/internal/pipeline"
)

const namespace = "dayrun"

// Recorder is an orchestration.Observer that updates Prometheus collectors.
type Recorder struct {
	orchestration.NullObserver

	registry      *prometheus.Registry
	stageDuration *prometheus.HistogramVec
	stageRuns     *prometheus.CounterVec
	days          *prometheus.CounterVec
	dayDuration   prometheus.Histogram
	plannedDays   prometheus.Gauge
	lastDayIndex  prometheus.Gauge
	lastSuccess   prometheus.Gauge
	runDuration   prometheus.Gauge
}

// NewRecorder creates a Recorder with its own registry, including the Go
// runtime and process collectors.
func NewRecorder(pipelineName string) *Recorder {
	labels := prometheus.Labels{"pipeline": pipelineName}
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "stage_duration_seconds",
			Help:        "Wall time of stage executions.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"stage", "status"}),
		stageRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "stage_runs_total",
			Help:        "Stage executions by outcome.",
			ConstLabels: labels,
		}, []string{"stage", "status"}),
		days: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "days_total",
			Help:        "Processed days by outcome.",
			ConstLabels: labels,
		}, []string{"status"}),
		dayDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "day_duration_seconds",
			Help:        "Wall time of a whole day, including the working directory reset.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.1, 4, 10),
		}),
		plannedDays: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "planned_days",
			Help:        "Number of days the run covers.",
			ConstLabels: labels,
		}),
		lastDayIndex: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "last_day_index",
			Help:        "Iteration index of the last day that finished.",
			ConstLabels: labels,
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "last_run_success",
			Help:        "1 if the run ended without error, 0 otherwise.",
			ConstLabels: labels,
		}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "run_duration_seconds",
			Help:        "Wall time of the run.",
			ConstLabels: labels,
		}),
	}
	r.lastDayIndex.Set(-1)
	r.registry.MustRegister(
		r.stageDuration, r.stageRuns, r.days, r.dayDuration,
		r.plannedDays, r.lastDayIndex, r.lastSuccess, r.runDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry exposes the underlying registry, for tests and custom exporters.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// DayStarted records the planned number of days.
func (r *Recorder) DayStarted(_ daterange.Day, total int) {
	r.plannedDays.Set(float64(total))
}

// StageFinished records one stage execution.
func (r *Recorder) StageFinished(res pipeline.Result) {
	status := res.Status.String()
	name := res.Invocation.Step.Stage.Name
	r.stageRuns.WithLabelValues(name, status).Inc()
	r.stageDuration.WithLabelValues(name, status).Observe(res.Duration.Seconds())
}

// DayFinished records one reached day.
func (r *Recorder) DayFinished(day orchestration.DayResult) {
	r.days.WithLabelValues(day.Status.String()).Inc()
	r.dayDuration.Observe(day.Duration.Seconds())
	r.lastDayIndex.Set(float64(day.Index))
}

// RunFinished records the outcome of the run.
func (r *Recorder) RunFinished(summary orchestration.RunSummary, err error) {
	r.plannedDays.Set(float64(summary.TotalDays))
	r.runDuration.Set(summary.Elapsed.Seconds())
	if err == nil {
		r.lastSuccess.Set(1)
	} else {
		r.lastSuccess.Set(0)
	}
}

// WriteTextfile atomically writes the registry in the text exposition format,
// for the node exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
