package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/seantiz/taskengine/internal/model"
)

var (
	tasksSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "taskengine_tasks_submitted_total",
			Help: "Total number of tasks accepted onto the pending queue.",
		},
	)

	tasksFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskengine_tasks_finished_total",
			Help: "Total number of tasks that reached a terminal status.",
		},
		[]string{"status"},
	)

	tasksInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskengine_tasks_in_flight",
			Help: "Number of tasks currently processing.",
		},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskengine_queue_depth",
			Help: "Number of task identities waiting on the pending queue.",
		},
	)

	taskDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "taskengine_task_duration_seconds",
			Help:    "Time spent executing a task, in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(tasksSubmitted)
	prometheus.MustRegister(tasksFinished)
	prometheus.MustRegister(tasksInFlight)
	prometheus.MustRegister(queueDepth)
	prometheus.MustRegister(taskDuration)

	// Pre-initialize label combinations so they appear in /metrics with value 0
	// from startup.
	tasksFinished.WithLabelValues(string(model.KindCompleted))
	tasksFinished.WithLabelValues(string(model.KindFailed))
}
