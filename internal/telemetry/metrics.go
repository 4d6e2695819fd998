package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	TasksCreated      = prometheus.NewCounter(prometheus.CounterOpts{Name: "remuxd_tasks_created_total", Help: "Tasks added to the queue"})
	TasksDispatched   = prometheus.NewCounter(prometheus.CounterOpts{Name: "remuxd_tasks_dispatched_total", Help: "Tasks handed to the worker"})
	DispatchBusy      = prometheus.NewCounter(prometheus.CounterOpts{Name: "remuxd_dispatch_busy_total", Help: "Dispatch attempts refused by a busy worker"})
	DispatchFailures  = prometheus.NewCounter(prometheus.CounterOpts{Name: "remuxd_dispatch_failures_total", Help: "Dispatch attempts that failed"})
	TasksCompleted    = prometheus.NewCounter(prometheus.CounterOpts{Name: "remuxd_tasks_completed_total", Help: "Tasks completed successfully"})
	TasksFailed       = prometheus.NewCounter(prometheus.CounterOpts{Name: "remuxd_tasks_failed_total", Help: "Task attempts that failed"})
	TasksRequeued     = prometheus.NewCounter(prometheus.CounterOpts{Name: "remuxd_tasks_requeued_total", Help: "Stale tasks returned to pending"})
	ProgressDropped   = prometheus.NewCounter(prometheus.CounterOpts{Name: "remuxd_progress_dropped_total", Help: "Progress reports ignored for non-processing tasks"})
	QueueDepthGauge   = prometheus.NewGauge(prometheus.GaugeOpts{Name: "remuxd_queue_depth", Help: "Pending tasks awaiting dispatch"})
	InFlightGauge     = prometheus.NewGauge(prometheus.GaugeOpts{Name: "remuxd_tasks_inflight", Help: "Tasks currently sent or processing"})
	RecordsCleaned    = prometheus.NewCounter(prometheus.CounterOpts{Name: "remuxd_records_cleaned_total", Help: "Terminal tasks removed by retention cleanup"})
	NotificationsSent = prometheus.NewCounter(prometheus.CounterOpts{Name: "remuxd_notifications_sent_total", Help: "Push notifications delivered"})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			TasksCreated,
			TasksDispatched,
			DispatchBusy,
			DispatchFailures,
			TasksCompleted,
			TasksFailed,
			TasksRequeued,
			ProgressDropped,
			QueueDepthGauge,
			InFlightGauge,
			RecordsCleaned,
			NotificationsSent,
		)
	})
	return promhttp.Handler()
}
