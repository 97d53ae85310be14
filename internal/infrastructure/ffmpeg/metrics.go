package ffmpeg

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	workersSpawned = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "radiocast_workers_spawned_total",
		Help: "Worker processes started, by role",
	}, []string{"role"})

	spawnFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "radiocast_worker_spawn_failures_total",
		Help: "Worker processes that could not be started, by role",
	}, []string{"role"})

	workerExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "radiocast_worker_exits_total",
		Help: "Worker teardowns, by role and reason (cancelled, timed_out, exited)",
	}, []string{"role", "reason"})

	restartsScheduled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "radiocast_restarts_scheduled_total",
		Help: "Automatic restarts queued after an unexpected exit, by role",
	}, []string{"role"})

	killFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "radiocast_worker_kill_failures_total",
		Help: "Workers still running after the kill wait",
	})

	cleanupRemovals = promauto.NewCounter(prometheus.CounterOpts{
		Name: "radiocast_cleanup_removed_files_total",
		Help: "Transient segment and playlist files deleted",
	})

	activeJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "radiocast_active_jobs",
		Help: "Source URLs currently tracked by the registry",
	})
)
