// Package metrics exposes the coordinator's scheduling state as
// Prometheus collectors: gauges for queue depths and counters for
// terminal job outcomes.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors groups every metric the scheduler updates as it runs.
// Register it once against a prometheus.Registerer and then call its
// Set/Inc methods from the event loop.
type Collectors struct {
	PendingJobs    prometheus.Gauge
	ProcessingJobs prometheus.Gauge
	LocalJobs      prometheus.Gauge
	PreprocessBusy prometheus.Gauge
	PreprocessWait prometheus.Gauge
	Peers          prometheus.Gauge

	// JobsCrashStreak is the per-source crash count (internal/project's
	// Project.crashCount) for the most recently crashed source, set each
	// time a crash is reported. A later clean completion resets the
	// project's count but does not change this gauge.
	JobsCrashStreak prometheus.Gauge

	JobsCompletedLocal  prometheus.Counter
	JobsCompletedRemote prometheus.Counter
	JobsCrashed         prometheus.Counter
	JobsRescheduled     prometheus.Counter
	JobsAborted         prometheus.Counter
}

// New constructs Collectors, ready to Register.
func New() *Collectors {
	return &Collectors{
		PendingJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rdm",
			Name:      "pending_jobs",
			Help:      "Jobs waiting for a local or remote slot.",
		}),
		ProcessingJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rdm",
			Name:      "processing_jobs",
			Help:      "Jobs dispatched but not yet complete, local or remote.",
		}),
		LocalJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rdm",
			Name:      "local_jobs",
			Help:      "Child processes currently running locally.",
		}),
		PreprocessBusy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rdm",
			Name:      "preprocess_busy",
			Help:      "Preprocess pool workers currently running a compiler invocation.",
		}),
		PreprocessWait: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rdm",
			Name:      "preprocess_backlog",
			Help:      "Compile commands queued for preprocessing.",
		}),
		Peers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rdm",
			Name:      "peers",
			Help:      "Remote coordinators currently registered.",
		}),
		JobsCrashStreak: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rdm",
			Name:      "jobs_crash_streak",
			Help:      "Consecutive crash count of the most recently crashed source.",
		}),
		JobsCompletedLocal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rdm",
			Name:      "jobs_completed_local_total",
			Help:      "Jobs that finished running on this host.",
		}),
		JobsCompletedRemote: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rdm",
			Name:      "jobs_completed_remote_total",
			Help:      "Jobs that finished running on a peer.",
		}),
		JobsCrashed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rdm",
			Name:      "jobs_crashed_total",
			Help:      "Local child processes that exited non-zero or wrote to stderr.",
		}),
		JobsRescheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rdm",
			Name:      "jobs_rescheduled_total",
			Help:      "Jobs requeued after their reschedule timeout elapsed.",
		}),
		JobsAborted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rdm",
			Name:      "jobs_aborted_total",
			Help:      "Jobs explicitly aborted before completion.",
		}),
	}
}

// Register adds every collector to reg.
func (c *Collectors) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		c.PendingJobs, c.ProcessingJobs, c.LocalJobs,
		c.PreprocessBusy, c.PreprocessWait, c.Peers,
		c.JobsCrashStreak,
		c.JobsCompletedLocal, c.JobsCompletedRemote,
		c.JobsCrashed, c.JobsRescheduled, c.JobsAborted,
	}
	for _, col := range collectors {
		if err := reg.Register(col); err != nil {
			return err
		}
	}
	return nil
}
