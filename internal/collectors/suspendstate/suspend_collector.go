// Package suspendstate exposes suspend-controller and thread-runtime state
// as Prometheus metrics.
package suspendstate

import (
	"github.com/phuslu/log"
	"github.com/prometheus/client_golang/prometheus"

	"threadpark/internal/logger"
	"threadpark/internal/suspend"
	"threadpark/internal/threading"
)

// Collector implements prometheus.Collector. All metrics are produced as
// const-metrics from a stats snapshot taken at scrape time; nothing here
// touches the suspend hot path.
type Collector struct {
	stats func() suspend.Stats
	rt    *threading.Runtime
	log   log.Logger

	suspendsDesc     *prometheus.Desc
	suspendNoopsDesc *prometheus.Desc
	resumesDesc      *prometheus.Desc
	resumeNoopsDesc  *prometheus.Desc
	errorsDesc       *prometheus.Desc
	suspendedDesc    *prometheus.Desc
	registryCapDesc  *prometheus.Desc
	liveThreadsDesc  *prometheus.Desc
	spawnedDesc      *prometheus.Desc
}

// NewCollector creates a collector over a controller's Stats func and the
// thread runtime.
func NewCollector(stats func() suspend.Stats, rt *threading.Runtime) *Collector {
	return &Collector{
		stats: stats,
		rt:    rt,
		log:   logger.NewLoggerWithContext("suspend-collector"),

		suspendsDesc: prometheus.NewDesc(
			"threadpark_suspends_total",
			"Suspend operations that parked a thread.",
			nil, nil),
		suspendNoopsDesc: prometheus.NewDesc(
			"threadpark_suspend_noops_total",
			"Idempotent suspend operations on already-suspended threads.",
			nil, nil),
		resumesDesc: prometheus.NewDesc(
			"threadpark_resumes_total",
			"Resume operations that unparked a thread.",
			nil, nil),
		resumeNoopsDesc: prometheus.NewDesc(
			"threadpark_resume_noops_total",
			"Resume operations on threads that were not suspended.",
			nil, nil),
		errorsDesc: prometheus.NewDesc(
			"threadpark_op_errors_total",
			"Failed suspend and resume operations.",
			nil, nil),
		suspendedDesc: prometheus.NewDesc(
			"threadpark_suspended_threads",
			"Threads currently suspended.",
			nil, nil),
		registryCapDesc: prometheus.NewDesc(
			"threadpark_registry_slots",
			"Current suspended-thread registry slot count.",
			nil, nil),
		liveThreadsDesc: prometheus.NewDesc(
			"threadpark_live_threads",
			"Threads spawned and not yet exited.",
			nil, nil),
		spawnedDesc: prometheus.NewDesc(
			"threadpark_threads_spawned_total",
			"Threads ever spawned by the runtime.",
			nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.suspendsDesc
	ch <- c.suspendNoopsDesc
	ch <- c.resumesDesc
	ch <- c.resumeNoopsDesc
	ch <- c.errorsDesc
	ch <- c.suspendedDesc
	ch <- c.registryCapDesc
	ch <- c.liveThreadsDesc
	ch <- c.spawnedDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()

	ch <- prometheus.MustNewConstMetric(c.suspendsDesc,
		prometheus.CounterValue, float64(s.Suspends))
	ch <- prometheus.MustNewConstMetric(c.suspendNoopsDesc,
		prometheus.CounterValue, float64(s.SuspendNoops))
	ch <- prometheus.MustNewConstMetric(c.resumesDesc,
		prometheus.CounterValue, float64(s.Resumes))
	ch <- prometheus.MustNewConstMetric(c.resumeNoopsDesc,
		prometheus.CounterValue, float64(s.ResumeNoops))
	ch <- prometheus.MustNewConstMetric(c.errorsDesc,
		prometheus.CounterValue, float64(s.Errors))
	ch <- prometheus.MustNewConstMetric(c.suspendedDesc,
		prometheus.GaugeValue, float64(s.Suspended))
	ch <- prometheus.MustNewConstMetric(c.registryCapDesc,
		prometheus.GaugeValue, float64(s.RegistryCap))
	ch <- prometheus.MustNewConstMetric(c.liveThreadsDesc,
		prometheus.GaugeValue, float64(c.rt.Live()))
	ch <- prometheus.MustNewConstMetric(c.spawnedDesc,
		prometheus.CounterValue, float64(c.rt.Spawned()))
}
