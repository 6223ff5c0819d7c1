// Package metrics exposes the daemon, query, and inference services'
// internal counters to Prometheus. Each collector reads its source's
// existing in-memory state at scrape time rather than shadowing it with a
// second, promauto-registered set of counters that could drift from the
// one the scheduler/cache/supervisor already maintains for its own
// bookkeeping.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/betterspotlight/bspotlight/internal/inference"
	"github.com/betterspotlight/bspotlight/internal/pipeline"
	"github.com/betterspotlight/bspotlight/internal/query"
)

// PipelineCollector exports the dual-lane indexing scheduler's queue
// depths and drop/dispatch/coalesce counters (spec.md §4.4's pipeline
// health surface).
type PipelineCollector struct {
	scheduler *pipeline.Scheduler

	liveDepth        *prometheus.Desc
	rebuildDepth     *prometheus.Desc
	droppedLive      *prometheus.Desc
	droppedRebuild   *prometheus.Desc
	droppedByReason  *prometheus.Desc
	coalesced        *prometheus.Desc
	staleDropped     *prometheus.Desc
	dispatchedLive   *prometheus.Desc
	dispatchedRebuild *prometheus.Desc
}

// NewPipelineCollector builds a collector reading scheduler's live state.
func NewPipelineCollector(scheduler *pipeline.Scheduler) *PipelineCollector {
	const ns = "bspotlight_pipeline"
	return &PipelineCollector{
		scheduler:       scheduler,
		liveDepth:       prometheus.NewDesc(ns+"_live_queue_depth", "Current depth of the live-lane queue.", nil, nil),
		rebuildDepth:    prometheus.NewDesc(ns+"_rebuild_queue_depth", "Current depth of the rebuild-lane queue.", nil, nil),
		droppedLive:     prometheus.NewDesc(ns+"_dropped_live_total", "Total live-lane items dropped.", nil, nil),
		droppedRebuild:  prometheus.NewDesc(ns+"_dropped_rebuild_total", "Total rebuild-lane items dropped.", nil, nil),
		droppedByReason: prometheus.NewDesc(ns+"_dropped_by_reason_total", "Total items dropped, by reason.", []string{"reason"}, nil),
		coalesced:       prometheus.NewDesc(ns+"_coalesced_total", "Total enqueue calls coalesced into an existing queued item.", nil, nil),
		staleDropped:    prometheus.NewDesc(ns+"_stale_dropped_total", "Total items dropped at dispatch for a stale epoch.", nil, nil),
		dispatchedLive:  prometheus.NewDesc(ns+"_dispatched_live_total", "Total live-lane items dispatched.", nil, nil),
		dispatchedRebuild: prometheus.NewDesc(ns+"_dispatched_rebuild_total", "Total rebuild-lane items dispatched.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *PipelineCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.liveDepth
	ch <- c.rebuildDepth
	ch <- c.droppedLive
	ch <- c.droppedRebuild
	ch <- c.droppedByReason
	ch <- c.coalesced
	ch <- c.staleDropped
	ch <- c.dispatchedLive
	ch <- c.dispatchedRebuild
}

// Collect implements prometheus.Collector, snapshotting the scheduler once
// per scrape.
func (c *PipelineCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.scheduler.Snapshot()

	ch <- prometheus.MustNewConstMetric(c.liveDepth, prometheus.GaugeValue, float64(snap.LiveDepth))
	ch <- prometheus.MustNewConstMetric(c.rebuildDepth, prometheus.GaugeValue, float64(snap.RebuildDepth))
	ch <- prometheus.MustNewConstMetric(c.droppedLive, prometheus.CounterValue, float64(snap.DroppedLive))
	ch <- prometheus.MustNewConstMetric(c.droppedRebuild, prometheus.CounterValue, float64(snap.DroppedRebuild))
	for reason, n := range snap.DroppedByReason {
		ch <- prometheus.MustNewConstMetric(c.droppedByReason, prometheus.CounterValue, float64(n), string(reason))
	}
	ch <- prometheus.MustNewConstMetric(c.coalesced, prometheus.CounterValue, float64(snap.Coalesced))
	ch <- prometheus.MustNewConstMetric(c.staleDropped, prometheus.CounterValue, float64(snap.StaleDropped))
	ch <- prometheus.MustNewConstMetric(c.dispatchedLive, prometheus.CounterValue, float64(snap.DispatchedLive))
	ch <- prometheus.MustNewConstMetric(c.dispatchedRebuild, prometheus.CounterValue, float64(snap.DispatchedRebuild))
}

// QueryCacheCollector exports the query-result cache's hit/miss/eviction
// counters and current size (spec.md §4.5.4).
type QueryCacheCollector struct {
	cache *query.Cache

	hits      *prometheus.Desc
	misses    *prometheus.Desc
	evictions *prometheus.Desc
	size      *prometheus.Desc
}

// NewQueryCacheCollector builds a collector reading cache's live state.
func NewQueryCacheCollector(cache *query.Cache) *QueryCacheCollector {
	const ns = "bspotlight_query_cache"
	return &QueryCacheCollector{
		cache:     cache,
		hits:      prometheus.NewDesc(ns+"_hits_total", "Total cache hits.", nil, nil),
		misses:    prometheus.NewDesc(ns+"_misses_total", "Total cache misses.", nil, nil),
		evictions: prometheus.NewDesc(ns+"_evictions_total", "Total LRU evictions.", nil, nil),
		size:      prometheus.NewDesc(ns+"_current_size", "Current number of cached entries.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *QueryCacheCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.evictions
	ch <- c.size
}

// Collect implements prometheus.Collector.
func (c *QueryCacheCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.cache.Stats()
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(stats.Hits))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(stats.Misses))
	ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(stats.Evictions))
	ch <- prometheus.MustNewConstMetric(c.size, prometheus.GaugeValue, float64(stats.CurrentSize))
}

// InferenceCollector exports per-role inference health (spec.md §4.7's
// get_inference_health surface): queue depth, timeout/failure/restart
// counts, and whether a role has exhausted its restart budget.
type InferenceCollector struct {
	service *inference.Service

	queueDepth     *prometheus.Desc
	timeoutCount   *prometheus.Desc
	failureCount   *prometheus.Desc
	restartCount   *prometheus.Desc
	givingUp       *prometheus.Desc
}

// NewInferenceCollector builds a collector reading service's live state.
func NewInferenceCollector(service *inference.Service) *InferenceCollector {
	const ns = "bspotlight_inference"
	labels := []string{"role"}
	return &InferenceCollector{
		service:      service,
		queueDepth:   prometheus.NewDesc(ns+"_queue_depth", "Current admitted queue depth for the role.", labels, nil),
		timeoutCount: prometheus.NewDesc(ns+"_timeouts_total", "Total timeouts recorded for the role.", labels, nil),
		failureCount: prometheus.NewDesc(ns+"_failures_total", "Total failures recorded for the role.", labels, nil),
		restartCount: prometheus.NewDesc(ns+"_restarts_total", "Total restart attempts for the role.", labels, nil),
		givingUp:     prometheus.NewDesc(ns+"_giving_up", "1 if the role has exhausted its restart budget.", labels, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *InferenceCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.queueDepth
	ch <- c.timeoutCount
	ch <- c.failureCount
	ch <- c.restartCount
	ch <- c.givingUp
}

// Collect implements prometheus.Collector.
func (c *InferenceCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.service.GetInferenceHealth()
	for role, depth := range snap.QueueDepthByRole {
		label := string(role)
		ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, float64(depth), label)
		ch <- prometheus.MustNewConstMetric(c.timeoutCount, prometheus.CounterValue, float64(snap.TimeoutCountByRole[role]), label)
		ch <- prometheus.MustNewConstMetric(c.failureCount, prometheus.CounterValue, float64(snap.FailureCountByRole[role]), label)
		ch <- prometheus.MustNewConstMetric(c.restartCount, prometheus.CounterValue, float64(snap.RestartCountByRole[role]), label)
		givingUp := 0.0
		if snap.RestartBudgetExhaustedByRole[role] {
			givingUp = 1.0
		}
		ch <- prometheus.MustNewConstMetric(c.givingUp, prometheus.GaugeValue, givingUp, label)
	}
}
