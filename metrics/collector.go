// Package metrics exposes an AllocatorRuntime's statistics surface
// (spec.md §6) as a github.com/prometheus/client_golang collector, the
// way talyz-systemd_exporter's systemd.Collector exposes unit state.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/scst-go/sgvmem"
)

const namespace = "sgvmem"

// Runtime is the subset of *sgvmem.AllocatorRuntime the collector reads;
// any type with these two methods can stand in for it.
type Runtime interface {
	Pools() []*sgvmem.Pool
	Global() sgvmem.GlobalStats
}

// Collector adapts a Runtime's read-only statistics to prometheus
// collection. Every Desc is built once at construction, mirroring
// talyz-systemd_exporter's NewCollector.
type Collector struct {
	rt Runtime

	totalPages          *prometheus.Desc
	hiWatermark         *prometheus.Desc
	loWatermark         *prometheus.Desc
	hiWatermarkReleases *prometheus.Desc
	hiWatermarkFailures *prometheus.Desc

	poolHit         *prometheus.Desc
	poolTotal       *prometheus.Desc
	poolCachedPages *prometheus.Desc
	poolInactive    *prometheus.Desc
	poolEntries     *prometheus.Desc

	bucketHit         *prometheus.Desc
	bucketTotal       *prometheus.Desc
	bucketCachedPages *prometheus.Desc
}

// NewCollector returns a Collector reading from rt.
func NewCollector(rt Runtime) *Collector {
	return &Collector{
		rt: rt,

		totalPages: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "total_pages"),
			"Pages currently resident across all pools.", nil, nil,
		),
		hiWatermark: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "hi_watermark_pages"),
			"Configured high watermark in pages.", nil, nil,
		),
		loWatermark: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "lo_watermark_pages"),
			"Configured low watermark in pages.", nil, nil,
		),
		hiWatermarkReleases: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "hi_watermark_releases_total"),
			"Times the shrinker ran to satisfy a reservation under the high watermark.", nil, nil,
		),
		hiWatermarkFailures: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "hi_watermark_failures_total"),
			"Times a reservation was rejected after shrinking failed to clear the high watermark.", nil, nil,
		),
		poolHit: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "pool_hit_total"),
			"Cache hits serviced by a pool.", []string{"pool"}, nil,
		),
		poolTotal: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "pool_alloc_total"),
			"Allocations served by a pool, hit or miss.", []string{"pool"}, nil,
		),
		poolCachedPages: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "pool_cached_pages"),
			"Pages currently sitting idle in a pool's buckets.", []string{"pool"}, nil,
		),
		poolInactive: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "pool_inactive_objects"),
			"Objects currently on a pool's inactive LRU.", []string{"pool"}, nil,
		),
		poolEntries: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "pool_cached_entries"),
			"Cached objects across a pool's buckets.", []string{"pool"}, nil,
		),
		bucketHit: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "bucket_hit_total"),
			"Cache hits serviced by a single bucket.", []string{"pool", "bucket"}, nil,
		),
		bucketTotal: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "bucket_alloc_total"),
			"Allocations served by a single bucket, hit or miss.", []string{"pool", "bucket"}, nil,
		),
		bucketCachedPages: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "bucket_cached_pages"),
			"Pages currently idle in a single bucket.", []string{"pool", "bucket"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalPages
	ch <- c.hiWatermark
	ch <- c.loWatermark
	ch <- c.hiWatermarkReleases
	ch <- c.hiWatermarkFailures
	ch <- c.poolHit
	ch <- c.poolTotal
	ch <- c.poolCachedPages
	ch <- c.poolInactive
	ch <- c.poolEntries
	ch <- c.bucketHit
	ch <- c.bucketTotal
	ch <- c.bucketCachedPages
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	g := c.rt.Global()
	ch <- prometheus.MustNewConstMetric(c.totalPages, prometheus.GaugeValue, float64(g.TotalPages))
	ch <- prometheus.MustNewConstMetric(c.hiWatermark, prometheus.GaugeValue, float64(g.HiWatermark))
	ch <- prometheus.MustNewConstMetric(c.loWatermark, prometheus.GaugeValue, float64(g.LoWatermark))
	ch <- prometheus.MustNewConstMetric(c.hiWatermarkReleases, prometheus.CounterValue, float64(g.HiWatermarkReleases))
	ch <- prometheus.MustNewConstMetric(c.hiWatermarkFailures, prometheus.CounterValue, float64(g.HiWatermarkFailures))

	for _, p := range c.rt.Pools() {
		ps := p.Stats()
		ch <- prometheus.MustNewConstMetric(c.poolHit, prometheus.CounterValue, float64(ps.Hit), ps.Name)
		ch <- prometheus.MustNewConstMetric(c.poolTotal, prometheus.CounterValue, float64(ps.Total), ps.Name)
		ch <- prometheus.MustNewConstMetric(c.poolCachedPages, prometheus.GaugeValue, float64(ps.CachedPages), ps.Name)
		ch <- prometheus.MustNewConstMetric(c.poolInactive, prometheus.GaugeValue, float64(ps.Inactive), ps.Name)
		ch <- prometheus.MustNewConstMetric(c.poolEntries, prometheus.GaugeValue, float64(ps.Entries), ps.Name)

		for _, bs := range ps.Buckets {
			ch <- prometheus.MustNewConstMetric(c.bucketHit, prometheus.CounterValue, float64(bs.Hit), ps.Name, bs.Name)
			ch <- prometheus.MustNewConstMetric(c.bucketTotal, prometheus.CounterValue, float64(bs.Total), ps.Name, bs.Name)
			ch <- prometheus.MustNewConstMetric(c.bucketCachedPages, prometheus.GaugeValue, float64(bs.CachedPages), ps.Name, bs.Name)
		}
	}
}
