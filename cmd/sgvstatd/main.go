// Command sgvstatd runs a stand-alone allocator runtime for exercising
// and observing sgvmem outside of a caller process: it creates one
// pool, serves its statistics report over HTTP, and exposes the same
// counters as Prometheus metrics.
package main

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	kingpin "gopkg.in/alecthomas/kingpin.v2"

	"github.com/scst-go/sgvmem"
	"github.com/scst-go/sgvmem/metrics"
)

var (
	listenAddr = kingpin.Flag("web.listen-address", "Address to serve /metrics and /stats on.").Default(":9116").String()
	poolName   = kingpin.Flag("pool.name", "Name of the pool to create at startup.").Default("sgvstatd").String()
	clustering = kingpin.Flag("pool.clustering", "Clustering mode: none, tail, or full.").Default("full").Enum("none", "tail", "full")
	hiWmk      = kingpin.Flag("watermark.hi", "High watermark in pages.").Default("262144").Int64()
	loWmk      = kingpin.Flag("watermark.lo", "Low watermark in pages.").Default("131072").Int64()
)

func parseClustering(s string) sgvmem.ClusterMode {
	switch s {
	case "tail":
		return sgvmem.ClusterTail
	case "full":
		return sgvmem.ClusterFull
	default:
		return sgvmem.ClusterNone
	}
}

func main() {
	kingpin.Version("sgvstatd (unversioned build)")
	kingpin.Parse()

	cfg := sgvmem.DefaultRuntimeConfig()
	cfg.HiWatermark = *hiWmk
	cfg.LoWatermark = *loWmk

	rt := sgvmem.NewAllocatorRuntime(cfg)
	defer rt.Close()

	if _, err := rt.CreatePool(*poolName, parseClustering(*clustering), false, uuid.New(), nil); err != nil {
		slog.Error("sgvstatd: failed to create startup pool", "error", err)
		os.Exit(1)
	}

	prometheus.MustRegister(metrics.NewCollector(rt))

	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(rt.Report()))
	})

	srv := &http.Server{
		Addr:              *listenAddr,
		ReadHeaderTimeout: 5 * time.Second,
	}
	slog.Info("sgvstatd: listening", "addr", *listenAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("sgvstatd: server exited", "error", err)
		os.Exit(1)
	}
}
