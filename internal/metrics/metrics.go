// Package metrics registers the service's Prometheus collectors and
// exposes them over GET /metrics.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/valyala/fasthttp"
)

var (
	// RequestsTotal counts ingested activity records by caller, method,
	// and status.
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "activity_tracker_requests_total",
		Help: "Total number of activity records ingested.",
	}, []string{"caller_id", "method", "status"})

	// RequestDuration buckets elapsed_ms for ingested records.
	RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "activity_tracker_request_duration_ms",
		Help:    "Elapsed milliseconds reported for ingested activity records.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 14),
	}, []string{"caller_id", "method"})

	// CacheHitsTotal and CacheMissesTotal aggregate the hit tracker's
	// view across all fingerprints, incremented alongside its
	// per-fingerprint KV counters.
	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "activity_tracker_cache_hits_total",
		Help: "Total analytics cache hits across all fingerprints.",
	})
	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "activity_tracker_cache_misses_total",
		Help: "Total analytics cache misses across all fingerprints.",
	})

	// OverflowDepth reports the current size of the overflow buffer.
	OverflowDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "activity_tracker_overflow_depth",
		Help: "Current number of records held in the overflow buffer.",
	})
)

func init() {
	prometheus.MustRegister(RequestsTotal, RequestDuration, CacheHitsTotal, CacheMissesTotal, OverflowDepth)
}

// Handler gathers every registered metric family and writes it in the
// Prometheus text exposition format. An optional ?prefix= query narrows
// the output to families whose name starts with the given prefix.
func Handler(rc *fasthttp.RequestCtx) {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		rc.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	families = filterFamilies(families, string(rc.QueryArgs().Peek("prefix")))

	rc.SetContentType(string(expfmt.NewFormat(expfmt.TypeTextPlain)))
	enc := expfmt.NewEncoder(rc, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			break
		}
	}
}

func filterFamilies(families []*dto.MetricFamily, prefix string) []*dto.MetricFamily {
	if prefix == "" {
		return families
	}
	kept := families[:0]
	for _, mf := range families {
		if strings.HasPrefix(mf.GetName(), prefix) {
			kept = append(kept, mf)
		}
	}
	return kept
}
