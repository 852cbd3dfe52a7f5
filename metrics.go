package main

import (
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	versionGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cinedis_build_info",
		Help: "A gauge with version and git commit information",
	}, []string{"version", "git_commit", "hostname"})

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cinedis",
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of response latency (seconds) for HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"path", "method", "code"},
	)

	providerCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cinedis_providers",
			Name:      "call_duration_seconds",
			Help:      "Histogram of upstream provider call latency (seconds).",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider", "operation"},
	)

	cacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cinedis_cache",
			Name:      "hits_total",
			Help:      "Number of cache reads served by a fresh entry.",
		},
		[]string{"flavor"},
	)

	cacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cinedis_cache",
			Name:      "misses_total",
			Help:      "Number of cache reads that fell through to a provider.",
		},
		[]string{"flavor"},
	)

	quotaDenials = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cinedis_quota",
			Name:      "denials_total",
			Help:      "Number of insight generations refused by the daily quota.",
		},
	)
)

func init() {
	prometheus.MustRegister(versionGauge)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(providerCallDuration)
	prometheus.MustRegister(cacheHits)
	prometheus.MustRegister(cacheMisses)
	prometheus.MustRegister(quotaDenials)
}

func HistogramHttpHandler(next http.Handler) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a ResponseWriter that captures the status code
		rw := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		re := regexp.MustCompile(`/(\d+)`)

		sanitizedPath := re.ReplaceAllString(r.URL.Path, "/:id")

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		httpRequestDuration.WithLabelValues(sanitizedPath, r.Method, strconv.Itoa(rw.statusCode)).Observe(duration)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}
