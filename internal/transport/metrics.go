package transport

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "push_dispatch",
		Subsystem: "transport",
		Name:      "requests_total",
		Help:      "Provider requests by outcome.",
	}, []string{"provider", "code"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "push_dispatch",
		Subsystem: "transport",
		Name:      "request_duration_seconds",
		Help:      "Provider request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"provider"})
)

func observe(provider string, start time.Time, resp *http.Response, err error) {
	requestDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())

	code := "error"
	switch {
	case err != nil && IsTimeout(err):
		code = "timeout"
	case err == nil && resp != nil:
		code = strconv.Itoa(resp.StatusCode)
	}
	requestsTotal.WithLabelValues(provider, code).Inc()
}
