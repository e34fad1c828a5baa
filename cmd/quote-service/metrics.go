package main

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	apiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cpswap_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	apiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cpswap_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	quoteRecalculations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cpswap_quote_recalculations_total",
			Help: "Warm quote recalculations by trigger and result",
		},
		[]string{"trigger", "result"}, // refresh, push; ok, error
	)

	cachedQuotesGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cpswap_cached_quotes",
		Help: "Number of warm quotes held by the cache",
	})
)

func metricsMiddleware(c *gin.Context) {
	start := time.Now()
	c.Next()

	endpoint := c.FullPath()
	if endpoint == "" {
		endpoint = "unmatched"
	}
	apiRequestsTotal.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
	apiRequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
}

func recordRecalculation(trigger string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	quoteRecalculations.WithLabelValues(trigger, result).Inc()
}
