package middleware

import (
	"net/http"
	"sync/atomic"
)

// MetricsCollector collects request metrics.
type MetricsCollector struct {
	requestCount *atomic.Int64
	errorCount   *atomic.Int64
	serverErrors atomic.Int64
	upgrades     atomic.Int64
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector(requestCount, errorCount *atomic.Int64) *MetricsCollector {
	return &MetricsCollector{
		requestCount: requestCount,
		errorCount:   errorCount,
	}
}

// Middleware returns middleware that counts requests, errors and push
// channel upgrades.
func (mc *MetricsCollector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mc.requestCount.Add(1)

		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)

		switch {
		case rw.statusCode == http.StatusSwitchingProtocols:
			mc.upgrades.Add(1)
		case rw.statusCode >= 500:
			mc.serverErrors.Add(1)
			mc.errorCount.Add(1)
		case rw.statusCode >= 400:
			mc.errorCount.Add(1)
		}
	})
}

func (mc *MetricsCollector) ServerErrors() int64 {
	return mc.serverErrors.Load()
}

// Upgrades returns the number of WebSocket connections accepted.
func (mc *MetricsCollector) Upgrades() int64 {
	return mc.upgrades.Load()
}
