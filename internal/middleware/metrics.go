package middleware

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"
)

// Metrics stores application metrics
type Metrics struct {
	RequestsTotal      uint64
	RequestsInProgress uint64
	RequestsSuccess    uint64
	RequestsFailed     uint64
	DecisionsTotal     uint64
	AccessGranted      uint64
	AccessDenied       uint64
	AccessErrors       uint64
	DoorCommands       uint64
	StartTime          time.Time
}

var globalMetrics = &Metrics{
	StartTime: time.Now(),
}

// IncrementRequests increments total request counter
func IncrementRequests() {
	atomic.AddUint64(&globalMetrics.RequestsTotal, 1)
}

// IncrementInProgress increments in-progress request counter
func IncrementInProgress() {
	atomic.AddUint64(&globalMetrics.RequestsInProgress, 1)
}

// DecrementInProgress decrements in-progress request counter
func DecrementInProgress() {
	atomic.AddUint64(&globalMetrics.RequestsInProgress, ^uint64(0))
}

// IncrementSuccess increments successful request counter
func IncrementSuccess() {
	atomic.AddUint64(&globalMetrics.RequestsSuccess, 1)
}

// IncrementFailed increments failed request counter
func IncrementFailed() {
	atomic.AddUint64(&globalMetrics.RequestsFailed, 1)
}

// IncrementDecisions increments total pipeline run counter
func IncrementDecisions() {
	atomic.AddUint64(&globalMetrics.DecisionsTotal, 1)
}

// IncrementGranted counts MATCH decisions
func IncrementGranted() {
	atomic.AddUint64(&globalMetrics.AccessGranted, 1)
}

// IncrementDenied counts NO_MATCH decisions
func IncrementDenied() {
	atomic.AddUint64(&globalMetrics.AccessDenied, 1)
}

// IncrementErrors counts ERROR decisions (liveness and precondition rejections)
func IncrementErrors() {
	atomic.AddUint64(&globalMetrics.AccessErrors, 1)
}

// IncrementDoorCommands counts published unlock commands
func IncrementDoorCommands() {
	atomic.AddUint64(&globalMetrics.DoorCommands, 1)
}

// GetMetrics returns current metrics
func GetMetrics() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return map[string]interface{}{
		"requests_total":       atomic.LoadUint64(&globalMetrics.RequestsTotal),
		"requests_in_progress": atomic.LoadUint64(&globalMetrics.RequestsInProgress),
		"requests_success":     atomic.LoadUint64(&globalMetrics.RequestsSuccess),
		"requests_failed":      atomic.LoadUint64(&globalMetrics.RequestsFailed),
		"decisions_total":      atomic.LoadUint64(&globalMetrics.DecisionsTotal),
		"access_granted":       atomic.LoadUint64(&globalMetrics.AccessGranted),
		"access_denied":        atomic.LoadUint64(&globalMetrics.AccessDenied),
		"access_errors":        atomic.LoadUint64(&globalMetrics.AccessErrors),
		"door_commands":        atomic.LoadUint64(&globalMetrics.DoorCommands),
		"uptime_seconds":       time.Since(globalMetrics.StartTime).Seconds(),
		"memory": map[string]interface{}{
			"alloc_bytes":       m.Alloc,
			"total_alloc_bytes": m.TotalAlloc,
			"sys_bytes":         m.Sys,
			"num_gc":            m.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
	}
}

// MetricsMiddleware tracks request metrics
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		IncrementRequests()
		IncrementInProgress()
		defer DecrementInProgress()

		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		if wrapped.statusCode >= 200 && wrapped.statusCode < 400 {
			IncrementSuccess()
		} else {
			IncrementFailed()
		}
	})
}

// MetricsHandler returns metrics as JSON
func MetricsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(GetMetrics())
}
