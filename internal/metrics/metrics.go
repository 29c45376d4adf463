// Package metrics exposes engine counters and the system metrics endpoint.
package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/PYPE-AI-MAIN/whispey-sub003/internal/database"
	"github.com/PYPE-AI-MAIN/whispey-sub003/internal/models"
)

var startTime = time.Now()

var (
	// PagesFetched counts call-log pages returned by the executor.
	PagesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whispey_call_log_pages_fetched_total",
		Help: "Call log pages fetched through the paginated executor",
	})

	// ExportRows counts rows written to CSV exports.
	ExportRows = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whispey_export_rows_total",
		Help: "Rows written to completed CSV exports",
	})

	// ExportFailures counts aborted exports.
	ExportFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whispey_export_failures_total",
		Help: "CSV exports aborted by a chunk failure",
	})

	// FilterRulesRejected counts filter rules excluded at validation.
	FilterRulesRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "whispey_filter_rules_rejected_total",
		Help: "Filter rules rejected as invalid during compilation",
	})
)

// HandlePrometheusMetrics serves the Prometheus scrape endpoint.
func HandlePrometheusMetrics() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

// HandleSystemMetrics returns system-level metrics
func HandleSystemMetrics(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	var agentCount, projectCount, callCount int64
	dbConnected := false
	if database.DB != nil {
		if sqlDB, err := database.DB.DB(); err == nil {
			if err := sqlDB.Ping(); err == nil {
				dbConnected = true
			}
		}
		database.DB.Model(&models.Agent{}).Count(&agentCount)
		database.DB.Model(&models.Project{}).Count(&projectCount)
		database.DB.Model(&models.CallLog{}).Count(&callCount)
	}

	c.JSON(http.StatusOK, gin.H{
		"uptime_seconds":     time.Since(startTime).Seconds(),
		"database_connected": dbConnected,
		"memory": gin.H{
			"alloc_mb":       m.Alloc / 1024 / 1024,
			"total_alloc_mb": m.TotalAlloc / 1024 / 1024,
			"sys_mb":         m.Sys / 1024 / 1024,
			"gc_runs":        m.NumGC,
		},
		"goroutines": runtime.NumGoroutine(),
		"resources": gin.H{
			"agents":    agentCount,
			"projects":  projectCount,
			"call_logs": callCount,
		},
		"timestamp": time.Now(),
	})
}
