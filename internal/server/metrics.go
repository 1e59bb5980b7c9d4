package server

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ippt_http_requests_total",
		Help: "HTTP requests served, by method, route, and status.",
	}, []string{"method", "route", "status"})

	rosterEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ippt_roster_events_total",
		Help: "Roster sync events fanned out to session subscribers, by type.",
	}, []string{"type"})

	scanRowsExtractedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ippt_scan_rows_extracted_total",
		Help: "Participant rows extracted from scanned scoresheets.",
	})
)

func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
