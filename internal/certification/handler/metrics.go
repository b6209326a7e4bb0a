package handler

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jmerrifield20/agriledger/internal/certification/model"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agriledger_requests_total",
		Help: "Total HTTP requests by method, route, and response status.",
	}, []string{"method", "path", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agriledger_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	ledgerEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agriledger_ledger_events_total",
		Help: "Event log entries appended through the API, by action.",
	}, []string{"action"})

	webhookDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agriledger_webhook_deliveries_total",
		Help: "Webhook deliveries by outcome.",
	}, []string{"status"})

	archiveRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agriledger_archive_runs_total",
		Help: "Event log archive runs by outcome.",
	}, []string{"result"})

	integrityAuditsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agriledger_integrity_audits_total",
		Help: "Background chain and record integrity audits by outcome.",
	}, []string{"result"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method
		requestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		requestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

// MetricsHandler serves the default Prometheus registry.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordLedgerEvent counts an event log append of the given action.
func RecordLedgerEvent(action string) {
	ledgerEventsTotal.WithLabelValues(action).Inc()
}

// RecordWebhookDelivery counts a webhook delivery outcome. It satisfies the
// webhooks.Service metrics hook.
func RecordWebhookDelivery(success bool) {
	webhookDeliveriesTotal.WithLabelValues(outcome(success)).Inc()
}

// RecordArchiveRun counts an archive run outcome.
func RecordArchiveRun(success bool) {
	archiveRunsTotal.WithLabelValues(outcome(success)).Inc()
}

// RecordIntegrityAudit counts a background integrity audit outcome.
func RecordIntegrityAudit(success bool) {
	integrityAuditsTotal.WithLabelValues(outcome(success)).Inc()
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// SummarySource produces the ledger roll-up; *service.MetricsAggregator
// implements it.
type SummarySource interface {
	Summarize(ctx context.Context) model.Metrics
}

// LedgerCollector exports the ledger roll-up as gauges computed at scrape
// time, so the values always agree with GET /metrics/summary.
type LedgerCollector struct {
	src SummarySource

	records       *prometheus.Desc
	byCategory    *prometheus.Desc
	byStatus      *prometheus.Desc
	verifications *prometheus.Desc
	revenue       *prometheus.Desc
	averageFee    *prometheus.Desc
}

// NewLedgerCollector returns a collector over src. Register it with
// prometheus.MustRegister.
func NewLedgerCollector(src SummarySource) *LedgerCollector {
	return &LedgerCollector{
		src:           src,
		records:       prometheus.NewDesc("agriledger_records", "Certification records held by the ledger.", nil, nil),
		byCategory:    prometheus.NewDesc("agriledger_records_by_category", "Records per product category.", []string{"category"}, nil),
		byStatus:      prometheus.NewDesc("agriledger_records_by_status", "Records per lifecycle status.", []string{"status"}, nil),
		verifications: prometheus.NewDesc("agriledger_verifications", "Sum of verification counts across records.", nil, nil),
		revenue:       prometheus.NewDesc("agriledger_estimated_revenue", "Sum of certification fees.", nil, nil),
		averageFee:    prometheus.NewDesc("agriledger_average_fee", "Mean certification fee per record.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (lc *LedgerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- lc.records
	ch <- lc.byCategory
	ch <- lc.byStatus
	ch <- lc.verifications
	ch <- lc.revenue
	ch <- lc.averageFee
}

// Collect implements prometheus.Collector.
func (lc *LedgerCollector) Collect(ch chan<- prometheus.Metric) {
	m := lc.src.Summarize(context.Background())

	ch <- prometheus.MustNewConstMetric(lc.records, prometheus.GaugeValue, float64(m.TotalRecords))
	for cat, n := range m.PerCategoryCounts {
		ch <- prometheus.MustNewConstMetric(lc.byCategory, prometheus.GaugeValue, float64(n), string(cat))
	}
	for st, n := range m.PerStatusCounts {
		ch <- prometheus.MustNewConstMetric(lc.byStatus, prometheus.GaugeValue, float64(n), string(st))
	}
	ch <- prometheus.MustNewConstMetric(lc.verifications, prometheus.GaugeValue, float64(m.TotalVerifications))
	ch <- prometheus.MustNewConstMetric(lc.revenue, prometheus.GaugeValue, m.EstimatedRevenue.InexactFloat64())
	ch <- prometheus.MustNewConstMetric(lc.averageFee, prometheus.GaugeValue, m.AverageFee.InexactFloat64())
}
