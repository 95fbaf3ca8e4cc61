package infrastructure

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Dispatch metrics
	MessagesSent      *prometheus.CounterVec
	DispatchLoops     prometheus.Gauge
	CampaignsStarted  prometheus.Counter
	CampaignsFinished *prometheus.CounterVec

	// Inbound metrics
	InboundMessages *prometheus.CounterVec
	BotReplies      *prometheus.CounterVec
	QuotaResets     prometheus.Counter
}

// NewMetrics registers every metric with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		MessagesSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaign_messages_total",
				Help: "Campaign messages by send outcome",
			},
			[]string{"status"}, // sent, failed
		),
		DispatchLoops: f.NewGauge(prometheus.GaugeOpts{
			Name: "dispatch_loops_running",
			Help: "Number of dispatch loops currently running",
		}),
		CampaignsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "campaigns_started_total",
			Help: "Total number of campaign starts, manual or resumed",
		}),
		CampaignsFinished: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaigns_stopped_total",
				Help: "Campaigns leaving running, by resulting status",
			},
			[]string{"status"}, // completed, paused, paused_limit
		),

		InboundMessages: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inbound_messages_total",
				Help: "Inbound messages by routing result",
			},
			[]string{"result"}, // routed, dropped, duplicate
		),
		BotReplies: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bot_replies_total",
				Help: "Automated replies by strategy",
			},
			[]string{"mode"}, // ai, keyword
		),
		QuotaResets: f.NewCounter(prometheus.CounterOpts{
			Name: "quota_resets_total",
			Help: "Total number of daily quota resets",
		}),
	}
}

// Middleware records request count and latency per route pattern.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) RecordSend(status string) {
	m.MessagesSent.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordCampaignStopped(status string) {
	m.CampaignsFinished.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordInbound(result string) {
	m.InboundMessages.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordBotReply(mode string) {
	m.BotReplies.WithLabelValues(mode).Inc()
}
