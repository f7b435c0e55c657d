package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripchat_http_requests_total",
			Help: "Total number of HTTP requests processed by the chat service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tripchat_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	messagesIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripchat_messages_ingested_total",
			Help: "Messages accepted and persisted by the ingestion gateway.",
		},
		[]string{"kind"},
	)
	publishRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tripchat_broker_publish_retries_total",
			Help: "Broker publish attempts that failed and were retried.",
		},
	)
	publishFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tripchat_broker_publish_failures_total",
			Help: "Messages persisted but not published after exhausting retries.",
		},
	)
	poisonMessagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tripchat_poison_messages_total",
			Help: "Consumed messages dropped as unprocessable.",
		},
	)
	fanoutBroadcastsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tripchat_fanout_broadcasts_total",
			Help: "Messages rebroadcast to live room viewers.",
		},
	)
	notificationsSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tripchat_notifications_sent_total",
			Help: "Push notifications delivered to device tokens.",
		},
	)
	tokensPrunedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tripchat_device_tokens_pruned_total",
			Help: "Device tokens deleted after a delivery failure.",
		},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tripchat_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripchat_ws_events_total",
			Help: "Total number of websocket events.",
		},
		[]string{"event"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tripchat_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		messagesIngestedTotal,
		publishRetriesTotal,
		publishFailuresTotal,
		poisonMessagesTotal,
		fanoutBroadcastsTotal,
		notificationsSentTotal,
		tokensPrunedTotal,
		wsActiveConnections,
		wsEventsTotal,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncMessageIngested(kind string) {
	messagesIngestedTotal.WithLabelValues(kind).Inc()
}

func IncPublishRetry() {
	publishRetriesTotal.Inc()
}

func IncPublishFailure() {
	publishFailuresTotal.Inc()
}

func IncPoisonMessage() {
	poisonMessagesTotal.Inc()
}

func IncFanoutBroadcast() {
	fanoutBroadcastsTotal.Inc()
}

func IncNotificationSent() {
	notificationsSentTotal.Inc()
}

func IncTokenPruned() {
	tokensPrunedTotal.Inc()
}

func IncWSActive() {
	wsActiveConnections.Inc()
}

func DecWSActive() {
	wsActiveConnections.Dec()
}

func IncWSEvent(event string) {
	wsEventsTotal.WithLabelValues(event).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
