package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	PollCycles     prometheus.Counter
	PollFailures   prometheus.Counter
	EmailsFiltered prometheus.Counter
	RepliesQueued  prometheus.Counter
	RepliesSent    prometheus.Counter
	ReplyFailures  prometheus.Counter
	PendingReplies prometheus.Gauge
	ProcessingTime prometheus.Histogram
}

// NewMetrics creates new Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		PollCycles: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mail_autoresponder_poll_cycles_total",
			Help: "Total number of inbox poll cycles",
		}),
		PollFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mail_autoresponder_poll_failures_total",
			Help: "Total number of failed inbox poll cycles",
		}),
		EmailsFiltered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mail_autoresponder_emails_filtered_total",
			Help: "Total number of emails rejected by the message filter",
		}),
		RepliesQueued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mail_autoresponder_replies_queued_total",
			Help: "Total number of replies queued for manual confirmation",
		}),
		RepliesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mail_autoresponder_replies_sent_total",
			Help: "Total number of successfully sent replies",
		}),
		ReplyFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mail_autoresponder_reply_failures_total",
			Help: "Total number of failed reply sends",
		}),
		PendingReplies: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "mail_autoresponder_pending_replies",
			Help: "Number of replies currently awaiting manual confirmation",
		}),
		ProcessingTime: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "mail_autoresponder_cycle_duration_seconds",
			Help:    "Time spent per poll cycle including per-email processing",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
