package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	GenerationsStarted   prometheus.Counter
	GenerationsSucceeded prometheus.Counter
	GenerationsFailed    prometheus.Counter
	ChunksRelayed        prometheus.Counter
	QuotaDenials         prometheus.Counter
	RateLimitDenials     prometheus.Counter
	UsageResets          prometheus.Counter
	EmailsSent           prometheus.Counter
	EmailsFailed         prometheus.Counter
}

var (
	once   sync.Once
	global *Metrics
)

func Global() *Metrics {
	once.Do(func() {
		global = &Metrics{
			GenerationsStarted: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "tubebrief",
				Name:      "generations_started_total",
				Help:      "Total AI generations started",
			}),
			GenerationsSucceeded: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "tubebrief",
				Name:      "generations_succeeded_total",
				Help:      "Total AI generations completed successfully",
			}),
			GenerationsFailed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "tubebrief",
				Name:      "generations_failed_total",
				Help:      "Total AI generations that failed",
			}),
			ChunksRelayed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "tubebrief",
				Name:      "stream_chunks_relayed_total",
				Help:      "Total streamed chunks forwarded to clients",
			}),
			QuotaDenials: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "tubebrief",
				Name:      "quota_denials_total",
				Help:      "Total generations denied by the monthly quota",
			}),
			RateLimitDenials: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "tubebrief",
				Name:      "rate_limit_denials_total",
				Help:      "Total generations denied by the hourly rate limit",
			}),
			UsageResets: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "tubebrief",
				Name:      "usage_resets_total",
				Help:      "Total monthly usage reset sweeps executed",
			}),
			EmailsSent: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "tubebrief",
				Name:      "emails_sent_total",
				Help:      "Total emails delivered",
			}),
			EmailsFailed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "tubebrief",
				Name:      "emails_failed_total",
				Help:      "Total email deliveries that failed",
			}),
		}
		prometheus.MustRegister(
			global.GenerationsStarted,
			global.GenerationsSucceeded,
			global.GenerationsFailed,
			global.ChunksRelayed,
			global.QuotaDenials,
			global.RateLimitDenials,
			global.UsageResets,
			global.EmailsSent,
			global.EmailsFailed,
		)
	})
	return global
}
