package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PasteCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linepaste_paste_created_total",
		Help: "no. of pastes created",
	})
	PasteRetrieved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linepaste_paste_retrieved_total",
		Help: "no. of pastes retrieved",
	})
	CommentAdded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linepaste_comment_added_total",
		Help: "no. of comments appended",
	})
	NotificationSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linepaste_notification_sent_total",
		Help: "no. of comment notification emails sent",
	})
	NotificationFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linepaste_notification_failed_total",
		Help: "no. of comment notification emails that failed",
	})
	DecryptFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linepaste_decrypt_failures_total",
		Help: "no. of paste files that failed authentication or decode",
	})
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linepaste_cache_hits_total",
		Help: "no. of cache hits",
	})
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linepaste_cache_misses_total",
		Help: "no. of cache misses",
	})
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "linepaste_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linepaste_rate_limit_hits_total",
			Help: "no. of rate limit violations",
		},
		[]string{"endpoint"},
	)
)

func Init() {
}
