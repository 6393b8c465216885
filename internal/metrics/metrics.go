package metrics

import (
	"time"

	"next2play/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeFound    = "found"
	OutcomeEmpty    = "empty"
	OutcomeError    = "error"
	EventHit        = "hit"
	EventStored     = "stored"
	EventFetchFail  = "fetch_failed"
	EventRawStored  = "process_failed"
	EventRefetched  = "refetched"
	EventSkippedRef = "empty_ref"
)

var (
	ResolverRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "next2play_resolver_requests_total",
		Help: "Metadata provider searches by outcome.",
	}, []string{"outcome"})

	ResolverDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "next2play_resolver_duration_seconds",
		Help:    "Duration of metadata provider searches in seconds.",
		Buckets: prometheus.DefBuckets,
	})

	ImageCacheEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "next2play_image_cache_events_total",
		Help: "Image cache lookups and downloads by event.",
	}, []string{"event"}) // event: hit, stored, fetch_failed, process_failed, refetched, empty_ref

	GamesTotal = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "next2play_games_total",
		Help: "Games in the collection by progress status.",
	}, []string{"status"})
)

func RecordResolver(outcome string, start time.Time) {
	ResolverRequests.WithLabelValues(outcome).Inc()
	ResolverDuration.Observe(time.Since(start).Seconds())
}

func RecordImageEvent(event string) {
	ImageCacheEvents.WithLabelValues(event).Inc()
}

// UpdateCollection refreshes the per-status gauges from a freshly loaded collection.
func UpdateCollection(games []models.Game) {
	counts := make(map[models.GameStatus]int, len(models.Statuses))
	for _, g := range games {
		counts[g.ProgressStatus]++
	}
	for _, status := range models.Statuses {
		GamesTotal.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}
