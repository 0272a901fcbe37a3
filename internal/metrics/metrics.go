package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"statusrelay/internal/eventbus"
)

var (
	// Run metrics
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statusrelay_runs_total",
			Help: "Total number of relay runs by result",
		},
		[]string{"result"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "statusrelay_run_duration_seconds",
			Help:    "Duration of relay runs in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	LastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "statusrelay_last_run_timestamp_seconds",
			Help: "Unix time the last relay run finished",
		},
	)

	Watermark = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "statusrelay_watermark_timestamp_seconds",
			Help: "Created time of the last component visited",
		},
	)

	// Feed metrics
	PagesFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "statusrelay_pages_fetched_total",
			Help: "Total number of Cachet listing pages fetched",
		},
	)

	ComponentsVisited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "statusrelay_components_visited_total",
			Help: "Total number of components compared against the snapshot",
		},
	)

	StatusChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statusrelay_status_changes_total",
			Help: "Total number of detected status changes by new status",
		},
		[]string{"status"},
	)

	// Delivery metrics
	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "statusrelay_messages_sent_total",
			Help: "Total number of webhook messages delivered",
		},
	)

	DeliveryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "statusrelay_delivery_duration_seconds",
			Help:    "Webhook delivery time including rate limit waits",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	MirrorFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statusrelay_mirror_failures_total",
			Help: "Total number of failed mirror deliveries",
		},
		[]string{"sink"},
	)
)

// Observe updates collectors from one relay event.
func Observe(e eventbus.Event) {
	switch d := e.Data.(type) {
	case eventbus.ComponentChanged:
		StatusChanges.WithLabelValues(d.StatusName).Inc()
	case eventbus.MessageSent:
		MessagesSent.Inc()
		DeliveryDuration.Observe(d.Took.Seconds())
	case eventbus.MirrorFailed:
		MirrorFailures.WithLabelValues(d.Sink).Inc()
	case eventbus.RunFinished:
		result := "ok"
		if d.Err != "" {
			result = "error"
		}
		RunsTotal.WithLabelValues(result).Inc()
		RunDuration.Observe(d.Took.Seconds())
		PagesFetched.Add(float64(d.Pages))
		ComponentsVisited.Add(float64(d.Visited))
		LastRunTimestamp.Set(float64(e.Time.Unix()))
		if !d.Watermark.IsZero() {
			Watermark.Set(float64(d.Watermark.Unix()))
		}
	}
}

// Consume records events from ch until ctx is done or ch is closed.
func Consume(ctx context.Context, ch <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			Observe(e)
		}
	}
}
