package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ticksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timeline_watch_ticks_total",
			Help: "Poll ticks by result (bootstrap, processed, empty, skipped, paused, error).",
		},
		[]string{"result"},
	)
	fetchErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timeline_watch_fetch_errors_total",
			Help: "Failed timeline fetches by error kind.",
		},
		[]string{"kind"},
	)
	fetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "timeline_watch_fetch_duration_seconds",
			Help:    "Duration of timeline fetch requests.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)
	postsFetchedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "timeline_watch_posts_fetched_total",
			Help: "Posts received from the timeline, bootstrap window included.",
		},
	)
	verdictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timeline_watch_filter_verdicts_total",
			Help: "Filter decisions by verdict.",
		},
		[]string{"verdict"},
	)
	malformedPostsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "timeline_watch_malformed_posts_total",
			Help: "Posts skipped because required fields were missing.",
		},
	)
	sinkErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "timeline_watch_sink_errors_total",
			Help: "Notifications the sink failed to accept.",
		},
	)
)
