package rss

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	feedsFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gleaner_rss_feed_fetches_total",
		Help: "The total number of feed fetch attempts by outcome",
	}, []string{"outcome"})

	articlesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gleaner_rss_articles_created_total",
		Help: "The total number of new articles stored from feeds",
	})

	fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gleaner_rss_fetch_duration_seconds",
		Help:    "Duration of single feed fetches",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // Start at 100ms, double each bucket, 10 buckets
	})

	refreshRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gleaner_rss_refresh_running",
		Help: "Whether a refresh cycle is currently in flight",
	})
)
