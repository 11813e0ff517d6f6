package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "pipeline_events_total", Help: "Count of events processed by the pipeline"},
		[]string{"type"},
	)
	FeaturesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "features_emitted_total", Help: "Feature vectors emitted"},
		[]string{"symbol"},
	)
	BarsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bars_emitted_total", Help: "Information bars closed"},
		[]string{"kind"},
	)
	SequenceGapsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "sequence_gaps_total", Help: "Tolerated sequence gaps"},
	)
	CrossedBooksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "crossed_books_total", Help: "Crossed book snapshots skipped"},
	)
	RefitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "hawkes_refits_total", Help: "Hawkes refit outcomes per dimension"},
		[]string{"outcome"},
	)
	FeedDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "feed_dropped_total", Help: "Feed events dropped because the pipeline inbox was full"},
		[]string{"stream"},
	)
)

func init() {
	prometheus.MustRegister(EventsTotal, FeaturesTotal, BarsTotal,
		SequenceGapsTotal, CrossedBooksTotal, RefitsTotal, FeedDroppedTotal)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
