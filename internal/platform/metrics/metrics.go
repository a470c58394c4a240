package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	likeRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livepoll_like_requests_total",
		Help: "Like/unlike requests received, by outcome",
	}, []string{"status"})

	voteRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livepoll_vote_requests_total",
		Help: "Vote requests received, by outcome",
	}, []string{"status"})

	broadcastsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livepoll_broadcasts_total",
		Help: "Poll snapshots fanned out to rooms",
	})

	broadcastDropsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livepoll_broadcast_drops_total",
		Help: "Events dropped because a session buffer was full",
	})

	connectedSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "livepoll_connected_sessions",
		Help: "Websocket sessions currently connected",
	})

	projectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "livepoll_projection_duration_seconds",
		Help:    "Time to project a poll snapshot",
		Buckets: prometheus.DefBuckets,
	})
)

func ObserveLikeRequest(status string) {
	likeRequestsTotal.WithLabelValues(status).Inc()
}

func ObserveVoteRequest(status string) {
	voteRequestsTotal.WithLabelValues(status).Inc()
}

func IncBroadcast() {
	broadcastsTotal.Inc()
}

func IncBroadcastDrop() {
	broadcastDropsTotal.Inc()
}

func IncConnectedSessions() {
	connectedSessions.Inc()
}

func DecConnectedSessions() {
	connectedSessions.Dec()
}

func ObserveProjectionDuration(seconds float64) {
	projectionDuration.Observe(seconds)
}
