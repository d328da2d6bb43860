package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Connections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "room_connections",
		Help: "Attached WebSocket connections per room.",
	}, []string{"room"})

	OnlineUsers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "room_online_users",
		Help: "Distinct online usernames per room.",
	}, []string{"room"})

	Frames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "room_inbound_frames_total",
		Help: "Inbound frames by kind and outcome.",
	}, []string{"kind", "outcome"})

	LinkPreviews = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "link_preview_fetches_total",
		Help: "Link preview enrichment attempts by outcome.",
	}, []string{"outcome"})

	PushDispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "push_dispatches_total",
		Help: "Push notifications sent by outcome.",
	}, []string{"outcome"})
)
