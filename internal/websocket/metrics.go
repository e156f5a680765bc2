package websocket

import "github.com/prometheus/client_golang/prometheus"

var (
	wsConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ecolisting_ws_room_connections",
			Help: "Current number of websocket connections joined to a room.",
		},
	)
	wsSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ecolisting_ws_chat_sessions",
			Help: "Current number of live chat sessions.",
		},
	)
	wsRooms = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ecolisting_ws_rooms",
			Help: "Current number of websocket rooms.",
		},
	)
	wsMessagesDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ecolisting_ws_messages_delivered_total",
			Help: "Total room messages delivered to clients.",
		},
	)
)

func init() {
	prometheus.MustRegister(wsConnections, wsSessions, wsRooms, wsMessagesDelivered)
}

func incConnections() {
	wsConnections.Inc()
}

func decConnections() {
	wsConnections.Dec()
}

func incSessions() {
	wsSessions.Inc()
}

func decSessions() {
	wsSessions.Dec()
}

func setRooms(count int) {
	wsRooms.Set(float64(count))
}

func addDelivered(count int) {
	wsMessagesDelivered.Add(float64(count))
}
