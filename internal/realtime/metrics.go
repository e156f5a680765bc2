package realtime

import "github.com/prometheus/client_golang/prometheus"

var activeSubscriptions = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "ecolisting_realtime_subscriptions",
		Help: "Current number of live change feed subscriptions.",
	},
)

func init() {
	prometheus.MustRegister(activeSubscriptions)
}
