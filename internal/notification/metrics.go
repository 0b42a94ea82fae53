package notification

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	deliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "onboard_notification_deliveries_total",
		Help: "Notification delivery outcomes by template and status",
	}, []string{"template", "status"})

	circuitState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "onboard_notification_circuit_open",
		Help: "1 while the notification sender circuit is open",
	})
)
