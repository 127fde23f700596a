// Package metrics holds the Prometheus counters of the shift bot.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Events = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crewshift_events_total",
		Help: "Inbound shift events by type and outcome.",
	}, []string{"event", "outcome"})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crewshift_notifications_total",
		Help: "Supervisor notifications by kind and delivery result.",
	}, []string{"kind", "result"})

	Reminders = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crewshift_reminders_total",
		Help: "Reminders sent by kind.",
	}, []string{"kind"})

	Photos = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crewshift_photos_total",
		Help: "Processed photo evidence by result.",
	}, []string{"result"})
)

// Result maps an error to a label value.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
