package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	remindersSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "takingpills_reminders_sent_total",
		Help: "Total number of intake reminders delivered",
	})

	remindersFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "takingpills_reminders_failed_total",
		Help: "Total number of intake reminder deliveries that failed",
	})

	snoozes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "takingpills_snoozes_total",
		Help: "Total number of user snooze actions",
	})

	intakesMarked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "takingpills_intakes_marked_total",
		Help: "Total number of intakes marked as taken",
	})

	intakesMissed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "takingpills_intakes_missed_total",
		Help: "Total number of intakes counted as missed",
	})

	lowStockAlerts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "takingpills_low_stock_alerts_total",
		Help: "Total number of low-stock notifications sent",
	})
)

func RecordReminderSent()   { remindersSent.Inc() }
func RecordReminderFailed() { remindersFailed.Inc() }
func RecordSnooze()         { snoozes.Inc() }
func RecordIntakeMarked()   { intakesMarked.Inc() }
func RecordLowStockAlert()  { lowStockAlerts.Inc() }

// RecordMissed adds n missed intakes.
func RecordMissed(n int) {
	if n > 0 {
		intakesMissed.Add(float64(n))
	}
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Snapshot holds counter values since process start, for the admin /stats
// command. Counters reset only on restart.
type Snapshot struct {
	RemindersSent   uint64
	RemindersFailed uint64
	Snoozes         uint64
	IntakesMarked   uint64
	IntakesMissed   uint64
	LowStockAlerts  uint64
}

// Read gathers the current counter values from the default registry.
func Read() Snapshot {
	var s Snapshot
	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return s
	}
	for _, mf := range mfs {
		if len(mf.GetMetric()) == 0 {
			continue
		}
		v := uint64(mf.GetMetric()[0].GetCounter().GetValue())
		switch mf.GetName() {
		case "takingpills_reminders_sent_total":
			s.RemindersSent = v
		case "takingpills_reminders_failed_total":
			s.RemindersFailed = v
		case "takingpills_snoozes_total":
			s.Snoozes = v
		case "takingpills_intakes_marked_total":
			s.IntakesMarked = v
		case "takingpills_intakes_missed_total":
			s.IntakesMissed = v
		case "takingpills_low_stock_alerts_total":
			s.LowStockAlerts = v
		}
	}
	return s
}
