// Package metrics provides Prometheus metrics for the codec daemon.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "codecd"

var (
	busErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "bus",
		Name:      "errors_total",
		Help:      "Register bus failures by operation",
	}, []string{"op"})

	bandgapTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "power",
		Name:      "bandgap_transitions_total",
		Help:      "Completed bandgap reference transitions",
	}, []string{"from", "to"})

	bandgapMode = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "power",
		Name:      "bandgap_mode",
		Help:      "Current bandgap mode (0=off, 1=audio, 2=mbhc)",
	})

	clockActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "power",
		Name:      "clock_active",
		Help:      "1 while the clock block is enabled",
	})

	streamRefs = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "power",
		Name:      "stream_refs",
		Help:      "Active audio streams holding the power domain",
	})

	jackReports = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "jack",
		Name:      "reports_total",
		Help:      "Jack state reports by state",
	}, []string{"state"})

	irqDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "irq",
		Name:      "dispatched_total",
		Help:      "Interrupts delivered to a handler",
	}, []string{"line"})

	irqDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "irq",
		Name:      "dropped_total",
		Help:      "Interrupts not delivered, by reason",
	}, []string{"line", "reason"})

	portErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "bushealth",
		Name:      "port_errors_total",
		Help:      "Serial audio bus port overflow/underflow events",
	}, []string{"port", "kind"})
)

// IncBusError counts a failed register bus operation.
func IncBusError(op string) {
	busErrors.WithLabelValues(op).Inc()
}

// BandgapTransition records a completed transition and the resulting mode.
func BandgapTransition(from, to string, mode int) {
	bandgapTransitions.WithLabelValues(from, to).Inc()
	bandgapMode.Set(float64(mode))
}

// SetClockActive records the clock block state.
func SetClockActive(on bool) {
	if on {
		clockActive.Set(1)
		return
	}
	clockActive.Set(0)
}

// SetStreamRefs records the active stream count.
func SetStreamRefs(n uint) {
	streamRefs.Set(float64(n))
}

// IncJackReport counts a jack notification.
func IncJackReport(state string) {
	jackReports.WithLabelValues(state).Inc()
}

// IncIRQDispatched counts an interrupt delivered to its handler.
func IncIRQDispatched(line string) {
	irqDispatched.WithLabelValues(line).Inc()
}

// IncIRQDropped counts an interrupt that was masked, unhandled or overflowed.
func IncIRQDropped(line, reason string) {
	irqDropped.WithLabelValues(line, reason).Inc()
}

// IncPortError counts a serial audio bus port error.
func IncPortError(port, kind string) {
	portErrors.WithLabelValues(port, kind).Inc()
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
