// Package metrics exposes Prometheus instrumentation for the controller.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the controller's Prometheus collectors. A nil *Metrics is
// valid and records nothing, so wiring stays optional.
type Metrics struct {
	registry *prometheus.Registry

	cyclesTotal      prometheus.Counter
	rejectionsTotal  *prometheus.CounterVec
	pumpStartsTotal  *prometheus.CounterVec
	pumpStopsTotal   *prometheus.CounterVec
	recoveryAttempts prometheus.Counter
	systemHealthy    prometheus.Gauge
	emergencyStop    prometheus.Gauge
	pumpActive       prometheus.Gauge
	soilMoisture     prometheus.Gauge
	threshold        prometheus.Gauge
	dailyCount       prometheus.Gauge
	cbState          *prometheus.GaugeVec
}

// NewMetrics creates and registers the controller collectors on a private
// registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "controller_cycles_total",
			Help: "Total control cycles executed.",
		}),
		rejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensor_rejections_total",
			Help: "Total sensor readings rejected by channel and reason.",
		}, []string{"channel", "reason"}),
		pumpStartsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pump_starts_total",
			Help: "Total pump starts by mode.",
		}, []string{"mode"}),
		pumpStopsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pump_stops_total",
			Help: "Total pump stops by reason.",
		}, []string{"reason"}),
		recoveryAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sensor_recovery_attempts_total",
			Help: "Total sensor recovery attempts.",
		}),
		systemHealthy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "system_healthy",
			Help: "Whether the supervisor considers the system healthy (1) or not (0).",
		}),
		emergencyStop: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "emergency_stop_engaged",
			Help: "Whether the emergency stop latch is engaged (1) or clear (0).",
		}),
		pumpActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pump_active",
			Help: "Whether the pump relay is energized (1) or off (0).",
		}),
		soilMoisture: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "soil_moisture_percent",
			Help: "Last accepted soil moisture reading.",
		}),
		threshold: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "irrigation_threshold_percent",
			Help: "Current irrigation threshold.",
		}),
		dailyCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "daily_irrigation_count",
			Help: "Irrigations started since local midnight.",
		}),
		cbState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cb_state",
			Help: "Circuit breaker state gauge (0 closed, 1 half, 2 open).",
		}, []string{"target"}),
	}

	m.registry.MustRegister(
		m.cyclesTotal,
		m.rejectionsTotal,
		m.pumpStartsTotal,
		m.pumpStopsTotal,
		m.recoveryAttempts,
		m.systemHealthy,
		m.emergencyStop,
		m.pumpActive,
		m.soilMoisture,
		m.threshold,
		m.dailyCount,
		m.cbState,
	)

	m.systemHealthy.Set(1)
	m.cbState.WithLabelValues("thingspeak").Set(0)

	return m
}

// Handler serves the registered collectors for scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Cycle records one completed control cycle.
func (m *Metrics) Cycle() {
	if m == nil {
		return
	}
	m.cyclesTotal.Inc()
}

// SensorRejected records one rejected reading.
func (m *Metrics) SensorRejected(channel, reason string) {
	if m == nil {
		return
	}
	m.rejectionsTotal.WithLabelValues(channel, reason).Inc()
}

// PumpStarted records a pump start.
func (m *Metrics) PumpStarted(manual bool) {
	if m == nil {
		return
	}
	mode := "auto"
	if manual {
		mode = "manual"
	}
	m.pumpStartsTotal.WithLabelValues(mode).Inc()
}

// PumpStopped records a pump stop with its reason.
func (m *Metrics) PumpStopped(reason string) {
	if m == nil {
		return
	}
	m.pumpStopsTotal.WithLabelValues(reason).Inc()
}

// RecoveryAttempt records one sensor recovery attempt.
func (m *Metrics) RecoveryAttempt() {
	if m == nil {
		return
	}
	m.recoveryAttempts.Inc()
}

// ObserveCycleState updates the gauges after a control cycle.
func (m *Metrics) ObserveCycleState(healthy, emergency, pumpOn bool, soil, threshold float64, dailyCount int) {
	if m == nil {
		return
	}
	m.systemHealthy.Set(boolGauge(healthy))
	m.emergencyStop.Set(boolGauge(emergency))
	m.pumpActive.Set(boolGauge(pumpOn))
	m.soilMoisture.Set(soil)
	m.threshold.Set(threshold)
	m.dailyCount.Set(float64(dailyCount))
}

// SetCircuitBreakerState records a breaker state transition.
func (m *Metrics) SetCircuitBreakerState(target string, state float64) {
	if m == nil {
		return
	}
	m.cbState.WithLabelValues(target).Set(state)
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
