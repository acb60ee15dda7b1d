package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/moffa90/go-devlink/metrics"
)

type MetricsConfig struct {
	Namespace    string
	SubExchange  string
	SubWatcher   string
	SubFirmware  string
	LatencyScale []float64
}

func DefaultConfig() *MetricsConfig {
	return &MetricsConfig{
		Namespace:    "devlink",
		SubExchange:  "exchange",
		SubWatcher:   "watcher",
		SubFirmware:  "firmware",
		LatencyScale: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
	}
}

// watcherStates is the label set of the one-hot watcher state gauge.
var watcherStates = []string{
	metrics.StateListening,
	metrics.StateMonitoring,
	metrics.StatePaused,
	metrics.StateStopped,
}

type Metrics struct {
	reg    prometheus.Registerer
	config *MetricsConfig

	// exchange
	exchangeTotal    *prometheus.CounterVec
	exchangeDuration *prometheus.HistogramVec
	schemaDrift      *prometheus.CounterVec

	// watcher
	watcherState *prometheus.GaugeVec

	// firmware
	flashPercent *prometheus.GaugeVec
	flashResults *prometheus.CounterVec
}

func New(reg prometheus.Registerer, config *MetricsConfig) *Metrics {
	met := &Metrics{
		reg:    reg,
		config: config,

		exchangeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace, Subsystem: config.SubExchange, Name: "total", Help: "Command exchanges"}, []string{"family", "transport", "result"}),
		exchangeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: config.Namespace, Subsystem: config.SubExchange, Name: "duration_seconds", Help: "Command exchange latency",
			Buckets: config.LatencyScale}, []string{"family", "transport"}),
		schemaDrift: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace, Subsystem: config.SubExchange, Name: "schema_drift_total", Help: "Responses longer than their schema"}, []string{"family", "command"}),

		watcherState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: config.Namespace, Subsystem: config.SubWatcher, Name: "state", Help: "Watcher state, one-hot"}, []string{"watcher", "state"}),

		flashPercent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: config.Namespace, Subsystem: config.SubFirmware, Name: "percent", Help: "Flash phase percent complete"}, []string{"family", "phase"}),
		flashResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace, Subsystem: config.SubFirmware, Name: "results_total", Help: "Firmware update outcomes"}, []string{"family", "path", "result"}),
	}

	reg.MustRegister(met.exchangeTotal, met.exchangeDuration, met.schemaDrift)
	reg.MustRegister(met.watcherState)
	reg.MustRegister(met.flashPercent, met.flashResults)

	return met
}

func (m *Metrics) Exchange(family string, transport string, result string, d time.Duration) {
	m.exchangeTotal.WithLabelValues(family, transport, result).Inc()
	m.exchangeDuration.WithLabelValues(family, transport).Observe(d.Seconds())
}

func (m *Metrics) SchemaDrift(family string, command string) {
	m.schemaDrift.WithLabelValues(family, command).Inc()
}

func (m *Metrics) WatcherState(name string, state string) {
	for _, s := range watcherStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.watcherState.WithLabelValues(name, s).Set(v)
	}
}

func (m *Metrics) FlashProgress(family string, phase string, percent int) {
	m.flashPercent.WithLabelValues(family, phase).Set(float64(percent))
}

func (m *Metrics) FlashResult(family string, path string, ok bool) {
	result := "failure"
	if ok {
		result = "success"
	}
	m.flashResults.WithLabelValues(family, path, result).Inc()
}
