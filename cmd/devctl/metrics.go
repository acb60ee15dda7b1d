package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/moffa90/go-devlink/config"
	"github.com/moffa90/go-devlink/metrics"
	devprom "github.com/moffa90/go-devlink/metrics/prometheus"
	devstatsd "github.com/moffa90/go-devlink/metrics/statsd"
)

// startMetrics wires every sink conf names. The statsd client is flushed
// by its own goroutine and lives as long as the process.
func startMetrics(conf *config.MetricsSchema) metrics.Metrics {
	var sinks []metrics.Metrics

	if conf.Listen != "" {
		sinks = append(sinks, startPrometheus(conf.Listen, conf.Namespace))
	}

	if conf.Statsd != "" {
		sconf := devstatsd.DefaultConfig()
		if conf.Namespace != "" {
			sconf.Namespace = conf.Namespace
		}
		sinks = append(sinks, devstatsd.New(conf.Statsd, sconf))
	}

	return metrics.Tee(sinks...)
}

func startPrometheus(addr string, namespace string) metrics.Metrics {
	reg := prometheus.NewRegistry()

	conf := devprom.DefaultConfig()
	if namespace != "" {
		conf.Namespace = namespace
	}
	m := devprom.New(reg, conf)

	// Add the default go metrics
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(
		reg,
		promhttp.HandlerOpts{
			// Opt into OpenMetrics to support exemplars.
			EnableOpenMetrics: true,
			// Pass custom registry
			Registry: reg,
		},
	))

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			app.log.Error().Str("addr", addr).Err(err).Msg("metrics server stopped")
		}
	}()

	return m
}
