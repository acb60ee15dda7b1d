package statsd

import (
	"fmt"
	"time"

	"github.com/smira/go-statsd"
)

type MetricsConfig struct {
	Namespace     string
	SubExchange   string
	SubWatcher    string
	SubFirmware   string
	FlushInterval time.Duration
}

func DefaultConfig() *MetricsConfig {
	return &MetricsConfig{
		Namespace:     "devlink",
		SubExchange:   "exchange",
		SubWatcher:    "watcher",
		SubFirmware:   "firmware",
		FlushInterval: 100 * time.Millisecond,
	}
}

type Metrics struct {
	config *MetricsConfig
	client *statsd.Client
}

func New(addr string, config *MetricsConfig) *Metrics {
	client := statsd.NewClient(addr,
		statsd.MaxPacketSize(1400),
		statsd.FlushInterval(config.FlushInterval),
		statsd.TagStyle(statsd.TagFormatDatadog),
		statsd.MetricPrefix(config.Namespace+"."))

	return &Metrics{
		config: config,
		client: client,
	}
}

// Close flushes buffered metrics and releases the socket.
func (m *Metrics) Close() error {
	return m.client.Close()
}

func (m *Metrics) stat(subsystem string, name string) string {
	return fmt.Sprintf("%s.%s", subsystem, name)
}

func (m *Metrics) Exchange(family string, transport string, result string, d time.Duration) {
	tags := []statsd.Tag{statsd.StringTag("family", family), statsd.StringTag("transport", transport)}
	m.client.Incr(m.stat(m.config.SubExchange, "total"), 1, append(tags, statsd.StringTag("result", result))...)
	m.client.PrecisionTiming(m.stat(m.config.SubExchange, "duration"), d, tags...)
}

func (m *Metrics) SchemaDrift(family string, command string) {
	m.client.Incr(m.stat(m.config.SubExchange, "schema_drift"), 1,
		statsd.StringTag("family", family), statsd.StringTag("command", command))
}

func (m *Metrics) WatcherState(name string, state string) {
	m.client.Incr(m.stat(m.config.SubWatcher, "transitions"), 1,
		statsd.StringTag("watcher", name), statsd.StringTag("state", state))
}

func (m *Metrics) FlashProgress(family string, phase string, percent int) {
	m.client.Gauge(m.stat(m.config.SubFirmware, "percent"), int64(percent),
		statsd.StringTag("family", family), statsd.StringTag("phase", phase))
}

func (m *Metrics) FlashResult(family string, path string, ok bool) {
	result := "failure"
	if ok {
		result = "success"
	}
	m.client.Incr(m.stat(m.config.SubFirmware, "results"), 1,
		statsd.StringTag("family", family), statsd.StringTag("path", path), statsd.StringTag("result", result))
}
