package prometheus

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/moffa90/go-devlink/metrics"
)

var _ metrics.Metrics = (*Metrics)(nil)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, DefaultConfig())

	m.Exchange("display", "hid", metrics.ResultOK, 3*time.Millisecond)
	m.Exchange("display", "hid", metrics.ResultOK, 4*time.Millisecond)
	m.Exchange("display", "hid", metrics.ResultTimeout, time.Second)
	m.SchemaDrift("display", "version")
	m.WatcherState("connection", metrics.StateListening)
	m.WatcherState("connection", metrics.StateMonitoring)
	m.FlashProgress("display", "flash", 50)
	m.FlashResult("display", "stm32", true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.exchangeTotal.WithLabelValues("display", "hid", metrics.ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.exchangeTotal.WithLabelValues("display", "hid", metrics.ResultTimeout)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.schemaDrift.WithLabelValues("display", "version")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.watcherState.WithLabelValues("connection", metrics.StateListening)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.watcherState.WithLabelValues("connection", metrics.StateMonitoring)))
	assert.Equal(t, 50.0, testutil.ToFloat64(m.flashPercent.WithLabelValues("display", "flash")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.flashResults.WithLabelValues("display", "stm32", "success")))
}
