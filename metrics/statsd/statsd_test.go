package statsd

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moffa90/go-devlink/metrics"
)

var _ metrics.Metrics = (*Metrics)(nil)

func TestMetricsSendsDatagrams(t *testing.T) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer conn.Close()

	m := New(conn.LocalAddr().String(), DefaultConfig())

	m.Exchange("display", "hid", metrics.ResultOK, 3*time.Millisecond)
	m.SchemaDrift("display", "version")
	m.FlashProgress("display", "flashing", 50)
	m.FlashResult("display", "fpga", true)
	require.NoError(t, m.Close())

	var received strings.Builder
	buf := make([]byte, 2048)
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			break
		}
		received.Write(buf[:n])
		if strings.Contains(received.String(), "firmware.results") {
			break
		}
	}

	out := received.String()
	assert.Contains(t, out, "devlink.exchange.total")
	assert.Contains(t, out, "devlink.exchange.schema_drift")
	assert.Contains(t, out, "devlink.firmware.percent")
	assert.Contains(t, out, "devlink.firmware.results")
	assert.Contains(t, out, "family:display")
}
