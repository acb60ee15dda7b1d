package transport_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moffa90/go-devlink/protocol"
	"github.com/moffa90/go-devlink/transport"
	"github.com/moffa90/go-devlink/transport/transporttest"
)

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + 3)
	}
	return b
}

func TestReportRoundTrip(t *testing.T) {
	for n := 0; n <= protocol.MaxTxSize; n++ {
		payload := pattern(n)

		reports, err := transport.EncodeReports(transport.ReportIDOut, payload)
		require.NoError(t, err)
		require.Len(t, reports, transport.ReportCount(n), "size %d", n)

		asm := transport.NewReportAssembler(transport.ReportIDOut)
		for i, r := range reports {
			require.Len(t, r, transport.ReportSize)
			done, err := asm.Add(r)
			require.NoError(t, err)
			assert.Equal(t, i == len(reports)-1, done, "size %d report %d", n, i)
		}

		if !bytes.Equal(payload, asm.Payload()) {
			t.Fatalf("size %d: round trip mismatch", n)
		}
	}
}

func TestEncodeReportsLayout(t *testing.T) {
	reports, err := transport.EncodeReports(transport.ReportIDOut, pattern(70))
	require.NoError(t, err)
	require.Len(t, reports, 2)

	// First report: id, version, total length.
	assert.Equal(t, []byte{0x02, 0x00, 0x01, 0x00, 70, 0x00}, reports[0][:6])
	assert.Equal(t, pattern(70)[:58], reports[0][6:])

	// Continuation: id and version only, zero padded.
	assert.Equal(t, []byte{0x02, 0x00, 0x01, 0x00}, reports[1][:4])
	assert.Equal(t, pattern(70)[58:], reports[1][4:16])
	assert.Equal(t, make([]byte, 48), reports[1][16:])
}

func TestEncodeReportsTooLarge(t *testing.T) {
	_, err := transport.EncodeReports(transport.ReportIDOut, make([]byte, protocol.MaxTxSize+1))
	assert.True(t, errors.Is(err, transport.ErrPayloadTooLarge))
}

func TestAssemblerRejects(t *testing.T) {
	reports, err := transport.EncodeReports(transport.ReportIDIn, []byte{1, 2, 3})
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"wrong report id", func(r []byte) []byte { r[0] = 0x09; return r }},
		{"wrong version", func(r []byte) []byte { r[2] = 0x02; return r }},
		{"short report", func(r []byte) []byte { return r[:10] }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tt.mutate(append([]byte(nil), reports[0]...))
			_, err := transport.NewReportAssembler(transport.ReportIDIn).Add(r)
			assert.Error(t, err)
		})
	}
}

func echoDevice() *transporttest.HIDDevice {
	return transporttest.NewHIDDevice(func(req []byte) []byte {
		return append([]byte(nil), req...)
	})
}

func onePath(path string) func() ([]string, error) {
	return func() ([]string, error) { return []string{path}, nil }
}

func TestHIDExchange(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{"single report", 10},
		{"exactly one report", 58},
		{"two reports", 59},
		{"maximum", protocol.MaxTxSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := echoDevice()
			b := transport.NewHIDBackend(dev, "p", onePath("p"))

			req := pattern(tt.size)
			resp, err := b.Exchange(context.Background(), req, tt.size, 50*time.Millisecond)
			require.NoError(t, err)
			assert.Equal(t, req, resp)
			assert.Equal(t, transport.ReportCount(tt.size), dev.Writes())
		})
	}
}

func TestHIDExchangeNoResponse(t *testing.T) {
	dev := transporttest.NewHIDDevice(nil)
	b := transport.NewHIDBackend(dev, "p", onePath("p"))

	resp, err := b.Exchange(context.Background(), []byte{0x02}, 0, time.Millisecond)
	assert.NoError(t, err)
	assert.Nil(t, resp)
	assert.Equal(t, 1, dev.Writes())
}

func TestHIDExchangeTimeout(t *testing.T) {
	dev := transporttest.NewHIDDevice(nil)
	b := transport.NewHIDBackend(dev, "p", onePath("p"), transport.WithReadRetries(2))

	_, err := b.Exchange(context.Background(), []byte{0x01}, 58, time.Millisecond)
	assert.True(t, errors.Is(err, transport.ErrTimeout), "got %v", err)
}

func TestHIDLostContinuationReport(t *testing.T) {
	dev := echoDevice()
	dev.Drop = func(i int) bool { return i == 1 }
	b := transport.NewHIDBackend(dev, "p", onePath("p"))

	// Only the byte count reveals the loss.
	_, err := b.Exchange(context.Background(), pattern(200), 200, time.Millisecond)
	assert.True(t, errors.Is(err, transport.ErrTimeout), "got %v", err)
}

func TestHIDWriteError(t *testing.T) {
	dev := echoDevice()
	dev.WriteErr = errors.New("pipe")
	b := transport.NewHIDBackend(dev, "p", onePath("p"))

	_, err := b.Exchange(context.Background(), []byte{0x01}, 1, time.Millisecond)
	var de *transport.DeviceError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "write", de.Op)
}

func TestHIDClosed(t *testing.T) {
	b := transport.NewHIDBackend(echoDevice(), "p", onePath("p"))
	require.NoError(t, b.Close())

	_, err := b.Exchange(context.Background(), []byte{0x01}, 1, time.Millisecond)
	assert.True(t, errors.Is(err, transport.ErrNotConnected))
	assert.False(t, b.IsConnected())
	assert.NoError(t, b.Close())
}

func TestHIDIsConnected(t *testing.T) {
	tests := []struct {
		name  string
		paths []string
		err   error
		want  bool
	}{
		{"same path", []string{"p"}, nil, true},
		{"different path", []string{"q"}, nil, false},
		{"gone", nil, nil, false},
		{"two devices", []string{"p", "q"}, nil, false},
		{"enumeration error", nil, errors.New("usb"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list := func() ([]string, error) { return tt.paths, tt.err }
			b := transport.NewHIDBackend(echoDevice(), "p", list)
			assert.Equal(t, tt.want, b.IsConnected())
		})
	}
}

func TestHIDCloseDuringLivenessChecks(t *testing.T) {
	b := transport.NewHIDBackend(echoDevice(), "p", onePath("p"))

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
				b.IsConnected()
				_ = b.Path()
			}
		}
	}()

	time.Sleep(time.Millisecond)
	require.NoError(t, b.Close())
	close(stop)
	<-done

	assert.False(t, b.IsConnected())
	assert.Empty(t, b.Path())
}

func TestHIDCloseWaitsForExchange(t *testing.T) {
	b := transport.NewHIDBackend(echoDevice(), "p", onePath("p"))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_, err := b.Exchange(context.Background(), []byte{0x01, byte(j)}, 2, 10*time.Millisecond)
				if err != nil {
					assert.True(t, errors.Is(err, transport.ErrNotConnected), "unexpected error %v", err)
					return
				}
			}
		}()
	}

	time.Sleep(time.Millisecond)
	require.NoError(t, b.Close())
	wg.Wait()
}

func TestReportCount(t *testing.T) {
	assert.Equal(t, 1, transport.ReportCount(0))
	assert.Equal(t, 1, transport.ReportCount(58))
	assert.Equal(t, 2, transport.ReportCount(59))
	assert.Equal(t, 2, transport.ReportCount(118))
	assert.Equal(t, 3, transport.ReportCount(119))
	assert.Equal(t, 8, transport.ReportCount(protocol.MaxTxSize))
}
