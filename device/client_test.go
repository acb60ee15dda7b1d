package device

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moffa90/go-devlink/metrics"
	"github.com/moffa90/go-devlink/protocol"
	"github.com/moffa90/go-devlink/transport"
	"github.com/moffa90/go-devlink/transport/transporttest"
)

type recordingMetrics struct {
	metrics.Noop
	mu      sync.Mutex
	results []string
	drift   []string
}

func (m *recordingMetrics) Exchange(_, _, result string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, result)
}

func (m *recordingMetrics) SchemaDrift(_, command string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drift = append(m.drift, command)
}

func versionBytes(extra int) []byte {
	b := make([]byte, protocol.MicroVersionSize+extra)
	b[0], b[1] = 3, 1
	copy(b[2:], "v3.1")
	return b
}

func TestSendDecodes(t *testing.T) {
	backend := transporttest.NewBackend().Respond(versionBytes(0))
	met := &recordingMetrics{}
	c := NewClient(backend, protocol.Display, WithMetrics(met))

	v, err := c.MicroVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &protocol.MicroVersion{Major: 3, Minor: 1, GitVersion: "v3.1"}, v)

	ex := backend.Exchanges()
	require.Len(t, ex, 1)
	assert.Equal(t, []byte{0x01}, ex[0].Write)
	assert.Equal(t, protocol.MicroVersionSize, ex[0].ReadSize)
	assert.Equal(t, DefaultCommandTimeout, ex[0].Timeout)
	assert.Equal(t, []string{metrics.ResultOK}, met.results)
}

func TestSendSchemaDrift(t *testing.T) {
	backend := transporttest.NewBackend().Respond(versionBytes(6))
	met := &recordingMetrics{}
	c := NewClient(backend, protocol.Display, WithMetrics(met))

	v, err := c.MicroVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint8(3), v.Major)
	assert.Equal(t, []string{"version"}, met.drift)
}

func TestSendMalformed(t *testing.T) {
	backend := transporttest.NewBackend().Respond(versionBytes(0)[:20])
	met := &recordingMetrics{}
	c := NewClient(backend, protocol.Display, WithMetrics(met))

	_, err := c.MicroVersion(context.Background())
	var malformed *protocol.MalformedResponseError
	require.True(t, errors.As(err, &malformed), "got %v", err)
	assert.Equal(t, 20, malformed.Got)
	assert.Equal(t, []string{metrics.ResultMalformed}, met.results)
	assert.Empty(t, met.drift)
}

func TestSendTransportErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		result     string
		timeout    bool
		disconnect bool
	}{
		{"timeout", transport.ErrTimeout, metrics.ResultTimeout, true, false},
		{"not connected", transport.ErrNotConnected, metrics.ResultNotConnected, false, true},
		{"device error", &transport.DeviceError{Op: "read", Err: errors.New("io")}, metrics.ResultError, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := transporttest.NewBackend().Fail(tt.err)
			met := &recordingMetrics{}
			c := NewClient(backend, protocol.Display, WithMetrics(met))

			_, err := c.SerialNumber(context.Background())
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.err))
			assert.Equal(t, tt.timeout, IsTimeout(err))
			assert.Equal(t, tt.disconnect, IsDisconnected(err))
			assert.Equal(t, []string{tt.result}, met.results)
		})
	}
}

func TestSendUnsupported(t *testing.T) {
	backend := transporttest.NewBackend()
	c := NewClient(backend, protocol.IR)

	_, err := c.HDMIState(context.Background())
	assert.True(t, errors.Is(err, protocol.ErrUnsupported))
	assert.Empty(t, backend.Exchanges())
}

func TestRebootClosesSession(t *testing.T) {
	tests := []struct {
		name   string
		reboot func(*Client, context.Context) error
		opcode byte
	}{
		{"firmware", (*Client).Reboot, 0x02},
		{"bootloader", (*Client).RebootBootloader, 0x03},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := transporttest.NewBackend()
			c := NewClient(backend, protocol.Display)

			require.NoError(t, tt.reboot(c, context.Background()))

			ex := backend.Exchanges()
			require.Len(t, ex, 1)
			assert.Equal(t, []byte{tt.opcode}, ex[0].Write)
			assert.Equal(t, 0, ex[0].ReadSize)
			assert.True(t, backend.Closed())
		})
	}
}

func TestReadLogChunkUsesLogTimeout(t *testing.T) {
	backend := transporttest.NewBackend().Respond(make([]byte, protocol.LogPartSize))
	c := NewClient(backend, protocol.IR)

	part, err := c.ReadLogChunk(context.Background())
	require.NoError(t, err)
	assert.True(t, part.Finished)
	assert.Equal(t, []byte{0x04}, backend.Exchanges()[0].Write)
	assert.Equal(t, DefaultLogTimeout, backend.Exchanges()[0].Timeout)
}

func TestStatusCommands(t *testing.T) {
	backend := transporttest.NewBackend().
		Respond([]byte{0x00}).
		Respond([]byte{0x02}).
		Respond([]byte{0x00})
	c := NewClient(backend, protocol.Display)
	ctx := context.Background()

	require.NoError(t, c.FPGAFlashStart(ctx, 1024))

	err := c.FPGAFlashProgram(ctx, 0, []byte{1, 2, 3})
	var se *protocol.StatusError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, byte(0x02), se.Status)
	assert.Equal(t, "fpga flash program", se.Operation)

	require.NoError(t, c.FPGAFlashEnd(ctx))

	ex := backend.Exchanges()
	require.Len(t, ex, 3)
	assert.Equal(t, []byte{0x05, 0x00, 0x04, 0x00, 0x00}, ex[0].Write)
	assert.Equal(t, []byte{0x06, 0, 0, 0, 0, 3, 0, 1, 2, 3}, ex[1].Write)
	assert.Equal(t, []byte{0x07}, ex[2].Write)
}

func TestSendSimpleRejectsNonStatus(t *testing.T) {
	backend := transporttest.NewBackend().Respond(versionBytes(0))
	c := NewClient(backend, protocol.Display)

	_, err := c.SendSimple(context.Background(), protocol.OpVersion, nil, 0)
	assert.Error(t, err)
}

func TestTypedQueries(t *testing.T) {
	backend := transporttest.NewBackend().
		Respond([]byte{0x05, 0x34, 0x12}).
		Respond([]byte{0x42}).
		Respond([]byte{0x01, 0x2C, 0x01, 0x00, 0x00}).
		Respond([]byte{0x10, 0x00, 0x01, 0x00})
	c := NewClient(backend, protocol.Display)
	ctx := context.Background()

	target, err := protocol.LookupI2CTarget("fpga")
	require.NoError(t, err)

	r, err := c.I2CRead(ctx, target, 0x0010)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), r.Value)

	level, err := c.AdjustBrightness(ctx, -1)
	require.NoError(t, err)
	assert.Equal(t, uint8(0x42), level)

	ds, err := c.DisplayState(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(300), ds.Temperature)

	es, err := c.EDIDState(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint16(16), es.NumStartConditions)

	ex := backend.Exchanges()
	assert.Equal(t, []byte{0x0D, 0x00, 0x03, 0x10, 0x00, 0x00, 0x00}, ex[0].Write)
	assert.Equal(t, []byte{0x08, 0xFF}, ex[1].Write)
}

// serialBackend fails the test if two exchanges overlap.
type serialBackend struct {
	t        *testing.T
	inFlight atomic.Int32
	count    atomic.Int32
}

func (b *serialBackend) Exchange(_ context.Context, _ []byte, readSize int, _ time.Duration) ([]byte, error) {
	if b.inFlight.Add(1) != 1 {
		b.t.Error("two exchanges in flight")
	}
	time.Sleep(time.Millisecond)
	b.count.Add(1)
	b.inFlight.Add(-1)
	return make([]byte, readSize), nil
}

func (b *serialBackend) IsConnected() bool { return true }
func (b *serialBackend) Close() error      { return nil }
func (b *serialBackend) Kind() string      { return "serial" }

func TestOneExchangeInFlight(t *testing.T) {
	backend := &serialBackend{t: t}
	c := NewClient(backend, protocol.Display)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Send(context.Background(), protocol.OpEDIDState, nil, 0)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(8), backend.count.Load())
}

func TestClientOverHID(t *testing.T) {
	dev := transporttest.NewHIDDevice(func(req []byte) []byte {
		if req[0] == 0x01 {
			return versionBytes(0)
		}
		return nil
	})
	backend := transport.NewHIDBackend(dev, "hid-0", func() ([]string, error) { return []string{"hid-0"}, nil })
	c := NewClient(backend, protocol.Display)

	assert.True(t, c.IsConnected())
	assert.Equal(t, "hid", c.Transport())
	assert.NotEmpty(t, c.Session())

	v, err := c.MicroVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v3.1", v.GitVersion)
}

func TestClientRebootWhileWatched(t *testing.T) {
	dev := transporttest.NewHIDDevice(nil)
	backend := transport.NewHIDBackend(dev, "hid-0", func() ([]string, error) { return []string{"hid-0"}, nil })
	c := NewClient(backend, protocol.Display)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
				c.IsConnected()
			}
		}
	}()

	time.Sleep(time.Millisecond)
	require.NoError(t, c.Reboot(context.Background()))
	close(stop)
	<-done

	assert.False(t, c.IsConnected())
}
