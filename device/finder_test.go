package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moffa90/go-devlink/protocol"
	"github.com/moffa90/go-devlink/transport"
	"github.com/moffa90/go-devlink/transport/transporttest"
)

func fakeCandidate(id string, b *transporttest.Backend, discarded *[]string) Candidate {
	return Candidate{
		Transport: "fake",
		ID:        id,
		Open:      func() (transport.Backend, error) { return b, nil },
		Discard: func() {
			if discarded != nil {
				*discarded = append(*discarded, id)
			}
		},
	}
}

func staticEnumerator(c ...Candidate) Enumerator {
	return func(*protocol.Family) ([]Candidate, error) { return c, nil }
}

func failingEnumerator(err error) Enumerator {
	return func(*protocol.Family) ([]Candidate, error) { return nil, err }
}

func TestFinder(t *testing.T) {
	connected := func() *transporttest.Backend { return transporttest.NewBackend() }
	disconnected := func() *transporttest.Backend {
		b := transporttest.NewBackend()
		b.SetConnected(false)
		return b
	}

	tests := []struct {
		name        string
		enumerators func(discarded *[]string) []Enumerator
		wantErr     error
		wantDiscard []string
	}{
		{
			name: "no candidates",
			enumerators: func(*[]string) []Enumerator {
				return []Enumerator{staticEnumerator()}
			},
			wantErr: ErrNotFound,
		},
		{
			name: "one live candidate",
			enumerators: func(d *[]string) []Enumerator {
				return []Enumerator{staticEnumerator(fakeCandidate("a", connected(), d))}
			},
		},
		{
			name: "candidate not answering",
			enumerators: func(d *[]string) []Enumerator {
				return []Enumerator{staticEnumerator(fakeCandidate("a", disconnected(), d))}
			},
			wantErr: ErrNotFound,
		},
		{
			name: "two candidates on one transport",
			enumerators: func(d *[]string) []Enumerator {
				return []Enumerator{staticEnumerator(
					fakeCandidate("a", connected(), d),
					fakeCandidate("b", connected(), d),
				)}
			},
			wantErr:     ErrAmbiguous,
			wantDiscard: []string{"a", "b"},
		},
		{
			name: "candidates on two transports",
			enumerators: func(d *[]string) []Enumerator {
				return []Enumerator{
					staticEnumerator(fakeCandidate("hid", connected(), d)),
					staticEnumerator(fakeCandidate("i2c", connected(), d)),
				}
			},
			wantErr:     ErrAmbiguous,
			wantDiscard: []string{"hid", "i2c"},
		},
		{
			name: "bridge reports several devices",
			enumerators: func(d *[]string) []Enumerator {
				return []Enumerator{
					staticEnumerator(fakeCandidate("hid", connected(), d)),
					failingEnumerator(transport.ErrMultipleDevices),
				}
			},
			wantErr:     ErrAmbiguous,
			wantDiscard: []string{"hid"},
		},
		{
			name: "failing enumerator is skipped",
			enumerators: func(d *[]string) []Enumerator {
				return []Enumerator{
					failingEnumerator(errors.New("hid init")),
					staticEnumerator(fakeCandidate("i2c", connected(), d)),
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var discarded []string
			f := NewFinder(protocol.Display,
				WithEnumerators(tt.enumerators(&discarded)...),
				WithWarmup(0),
			)

			client, err := f.Find(context.Background())
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				assert.Nil(t, client)
			} else {
				require.NoError(t, err)
				require.NotNil(t, client)
				assert.Same(t, protocol.Display, client.Family())
			}
			assert.Equal(t, tt.wantDiscard, discarded)
		})
	}
}

func TestFinderClosesDeadCandidate(t *testing.T) {
	b := transporttest.NewBackend()
	b.SetConnected(false)
	f := NewFinder(protocol.Display,
		WithEnumerators(staticEnumerator(fakeCandidate("a", b, nil))),
		WithWarmup(0),
	)

	_, err := f.Find(context.Background())
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, b.Closed())
}

func TestFinderWarmupOnce(t *testing.T) {
	f := NewFinder(protocol.Display,
		WithEnumerators(func(*protocol.Family) ([]Candidate, error) {
			return []Candidate{fakeCandidate("a", transporttest.NewBackend(), nil)}, nil
		}),
		WithWarmup(20*time.Millisecond),
	)

	start := time.Now()
	_, err := f.Find(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.True(t, f.warmedUp)

	start = time.Now()
	_, err = f.Find(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 20*time.Millisecond)
}

func TestFinderWarmupCancelled(t *testing.T) {
	var discarded []string
	f := NewFinder(protocol.Display,
		WithEnumerators(staticEnumerator(fakeCandidate("a", transporttest.NewBackend(), &discarded))),
		WithWarmup(time.Hour),
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Find(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, f.warmedUp)
	assert.Equal(t, []string{"a"}, discarded)
}

func TestFinderPassesClientOptions(t *testing.T) {
	b := transporttest.NewBackend().Respond(make([]byte, protocol.LogPartSize))
	f := NewFinder(protocol.IR,
		WithEnumerators(staticEnumerator(fakeCandidate("a", b, nil))),
		WithWarmup(0),
		WithClientOptions(WithLogTimeout(5*time.Millisecond)),
	)

	c, err := f.Find(context.Background())
	require.NoError(t, err)

	_, err = c.ReadLogChunk(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5*time.Millisecond, b.Exchanges()[0].Timeout)
}
