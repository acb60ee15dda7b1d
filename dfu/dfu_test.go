package dfu

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moffa90/go-devlink/dfuse"
)

func TestLocatorFind(t *testing.T) {
	dev := &Device{VendorID: VendorID, ProductID: ProductID, Bus: 1, Address: 7}

	tests := []struct {
		name    string
		devs    []*Device
		listErr error
		want    *Device
		wantErr error
	}{
		{name: "none", wantErr: ErrNotFound},
		{name: "one", devs: []*Device{dev}, want: dev},
		{name: "two", devs: []*Device{dev, dev}, wantErr: ErrAmbiguous},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotVID, gotPID uint16
			loc := NewLocator(WithList(func(vid, pid uint16) ([]*Device, error) {
				gotVID, gotPID = vid, pid
				return tt.devs, nil
			}))

			got, err := loc.Find(context.Background())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Same(t, tt.want, got)
			assert.Equal(t, uint16(VendorID), gotVID)
			assert.Equal(t, uint16(ProductID), gotPID)
		})
	}
}

func TestLocatorListError(t *testing.T) {
	boom := errors.New("libusb down")
	loc := NewLocator(
		WithIdentity(0x1234, 0x5678),
		WithList(func(vid, pid uint16) ([]*Device, error) {
			assert.Equal(t, uint16(0x1234), vid)
			return nil, boom
		}),
	)

	_, err := loc.Find(context.Background())
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = loc.Find(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDevicePaths(t *testing.T) {
	dev := &Device{VendorID: VendorID, ProductID: ProductID, Bus: 3, Address: 9, Ports: []int{2, 1, 4}}
	assert.Equal(t, "0483:df11", dev.ID())
	assert.Equal(t, "3-2.1.4", dev.PortPath())
	assert.Equal(t, "0483:df11 bus 3 address 9", dev.String())
	assert.Equal(t, "", (&Device{}).PortPath())
}

// fakeTool emulates dfu-util against an in-memory flash.
type fakeTool struct {
	flash   map[uint32][]byte
	corrupt bool
	calls   [][]string
}

func (f *fakeTool) run(ctx context.Context, stdout io.Writer, name string, args ...string) error {
	f.calls = append(f.calls, args)

	var addr, file, mode string
	for i := 0; i < len(args)-1; i++ {
		switch args[i] {
		case "-s":
			addr = args[i+1]
		case "-D", "-U":
			mode, file = args[i], args[i+1]
		}
	}
	parts := strings.Split(addr, ":")
	a, err := strconv.ParseUint(strings.TrimPrefix(parts[0], "0x"), 16, 32)
	if err != nil {
		return err
	}

	label := "Download"
	if mode == "-U" {
		label = "Upload"
	}
	for _, p := range []int{0, 50, 100} {
		fmt.Fprintf(stdout, "%s\t[%s] %3d%%\r", label, strings.Repeat("=", p/4), p)
	}
	fmt.Fprintln(stdout)

	if mode == "-D" {
		data, err := os.ReadFile(file)
		if err != nil {
			return err
		}
		f.flash[uint32(a)] = data
		return nil
	}

	if _, err := os.Stat(file); err == nil {
		return errors.New("cannot overwrite existing file")
	}
	data := append([]byte(nil), f.flash[uint32(a)]...)
	if f.corrupt && len(data) > 0 {
		data[0] ^= 0xFF
	}
	return os.WriteFile(file, data, 0o600)
}

func testImage() *dfuse.Image {
	ramp := make([]byte, 100)
	for i := range ramp {
		ramp[i] = byte(i + 1)
	}
	return &dfuse.Image{Targets: []*dfuse.Target{{
		Elements: []*dfuse.Element{
			{Address: 0x08000000, Data: make([]byte, 100)},
			{Address: 0x08010000, Data: ramp},
		},
	}}}
}

func TestDFUUtilFlashAndVerify(t *testing.T) {
	tool := &fakeTool{flash: map[uint32][]byte{}}
	d := NewDFUUtil(&Device{VendorID: VendorID, ProductID: ProductID, Bus: 1, Ports: []int{3}})
	d.Run = tool.run

	var reports []Progress
	ok, err := d.FlashAndVerify(context.Background(), testImage(), true, true, func(p Progress) {
		reports = append(reports, p)
	})
	require.NoError(t, err)
	assert.True(t, ok)

	want := []Progress{
		{Percent: 0}, {Percent: 25}, {Percent: 50}, {Percent: 75}, {Percent: 100},
		{Finished: true, Percent: 100},
		{Verify: true, Percent: 0}, {Verify: true, Percent: 25}, {Verify: true, Percent: 50},
		{Verify: true, Percent: 75}, {Verify: true, Percent: 100},
		{Verify: true, Finished: true, Percent: 100},
	}
	assert.Equal(t, want, reports)

	require.Len(t, tool.calls, 5)
	assert.Equal(t, []string{"-a", "0", "-s", "0x08000000", "-d", "0483:df11", "-p", "1-3", "-D"}, tool.calls[0][:9])
	assert.Equal(t, "0x08010000:100", tool.calls[3][3])
	assert.Equal(t, "0x08000000:4:leave", tool.calls[4][3])
}

func TestDFUUtilVerifyMismatch(t *testing.T) {
	img := testImage()
	tool := &fakeTool{flash: map[uint32][]byte{}, corrupt: true}
	for _, e := range img.Elements() {
		tool.flash[e.Address] = e.Data
	}
	d := NewDFUUtil(nil)
	d.Run = tool.run

	ok, err := d.FlashAndVerify(context.Background(), img, false, true, nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, tool.calls[0], "0483:df11")
}

func TestDFUUtilNothingRequested(t *testing.T) {
	tool := &fakeTool{flash: map[uint32][]byte{}}
	d := NewDFUUtil(nil)
	d.Run = tool.run

	ok, err := d.FlashAndVerify(context.Background(), testImage(), false, false, nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, tool.calls)

	_, err = d.FlashAndVerify(context.Background(), &dfuse.Image{}, true, true, nil)
	assert.ErrorIs(t, err, dfuse.ErrNoElements)
}

func TestDFUUtilFlashOnly(t *testing.T) {
	tool := &fakeTool{flash: map[uint32][]byte{}}
	d := NewDFUUtil(nil)
	d.Run = tool.run

	ok, err := d.FlashAndVerify(context.Background(), testImage(), true, false, nil)
	require.NoError(t, err)
	assert.False(t, ok, "unverified flash is never reported as verified")
	assert.Len(t, tool.flash, 2)
}

func TestDFUUtilToolError(t *testing.T) {
	d := NewDFUUtil(nil)
	d.Run = func(ctx context.Context, stdout io.Writer, name string, args ...string) error {
		return errors.New("No DFU capable USB device available")
	}

	_, err := d.FlashAndVerify(context.Background(), testImage(), true, true, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "download 0x08000000")
}

func TestDFUUtilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	d := NewDFUUtil(nil)
	d.Run = func(ctx context.Context, stdout io.Writer, name string, args ...string) error {
		cancel()
		return errors.New("signal: killed")
	}

	_, err := d.FlashAndVerify(ctx, testImage(), true, true, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProgressWriter(t *testing.T) {
	var got []float64
	tr := newTracker(200, false, func(p Progress) { got = append(got, p.Percent) })
	w := tr.element(200)

	_, _ = io.WriteString(w, "Opening DFU capable USB device...\n")
	_, _ = io.WriteString(w, "Download\t[====      ]  4")
	_, _ = io.WriteString(w, "0%\rDownload\t[====      ]  40%\r")
	_, _ = io.WriteString(w, "Download\t[==========] 100%\n")

	assert.Equal(t, []float64{0, 40, 100}, got)
}
