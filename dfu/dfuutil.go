package dfu

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/loopholelabs/logging/types"

	"github.com/moffa90/go-devlink/dfuse"
)

// DefaultDFUUtil is the tool looked up on PATH.
const DefaultDFUUtil = "dfu-util"

// Runner runs an external command, streaming its standard output to stdout.
type Runner func(ctx context.Context, stdout io.Writer, name string, args ...string) error

// ExecRunner runs commands with os/exec. Standard error is folded into the
// returned error.
func ExecRunner(ctx context.Context, stdout io.Writer, name string, args ...string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := bytes.TrimSpace(stderr.Bytes()); len(msg) > 0 {
			return fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// DFUUtil drives dfu-util. The zero value is not usable, use NewDFUUtil.
type DFUUtil struct {
	// Path of the dfu-util binary
	Path string

	// Device selects the bootloader; nil lets dfu-util pick by identity
	Device *Device

	// Run executes dfu-util
	Run Runner

	// Logger receives tool output at Trace level (optional)
	Logger types.Logger
}

// NewDFUUtil returns a driver for dev.
func NewDFUUtil(dev *Device) *DFUUtil {
	return &DFUUtil{
		Path:   DefaultDFUUtil,
		Device: dev,
		Run:    ExecRunner,
	}
}

// FlashAndVerify implements Driver.
func (d *DFUUtil) FlashAndVerify(ctx context.Context, img *dfuse.Image, flash, verify bool, progress ProgressFunc) (bool, error) {
	elems := img.Elements()
	if len(elems) == 0 {
		return false, dfuse.ErrNoElements
	}
	if !flash && !verify {
		return false, nil
	}
	if progress == nil {
		progress = func(Progress) {}
	}

	dir, err := os.MkdirTemp("", "dfu-")
	if err != nil {
		return false, err
	}
	defer func() { _ = os.RemoveAll(dir) }()

	if flash {
		if err := d.download(ctx, dir, img, progress); err != nil {
			return false, err
		}
		progress(Progress{Finished: true, Percent: 100})
	}

	ok := false
	if verify {
		ok, err = d.verify(ctx, dir, img, progress)
		if err != nil {
			return false, err
		}
		progress(Progress{Verify: true, Finished: true, Percent: 100})
	}

	if err := d.leave(ctx, dir, img); err != nil && d.Logger != nil {
		d.Logger.Warn().Err(err).Msg("failed to leave dfu mode")
	}

	return ok, nil
}

func (d *DFUUtil) download(ctx context.Context, dir string, img *dfuse.Image, progress ProgressFunc) error {
	tr := newTracker(img.Size(), false, progress)

	for i, t := range img.Targets {
		for j, e := range t.Elements {
			file := filepath.Join(dir, fmt.Sprintf("t%d-e%d.bin", i, j))
			if err := os.WriteFile(file, e.Data, 0o600); err != nil {
				return err
			}

			args := d.args(t.AltSetting, fmt.Sprintf("0x%08X", e.Address), "-D", file)
			if err := d.run(ctx, tr.element(len(e.Data)), args); err != nil {
				return fmt.Errorf("download 0x%08X: %w", e.Address, err)
			}
		}
	}
	return nil
}

func (d *DFUUtil) verify(ctx context.Context, dir string, img *dfuse.Image, progress ProgressFunc) (bool, error) {
	tr := newTracker(img.Size(), true, progress)
	ok := true

	for i, t := range img.Targets {
		for j, e := range t.Elements {
			// dfu-util refuses to overwrite an existing upload file.
			file := filepath.Join(dir, fmt.Sprintf("t%d-e%d.up", i, j))

			args := d.args(t.AltSetting, fmt.Sprintf("0x%08X:%d", e.Address, len(e.Data)), "-U", file)
			if err := d.run(ctx, tr.element(len(e.Data)), args); err != nil {
				return false, fmt.Errorf("upload 0x%08X: %w", e.Address, err)
			}

			got, err := os.ReadFile(file)
			if err != nil {
				return false, err
			}
			if !bytes.Equal(got, e.Data) {
				if d.Logger != nil {
					d.Logger.Error().
						Str("address", fmt.Sprintf("0x%08X", e.Address)).
						Int("offset", mismatchAt(got, e.Data)).
						Msg("verify mismatch")
				}
				ok = false
			}
		}
	}
	return ok, nil
}

// leave reads back the first word of the image with the leave modifier so
// the bootloader jumps to the application.
func (d *DFUUtil) leave(ctx context.Context, dir string, img *dfuse.Image) error {
	t := img.Targets[0]
	for _, tt := range img.Targets {
		if len(tt.Elements) > 0 {
			t = tt
			break
		}
	}
	addr := t.Elements[0].Address
	file := filepath.Join(dir, "leave.up")
	return d.run(ctx, io.Discard, d.args(t.AltSetting, fmt.Sprintf("0x%08X:4:leave", addr), "-U", file))
}

func (d *DFUUtil) args(alt byte, address string, rest ...string) []string {
	args := []string{"-a", strconv.Itoa(int(alt)), "-s", address}
	if d.Device != nil {
		args = append(args, "-d", d.Device.ID())
		if p := d.Device.PortPath(); p != "" {
			args = append(args, "-p", p)
		}
	} else {
		args = append(args, "-d", fmt.Sprintf("%04x:%04x", VendorID, ProductID))
	}
	return append(args, rest...)
}

func (d *DFUUtil) run(ctx context.Context, out io.Writer, args []string) error {
	if d.Logger != nil {
		d.Logger.Debug().
			Str("tool", d.Path).
			Str("args", fmt.Sprint(args)).
			Msg("running")
	}
	w := out
	if d.Logger != nil {
		w = io.MultiWriter(out, &traceWriter{log: d.Logger})
	}
	err := d.Run(ctx, w, d.Path, args...)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func mismatchAt(got, want []byte) int {
	for i := range want {
		if i >= len(got) || got[i] != want[i] {
			return i
		}
	}
	return len(want)
}

var percentPattern = regexp.MustCompile(`(\d{1,3})%`)

// tracker turns per-element dfu-util percentages into one percentage over
// the whole image.
type tracker struct {
	total    int
	done     int
	verify   bool
	progress ProgressFunc
	last     float64
}

func newTracker(total int, verify bool, progress ProgressFunc) *tracker {
	t := &tracker{total: total, verify: verify, progress: progress, last: -1}
	t.report(0)
	return t
}

// element returns a writer that parses the tool output for an element of
// size bytes. The element counts as done once the next one starts.
func (t *tracker) element(size int) io.Writer {
	w := &progressWriter{t: t, base: t.done, size: size}
	t.done += size
	return w
}

func (t *tracker) report(bytesDone float64) {
	pct := 0.0
	if t.total > 0 {
		pct = bytesDone / float64(t.total) * 100
	}
	if pct <= t.last {
		return
	}
	t.last = pct
	t.progress(Progress{Verify: t.verify, Percent: pct})
}

// progressWriter parses dfu-util output line by line. The progress bar is
// redrawn with carriage returns, so '\r' ends a line too.
type progressWriter struct {
	t          *tracker
	base, size int
	buf        []byte
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexAny(w.buf, "\r\n")
		if i < 0 {
			return len(p), nil
		}
		w.line(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
}

func (w *progressWriter) line(b []byte) {
	m := percentPattern.FindSubmatch(b)
	if m == nil {
		return
	}
	pct, err := strconv.Atoi(string(m[1]))
	if err != nil || pct > 100 {
		return
	}
	w.t.report(float64(w.base) + float64(w.size)*float64(pct)/100)
}

type traceWriter struct {
	log types.Logger
}

func (w *traceWriter) Write(p []byte) (int, error) {
	w.log.Trace().Str("output", string(p)).Msg("dfu-util")
	return len(p), nil
}

var _ Driver = (*DFUUtil)(nil)
