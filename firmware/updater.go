package firmware

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/moffa90/go-devlink/device"
	"github.com/moffa90/go-devlink/dfu"
	"github.com/moffa90/go-devlink/dfuse"
	"github.com/moffa90/go-devlink/protocol"
)

// Update paths, as reported to metrics.
const (
	PathSTM32 = "stm32"
	PathFPGA  = "fpga"
)

// BootloaderLocator finds the attached DFU bootloader. *dfu.Locator
// implements it.
type BootloaderLocator interface {
	Find(ctx context.Context) (*dfu.Device, error)
}

// Updater orchestrates firmware updates.
//
// An Updater runs one update at a time per device; it does not serialise
// concurrent calls itself.
type Updater struct {
	locator BootloaderLocator
	config  Config
}

// New creates a new Updater that finds the bootloader with locator.
//
// Example:
//
//	u := firmware.New(dfu.NewLocator(),
//	    firmware.WithLogger(log),
//	    firmware.WithSuspenders(connWatcher, logWatcher),
//	)
func New(locator BootloaderLocator, opts ...Option) *Updater {
	if locator == nil {
		panic("locator cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Driver == nil {
		log := cfg.Logger
		cfg.Driver = func(dev *dfu.Device) dfu.Driver {
			d := dfu.NewDFUUtil(dev)
			d.Logger = log
			return d
		}
	}

	return &Updater{
		locator: locator,
		config:  cfg,
	}
}

// UpdateSTM32 programs and verifies the DfuSe image at path.
//
// When client is not nil the device is first rebooted into its bootloader;
// the client is closed by the reboot. When it is nil the bootloader must
// already be attached. Success requires the read back to match.
//
// Example:
//
//	err := u.UpdateSTM32(ctx, client, "firmware.dfu")
func (u *Updater) UpdateSTM32(ctx context.Context, client *device.Client, path string) error {
	return u.stm32(ctx, client, path, true)
}

// VerifySTM32 compares the microcontroller flash with the DfuSe image at
// path without programming it.
func (u *Updater) VerifySTM32(ctx context.Context, client *device.Client, path string) error {
	return u.stm32(ctx, client, path, false)
}

func (u *Updater) stm32(ctx context.Context, client *device.Client, path string, flash bool) error {
	start := time.Now()
	family := familyOf(client)

	if client == nil {
		if _, err := u.locator.Find(ctx); err != nil {
			return u.fail(family, PathSTM32, fmt.Errorf("%w: %v", ErrNoDevice, err))
		}
	}

	img, err := dfuse.Parse(path)
	if err != nil {
		return u.fail(family, PathSTM32, fmt.Errorf("read %s: %w", path, err))
	}

	u.suspend()
	defer u.resume()

	if client != nil {
		u.report(family, Progress{Phase: PhaseRebooting, ElapsedTime: time.Since(start)})
		if err := client.RebootBootloader(ctx); err != nil {
			return u.fail(family, PathSTM32, fmt.Errorf("reboot to bootloader: %w", err))
		}
		if err := sleepCtx(ctx, u.config.DisconnectDelay); err != nil {
			return u.fail(family, PathSTM32, err)
		}
	}

	u.report(family, Progress{Phase: PhaseWaiting, ElapsedTime: time.Since(start)})
	dev, err := u.waitBootloader(ctx)
	if err != nil {
		return u.fail(family, PathSTM32, err)
	}

	if u.config.Logger != nil {
		u.config.Logger.Info().
			Str("bootloader", dev.String()).
			Int("bytes", img.Size()).
			Msg("bootloader found")
	}

	phase := ""
	progress := func(p dfu.Progress) {
		name := PhaseFlashing
		if p.Verify {
			name = PhaseVerifying
		}
		if name != phase {
			phase = name
			if u.config.Logger != nil {
				u.config.Logger.Info().Str("phase", name).Msg("starting")
			}
		}
		u.report(family, Progress{
			Phase:       name,
			Finished:    p.Finished,
			Percentage:  p.Percent,
			TotalBytes:  img.Size(),
			ElapsedTime: time.Since(start),
		})
	}

	ok, err := u.config.Driver(dev).FlashAndVerify(ctx, img, flash, true, progress)
	if err != nil {
		return u.fail(family, PathSTM32, fmt.Errorf("dfu: %w", err))
	}
	if !ok {
		return u.fail(family, PathSTM32, &VerifyError{Path: path})
	}

	u.report(family, Progress{
		Phase:       PhaseComplete,
		Finished:    true,
		Percentage:  100,
		TotalBytes:  img.Size(),
		ElapsedTime: time.Since(start),
	})
	u.config.Metrics.FlashResult(family, PathSTM32, true)

	if u.config.Logger != nil {
		u.config.Logger.Info().
			Str("path", PathSTM32).
			Str("elapsed", time.Since(start).String()).
			Msg("firmware update success, verification OK")
	}

	return nil
}

// waitBootloader polls the locator until the bootloader appears or the
// configured bound expires.
func (u *Updater) waitBootloader(ctx context.Context) (*dfu.Device, error) {
	deadline := time.Now().Add(u.config.BootloaderTimeout)

	for {
		dev, err := u.locator.Find(ctx)
		if err == nil {
			return dev, nil
		}
		if errors.Is(err, dfu.ErrAmbiguous) {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w after %s", ErrBootloaderNotFound, u.config.BootloaderTimeout)
		}
		if err := sleepCtx(ctx, u.config.BootloaderPoll); err != nil {
			return nil, err
		}
	}
}

// FlashFPGA streams the bitstream at path to the FPGA and reboots the
// device to load it. The client is closed by the reboot.
//
// Example:
//
//	err := u.FlashFPGA(ctx, client, "top.bin")
func (u *Updater) FlashFPGA(ctx context.Context, client *device.Client, path string) error {
	start := time.Now()
	family := familyOf(client)

	if client == nil {
		return u.fail(family, PathFPGA, ErrNoDevice)
	}
	if !client.Family().Supports(protocol.OpFPGAFlashStart) {
		return u.fail(family, PathFPGA, fmt.Errorf("%s has no fpga: %w", family, protocol.ErrUnsupported))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return u.fail(family, PathFPGA, fmt.Errorf("read %s: %w", path, err))
	}
	if len(data) == 0 {
		return u.fail(family, PathFPGA, fmt.Errorf("read %s: empty bitstream", path))
	}

	u.suspend()
	defer u.resume()

	total := len(data)
	u.report(family, Progress{Phase: PhaseFlashing, TotalBytes: total, ElapsedTime: time.Since(start)})

	if err := client.FPGAFlashStart(ctx, uint32(total)); err != nil {
		return u.fail(family, PathFPGA, abort("start", 0, err))
	}

	for off := 0; off < total; off += u.config.ChunkSize {
		if err := ctx.Err(); err != nil {
			return u.fail(family, PathFPGA, fmt.Errorf("cancelled: %w", err))
		}

		end := min(off+u.config.ChunkSize, total)
		if err := client.FPGAFlashProgram(ctx, uint32(off), data[off:end]); err != nil {
			return u.fail(family, PathFPGA, abort("program", uint32(off), err))
		}

		u.report(family, Progress{
			Phase:        PhaseFlashing,
			Percentage:   float64(end) / float64(total) * 100,
			BytesWritten: end,
			TotalBytes:   total,
			ElapsedTime:  time.Since(start),
		})
	}

	if err := client.FPGAFlashEnd(ctx); err != nil {
		return u.fail(family, PathFPGA, abort("end", 0, err))
	}

	u.report(family, Progress{
		Phase:        PhaseProgrammed,
		Finished:     true,
		Percentage:   100,
		BytesWritten: total,
		TotalBytes:   total,
		ElapsedTime:  time.Since(start),
	})

	// The bitstream is in flash; a failed reboot only delays loading it.
	u.report(family, Progress{Phase: PhaseRebooting, BytesWritten: total, TotalBytes: total, ElapsedTime: time.Since(start)})
	if err := client.Reboot(ctx); err != nil && u.config.Logger != nil {
		u.config.Logger.Warn().Err(err).Msg("reboot after fpga update failed")
	}

	u.report(family, Progress{
		Phase:        PhaseComplete,
		Finished:     true,
		Percentage:   100,
		BytesWritten: total,
		TotalBytes:   total,
		ElapsedTime:  time.Since(start),
	})
	u.config.Metrics.FlashResult(family, PathFPGA, true)

	if u.config.Logger != nil {
		u.config.Logger.Info().
			Str("path", PathFPGA).
			Int("bytes", total).
			Str("elapsed", time.Since(start).String()).
			Msg("firmware update success")
	}

	return nil
}

func abort(step string, offset uint32, err error) error {
	e := &SequenceAbortError{Step: step, Offset: offset, Err: err}
	var se *protocol.StatusError
	if errors.As(err, &se) {
		e.Status = se.Status
	}
	return e
}

func (u *Updater) suspend() {
	for _, s := range u.config.Suspenders {
		s.Pause()
	}
}

func (u *Updater) resume() {
	for i := len(u.config.Suspenders) - 1; i >= 0; i-- {
		u.config.Suspenders[i].Resume()
	}
}

// fail logs the terminal failure of an update once and returns err.
func (u *Updater) fail(family, path string, err error) error {
	u.config.Metrics.FlashResult(family, path, false)
	if u.config.Logger != nil {
		u.config.Logger.Error().
			Str("critical", "true").
			Str("family", family).
			Str("path", path).
			Err(err).
			Msg("firmware update failed")
	}
	return err
}

// report records p and hands it to the progress callback, through the
// poster when one is configured.
func (u *Updater) report(family string, p Progress) {
	u.config.Metrics.FlashProgress(family, p.Phase, int(p.Percentage))

	cb := u.config.ProgressCallback
	if cb == nil {
		return
	}
	if u.config.Poster == nil {
		cb(p)
		return
	}
	u.config.Poster.Post(func() { cb(p) })
}

func familyOf(client *device.Client) string {
	if client == nil {
		return "bootloader"
	}
	return client.Family().Name
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
