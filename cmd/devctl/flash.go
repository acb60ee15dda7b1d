package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/moffa90/go-devlink/device"
	"github.com/moffa90/go-devlink/dfu"
	"github.com/moffa90/go-devlink/firmware"
)

var (
	cmdFlashSTM32 = &cobra.Command{
		Use:   "flash-stm32 <file.dfu>",
		Short: "Program and verify the STM32 firmware over DFU",
		Args:  cobra.ExactArgs(1),
		RunE:  runSTM32(true),
	}

	cmdVerifySTM32 = &cobra.Command{
		Use:   "verify-stm32 <file.dfu>",
		Short: "Compare the STM32 firmware against a DFU file",
		Args:  cobra.ExactArgs(1),
		RunE:  runSTM32(false),
	}

	cmdFlashFPGA = &cobra.Command{
		Use:   "flash-fpga <bitstream>",
		Short: "Program the FPGA bitstream through the controller",
		Args:  cobra.ExactArgs(1),
		RunE:  runFlashFPGA,
	}
)

var flashDFUUtil string

func init() {
	for _, c := range []*cobra.Command{cmdFlashSTM32, cmdVerifySTM32} {
		c.Flags().StringVar(&flashDFUUtil, "dfu-util", dfu.DefaultDFUUtil, "dfu-util executable")
		rootCmd.AddCommand(c)
	}
	rootCmd.AddCommand(cmdFlashFPGA)
}

// progressBars draws one bar per percent-bearing phase.
type progressBars struct {
	p    *mpb.Progress
	bars map[string]*mpb.Bar
}

func newProgressBars() *progressBars {
	return &progressBars{
		p: mpb.New(
			mpb.WithOutput(color.Output),
			mpb.WithAutoRefresh(),
		),
		bars: make(map[string]*mpb.Bar),
	}
}

func (pb *progressBars) update(p firmware.Progress) {
	switch p.Phase {
	case firmware.PhaseFlashing, firmware.PhaseVerifying:
	default:
		if !p.Finished {
			app.log.Info().Str("phase", p.Phase).Msg("update")
		}
		return
	}

	bar, ok := pb.bars[p.Phase]
	if !ok {
		bar = pb.p.AddBar(100,
			mpb.PrependDecorators(
				decor.Name(p.Phase, decor.WCSyncSpaceR),
			),
			mpb.AppendDecorators(
				decor.EwmaETA(decor.ET_STYLE_GO, 30),
				decor.Name(" "),
				decor.OnComplete(decor.Percentage(decor.WC{W: 5}), "done"),
			),
		)
		pb.bars[p.Phase] = bar
	}

	bar.SetCurrent(int64(p.Percentage))
	if p.Finished {
		bar.SetTotal(100, true)
	}
}

// wait aborts unfinished bars and flushes the output.
func (pb *progressBars) wait() {
	for _, bar := range pb.bars {
		if !bar.Completed() {
			bar.Abort(false)
		}
	}
	pb.p.Wait()
}

func newUpdater(pb *progressBars, opts ...firmware.Option) *firmware.Updater {
	locator := dfu.NewLocator(dfu.WithLogger(app.log))
	opts = append([]firmware.Option{
		firmware.WithLogger(app.log),
		firmware.WithMetrics(app.metrics),
		firmware.WithProgressCallback(pb.update),
	}, opts...)
	return firmware.New(locator, opts...)
}

func runSTM32(flash bool) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		// A device already in its bootloader has no application to talk to.
		client, err := connect(ctx)
		if err != nil {
			app.log.Info().Err(err).Msg("no application device, expecting bootloader")
			client = nil
		}

		pb := newProgressBars()
		u := newUpdater(pb, firmware.WithDriver(func(dev *dfu.Device) dfu.Driver {
			d := dfu.NewDFUUtil(dev)
			d.Path = flashDFUUtil
			d.Logger = app.log
			return d
		}))

		if flash {
			err = u.UpdateSTM32(ctx, client, args[0])
		} else {
			err = u.VerifySTM32(ctx, client, args[0])
		}
		pb.wait()

		var verr *firmware.VerifyError
		if errors.As(err, &verr) {
			color.Red("%v", verr)
			return err
		}
		if err != nil {
			return err
		}
		color.Green("stm32 %s ok", args[0])
		return nil
	}
}

func runFlashFPGA(cmd *cobra.Command, args []string) error {
	return withClient(cmd, func(ctx context.Context, c *device.Client) error {
		pb := newProgressBars()
		err := newUpdater(pb).FlashFPGA(ctx, c, args[0])
		pb.wait()
		if err != nil {
			return err
		}
		fmt.Println(color.GreenString("fpga %s programmed", args[0]))
		return nil
	})
}
