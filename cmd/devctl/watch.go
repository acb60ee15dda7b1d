package main

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/moffa90/go-devlink/device"
	"github.com/moffa90/go-devlink/dfu"
	"github.com/moffa90/go-devlink/watcher"
)

var (
	cmdWatch = &cobra.Command{
		Use:   "watch",
		Short: "Follow device connections and stream the device log",
		Long:  `Runs until interrupted. Device log lines are re-logged at the level their prefix implies.`,
		Args:  cobra.NoArgs,
		RunE:  runWatch,
	}
)

var (
	watchSerial     bool
	watchBootloader bool
)

func init() {
	rootCmd.AddCommand(cmdWatch)
	cmdWatch.Flags().BoolVarP(&watchSerial, "serial", "s", false, "Also stream the USB serial log")
	cmdWatch.Flags().BoolVarP(&watchBootloader, "bootloader", "b", true, "Report the DFU bootloader")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	dispatcher := watcher.NewDispatcher(app.log)
	defer dispatcher.Close()

	wopts := []watcher.Option{
		watcher.WithInterval(app.ds.PollIntervalDuration()),
		watcher.WithLogger(app.log),
		watcher.WithMetrics(app.metrics),
		watcher.WithDispatcher(dispatcher),
	}

	onLine := func(line string) { watcher.LogLine(app.log, line, "  ") }

	logs := watcher.NewLogWatcher(onLine, wopts...)
	conn := watcher.NewConnectionWatcher(newFinder(), func(c *device.Client) {
		if c == nil {
			color.Yellow("%s disconnected", app.family.Name)
			logs.Bind(nil)
			return
		}
		color.Green("%s connected over %s (session %s)", app.family.Name, c.Transport(), c.Session())
		logs.Bind(c)
	}, wopts...)

	if err := conn.Start(ctx); err != nil {
		return err
	}
	defer conn.Stop()
	if err := logs.Start(ctx); err != nil {
		return err
	}
	defer logs.Stop()

	if watchBootloader {
		boot := watcher.NewBootloaderWatcher(dfu.NewLocator(dfu.WithLogger(app.log)), func(d *dfu.Device) {
			if d == nil {
				color.Yellow("bootloader gone")
				return
			}
			color.Cyan("bootloader %s", d)
		}, wopts...)
		if err := boot.Start(ctx); err != nil {
			return err
		}
		defer boot.Stop()
	}

	if watchSerial || app.ds.SerialLog {
		serial := watcher.NewSerialLogWatcher(app.family.VendorID, app.family.ProductID, onLine,
			watcher.WithWatcherOptions(wopts...),
		)
		if err := serial.Start(ctx); err != nil {
			return err
		}
		defer serial.Stop()
	}

	<-ctx.Done()
	return nil
}
