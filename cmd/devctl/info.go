package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/moffa90/go-devlink/device"
	"github.com/moffa90/go-devlink/protocol"
)

var (
	cmdVersion = &cobra.Command{
		Use:   "version",
		Short: "Show firmware versions and serial number",
		Args:  cobra.NoArgs,
		RunE:  runVersion,
	}

	cmdSerial = &cobra.Command{
		Use:   "serial",
		Short: "Show the serial number",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClient(cmd, func(ctx context.Context, c *device.Client) error {
				serial, err := c.SerialNumber(ctx)
				if err != nil {
					return err
				}
				fmt.Println(serial)
				return nil
			})
		},
	}

	cmdState = &cobra.Command{
		Use:       "state {hdmi|edid|display|ir}",
		Short:     "Query a device state block",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"hdmi", "edid", "display", "ir"},
		RunE:      runState,
	}
)

func init() {
	rootCmd.AddCommand(cmdVersion)
	rootCmd.AddCommand(cmdSerial)
	rootCmd.AddCommand(cmdState)
}

func field(name string, value any) {
	fmt.Printf("%-22s %v\n", color.CyanString(name), value)
}

func runVersion(cmd *cobra.Command, _ []string) error {
	return withClient(cmd, func(ctx context.Context, c *device.Client) error {
		field("transport", c.Transport())

		micro, err := c.MicroVersion(ctx)
		if err != nil {
			return err
		}
		field("micro", micro)

		if c.Family().Supports(protocol.OpFPGAVersion) {
			fpga, err := c.FPGAVersion(ctx)
			if err != nil {
				return err
			}
			field("fpga", fmt.Sprintf("%s (%s)", fpga.Version, fpga.GitVersion))
		}

		serial, err := c.SerialNumber(ctx)
		if err != nil {
			return err
		}
		field("serial", serial)
		return nil
	})
}

func runState(cmd *cobra.Command, args []string) error {
	return withClient(cmd, func(ctx context.Context, c *device.Client) error {
		switch args[0] {
		case "hdmi":
			s, err := c.HDMIState(ctx)
			if err != nil {
				return err
			}
			field("input locked", s.InputLocked)
			field("active", fmt.Sprintf("%dx%d", s.ActiveWidth, s.ActiveHeight))
			field("total", fmt.Sprintf("%dx%d", s.TotalWidth, s.TotalHeight))
			field("fps", s.FPS)
			field("clock", s.ClockFreq)
		case "edid":
			s, err := c.EDIDState(ctx)
			if err != nil {
				return err
			}
			field("start conditions", s.NumStartConditions)
			field("page accessed", s.PageAddrAccessed)
			field("error flag", s.ErrorFlag)
		case "display":
			s, err := c.DisplayState(ctx)
			if err != nil {
				return err
			}
			field("status", s.Status)
			field("temperature", s.Temperature)
		case "ir":
			s, err := c.IRState(ctx)
			if err != nil {
				return err
			}
			field("val1", s.Val1)
			field("val2", s.Val2)
		default:
			return fmt.Errorf("unknown state %q", args[0])
		}
		return nil
	})
}
