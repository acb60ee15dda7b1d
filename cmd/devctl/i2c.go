package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/moffa90/go-devlink/device"
	"github.com/moffa90/go-devlink/protocol"
)

var (
	cmdI2C = &cobra.Command{
		Use:   "i2c",
		Short: "Read and write peripherals behind the controller",
	}

	cmdI2CTargets = &cobra.Command{
		Use:   "targets",
		Short: "List the reachable peripherals",
		Args:  cobra.NoArgs,
		// No device needed.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(*cobra.Command, []string) {
			for _, t := range protocol.I2CTargets {
				fmt.Printf("%d  %-16s %s\n", t.ID, t.Name, t.Pretty)
			}
		},
	}

	cmdI2CRead = &cobra.Command{
		Use:   "read <target> <reg>",
		Short: "Read a 16-bit register",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := protocol.LookupI2CTarget(args[0])
			if err != nil {
				return err
			}
			reg, err := parseUint16(args[1])
			if err != nil {
				return err
			}
			return withClient(cmd, func(ctx context.Context, c *device.Client) error {
				res, err := c.I2CRead(ctx, target, reg)
				if err != nil {
					return err
				}
				printI2C(res)
				return nil
			})
		},
	}

	cmdI2CWrite = &cobra.Command{
		Use:   "write <target> <reg> <value>",
		Short: "Write a 16-bit register",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := protocol.LookupI2CTarget(args[0])
			if err != nil {
				return err
			}
			reg, err := parseUint16(args[1])
			if err != nil {
				return err
			}
			value, err := parseUint16(args[2])
			if err != nil {
				return err
			}
			return withClient(cmd, func(ctx context.Context, c *device.Client) error {
				res, err := c.I2CWrite(ctx, target, reg, value)
				if err != nil {
					return err
				}
				printI2C(res)
				return nil
			})
		},
	}

	cmdBrightness = &cobra.Command{
		Use:   "brightness <step>",
		Short: "Step the display brightness up or down",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			step, err := strconv.ParseInt(args[0], 0, 8)
			if err != nil {
				return fmt.Errorf("invalid step %q: %w", args[0], err)
			}
			return withClient(cmd, func(ctx context.Context, c *device.Client) error {
				level, err := c.AdjustBrightness(ctx, int8(step))
				if err != nil {
					return err
				}
				field("brightness", level)
				return nil
			})
		},
	}

	cmdDebug = &cobra.Command{
		Use:   "debug <index>",
		Short: "Trigger a firmware debug action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.ParseUint(args[0], 0, 8)
			if err != nil {
				return fmt.Errorf("invalid index %q: %w", args[0], err)
			}
			return withClient(cmd, func(ctx context.Context, c *device.Client) error {
				return c.DebugAction(ctx, uint8(index))
			})
		},
	}
)

func init() {
	cmdI2C.AddCommand(cmdI2CTargets, cmdI2CRead, cmdI2CWrite)
	rootCmd.AddCommand(cmdI2C)
	rootCmd.AddCommand(cmdBrightness)
	rootCmd.AddCommand(cmdDebug)
}

func parseUint16(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q: %w", s, err)
	}
	return uint16(v), nil
}

func printI2C(res *protocol.I2CResult) {
	field("address", fmt.Sprintf("0x%02x", res.DevAddr))
	field("value", fmt.Sprintf("0x%04x", res.Value))
}
