package device

import (
	"context"
	"fmt"

	"github.com/moffa90/go-devlink/protocol"
)

func as[T protocol.Response](op protocol.Op, resp protocol.Response) (T, error) {
	r, ok := resp.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s: unexpected response type %T", op, resp)
	}
	return r, nil
}

func query[T protocol.Response](ctx context.Context, c *Client, op protocol.Op, payload []byte) (T, error) {
	resp, err := c.Send(ctx, op, payload, 0)
	if err != nil {
		var zero T
		return zero, err
	}
	return as[T](op, resp)
}

// MicroVersion queries the controller firmware version.
func (c *Client) MicroVersion(ctx context.Context) (*protocol.MicroVersion, error) {
	return query[*protocol.MicroVersion](ctx, c, protocol.OpVersion, nil)
}

// FPGAVersion queries the version of the logic loaded in the FPGA.
func (c *Client) FPGAVersion(ctx context.Context) (*protocol.FPGAVersion, error) {
	return query[*protocol.FPGAVersion](ctx, c, protocol.OpFPGAVersion, nil)
}

// SerialNumber reads the controller serial number.
func (c *Client) SerialNumber(ctx context.Context) (string, error) {
	sn, err := query[*protocol.SerialNumber](ctx, c, protocol.OpSerialNumber, nil)
	if err != nil {
		return "", err
	}
	return sn.Serial, nil
}

// ReadLogChunk reads the next chunk of the device-resident log using the
// short log timeout.
func (c *Client) ReadLogChunk(ctx context.Context) (*protocol.LogPart, error) {
	resp, err := c.Send(ctx, protocol.OpReadLog, nil, c.config.LogTimeout)
	if err != nil {
		return nil, err
	}
	return as[*protocol.LogPart](protocol.OpReadLog, resp)
}

// Reboot restarts the controller into its firmware and closes the session.
// The device does not answer.
func (c *Client) Reboot(ctx context.Context) error {
	return c.rebootAndClose(ctx, protocol.OpRebootFirmware)
}

// RebootBootloader restarts the controller into its DFU bootloader and
// closes the session. The device does not answer.
func (c *Client) RebootBootloader(ctx context.Context) error {
	return c.rebootAndClose(ctx, protocol.OpRebootBootloader)
}

func (c *Client) rebootAndClose(ctx context.Context, op protocol.Op) error {
	_, sendErr := c.Send(ctx, op, nil, 0)
	closeErr := c.Close()
	if sendErr != nil {
		return sendErr
	}
	return closeErr
}

// AdjustBrightness changes the brightness by step and returns the new level.
func (c *Client) AdjustBrightness(ctx context.Context, step int8) (uint8, error) {
	b, err := query[*protocol.Brightness](ctx, c, protocol.OpAdjustBrightness, protocol.BuildBrightnessPayload(step))
	if err != nil {
		return 0, err
	}
	return b.Level, nil
}

// I2CRead reads a register of a peripheral behind the controller.
func (c *Client) I2CRead(ctx context.Context, target protocol.I2CTarget, reg uint16) (*protocol.I2CResult, error) {
	return query[*protocol.I2CResult](ctx, c, protocol.OpI2C, protocol.BuildI2CPayload(false, target, reg, 0))
}

// I2CWrite writes a register of a peripheral behind the controller.
func (c *Client) I2CWrite(ctx context.Context, target protocol.I2CTarget, reg, value uint16) (*protocol.I2CResult, error) {
	return query[*protocol.I2CResult](ctx, c, protocol.OpI2C, protocol.BuildI2CPayload(true, target, reg, value))
}

// HDMIState queries the HDMI receiver.
func (c *Client) HDMIState(ctx context.Context) (*protocol.HDMIState, error) {
	return query[*protocol.HDMIState](ctx, c, protocol.OpHDMIState, nil)
}

// EDIDState queries the emulated EDID access counters.
func (c *Client) EDIDState(ctx context.Context) (*protocol.EDIDState, error) {
	return query[*protocol.EDIDState](ctx, c, protocol.OpEDIDState, nil)
}

// DisplayState queries the panel status and temperature.
func (c *Client) DisplayState(ctx context.Context) (*protocol.DisplayState, error) {
	return query[*protocol.DisplayState](ctx, c, protocol.OpDisplayState, nil)
}

// IRState queries the IR module.
func (c *Client) IRState(ctx context.Context) (*protocol.IRState, error) {
	return query[*protocol.IRState](ctx, c, protocol.OpIRState, nil)
}

// DebugAction triggers a firmware debug hook.
func (c *Client) DebugAction(ctx context.Context, index uint8) error {
	status, err := c.SendSimple(ctx, protocol.OpDebugAction, protocol.BuildDebugActionPayload(index), 0)
	if err != nil {
		return err
	}
	return checkStatus(protocol.OpDebugAction, status)
}

// FPGAFlashStart announces a bitstream of total bytes.
func (c *Client) FPGAFlashStart(ctx context.Context, total uint32) error {
	status, err := c.SendSimple(ctx, protocol.OpFPGAFlashStart, protocol.BuildFPGAStartPayload(total), 0)
	if err != nil {
		return err
	}
	return checkStatus(protocol.OpFPGAFlashStart, status)
}

// FPGAFlashProgram writes one bitstream chunk at offset.
func (c *Client) FPGAFlashProgram(ctx context.Context, offset uint32, chunk []byte) error {
	payload, err := protocol.BuildFPGAProgramPayload(offset, chunk)
	if err != nil {
		return err
	}
	status, err := c.SendSimple(ctx, protocol.OpFPGAFlashProgram, payload, 0)
	if err != nil {
		return err
	}
	return checkStatus(protocol.OpFPGAFlashProgram, status)
}

// FPGAFlashEnd completes a bitstream transfer.
func (c *Client) FPGAFlashEnd(ctx context.Context) error {
	status, err := c.SendSimple(ctx, protocol.OpFPGAFlashEnd, nil, 0)
	if err != nil {
		return err
	}
	return checkStatus(protocol.OpFPGAFlashEnd, status)
}
