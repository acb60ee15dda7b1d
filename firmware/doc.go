// Package firmware updates the two programmable parts of a device: the STM32
// microcontroller, through its USB DFU bootloader, and the FPGA, through the
// device's own flash commands.
//
// # Overview
//
// The STM32 path:
//   - Reboots the device into its bootloader when it is running its firmware
//   - Waits for the bootloader to enumerate
//   - Programs and verifies the DfuSe image with a dfu.Driver
//   - Leaves DFU mode so the new firmware starts
//
// The FPGA path:
//   - Streams the bitstream with the start, program and end commands
//   - Aborts on the first non-zero status
//   - Reboots the device to load the new logic
//
// Both paths pause the registered Suspenders (the watchers polling the
// device) for the duration of the update and resume them afterwards,
// whatever the outcome.
//
// # Basic Usage
//
//	u := firmware.New(dfu.NewLocator(),
//	    firmware.WithSuspenders(connWatcher, logWatcher),
//	    firmware.WithProgressCallback(func(p firmware.Progress) {
//	        fmt.Printf("[%s] %.1f%%\n", p.Phase, p.Percentage)
//	    }),
//	)
//
//	if err := u.UpdateSTM32(ctx, client, "firmware.dfu"); err != nil {
//	    log.Fatal(err)
//	}
//
// # Error Handling
//
// Failures are terminal and never retried:
//
//	err := u.UpdateSTM32(ctx, client, path)
//	var verr *firmware.VerifyError
//	if errors.As(err, &verr) {
//	    // the image read back differs: firmware is likely corrupt
//	}
//
//	err = u.FlashFPGA(ctx, client, "bitstream.bin")
//	var abort *firmware.SequenceAbortError
//	if errors.As(err, &abort) {
//	    fmt.Printf("%s failed with status 0x%02X\n", abort.Step, abort.Status)
//	}
//
// Every failure is logged once at error level with critical=true.
package firmware
