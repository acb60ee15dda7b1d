// Package transport moves opaque command buffers between the host and a
// controller.
//
// Three backends share one contract, Backend.Exchange: USB HID (64-byte
// reports), I2C through an FTDI FT232H bridge and I2C through a Linux
// /dev/i2c-N device. They differ only in framing:
//
//	HID first report:        [REPORT_ID(2)][VERSION(2)][TOTAL_LEN(2)][DATA...][PAD]
//	HID continuation report: [REPORT_ID(2)][VERSION(2)][DATA...][PAD]
//	I2C request:             [VERSION(2)][LEN(2)][DATA...]
//	I2C response:            [VERSION(2)][LEN(2)][DATA...]
//
// All integers are little-endian. Bus-level retries and timeouts live here;
// the layers above never retry.
package transport
