// Package protocol implements the command layer shared by the display
// controller and the IR module.
//
// # Protocol Overview
//
// Every exchange is one command followed by at most one fixed-size response:
//
//	Command:  [OPCODE][PAYLOAD...]
//	Response: [FIELDS...]            (little-endian, packed)
//
// The transport adds its own header (see package transport); this package
// only deals with the bytes inside it.
//
// # Command Tables
//
// Opcodes differ between device families, so commands are looked up through
// a data-valued Table keyed by a family-independent Op:
//
//	cmd, err := protocol.Display.Commands.Lookup(protocol.OpVersion)
//	frame, err := protocol.Encode(cmd, nil)
//
// Payload builders produce the opcode-specific arguments:
//
//	payload := protocol.BuildI2CPayload(false, target, 0x10, 0)
//	payload, err := protocol.BuildFPGAProgramPayload(offset, chunk)
//
// # Response Decoding
//
// Decode is size tolerant:
//
//		resp, truncated, err := protocol.Decode(cmd, buf)
//
//	  - shorter than the schema: MalformedResponseError, unless the schema
//	    declares a LegacyLayout that fits
//	  - exactly the schema: decoded as is
//	  - longer than the schema: the prefix is decoded and truncated reports
//	    how many trailing bytes were ignored
//
// # Error Handling
//
// Simple commands answer with a Status byte; anything other than StatusOK
// should be surfaced as a StatusError:
//
//	if status != protocol.StatusOK {
//	    return &protocol.StatusError{Operation: "fpga flash start", Status: status}
//	}
package protocol
