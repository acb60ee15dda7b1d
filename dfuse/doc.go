// Package dfuse parses STMicroelectronics DfuSe (.dfu) firmware images.
//
// # DfuSe File Format
//
// A DfuSe file wraps one or more targets, each made of memory elements,
// between an 11-byte prefix and a 16-byte DFU suffix. All integers are
// little-endian.
//
// Prefix (11 bytes):
//
//	["DfuSe"(5)][version(1)=0x01][imageSize(4)][targets(1)]
//
// Target prefix (274 bytes), followed by its elements:
//
//	["Target"(6)][altSetting(1)][named(4)][name(255)][targetSize(4)][elements(4)]
//
// Element:
//
//	[address(4)][size(4)][data(size)]
//
// Suffix (16 bytes):
//
//	[bcdDevice(2)][idProduct(2)][idVendor(2)][bcdDFU(2)]["UFD"(3)][length(1)=16][crc(4)]
//
// The CRC is the bitwise complement of the IEEE CRC-32 of every byte of the
// file except the CRC field itself.
//
// # Usage
//
//	img, err := dfuse.Parse("firmware.dfu")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for _, e := range img.Elements() {
//	    fmt.Printf("0x%08X: %d bytes\n", e.Address, len(e.Data))
//	}
//
// Encode produces a file from an Image, which is mostly useful for tests and
// simulated devices.
package dfuse
