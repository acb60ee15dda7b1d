package dfuse

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
)

// Constants for DfuSe file format parsing.
const (
	// PrefixSize is the size of the file prefix
	PrefixSize = 11

	// TargetPrefixSize is the size of each target prefix
	TargetPrefixSize = 274

	// ElementHeaderSize is the size of the address and size fields
	ElementHeaderSize = 8

	// SuffixSize is the size of the DFU suffix
	SuffixSize = 16

	// TargetNameSize is the fixed width of the target name field
	TargetNameSize = 255

	// FormatVersion is the only prefix version in use
	FormatVersion = 0x01

	// DFUVersion is the bcdDFU value DfuSe files carry
	DFUVersion = 0x011A
)

var (
	prefixSignature = []byte("DfuSe")
	targetSignature = []byte("Target")
	suffixSignature = []byte("UFD")

	// ErrNoElements is returned for a well-formed file that carries no data.
	ErrNoElements = errors.New("no data in dfu file")
)

// CRCError reports a file whose suffix CRC does not match its content.
type CRCError struct {
	Got  uint32
	Want uint32
}

func (e *CRCError) Error() string {
	return fmt.Sprintf("crc mismatch: file has 0x%08X, computed 0x%08X", e.Got, e.Want)
}

// Parse parses a DfuSe file from the given path.
//
// Example:
//
//	img, err := dfuse.Parse("firmware.dfu")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%d bytes in %d targets\n", img.Size(), len(img.Targets))
func Parse(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return ParseBytes(data)
}

// ParseReader parses a DfuSe file from any io.Reader.
func ParseReader(r io.Reader) (*Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return ParseBytes(data)
}

// ParseBytes parses a complete DfuSe file held in memory. A file without any
// element is rejected with ErrNoElements.
func ParseBytes(data []byte) (*Image, error) {
	if len(data) < PrefixSize+SuffixSize {
		return nil, fmt.Errorf("file too short: %d bytes", len(data))
	}

	img, err := parseSuffix(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse suffix: %w", err)
	}

	body := data[:len(data)-SuffixSize]
	if !bytes.Equal(body[:5], prefixSignature) {
		return nil, fmt.Errorf("invalid prefix signature %q", body[:5])
	}
	if body[5] != FormatVersion {
		return nil, fmt.Errorf("unsupported format version 0x%02X", body[5])
	}
	imageSize := binary.LittleEndian.Uint32(body[6:10])
	if int(imageSize) != len(body) {
		return nil, fmt.Errorf("image size mismatch: prefix says %d bytes, file has %d", imageSize, len(body))
	}
	targets := int(body[10])

	off := PrefixSize
	for i := 0; i < targets; i++ {
		t, n, err := parseTarget(body[off:])
		if err != nil {
			return nil, fmt.Errorf("target %d: %w", i, err)
		}
		img.Targets = append(img.Targets, t)
		off += n
	}
	if off != len(body) {
		return nil, fmt.Errorf("%d trailing bytes after last target", len(body)-off)
	}

	if len(img.Elements()) == 0 {
		return nil, ErrNoElements
	}

	return img, nil
}

func parseSuffix(data []byte) (*Image, error) {
	s := data[len(data)-SuffixSize:]

	if !bytes.Equal(s[8:11], suffixSignature) {
		return nil, fmt.Errorf("invalid signature %q", s[8:11])
	}
	if s[11] != SuffixSize {
		return nil, fmt.Errorf("invalid suffix length %d", s[11])
	}

	got := binary.LittleEndian.Uint32(s[12:16])
	want := checksum(data[:len(data)-4])
	if got != want {
		return nil, &CRCError{Got: got, Want: want}
	}

	return &Image{
		Device:    binary.LittleEndian.Uint16(s[0:2]),
		ProductID: binary.LittleEndian.Uint16(s[2:4]),
		VendorID:  binary.LittleEndian.Uint16(s[4:6]),
	}, nil
}

// parseTarget parses one target and its elements and returns the number of
// bytes consumed.
func parseTarget(b []byte) (*Target, int, error) {
	if len(b) < TargetPrefixSize {
		return nil, 0, fmt.Errorf("target prefix too short: %d bytes", len(b))
	}
	if !bytes.Equal(b[:6], targetSignature) {
		return nil, 0, fmt.Errorf("invalid target signature %q", b[:6])
	}

	t := &Target{AltSetting: b[6]}
	if binary.LittleEndian.Uint32(b[7:11]) != 0 {
		name := b[11 : 11+TargetNameSize]
		if i := bytes.IndexByte(name, 0); i >= 0 {
			name = name[:i]
		}
		t.Name = string(name)
	}

	// Sizes are compared as uint64 before conversion so a value of 2^31 or
	// more cannot turn negative where int is 32 bits.
	size32 := binary.LittleEndian.Uint32(b[266:270])
	count := binary.LittleEndian.Uint32(b[270:274])

	rest := b[TargetPrefixSize:]
	if uint64(size32) > uint64(len(rest)) {
		return nil, 0, fmt.Errorf("target size %d exceeds remaining %d bytes", size32, len(rest))
	}
	size := int(size32)
	rest = rest[:size]

	off := 0
	for i := uint32(0); i < count; i++ {
		if len(rest)-off < ElementHeaderSize {
			return nil, 0, fmt.Errorf("element %d: header truncated", i)
		}
		addr := binary.LittleEndian.Uint32(rest[off : off+4])
		n32 := binary.LittleEndian.Uint32(rest[off+4 : off+8])
		off += ElementHeaderSize
		if uint64(n32) > uint64(len(rest)-off) {
			return nil, 0, fmt.Errorf("element %d: size %d exceeds target", i, n32)
		}
		n := int(n32)
		data := make([]byte, n)
		copy(data, rest[off:off+n])
		t.Elements = append(t.Elements, &Element{Address: addr, Data: data})
		off += n
	}
	if off != size {
		return nil, 0, fmt.Errorf("target size %d does not match its %d element bytes", size, off)
	}

	return t, TargetPrefixSize + size, nil
}

func checksum(b []byte) uint32 {
	return ^crc32.ChecksumIEEE(b)
}
