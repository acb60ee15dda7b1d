package dfuse

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Encode serialises img as a DfuSe file.
func Encode(img *Image) ([]byte, error) {
	if len(img.Targets) > 0xFF {
		return nil, fmt.Errorf("too many targets: %d", len(img.Targets))
	}

	var body bytes.Buffer
	body.Write(prefixSignature)
	body.WriteByte(FormatVersion)
	body.Write(make([]byte, 4)) // image size, patched below
	body.WriteByte(byte(len(img.Targets)))

	for _, t := range img.Targets {
		if len(t.Name) > TargetNameSize {
			return nil, fmt.Errorf("target name %q too long", t.Name)
		}

		size := 0
		for _, e := range t.Elements {
			size += ElementHeaderSize + len(e.Data)
		}

		body.Write(targetSignature)
		body.WriteByte(t.AltSetting)
		named := uint32(0)
		if t.Name != "" {
			named = 1
		}
		_ = binary.Write(&body, binary.LittleEndian, named)
		name := make([]byte, TargetNameSize)
		copy(name, t.Name)
		body.Write(name)
		_ = binary.Write(&body, binary.LittleEndian, uint32(size))
		_ = binary.Write(&body, binary.LittleEndian, uint32(len(t.Elements)))

		for _, e := range t.Elements {
			_ = binary.Write(&body, binary.LittleEndian, e.Address)
			_ = binary.Write(&body, binary.LittleEndian, uint32(len(e.Data)))
			body.Write(e.Data)
		}
	}

	out := body.Bytes()
	binary.LittleEndian.PutUint32(out[6:10], uint32(len(out)))

	suffix := make([]byte, SuffixSize)
	binary.LittleEndian.PutUint16(suffix[0:2], img.Device)
	binary.LittleEndian.PutUint16(suffix[2:4], img.ProductID)
	binary.LittleEndian.PutUint16(suffix[4:6], img.VendorID)
	binary.LittleEndian.PutUint16(suffix[6:8], DFUVersion)
	copy(suffix[8:11], suffixSignature)
	suffix[11] = SuffixSize
	out = append(out, suffix...)
	binary.LittleEndian.PutUint32(out[len(out)-4:], checksum(out[:len(out)-4]))

	return out, nil
}
