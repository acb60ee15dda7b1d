package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// DefaultDRMRoot is where Linux exposes connector EDIDs.
const DefaultDRMRoot = "/sys/class/drm"

// DefaultPNPID is the EDID manufacturer id of the supported displays.
const DefaultPNPID = "TDG"

const edidBlockSize = 128

var edidMagic = []byte{0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x00}

// EDID is the identity part of an EDID base block.
type EDID struct {
	// Manufacturer is the three letter PNP id
	Manufacturer string

	// ProductID is the manufacturer's product code
	ProductID uint16
}

// ParseEDID decodes the identity fields of an EDID base block.
func ParseEDID(b []byte) (EDID, error) {
	if len(b) < edidBlockSize {
		return EDID{}, fmt.Errorf("edid: %d bytes, expected at least %d", len(b), edidBlockSize)
	}
	for i, m := range edidMagic {
		if b[i] != m {
			return EDID{}, errors.New("edid: bad header")
		}
	}

	var sum byte
	for _, c := range b[:edidBlockSize] {
		sum += c
	}
	if sum != 0 {
		return EDID{}, errors.New("edid: bad checksum")
	}

	mfg := binary.BigEndian.Uint16(b[8:10])
	letters := []byte{
		byte(mfg>>10&0x1F) + 'A' - 1,
		byte(mfg>>5&0x1F) + 'A' - 1,
		byte(mfg&0x1F) + 'A' - 1,
	}

	return EDID{
		Manufacturer: string(letters),
		ProductID:    binary.LittleEndian.Uint16(b[10:12]),
	}, nil
}

// FindEDIDBuses returns the i2c-dev nodes of every DRM connector whose EDID
// matches pnpID and productID.
//
// One physical display sometimes appears on more than one connector and
// only one of the buses works, so every match is returned. The caller
// tries each candidate.
func FindEDIDBuses(drmRoot, devRoot, pnpID string, productID uint16) ([]string, error) {
	connectors, err := filepath.Glob(filepath.Join(drmRoot, "*"))
	if err != nil {
		return nil, err
	}
	sort.Sort(sort.Reverse(sort.StringSlice(connectors)))

	var buses []string
	for _, conn := range connectors {
		raw, err := os.ReadFile(filepath.Join(conn, "edid"))
		if err != nil {
			continue
		}
		edid, err := ParseEDID(raw)
		if err != nil {
			continue
		}
		if edid.Manufacturer != pnpID || edid.ProductID != productID {
			continue
		}

		nodes, err := filepath.Glob(filepath.Join(conn, "ddc", "i2c-dev", "*"))
		if err != nil || len(nodes) != 1 {
			continue
		}
		dev := filepath.Join(devRoot, filepath.Base(nodes[0]))
		if _, err := os.Stat(dev); err != nil {
			continue
		}
		buses = append(buses, dev)
	}

	return buses, nil
}
