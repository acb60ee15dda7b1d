package transport

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildEDID(pnp string, product uint16) []byte {
	b := make([]byte, edidBlockSize)
	copy(b, edidMagic)
	mfg := uint16(pnp[0]-'A'+1)<<10 | uint16(pnp[1]-'A'+1)<<5 | uint16(pnp[2]-'A'+1)
	binary.BigEndian.PutUint16(b[8:10], mfg)
	binary.LittleEndian.PutUint16(b[10:12], product)

	var sum byte
	for _, c := range b[:edidBlockSize-1] {
		sum += c
	}
	b[edidBlockSize-1] = -sum
	return b
}

func TestParseEDID(t *testing.T) {
	e, err := ParseEDID(buildEDID("TDG", 569))
	require.NoError(t, err)
	assert.Equal(t, EDID{Manufacturer: "TDG", ProductID: 569}, e)

	bad := buildEDID("TDG", 569)
	bad[20] ^= 0xFF
	_, err = ParseEDID(bad)
	assert.Error(t, err, "checksum")

	bad = buildEDID("TDG", 569)
	bad[0] = 0x01
	_, err = ParseEDID(bad)
	assert.Error(t, err, "header")

	_, err = ParseEDID(make([]byte, 10))
	assert.Error(t, err)
}

func TestFindEDIDBuses(t *testing.T) {
	drm := t.TempDir()
	dev := t.TempDir()

	connector := func(name string, edid []byte, bus string) {
		dir := filepath.Join(drm, name)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		if edid != nil {
			require.NoError(t, os.WriteFile(filepath.Join(dir, "edid"), edid, 0o644))
		}
		if bus != "" {
			require.NoError(t, os.MkdirAll(filepath.Join(dir, "ddc", "i2c-dev", bus), 0o755))
			require.NoError(t, os.WriteFile(filepath.Join(dev, bus), nil, 0o644))
		}
	}

	connector("card0-HDMI-A-1", buildEDID("TDG", 569), "i2c-3")
	connector("card0-DP-1", buildEDID("TDG", 569), "i2c-7")
	connector("card0-DP-2", buildEDID("TDG", 570), "i2c-8")
	connector("card0-eDP-1", buildEDID("ABC", 569), "i2c-9")
	connector("card0-HDMI-A-2", []byte{0x00}, "i2c-10")
	connector("card0-HDMI-A-3", buildEDID("TDG", 569), "")
	connector("version", nil, "")

	buses, err := FindEDIDBuses(drm, dev, DefaultPNPID, 569)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dev, "i2c-3"),
		filepath.Join(dev, "i2c-7"),
	}, buses)
}
