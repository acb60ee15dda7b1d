package protocol

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// padded returns s followed by NUL bytes up to n.
func padded(s string, n int) []byte {
	b := make([]byte, n)
	copy(b, s)
	return b
}

func microVersionFixture() []byte {
	buf := []byte{0x02, 0x07}
	return append(buf, padded("v2.7-3-gabc123", 56)...)
}

func TestDecodeSizeTolerance(t *testing.T) {
	cmd, err := Display.Commands.Lookup(OpVersion)
	require.NoError(t, err)

	fixture := microVersionFixture()

	tests := []struct {
		name          string
		buf           []byte
		wantErr       bool
		wantTruncated int
	}{
		{
			name:    "shorter than schema",
			buf:     fixture[:MicroVersionSize-1],
			wantErr: true,
		},
		{
			name:    "empty",
			buf:     nil,
			wantErr: true,
		},
		{
			name: "exact size",
			buf:  fixture,
		},
		{
			name:          "longer than schema",
			buf:           append(append([]byte{}, fixture...), 0xAA, 0xBB, 0xCC),
			wantTruncated: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, truncated, err := Decode(cmd, tt.buf)

			if tt.wantErr {
				var malformed *MalformedResponseError
				require.True(t, errors.As(err, &malformed), "expected MalformedResponseError, got %v", err)
				assert.Equal(t, len(tt.buf), malformed.Got)
				assert.Equal(t, MicroVersionSize, malformed.Want)
				assert.Nil(t, resp)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantTruncated, truncated)

			v, ok := resp.(*MicroVersion)
			require.True(t, ok)
			assert.Equal(t, uint8(2), v.Major)
			assert.Equal(t, uint8(7), v.Minor)
			assert.Equal(t, "v2.7-3-gabc123", v.GitVersion)
		})
	}
}

func TestDecodeNoResponse(t *testing.T) {
	cmd, err := Display.Commands.Lookup(OpRebootFirmware)
	require.NoError(t, err)

	_, _, err = Decode(cmd, []byte{0x00})
	assert.Error(t, err)
}

func TestDecodeFPGAVersionLegacy(t *testing.T) {
	cmd, err := Display.Commands.Lookup(OpFPGAVersion)
	require.NoError(t, err)

	tests := []struct {
		name        string
		buf         []byte
		wantVersion string
		wantGit     string
		wantErr     bool
	}{
		{
			name:        "current layout",
			buf:         append(padded("1.4  ", 16), padded("g1234abcd", 32)...),
			wantVersion: "1.4",
			wantGit:     "g1234abcd",
		},
		{
			name:        "legacy layout",
			buf:         padded("1.2", 16),
			wantVersion: "1.2",
		},
		{
			name:        "between legacy and current",
			buf:         padded("1.3", 20),
			wantVersion: "1.3",
		},
		{
			name:        "blank version",
			buf:         []byte("                "),
			wantVersion: "",
		},
		{
			name:    "shorter than legacy layout",
			buf:     padded("1", 10),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _, err := Decode(cmd, tt.buf)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			v := resp.(*FPGAVersion)
			assert.Equal(t, tt.wantVersion, v.Version)
			assert.Equal(t, tt.wantGit, v.GitVersion)
		})
	}
}

func TestLogPart(t *testing.T) {
	tests := []struct {
		name         string
		data         []byte
		wantText     string
		wantFinished bool
	}{
		{
			name:         "short text is the end of the log",
			data:         padded("boot ok\n", LogPartSize),
			wantText:     "boot ok\n",
			wantFinished: true,
		},
		{
			name:     "full chunk means more to read",
			data:     []byte(stringOf('x', LogPartSize)),
			wantText: stringOf('x', LogPartSize),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var lp LogPart
			require.NoError(t, lp.UnmarshalBinary(tt.data))
			assert.Equal(t, tt.wantText, lp.Text)
			assert.Equal(t, tt.wantFinished, lp.Finished)
		})
	}
}

func stringOf(c byte, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = c
	}
	return string(b)
}

func TestHDMIState(t *testing.T) {
	data := make([]byte, HDMIStateSize)
	data[0] = 1
	binary.LittleEndian.PutUint16(data[1:3], 1920)
	binary.LittleEndian.PutUint16(data[3:5], 1080)
	binary.LittleEndian.PutUint32(data[5:9], math.Float32bits(59.94))
	binary.LittleEndian.PutUint32(data[9:13], math.Float32bits(148.5))
	binary.LittleEndian.PutUint16(data[13:15], 2200)
	binary.LittleEndian.PutUint16(data[15:17], 1125)

	var s HDMIState
	require.NoError(t, s.UnmarshalBinary(data))

	assert.Equal(t, HDMIState{
		InputLocked:  1,
		ActiveWidth:  1920,
		ActiveHeight: 1080,
		FPS:          59.94,
		ClockFreq:    148.5,
		TotalWidth:   2200,
		TotalHeight:  1125,
	}, s)
}

func TestFixedResponses(t *testing.T) {
	tests := []struct {
		name string
		resp Response
		data []byte
		want Response
	}{
		{
			name: "status",
			resp: new(Status),
			data: []byte{0x03},
			want: &Status{Code: 0x03},
		},
		{
			name: "i2c result",
			resp: new(I2CResult),
			data: []byte{0x05, 0x34, 0x12},
			want: &I2CResult{DevAddr: 0x05, Value: 0x1234},
		},
		{
			name: "brightness",
			resp: new(Brightness),
			data: []byte{0x40},
			want: &Brightness{Level: 0x40},
		},
		{
			name: "edid state",
			resp: new(EDIDState),
			data: []byte{0x10, 0x00, 0x01, 0x00},
			want: &EDIDState{NumStartConditions: 16, PageAddrAccessed: 1},
		},
		{
			name: "display state",
			resp: new(DisplayState),
			data: []byte{0x01, 0x2C, 0x01, 0x00, 0x00},
			want: &DisplayState{Status: 1, Temperature: 300},
		},
		{
			name: "ir state",
			resp: new(IRState),
			data: []byte{0x07, 0x09},
			want: &IRState{Val1: 7, Val2: 9},
		},
		{
			name: "serial number",
			resp: new(SerialNumber),
			data: padded("SN-000123", SerialNumberSize),
			want: &SerialNumber{Serial: "SN-000123"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Len(t, tt.data, tt.resp.Size())
			require.NoError(t, tt.resp.UnmarshalBinary(tt.data))
			assert.Equal(t, tt.want, tt.resp)
		})
	}
}

func TestUnmarshalWrongLength(t *testing.T) {
	responses := []Response{
		new(MicroVersion), new(LogPart), new(SerialNumber), new(Status),
		new(I2CResult), new(Brightness), new(HDMIState), new(EDIDState),
		new(DisplayState), new(IRState), new(FPGAVersion),
	}

	for _, r := range responses {
		err := r.UnmarshalBinary(make([]byte, r.Size()+1))
		assert.Error(t, err, "%T accepted an oversized buffer", r)
	}
}

func TestStatusOK(t *testing.T) {
	assert.True(t, (&Status{Code: StatusOK}).OK())
	assert.False(t, (&Status{Code: 0x01}).OK())
}
