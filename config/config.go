// Package config reads the HCL file describing the devices a host talks to.
//
//	device "panel" {
//	  family          = "display"
//	  transports      = ["hid", "ftdi", "i2c"]
//	  i2c_address     = 55
//	  poll_interval   = "500ms"
//	  command_timeout = "1s"
//	}
//
//	metrics {
//	  listen = ":9100"
//	}
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"periph.io/x/conn/v3/physic"

	"github.com/moffa90/go-devlink/device"
	"github.com/moffa90/go-devlink/protocol"
	"github.com/moffa90/go-devlink/transport"
	"github.com/moffa90/go-devlink/watcher"
)

// Transport names accepted in the transports list.
const (
	TransportHID  = "hid"
	TransportFTDI = "ftdi"
	TransportI2C  = "i2c"
)

var knownTransports = []string{TransportHID, TransportFTDI, TransportI2C}

type Schema struct {
	Device  []*DeviceSchema `hcl:"device,block"`
	Metrics *MetricsSchema  `hcl:"metrics,block"`
}

type DeviceSchema struct {
	Name           string   `hcl:"name,label"`
	Family         string   `hcl:"family,attr"`
	Transports     []string `hcl:"transports,optional"`
	I2CAddress     int      `hcl:"i2c_address,optional"`
	I2CBus         string   `hcl:"i2c_bus,optional"`
	FTDIFrequency  int      `hcl:"ftdi_frequency,optional"`
	PollInterval   string   `hcl:"poll_interval,optional"`
	CommandTimeout string   `hcl:"command_timeout,optional"`
	LogTimeout     string   `hcl:"log_timeout,optional"`
	Warmup         string   `hcl:"warmup,optional"`
	SerialLog      bool     `hcl:"serial_log,optional"`
}

// MetricsSchema selects where metrics go: a Prometheus listener, a statsd
// server, or both.
type MetricsSchema struct {
	Listen    string `hcl:"listen,optional"`
	Statsd    string `hcl:"statsd,optional"`
	Namespace string `hcl:"namespace,optional"`
}

func ReadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}

	s := new(Schema)
	return s, s.Decode(data)
}

func (s *Schema) Decode(data []byte) error {
	file, diag := hclsyntax.ParseConfig(data, "", hcl.Pos{Line: 1, Column: 1})
	if diag.HasErrors() {
		return diag.Errs()[0]
	}

	diag = gohcl.DecodeBody(file.Body, nil, s)
	if diag.HasErrors() {
		return diag.Errs()[0]
	}

	for _, ds := range s.Device {
		if err := ds.Validate(); err != nil {
			return fmt.Errorf("device %q: %w", ds.Name, err)
		}
	}
	return nil
}

func (s *Schema) Encode() ([]byte, error) {
	f := hclwrite.NewEmptyFile()
	gohcl.EncodeIntoBody(s, f.Body())
	return f.Bytes(), nil
}

// Lookup returns the device block called name. An empty name selects the
// only device of a single-device file.
func (s *Schema) Lookup(name string) (*DeviceSchema, error) {
	if name == "" {
		if len(s.Device) != 1 {
			return nil, fmt.Errorf("%d devices configured, select one by name", len(s.Device))
		}
		return s.Device[0], nil
	}
	for _, ds := range s.Device {
		if ds.Name == name {
			return ds, nil
		}
	}
	return nil, fmt.Errorf("device %q not configured", name)
}

// NewDeviceSchema returns the defaults for a device of family.
func NewDeviceSchema(name, family string) *DeviceSchema {
	return &DeviceSchema{
		Name:       name,
		Family:     family,
		Transports: []string{TransportHID},
	}
}

func (ds *DeviceSchema) EncodeAsBlock() []byte {
	f := hclwrite.NewEmptyFile()
	block := gohcl.EncodeAsBlock(ds, "device")
	f.Body().AppendBlock(block)
	return f.Bytes()
}

func DecodeDeviceFromBlock(schema string) (*DeviceSchema, error) {
	sf := &Schema{}
	err := sf.Decode([]byte(schema))
	if err != nil {
		return nil, err
	}
	if len(sf.Device) != 1 {
		return nil, errors.New("more than one device in schema")
	}
	return sf.Device[0], nil
}

// Validate checks the family, transports, address and durations.
func (ds *DeviceSchema) Validate() error {
	if _, err := protocol.LookupFamily(ds.Family); err != nil {
		return err
	}
	for _, t := range ds.Transports {
		if !slices.Contains(knownTransports, t) {
			return fmt.Errorf("unknown transport %q", t)
		}
	}
	if ds.I2CAddress < 0 || ds.I2CAddress > 0x7F {
		return fmt.Errorf("i2c_address 0x%X is not a 7-bit address", ds.I2CAddress)
	}
	if ds.FTDIFrequency < 0 {
		return fmt.Errorf("ftdi_frequency %d is negative", ds.FTDIFrequency)
	}
	for _, d := range []struct{ name, val string }{
		{"poll_interval", ds.PollInterval},
		{"command_timeout", ds.CommandTimeout},
		{"log_timeout", ds.LogTimeout},
		{"warmup", ds.Warmup},
	} {
		if _, err := parseDuration(d.val, 0); err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
	}
	return nil
}

// FamilySpec returns the protocol family, with the I2C address overridden
// when the block sets one.
func (ds *DeviceSchema) FamilySpec() (*protocol.Family, error) {
	f, err := protocol.LookupFamily(ds.Family)
	if err != nil {
		return nil, err
	}
	if ds.I2CAddress == 0 || uint16(ds.I2CAddress) == f.I2CAddress {
		return f, nil
	}
	c := *f
	c.I2CAddress = uint16(ds.I2CAddress)
	return &c, nil
}

func (ds *DeviceSchema) PollIntervalDuration() time.Duration {
	d, _ := parseDuration(ds.PollInterval, watcher.DefaultInterval)
	return d
}

func (ds *DeviceSchema) CommandTimeoutDuration() time.Duration {
	d, _ := parseDuration(ds.CommandTimeout, device.DefaultCommandTimeout)
	return d
}

func (ds *DeviceSchema) LogTimeoutDuration() time.Duration {
	d, _ := parseDuration(ds.LogTimeout, device.DefaultLogTimeout)
	return d
}

func (ds *DeviceSchema) WarmupDuration() time.Duration {
	d, _ := parseDuration(ds.Warmup, device.DefaultWarmup())
	return d
}

func (ds *DeviceSchema) FTDIFreq() physic.Frequency {
	if ds.FTDIFrequency == 0 {
		return transport.DefaultFTDIFrequency
	}
	return physic.Frequency(ds.FTDIFrequency) * physic.Hertz
}

// Enumerators returns one device enumerator per configured transport, in
// the configured order. No transports means HID only.
func (ds *DeviceSchema) Enumerators(opts ...transport.Option) []device.Enumerator {
	transports := ds.Transports
	if len(transports) == 0 {
		transports = []string{TransportHID}
	}

	var out []device.Enumerator
	for _, t := range transports {
		switch t {
		case TransportHID:
			out = append(out, device.HIDEnumerator(opts...))
		case TransportFTDI:
			out = append(out, device.FTDIEnumerator(ds.FTDIFreq(), opts...))
		case TransportI2C:
			out = append(out, device.I2CDevEnumerator(ds.I2CBus, opts...))
		}
	}
	return out
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def, err
	}
	if d < 0 {
		return def, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}
