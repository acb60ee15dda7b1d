package dfuse

// Image is a parsed DfuSe file.
type Image struct {
	// VendorID, ProductID and Device come from the DFU suffix. 0xFFFF means
	// "any".
	VendorID  uint16
	ProductID uint16
	Device    uint16

	// Targets are listed in file order
	Targets []*Target
}

// Target is one alternate setting of the DFU interface (internal flash,
// option bytes...).
type Target struct {
	// AltSetting selects the DFU alternate interface
	AltSetting byte

	// Name is empty when the target is unnamed
	Name string

	Elements []*Element
}

// Element is a contiguous block of memory to program.
type Element struct {
	// Address is the absolute start address
	Address uint32

	Data []byte
}

// End returns the address one past the last byte of the element.
func (e *Element) End() uint32 {
	return e.Address + uint32(len(e.Data))
}

// Elements returns every element of every target in file order.
func (img *Image) Elements() []*Element {
	var out []*Element
	for _, t := range img.Targets {
		out = append(out, t.Elements...)
	}
	return out
}

// Size returns the total number of data bytes in the image.
func (img *Image) Size() int {
	n := 0
	for _, e := range img.Elements() {
		n += len(e.Data)
	}
	return n
}
