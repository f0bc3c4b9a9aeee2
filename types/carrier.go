package types

// CarrierImage is a rectangular grid of 8-bit samples, row-major with interleaved
// channels (RGB or RGBA).
type CarrierImage struct {
	Width    int
	Height   int
	Channels int
	Pix      []byte
}

// CapacityBits returns the number of sample LSBs available in the image
func (c *CarrierImage) CapacityBits() int {
	if c == nil {
		return 0
	}
	return c.Width * c.Height * c.Channels
}

// Clone returns a deep copy of the image
func (c *CarrierImage) Clone() *CarrierImage {
	pix := make([]byte, len(c.Pix))
	copy(pix, c.Pix)
	return &CarrierImage{
		Width:    c.Width,
		Height:   c.Height,
		Channels: c.Channels,
		Pix:      pix,
	}
}
