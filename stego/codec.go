// Package stego hides opaque payloads in the least significant bits of
// carrier image samples.
package stego

import (
	"bytes"
	"fmt"

	"github.com/root-sector/docvault/types"
)

// Delimiter terminates every embedded payload
const Delimiter = "###END_OF_DATA###"

// DelimiterBits is the capacity reserved for the delimiter
const DelimiterBits = len(Delimiter) * 8

// Codec implements interfaces.Codec. The zero value is ready to use.
type Codec struct{}

// New returns a Codec
func New() *Codec { return &Codec{} }

// Embed implements interfaces.Codec
func (Codec) Embed(carrier *types.CarrierImage, payload []byte) (*types.CarrierImage, error) {
	return Embed(carrier, payload)
}

// Extract implements interfaces.Codec
func (Codec) Extract(stego *types.CarrierImage) ([]byte, error) {
	return Extract(stego)
}

// UsableBytes is the largest payload a carrier can hold
func UsableBytes(carrier *types.CarrierImage) int {
	usable := carrier.CapacityBits() - DelimiterBits
	if usable < 0 {
		return 0
	}
	return usable / 8
}

// Embed writes payload followed by the delimiter into a copy of carrier, one bit
// per sample LSB in raster order, most significant bit first. The carrier is
// never modified. Payloads that would end early on extraction are rejected.
func Embed(carrier *types.CarrierImage, payload []byte) (*types.CarrierImage, error) {
	if err := Validate(carrier); err != nil {
		return nil, err
	}
	if end := delimiterEnd(payload); end != len(payload) {
		return nil, fmt.Errorf("%w: payload would be truncated to %d of %d bytes by the delimiter", types.ErrValidation, end, len(payload))
	}

	needed := (len(payload) + len(Delimiter)) * 8
	if capacity := carrier.CapacityBits(); needed > capacity {
		return nil, fmt.Errorf("%w: need %d bits, carrier holds %d", types.ErrCapacityExceeded, needed, capacity)
	}

	out := carrier.Clone()
	pos := 0
	write := func(data []byte) {
		for _, b := range data {
			for bit := 7; bit >= 0; bit-- {
				out.Pix[pos] = out.Pix[pos]&0xFE | (b>>uint(bit))&1
				pos++
			}
		}
	}
	write(payload)
	write([]byte(Delimiter))

	return out, nil
}

// delimiterEnd is where Extract would cut payload
func delimiterEnd(payload []byte) int {
	framed := make([]byte, 0, len(payload)+len(Delimiter))
	framed = append(append(framed, payload...), Delimiter...)
	return bytes.Index(framed, []byte(Delimiter))
}

// Extract reassembles bytes from the sample LSBs and returns everything before
// the first byte-aligned delimiter
func Extract(stego *types.CarrierImage) ([]byte, error) {
	if err := Validate(stego); err != nil {
		return nil, err
	}

	delim := []byte(Delimiter)
	total := len(stego.Pix) / 8
	buf := make([]byte, 0, min(total, 1<<16))

	for i := 0; i < total; i++ {
		var b byte
		for _, sample := range stego.Pix[i*8 : i*8+8] {
			b = b<<1 | sample&1
		}
		buf = append(buf, b)

		if len(buf) >= len(delim) && bytes.HasSuffix(buf, delim) {
			return buf[:len(buf)-len(delim)], nil
		}
	}

	return nil, types.ErrDelimiterNotFound
}

// Validate checks a carrier's shape
func Validate(c *types.CarrierImage) error {
	if c == nil {
		return fmt.Errorf("%w: nil carrier", types.ErrValidation)
	}
	if c.Channels != 3 && c.Channels != 4 {
		return fmt.Errorf("%w: carrier must have 3 or 4 channels, got %d", types.ErrValidation, c.Channels)
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("%w: carrier dimensions %dx%d", types.ErrValidation, c.Width, c.Height)
	}
	if len(c.Pix) != c.Width*c.Height*c.Channels {
		return fmt.Errorf("%w: carrier has %d samples, want %d", types.ErrValidation, len(c.Pix), c.Width*c.Height*c.Channels)
	}
	return nil
}
