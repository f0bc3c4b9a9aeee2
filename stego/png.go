package stego

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"

	"github.com/root-sector/docvault/types"
)

// EncodePNG encodes a carrier losslessly. A 4-channel carrier must keep at
// least one non-opaque sample, otherwise PNG would store it as RGB and the
// sample layout would change on decode.
func EncodePNG(c *types.CarrierImage) ([]byte, error) {
	if err := Validate(c); err != nil {
		return nil, err
	}

	img := image.NewNRGBA(image.Rect(0, 0, c.Width, c.Height))
	switch c.Channels {
	case 4:
		copy(img.Pix, c.Pix)
		if img.Opaque() {
			return nil, fmt.Errorf("%w: fully opaque 4-channel carrier does not round-trip through PNG", types.ErrValidation)
		}
	case 3:
		for i, j := 0, 0; i < len(c.Pix); i, j = i+3, j+4 {
			img.Pix[j] = c.Pix[i]
			img.Pix[j+1] = c.Pix[i+1]
			img.Pix[j+2] = c.Pix[i+2]
			img.Pix[j+3] = 0xFF
		}
	}

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodePNG decodes PNG bytes into a carrier
func DecodePNG(data []byte) (*types.CarrierImage, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode PNG: %v", types.ErrValidation, err)
	}
	return FromImage(img), nil
}

// FromImage converts any image to a carrier. Opaque images become 3-channel
// carriers; images with transparency keep their alpha as a fourth channel.
func FromImage(src image.Image) *types.CarrierImage {
	b := src.Bounds()
	nrgba, ok := src.(*image.NRGBA)
	if !ok || b.Min != (image.Point{}) || nrgba.Stride != 4*b.Dx() {
		nrgba = image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(nrgba, nrgba.Bounds(), src, b.Min, draw.Src)
	}

	w, h := b.Dx(), b.Dy()
	samples := nrgba.Pix[:w*h*4]
	if !nrgba.Opaque() {
		pix := make([]byte, len(samples))
		copy(pix, samples)
		return &types.CarrierImage{Width: w, Height: h, Channels: 4, Pix: pix}
	}

	pix := make([]byte, w*h*3)
	for i, j := 0, 0; j < len(samples); i, j = i+3, j+4 {
		pix[i] = samples[j]
		pix[i+1] = samples[j+1]
		pix[i+2] = samples[j+2]
	}
	return &types.CarrierImage{Width: w, Height: h, Channels: 3, Pix: pix}
}
