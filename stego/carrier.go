package stego

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/root-sector/docvault/types"
)

// Default generated carrier size
const (
	DefaultWidth    = 1920
	DefaultHeight   = 1080
	DefaultChannels = 3
)

// maxCarrierSamples caps generated carriers at 64 MiB of samples
const maxCarrierSamples = 64 << 20

// NewRandom returns a noise source seeded from crypto/rand
func NewRandom() *rand.Rand {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		// crypto/rand.Read does not fail on supported platforms
		panic("stego: seeding noise source failed: " + err.Error())
	}
	return rand.New(rand.NewChaCha8(seed))
}

// NewSeededRandom returns a deterministic noise source
func NewSeededRandom(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// GenerateCarrier produces a natural-looking carrier: uniform noise scaled by a
// diagonal brightness gradient, then smoothed with a 5x5 Gaussian blur.
func GenerateCarrier(width, height, channels int, rng *rand.Rand) (*types.CarrierImage, error) {
	if channels != 3 && channels != 4 {
		return nil, fmt.Errorf("%w: carrier must have 3 or 4 channels, got %d", types.ErrValidation, channels)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: carrier dimensions %dx%d", types.ErrValidation, width, height)
	}
	if width*height*channels > maxCarrierSamples {
		return nil, fmt.Errorf("%w: carrier %dx%dx%d exceeds the generation limit", types.ErrValidation, width, height, channels)
	}
	if rng == nil {
		rng = NewRandom()
	}

	pix := make([]byte, width*height*channels)
	var word [8]byte
	for i := 0; i < len(pix); i += 8 {
		binary.LittleEndian.PutUint64(word[:], rng.Uint64())
		copy(pix[i:], word[:])
	}

	denom := float64(width + height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			scale := 0.7 + 0.3*float64(x+y)/denom
			base := (y*width + x) * channels
			for c := 0; c < channels; c++ {
				if channels == 4 && c == 3 {
					// generated carriers are opaque
					pix[base+c] = 0xFF
					continue
				}
				pix[base+c] = byte(float64(pix[base+c]) * scale)
			}
		}
	}

	img := &types.CarrierImage{Width: width, Height: height, Channels: channels, Pix: pix}
	gaussianBlur5(img)
	return img, nil
}

// CarrierFor generates a carrier of at least width x height that can hold a
// payload of payloadLen bytes, growing both sides in proportion when needed.
func CarrierFor(payloadLen, width, height, channels int, rng *rand.Rand) (*types.CarrierImage, error) {
	if payloadLen < 0 {
		return nil, fmt.Errorf("%w: negative payload length", types.ErrValidation)
	}
	if width <= 0 || height <= 0 {
		width, height = DefaultWidth, DefaultHeight
	}
	if channels == 0 {
		channels = DefaultChannels
	}

	needed := (payloadLen + len(Delimiter)) * 8
	for width*height*channels < needed {
		factor := math.Sqrt(float64(needed) / float64(width*height*channels))
		width = int(math.Ceil(float64(width) * factor))
		height = int(math.Ceil(float64(height) * factor))
	}

	return GenerateCarrier(width, height, channels, rng)
}

// gaussianBlur5 applies a separable 5x5 binomial Gaussian kernel (1 4 6 4 1)/16
// per channel with reflect-101 borders. Alpha is left untouched.
func gaussianBlur5(img *types.CarrierImage) {
	kernel := [5]int{1, 4, 6, 4, 1}
	w, h, ch := img.Width, img.Height, img.Channels
	colorChannels := ch
	if ch == 4 {
		colorChannels = 3
	}

	tmp := make([]int, len(img.Pix))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for c := 0; c < colorChannels; c++ {
				sum := 0
				for k := -2; k <= 2; k++ {
					sum += kernel[k+2] * int(img.Pix[(y*w+reflect101(x+k, w))*ch+c])
				}
				tmp[(y*w+x)*ch+c] = sum
			}
		}
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for c := 0; c < colorChannels; c++ {
				sum := 0
				for k := -2; k <= 2; k++ {
					sum += kernel[k+2] * tmp[(reflect101(y+k, h)*w+x)*ch+c]
				}
				// two passes of /16 with rounding
				img.Pix[(y*w+x)*ch+c] = byte((sum + 128) >> 8)
			}
		}
	}
}

func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*(n-1) - i
		}
	}
	return i
}
