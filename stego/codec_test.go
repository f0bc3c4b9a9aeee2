package stego

import (
	"bytes"
	"errors"
	"testing"

	"github.com/root-sector/docvault/types"
)

func blankCarrier(w, h, ch int) *types.CarrierImage {
	return &types.CarrierImage{Width: w, Height: h, Channels: ch, Pix: make([]byte, w*h*ch)}
}

func noisyCarrier(t *testing.T, w, h, ch int) *types.CarrierImage {
	t.Helper()
	c, err := GenerateCarrier(w, h, ch, NewSeededRandom(42))
	if err != nil {
		t.Fatalf("GenerateCarrier() error = %v", err)
	}
	return c
}

func TestEmbedExtractRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		carrier *types.CarrierImage
		payload []byte
		wantErr error
	}{
		{name: "empty payload", carrier: blankCarrier(8, 8, 3), payload: []byte{}},
		{name: "ten bytes in 64x64 rgb", carrier: blankCarrier(64, 64, 3), payload: []byte("0123456789")},
		{name: "binary in noisy rgba", carrier: noisyCarrier(t, 32, 32, 4), payload: bytes.Repeat([]byte{0x00, 0xff, 0x23}, 100)},
		{name: "payload contains hashes", carrier: noisyCarrier(t, 40, 40, 3), payload: []byte("###END_OF")},
		{name: "payload ends with delimiter prefix", carrier: blankCarrier(64, 64, 3), payload: []byte("report###END_OF_DATA"), wantErr: types.ErrValidation},
		{name: "payload contains delimiter", carrier: blankCarrier(64, 64, 3), payload: []byte("x###END_OF_DATA###y"), wantErr: types.ErrValidation},
		{name: "payload is delimiter tail", carrier: blankCarrier(64, 64, 3), payload: []byte("#"), wantErr: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := bytes.Clone(tt.carrier.Pix)
			stego, err := Embed(tt.carrier, tt.payload)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Embed() error = %v, want %v", err, tt.wantErr)
				}
				if !bytes.Equal(tt.carrier.Pix, original) {
					t.Error("rejected Embed() modified the carrier")
				}
				return
			}
			if err != nil {
				t.Fatalf("Embed() error = %v", err)
			}
			got, err := Extract(stego)
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if !bytes.Equal(got, tt.payload) {
				t.Errorf("Extract() = %q, want %q", got, tt.payload)
			}
		})
	}
}

func TestEmbedDoesNotMutateCarrier(t *testing.T) {
	carrier := noisyCarrier(t, 16, 16, 3)
	original := bytes.Clone(carrier.Pix)

	stego, err := Embed(carrier, []byte("payload"))
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}

	if !bytes.Equal(carrier.Pix, original) {
		t.Error("Embed() modified the input carrier")
	}
	if stego.Width != carrier.Width || stego.Height != carrier.Height || stego.Channels != carrier.Channels {
		t.Errorf("dimensions changed: %dx%dx%d", stego.Width, stego.Height, stego.Channels)
	}
	for i := range original {
		if stego.Pix[i]&0xFE != original[i]&0xFE {
			t.Fatalf("sample %d changed above the LSB: %08b -> %08b", i, original[i], stego.Pix[i])
		}
	}
}

func TestEmbedBitOrder(t *testing.T) {
	stego, err := Embed(blankCarrier(8, 8, 3), []byte{0xA5})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	want := []byte{1, 0, 1, 0, 0, 1, 0, 1}
	if !bytes.Equal(stego.Pix[:8], want) {
		t.Errorf("first byte bits = %v, want MSB-first %v", stego.Pix[:8], want)
	}
}

func TestEmbedCapacity(t *testing.T) {
	tests := []struct {
		name    string
		carrier *types.CarrierImage
		size    int
		wantErr error
	}{
		// 8x8x4 = 256 bits, 120 usable after the delimiter
		{name: "exact fit", carrier: blankCarrier(8, 8, 4), size: 15},
		{name: "one byte over", carrier: blankCarrier(8, 8, 4), size: 16, wantErr: types.ErrCapacityExceeded},
		{name: "tiny carrier", carrier: blankCarrier(2, 2, 3), size: 10, wantErr: types.ErrCapacityExceeded},
		{name: "smaller than delimiter", carrier: blankCarrier(4, 4, 3), size: 0, wantErr: types.ErrCapacityExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := bytes.Repeat([]byte{0xAB}, tt.size)
			original := bytes.Clone(tt.carrier.Pix)

			stego, err := Embed(tt.carrier, payload)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Embed() error = %v, want %v", err, tt.wantErr)
				}
				if !bytes.Equal(tt.carrier.Pix, original) {
					t.Error("failed Embed() touched the carrier")
				}
				return
			}
			if err != nil {
				t.Fatalf("Embed() error = %v", err)
			}
			got, err := Extract(stego)
			if err != nil || !bytes.Equal(got, payload) {
				t.Errorf("Extract() = %x, %v", got, err)
			}
		})
	}

	if got := UsableBytes(blankCarrier(8, 8, 4)); got != 15 {
		t.Errorf("UsableBytes(8x8x4) = %d, want 15", got)
	}
	if got := UsableBytes(blankCarrier(2, 2, 3)); got != 0 {
		t.Errorf("UsableBytes(2x2x3) = %d, want 0", got)
	}
}

func TestExtractDelimiterNotFound(t *testing.T) {
	if _, err := Extract(blankCarrier(32, 32, 3)); !errors.Is(err, types.ErrDelimiterNotFound) {
		t.Errorf("Extract(blank) error = %v, want ErrDelimiterNotFound", err)
	}
	if _, err := Extract(noisyCarrier(t, 32, 32, 3)); !errors.Is(err, types.ErrDelimiterNotFound) {
		t.Errorf("Extract(noise) error = %v, want ErrDelimiterNotFound", err)
	}
}

func TestValidateCarrier(t *testing.T) {
	tests := []struct {
		name    string
		carrier *types.CarrierImage
	}{
		{name: "nil", carrier: nil},
		{name: "two channels", carrier: &types.CarrierImage{Width: 4, Height: 4, Channels: 2, Pix: make([]byte, 32)}},
		{name: "short pixels", carrier: &types.CarrierImage{Width: 4, Height: 4, Channels: 3, Pix: make([]byte, 47)}},
		{name: "zero width", carrier: &types.CarrierImage{Width: 0, Height: 4, Channels: 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Embed(tt.carrier, []byte("x")); !errors.Is(err, types.ErrValidation) {
				t.Errorf("Embed() error = %v, want ErrValidation", err)
			}
			if _, err := Extract(tt.carrier); !errors.Is(err, types.ErrValidation) {
				t.Errorf("Extract() error = %v, want ErrValidation", err)
			}
		})
	}
}
