package main

import (
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/root-sector/docvault/stego"
	"github.com/root-sector/docvault/types"
)

func newHideCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hide <image_path> <data_base64> <output_path>",
		Short: "Embed base64 data into an image and write a PNG",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			imagePath, encoded, outputPath := args[0], args[1], args[2]

			data, err := base64.StdEncoding.DecodeString(encoded)
			if err != nil {
				return fmt.Errorf("invalid base64 data: %w", err)
			}
			carrier, err := loadCarrier(imagePath)
			if err != nil {
				return err
			}
			embedded, err := stego.Embed(carrier, data)
			if err != nil {
				return err
			}
			if err := writeCarrier(outputPath, embedded); err != nil {
				return err
			}

			log.Debug().
				Str("input", imagePath).
				Str("output", outputPath).
				Int("bytes", len(data)).
				Int("capacity", stego.UsableBytes(carrier)).
				Msg("Payload hidden")
			writeResult(cmd.OutOrStdout(), result{Success: true, OutputPath: &outputPath})
			return nil
		},
	}
}

// loadCarrier decodes any registered image format. JPEG input is fine as a
// source; the output is always written as PNG.
func loadCarrier(path string) (*types.CarrierImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode image %s: %v", types.ErrValidation, path, err)
	}
	return stego.FromImage(img), nil
}

func writeCarrier(path string, c *types.CarrierImage) error {
	data, err := stego.EncodePNG(c)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write image: %w", err)
	}
	return nil
}
