package main

import (
	"encoding/base64"

	"github.com/spf13/cobra"

	"github.com/root-sector/docvault/stego"
)

func newExtractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract <image_path>",
		Short: "Recover hidden data from a PNG and print it as base64",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			carrier, err := loadCarrier(args[0])
			if err != nil {
				return err
			}
			payload, err := stego.Extract(carrier)
			if err != nil {
				return err
			}
			data := base64.StdEncoding.EncodeToString(payload)
			writeResult(cmd.OutOrStdout(), result{Success: true, Data: &data})
			return nil
		},
	}
}
