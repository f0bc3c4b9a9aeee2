package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/root-sector/docvault/stego"
)

func newCreateCarrierCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create-carrier <output_path> [width] [height]",
		Short: "Generate an RGB noise carrier image",
		Args:  cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputPath := args[0]
			width, height := stego.DefaultWidth, stego.DefaultHeight
			var err error
			if len(args) > 1 {
				if width, err = strconv.Atoi(args[1]); err != nil {
					return fmt.Errorf("invalid width %q", args[1])
				}
			}
			if len(args) > 2 {
				if height, err = strconv.Atoi(args[2]); err != nil {
					return fmt.Errorf("invalid height %q", args[2])
				}
			}

			carrier, err := stego.GenerateCarrier(width, height, stego.DefaultChannels, stego.NewRandom())
			if err != nil {
				return err
			}
			if err := writeCarrier(outputPath, carrier); err != nil {
				return err
			}
			writeResult(cmd.OutOrStdout(), result{Success: true, OutputPath: &outputPath})
			return nil
		},
	}
}
