package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/root-sector/docvault/config"
)

var configPath string

// result is the single JSON line every command prints
type result struct {
	Success    bool    `json:"success"`
	OutputPath *string `json:"output_path,omitempty"`
	Data       *string `json:"data,omitempty"`
	Error      string  `json:"error,omitempty"`
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "docvault",
		Short: "docvault - steganographic carrier tools",
		Long: `docvault hides payloads in the least significant bits of lossless PNG carriers
and recovers them again. Every command prints one JSON object on stdout.

Available Commands:
  hide            Embed base64 data into an image
  extract         Recover hidden data from an image
  create-carrier  Generate a noise carrier image`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cfg.ApplyLogging()
			log.Debug().Str("config", configPath).Str("command", cmd.Name()).Msg("Starting command")
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "docvault.yaml", "path to the configuration file")

	root.AddCommand(newHideCmd())
	root.AddCommand(newExtractCmd())
	root.AddCommand(newCreateCarrierCmd())
	return root
}

// run executes the CLI and returns the process exit code
func run(args []string, stdout io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(io.Discard)

	if err := root.Execute(); err != nil {
		writeResult(stdout, result{Success: false, Error: err.Error()})
		return 1
	}
	return 0
}

func writeResult(w io.Writer, r result) {
	data, err := json.Marshal(r)
	if err != nil {
		fmt.Fprintf(w, `{"success":false,"error":%q}`+"\n", err.Error())
		return
	}
	fmt.Fprintln(w, string(data))
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}
