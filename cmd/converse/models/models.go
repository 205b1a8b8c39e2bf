// Package modelscmder provides the models command for browsing the Bedrock
// foundation model catalog.
package modelscmder

import (
	"github.com/spf13/cobra"

	"github.com/papercomputeco/converse/pkg/cliui"
	"github.com/papercomputeco/converse/pkg/config"
)

const modelsLongDesc string = `Browse the Bedrock foundation model catalog.

Models are read from the Bedrock control plane of the configured region.

Examples:
  converse models list
  converse models list --provider Anthropic --output-modality TEXT
  converse models get
  converse models get meta.llama3-8b-instruct-v1:0`

const modelsShortDesc string = "Browse the Bedrock foundation model catalog"

// catalogFlags are the registry keys the catalog commands honour.
var catalogFlags = []string{
	config.FlagRegion,
	config.FlagModel,
	config.FlagControlEndpoint,
}

func NewModelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: modelsShortDesc,
		Long:  modelsLongDesc,
	}

	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newGetCmd())

	return cmd
}

// registerCatalogFlags adds the catalogFlags to cmd.
func registerCatalogFlags(cmd *cobra.Command, f *config.ClientFlags) {
	config.AddStringFlag(cmd, config.Flags, config.FlagRegion, &f.Region)
	config.AddStringFlag(cmd, config.Flags, config.FlagModel, &f.Model)
	config.AddStringFlag(cmd, config.Flags, config.FlagControlEndpoint, &f.ControlEndpoint)
}

// step runs fn behind a spinner when stderr is a terminal.
func step(cmd *cobra.Command, msg string, fn func() error) error {
	w := cmd.ErrOrStderr()
	if !cliui.IsTerminal(w) {
		return fn()
	}
	return cliui.Step(w, msg, fn)
}
