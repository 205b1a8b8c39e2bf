// Package conversecmder
package conversecmder

import (
	"github.com/spf13/cobra"

	askcmder "github.com/papercomputeco/converse/cmd/converse/ask"
	chatcmder "github.com/papercomputeco/converse/cmd/converse/chat"
	configcmder "github.com/papercomputeco/converse/cmd/converse/config"
	modelscmder "github.com/papercomputeco/converse/cmd/converse/models"
	servecmder "github.com/papercomputeco/converse/cmd/converse/serve"
	structuredcmder "github.com/papercomputeco/converse/cmd/converse/structured"
	versioncmder "github.com/papercomputeco/converse/cmd/version"
	"github.com/papercomputeco/converse/pkg/config"
)

const converseLongDesc string = `Converse talks to Amazon Bedrock through the Converse API.

Every command can use either the AWS SDK runtime client or the raw HTTP
transport, which decodes streamed deltas itself.

Run the HTTP service using:
  converse serve

Or talk to a model from the console:
  converse ask "Tell me about Max Verstappen."
  converse ask --stream "Tell me about Red Bull Racing."
  converse chat
  converse structured course
  converse models list`

const converseShortDesc string = "Converse - Bedrock Converse client and service"

// dotEnvFile is loaded from the working directory before any command runs.
const dotEnvFile = ".env"

func NewConverseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "converse",
		Short:        converseShortDesc,
		Long:         converseLongDesc,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return config.LoadDotEnv(dotEnvFile)
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .converse/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(askcmder.NewAskCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(structuredcmder.NewStructuredCmd())
	cmd.AddCommand(modelscmder.NewModelsCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
