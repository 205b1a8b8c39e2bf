// Package configcmder provides the config command for managing persistent
// converse configuration stored in the .converse/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent converse configuration.

Configuration is stored as config.toml in the .converse/ directory and provides
default values for command flags. CLI flags and environment variables always
take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  bedrock.region, bedrock.model, bedrock.runtime_endpoint, bedrock.control_endpoint,
  inference.max_tokens, inference.temperature, inference.top_p, inference.system,
  server.listen, stream.sentinel, client.backend,
  events.provider, events.brokers, events.topic

The Bedrock API key is never stored here; set AWS_BEARER_TOKEN_BEDROCK instead.

Use subcommands to get, set, or list configuration values:
  converse config set <key> <value>    Set a configuration value
  converse config get <key>            Get a configuration value
  converse config list                 List all configuration values

Examples:
  converse config set bedrock.region eu-west-1
  converse config set client.backend rest
  converse config get bedrock.model
  converse config list`

const configShortDesc string = "Manage persistent converse configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
