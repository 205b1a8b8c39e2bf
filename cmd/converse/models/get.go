package modelscmder

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/converse/pkg/bedrock"
	"github.com/papercomputeco/converse/pkg/catalog"
	"github.com/papercomputeco/converse/pkg/cliui"
	"github.com/papercomputeco/converse/pkg/config"
	"github.com/papercomputeco/converse/pkg/logger"
)

const getLongDesc string = `Describe a single foundation model.

Without an argument the configured model (bedrock.model) is described.

Examples:
  converse models get
  converse models get anthropic.claude-3-haiku-20240307-v1:0`

const getShortDesc string = "Describe a foundation model"

type getCommander struct {
	flags  config.ClientFlags
	asJSON bool
	debug  bool

	config *config.Config
}

func newGetCmd() *cobra.Command {
	cmder := &getCommander{}

	cmd := &cobra.Command{
		Use:   "get [model-id]",
		Short: getShortDesc,
		Long:  getLongDesc,
		Args:  cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Resolve(cmd, catalogFlags)
			if err != nil {
				return err
			}
			cmder.config = cfg
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			id := cmder.config.Bedrock.Model
			if len(args) == 1 {
				id = args[0]
			}

			return cmder.run(cmd, id)
		},
	}

	registerCatalogFlags(cmd, &cmder.flags)
	cmd.Flags().BoolVar(&cmder.asJSON, "json", false, "Print the model as JSON")

	return cmd
}

func (c *getCommander) run(cmd *cobra.Command, id string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	log := logger.New(
		logger.WithDebug(c.debug),
		logger.WithPretty(true),
		logger.WithWriter(os.Stderr),
	)

	cat, err := bedrock.NewCatalog(ctx, c.config, log)
	if err != nil {
		return err
	}

	var model *catalog.Model
	err = step(cmd, "Describing "+id, func() error {
		var getErr error
		model, getErr = cat.Get(ctx, id)
		return getErr
	})
	if err != nil {
		return fmt.Errorf("describing model: %w", err)
	}

	if c.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(model)
	}

	fmt.Fprintln(out)
	cliui.KeyValue(out, "Model ID", model.ID)
	cliui.KeyValue(out, "Name", model.Name)
	cliui.KeyValue(out, "Provider", model.Provider)
	cliui.KeyValue(out, "ARN", model.ARN)
	cliui.KeyValue(out, "Input", strings.Join(model.InputModalities, ", "))
	cliui.KeyValue(out, "Output", strings.Join(model.OutputModalities, ", "))
	cliui.KeyValue(out, "Streaming", yesNo(model.ResponseStreamingSupported))
	cliui.KeyValue(out, "Inference", strings.Join(model.InferenceTypesSupported, ", "))
	cliui.KeyValue(out, "Lifecycle", model.Lifecycle.Status)
	fmt.Fprintln(out)

	return nil
}
