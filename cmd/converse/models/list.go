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

const listLongDesc string = `List the foundation models available in the configured region.

Filters are passed to Bedrock as-is; values are case sensitive.

Examples:
  converse models list
  converse models list --provider Amazon
  converse models list --inference-type ON_DEMAND --json`

const listShortDesc string = "List foundation models"

type listCommander struct {
	flags  config.ClientFlags
	filter catalog.Filter
	asJSON bool
	debug  bool

	config *config.Config
}

func newListCmd() *cobra.Command {
	cmder := &listCommander{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: listShortDesc,
		Long:  listLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Resolve(cmd, catalogFlags)
			if err != nil {
				return err
			}
			cmder.config = cfg
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run(cmd)
		},
	}

	registerCatalogFlags(cmd, &cmder.flags)
	cmd.Flags().StringVar(&cmder.filter.Provider, "provider", "", "Only list models from this provider (e.g. Amazon, Anthropic)")
	cmd.Flags().StringVar(&cmder.filter.OutputModality, "output-modality", "", "Only list models with this output modality (TEXT, IMAGE, EMBEDDING)")
	cmd.Flags().StringVar(&cmder.filter.InferenceType, "inference-type", "", "Only list models supporting this inference type (ON_DEMAND, PROVISIONED)")
	cmd.Flags().BoolVar(&cmder.asJSON, "json", false, "Print the models as JSON")

	return cmd
}

func (c *listCommander) run(cmd *cobra.Command) error {
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

	var models []catalog.Model
	err = step(cmd, "Fetching models from "+c.config.Bedrock.Region, func() error {
		var listErr error
		models, listErr = cat.List(ctx, c.filter)
		return listErr
	})
	if err != nil {
		return fmt.Errorf("listing models: %w", err)
	}

	if c.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(models)
	}

	if len(models) == 0 {
		fmt.Fprintf(out, "  %s\n", cliui.DimStyle.Render("No models found."))
		return nil
	}

	rows := make([][]string, 0, len(models))
	for _, m := range models {
		rows = append(rows, []string{
			m.ID,
			m.Provider,
			strings.Join(m.OutputModalities, ","),
			yesNo(m.ResponseStreamingSupported),
			m.Lifecycle.Status,
		})
	}

	cliui.Table(out, []string{"Model ID", "Provider", "Output", "Streaming", "Status"}, rows)
	fmt.Fprintf(out, "\n  %s\n", cliui.DimStyle.Render(fmt.Sprintf("%d models in %s", len(models), c.config.Bedrock.Region)))

	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
