package configcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/converse/pkg/cliui"
	"github.com/papercomputeco/converse/pkg/config"
)

const listLongDesc string = `List all configuration values.

Keys are grouped by their config.toml section. Values that match the
built-in default are marked so overrides stand out.

Examples:
  converse config list`

const listShortDesc string = "List all configuration values"

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: listShortDesc,
		Long:  listLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runList(cmd.OutOrStdout(), configDir)
		},
	}

	return cmd
}

type listEntry struct {
	name      string
	value     string
	isDefault bool
}

func runList(w io.Writer, configDir string) error {
	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	printTarget(w, cfger.GetTarget())

	var (
		sections []string
		entries  = map[string][]listEntry{}
		width    int
	)

	for _, key := range config.ValidConfigKeys() {
		section, name, _ := strings.Cut(key, ".")

		value, err := cfger.GetConfigValue(key)
		if err != nil {
			return err
		}
		def, err := config.DefaultConfigValue(key)
		if err != nil {
			return err
		}

		if _, seen := entries[section]; !seen {
			sections = append(sections, section)
		}
		entries[section] = append(entries[section], listEntry{name: name, value: value, isDefault: value == def})
		width = max(width, len(name))
	}

	for _, section := range sections {
		fmt.Fprintf(w, "[%s]\n", section)
		for _, e := range entries[section] {
			switch {
			case e.value == "":
				fmt.Fprintf(w, "  %-*s = %s\n", width, e.name, cliui.DimStyle.Render("<not set>"))
			case e.isDefault:
				fmt.Fprintf(w, "  %-*s = %q %s\n", width, e.name, e.value, cliui.DimStyle.Render("(default)"))
			default:
				fmt.Fprintf(w, "  %-*s = %q\n", width, e.name, e.value)
			}
		}
		fmt.Fprintln(w)
	}

	return nil
}
