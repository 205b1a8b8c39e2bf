// Package structuredcmder provides the structured command, which asks a model
// to answer through a tool schema and prints the typed result.
package structuredcmder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/converse/pkg/bedrock"
	"github.com/papercomputeco/converse/pkg/cliui"
	"github.com/papercomputeco/converse/pkg/config"
	"github.com/papercomputeco/converse/pkg/converse"
	"github.com/papercomputeco/converse/pkg/llm"
	"github.com/papercomputeco/converse/pkg/logger"
	"github.com/papercomputeco/converse/pkg/tools"
)

const structuredLongDesc string = `Ask a model for a structured reply through tool calling.

The request carries a single tool specification with tool choice "auto"; the
model answers by calling the tool and its input is printed as the result.

Examples:
  converse structured course
  converse structured driver "Lewis Hamilton"
  converse structured driver --json`

const structuredShortDesc string = "Schema-constrained replies through tool calling"

func NewStructuredCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "structured",
		Short: structuredShortDesc,
		Long:  structuredLongDesc,
	}

	cmd.AddCommand(newCourseCmd())
	cmd.AddCommand(newDriverCmd())

	return cmd
}

// structuredCommander runs one tool-calling request. build turns the
// positional arguments into the request and render prints a successful result.
type structuredCommander struct {
	flags  config.ClientFlags
	asJSON bool
	debug  bool

	build  func(base *llm.ChatRequest, args []string) *llm.ChatRequest
	render func(w io.Writer, result converse.StructuredResult) error

	config *config.Config
	logger *slog.Logger
	out    io.Writer
}

func (c *structuredCommander) command(cmd *cobra.Command) *cobra.Command {
	cmd.PreRunE = func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Resolve(cmd, config.ClientFlagKeys)
		if err != nil {
			return err
		}
		c.config = cfg
		return nil
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		var err error
		c.debug, err = cmd.Flags().GetBool("debug")
		if err != nil {
			return fmt.Errorf("could not get debug flag: %w", err)
		}
		c.out = cmd.OutOrStdout()

		return c.run(cmd.Context(), args)
	}

	c.flags.Register(cmd)
	cmd.Flags().BoolVar(&c.asJSON, "json", false, "Print the result as JSON")

	return cmd
}

func (c *structuredCommander) run(ctx context.Context, args []string) error {
	c.logger = logger.New(
		logger.WithDebug(c.debug),
		logger.WithPretty(true),
		logger.WithWriter(os.Stderr),
	)

	client, err := bedrock.NewClient(ctx, c.config, "", c.logger)
	if err != nil {
		return err
	}

	req := c.build(c.config.BaseRequest(), args)

	resp, err := client.Converse(ctx, req)
	if err != nil {
		return fmt.Errorf("converse: %w", err)
	}

	result, err := converse.Structured(resp)
	if err != nil {
		return err
	}

	c.logger.Debug("structured reply",
		"backend", client.Name(),
		"tool", req.Tools[0].Name,
		"stop_reason", resp.StopReason,
		"has_data", result.Data != nil,
	)

	if c.asJSON {
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	// Without tool input the model answered in prose only.
	if result.Data == nil {
		cliui.Reply(c.out, result.Text, false)
		return nil
	}

	return c.render(c.out, result)
}

func newCourseCmd() *cobra.Command {
	cmder := &structuredCommander{
		build: func(base *llm.ChatRequest, _ []string) *llm.ChatRequest {
			return tools.CourseRequest(base)
		},
		render: renderCourse,
	}

	return cmder.command(&cobra.Command{
		Use:   "course",
		Short: "Generate a structured JavaScript course outline",
		Args:  cobra.NoArgs,
	})
}

func newDriverCmd() *cobra.Command {
	cmder := &structuredCommander{
		build: func(base *llm.ChatRequest, args []string) *llm.ChatRequest {
			name := strings.TrimSpace(strings.Join(args, " "))
			if name == "" {
				name = tools.DriverName
			}
			return tools.DriverRequest(base, name)
		},
		render: renderDriver,
	}

	return cmder.command(&cobra.Command{
		Use:   "driver [name]",
		Short: "Extract structured facts about a Formula 1 driver",
	})
}

func renderCourse(w io.Writer, result converse.StructuredResult) error {
	course, err := tools.Decode[tools.CourseOutline](result.Data)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "\n  %s\n\n", cliui.KeyStyle.Render(course.CourseTitle))
	for i, ch := range course.Chapters {
		fmt.Fprintf(w, "  %2d. %s\n", i+1, cliui.ValueStyle.Render(ch.Title))
		if ch.Description != "" {
			fmt.Fprintf(w, "      %s\n", cliui.DimStyle.Render(ch.Description))
		}
	}
	fmt.Fprintln(w)

	return nil
}

func renderDriver(w io.Writer, result converse.StructuredResult) error {
	driver, err := tools.Decode[tools.DriverInfo](result.Data)
	if err != nil {
		return err
	}

	fmt.Fprintln(w)
	cliui.KeyValue(w, "Name", driver.Name)
	cliui.KeyValue(w, "Born", driver.BirthDate)
	cliui.KeyValue(w, "Nationality", driver.Nationality)
	cliui.KeyValue(w, "Team", driver.Team)
	cliui.KeyValue(w, "Championships", fmt.Sprint(driver.ChampionshipsWon))
	if driver.About != "" {
		fmt.Fprintf(w, "\n%s\n", driver.About)
	}
	fmt.Fprintln(w)

	return nil
}
