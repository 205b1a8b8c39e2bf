// Package askcmder provides the ask command: a single completion printed to
// the console, either all at once or streamed delta by delta.
package askcmder

import (
	"context"
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

type askCommander struct {
	flags  config.ClientFlags
	stream bool
	plain  bool
	debug  bool

	config *config.Config
	logger *slog.Logger
	out    io.Writer
}

const askLongDesc string = `Send a single prompt to Bedrock and print the reply.

Without a prompt the command asks about Max Verstappen. With --stream the
reply is printed delta by delta as it arrives. Replies are rendered as
markdown on a terminal unless --plain is set; streamed replies are always
printed as-is.

Examples:
  converse ask "What is the Converse API?"
  converse ask --stream --backend rest "Tell me about Red Bull Racing."
  converse ask -m anthropic.claude-3-haiku-20240307-v1:0 "Hello"`

const askShortDesc string = "Send a single prompt to Bedrock"

func NewAskCmd() *cobra.Command {
	cmder := &askCommander{}

	cmd := &cobra.Command{
		Use:   "ask [prompt]",
		Short: askShortDesc,
		Long:  askLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Resolve(cmd, config.ClientFlagKeys)
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
			cmder.out = cmd.OutOrStdout()

			prompt := strings.TrimSpace(strings.Join(args, " "))
			if prompt == "" {
				prompt = tools.DefaultPrompt
			}

			return cmder.run(cmd.Context(), prompt)
		},
	}

	cmder.flags.Register(cmd)
	cmd.Flags().BoolVarP(&cmder.stream, "stream", "s", false, "Print the reply as it is generated")
	cmd.Flags().BoolVar(&cmder.plain, "plain", false, "Do not render the reply as markdown")

	return cmd
}

func (c *askCommander) run(ctx context.Context, prompt string) error {
	c.logger = logger.New(
		logger.WithDebug(c.debug),
		logger.WithPretty(true),
		logger.WithWriter(os.Stderr),
	)

	client, err := bedrock.NewClient(ctx, c.config, "", c.logger)
	if err != nil {
		return err
	}

	req := c.config.BaseRequest()
	req.Messages = []llm.Message{llm.NewTextMessage(llm.RoleUser, prompt)}

	if c.stream {
		return c.runStream(ctx, client, req)
	}

	resp, err := client.Converse(ctx, req)
	if err != nil {
		return fmt.Errorf("converse: %w", err)
	}

	text := resp.Message.GetText()
	if text == "" {
		return converse.ErrNoContent
	}

	cliui.Reply(c.out, text, c.plain)

	c.logger.Debug("completion finished",
		"backend", client.Name(),
		"model", req.Model,
		"stop_reason", resp.StopReason,
		"usage", resp.Usage,
	)
	return nil
}

func (c *askCommander) runStream(ctx context.Context, client converse.Client, req *llm.ChatRequest) error {
	stream, err := client.ConverseStream(ctx, req)
	if err != nil {
		return fmt.Errorf("converse stream: %w", err)
	}

	if err := converse.Forward(stream, c.out, nil); err != nil {
		fmt.Fprintln(c.out)
		return fmt.Errorf("streaming reply: %w", err)
	}
	fmt.Fprintln(c.out)

	attrs := []any{"backend", client.Name(), "model", req.Model}
	if stats, ok := stream.(converse.StreamStats); ok {
		attrs = append(attrs, "deltas", stats.Deltas(), "malformed", stats.Malformed())
	}
	if u, ok := stream.(converse.UsageReporter); ok && u.Usage() != nil {
		attrs = append(attrs, "usage", u.Usage())
	}
	c.logger.Debug("stream finished", attrs...)

	return nil
}
