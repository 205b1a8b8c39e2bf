// Package chatcmder provides the chat command for an interactive multi-turn
// conversation with a Bedrock model.
package chatcmder

import (
	"bufio"
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

var (
	userPrompt      = cliui.UserStyle.Render("you> ")
	assistantPrompt = cliui.AgentStyle.Render("assistant> ")
)

type chatCommander struct {
	flags config.ClientFlags
	demo  bool
	debug bool

	config *config.Config
	logger *slog.Logger
	in     io.Reader
	out    io.Writer
	errOut io.Writer
}

const chatLongDesc string = `Start an interactive chat session with a Bedrock model.

Every reply is streamed as it is generated and appended to the conversation
history, so follow-up questions keep their context. Type /reset to start a
new conversation and /exit (or Ctrl+D) to quit.

With --demo the command runs a scripted two-turn conversation instead:
  1. Tell me about Max Verstappen.
  2. What team does he drive for?

Examples:
  converse chat
  converse chat --backend rest --system "Answer in one sentence."
  converse chat --demo`

const chatShortDesc string = "Interactive multi-turn chat with a Bedrock model"

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Resolve(cmd, config.ClientFlagKeys)
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
			cmder.in = cmd.InOrStdin()
			cmder.out = cmd.OutOrStdout()
			cmder.errOut = cmd.ErrOrStderr()

			return cmder.run(cmd.Context())
		},
	}

	cmder.flags.Register(cmd)
	cmd.Flags().BoolVar(&cmder.demo, "demo", false, "Run the scripted two-turn conversation")

	return cmd
}

func (c *chatCommander) run(ctx context.Context) error {
	c.logger = logger.New(
		logger.WithDebug(c.debug),
		logger.WithPretty(true),
		logger.WithWriter(os.Stderr),
	)

	client, err := bedrock.NewClient(ctx, c.config, "", c.logger)
	if err != nil {
		return err
	}

	fmt.Fprintln(c.out)
	fmt.Fprintf(c.out, "  %s %s %s\n",
		cliui.KeyStyle.Render("Model:"),
		cliui.ValueStyle.Render(c.config.Bedrock.Model),
		cliui.DimStyle.Render("("+client.Name()+")"),
	)

	if c.demo {
		return c.runDemo(ctx, client)
	}

	fmt.Fprintf(c.out, "\n  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. /reset starts over, /exit or Ctrl+D quits."))

	base := c.config.BaseRequest()
	var history []llm.Message

	scanner := bufio.NewScanner(c.in)
	for {
		fmt.Fprint(c.out, userPrompt)
		if !scanner.Scan() {
			// EOF or error
			break
		}

		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case "/exit":
			fmt.Fprintln(c.out)
			return nil
		case "/reset":
			history = nil
			fmt.Fprintf(c.out, "  %s\n\n", cliui.DimStyle.Render("New conversation"))
			continue
		}

		history = append(history, llm.NewTextMessage(llm.RoleUser, input))

		req := base.Clone()
		req.Messages = history

		reply, err := c.sendAndStream(ctx, client, req)
		if err != nil {
			fmt.Fprintf(c.errOut, "  %s %v\n", cliui.FailMark, err)
			// Remove the failed user message so we can retry
			history = history[:len(history)-1]
			continue
		}

		history = append(history, llm.NewTextMessage(llm.RoleAssistant, reply))
		fmt.Fprint(c.out, "\n\n")
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Fprintln(c.out)
	return nil
}

// sendAndStream streams one reply to the output and returns its full text.
func (c *chatCommander) sendAndStream(ctx context.Context, client converse.Client, req *llm.ChatRequest) (string, error) {
	c.logger.Debug("sending chat request",
		"backend", client.Name(),
		"model", req.Model,
		"messages", len(req.Messages),
	)

	stream, err := client.ConverseStream(ctx, req)
	if err != nil {
		return "", err
	}

	fmt.Fprint(c.out, assistantPrompt)

	var reply strings.Builder
	if err := converse.Forward(stream, c.out, func(text string) { reply.WriteString(text) }); err != nil {
		return reply.String(), err
	}
	if reply.Len() == 0 {
		return "", converse.ErrNoContent
	}

	return reply.String(), nil
}

func (c *chatCommander) runDemo(ctx context.Context, client converse.Client) error {
	fmt.Fprintln(c.out)

	turns, last, err := converse.MultiTurn(ctx, client, c.config.BaseRequest(), tools.FollowUpPrompts)
	for _, turn := range turns {
		fmt.Fprintf(c.out, "%s%s\n", userPrompt, turn.Prompt)
		fmt.Fprintf(c.out, "%s%s\n\n", assistantPrompt, turn.Reply)
	}
	if err != nil {
		return fmt.Errorf("multi-turn conversation: %w", err)
	}

	if last != nil && last.Usage != nil {
		fmt.Fprintf(c.out, "  %s\n", cliui.DimStyle.Render(fmt.Sprintf(
			"%d turns, last turn used %d input and %d output tokens",
			len(turns), last.Usage.InputTokens, last.Usage.OutputTokens,
		)))
	}

	return nil
}
