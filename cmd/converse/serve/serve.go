// Package servecmder provides the serve command that runs the converse HTTP
// service.
package servecmder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/converse/api"
	"github.com/papercomputeco/converse/api/worker"
	"github.com/papercomputeco/converse/pkg/bedrock"
	"github.com/papercomputeco/converse/pkg/config"
	"github.com/papercomputeco/converse/pkg/dotdir"
	"github.com/papercomputeco/converse/pkg/eventstream"
	"github.com/papercomputeco/converse/pkg/eventstream/kafka"
	"github.com/papercomputeco/converse/pkg/eventstream/nop"
	"github.com/papercomputeco/converse/pkg/logger"
)

type serveCommander struct {
	flags          config.ClientFlags
	listen         string
	eventsProvider string
	eventsTopic    string
	logFile        string
	debug          bool
	configDir      string

	config *config.Config
	logger *slog.Logger
}

var serveFlags = append([]string{
	config.FlagListen,
	config.FlagEventsProvider,
	config.FlagEventsTopic,
}, config.ClientFlagKeys...)

const serveLongDesc string = `Run the converse HTTP service.

The service exposes the SDK backend under /converse and /structured, the raw
HTTP backend under /bedrock, the model catalog under /models and /model, and
Prometheus metrics under /metrics.

Streaming routes flush every decoded delta as it arrives. Add ?format=sse
(or send Accept: text/event-stream) to receive server-sent events instead of
plain text.

Invocation events are published asynchronously when an events provider is
configured:
  converse serve --events-provider kafka

Kafka brokers are read from events.brokers (or CONVERSE_EVENTS_BROKERS).`

const serveShortDesc string = "Run the converse HTTP service"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Resolve(cmd, serveFlags)
			if err != nil {
				return err
			}
			cmder.config = cfg
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run()
		},
	}

	cmder.flags.Register(cmd)
	config.AddStringFlag(cmd, config.Flags, config.FlagListen, &cmder.listen)
	config.AddStringFlag(cmd, config.Flags, config.FlagEventsProvider, &cmder.eventsProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagEventsTopic, &cmder.eventsTopic)
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also write JSON logs to this file (relative to the .converse/ directory)")

	return cmd
}

func (c *serveCommander) run() error {
	var err error
	c.logger, err = c.newLogger()
	if err != nil {
		return err
	}

	publisher, err := c.newPublisher()
	if err != nil {
		return err
	}

	pool, err := worker.NewPool(&worker.Config{
		Publisher: publisher,
		Logger:    c.logger.With("component", "events"),
	})
	if err != nil {
		return fmt.Errorf("creating event worker pool: %w", err)
	}
	defer pool.Close()

	ctx := context.Background()

	sdkClient, err := bedrock.NewSDK(ctx, c.config, c.logger)
	if err != nil {
		return fmt.Errorf("creating sdk backend: %w", err)
	}

	restClient, err := bedrock.NewREST(ctx, c.config, c.logger)
	if err != nil {
		return fmt.Errorf("creating rest backend: %w", err)
	}

	models, err := bedrock.NewCatalog(ctx, c.config, c.logger)
	if err != nil {
		return fmt.Errorf("creating model catalog: %w", err)
	}

	server, err := api.NewServer(
		api.Config{
			ListenAddr: c.config.Server.Listen,
			Request:    *c.config.BaseRequest(),
		},
		api.Backends{SDK: sdkClient, REST: restClient},
		models,
		pool,
		c.logger,
	)
	if err != nil {
		return err
	}

	errChan := make(chan error, 1)

	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
	}

	if err := server.Shutdown(); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

func (c *serveCommander) newLogger() (*slog.Logger, error) {
	console := logger.New(
		logger.WithDebug(c.debug),
		logger.WithPretty(logger.IsTerminal(os.Stdout)),
		logger.WithRedact(logger.CredentialKeys...),
	)
	if c.logFile == "" {
		return console, nil
	}

	path, err := dotdir.NewManager().File(c.configDir, c.logFile)
	if err != nil {
		return nil, fmt.Errorf("resolving log file: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}

	file := logger.New(
		logger.WithDebug(c.debug),
		logger.WithJSON(true),
		logger.WithSource(c.debug),
		logger.WithRedact(logger.CredentialKeys...),
		logger.WithWriter(f),
	)
	return logger.Multi(console, file), nil
}

func (c *serveCommander) newPublisher() (eventstream.Publisher, error) {
	switch c.config.Events.Provider {
	case "", config.EventsProviderNop:
		return nop.NewPublisher(), nil
	case config.EventsProviderKafka:
		p, err := kafka.NewPublisher(kafka.Config{
			Brokers: c.config.Events.Brokers,
			Topic:   c.config.Events.Topic,
		})
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		c.logger.Info("publishing invocation events to kafka",
			"brokers", c.config.Events.Brokers,
			"topic", c.config.Events.Topic,
		)
		return p, nil
	default:
		return nil, fmt.Errorf("unknown events provider %q", c.config.Events.Provider)
	}
}
