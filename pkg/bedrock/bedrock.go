// Package bedrock builds the Bedrock clients described by a *config.Config:
// the SDK and REST converse backends, the model catalog and the authorizer
// they share.
package bedrock

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	bedrockcontrol "github.com/aws/aws-sdk-go-v2/service/bedrock"
	"github.com/aws/smithy-go/auth/bearer"

	"github.com/papercomputeco/converse/pkg/awsauth"
	"github.com/papercomputeco/converse/pkg/catalog"
	"github.com/papercomputeco/converse/pkg/config"
	"github.com/papercomputeco/converse/pkg/converse"
	"github.com/papercomputeco/converse/pkg/converse/rest"
	"github.com/papercomputeco/converse/pkg/converse/sdk"
	"github.com/papercomputeco/converse/pkg/deltastream"
	"github.com/papercomputeco/converse/pkg/utils"
)

// malformedPreview bounds how much of a bad payload is logged.
const malformedPreview = 120

// bearerScheme is the SDK auth scheme used for Bedrock API keys.
const bearerScheme = "httpBearerAuth"

// AWSConfig loads the shared AWS configuration for the configured region.
// A Bedrock API key, when set, becomes the bearer token provider and is
// preferred over SigV4.
func AWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Bedrock.Region),
		awsconfig.WithAppID(utils.AppID()),
	)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading aws config: %w", err)
	}

	if cfg.Bedrock.BearerToken != "" {
		awsCfg.BearerAuthTokenProvider = bearer.StaticTokenProvider{
			Token: bearer.Token{Value: cfg.Bedrock.BearerToken},
		}
		awsCfg.AuthSchemePreference = []string{bearerScheme}
	}
	return awsCfg, nil
}

// Authorizer returns the bearer authorizer when a Bedrock API key is
// configured, otherwise a SigV4 authorizer over the default AWS credential
// chain.
func Authorizer(ctx context.Context, cfg *config.Config) (awsauth.Authorizer, error) {
	if cfg.Bedrock.BearerToken != "" {
		return awsauth.New(cfg.Bedrock.BearerToken, nil, cfg.Bedrock.Region, awsauth.SigningName)
	}

	awsCfg, err := AWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return awsauth.New("", awsCfg.Credentials, cfg.Bedrock.Region, awsauth.SigningName)
}

// NewClient returns the backend named by backend, falling back to the
// configured client.backend when it is empty.
func NewClient(ctx context.Context, cfg *config.Config, backend string, logger *slog.Logger) (converse.Client, error) {
	if backend == "" {
		backend = cfg.Client.Backend
	}

	switch backend {
	case config.BackendSDK:
		return NewSDK(ctx, cfg, logger)
	case config.BackendREST:
		return NewREST(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
}

// NewSDK creates the aws-sdk-go-v2 backend.
func NewSDK(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdk.Client, error) {
	return sdk.New(ctx, sdk.Config{
		Region:   cfg.Bedrock.Region,
		Endpoint: cfg.Bedrock.RuntimeEndpoint,
		Logger:   logger,
	})
}

// NewREST creates the raw HTTP backend. Malformed envelopes are logged at
// warn level and otherwise skipped.
func NewREST(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*rest.Client, error) {
	auth, err := Authorizer(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return rest.New(rest.Config{
		Endpoint:    cfg.Bedrock.RuntimeURL(),
		Authorizer:  auth,
		Sentinel:    cfg.Stream.Sentinel,
		OnMalformed: MalformedLogger(logger),
		Logger:      logger,
	})
}

// NewCatalog creates the model catalog over a bedrock control plane client
// pointed at the configured control endpoint.
func NewCatalog(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*catalog.Catalog, error) {
	awsCfg, err := AWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	client := bedrockcontrol.NewFromConfig(awsCfg, func(o *bedrockcontrol.Options) {
		o.BaseEndpoint = aws.String(cfg.Bedrock.ControlURL())
	})
	return catalog.New(client, logger), nil
}

// MalformedLogger returns a diagnostics hook that logs each skipped envelope.
func MalformedLogger(logger *slog.Logger) func(*deltastream.MalformedEnvelopeError) {
	if logger == nil {
		return nil
	}
	return func(e *deltastream.MalformedEnvelopeError) {
		logger.Warn("skipping malformed stream envelope",
			"error", e.Err,
			"payload", utils.Truncate(e.Payload, malformedPreview),
		)
	}
}
