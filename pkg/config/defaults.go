package config

import "github.com/papercomputeco/converse/pkg/deltastream"

const (
	// BackendSDK routes console commands through the aws-sdk-go-v2 runtime client.
	BackendSDK = "sdk"

	// BackendREST routes console commands through the raw HTTP transport and
	// the delta stream decoder.
	BackendREST = "rest"

	EventsProviderNop   = "nop"
	EventsProviderKafka = "kafka"

	defaultRegion = "us-east-1"
	defaultModel  = "amazon.nova-lite-v1:0"

	defaultMaxTokens   = 4096
	defaultTemperature = 0.5
	defaultTopP        = 0.9

	defaultListen = ":3000"

	defaultEventsTopic = "converse.invocations"
)

// ValidBackends returns the recognized client backend names.
func ValidBackends() []string {
	return []string{BackendSDK, BackendREST}
}

// IsValidBackend reports whether name is a recognized client backend.
func IsValidBackend(name string) bool {
	return name == BackendSDK || name == BackendREST
}

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Bedrock: BedrockConfig{
			Region: defaultRegion,
			Model:  defaultModel,
		},
		Inference: InferenceConfig{
			MaxTokens:   defaultMaxTokens,
			Temperature: defaultTemperature,
			TopP:        defaultTopP,
		},
		Server: ServerConfig{
			Listen: defaultListen,
		},
		Stream: StreamConfig{
			Sentinel: deltastream.DefaultSentinel,
		},
		Client: ClientConfig{
			Backend: BackendSDK,
		},
		Events: EventsConfig{
			Provider: EventsProviderNop,
			Topic:    defaultEventsTopic,
		},
	}
}
