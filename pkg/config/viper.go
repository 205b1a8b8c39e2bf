package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/papercomputeco/converse/pkg/dotdir"
)

// EnvPrefix is the prefix of every converse environment variable.
const EnvPrefix = "CONVERSE"

// conventionalEnv lists the environment variables used by the Bedrock
// tooling ecosystem, bound in addition to the CONVERSE_ prefixed names.
var conventionalEnv = map[string]string{
	"bedrock.region":       "AWS_REGION",
	"bedrock.model":        "AWS_BEDROCK_MODEL",
	"bedrock.bearer_token": "AWS_BEARER_TOKEN_BEDROCK",
	"server.port":          "PORT",
}

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the CONVERSE_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (CONVERSE_BEDROCK_MODEL, AWS_BEDROCK_MODEL, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	setViperDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, env := range conventionalEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", env, err)
		}
	}

	return v, nil
}

// LoadDotEnv loads KEY=value pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// FromViper builds a Config from the resolved viper values, including the
// environment-only bearer token.
func FromViper(v *viper.Viper) *Config {
	cfg := &Config{
		Version: v.GetInt("version"),
		Bedrock: BedrockConfig{
			Region:          v.GetString("bedrock.region"),
			Model:           v.GetString("bedrock.model"),
			RuntimeEndpoint: v.GetString("bedrock.runtime_endpoint"),
			ControlEndpoint: v.GetString("bedrock.control_endpoint"),
			BearerToken:     v.GetString("bedrock.bearer_token"),
		},
		Inference: InferenceConfig{
			MaxTokens:   v.GetInt("inference.max_tokens"),
			Temperature: v.GetFloat64("inference.temperature"),
			TopP:        v.GetFloat64("inference.top_p"),
			System:      v.GetString("inference.system"),
		},
		Server: ServerConfig{
			Listen: v.GetString("server.listen"),
		},
		Stream: StreamConfig{
			Sentinel: v.GetString("stream.sentinel"),
		},
		Client: ClientConfig{
			Backend: v.GetString("client.backend"),
		},
		Events: EventsConfig{
			Provider: v.GetString("events.provider"),
			Brokers:  stringList(v, "events.brokers"),
			Topic:    v.GetString("events.topic"),
		},
	}

	// PORT only applies when no explicit listen address was configured.
	if port := v.GetString("server.port"); port != "" && cfg.Server.Listen == defaultListen {
		cfg.Server.Listen = ":" + port
	}

	return cfg
}

// stringList reads a list key that may come from TOML as an array or from
// the environment as a comma separated string.
func stringList(v *viper.Viper, key string) []string {
	if raw, ok := v.Get(key).(string); ok {
		return splitList(raw)
	}
	if list := v.GetStringSlice(key); len(list) > 0 {
		return list
	}
	return nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Bedrock
	v.SetDefault("bedrock.region", d.Bedrock.Region)
	v.SetDefault("bedrock.model", d.Bedrock.Model)
	v.SetDefault("bedrock.runtime_endpoint", d.Bedrock.RuntimeEndpoint)
	v.SetDefault("bedrock.control_endpoint", d.Bedrock.ControlEndpoint)

	// Inference
	v.SetDefault("inference.max_tokens", d.Inference.MaxTokens)
	v.SetDefault("inference.temperature", d.Inference.Temperature)
	v.SetDefault("inference.top_p", d.Inference.TopP)
	v.SetDefault("inference.system", d.Inference.System)

	// Server
	v.SetDefault("server.listen", d.Server.Listen)

	// Stream
	v.SetDefault("stream.sentinel", d.Stream.Sentinel)

	// Client
	v.SetDefault("client.backend", d.Client.Backend)

	// Events
	v.SetDefault("events.provider", d.Events.Provider)
	v.SetDefault("events.brokers", d.Events.Brokers)
	v.SetDefault("events.topic", d.Events.Topic)
}
