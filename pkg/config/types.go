package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Config represents the persistent converse configuration stored as
// config.toml in the .converse/ directory. The TOML layout uses sections for
// logical grouping.
type Config struct {
	Version   int             `toml:"version"`
	Bedrock   BedrockConfig   `toml:"bedrock"`
	Inference InferenceConfig `toml:"inference"`
	Server    ServerConfig    `toml:"server"`
	Stream    StreamConfig    `toml:"stream"`
	Client    ClientConfig    `toml:"client"`
	Events    EventsConfig    `toml:"events"`
}

// BedrockConfig holds the upstream model and endpoint settings shared by both
// backends.
type BedrockConfig struct {
	Region          string `toml:"region,omitempty"`
	Model           string `toml:"model,omitempty"`
	RuntimeEndpoint string `toml:"runtime_endpoint,omitempty"`
	ControlEndpoint string `toml:"control_endpoint,omitempty"`

	// BearerToken is read from the environment only and never persisted.
	BearerToken string `toml:"-"`
}

// InferenceConfig holds the default inference parameters sent with every
// request.
type InferenceConfig struct {
	MaxTokens   int     `toml:"max_tokens,omitempty"`
	Temperature float64 `toml:"temperature,omitempty"`
	TopP        float64 `toml:"top_p,omitempty"`
	System      string  `toml:"system,omitempty"`
}

// ServerConfig holds HTTP service settings.
type ServerConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// StreamConfig holds raw stream decoding settings.
type StreamConfig struct {
	Sentinel string `toml:"sentinel,omitempty"`
}

// ClientConfig holds settings for the console commands (ask, chat,
// structured).
type ClientConfig struct {
	Backend string `toml:"backend,omitempty"`
}

// EventsConfig holds invocation event publishing settings.
type EventsConfig struct {
	Provider string   `toml:"provider,omitempty"`
	Brokers  []string `toml:"brokers,omitempty"`
	Topic    string   `toml:"topic,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"bedrock.region": {
		get: func(c *Config) string { return c.Bedrock.Region },
		set: func(c *Config, v string) error { c.Bedrock.Region = v; return nil },
	},
	"bedrock.model": {
		get: func(c *Config) string { return c.Bedrock.Model },
		set: func(c *Config, v string) error { c.Bedrock.Model = v; return nil },
	},
	"bedrock.runtime_endpoint": {
		get: func(c *Config) string { return c.Bedrock.RuntimeEndpoint },
		set: func(c *Config, v string) error { c.Bedrock.RuntimeEndpoint = v; return nil },
	},
	"bedrock.control_endpoint": {
		get: func(c *Config) string { return c.Bedrock.ControlEndpoint },
		set: func(c *Config, v string) error { c.Bedrock.ControlEndpoint = v; return nil },
	},
	"inference.max_tokens": {
		get: func(c *Config) string {
			if c.Inference.MaxTokens == 0 {
				return ""
			}
			return strconv.Itoa(c.Inference.MaxTokens)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return fmt.Errorf("invalid value for inference.max_tokens: %q", v)
			}
			c.Inference.MaxTokens = n
			return nil
		},
	},
	"inference.temperature": {
		get: func(c *Config) string { return formatFloat(c.Inference.Temperature) },
		set: func(c *Config, v string) error {
			f, err := parseUnitFloat("inference.temperature", v)
			if err != nil {
				return err
			}
			c.Inference.Temperature = f
			return nil
		},
	},
	"inference.top_p": {
		get: func(c *Config) string { return formatFloat(c.Inference.TopP) },
		set: func(c *Config, v string) error {
			f, err := parseUnitFloat("inference.top_p", v)
			if err != nil {
				return err
			}
			c.Inference.TopP = f
			return nil
		},
	},
	"inference.system": {
		get: func(c *Config) string { return c.Inference.System },
		set: func(c *Config, v string) error { c.Inference.System = v; return nil },
	},
	"server.listen": {
		get: func(c *Config) string { return c.Server.Listen },
		set: func(c *Config, v string) error { c.Server.Listen = v; return nil },
	},
	"stream.sentinel": {
		get: func(c *Config) string { return c.Stream.Sentinel },
		set: func(c *Config, v string) error { c.Stream.Sentinel = v; return nil },
	},
	"client.backend": {
		get: func(c *Config) string { return c.Client.Backend },
		set: func(c *Config, v string) error {
			if !IsValidBackend(v) {
				return fmt.Errorf("invalid value for client.backend: %q (available: %s)", v, strings.Join(ValidBackends(), ", "))
			}
			c.Client.Backend = v
			return nil
		},
	},
	"events.provider": {
		get: func(c *Config) string { return c.Events.Provider },
		set: func(c *Config, v string) error {
			if v != EventsProviderNop && v != EventsProviderKafka {
				return fmt.Errorf("invalid value for events.provider: %q (available: nop, kafka)", v)
			}
			c.Events.Provider = v
			return nil
		},
	},
	"events.brokers": {
		get: func(c *Config) string { return strings.Join(c.Events.Brokers, ",") },
		set: func(c *Config, v string) error { c.Events.Brokers = splitList(v); return nil },
	},
	"events.topic": {
		get: func(c *Config) string { return c.Events.Topic },
		set: func(c *Config, v string) error { c.Events.Topic = v; return nil },
	},
}

func formatFloat(f float64) string {
	if f == 0 {
		return ""
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func parseUnitFloat(key, v string) (float64, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if f < 0 || f > 1 {
		return 0, fmt.Errorf("invalid value for %s: %v is outside [0, 1]", key, f)
	}
	return f, nil
}

// splitList splits a comma separated list and drops empty entries.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
