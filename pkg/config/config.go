package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/converse/pkg/dotdir"
	"github.com/papercomputeco/converse/pkg/llm"
)

const (
	configFile = "config.toml"

	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0
)

type Configer struct {
	ddm        *dotdir.Manager
	targetPath string
}

func NewConfiger(override string) (*Configer, error) {
	cfger := &Configer{}

	cfger.ddm = dotdir.NewManager()
	target, err := cfger.ddm.Target(override)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(target, configFile)
	_, err = os.Stat(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfger.targetPath = path

	return cfger, nil
}

// ValidConfigKeys returns all supported configuration key names in TOML
// section order.
func ValidConfigKeys() []string {
	ordered := []string{
		"bedrock.region",
		"bedrock.model",
		"bedrock.runtime_endpoint",
		"bedrock.control_endpoint",
		"inference.max_tokens",
		"inference.temperature",
		"inference.top_p",
		"inference.system",
		"server.listen",
		"stream.sentinel",
		"client.backend",
		"events.provider",
		"events.brokers",
		"events.topic",
	}

	result := make([]string, 0, len(ordered))
	for _, k := range ordered {
		if _, ok := configKeys[k]; ok {
			result = append(result, k)
		}
	}

	return result
}

// IsValidConfigKey returns true if the given key is a supported configuration key.
func IsValidConfigKey(key string) bool {
	_, ok := configKeys[key]
	return ok
}

func (c *Configer) GetTarget() string {
	return c.targetPath
}

// LoadConfig loads the configuration from config.toml in the target
// .converse/ directory. If the file does not exist, returns
// NewDefaultConfig() so callers always receive a fully-populated Config.
// Fields explicitly set in the file override the defaults.
func (c *Configer) LoadConfig() (*Config, error) {
	if c.targetPath == "" {
		return NewDefaultConfig(), nil
	}

	data, err := os.ReadFile(c.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg, err := ParseConfigTOML(data)
	if err != nil {
		return nil, err
	}

	applyDefaults(cfg)

	return cfg, nil
}

// applyDefaults fills zero-value fields in cfg with values from NewDefaultConfig().
func applyDefaults(cfg *Config) {
	defaults := NewDefaultConfig()

	if cfg.Version == 0 {
		cfg.Version = defaults.Version
	}

	if cfg.Bedrock.Region == "" {
		cfg.Bedrock.Region = defaults.Bedrock.Region
	}
	if cfg.Bedrock.Model == "" {
		cfg.Bedrock.Model = defaults.Bedrock.Model
	}

	if cfg.Inference.MaxTokens == 0 {
		cfg.Inference.MaxTokens = defaults.Inference.MaxTokens
	}
	if cfg.Inference.Temperature == 0 {
		cfg.Inference.Temperature = defaults.Inference.Temperature
	}
	if cfg.Inference.TopP == 0 {
		cfg.Inference.TopP = defaults.Inference.TopP
	}

	if cfg.Server.Listen == "" {
		cfg.Server.Listen = defaults.Server.Listen
	}

	if cfg.Stream.Sentinel == "" {
		cfg.Stream.Sentinel = defaults.Stream.Sentinel
	}

	if cfg.Client.Backend == "" {
		cfg.Client.Backend = defaults.Client.Backend
	}

	if cfg.Events.Provider == "" {
		cfg.Events.Provider = defaults.Events.Provider
	}
	if cfg.Events.Topic == "" {
		cfg.Events.Topic = defaults.Events.Topic
	}
}

// SaveConfig persists the configuration to config.toml in the target
// .converse/ directory. The bearer token is never written.
func (c *Configer) SaveConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("cannot save nil config")
	}

	if c.targetPath == "" {
		return errors.New("cannot save empty target path")
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(c.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// SetConfigValue loads the config, sets the given key to the given value, and saves it.
// Returns an error if the key is not a valid config key.
func (c *Configer) SetConfigValue(key string, value string) error {
	info, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return err
	}

	if err := info.set(cfg, value); err != nil {
		return err
	}

	return c.SaveConfig(cfg)
}

// GetConfigValue loads the config and returns the string representation of the given key.
// Returns an error if the key is not a valid config key.
func (c *Configer) GetConfigValue(key string) (string, error) {
	info, ok := configKeys[key]
	if !ok {
		return "", fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return "", err
	}

	return info.get(cfg), nil
}

// DefaultConfigValue returns the built-in default for key, as reported by
// GetConfigValue when no config file sets it.
func DefaultConfigValue(key string) (string, error) {
	info, ok := configKeys[key]
	if !ok {
		return "", fmt.Errorf("unknown config key: %q", key)
	}
	return info.get(NewDefaultConfig()), nil
}

// ParseConfigTOML parses raw TOML bytes into a Config.
// Returns an error if the version field is present and not equal to CurrentV.
func ParseConfigTOML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config TOML: %w", err)
	}

	if cfg.Version != 0 && cfg.Version != CurrentV {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentV)
	}

	return cfg, nil
}

// RuntimeURL returns the Bedrock runtime endpoint, derived from the region
// unless explicitly configured.
func (b BedrockConfig) RuntimeURL() string {
	if b.RuntimeEndpoint != "" {
		return b.RuntimeEndpoint
	}
	return fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com", b.Region)
}

// ControlURL returns the Bedrock control plane endpoint used for the model
// catalogue, derived from the region unless explicitly configured.
func (b BedrockConfig) ControlURL() string {
	if b.ControlEndpoint != "" {
		return b.ControlEndpoint
	}
	return fmt.Sprintf("https://bedrock.%s.amazonaws.com", b.Region)
}

// BaseRequest returns an empty request carrying the configured model, system
// prompt and inference parameters. Zero values are left unset so Bedrock
// applies its own defaults.
func (c *Config) BaseRequest() *llm.ChatRequest {
	req := &llm.ChatRequest{
		Model:  c.Bedrock.Model,
		System: c.Inference.System,
	}
	if c.Inference.MaxTokens > 0 {
		n := c.Inference.MaxTokens
		req.MaxTokens = &n
	}
	if c.Inference.Temperature > 0 {
		t := c.Inference.Temperature
		req.Temperature = &t
	}
	if c.Inference.TopP > 0 {
		p := c.Inference.TopP
		req.TopP = &p
	}
	return req
}
