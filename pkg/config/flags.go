package config

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --model
// on "converse ask", "converse chat" and "converse serve").
type Flag struct {
	// Name is the long flag name (e.g. "model").
	Name string

	// Shorthand is the one-letter short flag (e.g. "m"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "bedrock.model").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddIntFlag, AddFloatFlag
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagRegion          = "region"
	FlagModel           = "model"
	FlagRuntimeEndpoint = "runtime-endpoint"
	FlagControlEndpoint = "control-endpoint"
	FlagMaxTokens       = "max-tokens"
	FlagTemperature     = "temperature"
	FlagTopP            = "top-p"
	FlagSystem          = "system"
	FlagListen          = "listen"
	FlagSentinel        = "sentinel"
	FlagBackend         = "backend"
	FlagEventsProvider  = "events-provider"
	FlagEventsTopic     = "events-topic"
)

// Flags is the shared registry used by every converse command.
var Flags = FlagSet{
	FlagRegion:          {Name: "region", ViperKey: "bedrock.region", Description: "AWS region hosting Bedrock"},
	FlagModel:           {Name: "model", Shorthand: "m", ViperKey: "bedrock.model", Description: "Bedrock model ID or ARN"},
	FlagRuntimeEndpoint: {Name: "runtime-endpoint", ViperKey: "bedrock.runtime_endpoint", Description: "Override the Bedrock runtime endpoint URL"},
	FlagControlEndpoint: {Name: "control-endpoint", ViperKey: "bedrock.control_endpoint", Description: "Override the Bedrock control plane endpoint URL"},
	FlagMaxTokens:       {Name: "max-tokens", ViperKey: "inference.max_tokens", Description: "Maximum number of tokens to generate"},
	FlagTemperature:     {Name: "temperature", ViperKey: "inference.temperature", Description: "Sampling temperature"},
	FlagTopP:            {Name: "top-p", ViperKey: "inference.top_p", Description: "Nucleus sampling probability mass"},
	FlagSystem:          {Name: "system", ViperKey: "inference.system", Description: "System prompt sent with every request"},
	FlagListen:          {Name: "listen", Shorthand: "l", ViperKey: "server.listen", Description: "Address for the HTTP service to listen on"},
	FlagSentinel:        {Name: "sentinel", ViperKey: "stream.sentinel", Description: "Literal that introduces each envelope in a raw stream"},
	FlagBackend:         {Name: "backend", Shorthand: "b", ViperKey: "client.backend", Description: "Backend used by console commands (sdk, rest)"},
	FlagEventsProvider:  {Name: "events-provider", ViperKey: "events.provider", Description: "Invocation event publisher (nop, kafka)"},
	FlagEventsTopic:     {Name: "events-topic", ViperKey: "events.topic", Description: "Kafka topic for invocation events"},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaults().GetString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddIntFlag registers an int flag on cmd from the given FlagSet.
func AddIntFlag(cmd *cobra.Command, fs FlagSet, key string, target *int) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaults().GetInt(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().IntVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().IntVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddFloatFlag registers a float64 flag on cmd from the given FlagSet.
func AddFloatFlag(cmd *cobra.Command, fs FlagSet, key string, target *float64) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaults().GetFloat64(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().Float64VarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().Float64Var(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaults returns a viper instance holding only the NewDefaultConfig values.
func defaults() *viper.Viper {
	v := viper.New()
	setViperDefaults(v)
	return v
}

// ClientFlagKeys are the registry keys of the flags shared by every command
// that calls Bedrock.
var ClientFlagKeys = []string{
	FlagRegion,
	FlagModel,
	FlagRuntimeEndpoint,
	FlagControlEndpoint,
	FlagMaxTokens,
	FlagTemperature,
	FlagTopP,
	FlagSystem,
	FlagSentinel,
	FlagBackend,
}

// ClientFlags holds the values of the ClientFlagKeys flags. The values are
// only read through viper once bound, the fields exist so cobra has somewhere
// to write.
type ClientFlags struct {
	Region          string
	Model           string
	RuntimeEndpoint string
	ControlEndpoint string
	MaxTokens       int
	Temperature     float64
	TopP            float64
	System          string
	Sentinel        string
	Backend         string
}

// Register adds every client flag to cmd.
func (f *ClientFlags) Register(cmd *cobra.Command) {
	AddStringFlag(cmd, Flags, FlagRegion, &f.Region)
	AddStringFlag(cmd, Flags, FlagModel, &f.Model)
	AddStringFlag(cmd, Flags, FlagRuntimeEndpoint, &f.RuntimeEndpoint)
	AddStringFlag(cmd, Flags, FlagControlEndpoint, &f.ControlEndpoint)
	AddIntFlag(cmd, Flags, FlagMaxTokens, &f.MaxTokens)
	AddFloatFlag(cmd, Flags, FlagTemperature, &f.Temperature)
	AddFloatFlag(cmd, Flags, FlagTopP, &f.TopP)
	AddStringFlag(cmd, Flags, FlagSystem, &f.System)
	AddStringFlag(cmd, Flags, FlagSentinel, &f.Sentinel)
	AddStringFlag(cmd, Flags, FlagBackend, &f.Backend)
}

// Resolve builds the effective Config for cmd: config.toml from the
// --config-dir resolution, then environment, then the flags in keys that
// cmd has registered.
func Resolve(cmd *cobra.Command, keys []string) (*Config, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")

	v, err := InitViper(configDir)
	if err != nil {
		return nil, err
	}

	BindRegisteredFlags(v, cmd, Flags, keys)

	cfg := FromViper(v)
	if !IsValidBackend(cfg.Client.Backend) {
		return nil, fmt.Errorf("invalid backend %q (available: %s)", cfg.Client.Backend, strings.Join(ValidBackends(), ", "))
	}
	return cfg, nil
}
