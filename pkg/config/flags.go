package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline.
type Flag struct {
	// Name is the long flag name (e.g. "upstream").
	Name string

	// Shorthand is the one-letter short flag (e.g. "u"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "upstream.url").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddIntFlag,
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagPort           = "port"
	FlagMode           = "mode"
	FlagUpstream       = "upstream"
	FlagAPIKey         = "api-key"
	FlagModels         = "models"
	FlagFallbackModel  = "fallback-model"
	FlagConnectTimeout = "connect-timeout"
	FlagLogLevel       = "log-level"
	FlagLogFormat      = "log-format"
	FlagLogFile        = "log-file"
	FlagMetricsPath    = "metrics-path"
	FlagEventsBrokers  = "events-brokers"
	FlagEventsTopic    = "events-topic"
)

// ServeFlags is the registry used by "ollamaproxy serve".
var ServeFlags = FlagSet{
	FlagPort:           {Name: "port", Shorthand: "p", ViperKey: "server.port", Description: "Port for the server to listen on"},
	FlagMode:           {Name: "mode", ViperKey: "server.mode", Description: "Runtime mode (development, production)"},
	FlagUpstream:       {Name: "upstream", Shorthand: "u", ViperKey: "upstream.url", Description: "Upstream chat completions URL"},
	FlagAPIKey:         {Name: "api-key", ViperKey: "upstream.api_key", Description: "Bearer token sent to the upstream"},
	FlagModels:         {Name: "models", Shorthand: "m", ViperKey: "upstream.models", Description: "Comma-separated model names listed by /api/tags"},
	FlagFallbackModel:  {Name: "fallback-model", ViperKey: "upstream.fallback_model", Description: "Model name used when a request omits one"},
	FlagConnectTimeout: {Name: "connect-timeout", ViperKey: "upstream.connect_timeout", Description: "Upstream connection timeout (e.g. 30s)"},
	FlagLogLevel:       {Name: "log-level", ViperKey: "logging.level", Description: "Log level (debug, info, warn, error)"},
	FlagLogFormat:      {Name: "log-format", ViperKey: "logging.format", Description: "Log format (auto, pretty, json, text)"},
	FlagLogFile:        {Name: "log-file", ViperKey: "logging.file", Description: "Also write JSON logs to this file"},
	FlagMetricsPath:    {Name: "metrics-path", ViperKey: "metrics.path", Description: "Path serving prometheus metrics"},
	FlagEventsBrokers:  {Name: "events-brokers", ViperKey: "events.brokers", Description: "Comma-separated Kafka brokers for session events"},
	FlagEventsTopic:    {Name: "events-topic", ViperKey: "events.topic", Description: "Kafka topic for session events"},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
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

	defaultVal := defaultInt(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().IntVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().IntVar(target, def.Name, defaultVal, def.Description)
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

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}

// defaultInt returns the default int value for a viper key from NewDefaultConfig.
func defaultInt(viperKey string) int {
	v := viper.New()
	setViperDefaults(v)
	return v.GetInt(viperKey)
}
