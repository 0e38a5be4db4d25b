// Package configcmder provides the config command for managing persistent
// ollamaproxy configuration stored in the .ollamaproxy/ directory.
package configcmder

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/CalvinLeeC7E/jetbrains-ollama-proxy/pkg/config"
)

const configLongDesc string = `Manage persistent ollamaproxy configuration.

Configuration is stored as config.toml in the .ollamaproxy/ directory and
provides default values for "ollamaproxy serve". Environment variables and
CLI flags always take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  server.port, server.mode,
  upstream.url, upstream.api_key, upstream.models,
  upstream.fallback_model, upstream.connect_timeout,
  logging.level, logging.format, logging.file,
  metrics.enabled, metrics.path,
  events.brokers, events.topic, events.workers, events.queue_size

Use subcommands to get, set, or list configuration values:
  ollamaproxy config set <key> <value>    Set a configuration value
  ollamaproxy config get <key>            Get a configuration value
  ollamaproxy config list                 List all configuration values

Examples:
  ollamaproxy config set upstream.url https://api.moonshot.cn/v1/chat/completions
  ollamaproxy config set upstream.models kimi-k2,qwen3
  ollamaproxy config get server.port
  ollamaproxy config list`

const configShortDesc string = "Manage persistent ollamaproxy configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

func validKeysCompletion(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func unknownKeyError(key string) error {
	return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
		key, strings.Join(config.ValidConfigKeys(), ", "))
}
