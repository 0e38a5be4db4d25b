package configcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/CalvinLeeC7E/jetbrains-ollama-proxy/pkg/cliui"
	"github.com/CalvinLeeC7E/jetbrains-ollama-proxy/pkg/config"
)

const getLongDesc string = `Get a configuration value.

Reads the value for the given key from the config.toml file
stored in the .ollamaproxy/ directory. Keys use dotted notation matching
the TOML section structure.

Examples:
  ollamaproxy config get upstream.url
  ollamaproxy config get server.port`

const getShortDesc string = "Get a configuration value"

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: getShortDesc,
		Long:  getLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runGet(cmd, args[0], configDir)
		},
		ValidArgsFunction: validKeysCompletion,
	}

	return cmd
}

func runGet(cmd *cobra.Command, key, configDir string) error {
	if !config.IsValidConfigKey(key) {
		return unknownKeyError(key)
	}

	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	value, err := cfger.GetConfigValue(key)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	cliui.ConfigSource(out, cfger.GetTarget())
	cliui.KeyValue(out, key, value, 0)
	fmt.Fprintln(out)

	return nil
}
