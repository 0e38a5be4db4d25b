package configcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/CalvinLeeC7E/jetbrains-ollama-proxy/pkg/cliui"
	"github.com/CalvinLeeC7E/jetbrains-ollama-proxy/pkg/config"
)

const setLongDesc string = `Set a configuration value.

Sets the given key to the provided value in the config.toml file
stored in the .ollamaproxy/ directory. Keys use dotted notation matching
the TOML section structure. The file is written with 0600 permissions
because it may hold the upstream API key.

Examples:
  ollamaproxy config set server.port 11434
  ollamaproxy config set upstream.api_key sk-...
  ollamaproxy config set upstream.connect_timeout 10s`

const setShortDesc string = "Set a configuration value"

func newSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: setShortDesc,
		Long:  setLongDesc,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runSet(cmd, args[0], args[1], configDir)
		},
		ValidArgsFunction: validKeysCompletion,
	}

	return cmd
}

func runSet(cmd *cobra.Command, key, value, configDir string) error {
	if !config.IsValidConfigKey(key) {
		return unknownKeyError(key)
	}

	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := cfger.SetConfigValue(key, value); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	cliui.ConfigSource(out, cfger.GetTarget())
	fmt.Fprintf(out, "  %s Set %s = %s\n\n",
		cliui.SuccessMark,
		cliui.KeyStyle.Render(key),
		cliui.ValueStyle.Render(value),
	)
	return nil
}
