package configcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/CalvinLeeC7E/jetbrains-ollama-proxy/pkg/cliui"
	"github.com/CalvinLeeC7E/jetbrains-ollama-proxy/pkg/config"
)

const listLongDesc string = `List all configuration values.

Displays all configuration keys and their current values from the
config.toml file stored in the .ollamaproxy/ directory, with defaults
filled in for keys the file does not set.

Examples:
  ollamaproxy config list`

const listShortDesc string = "List all configuration values"

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: listShortDesc,
		Long:  listLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runList(cmd, configDir)
		},
	}

	return cmd
}

func runList(cmd *cobra.Command, configDir string) error {
	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	keys := config.ValidConfigKeys()

	// Find the longest key name for alignment.
	maxLen := 0
	for _, k := range keys {
		if len(k) > maxLen {
			maxLen = len(k)
		}
	}

	out := cmd.OutOrStdout()
	cliui.ConfigSource(out, cfger.GetTarget())
	for _, key := range keys {
		value, err := cfger.GetConfigValue(key)
		if err != nil {
			return err
		}
		cliui.KeyValue(out, key, value, maxLen)
	}
	fmt.Fprintln(out)

	return nil
}
