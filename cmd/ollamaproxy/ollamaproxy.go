// Package ollamaproxycmder is the root command of the ollamaproxy binary.
package ollamaproxycmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/CalvinLeeC7E/jetbrains-ollama-proxy/cmd/ollamaproxy/config"
	servecmder "github.com/CalvinLeeC7E/jetbrains-ollama-proxy/cmd/ollamaproxy/serve"
	versioncmder "github.com/CalvinLeeC7E/jetbrains-ollama-proxy/cmd/version"
)

const ollamaproxyLongDesc string = `ollamaproxy serves an Ollama compatible API in front of a remote
OpenAI compatible chat completions endpoint.

Editors and tools that only speak to a local Ollama server (for example the
JetBrains AI Assistant) can point at ollamaproxy and use a cloud model.
Streaming chat responses are translated on the fly.

Run the server using:
  ollamaproxy serve

Manage persistent configuration using:
  ollamaproxy config set|get|list`

const ollamaproxyShortDesc string = "ollamaproxy - Ollama API for cloud chat completions"

func NewOllamaProxyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ollamaproxy",
		Short:         ollamaproxyShortDesc,
		Long:          ollamaproxyLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .ollamaproxy/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
