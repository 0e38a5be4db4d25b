package main

import (
	"fmt"
	"os"

	ollamaproxycmder "github.com/CalvinLeeC7E/jetbrains-ollama-proxy/cmd/ollamaproxy"
)

func main() {
	cmd := ollamaproxycmder.NewOllamaProxyCmd()
	err := cmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error executing root command: %v\n", err)
		os.Exit(1)
	}
}
