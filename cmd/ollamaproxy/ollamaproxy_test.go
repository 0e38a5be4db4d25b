package ollamaproxycmder_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	ollamaproxycmder "github.com/CalvinLeeC7E/jetbrains-ollama-proxy/cmd/ollamaproxy"
)

var _ = Describe("NewOllamaProxyCmd", func() {
	It("wires the subcommands", func() {
		cmd := ollamaproxycmder.NewOllamaProxyCmd()

		names := []string{}
		for _, sub := range cmd.Commands() {
			names = append(names, sub.Name())
		}
		Expect(names).To(ContainElements("serve", "config", "version"))
	})

	It("registers the global flags", func() {
		cmd := ollamaproxycmder.NewOllamaProxyCmd()
		Expect(cmd.PersistentFlags().Lookup("debug")).NotTo(BeNil())
		Expect(cmd.PersistentFlags().ShorthandLookup("d")).NotTo(BeNil())
		Expect(cmd.PersistentFlags().Lookup("config-dir")).NotTo(BeNil())
	})

	It("runs the version command", func() {
		cmd := ollamaproxycmder.NewOllamaProxyCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"version"})

		Expect(cmd.Execute()).To(Succeed())
		Expect(out.String()).To(HavePrefix("ollamaproxy\nVersion: "))
	})
})
