package sse_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/CalvinLeeC7E/jetbrains-ollama-proxy/pkg/sse"
)

// feedAll feeds chunks in order and collects every yielded line.
func feedAll(r *sse.Reassembler, chunks ...[]byte) []string {
	var out []string
	for _, c := range chunks {
		out = append(out, r.Feed(c)...)
	}
	return out
}

var _ = Describe("Reassembler", func() {
	var r *sse.Reassembler

	BeforeEach(func() {
		r = sse.NewReassembler()
	})

	Describe("Feed", func() {
		It("yields a single complete line", func() {
			Expect(r.Feed([]byte("data: hello\n"))).To(Equal([]string{"data: hello"}))
			Expect(r.Pending()).To(BeEmpty())
		})

		It("yields multiple lines from one chunk in order", func() {
			lines := r.Feed([]byte("data: a\n\ndata: b\n"))
			Expect(lines).To(Equal([]string{"data: a", "", "data: b"}))
		})

		It("retains a trailing partial line", func() {
			Expect(r.Feed([]byte("data: a\ndata: b"))).To(Equal([]string{"data: a"}))
			Expect(r.Pending()).To(Equal("data: b"))
		})

		It("completes a line split mid-record across chunks", func() {
			Expect(r.Feed([]byte(`data: {"choices":[{"delta":{"con`))).To(BeEmpty())
			Expect(r.Feed([]byte("tent\":\"Hi\"}}]}\n"))).To(Equal([]string{
				`data: {"choices":[{"delta":{"content":"Hi"}}]}`,
			}))
			Expect(r.Pending()).To(BeEmpty())
		})

		It("returns nothing for an empty chunk", func() {
			Expect(r.Feed(nil)).To(BeNil())
			Expect(r.Feed([]byte{})).To(BeNil())
		})

		It("keeps a CR that precedes the newline", func() {
			Expect(r.Feed([]byte("data: x\r\n"))).To(Equal([]string{"data: x\r"}))
		})
	})

	Describe("boundary independence", func() {
		stream := []byte("data: {\"choices\":[{\"delta\":{\"content\":\"Hé\"}}]}\n\n" +
			": keep-alive\n" +
			"data: {\"choices\":[{\"delta\":{\"content\":\"llo\"}}]}\n\n" +
			"data: [DONE]\n\n" +
			"data: trailing")

		var expected []string

		BeforeEach(func() {
			expected = sse.NewReassembler().Feed(stream)
			Expect(expected).To(HaveLen(7))
		})

		It("yields the same lines for every two-way split", func() {
			for i := 0; i <= len(stream); i++ {
				re := sse.NewReassembler()
				got := feedAll(re, stream[:i], stream[i:])
				Expect(got).To(Equal(expected), "split at %d", i)
				Expect(re.Pending()).To(Equal("data: trailing"), "split at %d", i)
			}
		})

		It("yields the same lines for every three-way split", func() {
			for i := 0; i <= len(stream); i++ {
				for j := i; j <= len(stream); j += 7 {
					got := feedAll(sse.NewReassembler(), stream[:i], stream[i:j], stream[j:])
					Expect(got).To(Equal(expected), "split at %d,%d", i, j)
				}
			}
		})

		It("yields the same lines when fed one byte at a time", func() {
			chunks := make([][]byte, len(stream))
			for i := range stream {
				chunks[i] = stream[i : i+1]
			}
			Expect(feedAll(r, chunks...)).To(Equal(expected))
		})
	})

	Describe("Discard", func() {
		It("drops the pending segment and reports its size", func() {
			r.Feed([]byte("data: a\ndata: partial"))
			Expect(r.Discard()).To(Equal(len("data: partial")))
			Expect(r.Pending()).To(BeEmpty())
		})

		It("reports zero when nothing is pending", func() {
			r.Feed([]byte("data: a\n"))
			Expect(r.Discard()).To(Equal(0))
		})

		It("does not leak discarded bytes into later lines", func() {
			r.Feed([]byte("data: stale"))
			r.Discard()
			Expect(r.Feed([]byte("data: fresh\n"))).To(Equal([]string{"data: fresh"}))
		})
	})
})
