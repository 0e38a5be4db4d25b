package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/CalvinLeeC7E/jetbrains-ollama-proxy/pkg/config"
	"github.com/CalvinLeeC7E/jetbrains-ollama-proxy/pkg/eventstream"
	"github.com/CalvinLeeC7E/jetbrains-ollama-proxy/pkg/logger"
	"github.com/CalvinLeeC7E/jetbrains-ollama-proxy/pkg/utils"
	"github.com/CalvinLeeC7E/jetbrains-ollama-proxy/proxy/upstream"
	"github.com/CalvinLeeC7E/jetbrains-ollama-proxy/proxy/worker"
)

var _ = Describe("New", func() {
	It("requires a config", func() {
		_, err := New(nil, Options{})
		Expect(err).To(HaveOccurred())
	})

	It("rejects an invalid upstream url", func() {
		_, err := New(newTestConfig("ftp://example.com"), Options{Logger: logger.Nop()})
		Expect(err).To(MatchError(ContainSubstring("upstream client")))
	})

	It("rejects an invalid connect timeout", func() {
		cfg := newTestConfig("http://example.com")
		cfg.Upstream.ConnectTimeout = "soon"
		_, err := New(cfg, Options{Logger: logger.Nop()})
		Expect(err).To(MatchError(ContainSubstring("connect_timeout")))
	})
})

var _ = Describe("Static endpoints", func() {
	var p *Proxy

	BeforeEach(func() {
		p = newTestProxy(newTestConfig(""), Options{})
	})

	AfterEach(func() {
		p.Close()
	})

	It("reports health", func() {
		resp, body := do(p, httptest.NewRequest(http.MethodGet, "/health", nil))
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(body).To(MatchJSON(`{
			"status": "ok",
			"timestamp": "2025-05-22T05:17:33Z",
			"version": "` + utils.Version + `"
		}`))
	})

	It("answers the liveness probe on the root path", func() {
		resp, body := do(p, httptest.NewRequest(http.MethodGet, "/", nil))
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(body).To(Equal("ollama is running"))
	})

	It("lists the configured models, dropping blank entries", func() {
		resp, body := do(p, httptest.NewRequest(http.MethodGet, "/api/tags", nil))
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var tags struct {
			Models []struct {
				Name    string `json:"name"`
				Model   string `json:"model"`
				Details struct {
					Format string `json:"format"`
				} `json:"details"`
			} `json:"models"`
		}
		Expect(json.Unmarshal([]byte(body), &tags)).To(Succeed())
		Expect(tags.Models).To(HaveLen(2))
		Expect(tags.Models[0].Name).To(Equal("kimi-k2"))
		Expect(tags.Models[0].Model).To(Equal("kimi-k2"))
		Expect(tags.Models[0].Details.Format).To(Equal("gguf"))
		Expect(tags.Models[1].Name).To(Equal("qwen3"))
	})

	It("answers unknown routes with a 404 JSON error", func() {
		resp, body := do(p, httptest.NewRequest(http.MethodGet, "/nope?x=1", nil))
		Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		Expect(resp.Header.Get("Content-Type")).To(HavePrefix("application/json"))

		apiErr := decodeError(body)
		Expect(apiErr.Type).To(Equal(ErrTypeNotFound))
		Expect(apiErr.Status).To(Equal(http.StatusNotFound))
		Expect(apiErr.Message).To(Equal("Not Found - /nope?x=1"))
	})

	It("allows cross origin requests", func() {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "http://localhost:63342")
		resp, _ := do(p, req)
		Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
	})

	Describe("request ids", func() {
		It("echoes the client request id", func() {
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			req.Header.Set("X-Request-Id", "req-123")
			resp, _ := do(p, req)
			Expect(resp.Header.Get("X-Request-Id")).To(Equal("req-123"))
		})

		It("generates one when the client sends none", func() {
			resp, _ := do(p, httptest.NewRequest(http.MethodGet, "/health", nil))
			Expect(resp.Header.Get("X-Request-Id")).To(HaveLen(36))
		})
	})
})

var _ = Describe("Streaming chat", func() {
	var (
		up  *fakeUpstream
		p   *Proxy
		pub *recordingPublisher
	)

	startProxy := func(handler http.HandlerFunc) {
		up = newFakeUpstream(handler)
		pub = &recordingPublisher{}
		pool, err := worker.NewPool(&worker.Config{Publisher: pub, Logger: logger.Nop()})
		Expect(err).NotTo(HaveOccurred())
		p = newTestProxy(newTestConfig(up.URL+"/v1/chat/completions"), Options{WorkerPool: pool})
	}

	AfterEach(func() {
		if p != nil {
			p.Close()
		}
		if up != nil {
			up.Close()
		}
	})

	Context("when the upstream streams two deltas", func() {
		BeforeEach(func() {
			startProxy(sseHandler(deltaEvent("H"), deltaEvent("i"), "data: [DONE]\n\n"))
		})

		It("emits one record per delta and a single terminal record", func() {
			req := chatRequest(`{"model":"m1","messages":[{"role":"user","content":"hi"}]}`)
			resp, body := do(p, req)

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))
			Expect(resp.Header.Get("Cache-Control")).To(Equal("no-cache"))
			Expect(resp.TransferEncoding).To(ContainElement("chunked"))

			recs := decodeLines(body)
			Expect(recs).To(HaveLen(3))

			Expect(recs[0]["model"]).To(Equal("m1"))
			Expect(recs[0]["created_at"]).To(Equal("2025-05-22T05:17:33Z"))
			Expect(recs[0]["message"]).To(Equal(map[string]any{"role": "assistant", "content": "H"}))
			Expect(recs[0]["done"]).To(BeFalse())
			Expect(recs[0]).NotTo(HaveKey("total_duration"))
			Expect(recs[1]["message"]).To(HaveKeyWithValue("content", "i"))

			Expect(recs[2]["done"]).To(BeTrue())
			Expect(recs[2]["message"]).To(HaveKeyWithValue("content", ""))
			for _, k := range []string{
				"total_duration", "load_duration", "prompt_eval_count",
				"prompt_eval_duration", "eval_count", "eval_duration",
			} {
				Expect(recs[2]).To(HaveKeyWithValue(k, BeNumerically("==", 0)))
			}
		})

		It("posts the body unmodified with the configured credential", func() {
			payload := `{"model":"m1","messages":[{"role":"user","content":"hi"}],"options":{"temperature":0}}`
			req := chatRequest(payload)
			req.Header.Set("Authorization", "Bearer client-token")
			do(p, req)

			reqs := up.Requests()
			Expect(reqs).To(HaveLen(1))
			Expect(reqs[0].Method).To(Equal(http.MethodPost))
			Expect(reqs[0].Path).To(Equal("/v1/chat/completions"))
			Expect(reqs[0].Body).To(Equal(payload))
			Expect(reqs[0].Authorization).To(Equal("Bearer sk-test"))
			Expect(reqs[0].Accept).To(Equal("text/event-stream"))
			Expect(reqs[0].UserAgent).To(Equal(utils.UserAgent()))
		})

		It("uses the fallback model when the request names none", func() {
			_, body := do(p, chatRequest(`{"messages":[]}`))
			for _, rec := range decodeLines(body) {
				Expect(rec["model"]).To(Equal("kimi-k2"))
			}
		})

		It("streams a body that is not a JSON object with the fallback model", func() {
			_, body := do(p, chatRequest(`[1,2,3]`))
			recs := decodeLines(body)
			Expect(recs).To(HaveLen(3))
			Expect(recs[0]["model"]).To(Equal("kimi-k2"))
			Expect(up.Requests()[0].Body).To(Equal(`[1,2,3]`))
		})

		It("streams when stream is explicitly true", func() {
			_, body := do(p, chatRequest(`{"model":"m1","stream":true}`))
			Expect(decodeLines(body)).To(HaveLen(3))
		})

		It("publishes a session event keyed by the request id", func() {
			req := chatRequest(`{"model":"m1"}`)
			req.Header.Set("X-Request-Id", "sess-42")
			do(p, req)

			Eventually(pub.Events).Should(HaveLen(1))
			event := pub.Events()[0]
			Expect(event.EventType).To(Equal(eventstream.EventTypeSessionClosed))
			Expect(event.Session.ID).To(Equal("sess-42"))
			Expect(event.Session.Model).To(Equal("m1"))
			Expect(event.Session.Outcome).To(Equal("completed"))
			Expect(event.Session.Records).To(Equal(3))
			Expect(event.Session.Error).To(BeEmpty())
			Expect(event.Request.Path).To(Equal("/api/chat"))
			Expect(event.Source.Upstream).To(Equal(up.URL + "/v1/chat/completions"))
		})

		It("counts completed sessions on the metrics endpoint", func() {
			do(p, chatRequest(`{"model":"m1"}`))

			Eventually(func() string {
				_, body := do(p, httptest.NewRequest(http.MethodGet, "/metrics", nil))
				return body
			}).Should(And(
				ContainSubstring(`ollamaproxy_sessions_total{outcome="completed"} 1`),
				ContainSubstring(`ollamaproxy_records_emitted_total 3`),
				ContainSubstring("ollamaproxy_sessions_active 0"),
			))
		})
	})

	Context("when the upstream splits records across reads", func() {
		BeforeEach(func() {
			full := deltaEvent("Hel") + deltaEvent("lo") + "data: [DONE]\n\n"
			startProxy(sseHandler(full[:7], full[7:40], full[40:len(full)-3], full[len(full)-3:]))
		})

		It("reassembles every record", func() {
			_, body := do(p, chatRequest(`{"model":"m1"}`))
			recs := decodeLines(body)
			Expect(recs).To(HaveLen(3))
			Expect(recs[0]["message"]).To(HaveKeyWithValue("content", "Hel"))
			Expect(recs[1]["message"]).To(HaveKeyWithValue("content", "lo"))
			Expect(recs[2]["done"]).To(BeTrue())
		})
	})

	Context("when the upstream sends malformed and empty records", func() {
		BeforeEach(func() {
			startProxy(sseHandler(
				": keep-alive\n\n",
				"data: {not json\n\n",
				deltaEvent(""),
				"data: {\"choices\":[]}\n\n",
				deltaEvent("ok"),
			))
		})

		It("drops them and still terminates at upstream EOF", func() {
			_, body := do(p, chatRequest(`{"model":"m1"}`))
			recs := decodeLines(body)
			Expect(recs).To(HaveLen(2))
			Expect(recs[0]["message"]).To(HaveKeyWithValue("content", "ok"))
			Expect(recs[1]["done"]).To(BeTrue())

			Eventually(pub.Events).Should(HaveLen(1))
			Expect(pub.Events()[0].Session.Malformed).To(Equal(1))
		})
	})

	Context("when the upstream ends without any content", func() {
		BeforeEach(func() {
			startProxy(sseHandler())
		})

		It("emits only the terminal record", func() {
			resp, body := do(p, chatRequest(`{"model":"m1"}`))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			recs := decodeLines(body)
			Expect(recs).To(HaveLen(1))
			Expect(recs[0]["done"]).To(BeTrue())
		})
	})

	Context("when the upstream rejects the request", func() {
		BeforeEach(func() {
			startProxy(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limited"}`))
			})
		})

		It("mirrors the status with the upstream body in the details", func() {
			resp, body := do(p, chatRequest(`{"model":"m1"}`))
			Expect(resp.StatusCode).To(Equal(http.StatusTooManyRequests))

			apiErr := decodeError(body)
			Expect(apiErr.Type).To(Equal(ErrTypeUpstreamStatus))
			Expect(apiErr.Status).To(Equal(http.StatusTooManyRequests))
			Expect(apiErr.Details).To(HaveKeyWithValue("upstream_body", `{"error":"rate limited"}`))
		})

		It("records an upstream_error session", func() {
			do(p, chatRequest(`{"model":"m1"}`))
			Eventually(pub.Events).Should(HaveLen(1))
			Expect(pub.Events()[0].Session.Outcome).To(Equal("upstream_error"))
			Expect(pub.Events()[0].Session.Error).To(ContainSubstring("429"))
		})
	})

	Context("when stream is false", func() {
		BeforeEach(func() {
			startProxy(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-Upstream", "yes")
				w.WriteHeader(http.StatusCreated)
				_, _ = w.Write([]byte(`{"id":"cmpl-1"}`))
			})
		})

		It("relays the completion endpoint response verbatim", func() {
			payload := `{"model":"m1","stream":false}`
			resp, body := do(p, chatRequest(payload))

			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			Expect(resp.Header.Get("X-Upstream")).To(Equal("yes"))
			Expect(body).To(Equal(`{"id":"cmpl-1"}`))

			reqs := up.Requests()
			Expect(reqs).To(HaveLen(1))
			Expect(reqs[0].Path).To(Equal("/v1/chat/completions"))
			Expect(reqs[0].Body).To(Equal(payload))
			Expect(pub.Events()).To(BeEmpty())
		})
	})
})

var _ = Describe("Unreachable upstream", func() {
	var p *Proxy

	AfterEach(func() {
		p.Close()
	})

	It("answers a streaming request with a single 500 JSON error", func() {
		dead := httptest.NewServer(http.NotFoundHandler())
		url := dead.URL
		dead.Close()

		p = newTestProxy(newTestConfig(url), Options{})
		resp, body := do(p, chatRequest(`{"model":"m1"}`))

		Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
		Expect(resp.Header.Get("Content-Type")).To(HavePrefix("application/json"))
		apiErr := decodeError(body)
		Expect(apiErr.Type).To(Equal(ErrTypeUpstreamUnreachable))
		Expect(strings.Count(body, "\n")).To(BeNumerically("<=", 1))
	})

	It("times out waiting for response headers", func() {
		slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(5 * time.Second):
			}
		}))
		defer slow.Close()

		client, err := upstream.NewClient(upstream.Config{
			URL:            slow.URL,
			ConnectTimeout: 100 * time.Millisecond,
		})
		Expect(err).NotTo(HaveOccurred())

		p = newTestProxy(newTestConfig(slow.URL), Options{Upstream: client})
		resp, body := do(p, chatRequest(`{"model":"m1"}`))

		Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
		Expect(decodeError(body).Type).To(Equal(ErrTypeUpstreamUnreachable))
	})

	It("answers when no upstream url is configured", func() {
		p = newTestProxy(newTestConfig(""), Options{})
		resp, body := do(p, chatRequest(`{"model":"m1"}`))

		Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
		apiErr := decodeError(body)
		Expect(apiErr.Type).To(Equal(ErrTypeUpstreamUnreachable))
		Expect(apiErr.Message).To(ContainSubstring("not configured"))
	})
})

var _ = Describe("Passthrough", func() {
	var (
		up *fakeUpstream
		p  *Proxy
	)

	BeforeEach(func() {
		up = newFakeUpstream(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Request-Id", "upstream-id")
			if r.URL.Path == "/api/missing" {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"error":"missing"}`))
				return
			}
			_, _ = w.Write([]byte(`{"version":"0.9.0"}`))
		})
		p = newTestProxy(newTestConfig(up.URL), Options{})
	})

	AfterEach(func() {
		p.Close()
		up.Close()
	})

	It("forwards other api paths to the upstream url plus path", func() {
		req := httptest.NewRequest(http.MethodGet, "/api/version?verbose=1", nil)
		req.Header.Set("Authorization", "Bearer client-token")
		req.Header.Set("X-Request-Id", "req-7")
		resp, body := do(p, req)

		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(body).To(Equal(`{"version":"0.9.0"}`))
		Expect(resp.Header.Get("X-Request-Id")).To(Equal("req-7"))

		reqs := up.Requests()
		Expect(reqs).To(HaveLen(1))
		Expect(reqs[0].Method).To(Equal(http.MethodGet))
		Expect(reqs[0].Path).To(Equal("/api/version"))
		Expect(reqs[0].RawQuery).To(Equal("verbose=1"))
		Expect(reqs[0].Authorization).To(Equal("Bearer sk-test"))
	})

	It("forwards /api/generate with its body", func() {
		payload := `{"model":"m1","prompt":"hi","stream":true}`
		req := httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := do(p, req)

		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		reqs := up.Requests()
		Expect(reqs[0].Method).To(Equal(http.MethodPost))
		Expect(reqs[0].Path).To(Equal("/api/generate"))
		Expect(reqs[0].Body).To(Equal(payload))
	})

	It("relays upstream error statuses verbatim", func() {
		resp, body := do(p, httptest.NewRequest(http.MethodDelete, "/api/missing", nil))
		Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		Expect(body).To(Equal(`{"error":"missing"}`))
	})

	It("counts relayed requests by status class", func() {
		do(p, httptest.NewRequest(http.MethodGet, "/api/version", nil))
		do(p, httptest.NewRequest(http.MethodGet, "/api/missing", nil))

		_, body := do(p, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		Expect(body).To(ContainSubstring(`ollamaproxy_passthrough_requests_total{status_class="2xx"} 1`))
		Expect(body).To(ContainSubstring(`ollamaproxy_passthrough_requests_total{status_class="4xx"} 1`))
	})
})

var _ = Describe("Metrics endpoint", func() {
	It("is not mounted when disabled", func() {
		cfg := newTestConfig("")
		cfg.Metrics.Enabled = false
		p := newTestProxy(cfg, Options{})
		defer p.Close()

		resp, _ := do(p, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
	})

	It("is mounted on the configured path", func() {
		cfg := newTestConfig("")
		cfg.Metrics.Path = "/internal/metrics"
		p := newTestProxy(cfg, Options{})
		defer p.Close()

		resp, body := do(p, httptest.NewRequest(http.MethodGet, "/internal/metrics", nil))
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(body).To(ContainSubstring("ollamaproxy_sessions_active"))
	})
})

var _ = Describe("Error mapping", func() {
	var p *Proxy

	BeforeEach(func() {
		p = newTestProxy(newTestConfig(""), Options{})
	})

	AfterEach(func() {
		p.Close()
	})

	It("maps upstream status errors below 400 to 502", func() {
		apiErr := upstreamError(&upstream.StatusError{StatusCode: http.StatusNotModified})
		Expect(apiErr.Status).To(Equal(http.StatusBadGateway))
		Expect(apiErr.Details).To(BeNil())
	})

	It("maps read failures before the first record to 502", func() {
		apiErr := upstreamError(errors.New("reading upstream stream: connection reset"))
		Expect(apiErr.Status).To(Equal(http.StatusBadGateway))
		Expect(apiErr.Type).To(Equal(ErrTypeUpstreamStream))
	})

	It("keeps the status of fiber errors", func() {
		apiErr := p.toAPIError(fiberError(http.StatusMethodNotAllowed))
		Expect(apiErr.Status).To(Equal(http.StatusMethodNotAllowed))
		Expect(apiErr.Type).To(Equal(ErrTypeHTTP))
	})

	It("turns unknown errors into 500 with their message in development", func() {
		apiErr := p.toAPIError(errors.New("boom"))
		Expect(apiErr.Status).To(Equal(http.StatusInternalServerError))
		Expect(apiErr.Message).To(Equal("boom"))
	})

	It("hides unknown error messages in production", func() {
		cfg := newTestConfig("")
		cfg.Server.Mode = config.ModeProduction
		prod := newTestProxy(cfg, Options{})
		defer prod.Close()

		apiErr := prod.toAPIError(errors.New("boom"))
		Expect(apiErr.Message).To(Equal("Internal Server Error"))
	})
})

var _ = Describe("Client disconnect", func() {
	var (
		p   *Proxy
		up  *fakeUpstream
		pub *recordingPublisher
	)

	// listen serves the proxy on a real loopback listener and returns its
	// address.
	listen := func(handler http.HandlerFunc) string {
		up = newFakeUpstream(handler)
		pub = &recordingPublisher{}
		pool, err := worker.NewPool(&worker.Config{Publisher: pub, Logger: logger.Nop()})
		Expect(err).NotTo(HaveOccurred())
		p = newTestProxy(newTestConfig(up.URL+"/v1/chat/completions"), Options{WorkerPool: pool})

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		go func() {
			_ = p.RunWithListener(ln)
		}()
		return ln.Addr().String()
	}

	AfterEach(func() {
		if up != nil {
			up.CloseClientConnections()
		}
		if p != nil {
			p.Close()
		}
		if up != nil {
			up.Close()
		}
	})

	expectDisconnectedSession := func() {
		Eventually(pub.Events, "2s").Should(HaveLen(1))
		Expect(pub.Events()[0].Session.Outcome).To(Equal("disconnected"))
	}

	It("cancels a stalled upstream after the first record", func() {
		canceled := make(chan struct{})
		addr := listen(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, deltaEvent("Hi"))
			w.(http.Flusher).Flush()
			<-r.Context().Done()
			close(canceled)
		})

		conn, r := dialChat(addr, `{"model":"m1"}`)
		readUntil(r, `"content":"Hi"`)
		Expect(conn.Close()).To(Succeed())

		Eventually(canceled, "2s").Should(BeClosed())
		expectDisconnectedSession()
	})

	It("cancels the upstream while waiting for the first record", func() {
		canceled := make(chan struct{})
		addr := listen(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			w.WriteHeader(http.StatusOK)
			w.(http.Flusher).Flush()
			<-r.Context().Done()
			close(canceled)
		})

		conn, _ := dialChat(addr, `{"model":"m1"}`)
		Eventually(up.Requests, "2s").Should(HaveLen(1))
		Expect(conn.Close()).To(Succeed())

		Eventually(canceled, "2s").Should(BeClosed())
		expectDisconnectedSession()
	})

	It("stops reading a steady upstream once the client is gone", func() {
		var clientGone atomic.Bool
		var sentAfter atomic.Int32
		canceled := make(chan struct{})

		addr := listen(func(w http.ResponseWriter, r *http.Request) {
			defer close(canceled)
			w.Header().Set("Content-Type", "text/event-stream")
			ticker := time.NewTicker(50 * time.Millisecond)
			defer ticker.Stop()
			for {
				fmt.Fprint(w, deltaEvent("tok"))
				w.(http.Flusher).Flush()
				if clientGone.Load() {
					sentAfter.Add(1)
				}
				select {
				case <-r.Context().Done():
					return
				case <-ticker.C:
				}
			}
		})

		conn, r := dialChat(addr, `{"model":"m1"}`)
		readUntil(r, `"content":"tok"`)
		clientGone.Store(true)
		Expect(conn.Close()).To(Succeed())

		Eventually(canceled, "2s").Should(BeClosed())
		Expect(sentAfter.Load()).To(BeNumerically("<=", 1))
		expectDisconnectedSession()
	})
})
