package proxy

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/CalvinLeeC7E/jetbrains-ollama-proxy/pkg/llm/ollama"
	"github.com/CalvinLeeC7E/jetbrains-ollama-proxy/pkg/utils"
	"github.com/CalvinLeeC7E/jetbrains-ollama-proxy/proxy/hangup"
	"github.com/CalvinLeeC7E/jetbrains-ollama-proxy/proxy/stream"
)

// livenessText is what Ollama answers on its root path. Clients probe it to
// detect a running server.
const livenessText = "ollama is running"

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

func (p *Proxy) handleHealth(c *fiber.Ctx) error {
	return c.JSON(healthResponse{
		Status:    "ok",
		Timestamp: p.now().UTC().Format(time.RFC3339Nano),
		Version:   utils.Version,
	})
}

func (p *Proxy) handleRoot(c *fiber.Ctx) error {
	return c.SendString(livenessText)
}

func (p *Proxy) handleTags(c *fiber.Ctx) error {
	return c.JSON(ollama.NewTagsResponse(p.config.ModelNames()))
}

func (p *Proxy) handleNotFound(c *fiber.Ctx) error {
	return NewAPIError(fiber.StatusNotFound, ErrTypeNotFound, "Not Found - "+c.OriginalURL())
}

// handleChat streams unless the request sets "stream": false, in which case
// it is relayed to the completions endpoint as is.
func (p *Proxy) handleChat(c *fiber.Ctx) error {
	// The body outlives the handler when streaming.
	body := bytes.Clone(c.Body())

	req := ollama.PeekChatRequest(body)
	if !req.Streaming() {
		return p.forward(c, "", body)
	}

	model := req.Model
	if model == "" {
		model = p.config.Upstream.FallbackModel
	}

	return p.handleStream(c, model, body)
}

// handleStream runs one stream.Session. Open and Prime run on the handler so
// that a failure before the first record becomes a JSON error. Once a record
// is ready the response is committed and the session continues on its own
// goroutine, writing into the body stream through an io.Pipe.
func (p *Proxy) handleStream(c *fiber.Ctx, model string, body []byte) error {
	id := requestID(c)
	path := strings.Clone(c.Path())

	sess := stream.NewSession(stream.Options{
		ID:      id,
		Model:   model,
		Logger:  p.logger,
		Now:     p.now,
		OnClose: p.sessionClosed(path),
	})
	p.metrics.SessionOpened()

	// The client can vanish while the upstream is silent, including before
	// the first record, when nothing is being written that could fail.
	watcher := hangup.Watch(c.Context().Conn(), func() {
		p.logger.Debug("client hung up", "session_id", sess.ID())
		sess.Disconnect()
	})

	if err := sess.Open(p.upstream, body); err != nil {
		watcher.Stop()
		return upstreamError(err)
	}
	if err := sess.Prime(); err != nil {
		watcher.Stop()
		return upstreamError(err)
	}

	p.headerHandler.SetStreamingResponseHeaders(c)
	c.Status(fiber.StatusOK)

	// Use io.Pipe + SetBodyStream instead of SetBodyStreamWriter.
	// SetBodyStreamWriter buffers through an internal PipeConns, so a flush
	// in the callback does not reach the TCP socket. With io.Pipe, pw.Write
	// blocks until fasthttp's writeBodyChunked consumes the data and flushes
	// it, which gives per-record streaming and direct backpressure.
	pr, pw := io.Pipe()

	// Unknown size (-1) selects chunked transfer encoding.
	c.Context().Response.SetBodyStream(sess.BodyStream(pr, watcher.Stop), -1)
	go sess.Stream(pw)

	return nil
}

func (p *Proxy) handlePassthrough(c *fiber.Ctx) error {
	path := c.Path()
	if q := c.Request().URI().QueryString(); len(q) > 0 {
		path += "?" + string(q)
	}
	return p.forward(c, path, c.Body())
}

// forward relays the request to the upstream URL with path appended and
// copies the upstream status, headers and body back verbatim.
func (p *Proxy) forward(c *fiber.Ctx, path string, body []byte) error {
	var reqBody io.Reader
	if len(body) > 0 {
		reqBody = bytes.NewReader(body)
	}

	httpReq, err := p.upstream.NewRequest(c.Context(), c.Method(), path, reqBody)
	if err != nil {
		p.metrics.PassthroughRequest(0)
		return upstreamError(err)
	}

	p.headerHandler.SetUpstreamRequestHeaders(c, httpReq)

	p.logger.Debug("forwarding request to upstream",
		"method", httpReq.Method,
		"url", httpReq.URL.String(),
		"request_id", requestID(c),
	)

	httpResp, err := p.upstream.Do(httpReq)
	if err != nil {
		p.metrics.PassthroughRequest(0)
		return upstreamError(err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		p.metrics.PassthroughRequest(0)
		return NewAPIError(http.StatusBadGateway, ErrTypeUpstreamStream, "failed to read upstream response: "+err.Error())
	}

	p.metrics.PassthroughRequest(httpResp.StatusCode)
	p.headerHandler.SetClientResponseHeaders(c, httpResp)

	return c.Status(httpResp.StatusCode).Send(respBody)
}
