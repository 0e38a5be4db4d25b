package proxy

import (
	"runtime/debug"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/CalvinLeeC7E/jetbrains-ollama-proxy/proxy/header"
)

const (
	localsRequestID = "ollamaproxy.request_id"
	localsStack     = "ollamaproxy.stack"
)

// requestContext assigns the request id, echoes it on the response and logs
// every request once it is answered. Errors returned further down the chain
// are rendered here so that the logged status is the one the client sees.
func (p *Proxy) requestContext(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Get(header.RequestIDHeader))
	if id == "" {
		id = uuid.NewString()
	} else {
		// fiber reuses the header buffer after the handler returns.
		id = strings.Clone(id)
	}
	c.Locals(localsRequestID, id)
	c.Set(header.RequestIDHeader, id)

	start := time.Now()
	if err := c.Next(); err != nil {
		if herr := c.App().ErrorHandler(c, err); herr != nil {
			_ = c.SendStatus(fiber.StatusInternalServerError)
		}
	}

	p.logger.Info("request handled",
		"method", c.Method(),
		"path", c.Path(),
		"status", c.Response().StatusCode(),
		"duration", time.Since(start),
		"request_id", id,
	)
	return nil
}

// handlePanic is the stack trace hook of the recover middleware. The stack is
// always logged and kept on the context for the error handler.
func (p *Proxy) handlePanic(c *fiber.Ctx, r any) {
	stack := string(debug.Stack())
	c.Locals(localsStack, stack)
	p.logger.Error("recovered from panic in handler",
		"panic", r,
		"method", c.Method(),
		"path", c.Path(),
		"request_id", requestID(c),
		"stack", stack,
	)
}

func requestID(c *fiber.Ctx) string {
	id, _ := c.Locals(localsRequestID).(string)
	return id
}
