package proxy

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/CalvinLeeC7E/jetbrains-ollama-proxy/proxy/upstream"
)

// Error types reported in the "type" field of an error response.
const (
	ErrTypeNotFound            = "not_found"
	ErrTypeInternal            = "internal_error"
	ErrTypeUpstreamUnreachable = "upstream_unreachable"
	ErrTypeUpstreamStatus      = "upstream_error"
	ErrTypeUpstreamStream      = "upstream_stream_error"
	ErrTypeHTTP                = "http_error"
)

// APIError is an error with an HTTP status, rendered by the error handler as
//
//	{"error":{"type":..,"message":..,"status":..,"details":..}}
type APIError struct {
	Status  int
	Type    string
	Message string
	Details map[string]any
}

func (e *APIError) Error() string {
	return e.Message
}

// NewAPIError creates an APIError without details.
func NewAPIError(status int, typ, message string) *APIError {
	return &APIError{Status: status, Type: typ, Message: message}
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Type    string         `json:"type"`
	Message string         `json:"message"`
	Status  int            `json:"status"`
	Details map[string]any `json:"details,omitempty"`
	Stack   string         `json:"stack,omitempty"`
}

// upstreamError maps a failure to open or prime an upstream stream. Nothing
// has been written downstream when it is called.
func upstreamError(err error) *APIError {
	var statusErr *upstream.StatusError
	switch {
	case errors.As(err, &statusErr):
		status := statusErr.StatusCode
		if status < http.StatusBadRequest {
			status = http.StatusBadGateway
		}
		apiErr := NewAPIError(status, ErrTypeUpstreamStatus, statusErr.Error())
		if statusErr.Body != "" {
			apiErr.Details = map[string]any{"upstream_body": statusErr.Body}
		}
		return apiErr

	case errors.Is(err, upstream.ErrUnreachable), errors.Is(err, upstream.ErrNotConfigured):
		return NewAPIError(http.StatusInternalServerError, ErrTypeUpstreamUnreachable, err.Error())

	default:
		return NewAPIError(http.StatusBadGateway, ErrTypeUpstreamStream, err.Error())
	}
}

// toAPIError normalizes any handler error. *fiber.Error keeps its status,
// anything else becomes a 500.
func (p *Proxy) toAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		typ := ErrTypeHTTP
		switch fiberErr.Code {
		case fiber.StatusNotFound:
			typ = ErrTypeNotFound
		case fiber.StatusInternalServerError:
			typ = ErrTypeInternal
		}
		return NewAPIError(fiberErr.Code, typ, fiberErr.Message)
	}

	msg := err.Error()
	if p.config.IsProduction() {
		msg = http.StatusText(http.StatusInternalServerError)
	}
	return NewAPIError(http.StatusInternalServerError, ErrTypeInternal, msg)
}

// handleError is the fiber ErrorHandler. It logs 5xx responses as errors and
// everything else as warnings.
func (p *Proxy) handleError(c *fiber.Ctx, err error) error {
	apiErr := p.toAPIError(err)

	attrs := []any{
		"status", apiErr.Status,
		"type", apiErr.Type,
		"method", c.Method(),
		"path", c.OriginalURL(),
		"request_id", requestID(c),
		"error", err,
	}
	if apiErr.Status >= fiber.StatusInternalServerError {
		p.logger.Error(apiErr.Message, attrs...)
	} else {
		p.logger.Warn(apiErr.Message, attrs...)
	}

	body := errorResponse{Error: errorBody{
		Type:    apiErr.Type,
		Message: apiErr.Message,
		Status:  apiErr.Status,
		Details: apiErr.Details,
	}}
	if !p.config.IsProduction() {
		if stack, ok := c.Locals(localsStack).(string); ok {
			body.Error.Stack = strings.TrimSpace(stack)
		}
	}

	return c.Status(apiErr.Status).JSON(body)
}
