// Package http provides the REST server and its handlers.
//
// This file implements the builder used by every handler to write a
// response, so status codes, headers and JSON encoding stay consistent.
package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"kharch/internal/core"
)

// ResponseBuilder provides a fluent API for building JSON and file responses.
type ResponseBuilder struct {
	statusCode int
	headers    map[string]string
	body       []byte
	err        error
}

// apiError is the body of every error response.
type apiError struct {
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// NewResponse creates a new response builder with default 200 status.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

// Header sets a response header.
func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// JSON encodes v as the response body.
func (b *ResponseBuilder) JSON(v any) *ResponseBuilder {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		b.err = err
		return b
	}
	b.headers["Content-Type"] = "application/json; charset=utf-8"
	b.body = buf.Bytes()
	return b
}

// Body sets a raw body with its content type.
func (b *ResponseBuilder) Body(contentType string, content []byte) *ResponseBuilder {
	b.headers["Content-Type"] = contentType
	b.body = content
	return b
}

// Attachment asks the client to save the body as filename.
func (b *ResponseBuilder) Attachment(filename string) *ResponseBuilder {
	b.headers["Content-Disposition"] = "attachment; filename=" + strconv.Quote(filename)
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	if b.err != nil {
		slog.Error("Failed to encode response", "error", b.err)
		InternalServerError().Write(w)
		return
	}
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.WriteHeader(b.statusCode)
	if len(b.body) > 0 {
		_, _ = w.Write(b.body)
	}
}

// ErrorResponse creates a JSON error response.
func ErrorResponse(statusCode int, message, field string) *ResponseBuilder {
	return NewResponse().
		Status(statusCode).
		JSON(apiError{Message: message, Field: field})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message, field string) *ResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message, field)
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message, "")
}

// InternalServerError creates a 500 Internal Server Error response. Details
// stay in the logs.
func InternalServerError() *ResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, "internal server error", "")
}

// TooManyRequestsError creates a 429 response.
func TooManyRequestsError() *ResponseBuilder {
	return ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, try again later", "")
}

// DomainError maps a ledger error to its response.
func DomainError(err error) *ResponseBuilder {
	var verr *core.ValidationError
	switch {
	case errors.As(err, &verr):
		return BadRequestError(verr.Message, verr.Field)
	case errors.Is(err, core.ErrNotFound):
		return NotFoundError(err.Error())
	case errors.Is(err, core.ErrInvalidBackup):
		return BadRequestError(err.Error(), "")
	case errors.Is(err, core.ErrInvalidCycleKey):
		return BadRequestError(err.Error(), "cycle")
	case errors.Is(err, core.ErrInvalidAmount):
		return BadRequestError(err.Error(), "")
	case errors.Is(err, core.ErrInvalidDate):
		return BadRequestError(err.Error(), "date")
	}
	return InternalServerError()
}

func fieldError(field, format string, args ...any) *core.ValidationError {
	return &core.ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
