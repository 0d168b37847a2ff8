package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/rs/zerolog"

	"github.com/KaFaiLi/Risk-Metrics-Analyst-Agent/internal/analysis"
	"github.com/KaFaiLi/Risk-Metrics-Analyst-Agent/internal/extraction"
)

// APIError is the JSON body of every failed API call.
type APIError struct {
	StatusCode int    `json:"status_code"`
	ErrorCode  string `json:"error_code"`
	Message    string `json:"message"`
	Field      string `json:"field,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
}

func (e *APIError) Error() string { return e.Message }

// Render implements render.Renderer.
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	e.RequestID = middleware.GetReqID(r.Context())
	render.Status(r, e.StatusCode)
	return nil
}

func errBadRequest(msg string) *APIError {
	return &APIError{StatusCode: http.StatusBadRequest, ErrorCode: "INVALID_REQUEST", Message: msg}
}

func errNotFound(msg string) *APIError {
	return &APIError{StatusCode: http.StatusNotFound, ErrorCode: "NOT_FOUND", Message: msg}
}

func errValidation(field, msg string) *APIError {
	return &APIError{StatusCode: http.StatusUnprocessableEntity, ErrorCode: "VALIDATION_FAILED", Message: msg, Field: field}
}

// toAPIError maps domain errors onto HTTP statuses. Input problems are
// reported verbatim; anything else is logged in full and hidden behind a
// generic message.
func toAPIError(r *http.Request, err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	var ie *analysis.InputError
	if errors.As(err, &ie) {
		return &APIError{StatusCode: http.StatusBadRequest, ErrorCode: "INVALID_INPUT", Message: ie.Error()}
	}
	var ve *extraction.ValidationError
	if errors.As(err, &ve) {
		return errValidation(ve.Field, ve.Message)
	}
	zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
	return &APIError{StatusCode: http.StatusInternalServerError, ErrorCode: "INTERNAL", Message: "processing failed"}
}

func renderError(w http.ResponseWriter, r *http.Request, err error) {
	_ = render.Render(w, r, toAPIError(r, err))
}
