// Package handler turns HTTP requests into service calls and service
// results into JSON responses.
//
// HANDLER RESPONSIBILITIES:
//  1. Parse the incoming request (path params, query string, JSON body)
//  2. Work out who is calling (auth.UserFromContext → service.Actor)
//  3. Call exactly one service method
//  4. Write the response through writeJSON / writeError
//
// Handlers hold no business rules. Permission checks, validation and
// license gating all live in package service.
package handler

// RESPONSE HELPERS:
// These functions standardise how we send JSON responses and errors.
//
// CONSISTENT ERROR FORMAT:
// Every error response from our API has the same shape:
//   {"error": "not_found", "message": "snippet not found with id abc123"}
//   {"error": "validation_error", "message": "title: cannot be blank", "field": "title"}
//
// The client always knows what fields to expect, regardless of status code.

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/codevault/internal/apperror"
	"github.com/sakif/codevault/internal/auth"
	"github.com/sakif/codevault/internal/middleware"
	"github.com/sakif/codevault/internal/service"
)

// maxBodyBytes caps ordinary JSON bodies. Import has its own, larger cap.
const maxBodyBytes = 2 << 20

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`           // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"`         // Human-readable description
	Field   string `json:"field,omitempty"` // Offending input field for validation errors
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and status code must be set BEFORE the body is written. Once
// Encode calls w.Write, the headers are on the wire and later changes are
// silently ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// statusFor maps an apperror sentinel to its HTTP status and error type.
//
// WHY HERE AND NOT IN THE SERVICE?
// The service layer does not know about HTTP. A CLI or a job runner calling
// the same service would map ErrNotFound to its own representation.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrProRequired):
		return http.StatusPaymentRequired, "pro_required"
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeError maps a domain error to the appropriate HTTP status code and
// sends it.
//
// errors.As() UNWRAPPING:
// errors.As walks the chain (via Unwrap) and fills appErr with the first
// *AppError it finds, so a service may wrap with fmt.Errorf("...: %w", err)
// and the handler still sees the typed error underneath.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status, kind := statusFor(err)
		if status != http.StatusInternalServerError {
			writeJSON(w, status, ErrorResponse{Error: kind, Message: appErr.Message, Field: appErr.Field})
			return
		}
	}

	// NEVER expose internal error details to the client. The raw message
	// might contain SQL, file paths or tokens.
	slog.Error("request failed", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

// decodeJSON reads a single JSON value from the body into dst. Bodies
// larger than limit bytes are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, limit int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return apperror.ValidationFailed("", fmt.Sprintf("request body must not exceed %d bytes", tooLarge.Limit))
		case errors.Is(err, io.EOF):
			return apperror.ValidationFailed("", "request body must not be empty")
		default:
			return apperror.ValidationFailed("", "invalid JSON body: "+err.Error())
		}
	}
	return nil
}

// actorFrom builds the service Actor for the request. Anonymous requests
// get an Actor carrying only the client IP.
func actorFrom(r *http.Request) service.Actor {
	user, _ := auth.UserFromContext(r.Context())
	return service.ActorFor(user, middleware.ClientIP(r))
}

// queryInt parses an optional integer query parameter; a missing or
// malformed value yields 0, which the services treat as "use the default".
func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return n
}

// queryBool accepts "true" and "1".
func queryBool(r *http.Request, key string) bool {
	v := r.URL.Query().Get(key)
	return v == "true" || v == "1"
}
