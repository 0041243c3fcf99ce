package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"patientdocs/internal/http/middleware"
	"patientdocs/internal/model"
	"patientdocs/internal/service"
)

// errorPayload defines the standardized error response body.
type errorPayload struct {
	RequestID string                `json:"request_id"`
	Error     errorEnvelope         `json:"error"`
	Warnings  *model.UploadWarnings `json:"warnings,omitempty"`
}

type errorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// requestIDFromCtx extracts request_id previously stored by middleware.RequestID.
func requestIDFromCtx(c *fiber.Ctx) string {
	if v := c.Locals(middleware.RequestIDLocalKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// writeError writes a standardized JSON error response without leaking internal errors.
//
// Parameters:
// - status: HTTP status code to return
// - code: machine-readable short error code (e.g., "FORBIDDEN", "INTERNAL_ERROR")
// - message: human-readable safe message (no internal details)
func writeError(c *fiber.Ctx, status int, code, message string) error {
	return writeErrorWarned(c, status, code, message, nil)
}

// writeErrorWarned is writeError plus the per-file warnings accumulated before
// the request was rejected.
func writeErrorWarned(c *fiber.Ctx, status int, code, message string, warnings *model.UploadWarnings) error {
	res := errorPayload{
		RequestID: requestIDFromCtx(c),
		Error: errorEnvelope{
			Code:    code,
			Message: message,
		},
	}
	if warnings != nil && !warnings.Empty() {
		res.Warnings = warnings
	}
	return c.Status(status).JSON(res)
}

// writeServiceError maps pipeline sentinel errors onto HTTP responses.
// Wrapped internals (token parse detail, adapter messages) never reach the
// caller; only the sentinel's safe message does.
func writeServiceError(c *fiber.Ctx, err error) error {
	var warnings *model.UploadWarnings
	var ue *service.UploadError
	if errors.As(err, &ue) {
		warnings = &ue.Warnings
	}

	switch {
	case errors.Is(err, service.ErrUnauthorized):
		return writeError(c, fiber.StatusUnauthorized, "UNAUTHORIZED", service.ErrUnauthorized.Error())
	case errors.Is(err, service.ErrForbidden):
		return writeError(c, fiber.StatusForbidden, "FORBIDDEN", service.ErrForbidden.Error())
	case errors.Is(err, service.ErrMalformedBody):
		return writeError(c, fiber.StatusBadRequest, "MALFORMED_BODY", service.ErrMalformedBody.Error())
	case errors.Is(err, service.ErrPatientIDMissing):
		return writeErrorWarned(c, fiber.StatusBadRequest, "PATIENT_ID_REQUIRED", service.ErrPatientIDMissing.Error(), warnings)
	case errors.Is(err, service.ErrPatientIDInvalid):
		return writeErrorWarned(c, fiber.StatusBadRequest, "PATIENT_ID_INVALID", service.ErrPatientIDInvalid.Error(), warnings)
	case errors.Is(err, service.ErrNoValidFiles):
		return writeErrorWarned(c, fiber.StatusBadRequest, "NO_VALID_FILES", service.ErrNoValidFiles.Error(), warnings)
	case errors.Is(err, service.ErrAllFilesFailed):
		return writeErrorWarned(c, fiber.StatusBadRequest, "UPLOAD_FAILED", service.ErrAllFilesFailed.Error(), warnings)
	default:
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

// ErrorHandler returns a Fiber global error handler that standardizes error responses.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			status = e.Code
		}

		switch status {
		case fiber.StatusBadRequest:
			return writeError(c, status, "BAD_REQUEST", "bad request")
		case fiber.StatusNotFound:
			return writeError(c, status, "NOT_FOUND", "resource not found")
		case fiber.StatusMethodNotAllowed:
			return writeError(c, status, "METHOD_NOT_ALLOWED", "method not allowed")
		default:
			return writeError(c, status, "INTERNAL_ERROR", "internal server error")
		}
	}
}
