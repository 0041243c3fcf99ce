package handler

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"patientdocs/internal/service"
)

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
// Keep handlers minimal and free of business logic; the pipelines live in the
// service package.
func RegisterRoutes(app *fiber.App, db *sql.DB, fileSvc service.FileService) {
	// Serve OpenAPI spec and Swagger UI
	app.Get("/openapi.yaml", func(c *fiber.Ctx) error {
		c.Type("yaml")
		return c.SendFile("openapi.yaml")
	})
	app.Get("/docs", func(c *fiber.Ctx) error {
		html := `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>API Docs</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    window.ui = SwaggerUIBundle({
      url: '/openapi.yaml',
      dom_id: '#swagger-ui',
      presets: [SwaggerUIBundle.presets.apis],
      layout: 'BaseLayout'
    });
  </script>
</body>
</html>`
		return c.Type("html").SendString(html)
	})

	app.Get("/health", HealthCheck(db))
	app.Get("/healthz", LivenessProbe())

	api := app.Group("/api")
	api.Post("/files", UploadFiles(fileSvc))
	api.Get("/files", ListPatientFiles(fileSvc))
}

// HealthCheck checks DB connectivity only.
func HealthCheck(db *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	}
}

// LivenessProbe is a simple liveness probe.
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}

// UploadFiles accepts a multipart upload (field patientId plus file parts)
// and hands the raw body to the upload pipeline.
func UploadFiles(svc service.FileService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, err := svc.Upload(c.UserContext(), service.UploadRequest{
			Body:        bytes.NewReader(c.Body()),
			ContentType: c.Get(fiber.HeaderContentType),
			Token:       bearerToken(c),
		})
		if err != nil {
			return writeServiceError(c, err)
		}

		payload := fiber.Map{
			"ok":         true,
			"message":    fmt.Sprintf("%d file(s) uploaded", len(res.Files)),
			"files":      res.Files,
			"uploadedBy": res.UploadedBy,
		}
		if !res.Warnings.Empty() {
			payload["warnings"] = res.Warnings
		}
		return c.Status(fiber.StatusCreated).JSON(payload)
	}
}

// ListPatientFiles returns a patient's documents with fresh access URLs.
func ListPatientFiles(svc service.FileService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res, err := svc.ListPatientFiles(c.UserContext(), bearerToken(c), c.Query("patientId"))
		if err != nil {
			return writeServiceError(c, err)
		}

		payload := fiber.Map{
			"ok":        true,
			"patientId": res.PatientID,
			"files":     res.Files,
			"count":     len(res.Files),
		}
		if len(res.Warnings.SASGenerationFailedFor) > 0 {
			payload["warnings"] = res.Warnings
		}
		return c.JSON(payload)
	}
}

// bearerToken extracts the credential from the Authorization header; empty if
// absent or not a bearer scheme.
func bearerToken(c *fiber.Ctx) string {
	h := c.Get(fiber.HeaderAuthorization)
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
