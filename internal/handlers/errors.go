package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/example/machikart/internal/access"
	"github.com/example/machikart/internal/catalog"
	"github.com/example/machikart/internal/checkout"
	"github.com/example/machikart/internal/docstore"
	"github.com/example/machikart/internal/lifecycle"
	"github.com/example/machikart/internal/retention"
)

// ErrorHandler renders every error returned by a handler as the
// {"success": false, "error": ...} envelope with a matching status code.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var (
			fe    *fiber.Error
			verr  *checkout.ValidationError
			batch *retention.BatchError
		)
		body := fiber.Map{"success": false, "error": err.Error()}
		status := fiber.StatusInternalServerError

		switch {
		case errors.As(err, &fe):
			status = fe.Code
			body["error"] = fe.Message
		case errors.As(err, &verr):
			status = fiber.StatusBadRequest
			body["field"] = verr.Field
		case errors.As(err, &batch):
			body["data"] = batch.Result
		case errors.Is(err, docstore.ErrUnavailable):
			status = fiber.StatusServiceUnavailable
			body["error"] = "store unavailable, please try again"
		case errors.Is(err, docstore.ErrNotFound), errors.Is(err, catalog.ErrNotFound):
			status = fiber.StatusNotFound
		case errors.Is(err, catalog.ErrNotAvailable):
			status = fiber.StatusConflict
		case errors.Is(err, access.ErrUnauthorized):
			status = fiber.StatusUnauthorized
			body["error"] = access.ErrUnauthorized.Error()
		case errors.Is(err, lifecycle.ErrUnconfirmed), errors.Is(err, retention.ErrUnconfirmed):
			status = fiber.StatusPreconditionRequired
		case errors.Is(err, lifecycle.ErrInvalidStatus):
			status = fiber.StatusBadRequest
		}

		if status >= fiber.StatusInternalServerError {
			log.Error("request failed",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Int("status", status),
				zap.Error(err),
			)
			if status == fiber.StatusInternalServerError && batch == nil && fe == nil {
				body["error"] = "internal server error"
			}
		}
		return c.Status(status).JSON(body)
	}
}
