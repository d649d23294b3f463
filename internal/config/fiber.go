package config

import (
	"BillboardAnalyzer/internal/api/analysis"
	"BillboardAnalyzer/pkg/handlerUtil"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

func NewFiber(logger *logrus.Logger) *fiber.App {
	app := fiber.New(
		fiber.Config{
			AppName:          "Billboard Analyzer",
			BodyLimit:        6 * 1024 * 1024,
			DisableKeepalive: false,
			StrictRouting:    true,
			CaseSensitive:    true,
			JSONEncoder:      jsoniter.Marshal,
			JSONDecoder:      jsoniter.Unmarshal,
			ErrorHandler: func(ctx *fiber.Ctx, err error) error {
				code := fiber.StatusInternalServerError
				var fe *fiber.Error
				if errors.As(err, &fe) {
					code = fe.Code
				}
				// Oversized uploads are cut off before any handler runs.
				if code == fiber.StatusRequestEntityTooLarge {
					return ctx.Status(fiber.StatusBadRequest).JSON(handlerUtil.ErrorResponse{Error: analysis.ErrFileTooLarge.Error()})
				}
				if code >= fiber.StatusInternalServerError {
					logger.WithField("path", ctx.Path()).Errorf("Unhandled error: %v", err)
					return ctx.Status(code).JSON(handlerUtil.ErrorResponse{Error: "An unexpected error occurred"})
				}
				return ctx.Status(code).JSON(handlerUtil.ErrorResponse{Error: err.Error()})
			},
		})

	return app
}

func NewValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}
