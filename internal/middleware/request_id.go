package middleware

import (
	contextPkg "BillboardAnalyzer/pkg/context"
	"BillboardAnalyzer/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"time"
)

const RequestIDKey = contextPkg.RequestIDKey

const maxRequestIDLength = 64

func NewRequestIDMiddleware() fiber.Handler {
	utilsInstance := utils.New()

	return func(c *fiber.Ctx) error {
		requestID := c.Get(RequestIDKey)

		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID, _ = utilsInstance.NewULIDFromTimestamp(time.Now())
		}

		c.Locals(RequestIDKey, requestID)
		c.Set(RequestIDKey, requestID)

		return c.Next()
	}
}
