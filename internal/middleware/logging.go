package middleware

import (
	"BillboardAnalyzer/pkg/log"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
)

const maxLoggedBody = 512

// LoggerConfig writes one access-log line per request; static fields are
// attached to every line.
func LoggerConfig(static log.Fields) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		requestID, ok := c.Locals(RequestIDKey).(string)
		if !ok || requestID == "" {
			requestID = "unknown"
		}

		err := c.Next()

		latency := time.Since(start)
		status := c.Response().StatusCode()

		logFields := log.Fields{
			"request_id":    requestID,
			"method":        c.Method(),
			"path":          c.Path(),
			"status":        status,
			"latency_ms":    latency.Milliseconds(),
			"ip":            c.IP(),
			"user_agent":    c.Get("User-Agent"),
			"response_size": len(c.Response().Body()),
		}
		for k, v := range static {
			logFields[k] = v
		}

		if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
			logFields["request_body"] = sanitizeRequestBody(c.Body())
		}

		if status >= 500 {
			log.Error(logFields, "Server error")
		} else if status >= 400 {
			log.Warn(logFields, "Client error")
		} else {
			log.Info(logFields, "Success")
		}

		return err
	}
}

func (m *middleware) NewLoggingMiddleware() fiber.Handler {
	return LoggerConfig(nil)
}

func sanitizeRequestBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}

	var jsonBody map[string]interface{}
	if err := jsoniter.Unmarshal(body, &jsonBody); err != nil {
		return "[non-JSON body]"
	}

	for _, field := range []string{"image_base64", "image"} {
		if raw, exists := jsonBody[field].(string); exists {
			jsonBody[field] = "[" + strconv.Itoa(len(raw)) + " bytes]"
		}
	}

	sanitized, err := jsoniter.Marshal(jsonBody)
	if err != nil {
		return "[sanitization-failed]"
	}

	if len(sanitized) > maxLoggedBody {
		return string(sanitized[:maxLoggedBody]) + "..."
	}
	return string(sanitized)
}
