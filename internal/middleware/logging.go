package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/partsregistry/registry/pkg/logger"
)

const requestIDHeader = "X-Request-ID"

// RequestLogger writes one http_request line per call and tags the request with
// an id that audit rows and the response header both carry.
func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		requestID := c.Get(requestIDHeader)
		if requestID == "" {
			requestID = logger.GenerateRequestID()
		}
		c.Locals("requestID", requestID)
		c.Set(requestIDHeader, requestID)

		err := c.Next()

		status := c.Response().StatusCode()
		details := map[string]interface{}{
			"method":        c.Method(),
			"path":          c.Path(),
			"status_code":   status,
			"latency_ms":    time.Since(start).Milliseconds(),
			"user_agent":    c.Get("User-Agent"),
			"ip":            c.IP(),
			"request_body":  logger.GetRequestBodySummary(c),
			"response_body": logger.GetResponseSizeSummary(c),
			"request_id":    requestID,
		}

		actor := logger.GetActorFromContext(c)
		switch {
		case actor != nil && status >= fiber.StatusBadRequest:
			logger.ErrorWithUser(*actor, "http_request", err, details)
		case actor != nil:
			logger.InfoWithUser(*actor, "http_request", details)
		case status >= fiber.StatusBadRequest:
			logger.Error("http_request", err, details)
		default:
			logger.Info("http_request", details)
		}
		return err
	}
}

// securityActions names the responses worth a warning. Registry denials are
// rendered as 404, so not-found is logged alongside the explicit refusals.
var securityActions = map[int]string{
	fiber.StatusUnauthorized: "unauthorized",
	fiber.StatusForbidden:    "access_denied",
	fiber.StatusNotFound:     "not_found",
}

func SecurityLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		action, ok := securityActions[c.Response().StatusCode()]
		if !ok {
			return err
		}

		actor := logger.GetActorFromContext(c)
		details := map[string]interface{}{
			"method": c.Method(),
			"path":   c.Path(),
			"ip":     c.IP(),
			"reason": action,
		}
		if requestID, ok := c.Locals("requestID").(string); ok {
			details["request_id"] = requestID
		}

		if actor != nil {
			logger.WarnWithUser(*actor, action, details)
		} else {
			logger.Warn(action+"_unauthenticated", details)
		}
		return err
	}
}
