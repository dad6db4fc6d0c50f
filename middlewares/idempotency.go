package middlewares

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/gofiber/fiber/v2"

	"educore-backend/cache"
)

// Idempotency deduplicates mutating HTTP calls through the injected cache.
// The client key comes from the Idempotency-Key header; without one, a key
// is derived from caller identity + route + a hash of the body, so a
// double-click or a client retry after timeout still deduplicates. The
// reservation step is atomic: a concurrent call with the same key gets 409
// instead of a second handler execution.
func Idempotency(idem *cache.Idempotency) fiber.Handler {
	return func(c *fiber.Ctx) error {
		method := strings.ToUpper(c.Method())
		if method != fiber.MethodPost && method != fiber.MethodPut && method != fiber.MethodPatch && method != fiber.MethodDelete {
			return c.Next()
		}

		userID, _ := c.Locals("userID").(string)
		path := c.OriginalURL() // includes query string
		body := c.Body()
		routeKey := method + " " + path

		// Deterministic request hash: method|path|body|user.
		h := sha256.New()
		h.Write([]byte(method))
		h.Write([]byte{'\n'})
		h.Write([]byte(path))
		h.Write([]byte{'\n'})
		h.Write(body)
		h.Write([]byte{'\n'})
		h.Write([]byte(userID))
		reqHash := hex.EncodeToString(h.Sum(nil))

		key := strings.TrimSpace(c.Get("Idempotency-Key"))
		if len(key) > 128 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "Idempotency-Key too long"})
		}
		if key == "" {
			// Server-derived key: identical accidental duplicates share it.
			key = reqHash
		}

		switch result, resp := idem.LookupOrReserve(routeKey, key, reqHash); result {
		case cache.Replay:
			for name, value := range resp.Headers {
				c.Set(name, value)
			}
			c.Status(resp.Status)
			return c.Send(resp.Body)

		case cache.InFlight:
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"message": "request already being processed, retry shortly",
			})

		case cache.Conflict:
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"message": "Idempotency-Key reuse with different request",
			})
		}

		// Reserved: run the handler exactly once, then register its result.
		if err := c.Next(); err != nil {
			idem.Abandon(routeKey, key)
			return err
		}

		status := c.Response().StatusCode()
		if status >= fiber.StatusInternalServerError {
			// Server errors are retryable; don't memoize them.
			idem.Abandon(routeKey, key)
			return nil
		}

		respBody := c.Response().Body()
		blob := make([]byte, len(respBody))
		copy(blob, respBody)

		headers := make(map[string]string)
		c.Response().Header.VisitAll(func(k, v []byte) {
			headers[string(k)] = string(v)
		})

		idem.Complete(routeKey, key, &cache.Response{
			Status:  status,
			Body:    blob,
			Headers: headers,
		})
		return nil
	}
}
