package middlewares

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/gofiber/fiber/v2"
)

const signatureHeader = "X-Webhook-Signature"

// VerifyWebhookSignature authenticates billing provider events: the header
// must carry the hex HMAC-SHA256 of the raw body under the shared secret.
// An invalid or missing signature rejects the event outright; it is never
// retried and never applied.
func VerifyWebhookSignature(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		got := c.Get(signatureHeader)
		if got == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "missing webhook signature"})
		}

		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(c.Body())
		want := hex.EncodeToString(mac.Sum(nil))

		if !hmac.Equal([]byte(got), []byte(want)) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "invalid webhook signature"})
		}
		return c.Next()
	}
}

// SignWebhookPayload computes the signature a provider would attach.
// Used by the sandbox tooling and tests.
func SignWebhookPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
