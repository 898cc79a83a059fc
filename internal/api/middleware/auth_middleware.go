package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postpilot/internal/logging"
	"github.com/maheshrc27/postpilot/pkg/utils"
)

const APIKeyHeader = "X-API-Key"

type AuthMiddleware struct {
	apiKey    string
	secretKey string
	log       logging.Logger
}

func NewAuthMiddleware(apiKey, secretKey string, log logging.Logger) *AuthMiddleware {
	return &AuthMiddleware{apiKey: apiKey, secretKey: secretKey, log: log}
}

// AuthMiddleware accepts the static API key (header or api_key query) or a
// bearer token signed with the secret key. The operator is stored in locals.
func (m *AuthMiddleware) AuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		apiKey := c.Get(APIKeyHeader)
		if apiKey == "" {
			apiKey = c.Query("api_key")
		}
		tokenString := bearerToken(c.Get(fiber.HeaderAuthorization))

		if apiKey == "" && tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing api key or token",
			})
		}

		if apiKey != "" {
			if !utils.KeyMatches(m.apiKey, apiKey) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "invalid api key",
				})
			}
			c.Locals("operator", "api-key")
			return c.Next()
		}

		if m.secretKey == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "token auth is not configured",
			})
		}
		claims, err := utils.ValidateToken(m.secretKey, tokenString)
		if err != nil {
			m.log.WithError(err).Info("token validation failed")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid or expired token",
			})
		}
		c.Locals("operator", claims.Operator)
		return c.Next()
	}
}

func bearerToken(header string) string {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}
