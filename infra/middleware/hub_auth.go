package middleware

import (
	"fmt"
	"strings"

	"kitchenhub_server/pkg/apperr"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// JWTAuth validates the bearer token and stores the owner id in Locals.
// Every sync and snapshot route is scoped to this owner; there is no
// cross-owner access path.
func JWTAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() == "OPTIONS" {
			return c.Next()
		}

		var tokenString string

		authHeader := c.Get("Authorization")
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}

		if tokenString == "" {
			return apperr.Unauthorized("missing authorization")
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			if secret == "" {
				return nil, fmt.Errorf("JWT secret not configured")
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			return apperr.Unauthorized("invalid token")
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return apperr.Unauthorized("invalid token claims")
		}

		ownerID, _ := claims["sub"].(string)
		if ownerID == "" {
			return apperr.Unauthorized("token missing subject")
		}

		c.Locals("owner_id", ownerID)
		return c.Next()
	}
}
