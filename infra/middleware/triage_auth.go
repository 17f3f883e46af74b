package middleware

import (
	"errors"
	"fmt"
	"strings"

	"triage_server/pkg/apperr"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// JWTAuth validates HS256 bearer tokens and stores the subject as the
// request's user id.
func JWTAuth(secret string) fiber.Handler {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)

	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodOptions {
			return c.Next()
		}

		tokenString := bearerToken(c.Get(fiber.HeaderAuthorization))
		if tokenString == "" {
			return apperr.Unauthorized("missing authorization")
		}

		claims := jwt.MapClaims{}
		_, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
			if secret == "" {
				return nil, fmt.Errorf("JWT secret not configured")
			}
			return []byte(secret), nil
		})
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				return apperr.New(apperr.CodeTokenExpired, "token expired", fiber.StatusUnauthorized)
			}
			return apperr.InvalidToken("invalid token").WithError(err)
		}

		sub, err := claims.GetSubject()
		if err != nil || sub == "" {
			return apperr.InvalidToken("missing user id in token")
		}
		userID, err := uuid.Parse(sub)
		if err != nil {
			return apperr.InvalidToken("invalid user id format")
		}

		c.Locals("user_id", userID)
		if email, ok := claims["email"].(string); ok {
			c.Locals("user_email", email)
		}
		return c.Next()
	}
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
