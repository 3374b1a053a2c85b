// Package middleware provides client identity, logging, tracing and rate
// limiting middleware for the HTTP adapter.
package middleware

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"snapgram/internal/models"
	"snapgram/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// ClientCookie is the cookie a client token may be presented in instead of the Authorization header.
const ClientCookie = "client_token"

// clientTokenType marks tokens minted by ClientTokens so other HS256 tokens signed with the same secret are rejected.
const clientTokenType = "client"

// ClientTokens issues and verifies signed client tokens. The client id is carried in the "sub" claim.
type ClientTokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewClientTokens returns a token codec. A non-positive ttl issues tokens without expiry.
func NewClientTokens(secret string, ttl time.Duration) *ClientTokens {
	return &ClientTokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for clientID and returns it with its expiry (zero when none).
func (t *ClientTokens) Issue(clientID string) (string, time.Time, error) {
	now := t.now()
	claims := jwt.MapClaims{
		"sub": clientID,
		"iat": now.Unix(),
		"typ": clientTokenType,
	}
	var exp time.Time
	if t.ttl > 0 {
		exp = now.Add(t.ttl)
		claims["exp"] = exp.Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign client token: %w", err)
	}
	return signed, exp, nil
}

// Parse verifies raw and returns the client id it carries.
func (t *ClientTokens) Parse(raw string) (string, error) {
	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil || !token.Valid {
		return "", errors.New("invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid token claims")
	}
	if typ, _ := claims["typ"].(string); typ != clientTokenType {
		return "", errors.New("not a client token")
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errors.New("invalid token structure - missing subject")
	}
	return sub, nil
}

// ClientRequired rejects requests without a valid client token. The token is
// read from "Authorization: Bearer" first, then from the client_token cookie.
// On success the client id is stored in c.Locals("clientID") and in the user context.
func ClientRequired(tokens *ClientTokens) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw, err := tokenFromRequest(c)
		if err != nil {
			return unauthorized(c, err.Error())
		}
		clientID, err := tokens.Parse(raw)
		if err != nil {
			return unauthorized(c, err.Error())
		}

		c.Locals("clientID", clientID)
		c.SetUserContext(observability.WithClientID(c.UserContext(), clientID))
		return c.Next()
	}
}

// ClientID returns the client id set by ClientRequired.
func ClientID(c *fiber.Ctx) string {
	id, _ := c.Locals("clientID").(string)
	return id
}

func tokenFromRequest(c *fiber.Ctx) (string, error) {
	if authHeader := c.Get(fiber.HeaderAuthorization); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return "", errors.New("invalid authorization header format")
		}
		return parts[1], nil
	}
	if cookie := c.Cookies(ClientCookie); cookie != "" {
		return cookie, nil
	}
	return "", errors.New("client token required")
}

func unauthorized(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(models.ErrorResponse{
		Error: msg,
		Code:  models.CodeUnauthenticated,
	})
}
