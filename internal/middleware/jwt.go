package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletledger/internal/httpx"
	"github.com/congo-pay/walletledger/internal/model"
)

// TokenVerifier resolves a bearer token to an actor.
type TokenVerifier interface {
	Authenticate(ctx context.Context, accessToken string) (model.Actor, error)
}

// JWTAuth returns a middleware that validates access tokens, checks the token
// version and stores the resolved actor on the request.
func JWTAuth(verifier TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		tokenStr := strings.TrimSpace(authz[len("Bearer "):])
		actor, err := verifier.Authenticate(c.UserContext(), tokenStr)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, err.Error())
		}
		httpx.SetActor(c, actor)
		return c.Next()
	}
}
