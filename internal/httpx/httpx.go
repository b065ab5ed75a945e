// Package httpx holds request helpers shared by the fiber handlers.
package httpx

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/congo-pay/walletledger/internal/model"
)

const (
	actorKey       = "actor"
	requestIDKey   = "request_id"
	uncacheableKey = "idempotency_uncacheable"
)

var validate = validator.New()

// SetActor stores the authenticated actor on the request.
func SetActor(c *fiber.Ctx, a model.Actor) {
	c.Locals(actorKey, a)
}

// Actor returns the authenticated actor or a 401 error.
func Actor(c *fiber.Ctx) (model.Actor, error) {
	a, ok := c.Locals(actorKey).(model.Actor)
	if !ok || a.ID == uuid.Nil {
		return model.Actor{}, fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	return a, nil
}

// SetRequestID stores the request id on the request.
func SetRequestID(c *fiber.Ctx, id string) {
	c.Locals(requestIDKey, id)
}

// RequestID returns the request id, or "" when none was assigned.
func RequestID(c *fiber.Ctx) string {
	id, _ := c.Locals(requestIDKey).(string)
	return id
}

// MarkUncacheable tells the idempotency layer not to store this response, so
// a retry with the same key runs the handler again.
func MarkUncacheable(c *fiber.Ctx) {
	c.Locals(uncacheableKey, true)
}

// Uncacheable reports whether MarkUncacheable was called for the request.
func Uncacheable(c *fiber.Ctx) bool {
	marked, _ := c.Locals(uncacheableKey).(bool)
	return marked
}

// UUIDParam parses a route parameter as a UUID.
func UUIDParam(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, fiber.NewError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

// IntQuery parses an optional integer query parameter.
func IntQuery(c *fiber.Ctx, name string, fallback int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fiber.NewError(http.StatusBadRequest, "invalid "+name)
	}
	return n, nil
}

// Bind parses the JSON body into dst and validates its struct tags.
func Bind(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, strings.ToLower(fe.Field())+" failed "+fe.Tag())
			}
			return fiber.NewError(http.StatusBadRequest, strings.Join(fields, "; "))
		}
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// ErrorHandler renders errors as JSON bodies.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := http.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
