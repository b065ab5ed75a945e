package identity

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/congo-pay/walletledger/internal/httpx"
)

// Handler exposes identity endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs an identity HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type registerRequest struct {
	Email          string `json:"email" validate:"required,email"`
	Password       string `json:"password" validate:"required,min=8"`
	OrganizationID string `json:"organization_id" validate:"omitempty,uuid"`
}

type userResponse struct {
	UserID         string     `json:"user_id"`
	OrganizationID string     `json:"organization_id"`
	Email          string     `json:"email"`
	CreatedAt      time.Time  `json:"created_at"`
	LastLogin      *time.Time `json:"last_login,omitempty"`
}

func toResponse(u User) userResponse {
	return userResponse{
		UserID:         u.ID.String(),
		OrganizationID: u.OrgID.String(),
		Email:          u.Email,
		CreatedAt:      u.CreatedAt,
		LastLogin:      u.LastLogin,
	}
}

// Register handles user onboarding.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	creds := Credentials{Email: req.Email, Password: req.Password}
	if req.OrganizationID != "" {
		creds.OrgID = uuid.MustParse(req.OrganizationID)
	}
	user, err := h.service.Register(c.UserContext(), creds)
	switch {
	case errors.Is(err, ErrEmailTaken):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidEmail), errors.Is(err, ErrWeakPassword):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case err != nil:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(toResponse(user))
}

// Me returns the authenticated user.
func (h *Handler) Me(c *fiber.Ctx) error {
	actor, err := httpx.Actor(c)
	if err != nil {
		return err
	}
	user, err := h.service.Get(c.UserContext(), actor.ID)
	if errors.Is(err, ErrUserNotFound) {
		return fiber.NewError(http.StatusNotFound, err.Error())
	}
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(toResponse(user))
}
