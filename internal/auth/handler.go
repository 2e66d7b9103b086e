package auth

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/vaultcore/vaultcore/internal/identity"
)

// Handler exposes auth endpoints for login/refresh/logout.
type Handler struct {
	svc *Service
}

// NewHandler builds an auth HTTP handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	TokenPair
}

// Login validates credentials and returns a token pair.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	pair, user, err := h.svc.Login(c.UserContext(), req.Username, req.Password)
	if err != nil {
		return statusError(err)
	}
	return c.Status(http.StatusOK).JSON(loginResponse{UserID: user.ID, Username: user.Username, Role: string(user.Role), TokenPair: pair})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh rotates a refresh token into a new pair.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	pair, err := h.svc.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		return statusError(err)
	}
	return c.Status(http.StatusOK).JSON(pair)
}

// Logout revokes the caller's session family.
func (h *Handler) Logout(c *fiber.Ctx) error {
	sid, _ := c.Locals("session_id").(string)
	if sid == "" {
		return fiber.NewError(http.StatusUnauthorized, "missing session")
	}
	if err := h.svc.Revoke(c.UserContext(), sid); err != nil {
		return statusError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "logged_out"})
}

// StatusError maps session and credential errors to HTTP errors.
func StatusError(err error) error {
	return statusError(err)
}

func statusError(err error) error {
	switch {
	case errors.Is(err, ErrExpired):
		return fiber.NewError(http.StatusUnauthorized, "token expired")
	case errors.Is(err, ErrReused):
		return fiber.NewError(http.StatusUnauthorized, "refresh token reused, session revoked")
	case errors.Is(err, ErrInvalid):
		return fiber.NewError(http.StatusUnauthorized, "invalid token")
	case errors.Is(err, identity.ErrAuthFailed):
		return fiber.NewError(http.StatusUnauthorized, identity.ErrAuthFailed.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
