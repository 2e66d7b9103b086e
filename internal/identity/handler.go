package identity

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
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
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
}

type userResponse struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func toResponse(u User) userResponse {
	return userResponse{UserID: u.ID, Username: u.Username, Email: u.Email, FullName: u.FullName, Role: u.Role, CreatedAt: u.CreatedAt}
}

// Register handles user onboarding. Self-registered users always get the USER role.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	user, err := h.service.Register(c.UserContext(), RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		FullName: req.FullName,
		Secret:   req.Password,
		Role:     RoleUser,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrValidation), errors.Is(err, ErrWeakSecret):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrUsernameTaken), errors.Is(err, ErrEmailTaken):
			return fiber.NewError(http.StatusConflict, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.Status(http.StatusCreated).JSON(toResponse(user))
}

// Me returns the authenticated caller's profile.
func (h *Handler) Me(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	user, err := h.service.Get(c.UserContext(), uid)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(toResponse(user))
}
