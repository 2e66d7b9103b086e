package account

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes account provisioning and administration endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds an account HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type openRequest struct {
	AccountType string   `json:"account_type"`
	Currency    string   `json:"currency"`
	Metadata    Metadata `json:"metadata"`
}

// Open provisions an account owned by the authenticated caller.
func (h *Handler) Open(c *fiber.Ctx) error {
	var req openRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	uid, _ := c.Locals("user_id").(string)
	typ, err := ParseType(req.AccountType)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}
	a, err := h.service.Open(c.UserContext(), OpenInput{OwnerID: uid, Type: typ, Currency: currency, Metadata: req.Metadata})
	if err != nil {
		return statusError(err)
	}
	return c.Status(http.StatusCreated).JSON(NewView(a))
}

type statusRequest struct {
	Status string `json:"status"`
}

// SetStatus changes an account's administrative status.
func (h *Handler) SetStatus(c *fiber.Ctx) error {
	var req statusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	next, err := ParseStatus(req.Status)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	a, err := h.service.SetStatus(c.UserContext(), c.Params("accountId"), next)
	if err != nil {
		return statusError(err)
	}
	return c.Status(http.StatusOK).JSON(NewView(a))
}

func statusError(err error) error {
	switch {
	case errors.Is(err, ErrValidation):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(http.StatusNotFound, "account not found")
	case errors.Is(err, ErrInvalidTransition):
		return fiber.NewError(http.StatusConflict, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
