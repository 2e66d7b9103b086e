package query

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/vaultcore/vaultcore/internal/ledger"
)

// Handler exposes the read-only endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a query HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func caller(c *fiber.Ctx) Caller {
	uid, _ := c.Locals("user_id").(string)
	role, _ := c.Locals("role").(string)
	return Caller{UserID: uid, Admin: role == "ADMIN"}
}

// Accounts lists the caller's accounts.
func (h *Handler) Accounts(c *fiber.Ctx) error {
	views, err := h.service.Accounts(c.UserContext(), caller(c).UserID)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{"accounts": views})
}

// Account returns one account.
func (h *Handler) Account(c *fiber.Ctx) error {
	view, err := h.service.Account(c.UserContext(), caller(c), c.Params("accountId"))
	if err != nil {
		return statusError(err)
	}
	return c.JSON(view)
}

// Summary returns per-currency totals.
func (h *Handler) Summary(c *fiber.Ctx) error {
	summary, err := h.service.Summary(c.UserContext(), caller(c).UserID)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(summary)
}

// History returns a page of an account's entries. from and to are RFC 3339 timestamps.
func (h *Handler) History(c *fiber.Ctx) error {
	var r ledger.Range
	for param, dst := range map[string]*time.Time{"from": &r.From, "to": &r.To} {
		raw := c.Query(param)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid "+param+" timestamp")
		}
		*dst = t
	}
	limit := c.QueryInt("limit", DefaultHistoryLimit)
	if limit < 0 {
		return fiber.NewError(http.StatusBadRequest, "limit must not be negative")
	}

	page, err := h.service.History(c.UserContext(), caller(c), c.Params("accountId"), r, limit)
	if err != nil {
		return statusError(err)
	}
	return c.JSON(page)
}

func statusError(err error) error {
	if IsNotFound(err) {
		return fiber.NewError(http.StatusNotFound, "account not found")
	}
	return fiber.NewError(http.StatusInternalServerError, err.Error())
}
