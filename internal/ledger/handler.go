package ledger

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/vaultcore/vaultcore/internal/account"
)

const roleAdmin = "ADMIN"

// Handler exposes posting and transaction lookup endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a ledger HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type entryRequest struct {
	AccountID   string          `json:"account_id"`
	Amount      decimal.Decimal `json:"amount"`
	Direction   string          `json:"direction"`
	Description string          `json:"description"`
}

type postRequest struct {
	TransactionID string         `json:"transaction_id"`
	Entries       []entryRequest `json:"entries"`
}

type transactionResponse struct {
	TransactionID string  `json:"transaction_id"`
	Entries       []Entry `json:"entries"`
}

// Post records a balanced transaction. Non-admin callers must own every account they touch.
func (h *Handler) Post(c *fiber.Ctx) error {
	var req postRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	reqs := make([]EntryRequest, 0, len(req.Entries))
	ids := make([]string, 0, len(req.Entries))
	for _, e := range req.Entries {
		dir, err := account.ParseDirection(e.Direction)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		reqs = append(reqs, EntryRequest{AccountID: e.AccountID, Amount: e.Amount, Direction: dir, Description: e.Description})
		ids = append(ids, e.AccountID)
	}

	if err := h.authorize(c, ids); err != nil {
		return err
	}

	entries, err := h.service.Post(c.UserContext(), req.TransactionID, reqs)
	if err != nil {
		return statusError(err)
	}
	return c.Status(http.StatusCreated).JSON(transactionResponse{TransactionID: req.TransactionID, Entries: entries})
}

// Get returns the entries of one transaction.
func (h *Handler) Get(c *fiber.Ctx) error {
	txID := c.Params("transactionId")
	entries, err := h.service.Entries(c.UserContext(), txID)
	if err != nil {
		return statusError(err)
	}
	if !isAdmin(c) {
		uid, _ := c.Locals("user_id").(string)
		ids := make([]string, 0, len(entries))
		for _, e := range entries {
			ids = append(ids, e.AccountID)
		}
		accounts, err := h.service.Balances(c.UserContext(), ids)
		if err != nil {
			return statusError(err)
		}
		visible := false
		for _, a := range accounts {
			if a.OwnerID == uid {
				visible = true
				break
			}
		}
		if !visible {
			return fiber.NewError(http.StatusNotFound, "transaction not found")
		}
	}
	return c.JSON(transactionResponse{TransactionID: txID, Entries: entries})
}

type reverseRequest struct {
	ReversalID string `json:"reversal_id"`
}

// Reverse posts offsetting entries for a committed transaction.
func (h *Handler) Reverse(c *fiber.Ctx) error {
	var req reverseRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}
	original := c.Params("transactionId")
	entries, err := h.service.Reverse(c.UserContext(), original, req.ReversalID)
	if err != nil {
		return statusError(err)
	}
	return c.Status(http.StatusCreated).JSON(transactionResponse{TransactionID: entries[0].TransactionID, Entries: entries})
}

func (h *Handler) authorize(c *fiber.Ctx, ids []string) error {
	if isAdmin(c) || len(ids) == 0 {
		return nil
	}
	accounts, err := h.service.Balances(c.UserContext(), ids)
	if err != nil {
		return statusError(err)
	}
	uid, _ := c.Locals("user_id").(string)
	for _, a := range accounts {
		if a.OwnerID != uid {
			return fiber.NewError(http.StatusForbidden, "account not owned by caller")
		}
	}
	return nil
}

func isAdmin(c *fiber.Ctx) bool {
	role, _ := c.Locals("role").(string)
	return role == roleAdmin
}

func statusError(err error) error {
	switch {
	case errors.Is(err, ErrValidation):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrUnbalancedTransaction), errors.Is(err, ErrInvalidAccount), errors.Is(err, account.ErrNotFound):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrDuplicateTransaction):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrTransactionNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
