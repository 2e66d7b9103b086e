package transfer

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/vaultcore/vaultcore/internal/ledger"
)

// Handler exposes transfer endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a transfer handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type transferRequest struct {
	FromAccountID string          `json:"from_account_id"`
	ToAccountID   string          `json:"to_account_id"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	ClientTxID    string          `json:"client_tx_id"`
}

// Create processes an account-to-account transfer.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}

	res, err := h.service.Transfer(c.UserContext(), Input{
		FromAccountID:   req.FromAccountID,
		ToAccountID:     req.ToAccountID,
		Amount:          req.Amount,
		Description:     req.Description,
		ClientTxID:      req.ClientTxID,
		RequestorUserID: uid,
	})
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrValidation):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case errors.Is(err, ledger.ErrInvalidAccount), errors.Is(err, ledger.ErrUnbalancedTransaction):
			return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, ledger.ErrDuplicateTransaction):
			return fiber.NewError(http.StatusConflict, "duplicate transaction")
		case errors.Is(err, ErrNotOwner):
			return fiber.NewError(http.StatusForbidden, ErrNotOwner.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.Status(http.StatusCreated).JSON(res)
}
