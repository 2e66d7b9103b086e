package account

import (
	"time"

	"github.com/shopspring/decimal"
)

// View is the projection of an account exchanged with the presentation layer.
type View struct {
	ID            string           `json:"id"`
	AccountNumber string           `json:"account_number"`
	AccountType   Type             `json:"account_type"`
	Balance       decimal.Decimal  `json:"balance"`
	Currency      string           `json:"currency"`
	CreatedAt     time.Time        `json:"created_at"`
	Status        Status           `json:"status"`
	InterestRate  *decimal.Decimal `json:"interest_rate,omitempty"`
	Shares        *int64           `json:"shares,omitempty"`
	Source        string           `json:"source,omitempty"`
	Category      string           `json:"category,omitempty"`
}

// NewView projects a.
func NewView(a Account) View {
	return View{
		ID:            a.ID,
		AccountNumber: a.Number,
		AccountType:   a.Type,
		Balance:       a.Balance,
		Currency:      a.Currency,
		CreatedAt:     a.CreatedAt,
		Status:        a.Status,
		InterestRate:  a.Metadata.InterestRate,
		Shares:        a.Metadata.Shares,
		Source:        a.Metadata.Source,
		Category:      a.Metadata.Category,
	}
}
