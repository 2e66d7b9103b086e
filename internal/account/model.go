package account

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when no account matches the identifier.
	ErrNotFound = errors.New("account not found")
	// ErrInvalidAccount is returned when a balance change targets an account that is not ACTIVE.
	ErrInvalidAccount = errors.New("account is not active")
	// ErrInvalidTransition is returned for forbidden status changes, including changes
	// attempted while a posting holds the account.
	ErrInvalidTransition = errors.New("invalid account status transition")
	// ErrValidation marks malformed provisioning input.
	ErrValidation = errors.New("invalid account input")
)

// Type is the accounting classification of an account.
type Type string

const (
	TypeAsset     Type = "ASSET"
	TypeLiability Type = "LIABILITY"
	TypeEquity    Type = "EQUITY"
	TypeIncome    Type = "INCOME"
	TypeExpense   Type = "EXPENSE"
)

// Types lists every account type in chart order.
var Types = []Type{TypeAsset, TypeLiability, TypeEquity, TypeIncome, TypeExpense}

// ParseType accepts a case-insensitive type name.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToUpper(strings.TrimSpace(s)))
	if t.ordinal() == 0 {
		return "", fmt.Errorf("%w: unknown account type %q", ErrValidation, s)
	}
	return t, nil
}

func (t Type) ordinal() int {
	for i, known := range Types {
		if known == t {
			return i + 1
		}
	}
	return 0
}

// Prefix is the account number prefix that encodes the type.
func (t Type) Prefix() string {
	switch t {
	case TypeAsset:
		return "VCA"
	case TypeLiability:
		return "VCL"
	case TypeEquity:
		return "VCQ"
	case TypeIncome:
		return "VCI"
	case TypeExpense:
		return "VCE"
	}
	return ""
}

// DebitNormal reports whether debits increase the balance (ASSET and EXPENSE).
func (t Type) DebitNormal() bool {
	return t == TypeAsset || t == TypeExpense
}

// Effect returns the signed balance change of posting amount in direction d.
func (t Type) Effect(d Direction, amount decimal.Decimal) decimal.Decimal {
	if (d == Debit) == t.DebitNormal() {
		return amount
	}
	return amount.Neg()
}

// Direction is the side of a ledger entry.
type Direction string

const (
	Debit  Direction = "DEBIT"
	Credit Direction = "CREDIT"
)

// ParseDirection accepts a case-insensitive direction name.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToUpper(strings.TrimSpace(s))); d {
	case Debit, Credit:
		return d, nil
	}
	return "", fmt.Errorf("%w: unknown direction %q", ErrValidation, s)
}

// Opposite flips debit and credit.
func (d Direction) Opposite() Direction {
	if d == Debit {
		return Credit
	}
	return Debit
}

// Status is the administrative state of an account.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusSuspended Status = "SUSPENDED"
	StatusClosed    Status = "CLOSED"
)

// ParseStatus accepts a case-insensitive status name.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusActive, StatusSuspended, StatusClosed:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrValidation, s)
}

// CanTransitionTo reports whether an administrative change from s to next is allowed.
// CLOSED is terminal.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusActive:
		return next == StatusSuspended || next == StatusClosed
	case StatusSuspended:
		return next == StatusActive || next == StatusClosed
	}
	return false
}

// Metadata holds advisory, type-specific attributes. None of it takes part in balance math.
type Metadata struct {
	InterestRate *decimal.Decimal `json:"interest_rate,omitempty" yaml:"interest_rate,omitempty"`
	Shares       *int64           `json:"shares,omitempty" yaml:"shares,omitempty"`
	Source       string           `json:"source,omitempty" yaml:"source,omitempty"`
	Category     string           `json:"category,omitempty" yaml:"category,omitempty"`
}

func (m Metadata) validate(t Type) error {
	if m.InterestRate != nil {
		if t != TypeAsset && t != TypeLiability {
			return fmt.Errorf("%w: interest rate only applies to ASSET and LIABILITY accounts", ErrValidation)
		}
		if m.InterestRate.IsNegative() {
			return fmt.Errorf("%w: interest rate must not be negative", ErrValidation)
		}
	}
	if m.Shares != nil {
		if t != TypeEquity {
			return fmt.Errorf("%w: shares only apply to EQUITY accounts", ErrValidation)
		}
		if *m.Shares < 0 {
			return fmt.Errorf("%w: shares must not be negative", ErrValidation)
		}
	}
	if m.Source != "" && t != TypeIncome {
		return fmt.Errorf("%w: source only applies to INCOME accounts", ErrValidation)
	}
	if m.Category != "" && t != TypeExpense {
		return fmt.Errorf("%w: category only applies to EXPENSE accounts", ErrValidation)
	}
	return nil
}

// Account is a node of the chart of accounts. Balance is written only by the ledger.
type Account struct {
	ID        string
	Number    string
	OwnerID   string
	Type      Type
	Currency  string
	Balance   decimal.Decimal
	Status    Status
	Metadata  Metadata
	CreatedAt time.Time
}

const maxSequence = 999_999

// FormatNumber renders the account number for the n-th account of type t,
// e.g. VCA1000001 for the first asset account.
func FormatNumber(t Type, n int64) (string, error) {
	if t.ordinal() == 0 {
		return "", fmt.Errorf("%w: unknown account type %q", ErrValidation, t)
	}
	if n < 1 || n > maxSequence {
		return "", fmt.Errorf("account number sequence for %s exhausted", t)
	}
	return fmt.Sprintf("%s%d%06d", t.Prefix(), t.ordinal(), n), nil
}

// ValidateNumber checks that number is well formed and its prefix encodes t.
func ValidateNumber(number string, t Type) error {
	prefix := t.Prefix()
	if prefix == "" || !strings.HasPrefix(number, prefix) {
		return fmt.Errorf("%w: account number %q does not match type %s", ErrValidation, number, t)
	}
	digits := strings.TrimPrefix(number, prefix)
	if len(digits) != 7 || digits[0] != byte('0'+t.ordinal()) {
		return fmt.Errorf("%w: malformed account number %q", ErrValidation, number)
	}
	if _, err := strconv.ParseUint(digits, 10, 32); err != nil {
		return fmt.Errorf("%w: malformed account number %q", ErrValidation, number)
	}
	return nil
}

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// NormalizeCurrency upper-cases code and checks it is a 3-letter tag. Tags are opaque:
// VCX is as valid as USD.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !currencyPattern.MatchString(code) {
		return "", fmt.Errorf("%w: currency must be a 3-letter code", ErrValidation)
	}
	return code, nil
}
