package provision

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/vaultcore/vaultcore/internal/account"
	"github.com/vaultcore/vaultcore/internal/identity"
)

// ErrInvalidPlan marks a plan that fails structural checks before anything is applied.
var ErrInvalidPlan = errors.New("invalid provisioning plan")

// Plan describes users, accounts and opening postings to create.
type Plan struct {
	Users    []User    `yaml:"users"`
	Accounts []Account `yaml:"accounts"`
	Postings []Posting `yaml:"postings"`
}

// User is a credential to register.
type User struct {
	Username string        `yaml:"username"`
	Email    string        `yaml:"email"`
	FullName string        `yaml:"full_name"`
	Secret   string        `yaml:"secret"`
	Role     identity.Role `yaml:"role,omitempty"`
}

// Account is an account to open. Key names it within the plan; Owner is a username.
type Account struct {
	Key      string           `yaml:"key"`
	Owner    string           `yaml:"owner"`
	Type     account.Type     `yaml:"type"`
	Currency string           `yaml:"currency"`
	Metadata account.Metadata `yaml:"metadata,omitempty"`
}

// Posting is a balanced transaction whose entries reference account keys.
type Posting struct {
	TransactionID string  `yaml:"transaction_id"`
	Entries       []Entry `yaml:"entries"`
}

// Entry is one leg of a Posting.
type Entry struct {
	Account     string            `yaml:"account"`
	Amount      decimal.Decimal   `yaml:"amount"`
	Direction   account.Direction `yaml:"direction"`
	Description string            `yaml:"description,omitempty"`
}

// LoadFile reads and validates a YAML plan.
func LoadFile(path string) (Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Plan{}, fmt.Errorf("read plan: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML plan.
func Parse(data []byte) (Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Plan{}, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	if err := p.normalize(); err != nil {
		return Plan{}, err
	}
	if err := p.Validate(); err != nil {
		return Plan{}, err
	}
	return p, nil
}

func (p *Plan) normalize() error {
	for i := range p.Accounts {
		a := &p.Accounts[i]
		t, err := account.ParseType(string(a.Type))
		if err != nil {
			return fmt.Errorf("%w: account %q: %v", ErrInvalidPlan, a.Key, err)
		}
		a.Type = t
		a.Currency = strings.ToUpper(strings.TrimSpace(a.Currency))
	}
	for i := range p.Postings {
		for j := range p.Postings[i].Entries {
			e := &p.Postings[i].Entries[j]
			d, err := account.ParseDirection(string(e.Direction))
			if err != nil {
				return fmt.Errorf("%w: posting %s: %v", ErrInvalidPlan, p.Postings[i].TransactionID, err)
			}
			e.Direction = d
		}
	}
	return nil
}

// Validate checks references inside the plan. Domain rules are left to the services.
func (p Plan) Validate() error {
	keys := make(map[string]struct{}, len(p.Accounts))
	for i, a := range p.Accounts {
		if a.Key == "" {
			return fmt.Errorf("%w: account %d has no key", ErrInvalidPlan, i)
		}
		if _, dup := keys[a.Key]; dup {
			return fmt.Errorf("%w: duplicate account key %q", ErrInvalidPlan, a.Key)
		}
		if a.Owner == "" {
			return fmt.Errorf("%w: account %q has no owner", ErrInvalidPlan, a.Key)
		}
		keys[a.Key] = struct{}{}
	}
	seen := make(map[string]struct{}, len(p.Postings))
	for _, posting := range p.Postings {
		if posting.TransactionID == "" {
			return fmt.Errorf("%w: posting without transaction_id", ErrInvalidPlan)
		}
		if _, dup := seen[posting.TransactionID]; dup {
			return fmt.Errorf("%w: duplicate transaction_id %q", ErrInvalidPlan, posting.TransactionID)
		}
		seen[posting.TransactionID] = struct{}{}
		for _, e := range posting.Entries {
			if _, ok := keys[e.Account]; !ok {
				return fmt.Errorf("%w: posting %s references unknown account %q", ErrInvalidPlan, posting.TransactionID, e.Account)
			}
		}
	}
	return nil
}
