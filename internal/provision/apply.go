package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vaultcore/vaultcore/internal/account"
	"github.com/vaultcore/vaultcore/internal/identity"
	"github.com/vaultcore/vaultcore/internal/ledger"
)

// Report counts what an Apply created and what it found already in place.
type Report struct {
	UsersCreated     int `json:"users_created"`
	UsersExisting    int `json:"users_existing"`
	AccountsOpened   int `json:"accounts_opened"`
	AccountsExisting int `json:"accounts_existing"`
	PostingsApplied  int `json:"postings_applied"`
	PostingsSkipped  int `json:"postings_skipped"`
}

// Provisioner applies plans through the domain services so every rule still holds.
type Provisioner struct {
	users    *identity.Service
	accounts *account.Service
	ledger   *ledger.Service
	logger   *slog.Logger
}

// New builds a Provisioner.
func New(users *identity.Service, accounts *account.Service, l *ledger.Service, logger *slog.Logger) *Provisioner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provisioner{users: users, accounts: accounts, ledger: l, logger: logger}
}

// Apply creates whatever the plan names that does not exist yet. Running the same plan
// twice leaves the second run with nothing to do.
//
// Accounts carry no plan key once stored, so the n-th plan account of a given owner, type
// and currency is matched to the n-th existing account with the same attributes.
func (p *Provisioner) Apply(ctx context.Context, plan Plan) (Report, error) {
	if err := plan.normalize(); err != nil {
		return Report{}, err
	}
	if err := plan.Validate(); err != nil {
		return Report{}, err
	}
	var report Report

	owners := make(map[string]string, len(plan.Users))
	for _, u := range plan.Users {
		user, err := p.users.Register(ctx, identity.RegisterInput{
			Username: u.Username,
			Email:    u.Email,
			FullName: u.FullName,
			Secret:   u.Secret,
			Role:     u.Role,
		})
		switch {
		case err == nil:
			report.UsersCreated++
		case errors.Is(err, identity.ErrUsernameTaken):
			if user, err = p.users.FindByUsername(ctx, u.Username); err != nil {
				return report, fmt.Errorf("user %s: %w", u.Username, err)
			}
			report.UsersExisting++
		default:
			return report, fmt.Errorf("user %s: %w", u.Username, err)
		}
		owners[u.Username] = user.ID
	}

	ids := make(map[string]string, len(plan.Accounts))
	claimed := make(map[string]int)
	for _, a := range plan.Accounts {
		ownerID, err := p.ownerID(ctx, owners, a.Owner)
		if err != nil {
			return report, fmt.Errorf("account %s: %w", a.Key, err)
		}
		slot := fmt.Sprintf("%s/%s/%s", ownerID, a.Type, a.Currency)
		existing, err := p.matching(ctx, ownerID, a)
		if err != nil {
			return report, fmt.Errorf("account %s: %w", a.Key, err)
		}
		if n := claimed[slot]; n < len(existing) {
			ids[a.Key] = existing[n].ID
			claimed[slot]++
			report.AccountsExisting++
			continue
		}
		opened, err := p.accounts.Open(ctx, account.OpenInput{
			OwnerID:  ownerID,
			Type:     a.Type,
			Currency: a.Currency,
			Metadata: a.Metadata,
		})
		if err != nil {
			return report, fmt.Errorf("account %s: %w", a.Key, err)
		}
		claimed[slot]++
		ids[a.Key] = opened.ID
		report.AccountsOpened++
	}

	for _, posting := range plan.Postings {
		reqs := make([]ledger.EntryRequest, 0, len(posting.Entries))
		for _, e := range posting.Entries {
			reqs = append(reqs, ledger.EntryRequest{
				AccountID:   ids[e.Account],
				Amount:      e.Amount,
				Direction:   e.Direction,
				Description: e.Description,
			})
		}
		_, err := p.ledger.Post(ctx, posting.TransactionID, reqs)
		switch {
		case err == nil:
			report.PostingsApplied++
		case errors.Is(err, ledger.ErrDuplicateTransaction):
			report.PostingsSkipped++
		default:
			return report, fmt.Errorf("posting %s: %w", posting.TransactionID, err)
		}
	}

	p.logger.Info("provisioning plan applied",
		slog.Int("users_created", report.UsersCreated),
		slog.Int("accounts_opened", report.AccountsOpened),
		slog.Int("postings_applied", report.PostingsApplied),
	)
	return report, nil
}

func (p *Provisioner) ownerID(ctx context.Context, known map[string]string, username string) (string, error) {
	if id, ok := known[username]; ok {
		return id, nil
	}
	user, err := p.users.FindByUsername(ctx, username)
	if err != nil {
		return "", fmt.Errorf("owner %s: %w", username, err)
	}
	known[username] = user.ID
	return user.ID, nil
}

func (p *Provisioner) matching(ctx context.Context, ownerID string, a Account) ([]account.Account, error) {
	all, err := p.accounts.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	var out []account.Account
	for _, existing := range all {
		if existing.Type == a.Type && existing.Currency == a.Currency {
			out = append(out, existing)
		}
	}
	return out, nil
}
