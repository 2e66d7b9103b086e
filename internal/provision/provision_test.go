package provision

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vaultcore/vaultcore/internal/account"
	"github.com/vaultcore/vaultcore/internal/identity"
	"github.com/vaultcore/vaultcore/internal/ledger"
	"github.com/vaultcore/vaultcore/internal/logging"
)

type harness struct {
	users    *identity.Service
	accounts *account.Service
	ledger   *ledger.Service
	p        *Provisioner
}

func newHarness(t *testing.T) harness {
	t.Helper()
	hasher, err := identity.NewHasher(bcrypt.MinCost, 2)
	require.NoError(t, err)
	users := identity.NewService(identity.NewMemoryRepository(), hasher, logging.Discard())
	repo := account.NewMemoryRepository()
	l := ledger.NewService(ledger.NewInMemory(repo), nil, logging.Discard())
	accounts := account.NewService(repo, l.Guard(), nil, logging.Discard())
	return harness{users: users, accounts: accounts, ledger: l, p: New(users, accounts, l, logging.Discard())}
}

func TestSeedPlanAppliesOnce(t *testing.T) {
	plan, err := LoadFile("../../configs/seed.yaml")
	require.NoError(t, err)
	require.Len(t, plan.Users, 3)

	h := newHarness(t)
	ctx := context.Background()

	first, err := h.p.Apply(ctx, plan)
	require.NoError(t, err)
	assert.Equal(t, Report{UsersCreated: 3, AccountsOpened: 6, PostingsApplied: 3}, first)

	second, err := h.p.Apply(ctx, plan)
	require.NoError(t, err)
	assert.Equal(t, Report{UsersExisting: 3, AccountsExisting: 6, PostingsSkipped: 3}, second)

	john, err := h.users.FindByUsername(ctx, "john_doe")
	require.NoError(t, err)
	owned, err := h.accounts.ListByOwner(ctx, john.ID)
	require.NoError(t, err)
	require.Len(t, owned, 2)
	assert.Equal(t, "VCA1000001", owned[0].Number)
	assert.True(t, owned[0].Balance.Equal(decimal.RequireFromString("5000")))
	require.NotNil(t, owned[1].Metadata.InterestRate)
	assert.True(t, owned[1].Metadata.InterestRate.Equal(decimal.RequireFromString("0.025")))

	admin, err := h.users.Verify(ctx, "admin", "Admin@123")
	require.NoError(t, err)
	assert.Equal(t, identity.RoleAdmin, admin.Role)
}

func TestParseNormalizesAndRejectsBadReferences(t *testing.T) {
	plan, err := Parse([]byte(`
accounts:
  - {key: a, owner: someone, type: asset, currency: usd}
  - {key: b, owner: someone, type: equity, currency: usd}
postings:
  - transaction_id: T1
    entries:
      - {account: a, amount: "1.00", direction: debit}
      - {account: b, amount: "1.00", direction: credit}
`))
	require.NoError(t, err)
	assert.Equal(t, account.TypeAsset, plan.Accounts[0].Type)
	assert.Equal(t, "USD", plan.Accounts[0].Currency)
	assert.Equal(t, account.Credit, plan.Postings[0].Entries[1].Direction)

	cases := map[string]string{
		"unknown account": `
accounts: [{key: a, owner: x, type: ASSET, currency: USD}]
postings: [{transaction_id: T1, entries: [{account: missing, amount: "1", direction: DEBIT}]}]`,
		"duplicate key": `
accounts: [{key: a, owner: x, type: ASSET, currency: USD}, {key: a, owner: x, type: ASSET, currency: USD}]`,
		"bad type": `
accounts: [{key: a, owner: x, type: CASH, currency: USD}]`,
		"missing owner": `
accounts: [{key: a, type: ASSET, currency: USD}]`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.ErrorIs(t, err, ErrInvalidPlan)
		})
	}
}

func TestApplyStopsOnRejectedPosting(t *testing.T) {
	h := newHarness(t)
	plan, err := Parse([]byte(`
users:
  - {username: owner_one, email: one@example.com, full_name: Owner One, secret: "Sample@123"}
accounts:
  - {key: a, owner: owner_one, type: ASSET, currency: USD}
  - {key: b, owner: owner_one, type: EQUITY, currency: USD}
postings:
  - transaction_id: T-unbalanced
    entries:
      - {account: a, amount: "10.00", direction: DEBIT}
      - {account: b, amount: "9.00", direction: CREDIT}
`))
	require.NoError(t, err)

	_, err = h.p.Apply(context.Background(), plan)
	assert.ErrorIs(t, err, ledger.ErrUnbalancedTransaction)
}
