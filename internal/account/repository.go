package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// Repository persists accounts.
type Repository interface {
	NextNumber(ctx context.Context, t Type) (string, error)
	Create(ctx context.Context, account Account) error
	Get(ctx context.Context, id string) (Account, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Account, error)
	// AdjustBalance applies the effect of amount posted in direction d. It is reserved
	// for the ledger and fails with ErrInvalidAccount unless the account is ACTIVE.
	AdjustBalance(ctx context.Context, id string, amount decimal.Decimal, d Direction) (Account, error)
	SetStatus(ctx context.Context, id string, status Status) (Account, error)
}

// Guard runs administrative changes while holding the account against concurrent postings.
// Implementations fail with ErrInvalidTransition when a posting currently holds the account.
type Guard interface {
	WithAccountLock(ctx context.Context, id string, fn func(ctx context.Context, repo Repository) error) error
}

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx so the repository can join a
// ledger transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db DBTX
}

// NewPostgresRepository builds a Postgres-backed account repository.
func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const accountColumns = `id, account_number, owner_id, account_type, currency, balance::text, status, metadata, created_at`

const pgLockNotAvailable = "55P03"

// NextNumber reserves the next account number for t.
func (r *PostgresRepository) NextNumber(ctx context.Context, t Type) (string, error) {
	var n int64
	err := r.db.QueryRow(ctx, `INSERT INTO account_number_counters (account_type, last_value) VALUES ($1, 1)
        ON CONFLICT (account_type) DO UPDATE SET last_value = account_number_counters.last_value + 1
        RETURNING last_value`, string(t)).Scan(&n)
	if err != nil {
		return "", err
	}
	return FormatNumber(t, n)
}

// Create inserts a new account.
func (r *PostgresRepository) Create(ctx context.Context, a Account) error {
	id, err := uuid.Parse(a.ID)
	if err != nil {
		return err
	}
	owner, err := uuid.Parse(a.OwnerID)
	if err != nil {
		return fmt.Errorf("%w: owner id: %v", ErrValidation, err)
	}
	meta, err := json.Marshal(a.Metadata)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO accounts (id, account_number, owner_id, account_type, currency, balance, status, metadata, created_at)
        VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9)`,
		id, a.Number, owner, string(a.Type), a.Currency, a.Balance.String(), string(a.Status), meta, a.CreatedAt.UTC())
	return err
}

// Get fetches an account by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Account, error) {
	accountID, err := uuid.Parse(id)
	if err != nil {
		return Account{}, ErrNotFound
	}
	return scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, accountID))
}

// ListByOwner returns the owner's accounts in creation order.
func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string) ([]Account, error) {
	owner, err := uuid.Parse(ownerID)
	if err != nil {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE owner_id = $1 ORDER BY seq`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// AdjustBalance applies a ledger effect. Callers are expected to hold the row lock
// taken by LockForPosting in the same transaction.
func (r *PostgresRepository) AdjustBalance(ctx context.Context, id string, amount decimal.Decimal, d Direction) (Account, error) {
	current, err := r.Get(ctx, id)
	if err != nil {
		return Account{}, err
	}
	if current.Status != StatusActive {
		return Account{}, ErrInvalidAccount
	}
	delta := current.Type.Effect(d, amount)
	return scanAccount(r.db.QueryRow(ctx, `UPDATE accounts SET balance = balance + $2::numeric
        WHERE id = $1 RETURNING `+accountColumns, current.ID, delta.String()))
}

// SetStatus stores a new status without checking transitions; Service owns that rule.
func (r *PostgresRepository) SetStatus(ctx context.Context, id string, status Status) (Account, error) {
	accountID, err := uuid.Parse(id)
	if err != nil {
		return Account{}, ErrNotFound
	}
	return scanAccount(r.db.QueryRow(ctx, `UPDATE accounts SET status = $2 WHERE id = $1 RETURNING `+accountColumns,
		accountID, string(status)))
}

// LockForPosting row-locks the given accounts in id order and returns those that exist.
func (r *PostgresRepository) LockForPosting(ctx context.Context, ids []string) (map[string]Account, error) {
	return r.many(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ANY($1::uuid[]) ORDER BY id FOR UPDATE`, ids)
}

// Snapshot reads the given accounts in one statement and returns those that exist.
func (r *PostgresRepository) Snapshot(ctx context.Context, ids []string) (map[string]Account, error) {
	return r.many(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ANY($1::uuid[])`, ids)
}

func (r *PostgresRepository) many(ctx context.Context, query string, ids []string) (map[string]Account, error) {
	parsed := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			continue
		}
		parsed = append(parsed, id)
	}
	rows, err := r.db.Query(ctx, query, parsed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]Account, len(parsed))
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out[a.ID] = a
	}
	return out, rows.Err()
}

// LockNoWait row-locks one account, failing with ErrInvalidTransition when a
// posting transaction already holds it.
func (r *PostgresRepository) LockNoWait(ctx context.Context, id string) (Account, error) {
	accountID, err := uuid.Parse(id)
	if err != nil {
		return Account{}, ErrNotFound
	}
	a, err := scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE NOWAIT`, accountID))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgLockNotAvailable {
			return Account{}, fmt.Errorf("%w: account has a posting in progress", ErrInvalidTransition)
		}
		return Account{}, err
	}
	return a, nil
}

func scanAccount(row pgx.Row) (Account, error) {
	var (
		a         Account
		id        uuid.UUID
		owner     uuid.UUID
		typ       string
		balance   string
		status    string
		meta      []byte
		createdAt time.Time
	)
	if err := row.Scan(&id, &a.Number, &owner, &typ, &a.Currency, &balance, &status, &meta, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	bal, err := decimal.NewFromString(balance)
	if err != nil {
		return Account{}, fmt.Errorf("decode balance: %w", err)
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &a.Metadata); err != nil {
			return Account{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	a.ID = id.String()
	a.OwnerID = owner.String()
	a.Type = Type(typ)
	a.Balance = bal
	a.Status = Status(status)
	a.CreatedAt = createdAt.UTC()
	return a, nil
}
