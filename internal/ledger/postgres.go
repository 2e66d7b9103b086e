package ledger

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/vaultcore/vaultcore/internal/account"
)

const defaultHistoryPage = 200

// PostgresLedger persists ledger entries in PostgreSQL ensuring double-entry balance.
type PostgresLedger struct {
	db       *pgxpool.Pool
	pageSize int
	now      func() time.Time
}

// NewPostgresLedger constructs a Postgres-backed ledger implementation.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db, pageSize: defaultHistoryPage, now: time.Now}
}

// Post records a balanced posting inside one SQL transaction.
func (l *PostgresLedger) Post(ctx context.Context, txID string, reqs []EntryRequest) ([]Entry, error) {
	if err := validateRequest(txID, reqs); err != nil {
		return nil, err
	}
	if err := checkBalanced(reqs); err != nil {
		return nil, err
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	tag, err := tx.Exec(ctx, `INSERT INTO ledger_transactions (id, created_at) VALUES ($1, $2)
        ON CONFLICT (id) DO NOTHING`, txID, l.now().UTC())
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateTransaction, txID)
	}

	repo := account.NewPostgresRepository(tx)
	locked, err := repo.LockForPosting(ctx, accountIDs(reqs))
	if err != nil {
		return nil, err
	}
	if err := checkAccounts(reqs, locked); err != nil {
		return nil, err
	}

	// Stamped under the row locks so no later posting to these accounts can carry an
	// earlier time.
	createdAt := l.now().UTC()
	out := make([]Entry, 0, len(reqs))
	for _, r := range reqs {
		if _, err := repo.AdjustBalance(ctx, r.AccountID, r.Amount, r.Direction); err != nil {
			return nil, fmt.Errorf("apply entry to %s: %w", r.AccountID, err)
		}
		e := Entry{
			TransactionID: txID,
			AccountID:     r.AccountID,
			Amount:        r.Amount,
			Direction:     r.Direction,
			Description:   r.Description,
			CreatedAt:     createdAt,
		}
		if err := tx.QueryRow(ctx, `INSERT INTO ledger_entries (transaction_id, account_id, amount, direction, description, created_at)
            VALUES ($1, $2, $3::numeric, $4, $5, $6) RETURNING id`,
			txID, r.AccountID, r.Amount.String(), string(r.Direction), r.Description, createdAt).Scan(&e.ID); err != nil {
			return nil, err
		}
		out = append(out, e)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

const entryColumns = `id, transaction_id, account_id::text, amount::text, direction, description, created_at`

// Entries returns the entries of one transaction.
func (l *PostgresLedger) Entries(ctx context.Context, txID string) ([]Entry, error) {
	rows, err := l.db.Query(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE transaction_id = $1 ORDER BY id`, txID)
	if err != nil {
		return nil, err
	}
	entries, err := collectEntries(rows)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrTransactionNotFound
	}
	return entries, nil
}

// History pages through an account's entries in id order, bounded to the highest entry id
// present when iteration starts. Entry ids of one account are assigned under its row lock,
// so they follow commit order and a later iteration only appends.
func (l *PostgresLedger) History(ctx context.Context, accountID string, r Range) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		repo := account.NewPostgresRepository(l.db)
		if _, err := repo.Get(ctx, accountID); err != nil {
			yield(Entry{}, err)
			return
		}

		var ceiling int64
		if err := l.db.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) FROM ledger_entries WHERE account_id = $1`, accountID).Scan(&ceiling); err != nil {
			yield(Entry{}, err)
			return
		}

		var afterID int64
		for {
			rows, err := l.db.Query(ctx, `SELECT `+entryColumns+` FROM ledger_entries
                WHERE account_id = $1 AND id <= $2 AND id > $3
                  AND ($4::timestamptz IS NULL OR created_at >= $4)
                  AND ($5::timestamptz IS NULL OR created_at < $5)
                ORDER BY id
                LIMIT $6`,
				accountID, ceiling, afterID, timeArg(r.From), timeArg(r.To), l.pageSize)
			if err != nil {
				yield(Entry{}, err)
				return
			}
			page, err := collectEntries(rows)
			if err != nil {
				yield(Entry{}, err)
				return
			}
			for _, e := range page {
				if !yield(e, nil) {
					return
				}
			}
			if len(page) < l.pageSize {
				return
			}
			afterID = page[len(page)-1].ID
		}
	}
}

// Balances reads the accounts in a single statement snapshot.
func (l *PostgresLedger) Balances(ctx context.Context, ids []string) (map[string]account.Account, error) {
	accounts, err := account.NewPostgresRepository(l.db).Snapshot(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, ok := accounts[id]; !ok {
			return nil, fmt.Errorf("account %s: %w", id, account.ErrNotFound)
		}
	}
	return accounts, nil
}

// TotalBalance sums balances from one snapshot.
func (l *PostgresLedger) TotalBalance(ctx context.Context, ids []string) (decimal.Decimal, error) {
	accounts, err := l.Balances(ctx, ids)
	if err != nil {
		return decimal.Zero, err
	}
	return sumBalances(accounts), nil
}

// EntryCount counts entries of the accounts with one indexed query.
func (l *PostgresLedger) EntryCount(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var n int
	err := l.db.QueryRow(ctx, `SELECT count(*) FROM ledger_entries WHERE account_id = ANY($1::uuid[])`, ids).Scan(&n)
	return n, err
}

// WithAccountLock runs fn inside a transaction holding the account row, failing fast when a
// posting transaction already holds it.
func (l *PostgresLedger) WithAccountLock(ctx context.Context, id string, fn func(context.Context, account.Repository) error) error {
	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	repo := account.NewPostgresRepository(tx)
	if _, err := repo.LockNoWait(ctx, id); err != nil {
		return err
	}
	if err := fn(ctx, repo); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func collectEntries(rows pgx.Rows) ([]Entry, error) {
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var (
			e         Entry
			amount    string
			direction string
		)
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.AccountID, &amount, &direction, &e.Description, &e.CreatedAt); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				break
			}
			return nil, err
		}
		parsed, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("decode amount: %w", err)
		}
		e.Amount = parsed
		e.Direction = account.Direction(direction)
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func timeArg(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
