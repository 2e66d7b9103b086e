package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists users. Create must check username and email uniqueness
// atomically with the insert.
type Repository interface {
	Create(ctx context.Context, user User) error
	FindByUsername(ctx context.Context, username string) (User, error)
	FindByID(ctx context.Context, id string) (User, error)
}

const (
	pgUniqueViolation  = "23505"
	usernameConstraint = "users_username_key"
	emailConstraint    = "users_email_key"
	userColumns        = `id, username, email, full_name, role, password_hash, created_at`
)

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed identity repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new user, mapping unique constraint violations to typed errors.
func (r *PostgresRepository) Create(ctx context.Context, user User) error {
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO users (`+userColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		userID, user.Username, user.Email, user.FullName, string(user.Role), user.PasswordHash, user.CreatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		switch pgErr.ConstraintName {
		case usernameConstraint:
			return ErrUsernameTaken
		case emailConstraint:
			return ErrEmailTaken
		}
	}
	return err
}

// FindByUsername fetches a user by username.
func (r *PostgresRepository) FindByUsername(ctx context.Context, username string) (User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
}

// FindByID fetches a user by identifier.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (User, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return User{}, ErrNotFound
	}
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
}

func scanUser(row pgx.Row) (User, error) {
	var (
		id        uuid.UUID
		role      string
		createdAt time.Time
		user      User
	)
	if err := row.Scan(&id, &user.Username, &user.Email, &user.FullName, &role, &user.PasswordHash, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	user.ID = id.String()
	user.Role = Role(role)
	user.CreatedAt = createdAt.UTC()
	return user, nil
}
