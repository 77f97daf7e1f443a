// Package postgres is the PostgreSQL user store. It speaks database/sql
// through the pgx stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/MrEthical07/handson"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            BIGSERIAL PRIMARY KEY,
	username      TEXT        NOT NULL,
	email         TEXT        NOT NULL,
	password_hash BYTEA       NOT NULL,
	password_salt BYTEA       NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_login    TIMESTAMPTZ,
	is_active     BOOLEAN     NOT NULL DEFAULT TRUE,
	CONSTRAINT users_username_key UNIQUE (username),
	CONSTRAINT users_email_key UNIQUE (email)
);

CREATE TABLE IF NOT EXISTS roles (
	id   SERIAL PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS user_roles (
	user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	role_id INT    NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
	PRIMARY KEY (user_id, role_id)
);`

const selectUser = `
SELECT u.id, u.username, u.email, u.password_hash, u.password_salt,
       u.created_at, u.last_login, u.is_active,
       COALESCE(string_agg(r.name, ',' ORDER BY r.name), '')
FROM users u
LEFT JOIN user_roles ur ON ur.user_id = u.id
LEFT JOIN roles r ON r.id = ur.role_id`

const uniqueViolation = "23505"

// Open connects and pings the database.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Store implements handson.UserStore and handson.UserDirectory.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) FindByUsername(ctx context.Context, username string) (handson.UserRecord, error) {
	return s.findOne(ctx, "u.username = $1", username)
}

func (s *Store) FindByEmail(ctx context.Context, email string) (handson.UserRecord, error) {
	return s.findOne(ctx, "u.email = $1", email)
}

func (s *Store) FindByID(ctx context.Context, id int64) (handson.UserRecord, error) {
	return s.findOne(ctx, "u.id = $1", id)
}

func (s *Store) findOne(ctx context.Context, where string, arg any) (handson.UserRecord, error) {
	row := s.db.QueryRowContext(ctx, selectUser+"\nWHERE "+where+"\nGROUP BY u.id", arg)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return handson.UserRecord{}, fmt.Errorf("find user %v: %w", arg, handson.ErrUserNotFound)
	}
	if err != nil {
		return handson.UserRecord{}, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

// List returns all users ordered by id.
func (s *Store) List(ctx context.Context) ([]handson.UserRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectUser+"\nGROUP BY u.id\nORDER BY u.id")
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []handson.UserRecord
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("list users scan: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users rows: %w", err)
	}
	return out, nil
}

// Insert writes the user and its role links in one transaction.
func (s *Store) Insert(ctx context.Context, nu handson.NewUser) (id int64, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("insert user begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	err = tx.QueryRowContext(ctx, `
INSERT INTO users (username, email, password_hash, password_salt, created_at, is_active)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`,
		nu.Username,
		nu.Email,
		nu.Credential.Hash,
		nu.Credential.Salt,
		nu.CreatedAt,
		nu.IsActive,
	).Scan(&id)
	if err != nil {
		return 0, mapInsertError(err)
	}

	for _, role := range nu.Roles {
		var roleID int64
		err = tx.QueryRowContext(ctx, `
INSERT INTO roles (name) VALUES ($1)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING id`, role).Scan(&roleID)
		if err != nil {
			return 0, fmt.Errorf("insert role %q: %w", role, err)
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			id, roleID,
		); err != nil {
			return 0, fmt.Errorf("link role %q: %w", role, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("insert user commit: %w", err)
	}
	return id, nil
}

func (s *Store) UpdateLastLogin(ctx context.Context, id int64, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET last_login = $2 WHERE id = $1`, id, at)
	if err != nil {
		return false, fmt.Errorf("update last login: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update last login rows affected: %w", err)
	}
	return n > 0, nil
}

// SetActive toggles the active flag and reports whether the user exists.
func (s *Store) SetActive(ctx context.Context, id int64, active bool) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET is_active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return false, fmt.Errorf("set active: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set active rows affected: %w", err)
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (handson.UserRecord, error) {
	var (
		u         handson.UserRecord
		lastLogin sql.NullTime
		roles     string
	)
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.Credential.Hash,
		&u.Credential.Salt,
		&u.CreatedAt,
		&lastLogin,
		&u.IsActive,
		&roles,
	)
	if err != nil {
		return handson.UserRecord{}, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLogin = &t
	}
	if roles != "" {
		u.Roles = strings.Split(roles, ",")
	}
	return u, nil
}

func mapInsertError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		switch pgErr.ConstraintName {
		case "users_username_key":
			return handson.ErrUsernameTaken
		case "users_email_key":
			return handson.ErrEmailTaken
		}
	}
	return fmt.Errorf("insert user: %w", err)
}
