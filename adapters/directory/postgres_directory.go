package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/layer-3/gatekeeper/core"
	"github.com/layer-3/gatekeeper/ports"
	"golang.org/x/crypto/bcrypt"
)

const schema = `
CREATE TABLE IF NOT EXISTS principals (
  id            TEXT PRIMARY KEY,
  account_name  TEXT NOT NULL,
  email         TEXT NOT NULL DEFAULT '',
  scopes        TEXT[] NOT NULL DEFAULT '{}',
  password_hash TEXT NOT NULL,
  created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_principals_account_name ON principals (lower(account_name));
`

// PostgresDirectory reads principals from the back-office database
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

var _ ports.PrincipalDirectory = (*PostgresDirectory)(nil)

// NewPostgresDirectory creates a directory backed by pool
func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{pool: pool}
}

// EnsureSchema creates the principals table if it does not exist.
// Production deployments should prefer migrations.
func (d *PostgresDirectory) EnsureSchema(ctx context.Context) error {
	if _, err := d.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure principals schema: %w", err)
	}
	return nil
}

// Upsert stores a principal with a bcrypt hash of password
func (d *PostgresDirectory) Upsert(ctx context.Context, p core.Principal, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	const q = `
INSERT INTO principals (id, account_name, email, scopes, password_hash)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
  account_name = EXCLUDED.account_name,
  email = EXCLUDED.email,
  scopes = EXCLUDED.scopes,
  password_hash = EXCLUDED.password_hash,
  updated_at = NOW()`
	scopes := p.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	if _, err := d.pool.Exec(ctx, q, p.ID, p.AccountName, p.Email, scopes, string(hash)); err != nil {
		return fmt.Errorf("upsert principal: %w", err)
	}
	return nil
}

func (d *PostgresDirectory) FindByAccountName(ctx context.Context, accountName string) (*core.Account, error) {
	const q = `SELECT id, account_name, email, scopes, password_hash FROM principals WHERE lower(account_name) = lower($1)`

	var acc core.Account
	err := d.pool.QueryRow(ctx, q, accountName).Scan(
		&acc.Principal.ID,
		&acc.Principal.AccountName,
		&acc.Principal.Email,
		&acc.Principal.Scopes,
		&acc.PasswordHash,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("find principal by account name: %w", err)
	}
	return &acc, nil
}

func (d *PostgresDirectory) FindByID(ctx context.Context, principalID string) (*core.Principal, error) {
	const q = `SELECT id, account_name, email, scopes FROM principals WHERE id = $1`

	var p core.Principal
	err := d.pool.QueryRow(ctx, q, principalID).Scan(&p.ID, &p.AccountName, &p.Email, &p.Scopes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("find principal by id: %w", err)
	}
	return &p, nil
}
