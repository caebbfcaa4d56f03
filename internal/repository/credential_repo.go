package repository

import (
	"context"
	"database/sql"

	"github.com/member-dashboard-api/internal/database"
)

// credentialRepo is the concrete implementation of CredentialRepository
type credentialRepo struct {
	db *database.DB
}

// NewCredentialRepo creates a new credential repository
func NewCredentialRepo(db *database.DB) CredentialRepository {
	return &credentialRepo{db: db}
}

// Set stores or replaces the password hash of an account
func (r *credentialRepo) Set(ctx context.Context, accountID, hash string) error {
	query := `
		INSERT INTO credentials (account_id, password_hash, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (account_id) DO UPDATE SET
			password_hash = EXCLUDED.password_hash,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.ExecContext(ctx, query, accountID, hash)
	return err
}

// Get returns the password hash of an account, or "" when none is stored
func (r *credentialRepo) Get(ctx context.Context, accountID string) (string, error) {
	var hash string
	err := r.db.QueryRowContext(ctx,
		"SELECT password_hash FROM credentials WHERE account_id = $1", accountID,
	).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return hash, err
}
