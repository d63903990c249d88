package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/nocauto/noc-engine/pkg/model"
	"github.com/nocauto/noc-engine/pkg/util"
)

// CredentialRepository implements credential.Repository over Postgres.
type CredentialRepository struct {
	db *sqlx.DB
}

// NewCredentialRepository returns a CredentialRepository backed by db.
func NewCredentialRepository(db *sqlx.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

func (r *CredentialRepository) Get(ctx context.Context, ownerUser, name string) (*model.Credential, error) {
	var cred model.Credential
	err := r.db.GetContext(ctx, &cred, `
		SELECT owner_user, name, username, encrypted_password
		FROM credentials WHERE owner_user = $1 AND name = $2
	`, ownerUser, name)
	if err == sql.ErrNoRows {
		return nil, util.NewCommandError(util.KindMissingCredentials, name, "", "no credential row")
	}
	if err != nil {
		return nil, fmt.Errorf("loading credential %s/%s: %w", ownerUser, name, err)
	}
	return &cred, nil
}

func (r *CredentialRepository) Put(ctx context.Context, cred *model.Credential) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO credentials (owner_user, name, username, encrypted_password)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (owner_user, name) DO UPDATE SET
			username = EXCLUDED.username,
			encrypted_password = EXCLUDED.encrypted_password
	`, cred.OwnerUser, cred.Name, cred.Username, cred.EncryptedPassword)
	if err != nil {
		return fmt.Errorf("saving credential %s/%s: %w", cred.OwnerUser, cred.Name, err)
	}
	return nil
}
