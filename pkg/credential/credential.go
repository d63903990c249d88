// Package credential stores per-user device credentials encrypted at rest
// with a process-wide symmetric key, looked up by (owner_user, name).
// Credentials are owned by the end user; only the command executor reads
// them.
package credential

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/nocauto/noc-engine/pkg/model"
	"github.com/nocauto/noc-engine/pkg/util"
)

const nonceSize = 24

// Repository persists Credential rows. A concrete implementation lives in
// internal/store, backed by Postgres via sqlx.
type Repository interface {
	Get(ctx context.Context, ownerUser, name string) (*model.Credential, error)
	Put(ctx context.Context, cred *model.Credential) error
}

// Store encrypts/decrypts credential passwords with NaCl secretbox
// (golang.org/x/crypto/nacl/secretbox), keyed by a process-wide symmetric
// key derived from the configured encryption secret.
type Store struct {
	repo Repository
	key  [32]byte
}

// DeriveKey turns an operator-supplied secret string into the 32-byte key
// secretbox requires.
func DeriveKey(secret string) [32]byte {
	return sha256.Sum256([]byte(secret))
}

// NewStore returns a Store backed by repo, using key for encryption.
func NewStore(repo Repository, key [32]byte) *Store {
	return &Store{repo: repo, key: key}
}

// Save encrypts password and upserts the credential under (ownerUser, name).
func (s *Store) Save(ctx context.Context, ownerUser, name, username, password string) error {
	enc, err := s.encrypt(password)
	if err != nil {
		return fmt.Errorf("encrypting credential: %w", err)
	}
	return s.repo.Put(ctx, &model.Credential{
		OwnerUser:         ownerUser,
		Name:              name,
		Username:          username,
		EncryptedPassword: enc,
	})
}

// Resolve looks up and decrypts the credential for (ownerUser, name). It
// returns ErrMissingCredentials (via CommandError) if none exists, per the
// executor's fail-fast contract.
func (s *Store) Resolve(ctx context.Context, ownerUser, name string) (username, password string, err error) {
	cred, err := s.repo.Get(ctx, ownerUser, name)
	if err != nil {
		return "", "", util.NewCommandError(util.KindMissingCredentials, name, "", err.Error())
	}

	plain, err := s.decrypt(cred.EncryptedPassword)
	if err != nil {
		return "", "", fmt.Errorf("decrypting credential %s/%s: %w", ownerUser, name, err)
	}
	return cred.Username, plain, nil
}

func (s *Store) encrypt(plaintext string) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &s.key), nil
}

func (s *Store) decrypt(ciphertext []byte) (string, error) {
	if len(ciphertext) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], ciphertext[:nonceSize])

	plain, ok := secretbox.Open(nil, ciphertext[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", fmt.Errorf("decryption failed: key mismatch or corrupt ciphertext")
	}
	return string(plain), nil
}
