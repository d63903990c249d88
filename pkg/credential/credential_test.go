package credential

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/nocauto/noc-engine/pkg/model"
	"github.com/nocauto/noc-engine/pkg/util"
)

type memRepo struct {
	mu    sync.Mutex
	creds map[string]*model.Credential
}

func newMemRepo() *memRepo {
	return &memRepo{creds: make(map[string]*model.Credential)}
}

func key(owner, name string) string { return owner + "/" + name }

func (r *memRepo) Get(ctx context.Context, ownerUser, name string) (*model.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.creds[key(ownerUser, name)]
	if !ok {
		return nil, errors.New("not found")
	}
	return c, nil
}

func (r *memRepo) Put(ctx context.Context, cred *model.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creds[key(cred.OwnerUser, cred.Name)] = cred
	return nil
}

func TestStore_SaveAndResolve(t *testing.T) {
	repo := newMemRepo()
	store := NewStore(repo, DeriveKey("test-secret"))

	if err := store.Save(context.Background(), "alice", "leaf-switches", "admin", "hunter2"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	username, password, err := store.Resolve(context.Background(), "alice", "leaf-switches")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if username != "admin" || password != "hunter2" {
		t.Errorf("Resolve() = %q, %q", username, password)
	}
}

func TestStore_EncryptedAtRest(t *testing.T) {
	repo := newMemRepo()
	store := NewStore(repo, DeriveKey("test-secret"))

	store.Save(context.Background(), "alice", "leaf-switches", "admin", "hunter2")

	cred, _ := repo.Get(context.Background(), "alice", "leaf-switches")
	if string(cred.EncryptedPassword) == "hunter2" {
		t.Error("password must not be stored in plaintext")
	}
}

func TestStore_Resolve_MissingCredential(t *testing.T) {
	repo := newMemRepo()
	store := NewStore(repo, DeriveKey("test-secret"))

	_, _, err := store.Resolve(context.Background(), "alice", "missing")
	if !errors.Is(err, util.ErrMissingCredentials) {
		t.Errorf("Resolve() error = %v, want ErrMissingCredentials", err)
	}
}

func TestStore_WrongKeyFailsToDecrypt(t *testing.T) {
	repo := newMemRepo()
	store := NewStore(repo, DeriveKey("correct-secret"))
	store.Save(context.Background(), "alice", "leaf-switches", "admin", "hunter2")

	otherStore := NewStore(repo, DeriveKey("wrong-secret"))
	_, _, err := otherStore.Resolve(context.Background(), "alice", "leaf-switches")
	if err == nil {
		t.Error("Resolve() with wrong key should fail")
	}
}
