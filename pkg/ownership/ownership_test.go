package ownership

import (
	"context"
	"errors"
	"testing"

	"github.com/nocauto/noc-engine/pkg/model"
)

type fakeStore struct {
	rows map[string]*model.TaskOwnership
}

func (f *fakeStore) GetOwnership(ctx context.Context, scheduledTaskID string) (*model.TaskOwnership, error) {
	row, ok := f.rows[scheduledTaskID]
	if !ok {
		return nil, errors.New("not found")
	}
	return row, nil
}

func TestChecker_Validate_MatchingUsername_PassesThrough(t *testing.T) {
	store := &fakeStore{rows: map[string]*model.TaskOwnership{
		"task-1": {ScheduledTaskID: "task-1", OwnerUsername: "alice"},
	}}
	c := New(store)

	got, err := c.Validate(context.Background(), "task-1", "alice")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got != "alice" {
		t.Errorf("Validate() = %q, want alice", got)
	}
}

func TestChecker_Validate_MismatchedUsername_OverridesWithOwner(t *testing.T) {
	store := &fakeStore{rows: map[string]*model.TaskOwnership{
		"task-1": {ScheduledTaskID: "task-1", OwnerUsername: "alice"},
	}}
	c := New(store)

	got, err := c.Validate(context.Background(), "task-1", "mallory")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got != "alice" {
		t.Errorf("Validate() = %q, want owner username alice, not caller-asserted mallory", got)
	}
}

func TestChecker_Validate_AdHocInvocation_SkipsLookup(t *testing.T) {
	c := New(&fakeStore{rows: map[string]*model.TaskOwnership{}})

	got, err := c.Validate(context.Background(), "", "bob")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got != "bob" {
		t.Errorf("Validate() = %q, want bob unchanged for ad-hoc invocation", got)
	}
}

func TestChecker_Validate_UnknownTask_ReturnsError(t *testing.T) {
	c := New(&fakeStore{rows: map[string]*model.TaskOwnership{}})

	if _, err := c.Validate(context.Background(), "missing", "alice"); err == nil {
		t.Error("Validate() error = nil, want error for unknown task id")
	}
}
