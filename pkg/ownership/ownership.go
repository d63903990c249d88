// Package ownership implements the task-ownership anti-spoofing check (C13):
// every scheduled task execution that depends on user-scoped credentials
// must validate its kwargs-provided username against the task's recorded
// owner before proceeding.
package ownership

import (
	"context"

	"github.com/nocauto/noc-engine/pkg/audit"
	"github.com/nocauto/noc-engine/pkg/model"
	"github.com/nocauto/noc-engine/pkg/util"
)

// Store is the narrow read view over TaskOwnership rows this package needs.
type Store interface {
	GetOwnership(ctx context.Context, scheduledTaskID string) (*model.TaskOwnership, error)
}

// Checker validates the caller-asserted username against a task's recorded
// owner, logging and correcting on mismatch.
type Checker struct {
	Store Store
}

// New returns a Checker backed by store.
func New(store Store) *Checker {
	return &Checker{Store: store}
}

// Validate looks up scheduledTaskID's ownership row and compares it to
// kwargsUsername. On mismatch it logs a security-violation event and
// returns the owner's username instead, so execution proceeds under the
// true owner's credentials rather than the caller-asserted one. Ad-hoc
// (unscheduled) invocations should call with an empty scheduledTaskID and
// are passed through unchanged.
func (c *Checker) Validate(ctx context.Context, scheduledTaskID, kwargsUsername string) (string, error) {
	if scheduledTaskID == "" {
		return kwargsUsername, nil
	}

	owned, err := c.Store.GetOwnership(ctx, scheduledTaskID)
	if err != nil {
		return "", err
	}

	if owned.OwnerUsername == kwargsUsername {
		return kwargsUsername, nil
	}

	util.WithFields(map[string]interface{}{
		"scheduled_task_id": scheduledTaskID,
		"owner_username":    owned.OwnerUsername,
		"kwargs_username":   kwargsUsername,
	}).Warn(util.ErrSecurityViolation.Error())

	audit.Log(audit.NewEvent(audit.EventTypeSecurityViolation, kwargsUsername, "").
		WithTask(scheduledTaskID).
		WithMessage("kwargs username did not match task owner; overridden with owner username").
		WithError(util.ErrSecurityViolation))

	return owned.OwnerUsername, nil
}
