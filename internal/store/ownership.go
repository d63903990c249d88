package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/nocauto/noc-engine/pkg/model"
	"github.com/nocauto/noc-engine/pkg/util"
)

// OwnershipRepository implements ownership.Store over Postgres.
type OwnershipRepository struct {
	db *sqlx.DB
}

// NewOwnershipRepository returns an OwnershipRepository backed by db.
func NewOwnershipRepository(db *sqlx.DB) *OwnershipRepository {
	return &OwnershipRepository{db: db}
}

func (r *OwnershipRepository) GetOwnership(ctx context.Context, scheduledTaskID string) (*model.TaskOwnership, error) {
	var owned model.TaskOwnership
	err := r.db.GetContext(ctx, &owned, `
		SELECT scheduled_task_id, owner_username, owner_user_id
		FROM task_ownerships WHERE scheduled_task_id = $1
	`, scheduledTaskID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: scheduled task %s", util.ErrNotFound, scheduledTaskID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading ownership for task %s: %w", scheduledTaskID, err)
	}
	return &owned, nil
}
