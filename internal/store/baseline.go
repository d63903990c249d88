package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/nocauto/noc-engine/pkg/model"
)

// BaselineRepository implements baseline.Store over Postgres.
type BaselineRepository struct {
	db *sqlx.DB
}

// NewBaselineRepository returns a BaselineRepository backed by db.
func NewBaselineRepository(db *sqlx.DB) *BaselineRepository {
	return &BaselineRepository{db: db}
}

const baselineColumns = `
	id, device_id, command, version, raw_output, normalized_output, notes, created_at, updated_at
`

func (r *BaselineRepository) GetBaseline(ctx context.Context, deviceID, command string) (*model.Baseline, error) {
	var b model.Baseline
	err := r.db.GetContext(ctx, &b, `
		SELECT `+baselineColumns+`
		FROM baselines WHERE device_id = $1 AND command = $2
	`, deviceID, command)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading baseline %s/%s: %w", deviceID, command, err)
	}
	return &b, nil
}

func (r *BaselineRepository) SaveBaseline(ctx context.Context, b *model.Baseline) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO baselines (
			id, device_id, command, version, raw_output, normalized_output, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (device_id, command) DO UPDATE SET
			version = EXCLUDED.version,
			raw_output = EXCLUDED.raw_output,
			normalized_output = EXCLUDED.normalized_output,
			notes = EXCLUDED.notes,
			updated_at = EXCLUDED.updated_at
	`, b.ID, b.DeviceID, b.Command, b.Version, b.RawOutput, b.NormalizedOutput, b.Notes, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving baseline %s/%s: %w", b.DeviceID, b.Command, err)
	}
	return nil
}

// Get returns a single baseline by id.
func (r *BaselineRepository) Get(ctx context.Context, id string) (*model.Baseline, error) {
	var b model.Baseline
	err := r.db.GetContext(ctx, &b, `SELECT `+baselineColumns+` FROM baselines WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// ListByDevice returns every baseline recorded for a device, ordered by
// command name.
func (r *BaselineRepository) ListByDevice(ctx context.Context, deviceID string) ([]model.Baseline, error) {
	var rows []model.Baseline
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+baselineColumns+` FROM baselines WHERE device_id = $1 ORDER BY command
	`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("listing baselines for device %s: %w", deviceID, err)
	}
	return rows, nil
}
