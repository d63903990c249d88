package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/nocauto/noc-engine/pkg/model"
	"github.com/nocauto/noc-engine/pkg/util"
)

// InventoryAdapter implements inventory.Adapter over the devices table.
type InventoryAdapter struct {
	db *sqlx.DB
}

// NewInventoryAdapter returns an InventoryAdapter backed by db.
func NewInventoryAdapter(db *sqlx.DB) *InventoryAdapter {
	return &InventoryAdapter{db: db}
}

func (a *InventoryAdapter) Get(ctx context.Context, deviceID string) (*model.Device, error) {
	var d model.Device
	err := a.db.GetContext(ctx, &d, `
		SELECT id, name, primary_ip, platform, driver_hint, secret_group_ref
		FROM devices WHERE id = $1
	`, deviceID)
	if err == sql.ErrNoRows {
		return nil, util.NewCommandError(util.KindDeviceNotFound, deviceID, "", "not in inventory")
	}
	if err != nil {
		return nil, fmt.Errorf("loading device %s: %w", deviceID, err)
	}
	return &d, nil
}

func (a *InventoryAdapter) List(ctx context.Context, ids []string) ([]*model.Device, error) {
	var (
		rows []model.Device
		err  error
	)
	if len(ids) == 0 {
		err = a.db.SelectContext(ctx, &rows, `
			SELECT id, name, primary_ip, platform, driver_hint, secret_group_ref FROM devices
		`)
	} else {
		query, args, buildErr := sqlx.In(`
			SELECT id, name, primary_ip, platform, driver_hint, secret_group_ref
			FROM devices WHERE id IN (?)
		`, ids)
		if buildErr != nil {
			return nil, fmt.Errorf("building device list query: %w", buildErr)
		}
		err = a.db.SelectContext(ctx, &rows, a.db.Rebind(query), args...)
	}
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}

	found := make(map[string]*model.Device, len(rows))
	out := make([]*model.Device, len(rows))
	for i := range rows {
		out[i] = &rows[i]
		found[rows[i].ID] = &rows[i]
	}
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			return nil, util.NewCommandError(util.KindDeviceNotFound, id, "", "not in inventory")
		}
	}
	return out, nil
}
