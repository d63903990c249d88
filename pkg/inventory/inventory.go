// Package inventory provides a read-only adapter over the external device
// inventory (device id -> name, platform, primary IP, driver hint, secret
// group). The core never writes Device rows; it only reads through this
// narrow interface.
package inventory

import (
	"context"

	"github.com/nocauto/noc-engine/pkg/model"
	"github.com/nocauto/noc-engine/pkg/util"
)

// Adapter is the narrow read-only view the core holds over the external
// inventory provider.
type Adapter interface {
	// Get returns the device by id, or ErrDeviceNotFound.
	Get(ctx context.Context, deviceID string) (*model.Device, error)
	// List returns devices matching ids, or all devices if ids is empty.
	List(ctx context.Context, ids []string) ([]*model.Device, error)
}

// StaticAdapter is an in-memory Adapter, suitable for tests and for small
// deployments that maintain their device list out of band of a live
// inventory provider.
type StaticAdapter struct {
	devices map[string]*model.Device
}

// NewStaticAdapter builds a StaticAdapter from devices, indexed by ID.
func NewStaticAdapter(devices []*model.Device) *StaticAdapter {
	m := make(map[string]*model.Device, len(devices))
	for _, d := range devices {
		m[d.ID] = d
	}
	return &StaticAdapter{devices: m}
}

func (a *StaticAdapter) Get(ctx context.Context, deviceID string) (*model.Device, error) {
	d, ok := a.devices[deviceID]
	if !ok {
		return nil, util.NewCommandError(util.KindDeviceNotFound, deviceID, "", "not in inventory")
	}
	return d, nil
}

func (a *StaticAdapter) List(ctx context.Context, ids []string) ([]*model.Device, error) {
	if len(ids) == 0 {
		out := make([]*model.Device, 0, len(a.devices))
		for _, d := range a.devices {
			out = append(out, d)
		}
		return out, nil
	}
	out := make([]*model.Device, 0, len(ids))
	for _, id := range ids {
		d, ok := a.devices[id]
		if !ok {
			return nil, util.NewCommandError(util.KindDeviceNotFound, id, "", "not in inventory")
		}
		out = append(out, d)
	}
	return out, nil
}
