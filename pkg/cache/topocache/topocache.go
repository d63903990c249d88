// Package topocache persists parsed topology facts (interfaces, addresses,
// ARP/MAC tables, CDP neighbors, routes) to Postgres. Every write is a
// bulk-replace scoped to one device and one table: the old rows for that
// device are deleted and the new set inserted in the same transaction, so a
// stale fact can never outlive the run that superseded it and a reader
// never observes a half-replaced set.
package topocache

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nocauto/noc-engine/pkg/model"
)

// Cache persists topology facts, scoped to one device per replace call.
type Cache struct {
	pool *pgxpool.Pool
}

// New returns a Cache backed by pool.
func New(pool *pgxpool.Pool) *Cache {
	return &Cache{pool: pool}
}

// TouchDevice upserts the parent TopologyDevice row, stamping last_updated
// and cache_valid_until. Every bulk-replace below assumes the parent row
// already exists, per the foreign-key invariant on the child tables.
func (c *Cache) TouchDevice(ctx context.Context, d *model.TopologyDevice) error {
	_, err := c.pool.Exec(ctx, `
		INSERT INTO topology_devices (id, name, primary_ip, platform, last_updated, cache_valid_until, polling_enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			primary_ip = EXCLUDED.primary_ip,
			platform = EXCLUDED.platform,
			last_updated = EXCLUDED.last_updated,
			cache_valid_until = EXCLUDED.cache_valid_until
	`, d.ID, d.Name, d.PrimaryIP, d.Platform, d.LastUpdated, d.CacheValidUntil, d.PollingEnabled)
	if err != nil {
		return fmt.Errorf("upserting topology device %s: %w", d.ID, err)
	}
	return nil
}

// ReplaceInterfaces replaces every interface row for deviceID.
func (c *Cache) ReplaceInterfaces(ctx context.Context, deviceID string, rows []model.Interface) error {
	return c.bulkReplace(ctx, "interfaces", deviceID, len(rows), []string{
		"device_id", "name", "mac", "status", "protocol", "description", "speed", "duplex", "mtu", "vlan",
	}, func(i int) []interface{} {
		r := rows[i]
		return []interface{}{r.DeviceID, r.Name, r.MAC, r.Status, r.Protocol, r.Description, r.Speed, r.Duplex, r.MTU, r.VLAN}
	})
}

// ReplaceIPAddresses replaces every IP address row for deviceID.
func (c *Cache) ReplaceIPAddresses(ctx context.Context, deviceID string, rows []model.IPAddress) error {
	return c.bulkReplace(ctx, "ip_addresses", deviceID, len(rows), []string{
		"device_id", "interface_name", "address", "prefix_length", "version", "is_primary",
	}, func(i int) []interface{} {
		r := rows[i]
		return []interface{}{r.DeviceID, r.InterfaceName, r.Address, r.PrefixLength, r.Version, r.IsPrimary}
	})
}

// ReplaceARPEntries replaces every ARP row for deviceID.
func (c *Cache) ReplaceARPEntries(ctx context.Context, deviceID string, rows []model.ARPEntry) error {
	return c.bulkReplace(ctx, "arp_entries", deviceID, len(rows), []string{
		"device_id", "ip", "mac", "interface_name", "age", "arp_type",
	}, func(i int) []interface{} {
		r := rows[i]
		return []interface{}{r.DeviceID, r.IP, r.MAC, r.InterfaceName, r.Age, r.ARPType}
	})
}

// ReplaceMACTable replaces every MAC table row for deviceID.
func (c *Cache) ReplaceMACTable(ctx context.Context, deviceID string, rows []model.MACTableEntry) error {
	return c.bulkReplace(ctx, "mac_table_entries", deviceID, len(rows), []string{
		"device_id", "mac", "vlan", "interface_name", "entry_type",
	}, func(i int) []interface{} {
		r := rows[i]
		return []interface{}{r.DeviceID, r.MAC, r.VLAN, r.InterfaceName, r.EntryType}
	})
}

// ReplaceCDPNeighbors replaces every CDP neighbor row for deviceID.
func (c *Cache) ReplaceCDPNeighbors(ctx context.Context, deviceID string, rows []model.CDPNeighbor) error {
	return c.bulkReplace(ctx, "cdp_neighbors", deviceID, len(rows), []string{
		"device_id", "local_interface", "neighbor_name", "neighbor_ip", "neighbor_interface", "platform", "capabilities",
	}, func(i int) []interface{} {
		r := rows[i]
		return []interface{}{r.DeviceID, r.LocalInterface, r.NeighborName, r.NeighborIP, r.NeighborInterface, r.Platform, r.Capabilities}
	})
}

// ReplaceRoutes replaces every route row of the given kind for deviceID.
// Static, OSPF and BGP routes are stored in the same table, distinguished
// by the kind column, and replaced independently of one another so a
// static-route refresh never touches BGP-learned rows for the same device.
func (c *Cache) ReplaceRoutes(ctx context.Context, deviceID string, kind model.RouteKind, rows []model.Route) error {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM routes WHERE device_id = $1 AND kind = $2`, deviceID, kind); err != nil {
		return fmt.Errorf("clearing routes for %s/%s: %w", deviceID, kind, err)
	}

	if len(rows) > 0 {
		columns := []string{
			"device_id", "kind", "destination_network", "nexthop_ip", "metric", "distance",
			"interface_name", "area", "route_type", "local_pref", "weight", "as_path", "origin", "status",
		}
		source := pgx.CopyFromSlice(len(rows), func(i int) ([]interface{}, error) {
			r := rows[i]
			return []interface{}{
				r.DeviceID, kind, r.DestinationNetwork, r.NexthopIP, r.Metric, r.Distance,
				r.InterfaceName, r.Area, r.RouteType, r.LocalPref, r.Weight, r.ASPath, r.Origin, r.Status,
			}, nil
		})
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"routes"}, columns, source); err != nil {
			return fmt.Errorf("copying routes for %s/%s: %w", deviceID, kind, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing routes replace for %s/%s: %w", deviceID, kind, err)
	}
	return nil
}

// bulkReplace deletes every row for deviceID in table and bulk-inserts the
// replacement rows in the same transaction via pgx.CopyFrom.
func (c *Cache) bulkReplace(ctx context.Context, table, deviceID string, n int, columns []string, rowAt func(i int) []interface{}) error {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE device_id = $1`, table), deviceID); err != nil {
		return fmt.Errorf("clearing %s for %s: %w", table, deviceID, err)
	}

	if n > 0 {
		source := pgx.CopyFromSlice(n, func(i int) ([]interface{}, error) {
			return rowAt(i), nil
		})
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{table}, columns, source); err != nil {
			return fmt.Errorf("copying %s for %s: %w", table, deviceID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing %s replace for %s: %w", table, deviceID, err)
	}
	return nil
}

// StaleBefore returns device IDs whose cache_valid_until is before cutoff,
// for the cleanup_old_data scheduled task.
func (c *Cache) StaleBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := c.pool.Query(ctx, `SELECT id FROM topology_devices WHERE cache_valid_until < $1`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("querying stale devices: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// The methods below satisfy pkg/topology.Reader, the narrow read view a
// graph build needs over the same tables the Replace* methods above write.
// deviceIDs empty selects every device; non-empty scopes with an IN clause.

func deviceFilter(deviceIDs []string) (string, []interface{}) {
	if len(deviceIDs) == 0 {
		return "", nil
	}
	return " WHERE device_id = ANY($1)", []interface{}{deviceIDs}
}

func (c *Cache) Devices(ctx context.Context, deviceIDs []string) ([]model.TopologyDevice, error) {
	query := `SELECT id, name, primary_ip, platform, last_updated, cache_valid_until, polling_enabled FROM topology_devices`
	var args []interface{}
	if len(deviceIDs) > 0 {
		query += ` WHERE id = ANY($1)`
		args = []interface{}{deviceIDs}
	}
	rows, err := c.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying topology devices: %w", err)
	}
	defer rows.Close()

	var out []model.TopologyDevice
	for rows.Next() {
		var d model.TopologyDevice
		if err := rows.Scan(&d.ID, &d.Name, &d.PrimaryIP, &d.Platform, &d.LastUpdated, &d.CacheValidUntil, &d.PollingEnabled); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (c *Cache) CDPNeighbors(ctx context.Context, deviceIDs []string) ([]model.CDPNeighbor, error) {
	where, args := deviceFilter(deviceIDs)
	rows, err := c.pool.Query(ctx, `
		SELECT device_id, local_interface, neighbor_name, neighbor_ip, neighbor_interface, platform, capabilities
		FROM cdp_neighbors`+where, args...)
	if err != nil {
		return nil, fmt.Errorf("querying cdp neighbors: %w", err)
	}
	defer rows.Close()

	var out []model.CDPNeighbor
	for rows.Next() {
		var n model.CDPNeighbor
		if err := rows.Scan(&n.DeviceID, &n.LocalInterface, &n.NeighborName, &n.NeighborIP, &n.NeighborInterface, &n.Platform, &n.Capabilities); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (c *Cache) Routes(ctx context.Context, deviceIDs []string) ([]model.Route, error) {
	where, args := deviceFilter(deviceIDs)
	rows, err := c.pool.Query(ctx, `
		SELECT device_id, kind, destination_network, nexthop_ip, metric, distance,
			interface_name, area, route_type, local_pref, weight, as_path, origin, status
		FROM routes`+where, args...)
	if err != nil {
		return nil, fmt.Errorf("querying routes: %w", err)
	}
	defer rows.Close()

	var out []model.Route
	for rows.Next() {
		var r model.Route
		if err := rows.Scan(&r.DeviceID, &r.Kind, &r.DestinationNetwork, &r.NexthopIP, &r.Metric, &r.Distance,
			&r.InterfaceName, &r.Area, &r.RouteType, &r.LocalPref, &r.Weight, &r.ASPath, &r.Origin, &r.Status); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (c *Cache) IPAddresses(ctx context.Context, deviceIDs []string) ([]model.IPAddress, error) {
	where, args := deviceFilter(deviceIDs)
	rows, err := c.pool.Query(ctx, `
		SELECT device_id, interface_name, address, prefix_length, version, is_primary
		FROM ip_addresses`+where, args...)
	if err != nil {
		return nil, fmt.Errorf("querying ip addresses: %w", err)
	}
	defer rows.Close()

	var out []model.IPAddress
	for rows.Next() {
		var a model.IPAddress
		if err := rows.Scan(&a.DeviceID, &a.InterfaceName, &a.Address, &a.PrefixLength, &a.Version, &a.IsPrimary); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (c *Cache) ARPEntries(ctx context.Context, deviceIDs []string) ([]model.ARPEntry, error) {
	where, args := deviceFilter(deviceIDs)
	rows, err := c.pool.Query(ctx, `
		SELECT device_id, ip, mac, interface_name, age, arp_type
		FROM arp_entries`+where, args...)
	if err != nil {
		return nil, fmt.Errorf("querying arp entries: %w", err)
	}
	defer rows.Close()

	var out []model.ARPEntry
	for rows.Next() {
		var e model.ARPEntry
		if err := rows.Scan(&e.DeviceID, &e.IP, &e.MAC, &e.InterfaceName, &e.Age, &e.ARPType); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (c *Cache) MACTable(ctx context.Context, deviceIDs []string) ([]model.MACTableEntry, error) {
	where, args := deviceFilter(deviceIDs)
	rows, err := c.pool.Query(ctx, `
		SELECT device_id, mac, vlan, interface_name, entry_type
		FROM mac_table_entries`+where, args...)
	if err != nil {
		return nil, fmt.Errorf("querying mac table entries: %w", err)
	}
	defer rows.Close()

	var out []model.MACTableEntry
	for rows.Next() {
		var e model.MACTableEntry
		if err := rows.Scan(&e.DeviceID, &e.MAC, &e.VLAN, &e.InterfaceName, &e.EntryType); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
