// Package model holds the shared entities persisted by the engine, per the
// relational data model: devices, credentials, topology tables, caches,
// baselines, and scheduled tasks.
package model

import "time"

// Record is a flat, string-keyed parsed field set as produced by a parser
// template. Field names are not canonicalized at parse time; values may be
// scalars or single-element lists.
type Record map[string]interface{}

// Device is inventory-provided and never written by the core.
type Device struct {
	ID             string `db:"id"`
	Name           string `db:"name"`
	PrimaryIP      string `db:"primary_ip"`
	Platform       string `db:"platform"`
	DriverHint     string `db:"driver_hint"`
	SecretGroupRef string `db:"secret_group_ref"`
}

// Credential is a per-user, per-device-group secret, encrypted at rest.
type Credential struct {
	OwnerUser         string `db:"owner_user"`
	Name              string `db:"name"`
	Username          string `db:"username"`
	EncryptedPassword []byte `db:"encrypted_password"`
}

// TopologyDevice is the parent row for every typed topology child table.
type TopologyDevice struct {
	ID              string    `db:"id"`
	Name            string    `db:"name"`
	PrimaryIP       string    `db:"primary_ip"`
	Platform        string    `db:"platform"`
	LastUpdated     time.Time `db:"last_updated"`
	CacheValidUntil time.Time `db:"cache_valid_until"`
	PollingEnabled  bool      `db:"polling_enabled"`
}

// Interface is one device interface row, unique per (device_id, name).
type Interface struct {
	DeviceID    string `db:"device_id"`
	Name        string `db:"name"`
	MAC         string `db:"mac"`
	Status      string `db:"status"`
	Protocol    string `db:"protocol"`
	Description string `db:"description"`
	Speed       string `db:"speed"`
	Duplex      string `db:"duplex"`
	MTU         string `db:"mtu"`
	VLAN        string `db:"vlan"`
}

// IPAddress is an address assigned to a device interface.
type IPAddress struct {
	DeviceID      string `db:"device_id"`
	InterfaceName string `db:"interface_name"`
	Address       string `db:"address"`
	PrefixLength  int    `db:"prefix_length"`
	Version       int    `db:"version"`
	IsPrimary     bool   `db:"is_primary"`
}

// ARPEntry is one row of a device's ARP table.
type ARPEntry struct {
	DeviceID      string `db:"device_id"`
	IP            string `db:"ip"`
	MAC           string `db:"mac"`
	InterfaceName string `db:"interface_name"`
	Age           string `db:"age"`
	ARPType       string `db:"arp_type"`
}

// MACTableEntry is one row of a device's MAC address table.
type MACTableEntry struct {
	DeviceID      string `db:"device_id"`
	MAC           string `db:"mac"`
	VLAN          string `db:"vlan"`
	InterfaceName string `db:"interface_name"`
	EntryType     string `db:"entry_type"`
}

// CDPNeighbor is one CDP-discovered neighbor relationship.
type CDPNeighbor struct {
	DeviceID          string `db:"device_id"`
	LocalInterface    string `db:"local_interface"`
	NeighborName      string `db:"neighbor_name"`
	NeighborIP        string `db:"neighbor_ip"`
	NeighborInterface string `db:"neighbor_interface"`
	Platform          string `db:"platform"`
	Capabilities      string `db:"capabilities"`
}

// RouteKind distinguishes the three routing-protocol variants sharing the
// Route table shape.
type RouteKind string

const (
	RouteStatic RouteKind = "static"
	RouteOSPF   RouteKind = "ospf"
	RouteBGP    RouteKind = "bgp"
)

// Route is one routing table entry. OSPF/BGP-specific fields are empty for
// other kinds.
type Route struct {
	DeviceID           string    `db:"device_id"`
	Kind               RouteKind `db:"kind"`
	DestinationNetwork string    `db:"destination_network"`
	NexthopIP          string    `db:"nexthop_ip"`
	Metric             string    `db:"metric"`
	Distance           string    `db:"distance"`
	InterfaceName      string    `db:"interface_name"`

	// OSPF
	Area      string `db:"area"`
	RouteType string `db:"route_type"`

	// BGP
	LocalPref string `db:"local_pref"`
	Weight    string `db:"weight"`
	ASPath    string `db:"as_path"`
	Origin    string `db:"origin"`
	Status    string `db:"status"`
}

// JSONBlob is the raw parsed record sequence for one (device, command) pair.
type JSONBlob struct {
	DeviceID    string
	Command     string
	UpdatedAt   time.Time
	JSONPayload string
	ParseFailed bool
}

// Baseline is a versioned, point-in-time snapshot of a command's parsed
// output for a device.
type Baseline struct {
	ID               string    `db:"id"`
	DeviceID         string    `db:"device_id"`
	Command          string    `db:"command"`
	Version          int       `db:"version"`
	RawOutput        string    `db:"raw_output"`
	NormalizedOutput string    `db:"normalized_output"`
	Notes            string    `db:"notes"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

// ScheduleKind distinguishes interval and crontab ScheduledTask schedules.
type ScheduleKind string

const (
	ScheduleInterval ScheduleKind = "interval"
	ScheduleCrontab  ScheduleKind = "crontab"
)

// ScheduledTask is a persistent periodic-task registration.
type ScheduledTask struct {
	ID             string       `db:"id"`
	Name           string       `db:"name"`
	TaskIdentifier string       `db:"task_identifier"`
	ScheduleKind   ScheduleKind `db:"schedule_kind"`
	IntervalSecs   int          `db:"interval_secs"`
	CrontabExpr    string       `db:"crontab_expr"`

	// Kwargs is persisted as JSONB; the store layer scans it through a
	// json.RawMessage-backed row type rather than a db tag here, since
	// map[string]interface{} has no sql.Scanner of its own.
	Kwargs map[string]interface{} `db:"-"`

	Enabled       bool       `db:"enabled"`
	OneOff        bool       `db:"one_off"`
	ExpiresAt     *time.Time `db:"expires_at"`
	LastRunAt     *time.Time `db:"last_run_at"`
	TotalRunCount int        `db:"total_run_count"`
}

// TaskOwnership pins a ScheduledTask to its creating user for anti-spoofing
// validation at execution time.
type TaskOwnership struct {
	ScheduledTaskID string `db:"scheduled_task_id"`
	OwnerUsername   string `db:"owner_username"`
	OwnerUserID     string `db:"owner_user_id"`
}

// Known task identifiers dispatched through the broker.
const (
	TaskDiscoverTopology      = "discover_topology"
	TaskDiscoverSingleDevice  = "discover_single_device"
	TaskCreateBaseline        = "create_baseline"
	TaskCleanupOldData        = "cleanup_old_data"
)
