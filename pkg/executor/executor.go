// Package executor implements the command executor: the single component
// that resolves a device and its credentials, checks the blob cache,
// connects and runs a command on a cache miss, parses the result, and
// writes the cache. Apart from the operator API's cache-set endpoint, it
// is the only writer of blobcache entries — discovery and baseline only
// read through it.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nocauto/noc-engine/pkg/audit"
	"github.com/nocauto/noc-engine/pkg/model"
	"github.com/nocauto/noc-engine/pkg/parser"
	"github.com/nocauto/noc-engine/pkg/util"
)

// Inventory is the narrow view of pkg/inventory.Adapter the executor needs.
type Inventory interface {
	Get(ctx context.Context, deviceID string) (*model.Device, error)
}

// Credentials is the narrow view of pkg/credential.Store the executor needs.
type Credentials interface {
	Resolve(ctx context.Context, ownerUser, secretGroupRef string) (username, password string, err error)
}

// Connector is the narrow view of pkg/device.Connector the executor needs.
type Connector interface {
	Run(ctx context.Context, addr, driverHint string, creds ConnectorCredentials, command string, timeouts Timeouts) *ConnectorResult
}

// ConnectorCredentials mirrors device.Credentials, kept local so this
// package does not import pkg/device directly and stays unit-testable
// against a fake.
type ConnectorCredentials struct {
	Username string
	Password string
}

// Timeouts mirrors device.Timeouts.
type Timeouts struct {
	Connect, Auth, Banner, Blocking, Read, Session, Overall time.Duration
}

// ConnectorResult mirrors device.Result.
type ConnectorResult struct {
	Success       bool
	Output        string
	ExecutionTime time.Duration
	ErrorKind     util.ErrorKind
}

// BlobCache is the narrow view of pkg/cache/blobcache.Cache the executor needs.
type BlobCache interface {
	Get(ctx context.Context, deviceID, command string) (*model.JSONBlob, bool, error)
	Set(ctx context.Context, deviceID, command, payload string, parseFailed bool, updatedAt time.Time, ttl time.Duration) error
}

// TTLResolver resolves the cache TTL for a given command, backed by
// pkg/settings.Store in production.
type TTLResolver interface {
	CommandTTL(ctx context.Context, command string, fallback time.Duration) time.Duration
}

// Executor composes inventory, credentials, connector, parser registry and
// blob cache into one resolve -> cache-check -> connect -> parse ->
// cache-write operation per command.
type Executor struct {
	Inventory   Inventory
	Credentials Credentials
	Connector   Connector
	Parsers     *parser.Registry
	Cache       BlobCache
	TypedCache  TypedCache
	TTLs        TTLResolver
	Timeouts    Timeouts
	Now         func() time.Time
}

// New returns an Executor. now defaults to time.Now when nil. typed may be
// nil, which skips the typed topology-cache write entirely.
func New(inv Inventory, creds Credentials, conn Connector, parsers *parser.Registry, cache BlobCache, typed TypedCache, ttls TTLResolver, timeouts Timeouts, now func() time.Time) *Executor {
	if now == nil {
		now = time.Now
	}
	return &Executor{
		Inventory: inv, Credentials: creds, Connector: conn,
		Parsers: parsers, Cache: cache, TypedCache: typed,
		TTLs: ttls, Timeouts: timeouts, Now: now,
	}
}

// Options controls one Run call.
type Options struct {
	// OwnerUser scopes credential lookup.
	OwnerUser string
	// ForceRefresh bypasses a fresh cache entry and re-runs the command.
	ForceRefresh bool
}

// CommandResult is the executor's output contract: either fresh records
// from the device, or records served from a still-valid cache entry.
type CommandResult struct {
	DeviceID  string
	Command   string
	Records   []model.Record
	FromCache bool
	UpdatedAt time.Time
}

// Run executes endpoint against deviceID, using the cache when valid.
func (e *Executor) Run(ctx context.Context, deviceID, endpoint string, opts Options) (*CommandResult, error) {
	command, ok := parser.CommandForEndpoint[endpoint]
	if !ok {
		return nil, util.NewCommandError(util.KindCommandUnsupported, deviceID, endpoint, "unknown endpoint")
	}

	if !opts.ForceRefresh {
		if blob, hit, err := e.Cache.Get(ctx, deviceID, command); err != nil {
			return nil, fmt.Errorf("checking cache for %s/%s: %w", deviceID, command, err)
		} else if hit && !blob.ParseFailed {
			var records []model.Record
			if err := json.Unmarshal([]byte(blob.JSONPayload), &records); err != nil {
				return nil, fmt.Errorf("decoding cached payload for %s/%s: %w", deviceID, command, err)
			}
			return &CommandResult{DeviceID: deviceID, Command: command, Records: records, FromCache: true, UpdatedAt: blob.UpdatedAt}, nil
		}
	}

	dev, err := e.Inventory.Get(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	username, password, err := e.Credentials.Resolve(ctx, opts.OwnerUser, dev.SecretGroupRef)
	if err != nil {
		return nil, err
	}

	res := e.Connector.Run(ctx, dev.PrimaryIP, dev.DriverHint, ConnectorCredentials{Username: username, Password: password}, command, e.Timeouts)
	if !res.Success {
		audit.Log(audit.NewEvent(audit.EventTypeCommandRun, opts.OwnerUser, deviceID).
			WithCommand(command).WithDuration(res.ExecutionTime).
			WithError(util.NewCommandError(res.ErrorKind, deviceID, command, "command execution failed")))
		return nil, util.NewCommandError(res.ErrorKind, deviceID, command, "command execution failed")
	}
	audit.Log(audit.NewEvent(audit.EventTypeCommandRun, opts.OwnerUser, deviceID).
		WithCommand(command).WithDuration(res.ExecutionTime).WithSuccess())

	records, parseErr := e.Parsers.Parse(dev.DriverHint, endpoint, res.Output)
	now := e.Now()
	parseFailed := parseErr != nil
	if parseFailed {
		records = nil
	}

	payload, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("encoding payload for %s/%s: %w", deviceID, command, err)
	}

	ttl := e.TTLs.CommandTTL(ctx, command, 5*time.Minute)
	if err := e.Cache.Set(ctx, deviceID, command, string(payload), parseFailed, now, ttl); err != nil {
		return nil, fmt.Errorf("writing cache for %s/%s: %w", deviceID, command, err)
	}
	audit.Log(audit.NewEvent(audit.EventTypeCacheWrite, opts.OwnerUser, deviceID).
		WithCommand(command).WithMessage(fmt.Sprintf("ttl=%s", ttl)).WithSuccess())

	if parseFailed {
		return nil, util.NewCommandError(util.KindParseFailed, deviceID, command, parseErr.Error())
	}

	e.writeTypedCache(ctx, dev, endpoint, records, now, ttl)

	return &CommandResult{DeviceID: deviceID, Command: command, Records: records, FromCache: false, UpdatedAt: now}, nil
}
