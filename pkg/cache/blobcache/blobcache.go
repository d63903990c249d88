// Package blobcache stores parsed command output as JSON blobs in Redis,
// one hash per (device, command) pair, keyed "blob:{device_id}:{command}".
// The command executor and the operator API's cache-set endpoint are the
// only writers; every other component only reads through Get.
package blobcache

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/nocauto/noc-engine/pkg/model"
)

const keyPrefix = "blob:"

func blobKey(deviceID, command string) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, deviceID, command)
}

// Cache is a Redis-backed store for per-device, per-command JSON blobs.
type Cache struct {
	client *redis.Client
}

// New returns a Cache backed by client.
func New(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// setScript writes payload and updated_at and sets the key's TTL in one
// round trip, so a reader never observes a hash with a payload but no
// expiry (or vice versa) under concurrent writers.
var setScript = redis.NewScript(`
redis.call("HSET", KEYS[1], "payload", ARGV[1], "updated_at", ARGV[2], "parse_failed", ARGV[3])
redis.call("PEXPIRE", KEYS[1], ARGV[4])
return redis.status_reply("OK")
`)

// Set stores payload for (deviceID, command) with the given ttl. updatedAt
// is stamped by the caller (the executor), since this package never reads
// the clock itself.
func (c *Cache) Set(ctx context.Context, deviceID, command, payload string, parseFailed bool, updatedAt time.Time, ttl time.Duration) error {
	failedFlag := "0"
	if parseFailed {
		failedFlag = "1"
	}
	return setScript.Run(ctx, c.client, []string{blobKey(deviceID, command)},
		payload, updatedAt.Format(time.RFC3339Nano), failedFlag, ttl.Milliseconds(),
	).Err()
}

// Get returns the cached blob for (deviceID, command). ok is false if no
// entry exists or it has expired.
func (c *Cache) Get(ctx context.Context, deviceID, command string) (blob *model.JSONBlob, ok bool, err error) {
	vals, err := c.client.HGetAll(ctx, blobKey(deviceID, command)).Result()
	if err != nil {
		return nil, false, err
	}
	if len(vals) == 0 {
		return nil, false, nil
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, vals["updated_at"])
	if err != nil {
		return nil, false, fmt.Errorf("parsing cached updated_at for %s/%s: %w", deviceID, command, err)
	}
	return &model.JSONBlob{
		DeviceID:    deviceID,
		Command:     command,
		UpdatedAt:   updatedAt,
		JSONPayload: vals["payload"],
		ParseFailed: vals["parse_failed"] == "1",
	}, true, nil
}

// Invalidate removes the cached entry for (deviceID, command).
func (c *Cache) Invalidate(ctx context.Context, deviceID, command string) error {
	return c.client.Del(ctx, blobKey(deviceID, command)).Err()
}

// TTLRemaining reports the time left before (deviceID, command) expires.
// A non-positive duration means the key is absent or has no expiry.
func (c *Cache) TTLRemaining(ctx context.Context, deviceID, command string) (time.Duration, error) {
	ttl, err := c.client.TTL(ctx, blobKey(deviceID, command)).Result()
	if err != nil {
		return 0, err
	}
	return ttl, nil
}

// ListCommands returns every command currently cached for deviceID, via a
// non-blocking SCAN over its key prefix rather than KEYS, so a large cache
// never stalls other Redis clients while the listing runs.
func (c *Cache) ListCommands(ctx context.Context, deviceID string) ([]string, error) {
	prefix := blobKey(deviceID, "")
	var commands []string
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scanning blobs for %s: %w", deviceID, err)
		}
		for _, k := range keys {
			commands = append(commands, k[len(prefix):])
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return commands, nil
}

// Statistics summarizes the whole cache across all devices.
type Statistics struct {
	TotalEntries   int
	ValidEntries   int
	ExpiredEntries int
	TopDevices     []DeviceEntryCount
}

// DeviceEntryCount is one device's entry count within Statistics.TopDevices.
type DeviceEntryCount struct {
	DeviceID string
	Count    int
}

// Stats scans the entire cache and summarizes entry counts per device. An
// entry with no TTL remaining (already past expiry but not yet evicted) is
// counted as expired rather than valid.
func (c *Cache) Stats(ctx context.Context) (*Statistics, error) {
	perDevice := make(map[string]int)
	stats := &Statistics{}

	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, keyPrefix+"*", 200).Result()
		if err != nil {
			return nil, fmt.Errorf("scanning cache: %w", err)
		}
		for _, k := range keys {
			stats.TotalEntries++
			deviceID := deviceIDFromKey(k)
			perDevice[deviceID]++

			ttl, err := c.client.TTL(ctx, k).Result()
			if err != nil {
				return nil, fmt.Errorf("reading ttl for %s: %w", k, err)
			}
			if ttl > 0 {
				stats.ValidEntries++
			} else {
				stats.ExpiredEntries++
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	for deviceID, count := range perDevice {
		stats.TopDevices = append(stats.TopDevices, DeviceEntryCount{DeviceID: deviceID, Count: count})
	}
	sort.Slice(stats.TopDevices, func(i, j int) bool {
		if stats.TopDevices[i].Count != stats.TopDevices[j].Count {
			return stats.TopDevices[i].Count > stats.TopDevices[j].Count
		}
		return stats.TopDevices[i].DeviceID < stats.TopDevices[j].DeviceID
	})
	return stats, nil
}

func deviceIDFromKey(key string) string {
	rest := key[len(keyPrefix):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == ':' {
			return rest[:i]
		}
	}
	return rest
}
