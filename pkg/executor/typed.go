package executor

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/nocauto/noc-engine/pkg/fieldutil"
	"github.com/nocauto/noc-engine/pkg/model"
	"github.com/nocauto/noc-engine/pkg/parser"
	"github.com/nocauto/noc-engine/pkg/util"
)

// TypedCache is the narrow view of pkg/cache/topocache.Cache the executor
// needs to keep the typed topology tables in step with every fresh blob
// cache write. Optional: a nil TypedCache skips the typed write entirely,
// so tests that only care about the blob cache need not supply one.
type TypedCache interface {
	TouchDevice(ctx context.Context, d *model.TopologyDevice) error
	ReplaceInterfaces(ctx context.Context, deviceID string, rows []model.Interface) error
	ReplaceIPAddresses(ctx context.Context, deviceID string, rows []model.IPAddress) error
	ReplaceARPEntries(ctx context.Context, deviceID string, rows []model.ARPEntry) error
	ReplaceMACTable(ctx context.Context, deviceID string, rows []model.MACTableEntry) error
	ReplaceCDPNeighbors(ctx context.Context, deviceID string, rows []model.CDPNeighbor) error
	ReplaceRoutes(ctx context.Context, deviceID string, kind model.RouteKind, rows []model.Route) error
}

// writeTypedCache converts records to the endpoint's typed rows and
// bulk-replaces them. It never returns an error to the caller: a typed
// cache failure must not roll back the blob cache write already committed
// for the same run, per the "C5 is durable evidence" contract. Failures are
// logged and swallowed.
func (e *Executor) writeTypedCache(ctx context.Context, dev *model.Device, endpoint string, records []model.Record, now time.Time, ttl time.Duration) {
	if e.TypedCache == nil {
		return
	}

	if err := e.TypedCache.TouchDevice(ctx, &model.TopologyDevice{
		ID: dev.ID, Name: dev.Name, PrimaryIP: dev.PrimaryIP, Platform: dev.Platform,
		LastUpdated: now, CacheValidUntil: now.Add(ttl), PollingEnabled: true,
	}); err != nil {
		util.WithFields(map[string]interface{}{"device_id": dev.ID, "error": err}).Warn("executor: touch topology device failed")
		return
	}

	var err error
	switch endpoint {
	case parser.EndpointInterfaces:
		ifaces, addrs := convertInterfaces(dev.ID, records)
		if err = e.TypedCache.ReplaceInterfaces(ctx, dev.ID, ifaces); err == nil {
			err = e.TypedCache.ReplaceIPAddresses(ctx, dev.ID, addrs)
		}
	case parser.EndpointIPArp:
		err = e.TypedCache.ReplaceARPEntries(ctx, dev.ID, convertARPEntries(dev.ID, records))
	case parser.EndpointCDPNeighbors:
		err = e.TypedCache.ReplaceCDPNeighbors(ctx, dev.ID, convertCDPNeighbors(dev.ID, records))
	case parser.EndpointMACAddressTable:
		err = e.TypedCache.ReplaceMACTable(ctx, dev.ID, convertMACTable(dev.ID, records))
	case parser.EndpointRouteStatic:
		err = e.TypedCache.ReplaceRoutes(ctx, dev.ID, model.RouteStatic, convertRoutes(dev.ID, records, model.RouteStatic))
	case parser.EndpointRouteOSPF:
		err = e.TypedCache.ReplaceRoutes(ctx, dev.ID, model.RouteOSPF, convertRoutes(dev.ID, records, model.RouteOSPF))
	case parser.EndpointRouteBGP:
		err = e.TypedCache.ReplaceRoutes(ctx, dev.ID, model.RouteBGP, convertRoutes(dev.ID, records, model.RouteBGP))
	default:
		return
	}
	if err != nil {
		util.WithFields(map[string]interface{}{"device_id": dev.ID, "endpoint": endpoint, "error": err}).Warn("executor: typed cache write failed")
	}
}

func convertInterfaces(deviceID string, records []model.Record) ([]model.Interface, []model.IPAddress) {
	ifaces := make([]model.Interface, 0, len(records))
	var addrs []model.IPAddress
	for _, r := range records {
		name, ok := fieldutil.Require(r, "name")
		if !ok {
			continue
		}
		ifaces = append(ifaces, model.Interface{
			DeviceID:    deviceID,
			Name:        name,
			MAC:         fieldutil.First(r, "mac_address", "mac"),
			Status:      fieldutil.First(r, "status"),
			Protocol:    fieldutil.First(r, "protocol"),
			Description: fieldutil.First(r, "description"),
			Speed:       fieldutil.First(r, "speed"),
			Duplex:      fieldutil.First(r, "duplex"),
			MTU:         fieldutil.First(r, "mtu"),
			VLAN:        fieldutil.First(r, "vlan"),
		})

		addr := fieldutil.First(r, "address", "ip_address")
		if addr == "" {
			continue
		}
		prefix, _ := strconv.Atoi(fieldutil.First(r, "prefix_length", "prefix"))
		version := 4
		if strings.Contains(addr, ":") {
			version = 6
		}
		addrs = append(addrs, model.IPAddress{
			DeviceID:      deviceID,
			InterfaceName: name,
			Address:       addr,
			PrefixLength:  prefix,
			Version:       version,
			IsPrimary:     true,
		})
	}
	return ifaces, addrs
}

func convertARPEntries(deviceID string, records []model.Record) []model.ARPEntry {
	out := make([]model.ARPEntry, 0, len(records))
	for _, r := range records {
		ip, ok := fieldutil.Require(r, "address", "ip")
		if !ok {
			continue
		}
		out = append(out, model.ARPEntry{
			DeviceID:      deviceID,
			IP:            ip,
			MAC:           fieldutil.First(r, "mac_address", "mac"),
			InterfaceName: fieldutil.First(r, "interface_name", "interface"),
			Age:           fieldutil.First(r, "age"),
			ARPType:       fieldutil.First(r, "type", "arp_type"),
		})
	}
	return out
}

func convertCDPNeighbors(deviceID string, records []model.Record) []model.CDPNeighbor {
	out := make([]model.CDPNeighbor, 0, len(records))
	for _, r := range records {
		name, ok := fieldutil.Require(r, "neighbor_name")
		if !ok {
			continue
		}
		out = append(out, model.CDPNeighbor{
			DeviceID:          deviceID,
			LocalInterface:    fieldutil.First(r, "local_interface"),
			NeighborName:      name,
			NeighborIP:        fieldutil.First(r, "neighbor_ip"),
			NeighborInterface: fieldutil.First(r, "neighbor_interface"),
			Platform:          fieldutil.First(r, "platform"),
			Capabilities:      fieldutil.First(r, "capabilities"),
		})
	}
	return out
}

func convertMACTable(deviceID string, records []model.Record) []model.MACTableEntry {
	out := make([]model.MACTableEntry, 0, len(records))
	for _, r := range records {
		mac, ok := fieldutil.Require(r, "mac_address", "mac")
		if !ok {
			continue
		}
		out = append(out, model.MACTableEntry{
			DeviceID:      deviceID,
			MAC:           mac,
			VLAN:          fieldutil.First(r, "vlan"),
			InterfaceName: fieldutil.First(r, "interface_name", "interface"),
			EntryType:     fieldutil.First(r, "type", "entry_type"),
		})
	}
	return out
}

func convertRoutes(deviceID string, records []model.Record, kind model.RouteKind) []model.Route {
	out := make([]model.Route, 0, len(records))
	for _, r := range records {
		dest, ok := fieldutil.Require(r, "destination_network", "destination")
		if !ok {
			continue
		}
		out = append(out, model.Route{
			DeviceID:           deviceID,
			Kind:               kind,
			DestinationNetwork: dest,
			NexthopIP:          fieldutil.First(r, "nexthop_ip", "nexthop"),
			Metric:             fieldutil.First(r, "metric"),
			Distance:           fieldutil.First(r, "distance"),
			InterfaceName:      fieldutil.First(r, "interface_name", "interface"),
			Area:               fieldutil.First(r, "area"),
			RouteType:          fieldutil.First(r, "route_type"),
			LocalPref:          fieldutil.First(r, "local_pref"),
			Weight:             fieldutil.First(r, "weight"),
			ASPath:             fieldutil.First(r, "as_path"),
			Origin:             fieldutil.First(r, "origin"),
			Status:             fieldutil.First(r, "status"),
		})
	}
	return out
}
