// Package topology derives a node/link graph from the topology cache (C6)
// by walking CDP, routing, and layer-2 (ARP/MAC) facts and resolving
// cross-references between devices. It is a pure function over its
// Reader input — no new dependency, matching the teacher's
// TopologyProvisioner shape of "derive a graph by walking typed tables
// and resolving cross-references," generalized here from CONFIG_DB
// intent derivation to a node/link topology graph.
package topology

import (
	"context"
	"sort"
	"strings"

	"github.com/nocauto/noc-engine/pkg/model"
)

// Confidence grades how reliable a derived link's endpoint resolution is.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// LinkKind distinguishes the three ways a link can be derived.
type LinkKind string

const (
	LinkCDP     LinkKind = "cdp"
	LinkRouting LinkKind = "routing"
	LinkLayer2  LinkKind = "layer2"
)

// Node is one device in the graph.
type Node struct {
	DeviceID string
	Name     string
	X, Y     float64
}

// Link is one derived edge between two devices.
type Link struct {
	Source     string
	Target     string
	Kind       LinkKind
	Confidence Confidence

	// CDP
	SourceInterface string
	TargetInterface string

	// Routing
	RouteType string
	Metric    string
}

// Graph is the topology builder's output.
type Graph struct {
	Nodes []Node
	Links []Link
}

// Sources selects which derivation passes run.
type Sources struct {
	IncludeCDP     bool
	IncludeRouting bool
	RouteTypes     []model.RouteKind
	IncludeLayer2  bool
}

// Reader is the narrow read view over the topology cache the builder needs.
type Reader interface {
	Devices(ctx context.Context, deviceIDs []string) ([]model.TopologyDevice, error)
	CDPNeighbors(ctx context.Context, deviceIDs []string) ([]model.CDPNeighbor, error)
	Routes(ctx context.Context, deviceIDs []string) ([]model.Route, error)
	IPAddresses(ctx context.Context, deviceIDs []string) ([]model.IPAddress, error)
	ARPEntries(ctx context.Context, deviceIDs []string) ([]model.ARPEntry, error)
	MACTable(ctx context.Context, deviceIDs []string) ([]model.MACTableEntry, error)
}

type deviceIndex struct {
	byID        map[string]model.TopologyDevice
	byNameLower map[string]string
	byPrimaryIP map[string]string
	byAnyIP     map[string]string
}

func buildIndex(devices []model.TopologyDevice, ips []model.IPAddress) *deviceIndex {
	idx := &deviceIndex{
		byID:        make(map[string]model.TopologyDevice, len(devices)),
		byNameLower: make(map[string]string, len(devices)),
		byPrimaryIP: make(map[string]string, len(devices)),
		byAnyIP:     make(map[string]string),
	}
	for _, d := range devices {
		idx.byID[d.ID] = d
		idx.byNameLower[strings.ToLower(d.Name)] = d.ID
		if d.PrimaryIP != "" {
			idx.byPrimaryIP[d.PrimaryIP] = d.ID
		}
	}
	for _, ip := range ips {
		if _, exists := idx.byAnyIP[ip.Address]; !exists {
			idx.byAnyIP[ip.Address] = ip.DeviceID
		}
	}
	return idx
}

// resolveNeighbor implements the (a) exact name, (b) partial name,
// (c) primary-IP, (d) any interface-IP resolution order from the
// neighbor-resolution rule, returning the device id and confidence.
func (idx *deviceIndex) resolveNeighbor(name, ip string) (string, Confidence, bool) {
	lower := strings.ToLower(strings.TrimSpace(name))
	if lower != "" {
		if id, ok := idx.byNameLower[lower]; ok {
			return id, ConfidenceHigh, true
		}
	}
	if lower != "" {
		for candidateLower, id := range idx.byNameLower {
			if strings.Contains(candidateLower, lower) || strings.Contains(lower, candidateLower) {
				return id, ConfidenceMedium, true
			}
		}
	}
	if ip != "" {
		if id, ok := idx.byPrimaryIP[ip]; ok {
			return id, ConfidenceHigh, true
		}
		if id, ok := idx.byAnyIP[ip]; ok {
			return id, ConfidenceLow, true
		}
	}
	return "", "", false
}

// ResolveNeighbor runs the same (exact name, partial name, primary IP,
// interface IP) resolution order Build uses internally for CDP links,
// exposed standalone for the resolve-neighbor API: given a CDP-reported
// neighbor name and/or IP, find the device id it most likely refers to.
func ResolveNeighbor(ctx context.Context, reader Reader, name, ip string) (deviceID string, confidence Confidence, found bool, err error) {
	devices, err := reader.Devices(ctx, nil)
	if err != nil {
		return "", "", false, err
	}
	ips, err := reader.IPAddresses(ctx, nil)
	if err != nil {
		return "", "", false, err
	}
	idx := buildIndex(devices, ips)
	deviceID, confidence, found = idx.resolveNeighbor(name, ip)
	return deviceID, confidence, found, nil
}

// Build derives a Graph from reader, scoped to deviceIDs (nil/empty means
// every device).
func Build(ctx context.Context, reader Reader, deviceIDs []string, src Sources) (*Graph, error) {
	devices, err := reader.Devices(ctx, deviceIDs)
	if err != nil {
		return nil, err
	}
	ips, err := reader.IPAddresses(ctx, deviceIDs)
	if err != nil {
		return nil, err
	}
	idx := buildIndex(devices, ips)

	graph := &Graph{Nodes: make([]Node, 0, len(devices))}
	for _, d := range devices {
		graph.Nodes = append(graph.Nodes, Node{DeviceID: d.ID, Name: d.Name})
	}

	if src.IncludeCDP {
		cdp, err := reader.CDPNeighbors(ctx, deviceIDs)
		if err != nil {
			return nil, err
		}
		graph.Links = append(graph.Links, cdpLinks(idx, cdp)...)
	}

	if src.IncludeRouting {
		routes, err := reader.Routes(ctx, deviceIDs)
		if err != nil {
			return nil, err
		}
		graph.Links = append(graph.Links, routingLinks(idx, routes, src.RouteTypes)...)
	}

	if src.IncludeLayer2 {
		arp, err := reader.ARPEntries(ctx, deviceIDs)
		if err != nil {
			return nil, err
		}
		mac, err := reader.MACTable(ctx, deviceIDs)
		if err != nil {
			return nil, err
		}
		graph.Links = append(graph.Links, layer2Links(arp, mac)...)
	}

	return graph, nil
}

// cdpLinks resolves and deduplicates CDP-derived links. Bidirectional
// pairs (D1 reports D2, D2 reports D1) collapse into one link, keeping
// the lexicographically smaller device id as source.
func cdpLinks(idx *deviceIndex, rows []model.CDPNeighbor) []Link {
	type pairKey struct{ a, b string }
	seen := make(map[pairKey]bool)
	var links []Link

	for _, row := range rows {
		neighborID, confidence, ok := idx.resolveNeighbor(row.NeighborName, row.NeighborIP)
		if !ok {
			continue
		}
		srcID, dstID := row.DeviceID, neighborID
		srcIface, dstIface := row.LocalInterface, row.NeighborInterface
		if dstID < srcID {
			srcID, dstID = dstID, srcID
			srcIface, dstIface = dstIface, srcIface
		}
		key := pairKey{srcID, dstID}
		if seen[key] {
			continue
		}
		seen[key] = true
		links = append(links, Link{
			Source: srcID, Target: dstID, Kind: LinkCDP, Confidence: confidence,
			SourceInterface: srcIface, TargetInterface: dstIface,
		})
	}
	return links
}

func routingLinks(idx *deviceIndex, rows []model.Route, wantKinds []model.RouteKind) []Link {
	allowed := make(map[model.RouteKind]bool)
	for _, k := range wantKinds {
		allowed[k] = true
	}

	var links []Link
	for _, r := range rows {
		if len(allowed) > 0 && !allowed[r.Kind] {
			continue
		}
		if r.NexthopIP == "" {
			continue
		}
		nextID, ok := idx.byAnyIP[r.NexthopIP]
		if !ok {
			continue
		}
		links = append(links, Link{
			Source: r.DeviceID, Target: nextID, Kind: LinkRouting,
			Confidence: ConfidenceHigh, RouteType: string(r.Kind), Metric: r.Metric,
		})
	}
	return links
}

func layer2Links(arp []model.ARPEntry, mac []model.MACTableEntry) []Link {
	macOwner := make(map[string]string, len(mac))
	for _, m := range mac {
		if _, exists := macOwner[m.MAC]; !exists {
			macOwner[m.MAC] = m.DeviceID
		}
	}

	seen := make(map[string]bool)
	var links []Link
	for _, a := range arp {
		owner, ok := macOwner[a.MAC]
		if !ok || owner == a.DeviceID {
			continue
		}
		src, dst := a.DeviceID, owner
		if dst < src {
			src, dst = dst, src
		}
		key := src + "|" + dst
		if seen[key] {
			continue
		}
		seen[key] = true
		links = append(links, Link{Source: src, Target: dst, Kind: LinkLayer2, Confidence: ConfidenceMedium})
	}
	return links
}

// Statistics summarizes a graph by kind, for the /topology/statistics
// endpoint.
type Statistics struct {
	NodeCount       int
	CDPLinkCount    int
	RoutingLinkCount int
	Layer2LinkCount int
}

// Stats computes Statistics over an already-built graph.
func Stats(g *Graph) Statistics {
	stats := Statistics{NodeCount: len(g.Nodes)}
	for _, l := range g.Links {
		switch l.Kind {
		case LinkCDP:
			stats.CDPLinkCount++
		case LinkRouting:
			stats.RoutingLinkCount++
		case LinkLayer2:
			stats.Layer2LinkCount++
		}
	}
	return stats
}

// sortNodesByDegree orders nodes descending by link degree, for the
// hierarchical layout's layer assignment.
func sortNodesByDegree(nodes []Node, links []Link) []Node {
	degree := make(map[string]int, len(nodes))
	for _, l := range links {
		degree[l.Source]++
		degree[l.Target]++
	}
	out := make([]Node, len(nodes))
	copy(out, nodes)
	sort.SliceStable(out, func(i, j int) bool { return degree[out[i].DeviceID] > degree[out[j].DeviceID] })
	return out
}
