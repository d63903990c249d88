// Package parser maps (driver hint, command endpoint) pairs to templates
// that turn raw device output into a flat, restartable sequence of
// string-keyed records. Field names are not canonicalized here; consumers
// apply the case-insensitive multi-name extraction rules in pkg/fieldutil.
package parser

import (
	"fmt"
	"sync"

	"github.com/nocauto/noc-engine/pkg/model"
)

// Template consumes raw command output and yields parsed records.
type Template func(raw string) ([]model.Record, error)

// Endpoint names map 1:1 to device command strings (the command catalog).
const (
	EndpointInterfaces     = "interfaces"
	EndpointIPArp          = "ip-arp"
	EndpointCDPNeighbors   = "cdp-neighbors"
	EndpointMACAddressTable = "mac-address-table"
	EndpointRouteStatic    = "ip-route/static"
	EndpointRouteOSPF      = "ip-route/ospf"
	EndpointRouteBGP       = "ip-route/bgp"
)

// CommandForEndpoint is the stable endpoint name -> device command mapping.
var CommandForEndpoint = map[string]string{
	EndpointInterfaces:      "show interfaces",
	EndpointIPArp:           "show ip arp",
	EndpointCDPNeighbors:    "show cdp neighbors",
	EndpointMACAddressTable: "show mac address-table",
	EndpointRouteStatic:     "show ip route static",
	EndpointRouteOSPF:       "show ip route ospf",
	EndpointRouteBGP:        "show ip route bgp",
}

// Registry maps (driverHint, endpoint) to a Template.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]map[string]Template
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{templates: make(map[string]map[string]Template)}
}

// Register adds or replaces the template for (driverHint, endpoint).
func (r *Registry) Register(driverHint, endpoint string, tmpl Template) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.templates[driverHint] == nil {
		r.templates[driverHint] = make(map[string]Template)
	}
	r.templates[driverHint][endpoint] = tmpl
}

// Lookup returns the template for (driverHint, endpoint), or false if none
// is registered.
func (r *Registry) Lookup(driverHint, endpoint string) (Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	endpoints, ok := r.templates[driverHint]
	if !ok {
		return nil, false
	}
	tmpl, ok := endpoints[endpoint]
	return tmpl, ok
}

// Parse looks up and runs the template for (driverHint, endpoint) against raw.
func (r *Registry) Parse(driverHint, endpoint, raw string) ([]model.Record, error) {
	tmpl, ok := r.Lookup(driverHint, endpoint)
	if !ok {
		return nil, fmt.Errorf("no parser registered for driver %q endpoint %q", driverHint, endpoint)
	}
	return tmpl(raw)
}

// DefaultRegistry returns a Registry with templates for the full command
// catalog under the "cisco_ios" driver hint, and aliases them under the
// other driver hints the connector recognizes (ios, nxos, eos, iosxr,
// junos, panos) since the dialect differences across vendors for these seven
// commands are, at the field level, small enough to share one template
// set — a vendor whose output diverges enough to break a template
// registers a more specific one with Register.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	base := map[string]Template{
		EndpointInterfaces:      parseInterfaces,
		EndpointIPArp:           parseARP,
		EndpointCDPNeighbors:    parseCDPNeighbors,
		EndpointMACAddressTable: parseMACTable,
		EndpointRouteStatic:     parseRoutesStatic,
		EndpointRouteOSPF:       parseRoutesOSPF,
		EndpointRouteBGP:        parseRoutesBGP,
	}
	for _, driver := range []string{"cisco_ios", "ios", "nxos", "eos", "iosxr", "junos", "panos"} {
		for endpoint, tmpl := range base {
			r.Register(driver, endpoint, tmpl)
		}
	}
	return r
}
