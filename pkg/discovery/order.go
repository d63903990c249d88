package discovery

import "github.com/nocauto/noc-engine/pkg/parser"

// CommandOrder is the fixed per-device command sequence both discovery
// paths execute in: interfaces -> ARP -> CDP -> MAC -> routes
// (static, OSPF, BGP). Per-command cache state is visible before the next
// command starts; across devices there is no ordering guarantee.
var CommandOrder = []string{
	parser.EndpointInterfaces,
	parser.EndpointIPArp,
	parser.EndpointCDPNeighbors,
	parser.EndpointMACAddressTable,
	parser.EndpointRouteStatic,
	parser.EndpointRouteOSPF,
	parser.EndpointRouteBGP,
}

// FilterEndpoints returns CommandOrder restricted to the requested subset,
// preserving CommandOrder's sequence. A nil/empty requested means "all".
func FilterEndpoints(requested []string) []string {
	if len(requested) == 0 {
		return CommandOrder
	}
	want := make(map[string]bool, len(requested))
	for _, e := range requested {
		want[e] = true
	}
	var out []string
	for _, e := range CommandOrder {
		if want[e] {
			out = append(out, e)
		}
	}
	return out
}
