package baseline

import (
	"sort"
	"strings"

	"github.com/nocauto/noc-engine/pkg/fieldutil"
	"github.com/nocauto/noc-engine/pkg/model"
	"github.com/nocauto/noc-engine/pkg/parser"
)

// dropLists name the fields omitted from normalized output per endpoint
// because they vary constantly without indicating a configuration change.
var dropLists = map[string][]string{
	parser.EndpointInterfaces: {
		"input_rate", "output_rate", "input_packets", "output_packets",
		"input_bytes", "output_bytes", "last_input", "last_output",
		"resets", "input_errors", "output_errors", "crc", "runts", "giants",
	},
	parser.EndpointIPArp:          {"age"},
	parser.EndpointCDPNeighbors:   {"hold_time"},
	parser.EndpointRouteStatic:    {"uptime"},
	parser.EndpointRouteOSPF:      {"uptime"},
	parser.EndpointRouteBGP:       {"uptime"},
	parser.EndpointMACAddressTable: {},
}

// primaryKeyField names the field whose value is each endpoint's canonical
// sort/diff key.
var primaryKeyField = map[string][]string{
	parser.EndpointInterfaces:      {"name"},
	parser.EndpointIPArp:           {"address"},
	parser.EndpointCDPNeighbors:    {"neighbor_name"},
	parser.EndpointMACAddressTable: {"mac_address"},
	parser.EndpointRouteStatic:     {"destination_network"},
	parser.EndpointRouteOSPF:       {"destination_network"},
	parser.EndpointRouteBGP:        {"destination_network"},
}

// PrimaryKey returns the record's value for endpoint's primary-key field.
func PrimaryKey(endpoint string, r model.Record) string {
	return fieldutil.First(r, primaryKeyField[endpoint]...)
}

// normalizeRecords drops the volatile fields for endpoint, trims whitespace
// from remaining string values, and sorts the result by primary key.
func normalizeRecords(endpoint string, records []model.Record) []model.Record {
	dropped := make(map[string]bool, len(dropLists[endpoint]))
	for _, f := range dropLists[endpoint] {
		dropped[strings.ToLower(f)] = true
	}

	cleaned := make([]model.Record, 0, len(records))
	for _, r := range records {
		nr := make(model.Record, len(r))
		for k, v := range r {
			if dropped[strings.ToLower(k)] {
				continue
			}
			if s, ok := v.(string); ok {
				v = strings.TrimSpace(s)
			}
			nr[k] = v
		}
		cleaned = append(cleaned, nr)
	}

	sort.SliceStable(cleaned, func(i, j int) bool {
		return PrimaryKey(endpoint, cleaned[i]) < PrimaryKey(endpoint, cleaned[j])
	})
	return cleaned
}
