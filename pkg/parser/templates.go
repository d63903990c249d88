package parser

import (
	"bufio"
	"regexp"
	"strings"

	"github.com/nocauto/noc-engine/pkg/model"
)

var (
	interfaceHeaderRe = regexp.MustCompile(`^(\S+) is (up|down|administratively down)(?:, line protocol is (\w+))?`)
	descriptionRe     = regexp.MustCompile(`(?i)description:\s*(.+)$`)
	ipAddressRe       = regexp.MustCompile(`(?i)internet address is ([0-9.]+)/(\d+)`)
	mtuRe             = regexp.MustCompile(`(?i)MTU (\d+) bytes`)
	macRe             = regexp.MustCompile(`(?i)address is ([0-9a-f]{4}\.[0-9a-f]{4}\.[0-9a-f]{4})`)
	duplexSpeedRe     = regexp.MustCompile(`(?i)(full|half)-duplex, (\S+)`)
	vlanSuffixRe      = regexp.MustCompile(`(?i)Vlan(\d+)`)
)

// parseInterfaces parses "show interfaces" blocks, one per interface,
// headed by a line like "GigabitEthernet0/1 is up, line protocol is up"
// followed by indented detail lines.
func parseInterfaces(raw string) ([]model.Record, error) {
	var records []model.Record
	var cur model.Record

	flush := func() {
		if cur != nil {
			records = append(records, cur)
		}
	}

	scanner := bufio.NewScanner(strings.NewReader(raw))
	for scanner.Scan() {
		line := scanner.Text()
		if m := interfaceHeaderRe.FindStringSubmatch(line); m != nil {
			flush()
			cur = model.Record{
				"name":   m[1],
				"status": m[2],
			}
			if m[3] != "" {
				cur["protocol"] = m[3]
			}
			continue
		}
		if cur == nil {
			continue
		}
		if m := descriptionRe.FindStringSubmatch(line); m != nil {
			cur["description"] = strings.TrimSpace(m[1])
		}
		if m := ipAddressRe.FindStringSubmatch(line); m != nil {
			cur["address"] = m[1]
			cur["prefix_length"] = m[2]
		}
		if m := mtuRe.FindStringSubmatch(line); m != nil {
			cur["mtu"] = m[1]
		}
		if m := macRe.FindStringSubmatch(line); m != nil {
			cur["mac_address"] = m[1]
		}
		if m := duplexSpeedRe.FindStringSubmatch(line); m != nil {
			cur["duplex"] = strings.ToLower(m[1])
			cur["speed"] = m[2]
		}
		if m := vlanSuffixRe.FindStringSubmatch(line); m != nil {
			cur["vlan"] = m[1]
		}
	}
	flush()
	return records, nil
}

var arpLineRe = regexp.MustCompile(`(?i)^(?:Internet|IP)\s+([0-9.]+)\s+(\S+)\s+([0-9a-f.]{6,}|incomplete)\s+(\S+)\s*(\S*)$`)

// parseARP parses "show ip arp" table rows:
//   Protocol  Address  Age (min)  Hardware Addr  Type  Interface
//   Internet  10.0.0.2   -        aabb.ccdd.1122  ARPA   Vlan10
func parseARP(raw string) ([]model.Record, error) {
	var records []model.Record
	scanner := bufio.NewScanner(strings.NewReader(raw))
	for scanner.Scan() {
		line := scanner.Text()
		m := arpLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		records = append(records, model.Record{
			"address":        m[1],
			"age":            m[2],
			"mac_address":    m[3],
			"type":           m[4],
			"interface_name": m[5],
		})
	}
	return records, nil
}

var (
	cdpDeviceIDRe  = regexp.MustCompile(`(?i)^Device ID:\s*(.+)$`)
	cdpIPRe        = regexp.MustCompile(`(?i)IP address:\s*([0-9.]+)`)
	cdpPlatformRe  = regexp.MustCompile(`(?i)Platform:\s*([^,]+),\s*Capabilities:\s*(.+)$`)
	cdpInterfaceRe = regexp.MustCompile(`(?i)^Interface:\s*([^,]+),\s*Port ID \(outgoing port\):\s*(.+)$`)
)

// parseCDPNeighbors parses "show cdp neighbors detail" blocks, separated by
// a line of dashes.
func parseCDPNeighbors(raw string) ([]model.Record, error) {
	var records []model.Record
	var cur model.Record

	flush := func() {
		if cur != nil {
			records = append(records, cur)
		}
		cur = nil
	}

	scanner := bufio.NewScanner(strings.NewReader(raw))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "----") {
			flush()
			continue
		}
		if m := cdpDeviceIDRe.FindStringSubmatch(line); m != nil {
			if cur != nil {
				flush()
			}
			cur = model.Record{"neighbor_name": strings.TrimSpace(m[1])}
			continue
		}
		if cur == nil {
			continue
		}
		if m := cdpIPRe.FindStringSubmatch(line); m != nil {
			cur["neighbor_ip"] = m[1]
		}
		if m := cdpPlatformRe.FindStringSubmatch(line); m != nil {
			cur["platform"] = strings.TrimSpace(m[1])
			cur["capabilities"] = strings.TrimSpace(m[2])
		}
		if m := cdpInterfaceRe.FindStringSubmatch(line); m != nil {
			cur["local_interface"] = strings.TrimSpace(m[1])
			cur["neighbor_interface"] = strings.TrimSpace(m[2])
		}
	}
	flush()
	return records, nil
}

var macTableLineRe = regexp.MustCompile(`(?i)^\s*(\d+)\s+([0-9a-f]{4}\.[0-9a-f]{4}\.[0-9a-f]{4})\s+(\S+)\s+(\S+)\s*$`)

// parseMACTable parses "show mac address-table" rows:
//   Vlan   Mac Address    Type      Ports
//   10     aabb.ccdd.1122 DYNAMIC   Gi0/1
func parseMACTable(raw string) ([]model.Record, error) {
	var records []model.Record
	scanner := bufio.NewScanner(strings.NewReader(raw))
	for scanner.Scan() {
		m := macTableLineRe.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		records = append(records, model.Record{
			"vlan":           m[1],
			"mac_address":    m[2],
			"type":           m[3],
			"interface_name": m[4],
		})
	}
	return records, nil
}

var (
	routeStaticRe = regexp.MustCompile(`(?i)^S\s+([0-9.]+/\d+)\s+\[(\d+)/(\d+)\]\s+via\s+([0-9.]+)`)
	routeOSPFRe   = regexp.MustCompile(`(?i)^O(?:\s+\S+)?\s+([0-9.]+/\d+)\s+\[(\d+)/(\d+)\]\s+via\s+([0-9.]+),\s*\S+,\s*(\S+)`)
	routeBGPRe    = regexp.MustCompile(`(?i)^B\s+([0-9.]+/\d+)\s+\[(\d+)/(\d+)\]\s+via\s+([0-9.]+)`)
)

// parseRoutesStatic parses "show ip route static" entries:
//   S   10.0.0.0/24 [1/0] via 10.0.0.1
func parseRoutesStatic(raw string) ([]model.Record, error) {
	var records []model.Record
	scanner := bufio.NewScanner(strings.NewReader(raw))
	for scanner.Scan() {
		m := routeStaticRe.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		records = append(records, model.Record{
			"destination_network": m[1],
			"distance":            m[2],
			"metric":              m[3],
			"nexthop_ip":          m[4],
		})
	}
	return records, nil
}

// parseRoutesOSPF parses "show ip route ospf" entries:
//   O   10.1.0.0/24 [110/20] via 10.0.0.2, 00:10:00, GigabitEthernet0/1
func parseRoutesOSPF(raw string) ([]model.Record, error) {
	var records []model.Record
	scanner := bufio.NewScanner(strings.NewReader(raw))
	for scanner.Scan() {
		m := routeOSPFRe.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		records = append(records, model.Record{
			"destination_network": m[1],
			"distance":            m[2],
			"metric":              m[3],
			"nexthop_ip":          m[4],
			"interface_name":      m[5],
		})
	}
	return records, nil
}

// parseRoutesBGP parses "show ip route bgp" entries:
//   B   10.2.0.0/24 [20/0] via 10.0.0.3, 00:05:00
func parseRoutesBGP(raw string) ([]model.Record, error) {
	var records []model.Record
	scanner := bufio.NewScanner(strings.NewReader(raw))
	for scanner.Scan() {
		m := routeBGPRe.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		records = append(records, model.Record{
			"destination_network": m[1],
			"distance":            m[2],
			"metric":              m[3],
			"nexthop_ip":          m[4],
		})
	}
	return records, nil
}
