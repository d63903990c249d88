package fieldutil

import (
	"testing"

	"github.com/nocauto/noc-engine/pkg/model"
)

func TestFirst_CaseInsensitiveMultiName(t *testing.T) {
	record := model.Record{"NEIGHBOR_NAME": "switch1"}
	if got := First(record, "NEIGHBOR", "neighbor", "NEIGHBOR_NAME", "neighbor_name"); got != "switch1" {
		t.Errorf("First() = %q, want %q", got, "switch1")
	}
}

func TestFirst_ListValueTakesFirstElement(t *testing.T) {
	record := model.Record{"ip_address": []string{"10.0.0.1", "10.0.0.2"}}
	if got := First(record, "ip_address"); got != "10.0.0.1" {
		t.Errorf("First() = %q, want %q", got, "10.0.0.1")
	}
}

func TestFirst_TrimsWhitespace(t *testing.T) {
	record := model.Record{"status": "  up  "}
	if got := First(record, "status"); got != "up" {
		t.Errorf("First() = %q, want %q", got, "up")
	}
}

func TestFirst_SkipsEmptyPrefersLaterName(t *testing.T) {
	record := model.Record{"neighbor_ip": "", "DESTINATION_HOST": "host1"}
	if got := First(record, "neighbor_ip", "DESTINATION_HOST"); got != "host1" {
		t.Errorf("First() = %q, want %q", got, "host1")
	}
}

func TestFirst_NoMatchReturnsEmpty(t *testing.T) {
	record := model.Record{"foo": "bar"}
	if got := First(record, "missing"); got != "" {
		t.Errorf("First() = %q, want empty", got)
	}
}

func TestFirst_InterfaceSliceValue(t *testing.T) {
	record := model.Record{"vlan": []interface{}{100, 200}}
	if got := First(record, "vlan"); got != "100" {
		t.Errorf("First() = %q, want %q", got, "100")
	}
}

func TestRequire(t *testing.T) {
	record := model.Record{"interface_name": "Gi0/1"}
	v, ok := Require(record, "interface_name")
	if !ok || v != "Gi0/1" {
		t.Errorf("Require() = %q, %v", v, ok)
	}

	_, ok = Require(record, "missing_field")
	if ok {
		t.Error("Require() should be false for missing required field")
	}
}
