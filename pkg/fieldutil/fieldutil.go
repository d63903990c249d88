// Package fieldutil implements the case-insensitive, multi-name field
// extraction rules consumers of parsed records must apply: a logical field
// is looked up by an ordered list of accepted names, list values are
// flattened to their first element, and surrounding whitespace is trimmed.
package fieldutil

import (
	"fmt"
	"strings"

	"github.com/nocauto/noc-engine/pkg/model"
)

// First returns the first non-empty value found under any of names,
// case-insensitively, or "" if none match. If a matched value is a slice,
// its first element is used.
func First(record model.Record, names ...string) string {
	for _, name := range names {
		if v, ok := lookup(record, name); ok {
			if s := asString(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func lookup(record model.Record, name string) (interface{}, bool) {
	if v, ok := record[name]; ok {
		return v, true
	}
	lower := strings.ToLower(name)
	for k, v := range record {
		if strings.ToLower(k) == lower {
			return v, true
		}
	}
	return nil, false
}

func asString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case []string:
		if len(val) == 0 {
			return ""
		}
		return strings.TrimSpace(val[0])
	case []interface{}:
		if len(val) == 0 {
			return ""
		}
		return strings.TrimSpace(asString(val[0]))
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", val))
	}
}

// Require returns First(record, names...) and a warning-worthy false if the
// result is empty, so callers can skip the record and log at warn level
// per the required-field rule.
func Require(record model.Record, names ...string) (string, bool) {
	v := First(record, names...)
	return v, v != ""
}
