package migrators

import (
	"encoding/json"

	stormpath "github.com/stormpath/stormpath-migrate"
)

// reservedFields are generated by the API and must never be replayed.
var reservedFields = map[string]bool{
	"href":           true,
	"createdAt":      true,
	"modifiedAt":     true,
	"created_at":     true,
	"modified_at":    true,
	"sp_http_status": true,
}

// Sanitize returns a copy of data that can be written to another tenant.
// Reserved fields are dropped from the top level only; a nested object with
// an href is user data and is kept for the substitution pass. Values that
// cannot be encoded as JSON are dropped. Nested maps and lists are copied.
func Sanitize(data stormpath.CustomData) stormpath.CustomData {
	out := make(stormpath.CustomData, len(data))
	for k, v := range data {
		if reservedFields[k] {
			continue
		}
		if clean, ok := portable(v); ok {
			out[k] = clean
		}
	}
	return out
}

func portable(v interface{}) (interface{}, bool) {
	switch t := v.(type) {
	case nil, string, bool, json.Number,
		float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return v, true
	case stormpath.CustomData:
		return portableMap(t)
	case map[string]interface{}:
		return portableMap(t)
	case []interface{}:
		out := make([]interface{}, 0, len(t))
		for _, e := range t {
			if clean, ok := portable(e); ok {
				out = append(out, clean)
			}
		}
		return out, true
	case []string:
		return append([]string(nil), t...), true
	}
	return nil, false
}

func portableMap(m map[string]interface{}) (interface{}, bool) {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		if clean, ok := portable(v); ok {
			out[k] = clean
		}
	}
	return out, true
}
