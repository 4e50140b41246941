package authz

import (
	"math"

	cedar "github.com/cedar-policy/cedar-go"
)

// convertMapToCedarRecord turns the request attributes Authorize passes
// (service id, required capability, resource id) into the Cedar Value
// types a policy's `context` can reference. Unsupported value shapes
// (maps, structs, nil) are dropped rather than rejected: a policy simply
// can't reference what wasn't convertible.
func convertMapToCedarRecord(values map[string]interface{}) map[string]cedar.Value {
	out := make(map[string]cedar.Value, len(values))
	for k, v := range values {
		if cv, ok := convertCedarValue(v); ok {
			out[k] = cv
		}
	}
	return out
}

func convertCedarValue(v interface{}) (cedar.Value, bool) {
	switch tv := v.(type) {
	case bool:
		if tv {
			return cedar.True, true
		}
		return cedar.False, true
	case string:
		return cedar.String(tv), true
	case int:
		return cedar.Long(int64(tv)), true
	case int64:
		return cedar.Long(tv), true
	case float64:
		if math.IsInf(tv, 0) || math.IsNaN(tv) {
			return nil, false
		}
		d, err := cedar.NewDecimalFromFloat(tv)
		if err != nil {
			return nil, false
		}
		return d, true
	case []string:
		members := make([]cedar.Value, 0, len(tv))
		for _, s := range tv {
			members = append(members, cedar.String(s))
		}
		return cedar.NewSet(members...), true
	case []interface{}:
		members := make([]cedar.Value, 0, len(tv))
		for _, m := range tv {
			if cv, ok := convertCedarValue(m); ok {
				members = append(members, cv)
			}
		}
		return cedar.NewSet(members...), true
	default:
		return nil, false
	}
}
