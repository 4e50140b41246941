package authz

import (
	"math"
	"reflect"
	"testing"

	cedar "github.com/cedar-policy/cedar-go"
)

func TestConvertMapToCedarRecord(t *testing.T) {
	t.Parallel()

	decimal, err := cedar.NewDecimalFromFloat(3.14)
	if err != nil {
		t.Fatalf("NewDecimalFromFloat() error = %v", err)
	}

	got := convertMapToCedarRecord(map[string]interface{}{
		"service_id": "box",
		"enabled":    true,
		"retries":    3,
		"ratio":      3.14,
		"scopes":     []string{"read", "write"},
		"mixed":      []interface{}{"x", 1, false},
		"ignored":    map[string]string{"nested": "dropped"},
		"infinite":   math.Inf(1),
	})

	want := map[string]cedar.Value{
		"service_id": cedar.String("box"),
		"enabled":    cedar.True,
		"retries":    cedar.Long(3),
		"ratio":      decimal,
		"scopes":     cedar.NewSet(cedar.String("read"), cedar.String("write")),
		"mixed":      cedar.NewSet(cedar.String("x"), cedar.Long(1), cedar.False),
	}

	if len(got) != len(want) {
		t.Fatalf("convertMapToCedarRecord() returned %d keys, want %d: %+v", len(got), len(want), got)
	}
	for k, wantV := range want {
		gotV, ok := got[k]
		if !ok {
			t.Errorf("missing key %q in result", k)
			continue
		}
		if !reflect.DeepEqual(gotV, wantV) {
			t.Errorf("key %q = %v, want %v", k, gotV, wantV)
		}
	}
	if _, dropped := got["ignored"]; dropped {
		t.Error("nested map value should have been dropped, not converted")
	}
	if _, dropped := got["infinite"]; dropped {
		t.Error("non-finite float should have been dropped, not converted")
	}
}

func TestConvertCedarValue_UnsupportedType(t *testing.T) {
	if _, ok := convertCedarValue(struct{}{}); ok {
		t.Error("convertCedarValue(struct{}{}) = ok, want not-ok")
	}
}
