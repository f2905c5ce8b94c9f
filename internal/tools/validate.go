package tools

import (
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"slices"
)

// withDefaults returns a copy of params with declared defaults filled in for
// absent fields.
func withDefaults(spec ToolSpec, params map[string]any) map[string]any {
	out := make(map[string]any, len(params)+len(spec.Parameters))
	maps.Copy(out, params)
	for name, p := range spec.Parameters {
		if _, ok := out[name]; !ok && p.Default != nil {
			out[name] = p.Default
		}
	}
	return out
}

// validateParams checks required fields and primitive types. Fields are
// checked in name order so the reported field is deterministic.
func validateParams(spec ToolSpec, params map[string]any) error {
	for _, name := range slices.Sorted(maps.Keys(spec.Parameters)) {
		p := spec.Parameters[name]
		v, ok := params[name]
		if !ok || v == nil {
			if p.Required {
				return fmt.Errorf("%s: missing required parameter %q: %w", spec.Name, name, ErrValidation)
			}
			continue
		}
		if !matchesType(p.Type, v) {
			return fmt.Errorf("%s: parameter %q must be %s, got %T: %w", spec.Name, name, p.Type, v, ErrValidation)
		}
		if len(p.Enum) > 0 {
			s, _ := v.(string)
			if !slices.Contains(p.Enum, s) {
				return fmt.Errorf("%s: parameter %q must be one of %v: %w", spec.Name, name, p.Enum, ErrValidation)
			}
		}
	}
	return nil
}

func matchesType(typ string, v any) bool {
	switch typ {
	case "":
		return true
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeBoolean:
		_, ok := v.(bool)
		return ok
	case TypeNumber:
		if _, ok := v.(json.Number); ok {
			return true
		}
		return isNumericKind(reflect.TypeOf(v).Kind())
	case TypeInteger:
		switch n := v.(type) {
		case float64:
			return n == float64(int64(n))
		case float32:
			return n == float32(int64(n))
		case json.Number:
			_, err := n.Int64()
			return err == nil
		}
		k := reflect.TypeOf(v).Kind()
		return isNumericKind(k) && k != reflect.Float32 && k != reflect.Float64
	case TypeArray:
		k := reflect.TypeOf(v).Kind()
		return k == reflect.Slice || k == reflect.Array
	case TypeObject:
		return reflect.TypeOf(v).Kind() == reflect.Map
	default:
		return false
	}
}

func knownType(t string) bool {
	switch t {
	case "", TypeString, TypeNumber, TypeInteger, TypeBoolean, TypeArray, TypeObject:
		return true
	}
	return false
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
