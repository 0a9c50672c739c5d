package jsonmatch

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
)

// Compare checks actual against expected recursively and returns one
// message per divergence. Expected maps are subset matches: keys the
// actual value has beyond the expected ones are fine, missing or
// diverging keys are not. Lists match by length and element order.
// Path labels the root in the messages.
func Compare(path string, expected, actual any) []string {
	var errs []string
	compare(path, expected, actual, &errs)
	return errs
}

func compare(path string, expected, actual any, errs *[]string) {
	switch want := expected.(type) {
	case map[string]any:
		got, ok := actual.(map[string]any)
		if !ok {
			*errs = append(*errs, fmt.Sprintf("%s: expected an object, got %v", path, describe(actual)))
			return
		}
		for key, wantVal := range want {
			gotVal, present := got[key]
			if !present {
				*errs = append(*errs, fmt.Sprintf("%s.%s: missing from response", path, key))
				continue
			}
			compare(path+"."+key, wantVal, gotVal, errs)
		}
	case []any:
		got, ok := actual.([]any)
		if !ok {
			*errs = append(*errs, fmt.Sprintf("%s: expected a list, got %v", path, describe(actual)))
			return
		}
		if len(got) != len(want) {
			*errs = append(*errs, fmt.Sprintf("%s: expected %d items, got %d", path, len(want), len(got)))
			return
		}
		for i := range want {
			compare(fmt.Sprintf("%s[%d]", path, i), want[i], got[i], errs)
		}
	case nil:
		if actual != nil {
			*errs = append(*errs, fmt.Sprintf("%s: expected null, got %v", path, describe(actual)))
		}
	default:
		if !ScalarEqual(want, actual) {
			*errs = append(*errs, fmt.Sprintf("%s: expected %v, got %v", path, describe(want), describe(actual)))
		}
	}
}

// ScalarEqual compares leaf values, treating all numeric types alike so
// a YAML integer matches the float64 the JSON decoder produces.
func ScalarEqual(want, got any) bool {
	wf, wok := toFloat(want)
	gf, gok := toFloat(got)
	if wok && gok {
		return math.Abs(wf-gf) < 1e-9
	}
	return reflect.DeepEqual(want, got)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func describe(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
