package env

import (
	"fmt"
	"os"
	"strings"
)

// CheckEnvVars walks an include fragment's variables and fails if any
// string value references a process environment variable that is not
// set. The check runs before the fragment is merged, so a missing
// variable fails the test up front instead of mid-stage.
func CheckEnvVars(vars map[string]any) error {
	for name, value := range vars {
		if err := checkValue(value); err != nil {
			return fmt.Errorf("include variable %q: %w", name, err)
		}
	}
	return nil
}

func checkValue(v any) error {
	switch val := v.(type) {
	case string:
		for _, match := range variablePattern.FindAllStringSubmatch(val, -1) {
			expr := strings.TrimSpace(match[1])
			name, ok := strings.CutPrefix(expr, "$")
			if !ok {
				continue
			}
			if _, found := os.LookupEnv(name); !found {
				return fmt.Errorf("references environment variable $%s which is not set", name)
			}
		}
	case map[string]any:
		for _, e := range val {
			if err := checkValue(e); err != nil {
				return err
			}
		}
	case []any:
		for _, e := range val {
			if err := checkValue(e); err != nil {
				return err
			}
		}
	}
	return nil
}
