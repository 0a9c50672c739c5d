package env

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/mariocesar/tavern/packages/builtin"
)

var variablePattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// ErrUnresolved marks a template expression that names nothing in the
// environment. The stage runner reports it as a dispatch failure.
var ErrUnresolved = errors.New("unresolved template expression")

// Resolver substitutes {{ expr }} expressions in request and expectation
// specs against one test's environment.
type Resolver struct {
	env   *Environment
	funcs *builtin.Registry
}

func NewResolver(e *Environment) *Resolver {
	return &Resolver{env: e, funcs: builtin.NewRegistry()}
}

// Format substitutes every expression in input, always producing a
// string.
func (r *Resolver) Format(input string) (string, error) {
	var firstErr error
	out := variablePattern.ReplaceAllStringFunc(input, func(match string) string {
		v, err := r.eval(strings.TrimSpace(match[2 : len(match)-2]))
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return match
		}
		return fmt.Sprintf("%v", v)
	})
	return out, firstErr
}

// FormatAny substitutes expressions throughout nested maps and slices. A
// string consisting of exactly one expression keeps the looked-up value's
// type, so "{{ count }}" can stay an integer inside a JSON body.
func (r *Resolver) FormatAny(v any) (any, error) {
	switch val := v.(type) {
	case string:
		if expr, ok := wholeExpression(val); ok {
			return r.eval(expr)
		}
		return r.Format(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			fv, err := r.FormatAny(e)
			if err != nil {
				return nil, err
			}
			out[k] = fv
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			fv, err := r.FormatAny(e)
			if err != nil {
				return nil, err
			}
			out[i] = fv
		}
		return out, nil
	default:
		return v, nil
	}
}

// FormatStrings substitutes expressions in every value of a string map.
func (r *Resolver) FormatStrings(in map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(in))
	for k, v := range in {
		fv, err := r.Format(v)
		if err != nil {
			return nil, err
		}
		out[k] = fv
	}
	return out, nil
}

func (r *Resolver) eval(expr string) (any, error) {
	if name, ok := strings.CutPrefix(expr, "$"); ok {
		if v, found := os.LookupEnv(name); found {
			return v, nil
		}
		return nil, fmt.Errorf("%w: environment variable $%s is not set", ErrUnresolved, name)
	}

	if v, called, err := r.funcs.Call(expr); called {
		if err != nil {
			return nil, fmt.Errorf("template function %q: %w", expr, err)
		}
		return v, nil
	}

	if v, ok := r.env.Lookup(expr); ok {
		return v, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnresolved, expr)
}

// wholeExpression reports whether s is exactly one {{ expr }} with
// nothing around it.
func wholeExpression(s string) (string, bool) {
	loc := variablePattern.FindStringSubmatchIndex(s)
	if loc == nil || loc[0] != 0 || loc[1] != len(s) {
		return "", false
	}
	return strings.TrimSpace(s[loc[2]:loc[3]]), true
}
