package env

import (
	"os"
	"strings"
)

// ReservedName is the namespace the engine owns inside the environment.
// It carries env_vars and, while a stage runs, that stage's transient
// request variables.
const ReservedName = "tavern"

// Environment is the mutable variable mapping for one test. It is not
// safe for concurrent use; the runner executes stages sequentially.
type Environment struct {
	vars map[string]any
}

// New builds an environment seeded with a deep copy of base.
func New(base map[string]any) *Environment {
	e := &Environment{vars: make(map[string]any, len(base))}
	e.Merge(base)
	return e
}

// Merge adds or overwrites entries; the most recent write wins. Values
// are deep-copied so later environment mutation cannot reach the caller's
// maps.
func (e *Environment) Merge(layer map[string]any) {
	for k, v := range layer {
		e.vars[k] = copyValue(v)
	}
}

// Set writes a single entry.
func (e *Environment) Set(name string, value any) {
	e.vars[name] = copyValue(value)
}

// Lookup resolves a dotted path ("tavern.env_vars.HOME") through nested
// maps.
func (e *Environment) Lookup(path string) (any, bool) {
	var current any = e.vars
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Snapshot returns a deep copy of the environment. Mutating the snapshot
// does not affect the environment and vice versa.
func (e *Environment) Snapshot() map[string]any {
	out := make(map[string]any, len(e.vars))
	for k, v := range e.vars {
		out[k] = copyValue(v)
	}
	return out
}

// WithTransient installs name in the reserved namespace, runs body, and
// removes the entry again, whether body succeeds or fails.
func (e *Environment) WithTransient(name string, value any, body func() error) error {
	box := e.reserved()
	box[name] = copyValue(value)
	defer delete(box, name)
	return body()
}

// InstallEnvVars exposes the process environment under the reserved
// namespace as tavern.env_vars.
func (e *Environment) InstallEnvVars() {
	vars := make(map[string]any)
	for _, entry := range os.Environ() {
		if k, v, ok := strings.Cut(entry, "="); ok {
			vars[k] = v
		}
	}
	e.reserved()["env_vars"] = vars
}

func (e *Environment) reserved() map[string]any {
	if box, ok := e.vars[ReservedName].(map[string]any); ok {
		return box
	}
	box := make(map[string]any)
	e.vars[ReservedName] = box
	return box
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = copyValue(e)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}
