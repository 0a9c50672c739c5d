// Package config loads the global configuration shared by every test in
// a run.
//
// Configuration comes from zero or more YAML files given on the command
// line; later files shadow earlier ones key by key. The "variables"
// section seeds the base layer of each test's variable environment, the
// "settings" section carries engine knobs (HTTP timeouts, rate limiting,
// broker and database URLs for the protocol plugins).
//
// The loaded configuration is read-only during a run: each test works on
// a deep copy produced by Copy.
package config
