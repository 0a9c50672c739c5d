// Package env holds the variable environment threaded through a test.
//
// The environment is a layered mapping merged at test start: global
// configuration variables, then include-fragment variables, then the
// reserved "tavern" namespace exposing process environment variables as
// tavern.env_vars. Later merges shadow earlier values. While a stage
// runs, its request-derived variables live in a transient entry of the
// reserved namespace that is structurally removed when the stage ends,
// so it can never leak into the next stage.
//
// Resolver performs {{ expr }} substitution against the environment:
// dotted-path lookups, $NAME process-environment lookups, and builtin
// function calls. An unresolved reference is an error; the stage runner
// treats it as a dispatch failure.
package env
