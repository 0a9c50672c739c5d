// Package output prints per-stage pass/fail events and file summaries to
// the console. Reporting here is cosmetic; the runner's return values and
// error types carry the authoritative outcome.
package output
