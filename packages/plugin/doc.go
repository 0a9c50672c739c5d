// Package plugin defines the protocol plugin contract and the registry
// the stage runner dispatches through.
//
// A plugin owns one protocol (HTTP, NATS, SQL, ...). It recognises its
// stages by the block keys they carry, builds request and expected
// objects from a stage spec, supplies the ordered verifiers for a
// response, and declares the named sessions a test document needs so the
// runner can acquire and release them around the stage loop.
//
// Plugins register themselves in init; the CLI blank-imports the plugin
// packages it ships.
package plugin
