// Package runner executes parsed test documents.
//
// Three layers, innermost first: the stage runner resolves one stage's
// request and expected values through the plugin registry, issues the
// request, and walks the verifiers in order, failing fast on the first
// unmet expectation. The test runner builds the variable environment and
// session registry for one document and drives the stage loop, releasing
// sessions on every exit path. The file runner validates and runs every
// document of a file, recording failures without stopping, and reduces
// the outcomes to a single boolean.
//
// Failures surface as typed errors: DispatchError, RequestError and
// VerificationError abort the current test; they are caught at the file
// runner's per-document boundary and never propagate past it.
package runner
