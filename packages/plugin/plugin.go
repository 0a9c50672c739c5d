package plugin

import (
	"github.com/mariocesar/tavern/packages/core/config"
	"github.com/mariocesar/tavern/packages/core/document"
	"github.com/mariocesar/tavern/packages/core/env"
)

// Request is a resolved, ready-to-run request for one stage.
type Request interface {
	// RequestVars exposes the resolved request fields to templates as
	// tavern.request_vars while the stage runs.
	RequestVars() map[string]any

	// Run performs the I/O and returns the response. An error here is a
	// transport-level request failure.
	Run() (Response, error)

	// Describe renders the request for failure diagnostics.
	Describe() string
}

// Response is what a request produced, consumed by verifiers.
type Response interface {
	// Describe renders the response for failure diagnostics.
	Describe() string
}

// Result is the outcome of one verifier invocation. An empty Errors
// slice means the verifier passed; Saved is merged into the variable
// environment and persists for later verifiers and stages.
type Result struct {
	Errors []string
	Saved  map[string]any
}

// Verifier compares a response against one aspect of the expected
// values.
type Verifier interface {
	Name() string
	Verify(resp Response) *Result
}

// Session is a resource that outlives a single stage, released when the
// test ends.
type Session interface {
	Close() error
}

// SessionSpec names a session a document needs and how to acquire it.
// The runner's session registry opens specs in order and guarantees that
// everything opened is released, even when a later spec fails to open.
type SessionSpec struct {
	Name string
	Open func() (Session, error)
}

// Plugin is one protocol implementation.
type Plugin interface {
	// Name is the protocol tag, used in logs and dispatch errors.
	Name() string

	// Matches reports whether this plugin handles the stage.
	Matches(stage *document.Stage) bool

	// SessionSpecs declares the sessions the document needs from this
	// plugin. Returning nil means the document never touches this
	// protocol.
	SessionSpecs(doc *document.Document, cfg *config.Config) []SessionSpec

	// NewRequest resolves the stage spec into a runnable request.
	// Template errors and malformed specs are dispatch failures.
	NewRequest(stage *document.Stage, res *env.Resolver, sessions map[string]Session) (Request, error)

	// NewExpected resolves the stage's expected-response spec.
	NewExpected(stage *document.Stage, res *env.Resolver, sessions map[string]Session) (any, error)

	// Verifiers returns the ordered verifiers for the stage. The first
	// one always checks the basic outcome (status code, delivery, row
	// count).
	Verifiers(stage *document.Stage, expected any, sessions map[string]Session) ([]Verifier, error)
}
