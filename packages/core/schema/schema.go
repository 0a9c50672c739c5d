// Package schema validates the shape of a parsed test document before the
// runner touches it. The rules live in an embedded JSON schema checked
// with gojsonschema; protocol-specific stage blocks are deliberately left
// open, the plugins validate those themselves.
package schema

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed tests.schema.json
var schemaJSON string

var (
	compileOnce sync.Once
	compiled    *gojsonschema.Schema
	compileErr  error
)

// BadSchemaError reports a document that does not match the test schema.
type BadSchemaError struct {
	Violations []string
}

func (e *BadSchemaError) Error() string {
	return fmt.Sprintf("document does not match test schema:\n- %s",
		strings.Join(e.Violations, "\n- "))
}

// Validate checks one decoded document. It returns nil when the document
// is well formed and a *BadSchemaError otherwise.
func Validate(doc any) error {
	compileOnce.Do(func() {
		compiled, compileErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	})
	if compileErr != nil {
		return fmt.Errorf("compiling test schema: %w", compileErr)
	}

	result, err := compiled.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return &BadSchemaError{Violations: []string{err.Error()}}
	}
	if result.Valid() {
		return nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		violations = append(violations, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
	}
	return &BadSchemaError{Violations: violations}
}
