package sqldb

import (
	"fmt"

	"github.com/mariocesar/tavern/packages/core/document"
	"github.com/mariocesar/tavern/packages/jsonmatch"
	"github.com/mariocesar/tavern/packages/plugin"
)

func (p *Plugin) Verifiers(stage *document.Stage, expected any, _ map[string]plugin.Session) ([]plugin.Verifier, error) {
	exp, ok := expected.(*responseSpec)
	if !ok {
		return nil, fmt.Errorf("stage %q: unexpected expected-response type %T", stage.Name, expected)
	}

	verifiers := []plugin.Verifier{&rowCountVerifier{expected: exp.RowCount}}
	if len(exp.FirstRow) > 0 {
		verifiers = append(verifiers, &firstRowVerifier{expected: exp.FirstRow})
	}
	if len(exp.Save) > 0 {
		verifiers = append(verifiers, &saveVerifier{columns: exp.Save})
	}
	return verifiers, nil
}

func asSQLResponse(resp plugin.Response) (*Response, []string) {
	r, ok := resp.(*Response)
	if !ok {
		return nil, []string{fmt.Sprintf("response is %T, not a SQL response", resp)}
	}
	return r, nil
}

// rowCountVerifier is the basic outcome check. With no expectation set
// it only confirms the query produced a result set at all, which Run
// already guarantees.
type rowCountVerifier struct {
	expected *int
}

func (v *rowCountVerifier) Name() string { return "row count" }

func (v *rowCountVerifier) Verify(resp plugin.Response) *plugin.Result {
	r, errs := asSQLResponse(resp)
	if errs != nil {
		return &plugin.Result{Errors: errs}
	}
	if v.expected != nil && len(r.Rows) != *v.expected {
		return &plugin.Result{Errors: []string{
			fmt.Sprintf("row count %d != %d", len(r.Rows), *v.expected),
		}}
	}
	return &plugin.Result{}
}

type firstRowVerifier struct {
	expected map[string]any
}

func (v *firstRowVerifier) Name() string { return "first row" }

func (v *firstRowVerifier) Verify(resp plugin.Response) *plugin.Result {
	r, errs := asSQLResponse(resp)
	if errs != nil {
		return &plugin.Result{Errors: errs}
	}
	if len(r.Rows) == 0 {
		return &plugin.Result{Errors: []string{"query returned no rows"}}
	}
	row := r.Rows[0]
	result := &plugin.Result{}
	for column, want := range v.expected {
		got, present := row[column]
		switch {
		case !present:
			result.Errors = append(result.Errors, fmt.Sprintf("column %q missing from result", column))
		case !jsonmatch.ScalarEqual(want, got):
			result.Errors = append(result.Errors, fmt.Sprintf("column %q is %v, expected %v", column, got, want))
		}
	}
	return result
}

// saveVerifier saves columns of the first row under new variable names.
type saveVerifier struct {
	columns map[string]string
}

func (v *saveVerifier) Name() string { return "save" }

func (v *saveVerifier) Verify(resp plugin.Response) *plugin.Result {
	r, errs := asSQLResponse(resp)
	if errs != nil {
		return &plugin.Result{Errors: errs}
	}
	if len(r.Rows) == 0 {
		return &plugin.Result{Errors: []string{"cannot save from an empty result"}}
	}
	row := r.Rows[0]
	result := &plugin.Result{Saved: make(map[string]any)}
	for name, column := range v.columns {
		value, present := row[column]
		if !present {
			result.Errors = append(result.Errors, fmt.Sprintf("save column %q not found in result", column))
			continue
		}
		result.Saved[name] = value
	}
	return result
}
