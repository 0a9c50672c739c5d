package httpclient

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/mariocesar/tavern/packages/core/document"
	"github.com/mariocesar/tavern/packages/jsonmatch"
	"github.com/mariocesar/tavern/packages/plugin"
)

func (p *Plugin) Verifiers(stage *document.Stage, expected any, _ map[string]plugin.Session) ([]plugin.Verifier, error) {
	exp, ok := expected.(*expectedResponse)
	if !ok {
		return nil, fmt.Errorf("stage %q: unexpected expected-response type %T", stage.Name, expected)
	}

	verifiers := []plugin.Verifier{&statusVerifier{expected: exp.StatusCode}}
	if len(exp.Headers) > 0 {
		verifiers = append(verifiers, &headerVerifier{expected: exp.Headers})
	}
	if exp.JSON != nil {
		verifiers = append(verifiers, &bodyVerifier{expected: exp.JSON})
	}
	if len(exp.Save.Body) > 0 || len(exp.Save.Headers) > 0 {
		verifiers = append(verifiers, &saveVerifier{spec: exp.Save})
	}
	return verifiers, nil
}

func asHTTPResponse(resp plugin.Response) (*Response, []string) {
	r, ok := resp.(*Response)
	if !ok {
		return nil, []string{fmt.Sprintf("response is %T, not an HTTP response", resp)}
	}
	return r, nil
}

type statusVerifier struct {
	expected int
}

func (v *statusVerifier) Name() string { return "status" }

func (v *statusVerifier) Verify(resp plugin.Response) *plugin.Result {
	r, errs := asHTTPResponse(resp)
	if errs != nil {
		return &plugin.Result{Errors: errs}
	}
	if r.StatusCode != v.expected {
		return &plugin.Result{Errors: []string{
			fmt.Sprintf("status code %d != %d", r.StatusCode, v.expected),
		}}
	}
	return &plugin.Result{}
}

type headerVerifier struct {
	expected map[string]string
}

func (v *headerVerifier) Name() string { return "headers" }

func (v *headerVerifier) Verify(resp plugin.Response) *plugin.Result {
	r, errs := asHTTPResponse(resp)
	if errs != nil {
		return &plugin.Result{Errors: errs}
	}
	result := &plugin.Result{}
	for name, want := range v.expected {
		got, present := r.Header(name)
		switch {
		case !present:
			result.Errors = append(result.Errors, fmt.Sprintf("header %q missing from response", name))
		case got != want:
			result.Errors = append(result.Errors, fmt.Sprintf("header %q is %q, expected %q", name, got, want))
		}
	}
	return result
}

type bodyVerifier struct {
	expected any
}

func (v *bodyVerifier) Name() string { return "json body" }

func (v *bodyVerifier) Verify(resp plugin.Response) *plugin.Result {
	r, errs := asHTTPResponse(resp)
	if errs != nil {
		return &plugin.Result{Errors: errs}
	}
	var actual any
	if err := json.Unmarshal(r.Body, &actual); err != nil {
		return &plugin.Result{Errors: []string{fmt.Sprintf("response body is not valid JSON: %v", err)}}
	}
	return &plugin.Result{Errors: jsonmatch.Compare("body", v.expected, actual)}
}

// saveVerifier never fails a stage on a matched value; it only errors
// when a requested path does not exist, since a later stage would then
// hit a confusing unresolved-variable failure instead.
type saveVerifier struct {
	spec saveSpec
}

func (v *saveVerifier) Name() string { return "save" }

func (v *saveVerifier) Verify(resp plugin.Response) *plugin.Result {
	r, errs := asHTTPResponse(resp)
	if errs != nil {
		return &plugin.Result{Errors: errs}
	}
	result := &plugin.Result{Saved: make(map[string]any)}
	for name, path := range v.spec.Body {
		value := gjson.GetBytes(r.Body, path)
		if !value.Exists() {
			result.Errors = append(result.Errors, fmt.Sprintf("save path %q not found in response body", path))
			continue
		}
		result.Saved[name] = value.Value()
	}
	for name, header := range v.spec.Headers {
		value, present := r.Header(header)
		if !present {
			result.Errors = append(result.Errors, fmt.Sprintf("save header %q not found in response", header))
			continue
		}
		result.Saved[name] = value
	}
	return result
}
