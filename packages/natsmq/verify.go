package natsmq

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/mariocesar/tavern/packages/core/document"
	"github.com/mariocesar/tavern/packages/jsonmatch"
	"github.com/mariocesar/tavern/packages/plugin"
)

func (p *Plugin) Verifiers(stage *document.Stage, expected any, _ map[string]plugin.Session) ([]plugin.Verifier, error) {
	exp, ok := expected.(*responseSpec)
	if !ok {
		return nil, fmt.Errorf("stage %q: unexpected expected-response type %T", stage.Name, expected)
	}

	wantsReply := stage.HasBlock(responseBlock)
	verifiers := []plugin.Verifier{&deliveryVerifier{wantsReply: wantsReply, subject: exp.Subject}}
	if exp.Payload != "" {
		verifiers = append(verifiers, &payloadVerifier{expected: exp.Payload})
	}
	if exp.JSON != nil {
		verifiers = append(verifiers, &jsonVerifier{expected: exp.JSON})
	}
	if len(exp.Save) > 0 {
		verifiers = append(verifiers, &saveVerifier{paths: exp.Save})
	}
	return verifiers, nil
}

func asNATSResponse(resp plugin.Response) (*Response, []string) {
	r, ok := resp.(*Response)
	if !ok {
		return nil, []string{fmt.Sprintf("response is %T, not a NATS response", resp)}
	}
	return r, nil
}

// deliveryVerifier is the basic outcome check: the publish happened and,
// when a reply was requested, one arrived in time.
type deliveryVerifier struct {
	wantsReply bool
	subject    string
}

func (v *deliveryVerifier) Name() string { return "delivery" }

func (v *deliveryVerifier) Verify(resp plugin.Response) *plugin.Result {
	r, errs := asNATSResponse(resp)
	if errs != nil {
		return &plugin.Result{Errors: errs}
	}
	if !r.Published {
		return &plugin.Result{Errors: []string{"message was not published"}}
	}
	if v.wantsReply && !r.Received {
		return &plugin.Result{Errors: []string{
			fmt.Sprintf("no reply received on %q", v.subject),
		}}
	}
	// A wildcard subscription can deliver from any matching subject, so
	// only literal subjects are compared.
	if r.Received && !strings.ContainsAny(v.subject, "*>") && r.Subject != v.subject {
		return &plugin.Result{Errors: []string{
			fmt.Sprintf("reply subject %q != %q", r.Subject, v.subject),
		}}
	}
	return &plugin.Result{}
}

type payloadVerifier struct {
	expected string
}

func (v *payloadVerifier) Name() string { return "payload" }

func (v *payloadVerifier) Verify(resp plugin.Response) *plugin.Result {
	r, errs := asNATSResponse(resp)
	if errs != nil {
		return &plugin.Result{Errors: errs}
	}
	if got := string(r.Data); got != v.expected {
		return &plugin.Result{Errors: []string{
			fmt.Sprintf("payload %q != %q", got, v.expected),
		}}
	}
	return &plugin.Result{}
}

type jsonVerifier struct {
	expected any
}

func (v *jsonVerifier) Name() string { return "json payload" }

func (v *jsonVerifier) Verify(resp plugin.Response) *plugin.Result {
	r, errs := asNATSResponse(resp)
	if errs != nil {
		return &plugin.Result{Errors: errs}
	}
	var actual any
	if err := json.Unmarshal(r.Data, &actual); err != nil {
		return &plugin.Result{Errors: []string{fmt.Sprintf("reply payload is not valid JSON: %v", err)}}
	}
	return &plugin.Result{Errors: jsonmatch.Compare("payload", v.expected, actual)}
}

type saveVerifier struct {
	paths map[string]string
}

func (v *saveVerifier) Name() string { return "save" }

func (v *saveVerifier) Verify(resp plugin.Response) *plugin.Result {
	r, errs := asNATSResponse(resp)
	if errs != nil {
		return &plugin.Result{Errors: errs}
	}
	result := &plugin.Result{Saved: make(map[string]any)}
	for name, path := range v.paths {
		value := gjson.GetBytes(r.Data, path)
		if !value.Exists() {
			result.Errors = append(result.Errors, fmt.Sprintf("save path %q not found in reply payload", path))
			continue
		}
		result.Saved[name] = value.Value()
	}
	return result
}
