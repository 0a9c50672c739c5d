package runner

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/mariocesar/tavern/packages/core/config"
	"github.com/mariocesar/tavern/packages/core/document"
	"github.com/mariocesar/tavern/packages/core/env"
	"github.com/mariocesar/tavern/packages/plugin"
)

// recorder collects the observable engine events so tests can assert on
// ordering and lifetimes.
type recorder struct {
	mu     sync.Mutex
	events []string
}

var rec = &recorder{}

func (r *recorder) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) count(event string) int {
	n := 0
	for _, e := range r.all() {
		if e == event {
			n++
		}
	}
	return n
}

func (r *recorder) has(event string) bool { return r.count(event) > 0 }

// fakeSpec is the stage block driving the fake plugin's behavior.
type fakeSpec struct {
	Sessions      []string           `yaml:"sessions"`
	DispatchError bool               `yaml:"dispatch_error"`
	ExpectedError bool               `yaml:"expected_error"`
	RequestError  bool               `yaml:"request_error"`
	Template      string             `yaml:"template"`
	Verifiers     []fakeVerifierSpec `yaml:"verifiers"`
}

type fakeVerifierSpec struct {
	Name   string         `yaml:"name"`
	Errors []string       `yaml:"errors"`
	Save   map[string]any `yaml:"save"`
	Expect string         `yaml:"expect"`
}

// fakePlugin is a fully scriptable protocol used to exercise the engine.
// Session names starting with "bad" fail to open.
type fakePlugin struct{}

func init() { plugin.Register(&fakePlugin{}) }

func (f *fakePlugin) Name() string { return "fake" }

func (f *fakePlugin) Matches(stage *document.Stage) bool { return stage.HasBlock("fake") }

func (f *fakePlugin) SessionSpecs(doc *document.Document, _ *config.Config) []plugin.SessionSpec {
	var specs []plugin.SessionSpec
	seen := map[string]bool{}
	for _, stage := range doc.Stages {
		var spec fakeSpec
		if ok, err := stage.DecodeBlock("fake", &spec); !ok || err != nil {
			continue
		}
		for _, name := range spec.Sessions {
			if seen[name] {
				continue
			}
			seen[name] = true
			name := name
			specs = append(specs, plugin.SessionSpec{
				Name: name,
				Open: func() (plugin.Session, error) {
					if strings.HasPrefix(name, "bad") {
						return nil, fmt.Errorf("session %q refused to open", name)
					}
					rec.add("open:%s", name)
					return &fakeSession{name: name}, nil
				},
			})
		}
	}
	return specs
}

type fakeSession struct{ name string }

func (s *fakeSession) Close() error {
	rec.add("close:%s", s.name)
	if strings.HasPrefix(s.name, "grumpy") {
		return errors.New("close failed")
	}
	return nil
}

func (f *fakePlugin) NewRequest(stage *document.Stage, res *env.Resolver, _ map[string]plugin.Session) (plugin.Request, error) {
	var spec fakeSpec
	if _, err := stage.DecodeBlock("fake", &spec); err != nil {
		return nil, err
	}
	rec.add("dispatch_request:%s", stage.Name)
	if _, err := res.Format("{{ tavern.request_vars.marker }}"); err == nil {
		rec.add("leak:%s", stage.Name)
	}
	if spec.DispatchError {
		return nil, errors.New("scripted dispatch failure")
	}
	if spec.Template != "" {
		resolved, err := res.Format(spec.Template)
		if err != nil {
			return nil, err
		}
		rec.add("resolved:%s:%s", stage.Name, resolved)
	}
	return &fakeRequest{stage: stage, spec: spec}, nil
}

func (f *fakePlugin) NewExpected(stage *document.Stage, res *env.Resolver, _ map[string]plugin.Session) (any, error) {
	var spec fakeSpec
	if _, err := stage.DecodeBlock("fake", &spec); err != nil {
		return nil, err
	}
	rec.add("dispatch_expected:%s", stage.Name)
	if marker, err := res.Format("{{ tavern.request_vars.marker }}"); err == nil && marker == stage.Name {
		rec.add("transient_ok:%s", stage.Name)
	} else {
		rec.add("transient_missing:%s", stage.Name)
	}
	if spec.ExpectedError {
		return nil, errors.New("scripted expectation failure")
	}
	return &fakeExpected{spec: spec, resolver: res}, nil
}

type fakeExpected struct {
	spec     fakeSpec
	resolver *env.Resolver
}

type fakeRequest struct {
	stage *document.Stage
	spec  fakeSpec
}

func (r *fakeRequest) RequestVars() map[string]any {
	return map[string]any{"marker": r.stage.Name}
}

func (r *fakeRequest) Run() (plugin.Response, error) {
	rec.add("run:%s", r.stage.Name)
	if r.spec.RequestError {
		return nil, errors.New("scripted transport failure")
	}
	return &fakeResponse{stage: r.stage.Name}, nil
}

func (r *fakeRequest) Describe() string {
	return fmt.Sprintf("FAKE %s", r.stage.Name)
}

type fakeResponse struct{ stage string }

func (r *fakeResponse) Describe() string { return fmt.Sprintf("FAKE-RESPONSE %s", r.stage) }

func (f *fakePlugin) Verifiers(stage *document.Stage, expected any, _ map[string]plugin.Session) ([]plugin.Verifier, error) {
	exp, ok := expected.(*fakeExpected)
	if !ok {
		return nil, fmt.Errorf("unexpected expected type %T", expected)
	}
	specs := exp.spec.Verifiers
	if len(specs) == 0 {
		specs = []fakeVerifierSpec{{Name: "status"}}
	}
	verifiers := make([]plugin.Verifier, len(specs))
	for i, vs := range specs {
		verifiers[i] = &fakeVerifier{stage: stage.Name, spec: vs, resolver: exp.resolver}
	}
	return verifiers, nil
}

type fakeVerifier struct {
	stage    string
	spec     fakeVerifierSpec
	resolver *env.Resolver
}

func (v *fakeVerifier) Name() string { return v.spec.Name }

func (v *fakeVerifier) Verify(plugin.Response) *plugin.Result {
	rec.add("verify:%s:%s", v.stage, v.spec.Name)
	result := &plugin.Result{Errors: v.spec.Errors, Saved: v.spec.Save}
	if v.spec.Expect != "" {
		if resolved, err := v.resolver.Format(v.spec.Expect); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("expected %q to resolve: %v", v.spec.Expect, err))
		} else {
			rec.add("verify_resolved:%s:%s:%s", v.stage, v.spec.Name, resolved)
		}
	}
	return result
}
