package runner

import (
	"log/slog"
	"time"

	"github.com/mariocesar/tavern/packages/core/document"
	"github.com/mariocesar/tavern/packages/core/env"
	"github.com/mariocesar/tavern/packages/output"
	"github.com/mariocesar/tavern/packages/plugin"
)

// requestVarsKey is the transient entry holding one stage's
// request-derived variables inside the reserved namespace.
const requestVarsKey = "request_vars"

// stageRunner executes stages of one test against a live environment and
// session registry.
type stageRunner struct {
	testName string
	file     string
	env      *env.Environment
	resolver *env.Resolver
	sessions *SessionRegistry
	printer  *output.Printer
	logger   *slog.Logger
	sleep    func(time.Duration)
}

// run executes one stage. The returned error, if any, is a
// DispatchError, RequestError or VerificationError and aborts the test.
func (s *stageRunner) run(stage *document.Stage) error {
	p, err := plugin.ForStage(stage)
	if err != nil {
		s.printer.Fail(stage, "", nil)
		return &DispatchError{Stage: stage.Name, Err: err}
	}

	req, err := p.NewRequest(stage, s.resolver, s.sessions.All())
	if err != nil {
		s.printer.Fail(stage, "", nil)
		return &DispatchError{Stage: stage.Name, Err: err}
	}

	err = s.env.WithTransient(requestVarsKey, req.RequestVars(), func() error {
		expected, err := p.NewExpected(stage, s.resolver, s.sessions.All())
		if err != nil {
			s.printer.Fail(stage, "", nil)
			return &DispatchError{Stage: stage.Name, Err: err}
		}

		s.delay(stage.DelayBefore)

		s.logger.Info("running stage", "stage", stage.Name, "plugin", p.Name())

		resp, err := req.Run()
		if err != nil {
			s.printer.Fail(stage, "", expected)
			return &RequestError{Stage: stage.Name, Err: err}
		}

		verifiers, err := p.Verifiers(stage, expected, s.sessions.All())
		if err != nil {
			s.printer.Fail(stage, "", expected)
			return &DispatchError{Stage: stage.Name, Err: err}
		}

		for _, v := range verifiers {
			ret := v.Verify(resp)
			if len(ret.Errors) > 0 {
				s.printer.Fail(stage, v.Name(), expected)
				return &VerificationError{
					TestName:     s.testName,
					File:         s.file,
					Stage:        stage.Name,
					Verifier:     v.Name(),
					StageText:    stage.YAML(),
					RequestDump:  req.Describe(),
					ResponseDump: resp.Describe(),
					Errors:       ret.Errors,
				}
			}
			// Merge immediately so the next verifier of this same stage
			// already sees what this one saved.
			if len(ret.Saved) > 0 {
				s.env.Merge(ret.Saved)
			}
		}

		s.printer.Pass(stage, verifiers)
		return nil
	})
	if err != nil {
		return err
	}

	s.delay(stage.DelayAfter)
	return nil
}

func (s *stageRunner) delay(seconds float64) {
	if seconds <= 0 {
		return
	}
	s.sleep(time.Duration(seconds * float64(time.Second)))
}
