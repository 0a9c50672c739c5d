package runner

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mariocesar/tavern/packages/core/config"
	"github.com/mariocesar/tavern/packages/core/document"
	"github.com/mariocesar/tavern/packages/core/env"
	"github.com/mariocesar/tavern/packages/output"
)

func quietRunner(t *testing.T, cfg *config.Config, opts ...Option) *Runner {
	t.Helper()
	rec.reset()
	base := []Option{
		WithPrinter(output.NewPrinter(output.WithWriter(io.Discard), output.WithNoColor(true))),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	return New(cfg, append(base, opts...)...)
}

func loadDoc(t *testing.T, content string) *document.Document {
	t.Helper()
	docs, err := document.Load(strings.NewReader(content), ".")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	doc, err := docs[0].Decode()
	require.NoError(t, err)
	return doc
}

func TestRunTest_HappyPathOrder(t *testing.T) {
	r := quietRunner(t, nil)
	doc := loadDoc(t, `
test_name: ordering
stages:
  - name: first
    fake:
      sessions: [alpha]
  - name: second
    fake: {}
`)

	require.NoError(t, r.RunTest("ordering.tavern.yaml", doc))

	assert.Equal(t, []string{
		"open:alpha",
		"dispatch_request:first",
		"dispatch_expected:first",
		"transient_ok:first",
		"run:first",
		"verify:first:status",
		"dispatch_request:second",
		"dispatch_expected:second",
		"transient_ok:second",
		"run:second",
		"verify:second:status",
		"close:alpha",
	}, rec.all())
}

func TestRunTest_TransientNeverLeaks(t *testing.T) {
	r := quietRunner(t, nil)
	doc := loadDoc(t, `
test_name: no leakage
stages:
  - name: one
    fake: {}
  - name: two
    fake: {}
`)

	require.NoError(t, r.RunTest("t.tavern.yaml", doc))

	for _, e := range rec.all() {
		assert.False(t, strings.HasPrefix(e, "leak:"), "unexpected event %q", e)
		assert.False(t, strings.HasPrefix(e, "transient_missing:"), "unexpected event %q", e)
	}
}

func TestRunTest_SavedValuesVisibleForward(t *testing.T) {
	r := quietRunner(t, nil)
	doc := loadDoc(t, `
test_name: saves
stages:
  - name: login
    fake:
      verifiers:
        - name: saver
          save:
            token: abc
        - name: checker
          expect: "{{ token }}"
  - name: fetch
    fake:
      template: "Bearer {{ token }}"
`)

	require.NoError(t, r.RunTest("saves.tavern.yaml", doc))

	assert.True(t, rec.has("verify_resolved:login:checker:abc"),
		"verifier after a saving verifier must see the saved value; events: %v", rec.all())
	assert.True(t, rec.has("resolved:fetch:Bearer abc"),
		"later stage dispatch must see saved values; events: %v", rec.all())
}

func TestRunTest_SavedValueNotVisibleToPriorStages(t *testing.T) {
	r := quietRunner(t, nil)
	doc := loadDoc(t, `
test_name: save order
stages:
  - name: early
    fake:
      template: "{{ token }}"
  - name: late
    fake:
      verifiers:
        - name: saver
          save:
            token: abc
`)

	err := r.RunTest("order.tavern.yaml", doc)
	var derr *DispatchError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "early", derr.Stage)
	assert.ErrorIs(t, err, env.ErrUnresolved)
	assert.False(t, rec.has("run:late"), "test must abort before later stages run")
}

func TestRunTest_VerificationFailure(t *testing.T) {
	r := quietRunner(t, nil)
	doc := loadDoc(t, `
test_name: failing verify
stages:
  - name: check status
    fake:
      sessions: [alpha]
      verifiers:
        - name: status
          errors:
            - status code 500 != 200
`)

	err := r.RunTest("fail.tavern.yaml", doc)
	var verr *VerificationError
	require.ErrorAs(t, err, &verr)

	assert.Equal(t, "failing verify", verr.TestName)
	assert.Equal(t, "fail.tavern.yaml", verr.File)
	assert.Equal(t, "check status", verr.Stage)
	assert.Equal(t, "status", verr.Verifier)
	assert.Equal(t, []string{"status code 500 != 200"}, verr.Errors)

	text := err.Error()
	assert.Contains(t, text, "status code 500 != 200")
	assert.Contains(t, text, "name: check status")
	assert.Contains(t, text, "FAKE check status")
	assert.Contains(t, text, "FAKE-RESPONSE check status")

	assert.Equal(t, 1, rec.count("close:alpha"), "sessions must be released after a verification failure")
}

func TestRunTest_FirstFailingVerifierWins(t *testing.T) {
	r := quietRunner(t, nil)
	doc := loadDoc(t, `
test_name: fail fast
stages:
  - name: stage
    fake:
      verifiers:
        - name: first
          errors: [first error]
        - name: second
`)

	err := r.RunTest("t.tavern.yaml", doc)
	var verr *VerificationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "first", verr.Verifier)
	assert.False(t, rec.has("verify:stage:second"), "verifiers after the first failure must not run")
}

func TestRunTest_DispatchFailure(t *testing.T) {
	r := quietRunner(t, nil)
	doc := loadDoc(t, `
test_name: dispatch
stages:
  - name: broken
    fake:
      sessions: [alpha]
      dispatch_error: true
`)

	err := r.RunTest("t.tavern.yaml", doc)
	var derr *DispatchError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "broken", derr.Stage)
	assert.False(t, rec.has("run:broken"))
	assert.Equal(t, 1, rec.count("close:alpha"))
}

func TestRunTest_UnknownProtocolIsDispatchFailure(t *testing.T) {
	r := quietRunner(t, nil)
	doc := loadDoc(t, `
test_name: unknown
stages:
  - name: mystery
    carrier_pigeon:
      coop: north
`)

	var derr *DispatchError
	require.ErrorAs(t, r.RunTest("t.tavern.yaml", doc), &derr)
}

func TestRunTest_ExpectedFailureCleansTransient(t *testing.T) {
	r := quietRunner(t, nil)
	doc := loadDoc(t, `
test_name: expected failure
stages:
  - name: broken
    fake:
      expected_error: true
`)

	var derr *DispatchError
	require.ErrorAs(t, r.RunTest("t.tavern.yaml", doc), &derr)
	assert.False(t, rec.has("run:broken"))
}

func TestRunTest_RequestFailure(t *testing.T) {
	r := quietRunner(t, nil)
	doc := loadDoc(t, `
test_name: transport
stages:
  - name: flaky
    fake:
      sessions: [alpha]
      request_error: true
`)

	err := r.RunTest("t.tavern.yaml", doc)
	var rerr *RequestError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "flaky", rerr.Stage)
	assert.False(t, rec.has("verify:flaky:status"))
	assert.Equal(t, 1, rec.count("close:alpha"))
}

func TestRunTest_SessionOpenRollback(t *testing.T) {
	r := quietRunner(t, nil)
	doc := loadDoc(t, `
test_name: rollback
stages:
  - name: stage
    fake:
      sessions: [alpha, bad-actor]
`)

	err := r.RunTest("t.tavern.yaml", doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad-actor")

	assert.Equal(t, 1, rec.count("open:alpha"))
	assert.Equal(t, 1, rec.count("close:alpha"), "earlier sessions must be released when a later one fails to open")
	assert.False(t, rec.has("run:stage"))
}

func TestRunTest_SessionsClosedExactlyOnce(t *testing.T) {
	r := quietRunner(t, nil)
	doc := loadDoc(t, `
test_name: close once
stages:
  - name: stage
    fake:
      sessions: [alpha, beta]
      verifiers:
        - name: status
          errors: [boom]
`)

	require.Error(t, r.RunTest("t.tavern.yaml", doc))
	assert.Equal(t, 1, rec.count("close:alpha"))
	assert.Equal(t, 1, rec.count("close:beta"))
}

func TestRunTest_SessionCloseFailureDoesNotMaskOutcome(t *testing.T) {
	r := quietRunner(t, nil)
	doc := loadDoc(t, `
test_name: grumpy close
stages:
  - name: stage
    fake:
      sessions: [grumpy]
`)

	assert.NoError(t, r.RunTest("t.tavern.yaml", doc))
	assert.Equal(t, 1, rec.count("close:grumpy"))
}

func TestRunTest_NoStagesIsVacuousPass(t *testing.T) {
	r := quietRunner(t, nil)
	doc := &document.Document{TestName: "empty", Stages: nil}

	assert.NoError(t, r.RunTest("t.tavern.yaml", doc))
	assert.Empty(t, rec.all())
}

func TestRunTest_IncludeVariables(t *testing.T) {
	t.Setenv("TAVERN_RUNNER_INC", "set")
	r := quietRunner(t, nil)
	doc := loadDoc(t, `
test_name: includes
includes:
  - name: common
    variables:
      greeting: hello
stages:
  - name: stage
    fake:
      template: "{{ greeting }}"
`)

	require.NoError(t, r.RunTest("t.tavern.yaml", doc))
	assert.True(t, rec.has("resolved:stage:hello"), "events: %v", rec.all())
}

func TestRunTest_IncludeMissingEnvVarFailsUpFront(t *testing.T) {
	r := quietRunner(t, nil)
	doc := loadDoc(t, `
test_name: includes
includes:
  - name: common
    variables:
      secret: "{{ $TAVERN_RUNNER_MISSING_VAR }}"
stages:
  - name: stage
    fake: {}
`)

	err := r.RunTest("t.tavern.yaml", doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TAVERN_RUNNER_MISSING_VAR")
	assert.Empty(t, rec.all(), "no stage may run when an include check fails")
}

func TestRunTest_GlobalConfigNotMutated(t *testing.T) {
	cfg := config.New()
	cfg.Variables["greeting"] = "hello"
	r := quietRunner(t, cfg)
	doc := loadDoc(t, `
test_name: isolation
includes:
  - variables:
      greeting: shadowed
stages:
  - name: stage
    fake:
      verifiers:
        - name: saver
          save:
            greeting: saved
`)

	require.NoError(t, r.RunTest("t.tavern.yaml", doc))
	assert.Equal(t, "hello", cfg.Variables["greeting"], "global config must stay untouched")
}

func TestRunTest_EnvVarsNamespace(t *testing.T) {
	t.Setenv("TAVERN_RUNNER_ENV", "from-process")
	r := quietRunner(t, nil)
	doc := loadDoc(t, `
test_name: env vars
stages:
  - name: stage
    fake:
      template: "{{ tavern.env_vars.TAVERN_RUNNER_ENV }}"
`)

	require.NoError(t, r.RunTest("t.tavern.yaml", doc))
	assert.True(t, rec.has("resolved:stage:from-process"), "events: %v", rec.all())
}

func TestRunTest_Delays(t *testing.T) {
	var slept []time.Duration
	r := quietRunner(t, nil, WithSleep(func(d time.Duration) { slept = append(slept, d) }))
	doc := loadDoc(t, `
test_name: delays
stages:
  - name: slow
    delay_before: 0.25
    delay_after: 1
    fake: {}
`)

	require.NoError(t, r.RunTest("t.tavern.yaml", doc))
	assert.Equal(t, []time.Duration{250 * time.Millisecond, time.Second}, slept)
}

func writeTestFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tests.tavern.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestRunFile_AllPassing(t *testing.T) {
	r := quietRunner(t, nil)
	path := writeTestFile(t, `
test_name: scenario a
stages:
  - name: only stage
    fake: {}
`)

	passed, err := r.RunFile(path)
	require.NoError(t, err)
	assert.True(t, passed)
	assert.Equal(t, 1, rec.count("verify:only stage:status"))
}

func TestRunFile_VerificationFailureAggregates(t *testing.T) {
	r := quietRunner(t, nil)
	path := writeTestFile(t, `
test_name: scenario b
stages:
  - name: only stage
    fake:
      verifiers:
        - name: status
          errors: ["status code 500 != 200"]
`)

	passed, err := r.RunFile(path)
	require.NoError(t, err)
	assert.False(t, passed)
}

func TestRunFile_SchemaInvalidDoesNotStopOthers(t *testing.T) {
	r := quietRunner(t, nil)
	path := writeTestFile(t, `
stages:
  - name: missing test_name
    fake: {}
---
test_name: still runs
stages:
  - name: valid stage
    fake: {}
`)

	passed, err := r.RunFile(path)
	require.NoError(t, err)
	assert.False(t, passed, "schema-invalid document must fail the file")
	assert.Equal(t, 1, rec.count("run:valid stage"), "later documents must still run")
}

func TestRunFile_EmptyDocumentsSkippedWithoutFailing(t *testing.T) {
	r := quietRunner(t, nil)
	path := writeTestFile(t, `
test_name: real test
stages:
  - name: stage
    fake: {}
---
null
`)

	passed, err := r.RunFile(path)
	require.NoError(t, err)
	assert.True(t, passed, "a null document is skipped, not failed")
}

func TestRunFile_FailedTestDoesNotStopOthers(t *testing.T) {
	r := quietRunner(t, nil)
	path := writeTestFile(t, `
test_name: fails
stages:
  - name: boom
    fake:
      request_error: true
---
test_name: passes
stages:
  - name: fine
    fake: {}
`)

	passed, err := r.RunFile(path)
	require.NoError(t, err)
	assert.False(t, passed)
	assert.Equal(t, 1, rec.count("run:fine"))
}

func TestRunFile_Idempotent(t *testing.T) {
	r := quietRunner(t, nil)
	path := writeTestFile(t, `
test_name: repeatable
stages:
  - name: stage
    fake: {}
`)

	first, err := r.RunFile(path)
	require.NoError(t, err)
	second, err := r.RunFile(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRunFile_MissingFile(t *testing.T) {
	r := quietRunner(t, nil)
	_, err := r.RunFile(filepath.Join(t.TempDir(), "missing.tavern.yaml"))
	require.Error(t, err)
}
