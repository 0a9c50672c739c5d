package runner

import (
	"fmt"
	"strings"
)

// DispatchError means a stage's request or expected values could not be
// resolved, e.g. a template referenced an undefined variable or no
// plugin recognised the stage. It aborts the current test.
type DispatchError struct {
	Stage string
	Err   error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("stage %q: dispatch failed: %v", e.Stage, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// RequestError is a transport-level failure while issuing a request. It
// aborts the current test.
type RequestError struct {
	Stage string
	Err   error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("stage %q: request failed: %v", e.Stage, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// VerificationError is the primary diagnostic artifact: the first
// verifier that reported errors, together with everything needed to
// reproduce the failure — the stage's canonical YAML, the formatted
// request and response, and the verifier's error strings.
type VerificationError struct {
	TestName     string
	File         string
	Stage        string
	Verifier     string
	StageText    string
	RequestDump  string
	ResponseDump string
	Errors       []string
}

func (e *VerificationError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Test %q\nfile: %s\n\n", e.TestName, e.File)
	fmt.Fprintf(&sb, "failed:\n- %s\n\n", strings.Join(e.Errors, "\n- "))
	fmt.Fprintf(&sb, "stage:\n%s\n", strings.TrimRight(e.StageText, "\n"))
	fmt.Fprintf(&sb, "request:\n%s\n\n", indent(e.RequestDump))
	fmt.Fprintf(&sb, "response:\n%s\n", indent(e.ResponseDump))
	return sb.String()
}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = "  " + line
	}
	return strings.Join(lines, "\n")
}
