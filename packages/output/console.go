package output

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/mariocesar/tavern/packages/core/document"
	"github.com/mariocesar/tavern/packages/plugin"
)

// Printer writes stage events for console reporting.
type Printer struct {
	writer  io.Writer
	quiet   bool
	noColor bool
}

type Option func(*Printer)

func NewPrinter(opts ...Option) *Printer {
	p := &Printer{writer: os.Stdout}
	for _, opt := range opts {
		opt(p)
	}
	if p.noColor {
		color.NoColor = true
	}
	return p
}

func WithWriter(w io.Writer) Option {
	return func(p *Printer) { p.writer = w }
}

// WithQuiet suppresses everything except failures.
func WithQuiet(q bool) Option {
	return func(p *Printer) { p.quiet = q }
}

func WithNoColor(nc bool) Option {
	return func(p *Printer) { p.noColor = nc }
}

// TestStart announces a test document.
func (p *Printer) TestStart(name string) {
	if p.quiet {
		return
	}
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(p.writer, "\n%s\n", bold(name))
}

// Pass reports a stage whose verifiers all passed.
func (p *Printer) Pass(stage *document.Stage, verifiers []plugin.Verifier) {
	if p.quiet {
		return
	}
	green := color.New(color.FgGreen).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	names := make([]string, len(verifiers))
	for i, v := range verifiers {
		names[i] = v.Name()
	}
	fmt.Fprintf(p.writer, "  %s %s %s\n", green("✓"), stage.Name, cyan(fmt.Sprintf("%v", names)))
}

// Fail reports a failed stage. verifier is empty for dispatch and
// request failures, where no verifier ever ran; expected is nil when the
// failure happened before the expected values were resolved.
func (p *Printer) Fail(stage *document.Stage, verifier string, expected any) {
	red := color.New(color.FgRed).SprintFunc()
	fmt.Fprintf(p.writer, "  %s %s", red("✗"), stage.Name)
	if verifier != "" {
		fmt.Fprintf(p.writer, " %s", red(fmt.Sprintf("(%s)", verifier)))
	}
	fmt.Fprintf(p.writer, "\n")
	if expected != nil {
		fmt.Fprintf(p.writer, "    expected: %s\n", formatValue(expected, 200))
	}
}

// Warn reports a non-fatal oddity such as an empty document.
func (p *Printer) Warn(format string, args ...any) {
	yellow := color.New(color.FgYellow).SprintFunc()
	fmt.Fprintf(p.writer, "  %s %s\n", yellow("!"), fmt.Sprintf(format, args...))
}

// FileSummary reports the aggregate for one file.
func (p *Printer) FileSummary(file string, passed, failed int) {
	if p.quiet && failed == 0 {
		return
	}
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	fmt.Fprintf(p.writer, "\n%s: ", file)
	if failed == 0 {
		fmt.Fprintf(p.writer, "%s\n", green(fmt.Sprintf("%d passed", passed)))
		return
	}
	fmt.Fprintf(p.writer, "%s, %s\n", green(fmt.Sprintf("%d passed", passed)), red(fmt.Sprintf("%d failed", failed)))
}

// Error reports a failure bundle or file-level error.
func (p *Printer) Error(err error) {
	red := color.New(color.FgRed).SprintFunc()
	fmt.Fprintf(p.writer, "%s %v\n", red("Error:"), err)
}

// formatValue renders a value for display, summarizing large containers.
func formatValue(v any, maxLen int) string {
	switch val := v.(type) {
	case []any:
		return fmt.Sprintf("[array with %d items]", len(val))
	case map[string]any:
		return fmt.Sprintf("{object with %d keys}", len(val))
	}
	str := fmt.Sprintf("%+v", v)
	if len(str) > maxLen {
		return str[:maxLen] + "..."
	}
	return str
}
