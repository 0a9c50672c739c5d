package runner

import (
	"log/slog"
	"time"

	"github.com/mariocesar/tavern/packages/core/config"
	"github.com/mariocesar/tavern/packages/core/document"
	"github.com/mariocesar/tavern/packages/core/env"
	"github.com/mariocesar/tavern/packages/core/schema"
	"github.com/mariocesar/tavern/packages/output"
)

// Runner drives test documents against one global configuration.
type Runner struct {
	cfg     *config.Config
	printer *output.Printer
	logger  *slog.Logger
	sleep   func(time.Duration)
}

type Option func(*Runner)

func New(cfg *config.Config, opts ...Option) *Runner {
	if cfg == nil {
		cfg = config.New()
	}
	r := &Runner{
		cfg:     cfg,
		printer: output.NewPrinter(),
		logger:  slog.Default(),
		sleep:   time.Sleep,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func WithPrinter(p *output.Printer) Option {
	return func(r *Runner) { r.printer = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithSleep replaces the blocking wait used for delay directives.
func WithSleep(fn func(time.Duration)) Option {
	return func(r *Runner) { r.sleep = fn }
}

// RunFile runs every test document in one file. It returns true iff
// every document passed; a schema-invalid or failed document is recorded
// and the loop continues with the next one. The error return is reserved
// for file-level problems (unreadable file, broken YAML).
func (r *Runner) RunFile(path string) (bool, error) {
	docs, err := document.LoadFile(path)
	if err != nil {
		return false, err
	}

	passed := true
	passedCount, failedCount := 0, 0

	for i, raw := range docs {
		if raw == nil {
			r.logger.Warn("empty document in input file", "file", path, "document", i+1)
			r.printer.Warn("empty document %d in %s", i+1, path)
			continue
		}

		data, err := raw.Interface()
		if err == nil {
			err = schema.Validate(data)
		}
		if err != nil {
			r.logger.Error("invalid test document", "file", path, "document", i+1, "error", err)
			r.printer.Error(err)
			passed = false
			failedCount++
			continue
		}

		doc, err := raw.Decode()
		if err == nil {
			err = r.RunTest(path, doc)
		}
		if err != nil {
			r.printer.Error(err)
			passed = false
			failedCount++
			continue
		}
		passedCount++
	}

	r.printer.FileSummary(path, passedCount, failedCount)
	return passed, nil
}

// RunTest runs all stages of one document as a single logical test. The
// shared global configuration is copied, never mutated. Any error
// returned is a dispatch, request or verification failure from the stage
// loop (or a failed include check or session acquisition) and means the
// test failed; session cleanup has already happened by then.
func (r *Runner) RunTest(file string, doc *document.Document) error {
	cfg := r.cfg.Copy()

	environment := env.New(cfg.Variables)
	environment.InstallEnvVars()

	for _, inc := range doc.Includes {
		if len(inc.Variables) == 0 {
			continue
		}
		if err := env.CheckEnvVars(inc.Variables); err != nil {
			return err
		}
		environment.Merge(inc.Variables)
	}

	if len(doc.Stages) == 0 {
		r.logger.Warn("test has no stages", "test", doc.TestName, "file", file)
		r.printer.Warn("test %q has no stages", doc.TestName)
		return nil
	}

	r.logger.Info("running test", "test", doc.TestName, "file", file)
	r.printer.TestStart(doc.TestName)

	sessions := NewSessionRegistry(r.logger)
	if err := sessions.Open(doc, cfg); err != nil {
		return err
	}
	defer sessions.CloseAll()

	s := &stageRunner{
		testName: doc.TestName,
		file:     file,
		env:      environment,
		resolver: env.NewResolver(environment),
		sessions: sessions,
		printer:  r.printer,
		logger:   r.logger,
		sleep:    r.sleep,
	}

	for _, stage := range doc.Stages {
		if err := s.run(stage); err != nil {
			return err
		}
	}
	return nil
}
