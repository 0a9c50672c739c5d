package sqldb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mariocesar/tavern/packages/core/config"
	"github.com/mariocesar/tavern/packages/core/document"
	"github.com/mariocesar/tavern/packages/core/env"
	"github.com/mariocesar/tavern/packages/plugin"
)

// SessionName is the key of the shared database handle in the session
// registry.
const SessionName = "sql"

const (
	queryBlock    = "sql_query"
	responseBlock = "sql_response"
)

// Plugin is the SQL protocol implementation.
type Plugin struct{}

func init() { plugin.Register(&Plugin{}) }

func (p *Plugin) Name() string { return "sql" }

func (p *Plugin) Matches(stage *document.Stage) bool { return stage.HasBlock(queryBlock) }

func (p *Plugin) SessionSpecs(doc *document.Document, cfg *config.Config) []plugin.SessionSpec {
	used := false
	for _, stage := range doc.Stages {
		if stage.HasBlock(queryBlock) {
			used = true
			break
		}
	}
	if !used {
		return nil
	}
	url := cfg.Settings.DatabaseURL
	return []plugin.SessionSpec{{
		Name: SessionName,
		Open: func() (plugin.Session, error) {
			db, err := open(url)
			if err != nil {
				return nil, err
			}
			return &session{db: db}, nil
		},
	}}
}

type session struct {
	db *sql.DB
}

func (s *session) Close() error { return s.db.Close() }

type querySpec struct {
	Query string `yaml:"query"`
	Args  []any  `yaml:"args"`
}

type responseSpec struct {
	RowCount *int              `yaml:"row_count"`
	FirstRow map[string]any    `yaml:"first_row"`
	Save     map[string]string `yaml:"save"`
}

func (p *Plugin) NewRequest(stage *document.Stage, res *env.Resolver, sessions map[string]plugin.Session) (plugin.Request, error) {
	sess, ok := sessions[SessionName].(*session)
	if !ok {
		return nil, fmt.Errorf("no %q session available", SessionName)
	}

	var spec querySpec
	if _, err := stage.DecodeBlock(queryBlock, &spec); err != nil {
		return nil, err
	}
	if strings.TrimSpace(spec.Query) == "" {
		return nil, fmt.Errorf("stage %q: sql_query needs a query", stage.Name)
	}

	query, err := res.Format(spec.Query)
	if err != nil {
		return nil, err
	}
	args := make([]any, len(spec.Args))
	for i, arg := range spec.Args {
		if args[i], err = res.FormatAny(arg); err != nil {
			return nil, err
		}
	}
	return &request{db: sess.db, query: query, args: args}, nil
}

func (p *Plugin) NewExpected(stage *document.Stage, res *env.Resolver, _ map[string]plugin.Session) (any, error) {
	var spec responseSpec
	ok, err := stage.DecodeBlock(responseBlock, &spec)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &responseSpec{}, nil
	}
	if spec.FirstRow != nil {
		resolved, err := res.FormatAny(spec.FirstRow)
		if err != nil {
			return nil, err
		}
		spec.FirstRow = resolved.(map[string]any)
	}
	return &spec, nil
}

type request struct {
	db    *sql.DB
	query string
	args  []any
}

func (r *request) RequestVars() map[string]any {
	vars := map[string]any{"query": r.query}
	if len(r.args) > 0 {
		vars["args"] = r.args
	}
	return vars
}

func (r *request) Run() (plugin.Response, error) {
	columns, rows, err := queryRows(r.db, r.query, r.args...)
	if err != nil {
		return nil, err
	}
	return &Response{Columns: columns, Rows: rows}, nil
}

func (r *request) Describe() string {
	out := "SQL " + r.query
	if len(r.args) > 0 {
		out += fmt.Sprintf("\nargs: %v", r.args)
	}
	return out
}

// Response carries the materialized rows for one query.
type Response struct {
	Columns []string
	Rows    []map[string]any
}

func (r *Response) Describe() string {
	out := fmt.Sprintf("%d row(s)", len(r.Rows))
	for _, row := range r.Rows {
		b, err := json.Marshal(row)
		if err != nil {
			out += fmt.Sprintf("\n%v", row)
			continue
		}
		out += "\n" + string(b)
	}
	return out
}
