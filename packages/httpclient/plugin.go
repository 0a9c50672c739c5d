package httpclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/mariocesar/tavern/packages/core/config"
	"github.com/mariocesar/tavern/packages/core/document"
	"github.com/mariocesar/tavern/packages/core/env"
	"github.com/mariocesar/tavern/packages/plugin"
)

// SessionName is the key of the shared HTTP client in the session
// registry.
const SessionName = "http"

// requestBlock and responseBlock are the stage keys this plugin owns.
const (
	requestBlock  = "request"
	responseBlock = "response"
)

// Plugin is the HTTP protocol implementation.
type Plugin struct{}

func init() { plugin.Register(&Plugin{}) }

func (p *Plugin) Name() string { return "http" }

func (p *Plugin) Matches(stage *document.Stage) bool { return stage.HasBlock(requestBlock) }

func (p *Plugin) SessionSpecs(doc *document.Document, cfg *config.Config) []plugin.SessionSpec {
	used := false
	for _, stage := range doc.Stages {
		if stage.HasBlock(requestBlock) {
			used = true
			break
		}
	}
	if !used {
		return nil
	}
	settings := cfg.Settings
	return []plugin.SessionSpec{{
		Name: SessionName,
		Open: func() (plugin.Session, error) {
			opts := []ClientOption{
				WithFollowRedirects(settings.GetFollowRedirects()),
				WithInsecureSkipVerify(settings.InsecureSkipTLS),
				WithRateLimit(settings.RateLimit),
				WithDefaultHeaders(settings.Headers),
			}
			if settings.RequestTimeout() > 0 {
				opts = append(opts, WithTimeout(settings.RequestTimeout()))
			}
			return &session{client: NewClient(opts...)}, nil
		},
	}}
}

// session holds the per-test client; the cookie jar inside it is what
// actually spans stages.
type session struct {
	client *Client
}

func (s *session) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

type requestSpec struct {
	URL     string            `yaml:"url"`
	Method  string            `yaml:"method"`
	Headers map[string]string `yaml:"headers"`
	Params  map[string]string `yaml:"params"`
	JSON    any               `yaml:"json"`
	Data    map[string]string `yaml:"data"`
	Auth    []string          `yaml:"auth"`
}

type saveSpec struct {
	Body    map[string]string `yaml:"body"`
	Headers map[string]string `yaml:"headers"`
}

type expectedResponse struct {
	StatusCode int               `yaml:"status_code"`
	Headers    map[string]string `yaml:"headers"`
	JSON       any               `yaml:"json"`
	Save       saveSpec          `yaml:"save"`
}

func (p *Plugin) NewRequest(stage *document.Stage, res *env.Resolver, sessions map[string]plugin.Session) (plugin.Request, error) {
	sess, ok := sessions[SessionName].(*session)
	if !ok {
		return nil, fmt.Errorf("no %q session available", SessionName)
	}

	var spec requestSpec
	if _, err := stage.DecodeBlock(requestBlock, &spec); err != nil {
		return nil, err
	}
	if spec.URL == "" {
		return nil, fmt.Errorf("stage %q: request needs a url", stage.Name)
	}
	if spec.JSON != nil && len(spec.Data) > 0 {
		return nil, fmt.Errorf("stage %q: request cannot carry both json and data", stage.Name)
	}

	var err error
	if spec.URL, err = res.Format(spec.URL); err != nil {
		return nil, err
	}
	if spec.Method, err = res.Format(spec.Method); err != nil {
		return nil, err
	}
	if spec.Method == "" {
		spec.Method = http.MethodGet
	}
	spec.Method = strings.ToUpper(spec.Method)
	if spec.Headers, err = res.FormatStrings(spec.Headers); err != nil {
		return nil, err
	}
	if spec.Params, err = res.FormatStrings(spec.Params); err != nil {
		return nil, err
	}
	if spec.Data, err = res.FormatStrings(spec.Data); err != nil {
		return nil, err
	}
	if spec.JSON != nil {
		if spec.JSON, err = res.FormatAny(spec.JSON); err != nil {
			return nil, err
		}
	}
	auth := make([]string, len(spec.Auth))
	for i, a := range spec.Auth {
		if auth[i], err = res.Format(a); err != nil {
			return nil, err
		}
	}
	spec.Auth = auth

	return newRequest(sess.client, &spec)
}

func (p *Plugin) NewExpected(stage *document.Stage, res *env.Resolver, _ map[string]plugin.Session) (any, error) {
	expected := &expectedResponse{StatusCode: http.StatusOK}
	if _, err := stage.DecodeBlock(responseBlock, expected); err != nil {
		return nil, err
	}
	if expected.StatusCode == 0 {
		expected.StatusCode = http.StatusOK
	}

	var err error
	if expected.Headers, err = res.FormatStrings(expected.Headers); err != nil {
		return nil, err
	}
	if expected.JSON != nil {
		if expected.JSON, err = res.FormatAny(expected.JSON); err != nil {
			return nil, err
		}
	}
	return expected, nil
}

// request is one resolved, ready-to-run HTTP request.
type request struct {
	client  *Client
	method  string
	url     string
	headers map[string]string
	body    []byte
	auth    []string
	vars    map[string]any
}

func newRequest(client *Client, spec *requestSpec) (*request, error) {
	fullURL := spec.URL
	if len(spec.Params) > 0 {
		u, err := url.Parse(spec.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing url %q: %w", spec.URL, err)
		}
		q := u.Query()
		for k, v := range spec.Params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
		fullURL = u.String()
	}

	headers := make(map[string]string, len(spec.Headers))
	for k, v := range spec.Headers {
		headers[k] = v
	}

	var body []byte
	switch {
	case spec.JSON != nil:
		b, err := json.Marshal(spec.JSON)
		if err != nil {
			return nil, fmt.Errorf("encoding json body: %w", err)
		}
		body = b
		if _, set := headers["Content-Type"]; !set {
			headers["Content-Type"] = "application/json"
		}
	case len(spec.Data) > 0:
		form := url.Values{}
		for k, v := range spec.Data {
			form.Set(k, v)
		}
		body = []byte(form.Encode())
		if _, set := headers["Content-Type"]; !set {
			headers["Content-Type"] = "application/x-www-form-urlencoded"
		}
	}

	vars := map[string]any{
		"method":  spec.Method,
		"url":     fullURL,
		"headers": headers,
	}
	if spec.JSON != nil {
		vars["json"] = spec.JSON
	}
	if len(spec.Params) > 0 {
		vars["params"] = spec.Params
	}

	return &request{
		client:  client,
		method:  spec.Method,
		url:     fullURL,
		headers: headers,
		body:    body,
		auth:    spec.Auth,
		vars:    vars,
	}, nil
}

func (r *request) RequestVars() map[string]any { return r.vars }

func (r *request) Run() (plugin.Response, error) {
	var body io.Reader
	if len(r.body) > 0 {
		body = bytes.NewReader(r.body)
	}
	httpReq, err := http.NewRequest(r.method, r.url, body)
	if err != nil {
		return nil, err
	}
	for k, v := range r.headers {
		httpReq.Header.Set(k, v)
	}
	if len(r.auth) == 2 {
		httpReq.SetBasicAuth(r.auth[0], r.auth[1])
	}
	return r.client.Do(httpReq)
}

func (r *request) Describe() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s\n", r.method, r.url)
	sb.WriteString(formatHeaders(r.headers))
	if len(r.body) > 0 {
		fmt.Fprintf(&sb, "\n%s", r.body)
	}
	return sb.String()
}
