package natsmq

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/mariocesar/tavern/packages/core/config"
	"github.com/mariocesar/tavern/packages/core/document"
	"github.com/mariocesar/tavern/packages/core/env"
	"github.com/mariocesar/tavern/packages/plugin"
)

// SessionName is the key of the shared NATS connection in the session
// registry.
const SessionName = "nats"

const (
	publishBlock  = "nats_publish"
	responseBlock = "nats_response"
)

// defaultReplyTimeout bounds the wait for a reply when the stage does
// not set one.
const defaultReplyTimeout = time.Second

// Plugin is the NATS protocol implementation.
type Plugin struct{}

func init() { plugin.Register(&Plugin{}) }

func (p *Plugin) Name() string { return "nats" }

func (p *Plugin) Matches(stage *document.Stage) bool { return stage.HasBlock(publishBlock) }

func (p *Plugin) SessionSpecs(doc *document.Document, cfg *config.Config) []plugin.SessionSpec {
	used := false
	for _, stage := range doc.Stages {
		if stage.HasBlock(publishBlock) {
			used = true
			break
		}
	}
	if !used {
		return nil
	}
	url := cfg.Settings.NATSURL
	return []plugin.SessionSpec{{
		Name: SessionName,
		Open: func() (plugin.Session, error) {
			if url == "" {
				return nil, fmt.Errorf("nats_url is not configured")
			}
			conn, err := nats.Connect(url, nats.Name("tavern"))
			if err != nil {
				return nil, fmt.Errorf("connect to %s: %w", url, err)
			}
			return &session{conn: conn}, nil
		},
	}}
}

type session struct {
	conn *nats.Conn
}

func (s *session) Close() error {
	if err := s.conn.Drain(); err != nil {
		s.conn.Close()
		return err
	}
	return nil
}

type publishSpec struct {
	Subject string            `yaml:"subject"`
	Payload string            `yaml:"payload"`
	JSON    any               `yaml:"json"`
	Headers map[string]string `yaml:"headers"`
}

type responseSpec struct {
	Subject string            `yaml:"subject"`
	Payload string            `yaml:"payload"`
	JSON    any               `yaml:"json"`
	Timeout float64           `yaml:"timeout"`
	Save    map[string]string `yaml:"save"`
}

func (p *Plugin) NewRequest(stage *document.Stage, res *env.Resolver, sessions map[string]plugin.Session) (plugin.Request, error) {
	sess, ok := sessions[SessionName].(*session)
	if !ok {
		return nil, fmt.Errorf("no %q session available", SessionName)
	}

	var spec publishSpec
	if _, err := stage.DecodeBlock(publishBlock, &spec); err != nil {
		return nil, err
	}
	if spec.Subject == "" {
		return nil, fmt.Errorf("stage %q: nats_publish needs a subject", stage.Name)
	}
	if spec.Payload != "" && spec.JSON != nil {
		return nil, fmt.Errorf("stage %q: nats_publish cannot carry both payload and json", stage.Name)
	}

	var err error
	if spec.Subject, err = res.Format(spec.Subject); err != nil {
		return nil, err
	}
	if spec.Payload, err = res.Format(spec.Payload); err != nil {
		return nil, err
	}
	if spec.Headers, err = res.FormatStrings(spec.Headers); err != nil {
		return nil, err
	}
	if spec.JSON != nil {
		if spec.JSON, err = res.FormatAny(spec.JSON); err != nil {
			return nil, err
		}
	}

	payload := []byte(spec.Payload)
	if spec.JSON != nil {
		if payload, err = json.Marshal(spec.JSON); err != nil {
			return nil, fmt.Errorf("stage %q: encode json payload: %w", stage.Name, err)
		}
	}

	// The reply subject must be resolved before the publish happens so
	// the subscription is in place first.
	var reply responseSpec
	hasReply, err := stage.DecodeBlock(responseBlock, &reply)
	if err != nil {
		return nil, err
	}
	if hasReply {
		if reply.Subject == "" {
			return nil, fmt.Errorf("stage %q: nats_response needs a subject", stage.Name)
		}
		if reply.Subject, err = res.Format(reply.Subject); err != nil {
			return nil, err
		}
	}

	req := &request{
		conn:    sess.conn,
		subject: spec.Subject,
		headers: spec.Headers,
		payload: payload,
		timeout: defaultReplyTimeout,
	}
	if hasReply {
		req.replySubject = reply.Subject
		if reply.Timeout > 0 {
			req.timeout = time.Duration(reply.Timeout * float64(time.Second))
		}
	}
	return req, nil
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

	if spec.Subject, err = res.Format(spec.Subject); err != nil {
		return nil, err
	}
	if spec.Payload, err = res.Format(spec.Payload); err != nil {
		return nil, err
	}
	if spec.JSON != nil {
		if spec.JSON, err = res.FormatAny(spec.JSON); err != nil {
			return nil, err
		}
	}
	return &spec, nil
}

// request is one resolved publish, with the reply subscription it needs
// to install before publishing.
type request struct {
	conn         *nats.Conn
	subject      string
	headers      map[string]string
	payload      []byte
	replySubject string
	timeout      time.Duration
}

func (r *request) RequestVars() map[string]any {
	vars := map[string]any{
		"subject": r.subject,
		"payload": string(r.payload),
	}
	if len(r.headers) > 0 {
		vars["headers"] = r.headers
	}
	return vars
}

func (r *request) Run() (plugin.Response, error) {
	var sub *nats.Subscription
	if r.replySubject != "" {
		var err error
		if sub, err = r.conn.SubscribeSync(r.replySubject); err != nil {
			return nil, fmt.Errorf("subscribe %s: %w", r.replySubject, err)
		}
		defer func() { _ = sub.Unsubscribe() }()
	}

	msg := nats.NewMsg(r.subject)
	msg.Data = r.payload
	for k, v := range r.headers {
		msg.Header.Set(k, v)
	}
	if err := r.conn.PublishMsg(msg); err != nil {
		return nil, fmt.Errorf("publish %s: %w", r.subject, err)
	}
	if err := r.conn.Flush(); err != nil {
		return nil, fmt.Errorf("flush: %w", err)
	}

	resp := &Response{Published: true}
	if sub == nil {
		return resp, nil
	}

	got, err := sub.NextMsg(r.timeout)
	if err == nats.ErrTimeout {
		resp.TimedOut = true
		return resp, nil
	}
	if err != nil {
		return nil, fmt.Errorf("await reply on %s: %w", r.replySubject, err)
	}
	resp.Received = true
	resp.Subject = got.Subject
	resp.Data = got.Data
	return resp, nil
}

func (r *request) Describe() string {
	out := fmt.Sprintf("PUB %s", r.subject)
	keys := make([]string, 0, len(r.headers))
	for k := range r.headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out += fmt.Sprintf("\n%s: %s", k, r.headers[k])
	}
	if len(r.payload) > 0 {
		out += "\n\n" + string(r.payload)
	}
	return out
}
