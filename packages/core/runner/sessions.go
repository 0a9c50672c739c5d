package runner

import (
	"fmt"
	"log/slog"

	"github.com/mariocesar/tavern/packages/core/config"
	"github.com/mariocesar/tavern/packages/core/document"
	"github.com/mariocesar/tavern/packages/plugin"
)

// SessionRegistry holds the named resources acquired for one test. It is
// populated once before the stage loop and guaranteed drained when the
// test ends, however it ends.
type SessionRegistry struct {
	logger   *slog.Logger
	sessions map[string]plugin.Session
}

func NewSessionRegistry(logger *slog.Logger) *SessionRegistry {
	return &SessionRegistry{
		logger:   logger,
		sessions: make(map[string]plugin.Session),
	}
}

// Open acquires every session the document needs, asking each registered
// plugin in turn. If acquiring session N fails, sessions 1..N-1 are
// released before the error is returned.
func (s *SessionRegistry) Open(doc *document.Document, cfg *config.Config) error {
	for _, p := range plugin.All() {
		for _, spec := range p.SessionSpecs(doc, cfg) {
			if _, dup := s.sessions[spec.Name]; dup {
				s.CloseAll()
				return fmt.Errorf("duplicate session name %q", spec.Name)
			}
			s.logger.Debug("opening session", "session", spec.Name, "plugin", p.Name())
			sess, err := spec.Open()
			if err != nil {
				s.CloseAll()
				return fmt.Errorf("opening session %q: %w", spec.Name, err)
			}
			s.sessions[spec.Name] = sess
		}
	}
	return nil
}

// Get returns one session by name.
func (s *SessionRegistry) Get(name string) (plugin.Session, bool) {
	sess, ok := s.sessions[name]
	return sess, ok
}

// All exposes the live sessions to the plugin dispatchers.
func (s *SessionRegistry) All() map[string]plugin.Session {
	return s.sessions
}

// CloseAll releases every acquired session exactly once. A failing close
// is logged and does not mask the test's outcome.
func (s *SessionRegistry) CloseAll() {
	for name, sess := range s.sessions {
		if err := sess.Close(); err != nil {
			s.logger.Warn("closing session", "session", name, "error", err)
		}
		delete(s.sessions, name)
	}
}
