package document

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is one parsed test: a named, ordered sequence of stages plus
// include fragments. It is read-only once parsed.
type Document struct {
	TestName string     `yaml:"test_name"`
	Includes []*Include `yaml:"includes,omitempty"`
	Stages   []*Stage   `yaml:"stages"`
}

// Include is a fragment contributing variables to the test's environment.
type Include struct {
	Name        string         `yaml:"name,omitempty"`
	Description string         `yaml:"description,omitempty"`
	Variables   map[string]any `yaml:"variables,omitempty"`
}

// Stage is one request/verify step. The Blocks map holds every key the
// core does not interpret itself, e.g. the "request"/"response" pair of
// the HTTP plugin. Which plugin handles a stage is decided by which block
// keys are present.
type Stage struct {
	Name        string         `yaml:"name"`
	DelayBefore float64        `yaml:"delay_before,omitempty"`
	DelayAfter  float64        `yaml:"delay_after,omitempty"`
	Blocks      map[string]any `yaml:",inline"`
}

// YAML returns the stage rendered back as a single-element YAML list,
// indented two spaces. This is the canonical stage text used in failure
// diagnostics.
func (s *Stage) YAML() string {
	b, err := yaml.Marshal([]*Stage{s})
	if err != nil {
		return fmt.Sprintf("  <unprintable stage %q: %v>", s.Name, err)
	}
	var sb strings.Builder
	for _, line := range strings.Split(strings.TrimRight(string(b), "\n"), "\n") {
		sb.WriteString("  ")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}

// DecodeBlock decodes the named stage block into out. Returns false when
// the stage has no such block.
func (s *Stage) DecodeBlock(name string, out any) (bool, error) {
	block, ok := s.Blocks[name]
	if !ok {
		return false, nil
	}
	b, err := yaml.Marshal(block)
	if err != nil {
		return true, fmt.Errorf("encoding %q block of stage %q: %w", name, s.Name, err)
	}
	if err := yaml.Unmarshal(b, out); err != nil {
		return true, fmt.Errorf("decoding %q block of stage %q: %w", name, s.Name, err)
	}
	return true, nil
}

// HasBlock reports whether the stage carries the named block.
func (s *Stage) HasBlock(name string) bool {
	_, ok := s.Blocks[name]
	return ok
}
