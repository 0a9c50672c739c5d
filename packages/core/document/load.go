package document

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Raw is one YAML document of a test file before schema validation. A nil
// *Raw marks a null or empty document; the file runner skips those with a
// warning.
type Raw struct {
	node yaml.Node
}

// maxIncludeDepth bounds !include nesting so include cycles fail instead
// of recursing forever.
const maxIncludeDepth = 10

// Load reads every YAML document from r. Relative !include paths are
// resolved against baseDir.
func Load(r io.Reader, baseDir string) ([]*Raw, error) {
	dec := yaml.NewDecoder(r)
	var docs []*Raw
	for {
		var node yaml.Node
		err := dec.Decode(&node)
		if errors.Is(err, io.EOF) {
			return docs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decoding document %d: %w", len(docs)+1, err)
		}
		if isEmptyDocument(&node) {
			docs = append(docs, nil)
			continue
		}
		if err := resolveIncludes(&node, baseDir, 0); err != nil {
			return nil, fmt.Errorf("document %d: %w", len(docs)+1, err)
		}
		docs = append(docs, &Raw{node: node})
	}
}

// LoadFile is Load on the named file, resolving includes against the
// file's directory.
func LoadFile(path string) ([]*Raw, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	docs, err := Load(f, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return docs, nil
}

// Interface returns the document as plain decoded Go values, the shape
// the schema validator consumes.
func (r *Raw) Interface() (any, error) {
	var v any
	if err := r.node.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// Decode converts the raw document into a Document.
func (r *Raw) Decode() (*Document, error) {
	var doc Document
	if err := r.node.Decode(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func isEmptyDocument(n *yaml.Node) bool {
	if n.Kind == 0 {
		return true
	}
	if n.Kind == yaml.DocumentNode {
		if len(n.Content) == 0 {
			return true
		}
		return isEmptyDocument(n.Content[0])
	}
	return n.Kind == yaml.ScalarNode && n.Tag == "!!null"
}

// resolveIncludes replaces every !include scalar with the content of the
// referenced YAML file, recursively.
func resolveIncludes(n *yaml.Node, baseDir string, depth int) error {
	if depth > maxIncludeDepth {
		return fmt.Errorf("include nesting deeper than %d, likely a cycle", maxIncludeDepth)
	}
	if n.Kind == yaml.ScalarNode && n.Tag == "!include" {
		path := n.Value
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("resolving include: %w", err)
		}
		var included yaml.Node
		if err := yaml.Unmarshal(data, &included); err != nil {
			return fmt.Errorf("parsing include %s: %w", path, err)
		}
		if isEmptyDocument(&included) {
			return fmt.Errorf("include %s is empty", path)
		}
		content := included.Content[0]
		if err := resolveIncludes(content, filepath.Dir(path), depth+1); err != nil {
			return err
		}
		*n = *content
		return nil
	}
	for _, child := range n.Content {
		if err := resolveIncludes(child, baseDir, depth); err != nil {
			return err
		}
	}
	return nil
}
