package workflow

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/jonathan/feedback-reviews/internal/schemas"
	"gopkg.in/yaml.v3"
)

//go:embed transitions.yaml
var defaultTransitions []byte

//go:embed transitions.schema.json
var transitionsSchema string

type graphFile struct {
	Assignment []EdgeSpec `yaml:"assignment"`
	Review     []EdgeSpec `yaml:"review"`
}

// DefaultGraphs returns the graphs compiled into the binary.
func DefaultGraphs() (*Graphs, error) {
	return ParseGraphs("(embedded)", defaultTransitions)
}

// LoadGraphsFile reads and validates a YAML transition file.
func LoadGraphsFile(path string) (*Graphs, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read transition file %s: %w", path, err)
	}
	return ParseGraphs(path, data)
}

// ParseGraphs validates YAML transition data against the embedded JSON
// Schema and builds the typed graphs.
func ParseGraphs(source string, data []byte) (*Graphs, error) {
	if err := schemas.ValidateYAML(source, transitionsSchema, data); err != nil {
		return nil, err
	}

	var file graphFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to decode transition file %s: %w", source, err)
	}
	return BuildGraphs(file.Assignment, file.Review)
}
