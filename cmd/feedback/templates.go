package main

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/jonathan/feedback-reviews/internal/schemas"
	"github.com/jonathan/feedback-reviews/internal/workflow"
	"gopkg.in/yaml.v3"
)

//go:embed templates.schema.json
var templatesSchema string

type templateFile struct {
	Templates []templateSpec `yaml:"templates"`
}

type templateSpec struct {
	ID           string         `yaml:"id"`
	Name         string         `yaml:"name"`
	DisplayName  string         `yaml:"display_name"`
	EmailSubject string         `yaml:"email_subject"`
	Questions    []questionSpec `yaml:"questions"`
}

type questionSpec struct {
	ID       string `yaml:"id"`
	Type     string `yaml:"type"`
	Prompt   string `yaml:"prompt"`
	Required bool   `yaml:"required"`
}

var questionTypes = map[workflow.QuestionType]bool{
	workflow.QuestionRating:         true,
	workflow.QuestionExtendedRating: true,
	workflow.QuestionStandardAnswer: true,
	workflow.QuestionDiscussion:     true,
}

// defaultTemplate is seeded into the memory store when no file is given.
func defaultTemplate() workflow.Template {
	return workflow.Template{
		ID:           uuid.MustParse("6f1c1f0e-6d0b-4f3e-9a59-0c8d8b7f2a10"),
		Name:         "peer",
		DisplayName:  "Peer review",
		EmailSubject: "Your feedback is requested",
		Questions: []workflow.Question{
			{ID: "Q1", Type: workflow.QuestionRating, Prompt: "How effective is this person in their role?", Required: true},
			{ID: "Q2", Type: workflow.QuestionStandardAnswer, Prompt: "What should they keep doing?", Required: true},
			{ID: "Q3", Type: workflow.QuestionDiscussion, Prompt: "What could they do differently?", Required: true},
			{ID: "Q4", Type: workflow.QuestionDiscussion, Prompt: "Anything else?"},
		},
	}
}

func loadTemplates(path string) ([]workflow.Template, error) {
	if path == "" {
		return []workflow.Template{defaultTemplate()}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read templates %s: %w", path, err)
	}
	return parseTemplates(data)
}

// parseTemplates decodes a templates file. Templates without an id get a
// fresh one.
func parseTemplates(data []byte) ([]workflow.Template, error) {
	if err := schemas.ValidateYAML("templates file", templatesSchema, data); err != nil {
		return nil, err
	}

	var f templateFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	if len(f.Templates) == 0 {
		return nil, fmt.Errorf("templates file defines no templates")
	}

	out := make([]workflow.Template, 0, len(f.Templates))
	names := map[string]bool{}
	for i, spec := range f.Templates {
		if spec.Name == "" {
			return nil, fmt.Errorf("template %d: name is required", i)
		}
		if names[spec.Name] {
			return nil, fmt.Errorf("template %s: defined twice", spec.Name)
		}
		names[spec.Name] = true

		t := workflow.Template{
			ID:           uuid.New(),
			Name:         spec.Name,
			DisplayName:  spec.DisplayName,
			EmailSubject: spec.EmailSubject,
		}
		if spec.ID != "" {
			id, err := uuid.Parse(spec.ID)
			if err != nil {
				return nil, fmt.Errorf("template %s: invalid id: %w", spec.Name, err)
			}
			t.ID = id
		}

		seen := map[string]bool{}
		for _, q := range spec.Questions {
			if q.ID == "" {
				return nil, fmt.Errorf("template %s: question without id", spec.Name)
			}
			if seen[q.ID] {
				return nil, fmt.Errorf("template %s: duplicate question %s", spec.Name, q.ID)
			}
			seen[q.ID] = true
			qt := workflow.QuestionType(q.Type)
			if !questionTypes[qt] {
				return nil, fmt.Errorf("template %s: question %s has unknown type %q", spec.Name, q.ID, q.Type)
			}
			t.Questions = append(t.Questions, workflow.Question{ID: q.ID, Type: qt, Prompt: q.Prompt, Required: q.Required})
		}
		if len(t.RequiredQuestionIDs()) == 0 {
			return nil, fmt.Errorf("template %s: at least one question must be required", spec.Name)
		}
		out = append(out, t)
	}
	return out, nil
}
