package artifact

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ParameterTypes is the set of allowed parameter types.
var ParameterTypes = map[string]bool{
	"string":  true,
	"number":  true,
	"boolean": true,
	"array":   true,
	"object":  true,
}

// Parameter is one input a template accepts.
type Parameter struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool   `json:"required,omitempty" yaml:"required,omitempty"`
	Default     any    `json:"default,omitempty" yaml:"default,omitempty"`
}

// Step is one action a template performs when instantiated.
type Step struct {
	ID     string         `json:"id" yaml:"id"`
	Name   string         `json:"name,omitempty" yaml:"name,omitempty"`
	Action string         `json:"action" yaml:"action"`
	Input  map[string]any `json:"input,omitempty" yaml:"input,omitempty"`
}

// Template is the definition stored in template.yaml.
type Template struct {
	APIVersion  string      `json:"apiVersion,omitempty" yaml:"apiVersion,omitempty"`
	Kind        string      `json:"kind,omitempty" yaml:"kind,omitempty"`
	Name        string      `json:"name" yaml:"name"`
	Owner       string      `json:"owner,omitempty" yaml:"owner,omitempty"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Parameters  []Parameter `json:"parameters" yaml:"parameters"`
	Steps       []Step      `json:"steps" yaml:"steps"`
}

// ParseTemplate decodes a template definition.
func ParseTemplate(data []byte) (*Template, error) {
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("artifact: parse template: %w", err)
	}
	return &t, nil
}

// Marshal encodes the template as YAML.
func (t *Template) Marshal() ([]byte, error) {
	return yaml.Marshal(t)
}

// Instantiate performs a dry run: it binds params against the declared
// parameters and resolves every step, without executing anything. It
// returns the ordered step ids that would run.
func (t *Template) Instantiate(params map[string]any) ([]string, error) {
	if len(t.Steps) == 0 {
		return nil, fmt.Errorf("artifact: template %q has no steps", t.Name)
	}
	for _, p := range t.Parameters {
		if _, ok := params[p.Name]; !ok && p.Required && p.Default == nil {
			return nil, fmt.Errorf("artifact: missing required parameter %q", p.Name)
		}
	}
	ids := make([]string, 0, len(t.Steps))
	for i, s := range t.Steps {
		if s.ID == "" || s.Action == "" {
			return nil, fmt.Errorf("artifact: step %d is incomplete", i)
		}
		ids = append(ids, s.ID)
	}
	return ids, nil
}

// PlaceholderParams returns a value for every parameter: its default when it
// has one, otherwise the zero value of its type.
func (t *Template) PlaceholderParams() map[string]any {
	out := make(map[string]any, len(t.Parameters))
	for _, p := range t.Parameters {
		if p.Default != nil {
			out[p.Name] = p.Default
			continue
		}
		switch p.Type {
		case "number":
			out[p.Name] = 0
		case "boolean":
			out[p.Name] = false
		case "array":
			out[p.Name] = []any{}
		case "object":
			out[p.Name] = map[string]any{}
		default:
			out[p.Name] = ""
		}
	}
	return out
}
