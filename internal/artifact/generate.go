package artifact

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Specification is the structured input the generators consume.
type Specification struct {
	Name        string      `json:"name" yaml:"name"`
	Owner       string      `json:"owner" yaml:"owner"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Parameters  []Parameter `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Steps       []Step      `json:"steps,omitempty" yaml:"steps,omitempty"`
	Directories []string    `json:"directories,omitempty" yaml:"directories,omitempty"`
	Rules       []string    `json:"rules,omitempty" yaml:"rules,omitempty"`
}

// Generator produces part of a bundle from a specification. Generators must
// be deterministic for identical input.
type Generator interface {
	Name() string
	Generate(spec Specification) ([]File, error)
}

// GeneratorFunc adapts a function into a Generator.
type GeneratorFunc struct {
	ID string
	Fn func(spec Specification) ([]File, error)
}

func (g GeneratorFunc) Name() string { return g.ID }

func (g GeneratorFunc) Generate(spec Specification) ([]File, error) { return g.Fn(spec) }

// GenerationError reports which generator failed.
type GenerationError struct {
	Generator string
	Err       error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generator %s: %v", e.Generator, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Assemble runs every generator in order and combines their output into one
// bundle. Later generators cannot overwrite files from earlier ones.
func Assemble(spec Specification, generators ...Generator) (*Bundle, error) {
	b := &Bundle{Name: spec.Name, Owner: spec.Owner, Description: spec.Description}
	seen := make(map[string]string)
	for _, g := range generators {
		files, err := g.Generate(spec)
		if err != nil {
			return nil, &GenerationError{Generator: g.Name(), Err: err}
		}
		for _, f := range files {
			if prev, ok := seen[f.Path]; ok {
				return nil, &GenerationError{
					Generator: g.Name(),
					Err:       fmt.Errorf("file %s already produced by %s", f.Path, prev),
				}
			}
			seen[f.Path] = g.Name()
			b.Files = append(b.Files, f)
		}
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// DefaultGenerators returns the configuration-file, file-tree, rule-list and
// documentation generators.
func DefaultGenerators() []Generator {
	return []Generator{
		GeneratorFunc{ID: "config", Fn: generateConfig},
		GeneratorFunc{ID: "tree", Fn: generateTree},
		GeneratorFunc{ID: "rules", Fn: generateRules},
		GeneratorFunc{ID: "docs", Fn: generateDocs},
	}
}

func generateConfig(spec Specification) ([]File, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("specification has no name")
	}
	t := Template{
		APIVersion:  "launchpad/v1",
		Kind:        "Template",
		Name:        spec.Name,
		Owner:       spec.Owner,
		Description: spec.Description,
		Parameters:  spec.Parameters,
		Steps:       spec.Steps,
	}
	if t.Parameters == nil {
		t.Parameters = []Parameter{}
	}
	data, err := t.Marshal()
	if err != nil {
		return nil, err
	}
	return []File{{Path: DefaultTemplateFile, Content: data}}, nil
}

func generateTree(spec Specification) ([]File, error) {
	files := make([]File, 0, len(spec.Directories))
	for _, dir := range spec.Directories {
		dir = strings.Trim(dir, "/")
		if dir == "" {
			continue
		}
		files = append(files, File{Path: dir + "/.gitkeep"})
	}
	return files, nil
}

func generateRules(spec Specification) ([]File, error) {
	if len(spec.Rules) == 0 {
		return nil, nil
	}
	data, err := yaml.Marshal(map[string]any{"rules": spec.Rules})
	if err != nil {
		return nil, err
	}
	return []File{{Path: "rules.yaml", Content: data}}, nil
}

func generateDocs(spec Specification) ([]File, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", spec.Name)
	if spec.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", spec.Description)
	}
	if len(spec.Parameters) > 0 {
		b.WriteString("## Parameters\n\n")
		for _, p := range spec.Parameters {
			fmt.Fprintf(&b, "- `%s` (%s): %s\n", p.Name, p.Type, p.Description)
		}
		b.WriteString("\n")
	}
	if len(spec.Steps) > 0 {
		b.WriteString("## Steps\n\n")
		for i, s := range spec.Steps {
			fmt.Fprintf(&b, "%d. %s (`%s`)\n", i+1, s.ID, s.Action)
		}
	}
	return []File{{Path: ReadmeFile, Content: []byte(b.String())}}, nil
}

// Minimal returns the smallest usable bundle for spec: a README and a
// template with a single no-op step. Recovery substitutes it when a
// generator fails.
func Minimal(spec Specification) *Bundle {
	name := spec.Name
	if name == "" {
		name = "unnamed-template"
	}
	t := Template{
		APIVersion:  "launchpad/v1",
		Kind:        "Template",
		Name:        name,
		Owner:       spec.Owner,
		Description: spec.Description,
		Parameters:  []Parameter{},
		Steps:       []Step{{ID: "noop", Name: "No-op", Action: "debug:log"}},
	}
	data, _ := t.Marshal()
	readme := fmt.Sprintf("# %s\n\nMinimal template generated as a fallback.\n", name)
	return &Bundle{
		Name:        name,
		Owner:       spec.Owner,
		Description: spec.Description,
		Files: []File{
			{Path: ReadmeFile, Content: []byte(readme)},
			{Path: DefaultTemplateFile, Content: data},
		},
		Fallback: true,
	}
}
