// Package artifact models the generated artifact bundle that the pipeline
// ships: its files, the template definition inside it, and the generators
// that produce it from a specification.
package artifact

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/fyrsmithlabs/launchpad/internal/sanitize"
)

// DefaultTemplateFile is the path of the template definition in a bundle.
const DefaultTemplateFile = "template.yaml"

// ReadmeFile is the documentation entry point of a bundle.
const ReadmeFile = "README.md"

// ErrEmptyBundle is returned when a bundle has no files.
var ErrEmptyBundle = errors.New("artifact: bundle has no files")

// File is one file of a bundle. Path is slash-separated and relative.
type File struct {
	Path    string `json:"path" yaml:"path"`
	Content []byte `json:"content" yaml:"content"`
}

// Lines returns the number of lines in the file.
func (f File) Lines() int {
	if len(f.Content) == 0 {
		return 0
	}
	n := bytes.Count(f.Content, []byte("\n"))
	if f.Content[len(f.Content)-1] != '\n' {
		n++
	}
	return n
}

// Bundle is the complete set of generated files for one template instance.
type Bundle struct {
	Name        string `json:"name" yaml:"name"`
	Owner       string `json:"owner" yaml:"owner"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Files       []File `json:"files" yaml:"files"`

	// Fallback marks a bundle substituted by recovery.
	Fallback bool `json:"fallback,omitempty" yaml:"-"`
}

// Validate checks the bundle is shippable: it has a name, an owner, at least
// one file, and every path is a unique, contained relative path.
func (b *Bundle) Validate() error {
	if b.Name == "" {
		return fmt.Errorf("artifact: bundle name is required")
	}
	if b.Owner == "" {
		return fmt.Errorf("artifact: bundle owner is required")
	}
	if len(b.Files) == 0 {
		return ErrEmptyBundle
	}
	seen := make(map[string]bool, len(b.Files))
	for _, f := range b.Files {
		clean, err := sanitize.BundlePath(f.Path)
		if err != nil {
			return fmt.Errorf("artifact: file %q: %w", f.Path, err)
		}
		if seen[clean] {
			return fmt.Errorf("artifact: duplicate file %q", clean)
		}
		seen[clean] = true
	}
	return nil
}

// File returns the file at path.
func (b *Bundle) File(path string) (File, bool) {
	for _, f := range b.Files {
		if f.Path == path {
			return f, true
		}
	}
	return File{}, false
}

// Paths returns every file path, sorted.
func (b *Bundle) Paths() []string {
	paths := make([]string, len(b.Files))
	for i, f := range b.Files {
		paths[i] = f.Path
	}
	sort.Strings(paths)
	return paths
}

// LineCount returns the total number of lines across all files.
func (b *Bundle) LineCount() int {
	total := 0
	for _, f := range b.Files {
		total += f.Lines()
	}
	return total
}

// Contents returns the bundle as a path -> content map.
func (b *Bundle) Contents() map[string][]byte {
	out := make(map[string][]byte, len(b.Files))
	for _, f := range b.Files {
		out[f.Path] = f.Content
	}
	return out
}

// Template parses the bundle's template definition.
func (b *Bundle) Template() (*Template, error) {
	f, ok := b.File(DefaultTemplateFile)
	if !ok {
		return nil, fmt.Errorf("artifact: %s not found in bundle", DefaultTemplateFile)
	}
	return ParseTemplate(f.Content)
}
