package artifact

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/launchpad/internal/ignore"
)

// ManifestFile describes a bundle directory. It is not shipped as a file.
const ManifestFile = "bundle.yaml"

// maxFileSize caps individual bundle files.
const maxFileSize = 5 * 1024 * 1024

type manifest struct {
	Name        string `yaml:"name"`
	Owner       string `yaml:"owner"`
	Description string `yaml:"description"`
}

// LoadDir reads a bundle from dir. The manifest supplies name, owner and
// description; every other regular file becomes a bundle file. Hidden
// directories such as .git and paths matched by .launchpadignore are skipped.
func LoadDir(dir string) (*Bundle, error) {
	raw, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("artifact: read manifest: %w", err)
	}
	var m manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("artifact: parse manifest: %w", err)
	}

	ignored, err := ignore.NewParser([]string{ignore.BundleFile}, nil).Load(dir)
	if err != nil {
		return nil, fmt.Errorf("artifact: read %s: %w", ignore.BundleFile, err)
	}

	b := &Bundle{Name: m.Name, Owner: m.Owner, Description: m.Description}
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if rel != "." && (d.Name()[0] == '.' || ignored.Match(rel)) {
				return filepath.SkipDir
			}
			return nil
		}
		if rel == ManifestFile || rel == ignore.BundleFile || !d.Type().IsRegular() || ignored.Match(rel) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() > maxFileSize {
			return fmt.Errorf("file %s exceeds %d bytes", rel, maxFileSize)
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		b.Files = append(b.Files, File{Path: filepath.ToSlash(rel), Content: content})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("artifact: load %s: %w", dir, err)
	}

	sort.Slice(b.Files, func(i, j int) bool { return b.Files[i].Path < b.Files[j].Path })
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}
