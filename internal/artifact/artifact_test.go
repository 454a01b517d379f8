package artifact

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSpec() Specification {
	return Specification{
		Name:        "Payments API",
		Owner:       "platform",
		Description: "Scaffolds a payments service with CI",
		Parameters: []Parameter{
			{Name: "service_name", Type: "string", Description: "Name of the service", Required: true},
		},
		Steps:       []Step{{ID: "fetch", Action: "fetch:template"}, {ID: "publish", Action: "publish:github"}},
		Directories: []string{"src", "/docs/"},
		Rules:       []string{"no-latest-tags"},
	}
}

func TestAssemble_DefaultGenerators(t *testing.T) {
	b, err := Assemble(testSpec(), DefaultGenerators()...)
	require.NoError(t, err)

	assert.Equal(t, "Payments API", b.Name)
	assert.ElementsMatch(t,
		[]string{"template.yaml", "src/.gitkeep", "docs/.gitkeep", "rules.yaml", "README.md"},
		b.Paths())

	tmpl, err := b.Template()
	require.NoError(t, err)
	assert.Equal(t, "Payments API", tmpl.Name)
	require.Len(t, tmpl.Parameters, 1)
	assert.Equal(t, "service_name", tmpl.Parameters[0].Name)
	require.Len(t, tmpl.Steps, 2)

	readme, ok := b.File(ReadmeFile)
	require.True(t, ok)
	assert.Contains(t, string(readme.Content), "service_name")
}

func TestAssemble_Deterministic(t *testing.T) {
	a, err := Assemble(testSpec(), DefaultGenerators()...)
	require.NoError(t, err)
	b, err := Assemble(testSpec(), DefaultGenerators()...)
	require.NoError(t, err)
	assert.Equal(t, a.Contents(), b.Contents())
}

func TestAssemble_GeneratorFailure(t *testing.T) {
	boom := errors.New("template engine down")
	failing := GeneratorFunc{ID: "docs", Fn: func(Specification) ([]File, error) { return nil, boom }}

	_, err := Assemble(testSpec(), failing)

	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, "docs", genErr.Generator)
	assert.ErrorIs(t, err, boom)
}

func TestAssemble_DuplicateFile(t *testing.T) {
	dup := GeneratorFunc{ID: "dup", Fn: func(Specification) ([]File, error) {
		return []File{{Path: ReadmeFile, Content: []byte("x")}}, nil
	}}
	_, err := Assemble(testSpec(), DefaultGenerators()[3], dup)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already produced")
}

func TestMinimal(t *testing.T) {
	b := Minimal(Specification{Name: "svc", Owner: "team"})
	require.NoError(t, b.Validate())
	assert.True(t, b.Fallback)

	tmpl, err := b.Template()
	require.NoError(t, err)
	steps, err := tmpl.Instantiate(tmpl.PlaceholderParams())
	require.NoError(t, err)
	assert.Equal(t, []string{"noop"}, steps)
}

func TestBundle_Validate(t *testing.T) {
	tests := []struct {
		name   string
		bundle Bundle
	}{
		{"no name", Bundle{Owner: "o", Files: []File{{Path: "a"}}}},
		{"no owner", Bundle{Name: "n", Files: []File{{Path: "a"}}}},
		{"no files", Bundle{Name: "n", Owner: "o"}},
		{"traversal", Bundle{Name: "n", Owner: "o", Files: []File{{Path: "../a"}}}},
		{"duplicate", Bundle{Name: "n", Owner: "o", Files: []File{{Path: "a"}, {Path: "./a"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.bundle.Validate())
		})
	}
}

func TestFileLines(t *testing.T) {
	assert.Equal(t, 0, File{}.Lines())
	assert.Equal(t, 1, File{Content: []byte("one")}.Lines())
	assert.Equal(t, 2, File{Content: []byte("one\ntwo\n")}.Lines())
	assert.Equal(t, 3, File{Content: []byte("one\ntwo\nthree")}.Lines())

	b := Bundle{Files: []File{{Content: []byte("a\nb\n")}, {Content: []byte("c")}}}
	assert.Equal(t, 3, b.LineCount())
}

func TestTemplate_Instantiate(t *testing.T) {
	tmpl := &Template{
		Name: "t",
		Parameters: []Parameter{
			{Name: "replicas", Type: "number", Required: true},
			{Name: "region", Type: "string", Default: "eu-west-1"},
		},
		Steps: []Step{{ID: "a", Action: "x"}},
	}
	_, err := tmpl.Instantiate(map[string]any{})
	assert.Error(t, err)

	params := tmpl.PlaceholderParams()
	assert.Equal(t, 0, params["replicas"])
	assert.Equal(t, "eu-west-1", params["region"])
	ids, err := tmpl.Instantiate(params)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)

	_, err = (&Template{Name: "empty"}).Instantiate(nil)
	assert.Error(t, err)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	write := func(rel, content string) {
		full := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	write(ManifestFile, "name: Payments API\nowner: platform\ndescription: demo\n")
	write("template.yaml", "name: payments\nparameters: []\nsteps:\n  - id: a\n    action: b\n")
	write("docs/guide.md", "# guide\n")
	write(".git/HEAD", "ref: refs/heads/main\n")

	b, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, "Payments API", b.Name)
	assert.Equal(t, "platform", b.Owner)
	assert.Equal(t, []string{"docs/guide.md", "template.yaml"}, b.Paths())
}

func TestLoadDir_Ignore(t *testing.T) {
	dir := t.TempDir()
	write := func(rel, content string) {
		full := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	write(ManifestFile, "name: payments-service\nowner: platform\n")
	write(".launchpadignore", "drafts/\n*.bak\n")
	write("template.yaml", "name: payments\nparameters: []\nsteps:\n  - id: a\n    action: b\n")
	write("template.yaml.bak", "stale\n")
	write("drafts/v2.yaml", "draft\n")
	write(".gitignore", "*.log\n")

	b, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{".gitignore", "template.yaml"}, b.Paths())
}

func TestLoadDir_MissingManifest(t *testing.T) {
	_, err := LoadDir(t.TempDir())
	assert.Error(t, err)
}
