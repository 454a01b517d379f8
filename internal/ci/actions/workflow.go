package actions

import (
	"path"

	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/launchpad/internal/artifact"
	"github.com/fyrsmithlabs/launchpad/internal/validation"
)

// validatorModule is installed by the generated workflow to run checks.
const validatorModule = "github.com/fyrsmithlabs/launchpad/cmd/launchpad@latest"

// WorkflowGenerator returns a generator that adds the validation workflow to
// a bundle. Each check runs as its own job so that Status can map job
// conclusions back to named checks.
func WorkflowGenerator(workflowFile string) artifact.Generator {
	if workflowFile == "" {
		workflowFile = DefaultWorkflowFile
	}
	return artifact.GeneratorFunc{
		ID: "github-actions-workflow",
		Fn: func(artifact.Specification) ([]artifact.File, error) {
			data, err := Workflow()
			if err != nil {
				return nil, err
			}
			return []artifact.File{{
				Path:    path.Join(".github", "workflows", workflowFile),
				Content: data,
			}}, nil
		},
	}
}

// Workflow renders the validation workflow definition.
func Workflow() ([]byte, error) {
	jobs := map[string]any{}
	for _, name := range []string{
		validation.CheckSyntax,
		validation.CheckParameters,
		validation.CheckSteps,
		JobSecurity,
		JobQuality,
	} {
		jobs[name] = map[string]any{
			"runs-on": "ubuntu-latest",
			"steps": []map[string]any{
				{"uses": "actions/checkout@v4"},
				{"uses": "actions/setup-go@v5", "with": map[string]any{"go-version": "stable"}},
				{"run": "go install " + validatorModule},
				{"run": "launchpad validate --check " + name + " ."},
			},
		}
	}
	return yaml.Marshal(map[string]any{
		"name": "launchpad-validate",
		"on": map[string]any{
			"workflow_dispatch": map[string]any{},
			"pull_request":      map[string]any{},
		},
		"jobs": jobs,
	})
}
