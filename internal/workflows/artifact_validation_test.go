package workflows

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"github.com/fyrsmithlabs/launchpad/internal/failure"
	"github.com/fyrsmithlabs/launchpad/internal/pipeline/pipelinetest"
	"github.com/fyrsmithlabs/launchpad/internal/validation"
)

func TestArtifactValidationWorkflow(t *testing.T) {
	t.Run("returns the checker report", func(t *testing.T) {
		testSuite := &testsuite.WorkflowTestSuite{}
		env := testSuite.NewTestWorkflowEnvironment()

		Register(env, &Activities{Checker: validation.NewChecker(nil, validation.Options{})})

		bundle := pipelinetest.Bundle()
		env.ExecuteWorkflow(ArtifactValidationWorkflow, ValidationInput{
			Repository: "platform/payments-service",
			Ref:        "launchpad/20260501-120000",
			Bundle:     bundle,
		})

		require.True(t, env.IsWorkflowCompleted())
		require.NoError(t, env.GetWorkflowError())

		var report validation.Report
		require.NoError(t, env.GetWorkflowResult(&report))
		assert.Equal(t, bundle.Name, report.Bundle)
		assert.NotEmpty(t, report.Checks)
		assert.NotEmpty(t, report.Verdict)
	})

	t.Run("classified activity errors survive the workflow boundary", func(t *testing.T) {
		testSuite := &testsuite.WorkflowTestSuite{}
		env := testSuite.NewTestWorkflowEnvironment()

		a := &Activities{Checker: validation.NewChecker(nil, validation.Options{})}
		Register(env, a)
		scanErr := failure.New(failure.KindValidation, "validation", "scan", "scanner unavailable", false)
		env.OnActivity(a.ValidateBundle, mock.Anything, mock.Anything).
			Return(nil, toApplicationError("validate bundle", scanErr))

		env.ExecuteWorkflow(ArtifactValidationWorkflow, ValidationInput{
			Repository: "platform/payments-service",
			Bundle:     pipelinetest.Bundle(),
		})

		require.True(t, env.IsWorkflowCompleted())
		err := env.GetWorkflowError()
		require.Error(t, err)

		fe, ok := ClassifiedFromWorkflowError(err)
		require.True(t, ok)
		assert.Equal(t, failure.KindValidation, fe.Kind)
		assert.Equal(t, "scanner unavailable", fe.Message)
		assert.False(t, fe.Recoverable)
	})

	t.Run("rejects missing bundle", func(t *testing.T) {
		testSuite := &testsuite.WorkflowTestSuite{}
		env := testSuite.NewTestWorkflowEnvironment()
		env.RegisterWorkflow(ArtifactValidationWorkflow)

		env.ExecuteWorkflow(ArtifactValidationWorkflow, ValidationInput{Repository: "platform/x"})

		require.True(t, env.IsWorkflowCompleted())
		require.Error(t, env.GetWorkflowError())
	})
}

func TestClassifiedFromWorkflowError_Plain(t *testing.T) {
	_, ok := ClassifiedFromWorkflowError(assert.AnError)
	assert.False(t, ok)
}
