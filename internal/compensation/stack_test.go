package compensation

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/launchpad/internal/logging"
)

func recordingAction(id string, calls *[]string, err error) Action {
	return Action{
		ID:          id,
		Description: "undo " + id,
		Reverse: func(ctx context.Context) error {
			*calls = append(*calls, id)
			return err
		},
	}
}

func TestStack_ExecuteReverseOrder(t *testing.T) {
	for n := 1; n <= 6; n++ {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			s := NewStack(nil)
			var calls []string
			var want []string
			for i := 0; i < n; i++ {
				id := fmt.Sprintf("stage-%d", i)
				require.NoError(t, s.Push(recordingAction(id, &calls, nil)))
				want = append([]string{id}, want...)
			}

			outcomes := s.Execute(context.Background())

			assert.Equal(t, want, calls)
			assert.Len(t, outcomes, n)
			for _, o := range outcomes {
				assert.Equal(t, StatusReversed, o.Status)
			}
			assert.Equal(t, 0, s.Len())
		})
	}
}

func TestStack_ExecuteAtMostOnce(t *testing.T) {
	s := NewStack(nil)
	var calls []string
	require.NoError(t, s.Push(recordingAction("a", &calls, nil)))
	require.NoError(t, s.Push(recordingAction("b", &calls, nil)))

	s.Execute(context.Background())
	second := s.Execute(context.Background())

	assert.Empty(t, second)
	assert.Equal(t, []string{"b", "a"}, calls)
}

func TestStack_FailuresDoNotStopOthers(t *testing.T) {
	logger := logging.NewTestLogger()
	s := NewStack(logger.Logger)
	var calls []string
	require.NoError(t, s.Push(recordingAction("a", &calls, nil)))
	require.NoError(t, s.Push(recordingAction("b", &calls, errors.New("gone"))))
	require.NoError(t, s.Push(Action{
		ID:      "c",
		Reverse: func(ctx context.Context) error { panic("kaboom") },
	}))

	outcomes := s.Execute(context.Background())

	require.Len(t, outcomes, 3)
	assert.Equal(t, StatusFailed, outcomes[0].Status)
	assert.Contains(t, outcomes[0].Error, "kaboom")
	assert.Equal(t, StatusFailed, outcomes[1].Status)
	assert.Equal(t, "gone", outcomes[1].Error)
	assert.Equal(t, StatusReversed, outcomes[2].Status)
	assert.Equal(t, []string{"b", "a"}, calls)
	logger.AssertLogged(t, zapcore.ErrorLevel, "compensating action failed")
}

func TestStack_NotReversibleStillRecorded(t *testing.T) {
	s := NewStack(nil)
	var calls []string
	a := recordingAction("undeploy", &calls, nil)
	a.Reversible = func(ctx context.Context) bool { return false }
	require.NoError(t, s.Push(a))

	outcomes := s.Execute(context.Background())

	require.Len(t, outcomes, 1)
	assert.Equal(t, StatusNotReversible, outcomes[0].Status)
	assert.Empty(t, calls)
}

func TestStack_PushValidation(t *testing.T) {
	s := NewStack(nil)
	assert.Error(t, s.Push(Action{Reverse: func(context.Context) error { return nil }}))
	assert.Error(t, s.Push(Action{ID: "x"}))

	require.NoError(t, s.Push(Action{ID: "x", Reverse: func(context.Context) error { return nil }}))
	assert.Error(t, s.Push(Action{ID: "x", Reverse: func(context.Context) error { return nil }}))
	assert.Equal(t, []string{"x"}, s.IDs())
}

func TestStack_RejectsExecutedID(t *testing.T) {
	s := NewStack(nil)
	var calls []string
	require.NoError(t, s.Push(recordingAction("delete_repository", &calls, nil)))
	s.Execute(context.Background())

	err := s.Push(recordingAction("delete_repository", &calls, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already executed")
	assert.Equal(t, 0, s.Len())

	require.NoError(t, s.Push(recordingAction("undeploy", &calls, nil)))
	s.Execute(context.Background())
	assert.Equal(t, []string{"delete_repository", "undeploy"}, calls)
}

func TestStack_Clear(t *testing.T) {
	s := NewStack(nil)
	var calls []string
	require.NoError(t, s.Push(recordingAction("a", &calls, nil)))
	s.Clear()
	assert.Empty(t, s.Execute(context.Background()))
	assert.Empty(t, calls)
}
