package workflows

import (
	"errors"
	"fmt"

	"go.temporal.io/sdk/temporal"

	"github.com/fyrsmithlabs/launchpad/internal/failure"
)

// Application error types for failures that are not classified errors.
const (
	errTypeInvalidInput = "InvalidInput"
	errTypeActivity     = "ActivityFailure"
)

// ErrInvalidInput indicates workflow input validation failed.
var ErrInvalidInput = errors.New("invalid workflow input")

// toApplicationError converts an activity failure into a Temporal
// application error. Classified errors keep their kind as the error type and
// their detail bag as error details; all of them are non-retryable because
// the engine owns retries.
func toApplicationError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if fe, ok := failure.As(err); ok {
		return temporal.NewNonRetryableApplicationError(fe.Error(), string(fe.Kind), err, errorDetail{
			Kind:        fe.Kind,
			Component:   fe.Component,
			Operation:   fe.Operation,
			Message:     fe.Message,
			Recoverable: fe.Recoverable,
		})
	}
	if errors.Is(err, ErrInvalidInput) {
		return temporal.NewNonRetryableApplicationError(err.Error(), errTypeInvalidInput, err)
	}
	return temporal.NewNonRetryableApplicationError(fmt.Sprintf("%s: %v", operation, err), errTypeActivity, err)
}

// errorDetail is the serializable part of a classified error.
type errorDetail struct {
	Kind        failure.Kind `json:"kind"`
	Component   string       `json:"component"`
	Operation   string       `json:"operation"`
	Message     string       `json:"message"`
	Recoverable bool         `json:"recoverable"`
}

// ClassifiedFromWorkflowError recovers the classified error carried by a
// workflow or activity failure. The second result is false when err does
// not carry one.
func ClassifiedFromWorkflowError(err error) (*failure.Error, bool) {
	var appErr *temporal.ApplicationError
	if !errors.As(err, &appErr) || !failure.Kind(appErr.Type()).Valid() || !appErr.HasDetails() {
		return nil, false
	}
	var d errorDetail
	if appErr.Details(&d) != nil {
		return nil, false
	}
	return failure.New(d.Kind, d.Component, d.Operation, d.Message, d.Recoverable), true
}
