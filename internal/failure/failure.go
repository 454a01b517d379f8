// Package failure defines the error taxonomy used by the deployment pipeline.
//
// Every stage failure is wrapped into an *Error (a classified error) that
// carries its Kind, the component and operation that raised it, a structured
// detail bag, and a recoverable flag set by the raising site. Recovery
// strategies only ever see classified errors, never raw causes.
package failure

import (
	"errors"
	"fmt"
	"maps"
	"sort"
	"strings"
	"time"
)

// Kind is the closed set of failure kinds.
type Kind string

const (
	KindIntentParsing      Kind = "IntentParsingError"
	KindTemplateGeneration Kind = "TemplateGenerationError"
	KindValidation         Kind = "ValidationError"
	KindGitOps             Kind = "GitOpsError"
	KindDeployment         Kind = "DeploymentError"
	KindRegistry           Kind = "RegistryError"
	KindConfiguration      Kind = "ConfigurationError"
	KindNetwork            Kind = "NetworkError"
	KindPermission         Kind = "PermissionError"
	KindResource           Kind = "ResourceError"
)

// AllKinds returns every kind in declaration order.
func AllKinds() []Kind {
	return []Kind{
		KindIntentParsing, KindTemplateGeneration, KindValidation, KindGitOps,
		KindDeployment, KindRegistry, KindConfiguration, KindNetwork,
		KindPermission, KindResource,
	}
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	for _, known := range AllKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// Well-known detail keys.
const (
	DetailRetryCount = "retry_count"
	DetailCause      = "cause"
	DetailStatusCode = "status_code"
	DetailCancelled  = "cancelled"
)

// Error is a classified error. It is immutable once constructed; the With*
// methods return modified copies.
type Error struct {
	Kind        Kind
	Component   string
	Operation   string
	Message     string
	Recoverable bool
	CreatedAt   time.Time

	details map[string]any
	cause   error
}

// New creates a classified error without an underlying cause.
func New(kind Kind, component, operation, message string, recoverable bool) *Error {
	return &Error{
		Kind:        kind,
		Component:   component,
		Operation:   operation,
		Message:     message,
		Recoverable: recoverable,
		CreatedAt:   time.Now(),
		details:     map[string]any{},
	}
}

// Wrap classifies cause under kind. The cause stays reachable through
// errors.Is / errors.As and its text is recorded in the detail bag.
func Wrap(kind Kind, component, operation string, cause error, recoverable bool) *Error {
	msg := operation + " failed"
	if cause != nil {
		msg = fmt.Sprintf("%s failed: %v", operation, cause)
	}
	e := New(kind, component, operation, msg, recoverable)
	e.cause = cause
	if cause != nil {
		e.details[DetailCause] = cause.Error()
	}
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s [%s/%s]: %s", e.Kind, e.Component, e.Operation, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// Details returns a copy of the detail bag.
func (e *Error) Details() map[string]any {
	return maps.Clone(e.details)
}

// Detail returns a single detail value.
func (e *Error) Detail(key string) (any, bool) {
	v, ok := e.details[key]
	return v, ok
}

// WithDetail returns a copy of e with key set to value.
func (e *Error) WithDetail(key string, value any) *Error {
	c := e.clone()
	c.details[key] = value
	return c
}

// WithRecoverable returns a copy of e with the recoverable flag replaced.
func (e *Error) WithRecoverable(recoverable bool) *Error {
	c := e.clone()
	c.Recoverable = recoverable
	return c
}

// RetryCount returns the retry counter carried by network errors.
func (e *Error) RetryCount() int {
	v, ok := e.details[DetailRetryCount]
	if !ok {
		return 0
	}
	n, _ := v.(int)
	return n
}

// DetailString renders the detail bag as sorted key=value pairs.
func (e *Error) DetailString() string {
	keys := make([]string, 0, len(e.details))
	for k := range e.details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, e.details[k]))
	}
	return strings.Join(parts, " ")
}

func (e *Error) clone() *Error {
	c := *e
	c.details = maps.Clone(e.details)
	if c.details == nil {
		c.details = map[string]any{}
	}
	return &c
}

// As extracts a classified error from err's chain.
func As(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// IsKind reports whether err's chain holds a classified error of kind k.
func IsKind(err error, k Kind) bool {
	fe, ok := As(err)
	return ok && fe.Kind == k
}
