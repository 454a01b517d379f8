package logging

import (
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger records every entry, unsampled and unredacted, so tests can
// check what the code hands to the logger.
type TestLogger struct {
	*Logger
	observed *observer.ObservedLogs
}

// NewTestLogger returns a logger observing debug and above.
func NewTestLogger() *TestLogger {
	core, observed := observer.New(zapcore.DebugLevel)
	return &TestLogger{Logger: &Logger{zap: zap.New(core)}, observed: observed}
}

// All returns the recorded entries.
func (t *TestLogger) All() []observer.LoggedEntry {
	return t.observed.All()
}

// AssertLogged fails tb unless an entry at level contains msg.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, msg string) {
	tb.Helper()
	for _, e := range t.observed.All() {
		if e.Level == level && strings.Contains(e.Message, msg) {
			return
		}
	}
	tb.Errorf("no %v entry containing %q; got %v", level, msg, t.messages())
}

// AssertField fails tb unless an entry with message msg carries key=want.
func (t *TestLogger) AssertField(tb testing.TB, msg, key string, want any) {
	tb.Helper()
	for _, e := range t.observed.FilterMessage(msg).All() {
		got, ok := e.ContextMap()[key]
		if ok && reflect.DeepEqual(got, want) {
			return
		}
	}
	tb.Errorf("no %q entry with %s=%v", msg, key, want)
}

// AssertNoSecrets fails tb if an entry carries a value the default
// redaction would have masked: a sensitive key with a non-empty value, or
// a token pattern in a message or string field.
func (t *TestLogger) AssertNoSecrets(tb testing.TB) {
	tb.Helper()
	r, err := newRedactor(DefaultRedaction())
	if err != nil {
		tb.Fatalf("default redaction: %v", err)
	}
	for _, e := range t.observed.All() {
		if r.text(e.Message) != e.Message {
			tb.Errorf("entry %q: message carries a secret", e.Message)
		}
		for key, v := range e.ContextMap() {
			s, ok := v.(string)
			if !ok {
				continue
			}
			if r.sensitiveKey(key) && s != "" && s != redacted {
				tb.Errorf("entry %q: sensitive field %q logged in clear", e.Message, key)
			}
			if r.text(s) != s {
				tb.Errorf("entry %q: field %q carries a secret", e.Message, key)
			}
		}
	}
}

func (t *TestLogger) messages() []string {
	var out []string
	for _, e := range t.observed.All() {
		out = append(out, e.Message)
	}
	return out
}
