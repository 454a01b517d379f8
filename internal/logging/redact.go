package logging

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const redacted = "[REDACTED]"

// redactor masks sensitive keys and value patterns.
type redactor struct {
	keys     map[string]bool
	patterns []*regexp.Regexp
}

func newRedactor(cfg RedactionConfig) (*redactor, error) {
	if !cfg.Enabled {
		return &redactor{}, nil
	}
	patterns, err := compilePatterns(cfg.Patterns)
	if err != nil {
		return nil, err
	}
	keys := make(map[string]bool, len(cfg.Keys))
	for _, k := range cfg.Keys {
		keys[strings.ToLower(k)] = true
	}
	return &redactor{keys: keys, patterns: patterns}, nil
}

func (r *redactor) sensitiveKey(key string) bool {
	return r.keys[strings.ToLower(key)]
}

func (r *redactor) text(s string) string {
	for _, re := range r.patterns {
		s = re.ReplaceAllString(s, redacted)
	}
	return s
}

// field rewrites f so that its encoded form carries no secret. Values that
// only become text at encode time (errors, stringers) are rendered here.
func (r *redactor) field(f zapcore.Field) zapcore.Field {
	if r.sensitiveKey(f.Key) {
		return zap.String(f.Key, redacted)
	}
	if len(r.patterns) == 0 {
		return f
	}
	switch f.Type {
	case zapcore.StringType:
		f.String = r.text(f.String)
	case zapcore.ByteStringType:
		return zap.String(f.Key, r.text(string(f.Interface.([]byte))))
	case zapcore.ErrorType:
		if err, ok := f.Interface.(error); ok && err != nil {
			return zap.String(f.Key, r.text(err.Error()))
		}
	case zapcore.StringerType:
		if s, ok := f.Interface.(fmt.Stringer); ok && s != nil {
			return zap.String(f.Key, r.text(s.String()))
		}
	}
	return f
}

func (r *redactor) fields(fs []zapcore.Field) []zapcore.Field {
	clean := make([]zapcore.Field, len(fs))
	for i, f := range fs {
		clean[i] = r.field(f)
	}
	return clean
}

// redactingEncoder applies a redactor to every entry. Fields passed to a
// log call arrive through EncodeEntry; fields bound with Logger.With are
// added through the Add methods.
type redactingEncoder struct {
	zapcore.Encoder
	r *redactor
}

func (e *redactingEncoder) Clone() zapcore.Encoder {
	return &redactingEncoder{Encoder: e.Encoder.Clone(), r: e.r}
}

func (e *redactingEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	ent.Message = e.r.text(ent.Message)
	return e.Encoder.EncodeEntry(ent, e.r.fields(fields))
}

func (e *redactingEncoder) AddString(key, val string) {
	if e.r.sensitiveKey(key) {
		val = redacted
	}
	e.Encoder.AddString(key, e.r.text(val))
}

func (e *redactingEncoder) AddByteString(key string, val []byte) {
	e.AddString(key, string(val))
}

func (e *redactingEncoder) AddBinary(key string, val []byte) {
	if e.r.sensitiveKey(key) {
		e.Encoder.AddString(key, redacted)
		return
	}
	e.Encoder.AddBinary(key, val)
}

func (e *redactingEncoder) AddReflected(key string, val any) error {
	if e.r.sensitiveKey(key) {
		e.Encoder.AddString(key, redacted)
		return nil
	}
	return e.Encoder.AddReflected(key, val)
}

func (e *redactingEncoder) AddObject(key string, obj zapcore.ObjectMarshaler) error {
	if e.r.sensitiveKey(key) {
		e.Encoder.AddString(key, redacted)
		return nil
	}
	return e.Encoder.AddObject(key, obj)
}

func (e *redactingEncoder) AddArray(key string, arr zapcore.ArrayMarshaler) error {
	if e.r.sensitiveKey(key) {
		e.Encoder.AddString(key, redacted)
		return nil
	}
	return e.Encoder.AddArray(key, arr)
}
