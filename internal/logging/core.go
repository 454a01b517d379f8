package logging

import (
	"errors"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// bridgeName is the instrumentation scope of bridged log records.
const bridgeName = "github.com/fyrsmithlabs/launchpad"

func newEncoder(format string) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "ts"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	if format == "console" {
		return zapcore.NewConsoleEncoder(ec)
	}
	return zapcore.NewJSONEncoder(ec)
}

// newCore tees the console and OpenTelemetry outputs, then samples. The
// OpenTelemetry output is skipped while provider is nil.
func newCore(cfg *Config, provider log.LoggerProvider, w zapcore.WriteSyncer) (zapcore.Core, error) {
	r, err := newRedactor(cfg.Redaction)
	if err != nil {
		return nil, err
	}

	var cores []zapcore.Core
	if cfg.Console {
		enc := &redactingEncoder{Encoder: newEncoder(cfg.Format), r: r}
		cores = append(cores, zapcore.NewCore(enc, w, cfg.Level))
	}
	if cfg.OTEL && provider != nil {
		bridge := otelzap.NewCore(bridgeName, otelzap.WithLoggerProvider(provider))
		cores = append(cores, &redactingCore{Core: bridge, level: cfg.Level, r: r})
	}
	if len(cores) == 0 {
		return nil, errors.New("no log output available")
	}
	return newSampledCore(zapcore.NewTee(cores...), cfg.Sampling), nil
}

// redactingCore redacts entries bound for a core without an encoder, such
// as the OpenTelemetry bridge, and holds it to the configured level.
type redactingCore struct {
	zapcore.Core
	level zapcore.LevelEnabler
	r     *redactor
}

func (c *redactingCore) Enabled(lvl zapcore.Level) bool {
	return c.level.Enabled(lvl) && c.Core.Enabled(lvl)
}

func (c *redactingCore) With(fields []zapcore.Field) zapcore.Core {
	return &redactingCore{Core: c.Core.With(c.r.fields(fields)), level: c.level, r: c.r}
}

func (c *redactingCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(e.Level) {
		return ce.AddCore(e, c)
	}
	return ce
}

func (c *redactingCore) Write(e zapcore.Entry, fields []zapcore.Field) error {
	e.Message = c.r.text(e.Message)
	return c.Core.Write(e, c.r.fields(fields))
}
