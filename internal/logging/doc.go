// Package logging wraps zap for launchpad's pipeline components.
//
// Every log method takes a context and adds the correlation fields found in
// it: trace and span ids from OpenTelemetry, the operation id, the pipeline
// stage and the HTTP request id.
//
//	ctx = logging.WithOperationID(ctx, op.ID())
//	ctx = logging.WithStage(ctx, "merge")
//	logger.Info(ctx, "stage completed", zap.Duration("duration", d))
//
// produces
//
//	{"level":"info","msg":"stage completed","operation.id":"0b6f...","pipeline.stage":"merge","duration":"45ms"}
//
// Entries go to stderr; stdout carries command output. The level and
// encoding come from the logging section of the launchpad config
// (LOGGING_LEVEL, LOGGING_FORMAT). When telemetry is enabled, entries are
// also sent through the otelzap bridge.
//
// config.Secret values always render redacted. On top of that the encoder
// blanks fields with sensitive names and masks bearer tokens, GitHub tokens,
// NATS nkey seeds and remote URL credentials wherever they appear in the
// message, bound fields or per-call fields.
//
// Repeated debug and info entries are sampled per message. Warnings and
// errors are never sampled.
//
// Tests use TestLogger:
//
//	tl := logging.NewTestLogger()
//	stack := compensation.NewStack(tl.Logger)
//	...
//	tl.AssertLogged(t, zapcore.ErrorLevel, "compensating action failed")
package logging
