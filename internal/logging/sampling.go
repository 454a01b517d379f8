package logging

import (
	"go.uber.org/zap/zapcore"
)

// newSampledCore samples debug and info entries per message and tick.
// Warnings and errors bypass the sampler.
func newSampledCore(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled {
		return core
	}
	loud := &levelBand{Core: core, from: zapcore.WarnLevel, to: zapcore.FatalLevel}
	quiet := &levelBand{Core: core, from: zapcore.DebugLevel, to: zapcore.InfoLevel}
	return zapcore.NewTee(
		loud,
		zapcore.NewSamplerWithOptions(quiet, cfg.Tick, cfg.Initial, cfg.Thereafter),
	)
}

// levelBand passes only entries with from <= level <= to.
type levelBand struct {
	zapcore.Core
	from, to zapcore.Level
}

func (b *levelBand) Enabled(lvl zapcore.Level) bool {
	return lvl >= b.from && lvl <= b.to && b.Core.Enabled(lvl)
}

func (b *levelBand) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !b.Enabled(e.Level) {
		return ce
	}
	return b.Core.Check(e, ce)
}

func (b *levelBand) With(fields []zapcore.Field) zapcore.Core {
	return &levelBand{Core: b.Core.With(fields), from: b.from, to: b.to}
}
