package logging

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func sampled(cfg SamplingConfig) (*Logger, *observer.ObservedLogs) {
	core, observed := observer.New(zapcore.DebugLevel)
	return &Logger{zap: zap.New(newSampledCore(core, cfg))}, observed
}

func TestNewSampledCore_Disabled(t *testing.T) {
	core, _ := observer.New(zapcore.InfoLevel)
	assert.Equal(t, core, newSampledCore(core, SamplingConfig{}))
}

func TestNewSampledCore_RepeatedInfoSampled(t *testing.T) {
	logger, observed := sampled(SamplingConfig{Enabled: true, Tick: time.Minute, Initial: 5, Thereafter: 10})
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		logger.Info(ctx, "polling validation status")
	}
	logger.Info(ctx, "stage completed")

	// 5 initial, then every 10th of the remaining 95.
	assert.Equal(t, 14, observed.FilterMessage("polling validation status").Len())
	assert.Equal(t, 1, observed.FilterMessage("stage completed").Len(), "sampling is per message")
}

func TestNewSampledCore_WarningsAndErrorsNeverSampled(t *testing.T) {
	logger, observed := sampled(SamplingConfig{Enabled: true, Tick: time.Minute, Initial: 1})
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		logger.Warn(ctx, "stage attempt failed")
		logger.Error(ctx, "compensating action failed")
	}

	assert.Equal(t, 50, observed.FilterMessage("stage attempt failed").Len())
	assert.Equal(t, 50, observed.FilterMessage("compensating action failed").Len())
}

func TestLevelBand_With(t *testing.T) {
	core, observed := observer.New(zapcore.DebugLevel)
	band := &levelBand{Core: core, from: zapcore.WarnLevel, to: zapcore.FatalLevel}
	logger := (&Logger{zap: zap.New(band)}).With(zap.String("component", "orchestrator"))
	ctx := context.Background()

	logger.Info(ctx, "dropped")
	logger.Warn(ctx, "kept")

	entries := observed.All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "kept", entries[0].Message)
		assert.Equal(t, "orchestrator", entries[0].ContextMap()["component"])
	}
}
