package main

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/noop"

	"github.com/AntonStoeckl/eventsourced-aggregates-go/config"
	"github.com/AntonStoeckl/eventsourced-aggregates-go/example/bankaccount"
	"github.com/AntonStoeckl/eventsourced-aggregates-go/identifier"
	"github.com/AntonStoeckl/eventsourced-aggregates-go/testutil/helper"
)

// bodyRecorder keeps the body of every bridged record.
type bodyRecorder struct {
	noop.Logger

	mu     sync.Mutex
	bodies []string
}

// recorderProvider hands out one shared bodyRecorder.
type recorderProvider struct {
	noop.LoggerProvider

	recorder *bodyRecorder
}

func (p recorderProvider) Logger(string, ...log.LoggerOption) log.Logger {
	return p.recorder
}

func (r *bodyRecorder) Enabled(context.Context, log.EnabledParameters) bool {
	return true
}

func (r *bodyRecorder) Emit(_ context.Context, record log.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.bodies = append(r.bodies, record.Body().AsString())
}

func (r *bodyRecorder) received() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.bodies...)
}

func Test_ContextualLogger_ShouldWrite_ThroughTheOTelBridge_When_ObservabilityIsEnabled(t *testing.T) {
	// setup
	logSpy := helper.NewLogHandlerSpy(false)
	logger := slog.New(logSpy)
	recorder := &bodyRecorder{}

	obs := newObservability(config.ObservabilityConfig{Enabled: true, Metrics: config.MetricsOTel}, logger)
	t.Cleanup(func() { obs.shutdown(context.Background(), logger) })
	obs.logProvider = recorderProvider{recorder: recorder}

	a, err := newApp(context.Background(), config.Default(), logger, obs)
	require.NoError(t, err)
	t.Cleanup(a.close)

	// act
	err = a.bus.Send(context.Background(), bankaccount.OpenAccount{AccountID: identifier.New(), Owner: "Jane Doe", OpeningBalance: 950})

	// assert
	require.NoError(t, err)
	assert.Contains(t, recorder.received(), "repository operation: aggregate saved")
	assert.Contains(t, recorder.received(), "command bus: command handled")
	assert.True(t, logSpy.HasInfoLogWithMessage("repository operation: aggregate saved").Assert())
}

func Test_ContextualLogger_When_ObservabilityIsDisabled(t *testing.T) {
	// setup
	logger := slog.New(helper.NewLogHandlerSpy(false))
	obs := newObservability(config.ObservabilityConfig{}, logger)

	// act
	contextual := obs.contextualLogger(logger)

	// assert
	assert.Same(t, logger, contextual)
}
