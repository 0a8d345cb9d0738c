package command_test

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/eventsourced-aggregates-go/command"
	"github.com/AntonStoeckl/eventsourced-aggregates-go/eventstore"
	"github.com/AntonStoeckl/eventsourced-aggregates-go/identifier"
	"github.com/AntonStoeckl/eventsourced-aggregates-go/testutil/helper"
)

type renameThing struct {
	ThingID uuid.UUID
	Name    string
}

func (c renameThing) CommandType() string    { return "RenameThing" }
func (c renameThing) AggregateID() uuid.UUID { return c.ThingID }

type archiveThing struct {
	ThingID uuid.UUID
}

func (c archiveThing) CommandType() string    { return "ArchiveThing" }
func (c archiveThing) AggregateID() uuid.UUID { return c.ThingID }

var errNameTaken = errors.New("name is taken")

func Test_Send_ShouldDispatch_ToTheRegisteredHandler(t *testing.T) {
	// setup
	bus, err := command.NewBus()
	require.NoError(t, err)

	var received renameThing
	require.NoError(t, command.Register(bus, command.HandlerFunc[renameThing](func(_ context.Context, cmd renameThing) error {
		received = cmd
		return nil
	})))

	// arrange
	cmd := renameThing{ThingID: identifier.New(), Name: "lamp"}

	// act
	sendErr := bus.Send(context.Background(), cmd)

	// assert
	require.NoError(t, sendErr)
	assert.Equal(t, cmd, received)
	assert.True(t, bus.HasHandler(cmd))
	assert.False(t, bus.HasHandler(archiveThing{}))
}

func Test_Send_When_NoHandlerIsRegistered(t *testing.T) {
	// setup
	logHandler := helper.NewLogHandlerSpy(false)
	bus, err := command.NewBus(command.WithLogger(slog.New(logHandler)))
	require.NoError(t, err)
	command.MustRegister(bus, command.HandlerFunc[renameThing](func(context.Context, renameThing) error { return nil }))

	// act
	sendErr := bus.Send(context.Background(), archiveThing{ThingID: identifier.New()})

	// assert
	assert.ErrorIs(t, sendErr, command.ErrHandlerNotFound)
	assert.True(t, logHandler.HasWarnLogWithMessage("command bus: no handler registered").WithAttributeValue("command_type", "ArchiveThing").Assert())
}

func Test_Send_When_TheCommandIsNil(t *testing.T) {
	bus, err := command.NewBus()
	require.NoError(t, err)

	assert.ErrorIs(t, bus.Send(context.Background(), nil), command.ErrNilCommand)
}

func Test_Register_When_TheHandlerIsNil(t *testing.T) {
	bus, err := command.NewBus()
	require.NoError(t, err)

	assert.ErrorIs(t, command.Register[renameThing](bus, nil), command.ErrNilHandler)
	assert.Panics(t, func() { command.MustRegister[renameThing](bus, nil) })
}

func Test_Send_ShouldReturn_TheHandlerErrorUnchanged(t *testing.T) {
	// setup
	bus, err := command.NewBus()
	require.NoError(t, err)
	command.MustRegister(bus, command.HandlerFunc[renameThing](func(context.Context, renameThing) error {
		return errNameTaken
	}))

	// act
	sendErr := bus.Send(context.Background(), renameThing{ThingID: identifier.New()})

	// assert
	assert.Equal(t, errNameTaken, sendErr)
}

func Test_Register_ASecondTime_ShouldReplace_TheFirstHandler(t *testing.T) {
	// setup
	logHandler := helper.NewLogHandlerSpy(false)
	bus, err := command.NewBus(command.WithLogger(slog.New(logHandler)))
	require.NoError(t, err)

	calledFirst, calledSecond := false, false
	command.MustRegister(bus, command.HandlerFunc[renameThing](func(context.Context, renameThing) error {
		calledFirst = true
		return nil
	}))

	// act
	command.MustRegister(bus, command.HandlerFunc[renameThing](func(context.Context, renameThing) error {
		calledSecond = true
		return nil
	}))
	sendErr := bus.Send(context.Background(), renameThing{ThingID: identifier.New()})

	// assert
	require.NoError(t, sendErr)
	assert.False(t, calledFirst)
	assert.True(t, calledSecond)
	assert.True(t, logHandler.HasWarnLogWithMessage("command bus: handler replaced").WithAttribute("command_go_type").Assert())
}

func Test_Send_ShouldPut_AMessageID_IntoTheContext(t *testing.T) {
	// setup
	messageID := identifier.New()
	bus, err := command.NewBus(command.WithMessageIDGenerator(identifier.Sequence(messageID)))
	require.NoError(t, err)

	var causationID, correlationID uuid.UUID
	var hasCorrelation bool
	command.MustRegister(bus, command.HandlerFunc[renameThing](func(ctx context.Context, _ renameThing) error {
		causationID, _ = eventstore.CausationIDFrom(ctx)
		correlationID, hasCorrelation = eventstore.CorrelationIDFrom(ctx)
		return nil
	}))

	// act
	require.NoError(t, bus.Send(context.Background(), renameThing{ThingID: identifier.New()}))

	// assert
	assert.Equal(t, messageID, causationID)
	assert.False(t, hasCorrelation, "the first command of a conversation has no correlation id yet")
	assert.Equal(t, uuid.Nil, correlationID)
}

func Test_Send_ShouldCorrelate_ACommandCausedByAnEarlierMessage(t *testing.T) {
	// setup
	messageID := identifier.New()
	bus, err := command.NewBus(command.WithMessageIDGenerator(identifier.Sequence(messageID)))
	require.NoError(t, err)

	var causationID, correlationID uuid.UUID
	command.MustRegister(bus, command.HandlerFunc[renameThing](func(ctx context.Context, _ renameThing) error {
		causationID, _ = eventstore.CausationIDFrom(ctx)
		correlationID, _ = eventstore.CorrelationIDFrom(ctx)
		return nil
	}))

	// arrange
	earlierMessageID := identifier.New()
	ctx := eventstore.WithCausationID(context.Background(), earlierMessageID)

	// act
	require.NoError(t, bus.Send(ctx, renameThing{ThingID: identifier.New()}))

	// assert
	assert.Equal(t, messageID, causationID)
	assert.Equal(t, earlierMessageID, correlationID)
}

func Test_Send_WithRetry_ShouldRerun_TheHandler_OnConcurrencyConflicts(t *testing.T) {
	// setup
	metrics := helper.NewMetricsCollectorSpy()
	tracing := helper.NewTracingCollectorSpy()
	bus, err := command.NewBus(
		command.WithRetry(command.WithBaseDelay(time.Millisecond), command.WithJitterFactor(0)),
		command.WithMetrics(metrics),
		command.WithTracing(tracing),
	)
	require.NoError(t, err)

	var calls atomic.Int32
	command.MustRegister(bus, command.HandlerFunc[renameThing](func(context.Context, renameThing) error {
		if calls.Add(1) < 3 {
			return eventstore.ErrConcurrencyConflict
		}
		return nil
	}))

	// act
	sendErr := bus.Send(context.Background(), renameThing{ThingID: identifier.New()})

	// assert
	require.NoError(t, sendErr)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 2, metrics.CounterCount("commandbus_retries_total"))
	assert.True(t, metrics.HasDurationRecord("commandbus_send_duration_seconds", "success"))

	span, found := tracing.FindSpan("commandbus.send")
	require.True(t, found)
	assert.Equal(t, "3", span.EndAttributes["attempts"])
	assert.Equal(t, "success", span.Status)
}

func Test_Send_WithoutRetry_ShouldReturn_TheFirstConcurrencyConflict(t *testing.T) {
	// setup
	bus, err := command.NewBus()
	require.NoError(t, err)

	var calls atomic.Int32
	command.MustRegister(bus, command.HandlerFunc[renameThing](func(context.Context, renameThing) error {
		calls.Add(1)
		return eventstore.ErrConcurrencyConflict
	}))

	// act
	sendErr := bus.Send(context.Background(), renameThing{ThingID: identifier.New()})

	// assert
	assert.ErrorIs(t, sendErr, eventstore.ErrConcurrencyConflict)
	assert.Equal(t, int32(1), calls.Load())
}

func Test_NewBus_When_TheRetryOptionsAreInvalid(t *testing.T) {
	testCases := []struct {
		name     string
		option   command.RetryOption
		expected error
	}{
		{"zero attempts", command.WithMaxAttempts(0), command.ErrInvalidMaxAttempts},
		{"negative base delay", command.WithBaseDelay(-time.Millisecond), command.ErrNegativeBaseDelay},
		{"jitter above one", command.WithJitterFactor(1.5), command.ErrInvalidJitterFactor},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			bus, err := command.NewBus(command.WithRetry(tc.option))

			assert.ErrorIs(t, err, tc.expected)
			assert.Nil(t, bus)
		})
	}
}

func Test_NewBus_WithValidRetryOptions(t *testing.T) {
	bus, err := command.NewBus(command.WithRetry(command.WithMaxAttempts(2), command.WithBaseDelay(0)))

	require.NoError(t, err)
	assert.NotNil(t, bus)
}

func Test_Send_ShouldLog_HandledAndFailedCommands(t *testing.T) {
	// setup
	logHandler := helper.NewLogHandlerSpy(false)
	bus, err := command.NewBus(command.WithContextualLogger(slog.New(logHandler)))
	require.NoError(t, err)
	command.MustRegister(bus, command.HandlerFunc[renameThing](func(context.Context, renameThing) error { return nil }))
	command.MustRegister(bus, command.HandlerFunc[archiveThing](func(context.Context, archiveThing) error { return errNameTaken }))

	// act
	require.NoError(t, bus.Send(context.Background(), renameThing{ThingID: identifier.New()}))
	require.Error(t, bus.Send(context.Background(), archiveThing{ThingID: identifier.New()}))

	// assert
	assert.True(t, logHandler.HasInfoLogWithMessage("command bus: command handled").
		WithAttributeValue("command_type", "RenameThing").WithDurationMS().Assert())
	assert.True(t, logHandler.HasErrorLogWithMessage("command bus: command handler failed").
		WithAttributeValue("command_type", "ArchiveThing").WithAttributeValue("error_type", "other").Assert())
}

func Test_Send_ShouldLog_WithTheContextOfTheCommand(t *testing.T) {
	// setup
	messageID := identifier.New()
	loggerSpy := helper.NewContextualLoggerSpy()
	bus, err := command.NewBus(
		command.WithContextualLogger(loggerSpy),
		command.WithMessageIDGenerator(identifier.Sequence(messageID)),
	)
	require.NoError(t, err)
	command.MustRegister(bus, command.HandlerFunc[renameThing](func(context.Context, renameThing) error { return nil }))

	// act
	require.NoError(t, bus.Send(context.Background(), renameThing{ThingID: identifier.New()}))

	// assert
	record, found := loggerSpy.Find("info", "command bus: command handled")
	require.True(t, found)

	causationID, hasCausation := eventstore.CausationIDFrom(record.Context)
	assert.True(t, hasCausation)
	assert.Equal(t, messageID, causationID)

	attempts, hasAttempts := record.Arg("attempts")
	assert.True(t, hasAttempts)
	assert.Equal(t, 1, attempts)

	_, dispatched := loggerSpy.Find("debug", "command bus: command dispatched")
	assert.True(t, dispatched)
}
