package provision

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/muurk/wifiprov/internal/device"
	"github.com/muurk/wifiprov/internal/retry"
	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindNone},
		{"cancelled", ErrCancelled, KindCancelled},
		{"context canceled", fmt.Errorf("wrapped: %w", context.Canceled), KindCancelled},
		{"retry cancelled", fmt.Errorf("%w: %w", retry.ErrCancelled, context.DeadlineExceeded), KindCancelled},
		{"unreachable wraps transport cause", fmt.Errorf("%w: %w", ErrUnreachable, transportErr()), KindUnreachable},
		{"scan timed out", ErrScanTimedOut, KindScanTimedOut},
		{"scan initiation", fmt.Errorf("%w: %w", ErrScanInitiationFailed, device.NewRejectedError(503, "", "busy")), KindScanInitiation},
		{"rejected", fmt.Errorf("%w: x", ErrSubmissionRejected), KindSubmissionRejected},
		{"invalid input", ErrInvalidInput, KindValidation},
		{"invalid state", ErrInvalidState, KindInvalidState},
		{"closed", ErrClosed, KindClosed},
		{"bare transport device error", transportErr(), KindTransport},
		{"bare 5xx", device.NewHTTPError(http.StatusBadGateway, ""), KindTransport},
		{"bare 4xx", device.NewHTTPError(http.StatusNotFound, ""), KindProtocol},
		{"bare validation", device.NewValidationError("empty"), KindValidation},
		{"bare canceled device error", &device.DeviceError{Type: device.ErrTypeCanceled}, KindCancelled},
		{"unknown", errors.New("mystery"), KindProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	assert.ErrorIs(t, classify(transportErr()), ErrTransport)
	assert.ErrorIs(t, classify(protocolErr()), ErrProtocol)
	assert.ErrorIs(t, classify(device.NewValidationError("x")), ErrInvalidInput)
	assert.ErrorIs(t, classify(&device.DeviceError{Type: device.ErrTypeCanceled}), ErrCancelled)

	var devErr *device.DeviceError
	assert.ErrorAs(t, classify(protocolErr()), &devErr, "cause stays reachable")
}

func TestCancelledUsesCause(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(errUserCancel)
	assert.Equal(t, errUserCancel, cancelled(ctx))

	ctx2, cancel2 := context.WithCancel(context.Background())
	cancel2()
	err := cancelled(ctx2)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestKind_StringAndRetryable(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "unreachable", KindUnreachable.String())
	assert.Equal(t, "", KindNone.String())
	assert.Equal(t, "Kind(99)", Kind(99).String())
	assert.True(t, KindUnreachable.Retryable())
	assert.True(t, KindScanTimedOut.Retryable())
	assert.False(t, KindCancelled.Retryable())
	assert.False(t, KindValidation.Retryable())
}

func TestState_Strings(t *testing.T) {
	t.Parallel()

	for s := StateIdle; s <= StateConnectFailed; s++ {
		parsed, ok := ParseState(s.String())
		assert.True(t, ok, s.String())
		assert.Equal(t, s, parsed)
	}
	_, ok := ParseState("bogus")
	assert.False(t, ok)
	assert.Equal(t, "State(42)", State(42).String())

	assert.True(t, StateVerifying.Busy())
	assert.False(t, StateConnected.Busy())
	assert.True(t, StateUnreachable.Failed())
	assert.False(t, StateNoNetworks.Failed())
}

func TestOptions_Validate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, DefaultOptions().Validate())
	assert.NoError(t, Options{}.Validate())

	bad := DefaultOptions()
	bad.ScanMaxAttempts = -1
	assert.Error(t, bad.Validate())

	bad = DefaultOptions()
	bad.Backoff = retry.Schedule{Steps: []time.Duration{10 * time.Second, time.Second}, Cap: time.Minute}
	assert.Error(t, bad.Validate())
}

func TestOptions_Defaults(t *testing.T) {
	t.Parallel()

	o := Options{}.withDefaults()
	assert.Equal(t, DefaultScanInterval, o.ScanInterval)
	assert.Equal(t, DefaultScanMaxAttempts, o.ScanMaxAttempts)
	assert.Equal(t, DefaultFailureThreshold, o.FailureThreshold)
	assert.Equal(t, retry.DefaultSchedule(), o.Backoff)
	assert.NotNil(t, o.Sleeper)
	assert.NotNil(t, o.Clock)
	assert.NotNil(t, o.Observer)
}

func TestOptions_DefaultsReplaceNegativeValues(t *testing.T) {
	t.Parallel()

	o := Options{
		ScanInterval:     -time.Second,
		ScanMaxAttempts:  -4,
		FailureThreshold: -1,
		Backoff:          retry.Schedule{Steps: []time.Duration{10 * time.Second, time.Second}, Cap: time.Minute},
	}.withDefaults()
	assert.Equal(t, DefaultScanInterval, o.ScanInterval)
	assert.Equal(t, DefaultScanMaxAttempts, o.ScanMaxAttempts)
	assert.Equal(t, DefaultFailureThreshold, o.FailureThreshold)
	assert.Equal(t, retry.DefaultSchedule(), o.Backoff)

	custom := retry.Schedule{Steps: []time.Duration{time.Second}, Cap: 4 * time.Second}
	assert.Equal(t, custom, Options{Backoff: custom}.withDefaults().Backoff)
}
