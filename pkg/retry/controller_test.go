package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Nephrolytics-ai/polyglot-extract/pkg/failure"
	"github.com/stretchr/testify/suite"
)

type recordingTimer struct {
	waits []time.Duration
}

func (t *recordingTimer) After(d time.Duration) <-chan time.Time {
	t.waits = append(t.waits, d)
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

// blockingTimer never fires, so only context cancellation can end the wait.
type blockingTimer struct {
	started chan struct{}
}

func (t *blockingTimer) After(time.Duration) <-chan time.Time {
	close(t.started)
	return make(chan time.Time)
}

type ControllerSuite struct {
	suite.Suite
	timer *recordingTimer
	ctrl  *Controller
}

func TestControllerSuite(t *testing.T) {
	suite.Run(t, new(ControllerSuite))
}

func (s *ControllerSuite) SetupTest() {
	s.timer = &recordingTimer{}
	ctrl, err := NewController(DefaultPolicy(), WithTimer(s.timer))
	s.Require().NoError(err)
	s.ctrl = ctrl
}

func (s *ControllerSuite) TestThrottledUsesLongBackoffAndStopsAtBudget() {
	calls := 0
	_, attempts, err := Do(context.Background(), s.ctrl, func(context.Context, int) (string, error) {
		calls++
		return "", failure.Newf(failure.KindThrottled, "generate", "slow down")
	})

	s.Require().Error(err)
	s.ErrorIs(err, failure.Throttled)
	s.Equal(3, calls)
	s.Equal(3, attempts)
	s.Equal([]time.Duration{5 * time.Second, 10 * time.Second}, s.timer.waits)

	var fe *failure.Error
	s.Require().ErrorAs(err, &fe)
	s.Equal(3, fe.Attempts)
}

func (s *ControllerSuite) TestValidationFailuresUseDefaultBackoff() {
	_, _, err := Do(context.Background(), s.ctrl, func(context.Context, int) (int, error) {
		return 0, failure.Newf(failure.KindValidation, "validate", "missing required field `name`")
	})

	s.ErrorIs(err, failure.Validation)
	s.Contains(err.Error(), "missing required field `name`")
	s.Equal([]time.Duration{time.Second, 2 * time.Second}, s.timer.waits)
}

func (s *ControllerSuite) TestFatalFailureIsNotRetried() {
	for _, kind := range []failure.Kind{failure.KindConfiguration, failure.KindQuotaExceeded, failure.KindDecode} {
		s.timer.waits = nil
		calls := 0
		_, attempts, err := Do(context.Background(), s.ctrl, func(context.Context, int) (int, error) {
			calls++
			return 0, failure.Newf(kind, "generate", "nope")
		})
		s.Equal(kind, failure.KindOf(err))
		s.Equal(1, calls)
		s.Equal(1, attempts)
		s.Empty(s.timer.waits)
	}
}

func (s *ControllerSuite) TestUntypedErrorsAreClassified() {
	calls := 0
	_, _, err := Do(context.Background(), s.ctrl, func(context.Context, int) (int, error) {
		calls++
		return 0, errors.New("Incorrect API key provided")
	})
	s.ErrorIs(err, failure.Configuration)
	s.Equal(1, calls)

	calls = 0
	_, _, err = Do(context.Background(), s.ctrl, func(context.Context, int) (int, error) {
		calls++
		return 0, errors.New("connection reset by peer")
	})
	s.Equal(failure.KindUnknown, failure.KindOf(err))
	s.Equal(3, calls)
}

func (s *ControllerSuite) TestSucceedsAfterRetry() {
	out, attempts, err := Do(context.Background(), s.ctrl, func(_ context.Context, attempt int) (string, error) {
		if attempt == 1 {
			return "", failure.Newf(failure.KindMalformedOutput, "parse", "not json")
		}
		return "ok", nil
	})

	s.Require().NoError(err)
	s.Equal("ok", out)
	s.Equal(2, attempts)
	s.Equal([]time.Duration{time.Second}, s.timer.waits)
}

func (s *ControllerSuite) TestBackoffFollowsKindOfEachFailure() {
	_, _, err := Do(context.Background(), s.ctrl, func(_ context.Context, attempt int) (int, error) {
		if attempt == 1 {
			return 0, failure.Newf(failure.KindValidation, "validate", "bad")
		}
		return 0, failure.Newf(failure.KindThrottled, "generate", "slow")
	})

	s.ErrorIs(err, failure.Throttled)
	s.Equal([]time.Duration{time.Second, 10 * time.Second}, s.timer.waits)
}

func (s *ControllerSuite) TestDeadlineShorterThanBackoffStopsEarly() {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	calls := 0
	_, _, err := Do(ctx, s.ctrl, func(context.Context, int) (int, error) {
		calls++
		return 0, failure.Newf(failure.KindThrottled, "generate", "slow")
	})

	s.ErrorIs(err, failure.Throttled)
	s.Equal(1, calls)
	s.Empty(s.timer.waits)
}

func (s *ControllerSuite) TestCancelDuringBackoffReturnsCanceled() {
	timer := &blockingTimer{started: make(chan struct{})}
	ctrl, err := NewController(DefaultPolicy(), WithTimer(timer))
	s.Require().NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-timer.started
		cancel()
	}()

	_, attempts, err := Do(ctx, ctrl, func(context.Context, int) (int, error) {
		return 0, failure.Newf(failure.KindValidation, "validate", "bad")
	})
	s.ErrorIs(err, failure.Canceled)
	s.ErrorIs(err, context.Canceled)
	s.Equal(1, attempts)
}

func (s *ControllerSuite) TestCanceledContextMakesNoAttempt() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, _, err := Do(ctx, s.ctrl, func(context.Context, int) (int, error) {
		calls++
		return 0, nil
	})
	s.ErrorIs(err, failure.Canceled)
	s.Equal(0, calls)
}

func (s *ControllerSuite) TestBackoffDelaysStrictlyIncrease() {
	b := Backoff{Base: time.Second, Multiplier: 2, Jitter: 0.5}
	always := func() float64 { return 0.999 }
	never := func() float64 { return 0 }

	for attempt := 1; attempt < 8; attempt++ {
		s.Less(b.Delay(attempt, always), b.Delay(attempt+1, never), "attempt %d", attempt)
	}
	s.Equal(4*time.Second, b.Delay(3, nil))
	s.Equal(3*time.Second, Backoff{Base: time.Second, Multiplier: 2, Max: 3 * time.Second}.Delay(5, nil))
}

func (s *ControllerSuite) TestPolicyValidation() {
	bad := []Policy{
		{MaxAttempts: 0, Default: Backoff{Base: time.Second, Multiplier: 2}},
		{MaxAttempts: 3, Default: Backoff{Base: 0, Multiplier: 2}},
		{MaxAttempts: 3, Default: Backoff{Base: time.Second, Multiplier: 1}},
		{MaxAttempts: 3, Default: Backoff{Base: time.Second, Multiplier: 2, Jitter: 1}},
	}
	for _, p := range bad {
		_, err := NewController(p)
		s.ErrorIs(err, failure.Configuration)
	}
	s.NoError(DefaultPolicy().Validate())
}
