package session

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/SAP-F-2025/assessment-session/internal/eligibility"
	"github.com/SAP-F-2025/assessment-session/internal/events"
	"github.com/SAP-F-2025/assessment-session/internal/models"
	"github.com/SAP-F-2025/assessment-session/internal/repositories"
	"github.com/SAP-F-2025/assessment-session/internal/scoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ===== MOCKS =====

type MockSubmissionStore struct {
	mock.Mock
}

func (m *MockSubmissionStore) CreateSubmission(ctx context.Context, attempt *models.SubmissionAttempt) (uint, error) {
	args := m.Called(ctx, attempt)
	return args.Get(0).(uint), args.Error(1)
}

func (m *MockSubmissionStore) FindSubmission(ctx context.Context, assignmentID uint, learnerID string, attemptNumber int) (*models.SubmissionAttempt, error) {
	args := m.Called(ctx, assignmentID, learnerID, attemptNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SubmissionAttempt), args.Error(1)
}

type MockEvaluator struct {
	mock.Mock
}

func (m *MockEvaluator) Evaluate(ctx context.Context, storedID uint, result scoring.Result) (*models.EvaluationResult, error) {
	args := m.Called(ctx, storedID, result)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EvaluationResult), args.Error(1)
}

type recordingListener struct {
	mu     sync.Mutex
	ticks  []int
	states []State
}

func (l *recordingListener) OnTick(remaining int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ticks = append(l.ticks, remaining)
}

func (l *recordingListener) OnStateChange(state State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, state)
}

func (l *recordingListener) snapshot() ([]int, []State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int(nil), l.ticks...), append([]State(nil), l.states...)
}

// ===== FIXTURES =====

var testNow = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

func testDefinition() *models.AssignmentDefinition {
	return &models.AssignmentDefinition{
		ID:               42,
		Title:            "Capitals",
		TimeLimitMinutes: 1,
		DueDate:          testNow.Add(24 * time.Hour),
		MaxScore:         10,
		Questions: []models.Question{
			{ID: 1, Type: models.MultipleChoice, Text: "France", Options: []models.Option{{Text: "Paris", IsCorrect: true}, {Text: "Lyon"}}},
			{ID: 2, Type: models.MultipleChoice, Text: "Italy", Options: []models.Option{{Text: "Rome", IsCorrect: true}, {Text: "Milan"}}},
			{ID: 3, Type: models.MultipleChoice, Text: "Spain", Options: []models.Option{{Text: "Madrid", IsCorrect: true}, {Text: "Seville"}}},
			{ID: 4, Type: models.MultipleChoice, Text: "Japan", Options: []models.Option{{Text: "Tokyo", IsCorrect: true}, {Text: "Osaka"}}},
		},
	}
}

type fixture struct {
	ctrl      *Controller
	store     *MockSubmissionStore
	evaluator *MockEvaluator
	publisher *events.MockEventPublisher
	listener  *recordingListener
}

func newFixture(t *testing.T, def *models.AssignmentDefinition, prior []models.SubmissionAttempt, now time.Time) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	f := &fixture{
		store:     new(MockSubmissionStore),
		evaluator: new(MockEvaluator),
		publisher: events.NewMockEventPublisher(logger),
		listener:  &recordingListener{},
	}
	ctrl, err := NewController(Options{
		ID:            "sess-1",
		Definition:    def,
		LearnerID:     "learner-1",
		PriorAttempts: prior,
		Store:         f.store,
		Evaluator:     f.evaluator,
		Publisher:     f.publisher,
		Listener:      f.listener,
		Logger:        logger,
		Now:           func() time.Time { return now },
		ManualTicks:   true,
	})
	require.NoError(t, err)
	f.ctrl = ctrl
	return f
}

func startedFixture(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t, testDefinition(), nil, testNow)
	decision, err := f.ctrl.Start(context.Background())
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	return f
}

func runClockOut(c *Controller) {
	for c.Clock().Tick() {
	}
}

// ===== START =====

func TestController_Start(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		f := startedFixture(t)

		assert.Equal(t, StateInProgress, f.ctrl.State())
		assert.Equal(t, 60, f.ctrl.Clock().Remaining())
		assert.Empty(t, f.ctrl.Answers())
		assert.Equal(t, []events.EventType{events.EventSessionStarted}, f.publisher.EventTypes())
	})

	t.Run("DefaultTimeLimit", func(t *testing.T) {
		def := testDefinition()
		def.TimeLimitMinutes = 0
		f := newFixture(t, def, nil, testNow)

		_, err := f.ctrl.Start(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 15*60, f.ctrl.Clock().Remaining())
		assert.Equal(t, "15:00", f.ctrl.View().Countdown)
	})

	t.Run("Blocked_Overdue", func(t *testing.T) {
		def := testDefinition()
		def.DueDate = testNow.Add(-time.Minute)
		f := newFixture(t, def, nil, testNow)

		decision, err := f.ctrl.Start(context.Background())

		assert.ErrorIs(t, err, ErrBlocked)
		assert.Equal(t, eligibility.ReasonOverdue, decision.Reason)
		assert.Equal(t, StateBlocked, f.ctrl.State())
		assert.Nil(t, f.ctrl.Clock())
		assert.Equal(t, eligibility.ReasonOverdue, f.ctrl.View().BlockReason)
	})

	t.Run("Blocked_AttemptsExhausted", func(t *testing.T) {
		def := testDefinition()
		def.SubmissionLimit = intPtr(1)
		f := newFixture(t, def, []models.SubmissionAttempt{{ID: 9, AttemptNumber: 1}}, testNow)

		decision, err := f.ctrl.Start(context.Background())

		assert.ErrorIs(t, err, ErrBlocked)
		assert.Equal(t, eligibility.ReasonAttemptsExhausted, decision.Reason)

		accepted, err := f.ctrl.RecordAnswer(1, "Paris")
		assert.NoError(t, err)
		assert.False(t, accepted)

		_, err = f.ctrl.RequestSubmit(context.Background())
		assert.ErrorIs(t, err, ErrNotInProgress)
		f.store.AssertNotCalled(t, "CreateSubmission", mock.Anything, mock.Anything)
	})

	t.Run("AlreadyStarted", func(t *testing.T) {
		f := startedFixture(t)

		_, err := f.ctrl.Start(context.Background())

		assert.ErrorIs(t, err, ErrAlreadyStarted)
		assert.Equal(t, StateInProgress, f.ctrl.State())
	})
}

// ===== ANSWERS =====

func TestController_RecordAnswer(t *testing.T) {
	t.Run("AcceptsAndOverwrites", func(t *testing.T) {
		f := startedFixture(t)

		accepted, err := f.ctrl.RecordAnswer(1, "Lyon")
		require.NoError(t, err)
		assert.True(t, accepted)
		_, _ = f.ctrl.RecordAnswer(1, "Paris")

		assert.Equal(t, map[uint]string{1: "Paris"}, f.ctrl.Answers())
		assert.Equal(t, 1, f.ctrl.AnsweredCount())
	})

	t.Run("UnknownQuestion", func(t *testing.T) {
		f := startedFixture(t)

		accepted, err := f.ctrl.RecordAnswer(99, "x")

		assert.ErrorIs(t, err, ErrUnknownQuestion)
		assert.False(t, accepted)
	})

	t.Run("BeforeStartIgnored", func(t *testing.T) {
		f := newFixture(t, testDefinition(), nil, testNow)

		accepted, err := f.ctrl.RecordAnswer(1, "Paris")

		assert.NoError(t, err)
		assert.False(t, accepted)
	})

	t.Run("AfterSubmitIgnored", func(t *testing.T) {
		f := startedFixture(t)
		f.store.On("CreateSubmission", mock.Anything, mock.Anything).Return(uint(5), nil).Once()
		f.evaluator.On("Evaluate", mock.Anything, uint(5), mock.Anything).Return(&models.EvaluationResult{StoredID: 5}, nil)
		_, _ = f.ctrl.RecordAnswer(1, "Paris")

		_, err := f.ctrl.RequestSubmit(context.Background())
		require.NoError(t, err)

		accepted, err := f.ctrl.RecordAnswer(2, "Rome")
		assert.NoError(t, err)
		assert.False(t, accepted)
		assert.Equal(t, map[uint]string{1: "Paris"}, f.ctrl.Outcome().Attempt.Answers)
	})
}

// ===== SUBMISSION =====

func TestController_RequestSubmit(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		f := startedFixture(t)
		var stored *models.SubmissionAttempt
		f.store.On("CreateSubmission", mock.Anything, mock.AnythingOfType("*models.SubmissionAttempt")).
			Run(func(args mock.Arguments) { stored = args.Get(1).(*models.SubmissionAttempt) }).
			Return(uint(11), nil).Once()
		f.evaluator.On("Evaluate", mock.Anything, uint(11), mock.Anything).
			Return(&models.EvaluationResult{StoredID: 11, Feedback: "good"}, nil).Once()

		_, _ = f.ctrl.RecordAnswer(1, "Paris")
		_, _ = f.ctrl.RecordAnswer(2, "rome ")
		_, _ = f.ctrl.RecordAnswer(3, "Madrid")
		_, _ = f.ctrl.RecordAnswer(4, "Osaka")

		out, err := f.ctrl.RequestSubmit(context.Background())

		require.NoError(t, err)
		assert.Equal(t, StateSubmitted, f.ctrl.State())
		assert.Equal(t, uint(11), out.StoredID)
		assert.Equal(t, 3, out.Score.CorrectCount)
		assert.InDelta(t, 7.5, out.Score.RawScore, 1e-9)
		assert.Equal(t, "good", out.Evaluation.Feedback)
		assert.Empty(t, out.EvaluationError)
		assert.Equal(t, "submitted by learner", out.Message)

		require.NotNil(t, stored)
		assert.Equal(t, 1, stored.AttemptNumber)
		assert.Equal(t, "learner-1", stored.LearnerID)
		assert.False(t, stored.IsLate)
		assert.False(t, stored.IsAutoSubmitted)
		assert.Len(t, stored.Answers, 4)

		assert.False(t, f.ctrl.Clock().Running())
		assert.Contains(t, f.publisher.EventTypes(), events.EventSessionSubmitted)
		f.store.AssertExpectations(t)
		f.evaluator.AssertExpectations(t)
	})

	t.Run("SecondSubmitReturnsExistingOutcome", func(t *testing.T) {
		f := startedFixture(t)
		f.store.On("CreateSubmission", mock.Anything, mock.Anything).Return(uint(3), nil).Once()
		f.evaluator.On("Evaluate", mock.Anything, uint(3), mock.Anything).Return(&models.EvaluationResult{StoredID: 3}, nil).Once()

		first, err := f.ctrl.RequestSubmit(context.Background())
		require.NoError(t, err)
		second, err := f.ctrl.RequestSubmit(context.Background())

		assert.ErrorIs(t, err, ErrAlreadySubmitted)
		assert.Same(t, first, second)
		f.store.AssertNumberOfCalls(t, "CreateSubmission", 1)
	})

	t.Run("AttemptNumberAndLateFlag", func(t *testing.T) {
		def := testDefinition()
		def.DueDate = testNow.Add(-time.Hour)
		def.AllowLateSubmission = true
		def.SubmissionLimit = intPtr(3)
		f := newFixture(t, def, []models.SubmissionAttempt{{ID: 1, AttemptNumber: 1}}, testNow)
		_, err := f.ctrl.Start(context.Background())
		require.NoError(t, err)

		var stored *models.SubmissionAttempt
		f.store.On("CreateSubmission", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { stored = args.Get(1).(*models.SubmissionAttempt) }).
			Return(uint(2), nil).Once()
		f.evaluator.On("Evaluate", mock.Anything, uint(2), mock.Anything).Return(&models.EvaluationResult{}, nil).Once()

		_, err = f.ctrl.RequestSubmit(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 2, stored.AttemptNumber)
		assert.True(t, stored.IsLate)
		assert.Equal(t, eligibility.Remaining{Count: 1}, f.ctrl.View().RemainingAttempts)
	})

	t.Run("TransportFailure_RetryPreservesAnswers", func(t *testing.T) {
		f := startedFixture(t)
		var calls []map[uint]string
		capture := func(args mock.Arguments) {
			calls = append(calls, cloneAnswers(args.Get(1).(*models.SubmissionAttempt).Answers))
		}
		f.store.On("CreateSubmission", mock.Anything, mock.Anything).Run(capture).Return(uint(0), errors.New("connection refused")).Once()
		f.store.On("CreateSubmission", mock.Anything, mock.Anything).Run(capture).Return(uint(8), nil).Once()
		f.evaluator.On("Evaluate", mock.Anything, uint(8), mock.Anything).Return(&models.EvaluationResult{StoredID: 8}, nil).Once()

		_, _ = f.ctrl.RecordAnswer(1, "Paris")
		_, _ = f.ctrl.RecordAnswer(2, "Milan")

		out, err := f.ctrl.RequestSubmit(context.Background())
		require.Error(t, err)
		assert.Nil(t, out)
		assert.True(t, IsRetryable(err))
		var se *SubmitError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, KindSubmitTransport, se.Kind)
		assert.Equal(t, StateSubmitFailed, f.ctrl.State())
		assert.Equal(t, map[uint]string{1: "Paris", 2: "Milan"}, f.ctrl.Answers())

		view := f.ctrl.View()
		assert.True(t, view.Retryable)
		assert.Contains(t, view.LastError, "connection refused")

		// Answers stay frozen while the submission is failed.
		accepted, _ := f.ctrl.RecordAnswer(3, "Madrid")
		assert.False(t, accepted)

		out, err = f.ctrl.RequestSubmit(context.Background())
		require.NoError(t, err)
		assert.Equal(t, StateSubmitted, f.ctrl.State())
		assert.Equal(t, uint(8), out.StoredID)
		require.Len(t, calls, 2)
		assert.Equal(t, calls[0], calls[1])
		assert.Contains(t, f.publisher.EventTypes(), events.EventSessionSubmitFailed)
	})

	t.Run("LostAcknowledgementUsesStoredAttempt", func(t *testing.T) {
		f := startedFixture(t)
		f.store.On("CreateSubmission", mock.Anything, mock.Anything).Return(uint(0), context.DeadlineExceeded).Once()
		f.store.On("CreateSubmission", mock.Anything, mock.Anything).Return(uint(0), repositories.ErrDuplicateSubmission).Once()
		f.store.On("FindSubmission", mock.Anything, uint(42), "learner-1", 1).
			Return(&models.SubmissionAttempt{ID: 31, AttemptNumber: 1, Answers: map[uint]string{1: "Paris"}}, nil).Once()
		f.evaluator.On("Evaluate", mock.Anything, uint(31), mock.Anything).Return(&models.EvaluationResult{StoredID: 31}, nil).Once()
		_, _ = f.ctrl.RecordAnswer(1, "Paris")

		_, err := f.ctrl.RequestSubmit(context.Background())
		require.Error(t, err)
		assert.Equal(t, StateSubmitFailed, f.ctrl.State())
		assert.False(t, f.ctrl.Settled())

		out, err := f.ctrl.RequestSubmit(context.Background())

		require.NoError(t, err)
		assert.Equal(t, StateSubmitted, f.ctrl.State())
		assert.Equal(t, uint(31), out.StoredID)
		assert.Equal(t, uint(31), out.Attempt.ID)
		require.NotNil(t, out.Evaluation)
		assert.Empty(t, f.ctrl.View().LastError)
		assert.True(t, f.ctrl.Settled())
		assert.Equal(t, testNow, f.ctrl.FinishedAt())
		f.store.AssertExpectations(t)
		f.evaluator.AssertExpectations(t)
	})

	t.Run("DuplicateFromOtherSessionIsNotRetryable", func(t *testing.T) {
		f := startedFixture(t)
		f.store.On("CreateSubmission", mock.Anything, mock.Anything).Return(uint(0), repositories.ErrDuplicateSubmission).Once()
		f.store.On("FindSubmission", mock.Anything, uint(42), "learner-1", 1).
			Return(&models.SubmissionAttempt{ID: 12, AttemptNumber: 1, Answers: map[uint]string{1: "Lyon"}}, nil).Once()
		_, _ = f.ctrl.RecordAnswer(1, "Paris")

		_, err := f.ctrl.RequestSubmit(context.Background())

		require.Error(t, err)
		assert.False(t, IsRetryable(err))
		var se *SubmitError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, KindSubmitConflict, se.Kind)
		assert.ErrorIs(t, err, repositories.ErrDuplicateSubmission)
		assert.Equal(t, StateSubmitFailed, f.ctrl.State())
		assert.False(t, f.ctrl.View().Retryable)
		assert.True(t, f.ctrl.Settled())

		_, err = f.ctrl.RequestSubmit(context.Background())
		assert.ErrorAs(t, err, &se)
		f.store.AssertNumberOfCalls(t, "CreateSubmission", 1)
		f.evaluator.AssertNotCalled(t, "Evaluate", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("EvaluationFailureStillSubmitted", func(t *testing.T) {
		f := startedFixture(t)
		f.store.On("CreateSubmission", mock.Anything, mock.Anything).Return(uint(4), nil).Once()
		f.evaluator.On("Evaluate", mock.Anything, uint(4), mock.Anything).Return(nil, errors.New("evaluator down")).Once()
		_, _ = f.ctrl.RecordAnswer(1, "Paris")

		out, err := f.ctrl.RequestSubmit(context.Background())

		require.NoError(t, err)
		assert.Equal(t, StateSubmitted, f.ctrl.State())
		assert.Nil(t, out.Evaluation)
		assert.Contains(t, out.EvaluationError, string(KindEvaluation))
		assert.Equal(t, 1, out.Score.CorrectCount)
		assert.Contains(t, f.publisher.EventTypes(), events.EventEvaluationFailed)
	})

	t.Run("InFlightRejectsSecondRoute", func(t *testing.T) {
		f := startedFixture(t)
		started := make(chan struct{})
		release := make(chan struct{})
		f.store.On("CreateSubmission", mock.Anything, mock.Anything).
			Run(func(mock.Arguments) {
				close(started)
				<-release
			}).
			Return(uint(6), nil).Once()
		f.evaluator.On("Evaluate", mock.Anything, uint(6), mock.Anything).Return(&models.EvaluationResult{}, nil).Once()

		type result struct {
			out *Outcome
			err error
		}
		done := make(chan result, 1)
		go func() {
			out, err := f.ctrl.RequestSubmit(context.Background())
			done <- result{out, err}
		}()
		<-started

		assert.Equal(t, StateSubmitting, f.ctrl.State())
		_, err := f.ctrl.RequestSubmit(context.Background())
		assert.ErrorIs(t, err, ErrSubmissionInFlight)
		f.ctrl.Expire()
		accepted, _ := f.ctrl.RecordAnswer(1, "Paris")
		assert.False(t, accepted)

		close(release)
		res := <-done
		require.NoError(t, res.err)
		assert.False(t, res.out.Attempt.IsAutoSubmitted)
		f.store.AssertNumberOfCalls(t, "CreateSubmission", 1)
	})
}

// ===== EXPIRY =====

func TestController_Expire(t *testing.T) {
	t.Run("ClockExpiryAutoSubmits", func(t *testing.T) {
		f := startedFixture(t)
		var stored *models.SubmissionAttempt
		f.store.On("CreateSubmission", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { stored = args.Get(1).(*models.SubmissionAttempt) }).
			Return(uint(21), nil).Once()
		f.evaluator.On("Evaluate", mock.Anything, uint(21), mock.Anything).Return(&models.EvaluationResult{StoredID: 21}, nil).Once()

		runClockOut(f.ctrl)

		assert.Equal(t, StateSubmitted, f.ctrl.State())
		require.NotNil(t, stored)
		assert.True(t, stored.IsAutoSubmitted)
		assert.Empty(t, stored.Answers)
		out := f.ctrl.Outcome()
		assert.Equal(t, 0, out.Score.CorrectCount)
		assert.Equal(t, 4, out.Score.Total)
		assert.Equal(t, "auto-submitted because time expired", out.Message)
		assert.Contains(t, f.publisher.EventTypes(), events.EventSessionAutoSubmitted)

		ticks, _ := f.listener.snapshot()
		require.Len(t, ticks, 60)
		assert.Equal(t, 0, ticks[len(ticks)-1])
	})

	t.Run("Idempotent", func(t *testing.T) {
		f := startedFixture(t)
		f.store.On("CreateSubmission", mock.Anything, mock.Anything).Return(uint(1), nil).Once()
		f.evaluator.On("Evaluate", mock.Anything, uint(1), mock.Anything).Return(&models.EvaluationResult{}, nil).Once()

		f.ctrl.Expire()
		f.ctrl.Expire()
		runClockOut(f.ctrl)

		f.store.AssertNumberOfCalls(t, "CreateSubmission", 1)
	})

	t.Run("ManualSubmitWinsRace", func(t *testing.T) {
		f := startedFixture(t)
		f.store.On("CreateSubmission", mock.Anything, mock.Anything).Return(uint(2), nil).Once()
		f.evaluator.On("Evaluate", mock.Anything, uint(2), mock.Anything).Return(&models.EvaluationResult{}, nil).Once()

		out, err := f.ctrl.RequestSubmit(context.Background())
		require.NoError(t, err)
		f.ctrl.Expire()

		assert.False(t, out.Attempt.IsAutoSubmitted)
		f.store.AssertNumberOfCalls(t, "CreateSubmission", 1)
	})

	t.Run("DoesNotRetryFailedSubmission", func(t *testing.T) {
		f := startedFixture(t)
		f.store.On("CreateSubmission", mock.Anything, mock.Anything).Return(uint(0), errors.New("timeout")).Once()

		f.ctrl.Expire()
		require.Equal(t, StateSubmitFailed, f.ctrl.State())
		f.ctrl.Expire()

		f.store.AssertNumberOfCalls(t, "CreateSubmission", 1)
	})

	t.Run("RetryKeepsAutoFlag", func(t *testing.T) {
		f := startedFixture(t)
		var flags []bool
		capture := func(args mock.Arguments) {
			flags = append(flags, args.Get(1).(*models.SubmissionAttempt).IsAutoSubmitted)
		}
		f.store.On("CreateSubmission", mock.Anything, mock.Anything).Run(capture).Return(uint(0), errors.New("timeout")).Once()
		f.store.On("CreateSubmission", mock.Anything, mock.Anything).Run(capture).Return(uint(9), nil).Once()
		f.evaluator.On("Evaluate", mock.Anything, uint(9), mock.Anything).Return(&models.EvaluationResult{}, nil).Once()

		f.ctrl.Expire()
		out, err := f.ctrl.RequestSubmit(context.Background())

		require.NoError(t, err)
		assert.True(t, out.Attempt.IsAutoSubmitted)
		assert.Equal(t, []bool{true, true}, flags)
	})
}

// ===== CLOSE =====

func TestController_Close(t *testing.T) {
	t.Run("StopsClockAndDetachesListener", func(t *testing.T) {
		f := startedFixture(t)
		f.ctrl.Clock().Tick()

		f.ctrl.Close()
		f.ctrl.Close()

		assert.False(t, f.ctrl.Alive())
		assert.False(t, f.ctrl.Clock().Tick())
		ticks, states := f.listener.snapshot()
		assert.Len(t, ticks, 1)
		assert.Equal(t, []State{StateInProgress}, states)
		assert.Contains(t, f.publisher.EventTypes(), events.EventSessionAbandoned)

		_, err := f.ctrl.RecordAnswer(1, "Paris")
		assert.ErrorIs(t, err, ErrSessionClosed)
		_, err = f.ctrl.RequestSubmit(context.Background())
		assert.ErrorIs(t, err, ErrSessionClosed)
		f.ctrl.Expire()
		f.store.AssertNotCalled(t, "CreateSubmission", mock.Anything, mock.Anything)
	})

	t.Run("InFlightSubmissionCompletesSilently", func(t *testing.T) {
		f := startedFixture(t)
		started := make(chan struct{})
		release := make(chan struct{})
		f.store.On("CreateSubmission", mock.Anything, mock.Anything).
			Run(func(mock.Arguments) {
				close(started)
				<-release
			}).
			Return(uint(3), nil).Once()
		f.evaluator.On("Evaluate", mock.Anything, uint(3), mock.Anything).Return(&models.EvaluationResult{}, nil).Once()

		done := make(chan error, 1)
		go func() {
			_, err := f.ctrl.RequestSubmit(context.Background())
			done <- err
		}()
		<-started
		f.ctrl.Close()
		close(release)

		require.NoError(t, <-done)
		assert.Equal(t, StateSubmitted, f.ctrl.State())
		_, states := f.listener.snapshot()
		assert.Equal(t, []State{StateInProgress, StateSubmitting}, states)
	})
}

// ===== VIEW =====

func TestController_View(t *testing.T) {
	f := startedFixture(t)
	_, _ = f.ctrl.RecordAnswer(2, "Rome")
	_, _ = f.ctrl.RecordAnswer(4, "  ")
	for i := 0; i < 5; i++ {
		f.ctrl.Clock().Tick()
	}

	v := f.ctrl.View()

	assert.Equal(t, StateInProgress, v.State)
	assert.Equal(t, "00:55", v.Countdown)
	assert.Equal(t, 1, v.Answered)
	assert.Equal(t, 4, v.Total)
	assert.True(t, v.RequiresConfirmation)
	require.Len(t, v.Navigator, 4)
	assert.Equal(t, NavigatorItem{Index: 2, QuestionID: 2, Answered: true}, v.Navigator[1])
	assert.False(t, v.Navigator[3].Answered)
	assert.True(t, v.RemainingAttempts.Unlimited)
}

func TestFormatCountdown(t *testing.T) {
	assert.Equal(t, "15:00", FormatCountdown(900))
	assert.Equal(t, "01:05", FormatCountdown(65))
	assert.Equal(t, "00:00", FormatCountdown(0))
	assert.Equal(t, "00:00", FormatCountdown(-3))
}
