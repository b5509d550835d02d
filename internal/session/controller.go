// Package session implements the timed assessment session: an answer store,
// a countdown clock and the controller state machine that ties them to the
// eligibility policy, the scoring engine and the external collaborators.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/SAP-F-2025/assessment-session/internal/eligibility"
	"github.com/SAP-F-2025/assessment-session/internal/events"
	"github.com/SAP-F-2025/assessment-session/internal/models"
	"github.com/SAP-F-2025/assessment-session/internal/repositories"
	"github.com/SAP-F-2025/assessment-session/internal/scoring"
)

type State string

const (
	StateIdle          State = "IDLE"
	StateEligibleCheck State = "ELIGIBLE_CHECK"
	StateBlocked       State = "BLOCKED"
	StateInProgress    State = "IN_PROGRESS"
	StateSubmitting    State = "SUBMITTING"
	StateSubmitted     State = "SUBMITTED"
	StateSubmitFailed  State = "SUBMIT_FAILED"
)

// transitions lists every legal edge of the state machine.
var transitions = map[State][]State{
	StateIdle:          {StateEligibleCheck},
	StateEligibleCheck: {StateBlocked, StateInProgress},
	StateInProgress:    {StateSubmitting},
	StateSubmitting:    {StateSubmitted, StateSubmitFailed},
	StateSubmitFailed:  {StateSubmitting},
}

// SubmissionStore persists a finished attempt and returns its stored ID.
// CreateSubmission reports an attempt number that is already stored with
// repositories.ErrDuplicateSubmission.
type SubmissionStore interface {
	CreateSubmission(ctx context.Context, attempt *models.SubmissionAttempt) (uint, error)
	FindSubmission(ctx context.Context, assignmentID uint, learnerID string, attemptNumber int) (*models.SubmissionAttempt, error)
}

// Evaluator enriches a stored submission, e.g. with AI feedback.
type Evaluator interface {
	Evaluate(ctx context.Context, storedID uint, result scoring.Result) (*models.EvaluationResult, error)
}

// Listener receives display updates while the session is alive.
type Listener interface {
	OnTick(remainingSeconds int)
	OnStateChange(state State)
}

const defaultSubmitTimeout = 30 * time.Second

type Options struct {
	ID            string
	Definition    *models.AssignmentDefinition
	LearnerID     string
	PriorAttempts []models.SubmissionAttempt

	Store     SubmissionStore
	Evaluator Evaluator              // optional
	Publisher events.EventPublisher // optional
	Listener  Listener               // optional
	Logger    *slog.Logger

	Now                     func() time.Time
	DefaultTimeLimitMinutes int
	TickInterval            time.Duration
	SubmitTimeout           time.Duration
	// ManualTicks leaves the clock undriven; the caller advances it via Clock().Tick().
	ManualTicks bool
}

// Outcome is what the result view shows after a successful submission.
type Outcome struct {
	Attempt         models.SubmissionAttempt `json:"attempt"`
	StoredID        uint                     `json:"stored_id"`
	Score           scoring.Result           `json:"score"`
	Evaluation      *models.EvaluationResult `json:"evaluation,omitempty"`
	EvaluationError string                   `json:"evaluation_error,omitempty"`
	Message         string                   `json:"message"`
}

type Controller struct {
	mu sync.Mutex

	id        string
	def       *models.AssignmentDefinition
	learnerID string
	prior     []models.SubmissionAttempt

	store     SubmissionStore
	evaluator Evaluator
	publisher events.EventPublisher
	listener  Listener
	logger    *slog.Logger

	now             func() time.Time
	durationSeconds int
	tickInterval    time.Duration
	submitTimeout   time.Duration
	manualTicks     bool

	state        State
	alive        bool
	decision     eligibility.Decision
	answers      *AnswerStore
	clock        *Clock
	startedAt    time.Time
	pending      *models.SubmissionAttempt
	pendingScore scoring.Result
	outcome      *Outcome
	lastErr      error
	finishedAt   time.Time
}

func NewController(opts Options) (*Controller, error) {
	if opts.Definition == nil {
		return nil, fmt.Errorf("session: definition is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("session: submission store is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = defaultSubmitTimeout
	}

	return &Controller{
		id:              opts.ID,
		def:             opts.Definition,
		learnerID:       opts.LearnerID,
		prior:           slices.Clone(opts.PriorAttempts),
		store:           opts.Store,
		evaluator:       opts.Evaluator,
		publisher:       opts.Publisher,
		listener:        opts.Listener,
		logger:          opts.Logger.With("session_id", opts.ID, "assignment_id", opts.Definition.ID, "learner_id", opts.LearnerID),
		now:             opts.Now,
		durationSeconds: opts.Definition.EffectiveTimeLimit(opts.DefaultTimeLimitMinutes) * 60,
		tickInterval:    opts.TickInterval,
		submitTimeout:   opts.SubmitTimeout,
		manualTicks:     opts.ManualTicks,
		state:           StateIdle,
		alive:           true,
	}, nil
}

// ===== LIFECYCLE =====

// Start runs the eligibility check and, when allowed, starts the countdown
// with an empty answer store. A blocked session returns ErrBlocked.
func (c *Controller) Start(ctx context.Context) (eligibility.Decision, error) {
	c.mu.Lock()
	if !c.alive {
		c.mu.Unlock()
		return eligibility.Decision{}, ErrSessionClosed
	}
	if !c.transitionLocked(StateEligibleCheck, StateIdle) {
		decision := c.decision
		c.mu.Unlock()
		return decision, ErrAlreadyStarted
	}

	c.decision = eligibility.CanAttempt(c.def, c.prior, c.now())
	if !c.decision.Allowed {
		c.transitionLocked(StateBlocked, StateEligibleCheck)
		decision := c.decision
		c.mu.Unlock()

		c.logger.Info("Session blocked", "reason", decision.Reason)
		c.notifyState(StateBlocked)
		c.publish(ctx, events.EventSessionBlocked, events.SessionBlockedData{Reason: string(decision.Reason)})
		return decision, ErrBlocked
	}

	c.answers = NewAnswerStore()
	c.clock = NewClock(c.durationSeconds, c.tickInterval, c.handleTick, c.Expire)
	c.startedAt = c.now()
	c.transitionLocked(StateInProgress, StateEligibleCheck)
	clock := c.clock
	decision := c.decision
	c.mu.Unlock()

	if !c.manualTicks {
		clock.Start()
	}

	c.logger.Info("Session started", "time_limit_seconds", c.durationSeconds, "questions", len(c.def.Questions))
	c.notifyState(StateInProgress)
	c.publish(ctx, events.EventSessionStarted, events.SessionStartedData{
		TimeLimitSeconds: c.durationSeconds,
		QuestionCount:    len(c.def.Questions),
	})
	return decision, nil
}

// Close is called when the learner navigates away. The clock stops and the
// listener is detached; an in-flight submission still runs to completion.
func (c *Controller) Close() {
	c.mu.Lock()
	if !c.alive {
		c.mu.Unlock()
		return
	}
	c.alive = false
	clock := c.clock
	state := c.state
	c.mu.Unlock()

	if clock != nil {
		clock.Stop()
	}
	if state == StateInProgress {
		c.logger.Info("Session abandoned before submission")
		c.publish(context.Background(), events.EventSessionAbandoned, nil)
	}
}

// ===== ANSWERS =====

// RecordAnswer stores an answer while the session is in progress. Answers
// arriving after the store is frozen are ignored and reported as not accepted.
func (c *Controller) RecordAnswer(questionID uint, answer string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.alive {
		return false, ErrSessionClosed
	}
	if !c.def.HasQuestion(questionID) {
		return false, ErrUnknownQuestion
	}
	if c.state != StateInProgress {
		c.logger.Debug("Ignoring answer outside IN_PROGRESS", "question_id", questionID, "state", c.state)
		return false, nil
	}
	return c.answers.Set(questionID, answer), nil
}

// ===== SUBMISSION =====

// RequestSubmit is the learner-initiated route into SUBMITTING. It also retries
// a failed submission, reusing the answers frozen by the first attempt.
func (c *Controller) RequestSubmit(ctx context.Context) (*Outcome, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.submitTimeout)
	defer cancel()
	return c.submit(ctx, false)
}

// Expire is the clock-initiated route into SUBMITTING. It only acts on an
// in-progress session; any later call is a no-op.
func (c *Controller) Expire() {
	ctx, cancel := context.WithTimeout(context.Background(), c.submitTimeout)
	defer cancel()

	if _, err := c.submit(ctx, true); err != nil && !IsRetryable(err) {
		c.logger.Debug("Expiry ignored", "reason", err)
	}
}

func (c *Controller) submit(ctx context.Context, auto bool) (*Outcome, error) {
	c.mu.Lock()
	if !c.alive {
		c.mu.Unlock()
		return nil, ErrSessionClosed
	}

	switch c.state {
	case StateInProgress:
		c.freezeLocked(auto)
	case StateSubmitFailed:
		if auto {
			c.mu.Unlock()
			return nil, ErrNotInProgress
		}
		if c.lastErr != nil && !IsRetryable(c.lastErr) {
			err := c.lastErr
			c.mu.Unlock()
			return nil, err
		}
	case StateSubmitting:
		c.mu.Unlock()
		return nil, ErrSubmissionInFlight
	case StateSubmitted:
		out := c.outcome
		c.mu.Unlock()
		return out, ErrAlreadySubmitted
	default:
		c.mu.Unlock()
		return nil, ErrNotInProgress
	}

	c.transitionLocked(StateSubmitting, StateInProgress, StateSubmitFailed)
	attempt := *c.pending
	attempt.Answers = cloneAnswers(c.pending.Answers)
	score := c.pendingScore
	clock := c.clock
	c.lastErr = nil
	c.mu.Unlock()

	clock.Stop()
	c.notifyState(StateSubmitting)
	c.logger.Info("Submitting session",
		"attempt_number", attempt.AttemptNumber,
		"auto_submitted", attempt.IsAutoSubmitted,
		"answered", countAnswered(attempt.Answers))

	storedID, err := c.store.CreateSubmission(ctx, &attempt)
	if errors.Is(err, repositories.ErrDuplicateSubmission) {
		storedID, err = c.adoptStored(ctx, &attempt)
	}
	if err != nil {
		var submitErr *SubmitError
		if !errors.As(err, &submitErr) {
			submitErr = &SubmitError{Kind: KindSubmitTransport, Retryable: true, Err: err}
		}

		c.mu.Lock()
		c.lastErr = submitErr
		c.finishedAt = c.now()
		c.transitionLocked(StateSubmitFailed, StateSubmitting)
		c.mu.Unlock()

		c.logger.Error("Submission failed", "error", err, "retryable", submitErr.Retryable)
		c.notifyState(StateSubmitFailed)
		c.publish(ctx, events.EventSessionSubmitFailed, events.FailureData{Error: err.Error()})
		return nil, submitErr
	}
	attempt.ID = storedID

	out := &Outcome{
		Attempt:  attempt,
		StoredID: storedID,
		Score:    score,
		Message:  attempt.SubmissionMessage(),
	}
	c.evaluate(ctx, out)

	c.mu.Lock()
	c.outcome = out
	c.finishedAt = c.now()
	c.transitionLocked(StateSubmitted, StateSubmitting)
	c.mu.Unlock()

	c.logger.Info("Session submitted",
		"stored_id", storedID,
		"score", score.RawScore,
		"auto_submitted", attempt.IsAutoSubmitted)
	c.notifyState(StateSubmitted)

	eventType := events.EventSessionSubmitted
	if attempt.IsAutoSubmitted {
		eventType = events.EventSessionAutoSubmitted
	}
	c.publish(ctx, eventType, events.SessionSubmittedData{
		StoredID:        storedID,
		AttemptNumber:   attempt.AttemptNumber,
		Score:           score.RawScore,
		MaxScore:        score.MaxScore,
		IsLate:          attempt.IsLate,
		IsAutoSubmitted: attempt.IsAutoSubmitted,
		NeedsManual:     attempt.NeedsManual,
	})
	return out, nil
}

// adoptStored handles an insert that committed but whose acknowledgement was
// lost. The stored row is used when it carries the same answers; a row with
// different answers belongs to another session and cannot be retried past.
func (c *Controller) adoptStored(ctx context.Context, attempt *models.SubmissionAttempt) (uint, error) {
	stored, err := c.store.FindSubmission(ctx, attempt.AssignmentID, attempt.LearnerID, attempt.AttemptNumber)
	if err != nil {
		return 0, fmt.Errorf("failed to look up stored attempt: %w", err)
	}
	if !maps.Equal(stored.Answers, attempt.Answers) {
		return 0, &SubmitError{
			Kind: KindSubmitConflict,
			Err:  fmt.Errorf("attempt %d was stored by another session: %w", attempt.AttemptNumber, repositories.ErrDuplicateSubmission),
		}
	}

	c.logger.Warn("Attempt already stored, using stored submission",
		"stored_id", stored.ID,
		"attempt_number", attempt.AttemptNumber)
	return stored.ID, nil
}

// freezeLocked snapshots the answers and builds the attempt record. It runs
// once per session; retries reuse the result.
func (c *Controller) freezeLocked(auto bool) {
	answers := c.answers.Freeze()
	at := c.now()
	score := scoring.Score(c.def, answers)

	c.pendingScore = score
	c.pending = &models.SubmissionAttempt{
		AssignmentID:    c.def.ID,
		LearnerID:       c.learnerID,
		AttemptNumber:   len(c.prior) + 1,
		SubmittedAt:     at,
		Answers:         answers,
		Score:           score.RawScore,
		MaxScore:        score.MaxScore,
		CorrectCount:    score.CorrectCount,
		TotalGradable:   score.Total,
		NeedsManual:     len(score.PendingManual) > 0,
		IsLate:          eligibility.IsLate(c.def, at),
		IsAutoSubmitted: auto,
	}
}

// evaluate forwards the score to the evaluation collaborator. Failures are
// absorbed: the outcome keeps the local score without enrichment.
func (c *Controller) evaluate(ctx context.Context, out *Outcome) {
	if c.evaluator == nil {
		return
	}
	result, err := c.evaluator.Evaluate(ctx, out.StoredID, out.Score)
	if err != nil {
		out.EvaluationError = (&SubmitError{Kind: KindEvaluation, Err: err}).Error()
		c.logger.Warn("Evaluation failed, using local score", "stored_id", out.StoredID, "error", err)
		c.publish(ctx, events.EventEvaluationFailed, events.FailureData{Error: err.Error()})
		return
	}
	out.Evaluation = result
}

// ===== STATE MACHINE =====

// transitionLocked moves to `to` only from one of `from` and only along a
// legal edge. c.mu must be held.
func (c *Controller) transitionLocked(to State, from ...State) bool {
	if !slices.Contains(from, c.state) || !slices.Contains(transitions[c.state], to) {
		return false
	}
	c.logger.Debug("Session state transition", "from", c.state, "to", to)
	c.state = to
	return true
}

func (c *Controller) handleTick(remaining int) {
	c.mu.Lock()
	alive := c.alive
	c.mu.Unlock()
	if alive && c.listener != nil {
		c.listener.OnTick(remaining)
	}
}

func (c *Controller) notifyState(state State) {
	c.mu.Lock()
	alive := c.alive
	c.mu.Unlock()
	if alive && c.listener != nil {
		c.listener.OnStateChange(state)
	}
}

func (c *Controller) publish(ctx context.Context, eventType events.EventType, data interface{}) {
	if c.publisher == nil {
		return
	}
	event := events.NewSessionEvent(eventType, c.id, c.def.ID, c.learnerID, data)
	if err := c.publisher.PublishSessionEvent(ctx, event); err != nil {
		c.logger.Warn("Failed to publish session event", "event_type", eventType, "error", err)
	}
}

// ===== ACCESSORS =====

func (c *Controller) ID() string {
	return c.id
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Decision() eligibility.Decision {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.decision
}

func (c *Controller) Outcome() *Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outcome
}

func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// FinishedAt is when the last submission attempt settled, zero before that.
func (c *Controller) FinishedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finishedAt
}

// Settled reports whether the session can no longer change: submitted, or
// failed with an error a retry cannot fix.
func (c *Controller) Settled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateSubmitted:
		return true
	case StateSubmitFailed:
		return c.lastErr != nil && !IsRetryable(c.lastErr)
	}
	return false
}

// Answers returns a copy of the current answers, or nil before the session starts.
func (c *Controller) Answers() map[uint]string {
	c.mu.Lock()
	store := c.answers
	c.mu.Unlock()
	if store == nil {
		return nil
	}
	return store.Snapshot()
}

func (c *Controller) AnsweredCount() int {
	c.mu.Lock()
	store := c.answers
	c.mu.Unlock()
	if store == nil {
		return 0
	}
	return store.Count()
}

// Clock exposes the countdown, nil until the session is in progress.
func (c *Controller) Clock() *Clock {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clock
}

func (c *Controller) Alive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alive
}

func cloneAnswers(in map[uint]string) map[uint]string {
	out := make(map[uint]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func countAnswered(answers map[uint]string) int {
	n := 0
	for _, a := range answers {
		if strings.TrimSpace(a) != "" {
			n++
		}
	}
	return n
}
