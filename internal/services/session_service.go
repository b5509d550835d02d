package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/SAP-F-2025/assessment-session/internal/eligibility"
	"github.com/SAP-F-2025/assessment-session/internal/events"
	"github.com/SAP-F-2025/assessment-session/internal/models"
	"github.com/SAP-F-2025/assessment-session/internal/repositories"
	"github.com/SAP-F-2025/assessment-session/internal/session"
	"github.com/SAP-F-2025/assessment-session/internal/validator"
	"github.com/google/uuid"
)

// SessionSettings carries the controller tuning shared by every session
type SessionSettings struct {
	DefaultTimeLimitMinutes int
	TickInterval            time.Duration
	SubmitTimeout           time.Duration

	// ResultRetention keeps a settled session viewable before it is evicted.
	// Zero keeps results until Close or Shutdown.
	ResultRetention time.Duration
	// EvictionInterval drives the background sweep; zero sweeps only on Open.
	EvictionInterval time.Duration

	// Now and ManualTicks are overridden in tests
	Now         func() time.Time
	ManualTicks bool
}

type liveSession struct {
	ctrl      *session.Controller
	def       *models.AssignmentDefinition
	learnerID string
}

type activeKey struct {
	assignmentID uint
	learnerID    string
}

type sessionService struct {
	repo      repositories.Repository
	evaluator session.Evaluator
	publisher events.EventPublisher
	validator *validator.Validator
	logger    *ServiceLogger
	settings  SessionSettings

	mu       sync.RWMutex
	sessions map[string]*liveSession
	active   map[activeKey]string

	stop     chan struct{}
	stopOnce sync.Once
}

func NewSessionService(
	repo repositories.Repository,
	evaluator session.Evaluator,
	publisher events.EventPublisher,
	validator *validator.Validator,
	logger *ServiceLogger,
	settings SessionSettings,
) SessionService {
	if settings.Now == nil {
		settings.Now = time.Now
	}
	s := &sessionService{
		repo:      repo,
		evaluator: evaluator,
		publisher: publisher,
		validator: validator,
		logger:    logger,
		settings:  settings,
		sessions:  make(map[string]*liveSession),
		active:    make(map[activeKey]string),
		stop:      make(chan struct{}),
	}
	if settings.ResultRetention > 0 && settings.EvictionInterval > 0 {
		go s.runEviction(settings.EvictionInterval)
	}
	return s
}

// ===== SESSION LIFECYCLE =====

// Open starts a session for the learner, or resumes the one already running
// for the same assignment. A blocked session is returned with state BLOCKED.
func (s *sessionService) Open(ctx context.Context, assignmentID uint, learnerID string) (resp *SessionResponse, err error) {
	op := s.logger.WithOperation(ctx, "open_session", learnerID)
	defer func() { op.LogResult(strconv.FormatUint(uint64(assignmentID), 10), "assignment", err) }()

	if learnerID == "" {
		return nil, ErrLearnerRequired
	}

	s.evictSettled()

	if live := s.activeSession(assignmentID, learnerID); live != nil {
		s.logger.Logger().Info("Resuming active session", "session_id", live.ctrl.ID(), "learner_id", learnerID)
		return buildSessionResponse(live), nil
	}

	def, prior, err := s.loadAssignment(ctx, assignmentID, learnerID)
	if err != nil {
		return nil, err
	}

	ctrl, err := session.NewController(session.Options{
		ID:                      uuid.NewString(),
		Definition:              def,
		LearnerID:               learnerID,
		PriorAttempts:           prior,
		Store:                   s.repo.Attempt(),
		Evaluator:               s.evaluator,
		Publisher:               s.publisher,
		Logger:                  s.logger.Logger(),
		Now:                     s.settings.Now,
		DefaultTimeLimitMinutes: s.settings.DefaultTimeLimitMinutes,
		TickInterval:            s.settings.TickInterval,
		SubmitTimeout:           s.settings.SubmitTimeout,
		ManualTicks:             s.settings.ManualTicks,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	live := &liveSession{ctrl: ctrl, def: def, learnerID: learnerID}
	if _, err := ctrl.Start(ctx); err != nil {
		if errors.Is(err, session.ErrBlocked) {
			resp := buildSessionResponse(live)
			ctrl.Close()
			return resp, nil
		}
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	// A concurrent Open may have registered a session in the meantime.
	key := activeKey{assignmentID: assignmentID, learnerID: learnerID}
	s.mu.Lock()
	if existing := s.liveLocked(key); existing != nil {
		s.mu.Unlock()
		ctrl.Close()
		return buildSessionResponse(existing), nil
	}
	s.sessions[ctrl.ID()] = live
	s.active[key] = ctrl.ID()
	s.mu.Unlock()

	return buildSessionResponse(live), nil
}

func (s *sessionService) Get(ctx context.Context, sessionID, learnerID string) (*SessionResponse, error) {
	live, err := s.lookup(sessionID, learnerID, "view")
	if err != nil {
		return nil, err
	}
	return buildSessionResponse(live), nil
}

func (s *sessionService) RecordAnswer(ctx context.Context, sessionID, learnerID string, req *RecordAnswerRequest) (resp *AnswerResponse, err error) {
	op := s.logger.WithOperation(ctx, "record_answer", learnerID)
	defer func() { op.LogResult(sessionID, "session", err) }()

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	live, err := s.lookup(sessionID, learnerID, "answer")
	if err != nil {
		return nil, err
	}

	accepted, err := live.ctrl.RecordAnswer(req.QuestionID, req.Answer)
	if err != nil {
		return nil, err
	}

	return &AnswerResponse{
		QuestionID: req.QuestionID,
		Accepted:   accepted,
		Answered:   live.ctrl.AnsweredCount(),
		Total:      len(live.def.Questions),
	}, nil
}

// Submit finalizes the session. Unanswered questions require an explicit
// acknowledgement; a repeated submit returns the stored outcome.
func (s *sessionService) Submit(ctx context.Context, sessionID, learnerID string, req *SubmitRequest) (out *session.Outcome, err error) {
	op := s.logger.WithOperation(ctx, "submit_session", learnerID)
	defer func() { op.LogResult(sessionID, "session", err) }()

	live, err := s.lookup(sessionID, learnerID, "submit")
	if err != nil {
		return nil, err
	}

	answered, total := live.ctrl.AnsweredCount(), len(live.def.Questions)
	if !req.AcknowledgeIncomplete && live.ctrl.State() == session.StateInProgress && answered < total {
		return nil, NewBusinessRuleError(RuleIncompleteSubmission,
			fmt.Sprintf("%d of %d questions are unanswered", total-answered, total),
			map[string]interface{}{"answered": answered, "total": total})
	}

	out, err = live.ctrl.RequestSubmit(ctx)
	if errors.Is(err, session.ErrAlreadySubmitted) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}

	s.releaseActive(live)
	return out, nil
}

// Close stops the session's clock and forgets it
func (s *sessionService) Close(ctx context.Context, sessionID, learnerID string) (err error) {
	op := s.logger.WithOperation(ctx, "close_session", learnerID)
	defer func() { op.LogResult(sessionID, "session", err) }()

	live, err := s.lookup(sessionID, learnerID, "close")
	if err != nil {
		return err
	}

	live.ctrl.Close()

	s.mu.Lock()
	delete(s.sessions, sessionID)
	key := activeKey{assignmentID: live.def.ID, learnerID: learnerID}
	if s.active[key] == sessionID {
		delete(s.active, key)
	}
	s.mu.Unlock()
	return nil
}

func (s *sessionService) CheckEligibility(ctx context.Context, assignmentID uint, learnerID string) (*EligibilityResponse, error) {
	if learnerID == "" {
		return nil, ErrLearnerRequired
	}

	def, prior, err := s.loadAssignment(ctx, assignmentID, learnerID)
	if err != nil {
		return nil, err
	}

	now := s.settings.Now()
	decision := eligibility.CanAttempt(def, prior, now)
	return &EligibilityResponse{
		AssignmentID:      assignmentID,
		Allowed:           decision.Allowed,
		Reason:            decision.Reason,
		RemainingAttempts: eligibility.RemainingAttempts(def, prior),
		IsLate:            eligibility.IsLate(def, now),
	}, nil
}

func (s *sessionService) Shutdown() {
	s.stopOnce.Do(func() { close(s.stop) })

	s.mu.Lock()
	live := make([]*liveSession, 0, len(s.sessions))
	for _, l := range s.sessions {
		live = append(live, l)
	}
	s.sessions = make(map[string]*liveSession)
	s.active = make(map[activeKey]string)
	s.mu.Unlock()

	for _, l := range live {
		l.ctrl.Close()
	}
	s.logger.Logger().Info("Session service shut down", "closed_sessions", len(live))
}

// ===== EVICTION =====

func (s *sessionService) runEviction(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.evictSettled()
		case <-s.stop:
			return
		}
	}
}

// evictSettled drops settled sessions whose result has been kept for
// ResultRetention. Sessions that can still be answered or retried stay.
func (s *sessionService) evictSettled() int {
	if s.settings.ResultRetention <= 0 {
		return 0
	}
	cutoff := s.settings.Now().Add(-s.settings.ResultRetention)

	var evicted []*liveSession
	s.mu.Lock()
	for id, live := range s.sessions {
		if !live.ctrl.Settled() || live.ctrl.FinishedAt().After(cutoff) {
			continue
		}
		delete(s.sessions, id)
		key := activeKey{assignmentID: live.def.ID, learnerID: live.learnerID}
		if s.active[key] == id {
			delete(s.active, key)
		}
		evicted = append(evicted, live)
	}
	s.mu.Unlock()

	for _, live := range evicted {
		live.ctrl.Close()
	}
	if len(evicted) > 0 {
		s.logger.Logger().Debug("Evicted settled sessions", "count", len(evicted))
	}
	return len(evicted)
}

// ===== HELPERS =====

func (s *sessionService) loadAssignment(ctx context.Context, assignmentID uint, learnerID string) (*models.AssignmentDefinition, []models.SubmissionAttempt, error) {
	def, err := s.repo.Assignment().FetchAssignment(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, nil, ErrAssignmentNotFound
		}
		return nil, nil, fmt.Errorf("failed to get assignment: %w", err)
	}

	if err := s.validator.Validate(def); err != nil {
		// Drop a cached copy so a corrected definition is served on the next open
		if inv, ok := s.repo.Assignment().(repositories.AssignmentInvalidator); ok {
			if invErr := inv.Invalidate(ctx, assignmentID); invErr != nil {
				s.logger.Logger().Warn("Failed to invalidate cached assignment", "assignment_id", assignmentID, "error", invErr)
			}
		}
		return nil, nil, fmt.Errorf("%w: %w", ErrAssignmentInvalid, err)
	}

	prior, err := s.repo.Attempt().FetchPriorAttempts(ctx, assignmentID, learnerID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get prior attempts: %w", err)
	}
	return def, prior, nil
}

func (s *sessionService) lookup(sessionID, learnerID, action string) (*liveSession, error) {
	if learnerID == "" {
		return nil, ErrLearnerRequired
	}

	s.mu.RLock()
	live, ok := s.sessions[sessionID]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrSessionNotFound
	}
	if live.learnerID != learnerID {
		return nil, NewPermissionError(learnerID, sessionID, action, "session belongs to another learner")
	}
	return live, nil
}

func (s *sessionService) activeSession(assignmentID uint, learnerID string) *liveSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.liveLocked(activeKey{assignmentID: assignmentID, learnerID: learnerID})
}

// liveLocked returns the registered session for key while it can still be
// answered or submitted. s.mu must be held.
func (s *sessionService) liveLocked(key activeKey) *liveSession {
	id, ok := s.active[key]
	if !ok {
		return nil
	}
	live, ok := s.sessions[id]
	if !ok {
		return nil
	}
	switch live.ctrl.State() {
	case session.StateInProgress, session.StateSubmitting:
		return live
	case session.StateSubmitFailed:
		if !live.ctrl.Settled() {
			return live
		}
	}
	return nil
}

func (s *sessionService) releaseActive(live *liveSession) {
	key := activeKey{assignmentID: live.def.ID, learnerID: live.learnerID}
	s.mu.Lock()
	if s.active[key] == live.ctrl.ID() {
		delete(s.active, key)
	}
	s.mu.Unlock()
}

func buildSessionResponse(live *liveSession) *SessionResponse {
	view := live.ctrl.View()
	resp := &SessionResponse{View: view}
	if view.State == session.StateBlocked || view.State == session.StateIdle {
		return resp
	}

	answers := live.ctrl.Answers()
	resp.Questions = make([]QuestionView, 0, len(live.def.Questions))
	for i, q := range live.def.Questions {
		qv := QuestionView{
			ID:     q.ID,
			Index:  i + 1,
			Type:   q.Type,
			Text:   q.Text,
			Answer: answers[q.ID],
		}
		for _, o := range q.Options {
			qv.Options = append(qv.Options, o.Text)
		}
		resp.Questions = append(resp.Questions, qv)
	}
	return resp
}
