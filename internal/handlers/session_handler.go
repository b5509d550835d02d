package handlers

import (
	"errors"
	"net/http"

	"github.com/SAP-F-2025/assessment-session/internal/services"
	"github.com/SAP-F-2025/assessment-session/internal/session"
	"github.com/SAP-F-2025/assessment-session/internal/utils"
	"github.com/gin-gonic/gin"
)

type SessionHandler struct {
	BaseHandler
	sessionService services.SessionService
}

func NewSessionHandler(sessionService services.SessionService, logger utils.Logger) *SessionHandler {
	return &SessionHandler{
		BaseHandler:    NewBaseHandler(logger),
		sessionService: sessionService,
	}
}

// AnswerBody is the payload of PUT /sessions/:id/answers/:question_id
type AnswerBody struct {
	Answer string `json:"answer"`
}

// OpenSession starts or resumes a timed session
// @Summary Open session
// @Tags sessions
// @Accept json
// @Produce json
// @Param request body services.OpenSessionRequest true "Assignment to attempt"
// @Success 201 {object} services.SessionResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /sessions [post]
func (h *SessionHandler) OpenSession(c *gin.Context) {
	var req services.OpenSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.AssignmentID == 0 {
		details := "assignment_id is required"
		if err != nil {
			details = err.Error()
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: details,
		})
		return
	}

	h.LogRequest(c, "Opening session", "assignment_id", req.AssignmentID)

	resp, err := h.sessionService.Open(c.Request.Context(), req.AssignmentID, c.GetString(learnerIDKey))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	status := http.StatusCreated
	if resp.State == session.StateBlocked {
		status = http.StatusOK
	}
	c.JSON(status, resp)
}

// GetSession returns the current session view
// @Summary Get session
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} services.SessionResponse
// @Failure 404 {object} ErrorResponse
// @Router /sessions/{id} [get]
func (h *SessionHandler) GetSession(c *gin.Context) {
	sessionID := ParseStringIDParam(c, "id")
	if sessionID == "" {
		return
	}

	resp, err := h.sessionService.Get(c.Request.Context(), sessionID, c.GetString(learnerIDKey))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// RecordAnswer stores or replaces the answer to one question
// @Summary Record answer
// @Tags sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param question_id path uint true "Question ID"
// @Param answer body AnswerBody true "Answer"
// @Success 200 {object} services.AnswerResponse
// @Failure 400 {object} ErrorResponse
// @Router /sessions/{id}/answers/{question_id} [put]
func (h *SessionHandler) RecordAnswer(c *gin.Context) {
	sessionID := ParseStringIDParam(c, "id")
	if sessionID == "" {
		return
	}
	questionID := ParseUintIDParam(c, "question_id")
	if questionID == 0 {
		return
	}

	var body AnswerBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	resp, err := h.sessionService.RecordAnswer(c.Request.Context(), sessionID, c.GetString(learnerIDKey), &services.RecordAnswerRequest{
		QuestionID: questionID,
		Answer:     body.Answer,
	})
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// SubmitSession submits the session, or retries a failed submission
// @Summary Submit session
// @Tags sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param request body services.SubmitRequest false "Submit options"
// @Success 200 {object} session.Outcome
// @Failure 409 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /sessions/{id}/submit [post]
func (h *SessionHandler) SubmitSession(c *gin.Context) {
	sessionID := ParseStringIDParam(c, "id")
	if sessionID == "" {
		return
	}

	var req services.SubmitRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Message: "Invalid request payload",
				Details: err.Error(),
			})
			return
		}
	}

	h.LogRequest(c, "Submitting session", "session_id", sessionID, "acknowledge_incomplete", req.AcknowledgeIncomplete)

	out, err := h.sessionService.Submit(c.Request.Context(), sessionID, c.GetString(learnerIDKey), &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, out)
}

// CloseSession abandons the session and stops its clock
// @Summary Close session
// @Tags sessions
// @Param id path string true "Session ID"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /sessions/{id} [delete]
func (h *SessionHandler) CloseSession(c *gin.Context) {
	sessionID := ParseStringIDParam(c, "id")
	if sessionID == "" {
		return
	}

	if err := h.sessionService.Close(c.Request.Context(), sessionID, c.GetString(learnerIDKey)); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// CheckEligibility reports whether the learner may start a new attempt
// @Summary Check eligibility
// @Tags assignments
// @Produce json
// @Param id path uint true "Assignment ID"
// @Success 200 {object} services.EligibilityResponse
// @Failure 404 {object} ErrorResponse
// @Router /assignments/{id}/eligibility [get]
func (h *SessionHandler) CheckEligibility(c *gin.Context) {
	assignmentID := ParseUintIDParam(c, "id")
	if assignmentID == 0 {
		return
	}

	resp, err := h.sessionService.CheckEligibility(c.Request.Context(), assignmentID, c.GetString(learnerIDKey))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *SessionHandler) handleServiceError(c *gin.Context, err error) {
	// Checked before validation errors, which it wraps
	if errors.Is(err, services.ErrAssignmentInvalid) {
		h.RespondWithError(c, http.StatusUnprocessableEntity, "Assignment definition is invalid", err, services.FormatError(err))
		return
	}

	var validationErrors services.ValidationErrors
	if errors.As(err, &validationErrors) {
		h.RespondWithError(c, http.StatusBadRequest, "Validation failed", err, validationErrors)
		return
	}

	var businessRuleError *services.BusinessRuleError
	if errors.As(err, &businessRuleError) {
		h.RespondWithError(c, http.StatusUnprocessableEntity, businessRuleError.Message, err, map[string]interface{}{
			"rule":    businessRuleError.Rule,
			"context": businessRuleError.Context,
		})
		return
	}

	var permissionError *services.PermissionError
	if errors.As(err, &permissionError) {
		h.RespondWithError(c, http.StatusForbidden, "Access denied", err, map[string]interface{}{
			"action": permissionError.Action,
			"reason": permissionError.Reason,
		})
		return
	}

	var submitError *session.SubmitError
	if errors.As(err, &submitError) && submitError.Kind == session.KindSubmitConflict {
		h.RespondWithError(c, http.StatusConflict, "Attempt was already submitted from another session", err, map[string]interface{}{
			"kind":      submitError.Kind,
			"retryable": submitError.Retryable,
		})
		return
	}
	if submitError != nil {
		h.RespondWithError(c, http.StatusBadGateway, "Submission failed, please retry", err, map[string]interface{}{
			"kind":      submitError.Kind,
			"retryable": submitError.Retryable,
		})
		return
	}

	switch {
	case errors.Is(err, services.ErrLearnerRequired):
		h.RespondWithError(c, http.StatusUnauthorized, "Learner not authenticated", err)
	case errors.Is(err, session.ErrUnknownQuestion):
		h.RespondWithError(c, http.StatusBadRequest, "Question does not belong to this assignment", err)
	case services.IsNotFound(err):
		h.RespondWithError(c, http.StatusNotFound, "Resource not found", err, err.Error())
	case services.IsConflict(err):
		h.RespondWithError(c, http.StatusConflict, "Session cannot accept this request in its current state", err, err.Error())
	default:
		h.RespondWithError(c, http.StatusInternalServerError, "Internal server error", err)
	}
}
