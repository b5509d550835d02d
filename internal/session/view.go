package session

import (
	"fmt"
	"slices"

	"github.com/SAP-F-2025/assessment-session/internal/eligibility"
	"github.com/SAP-F-2025/assessment-session/internal/models"
)

// NavigatorItem is one entry of the question navigator.
type NavigatorItem struct {
	Index      int  `json:"index"`
	QuestionID uint `json:"question_id"`
	Answered   bool `json:"answered"`
}

// View is a read-only rendering of the session for the presentation layer.
type View struct {
	SessionID            string                `json:"session_id"`
	AssignmentID         uint                  `json:"assignment_id"`
	Title                string                `json:"title"`
	State                State                 `json:"state"`
	Countdown            string                `json:"countdown"`
	RemainingSeconds     int                   `json:"remaining_seconds"`
	Answered             int                   `json:"answered"`
	Total                int                   `json:"total"`
	Navigator            []NavigatorItem       `json:"navigator"`
	BlockReason          eligibility.Reason    `json:"block_reason,omitempty"`
	RemainingAttempts    eligibility.Remaining `json:"remaining_attempts"`
	RequiresConfirmation bool                  `json:"requires_confirmation"`
	Outcome              *Outcome              `json:"outcome,omitempty"`
	LastError            string                `json:"last_error,omitempty"`
	Retryable            bool                  `json:"retryable"`
}

// FormatCountdown renders seconds as mm:ss.
func FormatCountdown(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	remaining := c.durationSeconds
	if c.clock != nil {
		remaining = c.clock.Remaining()
	}

	v := View{
		SessionID:        c.id,
		AssignmentID:     c.def.ID,
		Title:            c.def.Title,
		State:            c.state,
		Countdown:        FormatCountdown(remaining),
		RemainingSeconds: remaining,
		Total:            len(c.def.Questions),
		Navigator:        make([]NavigatorItem, 0, len(c.def.Questions)),
		BlockReason:      c.decision.Reason,
		Outcome:          c.outcome,
	}

	for i, q := range c.def.Questions {
		answered := c.answers != nil && c.answers.Answered(q.ID)
		if answered {
			v.Answered++
		}
		v.Navigator = append(v.Navigator, NavigatorItem{Index: i + 1, QuestionID: q.ID, Answered: answered})
	}
	v.RequiresConfirmation = c.state == StateInProgress && v.Answered < v.Total

	used := c.prior
	if c.outcome != nil {
		used = append(slices.Clone(c.prior), models.SubmissionAttempt{ID: c.outcome.StoredID})
	}
	v.RemainingAttempts = eligibility.RemainingAttempts(c.def, used)

	if c.lastErr != nil {
		v.LastError = c.lastErr.Error()
		v.Retryable = c.state == StateSubmitFailed && IsRetryable(c.lastErr)
	}
	return v
}
