// Package evaluation talks to the external service that enriches a stored
// submission with feedback.
package evaluation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/SAP-F-2025/assessment-session/internal/models"
	"github.com/SAP-F-2025/assessment-session/internal/scoring"
)

type evaluateRequest struct {
	StoredID uint           `json:"stored_id"`
	Result   scoring.Result `json:"result"`
}

// HTTPEvaluator posts scoring results to the evaluation service
type HTTPEvaluator struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func NewHTTPEvaluator(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPEvaluator {
	return &HTTPEvaluator{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (e *HTTPEvaluator) Evaluate(ctx context.Context, storedID uint, result scoring.Result) (*models.EvaluationResult, error) {
	body, err := json.Marshal(evaluateRequest{StoredID: storedID, Result: result})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal evaluation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/evaluations", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build evaluation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("evaluation request failed: %w", err)
	}
	defer resp.Body.Close()

	e.logger.Debug("Evaluation response",
		"stored_id", storedID,
		"status_code", resp.StatusCode,
		"duration", time.Since(start).String())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("evaluation service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out models.EvaluationResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode evaluation response: %w", err)
	}
	if out.StoredID == 0 {
		out.StoredID = storedID
	}
	return &out, nil
}

// NoopEvaluator is used when no evaluation service is configured
type NoopEvaluator struct{}

func (NoopEvaluator) Evaluate(_ context.Context, storedID uint, _ scoring.Result) (*models.EvaluationResult, error) {
	return &models.EvaluationResult{StoredID: storedID}, nil
}
