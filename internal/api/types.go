package api

import (
	"time"

	"github.com/eliteGoblin/focusd/focus_guard/internal/domain"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error        string `json:"error"`
	Code         string `json:"code"`
	RetryAfterMs int64  `json:"retry_after_ms,omitempty"`
}

type AddBlockRequest struct {
	URL       string `json:"url" binding:"required"`
	Permanent bool   `json:"permanent"`
	Category  string `json:"category" binding:"max=64"`
	Pattern   string `json:"pattern" binding:"max=512"`
}

type UpdateCategoryRequest struct {
	Category string `json:"category" binding:"max=64"`
}

type ImportBlocksRequest struct {
	Entries []domain.BlockEntry `json:"entries" binding:"required"`
}

type StartSessionRequest struct {
	// DurationMs of 0 means the configured default.
	DurationMs int64 `json:"duration_ms" binding:"gte=0"`
}

type PauseSessionRequest struct {
	Reason string `json:"reason" binding:"max=200"`
}

type EndSessionRequest struct {
	CompletedPercentage *int `json:"completed_percentage" binding:"omitempty,min=0,max=100"`
}

type HistoryQuery struct {
	Limit  int `form:"limit" binding:"gte=0,lte=1000"`
	Offset int `form:"offset" binding:"gte=0"`
}

type ChallengeRequest struct {
	URL string `json:"url" binding:"required"`
}

type AnswerRequest struct {
	ChallengeID string `json:"challenge_id" binding:"required"`
	URL         string `json:"url" binding:"required"`
	Answer      string `json:"answer" binding:"required"`
}

type SkipRequest struct {
	ChallengeID string `json:"challenge_id" binding:"required"`
}

// SessionResponse adds computed fields to a session.
type SessionResponse struct {
	domain.FocusSession
	OnBreak     bool  `json:"on_break"`
	RemainingMs int64 `json:"remaining_ms"`
}

// CheckResponse is a block check with the blocked-page text when blocked.
type CheckResponse struct {
	domain.BlockCheckResult
	Message *domain.BlockingMessage `json:"message,omitempty"`
}

type BlockingContextResponse struct {
	domain.BlockingContext
	SessionTimeRemainingMs int64 `json:"session_time_remaining_ms"`
}

type UnlockResponse struct {
	domain.TemporaryUnlock
	RemainingMs int64 `json:"remaining_ms"`
}

func newSessionResponse(s domain.FocusSession, now time.Time) SessionResponse {
	resp := SessionResponse{FocusSession: s, OnBreak: s.IsOnBreak()}
	if s.IsActive {
		if remaining := s.EndTime.Sub(now); remaining > 0 {
			resp.RemainingMs = remaining.Milliseconds()
		}
	}
	return resp
}
