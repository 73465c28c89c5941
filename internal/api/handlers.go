package api

import (
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eliteGoblin/focusd/focus_guard/internal/domain"
	"github.com/eliteGoblin/focusd/focus_guard/internal/usecase"
)

// HandleAddBlock handles POST /blocks.
//
// Response:
//
//	201 Created: domain.BlockEntry
//	400 Bad Request: invalid URL
//	409 Conflict: duplicate URL
//	422 Unprocessable Entity: list is full
func (h *Handlers) HandleAddBlock(c *gin.Context) {
	var req AddBlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeBindError(c, err)
		return
	}
	entry, err := h.svc.Blocks.Add(c.Request.Context(), c.Param("owner"), req.URL, usecase.AddOptions{
		Permanent: req.Permanent,
		Category:  req.Category,
		Pattern:   req.Pattern,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

// HandleListBlocks handles GET /blocks. ?search filters by URL or category,
// ?category (possibly empty) filters by exact category.
func (h *Handlers) HandleListBlocks(c *gin.Context) {
	ctx := c.Request.Context()
	owner := c.Param("owner")

	var (
		entries []domain.BlockEntry
		err     error
	)
	if q, ok := c.GetQuery("search"); ok {
		entries, err = h.svc.Blocks.Search(ctx, owner, q)
	} else if category, ok := c.GetQuery("category"); ok {
		entries, err = h.svc.Blocks.FilterByCategory(ctx, owner, category)
	} else {
		entries, err = h.svc.Blocks.List(ctx, owner)
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h *Handlers) HandleClearBlocks(c *gin.Context) {
	if err := h.svc.Blocks.ClearAll(c.Request.Context(), c.Param("owner")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) HandleImportBlocks(c *gin.Context) {
	var req ImportBlocksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeBindError(c, err)
		return
	}
	result, err := h.svc.Blocks.Import(c.Request.Context(), c.Param("owner"), req.Entries)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handlers) HandleCategories(c *gin.Context) {
	cats, err := h.svc.Blocks.Categories(c.Request.Context(), c.Param("owner"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": cats})
}

// HandleCheck handles GET /blocks/check?url=. It never fails for a present url.
func (h *Handlers) HandleCheck(c *gin.Context) {
	url, ok := c.GetQuery("url")
	if !ok {
		h.writeError(c, domain.NewValidationError("check block", "url query parameter is required"))
		return
	}
	result := h.svc.Blocks.IsBlocked(c.Request.Context(), c.Param("owner"), url)
	resp := CheckResponse{BlockCheckResult: result}
	if result.IsBlocked {
		msg := usecase.MessageFor(result)
		resp.Message = &msg
		if result.Entry != nil {
			h.svc.Blocks.TouchAccess(c.Request.Context(), c.Param("owner"), result.Entry.ID)
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) HandleBlockStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Blocks.Stats(c.Request.Context(), c.Param("owner")))
}

func (h *Handlers) HandleBlockingContext(c *gin.Context) {
	bc := h.svc.Blocks.BlockingContext(c.Request.Context(), c.Param("owner"))
	c.JSON(http.StatusOK, BlockingContextResponse{
		BlockingContext:        bc,
		SessionTimeRemainingMs: bc.SessionTimeRemaining.Milliseconds(),
	})
}

func (h *Handlers) HandleRemoveBlock(c *gin.Context) {
	if err := h.svc.Blocks.Remove(c.Request.Context(), c.Param("owner"), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) HandleTogglePermanent(c *gin.Context) {
	entry, err := h.svc.Blocks.TogglePermanent(c.Request.Context(), c.Param("owner"), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *Handlers) HandleUpdateCategory(c *gin.Context) {
	var req UpdateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeBindError(c, err)
		return
	}
	entry, err := h.svc.Blocks.UpdateCategory(c.Request.Context(), c.Param("owner"), c.Param("id"), req.Category)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// HandleStartSession handles POST /sessions.
//
// Response:
//
//	201 Created: SessionResponse
//	400 Bad Request: duration out of range
//	409 Conflict: a session is already active
func (h *Handlers) HandleStartSession(c *gin.Context) {
	var req StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeBindError(c, err)
		return
	}
	d := durationFromMs(req.DurationMs)
	if d == 0 {
		d = h.svc.DefaultSessionDuration
	}
	s, err := h.svc.Sessions.Start(c.Request.Context(), c.Param("owner"), d)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newSessionResponse(s, h.svc.Clock.Now()))
}

// HandleActiveSession returns the active session, or 404 when there is none.
func (h *Handlers) HandleActiveSession(c *gin.Context) {
	s, err := h.svc.Sessions.GetActive(c.Request.Context(), c.Param("owner"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if s == nil {
		h.writeError(c, domain.NewNotFoundError("get active session", "no active focus session"))
		return
	}
	c.JSON(http.StatusOK, newSessionResponse(*s, h.svc.Clock.Now()))
}

func (h *Handlers) HandleSessionHistory(c *gin.Context) {
	var q HistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.writeBindError(c, err)
		return
	}
	history, err := h.svc.Sessions.History(c.Request.Context(), c.Param("owner"), q.Limit, q.Offset)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": history})
}

func (h *Handlers) HandlePauseSession(c *gin.Context) {
	var req PauseSessionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.writeBindError(c, err)
			return
		}
	}
	s, err := h.svc.Sessions.Pause(c.Request.Context(), c.Param("owner"), c.Param("id"), req.Reason)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newSessionResponse(s, h.svc.Clock.Now()))
}

func (h *Handlers) HandleResumeSession(c *gin.Context) {
	s, err := h.svc.Sessions.Resume(c.Request.Context(), c.Param("owner"), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newSessionResponse(s, h.svc.Clock.Now()))
}

func (h *Handlers) HandleEndSession(c *gin.Context) {
	var req EndSessionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.writeBindError(c, err)
			return
		}
	}
	s, err := h.svc.Sessions.End(c.Request.Context(), c.Param("owner"), c.Param("id"), req.CompletedPercentage)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newSessionResponse(s, h.svc.Clock.Now()))
}

// HandleRequestChallenge handles POST /unlock/challenge. The answer key is withheld.
//
// Response:
//
//	201 Created: domain.PublicChallenge
//	409 Conflict: URL is not permanently blocked
//	429 Too Many Requests: cooldown or hourly limit, with Retry-After
func (h *Handlers) HandleRequestChallenge(c *gin.Context) {
	var req ChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeBindError(c, err)
		return
	}
	pc, err := h.svc.Unlocks.RequestChallenge(c.Request.Context(), c.Param("owner"), req.URL)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, pc)
}

func (h *Handlers) HandleSubmitAnswer(c *gin.Context) {
	var req AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeBindError(c, err)
		return
	}
	result, err := h.svc.Unlocks.SubmitAnswer(c.Request.Context(), c.Param("owner"), req.ChallengeID, req.URL, req.Answer)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handlers) HandleSkipChallenge(c *gin.Context) {
	var req SkipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeBindError(c, err)
		return
	}
	if err := h.svc.Unlocks.Skip(c.Request.Context(), c.Param("owner"), req.ChallengeID); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) HandleListUnlocks(c *gin.Context) {
	now := h.svc.Clock.Now()
	active := h.svc.Unlocks.ActiveUnlocks(c.Request.Context(), c.Param("owner"))
	out := make([]UnlockResponse, 0, len(active))
	for _, u := range active {
		out = append(out, UnlockResponse{TemporaryUnlock: u, RemainingMs: u.UnlockUntil.Sub(now).Milliseconds()})
	}
	c.JSON(http.StatusOK, gin.H{"unlocks": out})
}

func (h *Handlers) HandleRelock(c *gin.Context) {
	url, ok := c.GetQuery("url")
	if !ok || url == "" {
		h.writeError(c, domain.NewValidationError("relock", "url query parameter is required"))
		return
	}
	h.svc.Unlocks.Relock(c.Request.Context(), c.Param("owner"), url)
	c.Status(http.StatusNoContent)
}

func (h *Handlers) HandleChallengeStats(c *gin.Context) {
	ctx := c.Request.Context()
	owner := c.Param("owner")
	stats, err := h.svc.Challenges.Stats(ctx, owner)
	if err != nil {
		h.writeError(c, err)
		return
	}
	recommended, err := h.svc.Challenges.RecommendedDifficulty(ctx, owner)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"stats":                  stats,
		"recommended_difficulty": recommended,
	})
}

// durationFromMs converts milliseconds without wrapping. Values past the
// time.Duration range saturate, so range checks downstream still reject them.
func durationFromMs(ms int64) time.Duration {
	if ms > math.MaxInt64/int64(time.Millisecond) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(ms) * time.Millisecond
}
