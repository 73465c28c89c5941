// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import (
	"fmt"
	"time"
)

// Difficulty is the challenge difficulty level.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid reports whether d is one of the known levels.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// ParseDifficulty converts user input into a Difficulty.
func ParseDifficulty(s string) (Difficulty, error) {
	d := Difficulty(s)
	if !d.Valid() {
		return "", NewValidationError("parse difficulty",
			fmt.Sprintf("unknown difficulty %q (want easy, medium or hard)", s))
	}
	return d, nil
}

// ChallengeType identifies the kind of cognitive task.
type ChallengeType string

const (
	ChallengePuzzle  ChallengeType = "puzzle"
	ChallengeRiddle  ChallengeType = "riddle"
	ChallengeMath    ChallengeType = "math"
	ChallengeScience ChallengeType = "science"
	ChallengeGame    ChallengeType = "game"
)

// Valid reports whether t is one of the known challenge types.
func (t ChallengeType) Valid() bool {
	switch t {
	case ChallengePuzzle, ChallengeRiddle, ChallengeMath, ChallengeScience, ChallengeGame:
		return true
	}
	return false
}

// BlockReason explains an IsBlocked decision.
type BlockReason string

const (
	ReasonPermanent BlockReason = "permanent"
	ReasonSession   BlockReason = "session"
	ReasonNone      BlockReason = "none"
)

// BlockEntry is a single rule identifying a site to restrict.
type BlockEntry struct {
	ID            string     `json:"id"`
	NormalizedURL string     `json:"url"`
	Pattern       string     `json:"pattern"`
	IsPermanent   bool       `json:"is_permanent"`
	Category      string     `json:"category,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	LastAccessed  *time.Time `json:"last_accessed,omitempty"`
}

// BlockList is the owner's full set of block entries.
// Entries keep insertion order; NormalizedURL is unique.
type BlockList struct {
	OwnerID     string       `json:"owner_id"`
	Entries     []BlockEntry `json:"entries"`
	LastUpdated time.Time    `json:"last_updated"`
}

// IndexOf returns the position of the entry with the given id, or -1.
func (l *BlockList) IndexOf(id string) int {
	for i := range l.Entries {
		if l.Entries[i].ID == id {
			return i
		}
	}
	return -1
}

// IndexOfURL returns the position of the entry with the given normalized URL, or -1.
func (l *BlockList) IndexOfURL(normalizedURL string) int {
	for i := range l.Entries {
		if l.Entries[i].NormalizedURL == normalizedURL {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy safe to mutate.
func (l BlockList) Clone() BlockList {
	out := l
	out.Entries = make([]BlockEntry, len(l.Entries))
	for i, e := range l.Entries {
		if e.LastAccessed != nil {
			t := *e.LastAccessed
			e.LastAccessed = &t
		}
		out.Entries[i] = e
	}
	return out
}

// TemporaryUnlock is a time-boxed exemption from blocking for one URL.
type TemporaryUnlock struct {
	NormalizedURL string    `json:"url"`
	UnlockUntil   time.Time `json:"unlock_until"`
}

// Break is a paused interval inside a focus session.
// A nil EndTime means the session is currently paused.
type Break struct {
	ID        string     `json:"id"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}

// IsOpen reports whether the break has not been closed yet.
func (b Break) IsOpen() bool {
	return b.EndTime == nil
}

// FocusSession is a timed focus period for one owner.
type FocusSession struct {
	ID                  string        `json:"id"`
	OwnerID             string        `json:"owner_id"`
	StartTime           time.Time     `json:"start_time"`
	EndTime             time.Time     `json:"end_time"`
	Duration            time.Duration `json:"duration"`
	IsActive            bool          `json:"is_active"`
	Breaks              []Break       `json:"breaks"`
	CompletedPercentage int           `json:"completed_percentage"`
}

// OpenBreak returns the trailing open break, or nil.
func (s *FocusSession) OpenBreak() *Break {
	if len(s.Breaks) == 0 {
		return nil
	}
	last := &s.Breaks[len(s.Breaks)-1]
	if !last.IsOpen() {
		return nil
	}
	return last
}

// IsOnBreak reports whether the session is currently paused.
func (s *FocusSession) IsOnBreak() bool {
	return s.OpenBreak() != nil
}

// ClosedBreakTime sums the length of all closed breaks.
func (s *FocusSession) ClosedBreakTime() time.Duration {
	var total time.Duration
	for _, b := range s.Breaks {
		if b.EndTime != nil {
			total += b.EndTime.Sub(b.StartTime)
		}
	}
	return total
}

// Clone returns a deep copy safe to mutate.
func (s FocusSession) Clone() FocusSession {
	out := s
	out.Breaks = make([]Break, len(s.Breaks))
	for i, b := range s.Breaks {
		if b.EndTime != nil {
			t := *b.EndTime
			b.EndTime = &t
		}
		out.Breaks[i] = b
	}
	return out
}

// Challenge is a cognitive task gating a permanently blocked site.
// Bank entries are templates; issued copies get a fresh ID.
type Challenge struct {
	ID               string        `json:"id"`
	Type             ChallengeType `json:"type"`
	Question         string        `json:"question"`
	Options          []string      `json:"options,omitempty"`
	CorrectAnswer    Answer        `json:"correct_answer"`
	Difficulty       Difficulty    `json:"difficulty"`
	TimeLimitSeconds int           `json:"time_limit_seconds,omitempty"`
}

// Public strips the answer so the challenge can be shown to the user.
func (c Challenge) Public() PublicChallenge {
	return PublicChallenge{
		ID:               c.ID,
		Type:             c.Type,
		Question:         c.Question,
		Options:          append([]string(nil), c.Options...),
		Difficulty:       c.Difficulty,
		TimeLimitSeconds: c.TimeLimitSeconds,
	}
}

// PublicChallenge is a Challenge without its answer key.
type PublicChallenge struct {
	ID               string        `json:"id"`
	Type             ChallengeType `json:"type"`
	Question         string        `json:"question"`
	Options          []string      `json:"options,omitempty"`
	Difficulty       Difficulty    `json:"difficulty"`
	TimeLimitSeconds int           `json:"time_limit_seconds,omitempty"`
}

// IssuedChallenge is a challenge handed out to an owner and awaiting an answer.
type IssuedChallenge struct {
	Challenge Challenge `json:"challenge"`
	OwnerID   string    `json:"owner_id"`
	URL       string    `json:"url,omitempty"`
	IssuedAt  time.Time `json:"issued_at"`
}

// Deadline returns when the challenge stops accepting answers.
// ok is false when the challenge has no time limit.
func (c IssuedChallenge) Deadline() (deadline time.Time, ok bool) {
	if c.Challenge.TimeLimitSeconds <= 0 {
		return time.Time{}, false
	}
	return c.IssuedAt.Add(time.Duration(c.Challenge.TimeLimitSeconds) * time.Second), true
}

// ChallengeAttempt is one entry of the append-only attempt log.
type ChallengeAttempt struct {
	OwnerID       string    `json:"owner_id"`
	ChallengeID   string    `json:"challenge_id"`
	Challenge     Challenge `json:"challenge"`
	WasSuccessful bool      `json:"was_successful"`
	AttemptedAt   time.Time `json:"attempted_at"`
}

// BlockCheckResult is the outcome of an IsBlocked query.
type BlockCheckResult struct {
	IsBlocked bool        `json:"is_blocked"`
	Entry     *BlockEntry `json:"entry"`
	Reason    BlockReason `json:"reason"`
	CanUnlock bool        `json:"can_unlock"`
}

// BlockStats aggregates an owner's block list.
type BlockStats struct {
	Total            int `json:"total"`
	Permanent        int `json:"permanent"`
	Temporary        int `json:"temporary"`
	Categorized      int `json:"categorized"`
	RecentlyAccessed int `json:"recently_accessed"`
}

// SessionContext is the session state consulted for session-scoped blocks.
type SessionContext struct {
	HasActiveSession bool
	IsOnBreak        bool
	Remaining        time.Duration
}

// BlockingContext summarizes what is being blocked right now.
type BlockingContext struct {
	HasActiveSession     bool          `json:"has_active_session"`
	SessionTimeRemaining time.Duration `json:"session_time_remaining"`
	IsOnBreak            bool          `json:"is_on_break"`
	TotalBlocks          int           `json:"total_blocks"`
	PermanentBlocks      int           `json:"permanent_blocks"`
	SessionBlocks        int           `json:"session_blocks"`
}

// BlockingMessage is the text shown on a blocked page.
type BlockingMessage struct {
	Title      string `json:"title"`
	Message    string `json:"message"`
	ActionText string `json:"action_text,omitempty"`
}

// ChallengeStats summarizes an owner's attempt log.
type ChallengeStats struct {
	TotalAttempts      int     `json:"total_attempts"`
	SuccessfulAttempts int     `json:"successful_attempts"`
	SuccessRate        float64 `json:"success_rate"`
}

// DaemonInfo is the registration record of the scheduler daemon.
type DaemonInfo struct {
	PID           int       `json:"pid"`
	StartedAt     time.Time `json:"started_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	AppVersion    string    `json:"app_version,omitempty"`
}
