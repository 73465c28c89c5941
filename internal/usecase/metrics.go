package usecase

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// blockChecksTotal counts IsBlocked decisions by outcome.
	blockChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "focusguard_block_checks_total",
		Help: "Block checks by outcome (permanent, session, none, unlocked, error)",
	}, []string{"outcome"})

	// matchCacheTotal counts match-cache lookups.
	matchCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "focusguard_match_cache_total",
		Help: "Match cache lookups by result (hit, miss)",
	}, []string{"result"})

	// sessionEventsTotal counts focus session transitions.
	sessionEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "focusguard_session_events_total",
		Help: "Focus session transitions by event",
	}, []string{"event"})

	// challengeEventsTotal counts challenge lifecycle events.
	challengeEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "focusguard_challenge_events_total",
		Help: "Challenge events (issued, correct, incorrect, skipped, expired, throttled)",
	}, []string{"event"})

	// unlocksGrantedTotal counts temporary unlocks granted after a correct answer.
	unlocksGrantedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "focusguard_unlocks_granted_total",
		Help: "Temporary unlocks granted",
	})
)
