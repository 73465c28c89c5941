// Package challenge holds the built-in question bank used to gate permanent blocks.
// Each template is copied with a fresh ID when issued, so bank IDs never reach a caller.
package challenge

import (
	"crypto/rand"
	"math/big"

	"github.com/eliteGoblin/focusd/focus_guard/internal/domain"
)

// Picker returns an index in [0, n). Replaced in tests for deterministic picks.
type Picker func(n int) int

// Bank is an immutable set of challenge templates.
type Bank struct {
	templates []domain.Challenge
	pick      Picker
}

// NewBank creates a bank with the default templates.
func NewBank() *Bank {
	return NewBankWithTemplates(defaultTemplates()...)
}

// NewBankWithTemplates creates a bank with custom templates (for testing).
func NewBankWithTemplates(templates ...domain.Challenge) *Bank {
	return &Bank{
		templates: append([]domain.Challenge(nil), templates...),
		pick:      randomInt,
	}
}

// WithPicker returns a copy of the bank that selects with p.
func (b *Bank) WithPicker(p Picker) *Bank {
	return &Bank{templates: b.templates, pick: p}
}

// All returns every template.
func (b *Bank) All() []domain.Challenge {
	return append([]domain.Challenge(nil), b.templates...)
}

// Filter returns templates of the given difficulty.
func (b *Bank) Filter(d domain.Difficulty) []domain.Challenge {
	var out []domain.Challenge
	for _, c := range b.templates {
		if c.Difficulty == d {
			out = append(out, c)
		}
	}
	return out
}

// Len returns the number of templates.
func (b *Bank) Len() int {
	return len(b.templates)
}

// Pick selects a template of difficulty d, falling back to the full bank
// when no template matches. ok is false only for an empty bank.
func (b *Bank) Pick(d domain.Difficulty) (c domain.Challenge, ok bool) {
	pool := b.Filter(d)
	if len(pool) == 0 {
		pool = b.templates
	}
	return b.pickFrom(pool)
}

// PickAny selects from the full bank.
func (b *Bank) PickAny() (domain.Challenge, bool) {
	return b.pickFrom(b.templates)
}

func (b *Bank) pickFrom(pool []domain.Challenge) (domain.Challenge, bool) {
	if len(pool) == 0 {
		return domain.Challenge{}, false
	}
	i := b.pick(len(pool))
	if i < 0 || i >= len(pool) {
		i = 0
	}
	c := pool[i]
	c.Options = append([]string(nil), c.Options...)
	return c, true
}

// randomInt returns a cryptographically random int in [0, max).
func randomInt(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0
	}
	return int(n.Int64())
}
