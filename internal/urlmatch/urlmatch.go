// Package urlmatch normalizes URLs and matches them against block entries.
package urlmatch

import (
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/eliteGoblin/focusd/focus_guard/internal/domain"
)

var (
	absoluteURLPattern = regexp.MustCompile(`^https?://(www\.)?[-a-zA-Z0-9@:%._\+~#=]{1,256}\.[a-zA-Z0-9()]{1,6}\b([-a-zA-Z0-9()@:%_\+.~#?&/=]*)$`)
	bareDomainPattern  = regexp.MustCompile(`^[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z]{2,})+$`)
)

// compiled caches translated wildcard patterns; nil values mark invalid ones.
var compiled sync.Map

// Normalize strips scheme, leading "www." and trailing slashes, and lowercases.
// Empty or blank input yields "", which callers treat as "no match".
func Normalize(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	for {
		prev := s
		s = strings.TrimPrefix(s, "https://")
		s = strings.TrimPrefix(s, "http://")
		s = strings.TrimPrefix(s, "www.")
		s = strings.TrimRight(s, "/")
		if s == prev {
			return s
		}
	}
}

// IsValidURL reports whether raw is an absolute http(s) URL.
func IsValidURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return absoluteURLPattern.MatchString(raw)
}

// IsValidDomain reports whether raw is a bare domain such as example.com.
func IsValidDomain(raw string) bool {
	return bareDomainPattern.MatchString(raw)
}

// Validate checks raw is usable as a block target and returns its normalized form.
func Validate(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", domain.NewValidationError("validate url", "URL cannot be empty")
	}
	if !IsValidURL(trimmed) && !IsValidDomain(trimmed) {
		return "", domain.NewValidationError("validate url",
			"Please enter a valid URL or domain (e.g., example.com or https://example.com)")
	}
	normalized := Normalize(trimmed)
	if normalized == "" {
		return "", domain.NewValidationError("validate url", "URL cannot be empty")
	}
	return normalized, nil
}

// ValidateStored accepts what Validate accepts plus an already normalized
// value, a domain optionally followed by a path such as "reddit.com/r/golang".
func ValidateStored(raw string) (string, error) {
	normalized, err := Validate(raw)
	if err == nil {
		return normalized, nil
	}
	candidate := Normalize(raw)
	host, _, _ := strings.Cut(candidate, "/")
	if host == "" || !IsValidDomain(host) {
		return "", err
	}
	return candidate, nil
}

// DefaultPattern is the pattern stored with a new entry: the domain and all subdomains.
func DefaultPattern(normalizedURL string) string {
	return "*://*." + normalizedURL + "/*"
}

// Matches reports whether candidate is covered by entry.
// Substring matching runs in both directions, so subdomains and paths match.
func Matches(candidate string, entry domain.BlockEntry) bool {
	normalized := Normalize(candidate)
	target := entry.NormalizedURL
	if normalized == "" || target == "" {
		return false
	}

	if normalized == target {
		return true
	}
	if strings.Contains(normalized, target) || strings.Contains(target, normalized) {
		return true
	}

	if entry.Pattern == "" || entry.Pattern == DefaultPattern(target) {
		return false
	}
	re := compile(entry.Pattern)
	if re == nil {
		return false
	}
	return re.MatchString(candidate) || re.MatchString(normalized)
}

// compile translates a glob ("*" wildcard) to a case-insensitive regexp.
// Returns nil for patterns that cannot be compiled.
func compile(pattern string) *regexp.Regexp {
	if v, ok := compiled.Load(pattern); ok {
		return v.(*regexp.Regexp)
	}
	expr := "(?i)" + strings.ReplaceAll(regexp.QuoteMeta(pattern), `\*`, ".*")
	re, err := regexp.Compile(expr)
	if err != nil {
		re = nil
	}
	compiled.Store(pattern, re)
	return re
}
