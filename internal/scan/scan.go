// Package scan flags sensitive-looking content before it is stored.
// Results are advisory: callers log them and never refuse a write because of them.
package scan

import (
	"regexp"
	"sort"
	"strings"
)

// Pattern is one named detector.
type Pattern struct {
	Type        string
	Description string
	Regexp      *regexp.Regexp
}

// Warning describes one match.
type Warning struct {
	Type           string `json:"type"`
	Description    string `json:"description"`
	Position       int    `json:"position"`
	RedactedSample string `json:"redactedSample"`
}

// Result is the outcome of a scan.
type Result struct {
	HasWarnings bool      `json:"hasWarnings"`
	Warnings    []Warning `json:"warnings,omitempty"`
}

// Scanner matches text against a fixed pattern set. It is safe for concurrent use.
type Scanner struct {
	patterns []Pattern
}

// New builds a scanner from patterns.
func New(patterns ...Pattern) *Scanner {
	return &Scanner{patterns: append([]Pattern(nil), patterns...)}
}

// Default returns a scanner with DefaultPatterns.
func Default() *Scanner {
	return New(DefaultPatterns()...)
}

// DefaultPatterns returns the built-in detectors.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{
			Type:        "aws_access_key",
			Description: "AWS access key id",
			Regexp:      regexp.MustCompile(`\b(AKIA|ASIA)[0-9A-Z]{16}\b`),
		},
		{
			Type:        "private_key",
			Description: "PEM private key block",
			Regexp:      regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`),
		},
		{
			Type:        "api_key",
			Description: "API key or token assignment",
			Regexp:      regexp.MustCompile(`(?i)\b(api[_-]?key|access[_-]?token|secret[_-]?key|auth[_-]?token)\b\s*[:=]\s*['"]?[A-Za-z0-9_\-\.]{16,}`),
		},
		{
			Type:        "bearer_token",
			Description: "Bearer authorization header",
			Regexp:      regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9_\-\.=]{20,}`),
		},
		{
			Type:        "jwt",
			Description: "JSON web token",
			Regexp:      regexp.MustCompile(`\beyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}`),
		},
		{
			Type:        "password",
			Description: "Password assignment",
			Regexp:      regexp.MustCompile(`(?i)\b(password|passwd|pwd)\b\s*[:=]\s*\S{6,}`),
		},
		{
			Type:        "github_token",
			Description: "GitHub personal access token",
			Regexp:      regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`),
		},
	}
}

// Scan reports every pattern match in text, ordered by position.
func (s *Scanner) Scan(text string) Result {
	var res Result
	if s == nil {
		return res
	}
	for _, p := range s.patterns {
		for _, loc := range p.Regexp.FindAllStringIndex(text, -1) {
			res.Warnings = append(res.Warnings, Warning{
				Type:           p.Type,
				Description:    p.Description,
				Position:       loc[0],
				RedactedSample: redact(text[loc[0]:loc[1]]),
			})
		}
	}
	sort.SliceStable(res.Warnings, func(i, j int) bool {
		return res.Warnings[i].Position < res.Warnings[j].Position
	})
	res.HasWarnings = len(res.Warnings) > 0
	return res
}

// redact keeps a short recognizable head of the match and masks the rest.
func redact(match string) string {
	const keep = 4
	r := []rune(match)
	if len(r) <= keep {
		return strings.Repeat("*", len(r))
	}
	return string(r[:keep]) + strings.Repeat("*", min(len(r)-keep, 8))
}
