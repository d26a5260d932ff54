// Package challenge sources interview challenges from the on-disk library
// and normalizes challenge payloads shared with clients.
package challenge

import "strings"

// Source labels where a challenge came from.
const (
	SourceLibrary = "library"
	SourceAI      = "ai"
)

// Challenge is the content record handed to a session.
//
// StarterCode is intentionally flawed for the level; SolutionCode, when
// present, is the host-only reference solution.
type Challenge struct {
	ID           string `json:"id"`
	Source       string `json:"source,omitempty"`
	Title        string `json:"title"`
	Prompt       string `json:"prompt"`
	StarterCode  string `json:"starterCode,omitempty"`
	SolutionCode string `json:"solutionCode,omitempty"`
	Language     string `json:"language"`
	Level        int    `json:"level"`
}

// Public returns the challenge with the solution stripped, safe to broadcast
// to both roles.
func (c Challenge) Public() Challenge {
	c.SolutionCode = ""
	c.StarterCode = ""
	return c
}

// NormalizeLanguage maps client language aliases onto canonical names.
func NormalizeLanguage(lang string) string {
	s := strings.ToLower(strings.TrimSpace(lang))
	switch s {
	case "js":
		return "javascript"
	case "cs":
		return "csharp"
	default:
		return s
	}
}

// ValidLevel reports whether level is one of the supported difficulty tiers.
func ValidLevel(level int) bool {
	return level >= 1 && level <= 3
}
