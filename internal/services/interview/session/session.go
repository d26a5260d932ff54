// Package session owns the in-memory registry of live interview sessions:
// lifecycle, TTL expiry, the host capability secret, and the denormalized
// last-known shared state used to converge late joiners.
package session

import (
	"strings"
	"time"

	"github.com/devready/devready/internal/services/interview/challenge"
)

// Role identifies the two logical participants of a session.
const (
	RoleHost      = "host"
	RoleCandidate = "candidate"
)

// End reasons passed to End and surfaced on the terminal fan-out event.
const (
	ReasonEndedByHost = "ended_by_host"
	ReasonExpired     = "expired"
)

// DefaultTTL bounds a session's lifetime from creation.
const DefaultTTL = 30 * time.Minute

// DefaultHintBudget is the per-session consumable hint allowance.
const DefaultHintBudget = 3

// DefaultLanguage is the editor language for a fresh session.
const DefaultLanguage = "python"

// CandidateMeta is the optional identity a candidate declares on join.
type CandidateMeta struct {
	First string `json:"first"`
	Last  string `json:"last"`
}

// FullName joins the non-empty name parts with a space.
func (m CandidateMeta) FullName() string {
	parts := make([]string, 0, 2)
	if s := strings.TrimSpace(m.First); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(m.Last); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}

// Empty reports whether both name parts are blank.
func (m CandidateMeta) Empty() bool {
	return strings.TrimSpace(m.First) == "" && strings.TrimSpace(m.Last) == ""
}

// session is the registry-owned record for one session id. All access goes
// through Store methods under the store lock.
type session struct {
	id        string
	expiresAt time.Time
	ended     bool
	hostKey   string

	hintsLeft     int
	candidateMeta *CandidateMeta

	lastCode     string
	lastLanguage string
	lastOutput   string

	recordingActive    bool
	recordingStartedAt time.Time
	recordingStoppedAt time.Time

	currentChallenge *challenge.Challenge
}

func (s *session) activeAt(now time.Time) bool {
	return !s.ended && now.Before(s.expiresAt)
}

// State is a point-in-time copy of a session's shared state, safe to use
// outside the store lock.
type State struct {
	ID              string
	ExpiresAt       time.Time
	Ended           bool
	HintsLeft       int
	CandidateMeta   *CandidateMeta
	LastCode        string
	LastLanguage    string
	LastOutput      string
	RecordingActive bool
	Challenge       *challenge.Challenge
}

func (s *session) state() State {
	st := State{
		ID:              s.id,
		ExpiresAt:       s.expiresAt,
		Ended:           s.ended,
		HintsLeft:       s.hintsLeft,
		LastCode:        s.lastCode,
		LastLanguage:    s.lastLanguage,
		LastOutput:      s.lastOutput,
		RecordingActive: s.recordingActive,
	}
	if s.candidateMeta != nil {
		meta := *s.candidateMeta
		st.CandidateMeta = &meta
	}
	if s.currentChallenge != nil {
		ch := *s.currentChallenge
		st.Challenge = &ch
	}
	return st
}
