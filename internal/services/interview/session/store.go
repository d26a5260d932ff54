package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/devready/devready/internal/services/interview/challenge"
)

// sweepInterval is how often the store scans for expired sessions.
const sweepInterval = 15 * time.Second

// EndHook observes terminal transitions. The store calls it exactly once per
// session, outside mutation of any other session, so hooks may fan out and
// record freely.
type EndHook func(sessionID, reason string)

// Store is the authoritative in-memory session registry.
//
// Ended and expired sessions are kept so late queries can still report
// state; records are only removed when the process restarts.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*session
	ttl      time.Duration
	hints    int
	now      func() time.Time
	onEnd    EndHook
}

// NewStore creates a registry with the given session TTL. A ttl of zero
// falls back to DefaultTTL.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		sessions: make(map[string]*session),
		ttl:      ttl,
		hints:    DefaultHintBudget,
		now:      time.Now,
	}
}

// SetEndHook installs the observer for terminal transitions. Must be called
// before the store is shared.
func (st *Store) SetEndHook(hook EndHook) {
	st.mu.Lock()
	st.onEnd = hook
	st.mu.Unlock()
}

// SetClock overrides the time source, for tests.
func (st *Store) SetClock(now func() time.Time) {
	st.mu.Lock()
	st.now = now
	st.mu.Unlock()
}

func (st *Store) getOrCreateLocked(id string) *session {
	s, ok := st.sessions[id]
	if ok {
		return s
	}

	s = &session{
		id:           id,
		expiresAt:    st.now().Add(st.ttl),
		hintsLeft:    st.hints,
		lastLanguage: DefaultLanguage,
		hostKey:      newHostKey(),
	}
	st.sessions[id] = s
	return s
}

func newHostKey() string {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		// crypto/rand failure is unrecoverable for a capability secret.
		panic(fmt.Sprintf("session: read random bytes: %v", err))
	}
	return hex.EncodeToString(raw[:])
}

// GetOrCreate ensures a registry entry exists for id and returns its state.
// Creation is lazy and idempotent: an existing entry keeps its secret and
// expiry.
func (st *Store) GetOrCreate(id string) State {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.getOrCreateLocked(id).state()
}

// IsActive reports whether id names a session that exists, has not ended,
// and has not passed its expiry.
func (st *Store) IsActive(id string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[id]
	return ok && s.activeAt(st.now())
}

// Authorize reports whether presentedKey is the session's host secret. The
// session is created if absent, mirroring the registry's lazy lifecycle, so
// a guessed id never reveals whether a session existed.
func (st *Store) Authorize(id, presentedKey string) bool {
	presentedKey = strings.TrimSpace(presentedKey)
	if presentedKey == "" {
		return false
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	return presentedKey == st.getOrCreateLocked(id).hostKey
}

// HostKey returns the capability secret for id, creating the session if
// absent. Callers must only disclose it to the host role.
func (st *Store) HostKey(id string) string {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.getOrCreateLocked(id).hostKey
}

// End marks the session ended. Idempotent: only the first call transitions
// and fires the end hook. Missing ids are ignored.
func (st *Store) End(id, reason string) {
	st.mu.Lock()
	s, ok := st.sessions[id]
	if !ok || s.ended {
		st.mu.Unlock()
		return
	}
	s.ended = true
	hook := st.onEnd
	st.mu.Unlock()

	log.Printf("session: ended %s reason=%s", id, reason)
	if hook != nil {
		hook(id, reason)
	}
}

// SetCode records the latest shared editor contents. Last writer wins.
// Returns false without mutating when the session is not active.
func (st *Store) SetCode(id, code string) bool {
	return st.mutateActive(id, func(s *session) {
		s.lastCode = code
	})
}

// SetLanguage records the latest shared language selection.
func (st *Store) SetLanguage(id, lang string) bool {
	if strings.TrimSpace(lang) == "" {
		lang = DefaultLanguage
	}
	return st.mutateActive(id, func(s *session) {
		s.lastLanguage = lang
	})
}

// SetOutput records the latest shared run output.
func (st *Store) SetOutput(id, output string) bool {
	return st.mutateActive(id, func(s *session) {
		s.lastOutput = output
	})
}

// SetCandidateMeta records candidate identity. Mutable, last writer wins.
func (st *Store) SetCandidateMeta(id string, meta CandidateMeta) bool {
	meta.First = strings.TrimSpace(meta.First)
	meta.Last = strings.TrimSpace(meta.Last)
	return st.mutateActive(id, func(s *session) {
		s.candidateMeta = &meta
	})
}

// SetChallenge stores the externally-sourced challenge currently under
// discussion.
func (st *Store) SetChallenge(id string, ch challenge.Challenge) bool {
	return st.mutateActive(id, func(s *session) {
		s.currentChallenge = &ch
	})
}

// Challenge returns the session's current challenge, if any.
func (st *Store) Challenge(id string) (challenge.Challenge, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[id]
	if !ok || s.currentChallenge == nil {
		return challenge.Challenge{}, false
	}
	return *s.currentChallenge, true
}

// StartRecording flips recording on and returns the toggle time. ok is
// false if the session is missing, inactive, or already recording.
func (st *Store) StartRecording(id string) (startedAt time.Time, ok bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, found := st.sessions[id]
	if !found || !s.activeAt(st.now()) || s.recordingActive {
		return time.Time{}, false
	}
	s.recordingActive = true
	s.recordingStartedAt = st.now()
	s.recordingStoppedAt = time.Time{}
	return s.recordingStartedAt, true
}

// StopRecording flips recording off and returns the toggle time. ok is
// false if the session was not recording. Stopping is allowed even after
// expiry so a recording that outlived its session still closes cleanly.
func (st *Store) StopRecording(id string) (stoppedAt time.Time, ok bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, found := st.sessions[id]
	if !found || !s.recordingActive {
		return time.Time{}, false
	}
	s.recordingActive = false
	s.recordingStoppedAt = st.now()
	return s.recordingStoppedAt, true
}

// RecordingActive reports whether ad-hoc recording is on for id.
func (st *Store) RecordingActive(id string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[id]
	return ok && s.recordingActive
}

// ConsumeHint decrements the hint budget and returns the remaining count.
// The decrement happens before any generation attempt so a failed attempt
// still consumes budget. ok is false when the budget was already exhausted;
// the counter never goes negative.
func (st *Store) ConsumeHint(id string) (remaining int, ok bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, sok := st.sessions[id]
	if !sok || s.hintsLeft <= 0 {
		return 0, false
	}
	s.hintsLeft--
	return s.hintsLeft, true
}

// State returns a copy of the session's state and whether it exists.
func (st *Store) State(id string) (State, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[id]
	if !ok {
		return State{}, false
	}
	return s.state(), true
}

func (st *Store) mutateActive(id string, mutate func(*session)) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[id]
	if !ok || !s.activeAt(st.now()) {
		return false
	}
	mutate(s)
	return true
}

// sweep ends every session whose expiry has passed. Returns the ids ended in
// this pass.
func (st *Store) sweep() []string {
	st.mu.Lock()
	now := st.now()
	var expired []string
	for id, s := range st.sessions {
		if !s.ended && now.After(s.expiresAt) {
			expired = append(expired, id)
		}
	}
	st.mu.Unlock()

	for _, id := range expired {
		st.End(id, ReasonExpired)
	}
	return expired
}

// RunSweeper expires sessions on a fixed interval until ctx ends. It is the
// only component that transitions sessions out of activity due to time; it
// never touches persisted artifacts.
func (st *Store) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st.sweep()
		}
	}
}
