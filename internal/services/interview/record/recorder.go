package record

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/devready/devready/internal/services/interview/session"
)

// MaxSnapshotChars caps large text payloads (code, output, hints) so
// pathological input cannot balloon the log.
const MaxSnapshotChars = 220000

// truncationMarker is appended to capped payloads.
const truncationMarker = "\n…(truncated)…"

// snapshotThrottle is the minimum gap between non-forced code snapshots.
const snapshotThrottle = 650 * time.Millisecond

// CapText bounds s to MaxSnapshotChars, marking truncation.
func CapText(s string) (text string, truncated bool) {
	runes := []rune(s)
	if len(runes) <= MaxSnapshotChars {
		return s, false
	}
	return string(runes[:MaxSnapshotChars]) + truncationMarker, true
}

func contentHash(s string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return fmt.Sprintf("%d", h.Sum32())
}

// Recorder appends session events to per-session JSONL logs and maintains
// the candidate-identity sidecar. Durability is best effort: write failures
// are logged for operators and never surfaced to callers.
type Recorder struct {
	dir    string
	active func(sessionID string) bool
	now    func() time.Time

	mu   sync.Mutex
	logs map[string]*sessionLog
}

// sessionLog serializes appends and tracks snapshot throttle state for one
// session id. File order therefore equals arrival order.
type sessionLog struct {
	mu           sync.Mutex
	lastSnapAt   time.Time
	lastSnapHash string
}

// NewRecorder creates a recorder writing under dir. The active callback
// reports whether ad-hoc recording is on for a session; non-forced events
// are dropped when it returns false.
func NewRecorder(dir string, active func(sessionID string) bool) (*Recorder, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("record directory is required")
	}
	if active == nil {
		return nil, fmt.Errorf("recording-active callback is required")
	}
	dir = filepath.Clean(dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create record directory: %w", err)
	}
	return &Recorder{
		dir:    dir,
		active: active,
		now:    time.Now,
		logs:   make(map[string]*sessionLog),
	}, nil
}

// SetClock overrides the time source, for tests.
func (r *Recorder) SetClock(now func() time.Time) {
	r.now = now
}

// Dir returns the artifact directory.
func (r *Recorder) Dir() string {
	return r.dir
}

// LogPath returns the JSONL log path for a session id.
func (r *Recorder) LogPath(sessionID string) string {
	return filepath.Join(r.dir, sessionID+".jsonl")
}

// MetaPath returns the sidecar metadata path for a session id.
func (r *Recorder) MetaPath(sessionID string) string {
	return filepath.Join(r.dir, sessionID+".meta.json")
}

// Exists reports whether a non-empty log exists for the session.
func (r *Recorder) Exists(sessionID string) bool {
	info, err := os.Stat(r.LogPath(sessionID))
	return err == nil && info.Size() > 0
}

func (r *Recorder) sessionLog(sessionID string) *sessionLog {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.logs[sessionID]
	if !ok {
		l = &sessionLog{}
		r.logs[sessionID] = l
	}
	return l
}

// Record appends evt to the session's log. Non-forced events are dropped
// unless recording is active for the session; forced events are always
// appended. Failures never propagate.
func (r *Recorder) Record(sessionID string, evt Event, force bool) {
	if !force && !r.active(sessionID) {
		return
	}

	l := r.sessionLog(sessionID)
	l.mu.Lock()
	defer l.mu.Unlock()
	r.appendLocked(sessionID, evt)
}

// appendLocked stamps the envelope and writes one line. Callers hold the
// session log lock.
func (r *Recorder) appendLocked(sessionID string, evt Event) {
	h := evt.header()
	h.TS = r.now().UnixMilli()
	h.SessionID = sessionID
	h.Type = evt.kind()

	line, err := json.Marshal(evt)
	if err != nil {
		log.Printf("record: marshal %s event for %s: %v", h.Type, sessionID, err)
		return
	}
	line = append(line, '\n')

	f, err := os.OpenFile(r.LogPath(sessionID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Printf("record: open log for %s: %v", sessionID, err)
		return
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		log.Printf("record: append %s event for %s: %v", h.Type, sessionID, err)
	}
}

// CodeSnapshot appends a capped snapshot of the editor contents.
//
// Non-forced snapshots are the keystroke-level firehose: they require active
// recording and are throttled to one per window unless the content hash
// changed. Forced snapshots (run, recording start/stop) always append and
// reset the throttle window.
func (r *Recorder) CodeSnapshot(sessionID, code, reason string, force bool) {
	if !force && !r.active(sessionID) {
		return
	}

	l := r.sessionLog(sessionID)
	l.mu.Lock()
	defer l.mu.Unlock()

	now := r.now()
	hash := contentHash(code)
	if !force {
		if now.Sub(l.lastSnapAt) < snapshotThrottle {
			return
		}
		if hash == l.lastSnapHash {
			return
		}
	}

	text, truncated := CapText(code)
	r.appendLocked(sessionID, &CodeSnapshot{
		Reason:    reason,
		Code:      text,
		Truncated: truncated,
	})
	l.lastSnapAt = now
	l.lastSnapHash = hash
}

// Meta is the sidecar record mirroring the latest candidate identity, kept
// so listings can resolve a name without scanning the full log.
type Meta struct {
	SessionID     string `json:"sessionId"`
	First         string `json:"first"`
	Last          string `json:"last"`
	CandidateName string `json:"candidateName"`
	UpdatedAt     int64  `json:"updatedAt"`
}

// WriteMeta overwrites the sidecar with the latest candidate identity.
// Best effort, like Record.
func (r *Recorder) WriteMeta(sessionID string, meta session.CandidateMeta) {
	payload := Meta{
		SessionID:     sessionID,
		First:         strings.TrimSpace(meta.First),
		Last:          strings.TrimSpace(meta.Last),
		CandidateName: meta.FullName(),
		UpdatedAt:     r.now().UnixMilli(),
	}

	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		log.Printf("record: marshal meta for %s: %v", sessionID, err)
		return
	}
	if err := os.WriteFile(r.MetaPath(sessionID), raw, 0o644); err != nil {
		log.Printf("record: write meta for %s: %v", sessionID, err)
	}
}

// Delete removes a session's log and sidecar as a unit.
func (r *Recorder) Delete(sessionID string) error {
	if err := os.Remove(r.LogPath(sessionID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove log: %w", err)
	}
	if err := os.Remove(r.MetaPath(sessionID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove meta: %w", err)
	}
	return nil
}
