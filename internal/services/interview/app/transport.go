package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/websocket"

	"github.com/devready/devready/internal/platform/id"
	"github.com/devready/devready/internal/platform/timeouts"
	"github.com/devready/devready/internal/services/interview/ai"
	"github.com/devready/devready/internal/services/interview/challenge"
	"github.com/devready/devready/internal/services/interview/record"
	"github.com/devready/devready/internal/services/interview/session"
)

type joinPayload struct {
	SessionID     string                 `json:"sessionId"`
	Role          string                 `json:"role"`
	CandidateMeta *session.CandidateMeta `json:"candidateMeta"`
}

type sessionJoinedPayload struct {
	SessionID       string                  `json:"sessionId"`
	Role            string                  `json:"role"`
	ExpiresAt       int64                   `json:"expiresAt"`
	HintsLeft       int                     `json:"hintsLeft"`
	RecordingActive bool                    `json:"recordingActive"`
	RecordExists    bool                    `json:"recordExists"`
	CandidateMeta   *session.CandidateMeta  `json:"candidateMeta,omitempty"`
	HostKey         string                  `json:"hostKey,omitempty"`
	Challenge       *challenge.Challenge    `json:"currentChallenge,omitempty"`
}

type hintResponsePayload struct {
	Hint      string `json:"hint"`
	HintsLeft int    `json:"hintsLeft"`
	Broadcast bool   `json:"broadcast"`
}

type recordingStatusPayload struct {
	Active       bool `json:"active"`
	RecordExists bool `json:"recordExists"`
}

type sessionEndedPayload struct {
	Reason string `json:"reason"`
}

type challengeUpdatePayload struct {
	ID       string `json:"id"`
	Source   string `json:"source"`
	Title    string `json:"title"`
	Prompt   string `json:"prompt"`
	Language string `json:"language"`
	Level    int    `json:"level"`
}

// wsConn is the per-connection state. sessionID and role are set once by the
// join frame and read-only afterwards.
type wsConn struct {
	connID    string
	peer      *wsPeer
	sessionID string
	role      string
	group     *sessionGroup
}

func (c *wsConn) joined() bool {
	return c.group != nil
}

func (s *Server) wsHandler() http.Handler {
	return websocket.Handler(func(conn *websocket.Conn) {
		s.handleWSConn(conn)
	})
}

func (s *Server) handleWSConn(conn *websocket.Conn) {
	defer func() {
		_ = conn.Close()
	}()

	decoder := json.NewDecoder(conn)
	connID, err := id.NewID()
	if err != nil {
		connID = "unknown"
	}
	c := &wsConn{connID: connID, peer: newWSPeer(conn)}
	defer func() {
		if !c.joined() {
			return
		}
		s.recorder.Record(c.sessionID, &record.Disconnect{ConnID: c.connID}, true)
		s.hub.leave(c.sessionID, c.peer)
	}()

	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		var frame wsFrame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			decodeErrors++
			_ = writeWSError(c.peer, "", "INVALID_ARGUMENT", "invalid frame payload")
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		if len(frame.Payload) > maxFramePayloadBytes {
			_ = writeWSError(c.peer, frame.RequestID, "INVALID_ARGUMENT", "payload too large")
			continue
		}

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			_ = writeWSError(c.peer, frame.RequestID, "RESOURCE_EXHAUSTED", "rate limit exceeded")
			return
		}

		switch frame.Type {
		case "joinSession":
			s.handleJoinFrame(c, frame)
		case "codeUpdate":
			s.handleCodeUpdateFrame(c, frame)
		case "languageUpdate":
			s.handleLanguageUpdateFrame(c, frame)
		case "outputUpdate":
			s.handleOutputUpdateFrame(c, frame)
		case "requestHint":
			s.handleRequestHintFrame(c)
		case "startRecording":
			s.handleStartRecordingFrame(c, frame)
		case "stopRecording":
			s.handleStopRecordingFrame(c, frame)
		case "endSession":
			s.handleEndSessionFrame(c, frame)
		case "candidateMetaUpdate":
			s.handleCandidateMetaFrame(c, frame)
		case "challengeUpdate":
			s.handleChallengeUpdateFrame(c, frame)
		default:
			_ = writeWSError(c.peer, frame.RequestID, "INVALID_ARGUMENT", "unsupported frame type")
		}
	}
}

func (s *Server) handleJoinFrame(c *wsConn, frame wsFrame) {
	var payload joinPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(c.peer, frame.RequestID, "INVALID_ARGUMENT", "invalid join payload")
		return
	}

	sessionID := strings.TrimSpace(payload.SessionID)
	if sessionID == "" {
		_ = writeWSError(c.peer, frame.RequestID, "INVALID_ARGUMENT", "sessionId is required")
		return
	}
	if c.joined() {
		_ = writeWSError(c.peer, frame.RequestID, "INVALID_ARGUMENT", "already joined a session")
		return
	}

	role := strings.TrimSpace(payload.Role)
	if role != session.RoleHost {
		role = session.RoleCandidate
	}

	st := s.store.GetOrCreate(sessionID)
	c.sessionID = sessionID
	c.role = role
	c.group = s.hub.group(sessionID)
	c.group.join(c.peer)

	if role == session.RoleCandidate && payload.CandidateMeta != nil && !payload.CandidateMeta.Empty() {
		if updated, ok := s.applyCandidateMeta(sessionID, *payload.CandidateMeta, "candidate_join"); ok {
			st = updated
		}
	}

	joinedPayload := sessionJoinedPayload{
		SessionID:       sessionID,
		Role:            role,
		ExpiresAt:       st.ExpiresAt.UnixMilli(),
		HintsLeft:       st.HintsLeft,
		RecordingActive: st.RecordingActive,
		RecordExists:    s.recorder.Exists(sessionID),
		CandidateMeta:   st.CandidateMeta,
	}
	if role == session.RoleHost {
		joinedPayload.HostKey = s.store.HostKey(sessionID)
	}
	if st.Challenge != nil {
		public := st.Challenge.Public()
		joinedPayload.Challenge = &public
	}
	_ = c.peer.send(wsFrame{Type: "sessionJoined", Payload: mustJSON(joinedPayload)})

	// Converge the late joiner on the last-known shared state.
	if st.LastCode != "" {
		_ = c.peer.send(wsFrame{Type: "codeUpdate", Payload: mustJSON(st.LastCode)})
	}
	if st.LastLanguage != "" {
		_ = c.peer.send(wsFrame{Type: "languageUpdate", Payload: mustJSON(st.LastLanguage)})
	}
	if st.LastOutput != "" {
		_ = c.peer.send(wsFrame{Type: "outputUpdate", Payload: mustJSON(st.LastOutput)})
	}
	if st.Challenge != nil {
		public := st.Challenge.Public()
		_ = c.peer.send(wsFrame{Type: "challengeUpdate", Payload: mustJSON(challengeUpdatePayload{
			ID:       public.ID,
			Source:   public.Source,
			Title:    public.Title,
			Prompt:   public.Prompt,
			Language: public.Language,
			Level:    public.Level,
		})})
	}
	_ = c.peer.send(wsFrame{Type: "recordingStatus", Payload: mustJSON(recordingStatusPayload{
		Active:       st.RecordingActive,
		RecordExists: s.recorder.Exists(sessionID),
	})})
}

// applyCandidateMeta persists declared candidate identity, refreshes the
// record sidecar, records the change, and fans it out to everyone.
func (s *Server) applyCandidateMeta(sessionID string, meta session.CandidateMeta, source string) (session.State, bool) {
	if !s.store.SetCandidateMeta(sessionID, meta) {
		return session.State{}, false
	}
	s.recorder.WriteMeta(sessionID, meta)
	s.recorder.Record(sessionID, &record.CandidateMetaUpdate{First: meta.First, Last: meta.Last, Source: source}, true)
	s.broadcast(sessionID, "candidateMetaUpdate", meta)
	st, _ := s.store.State(sessionID)
	return st, true
}

func (s *Server) handleCodeUpdateFrame(c *wsConn, frame wsFrame) {
	if !c.joined() {
		return
	}
	var code string
	if err := json.Unmarshal(frame.Payload, &code); err != nil {
		_ = writeWSError(c.peer, frame.RequestID, "INVALID_ARGUMENT", "invalid code payload")
		return
	}
	if !s.store.SetCode(c.sessionID, code) {
		return
	}
	s.recorder.CodeSnapshot(c.sessionID, code, record.ReasonTyping, false)
	c.group.broadcastExcept(c.peer, wsFrame{Type: "codeUpdate", Payload: mustJSON(code)})
}

func (s *Server) handleLanguageUpdateFrame(c *wsConn, frame wsFrame) {
	if !c.joined() {
		return
	}
	var lang string
	if err := json.Unmarshal(frame.Payload, &lang); err != nil {
		_ = writeWSError(c.peer, frame.RequestID, "INVALID_ARGUMENT", "invalid language payload")
		return
	}
	lang = challenge.NormalizeLanguage(lang)
	if !s.store.SetLanguage(c.sessionID, lang) {
		return
	}
	s.recorder.Record(c.sessionID, &record.LanguageUpdate{Lang: lang}, true)
	c.group.broadcastExcept(c.peer, wsFrame{Type: "languageUpdate", Payload: mustJSON(lang)})
}

func (s *Server) handleOutputUpdateFrame(c *wsConn, frame wsFrame) {
	if !c.joined() {
		return
	}
	var output string
	if err := json.Unmarshal(frame.Payload, &output); err != nil {
		_ = writeWSError(c.peer, frame.RequestID, "INVALID_ARGUMENT", "invalid output payload")
		return
	}
	if !s.store.SetOutput(c.sessionID, output) {
		return
	}
	capped, truncated := record.CapText(output)
	s.recorder.Record(c.sessionID, &record.OutputSnapshot{Text: capped, Truncated: truncated, Reason: record.ReasonOutputUpdate}, true)
	c.group.broadcast(wsFrame{Type: "outputUpdate", Payload: mustJSON(output)})
}

func (s *Server) handleRequestHintFrame(c *wsConn) {
	if !c.joined() || !s.store.IsActive(c.sessionID) {
		return
	}

	remaining, ok := s.store.ConsumeHint(c.sessionID)
	if !ok {
		s.recorder.Record(c.sessionID, &record.HintResponse{Hint: "No hints left.", HintsLeft: 0}, true)
		c.group.broadcast(wsFrame{Type: "hintResponse", Payload: mustJSON(hintResponsePayload{
			Hint:      "No hints left.",
			HintsLeft: 0,
			Broadcast: true,
		})})
		return
	}
	s.recorder.Record(c.sessionID, &record.HintRequested{HintsLeft: remaining}, true)

	st, _ := s.store.State(c.sessionID)
	sessionID := c.sessionID
	group := c.group
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeouts.AIRequest)
		defer cancel()

		hint, err := s.gen.Hint(ctx, st.LastLanguage, st.LastCode, st.LastOutput)
		if err != nil {
			if errors.Is(err, ai.ErrNotConfigured) {
				hint = "AI hints are not configured on this server."
			} else {
				hint = "AI hint error: " + err.Error()
			}
		}
		capped, truncated := record.CapText(hint)
		s.recorder.Record(sessionID, &record.HintResponse{Hint: capped, Truncated: truncated, HintsLeft: remaining}, true)

		// The session may have ended while the hint was generating. The
		// consumed hint stays consumed; only the fan-out is suppressed.
		if !s.store.IsActive(sessionID) {
			return
		}
		group.broadcast(wsFrame{Type: "hintResponse", Payload: mustJSON(hintResponsePayload{
			Hint:      hint,
			HintsLeft: remaining,
			Broadcast: true,
		})})
	}()
}

func (s *Server) handleStartRecordingFrame(c *wsConn, frame wsFrame) {
	if !c.joined() {
		return
	}
	if c.role != session.RoleHost {
		_ = writeWSError(c.peer, frame.RequestID, "FORBIDDEN", "only the host can control recording")
		return
	}

	startedAt, ok := s.store.StartRecording(c.sessionID)
	if !ok {
		return
	}
	st, _ := s.store.State(c.sessionID)

	// Seed the log so replay always opens on a full snapshot of the shared
	// editor, language, and output pane.
	s.recorder.Record(c.sessionID, &record.RecordingStarted{StartedAt: startedAt.UnixMilli()}, true)
	s.recorder.CodeSnapshot(c.sessionID, st.LastCode, record.ReasonRecordingStart, true)
	s.recorder.Record(c.sessionID, &record.LanguageUpdate{Lang: st.LastLanguage}, true)
	capped, truncated := record.CapText(st.LastOutput)
	s.recorder.Record(c.sessionID, &record.OutputSnapshot{Text: capped, Truncated: truncated, Reason: record.ReasonRecordingStart}, true)

	c.group.broadcast(wsFrame{Type: "recordingStatus", Payload: mustJSON(recordingStatusPayload{
		Active:       true,
		RecordExists: s.recorder.Exists(c.sessionID),
	})})
}

func (s *Server) handleStopRecordingFrame(c *wsConn, frame wsFrame) {
	if !c.joined() {
		return
	}
	if c.role != session.RoleHost {
		_ = writeWSError(c.peer, frame.RequestID, "FORBIDDEN", "only the host can control recording")
		return
	}

	stoppedAt, ok := s.store.StopRecording(c.sessionID)
	if !ok {
		return
	}
	st, _ := s.store.State(c.sessionID)
	s.recorder.CodeSnapshot(c.sessionID, st.LastCode, record.ReasonRecordingStop, true)
	capped, truncated := record.CapText(st.LastOutput)
	s.recorder.Record(c.sessionID, &record.OutputSnapshot{Text: capped, Truncated: truncated, Reason: record.ReasonRecordingStop}, true)
	s.recorder.Record(c.sessionID, &record.RecordingStopped{StoppedAt: stoppedAt.UnixMilli()}, true)

	c.group.broadcast(wsFrame{Type: "recordingStatus", Payload: mustJSON(recordingStatusPayload{
		Active:       false,
		RecordExists: s.recorder.Exists(c.sessionID),
	})})
}

func (s *Server) handleEndSessionFrame(c *wsConn, frame wsFrame) {
	if !c.joined() {
		return
	}
	if c.role != session.RoleHost {
		_ = writeWSError(c.peer, frame.RequestID, "FORBIDDEN", "only the host can end the session")
		return
	}
	s.store.End(c.sessionID, session.ReasonEndedByHost)
}

func (s *Server) handleCandidateMetaFrame(c *wsConn, frame wsFrame) {
	if !c.joined() {
		return
	}
	var meta session.CandidateMeta
	if err := json.Unmarshal(frame.Payload, &meta); err != nil {
		_ = writeWSError(c.peer, frame.RequestID, "INVALID_ARGUMENT", "invalid candidate meta payload")
		return
	}
	s.applyCandidateMeta(c.sessionID, meta, c.role)
}

// handleChallengeUpdateFrame relays a host-pushed challenge to everyone and
// records it. It deliberately does not replace the stored current challenge;
// loading goes through the challenge API.
func (s *Server) handleChallengeUpdateFrame(c *wsConn, frame wsFrame) {
	if !c.joined() || !s.store.IsActive(c.sessionID) {
		return
	}
	if c.role != session.RoleHost {
		_ = writeWSError(c.peer, frame.RequestID, "FORBIDDEN", "only the host can push challenges")
		return
	}
	var payload challengeUpdatePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(c.peer, frame.RequestID, "INVALID_ARGUMENT", "invalid challenge payload")
		return
	}
	payload.Language = challenge.NormalizeLanguage(payload.Language)

	s.recorder.Record(c.sessionID, &record.ChallengeUpdate{
		ChallengeID: payload.ID,
		Source:      payload.Source,
		Title:       payload.Title,
		Prompt:      payload.Prompt,
		Language:    payload.Language,
		Level:       payload.Level,
	}, true)
	c.group.broadcast(wsFrame{Type: "challengeUpdate", Payload: mustJSON(payload)})
}
