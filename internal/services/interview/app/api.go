package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	platformerrors "github.com/devready/devready/internal/platform/errors"
	"github.com/devready/devready/internal/platform/timeouts"
	"github.com/devready/devready/internal/services/interview/ai"
	"github.com/devready/devready/internal/services/interview/challenge"
	"github.com/devready/devready/internal/services/interview/record"
	"github.com/devready/devready/internal/services/interview/session"
)

type healthResponse struct {
	OK bool  `json:"ok"`
	TS int64 `json:"ts"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{OK: true, TS: time.Now().UnixMilli()})
}

type recordListResponse struct {
	Records []record.Info `json:"records"`
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	records, err := record.List(s.recorder.Dir())
	if err != nil {
		writeError(w, platformerrors.Wrap(platformerrors.CodePersistenceFailure, "list records", err))
		return
	}
	if records == nil {
		records = []record.Info{}
	}
	writeJSON(w, http.StatusOK, recordListResponse{Records: records})
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	timeline, err := record.Replay(s.recorder.Dir(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, timeline)
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	if s.adminKey == "" {
		writeError(w, platformerrors.New(platformerrors.CodeForbidden, "record deletion is disabled"))
		return
	}
	presented := strings.TrimSpace(r.URL.Query().Get("admin"))
	if presented != s.adminKey {
		writeError(w, platformerrors.New(platformerrors.CodeForbidden, "invalid admin key"))
		return
	}

	sessionID := r.PathValue("id")
	if !s.recorder.Exists(sessionID) {
		writeError(w, platformerrors.New(platformerrors.CodeRecordNotFound, "no record found"))
		return
	}
	if err := s.recorder.Delete(sessionID); err != nil {
		writeError(w, platformerrors.Wrap(platformerrors.CodePersistenceFailure, "delete record", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleDownloadRecord(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if !s.recorder.Exists(sessionID) {
		writeError(w, platformerrors.New(platformerrors.CodeRecordNotFound, "no record found"))
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", sessionID+".jsonl"))
	http.ServeFile(w, r, s.recorder.LogPath(sessionID))
}

// hostKeyFrom reads the host capability key from the `k` query parameter or
// the X-Host-Key header.
func hostKeyFrom(r *http.Request) string {
	if k := strings.TrimSpace(r.URL.Query().Get("k")); k != "" {
		return k
	}
	return strings.TrimSpace(r.Header.Get("X-Host-Key"))
}

// authorizeHost validates the host capability key for challenge operations.
func (s *Server) authorizeHost(sessionID, presentedKey string) error {
	if strings.TrimSpace(sessionID) == "" {
		return platformerrors.New(platformerrors.CodeInvalidArgument, "sessionId is required")
	}
	if !s.store.Authorize(sessionID, presentedKey) {
		return platformerrors.New(platformerrors.CodeForbidden, "invalid host key")
	}
	return nil
}

type challengeResponse struct {
	Challenge challenge.Challenge `json:"challenge"`
}

// loadChallenge installs a sourced challenge as the session's current one,
// records the load, and fans the public form out to connected peers.
func (s *Server) loadChallenge(sessionID string, ch challenge.Challenge) {
	s.store.SetChallenge(sessionID, ch)
	s.recorder.Record(sessionID, &record.ChallengeLoaded{
		Source:      ch.Source,
		ChallengeID: ch.ID,
		Language:    ch.Language,
		Level:       ch.Level,
	}, true)
	s.broadcast(sessionID, "challengeUpdate", ch.Public())
}

func (s *Server) handleChallengeRandom(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sessionID := strings.TrimSpace(q.Get("sessionId"))
	if err := s.authorizeHost(sessionID, hostKeyFrom(r)); err != nil {
		writeError(w, err)
		return
	}
	if !s.store.IsActive(sessionID) {
		writeError(w, platformerrors.New(platformerrors.CodeSessionInactive, "session is not active"))
		return
	}

	lang := challenge.NormalizeLanguage(q.Get("lang"))
	if lang == "" {
		writeError(w, platformerrors.New(platformerrors.CodeInvalidArgument, "lang is required"))
		return
	}
	level, err := strconv.Atoi(strings.TrimSpace(q.Get("level")))
	if err != nil || !challenge.ValidLevel(level) {
		writeError(w, platformerrors.New(platformerrors.CodeInvalidArgument, "level must be 1, 2, or 3"))
		return
	}

	ch, err := s.library.Random(lang, level)
	if err != nil {
		writeError(w, err)
		return
	}
	s.loadChallenge(sessionID, ch)
	writeJSON(w, http.StatusOK, challengeResponse{Challenge: ch})
}

type challengeAIRequest struct {
	SessionID string `json:"sessionId"`
	Lang      string `json:"lang"`
	Level     int    `json:"level"`
}

func (s *Server) handleChallengeAI(w http.ResponseWriter, r *http.Request) {
	var req challengeAIRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, platformerrors.New(platformerrors.CodeInvalidArgument, "invalid request body"))
		return
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if err := s.authorizeHost(sessionID, hostKeyFrom(r)); err != nil {
		writeError(w, err)
		return
	}
	if !s.store.IsActive(sessionID) {
		writeError(w, platformerrors.New(platformerrors.CodeSessionInactive, "session is not active"))
		return
	}

	lang := challenge.NormalizeLanguage(req.Lang)
	if lang == "" {
		writeError(w, platformerrors.New(platformerrors.CodeInvalidArgument, "lang is required"))
		return
	}
	if !challenge.ValidLevel(req.Level) {
		writeError(w, platformerrors.New(platformerrors.CodeInvalidArgument, "level must be 1, 2, or 3"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.AIRequest)
	defer cancel()
	ch, err := s.gen.Challenge(ctx, lang, req.Level)
	if err != nil {
		writeError(w, err)
		return
	}
	s.loadChallenge(sessionID, ch)
	writeJSON(w, http.StatusOK, challengeResponse{Challenge: ch})
}

type solveResponse struct {
	OK           bool   `json:"ok"`
	Source       string `json:"source"`
	Title        string `json:"title"`
	Language     string `json:"language"`
	Level        int    `json:"level"`
	Prompt       string `json:"prompt"`
	SolutionCode string `json:"solutionCode"`
}

func (s *Server) handleChallengeSolve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sessionID := strings.TrimSpace(q.Get("sessionId"))
	if err := s.authorizeHost(sessionID, hostKeyFrom(r)); err != nil {
		writeError(w, err)
		return
	}
	if !s.store.IsActive(sessionID) {
		writeError(w, platformerrors.New(platformerrors.CodeSessionInactive, "session is not active"))
		return
	}

	ch, ok := s.store.Challenge(sessionID)
	if !ok {
		writeError(w, platformerrors.New(platformerrors.CodeChallengeNotFound, "no challenge loaded for this session yet"))
		return
	}

	resp := solveResponse{
		OK:           true,
		Source:       ch.Source,
		Title:        ch.Title,
		Language:     ch.Language,
		Level:        ch.Level,
		Prompt:       ch.Prompt,
		SolutionCode: ch.SolutionCode,
	}
	if resp.SolutionCode != "" {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.AIRequest)
	defer cancel()
	solution, err := s.gen.Solve(ctx, ch)
	if err != nil {
		if errors.Is(err, ai.ErrNotConfigured) {
			resp.SolutionCode = "AI solving is not configured on this server."
			writeJSON(w, http.StatusOK, resp)
			return
		}
		writeError(w, err)
		return
	}
	resp.Source = challenge.SourceAI
	resp.SolutionCode = solution
	writeJSON(w, http.StatusOK, resp)
}

type runRequest struct {
	SessionID string `json:"sessionId"`
	Code      string `json:"code"`
	Language  string `json:"language"`
}

type runResponse struct {
	Output string `json:"output"`
}

// handleRun executes candidate code and fans the result out. Expected
// failures stay in the output channel with a 200 status so the client's
// output pane shows them as run results.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, platformerrors.New(platformerrors.CodeInvalidArgument, "invalid request body"))
		return
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		writeJSON(w, http.StatusOK, runResponse{Output: "No sessionId provided"})
		return
	}
	if !s.store.IsActive(sessionID) {
		writeJSON(w, http.StatusOK, runResponse{Output: "Session is not active (ended or expired)."})
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		writeJSON(w, http.StatusOK, runResponse{Output: "No code received"})
		return
	}

	lang := challenge.NormalizeLanguage(req.Language)
	if lang == "" {
		lang = session.DefaultLanguage
	}
	s.store.SetCode(sessionID, req.Code)
	s.store.SetLanguage(sessionID, lang)
	s.recorder.CodeSnapshot(sessionID, req.Code, record.ReasonRun, true)
	s.recorder.Record(sessionID, &record.Run{Language: lang, CodeLength: len(req.Code)}, true)

	output, err := s.runner.Run(r.Context(), lang, req.Code)
	if err != nil {
		output = "Internal error: " + err.Error()
	}

	s.store.SetOutput(sessionID, output)
	capped, truncated := record.CapText(output)
	s.recorder.Record(sessionID, &record.RunResult{Output: capped, Truncated: truncated}, true)
	s.recorder.Record(sessionID, &record.OutputSnapshot{Text: capped, Truncated: truncated, Reason: record.ReasonRunFinish}, true)
	s.broadcast(sessionID, "outputUpdate", output)

	writeJSON(w, http.StatusOK, runResponse{Output: output})
}
