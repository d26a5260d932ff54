// Package server hosts the interview HTTP/WebSocket process: the session
// fan-out transport, the record and challenge APIs, and the code runner
// endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	platformerrors "github.com/devready/devready/internal/platform/errors"
	"github.com/devready/devready/internal/platform/timeouts"
	"github.com/devready/devready/internal/services/interview/ai"
	"github.com/devready/devready/internal/services/interview/challenge"
	"github.com/devready/devready/internal/services/interview/record"
	"github.com/devready/devready/internal/services/interview/runner"
	"github.com/devready/devready/internal/services/interview/session"
)

const (
	maxFramePayloadBytes   = 1024 * 1024
	maxFramesPerSecond     = 60
	maxDecodeErrorsPerConn = 3
)

// Config defines the inputs for the interview service boundary.
type Config struct {
	HTTPAddr      string
	RecordDir     string
	ChallengeDir  string
	SandboxDBPath string
	RunWorkDir    string
	AdminKey      string

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	SessionTTL        time.Duration
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// generator produces AI-backed hints, challenges, and solutions. The concrete
// implementation lives in the ai package; tests swap in fakes.
type generator interface {
	Hint(ctx context.Context, language, code, output string) (string, error)
	Challenge(ctx context.Context, language string, level int) (challenge.Challenge, error)
	Solve(ctx context.Context, ch challenge.Challenge) (string, error)
}

// codeRunner executes candidate code. Expected failures come back as output
// text, not as an error.
type codeRunner interface {
	Run(ctx context.Context, language, code string) (string, error)
}

// Server hosts the interview HTTP/WebSocket process.
type Server struct {
	httpAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server

	store    *session.Store
	recorder *record.Recorder
	hub      *sessionHub
	library  *challenge.Library
	gen      generator
	runner   codeRunner
	adminKey string

	sweepStop context.CancelFunc
	sweepDone chan struct{}
}

type wsFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type wsErrorEnvelope struct {
	Error wsError `json:"error"`
}

type wsError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewServer builds a configured interview server.
func NewServer(config Config) (*Server, error) {
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	recordDir := strings.TrimSpace(config.RecordDir)
	if recordDir == "" {
		return nil, errors.New("record directory is required")
	}
	if config.SessionTTL <= 0 {
		config.SessionTTL = session.DefaultTTL
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = timeouts.Shutdown
	}

	store := session.NewStore(config.SessionTTL)
	recorder, err := record.NewRecorder(recordDir, store.RecordingActive)
	if err != nil {
		return nil, fmt.Errorf("init recorder: %w", err)
	}

	var sandboxDBPath string
	if p := strings.TrimSpace(config.SandboxDBPath); p != "" {
		if err := runner.SeedSandboxDB(p); err != nil {
			log.Printf("session: sandbox database unavailable, SQL runs disabled: %v", err)
		} else {
			sandboxDBPath = p
		}
	}

	s := &Server{
		httpAddr:        httpAddr,
		shutdownTimeout: config.ShutdownTimeout,
		store:           store,
		recorder:        recorder,
		hub:             newSessionHub(),
		library:         challenge.NewLibrary(strings.TrimSpace(config.ChallengeDir)),
		gen: ai.NewClient(ai.Config{
			APIKey:  config.OpenAIAPIKey,
			Model:   config.OpenAIModel,
			BaseURL: config.OpenAIBaseURL,
		}),
		runner: &runner.Exec{
			WorkDir:       strings.TrimSpace(config.RunWorkDir),
			SandboxDBPath: sandboxDBPath,
		},
		adminKey: strings.TrimSpace(config.AdminKey),
	}
	store.SetEndHook(s.onSessionEnd)

	s.httpServer = &http.Server{
		Addr:              httpAddr,
		Handler:           s.routes(),
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}
	return s, nil
}

// onSessionEnd is the terminal fan-out for every path a session can end
// through: host request, TTL sweep, or lazy expiry discovery.
func (s *Server) onSessionEnd(sessionID, reason string) {
	s.recorder.Record(sessionID, &record.SessionEnded{Reason: reason}, true)

	public := "ended"
	if reason == session.ReasonExpired {
		public = "expired"
	}
	s.broadcast(sessionID, "sessionEnded", sessionEndedPayload{Reason: public})
}

// broadcast fans a frame out to every connected peer of a session, if any.
func (s *Server) broadcast(sessionID, frameType string, payload any) {
	group := s.hub.lookup(sessionID)
	if group == nil {
		return
	}
	group.broadcast(wsFrame{Type: frameType, Payload: mustJSON(payload)})
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/records", s.handleListRecords)
	mux.HandleFunc("GET /api/record/{id}", s.handleGetRecord)
	mux.HandleFunc("DELETE /api/record/{id}", s.handleDeleteRecord)
	mux.HandleFunc("GET /session/{id}/record", s.handleDownloadRecord)
	mux.HandleFunc("GET /api/challenge/random", s.handleChallengeRandom)
	mux.HandleFunc("POST /api/challenge/ai", s.handleChallengeAI)
	mux.HandleFunc("GET /api/challenge/solve", s.handleChallengeSolve)
	mux.HandleFunc("POST /run", s.handleRun)
	mux.Handle("GET /ws", s.wsHandler())
	return mux
}

// Run creates and serves an interview server until the context ends.
func Run(ctx context.Context, config Config) error {
	server, err := NewServer(config)
	if err != nil {
		return fmt.Errorf("init interview server: %w", err)
	}
	defer server.Close()

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve interview: %w", err)
	}
	return nil
}

// ListenAndServe runs the HTTP server and the expiry sweeper until the
// context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("interview server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	sweepCtx, cancel := context.WithCancel(ctx)
	s.sweepStop = cancel
	s.sweepDone = make(chan struct{})
	go func() {
		defer close(s.sweepDone)
		s.store.RunSweeper(sweepCtx)
	}()

	serveErr := make(chan error, 1)
	log.Printf("interview server listening on %s", s.httpAddr)
	go func() {
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// Close releases server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.sweepStop != nil {
		s.sweepStop()
	}
	if s.sweepDone != nil {
		<-s.sweepDone
	}
}

func writeWSError(peer *wsPeer, requestID string, code string, message string) error {
	return peer.send(wsFrame{
		Type:      "error",
		RequestID: requestID,
		Payload:   mustJSON(wsErrorEnvelope{Error: wsError{Code: code, Message: message}}),
	})
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("failed to marshal websocket frame payload: %v", err)
		return nil
	}
	return b
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("session: write response: %v", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, err error) {
	code := platformerrors.CodeOf(err)
	msg := err.Error()
	var perr *platformerrors.Error
	if errors.As(err, &perr) {
		msg = perr.Message
	}
	writeJSON(w, code.HTTPStatus(), errorResponse{Error: msg})
}
