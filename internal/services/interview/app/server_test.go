package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/devready/devready/internal/services/interview/ai"
	"github.com/devready/devready/internal/services/interview/challenge"
)

// fakeGenerator stubs the AI backend per test.
type fakeGenerator struct {
	hint      func(language, code, output string) (string, error)
	challenge func(language string, level int) (challenge.Challenge, error)
	solve     func(ch challenge.Challenge) (string, error)
}

func (f fakeGenerator) Hint(_ context.Context, language, code, output string) (string, error) {
	if f.hint == nil {
		return "", ai.ErrNotConfigured
	}
	return f.hint(language, code, output)
}

func (f fakeGenerator) Challenge(_ context.Context, language string, level int) (challenge.Challenge, error) {
	if f.challenge == nil {
		return challenge.Challenge{}, ai.ErrNotConfigured
	}
	return f.challenge(language, level)
}

func (f fakeGenerator) Solve(_ context.Context, ch challenge.Challenge) (string, error) {
	if f.solve == nil {
		return "", ai.ErrNotConfigured
	}
	return f.solve(ch)
}

type funcRunner func(language, code string) (string, error)

func (f funcRunner) Run(_ context.Context, language, code string) (string, error) {
	return f(language, code)
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := NewServer(Config{
		HTTPAddr:  "127.0.0.1:0",
		RecordDir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return s
}

func newTestHTTPServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := newTestServer(t)
	srv := httptest.NewServer(s.routes())
	t.Cleanup(srv.Close)
	return s, srv
}

func TestNewServerRequiresHTTPAddr(t *testing.T) {
	if _, err := NewServer(Config{RecordDir: "records"}); err == nil {
		t.Fatal("expected error for empty HTTP address")
	}
}

func TestNewServerRequiresRecordDir(t *testing.T) {
	if _, err := NewServer(Config{HTTPAddr: ":0"}); err == nil {
		t.Fatal("expected error for empty record directory")
	}
}

func TestListenAndServeNilServer(t *testing.T) {
	var s *Server
	if err := s.ListenAndServe(context.Background()); err == nil {
		t.Fatal("expected error for nil server")
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, srv := newTestHTTPServer(t)

	resp, err := http.Get(srv.URL + "/api/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var payload healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !payload.OK || payload.TS == 0 {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := newTestServer(t)
	defer s.Close()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.ListenAndServe(ctx)
	}()

	time.Sleep(25 * time.Millisecond)
	cancel()

	select {
	case err := <-serveErr:
		if err != nil {
			t.Fatalf("serve returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop on cancel")
	}
}

func TestSessionEndHookRecordsTerminalEvent(t *testing.T) {
	s, _ := newTestHTTPServer(t)

	s.store.GetOrCreate("sess-1")
	s.store.End("sess-1", "ended_by_host")

	timelineContains(t, s, "sess-1", `"type":"sessionEnded"`, `"reason":"ended_by_host"`)
}

// timelineContains asserts the raw log for a session includes every needle.
func timelineContains(t *testing.T, s *Server, sessionID string, needles ...string) {
	t.Helper()
	raw := readLog(t, s, sessionID)
	for _, needle := range needles {
		if !strings.Contains(raw, needle) {
			t.Fatalf("log missing %q:\n%s", needle, raw)
		}
	}
}

func readLog(t *testing.T, s *Server, sessionID string) string {
	t.Helper()
	raw, err := os.ReadFile(s.recorder.LogPath(sessionID))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	return string(raw)
}
