package record

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	platformerrors "github.com/devready/devready/internal/platform/errors"
	"github.com/devready/devready/internal/services/interview/session"
)

func TestReplayOrdersByTimestamp(t *testing.T) {
	r, _ := newTestRecorder(t, true)

	current := time.UnixMilli(3000)
	r.SetClock(func() time.Time { return current })
	r.Record("sess-1", &RunResult{Output: "42"}, true)

	current = time.UnixMilli(1000)
	r.Record("sess-1", &CodeSnapshot{Reason: ReasonRun, Code: "print(42)"}, true)

	current = time.UnixMilli(2000)
	r.Record("sess-1", &Run{Language: "python", CodeLength: 9}, true)

	timeline, err := Replay(r.Dir(), "sess-1")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(timeline.Events) != 3 {
		t.Fatalf("events = %d, want 3", len(timeline.Events))
	}

	wantOrder := []Type{TypeCodeSnapshot, TypeRun, TypeRunResult}
	for i, want := range wantOrder {
		if got := timeline.Events[i].kind(); got != want {
			t.Fatalf("event %d = %s, want %s", i, got, want)
		}
	}

	// Replay is pure over the files: a second pass yields the same result.
	again, err := Replay(r.Dir(), "sess-1")
	if err != nil {
		t.Fatalf("second replay: %v", err)
	}
	if len(again.Events) != len(timeline.Events) {
		t.Fatalf("second replay events = %d, want %d", len(again.Events), len(timeline.Events))
	}
}

func TestReplaySkipsMalformedLines(t *testing.T) {
	r, _ := newTestRecorder(t, true)
	r.Record("sess-1", &LanguageUpdate{Lang: "python"}, true)

	f, err := os.OpenFile(r.LogPath("sess-1"), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	if _, err := f.WriteString("{not json\n\n{\"ts\":1,\"sessionId\":\"sess-1\",\"type\":\"futureEvent\"}\n"); err != nil {
		t.Fatalf("append garbage: %v", err)
	}
	f.Close()

	r.Record("sess-1", &SessionEnded{Reason: "expired"}, true)

	timeline, err := Replay(r.Dir(), "sess-1")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(timeline.Events) != 2 {
		t.Fatalf("events = %d, want 2 surviving", len(timeline.Events))
	}
	if timeline.Skipped != 2 {
		t.Fatalf("skipped = %d, want 2", timeline.Skipped)
	}
}

func TestReplayMissingRecord(t *testing.T) {
	_, err := Replay(t.TempDir(), "nope")
	if err == nil {
		t.Fatal("expected error for missing record")
	}
	var perr *platformerrors.Error
	if !errors.As(err, &perr) || perr.Code != platformerrors.CodeRecordNotFound {
		t.Fatalf("error = %v, want record-not-found", err)
	}
}

func TestCandidateNamePrefersSidecar(t *testing.T) {
	r, _ := newTestRecorder(t, true)
	r.Record("sess-1", &CandidateMetaUpdate{First: "Old", Last: "Name"}, true)
	r.WriteMeta("sess-1", session.CandidateMeta{First: "Ada", Last: "Lovelace"})

	if got := CandidateName(r.Dir(), "sess-1"); got != "Ada Lovelace" {
		t.Fatalf("candidate name = %q, want sidecar value", got)
	}
}

func TestCandidateNameFallsBackToLogScan(t *testing.T) {
	r, _ := newTestRecorder(t, true)
	r.Record("sess-1", &CandidateMetaUpdate{First: "Ada", Last: "L"}, true)
	r.Record("sess-1", &CandidateMetaUpdate{First: "Ada", Last: "Lovelace"}, true)

	if got := CandidateName(r.Dir(), "sess-1"); got != "Ada Lovelace" {
		t.Fatalf("candidate name = %q, want last update from log", got)
	}
	if got := CandidateName(r.Dir(), "missing"); got != "" {
		t.Fatalf("candidate name for missing session = %q, want empty", got)
	}
}

func TestListOrdersNewestFirst(t *testing.T) {
	r, _ := newTestRecorder(t, true)
	r.Record("older", &SessionEnded{Reason: "expired"}, true)
	r.Record("newer", &SessionEnded{Reason: "expired"}, true)

	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(r.LogPath("older"), past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	records, err := List(r.Dir())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if records[0].SessionID != "newer" || records[1].SessionID != "older" {
		t.Fatalf("order = %s, %s; want newer first", records[0].SessionID, records[1].SessionID)
	}
}

func TestListIgnoresMissingDirAndForeignFiles(t *testing.T) {
	records, err := List(filepath.Join(t.TempDir(), "absent"))
	if err != nil || records != nil {
		t.Fatalf("missing dir: records=%v err=%v", records, err)
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write foreign file: %v", err)
	}
	records, err = List(dir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("records = %v, want none", records)
	}
}
