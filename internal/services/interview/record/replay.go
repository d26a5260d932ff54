package record

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	platformerrors "github.com/devready/devready/internal/platform/errors"
)

// Timeline is the reconstructed, ordered event sequence for one session.
type Timeline struct {
	SessionID     string  `json:"sessionId"`
	CandidateName string  `json:"candidateName"`
	Events        []Event `json:"events"`
	// Skipped counts malformed or unknown log lines dropped during replay.
	Skipped int `json:"-"`
}

// Replay reconstructs a session's timeline from the artifacts under dir.
//
// It is pure over the persisted files: events are parsed line by line,
// malformed lines are skipped individually, and the result is stably sorted
// by timestamp to correct any out-of-order artifact. Candidate identity is
// resolved preferentially from the sidecar, falling back to scanning the log.
func Replay(dir, sessionID string) (Timeline, error) {
	logPath := filepath.Join(dir, sessionID+".jsonl")
	f, err := os.Open(logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Timeline{}, platformerrors.New(platformerrors.CodeRecordNotFound, "no record found")
		}
		return Timeline{}, platformerrors.Wrap(platformerrors.CodePersistenceFailure, "open record", err)
	}
	defer f.Close()

	timeline := Timeline{SessionID: sessionID}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 2*MaxSnapshotChars*4)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		evt, err := Decode([]byte(line))
		if err != nil {
			timeline.Skipped++
			continue
		}
		timeline.Events = append(timeline.Events, evt)
	}
	if err := scanner.Err(); err != nil {
		return Timeline{}, platformerrors.Wrap(platformerrors.CodeMalformedArtifact, "scan record", err)
	}

	sort.SliceStable(timeline.Events, func(i, j int) bool {
		return timeline.Events[i].header().TS < timeline.Events[j].header().TS
	})

	timeline.CandidateName = CandidateName(dir, sessionID)
	return timeline, nil
}

// CandidateName resolves the candidate's display name for a session,
// preferring the sidecar and falling back to identity-update events in the
// log. Returns "" when neither artifact yields a name.
func CandidateName(dir, sessionID string) string {
	if name := sidecarName(dir, sessionID); name != "" {
		return name
	}
	return scanLogForName(filepath.Join(dir, sessionID+".jsonl"))
}

func sidecarName(dir, sessionID string) string {
	raw, err := os.ReadFile(filepath.Join(dir, sessionID+".meta.json"))
	if err != nil {
		return ""
	}
	var meta Meta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return ""
	}
	return strings.TrimSpace(meta.CandidateName)
}

func scanLogForName(logPath string) string {
	f, err := os.Open(logPath)
	if err != nil {
		return ""
	}
	defer f.Close()

	var first, last string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 2*MaxSnapshotChars*4)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		evt, err := Decode([]byte(line))
		if err != nil {
			continue
		}
		if update, ok := evt.(*CandidateMetaUpdate); ok {
			first = strings.TrimSpace(update.First)
			last = strings.TrimSpace(update.Last)
		}
	}

	parts := make([]string, 0, 2)
	if first != "" {
		parts = append(parts, first)
	}
	if last != "" {
		parts = append(parts, last)
	}
	return strings.Join(parts, " ")
}

// Info summarizes one recorded session for listings.
type Info struct {
	SessionID     string `json:"sessionId"`
	CandidateName string `json:"candidateName"`
	Size          int64  `json:"size"`
	ModifiedAt    int64  `json:"modifiedAt"`
}

// List enumerates recorded sessions under dir, newest first.
func List(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read record directory: %w", err)
	}

	var records []Info
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		sessionID := strings.TrimSuffix(name, ".jsonl")
		records = append(records, Info{
			SessionID:     sessionID,
			CandidateName: CandidateName(dir, sessionID),
			Size:          info.Size(),
			ModifiedAt:    info.ModTime().UnixMilli(),
		})
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].ModifiedAt > records[j].ModifiedAt
	})
	return records, nil
}
